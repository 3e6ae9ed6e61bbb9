// Package dispatch routes framed requests to the target state machine.
package dispatch

import (
	"github.com/golang/glog"

	"github.com/robotalks/testboard/pkg/framework"
	"github.com/robotalks/testboard/pkg/link"
	"github.com/robotalks/testboard/pkg/wire"
)

// Handlers is the command-handler table of the target.
type Handlers interface {
	Ping() wire.Frame
	UploadStart(payload []byte) wire.Frame
	UploadData(payload []byte) wire.Frame
	UploadEnd() wire.Frame
	RunTest() wire.Frame
	GetStatus() wire.Frame
	GetLog() wire.Frame
	Reset() wire.Frame
}

// Dispatcher decodes one receive buffer per transaction and encodes
// the handler's response.
type Dispatcher struct {
	// MaxPayload rejects longer requests. Zero means wire.DefaultMaxPayload.
	MaxPayload int

	table map[wire.Command]func(payload []byte) wire.Frame
}

// New creates a Dispatcher over h.
func New(h Handlers) *Dispatcher {
	noPayload := func(fn func() wire.Frame) func([]byte) wire.Frame {
		return func([]byte) wire.Frame { return fn() }
	}
	return &Dispatcher{
		table: map[wire.Command]func([]byte) wire.Frame{
			wire.CmdPing:        noPayload(h.Ping),
			wire.CmdUploadStart: h.UploadStart,
			wire.CmdUploadData:  h.UploadData,
			wire.CmdUploadEnd:   noPayload(h.UploadEnd),
			wire.CmdRunTest:     noPayload(h.RunTest),
			wire.CmdGetStatus:   noPayload(h.GetStatus),
			wire.CmdGetLog:      noPayload(h.GetLog),
			wire.CmdReset:       noPayload(h.Reset),
		},
	}
}

// HandleTransaction implements link.Handler. A buffer starting with an
// idle-line byte carries no command and gets no response.
func (d *Dispatcher) HandleTransaction(rx []byte) []byte {
	if len(rx) == 0 || wire.IsIdleByte(rx[0]) {
		return nil
	}
	max := d.MaxPayload
	if max == 0 {
		max = wire.DefaultMaxPayload
	}
	frame, err := wire.DecodeLimit(rx, max)
	if err != nil {
		glog.Warningf("bad request 0x%02x: %v", rx[0], err)
		return wire.EncodeResponse(wire.RspError, nil)
	}
	cmd := frame.Command()
	fn, ok := d.table[cmd]
	if !ok {
		glog.Warningf("unknown command %s", cmd)
		return wire.EncodeResponse(wire.RspError, nil)
	}
	rsp := fn(frame.Payload)
	glog.V(2).Infof("%s(%d) -> %s(%d)", cmd, len(frame.Payload), rsp.ResponseCode(), len(rsp.Payload))
	return rsp.Bytes()
}

// Control implements framework.Controller, answering the transactions
// posted into the loop by a link.LoopHandler.
func (d *Dispatcher) Control(cc framework.ControlContext) error {
	cc.Messages().ProcessMessages(func(msg framework.Message) bool {
		t, ok := msg.(*link.Transaction)
		if ok {
			t.Reply(d.HandleTransaction(t.RX))
		}
		return ok
	})
	return nil
}
