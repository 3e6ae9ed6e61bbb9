// Package bridge is the coordinator's only speaker of the wire protocol.
package bridge

import (
	"context"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/testboard/pkg/link"
	"github.com/robotalks/testboard/pkg/wire"
)

// DefaultCapacity is the receive capacity for plain OK/ERROR/BUSY responses.
const DefaultCapacity = wire.HeaderSize + 16

// Bridge sends commands over a link. Transactions are serialized.
type Bridge struct {
	link link.Transactor
	lock sync.Mutex
}

// New creates a Bridge.
func New(t link.Transactor) *Bridge {
	return &Bridge{link: t}
}

// Send performs one transaction with a receive buffer of capacity bytes.
// A target ERROR is a valid response, not an error.
func (b *Bridge) Send(ctx context.Context, cmd wire.Command, payload []byte, capacity int) (wire.Frame, error) {
	b.lock.Lock()
	rx, err := b.link.Transact(ctx, wire.EncodeRequest(cmd, payload), capacity)
	b.lock.Unlock()
	if err != nil {
		glog.V(2).Infof("%s: %v", cmd, err)
		return wire.Frame{}, &TransportError{Cmd: cmd, Err: err}
	}
	f, err := wire.Decode(rx)
	if err != nil {
		return wire.Frame{}, &ProtocolError{Cmd: cmd, Err: err}
	}
	glog.V(2).Infof("%s(%d) -> %s(%d)", cmd, len(payload), f.ResponseCode(), len(f.Payload))
	return f, nil
}

// Do sends a command expecting OK.
func (b *Bridge) Do(ctx context.Context, cmd wire.Command, payload []byte) error {
	f, err := b.Send(ctx, cmd, payload, DefaultCapacity)
	if err != nil {
		return err
	}
	return expect(cmd, f, wire.RspOK)
}

// expect checks the response code. ERROR and BUSY are answers of the
// target; any other unexpected code means the exchange went wrong.
func expect(cmd wire.Command, f wire.Frame, want wire.Code) error {
	switch code := f.ResponseCode(); code {
	case want:
		return nil
	case wire.RspError, wire.RspBusy:
		return &ResponseError{Cmd: cmd, Code: code}
	default:
		return &ProtocolError{Cmd: cmd, Err: &wire.UnexpectedCodeError{Expect: want, Actual: code}}
	}
}

// Ping checks the target answers.
func (b *Bridge) Ping(ctx context.Context) error {
	return b.Do(ctx, wire.CmdPing, nil)
}

// UploadStart opens an upload session of size bytes.
func (b *Bridge) UploadStart(ctx context.Context, size uint32) error {
	return b.Do(ctx, wire.CmdUploadStart, wire.EncodeSize(size))
}

// UploadData sends one chunk.
func (b *Bridge) UploadData(ctx context.Context, chunk []byte) error {
	return b.Do(ctx, wire.CmdUploadData, chunk)
}

// UploadEnd closes the session.
func (b *Bridge) UploadEnd(ctx context.Context) error {
	return b.Do(ctx, wire.CmdUploadEnd, nil)
}

// RunTest starts a test. BUSY comes back as a *ResponseError.
func (b *Bridge) RunTest(ctx context.Context) error {
	return b.Do(ctx, wire.CmdRunTest, nil)
}

// Reset returns the target to Idle.
func (b *Bridge) Reset(ctx context.Context) error {
	return b.Do(ctx, wire.CmdReset, nil)
}

// Status queries state, progress and message.
func (b *Bridge) Status(ctx context.Context) (wire.Status, error) {
	f, err := b.Send(ctx, wire.CmdGetStatus, nil, wire.StatusCapacity)
	if err != nil {
		return wire.Status{}, err
	}
	if err := expect(wire.CmdGetStatus, f, wire.RspStatus); err != nil {
		return wire.Status{}, err
	}
	st, err := wire.DecodeStatus(f.Payload)
	if err != nil {
		return st, &ProtocolError{Cmd: wire.CmdGetStatus, Err: err}
	}
	return st, nil
}

// Log drains up to wire.MaxLogChunk bytes of DUT console output.
func (b *Bridge) Log(ctx context.Context) ([]byte, error) {
	f, err := b.Send(ctx, wire.CmdGetLog, nil, wire.LogCapacity)
	if err != nil {
		return nil, err
	}
	if err := expect(wire.CmdGetLog, f, wire.RspData); err != nil {
		return nil, err
	}
	data, err := wire.DecodeLog(f.Payload)
	if err != nil {
		return nil, &ProtocolError{Cmd: wire.CmdGetLog, Err: err}
	}
	return append([]byte(nil), data...), nil
}
