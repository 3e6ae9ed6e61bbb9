// Package board implements the authoritative run state of the target
// controller and the handlers for every protocol command.
package board

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/testboard/pkg/target/logring"
	"github.com/robotalks/testboard/pkg/target/pins"
	"github.com/robotalks/testboard/pkg/target/storage"
	"github.com/robotalks/testboard/pkg/wire"
)

// DefaultSettleDelay is the wait between boot-select and power-on.
const DefaultSettleDelay = 100 * time.Millisecond

// Status messages.
const (
	MsgReady        = "Ready"
	MsgRunning      = "Running test"
	MsgTestComplete = "Test complete"
)

// Machine is the target state machine.
//
// Command handlers are serialized by the caller's main loop and
// additionally by an internal mutex. The UART receive path runs
// concurrently and only ever moves Running to Completed, so state,
// progress and message are published together as one atomic snapshot.
type Machine struct {
	Pins        pins.Pins
	SettleDelay time.Duration
	Sleep       func(time.Duration)

	ring   *logring.Ring
	writer *storage.Writer

	lock   sync.Mutex
	status atomic.Pointer[wire.Status]
	drops  atomic.Uint64
}

// New creates a Machine in Idle state.
func New(dev storage.Device, p pins.Pins, ring *logring.Ring) *Machine {
	if p == nil {
		p = &pins.LogPins{}
	}
	if ring == nil {
		ring = logring.New(logring.DefaultCapacity)
	}
	m := &Machine{
		Pins:        p,
		SettleDelay: DefaultSettleDelay,
		Sleep:       time.Sleep,
		ring:        ring,
		writer:      storage.NewWriter(dev),
	}
	m.status.Store(&wire.Status{State: wire.StateIdle, Message: MsgReady})
	return m
}

// Ring returns the log ring fed by ReceiveUART.
func (m *Machine) Ring() *logring.Ring {
	return m.ring
}

// State returns the current run state.
func (m *Machine) State() wire.State {
	return m.status.Load().State
}

// Status returns state, progress and message.
func (m *Machine) Status() wire.Status {
	return *m.status.Load()
}

func (m *Machine) enter(state wire.State, progress uint8, msg string) {
	if prev := m.State(); prev != state {
		glog.Infof("state %s -> %s: %s", prev, state, msg)
	}
	m.status.Store(&wire.Status{State: state, Progress: progress, Message: msg})
}

func (m *Machine) fail(msg string) wire.Frame {
	glog.Warning(msg)
	m.enter(wire.StateError, m.status.Load().Progress, msg)
	return wire.Response(wire.RspError, nil)
}

func ok() wire.Frame {
	return wire.Response(wire.RspOK, nil)
}

func rejected(cmd wire.Command, reason string) wire.Frame {
	glog.V(2).Infof("%s rejected: %s", cmd, reason)
	return wire.Response(wire.RspError, nil)
}

// Ping answers OK in every state.
func (m *Machine) Ping() wire.Frame {
	return ok()
}

// UploadStart opens an upload session.
func (m *Machine) UploadStart(payload []byte) wire.Frame {
	m.lock.Lock()
	defer m.lock.Unlock()
	if s := m.State(); s != wire.StateIdle {
		return rejected(wire.CmdUploadStart, "state "+s.String())
	}
	size, err := wire.DecodeSize(payload)
	if err != nil {
		return rejected(wire.CmdUploadStart, err.Error())
	}
	if err := m.writer.Begin(size); err != nil {
		return m.fail(fmt.Sprintf("Storage unavailable: %v", err))
	}
	m.enter(wire.StateUploading, 0, fmt.Sprintf("Receiving %d bytes", size))
	return ok()
}

// UploadData writes one chunk of the image.
func (m *Machine) UploadData(payload []byte) wire.Frame {
	m.lock.Lock()
	defer m.lock.Unlock()
	if s := m.State(); s != wire.StateUploading {
		return rejected(wire.CmdUploadData, "state "+s.String())
	}
	if err := m.writer.Write(payload); err != nil {
		m.writer.Abort()
		return m.fail(fmt.Sprintf("Write failed: %v", err))
	}
	st := *m.status.Load()
	st.Progress = m.writer.Progress()
	m.status.Store(&st)
	return ok()
}

// UploadEnd closes the session, verifying the size.
func (m *Machine) UploadEnd() wire.Frame {
	m.lock.Lock()
	defer m.lock.Unlock()
	if s := m.State(); s != wire.StateUploading {
		return rejected(wire.CmdUploadEnd, "state "+s.String())
	}
	received := m.writer.Received()
	if err := m.writer.Finish(); err != nil {
		return m.fail(fmt.Sprintf("Upload failed: %v", err))
	}
	m.enter(wire.StateIdle, 100, fmt.Sprintf("Upload complete: %d bytes", received))
	return ok()
}

// RunTest boots the DUT. The call blocks for the settle delay.
func (m *Machine) RunTest() wire.Frame {
	m.lock.Lock()
	defer m.lock.Unlock()
	if s := m.State(); s != wire.StateIdle {
		glog.V(2).Infof("%s busy: state %s", wire.CmdRunTest, s)
		return wire.Response(wire.RspBusy, nil)
	}
	m.enter(wire.StateBooting, 0, "Booting")
	m.ring.Reset()
	if err := m.Pins.SetBoot(true); err != nil {
		return m.fail(fmt.Sprintf("Boot select failed: %v", err))
	}
	m.Sleep(m.SettleDelay)
	if err := m.Pins.SetPower(true); err != nil {
		return m.fail(fmt.Sprintf("Power on failed: %v", err))
	}
	m.enter(wire.StateRunning, 0, MsgRunning)
	return ok()
}

// GetStatus reports state, progress and message.
func (m *Machine) GetStatus() wire.Frame {
	return wire.Response(wire.RspStatus, m.Status().Bytes())
}

// GetLog drains up to wire.MaxLogChunk bytes of captured output.
func (m *Machine) GetLog() wire.Frame {
	data := m.ring.Drain(wire.MaxLogChunk)
	d := m.ring.Dropped()
	if prev := m.drops.Swap(d); d > prev {
		glog.Warningf("console log overflow: %d more bytes dropped, %d since run start", d-prev, d)
	}
	return wire.Response(wire.RspData, wire.EncodeLog(data))
}

// Reset powers the DUT off and returns to Idle from any state.
func (m *Machine) Reset() wire.Frame {
	m.lock.Lock()
	defer m.lock.Unlock()
	if err := m.Pins.SetPower(false); err != nil {
		glog.Warningf("power off: %v", err)
	}
	if err := m.Pins.SetBoot(false); err != nil {
		glog.Warningf("boot deselect: %v", err)
	}
	m.writer.Abort()
	m.enter(wire.StateIdle, 0, MsgReady)
	m.ring.Reset()
	return ok()
}

// ReceiveUART is the UART receive path. It must only be called from
// one goroutine.
func (m *Machine) ReceiveUART(b byte) {
	m.ring.Push(b)
	if !m.ring.CheckSentinel() {
		return
	}
	cur := m.status.Load()
	if cur.State != wire.StateRunning {
		return
	}
	msg := MsgTestComplete
	if d := m.ring.Dropped(); d > 0 {
		msg = fmt.Sprintf("%s, %d log bytes dropped", MsgTestComplete, d)
	}
	if m.status.CompareAndSwap(cur, &wire.Status{State: wire.StateCompleted, Progress: 100, Message: msg}) {
		glog.Infof("state %s -> %s: %s", wire.StateRunning, wire.StateCompleted, msg)
	}
}

// Write implements io.Writer over ReceiveUART.
func (m *Machine) Write(p []byte) (int, error) {
	for _, b := range p {
		m.ReceiveUART(b)
	}
	return len(p), nil
}
