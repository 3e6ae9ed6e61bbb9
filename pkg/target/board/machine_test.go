package board

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/testboard/pkg/target/logring"
	"github.com/robotalks/testboard/pkg/target/pins"
	"github.com/robotalks/testboard/pkg/target/storage"
	"github.com/robotalks/testboard/pkg/wire"
)

type env struct {
	t     *testing.T
	m     *Machine
	dev   *storage.MemDevice
	pins  *pins.LogPins
	slept []time.Duration
}

func newEnv(t *testing.T) *env {
	e := &env{t: t, dev: storage.NewMemDevice(), pins: &pins.LogPins{}}
	e.m = New(e.dev, e.pins, logring.New(1024))
	e.m.Sleep = func(d time.Duration) { e.slept = append(e.slept, d) }
	return e
}

func (e *env) expect(code wire.Code, f wire.Frame) *env {
	require.Equal(e.t, code, f.ResponseCode())
	return e
}

func (e *env) state(s wire.State) *env {
	require.Equal(e.t, s, e.m.State())
	return e
}

func (e *env) toState(s wire.State) *env {
	switch s {
	case wire.StateUploading:
		e.m.UploadStart(wire.EncodeSize(10))
	case wire.StateRunning:
		e.m.RunTest()
	case wire.StateCompleted:
		e.m.RunTest()
		e.m.Write(wire.Sentinel[:])
	case wire.StateError:
		e.m.UploadStart(wire.EncodeSize(10))
		e.m.UploadEnd()
	}
	return e.state(s)
}

func TestUploadScenario(t *testing.T) {
	e := newEnv(t)
	data := make([]byte, 1024)
	for i := range data {
		data[i] = byte(i)
	}
	e.expect(wire.RspOK, e.m.UploadStart(wire.EncodeSize(1024))).state(wire.StateUploading)
	require.Equal(t, "Receiving 1024 bytes", e.m.Status().Message)
	e.expect(wire.RspOK, e.m.UploadData(data[:512]))
	require.Equal(t, uint8(50), e.m.Status().Progress)
	e.expect(wire.RspOK, e.m.UploadData(data[512:]))
	e.expect(wire.RspOK, e.m.UploadEnd()).state(wire.StateIdle)
	st := e.m.Status()
	require.Equal(t, uint8(100), st.Progress)
	require.Equal(t, "Upload complete: 1024 bytes", st.Message)
	require.Equal(t, []uint32{0, 1}, e.dev.Writes())
	require.Equal(t, data[:512], e.dev.Block(0))
	require.Equal(t, data[512:], e.dev.Block(1))
}

func TestUploadFailures(t *testing.T) {
	t.Run("premature end", func(t *testing.T) {
		e := newEnv(t)
		e.expect(wire.RspOK, e.m.UploadStart(wire.EncodeSize(1024)))
		e.expect(wire.RspOK, e.m.UploadData(make([]byte, 100)))
		e.expect(wire.RspError, e.m.UploadEnd()).state(wire.StateError)
		require.Contains(t, e.m.Status().Message, "size mismatch")
	})
	t.Run("medium absent", func(t *testing.T) {
		e := newEnv(t)
		e.dev.Absent = true
		e.expect(wire.RspError, e.m.UploadStart(wire.EncodeSize(10))).state(wire.StateError)
		require.Contains(t, e.m.Status().Message, "Storage unavailable")
	})
	t.Run("write fails", func(t *testing.T) {
		e := newEnv(t)
		e.dev.FailErr = errors.New("crc")
		e.expect(wire.RspOK, e.m.UploadStart(wire.EncodeSize(10)))
		e.expect(wire.RspError, e.m.UploadData(make([]byte, 10))).state(wire.StateError)
	})
	t.Run("overflow", func(t *testing.T) {
		e := newEnv(t)
		e.expect(wire.RspOK, e.m.UploadStart(wire.EncodeSize(4)))
		e.expect(wire.RspError, e.m.UploadData(make([]byte, 5))).state(wire.StateError)
	})
	t.Run("short start payload", func(t *testing.T) {
		e := newEnv(t)
		e.expect(wire.RspError, e.m.UploadStart([]byte{1, 2})).state(wire.StateIdle)
	})
}

func TestPreconditions(t *testing.T) {
	for _, s := range []wire.State{wire.StateUploading, wire.StateRunning, wire.StateCompleted, wire.StateError} {
		t.Run(s.String(), func(t *testing.T) {
			e := newEnv(t).toState(s)
			before := e.m.Status()
			e.expect(wire.RspBusy, e.m.RunTest()).state(s)
			e.expect(wire.RspError, e.m.UploadStart(wire.EncodeSize(1))).state(s)
			require.Equal(t, before, e.m.Status())
		})
	}
	e := newEnv(t)
	e.expect(wire.RspError, e.m.UploadData([]byte{1})).state(wire.StateIdle)
	e.expect(wire.RspError, e.m.UploadEnd()).state(wire.StateIdle)
}

func TestRunTest(t *testing.T) {
	e := newEnv(t)
	e.m.Write([]byte("stale"))
	e.expect(wire.RspOK, e.m.RunTest()).state(wire.StateRunning)
	require.Equal(t, []time.Duration{DefaultSettleDelay}, e.slept)
	boot, power, _ := e.pins.Levels()
	require.True(t, boot)
	require.True(t, power)
	require.Equal(t, MsgRunning, e.m.Status().Message)
	require.Zero(t, e.m.Ring().Available())

	e.m.Write([]byte("all tests passed\n"))
	e.state(wire.StateRunning)
	e.m.Write(wire.Sentinel[:])
	e.state(wire.StateCompleted)
	st := e.m.Status()
	require.Equal(t, uint8(100), st.Progress)
	require.Equal(t, MsgTestComplete, st.Message)

	f := e.m.GetLog()
	e.expect(wire.RspData, f)
	data, err := wire.DecodeLog(f.Payload)
	require.NoError(t, err)
	require.Equal(t, append([]byte("all tests passed\n"), wire.Sentinel[:]...), data)
}

func TestSentinelOnlyWhileRunning(t *testing.T) {
	e := newEnv(t)
	e.m.Write(wire.Sentinel[:])
	e.state(wire.StateIdle)
}

func TestGetLogCapped(t *testing.T) {
	e := newEnv(t)
	e.m = New(e.dev, e.pins, logring.New(3*wire.MaxLogChunk))
	e.m.Write(make([]byte, wire.MaxLogChunk+10))
	data, err := wire.DecodeLog(e.m.GetLog().Payload)
	require.NoError(t, err)
	require.Len(t, data, wire.MaxLogChunk)
	data, err = wire.DecodeLog(e.m.GetLog().Payload)
	require.NoError(t, err)
	require.Len(t, data, 10)
}

func TestOverflowReportedOnCompletion(t *testing.T) {
	e := newEnv(t)
	e.m = New(e.dev, e.pins, logring.New(64))
	e.m.Sleep = func(time.Duration) {}
	e.expect(wire.RspOK, e.m.RunTest())
	e.m.Write(make([]byte, 100))
	e.m.Write(wire.Sentinel[:])
	e.state(wire.StateCompleted)
	require.Equal(t, MsgTestComplete+", 45 log bytes dropped", e.m.Status().Message)

	data, err := wire.DecodeLog(e.m.GetLog().Payload)
	require.NoError(t, err)
	require.Len(t, data, 63)
}

func TestResetRacingSentinel(t *testing.T) {
	e := newEnv(t)
	for i := 0; i < 200; i++ {
		e.expect(wire.RspOK, e.m.RunTest())
		done := make(chan struct{})
		go func() {
			defer close(done)
			e.m.Write(wire.Sentinel[:])
		}()
		e.m.Reset()
		<-done
		require.Equal(t, wire.Status{State: wire.StateIdle, Message: MsgReady}, e.m.Status())
	}
}

func TestResetFromAnyState(t *testing.T) {
	for _, s := range []wire.State{wire.StateIdle, wire.StateUploading, wire.StateRunning, wire.StateCompleted, wire.StateError} {
		t.Run(s.String(), func(t *testing.T) {
			e := newEnv(t).toState(s)
			e.m.Write([]byte("console"))
			e.expect(wire.RspOK, e.m.Reset()).state(wire.StateIdle)
			st := e.m.Status()
			require.Zero(t, st.Progress)
			require.Equal(t, MsgReady, st.Message)
			require.Zero(t, e.m.Ring().Available())
			boot, power, _ := e.pins.Levels()
			require.False(t, boot)
			require.False(t, power)
		})
	}
}

func TestStatusFrame(t *testing.T) {
	e := newEnv(t)
	f := e.m.GetStatus()
	e.expect(wire.RspStatus, f)
	st, err := wire.DecodeStatus(f.Payload)
	require.NoError(t, err)
	require.Equal(t, wire.Status{State: wire.StateIdle, Message: MsgReady}, st)
	e.expect(wire.RspOK, e.m.Ping())
}

func TestLEDLevel(t *testing.T) {
	base := time.Unix(100, 0)
	require.True(t, LEDLevel(wire.StateIdle, base))
	require.False(t, LEDLevel(wire.StateCompleted, base))
	require.NotEqual(t, LEDLevel(wire.StateRunning, base), LEDLevel(wire.StateRunning, base.Add(250*time.Millisecond)))
	require.NotEqual(t, LEDLevel(wire.StateError, base), LEDLevel(wire.StateError, base.Add(100*time.Millisecond)))
}
