package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/testboard/pkg/framework"
	"github.com/robotalks/testboard/pkg/link"
	"github.com/robotalks/testboard/pkg/target/board"
	"github.com/robotalks/testboard/pkg/target/logring"
	"github.com/robotalks/testboard/pkg/target/storage"
	"github.com/robotalks/testboard/pkg/wire"
)

func newDispatcher() (*Dispatcher, *board.Machine, *storage.MemDevice) {
	dev := storage.NewMemDevice()
	m := board.New(dev, nil, logring.New(1024))
	m.Sleep = func(time.Duration) {}
	return New(m), m, dev
}

func call(t *testing.T, d *Dispatcher, cmd wire.Command, payload []byte) wire.Frame {
	rsp := d.HandleTransaction(wire.EncodeRequest(cmd, payload))
	require.NotNil(t, rsp)
	f, err := wire.Decode(rsp)
	require.NoError(t, err)
	return f
}

func TestIdleBytes(t *testing.T) {
	d, _, _ := newDispatcher()
	require.Nil(t, d.HandleTransaction(nil))
	require.Nil(t, d.HandleTransaction(make([]byte, 64)))
	ff := make([]byte, 64)
	for i := range ff {
		ff[i] = 0xFF
	}
	require.Nil(t, d.HandleTransaction(ff))
}

func TestBadRequests(t *testing.T) {
	d, m, _ := newDispatcher()
	testCases := []struct {
		name string
		rx   []byte
	}{
		{"unknown command", wire.EncodeRequest(wire.Command(0x42), nil)},
		{"response code as command", wire.EncodeResponse(wire.RspOK, nil)},
		{"too short", []byte{0x01, 0}},
		{"length mismatch", []byte{0x03, 9, 0, 0, 0, 1}},
		{"too large", []byte{0x03, 0, 0, 1, 0}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f, err := wire.Decode(d.HandleTransaction(tc.rx))
			require.NoError(t, err)
			require.Equal(t, wire.RspError, f.ResponseCode())
			require.Equal(t, wire.StateIdle, m.State())
		})
	}
}

func TestProtocolScenario(t *testing.T) {
	d, _, dev := newDispatcher()
	require.Equal(t, wire.RspOK, call(t, d, wire.CmdPing, nil).ResponseCode())
	require.Equal(t, wire.RspOK, call(t, d, wire.CmdUploadStart, wire.EncodeSize(1024)).ResponseCode())
	// trailing receive buffer padding is ignored
	rx := make([]byte, 600)
	copy(rx, wire.EncodeRequest(wire.CmdUploadData, make([]byte, 512)))
	f, err := wire.Decode(d.HandleTransaction(rx))
	require.NoError(t, err)
	require.Equal(t, wire.RspOK, f.ResponseCode())
	require.Equal(t, wire.RspOK, call(t, d, wire.CmdUploadData, make([]byte, 512)).ResponseCode())
	require.Equal(t, wire.RspOK, call(t, d, wire.CmdUploadEnd, nil).ResponseCode())
	require.Equal(t, []uint32{0, 1}, dev.Writes())

	f = call(t, d, wire.CmdGetStatus, nil)
	require.Equal(t, wire.RspStatus, f.ResponseCode())
	st, err := wire.DecodeStatus(f.Payload)
	require.NoError(t, err)
	require.Equal(t, wire.StateIdle, st.State)
	require.Equal(t, uint8(100), st.Progress)

	require.Equal(t, wire.RspOK, call(t, d, wire.CmdRunTest, nil).ResponseCode())
	require.Equal(t, wire.RspBusy, call(t, d, wire.CmdRunTest, nil).ResponseCode())
	f = call(t, d, wire.CmdGetLog, nil)
	require.Equal(t, wire.RspData, f.ResponseCode())
	require.Equal(t, wire.RspOK, call(t, d, wire.CmdReset, nil).ResponseCode())
}

func TestLoopController(t *testing.T) {
	d, _, _ := newDispatcher()
	loop := framework.NewLoop()
	loop.Interval = time.Hour
	loop.AddController(framework.PrLvTop, d)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	p := link.NewPipe(&link.LoopHandler{Loop: loop, Timeout: 5 * time.Second})
	rx, err := p.Transact(context.Background(), wire.EncodeRequest(wire.CmdGetStatus, nil), wire.StatusCapacity)
	require.NoError(t, err)
	code, payload, err := wire.DecodeResponse(rx)
	require.NoError(t, err)
	require.Equal(t, wire.RspStatus, code)
	st, err := wire.DecodeStatus(payload)
	require.NoError(t, err)
	require.Equal(t, board.MsgReady, st.Message)
}
