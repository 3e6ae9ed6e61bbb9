package stream

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/testboard/pkg/link"
	"github.com/robotalks/testboard/pkg/wire"
)

func TestFramesOverConn(t *testing.T) {
	a, b := net.Pipe()
	master, slave := New(a), New(b)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go link.Serve(ctx, slave, link.HandlerFunc(func(rx []byte) []byte {
		if cmd, _, err := wire.DecodeRequest(rx); err != nil || cmd != wire.CmdGetLog {
			return wire.EncodeResponse(wire.RspError, nil)
		}
		return wire.EncodeResponse(wire.RspData, wire.EncodeLog([]byte("boot ok")))
	}))

	m := link.NewMaster(master)
	rx, err := m.Transact(context.Background(), wire.EncodeRequest(wire.CmdGetLog, nil), wire.LogCapacity)
	require.NoError(t, err)
	require.Len(t, rx, wire.LogCapacity)
	code, payload, err := wire.DecodeResponse(rx)
	require.NoError(t, err)
	require.Equal(t, wire.RspData, code)
	data, err := wire.DecodeLog(payload)
	require.NoError(t, err)
	require.Equal(t, "boot ok", string(data))
}

func TestPartialFrameTimesOut(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	rw := New(b)
	rw.Timeout = 20 * time.Millisecond
	go func() {
		a.Write([]byte{0x00, 0x01, 4, 0})
		time.Sleep(100 * time.Millisecond)
		a.Write(wire.EncodeRequest(wire.CmdPing, nil))
	}()
	pkt, err := rw.ReadPacket()
	require.NoError(t, err)
	require.Equal(t, wire.EncodeRequest(wire.CmdPing, nil), pkt)
}
