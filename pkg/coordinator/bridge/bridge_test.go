package bridge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/testboard/pkg/link"
	"github.com/robotalks/testboard/pkg/target/board"
	"github.com/robotalks/testboard/pkg/target/dispatch"
	"github.com/robotalks/testboard/pkg/target/logring"
	"github.com/robotalks/testboard/pkg/target/storage"
	"github.com/robotalks/testboard/pkg/wire"
)

type transactFunc func(ctx context.Context, tx []byte, rxCap int) ([]byte, error)

func (f transactFunc) Transact(ctx context.Context, tx []byte, rxCap int) ([]byte, error) {
	return f(ctx, tx, rxCap)
}

func newTarget() (*Bridge, *board.Machine) {
	m := board.New(storage.NewMemDevice(), nil, logring.New(8192))
	m.Sleep = func(time.Duration) {}
	return New(link.NewPipe(dispatch.New(m))), m
}

func TestSend(t *testing.T) {
	var capacity int
	b := New(transactFunc(func(ctx context.Context, tx []byte, rxCap int) ([]byte, error) {
		capacity = rxCap
		cmd, payload, err := wire.DecodeRequest(tx)
		require.NoError(t, err)
		require.Equal(t, wire.CmdUploadStart, cmd)
		require.Equal(t, wire.EncodeSize(9), payload)
		return link.Fit(wire.EncodeResponse(wire.RspError, nil), rxCap), nil
	}))
	f, err := b.Send(context.Background(), wire.CmdUploadStart, wire.EncodeSize(9), 32)
	require.NoError(t, err)
	require.Equal(t, wire.RspError, f.ResponseCode())
	require.Equal(t, 32, capacity)
}

func TestErrors(t *testing.T) {
	errLink := errors.New("spi timeout")
	b := New(transactFunc(func(context.Context, []byte, int) ([]byte, error) {
		return nil, errLink
	}))
	err := b.Ping(context.Background())
	var te *TransportError
	require.ErrorAs(t, err, &te)
	require.ErrorIs(t, err, errLink)
	require.Equal(t, wire.CmdPing, te.Cmd)

	b = New(transactFunc(func(_ context.Context, _ []byte, rxCap int) ([]byte, error) {
		return make([]byte, rxCap), nil
	}))
	_, err = b.Status(context.Background())
	var pe *ProtocolError
	require.ErrorAs(t, err, &pe)
	var uce *wire.UnexpectedCodeError
	require.ErrorAs(t, err, &uce)
	require.Equal(t, wire.RspStatus, uce.Expect)
	require.Equal(t, wire.Code(0), uce.Actual)

	b = New(transactFunc(func(_ context.Context, _ []byte, rxCap int) ([]byte, error) {
		return link.Fit(wire.EncodeResponse(wire.RspBusy, nil), rxCap), nil
	}))
	_, err = b.Log(context.Background())
	var re *ResponseError
	require.ErrorAs(t, err, &re)
	require.Equal(t, wire.RspBusy, re.Code)

	b = New(transactFunc(func(context.Context, []byte, int) ([]byte, error) {
		return []byte{0x10, 0}, nil
	}))
	require.ErrorAs(t, b.Ping(context.Background()), &pe)
	require.ErrorIs(t, pe, wire.ErrFrameTooShort)
}

func TestAgainstTarget(t *testing.T) {
	b, m := newTarget()
	ctx := context.Background()
	require.NoError(t, b.Ping(ctx))
	require.NoError(t, b.UploadStart(ctx, 6))
	require.NoError(t, b.UploadData(ctx, []byte("abcdef")))
	require.NoError(t, b.UploadEnd(ctx))

	st, err := b.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, wire.StateIdle, st.State)
	require.Equal(t, uint8(100), st.Progress)
	require.Equal(t, "Upload complete: 6 bytes", st.Message)

	require.NoError(t, b.RunTest(ctx))
	var re *ResponseError
	require.ErrorAs(t, b.RunTest(ctx), &re)
	require.Equal(t, wire.RspBusy, re.Code)

	m.Write([]byte("PASS\n"))
	m.Write(wire.Sentinel[:])
	st, err = b.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, wire.StateCompleted, st.State)

	data, err := b.Log(ctx)
	require.NoError(t, err)
	require.Equal(t, append([]byte("PASS\n"), wire.Sentinel[:]...), data)

	require.NoError(t, b.Reset(ctx))
	require.Equal(t, wire.StateIdle, m.State())
}
