package client

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/testboard/pkg/coordinator/bridge"
	"github.com/robotalks/testboard/pkg/coordinator/gateway"
	"github.com/robotalks/testboard/pkg/coordinator/poller"
	"github.com/robotalks/testboard/pkg/coordinator/state"
	"github.com/robotalks/testboard/pkg/link"
	"github.com/robotalks/testboard/pkg/target/board"
	"github.com/robotalks/testboard/pkg/target/dispatch"
	"github.com/robotalks/testboard/pkg/target/logring"
	"github.com/robotalks/testboard/pkg/target/storage"
	"github.com/robotalks/testboard/pkg/wire"
)

type bench struct {
	machine *board.Machine
	dev     *storage.MemDevice
	bridge  *bridge.Bridge
}

func newBench() *bench {
	dev := storage.NewMemDevice()
	m := board.New(dev, nil, logring.New(16384))
	m.Sleep = func(time.Duration) {}
	return &bench{machine: m, dev: dev, bridge: bridge.New(link.NewPipe(dispatch.New(m)))}
}

// serveGateway runs the coordinator with a fast poller.
func (b *bench) serveGateway(t *testing.T) *HTTPClient {
	store := state.NewStore()
	p := poller.New(b.bridge, store)
	p.Interval = 5 * time.Millisecond
	srv := gateway.New(b.bridge, store)
	srv.Refresher = p
	ts := httptest.NewServer(srv.Handler())
	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx)
	t.Cleanup(func() {
		cancel()
		ts.Close()
	})
	return NewHTTPClient(ts.URL + "/")
}

// dut emulates the device under test printing after it is powered.
type dut struct {
	Board
	machine *board.Machine
	output  []byte
}

func (d *dut) Run(ctx context.Context) error {
	if err := d.Board.Run(ctx); err != nil {
		return err
	}
	go d.machine.Write(d.output)
	return nil
}

func writeImage(t *testing.T, size int) (string, []byte) {
	image := make([]byte, size)
	for i := range image {
		image[i] = byte(i ^ 0x5a)
	}
	path := filepath.Join(t.TempDir(), "kernel.iso")
	require.NoError(t, os.WriteFile(path, image, 0644))
	return path, image
}

func testOutput() []byte {
	out := []byte("kernel booting\nall tests passed\n")
	return append(out, wire.Sentinel[:]...)
}

func TestCI(t *testing.T) {
	for _, mode := range []string{"http", "direct"} {
		t.Run(mode, func(t *testing.T) {
			b := newBench()
			var brd Board
			if mode == "http" {
				brd = b.serveGateway(t)
			} else {
				brd = NewDirect(b.bridge)
			}
			path, image := writeImage(t, 5000)
			output := filepath.Join(t.TempDir(), "logs", "uart.log")
			var progress bytes.Buffer
			ci := &CI{
				Image:    path,
				Output:   output,
				Timeout:  5 * time.Second,
				Interval: 5 * time.Millisecond,
				Out:      &progress,
			}
			result, err := ci.Run(context.Background(), &dut{Board: brd, machine: b.machine, output: testOutput()})
			require.NoError(t, err)
			require.True(t, result.Success)
			require.True(t, result.MarkerFound)
			require.Equal(t, wire.StateCompleted, result.Final.State)
			require.Equal(t, image, b.dev.Image(len(image)))

			saved, err := os.ReadFile(output)
			require.NoError(t, err)
			require.Equal(t, testOutput(), saved)
			require.Contains(t, progress.String(), "Test suite completed successfully")
		})
	}
}

func TestCITimeout(t *testing.T) {
	b := newBench()
	path, _ := writeImage(t, 100)
	ci := &CI{Image: path, Timeout: 30 * time.Millisecond, Interval: 5 * time.Millisecond}
	result, err := ci.Run(context.Background(), &dut{Board: NewDirect(b.bridge), machine: b.machine, output: []byte("hang")})
	require.NoError(t, err)
	require.True(t, result.TimedOut)
	require.False(t, result.Success)
	require.False(t, result.MarkerFound)
	require.Equal(t, wire.StateRunning, result.Final.State)
	require.Equal(t, []byte("hang"), result.Log)
}

func TestCIUploadFailure(t *testing.T) {
	b := newBench()
	b.dev.Absent = true
	path, _ := writeImage(t, 100)
	ci := &CI{Image: path}
	_, err := ci.Run(context.Background(), b.serveGateway(t))
	var herr *HTTPError
	require.ErrorAs(t, err, &herr)
	require.Equal(t, http.StatusInternalServerError, herr.StatusCode)
}

func TestHTTPClient(t *testing.T) {
	b := newBench()
	c := b.serveGateway(t)
	ctx := context.Background()

	require.NoError(t, c.Ping(ctx))
	st, err := c.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, Status{State: wire.StateIdle, Message: "Ready"}, st)

	require.NoError(t, c.Upload(ctx, bytes.NewReader(make([]byte, 600)), 600))
	st, err = c.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, Status{State: wire.StateIdle, Progress: 100, Message: "Upload complete"}, st)

	require.NoError(t, c.Run(ctx))
	require.ErrorIs(t, c.Run(ctx), ErrBusy)

	b.machine.Write([]byte("hello"))
	data, err := c.Log(ctx)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))

	require.NoError(t, c.Reset(ctx))
	require.Equal(t, wire.StateIdle, b.machine.State())
}

func TestDirect(t *testing.T) {
	b := newBench()
	d := NewDirect(b.bridge)
	ctx := context.Background()
	require.NoError(t, d.Ping(ctx))
	require.NoError(t, d.Run(ctx))
	require.ErrorIs(t, d.Run(ctx), ErrBusy)
	st, err := d.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, wire.StateRunning, st.State)
	require.NoError(t, d.Reset(ctx))

	err = d.Upload(ctx, bytes.NewReader([]byte("short")), 10)
	require.Error(t, err)
	require.Equal(t, wire.StateUploading, b.machine.State())
}

type statusSeq struct {
	Board
	seq []Status
	err error
}

func (s *statusSeq) Status(context.Context) (Status, error) {
	if len(s.seq) == 0 {
		return Status{}, s.err
	}
	st := s.seq[0]
	s.seq = s.seq[1:]
	return st, nil
}

func TestWaitForCompletion(t *testing.T) {
	var seen []wire.State
	b := &statusSeq{seq: []Status{
		{State: wire.StateBooting},
		{State: wire.StateRunning},
		{State: wire.StateError, Message: "Write failed"},
	}}
	st, err := WaitForCompletion(context.Background(), b, time.Millisecond, func(st Status) {
		seen = append(seen, st.State)
	})
	require.NoError(t, err)
	require.Equal(t, "Write failed", st.Message)
	require.Equal(t, []wire.State{wire.StateBooting, wire.StateRunning, wire.StateError}, seen)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = WaitForCompletion(ctx, &statusSeq{err: errors.New("offline")}, time.Millisecond, nil)
	require.ErrorIs(t, err, ErrTimeout)
}
