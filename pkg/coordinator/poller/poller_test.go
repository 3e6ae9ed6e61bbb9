package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/testboard/pkg/coordinator/state"
	"github.com/robotalks/testboard/pkg/wire"
)

type fakeSource struct {
	lock    sync.Mutex
	status  wire.Status
	err     error
	calls   int
	blockCh chan struct{}
}

func (f *fakeSource) Status(ctx context.Context) (wire.Status, error) {
	f.lock.Lock()
	f.calls++
	ch := f.blockCh
	st, err := f.status, f.err
	f.lock.Unlock()
	if ch != nil {
		<-ch
	}
	return st, err
}

func (f *fakeSource) set(st wire.Status) {
	f.lock.Lock()
	f.status = st
	f.lock.Unlock()
}

func (f *fakeSource) callCount() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.calls
}

type recordIndicator struct {
	snaps []state.Snapshot
}

func (r *recordIndicator) Indicate(_ context.Context, snap state.Snapshot) error {
	r.snaps = append(r.snaps, snap)
	return nil
}

func TestPollOnlyWhileBusy(t *testing.T) {
	src := &fakeSource{status: wire.Status{State: wire.StateRunning}}
	store := state.NewStore()
	p := New(src, store)
	require.False(t, p.PollOnce(context.Background()))
	require.Zero(t, src.callCount())

	store.Set(state.Snapshot{State: wire.StateBooting})
	require.True(t, p.PollOnce(context.Background()))
	require.Equal(t, wire.StateRunning, store.Snapshot().State)
}

func TestTransitionIndicates(t *testing.T) {
	src := &fakeSource{status: wire.Status{State: wire.StateRunning, Message: "Running test"}}
	store := state.NewStore()
	store.Set(state.Snapshot{State: wire.StateBooting})
	var rec recordIndicator
	p := New(src, store, &rec, LogIndicator)
	ctx := context.Background()

	p.PollOnce(ctx)
	require.Empty(t, rec.snaps)
	src.set(wire.Status{State: wire.StateCompleted, Progress: 100, Message: "Test complete"})
	p.PollOnce(ctx)
	require.Equal(t, []state.Snapshot{{State: wire.StateCompleted, Progress: 100, Message: "Test complete"}}, rec.snaps)
	// no longer busy
	require.False(t, p.PollOnce(ctx))
	require.Len(t, rec.snaps, 1)
}

func TestPollErrorKeepsState(t *testing.T) {
	src := &fakeSource{err: errors.New("spi down")}
	store := state.NewStore()
	store.Set(state.Snapshot{State: wire.StateRunning, Message: "Starting test..."})
	p := New(src, store)
	require.True(t, p.PollOnce(context.Background()))
	require.Equal(t, wire.StateRunning, store.Snapshot().State)
}

func TestNotReentrant(t *testing.T) {
	src := &fakeSource{status: wire.Status{State: wire.StateRunning}, blockCh: make(chan struct{})}
	store := state.NewStore()
	store.Set(state.Snapshot{State: wire.StateRunning})
	p := New(src, store)
	done := make(chan bool)
	go func() { done <- p.PollOnce(context.Background()) }()
	for src.callCount() == 0 {
		time.Sleep(time.Millisecond)
	}
	require.False(t, p.PollOnce(context.Background()))
	require.False(t, p.Refresh(context.Background()))
	close(src.blockCh)
	require.True(t, <-done)
	require.Equal(t, 1, src.callCount())
}

func TestRun(t *testing.T) {
	src := &fakeSource{status: wire.Status{State: wire.StateCompleted}}
	store := state.NewStore()
	store.Set(state.Snapshot{State: wire.StateRunning})
	p := New(src, store)
	p.Interval = 5 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(ctx) }()
	ch, unsub := store.Subscribe()
	defer unsub()
	for snap := range ch {
		if snap.State == wire.StateCompleted {
			break
		}
	}
	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)
}
