// Package poller mirrors the target status into the coordinator cache
// while a test is booting or running.
package poller

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/testboard/pkg/coordinator/state"
	"github.com/robotalks/testboard/pkg/wire"
)

// DefaultInterval between polls.
const DefaultInterval = 500 * time.Millisecond

// StatusSource queries the target.
type StatusSource interface {
	Status(ctx context.Context) (wire.Status, error)
}

// Indicator is notified when a test run ends in Completed or Error.
type Indicator interface {
	Indicate(ctx context.Context, snap state.Snapshot) error
}

// IndicatorFunc is func type of Indicator.
type IndicatorFunc func(ctx context.Context, snap state.Snapshot) error

// Indicate implements Indicator.
func (f IndicatorFunc) Indicate(ctx context.Context, snap state.Snapshot) error {
	return f(ctx, snap)
}

// Poller is a single periodic task: no overlapping polls, no retries.
type Poller struct {
	Source     StatusSource
	Store      *state.Store
	Interval   time.Duration
	Indicators []Indicator

	polling int32
}

// New creates a Poller.
func New(src StatusSource, store *state.Store, indicators ...Indicator) *Poller {
	return &Poller{Source: src, Store: store, Interval: DefaultInterval, Indicators: indicators}
}

// Name implements framework.Named.
func (p *Poller) Name() string {
	return "poller"
}

// Run implements framework.Runnable.
func (p *Poller) Run(ctx context.Context) error {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.PollOnce(ctx)
		}
	}
}

// PollOnce polls if the cached state is Booting or Running. It reports
// whether a poll was made.
func (p *Poller) PollOnce(ctx context.Context) bool {
	if !p.Store.Snapshot().State.Busy() {
		return false
	}
	return p.poll(ctx)
}

// Refresh polls regardless of the cached state, e.g. after the target
// answered BUSY to a request the cache considered valid.
func (p *Poller) Refresh(ctx context.Context) bool {
	return p.poll(ctx)
}

func (p *Poller) poll(ctx context.Context) bool {
	if !atomic.CompareAndSwapInt32(&p.polling, 0, 1) {
		return false
	}
	defer atomic.StoreInt32(&p.polling, 0)

	st, err := p.Source.Status(ctx)
	if err != nil {
		glog.Warningf("status poll: %v", err)
		return true
	}
	snap := state.Snapshot{State: st.State, Progress: st.Progress, Message: st.Message}
	prev := p.Store.Set(snap)
	if prev.State != snap.State {
		glog.Infof("target %s -> %s: %s", prev.State, snap.State, snap.Message)
		if snap.State.Terminal() {
			p.indicate(ctx, snap)
		}
	}
	return true
}

func (p *Poller) indicate(ctx context.Context, snap state.Snapshot) {
	for _, ind := range p.Indicators {
		if err := ind.Indicate(ctx, snap); err != nil {
			glog.Warningf("indicator: %v", err)
		}
	}
}

// LogIndicator logs the end of a test run.
var LogIndicator = IndicatorFunc(func(_ context.Context, snap state.Snapshot) error {
	if snap.State == wire.StateCompleted {
		glog.Infof("test run completed: %s", snap.Message)
	} else {
		glog.Errorf("test run failed: %s", snap.Message)
	}
	return nil
})
