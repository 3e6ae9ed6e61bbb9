// Package state holds the coordinator's cached view of the target.
package state

import (
	"sync"

	"github.com/robotalks/testboard/pkg/wire"
)

// Snapshot is a copy of the cached status.
type Snapshot struct {
	State    wire.State
	Progress uint8
	Message  string
}

// Store owns the cached status. All writes go through its methods.
type Store struct {
	lock      sync.Mutex
	snap      Snapshot
	listeners map[int]chan Snapshot
	nextID    int
}

// NewStore creates a Store in Idle with message "Ready".
func NewStore() *Store {
	return &Store{
		snap:      Snapshot{State: wire.StateIdle, Message: "Ready"},
		listeners: make(map[int]chan Snapshot),
	}
}

// Snapshot returns the current status.
func (s *Store) Snapshot() Snapshot {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.snap
}

// Begin moves Idle to state with progress 0 and reports true. In any
// other state nothing changes and it reports false. This serializes
// uploads and runs started by concurrent requests.
func (s *Store) Begin(state wire.State, message string) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.snap.State != wire.StateIdle {
		return false
	}
	s.setLocked(Snapshot{State: state, Message: message})
	return true
}

// Set replaces the status and returns the previous one.
func (s *Store) Set(snap Snapshot) Snapshot {
	s.lock.Lock()
	defer s.lock.Unlock()
	prev := s.snap
	s.setLocked(snap)
	return prev
}

// Replace sets snap only if the cached state is from, and reports
// whether it did.
func (s *Store) Replace(from wire.State, snap Snapshot) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.snap.State != from {
		return false
	}
	s.setLocked(snap)
	return true
}

// SetProgress updates the progress only.
func (s *Store) SetProgress(progress uint8) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.snap.Progress != progress {
		snap := s.snap
		snap.Progress = progress
		s.setLocked(snap)
	}
}

// Subscribe returns a channel receiving the latest snapshot after every
// change. Slow receivers only see the most recent one.
func (s *Store) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	s.lock.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = ch
	ch <- s.snap
	s.lock.Unlock()
	return ch, func() {
		s.lock.Lock()
		delete(s.listeners, id)
		s.lock.Unlock()
	}
}

func (s *Store) setLocked(snap Snapshot) {
	changed := snap != s.snap
	s.snap = snap
	if !changed {
		return
	}
	for _, ch := range s.listeners {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}
