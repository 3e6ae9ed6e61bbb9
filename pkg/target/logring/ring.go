// Package logring buffers the DUT console output on the target controller.
package logring

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/robotalks/testboard/pkg/wire"
)

// DefaultCapacity is the default ring size.
const DefaultCapacity = 64 * 1024

var sentinelWord = binary.BigEndian.Uint64(wire.Sentinel[:])

// Ring is a fixed-capacity byte ring with one producer (the UART receive
// path) and one consumer (the main loop).
//
// When full, incoming bytes are dropped and the oldest data is kept.
// The sentinel window is a separate shift register fed by every pushed
// byte, stored or dropped, so a full ring never hides the end marker.
type Ring struct {
	buf  []byte
	head atomic.Uint32 // written by producer only
	tail atomic.Uint32 // written by consumer only

	window  atomic.Uint64 // last 8 bytes pushed, most recent in the low byte
	seen    atomic.Uint64 // bytes pushed since reset
	dropped atomic.Uint64
}

// New creates a Ring holding up to capacity-1 bytes.
func New(capacity int) *Ring {
	if capacity < 2 {
		capacity = DefaultCapacity
	}
	return &Ring{buf: make([]byte, capacity)}
}

// Capacity returns the size of the backing array.
func (r *Ring) Capacity() int {
	return len(r.buf)
}

func (r *Ring) next(i uint32) uint32 {
	if i++; int(i) == len(r.buf) {
		return 0
	}
	return i
}

// Push appends one byte. It never blocks.
// Returns false if the byte was dropped because the ring is full.
func (r *Ring) Push(b byte) bool {
	for {
		w := r.window.Load()
		if r.window.CompareAndSwap(w, w<<8|uint64(b)) {
			break
		}
	}
	r.seen.Add(1)

	head := r.head.Load()
	next := r.next(head)
	if next == r.tail.Load() {
		r.dropped.Add(1)
		return false
	}
	r.buf[head] = b
	// publish after the data store
	r.head.Store(next)
	return true
}

// Write pushes all bytes of p, implementing io.Writer. Dropped bytes are
// not reported as an error.
func (r *Ring) Write(p []byte) (int, error) {
	for _, b := range p {
		r.Push(b)
	}
	return len(p), nil
}

// Available returns the number of buffered bytes.
func (r *Ring) Available() int {
	head, tail := r.head.Load(), r.tail.Load()
	if head >= tail {
		return int(head - tail)
	}
	return len(r.buf) - int(tail) + int(head)
}

// Drain pops up to max bytes.
func (r *Ring) Drain(max int) []byte {
	n := r.Available()
	if max >= 0 && n > max {
		n = max
	}
	out := make([]byte, n)
	tail := r.tail.Load()
	for i := range out {
		out[i] = r.buf[tail]
		tail = r.next(tail)
	}
	r.tail.Store(tail)
	return out
}

// CheckSentinel tells whether the last 8 bytes pushed since the last
// reset are the sentinel marker.
func (r *Ring) CheckSentinel() bool {
	return r.seen.Load() >= uint64(len(wire.Sentinel)) && r.window.Load() == sentinelWord
}

// Dropped returns the number of bytes dropped since the last reset.
func (r *Ring) Dropped() uint64 {
	return r.dropped.Load()
}

// Reset discards buffered bytes and the sentinel window. Memory is not
// zeroed. The consumer empties the ring by moving tail to head, as the
// producer owns head.
func (r *Ring) Reset() {
	r.window.Store(0)
	r.seen.Store(0)
	r.dropped.Store(0)
	r.tail.Store(r.head.Load())
}
