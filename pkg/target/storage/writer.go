// Package storage streams uploaded images onto the block medium.
package storage

import (
	"fmt"
	"sync"
)

// Writer writes one upload session into fixed-size blocks.
//
// Blocks are addressed by the running byte offset divided by BlockSize.
// A trailing partial block is written zero-padded and carried: the next
// chunk completes it and rewrites the same address, so the medium holds
// a bit-exact image regardless of how the upload is chunked.
type Writer struct {
	dev Device

	lock     sync.Mutex
	active   bool
	expected uint32
	received uint32
	block    [BlockSize]byte
}

// NewWriter creates a Writer on dev.
func NewWriter(dev Device) *Writer {
	return &Writer{dev: dev}
}

// Begin starts a session expecting size bytes.
func (w *Writer) Begin(size uint32) error {
	w.lock.Lock()
	defer w.lock.Unlock()
	w.active = false
	if !w.dev.Present() {
		return ErrMediumAbsent
	}
	if err := w.dev.Init(); err != nil {
		return fmt.Errorf("%w: %v", ErrInitFailed, err)
	}
	w.active, w.expected, w.received = true, size, 0
	return nil
}

// Write appends chunk to the image.
func (w *Writer) Write(chunk []byte) error {
	w.lock.Lock()
	defer w.lock.Unlock()
	if !w.active {
		return ErrNoSession
	}
	if uint64(w.received)+uint64(len(chunk)) > uint64(w.expected) {
		return ErrOverflow
	}
	addr, off := w.received/BlockSize, int(w.received%BlockSize)
	for data := chunk; len(data) > 0; {
		n := copy(w.block[off:], data)
		for i := off + n; i < BlockSize; i++ {
			w.block[i] = 0
		}
		if err := w.dev.WriteBlock(addr, w.block[:]); err != nil {
			return &BlockWriteError{Addr: addr, Err: err}
		}
		data = data[n:]
		if off += n; off == BlockSize {
			addr, off = addr+1, 0
		}
	}
	w.received += uint32(len(chunk))
	return nil
}

// Finish ends the session. It fails if not all expected bytes arrived.
func (w *Writer) Finish() error {
	w.lock.Lock()
	defer w.lock.Unlock()
	if !w.active {
		return ErrNoSession
	}
	w.active = false
	if w.received != w.expected {
		return &SizeMismatchError{Expected: w.expected, Received: w.received}
	}
	if s, ok := w.dev.(interface{ Sync() error }); ok {
		return s.Sync()
	}
	return nil
}

// Abort drops the session without checks.
func (w *Writer) Abort() {
	w.lock.Lock()
	w.active = false
	w.lock.Unlock()
}

// Active tells whether a session is open.
func (w *Writer) Active() bool {
	w.lock.Lock()
	defer w.lock.Unlock()
	return w.active
}

// Expected returns the announced size of the current session.
func (w *Writer) Expected() uint32 {
	w.lock.Lock()
	defer w.lock.Unlock()
	return w.expected
}

// Received returns the bytes written in the current session.
func (w *Writer) Received() uint32 {
	w.lock.Lock()
	defer w.lock.Unlock()
	return w.received
}

// Progress returns received*100/expected.
func (w *Writer) Progress() uint8 {
	w.lock.Lock()
	defer w.lock.Unlock()
	if w.expected == 0 {
		return 0
	}
	return uint8(uint64(w.received) * 100 / uint64(w.expected))
}
