package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrMediumAbsent indicates no card is inserted.
	ErrMediumAbsent = errors.New("medium absent")
	// ErrInitFailed indicates the medium failed to initialize.
	ErrInitFailed = errors.New("medium init failed")
	// ErrNoSession indicates a write or finish without Begin.
	ErrNoSession = errors.New("no upload session")
	// ErrOverflow indicates more bytes than announced by Begin.
	ErrOverflow = errors.New("upload exceeds expected size")
)

// BlockWriteError is returned when the device fails to write a block.
type BlockWriteError struct {
	Addr uint32
	Err  error
}

// Error implements error.
func (e *BlockWriteError) Error() string {
	return fmt.Sprintf("write block %d: %v", e.Addr, e.Err)
}

// Unwrap returns the device error.
func (e *BlockWriteError) Unwrap() error {
	return e.Err
}

// SizeMismatchError is returned by Finish when fewer bytes than expected
// were received.
type SizeMismatchError struct {
	Expected uint32
	Received uint32
}

// Error implements error.
func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("size mismatch: expected %d bytes, received %d", e.Expected, e.Received)
}
