package wire

import (
	"errors"
	"fmt"
)

var (
	// ErrFrameTooShort indicates fewer bytes than a frame header.
	ErrFrameTooShort = errors.New("frame too short")
	// ErrLengthMismatch indicates the declared payload length exceeds
	// the bytes actually available.
	ErrLengthMismatch = errors.New("frame length mismatch")
	// ErrFrameTooLarge indicates the declared payload length exceeds
	// the negotiated maximum.
	ErrFrameTooLarge = errors.New("frame too large")
	// ErrShortPayload indicates a payload too short for its command.
	ErrShortPayload = errors.New("payload too short")
)

// UnexpectedCodeError is returned when a response carries a code other
// than the one expected for the request.
type UnexpectedCodeError struct {
	Expect Code
	Actual Code
}

// Error implements error.
func (e *UnexpectedCodeError) Error() string {
	return fmt.Sprintf("unexpected response %s, want %s", e.Actual, e.Expect)
}
