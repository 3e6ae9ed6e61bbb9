package bridge

import (
	"fmt"

	"github.com/robotalks/testboard/pkg/wire"
)

// TransportError is returned when the link transaction itself fails.
type TransportError struct {
	Cmd wire.Command
	Err error
}

// Error implements error.
func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport: %v", e.Cmd, e.Err)
}

// Unwrap returns the link error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError is returned when the response can't be decoded or
// carries a code the command never answers with.
type ProtocolError struct {
	Cmd wire.Command
	Err error
}

// Error implements error.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: bad response: %v", e.Cmd, e.Err)
}

// Unwrap returns the decode error.
func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// ResponseError is returned by typed helpers when the target answers
// ERROR or BUSY.
type ResponseError struct {
	Cmd  wire.Command
	Code wire.Code
}

// Error implements error.
func (e *ResponseError) Error() string {
	return fmt.Sprintf("%s: target answered %s", e.Cmd, e.Code)
}
