// Package client drives a test board from a CI job, either through the
// coordinator's HTTP gateway or directly over a link.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/robotalks/testboard/pkg/wire"
)

// Status is the board status as seen by a client.
type Status struct {
	State    wire.State
	Progress uint8
	Message  string
}

// String is for logging.
func (s Status) String() string {
	return fmt.Sprintf("%s (%d%%) %s", s.State, s.Progress, s.Message)
}

// Board is a test board.
type Board interface {
	Ping(ctx context.Context) error
	Status(ctx context.Context) (Status, error)
	// Upload sends an image of exactly size bytes.
	Upload(ctx context.Context, r io.Reader, size int64) error
	Run(ctx context.Context) error
	// Log returns captured console output, empty when there's none left.
	Log(ctx context.Context) ([]byte, error)
	Reset(ctx context.Context) error
}

// ErrBusy is returned when the board refuses to start an operation.
var ErrBusy = errors.New("board is busy")

// HTTPError is a non-2xx gateway response.
type HTTPError struct {
	Op         string
	StatusCode int
	Reason     string
}

// Error implements error.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.StatusCode, e.Reason)
}
