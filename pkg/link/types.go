// Package link carries protocol transactions between the coordinator
// (master) and the target controller (slave).
//
// A transaction is one request buffer from the master answered by one
// response buffer from the slave, the way a chip-select cycle works on
// SPI. Transports only move opaque packets; framing and meaning belong
// to package wire.
package link

import (
	"context"
	"errors"
)

// PacketReader reads packets in bytes.
type PacketReader interface {
	ReadPacket() ([]byte, error)
}

// PacketWriter writes packets in bytes.
type PacketWriter interface {
	WritePacket([]byte) error
}

// PacketReadWriter reads/writes packets in bytes.
type PacketReadWriter interface {
	PacketReader
	PacketWriter
}

// Transactor is the master side of a link.
type Transactor interface {
	// Transact sends tx and returns exactly rxCap response bytes, zero
	// padded or truncated like a fixed-size SPI receive buffer.
	Transact(ctx context.Context, tx []byte, rxCap int) ([]byte, error)
}

// Handler is the slave side of a link. A nil response means nothing
// is sent back.
type Handler interface {
	HandleTransaction(rx []byte) []byte
}

// HandlerFunc is func type of Handler.
type HandlerFunc func(rx []byte) []byte

// HandleTransaction implements Handler.
func (f HandlerFunc) HandleTransaction(rx []byte) []byte {
	return f(rx)
}

var (
	// ErrTimeout indicates no response within the transaction timeout.
	ErrTimeout = errors.New("transaction timed out")
	// ErrClosed indicates the link is closed.
	ErrClosed = errors.New("link closed")
)

// Fit returns rx resized to exactly n bytes.
func Fit(rx []byte, n int) []byte {
	out := make([]byte, n)
	copy(out, rx)
	return out
}
