// Package stream carries wire frames over byte streams such as a
// USB-UART bridge or a TCP connection.
package stream

import (
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/testboard/pkg/wire"
)

// DefaultTimeout discards a partial frame after this much silence.
const DefaultTimeout = 100 * time.Millisecond

type readDeadliner interface {
	SetReadDeadline(time.Time) error
}

// ReadWriter implements link.PacketReadWriter. Every packet is one
// complete wire frame; the frame header delimits packets on the stream.
type ReadWriter struct {
	RW io.ReadWriter
	// Timeout is the inter-byte timeout. If RW already times out reads
	// (a serial port returning 0 bytes), set ReadTimeout.
	Timeout     time.Duration
	ReadTimeout bool

	parser  wire.Parser
	buf     []byte
	pending []byte
	wlock   sync.Mutex
}

// New wraps rw.
func New(rw io.ReadWriter) *ReadWriter {
	return &ReadWriter{
		RW:      rw,
		Timeout: DefaultTimeout,
		parser:  wire.Parser{MaxPayload: wire.DefaultMaxFrame},
		buf:     make([]byte, 512),
	}
}

// WithMaxPayload limits the frames accepted by ReadPacket.
func (s *ReadWriter) WithMaxPayload(max int) *ReadWriter {
	s.parser.MaxPayload = max
	return s
}

// ReadPacket implements link.PacketReader. It is not safe for
// concurrent use.
func (s *ReadWriter) ReadPacket() ([]byte, error) {
	if s.buf == nil {
		s.buf = make([]byte, 512)
	}
	for {
		for len(s.pending) > 0 {
			b := s.pending[0]
			s.pending = s.pending[1:]
			pr := s.parser.Parse(b)
			if pr.Err != nil {
				glog.V(2).Infof("frame dropped: %v", pr.Err)
			}
			if pr.Frame != nil {
				return pr.Frame.Bytes(), nil
			}
		}
		n, err := s.read()
		if err != nil {
			if isTimeout(err) {
				s.timeout()
				continue
			}
			return nil, err
		}
		if n == 0 {
			s.timeout()
			continue
		}
		s.pending = s.buf[:n]
	}
}

func (s *ReadWriter) read() (int, error) {
	if d, ok := s.RW.(readDeadliner); ok && !s.ReadTimeout {
		var deadline time.Time
		if s.parser.Receiving() {
			deadline = time.Now().Add(s.timeoutValue())
		}
		d.SetReadDeadline(deadline)
	}
	return s.RW.Read(s.buf)
}

func (s *ReadWriter) timeoutValue() time.Duration {
	if s.Timeout <= 0 {
		return DefaultTimeout
	}
	return s.Timeout
}

func (s *ReadWriter) timeout() {
	if pr := s.parser.Timeout(); pr.Err != nil {
		glog.V(2).Infof("frame dropped: %v", pr.Err)
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

// WritePacket implements link.PacketWriter.
func (s *ReadWriter) WritePacket(pkt []byte) error {
	s.wlock.Lock()
	defer s.wlock.Unlock()
	_, err := s.RW.Write(pkt)
	return err
}

// Close implements io.Closer.
func (s *ReadWriter) Close() error {
	if c, ok := s.RW.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
