package link

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/golang/glog"
)

// DefaultTimeout bounds one transaction.
const DefaultTimeout = 2 * time.Second

// Master implements Transactor over a PacketReadWriter.
//
// Packet transports have no transaction boundary, so every request is
// sealed with a sequence tag and a response carrying any other tag is
// dropped. A response arriving after its transaction timed out never
// answers a later request.
type Master struct {
	RW      PacketReadWriter
	Timeout time.Duration

	lock    sync.Mutex
	tag     byte
	once    sync.Once
	rxCh    chan []byte
	readErr error
}

// NewMaster creates a Master.
func NewMaster(rw PacketReadWriter) *Master {
	return &Master{RW: rw, Timeout: DefaultTimeout}
}

func (m *Master) start() {
	m.rxCh = make(chan []byte)
	go m.readLoop()
}

func (m *Master) readLoop() {
	for {
		pkt, err := m.RW.ReadPacket()
		if err != nil {
			m.readErr = err
			close(m.rxCh)
			return
		}
		m.rxCh <- pkt
	}
}

func (m *Master) closedErr() error {
	if m.readErr == nil || errors.Is(m.readErr, io.EOF) {
		return ErrClosed
	}
	return m.readErr
}

// Transact implements Transactor.
func (m *Master) Transact(ctx context.Context, tx []byte, rxCap int) ([]byte, error) {
	m.once.Do(m.start)
	m.lock.Lock()
	defer m.lock.Unlock()

	m.tag = nextTag(m.tag)
	if err := m.RW.WritePacket(seal(m.tag, tx)); err != nil {
		return nil, err
	}

	timeout := m.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case pkt, ok := <-m.rxCh:
			if !ok {
				return nil, m.closedErr()
			}
			tag, rx, err := unseal(pkt)
			if err != nil {
				glog.V(2).Infof("drop invalid response (%d bytes): %v", len(pkt), err)
				continue
			}
			if tag != m.tag {
				glog.V(2).Infof("drop stale response %d, waiting for %d", tag, m.tag)
				continue
			}
			return Fit(rx, rxCap), nil
		case <-timer.C:
			return nil, ErrTimeout
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Close closes the underlying transport if it is an io.Closer.
func (m *Master) Close() error {
	if c, ok := m.RW.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
