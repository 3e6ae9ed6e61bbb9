package mqtt

import (
	"io"
	"sync"
)

// Topic conventions relative to the queue prefix.
func mosiTopic(board string) string { return board + "/spi/mosi" }
func misoTopic(board string) string { return board + "/spi/miso" }

// StatusTopic is where status events of a board are published.
func StatusTopic(board string) string { return board + "/status" }

// ReadWriter implements link.PacketReadWriter over two topics.
type ReadWriter struct {
	Queue    *Queue
	SubTopic string
	PubTopic string

	sub      *Subscription
	packetCh chan []byte
	closeCh  chan struct{}
	once     sync.Once
}

// NewReadWriter subscribes sub and publishes to pub.
func NewReadWriter(q *Queue, sub, pub string) *ReadWriter {
	p := &ReadWriter{
		Queue:    q,
		SubTopic: sub,
		PubTopic: pub,
		packetCh: make(chan []byte, 4),
		closeCh:  make(chan struct{}),
	}
	p.sub = q.Sub(sub, p.handleMsg)
	return p
}

// ForMaster uses the coordinator side topics of board.
func ForMaster(q *Queue, board string) *ReadWriter {
	return NewReadWriter(q, misoTopic(board), mosiTopic(board))
}

// ForTarget uses the target controller side topics of board.
func ForTarget(q *Queue, board string) *ReadWriter {
	return NewReadWriter(q, mosiTopic(board), misoTopic(board))
}

// ReadPacket implements link.PacketReader.
func (p *ReadWriter) ReadPacket() ([]byte, error) {
	select {
	case pkt := <-p.packetCh:
		return pkt, nil
	case <-p.closeCh:
		return nil, io.EOF
	}
}

// WritePacket implements link.PacketWriter.
func (p *ReadWriter) WritePacket(pkt []byte) error {
	return p.Queue.Pub(p.PubTopic, pkt, 1, false)
}

// Close unsubscribes. The queue stays connected.
func (p *ReadWriter) Close() (err error) {
	p.once.Do(func() {
		close(p.closeCh)
		err = p.sub.Close()
	})
	return
}

func (p *ReadWriter) handleMsg(_ string, payload []byte) {
	pkt := append([]byte(nil), payload...)
	select {
	case p.packetCh <- pkt:
	case <-p.closeCh:
	}
}
