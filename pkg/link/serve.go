package link

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/testboard/pkg/framework"
)

// Serve runs the slave side over a packet transport until ctx is done
// or the transport fails. Each response is sealed with the tag of its
// request. rw is closed on cancellation if it is an io.Closer.
func Serve(ctx context.Context, rw PacketReadWriter, h Handler) error {
	onCancel := func() {
		if c, ok := rw.(io.Closer); ok {
			c.Close()
		}
	}
	return framework.RunWithContextCancel(ctx, onCancel, func() error {
		for {
			pkt, err := rw.ReadPacket()
			if err != nil {
				return err
			}
			tag, rx, err := unseal(pkt)
			if err != nil {
				glog.V(2).Infof("drop invalid request (%d bytes): %v", len(pkt), err)
				continue
			}
			tx := h.HandleTransaction(rx)
			if tx == nil {
				glog.V(4).Infof("no response for %d bytes", len(rx))
				continue
			}
			if err := rw.WritePacket(seal(tag, tx)); err != nil {
				return err
			}
		}
	})
}

// Pipe is an in-process Transactor calling a Handler directly.
type Pipe struct {
	Handler Handler

	lock sync.Mutex
}

// NewPipe creates a Pipe.
func NewPipe(h Handler) *Pipe {
	return &Pipe{Handler: h}
}

// Transact implements Transactor.
func (p *Pipe) Transact(ctx context.Context, tx []byte, rxCap int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.lock.Lock()
	defer p.lock.Unlock()
	return Fit(p.Handler.HandleTransaction(tx), rxCap), nil
}

// Transaction is a request handed to the slave's main loop as a
// framework.Message.
type Transaction struct {
	RX []byte

	replyCh chan []byte
}

// NewTransaction creates a Transaction.
func NewTransaction(rx []byte) *Transaction {
	return &Transaction{RX: rx, replyCh: make(chan []byte, 1)}
}

// Reply delivers the response. Only the first reply counts.
func (t *Transaction) Reply(tx []byte) {
	select {
	case t.replyCh <- tx:
	default:
	}
}

// Wait waits for the reply.
func (t *Transaction) Wait(timeout time.Duration) ([]byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case tx := <-t.replyCh:
		return tx, nil
	case <-timer.C:
		return nil, ErrTimeout
	}
}

// LoopHandler is a Handler posting every transaction into a loop,
// where a controller replies to it.
type LoopHandler struct {
	Loop    framework.LoopControl
	Timeout time.Duration
}

// HandleTransaction implements Handler.
func (h *LoopHandler) HandleTransaction(rx []byte) []byte {
	t := NewTransaction(rx)
	h.Loop.PostMessage(t)
	h.Loop.TriggerNext()
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	tx, err := t.Wait(timeout)
	if err != nil {
		glog.Warningf("transaction not handled: %v", err)
	}
	return tx
}
