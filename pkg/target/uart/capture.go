// Package uart captures the DUT console.
package uart

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/golang/glog"
	"go.bug.st/serial"

	"github.com/robotalks/testboard/pkg/framework"
)

// Receiver consumes console bytes one at a time.
type Receiver interface {
	ReceiveUART(b byte)
}

// Capture reads a console and feeds every byte to a Receiver.
type Capture struct {
	Source   io.Reader
	Receiver Receiver
	// Tee receives a copy of the raw console, e.g. a log file.
	Tee io.Writer
}

// Name implements framework.Named.
func (c *Capture) Name() string {
	return "uart"
}

// Run implements framework.Runnable.
func (c *Capture) Run(ctx context.Context) error {
	onCancel := func() {
		if closer, ok := c.Source.(io.Closer); ok {
			closer.Close()
		}
	}
	return framework.RunWithContextCancel(ctx, onCancel, func() error {
		buf := make([]byte, 256)
		for {
			n, err := c.Source.Read(buf)
			for _, b := range buf[:n] {
				c.Receiver.ReceiveUART(b)
			}
			if n > 0 && c.Tee != nil {
				if _, werr := c.Tee.Write(buf[:n]); werr != nil {
					glog.Warningf("uart tee: %v", werr)
					c.Tee = nil
				}
			}
			if err != nil {
				if errors.Is(err, io.EOF) {
					return nil
				}
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
	})
}

// OpenPort opens the DUT console port.
func OpenPort(path string, baud int) (serial.Port, error) {
	port, err := serial.Open(path, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, err
	}
	// a bounded read lets Run observe cancellation
	if err := port.SetReadTimeout(200 * time.Millisecond); err != nil {
		port.Close()
		return nil, err
	}
	return port, nil
}
