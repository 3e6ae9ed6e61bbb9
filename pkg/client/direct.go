package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/robotalks/testboard/pkg/coordinator/bridge"
	"github.com/robotalks/testboard/pkg/wire"
)

// Direct drives the target controller over a link without a coordinator.
type Direct struct {
	Bridge    *bridge.Bridge
	ChunkSize int
}

// NewDirect creates a Direct board.
func NewDirect(b *bridge.Bridge) *Direct {
	return &Direct{Bridge: b, ChunkSize: 4096}
}

func busy(err error) error {
	var rspErr *bridge.ResponseError
	if errors.As(err, &rspErr) && rspErr.Code == wire.RspBusy {
		return fmt.Errorf("%w: %w", ErrBusy, err)
	}
	return err
}

// Ping implements Board.
func (d *Direct) Ping(ctx context.Context) error {
	return d.Bridge.Ping(ctx)
}

// Status implements Board.
func (d *Direct) Status(ctx context.Context) (Status, error) {
	st, err := d.Bridge.Status(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{State: st.State, Progress: st.Progress, Message: st.Message}, nil
}

// Upload implements Board.
func (d *Direct) Upload(ctx context.Context, r io.Reader, size int64) error {
	if size < 0 || size > math.MaxUint32 {
		return fmt.Errorf("upload: invalid size %d", size)
	}
	if err := d.Bridge.UploadStart(ctx, uint32(size)); err != nil {
		return err
	}
	chunkSize := d.ChunkSize
	if chunkSize <= 0 || chunkSize > wire.DefaultMaxPayload {
		chunkSize = 4096
	}
	chunk := make([]byte, chunkSize)
	for sent := int64(0); sent < size; {
		n := chunkSize
		if remain := size - sent; remain < int64(n) {
			n = int(remain)
		}
		if _, err := io.ReadFull(r, chunk[:n]); err != nil {
			return fmt.Errorf("upload: read image: %w", err)
		}
		if err := d.Bridge.UploadData(ctx, chunk[:n]); err != nil {
			return err
		}
		sent += int64(n)
	}
	return d.Bridge.UploadEnd(ctx)
}

// Run implements Board.
func (d *Direct) Run(ctx context.Context) error {
	return busy(d.Bridge.RunTest(ctx))
}

// Log implements Board.
func (d *Direct) Log(ctx context.Context) ([]byte, error) {
	return d.Bridge.Log(ctx)
}

// Reset implements Board.
func (d *Direct) Reset(ctx context.Context) error {
	return d.Bridge.Reset(ctx)
}
