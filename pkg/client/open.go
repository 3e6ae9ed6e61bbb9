package client

import (
	"context"
	"io"
	"net/url"
	"time"

	"github.com/robotalks/testboard/pkg/coordinator/bridge"
	"github.com/robotalks/testboard/pkg/link/endpoint"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open connects to a board. http:// and https:// URLs go through a
// coordinator gateway; link URLs (serial://, tcp://, mqtt://, ws://)
// talk to the target controller directly.
func Open(ctx context.Context, rawURL string, timeout time.Duration) (Board, io.Closer, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, nil, err
	}
	switch u.Scheme {
	case "http", "https":
		return NewHTTPClient(rawURL), nopCloser{}, nil
	}
	conn, err := endpoint.Dial(ctx, rawURL, timeout)
	if err != nil {
		return nil, nil, err
	}
	return NewDirect(bridge.New(conn)), conn, nil
}
