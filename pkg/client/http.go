package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/robotalks/testboard/pkg/coordinator/gateway"
	"github.com/robotalks/testboard/pkg/wire"
)

// HTTPClient talks to a coordinator gateway.
type HTTPClient struct {
	Endpoint string
	Client   *http.Client
}

// NewHTTPClient creates an HTTPClient for endpoint, e.g. http://192.168.1.100:8080.
func NewHTTPClient(endpoint string) *HTTPClient {
	return &HTTPClient{
		Endpoint: strings.TrimRight(endpoint, "/"),
		Client:   &http.Client{Timeout: 5 * time.Minute},
	}
}

func (c *HTTPClient) do(ctx context.Context, op, method, path string, body io.Reader, size int64) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.Endpoint+path, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.ContentLength = size
		if size == 0 {
			req.Body = http.NoBody
		}
		req.Header.Set("Content-Type", "application/octet-stream")
	}
	rsp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if rsp.StatusCode/100 != 2 {
		defer rsp.Body.Close()
		reason, _ := io.ReadAll(io.LimitReader(rsp.Body, 1024))
		herr := &HTTPError{Op: op, StatusCode: rsp.StatusCode, Reason: strings.TrimSpace(string(reason))}
		if rsp.StatusCode == http.StatusBadRequest && strings.Contains(herr.Reason, "busy") {
			return nil, fmt.Errorf("%w: %w", ErrBusy, herr)
		}
		return nil, herr
	}
	return rsp, nil
}

func (c *HTTPClient) call(ctx context.Context, op, method, path string) error {
	rsp, err := c.do(ctx, op, method, path, nil, 0)
	if err != nil {
		return err
	}
	defer rsp.Body.Close()
	var result struct {
		Success bool `json:"success"`
	}
	if err := json.NewDecoder(rsp.Body).Decode(&result); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !result.Success {
		return fmt.Errorf("%s: not successful", op)
	}
	return nil
}

// Ping checks the gateway answers /status.
func (c *HTTPClient) Ping(ctx context.Context) error {
	_, err := c.Status(ctx)
	return err
}

// Status implements Board.
func (c *HTTPClient) Status(ctx context.Context) (Status, error) {
	rsp, err := c.do(ctx, "status", http.MethodGet, "/status", nil, 0)
	if err != nil {
		return Status{}, err
	}
	defer rsp.Body.Close()
	var st gateway.StatusJSON
	if err := json.NewDecoder(rsp.Body).Decode(&st); err != nil {
		return Status{}, fmt.Errorf("status: %w", err)
	}
	state, err := wire.ParseState(st.State)
	if err != nil {
		return Status{}, fmt.Errorf("status: %w", err)
	}
	return Status{State: state, Progress: st.Progress, Message: st.Message}, nil
}

// Upload implements Board.
func (c *HTTPClient) Upload(ctx context.Context, r io.Reader, size int64) error {
	rsp, err := c.do(ctx, "upload", http.MethodPost, "/upload", io.LimitReader(r, size), size)
	if err != nil {
		return err
	}
	rsp.Body.Close()
	return nil
}

// Run implements Board.
func (c *HTTPClient) Run(ctx context.Context) error {
	return c.call(ctx, "run", http.MethodPost, "/run")
}

// Log implements Board.
func (c *HTTPClient) Log(ctx context.Context) ([]byte, error) {
	rsp, err := c.do(ctx, "uart-log", http.MethodGet, "/uart-log", nil, 0)
	if err != nil {
		return nil, err
	}
	defer rsp.Body.Close()
	return io.ReadAll(rsp.Body)
}

// Reset implements Board.
func (c *HTTPClient) Reset(ctx context.Context) error {
	return c.call(ctx, "reset", http.MethodPost, "/reset")
}
