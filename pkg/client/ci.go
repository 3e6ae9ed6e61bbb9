package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/testboard/pkg/wire"
)

const (
	// DefaultPollInterval between status queries while waiting.
	DefaultPollInterval = time.Second
	// DefaultTimeout for a whole test run.
	DefaultTimeout = 120 * time.Second

	maxLogReads    = 64
	logReadTimeout = 30 * time.Second
)

// ErrTimeout is returned when the test doesn't finish in time.
var ErrTimeout = errors.New("timeout waiting for completion")

// WaitForCompletion polls the status every interval until the board is
// Completed or Error, or ctx is done. report, if not nil, sees every status.
func WaitForCompletion(ctx context.Context, b Board, interval time.Duration, report func(Status)) (Status, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	var last Status
	for {
		st, err := b.Status(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return last, ErrTimeout
			}
			glog.Warningf("status: %v", err)
		} else {
			last = st
			if report != nil {
				report(st)
			}
			if st.State.Terminal() {
				return st, nil
			}
		}
		select {
		case <-ctx.Done():
			return last, ErrTimeout
		case <-ticker.C:
		}
	}
}

// ReadLog drains the captured console output.
func ReadLog(ctx context.Context, b Board) ([]byte, error) {
	var out bytes.Buffer
	for i := 0; i < maxLogReads; i++ {
		data, err := b.Log(ctx)
		if err != nil {
			return out.Bytes(), err
		}
		if len(data) == 0 {
			break
		}
		out.Write(data)
	}
	return out.Bytes(), nil
}

// CI describes one CI test run.
type CI struct {
	Image    string
	Output   string
	Timeout  time.Duration
	Interval time.Duration
	// Out receives progress lines.
	Out io.Writer
}

// CIResult is the outcome of a CI test run.
type CIResult struct {
	Final       Status
	Success     bool
	TimedOut    bool
	MarkerFound bool
	Log         []byte
	// Results are the test result records found in Log.
	Results *Results
}

func (c *CI) printf(format string, args ...interface{}) {
	if c.Out != nil {
		fmt.Fprintf(c.Out, format+"\n", args...)
	}
}

// Run performs ping, upload, run, wait, then saves the console log to
// Output. An error means the test couldn't be started. A test that ran
// but failed or timed out is reported in the result, and so is a run
// whose result records report failed tests.
func (c *CI) Run(ctx context.Context, b Board) (*CIResult, error) {
	c.printf("Checking board connectivity...")
	if err := b.Ping(ctx); err != nil {
		return nil, fmt.Errorf("cannot connect to test board: %w", err)
	}
	c.printf("Board is online")

	f, err := os.Open(c.Image)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	c.printf("Uploading %s (%d bytes)", c.Image, info.Size())
	if err := b.Upload(ctx, f, info.Size()); err != nil {
		return nil, fmt.Errorf("upload failed: %w", err)
	}
	c.printf("Upload complete")

	c.printf("Starting test execution...")
	if err := b.Run(ctx); err != nil {
		return nil, fmt.Errorf("failed to start test: %w", err)
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	final, err := WaitForCompletion(waitCtx, b, c.Interval, func(st Status) {
		c.printf("Status: %s - %s", st.State, st.Message)
	})
	cancel()
	result := &CIResult{Final: final}
	switch {
	case errors.Is(err, ErrTimeout):
		result.TimedOut = true
		c.printf("Timeout waiting for completion")
	case err != nil:
		return nil, err
	default:
		result.Success = final.State == wire.StateCompleted
	}

	logCtx, cancel := context.WithTimeout(context.Background(), logReadTimeout)
	defer cancel()
	if result.Log, err = ReadLog(logCtx, b); err != nil {
		glog.Warningf("read log: %v", err)
	}
	if err := c.saveLog(result.Log); err != nil {
		return result, err
	}
	result.MarkerFound = bytes.Contains(result.Log, wire.Sentinel[:])
	result.Results = ParseResults(result.Log)
	if res := result.Results; res.Records > 0 {
		if c.Out != nil {
			res.WriteSummary(c.Out)
		}
		if res.Failed > 0 {
			result.Success = false
		}
	}
	switch {
	case result.MarkerFound:
		c.printf("Test suite completed successfully")
	case result.Success:
		c.printf("Test completed but end marker not found")
	default:
		c.printf("Test failed or timed out")
	}
	return result, nil
}

func (c *CI) saveLog(data []byte) error {
	if c.Output == "" {
		return nil
	}
	if dir := filepath.Dir(c.Output); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	if err := os.WriteFile(c.Output, data, 0644); err != nil {
		return err
	}
	c.printf("UART log saved to: %s", c.Output)
	return nil
}
