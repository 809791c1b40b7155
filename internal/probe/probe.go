// Package probe polls a local HTTP server until it accepts connections.
//
// Reachability is the only readiness signal: any HTTP response, whatever
// its status code, means the server is up. Connection-refused is the
// expected transient state while the server boots and is retried until a
// deadline; every other transport error is treated as non-transient and
// surfaced immediately.
package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"syscall"
	"time"

	"github.com/ohtaman/streamlit-desktop-app/internal/logging"
)

const (
	// DefaultTimeout is the overall readiness deadline.
	DefaultTimeout = 10 * time.Second
	// DefaultRetryInterval is the pause between polls while the server
	// is still refusing connections.
	DefaultRetryInterval = 100 * time.Millisecond
)

// TimeoutError reports that the server kept refusing connections until
// the readiness deadline passed.
type TimeoutError struct {
	Port    int
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("server on port %d did not start within %s", e.Port, e.Timeout)
}

// NetworkError reports a non-transient request failure, or an exhausted
// retry budget when one is configured.
type NetworkError struct {
	Port int
	Err  error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error while waiting for server on port %d: %v", e.Port, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// doer is the slice of http.Client used by the prober.
type doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Prober waits for a loopback HTTP server to become reachable.
type Prober struct {
	Timeout       time.Duration
	RetryInterval time.Duration
	// MaxRetries bounds the number of connection-refused retries.
	// Zero means retries are limited only by Timeout.
	MaxRetries int

	client doer
	sleep  func(time.Duration)
	now    func() time.Time
	logger *slog.Logger
}

// New creates a Prober with the package defaults.
func New(logger *slog.Logger) *Prober {
	return &Prober{
		Timeout:       DefaultTimeout,
		RetryInterval: DefaultRetryInterval,
		client:        &http.Client{},
		sleep:         time.Sleep,
		now:           time.Now,
		logger:        logging.Ensure(logger),
	}
}

// Wait polls http://localhost:<port>/ until the server answers. It
// returns a *TimeoutError if only connection-refused errors were seen
// until the deadline, a *NetworkError for any other request failure or
// an exhausted retry budget, and ctx.Err() on cancellation.
func (p *Prober) Wait(ctx context.Context, port int) error {
	url := fmt.Sprintf("http://localhost:%d/", port)
	deadline := p.now().Add(p.Timeout)
	retries := 0

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return &NetworkError{Port: port, Err: err}
		}
		resp, err := p.client.Do(req)
		if err == nil {
			// Any status code counts as ready; the payload is irrelevant.
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			p.logger.Debug("server is ready", "port", port, "status", resp.StatusCode, "retries", retries)
			return nil
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !errors.Is(err, syscall.ECONNREFUSED) {
			return &NetworkError{Port: port, Err: err}
		}
		if p.now().After(deadline) {
			return &TimeoutError{Port: port, Timeout: p.Timeout}
		}
		retries++
		if p.MaxRetries > 0 && retries > p.MaxRetries {
			return &NetworkError{Port: port, Err: fmt.Errorf("gave up after %d connection attempts", retries)}
		}
		p.sleep(p.RetryInterval)
	}
}
