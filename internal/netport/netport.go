// Package netport discovers free TCP ports on the loopback interface.
package netport

import (
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/ohtaman/streamlit-desktop-app/internal/logging"
)

const (
	// DefaultMinPort avoids the privileged range.
	DefaultMinPort = 1024
	// DefaultMaxPort is the top of the valid TCP port space.
	DefaultMaxPort = 65535
	// DefaultMaxAttempts bounds how many times the allocator asks the OS
	// for an ephemeral port before giving up.
	DefaultMaxAttempts = 10

	retryBackoff = 100 * time.Millisecond
)

// PortBindingError reports that the allocator exhausted its attempts
// without obtaining a usable port.
type PortBindingError struct {
	Attempts int
	LastErr  error
}

func (e *PortBindingError) Error() string {
	if e.LastErr != nil {
		return fmt.Sprintf("failed to find an available port after %d attempts: %v", e.Attempts, e.LastErr)
	}
	return fmt.Sprintf("failed to find an available port in range after %d attempts", e.Attempts)
}

func (e *PortBindingError) Unwrap() error { return e.LastErr }

// Allocator finds free loopback ports. The zero value is not usable;
// construct with NewAllocator.
type Allocator struct {
	minPort     int
	maxPort     int
	maxAttempts int
	logger      *slog.Logger

	// listen and sleep are swapped out in tests.
	listen func() (addr *net.TCPAddr, release func() error, err error)
	sleep  func(time.Duration)
}

// NewAllocator creates an Allocator for the given port range. Zero or
// negative arguments fall back to the package defaults.
func NewAllocator(minPort, maxPort, maxAttempts int, logger *slog.Logger) *Allocator {
	if minPort <= 0 {
		minPort = DefaultMinPort
	}
	if maxPort <= 0 {
		maxPort = DefaultMaxPort
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Allocator{
		minPort:     minPort,
		maxPort:     maxPort,
		maxAttempts: maxAttempts,
		logger:      logging.Ensure(logger),
		listen:      listenEphemeral,
		sleep:       time.Sleep,
	}
}

// listenEphemeral binds an ephemeral TCP port on loopback only. Binding a
// wildcard address here would expose the eventual server beyond localhost.
func listenEphemeral() (*net.TCPAddr, func() error, error) {
	l, err := net.ListenTCP("tcp", &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		return nil, nil, err
	}
	return l.Addr().(*net.TCPAddr), l.Close, nil
}

// Allocate asks the OS for an ephemeral loopback port until one falls
// inside the configured range. The probing socket is released before the
// port number is returned so the real server can bind it.
func (a *Allocator) Allocate() (int, error) {
	var lastErr error
	for attempt := 0; attempt < a.maxAttempts; attempt++ {
		addr, release, err := a.listen()
		if err != nil {
			lastErr = err
			a.logger.Debug("port bind attempt failed", "attempt", attempt+1, "error", err)
			if attempt < a.maxAttempts-1 {
				a.sleep(retryBackoff)
			}
			continue
		}
		port := addr.Port
		if cerr := release(); cerr != nil {
			a.logger.Warn("failed to release probing socket", "port", port, "error", cerr)
		}
		if port >= a.minPort && port <= a.maxPort {
			a.logger.Debug("allocated free port", "port", port, "attempt", attempt+1)
			return port, nil
		}
		// Out-of-range assignment is non-fatal; it just consumes an attempt.
		a.logger.Debug("OS-assigned port outside allowed range", "port", port, "min", a.minPort, "max", a.maxPort)
	}
	return 0, &PortBindingError{Attempts: a.maxAttempts, LastErr: lastErr}
}

// FindFreePort returns an unused TCP port on loopback within
// [minPort, maxPort], retrying transient bind failures up to maxAttempts
// times.
func FindFreePort(minPort, maxPort, maxAttempts int) (int, error) {
	return NewAllocator(minPort, maxPort, maxAttempts, nil).Allocate()
}
