package netport

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBinds drives the allocator with a scripted sequence of bind results.
type fakeBinds struct {
	results  []fakeBind
	attempts int
	sleeps   int
	released int
}

type fakeBind struct {
	port int
	err  error
}

func TestFindFreePortReturnsPortInRange(t *testing.T) {
	port, err := FindFreePort(1024, 65535, 10)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, port, 1024)
	assert.LessOrEqual(t, port, 65535)

	// The probing socket must be released so the port is bindable again.
	l, err := net.ListenTCP("tcp", &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port})
	require.NoError(t, err)
	l.Close()
}

func newScriptedAllocator(t *testing.T, minPort, maxPort, maxAttempts int, script []fakeBind) (*Allocator, *fakeBinds) {
	t.Helper()
	f := &fakeBinds{results: script}
	a := NewAllocator(minPort, maxPort, maxAttempts, nil)
	a.listen = func() (*net.TCPAddr, func() error, error) {
		require.Less(t, f.attempts, len(f.results), "more bind attempts than scripted")
		r := f.results[f.attempts]
		f.attempts++
		if r.err != nil {
			return nil, nil, r.err
		}
		release := func() error {
			f.released++
			return nil
		}
		return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: r.port}, release, nil
	}
	a.sleep = func(time.Duration) { f.sleeps++ }
	return a, f
}

func TestAllocateRetriesBindFailures(t *testing.T) {
	bindErr := errors.New("address already in use")
	a, f := newScriptedAllocator(t, 1024, 65535, 10, []fakeBind{
		{err: bindErr},
		{err: bindErr},
		{err: bindErr},
		{port: 8501},
	})

	port, err := a.Allocate()
	require.NoError(t, err)
	assert.Equal(t, 8501, port)
	assert.Equal(t, 4, f.attempts, "k failures then success means k+1 attempts")
	assert.Equal(t, 3, f.sleeps, "one backoff sleep per failed bind")
	assert.Equal(t, 1, f.released)
}

func TestAllocateExhaustionReturnsPortBindingError(t *testing.T) {
	bindErr := errors.New("address already in use")
	script := make([]fakeBind, 5)
	for i := range script {
		script[i] = fakeBind{err: bindErr}
	}
	a, f := newScriptedAllocator(t, 1024, 65535, 5, script)

	_, err := a.Allocate()
	var bindingErr *PortBindingError
	require.ErrorAs(t, err, &bindingErr)
	assert.Equal(t, 5, bindingErr.Attempts)
	assert.ErrorIs(t, err, bindErr)
	assert.Equal(t, 5, f.attempts)
	assert.Equal(t, 4, f.sleeps, "no sleep after the final attempt")
}

func TestAllocateSkipsOutOfRangePorts(t *testing.T) {
	a, f := newScriptedAllocator(t, 1024, 65535, 10, []fakeBind{
		{port: 80}, // below min: consumes an attempt, no sleep
		{port: 8501},
	})

	port, err := a.Allocate()
	require.NoError(t, err)
	assert.Equal(t, 8501, port)
	assert.Equal(t, 2, f.attempts)
	assert.Equal(t, 0, f.sleeps, "out-of-range assignment does not back off")
	assert.Equal(t, 2, f.released, "probing sockets are released even when out of range")
}

func TestAllocateOnlyOutOfRangeExhausts(t *testing.T) {
	script := make([]fakeBind, 3)
	for i := range script {
		script[i] = fakeBind{port: 99}
	}
	a, _ := newScriptedAllocator(t, 1024, 65535, 3, script)

	_, err := a.Allocate()
	var bindingErr *PortBindingError
	require.ErrorAs(t, err, &bindingErr)
	assert.Equal(t, 3, bindingErr.Attempts)
}

func TestNewAllocatorDefaults(t *testing.T) {
	a := NewAllocator(0, 0, 0, nil)
	assert.Equal(t, DefaultMinPort, a.minPort)
	assert.Equal(t, DefaultMaxPort, a.maxPort)
	assert.Equal(t, DefaultMaxAttempts, a.maxAttempts)
}
