package launcher

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ohtaman/streamlit-desktop-app/internal/logging"
)

func TestBuildArgs(t *testing.T) {
	opts := NewOptions()
	opts.Set("server.address", "localhost")
	opts.Set("server.port", "8501")
	opts.Set("theme.base", "dark")

	l := New(nil)
	args := l.BuildArgs("/apps/dashboard.py", opts)
	assert.Equal(t, []string{
		"streamlit", "run", "/apps/dashboard.py",
		"--server.address=localhost",
		"--server.port=8501",
		"--theme.base=dark",
	}, args)
}

func TestBuildArgsCustomRunner(t *testing.T) {
	l := New(nil)
	l.Runner = "/opt/venv/bin/streamlit"
	args := l.BuildArgs("app.py", nil)
	assert.Equal(t, []string{"/opt/venv/bin/streamlit", "run", "app.py"}, args)
}

func TestStopWithoutStartIsNoop(t *testing.T) {
	l := New(nil)
	require.NoError(t, l.Stop(context.Background()))
	assert.False(t, l.Running())
	assert.Equal(t, 0, l.PID())
}

// syncBuffer lets the output-streaming goroutines and the test share a
// log destination safely.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// writeFakeRunner installs a shell script that stands in for the
// streamlit executable.
func writeFakeRunner(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake runner script requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "fake-streamlit")
	script := "#!/bin/sh\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestStartAndStopChildProcess(t *testing.T) {
	out := &syncBuffer{}
	l := New(logging.NewCLI(out, nil))
	l.Runner = writeFakeRunner(t, "echo booting; sleep 30")
	l.GracePeriod = 2 * time.Second

	require.NoError(t, l.Start(context.Background(), "app.py", nil))
	assert.True(t, l.Running())
	assert.Greater(t, l.PID(), 0)

	// The child's stdout is streamed into the logger.
	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(out.String(), "booting") {
		if time.Now().After(deadline) {
			t.Fatalf("child stdout never reached the logger: %q", out.String())
		}
		time.Sleep(10 * time.Millisecond)
	}

	require.NoError(t, l.Stop(context.Background()))
	assert.False(t, l.Running())

	// Second stop is a no-op.
	require.NoError(t, l.Stop(context.Background()))
}

func TestStartFailsForMissingRunner(t *testing.T) {
	l := New(nil)
	l.Runner = filepath.Join(t.TempDir(), "does-not-exist")

	err := l.Start(context.Background(), "app.py", nil)
	var procErr *ProcessError
	require.ErrorAs(t, err, &procErr)
	assert.Equal(t, "start", procErr.Op)
	assert.False(t, l.Running())
}

func TestStartTwiceFails(t *testing.T) {
	l := New(nil)
	l.Runner = writeFakeRunner(t, "sleep 30")
	require.NoError(t, l.Start(context.Background(), "app.py", nil))
	defer l.Stop(context.Background())

	err := l.Start(context.Background(), "app.py", nil)
	var procErr *ProcessError
	require.ErrorAs(t, err, &procErr)
}

func TestStopEscalatesToKill(t *testing.T) {
	l := New(nil)
	// The child traps the termination signal and keeps running.
	l.Runner = writeFakeRunner(t, "trap '' INT TERM; sleep 30")
	l.GracePeriod = 200 * time.Millisecond

	require.NoError(t, l.Start(context.Background(), "app.py", nil))

	start := time.Now()
	require.NoError(t, l.Stop(context.Background()))
	assert.Less(t, time.Since(start), 10*time.Second, "kill escalation must not wait for the child")
}
