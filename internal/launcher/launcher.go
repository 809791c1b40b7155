// Package launcher starts and stops the Streamlit server child process.
//
// The child is an isolated OS process connected to the parent only by the
// loopback socket on the negotiated port. The launcher owns the process
// handle from Start until Stop returns; no other component signals or
// reaps it.
package launcher

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ohtaman/streamlit-desktop-app/internal/logging"
)

// DefaultRunner is the executable used to run the hosted script.
const DefaultRunner = "streamlit"

// DefaultGracePeriod is how long Stop waits after the termination signal
// before escalating to a forceful kill.
const DefaultGracePeriod = 10 * time.Second

// runIDEnv carries the launch identity into the child environment.
const runIDEnv = "STREAMLIT_DESKTOP_RUN_ID"

// ProcessError reports a failure to start, signal, or reap the child
// process.
type ProcessError struct {
	Op  string
	Err error
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("process %s: %v", e.Op, e.Err)
}

func (e *ProcessError) Unwrap() error { return e.Err }

// Launcher runs one Streamlit script as a child process.
type Launcher struct {
	// Runner is the streamlit executable. Empty means DefaultRunner.
	Runner string
	// GracePeriod bounds the wait between SIGTERM and SIGKILL in Stop.
	GracePeriod time.Duration

	logger *slog.Logger

	mu      sync.Mutex
	cmd     *exec.Cmd
	stopped bool
	waitCh  chan error
}

// New creates a Launcher.
func New(logger *slog.Logger) *Launcher {
	return &Launcher{
		Runner:      DefaultRunner,
		GracePeriod: DefaultGracePeriod,
		logger:      logging.Ensure(logger),
	}
}

// BuildArgs constructs the child argument vector for a script and its
// configuration set: [runner, "run", script, "--key=value", ...] with the
// flags in set order.
func (l *Launcher) BuildArgs(script string, opts *Options) []string {
	runner := l.Runner
	if runner == "" {
		runner = DefaultRunner
	}
	args := []string{runner, "run", script}
	if opts != nil {
		args = append(args, opts.Args()...)
	}
	return args
}

// Start launches the child process. The child's stdout and stderr are
// streamed line-wise into the logger. Start does not wait for the server
// to become reachable; that is the prober's job.
func (l *Launcher) Start(ctx context.Context, script string, opts *Options) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cmd != nil {
		return &ProcessError{Op: "start", Err: fmt.Errorf("a child process is already running")}
	}

	argv := l.BuildArgs(script, opts)
	runID := uuid.NewString()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Env = append(os.Environ(), fmt.Sprintf("%s=%s", runIDEnv, runID))

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &ProcessError{Op: "start", Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdout.Close()
		return &ProcessError{Op: "start", Err: err}
	}

	if err := cmd.Start(); err != nil {
		stdout.Close()
		stderr.Close()
		return &ProcessError{Op: "start", Err: err}
	}

	l.cmd = cmd
	l.stopped = false
	l.logger.Info("server process started", "pid", cmd.Process.Pid, "run_id", runID, "command", cmd.String())

	go l.streamOutput(stdout, "stdout", slog.LevelInfo)
	go l.streamOutput(stderr, "stderr", slog.LevelWarn)

	// Wait closes the pipes once the child exits, which also unblocks the
	// streaming goroutines even if a grandchild inherited the descriptors.
	waitCh := make(chan error, 1)
	l.waitCh = waitCh
	go func() {
		waitCh <- cmd.Wait()
	}()
	return nil
}

func (l *Launcher) streamOutput(pipe io.ReadCloser, source string, level slog.Level) {
	scanner := bufio.NewScanner(pipe)
	for scanner.Scan() {
		l.logger.Log(context.Background(), level, "server output", "source", source, "line", scanner.Text())
	}
}

// PID returns the child process ID, or 0 if no child is running.
func (l *Launcher) PID() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cmd == nil || l.cmd.Process == nil {
		return 0
	}
	return l.cmd.Process.Pid
}

// Running reports whether a child has been started and not yet reaped.
func (l *Launcher) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cmd != nil && !l.stopped
}

// Stop terminates the child and blocks until it has been reaped. The
// termination signal is sent first; if the child ignores it past the
// grace period it is killed. Stop is idempotent: the terminate-and-join
// sequence runs at most once per started child.
func (l *Launcher) Stop(ctx context.Context) error {
	l.mu.Lock()
	cmd := l.cmd
	waitCh := l.waitCh
	alreadyStopped := l.stopped
	l.stopped = true
	l.mu.Unlock()

	if cmd == nil || cmd.Process == nil || alreadyStopped {
		return nil
	}

	pid := cmd.Process.Pid
	l.logger.Info("stopping server process", "pid", pid)
	if err := cmd.Process.Signal(os.Interrupt); err != nil {
		// The child may have exited on its own already; reaping below
		// settles it either way.
		l.logger.Debug("termination signal not delivered", "pid", pid, "error", err)
	}

	grace := l.GracePeriod
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case err := <-waitCh:
		l.logExit(pid, err)
		return nil
	case <-timer.C:
		l.logger.Warn("server process ignored termination signal, killing", "pid", pid)
		if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return &ProcessError{Op: "kill", Err: err}
		}
		l.logExit(pid, <-waitCh)
		return nil
	case <-ctx.Done():
		cmd.Process.Kill()
		return &ProcessError{Op: "stop", Err: ctx.Err()}
	}
}

func (l *Launcher) logExit(pid int, err error) {
	if err != nil {
		l.logger.Info("server process exited", "pid", pid, "result", err.Error())
		return
	}
	l.logger.Info("server process exited", "pid", pid)
}
