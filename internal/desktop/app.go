// Package desktop turns a Streamlit script into a desktop application.
//
// StartDesktopApp allocates a loopback port, launches the script with
// `streamlit run` as a child process, waits until the server answers
// HTTP, and shows its UI in a native window. The child process never
// outlives the call: it is terminated and reaped on every exit path,
// including readiness timeouts and window failures.
package desktop

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ohtaman/streamlit-desktop-app/internal/launcher"
	"github.com/ohtaman/streamlit-desktop-app/internal/logging"
	"github.com/ohtaman/streamlit-desktop-app/internal/netport"
	"github.com/ohtaman/streamlit-desktop-app/internal/probe"
)

// Window defaults.
const (
	DefaultTitle  = "Streamlit Desktop App"
	DefaultWidth  = 1024
	DefaultHeight = 768
)

// scriptExtension is the only file type the runner accepts.
const scriptExtension = ".py"

// portAllocator, serverLauncher and readinessProber are the seams the
// orchestrator depends on; production wiring uses the real packages and
// tests substitute fakes.
type portAllocator interface {
	Allocate() (int, error)
}

type serverLauncher interface {
	Start(ctx context.Context, script string, opts *launcher.Options) error
	Stop(ctx context.Context) error
}

type readinessProber interface {
	Wait(ctx context.Context, port int) error
}

// Presenter renders a URL in a native window and blocks until the user
// closes it.
type Presenter interface {
	Present(title, url string, width, height int) error
}

// App holds the resolved configuration for one desktop session.
type App struct {
	title   string
	width   int
	height  int
	runner  string
	options *launcher.Options
	logger  *slog.Logger

	allocator portAllocator
	launcher  serverLauncher
	prober    readinessProber
	presenter Presenter
}

// Option customizes an App.
type Option func(*App)

// WithTitle sets the window title.
func WithTitle(title string) Option {
	return func(a *App) { a.title = title }
}

// WithSize sets the window dimensions in pixels.
func WithSize(width, height int) Option {
	return func(a *App) { a.width, a.height = width, height }
}

// WithOptions supplies additional Streamlit configuration entries.
// Reserved keys are overridden by the application and dropped with a
// warning.
func WithOptions(opts *launcher.Options) Option {
	return func(a *App) { a.options = opts }
}

// WithRunner overrides the streamlit executable used to run the script.
func WithRunner(runner string) Option {
	return func(a *App) { a.runner = runner }
}

// WithLogger sets the logger used by the orchestrator and its components.
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) { a.logger = logger }
}

// WithAllocator replaces the port allocator.
func WithAllocator(alloc portAllocator) Option {
	return func(a *App) { a.allocator = alloc }
}

// WithLauncher replaces the server launcher.
func WithLauncher(l serverLauncher) Option {
	return func(a *App) { a.launcher = l }
}

// WithProber replaces the readiness prober.
func WithProber(p readinessProber) Option {
	return func(a *App) { a.prober = p }
}

// WithPresenter replaces the native window presenter.
func WithPresenter(p Presenter) Option {
	return func(a *App) { a.presenter = p }
}

// New resolves options into an App. Components left unset are wired to
// their production implementations.
func New(opts ...Option) *App {
	a := &App{
		title:  DefaultTitle,
		width:  DefaultWidth,
		height: DefaultHeight,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = logging.Ensure(a.logger)
	if a.allocator == nil {
		a.allocator = netport.NewAllocator(0, 0, 0, a.logger)
	}
	if a.launcher == nil {
		l := launcher.New(a.logger)
		if a.runner != "" {
			l.Runner = a.runner
		}
		a.launcher = l
	}
	if a.prober == nil {
		a.prober = probe.New(a.logger)
	}
	if a.presenter == nil {
		a.presenter = newWebviewPresenter()
	}
	return a
}

// StartDesktopApp runs script as a desktop application and returns after
// the user closes the window and the server process has been reaped.
func StartDesktopApp(ctx context.Context, script string, opts ...Option) error {
	return New(opts...).Run(ctx, script)
}

// Run executes the startup sequence: validate, merge configuration,
// allocate a port, launch the server, wait for readiness, present the
// window. Whatever happens after the launch, the child is terminated and
// joined before Run returns.
func (a *App) Run(ctx context.Context, script string) (err error) {
	script, verr := a.validate(script)
	if verr != nil {
		return wrapStage(StageValidation, verr)
	}

	// Warn about ignored caller entries before touching any resource.
	for _, key := range launcher.ReservedKeys() {
		if a.options != nil && a.options.Has(key) {
			a.logger.Warn("option is overridden by the application and will be ignored", "key", key)
		}
	}

	port, aerr := a.allocator.Allocate()
	if aerr != nil {
		// Nothing has been started yet; no cleanup needed.
		return wrapStage(StagePortBind, aerr)
	}
	a.logger.Info("allocated server port", "port", port)

	merged, _ := launcher.Merge(a.options, port)
	if serr := a.launcher.Start(ctx, script, merged); serr != nil {
		return wrapStage(StageLaunch, serr)
	}

	// From here on the child must be torn down on every path.
	defer func() {
		if stopErr := a.launcher.Stop(context.Background()); stopErr != nil {
			a.logger.Error("failed to stop server process", "error", stopErr)
			if err == nil {
				err = wrapStage(StageShutdown, stopErr)
			}
		}
	}()

	if werr := a.prober.Wait(ctx, port); werr != nil {
		return wrapStage(StageReadiness, werr)
	}

	url := fmt.Sprintf("http://localhost:%d", port)
	a.logger.Info("opening window", "title", a.title, "url", url, "width", a.width, "height", a.height)
	if perr := a.presenter.Present(a.title, url, a.width, a.height); perr != nil {
		return wrapStage(StageWindow, perr)
	}
	return nil
}

// validate checks all caller input up front, before any resource is
// acquired. It returns the resolved absolute script path.
func (a *App) validate(script string) (string, error) {
	if strings.TrimSpace(script) == "" {
		return "", &ValidationError{Field: "script path", Reason: "must not be empty"}
	}
	abs, err := filepath.Abs(script)
	if err != nil {
		return "", &ValidationError{Field: "script path", Reason: err.Error()}
	}
	info, err := os.Stat(abs)
	if err != nil || !info.Mode().IsRegular() {
		return "", &ValidationError{Field: "script path", Reason: fmt.Sprintf("%q is not an existing file", script)}
	}
	if !strings.EqualFold(filepath.Ext(abs), scriptExtension) {
		return "", &ValidationError{Field: "script path", Reason: fmt.Sprintf("%q is not a %s script", script, scriptExtension)}
	}
	if strings.TrimSpace(a.title) == "" {
		return "", &ValidationError{Field: "window title", Reason: "must not be empty"}
	}
	if a.width <= 0 {
		return "", &ValidationError{Field: "window width", Reason: "must be a positive integer"}
	}
	if a.height <= 0 {
		return "", &ValidationError{Field: "window height", Reason: "must be a positive integer"}
	}
	return abs, nil
}
