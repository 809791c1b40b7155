package desktop

import "fmt"

// ValidationError reports bad caller input. It is always raised before
// any resource is acquired.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Stage names the orchestration phase in which a failure occurred.
type Stage string

const (
	StageValidation Stage = "validation"
	StagePortBind   Stage = "port binding"
	StageLaunch     Stage = "server launch"
	StageReadiness  Stage = "server startup"
	StageWindow     Stage = "window"
	StageShutdown   Stage = "shutdown"
)

// AppError wraps a stage-local failure with orchestration context. Every
// error escaping StartDesktopApp is an *AppError; the underlying cause
// remains reachable through errors.As / errors.Is.
type AppError struct {
	Stage Stage
	Err   error
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s error: %v", e.Stage, e.Err)
}

func (e *AppError) Unwrap() error { return e.Err }

func wrapStage(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	return &AppError{Stage: stage, Err: err}
}
