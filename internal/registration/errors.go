package registration

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyRunning is returned when Run is called while a run is active.
	ErrAlreadyRunning = errors.New("registration is already running")
	// ErrMissingInput is returned when the fixed or moving volume is not set.
	ErrMissingInput = errors.New("fixed and moving volumes are required")
	// ErrNoParameterFiles is returned for a request without parameter files.
	ErrNoParameterFiles = errors.New("at least one parameter file is required")
)

// ProcessError reports a tool that exited non-zero without a cancel request.
type ProcessError struct {
	Tool     string
	ExitCode int
	// Output is the merged output collected while the tool ran.
	Output string
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("%s exited with code %d", e.Tool, e.ExitCode)
}

// OutputLoadError reports a result artifact that could not be loaded.
type OutputLoadError struct {
	Path string
	Err  error
}

func (e *OutputLoadError) Error() string {
	return fmt.Sprintf("failed to load output from %s: %v", e.Path, e.Err)
}

func (e *OutputLoadError) Unwrap() error { return e.Err }
