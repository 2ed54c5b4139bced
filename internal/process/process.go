// Package process launches the toolbox executables and streams their merged
// output line by line.
package process

import "context"

// Spec describes one tool invocation.
type Spec struct {
	// Name labels the process in logs, e.g. "elastix".
	Name string
	Path string
	Args []string
	// Env is the complete environment. Nil inherits the current process env.
	Env []string
	Dir string
}

// Process is a started tool process.
type Process interface {
	// ReadLine returns the next output line without its line terminator.
	// Stdout and stderr are merged. It returns io.EOF once both are closed.
	ReadLine() (string, error)

	// Kill terminates the process. Killing an exited process is a no-op.
	Kill() error

	// Wait blocks until the process exits and returns its exit code.
	// A killed process reports -1.
	Wait() (int, error)

	// PID returns the OS process id, or -1.
	PID() int

	// Status returns the current lifecycle status.
	Status() Status
}

// Launcher starts processes.
type Launcher interface {
	Start(ctx context.Context, spec Spec) (Process, error)
}
