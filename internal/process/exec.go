package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/zjrosen/elastixctl/internal/log"
)

// CommandFactoryFunc creates an exec.Cmd. Tests use it to substitute the
// executable without touching the runner.
type CommandFactoryFunc func(ctx context.Context, name string, args ...string) *exec.Cmd

// ExecLauncher starts real OS processes.
type ExecLauncher struct {
	commandFactory CommandFactoryFunc
}

// ExecOption configures an ExecLauncher.
type ExecOption func(*ExecLauncher)

// WithCommandFactory sets a custom command factory.
func WithCommandFactory(fn CommandFactoryFunc) ExecOption {
	return func(l *ExecLauncher) {
		l.commandFactory = fn
	}
}

// NewExecLauncher creates a launcher backed by os/exec.
func NewExecLauncher(opts ...ExecOption) *ExecLauncher {
	l := &ExecLauncher{}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start validates spec, wires a single pipe to both stdout and stderr and
// starts the process.
func (l *ExecLauncher) Start(ctx context.Context, spec Spec) (Process, error) {
	if spec.Path == "" {
		return nil, fmt.Errorf("start process: executable path is required")
	}
	name := spec.Name
	if name == "" {
		name = spec.Path
	}

	var cmd *exec.Cmd
	if l.commandFactory != nil {
		cmd = l.commandFactory(ctx, spec.Path, spec.Args...)
	} else {
		// #nosec G204 -- path comes from the located toolbox, args are built by the runner
		cmd = exec.CommandContext(ctx, spec.Path, spec.Args...)
	}
	cmd.Dir = spec.Dir
	if spec.Env != nil {
		cmd.Env = spec.Env
	}

	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("start %s: create output pipe: %w", name, err)
	}
	cmd.Stdout = w
	cmd.Stderr = w

	log.Debug(log.CatProcess, "Spawning process",
		"name", name,
		"path", spec.Path,
		"args", strings.Join(spec.Args, " "))

	if err := cmd.Start(); err != nil {
		_ = r.Close()
		_ = w.Close()
		return nil, fmt.Errorf("start %s: %w", name, err)
	}
	// The child holds its own copy of the write end; EOF arrives when it exits.
	_ = w.Close()

	log.Debug(log.CatProcess, "Process started", "name", name, "pid", cmd.Process.Pid)

	return &execProcess{
		name:   name,
		cmd:    cmd,
		out:    r,
		reader: bufio.NewReaderSize(r, 64*1024),
		status: StatusRunning,
	}, nil
}

type execProcess struct {
	name   string
	cmd    *exec.Cmd
	out    io.ReadCloser
	reader *bufio.Reader

	mu       sync.Mutex
	status   Status
	killed   bool
	waitOnce sync.Once
	code     int
	waitErr  error
}

func (p *execProcess) ReadLine() (string, error) {
	line, err := p.reader.ReadString('\n')
	if err != nil {
		if line != "" && errors.Is(err, io.EOF) {
			return strings.TrimRight(line, "\r\n"), nil
		}
		if errors.Is(err, os.ErrClosed) {
			return "", io.EOF
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (p *execProcess) Kill() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status.IsTerminal() {
		return nil
	}
	p.killed = true
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill %s: %w", p.name, err)
	}
	log.Debug(log.CatProcess, "Process killed", "name", p.name, "pid", p.cmd.Process.Pid)
	return nil
}

func (p *execProcess) Wait() (int, error) {
	p.waitOnce.Do(func() {
		err := p.cmd.Wait()
		_ = p.out.Close()

		p.mu.Lock()
		defer p.mu.Unlock()

		var exitErr *exec.ExitError
		switch {
		case err == nil:
			p.code = 0
			p.status = StatusCompleted
		case errors.As(err, &exitErr):
			p.code = exitErr.ExitCode()
			p.status = StatusFailed
		default:
			p.code = -1
			p.status = StatusFailed
			p.waitErr = fmt.Errorf("wait %s: %w", p.name, err)
		}
		if p.killed {
			p.code = -1
			p.status = StatusKilled
			p.waitErr = nil
		}
		log.Debug(log.CatProcess, "Process exited",
			"name", p.name, "code", p.code, "status", p.status.String())
	})
	return p.code, p.waitErr
}

func (p *execProcess) PID() int {
	if p.cmd.Process == nil {
		return -1
	}
	return p.cmd.Process.Pid
}

func (p *execProcess) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}
