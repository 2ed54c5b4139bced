package testutil

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/zjrosen/elastixctl/internal/metaimage"
	"github.com/zjrosen/elastixctl/internal/process"
)

// Script describes how a fake tool behaves.
type Script struct {
	// Lines are emitted in order before the process exits.
	Lines    []string
	ExitCode int
	// OnStart runs when the tool starts; use it to write result files.
	OnStart func(spec process.Spec) error
	// OnLine runs after line i was read by the caller.
	OnLine func(i int)
}

// FakeLauncher starts scripted in-memory processes keyed by Spec.Name.
type FakeLauncher struct {
	mu       sync.Mutex
	scripts  map[string]Script
	calls    []process.Spec
	startErr error
}

// NewFakeLauncher creates a launcher with no scripts; unscripted tools exit 0
// without output.
func NewFakeLauncher() *FakeLauncher {
	return &FakeLauncher{scripts: map[string]Script{}}
}

// Script sets the behavior of the named tool.
func (f *FakeLauncher) Script(name string, s Script) *FakeLauncher {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[name] = s
	return f
}

// FailStart makes every Start fail with err.
func (f *FakeLauncher) FailStart(err error) *FakeLauncher {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startErr = err
	return f
}

// Start records spec and returns the scripted process.
func (f *FakeLauncher) Start(_ context.Context, spec process.Spec) (process.Process, error) {
	f.mu.Lock()
	f.calls = append(f.calls, spec)
	script := f.scripts[spec.Name]
	startErr := f.startErr
	f.mu.Unlock()

	if startErr != nil {
		return nil, startErr
	}
	if script.OnStart != nil {
		if err := script.OnStart(spec); err != nil {
			return nil, fmt.Errorf("fake %s: %w", spec.Name, err)
		}
	}
	return &fakeProcess{script: script}, nil
}

// Calls returns every spec started, in order.
func (f *FakeLauncher) Calls() []process.Spec {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// Count returns how many times the named tool was started.
func (f *FakeLauncher) Count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Name == name {
			n++
		}
	}
	return n
}

// Last returns the last spec started for the named tool.
func (f *FakeLauncher) Last(name string) (process.Spec, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].Name == name {
			return f.calls[i], true
		}
	}
	return process.Spec{}, false
}

type fakeProcess struct {
	mu     sync.Mutex
	script Script
	next   int
	killed bool
	done   bool
}

func (p *fakeProcess) ReadLine() (string, error) {
	p.mu.Lock()
	if p.killed || p.next >= len(p.script.Lines) {
		p.mu.Unlock()
		return "", io.EOF
	}
	i := p.next
	line := p.script.Lines[i]
	p.next++
	onLine := p.script.OnLine
	p.mu.Unlock()
	if onLine != nil {
		onLine(i)
	}
	return line, nil
}

func (p *fakeProcess) Kill() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.done {
		p.killed = true
	}
	return nil
}

func (p *fakeProcess) Wait() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done = true
	if p.killed {
		return -1, nil
	}
	return p.script.ExitCode, nil
}

func (p *fakeProcess) PID() int { return 4242 }

func (p *fakeProcess) Status() process.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.killed:
		return process.StatusKilled
	case !p.done:
		return process.StatusRunning
	case p.script.ExitCode == 0:
		return process.StatusCompleted
	default:
		return process.StatusFailed
	}
}

// ArgValue returns the value following flag in args, or "".
func ArgValue(args []string, flag string) string {
	for i := 0; i+1 < len(args); i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

// ArgValues returns every value following flag in args.
func ArgValues(args []string, flag string) []string {
	var out []string
	for i := 0; i+1 < len(args); i++ {
		if args[i] == flag {
			out = append(out, args[i+1])
		}
	}
	return out
}

// HasFlag reports whether flag appears in args.
func HasFlag(args []string, flag string) bool {
	return slices.Contains(args, flag)
}

// ElastixOutputs returns an OnStart hook writing what elastix writes: one
// TransformParameters.<i>.txt per -p flag, plus the composite HDF5 form of
// the last one when linear is set.
func ElastixOutputs(linear bool) func(process.Spec) error {
	return func(spec process.Spec) error {
		out := ArgValue(spec.Args, "-out")
		n := len(ArgValues(spec.Args, "-p"))
		for i := 0; i < n; i++ {
			name := filepath.Join(out, fmt.Sprintf("TransformParameters.%d.txt", i))
			if err := os.WriteFile(name, []byte(`(Transform "EulerTransform")`+"\n"), 0644); err != nil {
				return err
			}
		}
		if linear && n > 0 {
			h5 := filepath.Join(out, fmt.Sprintf("TransformParameters.%d-Composite.h5", n-1))
			data := append([]byte{0x89, 'H', 'D', 'F', '\r', '\n', 0x1a, '\n'}, []byte("composite")...)
			return os.WriteFile(h5, data, 0644)
		}
		return nil
	}
}

// TransformixOutputs returns an OnStart hook writing result.mhd for -in and
// deformationField.mhd for -def.
func TransformixOutputs() func(process.Spec) error {
	return func(spec process.Spec) error {
		out := ArgValue(spec.Args, "-out")
		if HasFlag(spec.Args, "-in") {
			if err := metaimage.Write(filepath.Join(out, "result.mhd"), TestVolume()); err != nil {
				return err
			}
		}
		if HasFlag(spec.Args, "-def") {
			field := TestVolume()
			field.ElementType = "MET_FLOAT"
			field.Channels = 3
			field.Data = make([]byte, field.DataSize())
			if err := metaimage.Write(filepath.Join(out, "deformationField.mhd"), field); err != nil {
				return err
			}
		}
		return nil
	}
}

// TestVolume returns a tiny 2x2x2 unsigned char volume.
func TestVolume() *metaimage.Image {
	return &metaimage.Image{
		DimSize:     []int{2, 2, 2},
		ElementType: "MET_UCHAR",
		Channels:    1,
		Spacing:     []float64{1, 1, 1},
		Origin:      []float64{0, 0, 0},
		Direction:   []float64{1, 0, 0, 0, 1, 0, 0, 0, 1},
		Data:        []byte{0, 1, 2, 3, 4, 5, 6, 7},
	}
}

// WriteTestVolume writes TestVolume to dir/name and returns the path.
func WriteTestVolume(dir, name string) (string, error) {
	path := filepath.Join(dir, name)
	return path, metaimage.Write(path, TestVolume())
}

// Lines returns n lines "prefix 0".."prefix n-1".
func Lines(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = strings.TrimSpace(fmt.Sprintf("%s %d", prefix, i))
	}
	return out
}
