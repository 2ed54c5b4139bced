// Package registration runs elastix and transformix for one registration and
// imports their results.
//
// A Runner drives a single run at a time through Preparing,
// RunningRegistration, RunningResample and Importing. Tool output is read
// line by line; after every line the yield callback runs and the cancel flag
// is checked, and a set flag kills the tool and ends the run as Cancelled.
// The working directory is removed when the run ends unless temporary files
// are kept.
package registration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zjrosen/elastixctl/internal/imaging"
	"github.com/zjrosen/elastixctl/internal/log"
	"github.com/zjrosen/elastixctl/internal/paths"
	"github.com/zjrosen/elastixctl/internal/process"
	"github.com/zjrosen/elastixctl/internal/pubsub"
	"github.com/zjrosen/elastixctl/internal/toolbox"
	"github.com/zjrosen/elastixctl/internal/tracing"
)

// Working directory layout.
const (
	InputDir              = "input"
	ResultTransformDir    = "result-transform"
	ResultResampleDir     = "result-resample"
	InitialTransformParam = "initialTransformParameter.txt"
)

// Option configures a Runner.
type Option func(*Runner)

// WithLogSink sets the sink receiving status lines.
func WithLogSink(sink log.Sink) Option {
	return func(r *Runner) { r.sink = sink }
}

// WithYield sets the callback invoked once per tool output line.
func WithYield(fn func()) Option {
	return func(r *Runner) { r.yield = fn }
}

// WithLauncher replaces the process launcher.
func WithLauncher(l process.Launcher) Option {
	return func(r *Runner) { r.launcher = l }
}

// WithTempBase sets the directory working directories are created in.
func WithTempBase(dir string) Option {
	return func(r *Runner) { r.tempBase = dir }
}

// WithKeepTempFiles keeps the working directory after the run.
func WithKeepTempFiles(keep bool) Option {
	return func(r *Runner) { r.keepTemp = keep }
}

// WithVerbose forwards every tool output line to the log sink as it arrives.
func WithVerbose(verbose bool) Option {
	return func(r *Runner) { r.verbose = verbose }
}

// WithTracer sets the tracer for run spans.
func WithTracer(t trace.Tracer) Option {
	return func(r *Runner) { r.tracer = t }
}

// WithBaseEnv sets the environment the toolbox directories are prepended to.
func WithBaseEnv(env []string) Option {
	return func(r *Runner) { r.baseEnv = env }
}

// Runner orchestrates registration runs. Methods are safe for concurrent use;
// only one run is active at a time.
type Runner struct {
	toolbox  *toolbox.Toolbox
	launcher process.Launcher
	importer Importer
	sink     log.Sink
	yield    func()
	tempBase string
	keepTemp bool
	verbose  bool
	tracer   trace.Tracer
	baseEnv  []string
	events   *pubsub.Broker[Progress]

	running         atomic.Bool
	cancelRequested atomic.Bool

	mu    sync.RWMutex
	state State
	jobID string
}

// NewRunner creates a runner using the executables of tb. A nil tb makes
// every Run fail with toolbox.ErrToolboxNotFound.
func NewRunner(tb *toolbox.Toolbox, opts ...Option) *Runner {
	r := &Runner{
		toolbox:  tb,
		launcher: process.NewExecLauncher(),
		yield:    func() {},
		tempBase: paths.TempBase(""),
		tracer:   noop.NewTracerProvider().Tracer("noop"),
		events:   pubsub.NewBroker[Progress](),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.yield == nil {
		r.yield = func() {}
	}
	return r
}

// Subscribe returns a channel of progress events, closed when ctx ends.
func (r *Runner) Subscribe(ctx context.Context) <-chan pubsub.Event[Progress] {
	return r.events.Subscribe(ctx)
}

// Broker exposes the progress broker for UI listeners.
func (r *Runner) Broker() *pubsub.Broker[Progress] { return r.events }

// State returns the state of the current or last run.
func (r *Runner) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// IsRunning reports whether a run is active.
func (r *Runner) IsRunning() bool { return r.running.Load() }

// Cancel requests cancellation of the active run. It is a no-op when idle and
// reports whether a request was recorded.
func (r *Runner) Cancel() bool {
	if !r.running.Load() {
		return false
	}
	r.cancelRequested.Store(true)
	log.Debug(log.CatRunner, "Cancel requested", "job", r.currentJob())
	return true
}

// Run performs the registration described by req. A cancelled run returns a
// Result in StateCancelled and a nil error.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	if err := req.validate(); err != nil {
		r.status(err.Error())
		return nil, err
	}
	if r.toolbox == nil {
		r.status("Elastix not found")
		return nil, toolbox.ErrToolboxNotFound
	}
	if !r.running.CompareAndSwap(false, true) {
		r.status(ErrAlreadyRunning.Error())
		return nil, ErrAlreadyRunning
	}
	r.cancelRequested.Store(false)

	res := &Result{JobID: uuid.NewString()}
	r.mu.Lock()
	r.jobID = res.JobID
	r.mu.Unlock()

	ctx, span := r.tracer.Start(ctx, tracing.SpanRun, trace.WithAttributes(
		attribute.String(tracing.AttrJobID, res.JobID),
		attribute.String(tracing.AttrPresetID, req.PresetID),
		attribute.Int(tracing.AttrParameterFiles, len(req.ParameterFiles)),
	))

	defer func() {
		r.cleanup(ctx, res.WorkDir)
		r.cancelRequested.Store(false)
		r.running.Store(false)
		span.SetAttributes(attribute.String(tracing.AttrState, res.State.String()))
		span.End()
	}()

	err := r.run(ctx, req, res)
	switch {
	case err != nil:
		res.State = StateFailed
		r.setState(StateFailed)
		r.status(err.Error())
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.ErrorErr(log.CatRunner, "Registration failed", err, "job", res.JobID)
		return res, err
	case res.State == StateCancelled:
		span.SetStatus(codes.Ok, "cancelled")
		return res, nil
	default:
		span.SetStatus(codes.Ok, "")
		return res, nil
	}
}

func (r *Runner) run(ctx context.Context, req Request, res *Result) error {
	r.setState(StatePreparing)
	args, err := r.prepare(ctx, req, res)
	if err != nil {
		return err
	}
	if r.cancelled(ctx) {
		r.finishCancelled(res)
		return nil
	}

	r.setState(StateRunningRegistration)
	r.status("Register volumes...")
	cancelled, err := r.runTool(ctx, toolbox.Elastix, args, res.WorkDir)
	if err != nil {
		return err
	}
	if cancelled {
		r.finishCancelled(res)
		return nil
	}

	transformDir := filepath.Join(res.WorkDir, ResultTransformDir)
	base := filepath.Join(transformDir, fmt.Sprintf("TransformParameters.%d", len(req.ParameterFiles)-1))
	res.TransformParameters = base + ".txt"

	if req.OutputTransform != nil && !req.ForceDisplacementField {
		if t, err := r.importer.ImportLinearTransform(base + "-Composite.h5"); err == nil {
			res.LinearTransform = t
			trace.SpanFromContext(ctx).AddEvent(tracing.EventFastPath)
		} else {
			log.Debug(log.CatImport, "No linear transform, falling back to displacement field", "error", err)
		}
	}

	resampleDir := filepath.Join(res.WorkDir, ResultResampleDir)
	if err := os.MkdirAll(resampleDir, 0750); err != nil {
		return fmt.Errorf("create resample directory: %w", err)
	}
	if req.OutputVolume != nil || res.LinearTransform == nil {
		targs := []string{"-tp", res.TransformParameters, "-out", resampleDir}
		if req.OutputVolume != nil {
			targs = append(targs, "-in", res.movingInput)
		}
		if req.OutputTransform != nil {
			targs = append(targs, "-def", "all")
		}

		r.setState(StateRunningResample)
		r.status("Generate output...")
		cancelled, err := r.runTool(ctx, toolbox.Transformix, targs, res.WorkDir)
		if err != nil {
			return err
		}
		if cancelled {
			r.finishCancelled(res)
			return nil
		}
	}

	r.setState(StateImporting)
	if err := r.importResults(ctx, req, res, resampleDir); err != nil {
		return err
	}

	res.State = StateCompleted
	r.setState(StateCompleted)
	r.status("Registration is completed")
	return nil
}

// prepare creates the working directory, exports the inputs and returns the
// elastix arguments.
func (r *Runner) prepare(ctx context.Context, req Request, res *Result) ([]string, error) {
	_, span := r.tracer.Start(ctx, tracing.SpanPrepare)
	defer span.End()

	dir, err := paths.CreateTimestampDir(r.tempBase)
	if err != nil {
		return nil, fmt.Errorf("create working directory: %w", err)
	}
	res.WorkDir = dir
	span.SetAttributes(attribute.String(tracing.AttrWorkDir, dir))
	r.status("Volume registration is started in working directory: " + dir)

	inputDir := filepath.Join(dir, InputDir)
	if err := os.MkdirAll(inputDir, 0750); err != nil {
		return nil, fmt.Errorf("create input directory: %w", err)
	}

	var args []string
	inputs := []struct {
		src  imaging.Source
		base string
		flag string
	}{
		{req.Fixed, "fixed", "-f"},
		{req.Moving, "moving", "-m"},
		{req.FixedMask, "fixedMask", "-fMask"},
		{req.MovingMask, "movingMask", "-mMask"},
	}
	for _, in := range inputs {
		if in.src == nil {
			continue
		}
		path, err := in.src.Export(inputDir, in.base)
		if err != nil {
			return nil, fmt.Errorf("write %s input: %w", in.base, err)
		}
		if in.base == "moving" {
			res.movingInput = path
		}
		args = append(args, in.flag, path)
	}

	if req.InitialTransform != nil {
		transformPath, err := req.InitialTransform.Export(dir, "initialTransform")
		if err != nil {
			return nil, fmt.Errorf("write initial transform: %w", err)
		}
		paramPath := filepath.Join(dir, InitialTransformParam)
		if err := os.WriteFile(paramPath, []byte(InitialTransformFragment(transformPath)), 0644); err != nil {
			return nil, fmt.Errorf("write initial transform parameters: %w", err)
		}
		args = append(args, "-t0", paramPath)
	}

	for _, p := range req.ParameterFiles {
		args = append(args, "-p", p)
	}
	out := filepath.Join(dir, ResultTransformDir)
	if err := os.MkdirAll(out, 0750); err != nil {
		return nil, fmt.Errorf("create transform directory: %w", err)
	}
	return append(args, "-out", out), nil
}

// InitialTransformFragment is the parameter file telling elastix to compose
// with the transform stored at path.
func InitialTransformFragment(path string) string {
	return strings.Join([]string{
		`(InitialTransformParametersFileName "NoInitialTransform")`,
		`(HowToCombineTransforms "Compose")`,
		`(Transform "File")`,
		`(TransformFileName "` + path + `")`,
		"",
	}, "\n") + "\n"
}

// runTool starts a tool and streams its output. It reports cancelled when the
// cancel flag was observed; a non-zero exit is only an error otherwise.
func (r *Runner) runTool(ctx context.Context, name string, args []string, dir string) (bool, error) {
	ctx, span := r.tracer.Start(ctx, tracing.SpanProcess+name,
		trace.WithAttributes(attribute.String(tracing.AttrTool, name)))
	defer span.End()

	proc, err := r.launcher.Start(ctx, process.Spec{
		Name: name,
		Path: r.toolbox.Path(name),
		Args: args,
		Env:  r.toolbox.Env(r.environ()),
		Dir:  dir,
	})
	if err != nil {
		return false, err
	}

	var output strings.Builder
	var lines int
	cancelled := false
	for {
		line, err := proc.ReadLine()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			_ = proc.Kill()
			_, _ = proc.Wait()
			return false, fmt.Errorf("read %s output: %w", name, err)
		}
		lines++
		line = strings.TrimRight(line, " \t\r\n")
		if r.verbose {
			r.status(line)
		} else {
			output.WriteString(line)
			output.WriteByte('\n')
		}
		r.events.Publish(pubsub.OutputEvent, Progress{JobID: r.currentJob(), State: r.State(), Line: line})
		r.yield()
		if r.cancelled(ctx) {
			cancelled = true
			r.setState(StateCancelling)
			span.AddEvent(tracing.EventCancelRequested)
			if err := proc.Kill(); err != nil {
				log.ErrorErr(log.CatProcess, "Kill failed", err, "tool", name)
			}
			break
		}
	}

	code, werr := proc.Wait()
	span.SetAttributes(attribute.Int(tracing.AttrExitCode, code), attribute.Int(tracing.AttrOutputLines, lines))
	if cancelled || r.cancelled(ctx) {
		return true, nil
	}
	if werr != nil {
		return false, werr
	}
	if code != 0 {
		for _, l := range strings.Split(strings.TrimSuffix(output.String(), "\n"), "\n") {
			if l != "" {
				r.status(l)
			}
		}
		span.SetStatus(codes.Error, fmt.Sprintf("exit %d", code))
		return false, &ProcessError{Tool: name, ExitCode: code, Output: output.String()}
	}
	return false, nil
}

// importResults loads every requested artifact before touching any sink.
func (r *Runner) importResults(ctx context.Context, req Request, res *Result, resampleDir string) error {
	_, span := r.tracer.Start(ctx, tracing.SpanImport)
	defer span.End()

	if req.OutputVolume != nil {
		img, err := r.importer.ImportVolume(resampleDir)
		if err != nil {
			return err
		}
		res.Volume = img
		span.AddEvent(tracing.EventArtifactLoaded, trace.WithAttributes(attribute.String(tracing.AttrArtifact, ResultVolumeFile)))
	}
	if req.OutputTransform != nil && res.LinearTransform == nil {
		img, err := r.importer.ImportDisplacementField(resampleDir)
		if err != nil {
			return err
		}
		res.DisplacementField = img
		span.AddEvent(tracing.EventArtifactLoaded, trace.WithAttributes(attribute.String(tracing.AttrArtifact, DisplacementFieldFile)))
	}

	if res.Volume != nil {
		if err := req.OutputVolume.SetVolume(res.Volume); err != nil {
			return fmt.Errorf("store output volume: %w", err)
		}
	}
	if req.OutputTransform != nil {
		if res.LinearTransform != nil {
			if err := req.OutputTransform.SetLinearTransform(res.LinearTransform); err != nil {
				return fmt.Errorf("store output transform: %w", err)
			}
		} else if err := req.OutputTransform.SetDisplacementField(res.DisplacementField); err != nil {
			return fmt.Errorf("store output transform: %w", err)
		}
		req.OutputTransform.SetReferences(req.Fixed.Name(), req.Moving.Name())
	}
	return nil
}

func (r *Runner) finishCancelled(res *Result) {
	r.setState(StateCancelling)
	res.State = StateCancelled
	r.setState(StateCancelled)
	r.status("User requested cancel.")
}

func (r *Runner) cleanup(ctx context.Context, dir string) {
	if dir == "" {
		return
	}
	_, span := r.tracer.Start(ctx, tracing.SpanCleanup, trace.WithAttributes(attribute.String(tracing.AttrWorkDir, dir)))
	defer span.End()
	if r.keepTemp {
		log.Debug(log.CatRunner, "Keeping working directory", "dir", dir)
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		log.ErrorErr(log.CatRunner, "Failed to remove working directory", err, "dir", dir)
	}
}

func (r *Runner) cancelled(ctx context.Context) bool {
	return r.cancelRequested.Load() || ctx.Err() != nil
}

func (r *Runner) setState(s State) {
	r.mu.Lock()
	prev := r.state
	if s == StateCancelling && !prev.cancellable() {
		r.mu.Unlock()
		return
	}
	r.state = s
	job := r.jobID
	r.mu.Unlock()
	log.Debug(log.CatRunner, "State changed", "job", job, "from", prev.String(), "to", s.String())
	r.events.Publish(pubsub.StateChangedEvent, Progress{JobID: job, State: s})
}

func (r *Runner) currentJob() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.jobID
}

func (r *Runner) status(line string) {
	r.sink.Add(line)
	log.Info(log.CatRunner, line)
}

func (r *Runner) environ() []string {
	if r.baseEnv != nil {
		return r.baseEnv
	}
	return os.Environ()
}
