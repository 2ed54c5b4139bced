package registration

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"pgregory.net/rapid"

	"github.com/zjrosen/elastixctl/internal/imaging"
	"github.com/zjrosen/elastixctl/internal/log"
	"github.com/zjrosen/elastixctl/internal/metaimage"
	"github.com/zjrosen/elastixctl/internal/process"
	"github.com/zjrosen/elastixctl/internal/pubsub"
	"github.com/zjrosen/elastixctl/internal/testutil"
	"github.com/zjrosen/elastixctl/internal/toolbox"
	"github.com/zjrosen/elastixctl/internal/tracing"
)

type memoryVolume struct {
	mu    sync.Mutex
	calls int
	img   *metaimage.Image
}

func (m *memoryVolume) SetVolume(img *metaimage.Image) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.img = img
	return nil
}

type memoryTransform struct {
	mu            sync.Mutex
	calls         int
	linear        *imaging.LinearTransform
	field         *metaimage.Image
	fixed, moving string
}

func (m *memoryTransform) SetLinearTransform(t *imaging.LinearTransform) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.linear = t
	return nil
}

func (m *memoryTransform) SetDisplacementField(img *metaimage.Image) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.field = img
	return nil
}

func (m *memoryTransform) SetReferences(fixed, moving string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fixed, m.moving = fixed, moving
}

type runFixture struct {
	launcher *testutil.FakeLauncher
	logs     *log.Buffer
	tempBase string
	inputs   string
	volume   *memoryVolume
	xform    *memoryTransform
}

func newFixture(t *testing.T) *runFixture {
	t.Helper()
	inputs := t.TempDir()
	_, err := testutil.WriteTestVolume(inputs, "fixed.mha")
	require.NoError(t, err)
	_, err = testutil.WriteTestVolume(inputs, "moving.mhd")
	require.NoError(t, err)
	return &runFixture{
		launcher: testutil.NewFakeLauncher(),
		logs:     &log.Buffer{},
		tempBase: t.TempDir(),
		inputs:   inputs,
		volume:   &memoryVolume{},
		xform:    &memoryTransform{},
	}
}

func (f *runFixture) runner(opts ...Option) *Runner {
	base := []Option{
		WithLauncher(f.launcher),
		WithLogSink(f.logs.Sink()),
		WithTempBase(f.tempBase),
		WithBaseEnv([]string{"PATH=/usr/bin"}),
	}
	return NewRunner(&toolbox.Toolbox{BinDir: "/opt/elastix/bin"}, append(base, opts...)...)
}

func (f *runFixture) request(sections ...string) Request {
	if len(sections) == 0 {
		sections = []string{"rigid.txt", "bspline.txt"}
	}
	return Request{
		Fixed:           imaging.FileSource{Path: filepath.Join(f.inputs, "fixed.mha")},
		Moving:          imaging.FileSource{Path: filepath.Join(f.inputs, "moving.mhd")},
		ParameterFiles:  sections,
		OutputVolume:    f.volume,
		OutputTransform: f.xform,
	}
}

// workDirs lists the working directories left under the temp base.
func (f *runFixture) workDirs(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(f.tempBase)
	require.NoError(t, err)
	var out []string
	for _, e := range entries {
		out = append(out, e.Name())
	}
	return out
}

func TestRun_CompletesBothPhases(t *testing.T) {
	f := newFixture(t)
	f.launcher.
		Script(toolbox.Elastix, testutil.Script{Lines: testutil.Lines("iteration", 3), OnStart: testutil.ElastixOutputs(false)}).
		Script(toolbox.Transformix, testutil.Script{Lines: []string{"resampling"}, OnStart: testutil.TransformixOutputs()})
	r := f.runner()

	res, err := r.Run(context.Background(), f.request())
	require.NoError(t, err)
	require.Equal(t, StateCompleted, res.State)
	require.Equal(t, StateCompleted, r.State())
	require.False(t, r.IsRunning())
	require.NotEmpty(t, res.JobID)

	require.Equal(t, 1, f.volume.calls)
	require.Equal(t, []int{2, 2, 2}, f.volume.img.DimSize)
	require.Equal(t, 1, f.xform.calls)
	require.NotNil(t, f.xform.field)
	require.Nil(t, f.xform.linear)
	require.Equal(t, filepath.Join(f.inputs, "fixed.mha"), f.xform.fixed)
	require.Equal(t, filepath.Join(f.inputs, "moving.mhd"), f.xform.moving)

	require.NoDirExists(t, res.WorkDir)
	require.Empty(t, f.workDirs(t))

	lines := f.logs.Lines()
	require.Equal(t, "Volume registration is started in working directory: "+res.WorkDir, lines[0])
	require.Contains(t, lines, "Register volumes...")
	require.Contains(t, lines, "Generate output...")
	require.Equal(t, "Registration is completed", lines[len(lines)-1])
	require.NotContains(t, lines, "iteration 0", "output is buffered when not verbose")
}

func TestRun_ElastixArguments(t *testing.T) {
	f := newFixture(t)
	f.launcher.
		Script(toolbox.Elastix, testutil.Script{OnStart: testutil.ElastixOutputs(false)}).
		Script(toolbox.Transformix, testutil.Script{OnStart: testutil.TransformixOutputs()})
	req := f.request("rigid.txt", "bspline.txt")
	req.FixedMask = imaging.FileSource{Path: filepath.Join(f.inputs, "fixed.mha")}
	req.MovingMask = imaging.FileSource{Path: filepath.Join(f.inputs, "fixed.mha")}

	res, err := f.runner(WithKeepTempFiles(true)).Run(context.Background(), req)
	require.NoError(t, err)

	spec, ok := f.launcher.Last(toolbox.Elastix)
	require.True(t, ok)
	input := filepath.Join(res.WorkDir, InputDir)
	require.Equal(t, []string{
		"-f", filepath.Join(input, "fixed.mha"),
		"-m", filepath.Join(input, "moving.mha"),
		"-fMask", filepath.Join(input, "fixedMask.mha"),
		"-mMask", filepath.Join(input, "movingMask.mha"),
		"-p", "rigid.txt",
		"-p", "bspline.txt",
		"-out", filepath.Join(res.WorkDir, ResultTransformDir),
	}, spec.Args)
	require.Equal(t, filepath.Join("/opt/elastix/bin", toolbox.ExecutableName(toolbox.Elastix)), spec.Path)
	require.Equal(t, res.WorkDir, spec.Dir)
	require.Contains(t, spec.Env, "PATH=/opt/elastix/bin"+string(os.PathListSeparator)+"/usr/bin")
	require.FileExists(t, filepath.Join(input, "moving.mha"))

	tspec, ok := f.launcher.Last(toolbox.Transformix)
	require.True(t, ok)
	require.Equal(t, []string{
		"-tp", filepath.Join(res.WorkDir, ResultTransformDir, "TransformParameters.1.txt"),
		"-out", filepath.Join(res.WorkDir, ResultResampleDir),
		"-in", filepath.Join(input, "moving.mha"),
		"-def", "all",
	}, tspec.Args)
}

func TestRun_InitialTransform(t *testing.T) {
	f := newFixture(t)
	f.launcher.Script(toolbox.Elastix, testutil.Script{OnStart: testutil.ElastixOutputs(false)})
	initial := filepath.Join(f.inputs, "init.h5")
	require.NoError(t, os.WriteFile(initial, []byte("h5"), 0644))

	req := f.request("rigid.txt")
	req.InitialTransform = imaging.FileSource{Path: initial}
	req.OutputVolume, req.OutputTransform = nil, nil

	res, err := f.runner(WithKeepTempFiles(true)).Run(context.Background(), req)
	require.NoError(t, err)

	spec, _ := f.launcher.Last(toolbox.Elastix)
	paramPath := testutil.ArgValue(spec.Args, "-t0")
	require.Equal(t, filepath.Join(res.WorkDir, InitialTransformParam), paramPath)

	data, err := os.ReadFile(paramPath)
	require.NoError(t, err)
	require.Equal(t, InitialTransformFragment(filepath.Join(res.WorkDir, "initialTransform.h5")), string(data))
	require.Contains(t, string(data), `(HowToCombineTransforms "Compose")`)
	require.True(t, strings.HasSuffix(string(data), "\n\n"))

	// Without requested outputs transformix still runs, with neither -in nor -def.
	tspec, ok := f.launcher.Last(toolbox.Transformix)
	require.True(t, ok)
	require.False(t, testutil.HasFlag(tspec.Args, "-in"))
	require.False(t, testutil.HasFlag(tspec.Args, "-def"))
}

func TestRun_ProcessFailure(t *testing.T) {
	f := newFixture(t)
	f.launcher.Script(toolbox.Elastix, testutil.Script{
		Lines:    []string{"Reading parameter file", "ERROR: no Transform specified  "},
		ExitCode: 1,
	})
	r := f.runner()

	res, err := r.Run(context.Background(), f.request())
	var perr *ProcessError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, toolbox.Elastix, perr.Tool)
	require.Equal(t, 1, perr.ExitCode)
	require.Equal(t, "Reading parameter file\nERROR: no Transform specified\n", perr.Output)

	require.Equal(t, StateFailed, res.State)
	require.Equal(t, StateFailed, r.State())
	require.Equal(t, 0, f.launcher.Count(toolbox.Transformix))
	require.NoDirExists(t, res.WorkDir)

	lines := f.logs.Lines()
	require.Contains(t, lines, "ERROR: no Transform specified")
	require.Equal(t, "elastix exited with code 1", lines[len(lines)-1])
	require.Zero(t, f.volume.calls)
	require.Zero(t, f.xform.calls)
}

func TestRun_ResampleFailure(t *testing.T) {
	f := newFixture(t)
	f.launcher.
		Script(toolbox.Elastix, testutil.Script{OnStart: testutil.ElastixOutputs(false)}).
		Script(toolbox.Transformix, testutil.Script{Lines: []string{"itk exception"}, ExitCode: 2})

	_, err := f.runner().Run(context.Background(), f.request())
	var perr *ProcessError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, toolbox.Transformix, perr.Tool)
	require.Zero(t, f.volume.calls)
}

func TestRun_CancelDuringRegistration(t *testing.T) {
	f := newFixture(t)
	var r *Runner
	f.launcher.Script(toolbox.Elastix, testutil.Script{
		Lines:   testutil.Lines("iteration", 10),
		OnStart: testutil.ElastixOutputs(false),
		OnLine: func(i int) {
			if i == 1 {
				require.True(t, r.Cancel())
			}
		},
	})
	var yields int
	r = f.runner(WithYield(func() { yields++ }))

	res, err := r.Run(context.Background(), f.request())
	require.NoError(t, err, "cancellation is not an error")
	require.Equal(t, StateCancelled, res.State)
	require.Equal(t, StateCancelled, r.State())
	require.Equal(t, 2, yields, "run stops after the line during which cancel was requested")

	require.Equal(t, 0, f.launcher.Count(toolbox.Transformix))
	require.Zero(t, f.volume.calls)
	require.Zero(t, f.xform.calls)
	require.NoDirExists(t, res.WorkDir)
	require.Contains(t, f.logs.Lines(), "User requested cancel.")
	require.False(t, r.IsRunning())
}

func TestRun_CancelDuringResample(t *testing.T) {
	f := newFixture(t)
	var r *Runner
	f.launcher.
		Script(toolbox.Elastix, testutil.Script{OnStart: testutil.ElastixOutputs(false)}).
		Script(toolbox.Transformix, testutil.Script{
			Lines:   testutil.Lines("resample", 3),
			OnStart: testutil.TransformixOutputs(),
			OnLine:  func(int) { r.Cancel() },
		})
	r = f.runner()

	res, err := r.Run(context.Background(), f.request())
	require.NoError(t, err)
	require.Equal(t, StateCancelled, res.State)
	require.Zero(t, f.volume.calls)
	require.Zero(t, f.xform.calls)
}

func TestRun_ContextCancellation(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	f.launcher.Script(toolbox.Elastix, testutil.Script{
		Lines:  testutil.Lines("iteration", 4),
		OnLine: func(int) { cancel() },
	})

	res, err := f.runner().Run(ctx, f.request())
	require.NoError(t, err)
	require.Equal(t, StateCancelled, res.State)
	require.Equal(t, 0, f.launcher.Count(toolbox.Transformix))
}

func TestRun_LinearFastPath(t *testing.T) {
	f := newFixture(t)
	f.launcher.Script(toolbox.Elastix, testutil.Script{OnStart: testutil.ElastixOutputs(true)})
	req := f.request("rigid.txt")
	req.OutputVolume = nil

	res, err := f.runner().Run(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, StateCompleted, res.State)
	require.Equal(t, 0, f.launcher.Count(toolbox.Transformix), "linear transform needs no resample")
	require.NotNil(t, f.xform.linear)
	require.Nil(t, f.xform.field)
	require.True(t, strings.HasSuffix(f.xform.linear.Path, "TransformParameters.0-Composite.h5"))
	require.NotEmpty(t, f.xform.fixed)
}

func TestRun_LinearWithVolumeStillResamples(t *testing.T) {
	f := newFixture(t)
	f.launcher.
		Script(toolbox.Elastix, testutil.Script{OnStart: testutil.ElastixOutputs(true)}).
		Script(toolbox.Transformix, testutil.Script{OnStart: testutil.TransformixOutputs()})

	_, err := f.runner().Run(context.Background(), f.request("rigid.txt"))
	require.NoError(t, err)
	require.Equal(t, 1, f.launcher.Count(toolbox.Transformix))
	require.NotNil(t, f.xform.linear)
	require.Nil(t, f.xform.field)
	require.Equal(t, 1, f.volume.calls)
}

func TestRun_ForceDisplacementFieldIgnoresLinear(t *testing.T) {
	f := newFixture(t)
	f.launcher.
		Script(toolbox.Elastix, testutil.Script{OnStart: testutil.ElastixOutputs(true)}).
		Script(toolbox.Transformix, testutil.Script{OnStart: testutil.TransformixOutputs()})
	req := f.request("rigid.txt")
	req.OutputVolume = nil
	req.ForceDisplacementField = true

	_, err := f.runner().Run(context.Background(), req)
	require.NoError(t, err)
	spec, ok := f.launcher.Last(toolbox.Transformix)
	require.True(t, ok)
	require.Equal(t, "all", testutil.ArgValue(spec.Args, "-def"))
	require.Nil(t, f.xform.linear)
	require.NotNil(t, f.xform.field)
}

func TestRun_ImportFailureLeavesSinksUntouched(t *testing.T) {
	f := newFixture(t)
	f.launcher.
		Script(toolbox.Elastix, testutil.Script{OnStart: testutil.ElastixOutputs(false)}).
		Script(toolbox.Transformix, testutil.Script{OnStart: func(spec process.Spec) error {
			// Only the volume is written; the displacement field is missing.
			out := testutil.ArgValue(spec.Args, "-out")
			return metaimage.Write(filepath.Join(out, ResultVolumeFile), testutil.TestVolume())
		}})

	res, err := f.runner().Run(context.Background(), f.request())
	var lerr *OutputLoadError
	require.ErrorAs(t, err, &lerr)
	require.True(t, strings.HasSuffix(lerr.Path, DisplacementFieldFile))
	require.ErrorIs(t, err, os.ErrNotExist)
	require.Equal(t, StateFailed, res.State)
	require.Zero(t, f.volume.calls, "volume is not stored when another artifact fails")
	require.Zero(t, f.xform.calls)
	require.NoDirExists(t, res.WorkDir)
}

func TestRun_VerboseForwardsLines(t *testing.T) {
	f := newFixture(t)
	f.launcher.
		Script(toolbox.Elastix, testutil.Script{Lines: testutil.Lines("iteration", 2), OnStart: testutil.ElastixOutputs(false)}).
		Script(toolbox.Transformix, testutil.Script{OnStart: testutil.TransformixOutputs()})

	_, err := f.runner(WithVerbose(true)).Run(context.Background(), f.request())
	require.NoError(t, err)
	lines := f.logs.Lines()
	require.Contains(t, lines, "iteration 0")
	require.Contains(t, lines, "iteration 1")
}

func TestRun_ResultIndexIsLastParameterFile(t *testing.T) {
	for _, n := range []int{1, 2, 5} {
		t.Run(fmt.Sprintf("N=%d", n), func(t *testing.T) {
			f := newFixture(t)
			f.launcher.
				Script(toolbox.Elastix, testutil.Script{OnStart: testutil.ElastixOutputs(false)}).
				Script(toolbox.Transformix, testutil.Script{OnStart: testutil.TransformixOutputs()})
			sections := make([]string, n)
			for i := range sections {
				sections[i] = fmt.Sprintf("p%d.txt", i)
			}

			res, err := f.runner().Run(context.Background(), f.request(sections...))
			require.NoError(t, err)

			want := fmt.Sprintf("TransformParameters.%d.txt", n-1)
			require.Equal(t, want, filepath.Base(res.TransformParameters))
			spec, _ := f.launcher.Last(toolbox.Transformix)
			require.Equal(t, want, filepath.Base(testutil.ArgValue(spec.Args, "-tp")))

			espec, _ := f.launcher.Last(toolbox.Elastix)
			require.Equal(t, sections, testutil.ArgValues(espec.Args, "-p"))
		})
	}
}

func TestRun_ResultIndexProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 8).Draw(rt, "n")
		f := newFixture(t)
		f.launcher.Script(toolbox.Elastix, testutil.Script{OnStart: testutil.ElastixOutputs(false)})
		sections := make([]string, n)
		for i := range sections {
			sections[i] = fmt.Sprintf("p%d.txt", i)
		}
		req := f.request(sections...)
		req.OutputVolume, req.OutputTransform = nil, nil

		res, err := f.runner().Run(context.Background(), req)
		if err != nil {
			rt.Fatalf("run: %v", err)
		}
		if got, want := filepath.Base(res.TransformParameters), fmt.Sprintf("TransformParameters.%d.txt", n-1); got != want {
			rt.Fatalf("result file %s, want %s", got, want)
		}
	})
}

func TestRun_WorkDirCleanup(t *testing.T) {
	outcomes := map[string]func(f *runFixture, r **Runner){
		"success": func(f *runFixture, _ **Runner) {
			f.launcher.
				Script(toolbox.Elastix, testutil.Script{OnStart: testutil.ElastixOutputs(false)}).
				Script(toolbox.Transformix, testutil.Script{OnStart: testutil.TransformixOutputs()})
		},
		"process error": func(f *runFixture, _ **Runner) {
			f.launcher.Script(toolbox.Elastix, testutil.Script{ExitCode: 1})
		},
		"cancellation": func(f *runFixture, r **Runner) {
			f.launcher.Script(toolbox.Elastix, testutil.Script{
				Lines:  testutil.Lines("iteration", 3),
				OnLine: func(int) { (*r).Cancel() },
			})
		},
		"import error": func(f *runFixture, _ **Runner) {
			f.launcher.Script(toolbox.Elastix, testutil.Script{OnStart: testutil.ElastixOutputs(false)})
		},
		"start error": func(f *runFixture, _ **Runner) {
			f.launcher.FailStart(errors.New("exec format error"))
		},
	}
	for name, setup := range outcomes {
		for _, keep := range []bool{false, true} {
			t.Run(fmt.Sprintf("%s/keep=%v", name, keep), func(t *testing.T) {
				f := newFixture(t)
				var r *Runner
				setup(f, &r)
				r = f.runner(WithKeepTempFiles(keep))

				res, _ := r.Run(context.Background(), f.request())
				require.NotNil(t, res)
				require.NotEmpty(t, res.WorkDir)
				if keep {
					require.DirExists(t, res.WorkDir)
				} else {
					require.NoDirExists(t, res.WorkDir)
				}
				require.False(t, r.IsRunning())
			})
		}
	}
}

func TestRun_RejectsConcurrentRun(t *testing.T) {
	f := newFixture(t)
	var r *Runner
	var nested error
	f.launcher.Script(toolbox.Elastix, testutil.Script{
		Lines: []string{"working"},
		OnLine: func(int) {
			require.True(t, r.IsRunning())
			_, nested = r.Run(context.Background(), f.request())
		},
	})
	r = f.runner()

	_, _ = r.Run(context.Background(), f.request())
	require.ErrorIs(t, nested, ErrAlreadyRunning)
	require.False(t, r.IsRunning())
	require.Contains(t, f.logs.Lines(), ErrAlreadyRunning.Error())
}

func TestRun_CancelFlagResetBetweenRuns(t *testing.T) {
	f := newFixture(t)
	var r *Runner
	f.launcher.Script(toolbox.Elastix, testutil.Script{
		Lines:   []string{"one"},
		OnStart: testutil.ElastixOutputs(false),
		OnLine:  func(int) { r.Cancel() },
	})
	r = f.runner()
	res, err := r.Run(context.Background(), f.request())
	require.NoError(t, err)
	require.Equal(t, StateCancelled, res.State)

	f.launcher.
		Script(toolbox.Elastix, testutil.Script{OnStart: testutil.ElastixOutputs(false)}).
		Script(toolbox.Transformix, testutil.Script{OnStart: testutil.TransformixOutputs()})
	res, err = r.Run(context.Background(), f.request())
	require.NoError(t, err)
	require.Equal(t, StateCompleted, res.State)
}

func TestRun_StaleCancelRequestIgnored(t *testing.T) {
	f := newFixture(t)
	f.launcher.
		Script(toolbox.Elastix, testutil.Script{Lines: []string{"one", "two"}, OnStart: testutil.ElastixOutputs(false)}).
		Script(toolbox.Transformix, testutil.Script{OnStart: testutil.TransformixOutputs()})
	r := f.runner()
	// A Cancel landing while the previous run was tearing down.
	r.cancelRequested.Store(true)

	res, err := r.Run(context.Background(), f.request())
	require.NoError(t, err)
	require.Equal(t, StateCompleted, res.State)
}

func TestCancel_IdleIsNoop(t *testing.T) {
	r := newFixture(t).runner()
	require.False(t, r.Cancel())
	require.Equal(t, StateIdle, r.State())
}

func TestRun_Validation(t *testing.T) {
	f := newFixture(t)
	r := f.runner()

	req := f.request()
	req.Fixed = nil
	_, err := r.Run(context.Background(), req)
	require.ErrorIs(t, err, ErrMissingInput)

	req = f.request()
	req.ParameterFiles = nil
	_, err = r.Run(context.Background(), req)
	require.ErrorIs(t, err, ErrNoParameterFiles)
	require.Empty(t, f.launcher.Calls())
	require.Equal(t, []string{ErrMissingInput.Error(), ErrNoParameterFiles.Error()}, f.logs.Lines())
}

func TestRun_MissingToolbox(t *testing.T) {
	f := newFixture(t)
	r := NewRunner(nil, WithLauncher(f.launcher), WithLogSink(f.logs.Sink()), WithTempBase(f.tempBase))

	_, err := r.Run(context.Background(), f.request())
	require.ErrorIs(t, err, toolbox.ErrToolboxNotFound)
	require.Empty(t, f.launcher.Calls())
	require.Equal(t, []string{"Elastix not found"}, f.logs.Lines())
}

func TestRun_PublishesStateChanges(t *testing.T) {
	f := newFixture(t)
	f.launcher.
		Script(toolbox.Elastix, testutil.Script{Lines: []string{"line"}, OnStart: testutil.ElastixOutputs(false)}).
		Script(toolbox.Transformix, testutil.Script{OnStart: testutil.TransformixOutputs()})
	r := f.runner()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := r.Subscribe(ctx)

	_, err := r.Run(context.Background(), f.request())
	require.NoError(t, err)

	var states []State
	var outputs []string
	timeout := time.After(time.Second)
	for done := false; !done; {
		select {
		case ev := <-events:
			switch ev.Type {
			case pubsub.StateChangedEvent:
				states = append(states, ev.Payload.State)
				done = ev.Payload.State == StateCompleted
			case pubsub.OutputEvent:
				outputs = append(outputs, ev.Payload.Line)
			}
		case <-timeout:
			t.Fatal("missing events")
		}
	}
	require.Equal(t, []State{
		StatePreparing, StateRunningRegistration, StateRunningResample, StateImporting, StateCompleted,
	}, states)
	require.Equal(t, []string{"line"}, outputs)
}

func TestRun_Spans(t *testing.T) {
	f := newFixture(t)
	f.launcher.Script(toolbox.Elastix, testutil.Script{ExitCode: 3})
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	req := f.request()
	req.PresetID = "default0"
	_, err := f.runner(WithTracer(tp.Tracer("test"))).Run(context.Background(), req)
	require.Error(t, err)

	byName := map[string]sdktrace.ReadOnlySpan{}
	for _, s := range recorder.Ended() {
		byName[s.Name()] = s
	}
	require.Contains(t, byName, tracing.SpanRun)
	require.Contains(t, byName, tracing.SpanPrepare)
	require.Contains(t, byName, tracing.SpanProcess+toolbox.Elastix)
	require.Contains(t, byName, tracing.SpanCleanup)
	require.NotContains(t, byName, tracing.SpanProcess+toolbox.Transformix)

	attrs := map[string]any{}
	for _, kv := range byName[tracing.SpanRun].Attributes() {
		attrs[string(kv.Key)] = kv.Value.AsInterface()
	}
	require.Equal(t, "default0", attrs[tracing.AttrPresetID])
	require.Equal(t, "failed", attrs[tracing.AttrState])
}

func TestState_String(t *testing.T) {
	require.Equal(t, "running registration", StateRunningRegistration.String())
	require.True(t, StateCancelled.IsTerminal())
	require.True(t, StateFailed.IsTerminal())
	require.False(t, StateImporting.IsTerminal())
	require.True(t, StatePreparing.cancellable())
	require.False(t, StateImporting.cancellable())
}
