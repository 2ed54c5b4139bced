package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/zjrosen/elastixctl/internal/config"
	"github.com/zjrosen/elastixctl/internal/flags"
	"github.com/zjrosen/elastixctl/internal/imaging"
	"github.com/zjrosen/elastixctl/internal/log"
	"github.com/zjrosen/elastixctl/internal/paths"
	"github.com/zjrosen/elastixctl/internal/presentation"
	"github.com/zjrosen/elastixctl/internal/presets/application"
	"github.com/zjrosen/elastixctl/internal/presets/domain"
	"github.com/zjrosen/elastixctl/internal/registration"
	"github.com/zjrosen/elastixctl/internal/toolbox"
	"github.com/zjrosen/elastixctl/internal/tracing"
	"github.com/zjrosen/elastixctl/internal/ui/runview"
)

// registerOptions are the flags of the register command.
type registerOptions struct {
	fixed, moving         string
	fixedMask, movingMask string
	initialTransform      string
	preset                string
	parameterFiles        []string
	outVolume             string
	outTransform          string
	forceDisplacement     bool
	keepTemp              bool
	verbose               bool
	tui                   bool
	asJSON                bool
}

var regOpts registerOptions

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a moving volume to a fixed volume",
	Long: `Run elastix with the parameter files of a preset (or explicit files) and
transformix to produce the requested outputs.

Without --preset and --param the configured default preset is used. A preset
id that cannot be found falls back to the first preset.

Examples:
  elastixctl register --fixed ct.mha --moving mr.nrrd --out-volume mr-reg.mha
  elastixctl register --fixed a.mha --moving b.mha --preset 3 --out-transform xf.h5
  elastixctl register --fixed a.mha --moving b.mha --param rigid.txt --param bspline.txt --tui`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		return runRegister(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), cfg, flagReg, regOpts)
	},
}

func init() {
	f := registerCmd.Flags()
	f.StringVar(&regOpts.fixed, "fixed", "", "fixed volume (required)")
	f.StringVar(&regOpts.moving, "moving", "", "moving volume (required)")
	f.StringVar(&regOpts.fixedMask, "fixed-mask", "", "fixed volume mask")
	f.StringVar(&regOpts.movingMask, "moving-mask", "", "moving volume mask")
	f.StringVar(&regOpts.initialTransform, "initial-transform", "", "initial transform file")
	f.StringVarP(&regOpts.preset, "preset", "p", "", "preset id or index (default: registration.default_preset)")
	f.StringArrayVar(&regOpts.parameterFiles, "param", nil, "elastix parameter file, repeatable; overrides --preset")
	f.StringVar(&regOpts.outVolume, "out-volume", "", "write the resampled moving volume here")
	f.StringVar(&regOpts.outTransform, "out-transform", "", "write the transform here (.h5 linear or .mha displacement field)")
	f.BoolVar(&regOpts.forceDisplacement, "force-displacement-field", false, "always write a displacement field")
	f.BoolVar(&regOpts.keepTemp, "keep-temp", false, "keep the working directory")
	f.BoolVarP(&regOpts.verbose, "verbose", "v", false, "print elastix output as it arrives")
	f.BoolVar(&regOpts.tui, "tui", false, "show the interactive run view")
	f.BoolVar(&regOpts.asJSON, "json", false, "print the result as JSON")
	_ = registerCmd.MarkFlagRequired("fixed")
	_ = registerCmd.MarkFlagRequired("moving")
	rootCmd.AddCommand(registerCmd)
}

func runRegister(ctx context.Context, out, errOut io.Writer, cfg config.Config, fr *flags.Registry, o registerOptions) error {
	sink := stderrSink(errOut)
	tempBase := paths.TempBase(cfg.Registration.TempDir)
	keep := o.keepTemp || cfg.Registration.KeepTempFiles

	req := registration.Request{
		Fixed:                  imaging.FileSource{Path: o.fixed},
		Moving:                 imaging.FileSource{Path: o.moving},
		ForceDisplacementField: o.forceDisplacement || cfg.Registration.ForceDisplacementField,
	}
	if o.fixedMask != "" {
		req.FixedMask = imaging.FileSource{Path: o.fixedMask}
	}
	if o.movingMask != "" {
		req.MovingMask = imaging.FileSource{Path: o.movingMask}
	}
	if o.initialTransform != "" {
		req.InitialTransform = imaging.FileSource{Path: o.initialTransform}
	}
	if o.outVolume != "" {
		req.OutputVolume = imaging.FileVolumeSink{Path: o.outVolume}
	}
	var xform *imaging.FileTransformSink
	if o.outTransform != "" {
		xform = &imaging.FileTransformSink{Path: o.outTransform}
		req.OutputTransform = xform
	}

	title := "custom parameters"
	if len(o.parameterFiles) > 0 {
		req.ParameterFiles = o.parameterFiles
	} else {
		s, err := openServices(cfg, fr, sink)
		if err != nil {
			return err
		}
		defer func() { _ = s.close() }()

		p, err := resolveRunPreset(ctx, s.catalog, o.preset, cfg.Registration.DefaultPreset)
		if err != nil {
			return err
		}
		dir, files, err := p.MaterializeTemp(tempBase)
		if dir != "" && !keep {
			defer func() { _ = os.RemoveAll(dir) }()
		}
		if err != nil {
			return fmt.Errorf("writing parameter files of %s: %w", p.ID(), err)
		}
		req.ParameterFiles = files
		req.PresetID = p.ID()
		title = p.Name()
	}

	provider, err := tracing.NewProvider(cfg.Tracing)
	if err != nil {
		return fmt.Errorf("creating tracer: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = provider.Shutdown(shutdownCtx)
	}()

	tb, locErr := toolbox.Locator{CustomDir: cfg.Toolbox.CustomDir}.Locate()
	if locErr != nil {
		log.ErrorErr(log.CatToolbox, "Toolbox not located", locErr)
		tb = nil
	}

	useTUI := o.tui || fr.Enabled(flags.FlagRunTUI)
	opts := []registration.Option{
		registration.WithTempBase(tempBase),
		registration.WithKeepTempFiles(keep),
		registration.WithVerbose((o.verbose || cfg.Registration.Verbose) && !useTUI),
		registration.WithTracer(provider.Tracer()),
	}

	var res *registration.Result
	var runErr error
	if useTUI {
		res, runErr = runWithView(ctx, tb, opts, req, title)
	} else {
		runner := registration.NewRunner(tb, append(opts, registration.WithLogSink(sink))...)
		res, runErr = runner.Run(ctx, req)
	}
	return reportResult(out, res, runErr, xform, o.asJSON)
}

// resolveRunPreset picks the preset a run uses. An explicit reference must
// exist; the configured default falls back to the first preset.
func resolveRunPreset(ctx context.Context, c *application.Catalog, ref, defaultID string) (*domain.ParameterSet, error) {
	if ref != "" {
		return findPreset(ctx, c, ref)
	}
	if defaultID == "" {
		defaultID = config.DefaultPresetID
	}
	all, err := c.All(ctx, false)
	if len(all) == 0 {
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("no registration presets available: %w", errPresetNotFound)
	}
	i, err := c.IndexOf(ctx, defaultID)
	if err != nil {
		return nil, err
	}
	return all[i], nil
}

// runWithView runs the registration behind the run view. The view's cancel
// key and the interrupt signal both end the run as cancelled.
func runWithView(ctx context.Context, tb *toolbox.Toolbox, opts []registration.Option, req registration.Request, title string) (*registration.Result, error) {
	var program *tea.Program
	sink := func(line string) {
		if program != nil {
			program.Send(runview.StatusMsg(line))
		}
	}
	runner := registration.NewRunner(tb, append(opts, registration.WithLogSink(sink))...)

	viewCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	model := runview.New(viewCtx, title, runner, runner)
	program = tea.NewProgram(model, tea.WithContext(viewCtx))

	type outcome struct {
		res *registration.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := runner.Run(ctx, req)
		done <- outcome{res, err}
		program.Send(runview.DoneMsg{Result: res, Err: err})
	}()

	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		log.ErrorErr(log.CatUI, "Run view failed", err)
	}
	// The view may close before the run finishes, for example on a signal.
	runner.Cancel()
	o := <-done
	return o.res, o.err
}

func reportResult(w io.Writer, res *registration.Result, runErr error, xform *imaging.FileTransformSink, asJSON bool) error {
	dto := presentation.FromResult(res, runErr)
	if asJSON {
		if err := presentation.NewFormatter(w).FormatJSON(dto); err != nil {
			return err
		}
		return runErr
	}
	if runErr != nil {
		return runErr
	}
	_, _ = fmt.Fprintf(w, "job %s: %s\n", dto.JobID, dto.State)
	if dto.WorkDir != "" {
		if _, err := os.Stat(dto.WorkDir); err == nil {
			_, _ = fmt.Fprintf(w, "working directory: %s\n", dto.WorkDir)
		}
	}
	if xform != nil && xform.Written() != "" {
		_, _ = fmt.Fprintf(w, "transform: %s\n", xform.Written())
	}
	return nil
}
