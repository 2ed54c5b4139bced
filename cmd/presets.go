package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/zjrosen/elastixctl/internal/elastix"
	"github.com/zjrosen/elastixctl/internal/log"
	"github.com/zjrosen/elastixctl/internal/presentation"
	"github.com/zjrosen/elastixctl/internal/presets/application"
	"github.com/zjrosen/elastixctl/internal/presets/domain"
	"github.com/zjrosen/elastixctl/internal/watcher"
)

var (
	presetsJSON     bool
	presetsRaw      bool
	sectionParsed   bool
	createID        string
	createModality  string
	createContent   string
	createDesc      string
	createPubs      string
	presetsMarkdown int
)

// withServices opens the catalog for one command.
func withServices(cmd *cobra.Command, fn func(ctx context.Context, s *services) error) error {
	s, err := openServices(cfg, flagReg, stderrSink(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.close(); cerr != nil {
			log.ErrorErr(log.CatDB, "Failed to close scene database", cerr)
		}
	}()
	return fn(cmd.Context(), s)
}

var presetsListCmd = &cobra.Command{
	Use:   "presets:list",
	Short: "List registration presets",
	Long: `List built-in, user and in-scene presets in catalog order. The first
column is the index accepted by 'register --preset'.

Examples:
  elastixctl presets:list
  elastixctl presets:list --json | jq '.[].id'`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withServices(cmd, func(ctx context.Context, s *services) error {
			return listPresets(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), s, presetsJSON)
		})
	},
}

func listPresets(ctx context.Context, w, errW io.Writer, s *services, asJSON bool) error {
	all, err := s.catalog.All(ctx, true)
	if err != nil {
		// Partial results are still listed; the failed stores are reported.
		log.ErrorErr(log.CatPreset, "Some preset stores failed to load", err)
		_, _ = fmt.Fprintf(errW, "warning: %v\n", err)
	}
	f := presentation.NewFormatter(w)
	dtos := presentation.FromPresets(all)
	if asJSON {
		return f.FormatJSON(dtos)
	}
	return f.FormatPresetTable(dtos)
}

var presetsShowCmd = &cobra.Command{
	Use:   "presets:show <id|index>",
	Short: "Show a preset's metadata and parameter files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd, func(ctx context.Context, s *services) error {
			p, err := findPreset(ctx, s.catalog, args[0])
			if err != nil {
				return err
			}
			f := presentation.NewFormatter(cmd.OutOrStdout())
			dto := presentation.FromPreset(p)
			if presetsJSON {
				return f.FormatJSON(dto)
			}
			return f.FormatPresetMarkdown(dto, markdownWidth(), presetsRaw)
		})
	},
}

func markdownWidth() int {
	if presetsMarkdown > 0 {
		return presetsMarkdown
	}
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 20 {
		return min(w, 120)
	}
	return 80
}

var presetsSectionCmd = &cobra.Command{
	Use:   "presets:section <id|index> <file|index>",
	Short: "Print one parameter file of a preset",
	Long: `Print the content of one parameter file. With --parsed the file is parsed
and printed in canonical form, one entry per line, which normalizes comments
and whitespace.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd, func(ctx context.Context, s *services) error {
			p, err := findPreset(ctx, s.catalog, args[0])
			if err != nil {
				return err
			}
			return printSection(cmd.OutOrStdout(), p, args[1], sectionParsed)
		})
	},
}

func printSection(w io.Writer, p *domain.ParameterSet, ref string, parsed bool) error {
	var section domain.Section
	if i := p.SectionIndex(ref); i >= 0 {
		section, _ = p.SectionAt(i)
	} else if i, convErr := strconv.Atoi(ref); convErr == nil {
		s, err := p.SectionAt(i)
		if err != nil {
			return err
		}
		section = s
	} else {
		return fmt.Errorf("preset %s has no parameter file %q", p.ID(), ref)
	}

	content := section.Content
	if parsed {
		params, err := elastix.Parse(content)
		if err != nil {
			return fmt.Errorf("%s: %w", section.Name, err)
		}
		content = elastix.Format(params)
	}
	_, err := io.WriteString(w, content)
	return err
}

var presetsDiffCmd = &cobra.Command{
	Use:   "presets:diff <a> <b>",
	Short: "Compare the parameter files of two presets",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd, func(ctx context.Context, s *services) error {
			a, err := findPreset(ctx, s.catalog, args[0])
			if err != nil {
				return err
			}
			b, err := findPreset(ctx, s.catalog, args[1])
			if err != nil {
				return err
			}
			diffs := presentation.DiffPresets(a, b)
			f := presentation.NewFormatter(cmd.OutOrStdout())
			if presetsJSON {
				return f.FormatJSON(diffs)
			}
			return f.FormatDiff(diffs)
		})
	},
}

var presetsCloneCmd = &cobra.Command{
	Use:   "presets:clone <id|index>",
	Short: "Copy a preset into the scene as an editable preset",
	Long: `Copy a preset into the scene under a fresh id. The copy is editable and
can be saved to the user folder with presets:save. Without the
scene-persistence flag the scene only lives for this command.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd, func(ctx context.Context, s *services) error {
			p, err := findPreset(ctx, s.catalog, args[0])
			if err != nil {
				return err
			}
			clone, err := s.catalog.Clone(ctx, p)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", clone.ID(), clone.Name())
			return err
		})
	},
}

var presetsCreateCmd = &cobra.Command{
	Use:   "presets:create <parameter-file>...",
	Short: "Create an in-scene preset from parameter files",
	Long: `Create an in-scene preset whose sections are the given parameter files, in order.

The preset id is the --id value followed by a generated "-#" suffix, so
repeated creates with the same --id never collide. Parameter files must have
distinct base names.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd, func(ctx context.Context, s *services) error {
			meta := domain.Metadata{
				ID:           createID,
				Modality:     createModality,
				Content:      createContent,
				Description:  createDesc,
				Publications: createPubs,
			}
			added, err := createPreset(ctx, s.catalog, meta, args)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", added.ID(), added.Name())
			return err
		})
	},
}

// createPreset adds a scene preset built from files. The stored id is
// meta.ID with a generated suffix.
func createPreset(ctx context.Context, catalog *application.Catalog, meta domain.Metadata, files []string) (*domain.ParameterSet, error) {
	p, err := domain.FromFiles(meta, domain.KindInScene, files...)
	if err != nil {
		return nil, err
	}
	return catalog.Scene().Add(ctx, p)
}

var presetsSaveCmd = &cobra.Command{
	Use:   "presets:save <id>",
	Short: "Save an in-scene preset to the user preset folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd, func(ctx context.Context, s *services) error {
			p, err := findPreset(ctx, s.catalog, args[0])
			if err != nil {
				return err
			}
			id, err := s.catalog.Save(ctx, p)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), id)
			return err
		})
	},
}

var presetsDeleteCmd = &cobra.Command{
	Use:   "presets:delete <id>",
	Short: "Delete a user or in-scene preset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd, func(ctx context.Context, s *services) error {
			p, err := findPreset(ctx, s.catalog, args[0])
			if err != nil {
				return err
			}
			if err := s.catalog.Delete(ctx, p); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", p.ID())
			return err
		})
	},
}

var presetsWatchCmd = &cobra.Command{
	Use:   "presets:watch",
	Short: "Reload user presets whenever the preset folder changes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		return withServices(cmd, func(_ context.Context, s *services) error {
			return watchPresets(ctx, cmd.OutOrStdout(), s, watcher.DefaultConfig(s.catalog.User().Location()))
		})
	},
}

// watchPresets prints the user preset ids after every debounced change
// until ctx ends.
func watchPresets(ctx context.Context, w io.Writer, s *services, wcfg watcher.Config) error {
	if err := os.MkdirAll(wcfg.Root, 0o750); err != nil {
		return fmt.Errorf("creating preset folder: %w", err)
	}
	wt, err := watcher.New(wcfg)
	if err != nil {
		return err
	}
	defer func() { _ = wt.Stop() }()
	changes, err := wt.Start()
	if err != nil {
		return err
	}

	report := func() {
		presets, err := s.catalog.User().List(ctx, true)
		if err != nil {
			_, _ = fmt.Fprintf(w, "user presets failed to load: %v\n", err)
			return
		}
		_, _ = fmt.Fprintf(w, "%d user preset(s) in %s\n", len(presets), wcfg.Root)
		for _, p := range presets {
			_, _ = fmt.Fprintf(w, "  %s\t%s\n", p.ID(), p.Name())
		}
	}
	report()
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-changes:
			log.Info(log.CatWatcher, "User presets changed", "root", wcfg.Root)
			report()
		}
	}
}

func init() {
	for _, c := range []*cobra.Command{presetsListCmd, presetsShowCmd, presetsDiffCmd} {
		c.Flags().BoolVar(&presetsJSON, "json", false, "print JSON")
	}
	presetsShowCmd.Flags().BoolVar(&presetsRaw, "raw", false, "print markdown source instead of rendering it")
	presetsShowCmd.Flags().IntVar(&presetsMarkdown, "width", 0, "wrap width (default: terminal width)")
	presetsSectionCmd.Flags().BoolVar(&sectionParsed, "parsed", false, "print the parsed file in canonical form")

	presetsCreateCmd.Flags().StringVar(&createID, "id", "preset", "id prefix; a random -#suffix is appended")
	presetsCreateCmd.Flags().StringVar(&createModality, "modality", "", "imaging modality, e.g. MRI")
	presetsCreateCmd.Flags().StringVar(&createContent, "content", "", "anatomical content, e.g. brain")
	presetsCreateCmd.Flags().StringVar(&createDesc, "description", "", "free-text description")
	presetsCreateCmd.Flags().StringVar(&createPubs, "publications", "", "publication references")

	rootCmd.AddCommand(
		presetsListCmd,
		presetsShowCmd,
		presetsSectionCmd,
		presetsDiffCmd,
		presetsCloneCmd,
		presetsCreateCmd,
		presetsSaveCmd,
		presetsDeleteCmd,
		presetsWatchCmd,
	)
}
