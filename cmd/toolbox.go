package cmd

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/zjrosen/elastixctl/internal/config"
	"github.com/zjrosen/elastixctl/internal/log"
	"github.com/zjrosen/elastixctl/internal/paths"
	"github.com/zjrosen/elastixctl/internal/toolbox"
)

var setDirForce bool

var toolboxLocateCmd = &cobra.Command{
	Use:   "toolbox:locate",
	Short: "Show where the elastix executables are found",
	Long: `Show the directory the elastix and transformix executables are run from
and how it was found. Search order: ELASTIX_TOOLBOX_DIR, toolbox.custom_dir,
directories next to this binary, then PATH.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		tb, err := toolbox.Locator{CustomDir: cfg.Toolbox.CustomDir}.Locate()
		if err != nil {
			return err
		}
		return printToolbox(cmd.OutOrStdout(), tb)
	},
}

func printToolbox(w io.Writer, tb *toolbox.Toolbox) error {
	_, err := fmt.Fprintf(w, "source:      %s\nelastix:     %s\ntransformix: %s\n",
		tb.Source, tb.Path(toolbox.Elastix), tb.Path(toolbox.Transformix))
	return err
}

var toolboxSetDirCmd = &cobra.Command{
	Use:   "toolbox:set-dir <dir>",
	Short: "Persist a custom toolbox directory in the config file",
	Long: `Write toolbox.custom_dir to the config file. Pass "" to clear it. The
directory must contain an elastix executable unless --force is given.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setToolboxDir(cmd.OutOrStdout(), configFilePath(), args[0], setDirForce)
	},
}

func setToolboxDir(w io.Writer, configPath, dir string, force bool) error {
	if dir != "" {
		abs, err := filepath.Abs(paths.ExpandHome(dir))
		if err != nil {
			return fmt.Errorf("resolving %s: %w", dir, err)
		}
		dir = abs
		if !force && !toolbox.HasElastix(dir) {
			return fmt.Errorf("%s: %w (use --force to save anyway)", dir, toolbox.ErrToolboxNotFound)
		}
	}
	if err := config.SaveToolboxDir(configPath, dir); err != nil {
		return err
	}
	log.Info(log.CatConfig, "Saved toolbox directory", "dir", dir, "config", configPath)
	if dir == "" {
		_, err := fmt.Fprintf(w, "cleared toolbox.custom_dir in %s\n", configPath)
		return err
	}
	_, err := fmt.Fprintf(w, "toolbox.custom_dir = %s (%s)\n", dir, configPath)
	return err
}

var pathsCmd = &cobra.Command{
	Use:   "paths",
	Short: "Show the folders elastixctl reads and writes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return printPaths(cmd.OutOrStdout(), cfg, configFilePath())
	},
}

func printPaths(w io.Writer, c config.Config, configPath string) error {
	builtin := bundledLocation
	if c.Presets.BuiltinCatalog != "" {
		builtin = paths.ExpandHome(c.Presets.BuiltinCatalog)
	}
	scenePath := c.Scene.Path
	if scenePath == "" {
		scenePath = config.DefaultScenePath()
	}
	rows := [][2]string{
		{"config", configPath},
		{"builtin presets", builtin},
		{"user presets", paths.UserPresetsDir(c.Presets.UserDir)},
		{"scene database", paths.ExpandHome(scenePath)},
		{"temp", paths.TempBase(c.Registration.TempDir)},
	}
	for _, r := range rows {
		if _, err := fmt.Fprintf(w, "%-16s %s\n", r[0]+":", r[1]); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	toolboxSetDirCmd.Flags().BoolVar(&setDirForce, "force", false, "save even if no elastix executable is found")
	rootCmd.AddCommand(toolboxLocateCmd, toolboxSetDirCmd, pathsCmd)
}
