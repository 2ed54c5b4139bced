package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/elastixctl/internal/config"
	"github.com/zjrosen/elastixctl/internal/flags"
	"github.com/zjrosen/elastixctl/internal/log"
)

func init() {
	// Query the terminal background before any Bubble Tea program starts so
	// the OSC 11 reply does not race the run view's input loop.
	// See: https://github.com/charmbracelet/bubbletea/issues/1036
	_ = lipgloss.HasDarkBackground()
}

// localConfigPath is used when no config file exists anywhere.
const localConfigPath = ".elastixctl/config.yaml"

var (
	version   = "dev"
	cfgFile   string
	debugFlag bool
	cfg       config.Config
	flagReg   *flags.Registry
	logClose  func()
)

var rootCmd = &cobra.Command{
	Use:   "elastixctl",
	Short: "Manage elastix registration presets and run registrations",
	Long: `elastixctl manages registration presets (ordered sets of elastix parameter
files) from three stores, built-in, user folders and the current scene, and runs
elastix and transformix to register a moving volume to a fixed volume.`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(*cobra.Command, []string) {
		if logClose != nil {
			logClose()
			logClose = nil
		}
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: ~/.config/elastixctl/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&debugFlag, "debug", "d", false,
		"write a debug log (path from ELASTIXCTL_LOG, default debug.log)")
}

func initConfig() {
	defaults := config.Defaults()
	viper.SetDefault("registration.default_preset", defaults.Registration.DefaultPreset)
	viper.SetDefault("scene.path", defaults.Scene.Path)
	viper.SetDefault("tracing.enabled", defaults.Tracing.Enabled)
	viper.SetDefault("tracing.exporter", defaults.Tracing.Exporter)
	viper.SetDefault("tracing.file_path", defaults.Tracing.FilePath)
	viper.SetDefault("tracing.otlp_endpoint", defaults.Tracing.OTLPEndpoint)
	viper.SetDefault("tracing.sample_rate", defaults.Tracing.SampleRate)
	viper.SetDefault("tracing.service_name", defaults.Tracing.ServiceName)

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Lookup order:
		// 1. .elastixctl/config.yaml (current directory)
		// 2. ~/.config/elastixctl/config.yaml
		if _, err := os.Stat(localConfigPath); err == nil {
			viper.SetConfigFile(localConfigPath)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(filepath.Join(home, ".config", "elastixctl"))
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			if writeErr := config.WriteDefaultConfig(localConfigPath); writeErr == nil {
				viper.SetConfigFile(localConfigPath)
				_ = viper.ReadInConfig()
			}
		}
	}

	_ = viper.Unmarshal(&cfg)
}

// setup opens the debug log and validates the loaded config.
func setup(_ *cobra.Command, _ []string) error {
	if debugFlag || os.Getenv("ELASTIXCTL_DEBUG") != "" {
		logPath := os.Getenv("ELASTIXCTL_LOG")
		if logPath == "" {
			logPath = "debug.log"
		}
		cleanup, err := log.InitWithTeaLog(logPath, "elastixctl")
		if err != nil {
			return fmt.Errorf("initializing logging: %w", err)
		}
		logClose = cleanup
		if lvl := os.Getenv("ELASTIXCTL_LOG_LEVEL"); lvl != "" {
			level, err := log.ParseLevel(lvl)
			if err != nil {
				return err
			}
			log.SetMinLevel(level)
		}
		log.Info(log.CatConfig, "elastixctl starting", "version", version, "config", viper.ConfigFileUsed())
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	flagReg = flags.New(cfg.Flags)
	return nil
}

// configFilePath is where config edits are written.
func configFilePath() string {
	if p := viper.ConfigFileUsed(); p != "" {
		return p
	}
	return localConfigPath
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags).
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
