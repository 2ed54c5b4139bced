// Package config provides configuration types and defaults for elastixctl.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/zjrosen/elastixctl/internal/log"
	"github.com/zjrosen/elastixctl/internal/tracing"
)

// Config holds all configuration options for elastixctl.
type Config struct {
	Toolbox      ToolboxConfig      `mapstructure:"toolbox"`
	Presets      PresetsConfig      `mapstructure:"presets"`
	Registration RegistrationConfig `mapstructure:"registration"`
	Scene        SceneConfig        `mapstructure:"scene"`
	Tracing      tracing.Config     `mapstructure:"tracing"`
	Flags        map[string]bool    `mapstructure:"flags"`
}

// ToolboxConfig locates the elastix executables.
type ToolboxConfig struct {
	// CustomDir overrides executable discovery. ELASTIX_TOOLBOX_DIR wins over it.
	CustomDir string `mapstructure:"custom_dir"`
}

// PresetsConfig locates the preset stores.
type PresetsConfig struct {
	// UserDir holds user presets. Default: ~/.elastixctl/presets
	UserDir string `mapstructure:"user_dir"`
	// BuiltinCatalog replaces the bundled catalog with a catalog file on disk.
	BuiltinCatalog string `mapstructure:"builtin_catalog"`
}

// RegistrationConfig holds runner defaults.
type RegistrationConfig struct {
	Verbose                bool   `mapstructure:"verbose"`
	KeepTempFiles          bool   `mapstructure:"keep_temp_files"`
	TempDir                string `mapstructure:"temp_dir"`
	ForceDisplacementField bool   `mapstructure:"force_displacement_field"`
	DefaultPreset          string `mapstructure:"default_preset"`
}

// SceneConfig locates the scene database backing in-session presets.
type SceneConfig struct {
	// Path of the sqlite database. Default: ~/.elastixctl/scene.db
	Path string `mapstructure:"path"`
}

// DefaultPresetID is the preset used when no parameter files are given.
const DefaultPresetID = "default0"

// DefaultTracesFilePath returns ~/.config/elastixctl/traces/traces.jsonl, or
// "" when the home directory is unknown.
func DefaultTracesFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "elastixctl", "traces", "traces.jsonl")
}

// DefaultScenePath returns ~/.elastixctl/scene.db, or "" when the home
// directory is unknown.
func DefaultScenePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".elastixctl", "scene.db")
}

// Defaults returns a Config with default values.
func Defaults() Config {
	tc := tracing.DefaultConfig()
	tc.FilePath = DefaultTracesFilePath()
	return Config{
		Registration: RegistrationConfig{
			DefaultPreset: DefaultPresetID,
		},
		Scene:   SceneConfig{Path: DefaultScenePath()},
		Tracing: tc,
		Flags:   map[string]bool{},
	}
}

// Validate checks the configuration for errors. Empty values use defaults.
func Validate(c Config) error {
	if err := ValidateTracing(c.Tracing); err != nil {
		return err
	}
	if c.Presets.BuiltinCatalog != "" {
		info, err := os.Stat(c.Presets.BuiltinCatalog)
		if err != nil {
			return fmt.Errorf("presets.builtin_catalog: %w", err)
		}
		if info.IsDir() {
			return fmt.Errorf("presets.builtin_catalog must be a file, got directory %s", c.Presets.BuiltinCatalog)
		}
	}
	return nil
}

// ValidateTracing checks tracing configuration for errors.
func ValidateTracing(tc tracing.Config) error {
	if tc.SampleRate < 0.0 || tc.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", tc.SampleRate)
	}
	if tc.Exporter != "" && !slices.Contains(tracing.Exporters, tc.Exporter) {
		return fmt.Errorf("tracing.exporter must be one of %s, got %q", strings.Join(tracing.Exporters, ", "), tc.Exporter)
	}
	if tc.Enabled && tc.Exporter == tracing.ExporterOTLP && tc.OTLPEndpoint == "" {
		return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
	}
	return nil
}

// DefaultConfigTemplate returns the default config as YAML with comments.
func DefaultConfigTemplate() string {
	return `# elastixctl configuration

# elastix toolbox location
toolbox:
  # Directory holding the elastix and transformix executables.
  # The ELASTIX_TOOLBOX_DIR environment variable takes precedence.
  # Set it with 'elastixctl toolbox:set-dir <dir>'.
  custom_dir: ""

# Registration presets
presets:
  # user_dir: ~/.elastixctl/presets       # User preset folders
  # builtin_catalog: /path/to/presets.yaml # Replace the bundled catalog (YAML or legacy XML)

# Registration defaults
registration:
  verbose: false                  # Stream elastix output to the log as it arrives
  keep_temp_files: false          # Keep the working directory after a run
  # temp_dir: /tmp/elastixctl     # Where working directories are created
  force_displacement_field: false # Never use the linear transform fast path
  default_preset: default0        # Preset used when no parameter files are given

# In-session presets
scene:
  # path: ~/.elastixctl/scene.db  # Used when the scene-persistence flag is on

# Tracing of registration runs
# tracing:
#   enabled: false
#   exporter: file                 # none, file, stdout, otlp
#   file_path: ~/.config/elastixctl/traces/traces.jsonl
#   otlp_endpoint: localhost:4317
#   sample_rate: 1.0

# Feature flags
# flags:
#   scene-persistence: true
`
}

// WriteDefaultConfig creates a config file at configPath from the template.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
