// Package toolbox locates the elastix and transformix executables and builds
// the environment they run in.
package toolbox

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/kelseyhightower/envconfig"

	"github.com/zjrosen/elastixctl/internal/log"
)

// ErrToolboxNotFound is returned when no directory holds the elastix executable.
var ErrToolboxNotFound = errors.New("elastix not found")

const (
	// Elastix is the registration executable.
	Elastix = "elastix"
	// Transformix is the resampling executable.
	Transformix = "transformix"
)

// Env is the environment override, read with envconfig.
type Env struct {
	Dir string `envconfig:"ELASTIX_TOOLBOX_DIR"`
}

// candidateDirs are tried relative to the directory of the running binary.
var candidateDirs = []string{
	".",
	"..",
	"../bin",
	"../../bin",
	"../../../bin",
	"../../../bin/Release",
	"../../../bin/Debug",
	"../../../bin/RelWithDebInfo",
	"../../../bin/MinSizeRel",
}

// ExecutableName returns name with the platform executable suffix.
func ExecutableName(name string) string {
	if runtime.GOOS == "windows" {
		return name + ".exe"
	}
	return name
}

// Toolbox is a located elastix installation.
type Toolbox struct {
	BinDir string
	Source string
}

// Locator finds the toolbox. Zero values of its fields fall back to the
// process environment.
type Locator struct {
	// CustomDir is the configured toolbox directory; the env override wins over it.
	CustomDir string
	// Executable returns the path of the running binary.
	Executable func() (string, error)
	// LookPath resolves an executable on PATH.
	LookPath func(string) (string, error)
	// Getenv reads the env override; nil means envconfig on the process env.
	Getenv func() (Env, error)
}

// Locate resolves the bin directory. Precedence: ELASTIX_TOOLBOX_DIR, the
// configured custom directory, directories relative to the running binary,
// then PATH.
func (l Locator) Locate() (*Toolbox, error) {
	env, err := l.env()
	if err != nil {
		return nil, fmt.Errorf("read toolbox environment: %w", err)
	}
	if env.Dir != "" {
		if HasElastix(env.Dir) {
			return found(env.Dir, "env")
		}
		log.Warn(log.CatToolbox, "ELASTIX_TOOLBOX_DIR has no elastix executable", "dir", env.Dir)
	}
	if l.CustomDir != "" {
		if HasElastix(l.CustomDir) {
			return found(l.CustomDir, "config")
		}
		log.Warn(log.CatToolbox, "Custom toolbox directory has no elastix executable", "dir", l.CustomDir)
	}

	executable := l.Executable
	if executable == nil {
		executable = os.Executable
	}
	if self, err := executable(); err == nil {
		base := filepath.Dir(self)
		for _, rel := range candidateDirs {
			dir := filepath.Join(base, filepath.FromSlash(rel))
			if HasElastix(dir) {
				return found(dir, "bundled")
			}
		}
	}

	lookPath := l.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	if p, err := lookPath(ExecutableName(Elastix)); err == nil {
		return found(filepath.Dir(p), "path")
	}
	return nil, ErrToolboxNotFound
}

func (l Locator) env() (Env, error) {
	if l.Getenv != nil {
		return l.Getenv()
	}
	var env Env
	err := envconfig.Process("", &env)
	return env, err
}

func found(dir, source string) (*Toolbox, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve toolbox directory: %w", err)
	}
	log.Debug(log.CatToolbox, "Toolbox located", "dir", abs, "source", source)
	return &Toolbox{BinDir: abs, Source: source}, nil
}

// HasElastix reports whether dir holds an elastix executable.
func HasElastix(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, ExecutableName(Elastix)))
	return err == nil && !info.IsDir()
}

// Path returns the full path of the named executable.
func (t *Toolbox) Path(name string) string {
	return filepath.Join(t.BinDir, ExecutableName(name))
}

// LibDir returns the shared library directory next to the bin directory.
func (t *Toolbox) LibDir() string {
	return filepath.Join(t.BinDir, "..", "lib")
}

// Env returns base with PATH, and LD_LIBRARY_PATH outside Windows, prefixed
// with the toolbox directories. Other entries are kept in order.
func (t *Toolbox) Env(base []string) []string {
	out := make([]string, 0, len(base)+2)
	var path, ldPath string
	var hasPath, hasLD bool
	for _, kv := range base {
		k, v, _ := strings.Cut(kv, "=")
		switch {
		case envKeyEqual(k, "PATH"):
			path, hasPath = v, true
		case k == "LD_LIBRARY_PATH":
			ldPath, hasLD = v, true
		default:
			out = append(out, kv)
		}
	}
	out = append(out, "PATH="+prepend(t.BinDir, path, hasPath))
	if runtime.GOOS != "windows" {
		out = append(out, "LD_LIBRARY_PATH="+prepend(filepath.Clean(t.LibDir()), ldPath, hasLD))
	} else if hasLD {
		out = append(out, "LD_LIBRARY_PATH="+ldPath)
	}
	return out
}

func prepend(dir, list string, ok bool) string {
	if !ok || list == "" {
		return dir
	}
	return dir + string(os.PathListSeparator) + list
}

func envKeyEqual(k, want string) bool {
	if runtime.GOOS == "windows" {
		return strings.EqualFold(k, want)
	}
	return k == want
}
