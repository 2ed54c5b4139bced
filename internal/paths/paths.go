// Package paths provides path resolution utilities.
package paths

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// AppDirName is the per-user application directory under the home directory.
const AppDirName = ".elastixctl"

// AppDir returns ~/.elastixctl. An empty home directory resolves to
// ./.elastixctl so the tool still works in stripped-down containers.
func AppDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return AppDirName
	}
	return filepath.Join(home, AppDirName)
}

// UserPresetsDir resolves the user preset directory.
//
// Input normalization:
//   - "" -> "~/.elastixctl/presets"
//   - "~/x" -> "<home>/x"
//   - anything else is cleaned and returned as is
func UserPresetsDir(configured string) string {
	if configured == "" {
		return filepath.Join(AppDir(), "presets")
	}
	return ExpandHome(configured)
}

// TempBase returns the directory under which registration working
// directories are created. An empty value means <os temp>/elastixctl.
func TempBase(configured string) string {
	if configured == "" {
		return filepath.Join(os.TempDir(), "elastixctl")
	}
	return ExpandHome(configured)
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(path string) string {
	if len(path) >= 2 && path[0] == '~' && (path[1] == '/' || path[1] == filepath.Separator) {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return filepath.Clean(path)
}

// TimestampName formats t as yyyyMMdd_hhmmss_mmm.
func TimestampName(t time.Time) string {
	return fmt.Sprintf("%s_%03d", t.Format("20060102_150405"), t.Nanosecond()/int(time.Millisecond))
}

// CreateTimestampDir creates a fresh directory under base named after the
// current time. A name already taken in the same millisecond gets a "-N"
// suffix.
func CreateTimestampDir(base string) (string, error) {
	if err := os.MkdirAll(base, 0750); err != nil {
		return "", fmt.Errorf("create temp base: %w", err)
	}
	name := TimestampName(time.Now())
	dir := filepath.Join(base, name)
	for i := 1; ; i++ {
		err := os.Mkdir(dir, 0750)
		if err == nil {
			return dir, nil
		}
		if !errors.Is(err, os.ErrExist) || i > maxTimestampSuffix {
			return "", fmt.Errorf("create temp directory: %w", err)
		}
		dir = filepath.Join(base, fmt.Sprintf("%s-%d", name, i))
	}
}

const maxTimestampSuffix = 100
