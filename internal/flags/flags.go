// Package flags holds the feature flags read from the config file.
package flags

import (
	"maps"
	"slices"

	"github.com/zjrosen/elastixctl/internal/log"
)

const (
	// FlagScenePersistence stores in-session presets in the sqlite scene
	// database instead of an in-memory scene that lives for one command.
	FlagScenePersistence = "scene-persistence"

	// FlagRunTUI makes `register` open the interactive run view by default.
	FlagRunTUI = "run-tui"
)

// Known lists every flag the binary reads, sorted.
func Known() []string {
	return []string{FlagRunTUI, FlagScenePersistence}
}

// Registry is a read-only view of the configured flags.
type Registry struct {
	flags map[string]bool
}

// New copies flags into a Registry. A nil map disables everything.
func New(flags map[string]bool) *Registry {
	r := &Registry{flags: make(map[string]bool, len(flags))}
	maps.Copy(r.flags, flags)
	for name := range r.flags {
		if !slices.Contains(Known(), name) {
			log.Warn(log.CatConfig, "Unknown feature flag in config", "flag", name)
		}
	}
	log.Debug(log.CatConfig, "Feature flags initialized", "count", len(r.flags))
	return r
}

// Enabled reports whether name is set to true. Unset flags and a nil
// registry report false.
func (r *Registry) Enabled(name string) bool {
	if r == nil {
		return false
	}
	return r.flags[name]
}

// All returns a copy of the configured flags.
func (r *Registry) All() map[string]bool {
	if r == nil {
		return map[string]bool{}
	}
	return maps.Clone(r.flags)
}
