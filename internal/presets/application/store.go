// Package application implements the preset stores and the merged catalog.
package application

import (
	"context"
	"errors"
	"sync"

	"github.com/zjrosen/elastixctl/internal/log"
	"github.com/zjrosen/elastixctl/internal/presets/domain"
)

// Store errors
var (
	ErrUnsupportedOperation = errors.New("operation not supported by this preset store")
	ErrMultiplePresets      = errors.New("user presets are intended to have one preset per metadata file only")
	ErrAlreadyExists        = errors.New("preset folder already exists")
	ErrUnknownPreset        = errors.New("preset does not belong to this store")
	ErrNotPresetNode        = errors.New("scene node is not an elastix preset")
	ErrInvalidID            = errors.New("preset id cannot be used as a folder name")
)

// Store is one source of presets.
type Store interface {
	// Kind is the kind of every preset the store returns.
	Kind() domain.Kind
	// List returns the store's presets, cached until forceRefresh is set.
	List(ctx context.Context, forceRefresh bool) ([]*domain.ParameterSet, error)
	// Add persists a copy of p in the store and returns the stored preset.
	Add(ctx context.Context, p *domain.ParameterSet) (*domain.ParameterSet, error)
	// Delete removes p from the store.
	Delete(ctx context.Context, p *domain.ParameterSet) error
	// Location describes where the store keeps its presets.
	Location() string
	// SetLogSink routes user-visible warnings to sink.
	SetLogSink(sink log.Sink)
}

// cacheKey is the single read-through cache key each store uses for its list.
const cacheKey = "presets"

// statusSink holds the log sink a store reports user-visible warnings to.
type statusSink struct {
	mu    sync.RWMutex
	sink  log.Sink
	store string
}

func (s *statusSink) SetLogSink(sink log.Sink) {
	s.mu.Lock()
	s.sink = sink
	s.mu.Unlock()
}

func (s *statusSink) warn(msg string) {
	log.Warn(log.CatPreset, msg, "store", s.store)
	s.mu.RLock()
	sink := s.sink
	s.mu.RUnlock()
	sink.Add(msg)
}
