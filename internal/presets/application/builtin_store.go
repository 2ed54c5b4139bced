package application

import (
	"context"
	"fmt"
	"io/fs"

	"github.com/zjrosen/elastixctl/internal/cachemanager"
	"github.com/zjrosen/elastixctl/internal/log"
	"github.com/zjrosen/elastixctl/internal/presets/catalogfile"
	"github.com/zjrosen/elastixctl/internal/presets/domain"
)

// BuiltinStore serves the immutable presets bundled with the application.
type BuiltinStore struct {
	fsys        fs.FS
	catalogPath string
	location    string
	statusSink

	cache *cachemanager.ReadThroughCache[string, []*domain.ParameterSet, struct{}]
}

var _ Store = (*BuiltinStore)(nil)

// NewBuiltinStore creates a store reading the catalog at catalogPath in fsys.
// location is shown to users as the presets folder.
func NewBuiltinStore(fsys fs.FS, catalogPath, location string) *BuiltinStore {
	s := &BuiltinStore{fsys: fsys, catalogPath: catalogPath, location: location}
	s.store = "builtin"
	s.cache = cachemanager.NewReadThroughCache[string, []*domain.ParameterSet, struct{}](
		cachemanager.NewInMemoryCacheManager[string, []*domain.ParameterSet]("builtin-presets",
			cachemanager.NoExpiration, cachemanager.DefaultCleanupInterval),
		s.load,
		false,
	)
	return s
}

func (s *BuiltinStore) Kind() domain.Kind { return domain.KindBuiltIn }

func (s *BuiltinStore) Location() string { return s.location }

// List parses the catalog once. A missing or unparseable catalog is an error;
// entries whose parameter files are missing are skipped with a warning.
func (s *BuiltinStore) List(ctx context.Context, forceRefresh bool) ([]*domain.ParameterSet, error) {
	if forceRefresh {
		return s.cache.Refresh(ctx, cacheKey, struct{}{}, cachemanager.NoExpiration)
	}
	return s.cache.Get(ctx, cacheKey, struct{}{}, cachemanager.NoExpiration)
}

func (s *BuiltinStore) Add(context.Context, *domain.ParameterSet) (*domain.ParameterSet, error) {
	return nil, fmt.Errorf("add built-in preset: %w", ErrUnsupportedOperation)
}

func (s *BuiltinStore) Delete(context.Context, *domain.ParameterSet) error {
	return fmt.Errorf("delete built-in preset: %w", ErrUnsupportedOperation)
}

func (s *BuiltinStore) load(_ context.Context, _ struct{}) ([]*domain.ParameterSet, error) {
	presets, err := catalogfile.Load(s.fsys, s.catalogPath, domain.KindBuiltIn, s.warn)
	if err != nil {
		s.warn(err.Error())
		return nil, fmt.Errorf("load built-in presets: %w", err)
	}
	log.Debug(log.CatPreset, "loaded built-in presets", "count", len(presets))
	return presets, nil
}
