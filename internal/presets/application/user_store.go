package application

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	stdpath "path"
	"path/filepath"
	"sort"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/zjrosen/elastixctl/internal/cachemanager"
	"github.com/zjrosen/elastixctl/internal/log"
	"github.com/zjrosen/elastixctl/internal/presets/catalogfile"
	"github.com/zjrosen/elastixctl/internal/presets/domain"
)

// metadataPattern matches every metadata file below the user preset root.
const metadataPattern = "**/*.{yaml,yml,xml}"

// UserStore keeps one preset per folder below a root directory.
type UserStore struct {
	root string
	statusSink

	locMu     sync.Mutex
	locations map[*domain.ParameterSet]string

	cache *cachemanager.ReadThroughCache[string, []*domain.ParameterSet, struct{}]
}

var _ Store = (*UserStore)(nil)

// NewUserStore creates a store rooted at root. The directory is created on
// first use.
func NewUserStore(root string) *UserStore {
	s := &UserStore{root: root, locations: make(map[*domain.ParameterSet]string)}
	s.store = "user"
	s.cache = cachemanager.NewReadThroughCache[string, []*domain.ParameterSet, struct{}](
		cachemanager.NewInMemoryCacheManager[string, []*domain.ParameterSet]("user-presets",
			cachemanager.NoExpiration, cachemanager.DefaultCleanupInterval),
		s.load,
		false,
	)
	return s
}

func (s *UserStore) Kind() domain.Kind { return domain.KindUser }

func (s *UserStore) Location() string { return s.root }

// List scans the root for metadata files. A metadata file describing more
// than one preset fails the whole store with ErrMultiplePresets.
func (s *UserStore) List(ctx context.Context, forceRefresh bool) ([]*domain.ParameterSet, error) {
	if forceRefresh {
		return s.cache.Refresh(ctx, cacheKey, struct{}{}, cachemanager.NoExpiration)
	}
	return s.cache.Get(ctx, cacheKey, struct{}{}, cachemanager.NoExpiration)
}

// FolderOf returns the folder a listed preset was loaded from.
func (s *UserStore) FolderOf(p *domain.ParameterSet) (string, bool) {
	s.locMu.Lock()
	defer s.locMu.Unlock()
	dir, ok := s.locations[p]
	return dir, ok
}

// Add writes p to a new folder named by its id: one file per section and a
// preset.yaml metadata file. The folder must not exist yet. The existence
// check and the create are not atomic; two writers racing on one id can both
// pass the check, which is accepted for a single-user tool.
func (s *UserStore) Add(ctx context.Context, p *domain.ParameterSet) (*domain.ParameterSet, error) {
	if err := os.MkdirAll(s.root, 0750); err != nil {
		return nil, fmt.Errorf("create user preset directory: %w", err)
	}

	dir := filepath.Join(s.root, p.ID())
	if filepath.Dir(dir) != filepath.Clean(s.root) {
		return nil, fmt.Errorf("save preset %q: %w", p.ID(), ErrInvalidID)
	}
	if _, err := os.Stat(dir); err == nil {
		return nil, fmt.Errorf("save preset %s: %w", p.ID(), ErrAlreadyExists)
	}
	if err := os.Mkdir(dir, 0750); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("save preset %s: %w", p.ID(), ErrAlreadyExists)
		}
		return nil, fmt.Errorf("create preset folder: %w", err)
	}

	saved, err := s.write(dir, p)
	if err != nil {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			log.ErrorErr(log.CatPreset, "cleanup of partial preset failed", rmErr, "dir", dir)
		}
		return nil, err
	}

	s.locMu.Lock()
	s.locations[saved] = dir
	s.locMu.Unlock()
	log.Info(log.CatPreset, "saved user preset", "id", p.ID(), "dir", dir)
	return saved, nil
}

func (s *UserStore) write(dir string, p *domain.ParameterSet) (*domain.ParameterSet, error) {
	files, err := p.Materialize(dir)
	if err != nil {
		return nil, err
	}
	meta, err := catalogfile.Encode(catalogfile.EntryFor(p))
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(dir, catalogfile.MetadataFileName), meta, 0600); err != nil {
		return nil, fmt.Errorf("write preset metadata: %w", err)
	}
	return domain.FromFiles(p.Metadata(), domain.KindUser, files...)
}

// Delete removes the folder p was loaded from, recursively.
func (s *UserStore) Delete(_ context.Context, p *domain.ParameterSet) error {
	s.locMu.Lock()
	dir, ok := s.locations[p]
	if ok {
		delete(s.locations, p)
	}
	s.locMu.Unlock()
	if !ok {
		return fmt.Errorf("delete preset %s: %w", p.ID(), ErrUnknownPreset)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("delete preset folder: %w", err)
	}
	log.Info(log.CatPreset, "deleted user preset", "id", p.ID(), "dir", dir)
	return nil
}

func (s *UserStore) load(_ context.Context, _ struct{}) ([]*domain.ParameterSet, error) {
	if err := os.MkdirAll(s.root, 0750); err != nil {
		return nil, fmt.Errorf("create user preset directory: %w", err)
	}

	fsys := os.DirFS(s.root)
	matches, err := doublestar.Glob(fsys, metadataPattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("scan user presets: %w", err)
	}
	sort.Strings(matches)

	var presets []*domain.ParameterSet
	locations := make(map[*domain.ParameterSet]string)
	for _, m := range matches {
		found, err := catalogfile.Load(fsys, m, domain.KindUser, s.warn)
		if err != nil {
			s.warn(fmt.Sprintf("Cannot load preset %s: %v", m, err))
			continue
		}
		if len(found) > 1 {
			err := fmt.Errorf("%s: %w", m, ErrMultiplePresets)
			s.warn(err.Error())
			return nil, err
		}
		for _, p := range found {
			locations[p] = filepath.Join(s.root, filepath.FromSlash(stdpath.Dir(m)))
		}
		presets = append(presets, found...)
	}

	s.locMu.Lock()
	s.locations = locations
	s.locMu.Unlock()

	log.Debug(log.CatPreset, "loaded user presets", "count", len(presets), "dir", s.root)
	return presets, nil
}
