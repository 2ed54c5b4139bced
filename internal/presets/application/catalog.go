package application

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/zjrosen/elastixctl/internal/cachemanager"
	"github.com/zjrosen/elastixctl/internal/log"
	"github.com/zjrosen/elastixctl/internal/presets/domain"
)

// DefaultPresetID is the built-in preset used when nothing else is selected.
const DefaultPresetID = "default0"

// Catalog errors
var (
	ErrNotDeletable     = errors.New("the preset cannot be deleted")
	ErrNotWritable      = errors.New("only presets stored in the scene can be saved to the user presets")
	ErrNoParameterFiles = errors.New("preset has no parameter files")
)

// StoreError reports a store that failed to list its presets.
type StoreError struct {
	Kind domain.Kind
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s store: %v", e.Kind, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Catalog merges the built-in, user and scene stores, in that order.
//
// The merged list is cached. Mutations through the catalog do not refresh it;
// callers call All(ctx, true) after every add, save or delete.
type Catalog struct {
	builtin *BuiltinStore
	user    *UserStore
	scene   *SceneStore
	stores  []Store

	mu   sync.RWMutex
	sink log.Sink

	cache cachemanager.CacheManager[string, []*domain.ParameterSet]
}

// NewCatalog creates a catalog over the three stores.
func NewCatalog(builtin *BuiltinStore, user *UserStore, scene *SceneStore) *Catalog {
	return &Catalog{
		builtin: builtin,
		user:    user,
		scene:   scene,
		stores:  []Store{builtin, user, scene},
		cache: cachemanager.NewInMemoryCacheManager[string, []*domain.ParameterSet]("catalog",
			cachemanager.NoExpiration, cachemanager.DefaultCleanupInterval),
	}
}

// Stores returns the stores in merge order.
func (c *Catalog) Stores() []Store { return c.stores }

// Builtin returns the built-in store.
func (c *Catalog) Builtin() *BuiltinStore { return c.builtin }

// User returns the user store.
func (c *Catalog) User() *UserStore { return c.user }

// Scene returns the scene store.
func (c *Catalog) Scene() *SceneStore { return c.scene }

// SetLogSink routes user-visible messages of the catalog and every store to sink.
func (c *Catalog) SetLogSink(sink log.Sink) {
	c.mu.Lock()
	c.sink = sink
	c.mu.Unlock()
	for _, s := range c.stores {
		s.SetLogSink(sink)
	}
}

// All returns built-in, user and scene presets concatenated. forceRefresh
// rebuilds the list and every store's own cache.
//
// A store that fails to load is left out and reported as a *StoreError in the
// returned error, which joins all failures; the presets of the other stores
// are still returned. The list is only cached when every store loaded.
func (c *Catalog) All(ctx context.Context, forceRefresh bool) ([]*domain.ParameterSet, error) {
	if !forceRefresh {
		if all, ok := c.cache.Get(ctx, cacheKey); ok {
			return all, nil
		}
	}

	var all []*domain.ParameterSet
	var errs []error
	for _, s := range c.stores {
		presets, err := s.List(ctx, forceRefresh)
		if err != nil {
			log.ErrorErr(log.CatPreset, "preset store failed", err, "store", s.Kind().String())
			errs = append(errs, &StoreError{Kind: s.Kind(), Err: err})
			continue
		}
		all = append(all, presets...)
	}
	if len(errs) > 0 {
		return all, errors.Join(errs...)
	}

	c.cache.Set(ctx, cacheKey, all, cachemanager.NoExpiration)
	return all, nil
}

// Get returns the first preset with the given id, or nil when none matches.
func (c *Catalog) Get(ctx context.Context, id string) (*domain.ParameterSet, error) {
	all, err := c.All(ctx, false)
	for _, p := range all {
		if p.ID() == id {
			return p, nil
		}
	}
	return nil, err
}

// IndexOf returns the index of the first preset with the given id. An id that
// is not found, including "", logs a warning and yields 0, the first preset.
func (c *Catalog) IndexOf(ctx context.Context, id string) (int, error) {
	all, err := c.All(ctx, false)
	for i, p := range all {
		if p.ID() == id {
			return i, nil
		}
	}
	if len(all) == 0 && err != nil {
		return 0, err
	}
	msg := fmt.Sprintf("Registration preset with id '%s' could not be found.  Falling back to default preset.", id)
	log.Warn(log.CatPreset, msg)
	c.status(msg)
	return 0, nil
}

// Delete removes p from the store it came from. Built-in presets are not deletable.
func (c *Catalog) Delete(ctx context.Context, p *domain.ParameterSet) error {
	if !p.Deletable() {
		return fmt.Errorf("delete %s: %w", p.ID(), ErrNotDeletable)
	}
	switch p.Kind() {
	case domain.KindUser:
		return c.user.Delete(ctx, p)
	case domain.KindInScene:
		return c.scene.Delete(ctx, p)
	default:
		return fmt.Errorf("delete %s: %w", p.ID(), ErrNotDeletable)
	}
}

// Clone copies any preset into the scene under a fresh id, renaming its
// content so it does not collide with existing presets.
func (c *Catalog) Clone(ctx context.Context, p *domain.ParameterSet) (*domain.ParameterSet, error) {
	clone, err := c.scene.Add(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("clone %s: %w", p.ID(), err)
	}
	all, _ := c.All(ctx, false)
	if err := clone.SetContent(domain.NextContent(p.Content(), all)); err != nil {
		return nil, fmt.Errorf("rename clone: %w", err)
	}
	return clone, nil
}

// Save copies a scene preset into the user store under a fresh id and
// returns that id. Only writable presets can be saved.
func (c *Catalog) Save(ctx context.Context, p *domain.ParameterSet) (string, error) {
	if !p.Writable() {
		return "", fmt.Errorf("save %s: %w", p.ID(), ErrNotWritable)
	}
	if p.Len() == 0 {
		return "", fmt.Errorf("save %s: %w", p.ID(), ErrNoParameterFiles)
	}
	copied, err := domain.Clone(p, domain.KindUser)
	if err != nil {
		return "", err
	}
	saved, err := c.user.Add(ctx, copied)
	if err != nil {
		c.status(fmt.Sprintf("Saving preset failed: %v", err))
		return "", err
	}
	return saved.ID(), nil
}

func (c *Catalog) status(msg string) {
	c.mu.RLock()
	sink := c.sink
	c.mu.RUnlock()
	sink.Add(msg)
}
