package cachemanager

import (
	"context"
	"sync"
	"time"

	"github.com/zjrosen/elastixctl/internal/log"
)

// LoadFunc produces the value cached under a key.
type LoadFunc[V, I any] func(ctx context.Context, input I) (V, error)

// ReadThroughCache serves values from a CacheManager and calls a LoadFunc on
// a miss. Loads are serialized, so concurrent misses load once. Load errors
// are returned and never cached.
type ReadThroughCache[K ~string, V, I any] struct {
	cache  CacheManager[K, V]
	load   LoadFunc[V, I]
	bypass bool

	loadMu sync.Mutex
}

// NewReadThroughCache wraps cache. With bypass set every Get calls load.
func NewReadThroughCache[K ~string, V, I any](cache CacheManager[K, V], load LoadFunc[V, I], bypass bool) *ReadThroughCache[K, V, I] {
	return &ReadThroughCache[K, V, I]{cache: cache, load: load, bypass: bypass}
}

// Get returns the value under key, loading it from input on a miss.
func (r *ReadThroughCache[K, V, I]) Get(ctx context.Context, key K, input I, ttl time.Duration) (V, error) {
	if r.bypass {
		return r.load(ctx, input)
	}
	if v, ok := r.cache.Get(ctx, key); ok {
		return v, nil
	}

	r.loadMu.Lock()
	defer r.loadMu.Unlock()
	// Another caller may have loaded it while we waited.
	if v, ok := r.cache.Get(ctx, key); ok {
		return v, nil
	}
	return r.fill(ctx, key, input, ttl)
}

// Refresh loads the value again and replaces the cached one. On error the
// old value is dropped.
func (r *ReadThroughCache[K, V, I]) Refresh(ctx context.Context, key K, input I, ttl time.Duration) (V, error) {
	r.loadMu.Lock()
	defer r.loadMu.Unlock()
	_ = r.cache.Delete(ctx, key)
	if r.bypass {
		return r.load(ctx, input)
	}
	return r.fill(ctx, key, input, ttl)
}

// Invalidate drops the value under key.
func (r *ReadThroughCache[K, V, I]) Invalidate(ctx context.Context, key K) {
	_ = r.cache.Delete(ctx, key)
}

func (r *ReadThroughCache[K, V, I]) fill(ctx context.Context, key K, input I, ttl time.Duration) (V, error) {
	v, err := r.load(ctx, input)
	if err != nil {
		log.Debug(log.CatCache, "load failed, nothing cached", "key", string(key), "error", err)
		return v, err
	}
	r.cache.Set(ctx, key, v, ttl)
	return v, nil
}
