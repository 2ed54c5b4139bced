package cachemanager

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/zjrosen/elastixctl/internal/log"
)

const (
	DefaultExpiration      = 10 * time.Minute
	DefaultCleanupInterval = 30 * time.Minute
	// NoExpiration keeps an entry until it is deleted or flushed.
	NoExpiration = gocache.NoExpiration
)

// InMemoryCacheManager is a CacheManager backed by go-cache. The name only
// labels log lines.
type InMemoryCacheManager[K ~string, V any] struct {
	name  string
	items *gocache.Cache
}

var _ CacheManager[string, []string] = (*InMemoryCacheManager[string, []string])(nil)

// NewInMemoryCacheManager creates an empty cache. Expired entries are swept
// every cleanupInterval.
func NewInMemoryCacheManager[K ~string, V any](name string, defaultExpiration, cleanupInterval time.Duration) *InMemoryCacheManager[K, V] {
	return &InMemoryCacheManager[K, V]{
		name:  name,
		items: gocache.New(defaultExpiration, cleanupInterval),
	}
}

// Get returns the value stored under key. An entry of another type counts
// as a miss.
func (c *InMemoryCacheManager[K, V]) Get(_ context.Context, key K) (V, bool) {
	var zero V
	raw, ok := c.items.Get(string(key))
	if !ok {
		return zero, false
	}
	v, ok := raw.(V)
	if !ok {
		log.Error(log.CatCache, "cached value has unexpected type", "cache", c.name, "key", string(key))
		return zero, false
	}
	return v, true
}

func (c *InMemoryCacheManager[K, V]) Set(_ context.Context, key K, value V, ttl time.Duration) {
	c.items.Set(string(key), value, ttl)
}

// Delete drops the given keys. Missing keys are ignored.
func (c *InMemoryCacheManager[K, V]) Delete(_ context.Context, keys ...K) error {
	for _, k := range keys {
		c.items.Delete(string(k))
	}
	if len(keys) > 0 {
		log.Debug(log.CatCache, "cache entries dropped", "cache", c.name, "count", len(keys))
	}
	return nil
}

func (c *InMemoryCacheManager[K, V]) Flush(_ context.Context) error {
	c.items.Flush()
	return nil
}

// Len returns the number of entries, expired ones included until swept.
func (c *InMemoryCacheManager[K, V]) Len() int {
	return c.items.ItemCount()
}
