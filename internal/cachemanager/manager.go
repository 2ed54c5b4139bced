// Package cachemanager caches preset listings in memory, keyed by store.
package cachemanager

import (
	"context"
	"time"
)

// CacheManager stores values of one type under string-like keys.
type CacheManager[K ~string, V any] interface {
	Get(ctx context.Context, key K) (V, bool)
	Set(ctx context.Context, key K, value V, ttl time.Duration)
	Delete(ctx context.Context, keys ...K) error
	Flush(ctx context.Context) error
}
