// Package cache provides a generic, TTL-based cache manager fronting
// the sqlite repositories, plus a read-through helper for keying a
// cache directly off an expensive lookup function.
package cache

import (
	"context"
	"time"
)

// Manager is a generic key/value cache with TTL semantics.
type Manager[K comparable, V any] interface {
	Get(ctx context.Context, key K) (V, bool)
	GetMultiple(ctx context.Context, keys []K) (map[K]V, bool)
	GetWithRefresh(ctx context.Context, key K, ttl time.Duration) (V, bool)
	Set(ctx context.Context, key K, value V, ttl time.Duration)
	Delete(ctx context.Context, keys ...K) error
	Flush(ctx context.Context) error
}
