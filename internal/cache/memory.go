// Package cache provides an in-process, read-through TTL cache for
// slow-changing external reads such as FX rates and account positions.
//
// Reads within the TTL return the stored value untouched. A read past the
// TTL refreshes synchronously through the caller-supplied function, while
// concurrent refreshes of the same key collapse into a single upstream
// call. A failed refresh never evicts a still-useful value: the cache
// serves the last good value and logs the failure instead of propagating
// it, so a flaky upstream degrades staleness rather than availability.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// RefreshFunc loads the current value for a key from its upstream source.
type RefreshFunc[V any] func(ctx context.Context) (V, error)

type entry[V any] struct {
	value       V
	refreshedAt time.Time
}

// Cache is a generic keyed TTL cache. The zero value is not usable; use New.
type Cache[K comparable, V any] struct {
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu      sync.RWMutex
	entries map[K]entry[V]
	flight  singleflight.Group
}

// New creates a Cache whose entries stay fresh for defaultTTL after each
// successful refresh. A non-positive defaultTTL makes every read refresh.
func New[K comparable, V any](defaultTTL time.Duration, logger *slog.Logger) *Cache[K, V] {
	return &Cache[K, V]{
		ttl:     defaultTTL,
		logger:  logger.With(slog.String("component", "cache")),
		now:     time.Now,
		entries: make(map[K]entry[V]),
	}
}

// GetOrRefresh reads key, refreshing through fn when the entry is missing
// or older than the cache's default TTL.
func (c *Cache[K, V]) GetOrRefresh(ctx context.Context, key K, fn RefreshFunc[V]) (V, error) {
	return c.GetOrRefreshTTL(ctx, key, c.ttl, fn)
}

// GetOrRefreshTTL is GetOrRefresh with a per-call freshness bound. Callers
// waiting on an in-flight refresh of the same key receive its result
// instead of starting their own.
func (c *Cache[K, V]) GetOrRefreshTTL(ctx context.Context, key K, ttl time.Duration, fn RefreshFunc[V]) (V, error) {
	if v, ok := c.freshValue(key, ttl); ok {
		return v, nil
	}

	flightKey := fmt.Sprint(key)
	v, err, _ := c.flight.Do(flightKey, func() (any, error) {
		// A caller that lost the race re-checks once inside the flight so
		// the upstream is hit at most once per expiry.
		if v, ok := c.freshValue(key, ttl); ok {
			return v, nil
		}
		val, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(key, val)
		return val, nil
	})
	if err == nil {
		return v.(V), nil
	}

	if stale, ok := c.Peek(key); ok {
		c.logger.Warn("cache refresh failed, serving stale value",
			slog.String("key", flightKey),
			slog.String("error", err.Error()),
		)
		return stale, nil
	}

	var zero V
	return zero, fmt.Errorf("cache: refresh %s: %w", flightKey, err)
}

// Peek returns the stored value for key regardless of age.
func (c *Cache[K, V]) Peek(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value for key with a fresh timestamp.
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[V]{value: value, refreshedAt: c.now()}
}

// Invalidate drops the entry for key, forcing the next read to refresh.
func (c *Cache[K, V]) Invalidate(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len reports the number of stored entries.
func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache[K, V]) freshValue(key K, ttl time.Duration) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	var zero V
	if !ok {
		return zero, false
	}
	if c.now().Sub(e.refreshedAt) > ttl {
		return zero, false
	}
	return e.value, true
}
