// Package cache provides an in-process, TTL-based read-through cache with
// single-flight loading and pattern-based invalidation.
// This is part of the platform layer and contains no business logic.
package cache

import (
	"context"
	"path"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const defaultSweepInterval = time.Second

type entry[V any] struct {
	value      V
	insertedAt time.Time
	expiresAt  time.Time
}

func (e entry[V]) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// Cache is a concurrency-safe key/value cache. Values expire after their TTL.
// Exact-key invalidation takes effect immediately; glob-pattern invalidation
// is queued and applied by the sweep loop so bursts of list-view invalidations
// never add synchronous cost to the write path.
type Cache[V any] struct {
	mu      sync.RWMutex
	entries map[string]entry[V]

	patternMu sync.Mutex
	pending   []string

	flight        singleflight.Group
	sweepInterval time.Duration
}

// New creates an empty cache. A sweepInterval of zero falls back to one second.
func New[V any](sweepInterval time.Duration) *Cache[V] {
	if sweepInterval <= 0 {
		sweepInterval = defaultSweepInterval
	}
	return &Cache[V]{
		entries:       make(map[string]entry[V]),
		sweepInterval: sweepInterval,
	}
}

// Get returns the cached value for key, or ok=false on a miss or an expired entry.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || e.expired(time.Now()) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key with the given TTL.
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	now := time.Now()
	c.mu.Lock()
	c.entries[key] = entry[V]{value: value, insertedAt: now, expiresAt: now.Add(ttl)}
	c.mu.Unlock()
}

// GetOrLoad returns the cached value for key, invoking loader on a miss.
// Concurrent callers for the same uncached key share a single loader
// invocation; all of them receive the winning loader's result.
func (c *Cache[V]) GetOrLoad(ctx context.Context, key string, ttl time.Duration, loader func(ctx context.Context) (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	result, err, _ := c.flight.Do(key, func() (interface{}, error) {
		// A concurrent winner may have populated the entry while this
		// caller was waiting on the lock.
		if v, ok := c.Get(key); ok {
			return v, nil
		}

		v, err := loader(ctx)
		if err != nil {
			return nil, err
		}

		c.Set(key, v, ttl)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}

	return result.(V), nil
}

// Invalidate deletes exact keys immediately.
func (c *Cache[V]) Invalidate(keys ...string) {
	c.mu.Lock()
	for _, key := range keys {
		delete(c.entries, key)
	}
	c.mu.Unlock()
}

// InvalidatePattern queues a glob pattern (path.Match syntax) for deletion on
// the next sweep.
func (c *Cache[V]) InvalidatePattern(pattern string) {
	c.patternMu.Lock()
	c.pending = append(c.pending, pattern)
	c.patternMu.Unlock()
}

// Run applies queued pattern invalidations and evicts expired entries on a
// fixed interval until the context is cancelled.
func (c *Cache[V]) Run(ctx context.Context) {
	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

// Sweep applies all queued pattern invalidations and drops expired entries.
func (c *Cache[V]) Sweep() {
	c.patternMu.Lock()
	patterns := c.pending
	c.pending = nil
	c.patternMu.Unlock()

	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for key, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, key)
			continue
		}
		for _, pattern := range patterns {
			if matched, err := path.Match(pattern, key); err == nil && matched {
				delete(c.entries, key)
				break
			}
		}
	}
}

// Len returns the number of live entries, counting not-yet-swept expired ones.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
