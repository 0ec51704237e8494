// Package cache implements the process-wide upstream response cache.
//
// Entries are valid for a fixed TTL after they are stored. Expired entries are
// ignored on lookup and removed by Sweep. Concurrent misses on the same key
// share a single upstream fetch, and only successful fetches are stored.
package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/murairam/my-spotify-wrapped-sub000/internal/metrics"
)

const (
	// DefaultTTL is the freshness window of every upstream response cache.
	DefaultTTL = 5 * time.Minute

	// DefaultFetchTimeout bounds a shared fetch once it no longer belongs
	// to a single caller.
	DefaultFetchTimeout = 15 * time.Second
)

// FetchFunc performs the real upstream request on a miss.
type FetchFunc[V any] func(ctx context.Context) (V, error)

type entry[V any] struct {
	payload  V
	storedAt time.Time
}

// Cache is a TTL key/value cache safe for concurrent use.
type Cache[V any] struct {
	name         string
	ttl          time.Duration
	fetchTimeout time.Duration
	now          func() time.Time

	mu      sync.RWMutex
	entries map[string]entry[V]

	group singleflight.Group
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	now          func() time.Time
	fetchTimeout time.Duration
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithFetchTimeout overrides DefaultFetchTimeout.
func WithFetchTimeout(d time.Duration) Option {
	return func(o *options) { o.fetchTimeout = d }
}

// New creates a cache. name labels the cache in metrics; a ttl <= 0 means
// DefaultTTL.
func New[V any](name string, ttl time.Duration, opts ...Option) *Cache[V] {
	o := options{now: time.Now, fetchTimeout: DefaultFetchTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache[V]{
		name:         name,
		ttl:          ttl,
		fetchTimeout: o.fetchTimeout,
		now:          o.now,
		entries:      make(map[string]entry[V]),
	}
}

// TTL returns the freshness window.
func (c *Cache[V]) TTL() time.Duration {
	return c.ttl
}

// Get returns the payload stored under key if it is still fresh.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || !c.fresh(e) {
		var zero V
		return zero, false
	}
	return e.payload, true
}

// Set stores payload under key, replacing any previous entry.
func (c *Cache[V]) Set(key string, payload V) {
	c.mu.Lock()
	c.entries[key] = entry[V]{payload: payload, storedAt: c.now()}
	c.mu.Unlock()
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// GetOrFetch returns the cached payload for key, or calls fetch on a miss and
// caches its result. Concurrent misses for the same key wait for one fetch.
// A failed fetch is returned to every waiter and nothing is stored.
func (c *Cache[V]) GetOrFetch(ctx context.Context, key string, fetch FetchFunc[V]) (V, error) {
	if v, ok := c.Get(key); ok {
		metrics.CacheHits.WithLabelValues(c.name).Inc()
		return v, nil
	}
	metrics.CacheMisses.WithLabelValues(c.name).Inc()

	// The shared fetch outlives any single waiter's cancellation.
	fetchCtx := context.WithoutCancel(ctx)

	ch := c.group.DoChan(key, func() (any, error) {
		if v, ok := c.Get(key); ok {
			return v, nil
		}

		fctx, cancel := context.WithTimeout(fetchCtx, c.fetchTimeout)
		defer cancel()

		v, err := fetch(fctx)
		if err != nil {
			metrics.CacheFetchErrors.WithLabelValues(c.name).Inc()
			return v, err
		}
		c.Set(key, v)
		return v, nil
	})

	select {
	case res := <-ch:
		if res.Shared {
			metrics.CacheShared.WithLabelValues(c.name).Inc()
		}
		if res.Err != nil {
			var zero V
			return zero, res.Err
		}
		v, _ := res.Val.(V)
		return v, nil
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// Sweep removes expired entries and returns how many were dropped.
func (c *Cache[V]) Sweep() int {
	c.mu.Lock()
	removed := 0
	for k, e := range c.entries {
		if !c.fresh(e) {
			delete(c.entries, k)
			removed++
		}
	}
	c.mu.Unlock()

	if removed > 0 {
		metrics.CacheEvictions.WithLabelValues(c.name).Add(float64(removed))
	}
	metrics.CacheEntries.WithLabelValues(c.name).Set(float64(c.Len()))
	return removed
}

// StartJanitor sweeps every interval until ctx is done.
func (c *Cache[V]) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Sweep()
			}
		}
	}()
}

func (c *Cache[V]) fresh(e entry[V]) bool {
	return c.now().Sub(e.storedAt) < c.ttl
}
