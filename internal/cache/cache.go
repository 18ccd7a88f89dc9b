// Package cache provides the response cache shared by the HTTP API wrappers.
//
// Entries expire lazily: an expired entry is dropped the next time it is read.
// There is no background sweep and no capacity bound.
package cache

import (
	"net/url"
	"sync"
	"sync/atomic"
	"time"
)

// Recorder receives cache events. Implementations must be safe for concurrent use.
type Recorder interface {
	Hit()
	Miss()
	Set()
	Invalidate()
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTLCache maps string keys to values with a per-entry expiry.
type TTLCache[V any] struct {
	mu    sync.RWMutex
	items map[string]entry[V]
	now   func() time.Time

	recorder Recorder
	stats    counters
}

// Option configures a TTLCache.
type Option func(*options)

type options struct {
	now      func() time.Time
	recorder Recorder
}

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithRecorder reports hits, misses, sets and invalidations to r.
func WithRecorder(r Recorder) Option {
	return func(o *options) { o.recorder = r }
}

// New creates an empty TTLCache.
func New[V any](opts ...Option) *TTLCache[V] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &TTLCache[V]{
		items:    make(map[string]entry[V]),
		now:      o.now,
		recorder: o.recorder,
	}
}

// Get returns the value for key if it exists and now < expiry.
func (c *TTLCache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()

	if ok && c.now().Before(e.expiresAt) {
		c.stats.hits.Add(1)
		if c.recorder != nil {
			c.recorder.Hit()
		}
		return e.value, true
	}

	if ok {
		c.mu.Lock()
		// Re-check under the write lock; a concurrent Set may have refilled it.
		if cur, still := c.items[key]; still && !c.now().Before(cur.expiresAt) {
			delete(c.items, key)
		}
		c.mu.Unlock()
	}

	c.stats.misses.Add(1)
	if c.recorder != nil {
		c.recorder.Miss()
	}
	var zero V
	return zero, false
}

// Set stores value under key for ttl, overwriting any existing entry.
func (c *TTLCache[V]) Set(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	c.items[key] = entry[V]{value: value, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()

	c.stats.sets.Add(1)
	if c.recorder != nil {
		c.recorder.Set()
	}
}

// Invalidate removes key. It reports whether an entry was present.
func (c *TTLCache[V]) Invalidate(key string) bool {
	c.mu.Lock()
	_, ok := c.items[key]
	delete(c.items, key)
	c.mu.Unlock()

	if ok {
		c.stats.invalidations.Add(1)
		if c.recorder != nil {
			c.recorder.Invalidate()
		}
	}
	return ok
}

// Clear empties the cache.
func (c *TTLCache[V]) Clear() {
	c.mu.Lock()
	c.items = make(map[string]entry[V])
	c.mu.Unlock()
}

// Len returns the number of stored entries, expired ones included.
func (c *TTLCache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Stats returns a snapshot of the cache counters.
func (c *TTLCache[V]) Stats() Stats {
	return Stats{
		Hits:          c.stats.hits.Load(),
		Misses:        c.stats.misses.Load(),
		Sets:          c.stats.sets.Load(),
		Invalidations: c.stats.invalidations.Load(),
	}
}

// Stats is a point-in-time view of cache activity.
type Stats struct {
	Hits          int64
	Misses        int64
	Sets          int64
	Invalidations int64
}

type counters struct {
	hits          atomic.Int64
	misses        atomic.Int64
	sets          atomic.Int64
	invalidations atomic.Int64
}

// Key derives the cache key for a request path and its query parameters.
// The query is encoded exactly as it is sent: sorted by name, values for the
// same name in order, empty values kept. A query that encodes to nothing
// yields the bare path, which is the key used to invalidate entity-detail
// entries.
func Key(path string, query url.Values) string {
	encoded := query.Encode()
	if encoded == "" {
		return path
	}
	return path + "?" + encoded
}
