// Package sessioncache memoizes resolved identities in process memory.
package sessioncache

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	lookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_cache_lookups_total",
			Help: "Session cache lookups by result (hit, miss, expired)",
		},
		[]string{"result"},
	)

	entriesGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "session_cache_entries",
			Help: "Entries currently held in each session cache",
		},
		[]string{"cache"},
	)
)

// Option configures a Cache.
type Option func(*options)

type options struct {
	name string
}

// WithName sets the "cache" label the cache reports its size under.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// Entry is a cached value and the time it was stored.
type Entry[V any] struct {
	Key        string
	Value      V
	InsertedAt time.Time
}

// Cache is a concurrency-safe map from a stable external identity to its last
// resolved value. Writers to the same key race with last-write-wins. A
// positive TTL expires entries lazily on read and in Prune; zero keeps them
// for the life of the process.
type Cache[V any] struct {
	mu      sync.RWMutex
	entries map[string]Entry[V]
	ttl     time.Duration
	now     func() time.Time
	size    prometheus.Gauge
}

// New creates a cache with the given TTL.
func New[V any](ttl time.Duration, opts ...Option) *Cache[V] {
	o := options{name: "default"}
	for _, opt := range opts {
		opt(&o)
	}
	return &Cache[V]{
		entries: make(map[string]Entry[V]),
		ttl:     ttl,
		now:     time.Now,
		size:    entriesGauge.WithLabelValues(o.name),
	}
}

// Set upserts the value for key.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	c.entries[key] = Entry[V]{Key: key, Value: value, InsertedAt: c.now()}
	n := len(c.entries)
	c.mu.Unlock()
	c.size.Set(float64(n))
}

// Get returns the entry for key. A miss or an expired entry returns false;
// Get never fabricates a value.
func (c *Cache[V]) Get(key string) (Entry[V], bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		lookupsTotal.WithLabelValues("miss").Inc()
		return Entry[V]{}, false
	}
	if c.expired(e) {
		lookupsTotal.WithLabelValues("expired").Inc()
		c.mu.Lock()
		// Re-check under the write lock; a concurrent Set may have refreshed it.
		if cur, ok := c.entries[key]; ok && c.expired(cur) {
			delete(c.entries, key)
		}
		n := len(c.entries)
		c.mu.Unlock()
		c.size.Set(float64(n))
		return Entry[V]{}, false
	}

	lookupsTotal.WithLabelValues("hit").Inc()
	return e, true
}

// Delete removes key.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	n := len(c.entries)
	c.mu.Unlock()
	c.size.Set(float64(n))
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Prune drops expired entries and returns how many were removed.
func (c *Cache[V]) Prune() int {
	if c.ttl <= 0 {
		return 0
	}
	c.mu.Lock()
	removed := 0
	for k, e := range c.entries {
		if c.expired(e) {
			delete(c.entries, k)
			removed++
		}
	}
	n := len(c.entries)
	c.mu.Unlock()
	c.size.Set(float64(n))
	return removed
}

func (c *Cache[V]) expired(e Entry[V]) bool {
	return c.ttl > 0 && c.now().Sub(e.InsertedAt) >= c.ttl
}
