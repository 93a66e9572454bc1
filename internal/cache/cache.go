// Package cache provides the process-local read-through caches that sit in
// front of the entity store. Each entity kind gets its own Cache instance with
// an independent time-to-live and capacity; the Manager sweeps all of them.
package cache

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/AnshRaj112/marketbot-backend/internal/clock"
)

const (
	// DefaultTTL applies when Options.TTL is zero.
	DefaultTTL = 5 * time.Minute
	// DefaultCapacity applies when Options.Capacity is zero.
	DefaultCapacity = 1000
)

// Options configures a single cache instance.
type Options struct {
	TTL      time.Duration
	Capacity int
}

// Stats is a point-in-time snapshot of a cache's counters.
type Stats struct {
	Name      string        `json:"name"`
	Size      int           `json:"size"`
	Capacity  int           `json:"capacity"`
	TTL       time.Duration `json:"ttl"`
	Hits      uint64        `json:"hits"`
	Misses    uint64        `json:"misses"`
	Evictions uint64        `json:"evictions"`
	Expired   uint64        `json:"expired"`
}

// HitRate returns hits / (hits + misses), or 0 when the cache is unused.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

type entry[V any] struct {
	value      V
	insertedAt time.Time
	ttl        time.Duration
}

func (e entry[V]) expired(now time.Time) bool {
	return !now.Before(e.insertedAt.Add(e.ttl))
}

// Cache is a TTL- and capacity-bounded cache with least-recently-used
// eviction. It is safe for concurrent use.
type Cache[V any] struct {
	name     string
	ttl      time.Duration
	capacity int
	clock    clock.Clock

	mu    sync.Mutex
	lru   *simplelru.LRU[string, entry[V]]
	stats Stats
}

// New builds a cache. A nil clock means the real clock.
func New[V any](name string, opts Options, clk clock.Clock) *Cache[V] {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if clk == nil {
		clk = clock.Real()
	}
	// NewLRU only fails for a non-positive size, which is ruled out above.
	lru, _ := simplelru.NewLRU[string, entry[V]](opts.Capacity, nil)
	return &Cache[V]{
		name:     name,
		ttl:      opts.TTL,
		capacity: opts.Capacity,
		clock:    clk,
		lru:      lru,
	}
}

// Name returns the cache's entity-kind label.
func (c *Cache[V]) Name() string { return c.name }

// Get returns the cached value for key. An expired entry is purged and
// reported as a miss.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.lru.Get(key)
	if !ok {
		c.stats.Misses++
		return zero, false
	}
	if e.expired(c.clock.Now()) {
		c.lru.Remove(key)
		c.stats.Expired++
		c.stats.Misses++
		return zero, false
	}
	c.stats.Hits++
	return e.value, true
}

// Set stores value under key with the cache's default TTL.
func (c *Cache[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, 0)
}

// SetWithTTL stores value under key. A non-positive ttl means the default.
func (c *Cache[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lru.Add(key, entry[V]{value: value, insertedAt: c.clock.Now(), ttl: ttl}) {
		c.stats.Evictions++
	}
}

// Delete removes key if present.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	c.lru.Remove(key)
	c.mu.Unlock()
}

// Clear drops every entry.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	c.lru.Purge()
	c.mu.Unlock()
}

// Len reports the number of stored entries, expired or not.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// DeleteExpired removes every expired entry and returns how many were removed.
func (c *Cache[V]) DeleteExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	removed := 0
	for _, key := range c.lru.Keys() {
		e, ok := c.lru.Peek(key)
		if ok && e.expired(now) {
			c.lru.Remove(key)
			removed++
		}
	}
	c.stats.Expired += uint64(removed)
	return removed
}

// Stats returns a snapshot of the cache counters.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	s.Name = c.name
	s.Size = c.lru.Len()
	s.Capacity = c.capacity
	s.TTL = c.ttl
	return s
}

// GetOrLoad returns the cached value for key, calling load on a miss and
// caching its result. Errors from load are returned and nothing is cached.
func (c *Cache[V]) GetOrLoad(key string, load func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := load()
	if err != nil {
		return v, err
	}
	c.Set(key, v)
	return v, nil
}
