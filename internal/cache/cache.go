// Package cache provides the in-memory TTL cache shared by the aggregation
// services. Entries expire after a fixed TTL and the least-recently-used
// entry is evicted once the cache grows past its size limit. Expired entries
// remain readable through GetStale, which exists only as a degradation
// fallback when a fresh upstream fetch fails.
package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/vilaca/agent-dashboard/internal/telemetry"
)

// Cache is a thread-safe TTL cache with LRU eviction.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]*list.Element
	order      *list.List // front = most recently used
	ttl        time.Duration
	maxEntries int
	name       string
}

type entry struct {
	key      string
	value    any
	storedAt time.Time
}

// New creates a cache. name labels the cache in telemetry; maxEntries <= 0
// disables eviction.
func New(name string, ttl time.Duration, maxEntries int) *Cache {
	return &Cache{
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		ttl:        ttl,
		maxEntries: maxEntries,
		name:       name,
	}
}

// Set stores value under key with the current time, refreshing recency
// order. When the size limit is exceeded the least-recently-used entry is
// evicted.
func (c *Cache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		ent := el.Value.(*entry)
		ent.value = value
		ent.storedAt = time.Now()
		c.order.MoveToFront(el)
		return
	}

	c.entries[key] = c.order.PushFront(&entry{key: key, value: value, storedAt: time.Now()})

	if c.maxEntries > 0 && c.order.Len() > c.maxEntries {
		c.evictOldest()
	}
}

// Get returns the value for key if present and not expired. An expired
// entry reads as a miss but is kept in place so GetStale can still serve it
// as a degradation fallback; removal is left to LRU eviction. A hit
// refreshes recency order.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		telemetry.CacheMisses.WithLabelValues(c.name).Inc()
		return nil, false
	}

	ent := el.Value.(*entry)
	if time.Since(ent.storedAt) > c.ttl {
		telemetry.CacheMisses.WithLabelValues(c.name).Inc()
		return nil, false
	}

	c.order.MoveToFront(el)
	telemetry.CacheHits.WithLabelValues(c.name).Inc()
	return ent.value, true
}

// GetStale returns the value for key regardless of expiry. It is used only
// when a fresh fetch has already failed, never as the primary read path, and
// does not refresh recency order.
func (c *Cache) GetStale(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}

	telemetry.CacheStaleReads.WithLabelValues(c.name).Inc()
	return el.Value.(*entry).value, true
}

// Len returns the current number of entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// evictOldest removes the back of the recency list. Caller holds the lock.
func (c *Cache) evictOldest() {
	el := c.order.Back()
	if el == nil {
		return
	}
	c.order.Remove(el)
	delete(c.entries, el.Value.(*entry).key)
	telemetry.CacheEvictions.WithLabelValues(c.name).Inc()
}
