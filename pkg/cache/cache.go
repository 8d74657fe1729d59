// Package cache provides a small in-process TTL cache used to keep the
// current wall snapshot hot between writes.
package cache

import (
	"context"
	"sync"
	"time"
)

// Options configures a Cache
type Options struct {
	// TTL is the default lifetime of an entry; zero means entries never expire
	TTL time.Duration
	// MaxItems bounds the number of entries; zero means unbounded
	MaxItems int
	// CleanupInterval is how often Run purges expired entries
	CleanupInterval time.Duration
}

type entry[V any] struct {
	value     V
	storedAt  time.Time
	expiresAt time.Time
}

func (e entry[V]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Cache is a thread-safe map with per-entry expiry
type Cache[V any] struct {
	mu      sync.RWMutex
	items   map[string]entry[V]
	options Options
	now     func() time.Time

	hits   uint64
	misses uint64
}

// New creates a cache. Call Run in a goroutine to purge expired entries.
func New[V any](options Options) *Cache[V] {
	return &Cache[V]{
		items:   make(map[string]entry[V]),
		options: options,
		now:     time.Now,
	}
}

// Set stores value under key with the default TTL
func (c *Cache[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, c.options.TTL)
}

// SetWithTTL stores value under key for ttl
func (c *Cache[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	now := c.now()
	e := entry[V]{value: value, storedAt: now}
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[key]; !exists && c.options.MaxItems > 0 && len(c.items) >= c.options.MaxItems {
		c.evictOldest()
	}
	c.items[key] = e
}

// Get returns the value stored under key if present and not expired
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, found := c.items[key]
	if !found || e.expired(c.now()) {
		c.misses++
		var zero V
		return zero, false
	}
	c.hits++
	return e.value, true
}

// Delete removes key
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Flush removes everything
func (c *Cache[V]) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]entry[V])
}

// Count returns the number of entries, expired ones included
func (c *Cache[V]) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Stats reports hit and miss counters
func (c *Cache[V]) Stats() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return map[string]any{
		"items":  len(c.items),
		"hits":   c.hits,
		"misses": c.misses,
	}
}

// Run purges expired entries every CleanupInterval until ctx is done.
// It returns immediately when no interval is configured.
func (c *Cache[V]) Run(ctx context.Context) {
	if c.options.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(c.options.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.deleteExpired()
		}
	}
}

func (c *Cache[V]) deleteExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for k, e := range c.items {
		if e.expired(now) {
			delete(c.items, k)
			removed++
		}
	}
	return removed
}

// evictOldest drops the entry stored longest ago. Caller holds the lock.
func (c *Cache[V]) evictOldest() {
	var oldestKey string
	var oldest time.Time
	first := true
	for k, e := range c.items {
		if first || e.storedAt.Before(oldest) {
			oldestKey, oldest, first = k, e.storedAt, false
		}
	}
	if !first {
		delete(c.items, oldestKey)
	}
}
