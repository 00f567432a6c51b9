// Package cache holds short-lived feed responses in memory.
package cache

import (
	"sync"
	"time"
)

// Entry is a cached value, the time it was stored and the time it stops
// being served.
type Entry[T any] struct {
	Value     T
	StoredAt  time.Time
	ExpiresAt time.Time
}

// Age returns how long ago the entry was stored.
func (e Entry[T]) Age(now time.Time) time.Duration {
	return now.Sub(e.StoredAt)
}

// Expired reports whether now is at or past ExpiresAt.
func (e Entry[T]) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Memory is a TTL cache keyed by string. Expired entries are dropped lazily
// on access, so no cleanup goroutine is needed.
type Memory[T any] struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]Entry[T]
	now     func() time.Time
}

// NewMemory creates a cache whose entries live for ttl.
func NewMemory[T any](ttl time.Duration) *Memory[T] {
	return &Memory[T]{
		ttl:     ttl,
		entries: make(map[string]Entry[T]),
		now:     time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (c *Memory[T]) WithClock(now func() time.Time) *Memory[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
	return c
}

// TTL returns the configured lifetime.
func (c *Memory[T]) TTL() time.Duration {
	return c.ttl
}

// Get returns the value for key if it has not expired.
func (c *Memory[T]) Get(key string) (T, bool) {
	e, ok := c.Lookup(key)
	return e.Value, ok
}

// Lookup is Get returning the whole entry.
func (c *Memory[T]) Lookup(key string) (Entry[T], bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	now := c.now()
	c.mu.RUnlock()
	if !ok {
		return Entry[T]{}, false
	}
	if e.Expired(now) {
		c.mu.Lock()
		// re-check, a writer may have refreshed it
		if cur, ok := c.entries[key]; ok && cur.StoredAt.Equal(e.StoredAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return Entry[T]{}, false
	}
	return e, true
}

// Set stores value under key.
func (c *Memory[T]) Set(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	c.entries[key] = Entry[T]{Value: value, StoredAt: now, ExpiresAt: now.Add(c.ttl)}
}

// Delete removes key.
func (c *Memory[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear removes every entry.
func (c *Memory[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]Entry[T])
}

// Newest returns the most recently stored live entry, if any.
func (c *Memory[T]) Newest() (Entry[T], bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	now := c.now()
	var best Entry[T]
	found := false
	for _, e := range c.entries {
		if e.Expired(now) {
			continue
		}
		if !found || e.StoredAt.After(best.StoredAt) {
			best = e
			found = true
		}
	}
	return best, found
}

// Len returns the number of entries, expired ones included.
func (c *Memory[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
