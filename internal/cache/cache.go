// Package cache implements a TTL-scoped in-process cache with a reverse
// dependency index for targeted invalidation. It is the fastest layer of
// the storage stack and the invalidation authority for derived entries:
// invalidating a dependency evicts every entry that listed it.
//
// All operations are pure in-memory mutations and never fail.
package cache

import (
	"regexp"
	"sync"
	"sync/atomic"
	"time"
)

// Entry is a single cached value with its expiry and dependency links.
type Entry struct {
	Key          string
	Value        any
	StoredAt     time.Time
	ExpiresAt    time.Time
	Dependencies map[string]struct{}
}

// Cache is a thread-safe TTL key-value map with dependency tracking.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]*Entry
	depIndex map[string]map[string]struct{} // dependency -> keys that list it

	defaultTTL time.Duration

	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a cache. defaultTTL applies when Set receives no TTL.
func New(defaultTTL time.Duration) *Cache {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	return &Cache{
		entries:    make(map[string]*Entry),
		depIndex:   make(map[string]map[string]struct{}),
		defaultTTL: defaultTTL,
	}
}

// Get returns the value for key, or (nil, false) on miss or expiry.
// Expired entries are removed lazily on access.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses.Add(1)
		return nil, false
	}

	if time.Now().After(e.ExpiresAt) {
		c.removeLocked(key)
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	return e.Value, true
}

// Set stores a value, overwriting any existing entry and its dependency
// links. A non-positive ttl takes the cache default. The dependency list
// is trusted from the caller; each named dependency gains a reverse link
// back to key.
func (c *Cache) Set(key string, value any, ttl time.Duration, dependencies []string) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Drop stale dependency links from a previous entry under this key.
	if old, ok := c.entries[key]; ok {
		c.unlinkLocked(key, old)
	}

	now := time.Now()
	e := &Entry{
		Key:       key,
		Value:     value,
		StoredAt:  now,
		ExpiresAt: now.Add(ttl),
	}

	if len(dependencies) > 0 {
		e.Dependencies = make(map[string]struct{}, len(dependencies))
		for _, dep := range dependencies {
			e.Dependencies[dep] = struct{}{}
			keys, ok := c.depIndex[dep]
			if !ok {
				keys = make(map[string]struct{})
				c.depIndex[dep] = keys
			}
			keys[key] = struct{}{}
		}
	}

	c.entries[key] = e
}

// Invalidate removes a single entry. Returns true if it existed.
func (c *Cache) Invalidate(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok {
		return false
	}
	c.removeLocked(key)
	return true
}

// InvalidateByDependency removes every entry whose dependency set
// contains dep. Returns the number of entries removed.
func (c *Cache) InvalidateByDependency(dep string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys, ok := c.depIndex[dep]
	if !ok {
		return 0
	}

	removed := 0
	for key := range keys {
		if _, ok := c.entries[key]; ok {
			c.removeLocked(key)
			removed++
		}
	}
	delete(c.depIndex, dep)
	return removed
}

// InvalidateByPattern removes all entries whose key matches the regexp.
// Returns the number of entries removed.
func (c *Cache) InvalidateByPattern(re *regexp.Regexp) int {
	if re == nil {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.entries {
		if re.MatchString(key) {
			c.removeLocked(key)
			removed++
		}
	}
	return removed
}

// Clear removes every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*Entry)
	c.depIndex = make(map[string]map[string]struct{})
}

// Len returns the number of entries, including any not yet swept.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Keys returns all entry keys, including any not yet swept.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}
	return keys
}

// removeLocked deletes an entry and all of its dependency links.
// Caller must hold c.mu.
func (c *Cache) removeLocked(key string) {
	e, ok := c.entries[key]
	if !ok {
		return
	}
	c.unlinkLocked(key, e)
	delete(c.entries, key)
}

// unlinkLocked removes key from every dependency set the entry joined.
// Caller must hold c.mu.
func (c *Cache) unlinkLocked(key string, e *Entry) {
	for dep := range e.Dependencies {
		keys, ok := c.depIndex[dep]
		if !ok {
			continue
		}
		delete(keys, key)
		if len(keys) == 0 {
			delete(c.depIndex, dep)
		}
	}
}
