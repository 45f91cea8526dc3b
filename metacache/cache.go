// Package metacache caches per-file parse results keyed by file identity.
//
// A key is the pair (path, modification time). When a file changes its key
// changes with it, so stale entries are orphaned rather than mutated. Entries
// for deleted files are only removed by an explicit EvictPath or by a Sweeper.
package metacache

import (
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Key identifies one version of one file.
type Key struct {
	Path    string
	ModTime int64 // UnixNano
}

// KeyFor builds the cache key for path at modification time mt.
func KeyFor(path string, mt time.Time) Key {
	return Key{Path: path, ModTime: mt.UnixNano()}
}

// Stats holds cache counters.
type Stats struct {
	Entries   int
	Hits      int64
	Misses    int64
	Evictions int64
}

// Cache is a concurrency-safe map from Key to V. Locking is scoped to single
// lookups and inserts. With maxEntries > 0 the cache is bounded and evicts the
// least recently used entry; otherwise it grows without bound.
type Cache[V any] struct {
	mu      sync.RWMutex
	entries map[Key]V

	bounded *lru.Cache[Key, V]

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// New creates a cache. maxEntries <= 0 means unbounded.
func New[V any](maxEntries int) *Cache[V] {
	c := &Cache[V]{}
	if maxEntries > 0 {
		// lru.NewWithEvict only fails for a non-positive size.
		c.bounded, _ = lru.NewWithEvict[Key, V](maxEntries, func(Key, V) {
			c.evictions.Add(1)
		})
		return c
	}
	c.entries = make(map[Key]V)
	return c
}

// Get returns the value stored under k.
func (c *Cache[V]) Get(k Key) (V, bool) {
	var (
		v  V
		ok bool
	)
	if c.bounded != nil {
		v, ok = c.bounded.Get(k)
	} else {
		c.mu.RLock()
		v, ok = c.entries[k]
		c.mu.RUnlock()
	}

	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

// Put stores v under k, replacing any previous value.
func (c *Cache[V]) Put(k Key, v V) {
	if c.bounded != nil {
		c.bounded.Add(k, v)
		return
	}
	c.mu.Lock()
	c.entries[k] = v
	c.mu.Unlock()
}

// Evict removes the entry for k and reports whether it existed.
func (c *Cache[V]) Evict(k Key) bool {
	if c.bounded != nil {
		// Remove fires the eviction callback, which counts it.
		return c.bounded.Remove(k)
	}
	c.mu.Lock()
	_, ok := c.entries[k]
	delete(c.entries, k)
	c.mu.Unlock()
	if ok {
		c.evictions.Add(1)
	}
	return ok
}

// EvictPath removes every entry for path regardless of modification time and
// returns how many were removed.
func (c *Cache[V]) EvictPath(path string) int {
	return c.evictWhere(func(k Key) bool { return k.Path == path })
}

// Sweep removes every entry for which stale returns true and returns how many
// were removed. stale is called without holding the cache lock.
func (c *Cache[V]) Sweep(stale func(Key) bool) int {
	return c.evictWhere(stale)
}

func (c *Cache[V]) evictWhere(match func(Key) bool) int {
	n := 0
	for _, k := range c.Keys() {
		if match(k) && c.Evict(k) {
			n++
		}
	}
	return n
}

// Keys returns a snapshot of the keys currently cached.
func (c *Cache[V]) Keys() []Key {
	if c.bounded != nil {
		return c.bounded.Keys()
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]Key, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	return keys
}

// Len returns the number of cached entries.
func (c *Cache[V]) Len() int {
	if c.bounded != nil {
		return c.bounded.Len()
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Purge removes all entries.
func (c *Cache[V]) Purge() {
	if c.bounded != nil {
		c.bounded.Purge()
		return
	}
	c.mu.Lock()
	c.evictions.Add(int64(len(c.entries)))
	c.entries = make(map[Key]V)
	c.mu.Unlock()
}

// Stats returns a snapshot of the cache counters.
func (c *Cache[V]) Stats() Stats {
	return Stats{
		Entries:   c.Len(),
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}
