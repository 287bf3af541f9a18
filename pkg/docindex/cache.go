package docindex

import (
	"sync"
	"time"
)

// cached holds one generated index with a timestamp for TTL expiry.
type cached struct {
	index   *DocIndex
	compact string
	builtAt time.Time
}

// memoryCache keeps the last generated index in front of the
// persistent cache table. Expiry is checked lazily on Get, no
// background goroutine.
type memoryCache struct {
	mu    sync.RWMutex
	entry *cached
	ttl   time.Duration
}

func newMemoryCache(ttl time.Duration) *memoryCache {
	return &memoryCache{ttl: ttl}
}

// Get returns the cached index if present and not expired.
func (c *memoryCache) Get() (*DocIndex, string, bool) {
	c.mu.RLock()
	entry := c.entry
	c.mu.RUnlock()

	if entry == nil || time.Since(entry.builtAt) > c.ttl {
		return nil, "", false
	}
	return entry.index, entry.compact, true
}

// Set stores an index with the current timestamp.
func (c *memoryCache) Set(index *DocIndex, compact string) {
	c.mu.Lock()
	c.entry = &cached{index: index, compact: compact, builtAt: time.Now()}
	c.mu.Unlock()
}

// Clear drops the cached entry, forcing the next Get to miss.
func (c *memoryCache) Clear() {
	c.mu.Lock()
	c.entry = nil
	c.mu.Unlock()
}
