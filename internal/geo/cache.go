package geo

import (
	"sync"
	"time"

	"tripwise/internal/types"
)

// Cache memoizes forward-geocode results. Keys are composite place+country
// strings in folded form so spelling variants of the same place share one
// entry. Implementations must be safe for concurrent use.
type Cache interface {
	Get(key string) (types.Coordinates, bool)
	Set(key string, coords types.Coordinates)
}

// memoryCache is the production Cache: a plain map under an RWMutex. Entries
// expire after the configured TTL so a corrected upstream result eventually
// wins over a stale memo; a zero TTL keeps entries for the process lifetime.
type memoryCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	coords  types.Coordinates
	expires time.Time
}

// NewMemoryCache creates an empty in-memory Cache whose entries expire after
// ttl. ttl <= 0 disables expiry.
func NewMemoryCache(ttl time.Duration) *memoryCache {
	return &memoryCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

func (c *memoryCache) Get(key string) (types.Coordinates, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return types.Coordinates{}, false
	}
	if !entry.expires.IsZero() && !c.now().Before(entry.expires) {
		// Expired entries are dropped on their next write, not here; a read
		// lock cannot delete.
		return types.Coordinates{}, false
	}
	return entry.coords, true
}

func (c *memoryCache) Set(key string, coords types.Coordinates) {
	entry := cacheEntry{coords: coords}
	if c.ttl > 0 {
		entry.expires = c.now().Add(c.ttl)
	}
	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()
}
