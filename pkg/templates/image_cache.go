package templates

import (
	"path/filepath"
	"sync"
)

// Cache keeps decoded packs keyed by directory so repeated resolution during
// a calibration run does not re-read the images
type Cache struct {
	packs map[string]*Pack
	mu    sync.RWMutex
	stats CacheStats
}

// CacheStats tracks cache performance
type CacheStats struct {
	Hits   int64 // Cache hits
	Misses int64 // Cache misses (had to load)
	Fails  int64 // Failed loads
}

// NewCache creates a new pack cache
func NewCache() *Cache {
	return &Cache{
		packs: make(map[string]*Pack),
	}
}

// Get returns the pack stored at dir, loading it on first use
func (c *Cache) Get(dir, name string) (*Pack, error) {
	key := filepath.Clean(dir)

	c.mu.RLock()
	pack, ok := c.packs[key]
	c.mu.RUnlock()
	if ok {
		c.mu.Lock()
		c.stats.Hits++
		c.mu.Unlock()
		return pack, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring write lock
	if pack, ok := c.packs[key]; ok {
		c.stats.Hits++
		return pack, nil
	}

	c.stats.Misses++
	pack, err := Load(dir, name)
	if err != nil {
		c.stats.Fails++
		return nil, err
	}
	c.packs[key] = pack
	return pack, nil
}

// Put stores an already built pack
func (c *Cache) Put(pack *Pack) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.packs[filepath.Clean(pack.Dir)] = pack
}

// Clear drops every cached pack
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.packs = make(map[string]*Pack)
}

// Stats returns cache statistics
func (c *Cache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}
