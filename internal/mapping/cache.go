package mapping

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of index mappings kept.
const DefaultCacheSize = 64

// Cache holds computed mappings per index id. The owner of index
// configuration must call Invalidate when an index changes.
type Cache struct {
	entries *lru.Cache[string, *Mapping]
}

// NewCache creates a mapping cache.
func NewCache(size int) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	entries, _ := lru.New[string, *Mapping](size)
	return &Cache{entries: entries}
}

func (c *Cache) get(indexID string) (*Mapping, bool) {
	return c.entries.Get(indexID)
}

func (c *Cache) add(indexID string, m *Mapping) {
	c.entries.Add(indexID, m)
}

// Invalidate drops the cached mapping of one index. It is a no-op on a nil
// cache.
func (c *Cache) Invalidate(indexID string) {
	if c == nil {
		return
	}
	c.entries.Remove(indexID)
}

// Purge drops every cached mapping.
func (c *Cache) Purge() {
	c.entries.Purge()
}

// Len returns the number of cached mappings.
func (c *Cache) Len() int {
	return c.entries.Len()
}
