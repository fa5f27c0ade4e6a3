package cache

import (
	"sort"
	"strings"
	"sync"

	gocache "github.com/patrickmn/go-cache"
)

// AppCache is a key/value cache with no expiration. Entries live until cleared.
type AppCache struct {
	mu    sync.Mutex
	items *gocache.Cache
}

// NewAppCache creates an empty cache.
func NewAppCache() *AppCache {
	return &AppCache{items: gocache.New(gocache.NoExpiration, 0)}
}

// Get returns the cached value for key.
func (c *AppCache) Get(key string) (any, bool) {
	return c.items.Get(key)
}

// GetOrCreate returns the cached value for key, calling create on a miss.
// A failed create caches nothing.
func (c *AppCache) GetOrCreate(key string, create func() (any, error)) (any, error) {
	if v, ok := c.items.Get(key); ok {
		return v, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.items.Get(key); ok {
		return v, nil
	}
	v, err := create()
	if err != nil {
		return nil, err
	}
	c.items.Set(key, v, gocache.NoExpiration)
	return v, nil
}

// Insert stores value under key, replacing any previous value.
func (c *AppCache) Insert(key string, value any) {
	c.items.Set(key, value, gocache.NoExpiration)
}

// ClearByKey removes one entry.
func (c *AppCache) ClearByKey(key string) {
	c.items.Delete(key)
}

// ClearByPrefix removes every entry whose key starts with prefix.
func (c *AppCache) ClearByPrefix(prefix string) {
	for key := range c.items.Items() {
		if strings.HasPrefix(key, prefix) {
			c.items.Delete(key)
		}
	}
}

// Clear removes all entries.
func (c *AppCache) Clear() {
	c.items.Flush()
}

// Count returns the number of entries.
func (c *AppCache) Count() int {
	return c.items.ItemCount()
}

// Keys returns the cached keys, sorted.
func (c *AppCache) Keys() []string {
	items := c.items.Items()
	keys := make([]string, 0, len(items))
	for key := range items {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
