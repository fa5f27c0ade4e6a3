package cache

import (
	"sort"
	"sync"
)

// IsolatedCaches keeps one AppCache per entity type so that clearing documents
// never touches, say, the language cache.
type IsolatedCaches struct {
	mu     sync.Mutex
	caches map[string]*AppCache
}

// NewIsolatedCaches creates an empty registry.
func NewIsolatedCaches() *IsolatedCaches {
	return &IsolatedCaches{caches: make(map[string]*AppCache)}
}

// Get returns the cache for entityType, creating it on first use.
func (c *IsolatedCaches) Get(entityType string) *AppCache {
	c.mu.Lock()
	defer c.mu.Unlock()

	ac, ok := c.caches[entityType]
	if !ok {
		ac = NewAppCache()
		c.caches[entityType] = ac
	}
	return ac
}

// Lookup returns the cache for entityType without creating it.
func (c *IsolatedCaches) Lookup(entityType string) (*AppCache, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ac, ok := c.caches[entityType]
	return ac, ok
}

// Types returns the entity types that have a cache, sorted.
func (c *IsolatedCaches) Types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	types := make([]string, 0, len(c.caches))
	for t := range c.caches {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// ClearCache empties the cache for entityType, if it exists.
func (c *IsolatedCaches) ClearCache(entityType string) {
	if ac, ok := c.Lookup(entityType); ok {
		ac.Clear()
	}
}

// ClearAll empties every cache.
func (c *IsolatedCaches) ClearAll() {
	c.mu.Lock()
	caches := make([]*AppCache, 0, len(c.caches))
	for _, ac := range c.caches {
		caches = append(caches, ac)
	}
	c.mu.Unlock()

	for _, ac := range caches {
		ac.Clear()
	}
}

// AppCaches groups the process-wide caches shared by every scope tree.
type AppCaches struct {
	Runtime  *AppCache
	Isolated *IsolatedCaches
}

// NewAppCaches creates empty process-wide caches.
func NewAppCaches() *AppCaches {
	return &AppCaches{
		Runtime:  NewAppCache(),
		Isolated: NewIsolatedCaches(),
	}
}
