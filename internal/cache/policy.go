package cache

// Source is what a policy needs from the ambient scope. *scope.Scope satisfies it.
type Source interface {
	RepositoryCacheMode() Mode
	IsolatedCaches() *IsolatedCaches
}

// Policy is the read-through cache of one repository. The cache it uses depends on the
// mode of the ambient scope: the global isolated cache for ModeDefault, the tree's own
// isolated cache for ModeScoped, nothing for ModeNone.
type Policy[T any] struct {
	entityType string
	global     *IsolatedCaches
}

// NewPolicy creates a policy caching entityType values.
func NewPolicy[T any](entityType string, global *IsolatedCaches) *Policy[T] {
	return &Policy[T]{entityType: entityType, global: global}
}

// EntityType returns the isolated cache name the policy uses.
func (p *Policy[T]) EntityType() string {
	return p.entityType
}

// Cache resolves the cache for src. It returns nil when caching is off.
// A nil src behaves like ModeDefault.
func (p *Policy[T]) Cache(src Source) *AppCache {
	mode := ModeDefault
	if src != nil {
		mode = src.RepositoryCacheMode()
	}
	switch mode {
	case ModeNone:
		return nil
	case ModeScoped:
		return src.IsolatedCaches().Get(p.entityType)
	default:
		if p.global == nil {
			return nil
		}
		return p.global.Get(p.entityType)
	}
}

// Get returns the cached value for key, calling load on a miss.
func (p *Policy[T]) Get(src Source, key string, load func() (T, error)) (T, error) {
	c := p.Cache(src)
	if c == nil {
		return load()
	}

	v, err := c.GetOrCreate(key, func() (any, error) {
		return load()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// Invalidate drops key from the cache src resolves to.
func (p *Policy[T]) Invalidate(src Source, key string) {
	if c := p.Cache(src); c != nil {
		c.ClearByKey(key)
	}
}

// InvalidateAll empties the cache src resolves to.
func (p *Policy[T]) InvalidateAll(src Source) {
	if c := p.Cache(src); c != nil {
		c.Clear()
	}
}
