package scope

import (
	"database/sql"

	"github.com/example/cmscope/internal/cache"
)

// Option configures a scope at creation.
type Option func(*options)

type options struct {
	cacheMode    cache.Mode
	isolation    sql.IsolationLevel
	autoComplete bool
	readOnly     bool
}

// WithRepositoryCacheMode overrides the cache mode for the scope and the children
// that do not set their own.
func WithRepositoryCacheMode(mode cache.Mode) Option {
	return func(o *options) {
		o.cacheMode = mode
	}
}

// WithIsolationLevel sets the transaction isolation level. Only a root scope opens a
// transaction, so children ignore it.
func WithIsolationLevel(level sql.IsolationLevel) Option {
	return func(o *options) {
		o.isolation = level
	}
}

// WithAutoComplete makes Dispose vote to commit, as if Complete had been called.
func WithAutoComplete() Option {
	return func(o *options) {
		o.autoComplete = true
	}
}

// WithReadOnly opens the tree's transaction read-only. Root only.
func WithReadOnly() Option {
	return func(o *options) {
		o.readOnly = true
	}
}
