// Package scope implements ambient, nested units of work over a single database
// transaction per tree.
//
// The ambient state travels in context.Context. CreateScope returns a ctx that must
// be passed down to everything running inside the scope; code further down finds
// the scope with AmbientScope or RequireAmbient.
package scope

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/example/cmscope/internal/cache"
	"github.com/example/cmscope/internal/lock"
	"github.com/example/cmscope/internal/notification"
	"github.com/example/cmscope/internal/ports/secondary"
)

// Accessor finds the ambient scope. Repositories depend on this rather than on Provider.
type Accessor interface {
	RequireAmbient(ctx context.Context) (*Scope, error)
}

// Provider creates scopes and tracks which one is ambient.
type Provider struct {
	databases    secondary.DatabaseFactory
	sink         notification.Sink
	registry     *lock.Registry
	distributed  secondary.DistributedLockingMechanism
	readTimeout  time.Duration
	writeTimeout time.Duration
	caches       *cache.AppCaches
	cacheMode    cache.Mode
	logger       *slog.Logger
}

var _ Accessor = (*Provider)(nil)

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ProviderOption {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithDistributedLocking backs every tree's locks with d.
func WithDistributedLocking(d secondary.DistributedLockingMechanism) ProviderOption {
	return func(p *Provider) {
		p.distributed = d
	}
}

// WithLockRegistry shares a process-local lock registry between providers.
func WithLockRegistry(r *lock.Registry) ProviderOption {
	return func(p *Provider) {
		if r != nil {
			p.registry = r
		}
	}
}

// WithLockTimeouts overrides the default lock acquisition timeouts.
func WithLockTimeouts(read, write time.Duration) ProviderOption {
	return func(p *Provider) {
		p.readTimeout = read
		p.writeTimeout = write
	}
}

// WithAppCaches sets the process-wide caches. Committed scoped trees clear them.
func WithAppCaches(c *cache.AppCaches) ProviderOption {
	return func(p *Provider) {
		if c != nil {
			p.caches = c
		}
	}
}

// WithDefaultCacheMode sets the mode of root scopes that do not choose one.
func WithDefaultCacheMode(mode cache.Mode) ProviderOption {
	return func(p *Provider) {
		if mode != cache.ModeUnspecified {
			p.cacheMode = mode
		}
	}
}

// NewProvider creates a provider opening connections from databases and delivering
// committed notifications to sink.
func NewProvider(databases secondary.DatabaseFactory, sink notification.Sink, opts ...ProviderOption) *Provider {
	p := &Provider{
		databases: databases,
		sink:      sink,
		registry:  lock.NewRegistry(),
		caches:    cache.NewAppCaches(),
		cacheMode: cache.ModeDefault,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.sink == nil {
		p.sink = notification.NewAggregator(p.logger)
	}
	return p
}

// AppCaches returns the process-wide caches.
func (p *Provider) AppCaches() *cache.AppCaches {
	return p.caches
}

// CreateScope opens a scope. If ctx carries an ambient scope the new one is its
// child; otherwise it is the root of a new tree. The returned ctx carries the new
// scope and must be used for everything inside it.
func (p *Provider) CreateScope(ctx context.Context, opts ...Option) (context.Context, *Scope) {
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	ctx, f := withFlow(ctx)
	s := &Scope{
		id:           uuid.New(),
		provider:     p,
		flow:         f,
		cacheMode:    o.cacheMode,
		autoComplete: o.autoComplete,
		ctx:          ctx,
	}

	release := f.claim("create", s.id)
	defer release()

	if parent := f.scope(); parent != nil {
		s.parent = parent
		s.depth = parent.depth + 1
		s.tree = parent.tree
		s.scopeCtx = parent.scopeCtx
	} else {
		s.tree = p.newTree(o)
		if c := f.context(); c != nil {
			s.scopeCtx = c
		} else {
			s.scopeCtx = newContext()
			s.ownsContext = true
			f.pushContext(s.scopeCtx)
		}
	}
	f.pushScope(s)

	p.logger.Debug("scope created", "scope", s.id, "depth", s.depth, "context", s.scopeCtx.id)
	return ctx, s
}

func (p *Provider) newTree(o options) *tree {
	var txOptions *sql.TxOptions
	if o.isolation != sql.LevelDefault || o.readOnly {
		txOptions = &sql.TxOptions{Isolation: o.isolation, ReadOnly: o.readOnly}
	}
	return &tree{
		databases: p.databases,
		sink:      p.sink,
		txOptions: txOptions,
		locks: lock.NewMechanism(p.registry,
			lock.WithDistributed(p.distributed),
			lock.WithTimeouts(p.readTimeout, p.writeTimeout),
			lock.WithLogger(p.logger),
		),
	}
}

// AmbientScope returns the innermost scope of ctx's flow, or nil.
func (p *Provider) AmbientScope(ctx context.Context) *Scope {
	if f := flowFrom(ctx); f != nil {
		return f.scope()
	}
	return nil
}

// AmbientContext returns the operation context of ctx's flow, or nil.
func (p *Provider) AmbientContext(ctx context.Context) *Context {
	if f := flowFrom(ctx); f != nil {
		return f.context()
	}
	return nil
}

// RequireAmbient returns the ambient scope or ErrNoAmbientScope.
func (p *Provider) RequireAmbient(ctx context.Context) (*Scope, error) {
	s := p.AmbientScope(ctx)
	if s == nil {
		return nil, ErrNoAmbientScope
	}
	if err := s.ensureNotDisposed(); err != nil {
		return nil, err
	}
	return s, nil
}

// Do runs fn in a new scope. The scope votes to commit when fn returns nil and is
// disposed however fn exits; a panic in fn is re-raised after disposal.
func (p *Provider) Do(ctx context.Context, fn func(ctx context.Context, s *Scope) error, opts ...Option) (err error) {
	ctx, s := p.CreateScope(ctx, opts...)

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		func() {
			defer func() {
				if r2 := recover(); r2 != nil {
					p.logger.Error("scope dispose panicked during unwinding", "scope", s.id, "panic", r2)
				}
			}()
			if derr := s.Dispose(); derr != nil && !errors.Is(derr, ErrDisposed) {
				p.logger.Error("scope dispose failed during unwinding", "scope", s.id, "error", derr)
			}
		}()
		panic(r)
	}()

	if err := fn(ctx, s); err != nil {
		if derr := s.Dispose(); derr != nil {
			return errors.Join(err, derr)
		}
		return err
	}
	s.Complete()
	return s.Dispose()
}

// Operation runs fn with an operation context that every scope tree created inside
// it shares. Exit actions run when fn returns, with completed set when fn succeeded.
func (p *Provider) Operation(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, f := withFlow(ctx)
	c := newContext()

	release := f.claim("operation", uuid.Nil)
	f.pushContext(c)
	release()

	defer func() {
		release := f.claim("operation", uuid.Nil)
		f.popContext(c)
		release()
	}()

	err := fn(ctx)
	if exitErr := c.exit(context.WithoutCancel(ctx), err == nil); exitErr != nil {
		return errors.Join(err, exitErr)
	}
	return err
}
