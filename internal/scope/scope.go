package scope

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/example/cmscope/internal/cache"
	"github.com/example/cmscope/internal/lock"
	"github.com/example/cmscope/internal/notification"
	"github.com/example/cmscope/internal/ports/secondary"
)

// Scope is one unit of work. Scopes nest: a scope created while another is ambient
// becomes its child and joins its transaction. The root owns the tree's resources
// and decides the outcome when it is disposed; children only vote.
//
// A scope must be disposed exactly once, innermost first, by the goroutine whose
// flow it belongs to.
type Scope struct {
	id           uuid.UUID
	provider     *Provider
	parent       *Scope
	flow         *flow
	scopeCtx     *Context
	ownsContext  bool
	tree         *tree
	depth        int
	cacheMode    cache.Mode
	autoComplete bool
	ctx          context.Context

	mu         sync.Mutex
	completion Completion
	disposed   bool
}

// tree holds what the root owns on behalf of all its descendants.
type tree struct {
	databases secondary.DatabaseFactory
	sink      notification.Sink
	txOptions *sql.TxOptions
	locks     *lock.Mechanism

	mu        sync.Mutex
	db        secondary.Database
	publisher *notification.Publisher
	isolated  *cache.IsolatedCaches
}

// ID returns the scope's identifier.
func (s *Scope) ID() uuid.UUID { return s.id }

// Parent returns the enclosing scope, or nil for a root.
func (s *Scope) Parent() *Scope { return s.parent }

// Root returns the scope that owns the tree's transaction.
func (s *Scope) Root() *Scope {
	root := s
	for root.parent != nil {
		root = root.parent
	}
	return root
}

// IsRoot reports whether the scope owns its tree.
func (s *Scope) IsRoot() bool { return s.parent == nil }

// Depth is 0 for a root and one more than the parent otherwise.
func (s *Scope) Depth() int { return s.depth }

// Context returns the operation context the scope was created under.
func (s *Scope) Context() *Context { return s.scopeCtx }

// Completion returns the scope's current vote.
func (s *Scope) Completion() Completion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completion
}

// Complete votes to commit. A vote already cast, including a veto from a child,
// is kept.
func (s *Scope) Complete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.completion == Undecided {
		s.completion = Commit
	}
}

// Reset withdraws the vote.
func (s *Scope) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completion = Undecided
}

func (s *Scope) childCompleted(vote Completion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completion = Merge(s.completion, vote)
}

func (s *Scope) isDisposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

func (s *Scope) ensureNotDisposed() error {
	for p := s; p != nil; p = p.parent {
		if p.isDisposed() {
			return ErrDisposed
		}
	}
	return nil
}

// RepositoryCacheMode returns the scope's own mode, else the nearest ancestor's.
func (s *Scope) RepositoryCacheMode() cache.Mode {
	for p := s; p != nil; p = p.parent {
		if p.cacheMode != cache.ModeUnspecified {
			return p.cacheMode
		}
	}
	return s.provider.cacheMode
}

// IsolatedCaches returns the tree's private caches, used in cache.ModeScoped.
func (s *Scope) IsolatedCaches() *cache.IsolatedCaches {
	s.tree.mu.Lock()
	defer s.tree.mu.Unlock()
	if s.tree.isolated == nil {
		s.tree.isolated = cache.NewIsolatedCaches()
	}
	return s.tree.isolated
}

// Locks returns the tree's lock ledger.
func (s *Scope) Locks() *lock.Mechanism { return s.tree.locks }

// ReadLock queues shared locks taken on the next ExecuteWithContext.
func (s *Scope) ReadLock(lockIDs ...int) { s.tree.locks.ReadLock(s.id, lockIDs...) }

// WriteLock queues exclusive locks taken on the next ExecuteWithContext.
func (s *Scope) WriteLock(lockIDs ...int) { s.tree.locks.WriteLock(s.id, lockIDs...) }

// EagerReadLock takes shared locks now.
func (s *Scope) EagerReadLock(ctx context.Context, lockIDs ...int) error {
	if err := s.ensureNotDisposed(); err != nil {
		return err
	}
	return s.tree.locks.EagerReadLock(ctx, s.id, 0, lockIDs...)
}

// EagerWriteLock takes exclusive locks now.
func (s *Scope) EagerWriteLock(ctx context.Context, lockIDs ...int) error {
	if err := s.ensureNotDisposed(); err != nil {
		return err
	}
	return s.tree.locks.EagerWriteLock(ctx, s.id, 0, lockIDs...)
}

// Notifications returns the tree's publisher. Deferred notifications reach handlers
// only if the tree commits.
func (s *Scope) Notifications() (*notification.Publisher, error) {
	if err := s.ensureNotDisposed(); err != nil {
		return nil, err
	}
	s.tree.mu.Lock()
	defer s.tree.mu.Unlock()
	if s.tree.publisher == nil {
		s.tree.publisher = notification.NewPublisher(s.tree.sink)
	}
	return s.tree.publisher, nil
}

// ExecuteWithContext runs action against the tree's transaction, taking queued locks
// and opening the transaction first if needed.
func (s *Scope) ExecuteWithContext(ctx context.Context, action func(ctx context.Context, ex secondary.Executor) error) error {
	if err := s.ensureNotDisposed(); err != nil {
		return err
	}
	if err := s.tree.locks.EnsureLocks(ctx, s.id); err != nil {
		return err
	}
	ex, err := s.tree.executor(ctx)
	if err != nil {
		return err
	}
	return action(ctx, ex)
}

// The connection and transaction belong to the whole tree, so they are opened
// detached from the cancellation of whichever scope happens to touch the database
// first. ctx still governs each statement.
func (t *tree) executor(ctx context.Context) (secondary.Executor, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	treeCtx := context.WithoutCancel(ctx)
	if t.db == nil {
		db, err := t.databases.Create(treeCtx)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		t.db = db
	}
	if !t.db.InTransaction() {
		if err := t.db.Begin(treeCtx, t.txOptions); err != nil {
			return nil, fmt.Errorf("failed to begin transaction: %w", err)
		}
	}
	return t.db.Executor(), nil
}

// finish ends the transaction according to commit and closes the connection.
// It reports whether the tree's work was actually committed.
func (t *tree) finish(commit bool, log func(msg string, args ...any)) (bool, error) {
	t.mu.Lock()
	db := t.db
	t.db = nil
	t.mu.Unlock()

	if db == nil {
		return commit, nil
	}

	var errs []error
	committed := false
	switch {
	case !db.InTransaction():
		committed = commit
	case commit:
		if err := db.Commit(); err != nil {
			if errors.Is(err, sql.ErrTxDone) {
				err = ErrTransactionBroken
			}
			errs = append(errs, fmt.Errorf("failed to commit: %w", err))
		} else {
			committed = true
		}
	default:
		if err := db.Rollback(); err != nil {
			if errors.Is(err, sql.ErrTxDone) {
				log("transaction already ended before rollback", "error", err)
			} else {
				errs = append(errs, fmt.Errorf("failed to roll back: %w", err))
			}
		}
	}

	if err := db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close database: %w", err))
	}
	return committed, errors.Join(errs...)
}

func (t *tree) scopedCaches() *cache.IsolatedCaches {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.isolated
}

func (t *tree) notifications() *notification.Publisher {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.publisher
}

// Dispose ends the scope. A root commits or rolls back its transaction, releases the
// tree's locks and flushes its notifications; a child hands its vote to its parent.
//
// Disposing a scope that is not the innermost of its flow panics with *UsageError.
// Disposing twice returns ErrDisposed.
func (s *Scope) Dispose() error {
	if s.isDisposed() {
		return ErrDisposed
	}

	release := s.flow.claim("dispose", s.id)
	if top := s.flow.scope(); top != s {
		release()
		panic(&UsageError{Op: "dispose", ScopeID: s.id, AmbientID: idOf(top), Err: ErrNotAmbient})
	}
	release()

	s.mu.Lock()
	s.disposed = true
	s.mu.Unlock()

	if s.autoComplete {
		s.Complete()
	}

	ctx := context.WithoutCancel(s.ctx)
	logger := s.provider.logger
	vote := s.Completion()

	var errs []error
	s.tree.locks.ClearLocks(s.id)

	committed := false
	if s.parent == nil {
		var err error
		committed, err = s.tree.finish(vote == Commit, logger.Warn)
		if err != nil {
			errs = append(errs, err)
		}
		if err := s.tree.locks.ReleaseAll(ctx); err != nil {
			errs = append(errs, err)
		}
	} else {
		s.parent.childCompleted(vote)
	}

	release = s.flow.claim("dispose", s.id)
	s.flow.popScope(s)
	release()

	if s.parent == nil {
		if p := s.tree.notifications(); p != nil {
			if err := p.ScopeExit(ctx, committed); err != nil {
				logger.Error("notification flush failed", "scope", s.id, "error", err)
				errs = append(errs, fmt.Errorf("failed to flush notifications: %w", err))
			}
		}
		if isolated := s.tree.scopedCaches(); committed && isolated != nil {
			for _, t := range isolated.Types() {
				s.provider.caches.Isolated.ClearCache(t)
			}
		}
	}

	if s.ownsContext {
		if err := s.scopeCtx.exit(ctx, committed); err != nil {
			errs = append(errs, err)
		}
		release = s.flow.claim("dispose", s.id)
		s.flow.popContext(s.scopeCtx)
		release()
	}

	logger.Debug("scope disposed", "scope", s.id, "depth", s.depth, "vote", vote, "committed", committed)
	return errors.Join(errs...)
}

func idOf(s *Scope) uuid.UUID {
	if s == nil {
		return uuid.Nil
	}
	return s.id
}
