package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/example/cmscope/internal/ports/secondary"
)

// maxReaders is the semaphore capacity per lock id. A writer takes all of it.
const maxReaders = 1 << 20

// Registry is the process-local half of locking: one weighted semaphore per lock id,
// shared by every scope tree in the process.
type Registry struct {
	mu   sync.Mutex
	sems map[int]*semaphore.Weighted
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sems: make(map[int]*semaphore.Weighted)}
}

func (r *Registry) semaphore(id int) *semaphore.Weighted {
	r.mu.Lock()
	defer r.mu.Unlock()

	sem, ok := r.sems[id]
	if !ok {
		sem = semaphore.NewWeighted(maxReaders)
		r.sems[id] = sem
	}
	return sem
}

func weight(mode secondary.LockMode) int64 {
	if mode == secondary.WriteLock {
		return maxReaders
	}
	return 1
}

// Acquire blocks until id is held in mode. A zero timeout waits as long as ctx allows.
func (r *Registry) Acquire(ctx context.Context, id int, mode secondary.LockMode, timeout time.Duration) (*LocalLock, error) {
	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	sem := r.semaphore(id)
	if err := sem.Acquire(waitCtx, weight(mode)); err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			err = ErrLockTimeout
		}
		return nil, &LockError{LockID: id, Mode: mode, Err: err}
	}
	return &LocalLock{sem: sem, id: id, mode: mode}, nil
}

// Upgrade turns a held read lock into a write lock by waiting for the rest of the
// semaphore. The read share stays held throughout, so on failure l is still a read lock.
func (r *Registry) Upgrade(ctx context.Context, l *LocalLock, timeout time.Duration) error {
	if l.mode == secondary.WriteLock {
		return nil
	}
	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := l.sem.Acquire(waitCtx, maxReaders-1); err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			err = ErrLockTimeout
		}
		return &LockError{LockID: l.id, Mode: secondary.WriteLock, Err: err}
	}
	l.mode = secondary.WriteLock
	return nil
}

// Downgrade turns a write lock taken by Upgrade back into a read lock.
func (r *Registry) Downgrade(l *LocalLock) {
	if l.mode != secondary.WriteLock {
		return
	}
	l.sem.Release(maxReaders - 1)
	l.mode = secondary.ReadLock
}

// TryAcquire takes id in mode only if it is free right now.
func (r *Registry) TryAcquire(id int, mode secondary.LockMode) (*LocalLock, bool) {
	sem := r.semaphore(id)
	if !sem.TryAcquire(weight(mode)) {
		return nil, false
	}
	return &LocalLock{sem: sem, id: id, mode: mode}, true
}

// LocalLock is a held registry lock.
type LocalLock struct {
	once sync.Once
	sem  *semaphore.Weighted
	id   int
	mode secondary.LockMode
}

var _ secondary.DistributedLock = (*LocalLock)(nil)

// LockID returns the lock id.
func (l *LocalLock) LockID() int { return l.id }

// Mode returns the mode the lock is held in.
func (l *LocalLock) Mode() secondary.LockMode { return l.mode }

// Release frees the lock. Later calls are no-ops.
func (l *LocalLock) Release(context.Context) error {
	l.once.Do(func() {
		l.sem.Release(weight(l.mode))
	})
	return nil
}
