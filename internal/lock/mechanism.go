package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/cmscope/internal/ports/secondary"
)

// Default acquisition timeouts.
const (
	DefaultReadTimeout  = 60 * time.Second
	DefaultWriteTimeout = 5 * time.Second
)

// Mechanism is the lock ledger of one scope tree. Only the root scope creates one;
// children use their root's instance so that lock lifetime equals transaction lifetime.
//
// Underlying locks are taken once per tree and held until ReleaseAll. Each scope's
// references are counted separately so ClearLocks can drop exactly what that scope asked for.
type Mechanism struct {
	registry     *Registry
	distributed  secondary.DistributedLockingMechanism
	readTimeout  time.Duration
	writeTimeout time.Duration
	logger       *slog.Logger

	mu          sync.Mutex
	queue       []request
	readCounts  map[uuid.UUID]map[int]int
	writeCounts map[uuid.UUID]map[int]int
	held        map[int]*heldLock
}

type request struct {
	scopeID uuid.UUID
	mode    secondary.LockMode
	lockIDs []int
}

type heldLock struct {
	mode   secondary.LockMode
	local  *LocalLock
	remote secondary.DistributedLock
}

func (h *heldLock) release(ctx context.Context) error {
	var err error
	if h.remote != nil {
		err = h.remote.Release(ctx)
	}
	if h.local != nil {
		err = errors.Join(err, h.local.Release(ctx))
	}
	return err
}

// Option configures a Mechanism.
type Option func(*Mechanism)

// WithDistributed adds a process-external backend consulted after the local registry.
func WithDistributed(d secondary.DistributedLockingMechanism) Option {
	return func(m *Mechanism) {
		m.distributed = d
	}
}

// WithTimeouts overrides the default read and write acquisition timeouts.
// Zero keeps the default.
func WithTimeouts(read, write time.Duration) Option {
	return func(m *Mechanism) {
		if read > 0 {
			m.readTimeout = read
		}
		if write > 0 {
			m.writeTimeout = write
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Mechanism) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewMechanism creates the ledger for a new scope tree.
func NewMechanism(registry *Registry, opts ...Option) *Mechanism {
	m := &Mechanism{
		registry:     registry,
		readTimeout:  DefaultReadTimeout,
		writeTimeout: DefaultWriteTimeout,
		logger:       slog.Default(),
		readCounts:   make(map[uuid.UUID]map[int]int),
		writeCounts:  make(map[uuid.UUID]map[int]int),
		held:         make(map[int]*heldLock),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// ReadLock queues shared locks for scopeID. They are taken by the next EnsureLocks.
func (m *Mechanism) ReadLock(scopeID uuid.UUID, lockIDs ...int) {
	m.enqueue(scopeID, secondary.ReadLock, lockIDs)
}

// WriteLock queues exclusive locks for scopeID. They are taken by the next EnsureLocks.
func (m *Mechanism) WriteLock(scopeID uuid.UUID, lockIDs ...int) {
	m.enqueue(scopeID, secondary.WriteLock, lockIDs)
}

func (m *Mechanism) enqueue(scopeID uuid.UUID, mode secondary.LockMode, lockIDs []int) {
	if len(lockIDs) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, request{scopeID: scopeID, mode: mode, lockIDs: append([]int(nil), lockIDs...)})
}

// Pending reports how many lock requests are queued.
func (m *Mechanism) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// EnsureLocks acquires every queued request in the tree. Each acquisition is
// attributed to the scope that queued it; triggeredBy only appears in logs.
func (m *Mechanism) EnsureLocks(ctx context.Context, triggeredBy uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.queue) == 0 {
		return nil
	}
	queue := m.queue
	m.queue = nil

	m.logger.Debug("acquiring queued locks", "scope", triggeredBy, "requests", len(queue))
	for _, req := range queue {
		for _, id := range req.lockIDs {
			if err := m.acquire(ctx, req.scopeID, req.mode, m.timeout(req.mode), id); err != nil {
				return err
			}
		}
	}
	return nil
}

// EagerReadLock takes shared locks immediately. A zero timeout uses the default.
func (m *Mechanism) EagerReadLock(ctx context.Context, scopeID uuid.UUID, timeout time.Duration, lockIDs ...int) error {
	return m.eager(ctx, scopeID, secondary.ReadLock, timeout, lockIDs)
}

// EagerWriteLock takes exclusive locks immediately. A zero timeout uses the default.
func (m *Mechanism) EagerWriteLock(ctx context.Context, scopeID uuid.UUID, timeout time.Duration, lockIDs ...int) error {
	return m.eager(ctx, scopeID, secondary.WriteLock, timeout, lockIDs)
}

func (m *Mechanism) eager(ctx context.Context, scopeID uuid.UUID, mode secondary.LockMode, timeout time.Duration, lockIDs []int) error {
	if timeout <= 0 {
		timeout = m.timeout(mode)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range lockIDs {
		if err := m.acquire(ctx, scopeID, mode, timeout, id); err != nil {
			return err
		}
	}
	return nil
}

func (m *Mechanism) timeout(mode secondary.LockMode) time.Duration {
	if mode == secondary.WriteLock {
		return m.writeTimeout
	}
	return m.readTimeout
}

// acquire must be called with m.mu held.
func (m *Mechanism) acquire(ctx context.Context, scopeID uuid.UUID, mode secondary.LockMode, timeout time.Duration, id int) error {
	if h, ok := m.held[id]; ok {
		if h.mode == secondary.WriteLock || mode == secondary.ReadLock {
			m.count(scopeID, mode, id)
			return nil
		}
		if err := m.upgrade(ctx, h, id, timeout); err != nil {
			return err
		}
		m.count(scopeID, mode, id)
		m.logger.Debug("lock upgraded", "lock", Name(id), "scope", scopeID)
		return nil
	}

	h, err := m.take(ctx, id, mode, timeout)
	if err != nil {
		return err
	}
	m.held[id] = h
	m.count(scopeID, mode, id)
	m.logger.Debug("lock acquired", "lock", Name(id), "mode", mode, "scope", scopeID)
	return nil
}

// upgrade turns the tree's read lock on id into a write lock. The local read share is
// kept until the write is granted, so a failed upgrade leaves h a read lock.
//
// A distributed read lock cannot be upgraded in place: it is released, the write is
// requested, and on failure the read is taken again.
func (m *Mechanism) upgrade(ctx context.Context, h *heldLock, id int, timeout time.Duration) error {
	start := time.Now()
	if err := m.registry.Upgrade(ctx, h.local, timeout); err != nil {
		return err
	}
	if h.remote == nil {
		h.mode = secondary.WriteLock
		return nil
	}

	remaining := timeout - time.Since(start)
	if timeout > 0 && remaining <= 0 {
		m.registry.Downgrade(h.local)
		return &LockError{LockID: id, Mode: secondary.WriteLock, Err: ErrLockTimeout}
	}
	if err := h.remote.Release(ctx); err != nil {
		m.registry.Downgrade(h.local)
		return fmt.Errorf("failed to release read lock on %s for upgrade: %w", Name(id), err)
	}
	remote, err := m.distributed.WriteLock(ctx, id, remaining)
	if err == nil {
		h.remote = remote
		h.mode = secondary.WriteLock
		return nil
	}

	m.registry.Downgrade(h.local)
	var lockErr *LockError
	if !errors.As(err, &lockErr) {
		err = &LockError{LockID: id, Mode: secondary.WriteLock, Err: err}
	}
	remote, rerr := m.distributed.ReadLock(ctx, id, m.readTimeout)
	if rerr != nil {
		h.remote = nil
		m.logger.Error("lost distributed read lock after failed upgrade", "lock", Name(id), "error", rerr)
		return errors.Join(err, fmt.Errorf("failed to restore read lock on %s: %w", Name(id), rerr))
	}
	h.remote = remote
	return err
}

func (m *Mechanism) take(ctx context.Context, id int, mode secondary.LockMode, timeout time.Duration) (*heldLock, error) {
	start := time.Now()
	local, err := m.registry.Acquire(ctx, id, mode, timeout)
	if err != nil {
		return nil, err
	}
	h := &heldLock{mode: mode, local: local}

	if m.distributed == nil || !m.distributed.Enabled() {
		return h, nil
	}

	remaining := timeout - time.Since(start)
	if remaining <= 0 {
		_ = local.Release(ctx)
		return nil, &LockError{LockID: id, Mode: mode, Err: ErrLockTimeout}
	}

	var remote secondary.DistributedLock
	if mode == secondary.WriteLock {
		remote, err = m.distributed.WriteLock(ctx, id, remaining)
	} else {
		remote, err = m.distributed.ReadLock(ctx, id, remaining)
	}
	if err != nil {
		_ = local.Release(ctx)
		var lockErr *LockError
		if errors.As(err, &lockErr) {
			return nil, err
		}
		return nil, &LockError{LockID: id, Mode: mode, Err: err}
	}
	h.remote = remote
	return h, nil
}

func (m *Mechanism) count(scopeID uuid.UUID, mode secondary.LockMode, id int) {
	counts := m.readCounts
	if mode == secondary.WriteLock {
		counts = m.writeCounts
	}
	perScope, ok := counts[scopeID]
	if !ok {
		perScope = make(map[int]int)
		counts[scopeID] = perScope
	}
	perScope[id]++
}

// ClearLocks drops the references and queued requests of scopeID only.
func (m *Mechanism) ClearLocks(scopeID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.readCounts, scopeID)
	delete(m.writeCounts, scopeID)

	kept := m.queue[:0]
	for _, req := range m.queue {
		if req.scopeID != scopeID {
			kept = append(kept, req)
		}
	}
	m.queue = kept
}

// ReleaseAll releases every underlying lock the tree holds. Called once, by the root.
func (m *Mechanism) ReleaseAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for id, h := range m.held {
		if err := h.release(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to release %s lock on %s: %w", h.mode, Name(id), err))
		}
	}
	m.held = make(map[int]*heldLock)
	m.readCounts = make(map[uuid.UUID]map[int]int)
	m.writeCounts = make(map[uuid.UUID]map[int]int)
	m.queue = nil
	return errors.Join(errs...)
}

// ReadLockCount returns how many read references scopeID holds on id.
func (m *Mechanism) ReadLockCount(scopeID uuid.UUID, id int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readCounts[scopeID][id]
}

// WriteLockCount returns how many write references scopeID holds on id.
func (m *Mechanism) WriteLockCount(scopeID uuid.UUID, id int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writeCounts[scopeID][id]
}

// Held returns the lock ids the tree currently holds, sorted.
func (m *Mechanism) Held() []int {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]int, 0, len(m.held))
	for id := range m.held {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// HeldMode reports the mode id is held in by the tree.
func (m *Mechanism) HeldMode(id int) (secondary.LockMode, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.held[id]
	if !ok {
		return 0, false
	}
	return h.mode, true
}
