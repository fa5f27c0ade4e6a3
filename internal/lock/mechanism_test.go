package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/cmscope/internal/ports/secondary"
)

type fakeDistributed struct {
	mu       sync.Mutex
	enabled  bool
	err      error
	writeErr error
	acquired []int
	released []int
}

func (f *fakeDistributed) Enabled() bool { return f.enabled }

func (f *fakeDistributed) ReadLock(ctx context.Context, id int, timeout time.Duration) (secondary.DistributedLock, error) {
	return f.lock(id, secondary.ReadLock)
}

func (f *fakeDistributed) WriteLock(ctx context.Context, id int, timeout time.Duration) (secondary.DistributedLock, error) {
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	return f.lock(id, secondary.WriteLock)
}

func (f *fakeDistributed) lock(id int, mode secondary.LockMode) (secondary.DistributedLock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.acquired = append(f.acquired, id)
	return &fakeRemoteLock{owner: f, id: id, mode: mode}, nil
}

type fakeRemoteLock struct {
	owner *fakeDistributed
	id    int
	mode  secondary.LockMode
}

func (l *fakeRemoteLock) LockID() int              { return l.id }
func (l *fakeRemoteLock) Mode() secondary.LockMode { return l.mode }
func (l *fakeRemoteLock) Release(context.Context) error {
	l.owner.mu.Lock()
	defer l.owner.mu.Unlock()
	l.owner.released = append(l.owner.released, l.id)
	return nil
}

func TestMechanism_ReentrantWithinTree(t *testing.T) {
	ctx := context.Background()
	m := NewMechanism(NewRegistry(), WithTimeouts(50*time.Millisecond, 50*time.Millisecond))
	root, child := uuid.New(), uuid.New()

	require.NoError(t, m.EagerWriteLock(ctx, root, 0, ContentTree))
	// A second exclusive request from the same tree must not block on itself.
	require.NoError(t, m.EagerWriteLock(ctx, child, 0, ContentTree))
	require.NoError(t, m.EagerReadLock(ctx, child, 0, ContentTree))

	assert.Equal(t, 1, m.WriteLockCount(root, ContentTree))
	assert.Equal(t, 1, m.WriteLockCount(child, ContentTree))
	assert.Equal(t, 1, m.ReadLockCount(child, ContentTree))
	assert.Equal(t, []int{ContentTree}, m.Held())
}

func TestMechanism_ClearLocksOnlyAffectsOneScope(t *testing.T) {
	ctx := context.Background()
	m := NewMechanism(NewRegistry())
	root, first, second := uuid.New(), uuid.New(), uuid.New()

	require.NoError(t, m.EagerReadLock(ctx, root, 0, Languages))
	require.NoError(t, m.EagerReadLock(ctx, first, 0, Languages, Domains))
	require.NoError(t, m.EagerReadLock(ctx, second, 0, Languages))

	m.ClearLocks(first)

	assert.Zero(t, m.ReadLockCount(first, Languages))
	assert.Zero(t, m.ReadLockCount(first, Domains))
	assert.Equal(t, 1, m.ReadLockCount(root, Languages))
	assert.Equal(t, 1, m.ReadLockCount(second, Languages))
	// Underlying locks stay with the tree until the root releases them.
	assert.Equal(t, []int{Languages, Domains}, m.Held())
}

func TestMechanism_WriteExcludesOtherTrees(t *testing.T) {
	ctx := context.Background()
	registry := NewRegistry()
	first := NewMechanism(registry)
	second := NewMechanism(registry, WithTimeouts(20*time.Millisecond, 20*time.Millisecond))

	require.NoError(t, first.EagerWriteLock(ctx, uuid.New(), 0, ContentTree))

	err := second.EagerReadLock(ctx, uuid.New(), 0, ContentTree)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLockTimeout))
	var lockErr *LockError
	require.True(t, errors.As(err, &lockErr))
	assert.Equal(t, ContentTree, lockErr.LockID)
	assert.Equal(t, secondary.ReadLock, lockErr.Mode)

	require.NoError(t, first.ReleaseAll(ctx))
	require.NoError(t, second.EagerReadLock(ctx, uuid.New(), 0, ContentTree))
	require.NoError(t, second.ReleaseAll(ctx))
}

func TestMechanism_ReadersShare(t *testing.T) {
	ctx := context.Background()
	registry := NewRegistry()
	first := NewMechanism(registry, WithTimeouts(20*time.Millisecond, 20*time.Millisecond))
	second := NewMechanism(registry, WithTimeouts(20*time.Millisecond, 20*time.Millisecond))

	require.NoError(t, first.EagerReadLock(ctx, uuid.New(), 0, ContentTypes))
	require.NoError(t, second.EagerReadLock(ctx, uuid.New(), 0, ContentTypes))

	err := second.EagerWriteLock(ctx, uuid.New(), 0, ContentTypes)
	assert.ErrorIs(t, err, ErrLockTimeout)
}

func TestMechanism_QueuedLocksAcquiredOnEnsure(t *testing.T) {
	ctx := context.Background()
	registry := NewRegistry()
	m := NewMechanism(registry)
	root, child := uuid.New(), uuid.New()

	m.WriteLock(root, ContentTree)
	m.ReadLock(child, Languages)
	assert.Equal(t, 2, m.Pending())
	assert.Empty(t, m.Held())

	require.NoError(t, m.EnsureLocks(ctx, child))
	assert.Zero(t, m.Pending())
	assert.Equal(t, 1, m.WriteLockCount(root, ContentTree))
	assert.Equal(t, 1, m.ReadLockCount(child, Languages))

	_, free := registry.TryAcquire(ContentTree, secondary.ReadLock)
	assert.False(t, free)
}

func TestMechanism_ClearLocksDropsQueuedRequests(t *testing.T) {
	ctx := context.Background()
	m := NewMechanism(NewRegistry())
	root, child := uuid.New(), uuid.New()

	m.ReadLock(root, Domains)
	m.WriteLock(child, ContentTree)
	m.ClearLocks(child)

	require.NoError(t, m.EnsureLocks(ctx, root))
	assert.Equal(t, []int{Domains}, m.Held())
}

func TestMechanism_UpgradeReadToWrite(t *testing.T) {
	ctx := context.Background()
	m := NewMechanism(NewRegistry())
	scopeID := uuid.New()

	require.NoError(t, m.EagerReadLock(ctx, scopeID, 0, KeyValues))
	require.NoError(t, m.EagerWriteLock(ctx, scopeID, 0, KeyValues))

	mode, ok := m.HeldMode(KeyValues)
	require.True(t, ok)
	assert.Equal(t, secondary.WriteLock, mode)
}

func TestMechanism_FailedUpgradeKeepsReadLock(t *testing.T) {
	ctx := context.Background()
	registry := NewRegistry()
	short := WithTimeouts(20*time.Millisecond, 20*time.Millisecond)
	first := NewMechanism(registry, short)
	second := NewMechanism(registry, short)
	firstScope := uuid.New()

	require.NoError(t, first.EagerReadLock(ctx, firstScope, 0, ContentTree))
	require.NoError(t, second.EagerReadLock(ctx, uuid.New(), 0, ContentTree))

	err := first.EagerWriteLock(ctx, firstScope, 0, ContentTree)
	require.ErrorIs(t, err, ErrLockTimeout)

	mode, ok := first.HeldMode(ContentTree)
	require.True(t, ok)
	assert.Equal(t, secondary.ReadLock, mode)
	assert.Equal(t, 1, first.ReadLockCount(firstScope, ContentTree))
	assert.Equal(t, 0, first.WriteLockCount(firstScope, ContentTree))

	// The first tree's read must still exclude writers once the second tree is gone.
	require.NoError(t, second.ReleaseAll(ctx))
	third := NewMechanism(registry, short)
	err = third.EagerWriteLock(ctx, uuid.New(), 0, ContentTree)
	require.ErrorIs(t, err, ErrLockTimeout)

	require.NoError(t, first.EagerWriteLock(ctx, firstScope, 0, ContentTree))
	mode, _ = first.HeldMode(ContentTree)
	assert.Equal(t, secondary.WriteLock, mode)

	require.NoError(t, first.ReleaseAll(ctx))
	l, ok := registry.TryAcquire(ContentTree, secondary.WriteLock)
	require.True(t, ok)
	require.NoError(t, l.Release(ctx))
}

func TestMechanism_FailedDistributedUpgradeRestoresRead(t *testing.T) {
	ctx := context.Background()
	registry := NewRegistry()
	remote := &fakeDistributed{enabled: true, writeErr: errors.New("backend busy")}
	m := NewMechanism(registry, WithDistributed(remote))
	scopeID := uuid.New()

	require.NoError(t, m.EagerReadLock(ctx, scopeID, 0, MediaTree))
	err := m.EagerWriteLock(ctx, scopeID, 0, MediaTree)
	var lockErr *LockError
	require.ErrorAs(t, err, &lockErr)
	assert.Equal(t, secondary.WriteLock, lockErr.Mode)

	mode, ok := m.HeldMode(MediaTree)
	require.True(t, ok)
	assert.Equal(t, secondary.ReadLock, mode)
	assert.Equal(t, []int{MediaTree, MediaTree}, remote.acquired)

	// Local state is back to a single read share.
	_, ok = registry.TryAcquire(MediaTree, secondary.WriteLock)
	assert.False(t, ok)
	other, ok := registry.TryAcquire(MediaTree, secondary.ReadLock)
	require.True(t, ok)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, m.ReleaseAll(ctx))
	assert.Equal(t, []int{MediaTree, MediaTree}, remote.released)
	l, ok := registry.TryAcquire(MediaTree, secondary.WriteLock)
	require.True(t, ok)
	require.NoError(t, l.Release(ctx))
}

func TestMechanism_ReleaseAllFreesRegistry(t *testing.T) {
	ctx := context.Background()
	registry := NewRegistry()
	m := NewMechanism(registry)

	require.NoError(t, m.EagerWriteLock(ctx, uuid.New(), 0, ContentTree, MediaTree))
	require.NoError(t, m.ReleaseAll(ctx))
	assert.Empty(t, m.Held())

	for _, id := range []int{ContentTree, MediaTree} {
		l, ok := registry.TryAcquire(id, secondary.WriteLock)
		require.True(t, ok, "lock %s should be free", Name(id))
		require.NoError(t, l.Release(ctx))
	}
}

func TestMechanism_DistributedBacking(t *testing.T) {
	ctx := context.Background()
	remote := &fakeDistributed{enabled: true}
	m := NewMechanism(NewRegistry(), WithDistributed(remote))

	require.NoError(t, m.EagerWriteLock(ctx, uuid.New(), 0, ContentTree))
	require.NoError(t, m.EagerWriteLock(ctx, uuid.New(), 0, ContentTree))
	assert.Equal(t, []int{ContentTree}, remote.acquired)

	require.NoError(t, m.ReleaseAll(ctx))
	assert.Equal(t, []int{ContentTree}, remote.released)
}

func TestMechanism_DistributedFailureReleasesLocal(t *testing.T) {
	ctx := context.Background()
	registry := NewRegistry()
	remote := &fakeDistributed{enabled: true, err: errors.New("backend down")}
	m := NewMechanism(registry, WithDistributed(remote))

	err := m.EagerWriteLock(ctx, uuid.New(), 0, Servers)
	require.Error(t, err)
	var lockErr *LockError
	require.ErrorAs(t, err, &lockErr)
	assert.Equal(t, Servers, lockErr.LockID)

	l, ok := registry.TryAcquire(Servers, secondary.WriteLock)
	require.True(t, ok)
	require.NoError(t, l.Release(ctx))
}

func TestMechanism_DisabledDistributedIsSkipped(t *testing.T) {
	ctx := context.Background()
	remote := &fakeDistributed{enabled: false}
	m := NewMechanism(NewRegistry(), WithDistributed(remote))

	require.NoError(t, m.EagerReadLock(ctx, uuid.New(), 0, Languages))
	assert.Empty(t, remote.acquired)
}

func TestName(t *testing.T) {
	assert.Equal(t, "content-tree", Name(ContentTree))
	assert.Equal(t, "42", Name(42))
}
