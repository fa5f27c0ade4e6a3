package secondary

import (
	"context"
	"time"
)

// LockMode is the access mode a lock is held in.
type LockMode int

const (
	// ReadLock is shared with other readers.
	ReadLock LockMode = iota
	// WriteLock excludes every other holder.
	WriteLock
)

func (m LockMode) String() string {
	switch m {
	case ReadLock:
		return "read"
	case WriteLock:
		return "write"
	default:
		return "unknown"
	}
}

// DistributedLockingMechanism is a process-external lock backend shared by every
// server running against the same data.
type DistributedLockingMechanism interface {
	// Enabled reports whether the backend should be consulted at all.
	Enabled() bool

	// ReadLock blocks until a shared lock on lockID is held or timeout elapses.
	ReadLock(ctx context.Context, lockID int, timeout time.Duration) (DistributedLock, error)

	// WriteLock blocks until an exclusive lock on lockID is held or timeout elapses.
	WriteLock(ctx context.Context, lockID int, timeout time.Duration) (DistributedLock, error)
}

// DistributedLock is one acquired lock. Release is safe to call more than once.
type DistributedLock interface {
	LockID() int
	Mode() LockMode
	Release(ctx context.Context) error
}
