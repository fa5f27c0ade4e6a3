package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"

	"github.com/example/cmscope/internal/lock"
	"github.com/example/cmscope/internal/ports/secondary"
)

// A write lock is a string key holding the owner token. Read locks are members of a
// set; the set expires when no reader refreshes it.
var (
	readLockScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('SADD', KEYS[2], ARGV[1])
redis.call('PEXPIRE', KEYS[2], ARGV[2])
return 1
`)

	writeLockScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
if redis.call('SCARD', KEYS[2]) > 0 then
	return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
return 1
`)

	releaseWriteScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)
)

var errHeldElsewhere = errors.New("lock held by another server")

// LockingMechanism implements secondary.DistributedLockingMechanism on Redis.
type LockingMechanism struct {
	conn         *Connection
	ttl          time.Duration
	pollInterval time.Duration
	logger       *slog.Logger
}

var _ secondary.DistributedLockingMechanism = (*LockingMechanism)(nil)

// NewLockingMechanism creates a mechanism whose locks expire after ttl unless
// released, so a crashed server cannot hold them forever.
func NewLockingMechanism(conn *Connection, ttl time.Duration, logger *slog.Logger) *LockingMechanism {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LockingMechanism{
		conn:         conn,
		ttl:          ttl,
		pollInterval: 25 * time.Millisecond,
		logger:       logger,
	}
}

// Enabled reports whether a connection is configured.
func (m *LockingMechanism) Enabled() bool {
	return m != nil && m.conn != nil && m.conn.Client != nil
}

// ReadLock waits until no writer holds lockID, then joins its readers.
func (m *LockingMechanism) ReadLock(ctx context.Context, lockID int, timeout time.Duration) (secondary.DistributedLock, error) {
	return m.acquire(ctx, lockID, secondary.ReadLock, timeout, readLockScript)
}

// WriteLock waits until lockID has neither a writer nor readers, then takes it.
func (m *LockingMechanism) WriteLock(ctx context.Context, lockID int, timeout time.Duration) (secondary.DistributedLock, error) {
	return m.acquire(ctx, lockID, secondary.WriteLock, timeout, writeLockScript)
}

func (m *LockingMechanism) acquire(ctx context.Context, lockID int, mode secondary.LockMode, timeout time.Duration, script *redis.Script) (secondary.DistributedLock, error) {
	token := uuid.NewString()
	keys := []string{m.conn.key("lock", lockID, "w"), m.conn.key("lock", lockID, "r")}

	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	err := retry.Do(waitCtx, retry.NewConstant(m.pollInterval), func(ctx context.Context) error {
		ok, err := script.Run(ctx, m.conn.Client, keys, token, m.ttl.Milliseconds()).Int()
		if err != nil {
			return fmt.Errorf("failed to run lock script: %w", err)
		}
		if ok == 0 {
			return retry.RetryableError(errHeldElsewhere)
		}
		return nil
	})
	if err != nil {
		if ctx.Err() == nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(err, errHeldElsewhere)) {
			err = lock.ErrLockTimeout
		}
		return nil, &lock.LockError{LockID: lockID, Mode: mode, Err: err}
	}

	m.logger.Debug("distributed lock acquired", "lock", lock.Name(lockID), "mode", mode)
	return &distributedLock{conn: m.conn, keys: keys, token: token, lockID: lockID, mode: mode}, nil
}

type distributedLock struct {
	once   sync.Once
	conn   *Connection
	keys   []string
	token  string
	lockID int
	mode   secondary.LockMode
}

func (l *distributedLock) LockID() int { return l.lockID }

func (l *distributedLock) Mode() secondary.LockMode { return l.mode }

func (l *distributedLock) Release(ctx context.Context) error {
	var err error
	l.once.Do(func() {
		if l.mode == secondary.WriteLock {
			err = releaseWriteScript.Run(ctx, l.conn.Client, l.keys[:1], l.token).Err()
		} else {
			err = l.conn.Client.SRem(ctx, l.keys[1], l.token).Err()
		}
		if err != nil {
			err = fmt.Errorf("failed to release %s lock on %s: %w", l.mode, lock.Name(l.lockID), err)
		}
	})
	return err
}
