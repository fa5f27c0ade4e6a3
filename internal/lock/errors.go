package lock

import (
	"errors"
	"fmt"

	"github.com/example/cmscope/internal/ports/secondary"
)

// ErrLockTimeout is returned when a lock could not be acquired in time.
var ErrLockTimeout = errors.New("lock: timed out waiting for lock")

// LockError describes a failed acquisition.
type LockError struct {
	LockID int
	Mode   secondary.LockMode
	Err    error
}

func (e *LockError) Error() string {
	return fmt.Sprintf("failed to acquire %s lock on %s: %v", e.Mode, Name(e.LockID), e.Err)
}

func (e *LockError) Unwrap() error {
	return e.Err
}
