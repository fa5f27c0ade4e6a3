package scope

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrDisposed is returned when a disposed scope, or a scope whose ancestor was
	// disposed, is used again.
	ErrDisposed = errors.New("scope: already disposed")

	// ErrNotAmbient means a scope was disposed while it was not the innermost scope of
	// its flow. Raised as a panic wrapped in *UsageError.
	ErrNotAmbient = errors.New("scope: not the ambient scope")

	// ErrConcurrentFlow means two goroutines mutated the same ambient stack at once.
	// Raised as a panic wrapped in *UsageError.
	ErrConcurrentFlow = errors.New("scope: ambient stack used from more than one goroutine")

	// ErrNoAmbientScope is returned by RequireAmbient when ctx carries no scope.
	ErrNoAmbientScope = errors.New("scope: no ambient scope")

	// ErrTransactionBroken is returned when a tree voted to commit but the database had
	// already ended the transaction.
	ErrTransactionBroken = errors.New("scope: transaction was ended by the database before commit")
)

// UsageError describes a misuse of the scope API. These are programming errors and
// are raised with panic, never returned.
type UsageError struct {
	Op        string
	ScopeID   uuid.UUID
	AmbientID uuid.UUID
	Err       error
}

func (e *UsageError) Error() string {
	if e.AmbientID == uuid.Nil {
		return fmt.Sprintf("scope %s: %s: %v", e.ScopeID, e.Op, e.Err)
	}
	return fmt.Sprintf("scope %s: %s: %v (ambient scope is %s)", e.ScopeID, e.Op, e.Err, e.AmbientID)
}

func (e *UsageError) Unwrap() error {
	return e.Err
}
