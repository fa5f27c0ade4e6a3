package secondary

import (
	"context"
	"database/sql"
)

// Executor is the statement surface shared by *sql.Tx and *sql.Conn.
// Repositories only ever see this, never the transaction itself.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DatabaseFactory opens the connection a scope tree runs its transaction on.
type DatabaseFactory interface {
	// Create opens a dedicated connection. The caller owns it and must Close it.
	Create(ctx context.Context) (Database, error)
}

// Database is a single connection owned by the root scope of a tree.
//
// Commit and Rollback return sql.ErrTxDone when the driver already finished the
// transaction (for example after being chosen as a deadlock victim).
type Database interface {
	// Begin starts a transaction on the connection.
	Begin(ctx context.Context, opts *sql.TxOptions) error

	// InTransaction reports whether a transaction is open.
	InTransaction() bool

	// Executor returns the transaction when one is open, otherwise the bare connection.
	Executor() Executor

	// Commit commits the open transaction.
	Commit() error

	// Rollback rolls back the open transaction.
	Rollback() error

	// Close returns the connection to its pool.
	Close() error
}
