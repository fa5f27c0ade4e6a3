// Package sqlite contains SQLite implementations of repository interfaces.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/sethvargo/go-retry"

	"github.com/example/cmscope/internal/ports/secondary"
)

// DatabaseFactory implements secondary.DatabaseFactory on a *sql.DB pool. Each scope
// tree gets its own pooled connection for the lifetime of its transaction.
type DatabaseFactory struct {
	db         *sql.DB
	maxRetries uint64
	retryDelay time.Duration
}

// NewDatabaseFactory creates a factory handing out connections from db.
func NewDatabaseFactory(db *sql.DB) *DatabaseFactory {
	return &DatabaseFactory{
		db:         db,
		maxRetries: 5,
		retryDelay: 50 * time.Millisecond,
	}
}

// Create checks a connection out of the pool.
func (f *DatabaseFactory) Create(ctx context.Context) (secondary.Database, error) {
	conn, err := f.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	return &Database{conn: conn, maxRetries: f.maxRetries, retryDelay: f.retryDelay}, nil
}

// Database is one connection and at most one open transaction on it.
type Database struct {
	conn       *sql.Conn
	tx         *sql.Tx
	maxRetries uint64
	retryDelay time.Duration
}

var _ secondary.Database = (*Database)(nil)

// Begin starts a transaction, retrying while SQLite reports the database busy.
// ctx bounds the retries only; the transaction outlives it and ends with Commit or
// Rollback.
func (d *Database) Begin(ctx context.Context, opts *sql.TxOptions) error {
	if d.tx != nil {
		return errors.New("transaction already open")
	}

	b := retry.WithMaxRetries(d.maxRetries, retry.NewConstant(d.retryDelay))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		tx, err := d.conn.BeginTx(context.WithoutCancel(ctx), opts)
		if err != nil {
			if isBusy(err) {
				return retry.RetryableError(err)
			}
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		d.tx = tx
		return nil
	})
}

// InTransaction reports whether a transaction is open.
func (d *Database) InTransaction() bool {
	return d.tx != nil
}

// Executor returns the open transaction, or the bare connection.
func (d *Database) Executor() secondary.Executor {
	if d.tx != nil {
		return d.tx
	}
	return d.conn
}

// Commit commits the open transaction. It returns sql.ErrTxDone if none is open.
func (d *Database) Commit() error {
	if d.tx == nil {
		return sql.ErrTxDone
	}
	tx := d.tx
	d.tx = nil
	return tx.Commit()
}

// Rollback rolls back the open transaction. It returns sql.ErrTxDone if none is open.
func (d *Database) Rollback() error {
	if d.tx == nil {
		return sql.ErrTxDone
	}
	tx := d.tx
	d.tx = nil
	return tx.Rollback()
}

// Close rolls back any open transaction and returns the connection to the pool.
func (d *Database) Close() error {
	var err error
	if d.tx != nil {
		if rbErr := d.tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			err = rbErr
		}
		d.tx = nil
	}
	return errors.Join(err, d.conn.Close())
}

func isBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}
