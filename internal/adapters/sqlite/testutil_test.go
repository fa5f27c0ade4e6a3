// Package sqlite_test contains integration tests for SQLite repositories.
//
// # Schema Protection
//
// This file is the SINGLE POINT where the database schema is loaded for tests.
// All test setup functions use db.GetSchemaSQL() to ensure tests run against
// the authoritative schema, preventing drift between test and production.
//
// DO NOT hardcode CREATE TABLE statements in test files. Use setupTestDB() and
// the seed* helpers instead.
package sqlite_test

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/example/cmscope/internal/adapters/sqlite"
	"github.com/example/cmscope/internal/cache"
	"github.com/example/cmscope/internal/db"
	"github.com/example/cmscope/internal/notification"
	"github.com/example/cmscope/internal/scope"
)

// setupTestDB creates an in-memory database with the authoritative schema.
// The pool is limited to one connection so every scope tree sees the same database.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	testDB, err := sql.Open("sqlite3", db.DSN(":memory:"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	testDB.SetMaxOpenConns(1)

	// Use the authoritative schema from schema.go
	_, err = testDB.Exec(db.GetSchemaSQL())
	if err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	t.Cleanup(func() {
		testDB.Close()
	})

	return testDB
}

// testEnv bundles a database with a scope provider over it.
type testEnv struct {
	db         *sql.DB
	provider   *scope.Provider
	caches     *cache.AppCaches
	aggregator *notification.Aggregator
}

func setupTestEnv(t *testing.T, opts ...scope.ProviderOption) *testEnv {
	t.Helper()
	testDB := setupTestDB(t)
	caches := cache.NewAppCaches()
	agg := notification.NewAggregator(nil)
	opts = append([]scope.ProviderOption{scope.WithAppCaches(caches)}, opts...)
	return &testEnv{
		db:         testDB,
		provider:   scope.NewProvider(sqlite.NewDatabaseFactory(testDB), agg, opts...),
		caches:     caches,
		aggregator: agg,
	}
}

// inScope runs fn in a scope that commits when fn succeeds.
func (e *testEnv) inScope(t *testing.T, fn func(ctx context.Context) error) {
	t.Helper()
	err := e.provider.Do(context.Background(), func(ctx context.Context, s *scope.Scope) error {
		return fn(ctx)
	})
	if err != nil {
		t.Fatalf("scope failed: %v", err)
	}
}

// seedDocument inserts a test document and returns its ID.
func seedDocument(t *testing.T, testDB *sql.DB, id, parentID, name string) string {
	t.Helper()
	if id == "" {
		id = "DOC-001"
	}
	if name == "" {
		name = "Test Document"
	}
	var parent any
	if parentID != "" {
		parent = parentID
	}
	_, err := testDB.Exec(
		"INSERT INTO documents (id, key, parent_id, name, content_type) VALUES (?, ?, ?, ?, 'textPage')",
		id, "key-"+id, parent, name,
	)
	if err != nil {
		t.Fatalf("failed to seed document: %v", err)
	}
	return id
}

// countRows returns the number of rows in table.
func countRows(t *testing.T, testDB *sql.DB, table string) int {
	t.Helper()
	var n int
	if err := testDB.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("failed to count %s: %v", table, err)
	}
	return n
}
