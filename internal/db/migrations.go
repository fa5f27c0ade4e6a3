package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/example/cmscope/internal/lock"
	"github.com/example/cmscope/internal/ports/secondary"
	"github.com/example/cmscope/internal/scope"
)

// Migration represents a database migration
type Migration struct {
	Version int
	Name    string
	Up      func(ctx context.Context, ex secondary.Executor) error
}

// migrations is the list of all migrations in order
var migrations = []Migration{
	{
		Version: 1,
		Name:    "create_documents_table",
		Up:      migrationV1,
	},
	{
		Version: 2,
		Name:    "add_sort_order_and_version_to_documents",
		Up:      migrationV2,
	},
	{
		Version: 3,
		Name:    "create_audit_entries_table",
		Up:      migrationV3,
	},
	{
		Version: 4,
		Name:    "add_transaction_id_to_audit_entries",
		Up:      migrationV4,
	},
}

// LatestVersion is the schema version SchemaSQL corresponds to.
var LatestVersion = migrations[len(migrations)-1].Version

// Migrate brings the database up to LatestVersion. A fresh database gets SchemaSQL
// directly; an existing one runs each pending migration in its own scope, so a failed
// migration leaves the previous version fully intact.
func Migrate(ctx context.Context, provider *scope.Provider, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	var current int
	var fresh bool
	err := provider.Do(ctx, func(ctx context.Context, s *scope.Scope) error {
		s.WriteLock(lock.KeyValues)
		return s.ExecuteWithContext(ctx, func(ctx context.Context, ex secondary.Executor) error {
			var tableCount int
			err := ex.QueryRowContext(ctx,
				"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name IN ('schema_version', 'documents')",
			).Scan(&tableCount)
			if err != nil {
				return fmt.Errorf("failed to inspect schema: %w", err)
			}

			if tableCount == 0 {
				fresh = true
				if _, err := ex.ExecContext(ctx, SchemaSQL); err != nil {
					return fmt.Errorf("failed to create schema: %w", err)
				}
			}

			if err := ensureVersionTable(ctx, ex); err != nil {
				return err
			}

			if fresh {
				// Mark all migrations as applied for fresh installs
				for _, m := range migrations {
					if _, err := ex.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", m.Version); err != nil {
						return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
					}
				}
				current = LatestVersion
				return nil
			}

			if err := ex.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
				return fmt.Errorf("failed to get current schema version: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return err
	}
	if fresh {
		logger.Info("created schema", "version", LatestVersion)
		return nil
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		logger.Info("running migration", "version", m.Version, "name", m.Name)

		err := provider.Do(ctx, func(ctx context.Context, s *scope.Scope) error {
			s.WriteLock(lock.KeyValues)
			return s.ExecuteWithContext(ctx, func(ctx context.Context, ex secondary.Executor) error {
				if err := m.Up(ctx, ex); err != nil {
					return fmt.Errorf("migration %d failed: %w", m.Version, err)
				}
				if _, err := ex.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", m.Version); err != nil {
					return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
				}
				return nil
			})
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// CurrentVersion returns the highest applied migration, or 0 for an empty database.
func CurrentVersion(ctx context.Context, provider *scope.Provider) (int, error) {
	var version int
	err := provider.Do(ctx, func(ctx context.Context, s *scope.Scope) error {
		return s.ExecuteWithContext(ctx, func(ctx context.Context, ex secondary.Executor) error {
			var tableCount int
			err := ex.QueryRowContext(ctx,
				"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
			).Scan(&tableCount)
			if err != nil || tableCount == 0 {
				return err
			}
			return ex.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
		})
	}, scope.WithReadOnly())
	if err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}

func ensureVersionTable(ctx context.Context, ex secondary.Executor) error {
	_, err := ex.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}
	return nil
}

// migrationV1 creates the documents table in its original shape
func migrationV1(ctx context.Context, ex secondary.Executor) error {
	_, err := ex.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			key TEXT NOT NULL UNIQUE,
			parent_id TEXT,
			name TEXT NOT NULL,
			content_type TEXT NOT NULL,
			published INTEGER NOT NULL DEFAULT 0,
			values_json TEXT NOT NULL DEFAULT '{}',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (parent_id) REFERENCES documents(id)
		);
		CREATE INDEX IF NOT EXISTS idx_documents_parent ON documents(parent_id);
	`)
	return err
}

// migrationV2 adds sort order and optimistic version columns
func migrationV2(ctx context.Context, ex secondary.Executor) error {
	statements := []string{
		"ALTER TABLE documents ADD COLUMN sort_order INTEGER NOT NULL DEFAULT 0",
		"ALTER TABLE documents ADD COLUMN version INTEGER NOT NULL DEFAULT 1",
		"CREATE INDEX IF NOT EXISTS idx_documents_content_type ON documents(content_type)",
	}
	for _, stmt := range statements {
		if _, err := ex.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", stmt, err)
		}
	}
	return nil
}

// migrationV3 creates the audit trail
func migrationV3(ctx context.Context, ex secondary.Executor) error {
	_, err := ex.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS audit_entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			actor_id TEXT,
			entity_type TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			action TEXT NOT NULL CHECK(action IN ('create', 'update', 'delete', 'publish', 'unpublish', 'move')),
			field_name TEXT,
			old_value TEXT,
			new_value TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_audit_entries_entity ON audit_entries(entity_type, entity_id);
	`)
	return err
}

// migrationV4 records which scope tree wrote each audit entry
func migrationV4(ctx context.Context, ex secondary.Executor) error {
	statements := []string{
		"ALTER TABLE audit_entries ADD COLUMN transaction_id TEXT",
		"CREATE INDEX IF NOT EXISTS idx_audit_entries_transaction ON audit_entries(transaction_id)",
	}
	for _, stmt := range statements {
		if _, err := ex.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", stmt, err)
		}
	}
	return nil
}
