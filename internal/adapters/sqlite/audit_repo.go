package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/cmscope/internal/ports/secondary"
	"github.com/example/cmscope/internal/scope"
)

// AuditRepository implements secondary.AuditRepository with SQLite.
type AuditRepository struct {
	scopes scope.Accessor
}

// NewAuditRepository creates a new SQLite audit repository.
func NewAuditRepository(scopes scope.Accessor) *AuditRepository {
	return &AuditRepository{scopes: scopes}
}

// Create appends an audit entry in the ambient scope's transaction, stamped with the
// tree's root scope ID unless the entry already carries one.
func (r *AuditRepository) Create(ctx context.Context, entry *secondary.AuditRecord) error {
	s, err := r.scopes.RequireAmbient(ctx)
	if err != nil {
		return err
	}
	if entry.TransactionID == "" {
		entry.TransactionID = s.Root().ID().String()
	}

	return s.ExecuteWithContext(ctx, func(ctx context.Context, ex secondary.Executor) error {
		result, err := ex.ExecContext(ctx,
			"INSERT INTO audit_entries (actor_id, entity_type, entity_id, action, field_name, old_value, new_value, transaction_id) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
			nullString(entry.ActorID), entry.EntityType, entry.EntityID, entry.Action,
			nullString(entry.FieldName), nullString(entry.OldValue), nullString(entry.NewValue),
			entry.TransactionID,
		)
		if err != nil {
			return fmt.Errorf("failed to create audit entry: %w", err)
		}
		entry.ID, err = result.LastInsertId()
		return err
	})
}

// List retrieves audit entries, newest first.
func (r *AuditRepository) List(ctx context.Context, filters secondary.AuditFilters) ([]*secondary.AuditRecord, error) {
	query := "SELECT id, actor_id, entity_type, entity_id, action, field_name, old_value, new_value, transaction_id, created_at FROM audit_entries WHERE 1=1"
	args := []any{}

	if filters.EntityType != "" {
		query += " AND entity_type = ?"
		args = append(args, filters.EntityType)
	}
	if filters.EntityID != "" {
		query += " AND entity_id = ?"
		args = append(args, filters.EntityID)
	}
	if filters.ActorID != "" {
		query += " AND actor_id = ?"
		args = append(args, filters.ActorID)
	}
	if filters.TransactionID != "" {
		query += " AND transaction_id = ?"
		args = append(args, filters.TransactionID)
	}
	query += " ORDER BY id DESC"
	if filters.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filters.Limit)
	}

	s, err := r.scopes.RequireAmbient(ctx)
	if err != nil {
		return nil, err
	}

	var entries []*secondary.AuditRecord
	err = s.ExecuteWithContext(ctx, func(ctx context.Context, ex secondary.Executor) error {
		rows, err := ex.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to list audit entries: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				actorID, fieldName, oldValue, newValue, txID sql.NullString
				createdAt                                    time.Time
			)
			entry := &secondary.AuditRecord{}
			if err := rows.Scan(&entry.ID, &actorID, &entry.EntityType, &entry.EntityID, &entry.Action,
				&fieldName, &oldValue, &newValue, &txID, &createdAt); err != nil {
				return fmt.Errorf("failed to scan audit entry: %w", err)
			}
			entry.ActorID = actorID.String
			entry.FieldName = fieldName.String
			entry.OldValue = oldValue.String
			entry.NewValue = newValue.String
			entry.TransactionID = txID.String
			entry.CreatedAt = createdAt.Format(time.RFC3339)
			entries = append(entries, entry)
		}
		return rows.Err()
	})
	return entries, err
}

// PruneOlderThan deletes entries older than the given number of days.
func (r *AuditRepository) PruneOlderThan(ctx context.Context, days int) (int, error) {
	s, err := r.scopes.RequireAmbient(ctx)
	if err != nil {
		return 0, err
	}

	var deleted int64
	err = s.ExecuteWithContext(ctx, func(ctx context.Context, ex secondary.Executor) error {
		result, err := ex.ExecContext(ctx,
			"DELETE FROM audit_entries WHERE created_at < datetime('now', ?)",
			fmt.Sprintf("-%d days", days),
		)
		if err != nil {
			return fmt.Errorf("failed to prune audit entries: %w", err)
		}
		deleted, err = result.RowsAffected()
		return err
	})
	return int(deleted), err
}

var _ secondary.AuditRepository = (*AuditRepository)(nil)
