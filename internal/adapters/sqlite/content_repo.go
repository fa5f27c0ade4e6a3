package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/example/cmscope/internal/cache"
	corecontent "github.com/example/cmscope/internal/core/content"
	"github.com/example/cmscope/internal/lock"
	"github.com/example/cmscope/internal/ports/secondary"
	"github.com/example/cmscope/internal/scope"
)

// ContentCacheType is the isolated cache documents are kept in.
const ContentCacheType = secondary.ContentCacheType

const contentColumns = "id, key, parent_id, name, content_type, sort_order, published, version, values_json, created_at, updated_at"

// ContentRepository implements secondary.ContentRepository with SQLite.
// It runs every statement in the ambient scope and takes the content tree lock:
// shared for reads, exclusive for writes.
type ContentRepository struct {
	scopes scope.Accessor
	cache  *cache.Policy[*secondary.ContentRecord]
}

// NewContentRepository creates a new SQLite content repository.
// global holds the process-wide isolated caches.
func NewContentRepository(scopes scope.Accessor, global *cache.IsolatedCaches) *ContentRepository {
	return &ContentRepository{
		scopes: scopes,
		cache:  cache.NewPolicy[*secondary.ContentRecord](ContentCacheType, global),
	}
}

func (r *ContentRepository) read(ctx context.Context, fn func(ctx context.Context, ex secondary.Executor) error) error {
	s, err := r.scopes.RequireAmbient(ctx)
	if err != nil {
		return err
	}
	s.ReadLock(lock.ContentTree)
	return s.ExecuteWithContext(ctx, fn)
}

func (r *ContentRepository) write(ctx context.Context, id string, fn func(ctx context.Context, ex secondary.Executor) error) error {
	s, err := r.scopes.RequireAmbient(ctx)
	if err != nil {
		return err
	}
	s.WriteLock(lock.ContentTree)
	if err := s.ExecuteWithContext(ctx, fn); err != nil {
		return err
	}
	if id != "" {
		r.cache.Invalidate(s, id)
	}
	return nil
}

// Create persists a new document.
func (r *ContentRepository) Create(ctx context.Context, doc *secondary.ContentRecord) error {
	if doc.Key == "" {
		doc.Key = uuid.NewString()
	}
	values, err := encodeValues(doc.Values)
	if err != nil {
		return err
	}

	return r.write(ctx, doc.ID, func(ctx context.Context, ex secondary.Executor) error {
		_, err := ex.ExecContext(ctx,
			"INSERT INTO documents (id, key, parent_id, name, content_type, sort_order, published, values_json) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
			doc.ID, doc.Key, nullString(doc.ParentID), doc.Name, doc.ContentType, doc.SortOrder, doc.Published, values,
		)
		if err != nil {
			return fmt.Errorf("failed to create document: %w", err)
		}
		doc.Version = 1
		return nil
	})
}

// GetByID retrieves a document by its ID.
func (r *ContentRepository) GetByID(ctx context.Context, id string) (*secondary.ContentRecord, error) {
	s, err := r.scopes.RequireAmbient(ctx)
	if err != nil {
		return nil, err
	}

	record, err := r.cache.Get(cacheSource(s), id, func() (*secondary.ContentRecord, error) {
		var record *secondary.ContentRecord
		s.ReadLock(lock.ContentTree)
		err := s.ExecuteWithContext(ctx, func(ctx context.Context, ex secondary.Executor) error {
			row := ex.QueryRowContext(ctx, "SELECT "+contentColumns+" FROM documents WHERE id = ?", id)
			var err error
			record, err = scanContent(row)
			if err == sql.ErrNoRows {
				return fmt.Errorf("document %s: %w", id, secondary.ErrNotFound)
			}
			if err != nil {
				return fmt.Errorf("failed to get document: %w", err)
			}
			return nil
		})
		return record, err
	})
	if err != nil {
		return nil, err
	}
	return cloneContent(record), nil
}

// GetChildren retrieves the direct children of a document, ordered by sort order.
func (r *ContentRepository) GetChildren(ctx context.Context, parentID string) ([]*secondary.ContentRecord, error) {
	var records []*secondary.ContentRecord
	err := r.read(ctx, func(ctx context.Context, ex secondary.Executor) error {
		rows, err := ex.QueryContext(ctx,
			"SELECT "+contentColumns+" FROM documents WHERE parent_id = ? ORDER BY sort_order, id",
			parentID,
		)
		if err != nil {
			return fmt.Errorf("failed to get children: %w", err)
		}
		records, err = scanContentRows(rows)
		return err
	})
	return records, err
}

// List retrieves documents matching the given filters.
func (r *ContentRepository) List(ctx context.Context, filters secondary.ContentFilters) ([]*secondary.ContentRecord, error) {
	query := "SELECT " + contentColumns + " FROM documents WHERE 1=1"
	args := []any{}

	if filters.ContentType != "" {
		query += " AND content_type = ?"
		args = append(args, filters.ContentType)
	}
	if filters.Published != nil {
		query += " AND published = ?"
		args = append(args, *filters.Published)
	}
	if filters.RootOnly {
		query += " AND parent_id IS NULL"
	}
	query += " ORDER BY parent_id, sort_order, id"

	var records []*secondary.ContentRecord
	err := r.read(ctx, func(ctx context.Context, ex secondary.Executor) error {
		rows, err := ex.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to list documents: %w", err)
		}
		records, err = scanContentRows(rows)
		return err
	})
	return records, err
}

// Update updates name, content type, sort order and values, and bumps the version.
func (r *ContentRepository) Update(ctx context.Context, doc *secondary.ContentRecord) error {
	values, err := encodeValues(doc.Values)
	if err != nil {
		return err
	}

	return r.write(ctx, doc.ID, func(ctx context.Context, ex secondary.Executor) error {
		result, err := ex.ExecContext(ctx,
			"UPDATE documents SET name = ?, content_type = ?, sort_order = ?, values_json = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
			doc.Name, doc.ContentType, doc.SortOrder, values, doc.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update document: %w", err)
		}
		if err := requireAffected(result, doc.ID); err != nil {
			return err
		}
		return ex.QueryRowContext(ctx, "SELECT version FROM documents WHERE id = ?", doc.ID).Scan(&doc.Version)
	})
}

// Delete removes a document from persistence.
func (r *ContentRepository) Delete(ctx context.Context, id string) error {
	return r.write(ctx, id, func(ctx context.Context, ex secondary.Executor) error {
		result, err := ex.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("failed to delete document: %w", err)
		}
		return requireAffected(result, id)
	})
}

// SetPublished flips the published flag.
func (r *ContentRepository) SetPublished(ctx context.Context, id string, published bool) error {
	return r.write(ctx, id, func(ctx context.Context, ex secondary.Executor) error {
		result, err := ex.ExecContext(ctx,
			"UPDATE documents SET published = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
			published, id,
		)
		if err != nil {
			return fmt.Errorf("failed to update published state: %w", err)
		}
		return requireAffected(result, id)
	})
}

// Move re-parents a document. A move reshapes the hierarchy below the document,
// so the whole document cache the scope resolves to is emptied.
func (r *ContentRepository) Move(ctx context.Context, id, parentID string) error {
	s, err := r.scopes.RequireAmbient(ctx)
	if err != nil {
		return err
	}
	s.WriteLock(lock.ContentTree)
	err = s.ExecuteWithContext(ctx, func(ctx context.Context, ex secondary.Executor) error {
		result, err := ex.ExecContext(ctx,
			"UPDATE documents SET parent_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
			nullString(parentID), id,
		)
		if err != nil {
			return fmt.Errorf("failed to move document: %w", err)
		}
		return requireAffected(result, id)
	})
	if err != nil {
		return err
	}
	r.cache.InvalidateAll(s)
	return nil
}

// Exists checks whether a document exists.
func (r *ContentRepository) Exists(ctx context.Context, id string) (bool, error) {
	var count int
	err := r.read(ctx, func(ctx context.Context, ex secondary.Executor) error {
		if err := ex.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents WHERE id = ?", id).Scan(&count); err != nil {
			return fmt.Errorf("failed to check document existence: %w", err)
		}
		return nil
	})
	return count > 0, err
}

// GetNextID returns the next available document ID.
func (r *ContentRepository) GetNextID(ctx context.Context) (string, error) {
	var maxID int
	err := r.read(ctx, func(ctx context.Context, ex secondary.Executor) error {
		err := ex.QueryRowContext(ctx,
			"SELECT COALESCE(MAX(CAST(SUBSTR(id, 5) AS INTEGER)), 0) FROM documents",
		).Scan(&maxID)
		if err != nil {
			return fmt.Errorf("failed to get next document ID: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	return corecontent.GenerateDocumentID(maxID), nil
}

// uncommitted keeps reads of a tree that has written documents out of the global cache.
type uncommitted struct {
	*scope.Scope
}

func (uncommitted) RepositoryCacheMode() cache.Mode { return cache.ModeNone }

func cacheSource(s *scope.Scope) cache.Source {
	if s.RepositoryCacheMode() != cache.ModeDefault {
		return s
	}
	if mode, held := s.Locks().HeldMode(lock.ContentTree); held && mode == secondary.WriteLock {
		return uncommitted{s}
	}
	return s
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContent(row rowScanner) (*secondary.ContentRecord, error) {
	var (
		parentID  sql.NullString
		values    string
		createdAt time.Time
		updatedAt time.Time
	)

	record := &secondary.ContentRecord{}
	err := row.Scan(&record.ID, &record.Key, &parentID, &record.Name, &record.ContentType,
		&record.SortOrder, &record.Published, &record.Version, &values, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	record.ParentID = parentID.String
	record.CreatedAt = createdAt.Format(time.RFC3339)
	record.UpdatedAt = updatedAt.Format(time.RFC3339)
	if err := json.Unmarshal([]byte(values), &record.Values); err != nil {
		return nil, fmt.Errorf("failed to decode values of %s: %w", record.ID, err)
	}

	return record, nil
}

func scanContentRows(rows *sql.Rows) ([]*secondary.ContentRecord, error) {
	defer rows.Close()

	var records []*secondary.ContentRecord
	for rows.Next() {
		record, err := scanContent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", err)
	}
	return records, nil
}

func encodeValues(values map[string]string) (string, error) {
	if len(values) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("failed to encode values: %w", err)
	}
	return string(b), nil
}

func cloneContent(r *secondary.ContentRecord) *secondary.ContentRecord {
	c := *r
	c.Values = maps.Clone(r.Values)
	return &c
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func requireAffected(result sql.Result, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("document %s: %w", id, secondary.ErrNotFound)
	}
	return nil
}

var _ secondary.ContentRepository = (*ContentRepository)(nil)

// IsNotFound reports whether err means the record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, secondary.ErrNotFound)
}
