// Package secondary defines the secondary ports (driven adapters) for the application.
// These are the interfaces through which the application drives external systems.
package secondary

import (
	"context"
	"errors"
)

// ErrNotFound is wrapped by repositories when a record does not exist.
var ErrNotFound = errors.New("not found")

// ContentRepository defines the secondary port for document persistence.
// Every method runs inside the ambient scope carried by ctx.
type ContentRepository interface {
	// Create persists a new document.
	Create(ctx context.Context, doc *ContentRecord) error

	// GetByID retrieves a document by its ID.
	GetByID(ctx context.Context, id string) (*ContentRecord, error)

	// GetChildren retrieves the direct children of a document, ordered by sort order.
	GetChildren(ctx context.Context, parentID string) ([]*ContentRecord, error)

	// List retrieves documents matching the given filters.
	List(ctx context.Context, filters ContentFilters) ([]*ContentRecord, error)

	// Update updates name, content type and values and bumps the version.
	Update(ctx context.Context, doc *ContentRecord) error

	// Delete removes a document from persistence.
	Delete(ctx context.Context, id string) error

	// SetPublished flips the published flag.
	SetPublished(ctx context.Context, id string, published bool) error

	// Move re-parents a document.
	Move(ctx context.Context, id, parentID string) error

	// Exists checks whether a document exists.
	Exists(ctx context.Context, id string) (bool, error)

	// GetNextID returns the next available document ID.
	GetNextID(ctx context.Context) (string, error)
}

// ContentRecord represents a document as stored in persistence.
type ContentRecord struct {
	ID          string
	Key         string
	ParentID    string // Empty string means root level
	Name        string
	ContentType string
	SortOrder   int
	Published   bool
	Version     int
	Values      map[string]string
	CreatedAt   string
	UpdatedAt   string
}

// ContentFilters contains filter options for querying documents.
type ContentFilters struct {
	ContentType string
	Published   *bool
	RootOnly    bool
}

// AuditRepository defines the secondary port for the audit trail.
type AuditRepository interface {
	// Create appends an audit entry.
	Create(ctx context.Context, entry *AuditRecord) error

	// List retrieves audit entries, newest first.
	List(ctx context.Context, filters AuditFilters) ([]*AuditRecord, error)

	// PruneOlderThan deletes entries older than the given number of days.
	PruneOlderThan(ctx context.Context, days int) (int, error)
}

// AuditRecord represents one audited change.
type AuditRecord struct {
	ID         int64
	ActorID    string
	EntityType string
	EntityID   string
	Action     string // create, update, delete, publish, unpublish, move
	FieldName  string
	OldValue   string
	NewValue   string
	// TransactionID is the root scope of the tree that wrote the entry.
	TransactionID string
	CreatedAt     string
}

// AuditFilters contains filter options for querying the audit trail.
type AuditFilters struct {
	EntityType    string
	EntityID      string
	ActorID       string
	TransactionID string
	Limit         int
}
