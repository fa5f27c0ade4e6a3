package primary

import "context"

// ContentService defines the primary port for document operations.
type ContentService interface {
	// SaveContent creates a document, or updates it when ID is set.
	SaveContent(ctx context.Context, req SaveContentRequest) (*SaveContentResponse, error)

	// SaveMany saves several documents as one unit: if any save fails, none is kept.
	SaveMany(ctx context.Context, reqs []SaveContentRequest) ([]*Content, error)

	// GetContent retrieves a document by ID.
	GetContent(ctx context.Context, id string) (*Content, error)

	// GetChildren retrieves the direct children of a document.
	GetChildren(ctx context.Context, parentID string) ([]*Content, error)

	// ListContent lists documents with optional filters.
	ListContent(ctx context.Context, filters ContentFilters) ([]*Content, error)

	// DeleteContent deletes a document and all of its descendants.
	DeleteContent(ctx context.Context, id string) (*DeleteContentResponse, error)

	// PublishContent publishes a document. Its parent must be published.
	PublishContent(ctx context.Context, id string) error

	// UnpublishContent unpublishes a document.
	UnpublishContent(ctx context.Context, id string) error

	// MoveContent moves a document under a new parent.
	MoveContent(ctx context.Context, req MoveContentRequest) error
}

// SaveContentRequest contains parameters for saving a document.
type SaveContentRequest struct {
	ID          string // Empty for a new document
	ParentID    string // Empty for a root document
	Name        string
	ContentType string
	SortOrder   int
	Values      map[string]string
}

// SaveContentResponse contains the result of saving a document.
type SaveContentResponse struct {
	ContentID string
	Created   bool
	Content   *Content
}

// DeleteContentResponse lists every document removed, descendants first.
type DeleteContentResponse struct {
	DeletedIDs []string
}

// MoveContentRequest contains parameters for moving a document.
type MoveContentRequest struct {
	ContentID   string
	NewParentID string // Empty moves the document to the root
}

// Content represents a document at the port boundary.
type Content struct {
	ID          string
	Key         string
	ParentID    string
	Name        string
	ContentType string
	SortOrder   int
	Published   bool
	Version     int
	Values      map[string]string
	CreatedAt   string
	UpdatedAt   string
}

// ContentFilters contains filter options for listing documents.
type ContentFilters struct {
	ContentType   string
	PublishedOnly bool
	RootOnly      bool
}
