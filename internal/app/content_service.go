package app

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strconv"

	corecontent "github.com/example/cmscope/internal/core/content"
	"github.com/example/cmscope/internal/notification"
	"github.com/example/cmscope/internal/ports/primary"
	"github.com/example/cmscope/internal/ports/secondary"
	"github.com/example/cmscope/internal/scope"
)

// EntityDocument is the audit entity type of documents.
const EntityDocument = "document"

// ContentServiceImpl implements the ContentService interface.
// Every operation runs in its own scope; when the caller already has one, that scope
// becomes the parent and the work commits or rolls back with the caller's tree.
type ContentServiceImpl struct {
	scopes      *scope.Provider
	contentRepo secondary.ContentRepository
	logWriter   secondary.LogWriter
}

// NewContentService creates a new ContentService with injected dependencies.
func NewContentService(scopes *scope.Provider, contentRepo secondary.ContentRepository, logWriter secondary.LogWriter) *ContentServiceImpl {
	return &ContentServiceImpl{
		scopes:      scopes,
		contentRepo: contentRepo,
		logWriter:   logWriter,
	}
}

// SaveContent creates a document, or updates it when req.ID is set.
func (s *ContentServiceImpl) SaveContent(ctx context.Context, req primary.SaveContentRequest) (*primary.SaveContentResponse, error) {
	// Guard: every document needs a name
	if req.Name == "" {
		return nil, corecontent.CanSaveDocument(corecontent.SaveContext{DocumentID: req.ID}).Error()
	}

	var resp *primary.SaveContentResponse
	err := s.scopes.Do(ctx, func(ctx context.Context, sc *scope.Scope) error {
		events, err := sc.Notifications()
		if err != nil {
			return err
		}

		saving := &notification.ContentSavingNotification{IDs: []string{req.ID}, Names: []string{req.Name}}
		canceled, err := events.PublishCancelable(ctx, saving)
		if err != nil {
			return fmt.Errorf("saving handler failed: %w", err)
		}
		if canceled {
			return fmt.Errorf("save %q: %w", req.Name, notification.ErrCanceled)
		}

		var record *secondary.ContentRecord
		created := req.ID == ""
		if created {
			record, err = s.create(ctx, req)
		} else {
			record, err = s.update(ctx, req)
		}
		if err != nil {
			return err
		}

		if err := events.Publish(&notification.ContentSavedNotification{IDs: []string{record.ID}}); err != nil {
			return err
		}

		resp = &primary.SaveContentResponse{
			ContentID: record.ID,
			Created:   created,
			Content:   s.recordToContent(record),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *ContentServiceImpl) create(ctx context.Context, req primary.SaveContentRequest) (*secondary.ContentRecord, error) {
	parentExists := false
	if req.ParentID != "" && req.ContentType != "" {
		var err error
		parentExists, err = s.contentRepo.Exists(ctx, req.ParentID)
		if err != nil {
			return nil, fmt.Errorf("failed to validate parent: %w", err)
		}
	}

	// Guard: content type and parent
	result := corecontent.CanSaveDocument(corecontent.SaveContext{
		Name:         req.Name,
		ContentType:  req.ContentType,
		ParentID:     req.ParentID,
		ParentExists: parentExists,
	})
	if !result.Allowed {
		if req.ParentID != "" && req.ContentType != "" && !parentExists {
			return nil, fmt.Errorf("%s: %w", result.Reason, secondary.ErrNotFound)
		}
		return nil, result.Error()
	}

	nextID, err := s.contentRepo.GetNextID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to generate document ID: %w", err)
	}

	record := &secondary.ContentRecord{
		ID:          nextID,
		ParentID:    req.ParentID,
		Name:        req.Name,
		ContentType: req.ContentType,
		SortOrder:   req.SortOrder,
		Values:      maps.Clone(req.Values),
	}
	if err := s.contentRepo.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}
	if err := s.logWriter.LogCreate(ctx, EntityDocument, record.ID); err != nil {
		return nil, fmt.Errorf("failed to write audit entry: %w", err)
	}

	return s.contentRepo.GetByID(ctx, record.ID)
}

func (s *ContentServiceImpl) update(ctx context.Context, req primary.SaveContentRequest) (*secondary.ContentRecord, error) {
	existing, err := s.contentRepo.GetByID(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	record := &secondary.ContentRecord{
		ID:          existing.ID,
		Name:        req.Name,
		ContentType: existing.ContentType,
		SortOrder:   req.SortOrder,
		Values:      maps.Clone(req.Values),
	}
	if req.ContentType != "" {
		record.ContentType = req.ContentType
	}
	if req.Values == nil {
		record.Values = existing.Values
	}

	if err := s.contentRepo.Update(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to update document: %w", err)
	}

	changes := []struct{ field, from, to string }{
		{"name", existing.Name, record.Name},
		{"content_type", existing.ContentType, record.ContentType},
		{"sort_order", strconv.Itoa(existing.SortOrder), strconv.Itoa(record.SortOrder)},
	}
	for _, c := range changes {
		if c.from == c.to {
			continue
		}
		if err := s.logWriter.LogUpdate(ctx, EntityDocument, record.ID, c.field, c.from, c.to); err != nil {
			return nil, fmt.Errorf("failed to write audit entry: %w", err)
		}
	}
	if !maps.Equal(existing.Values, record.Values) {
		if err := s.logWriter.LogUpdate(ctx, EntityDocument, record.ID, "values", "", ""); err != nil {
			return nil, fmt.Errorf("failed to write audit entry: %w", err)
		}
	}

	return s.contentRepo.GetByID(ctx, record.ID)
}

// SaveMany saves every request in one scope tree. Each save runs in a child scope,
// so one failure vetoes the whole batch.
func (s *ContentServiceImpl) SaveMany(ctx context.Context, reqs []primary.SaveContentRequest) ([]*primary.Content, error) {
	saved := make([]*primary.Content, 0, len(reqs))
	err := s.scopes.Do(ctx, func(ctx context.Context, _ *scope.Scope) error {
		for i, req := range reqs {
			resp, err := s.SaveContent(ctx, req)
			if err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
			saved = append(saved, resp.Content)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// GetContent retrieves a document by ID.
func (s *ContentServiceImpl) GetContent(ctx context.Context, id string) (*primary.Content, error) {
	var record *secondary.ContentRecord
	err := s.scopes.Do(ctx, func(ctx context.Context, _ *scope.Scope) error {
		var err error
		record, err = s.contentRepo.GetByID(ctx, id)
		return err
	}, scope.WithReadOnly())
	if err != nil {
		return nil, err
	}
	return s.recordToContent(record), nil
}

// GetChildren retrieves the direct children of a document.
func (s *ContentServiceImpl) GetChildren(ctx context.Context, parentID string) ([]*primary.Content, error) {
	var records []*secondary.ContentRecord
	err := s.scopes.Do(ctx, func(ctx context.Context, _ *scope.Scope) error {
		var err error
		records, err = s.contentRepo.GetChildren(ctx, parentID)
		return err
	}, scope.WithReadOnly())
	if err != nil {
		return nil, fmt.Errorf("failed to get children: %w", err)
	}
	return s.recordsToContent(records), nil
}

// ListContent lists documents with optional filters.
func (s *ContentServiceImpl) ListContent(ctx context.Context, filters primary.ContentFilters) ([]*primary.Content, error) {
	repoFilters := secondary.ContentFilters{
		ContentType: filters.ContentType,
		RootOnly:    filters.RootOnly,
	}
	if filters.PublishedOnly {
		published := true
		repoFilters.Published = &published
	}

	var records []*secondary.ContentRecord
	err := s.scopes.Do(ctx, func(ctx context.Context, _ *scope.Scope) error {
		var err error
		records, err = s.contentRepo.List(ctx, repoFilters)
		return err
	}, scope.WithReadOnly())
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return s.recordsToContent(records), nil
}

// DeleteContent deletes a document and its descendants, deepest first.
func (s *ContentServiceImpl) DeleteContent(ctx context.Context, id string) (*primary.DeleteContentResponse, error) {
	var deleted []string
	err := s.scopes.Do(ctx, func(ctx context.Context, sc *scope.Scope) error {
		events, err := sc.Notifications()
		if err != nil {
			return err
		}

		exists, err := s.contentRepo.Exists(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to check document: %w", err)
		}
		if !exists {
			return fmt.Errorf("document %s: %w", id, secondary.ErrNotFound)
		}

		canceled, err := events.PublishCancelable(ctx, &notification.ContentDeletingNotification{ID: id})
		if err != nil {
			return fmt.Errorf("deleting handler failed: %w", err)
		}
		if canceled {
			return fmt.Errorf("delete %s: %w", id, notification.ErrCanceled)
		}

		deleted, err = s.deleteBranch(ctx, id)
		if err != nil {
			return err
		}
		return events.Publish(&notification.ContentDeletedNotification{IDs: deleted})
	})
	if err != nil {
		return nil, err
	}
	return &primary.DeleteContentResponse{DeletedIDs: deleted}, nil
}

// deleteBranch removes id and everything below it, one child scope per level.
func (s *ContentServiceImpl) deleteBranch(ctx context.Context, id string) (deleted []string, err error) {
	ctx, sc := s.scopes.CreateScope(ctx)
	defer func() {
		if derr := sc.Dispose(); derr != nil {
			err = errors.Join(err, derr)
		}
	}()

	children, err := s.contentRepo.GetChildren(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get children of %s: %w", id, err)
	}
	for _, child := range children {
		ids, err := s.deleteBranch(ctx, child.ID)
		if err != nil {
			return nil, err
		}
		deleted = append(deleted, ids...)
	}

	if err := s.contentRepo.Delete(ctx, id); err != nil {
		return nil, fmt.Errorf("failed to delete document: %w", err)
	}
	if err := s.logWriter.LogDelete(ctx, EntityDocument, id); err != nil {
		return nil, fmt.Errorf("failed to write audit entry: %w", err)
	}

	sc.Complete()
	return append(deleted, id), nil
}

// PublishContent publishes a document. Its parent must already be published.
func (s *ContentServiceImpl) PublishContent(ctx context.Context, id string) error {
	return s.scopes.Do(ctx, func(ctx context.Context, sc *scope.Scope) error {
		record, err := s.contentRepo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if record.Published {
			return nil
		}
		guardCtx := corecontent.PublishContext{DocumentID: id, ParentID: record.ParentID}
		if record.ParentID != "" {
			parent, err := s.contentRepo.GetByID(ctx, record.ParentID)
			if err != nil {
				return fmt.Errorf("failed to get parent: %w", err)
			}
			guardCtx.ParentPublished = parent.Published
		}
		if err := corecontent.CanPublishDocument(guardCtx).Error(); err != nil {
			return err
		}

		if err := s.contentRepo.SetPublished(ctx, id, true); err != nil {
			return fmt.Errorf("failed to publish document: %w", err)
		}
		if err := s.logWriter.LogAction(ctx, EntityDocument, id, "publish"); err != nil {
			return fmt.Errorf("failed to write audit entry: %w", err)
		}

		events, err := sc.Notifications()
		if err != nil {
			return err
		}
		return events.Publish(&notification.ContentPublishedNotification{IDs: []string{id}})
	})
}

// UnpublishContent unpublishes a document.
func (s *ContentServiceImpl) UnpublishContent(ctx context.Context, id string) error {
	return s.scopes.Do(ctx, func(ctx context.Context, sc *scope.Scope) error {
		record, err := s.contentRepo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if !record.Published {
			return nil
		}

		if err := s.contentRepo.SetPublished(ctx, id, false); err != nil {
			return fmt.Errorf("failed to unpublish document: %w", err)
		}
		if err := s.logWriter.LogAction(ctx, EntityDocument, id, "unpublish"); err != nil {
			return fmt.Errorf("failed to write audit entry: %w", err)
		}

		events, err := sc.Notifications()
		if err != nil {
			return err
		}
		return events.Publish(&notification.ContentUnpublishedNotification{IDs: []string{id}})
	})
}

// MoveContent moves a document under a new parent. A document cannot be moved
// below itself.
func (s *ContentServiceImpl) MoveContent(ctx context.Context, req primary.MoveContentRequest) error {
	guardCtx := corecontent.MoveContext{DocumentID: req.ContentID, NewParentID: req.NewParentID}
	if err := corecontent.CanMoveDocument(guardCtx).Error(); err != nil {
		return err
	}

	return s.scopes.Do(ctx, func(ctx context.Context, sc *scope.Scope) error {
		record, err := s.contentRepo.GetByID(ctx, req.ContentID)
		if err != nil {
			return err
		}
		if record.ParentID == req.NewParentID {
			return nil
		}

		for ancestor := req.NewParentID; ancestor != ""; {
			guardCtx.Ancestors = append(guardCtx.Ancestors, ancestor)
			if ancestor == req.ContentID {
				break
			}
			parent, err := s.contentRepo.GetByID(ctx, ancestor)
			if err != nil {
				return fmt.Errorf("failed to resolve new parent: %w", err)
			}
			ancestor = parent.ParentID
		}
		if err := corecontent.CanMoveDocument(guardCtx).Error(); err != nil {
			return err
		}

		if err := s.contentRepo.Move(ctx, req.ContentID, req.NewParentID); err != nil {
			return fmt.Errorf("failed to move document: %w", err)
		}
		if err := s.logWriter.LogUpdate(ctx, EntityDocument, req.ContentID, "parent_id", record.ParentID, req.NewParentID); err != nil {
			return fmt.Errorf("failed to write audit entry: %w", err)
		}

		events, err := sc.Notifications()
		if err != nil {
			return err
		}
		return events.Publish(&notification.ContentMovedNotification{
			ID:          req.ContentID,
			OldParentID: record.ParentID,
			NewParentID: req.NewParentID,
		})
	})
}

// Helper methods

func (s *ContentServiceImpl) recordToContent(r *secondary.ContentRecord) *primary.Content {
	return &primary.Content{
		ID:          r.ID,
		Key:         r.Key,
		ParentID:    r.ParentID,
		Name:        r.Name,
		ContentType: r.ContentType,
		SortOrder:   r.SortOrder,
		Published:   r.Published,
		Version:     r.Version,
		Values:      maps.Clone(r.Values),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func (s *ContentServiceImpl) recordsToContent(records []*secondary.ContentRecord) []*primary.Content {
	content := make([]*primary.Content, len(records))
	for i, r := range records {
		content[i] = s.recordToContent(r)
	}
	return content
}

// Ensure ContentServiceImpl implements the interface
var _ primary.ContentService = (*ContentServiceImpl)(nil)
