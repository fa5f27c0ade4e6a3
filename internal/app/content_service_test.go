package app

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/example/cmscope/internal/notification"
	"github.com/example/cmscope/internal/ports/primary"
	"github.com/example/cmscope/internal/ports/secondary"
	"github.com/example/cmscope/internal/scope"
)

type contentFixture struct {
	service   *ContentServiceImpl
	repo      *mockContentRepository
	logWriter *mockLogWriter
	provider  *scope.Provider
	agg       *notification.Aggregator
	delivered []string
}

func newTestContentService() *contentFixture {
	provider, agg := newTestProvider()
	repo := newMockContentRepository()
	logWriter := &mockLogWriter{}
	f := &contentFixture{
		service:   NewContentService(provider, repo, logWriter),
		repo:      repo,
		logWriter: logWriter,
		provider:  provider,
		agg:       agg,
	}
	notification.SubscribeAll(agg, func(ctx context.Context, n notification.Notification) error {
		f.delivered = append(f.delivered, n.NotificationName())
		return nil
	})
	return f
}

func TestContentService_SaveContent_Create(t *testing.T) {
	f := newTestContentService()
	ctx := context.Background()

	resp, err := f.service.SaveContent(ctx, primary.SaveContentRequest{
		Name:        "Home",
		ContentType: "homePage",
		Values:      map[string]string{"title": "Welcome"},
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if resp.ContentID != "DOC-001" {
		t.Errorf("expected ID 'DOC-001', got %q", resp.ContentID)
	}
	if !resp.Created {
		t.Error("expected Created to be true")
	}
	if resp.Content.Values["title"] != "Welcome" {
		t.Errorf("expected title 'Welcome', got %q", resp.Content.Values["title"])
	}
	if !slices.Equal(f.logWriter.entries, []string{"create:DOC-001"}) {
		t.Errorf("unexpected audit entries: %v", f.logWriter.entries)
	}
	// Saving is delivered immediately, Saved once the scope commits.
	if !slices.Equal(f.delivered, []string{"content.saving", "content.saved"}) {
		t.Errorf("unexpected notifications: %v", f.delivered)
	}
}

func TestContentService_SaveContent_Validation(t *testing.T) {
	f := newTestContentService()
	ctx := context.Background()

	if _, err := f.service.SaveContent(ctx, primary.SaveContentRequest{ContentType: "textPage"}); err == nil {
		t.Error("expected error for missing name")
	}
	if _, err := f.service.SaveContent(ctx, primary.SaveContentRequest{Name: "Page"}); err == nil {
		t.Error("expected error for missing content type")
	}

	_, err := f.service.SaveContent(ctx, primary.SaveContentRequest{Name: "Page", ContentType: "textPage", ParentID: "DOC-404"})
	if !errors.Is(err, secondary.ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing parent, got %v", err)
	}
	if len(f.repo.docs) != 0 {
		t.Errorf("expected no documents, got %d", len(f.repo.docs))
	}
}

func TestContentService_SaveContent_CanceledByHandler(t *testing.T) {
	f := newTestContentService()
	notification.Subscribe(f.agg, func(ctx context.Context, n *notification.ContentSavingNotification) error {
		if slices.Contains(n.Names, "Forbidden") {
			n.Cancel("name not allowed")
		}
		return nil
	})

	_, err := f.service.SaveContent(context.Background(), primary.SaveContentRequest{Name: "Forbidden", ContentType: "textPage"})
	if !errors.Is(err, notification.ErrCanceled) {
		t.Fatalf("expected ErrCanceled, got %v", err)
	}
	if len(f.repo.docs) != 0 {
		t.Error("expected nothing saved")
	}
	if slices.Contains(f.delivered, "content.saved") {
		t.Error("expected no saved notification for a canceled save")
	}
}

func TestContentService_SaveContent_UpdateLogsChangedFields(t *testing.T) {
	f := newTestContentService()
	f.repo.add("DOC-001", "", "Home", false)

	resp, err := f.service.SaveContent(context.Background(), primary.SaveContentRequest{
		ID:     "DOC-001",
		Name:   "Start",
		Values: map[string]string{"title": "Hi"},
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if resp.Created {
		t.Error("expected Created to be false")
	}
	if resp.Content.Version != 2 {
		t.Errorf("expected version 2, got %d", resp.Content.Version)
	}
	if resp.Content.ContentType != "textPage" {
		t.Errorf("expected content type kept, got %q", resp.Content.ContentType)
	}
	want := []string{"update:DOC-001:name", "update:DOC-001:values"}
	if !slices.Equal(f.logWriter.entries, want) {
		t.Errorf("expected %v, got %v", want, f.logWriter.entries)
	}
}

func TestContentService_SaveContent_NestedInCallerScope(t *testing.T) {
	f := newTestContentService()

	ctx, outer := f.provider.CreateScope(context.Background())
	if _, err := f.service.SaveContent(ctx, primary.SaveContentRequest{Name: "Draft", ContentType: "textPage"}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if slices.Contains(f.delivered, "content.saved") {
		t.Error("saved notification delivered before the caller's scope completed")
	}

	// The caller never completes, so the tree rolls back.
	if err := outer.Dispose(); err != nil {
		t.Fatalf("dispose failed: %v", err)
	}
	if slices.Contains(f.delivered, "content.saved") {
		t.Error("saved notification delivered for a rolled back tree")
	}
}

func TestContentService_SaveMany_FailureVetoesBatch(t *testing.T) {
	f := newTestContentService()

	_, err := f.service.SaveMany(context.Background(), []primary.SaveContentRequest{
		{Name: "One", ContentType: "textPage"},
		{Name: "Two"},
	})
	if err == nil {
		t.Fatal("expected error for invalid second item")
	}
	if slices.Contains(f.delivered, "content.saved") {
		t.Errorf("expected no saved notifications, got %v", f.delivered)
	}
}

func TestContentService_SaveMany(t *testing.T) {
	f := newTestContentService()

	saved, err := f.service.SaveMany(context.Background(), []primary.SaveContentRequest{
		{Name: "One", ContentType: "textPage"},
		{Name: "Two", ContentType: "textPage"},
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(saved) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(saved))
	}

	var savedCount int
	for _, name := range f.delivered {
		if name == "content.saved" {
			savedCount++
		}
	}
	if savedCount != 2 {
		t.Errorf("expected 2 saved notifications, got %d", savedCount)
	}
}

func TestContentService_DeleteContent_DeletesBranchDeepestFirst(t *testing.T) {
	f := newTestContentService()
	f.repo.add("DOC-001", "", "Home", true)
	f.repo.add("DOC-002", "DOC-001", "Blog", true)
	f.repo.add("DOC-003", "DOC-002", "Post", false)
	f.repo.add("DOC-004", "", "Other", false)

	var deletedIDs []string
	notification.Subscribe(f.agg, func(ctx context.Context, n *notification.ContentDeletedNotification) error {
		deletedIDs = n.IDs
		return nil
	})

	resp, err := f.service.DeleteContent(context.Background(), "DOC-001")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	want := []string{"DOC-003", "DOC-002", "DOC-001"}
	if !slices.Equal(resp.DeletedIDs, want) {
		t.Errorf("expected %v, got %v", want, resp.DeletedIDs)
	}
	if !slices.Equal(deletedIDs, want) {
		t.Errorf("expected notification IDs %v, got %v", want, deletedIDs)
	}
	if _, ok := f.repo.docs["DOC-004"]; !ok {
		t.Error("expected unrelated document to survive")
	}
}

func TestContentService_DeleteContent_FailureDiscardsNotification(t *testing.T) {
	f := newTestContentService()
	f.repo.add("DOC-001", "", "Home", true)
	f.repo.add("DOC-002", "DOC-001", "About", true)
	f.repo.deleteErr["DOC-001"] = errors.New("constraint failed")

	_, err := f.service.DeleteContent(context.Background(), "DOC-001")
	if err == nil {
		t.Fatal("expected error")
	}
	if slices.Contains(f.delivered, "content.deleted") {
		t.Error("expected no deleted notification")
	}
}

func TestContentService_DeleteContent_Canceled(t *testing.T) {
	f := newTestContentService()
	f.repo.add("DOC-001", "", "Home", true)
	notification.Subscribe(f.agg, func(ctx context.Context, n *notification.ContentDeletingNotification) error {
		n.Cancel("protected")
		return nil
	})

	_, err := f.service.DeleteContent(context.Background(), "DOC-001")
	if !errors.Is(err, notification.ErrCanceled) {
		t.Fatalf("expected ErrCanceled, got %v", err)
	}
	if len(f.repo.deleted) != 0 {
		t.Errorf("expected nothing deleted, got %v", f.repo.deleted)
	}
}

func TestContentService_DeleteContent_NotFound(t *testing.T) {
	f := newTestContentService()

	_, err := f.service.DeleteContent(context.Background(), "DOC-404")
	if !errors.Is(err, secondary.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestContentService_PublishContent_RequiresPublishedParent(t *testing.T) {
	f := newTestContentService()
	f.repo.add("DOC-001", "", "Home", false)
	f.repo.add("DOC-002", "DOC-001", "About", false)
	ctx := context.Background()

	if err := f.service.PublishContent(ctx, "DOC-002"); err == nil {
		t.Fatal("expected error publishing below an unpublished parent")
	}

	if err := f.service.PublishContent(ctx, "DOC-001"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := f.service.PublishContent(ctx, "DOC-002"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !f.repo.docs["DOC-002"].Published {
		t.Error("expected DOC-002 to be published")
	}
	if !slices.Equal(f.logWriter.entries, []string{"publish:DOC-001", "publish:DOC-002"}) {
		t.Errorf("unexpected audit entries: %v", f.logWriter.entries)
	}
}

func TestContentService_UnpublishContent(t *testing.T) {
	f := newTestContentService()
	f.repo.add("DOC-001", "", "Home", true)
	ctx := context.Background()

	if err := f.service.UnpublishContent(ctx, "DOC-001"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if f.repo.docs["DOC-001"].Published {
		t.Error("expected DOC-001 to be unpublished")
	}

	// Unpublishing again is a no-op.
	if err := f.service.UnpublishContent(ctx, "DOC-001"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(f.logWriter.entries) != 1 {
		t.Errorf("expected 1 audit entry, got %v", f.logWriter.entries)
	}
}

func TestContentService_MoveContent(t *testing.T) {
	f := newTestContentService()
	f.repo.add("DOC-001", "", "Home", true)
	f.repo.add("DOC-002", "DOC-001", "Blog", true)
	f.repo.add("DOC-003", "", "Archive", true)

	var moved *notification.ContentMovedNotification
	notification.Subscribe(f.agg, func(ctx context.Context, n *notification.ContentMovedNotification) error {
		moved = n
		return nil
	})

	err := f.service.MoveContent(context.Background(), primary.MoveContentRequest{ContentID: "DOC-002", NewParentID: "DOC-003"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if f.repo.docs["DOC-002"].ParentID != "DOC-003" {
		t.Errorf("expected parent DOC-003, got %q", f.repo.docs["DOC-002"].ParentID)
	}
	if moved == nil || moved.OldParentID != "DOC-001" || moved.NewParentID != "DOC-003" {
		t.Errorf("unexpected moved notification: %+v", moved)
	}
}

func TestContentService_MoveContent_RejectsCycles(t *testing.T) {
	f := newTestContentService()
	f.repo.add("DOC-001", "", "Home", true)
	f.repo.add("DOC-002", "DOC-001", "Blog", true)
	f.repo.add("DOC-003", "DOC-002", "Post", true)
	ctx := context.Background()

	if err := f.service.MoveContent(ctx, primary.MoveContentRequest{ContentID: "DOC-001", NewParentID: "DOC-001"}); err == nil {
		t.Error("expected error moving a document under itself")
	}
	if err := f.service.MoveContent(ctx, primary.MoveContentRequest{ContentID: "DOC-001", NewParentID: "DOC-003"}); err == nil {
		t.Error("expected error moving a document under its descendant")
	}
	if f.repo.docs["DOC-001"].ParentID != "" {
		t.Error("expected DOC-001 to stay at the root")
	}
}

func TestContentService_ListContent(t *testing.T) {
	f := newTestContentService()
	f.repo.add("DOC-001", "", "Home", true)
	f.repo.add("DOC-002", "DOC-001", "About", true)
	f.repo.add("DOC-003", "", "Draft", false)
	ctx := context.Background()

	published, err := f.service.ListContent(ctx, primary.ContentFilters{PublishedOnly: true})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(published) != 2 {
		t.Errorf("expected 2 published documents, got %d", len(published))
	}

	roots, err := f.service.ListContent(ctx, primary.ContentFilters{RootOnly: true})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(roots) != 2 {
		t.Errorf("expected 2 root documents, got %d", len(roots))
	}

	children, err := f.service.GetChildren(ctx, "DOC-001")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(children) != 1 || children[0].ID != "DOC-002" {
		t.Errorf("unexpected children: %+v", children)
	}
}

func TestContentService_GetContent_NotFound(t *testing.T) {
	f := newTestContentService()

	_, err := f.service.GetContent(context.Background(), "DOC-404")
	if !errors.Is(err, secondary.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
