package app

import (
	"context"
	"testing"

	"github.com/example/cmscope/internal/notification"
	"github.com/example/cmscope/internal/ports/secondary"
	"github.com/example/cmscope/internal/scope"
)

type refresherFixture struct {
	provider    *scope.Provider
	agg         *notification.Aggregator
	broadcaster *mockBroadcaster
	refresher   *CacheRefresher
}

func newTestCacheRefresher() *refresherFixture {
	provider, agg := newTestProvider()
	bc := newMockBroadcaster()
	r := NewCacheRefresher(provider, bc, nil)
	r.Register(agg)
	return &refresherFixture{provider: provider, agg: agg, broadcaster: bc, refresher: r}
}

func (f *refresherFixture) seedCaches() {
	caches := f.provider.AppCaches()
	content := caches.Isolated.Get(secondary.ContentCacheType)
	content.Insert("DOC-001", "stale")
	content.Insert("DOC-002", "fresh")
	caches.Runtime.Insert("content:roots", "stale")
	caches.Runtime.Insert("media:roots", "fresh")
}

func (f *refresherFixture) publishInScope(t *testing.T, ctx context.Context, complete bool, n notification.Notification) {
	t.Helper()
	_, s := f.provider.CreateScope(ctx)
	events, err := s.Notifications()
	if err != nil {
		t.Fatalf("notifications failed: %v", err)
	}
	if err := events.Publish(n); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if complete {
		s.Complete()
	}
	if err := s.Dispose(); err != nil {
		t.Fatalf("dispose failed: %v", err)
	}
}

func TestCacheRefresher_CommittedChangeRefreshesAndBroadcasts(t *testing.T) {
	f := newTestCacheRefresher()
	f.seedCaches()

	f.publishInScope(t, context.Background(), true, &notification.ContentSavedNotification{IDs: []string{"DOC-001"}})

	caches := f.provider.AppCaches()
	content := caches.Isolated.Get(secondary.ContentCacheType)
	if _, ok := content.Get("DOC-001"); ok {
		t.Error("expected DOC-001 to be cleared")
	}
	if _, ok := content.Get("DOC-002"); !ok {
		t.Error("expected DOC-002 to stay cached")
	}
	if _, ok := caches.Runtime.Get("content:roots"); ok {
		t.Error("expected runtime content entries to be cleared")
	}
	if _, ok := caches.Runtime.Get("media:roots"); !ok {
		t.Error("expected unrelated runtime entries to stay")
	}

	sent := f.broadcaster.sent()
	if len(sent) != 1 || len(sent[0]) != 1 {
		t.Fatalf("expected one broadcast of one refresh, got %v", sent)
	}
	if sent[0][0].Origin != "local" || sent[0][0].Keys[0] != "DOC-001" {
		t.Errorf("unexpected refresh: %+v", sent[0][0])
	}
}

func TestCacheRefresher_RolledBackChangeDoesNothing(t *testing.T) {
	f := newTestCacheRefresher()
	f.seedCaches()

	f.publishInScope(t, context.Background(), false, &notification.ContentSavedNotification{IDs: []string{"DOC-001"}})

	if _, ok := f.provider.AppCaches().Isolated.Get(secondary.ContentCacheType).Get("DOC-001"); !ok {
		t.Error("expected DOC-001 to stay cached")
	}
	if sent := f.broadcaster.sent(); len(sent) != 0 {
		t.Errorf("expected no broadcasts, got %v", sent)
	}
}

func TestCacheRefresher_OperationBatchesBroadcasts(t *testing.T) {
	f := newTestCacheRefresher()

	err := f.provider.Operation(context.Background(), func(ctx context.Context) error {
		f.publishInScope(t, ctx, true, &notification.ContentSavedNotification{IDs: []string{"DOC-001"}})
		f.publishInScope(t, ctx, true, &notification.ContentPublishedNotification{IDs: []string{"DOC-002"}})
		if sent := f.broadcaster.sent(); len(sent) != 0 {
			t.Errorf("expected broadcasts to wait for the operation, got %v", sent)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("operation failed: %v", err)
	}

	sent := f.broadcaster.sent()
	if len(sent) != 1 || len(sent[0]) != 2 {
		t.Fatalf("expected one broadcast of two refreshes, got %v", sent)
	}
}

func TestCacheRefresher_MoveClearsWholeCache(t *testing.T) {
	f := newTestCacheRefresher()
	f.seedCaches()

	f.publishInScope(t, context.Background(), true, &notification.ContentMovedNotification{ID: "DOC-002", NewParentID: "DOC-001"})

	if n := f.provider.AppCaches().Isolated.Get(secondary.ContentCacheType).Count(); n != 0 {
		t.Errorf("expected content cache to be empty, got %d entries", n)
	}
	sent := f.broadcaster.sent()
	if len(sent) != 1 || !sent[0][0].ClearAll {
		t.Errorf("expected a clear-all broadcast, got %v", sent)
	}
}

func TestCacheRefresher_OutsideScopeBroadcastsImmediately(t *testing.T) {
	f := newTestCacheRefresher()

	err := f.agg.Publish(context.Background(), &notification.ContentDeletedNotification{IDs: []string{"DOC-003"}})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if sent := f.broadcaster.sent(); len(sent) != 1 {
		t.Errorf("expected one broadcast, got %v", sent)
	}
}

func TestCacheRefresher_ListenAppliesRemoteRefreshes(t *testing.T) {
	f := newTestCacheRefresher()
	f.seedCaches()
	f.broadcaster.incoming = []secondary.CacheRefresh{
		{Origin: "local", CacheType: secondary.ContentCacheType, Keys: []string{"DOC-002"}},
		{Origin: "server-b", CacheType: secondary.ContentCacheType, Keys: []string{"DOC-001"}},
	}

	if err := f.refresher.Listen(context.Background()); err != nil {
		t.Fatalf("listen failed: %v", err)
	}

	content := f.provider.AppCaches().Isolated.Get(secondary.ContentCacheType)
	if _, ok := content.Get("DOC-001"); ok {
		t.Error("expected remote refresh to clear DOC-001")
	}
	if _, ok := content.Get("DOC-002"); !ok {
		t.Error("expected own refresh to be ignored")
	}
}
