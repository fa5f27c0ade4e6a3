package app

import (
	"context"
	"log/slog"
	"sync"

	"github.com/example/cmscope/internal/cache"
	"github.com/example/cmscope/internal/notification"
	"github.com/example/cmscope/internal/ports/secondary"
	"github.com/example/cmscope/internal/scope"
)

const refreshBatchKey = "app.cache-refresh"

// refreshPriority runs the broadcast after other exit actions of the operation.
const refreshPriority = 100

// CacheRefresher keeps document caches coherent. On every committed change it drops
// the local entries at once and tells the other servers through the broadcaster.
// Refreshes raised while an operation context is ambient are sent as one batch when
// the operation ends.
type CacheRefresher struct {
	scopes      *scope.Provider
	caches      *cache.AppCaches
	broadcaster secondary.CacheBroadcaster
	logger      *slog.Logger
}

// NewCacheRefresher creates a refresher for the provider's caches.
func NewCacheRefresher(scopes *scope.Provider, broadcaster secondary.CacheBroadcaster, logger *slog.Logger) *CacheRefresher {
	if logger == nil {
		logger = slog.Default()
	}
	return &CacheRefresher{
		scopes:      scopes,
		caches:      scopes.AppCaches(),
		broadcaster: broadcaster,
		logger:      logger,
	}
}

// Register subscribes the refresher to document notifications.
func (r *CacheRefresher) Register(a *notification.Aggregator) {
	notification.Subscribe(a, func(ctx context.Context, n *notification.ContentSavedNotification) error {
		return r.refresh(ctx, secondary.CacheRefresh{CacheType: secondary.ContentCacheType, Keys: n.IDs})
	})
	notification.Subscribe(a, func(ctx context.Context, n *notification.ContentPublishedNotification) error {
		return r.refresh(ctx, secondary.CacheRefresh{CacheType: secondary.ContentCacheType, Keys: n.IDs})
	})
	notification.Subscribe(a, func(ctx context.Context, n *notification.ContentUnpublishedNotification) error {
		return r.refresh(ctx, secondary.CacheRefresh{CacheType: secondary.ContentCacheType, Keys: n.IDs})
	})
	notification.Subscribe(a, func(ctx context.Context, n *notification.ContentDeletedNotification) error {
		return r.refresh(ctx, secondary.CacheRefresh{CacheType: secondary.ContentCacheType, Keys: n.IDs})
	})
	// A move changes every path below the document.
	notification.Subscribe(a, func(ctx context.Context, n *notification.ContentMovedNotification) error {
		return r.refresh(ctx, secondary.CacheRefresh{CacheType: secondary.ContentCacheType, ClearAll: true})
	})
}

func (r *CacheRefresher) refresh(ctx context.Context, refresh secondary.CacheRefresh) error {
	refresh.Origin = r.broadcaster.Origin()
	r.apply(refresh)

	if c := r.scopes.AmbientContext(ctx); c != nil {
		batch := scope.Enlisted(c, refreshBatchKey, refreshPriority, newRefreshBatch, r.flush)
		batch.add(refresh)
		return nil
	}
	return r.broadcaster.Broadcast(ctx, []secondary.CacheRefresh{refresh})
}

func (r *CacheRefresher) flush(ctx context.Context, _ bool, batch *refreshBatch) error {
	refreshes := batch.drain()
	if len(refreshes) == 0 {
		return nil
	}
	r.logger.Debug("broadcasting cache refreshes", "count", len(refreshes))
	return r.broadcaster.Broadcast(ctx, refreshes)
}

// apply drops the entries a refresh names from the local caches.
func (r *CacheRefresher) apply(refresh secondary.CacheRefresh) {
	if refresh.ClearAll {
		r.caches.Isolated.ClearCache(refresh.CacheType)
	} else if c, ok := r.caches.Isolated.Lookup(refresh.CacheType); ok {
		for _, key := range refresh.Keys {
			c.ClearByKey(key)
		}
	}
	r.caches.Runtime.ClearByPrefix(refresh.CacheType + ":")
}

// Listen applies refreshes sent by other servers until ctx is done.
func (r *CacheRefresher) Listen(ctx context.Context) error {
	origin := r.broadcaster.Origin()
	return r.broadcaster.Listen(ctx, func(ctx context.Context, refresh secondary.CacheRefresh) {
		if refresh.Origin == origin {
			return
		}
		r.apply(refresh)
		r.logger.Info("applied remote cache refresh",
			"origin", refresh.Origin,
			"cache", refresh.CacheType,
			"keys", len(refresh.Keys),
			"clear_all", refresh.ClearAll,
		)
	})
}

// refreshBatch collects the refreshes of one operation.
type refreshBatch struct {
	mu    sync.Mutex
	items []secondary.CacheRefresh
}

func newRefreshBatch() *refreshBatch {
	return &refreshBatch{}
}

func (b *refreshBatch) add(refresh secondary.CacheRefresh) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(b.items, refresh)
}

func (b *refreshBatch) drain() []secondary.CacheRefresh {
	b.mu.Lock()
	defer b.mu.Unlock()
	items := b.items
	b.items = nil
	return items
}
