package secondary

import "context"

// ContentCacheType names the isolated cache documents are kept in.
const ContentCacheType = "content"

// CacheRefresh tells other servers which cache entries went stale.
type CacheRefresh struct {
	Origin    string   `json:"origin"`
	CacheType string   `json:"cache_type"`
	Keys      []string `json:"keys,omitempty"`
	ClearAll  bool     `json:"clear_all,omitempty"`
}

// CacheBroadcaster distributes cache refreshes between servers.
type CacheBroadcaster interface {
	// Origin identifies this server; refreshes it sent carry the same value.
	Origin() string

	// Broadcast sends refreshes to every listening server, including this one.
	Broadcast(ctx context.Context, refreshes []CacheRefresh) error

	// Listen delivers incoming refreshes to handler until ctx is done.
	Listen(ctx context.Context, handler func(ctx context.Context, refresh CacheRefresh)) error
}
