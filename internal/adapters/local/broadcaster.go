// Package local provides in-process stand-ins for the distributed adapters, used when
// a single server runs without Redis.
package local

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/example/cmscope/internal/ports/secondary"
)

// Broadcaster implements secondary.CacheBroadcaster inside one process. Every
// listener receives every broadcast.
type Broadcaster struct {
	origin string

	mu        sync.Mutex
	listeners map[int]chan []secondary.CacheRefresh
	next      int
}

var _ secondary.CacheBroadcaster = (*Broadcaster)(nil)

// NewBroadcaster creates a broadcaster with no listeners.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		origin:    uuid.NewString(),
		listeners: make(map[int]chan []secondary.CacheRefresh),
	}
}

// Origin identifies this process.
func (b *Broadcaster) Origin() string {
	return b.origin
}

// Broadcast hands refreshes to every current listener without waiting. A listener
// whose buffer is full misses the batch.
func (b *Broadcaster) Broadcast(ctx context.Context, refreshes []secondary.CacheRefresh) error {
	if len(refreshes) == 0 {
		return nil
	}
	batch := make([]secondary.CacheRefresh, len(refreshes))
	for i, r := range refreshes {
		r.Origin = b.origin
		batch[i] = r
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.listeners {
		select {
		case ch <- batch:
		default:
		}
	}
	return ctx.Err()
}

// Listen delivers broadcasts to handler until ctx is done.
func (b *Broadcaster) Listen(ctx context.Context, handler func(ctx context.Context, refresh secondary.CacheRefresh)) error {
	ch := make(chan []secondary.CacheRefresh, 16)

	b.mu.Lock()
	id := b.next
	b.next++
	b.listeners[id] = ch
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.listeners, id)
		b.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case batch := <-ch:
			for _, r := range batch {
				handler(ctx, r)
			}
		}
	}
}

// Listeners returns the number of active listeners.
func (b *Broadcaster) Listeners() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners)
}
