package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/example/cmscope/internal/ports/secondary"
)

// Broadcaster implements secondary.CacheBroadcaster over Redis pub/sub.
type Broadcaster struct {
	conn    *Connection
	channel string
	origin  string
	logger  *slog.Logger
}

var _ secondary.CacheBroadcaster = (*Broadcaster)(nil)

// NewBroadcaster creates a broadcaster publishing on channel. Each instance gets its
// own origin so it can recognise its own messages.
func NewBroadcaster(conn *Connection, channel string, logger *slog.Logger) *Broadcaster {
	if channel == "" {
		channel = conn.key("cache-refresh")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		conn:    conn,
		channel: channel,
		origin:  uuid.NewString(),
		logger:  logger,
	}
}

// Origin identifies this server.
func (b *Broadcaster) Origin() string {
	return b.origin
}

// Broadcast publishes refreshes as one message.
func (b *Broadcaster) Broadcast(ctx context.Context, refreshes []secondary.CacheRefresh) error {
	if len(refreshes) == 0 {
		return nil
	}
	payload, err := b.encode(refreshes)
	if err != nil {
		return err
	}
	if err := b.conn.Client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish cache refresh: %w", err)
	}
	return nil
}

// encode stamps a copy of refreshes with this server's origin.
func (b *Broadcaster) encode(refreshes []secondary.CacheRefresh) ([]byte, error) {
	batch := make([]secondary.CacheRefresh, len(refreshes))
	for i, r := range refreshes {
		r.Origin = b.origin
		batch[i] = r
	}
	payload, err := json.Marshal(batch)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cache refresh: %w", err)
	}
	return payload, nil
}

// Listen delivers refreshes published on the channel until ctx is done.
// Malformed messages are logged and skipped.
func (b *Broadcaster) Listen(ctx context.Context, handler func(ctx context.Context, refresh secondary.CacheRefresh)) error {
	sub := b.conn.Client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			var refreshes []secondary.CacheRefresh
			if err := json.Unmarshal([]byte(msg.Payload), &refreshes); err != nil {
				b.logger.Warn("skipping malformed cache refresh", "channel", b.channel, "error", err)
				continue
			}
			for _, r := range refreshes {
				handler(ctx, r)
			}
		}
	}
}
