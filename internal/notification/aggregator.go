package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Sink receives notifications for delivery to handlers.
type Sink interface {
	Publish(ctx context.Context, notifications ...Notification) error
}

// Handler handles one notification.
type Handler func(ctx context.Context, n Notification) error

type subscription struct {
	match  func(Notification) bool
	handle Handler
}

// Aggregator is the in-process sink. Handlers run synchronously, in subscription order.
type Aggregator struct {
	mu            sync.RWMutex
	subscriptions []subscription
	logger        *slog.Logger
}

var _ Sink = (*Aggregator)(nil)

// NewAggregator creates an aggregator with no handlers.
func NewAggregator(logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{logger: logger}
}

// Subscribe registers a handler for notifications of type T.
func Subscribe[T Notification](a *Aggregator, handler func(ctx context.Context, n T) error) {
	a.add(subscription{
		match: func(n Notification) bool {
			_, ok := n.(T)
			return ok
		},
		handle: func(ctx context.Context, n Notification) error {
			return handler(ctx, n.(T))
		},
	})
}

// SubscribeAll registers a handler for every notification.
func SubscribeAll(a *Aggregator, handler Handler) {
	a.add(subscription{
		match:  func(Notification) bool { return true },
		handle: handler,
	})
}

func (a *Aggregator) add(s subscription) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.subscriptions = append(a.subscriptions, s)
}

// Publish dispatches each notification to every matching handler. A failing handler
// does not stop the others; all failures are joined.
func (a *Aggregator) Publish(ctx context.Context, notifications ...Notification) error {
	a.mu.RLock()
	subs := append([]subscription(nil), a.subscriptions...)
	a.mu.RUnlock()

	var errs []error
	for _, n := range notifications {
		for _, s := range subs {
			if !s.match(n) {
				continue
			}
			if err := s.handle(ctx, n); err != nil {
				a.logger.Error("notification handler failed", "notification", n.NotificationName(), "error", err)
				errs = append(errs, fmt.Errorf("handler for %s: %w", n.NotificationName(), err))
			}
		}
	}
	return errors.Join(errs...)
}
