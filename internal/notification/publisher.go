package notification

import (
	"context"
	"errors"
	"sync"
)

// ErrPublisherExited is returned when publishing into a buffer that was already flushed.
var ErrPublisherExited = errors.New("notification: publisher already exited")

// Publisher is the scoped buffer owned by a root scope. Deferred notifications are
// delivered exactly once when the tree commits and discarded when it rolls back.
type Publisher struct {
	sink Sink

	mu         sync.Mutex
	buffer     []Notification
	suppressed int
	exited     bool
}

// NewPublisher creates an empty buffer in front of sink.
func NewPublisher(sink Sink) *Publisher {
	return &Publisher{sink: sink}
}

// Publish buffers n until the tree exits. Suppressed notifications are dropped.
func (p *Publisher) Publish(n Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.exited {
		return ErrPublisherExited
	}
	if p.suppressed > 0 {
		return nil
	}
	p.buffer = append(p.buffer, n)
	return nil
}

// PublishCancelable dispatches n right away so handlers can veto the pending change.
func (p *Publisher) PublishCancelable(ctx context.Context, n Cancelable) (bool, error) {
	p.mu.Lock()
	suppressed := p.suppressed > 0
	exited := p.exited
	p.mu.Unlock()

	if exited {
		return false, ErrPublisherExited
	}
	if suppressed {
		return false, nil
	}
	if err := p.sink.Publish(ctx, n); err != nil {
		return n.Canceled(), err
	}
	return n.Canceled(), nil
}

// Suppress drops notifications until the returned restore func is called.
// Calls nest; restore is idempotent.
func (p *Publisher) Suppress() (restore func()) {
	p.mu.Lock()
	p.suppressed++
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			p.suppressed--
			p.mu.Unlock()
		})
	}
}

// Pending returns the number of buffered notifications.
func (p *Publisher) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buffer)
}

// ScopeExit flushes the buffer to the sink when completed, otherwise discards it.
// Only the first call has any effect.
func (p *Publisher) ScopeExit(ctx context.Context, completed bool) error {
	p.mu.Lock()
	if p.exited {
		p.mu.Unlock()
		return nil
	}
	p.exited = true
	buffer := p.buffer
	p.buffer = nil
	p.mu.Unlock()

	if !completed || len(buffer) == 0 {
		return nil
	}
	return p.sink.Publish(ctx, buffer...)
}
