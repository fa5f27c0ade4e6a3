// Package notification buffers domain notifications raised inside a scope tree and
// hands them to an aggregator once the tree commits.
package notification

import "errors"

// ErrCanceled is returned by services when a handler vetoed a cancelable notification.
var ErrCanceled = errors.New("notification: operation canceled by handler")

// Notification is any event raised by a service during a unit of work.
type Notification interface {
	NotificationName() string
}

// Cancelable notifications are dispatched before a change and may veto it.
type Cancelable interface {
	Notification
	Cancel(reason string)
	Canceled() bool
	Messages() []string
}

// CancelableBase implements the cancellation half of Cancelable for embedding.
type CancelableBase struct {
	canceled bool
	messages []string
}

// Cancel vetoes the operation. reason is optional.
func (c *CancelableBase) Cancel(reason string) {
	c.canceled = true
	if reason != "" {
		c.messages = append(c.messages, reason)
	}
}

// Canceled reports whether any handler vetoed the operation.
func (c *CancelableBase) Canceled() bool { return c.canceled }

// Messages returns the reasons given by vetoing handlers.
func (c *CancelableBase) Messages() []string { return c.messages }
