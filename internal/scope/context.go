package scope

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// ExitAction runs when a Context exits. completed reports whether the operation
// that owned the context committed.
type ExitAction func(ctx context.Context, completed bool) error

// Context is the state of one logical operation. It outlives individual scope trees:
// sibling roots created while it is ambient all share it, which lets work raised in
// several trees be batched and run once at the end.
type Context struct {
	id uuid.UUID

	mu      sync.Mutex
	actions []enlistment
	keys    map[string]struct{}
	values  map[string]any
	exited  bool
}

type enlistment struct {
	key      string
	priority int
	seq      int
	action   ExitAction
}

func newContext() *Context {
	return &Context{
		id:     uuid.New(),
		keys:   make(map[string]struct{}),
		values: make(map[string]any),
	}
}

// ID returns the context's identifier.
func (c *Context) ID() uuid.UUID {
	return c.id
}

// Enlist registers action to run at exit. Only the first registration of a key is
// kept; the result reports whether this call added it. Actions run by ascending
// priority, then registration order.
func (c *Context) Enlist(key string, priority int, action ExitAction) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.exited {
		return false
	}
	if _, ok := c.keys[key]; ok {
		return false
	}
	c.keys[key] = struct{}{}
	c.actions = append(c.actions, enlistment{key: key, priority: priority, seq: len(c.actions), action: action})
	return true
}

// Enlisted returns the item registered under key, creating it and enlisting action
// for it on first use.
func Enlisted[T any](c *Context, key string, priority int, create func() T, action func(ctx context.Context, completed bool, item T) error) T {
	c.mu.Lock()
	if v, ok := c.values[key]; ok {
		c.mu.Unlock()
		return v.(T)
	}
	item := create()
	c.values[key] = item
	c.mu.Unlock()

	c.Enlist(key, priority, func(ctx context.Context, completed bool) error {
		return action(ctx, completed, item)
	})
	return item
}

// Get returns a value stored with Set.
func (c *Context) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	return v, ok
}

// Set stores a value for the rest of the operation.
func (c *Context) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
}

// exit runs the enlisted actions once. Every action runs even when an earlier one fails.
func (c *Context) exit(ctx context.Context, completed bool) error {
	c.mu.Lock()
	if c.exited {
		c.mu.Unlock()
		return nil
	}
	c.exited = true
	actions := c.actions
	c.actions = nil
	c.mu.Unlock()

	sort.SliceStable(actions, func(i, j int) bool {
		if actions[i].priority != actions[j].priority {
			return actions[i].priority < actions[j].priority
		}
		return actions[i].seq < actions[j].seq
	})

	var errs []error
	for _, a := range actions {
		if err := a.action(ctx, completed); err != nil {
			errs = append(errs, fmt.Errorf("exit action %q: %w", a.key, err))
		}
	}
	return errors.Join(errs...)
}
