package scope

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

type flowKey struct{}

// flow is the ambient state of one logical call chain: the stack of open scopes and
// the stack of scope contexts. It travels in context.Context, so every ctx derived
// from a scope's ctx sees the same stacks.
//
// A flow belongs to one goroutine at a time. Pushes and pops claim busy and panic
// when another goroutine holds it.
type flow struct {
	busy atomic.Bool

	mu       sync.RWMutex
	scopes   []*Scope
	contexts []*Context
}

func flowFrom(ctx context.Context) *flow {
	if ctx == nil {
		return nil
	}
	f, _ := ctx.Value(flowKey{}).(*flow)
	return f
}

// withFlow returns ctx with a flow attached, reusing the one already present.
func withFlow(ctx context.Context) (context.Context, *flow) {
	if f := flowFrom(ctx); f != nil {
		return ctx, f
	}
	f := &flow{}
	return context.WithValue(ctx, flowKey{}, f), f
}

// Detach returns ctx without ambient scope state. Goroutines started from inside a
// scope must use a detached ctx; scopes they create are then roots of their own trees.
func Detach(ctx context.Context) context.Context {
	if flowFrom(ctx) == nil {
		return ctx
	}
	return context.WithValue(ctx, flowKey{}, (*flow)(nil))
}

// claim marks the flow as being mutated by the caller. The returned func releases it.
func (f *flow) claim(op string, scopeID uuid.UUID) func() {
	if !f.busy.CompareAndSwap(false, true) {
		panic(&UsageError{Op: op, ScopeID: scopeID, Err: ErrConcurrentFlow})
	}
	return func() { f.busy.Store(false) }
}

func (f *flow) scope() *Scope {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if len(f.scopes) == 0 {
		return nil
	}
	return f.scopes[len(f.scopes)-1]
}

func (f *flow) context() *Context {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if len(f.contexts) == 0 {
		return nil
	}
	return f.contexts[len(f.contexts)-1]
}

func (f *flow) pushScope(s *Scope) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scopes = append(f.scopes, s)
}

func (f *flow) pushContext(c *Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contexts = append(f.contexts, c)
}

// popScope removes s, which must be the innermost scope.
func (f *flow) popScope(s *Scope) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.scopes)
	if n == 0 || f.scopes[n-1] != s {
		panic(&UsageError{Op: "pop", ScopeID: s.id, AmbientID: topID(f.scopes), Err: ErrNotAmbient})
	}
	f.scopes[n-1] = nil
	f.scopes = f.scopes[:n-1]
}

// popContext removes c, which must be the innermost context.
func (f *flow) popContext(c *Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.contexts)
	if n == 0 || f.contexts[n-1] != c {
		return
	}
	f.contexts[n-1] = nil
	f.contexts = f.contexts[:n-1]
}

func topID(scopes []*Scope) uuid.UUID {
	if len(scopes) == 0 {
		return uuid.Nil
	}
	return scopes[len(scopes)-1].id
}
