// Package ctxutil provides context utilities that can be safely imported anywhere.
// This package has no internal dependencies to avoid import cycles.
package ctxutil

import "context"

// SystemActor is recorded for changes made without an actor, such as migrations and seeding.
const SystemActor = "system"

type actorKey struct{}

// WithActorID returns a context carrying the actor ID. An empty ID leaves ctx unchanged.
func WithActorID(ctx context.Context, actorID string) context.Context {
	if actorID == "" {
		return ctx
	}
	return context.WithValue(ctx, actorKey{}, actorID)
}

// ActorFromContext returns the actor ID from context, or empty string if not set.
func ActorFromContext(ctx context.Context) string {
	actorID, _ := ctx.Value(actorKey{}).(string)
	return actorID
}

// ActorOrSystem returns the actor ID from context, falling back to SystemActor.
func ActorOrSystem(ctx context.Context) string {
	if actorID := ActorFromContext(ctx); actorID != "" {
		return actorID
	}
	return SystemActor
}
