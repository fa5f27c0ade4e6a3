package secondary

import "context"

// LogWriter defines the interface for writing audit log entries.
// Implementations extract the actor from context and write inside the ambient scope,
// so an entry is only kept if the change it describes commits.
type LogWriter interface {
	// LogCreate logs a create operation for an entity.
	LogCreate(ctx context.Context, entityType, entityID string) error

	// LogUpdate logs an update operation for an entity field.
	// fieldName, oldValue, newValue describe what changed.
	LogUpdate(ctx context.Context, entityType, entityID, fieldName, oldValue, newValue string) error

	// LogDelete logs a delete operation for an entity.
	LogDelete(ctx context.Context, entityType, entityID string) error

	// LogAction logs an operation that is neither create, update nor delete.
	LogAction(ctx context.Context, entityType, entityID, action string) error
}
