package primary

import "context"

// LogService defines the primary port for the audit log.
type LogService interface {
	// ListLogs retrieves log entries matching the given filters, newest first.
	ListLogs(ctx context.Context, filters LogFilters) ([]*LogEntry, error)

	// PruneLogs deletes log entries older than the specified number of days.
	PruneLogs(ctx context.Context, olderThanDays int) (int, error)
}

// LogEntry represents an audit log entry at the port boundary.
type LogEntry struct {
	ID         int64
	ActorID    string
	EntityType string
	EntityID   string
	Action     string // 'create', 'update', 'delete', 'publish', 'unpublish', 'move'
	FieldName  string // For updates only
	OldValue   string
	NewValue   string
	// TransactionID groups the entries committed together.
	TransactionID string
	CreatedAt     string
}

// LogFilters contains filter options for querying logs.
type LogFilters struct {
	EntityType    string
	EntityID      string
	ActorID       string
	TransactionID string
	Limit         int
}
