package app

import (
	"context"
	"fmt"

	"github.com/example/cmscope/internal/ports/primary"
	"github.com/example/cmscope/internal/ports/secondary"
	"github.com/example/cmscope/internal/scope"
)

// LogServiceImpl implements the LogService interface.
type LogServiceImpl struct {
	scopes    *scope.Provider
	auditRepo secondary.AuditRepository
}

// NewLogService creates a new LogService with injected dependencies.
func NewLogService(scopes *scope.Provider, auditRepo secondary.AuditRepository) *LogServiceImpl {
	return &LogServiceImpl{
		scopes:    scopes,
		auditRepo: auditRepo,
	}
}

// ListLogs retrieves log entries matching the given filters.
func (s *LogServiceImpl) ListLogs(ctx context.Context, filters primary.LogFilters) ([]*primary.LogEntry, error) {
	var records []*secondary.AuditRecord
	err := s.scopes.Do(ctx, func(ctx context.Context, _ *scope.Scope) error {
		var err error
		records, err = s.auditRepo.List(ctx, secondary.AuditFilters{
			EntityType: filters.EntityType,
			EntityID:   filters.EntityID,
			ActorID:       filters.ActorID,
			TransactionID: filters.TransactionID,
			Limit:         filters.Limit,
		})
		return err
	}, scope.WithReadOnly())
	if err != nil {
		return nil, fmt.Errorf("failed to list logs: %w", err)
	}

	entries := make([]*primary.LogEntry, len(records))
	for i, r := range records {
		entries[i] = s.recordToLogEntry(r)
	}
	return entries, nil
}

// PruneLogs deletes log entries older than the specified number of days.
func (s *LogServiceImpl) PruneLogs(ctx context.Context, olderThanDays int) (int, error) {
	if olderThanDays < 0 {
		return 0, fmt.Errorf("days must not be negative, got %d", olderThanDays)
	}

	var count int
	err := s.scopes.Do(ctx, func(ctx context.Context, _ *scope.Scope) error {
		var err error
		count, err = s.auditRepo.PruneOlderThan(ctx, olderThanDays)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to prune logs: %w", err)
	}
	return count, nil
}

// Helper methods

func (s *LogServiceImpl) recordToLogEntry(r *secondary.AuditRecord) *primary.LogEntry {
	return &primary.LogEntry{
		ID:            r.ID,
		ActorID:       r.ActorID,
		EntityType:    r.EntityType,
		EntityID:      r.EntityID,
		Action:        r.Action,
		FieldName:     r.FieldName,
		OldValue:      r.OldValue,
		NewValue:      r.NewValue,
		TransactionID: r.TransactionID,
		CreatedAt:     r.CreatedAt,
	}
}

// Ensure LogServiceImpl implements the interface
var _ primary.LogService = (*LogServiceImpl)(nil)
