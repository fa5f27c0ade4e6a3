package app

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"
	"sync"

	"github.com/example/cmscope/internal/cache"
	"github.com/example/cmscope/internal/notification"
	"github.com/example/cmscope/internal/ports/secondary"
	"github.com/example/cmscope/internal/scope"
)

// ============================================================================
// Scope provider without a database
// ============================================================================

// noDatabase fails every connection request. Services under test talk to mock
// repositories, so the provider never needs one.
type noDatabase struct{}

func (noDatabase) Create(ctx context.Context) (secondary.Database, error) {
	return nil, errors.New("no database in unit tests")
}

func newTestProvider() (*scope.Provider, *notification.Aggregator) {
	agg := notification.NewAggregator(nil)
	return scope.NewProvider(noDatabase{}, agg, scope.WithAppCaches(cache.NewAppCaches())), agg
}

// ============================================================================
// mockContentRepository
// ============================================================================

// Ensure mockContentRepository implements the interface
var _ secondary.ContentRepository = (*mockContentRepository)(nil)

// mockContentRepository implements secondary.ContentRepository for testing.
type mockContentRepository struct {
	docs      map[string]*secondary.ContentRecord
	nextID    int
	deleted   []string
	createErr error
	deleteErr map[string]error
}

func newMockContentRepository() *mockContentRepository {
	return &mockContentRepository{
		docs:      make(map[string]*secondary.ContentRecord),
		nextID:    1,
		deleteErr: make(map[string]error),
	}
}

func (m *mockContentRepository) add(id, parentID, name string, published bool) {
	m.docs[id] = &secondary.ContentRecord{
		ID:          id,
		ParentID:    parentID,
		Name:        name,
		ContentType: "textPage",
		Published:   published,
		Version:     1,
		Values:      map[string]string{},
	}
}

func (m *mockContentRepository) Create(ctx context.Context, doc *secondary.ContentRecord) error {
	if m.createErr != nil {
		return m.createErr
	}
	c := *doc
	c.Version = 1
	m.docs[doc.ID] = &c
	return nil
}

func (m *mockContentRepository) GetByID(ctx context.Context, id string) (*secondary.ContentRecord, error) {
	if d, ok := m.docs[id]; ok {
		c := *d
		c.Values = maps.Clone(d.Values)
		return &c, nil
	}
	return nil, fmt.Errorf("document %s: %w", id, secondary.ErrNotFound)
}

func (m *mockContentRepository) GetChildren(ctx context.Context, parentID string) ([]*secondary.ContentRecord, error) {
	var result []*secondary.ContentRecord
	for _, d := range m.docs {
		if d.ParentID == parentID {
			result = append(result, d)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *mockContentRepository) List(ctx context.Context, filters secondary.ContentFilters) ([]*secondary.ContentRecord, error) {
	var result []*secondary.ContentRecord
	for _, d := range m.docs {
		if filters.ContentType != "" && d.ContentType != filters.ContentType {
			continue
		}
		if filters.Published != nil && d.Published != *filters.Published {
			continue
		}
		if filters.RootOnly && d.ParentID != "" {
			continue
		}
		result = append(result, d)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *mockContentRepository) Update(ctx context.Context, doc *secondary.ContentRecord) error {
	existing, ok := m.docs[doc.ID]
	if !ok {
		return fmt.Errorf("document %s: %w", doc.ID, secondary.ErrNotFound)
	}
	existing.Name = doc.Name
	existing.ContentType = doc.ContentType
	existing.SortOrder = doc.SortOrder
	existing.Values = maps.Clone(doc.Values)
	existing.Version++
	doc.Version = existing.Version
	return nil
}

func (m *mockContentRepository) Delete(ctx context.Context, id string) error {
	if err := m.deleteErr[id]; err != nil {
		return err
	}
	if _, ok := m.docs[id]; !ok {
		return fmt.Errorf("document %s: %w", id, secondary.ErrNotFound)
	}
	delete(m.docs, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockContentRepository) SetPublished(ctx context.Context, id string, published bool) error {
	d, ok := m.docs[id]
	if !ok {
		return fmt.Errorf("document %s: %w", id, secondary.ErrNotFound)
	}
	d.Published = published
	return nil
}

func (m *mockContentRepository) Move(ctx context.Context, id, parentID string) error {
	d, ok := m.docs[id]
	if !ok {
		return fmt.Errorf("document %s: %w", id, secondary.ErrNotFound)
	}
	d.ParentID = parentID
	return nil
}

func (m *mockContentRepository) Exists(ctx context.Context, id string) (bool, error) {
	_, ok := m.docs[id]
	return ok, nil
}

func (m *mockContentRepository) GetNextID(ctx context.Context) (string, error) {
	id := m.nextID
	m.nextID++
	return fmt.Sprintf("DOC-%03d", id), nil
}

// ============================================================================
// mockLogWriter
// ============================================================================

// Ensure mockLogWriter implements the interface
var _ secondary.LogWriter = (*mockLogWriter)(nil)

// mockLogWriter records audit calls as "action:entityID[:field]".
type mockLogWriter struct {
	entries []string
}

func (m *mockLogWriter) LogCreate(ctx context.Context, entityType, entityID string) error {
	m.entries = append(m.entries, "create:"+entityID)
	return nil
}

func (m *mockLogWriter) LogUpdate(ctx context.Context, entityType, entityID, fieldName, oldValue, newValue string) error {
	m.entries = append(m.entries, "update:"+entityID+":"+fieldName)
	return nil
}

func (m *mockLogWriter) LogDelete(ctx context.Context, entityType, entityID string) error {
	m.entries = append(m.entries, "delete:"+entityID)
	return nil
}

func (m *mockLogWriter) LogAction(ctx context.Context, entityType, entityID, action string) error {
	m.entries = append(m.entries, action+":"+entityID)
	return nil
}

// ============================================================================
// mockBroadcaster
// ============================================================================

// Ensure mockBroadcaster implements the interface
var _ secondary.CacheBroadcaster = (*mockBroadcaster)(nil)

// mockBroadcaster records broadcasts and replays incoming refreshes to Listen.
type mockBroadcaster struct {
	mu       sync.Mutex
	origin   string
	batches  [][]secondary.CacheRefresh
	incoming []secondary.CacheRefresh
}

func newMockBroadcaster() *mockBroadcaster {
	return &mockBroadcaster{origin: "local"}
}

func (m *mockBroadcaster) Origin() string { return m.origin }

func (m *mockBroadcaster) Broadcast(ctx context.Context, refreshes []secondary.CacheRefresh) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, refreshes)
	return nil
}

func (m *mockBroadcaster) Listen(ctx context.Context, handler func(ctx context.Context, refresh secondary.CacheRefresh)) error {
	for _, r := range m.incoming {
		handler(ctx, r)
	}
	return nil
}

func (m *mockBroadcaster) sent() [][]secondary.CacheRefresh {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]secondary.CacheRefresh(nil), m.batches...)
}

// ============================================================================
// mockAuditRepository
// ============================================================================

// Ensure mockAuditRepository implements the interface
var _ secondary.AuditRepository = (*mockAuditRepository)(nil)

type mockAuditRepository struct {
	entries  []*secondary.AuditRecord
	pruned   int
	pruneErr error
}

func (m *mockAuditRepository) Create(ctx context.Context, entry *secondary.AuditRecord) error {
	entry.ID = int64(len(m.entries) + 1)
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockAuditRepository) List(ctx context.Context, filters secondary.AuditFilters) ([]*secondary.AuditRecord, error) {
	var result []*secondary.AuditRecord
	for i := len(m.entries) - 1; i >= 0; i-- {
		e := m.entries[i]
		if filters.EntityType != "" && e.EntityType != filters.EntityType {
			continue
		}
		if filters.EntityID != "" && e.EntityID != filters.EntityID {
			continue
		}
		if filters.ActorID != "" && e.ActorID != filters.ActorID {
			continue
		}
		if filters.TransactionID != "" && e.TransactionID != filters.TransactionID {
			continue
		}
		result = append(result, e)
	}
	if filters.Limit > 0 && len(result) > filters.Limit {
		result = result[:filters.Limit]
	}
	return result, nil
}

func (m *mockAuditRepository) PruneOlderThan(ctx context.Context, days int) (int, error) {
	if m.pruneErr != nil {
		return 0, m.pruneErr
	}
	return m.pruned, nil
}
