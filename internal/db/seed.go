package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/example/cmscope/internal/ports/secondary"
)

// SeedFixtures populates the database with a small sample site.
// Call it inside a scope; the fixtures commit with that scope.
func SeedFixtures(ctx context.Context, ex secondary.Executor) error {
	docs := []struct {
		id, parentID, name, contentType, values string
		sortOrder                               int
		published                               bool
	}{
		{"DOC-001", "", "Home", "homePage", `{"title":"Welcome"}`, 0, true},
		{"DOC-002", "DOC-001", "About", "textPage", `{"title":"About us"}`, 0, true},
		{"DOC-003", "DOC-001", "Blog", "blogList", `{}`, 1, true},
		{"DOC-004", "DOC-003", "First post", "blogPost", `{"title":"Hello","body":"First!"}`, 0, false},
	}
	for _, d := range docs {
		var parent any
		if d.parentID != "" {
			parent = d.parentID
		}
		if _, err := ex.ExecContext(ctx,
			"INSERT INTO documents (id, key, parent_id, name, content_type, sort_order, published, values_json) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
			d.id, uuid.NewString(), parent, d.name, d.contentType, d.sortOrder, d.published, d.values,
		); err != nil {
			return fmt.Errorf("seed documents: %w", err)
		}
	}

	return nil
}
