// Package content contains the pure business logic for document operations.
// This is part of the Functional Core - no I/O, only pure functions.
package content

import "fmt"

// GuardResult represents the outcome of a guard evaluation.
type GuardResult struct {
	Allowed bool
	Reason  string // Human-readable reason (populated when not allowed)
}

// Error returns the guard result as an error if not allowed, nil otherwise.
func (r GuardResult) Error() error {
	if r.Allowed {
		return nil
	}
	return fmt.Errorf("%s", r.Reason)
}

// SaveContext provides context for save guards.
type SaveContext struct {
	DocumentID   string // Empty when creating
	Name         string
	ContentType  string
	ParentID     string
	ParentExists bool
}

// CanSaveDocument evaluates whether a document can be created or updated.
// Rule: Every document needs a name. New documents also need a content type
// and, when placed below another document, a parent that exists.
func CanSaveDocument(ctx SaveContext) GuardResult {
	if ctx.Name == "" {
		return GuardResult{Allowed: false, Reason: "name is required"}
	}
	if ctx.DocumentID != "" {
		return GuardResult{Allowed: true}
	}
	if ctx.ContentType == "" {
		return GuardResult{Allowed: false, Reason: "content type is required"}
	}
	if ctx.ParentID != "" && !ctx.ParentExists {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("parent %s not found", ctx.ParentID),
		}
	}
	return GuardResult{Allowed: true}
}

// PublishContext provides context for publish guards.
type PublishContext struct {
	DocumentID      string
	ParentID        string // Empty for root documents
	ParentPublished bool
}

// CanPublishDocument evaluates whether a document can be published.
// Rule: A document below an unpublished parent stays unpublished.
func CanPublishDocument(ctx PublishContext) GuardResult {
	if ctx.ParentID != "" && !ctx.ParentPublished {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("cannot publish %s: parent %s is not published", ctx.DocumentID, ctx.ParentID),
		}
	}
	return GuardResult{Allowed: true}
}

// MoveContext provides context for move guards.
// Ancestors lists the new parent's ancestry from the new parent up to the root.
type MoveContext struct {
	DocumentID  string
	NewParentID string
	Ancestors   []string
}

// CanMoveDocument evaluates whether a document can be moved under a new parent.
// Rule: A document cannot end up below itself.
func CanMoveDocument(ctx MoveContext) GuardResult {
	if ctx.DocumentID == ctx.NewParentID {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("cannot move %s under itself", ctx.DocumentID),
		}
	}
	for _, ancestor := range ctx.Ancestors {
		if ancestor == ctx.DocumentID {
			return GuardResult{
				Allowed: false,
				Reason:  fmt.Sprintf("cannot move %s under its descendant %s", ctx.DocumentID, ctx.NewParentID),
			}
		}
	}
	return GuardResult{Allowed: true}
}
