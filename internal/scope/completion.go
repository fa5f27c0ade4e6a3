package scope

// Completion is a scope's vote on the outcome of its tree.
type Completion int

const (
	// Undecided is the initial vote. At disposal it counts as rollback.
	Undecided Completion = iota
	// Commit means the scope finished its work.
	Commit
	// Rollback means the scope, or one of its children, failed.
	Rollback
)

func (c Completion) String() string {
	switch c {
	case Undecided:
		return "undecided"
	case Commit:
		return "commit"
	case Rollback:
		return "rollback"
	default:
		return "unknown"
	}
}

// Merge folds a disposed child's vote into its parent's. Any child that did not
// commit vetoes the parent; otherwise the parent keeps its own vote.
func Merge(parent, child Completion) Completion {
	if parent == Rollback || child != Commit {
		return Rollback
	}
	return parent
}
