// Package cache holds the application caches and the isolated per-type caches that
// repositories read through, plus the policy that picks one for the ambient scope.
package cache

import (
	"fmt"
	"strings"
)

// Mode selects which cache repositories use inside a scope tree.
type Mode int

const (
	// ModeUnspecified inherits the parent's mode, or ModeDefault at the root.
	ModeUnspecified Mode = iota
	// ModeDefault reads and writes the global isolated caches.
	ModeDefault
	// ModeScoped uses caches private to the tree; the global ones are cleared on commit.
	ModeScoped
	// ModeNone bypasses caching.
	ModeNone
)

func (m Mode) String() string {
	switch m {
	case ModeUnspecified:
		return "unspecified"
	case ModeDefault:
		return "default"
	case ModeScoped:
		return "scoped"
	case ModeNone:
		return "none"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode parses a mode name as written in config files.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "unspecified":
		return ModeUnspecified, nil
	case "default":
		return ModeDefault, nil
	case "scoped":
		return ModeScoped, nil
	case "none":
		return ModeNone, nil
	default:
		return ModeUnspecified, fmt.Errorf("unknown repository cache mode %q", s)
	}
}
