package version

import (
	"fmt"
	"runtime/debug"
	"sync"
)

// These variables are set at build time via ldflags
var (
	Commit    = "unknown"
	BuildTime = "unknown"
)

var (
	resolveOnce sync.Once
	dirty       bool
)

// String returns the version string (commit-hash based, no semver).
// Without ldflags the commit and time come from the module's VCS build info.
func String() string {
	resolveOnce.Do(fromBuildInfo)
	return fmt.Sprintf("cmscope dev (commit: %s, built: %s)", shortCommit(), BuildTime)
}

func fromBuildInfo() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	for _, s := range info.Settings {
		switch {
		case s.Key == "vcs.revision" && Commit == "unknown":
			Commit = s.Value
		case s.Key == "vcs.time" && BuildTime == "unknown":
			BuildTime = s.Value
		case s.Key == "vcs.modified":
			dirty = s.Value == "true"
		}
	}
}

func shortCommit() string {
	c := Commit
	if len(c) > 7 {
		c = c[:7]
	}
	if dirty {
		c += "-dirty"
	}
	return c
}
