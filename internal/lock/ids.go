// Package lock implements scope-tree locking: a process-local read/write lock
// registry, an optional distributed backend, and the per-tree ledger that
// ref-counts lock references by the scope that requested them.
package lock

import "strconv"

// Lock ids are stable integers shared by every process competing for them.
const (
	Servers      = -331
	ContentTypes = -332
	ContentTree  = -333
	MediaTree    = -334
	MemberTree   = -335
	MediaTypes   = -336
	MemberTypes  = -337
	Domains      = -338
	KeyValues    = -339
	Languages    = -340
	MainDom      = -1000
)

var names = map[int]string{
	Servers:      "servers",
	ContentTypes: "content-types",
	ContentTree:  "content-tree",
	MediaTree:    "media-tree",
	MemberTree:   "member-tree",
	MediaTypes:   "media-types",
	MemberTypes:  "member-types",
	Domains:      "domains",
	KeyValues:    "key-values",
	Languages:    "languages",
	MainDom:      "main-dom",
}

// Name returns a readable name for a lock id.
func Name(id int) string {
	if n, ok := names[id]; ok {
		return n
	}
	return strconv.Itoa(id)
}

// IDs returns every well-known lock id.
func IDs() []int {
	return []int{Servers, ContentTypes, ContentTree, MediaTree, MemberTree, MediaTypes, MemberTypes, Domains, KeyValues, Languages, MainDom}
}
