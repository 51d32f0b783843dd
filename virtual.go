package gitfs

import (
	"github.com/t7a/gitfs/store"
)

// Marker prefixes the names of the synthetic hash files.
const Marker = ".gitfs"

const (
	TreeIDPath   = "/" + Marker + "-tree-id"
	CommitIDPath = "/" + Marker + "-commit-id"
)

// VirtualEntry is a synthetic read-only file in the root directory.
type VirtualEntry struct {
	Path    string
	Content []byte
}

// Registry holds the synthetic files.  A nil *Registry is empty.
type Registry struct {
	entries []VirtualEntry
}

// NewRegistry renders the hashes of rev.  The commit-id file exists only
// if rev has a commit.
func NewRegistry(rev store.Revision) *Registry {
	r := &Registry{}
	r.entries = append(r.entries, VirtualEntry{
		Path:    TreeIDPath,
		Content: []byte(rev.Tree.String() + "\n"),
	})
	if rev.HasCommit() {
		r.entries = append(r.entries, VirtualEntry{
			Path:    CommitIDPath,
			Content: []byte(rev.Commit.String() + "\n"),
		})
	}
	return r
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.entries)
}

func (r *Registry) At(i int) VirtualEntry {
	return r.entries[i]
}

// Find matches path exactly.
func (r *Registry) Find(path string) (VirtualEntry, bool) {
	for i := 0; i < r.Len(); i++ {
		if r.entries[i].Path == path {
			return r.entries[i], true
		}
	}
	return VirtualEntry{}, false
}

// open hands out an entry with its own copy of the content.
func (v VirtualEntry) open() *VirtualFile {
	return &VirtualFile{
		path:    v.Path,
		content: append([]byte(nil), v.Content...),
	}
}
