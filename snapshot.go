package gitfs

import (
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/t7a/gitfs/store"
)

// ObjectStore is what the resolver needs from the object database.
// *store.Repo satisfies it.
type ObjectStore interface {
	TreeObject(h plumbing.Hash) (*object.Tree, error)
	BlobObject(h plumbing.Hash) (*object.Blob, error)
}

// Snapshot is the frozen tree a mount projects.  Nothing in it changes
// after NewSnapshot returns.
type Snapshot struct {
	objects ObjectStore
	root    *object.Tree
	rev     store.Revision
}

// NewSnapshot loads the root tree of rev from objects.
func NewSnapshot(objects ObjectStore, rev store.Revision) (*Snapshot, error) {
	root, err := objects.TreeObject(rev.Tree)
	if err != nil {
		return nil, storeError("snapshot", rev.Selector, err)
	}
	return &Snapshot{objects: objects, root: root, rev: rev}, nil
}

// Time is reported as atime, mtime and ctime of every entry.
func (s *Snapshot) Time() time.Time {
	return s.rev.Time
}

func (s *Snapshot) TreeHash() plumbing.Hash {
	return s.rev.Tree
}

// CommitHash returns the commit the snapshot was taken from, if any.
func (s *Snapshot) CommitHash() (plumbing.Hash, bool) {
	return s.rev.Commit, s.rev.HasCommit()
}

func (s *Snapshot) Revision() store.Revision {
	return s.rev
}
