package gitfs

import (
	"iter"
	"strings"
	"syscall"

	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// DirEntry is one name produced by a directory listing.  Next is the
// offset to pass to Readdir to continue after this entry.
type DirEntry struct {
	Name string
	Mode uint32 // S_IF* type bits only
	Next uint64
}

// DirCursor walks the children of an open directory starting at some
// offset.  Offsets are child indexes in storage order; in the root,
// the virtual files follow the real children.  A cursor can be dropped
// at any point and a new one started from the last Next it returned.
type DirCursor struct {
	h       *Handle
	dir     *Dir
	virtual *Registry
	off     uint64
	err     error
}

// Readdir starts a listing of the directory open under token.
func (m *Mount) Readdir(token uint64, start uint64) (*DirCursor, error) {
	h, e, err := m.handle("readdir", token)
	if err != nil {
		return nil, err
	}
	d, ok := e.(*Dir)
	if !ok {
		return nil, ioFailure("readdir", h.path, ErrNotDir)
	}
	c := &DirCursor{h: h, dir: d, off: start}
	if d.IsRoot() {
		c.virtual = m.virtual
	}
	return c, nil
}

// Next returns the entry at the cursor and advances past it.
func (c *DirCursor) Next() (de DirEntry, ok bool) {
	if c.err != nil {
		return
	}
	children, err := c.dir.Entries()
	if err != nil {
		c.err = ioFailure("readdir", c.h.path, err)
		return
	}

	n := uint64(len(children))
	for c.off < n {
		te := children[c.off]
		c.off++
		mode, ok := direntMode(te.Mode)
		if !ok {
			// submodule; it keeps its index so offsets stay stable
			continue
		}
		return DirEntry{Name: te.Name, Mode: mode, Next: c.off}, true
	}

	for i := c.off - n; i < uint64(c.virtual.Len()); i++ {
		c.off++
		name := strings.TrimPrefix(c.virtual.At(int(i)).Path, "/")
		if listed(children, name) {
			// a real entry of the same name wins, as it does in lookup
			continue
		}
		return DirEntry{Name: name, Mode: syscall.S_IFREG, Next: c.off}, true
	}
	return
}

// listed is true if name is one of the visible children.
func listed(children []object.TreeEntry, name string) bool {
	for _, te := range children {
		if te.Name == name {
			_, ok := direntMode(te.Mode)
			return ok
		}
	}
	return false
}

// Offset is where a new cursor should start to pick up from here.
func (c *DirCursor) Offset() uint64 {
	return c.off
}

// Err reports why Next stopped early, if it did.
func (c *DirCursor) Err() error {
	return c.err
}

// All drains the cursor.
func (c *DirCursor) All() iter.Seq[DirEntry] {
	return func(yield func(DirEntry) bool) {
		for {
			de, ok := c.Next()
			if !ok || !yield(de) {
				return
			}
		}
	}
}

func direntMode(m filemode.FileMode) (uint32, bool) {
	switch m {
	case filemode.Dir:
		return syscall.S_IFDIR, true
	case filemode.Regular, filemode.Executable, filemode.Deprecated:
		return syscall.S_IFREG, true
	case filemode.Symlink:
		return syscall.S_IFLNK, true
	}
	return 0, false
}
