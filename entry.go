package gitfs

import (
	"io"
	"math"

	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/pkg/errors"
)

// Entry is a resolved path.  It is exactly one of *Dir, *File or
// *VirtualFile, and must be released exactly once.
type Entry interface {
	// Release drops whatever the entry owns.  A second call returns
	// ErrBadHandle and changes nothing.
	Release() error
	isEntry()
}

type ownership int

const (
	borrowed ownership = iota // the snapshot root
	owned                     // a subtree loaded for this entry
)

// Dir is a directory.  It either borrows the snapshot root or owns a
// subtree; only the constructors set which.
type Dir struct {
	tree     *object.Tree
	own      ownership
	released bool
}

func borrowRoot(s *Snapshot) *Dir {
	return &Dir{tree: s.root, own: borrowed}
}

func ownSubtree(tree *object.Tree) *Dir {
	return &Dir{tree: tree, own: owned}
}

func (*Dir) isEntry() {}

// IsRoot is true for the directory that borrows the snapshot root.
func (d *Dir) IsRoot() bool {
	return d.own == borrowed
}

// Entries returns the directory's children in storage order.
func (d *Dir) Entries() ([]object.TreeEntry, error) {
	if d.released {
		return nil, ErrBadHandle
	}
	return d.tree.Entries, nil
}

func (d *Dir) Release() error {
	if d.released {
		return ErrBadHandle
	}
	d.released = true
	// a borrowed root stays alive in the snapshot; only our pointer goes
	d.tree = nil
	return nil
}

// File is a blob together with the tree entry that named it.
type File struct {
	blob     *object.Blob
	meta     object.TreeEntry
	content  []byte
	loaded   bool
	released bool
}

func ownFile(blob *object.Blob, meta object.TreeEntry) (*File, error) {
	if blob.Size < 0 || uint64(blob.Size) > math.MaxInt {
		return nil, errors.Errorf("blob %s is %d bytes", blob.Hash, blob.Size)
	}
	return &File{blob: blob, meta: meta}, nil
}

func (*File) isEntry() {}

// Mode is the git file mode the tree entry recorded.
func (f *File) Mode() filemode.FileMode {
	return f.meta.Mode
}

func (f *File) IsSymlink() bool {
	return f.meta.Mode == filemode.Symlink
}

func (f *File) Size() int64 {
	return f.blob.Size
}

// Bytes returns the blob content, reading it on first use.
func (f *File) Bytes() (buf []byte, err error) {
	if f.released {
		return nil, ErrBadHandle
	}
	if f.loaded {
		return f.content, nil
	}
	rd, err := f.blob.Reader()
	if err != nil {
		return
	}
	defer rd.Close()
	buf = make([]byte, f.blob.Size)
	_, err = io.ReadFull(rd, buf)
	if err != nil {
		return nil, errors.Wrapf(err, "reading blob %s", f.blob.Hash)
	}
	f.content = buf
	f.loaded = true
	return
}

func (f *File) Release() error {
	if f.released {
		return ErrBadHandle
	}
	f.released = true
	f.blob = nil
	f.content = nil
	return nil
}

// VirtualFile is one of the synthetic hash files.  It owns a private
// copy of its content.
type VirtualFile struct {
	path     string
	content  []byte
	released bool
}

func (*VirtualFile) isEntry() {}

func (v *VirtualFile) Path() string {
	return v.path
}

func (v *VirtualFile) Bytes() ([]byte, error) {
	if v.released {
		return nil, ErrBadHandle
	}
	return v.content, nil
}

func (v *VirtualFile) Release() error {
	if v.released {
		return ErrBadHandle
	}
	v.released = true
	v.content = nil
	return nil
}
