package gitfs

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Mount is the state shared by every callback of one mounted snapshot.
// It is built once by the bootstrap and never replaced.
type Mount struct {
	snap    *Snapshot
	virtual *Registry
	handles handleTable
}

// NewMount projects snap.  virtual may be nil to hide the hash files.
func NewMount(snap *Snapshot, virtual *Registry) *Mount {
	return &Mount{snap: snap, virtual: virtual}
}

func (m *Mount) Snapshot() *Snapshot {
	return m.snap
}

func (m *Mount) Registry() *Registry {
	return m.virtual
}

// lookup resolves path against the tree and falls back to the virtual
// files on NotFound.
func (m *Mount) lookup(path string) (Entry, error) {
	e, err := m.snap.Resolve(path)
	if err == nil || !errors.Is(err, ErrNotFound) {
		return e, err
	}
	if v, ok := m.virtual.Find(path); ok {
		log.Debugf("resolve %q: virtual", path)
		return v.open(), nil
	}
	return nil, err
}

// Getattr reports the attributes of path.
func (m *Mount) Getattr(path string) (a Attr, err error) {
	e, err := m.lookup(path)
	if err != nil {
		return
	}
	defer e.Release()
	return m.attrOf(e), nil
}

// Open resolves path and parks the entry in the handle table until
// Release.  Files and directories are opened the same way.
func (m *Mount) Open(path string) (token uint64, err error) {
	h := &Handle{path: path}
	err = h.open(m.lookup)
	if err != nil {
		return 0, err
	}
	return m.handles.insert(h), nil
}

// Release frees the entry behind token.  Unknown tokens, including 0,
// are ignored: nothing was opened, so there is nothing to free.
func (m *Mount) Release(token uint64) error {
	h := m.handles.remove(token)
	if h == nil {
		return nil
	}
	err := h.release()
	if err != nil {
		return ioFailure("release", h.path, err)
	}
	return nil
}

// OpenHandles is the number of opens not yet released.
func (m *Mount) OpenHandles() int {
	return m.handles.len()
}

func (m *Mount) handle(op string, token uint64) (*Handle, Entry, error) {
	h := m.handles.get(token)
	if h == nil {
		return nil, nil, ioFailure(op, "", ErrBadHandle)
	}
	e, err := h.get()
	if err != nil {
		return nil, nil, ioFailure(op, h.path, err)
	}
	return h, e, nil
}

// Stat reports the attributes of an open handle without walking the
// tree again.
func (m *Mount) Stat(token uint64) (a Attr, err error) {
	_, e, err := m.handle("stat", token)
	if err != nil {
		return
	}
	return m.attrOf(e), nil
}

// Read copies content starting at off into dest and returns the number
// of bytes copied.  Reading at or past the end copies nothing.
func (m *Mount) Read(token uint64, dest []byte, off int64) (n int, err error) {
	h, e, err := m.handle("read", token)
	if err != nil {
		return
	}

	var content []byte
	switch e := e.(type) {
	case *File:
		if !e.Mode().IsFile() {
			return 0, ioFailure("read", h.path, ErrBadMode)
		}
		content, err = e.Bytes()
	case *VirtualFile:
		content, err = e.Bytes()
	default:
		return 0, ioFailure("read", h.path, ErrIsDir)
	}
	if err != nil {
		return 0, ioFailure("read", h.path, err)
	}
	if off < 0 {
		return 0, ioFailure("read", h.path, errors.Errorf("negative offset %d", off))
	}
	return clip(dest, content, off), nil
}

// clip copies content[off:] into dest, truncated to whichever ends first.
func clip(dest, content []byte, off int64) int {
	if off >= int64(len(content)) {
		return 0
	}
	return copy(dest, content[off:])
}

// Readlink returns the target of the symlink at path, truncated to
// size-1 bytes and followed by a NUL.  Truncation is silent.
func (m *Mount) Readlink(path string, size int) (target []byte, err error) {
	e, err := m.lookup(path)
	if err != nil {
		return
	}
	defer e.Release()

	f, ok := e.(*File)
	if !ok || !f.IsSymlink() {
		return nil, ioFailure("readlink", path, ErrNotSymlink)
	}
	if size < 1 {
		return nil, ioFailure("readlink", path, errors.Errorf("buffer size %d", size))
	}
	content, err := f.Bytes()
	if err != nil {
		return nil, ioFailure("readlink", path, err)
	}

	n := len(content)
	if n > size-1 {
		n = size - 1
	}
	target = make([]byte, n+1)
	copy(target, content[:n])
	return target, nil
}
