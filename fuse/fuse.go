package fuse

import (
	"context"
	"path"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	log "github.com/sirupsen/logrus"
	. "github.com/stevegt/goadapt"
	"github.com/t7a/gitfs"
)

// the snapshot never changes, so the kernel may cache for as long as
// it likes
var cacheTimeout = time.Hour

// longest symlink target handed to the kernel, NUL included
const linkMax = 4096

// preferred I/O size reported in stat
const blksize = 4096

// node is any path in the mount.  It only knows its path; everything
// else is looked up in the Mount on each call.
type node struct {
	fs.Inode
	boot *gitfs.Bootstrap
	path string
}

var _ = (fs.NodeLookuper)((*node)(nil))
var _ = (fs.NodeGetattrer)((*node)(nil))
var _ = (fs.NodeOpener)((*node)(nil))
var _ = (fs.NodeReaddirer)((*node)(nil))
var _ = (fs.NodeReadlinker)((*node)(nil))

func (n *node) mount() (*gitfs.Mount, syscall.Errno) {
	m := n.boot.Mount()
	if m == nil {
		log.Errorf("callback for %s before serving", n.path)
		return nil, syscall.EIO
	}
	return m, 0
}

func (n *node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (child *fs.Inode, errno syscall.Errno) {
	defer Unpanic(&errno, msglog)

	m, errno := n.mount()
	if errno != 0 {
		return
	}
	p := path.Join(n.path, name)
	a, err := m.Getattr(p)
	if err != nil {
		return nil, errnoOf(err)
	}
	fillAttr(&out.Attr, a)
	child = n.NewInode(
		ctx,
		&node{boot: n.boot, path: p},
		fs.StableAttr{Mode: a.Mode & syscall.S_IFMT},
	)
	return child, 0
}

func (n *node) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) (errno syscall.Errno) {
	defer Unpanic(&errno, msglog)

	m, errno := n.mount()
	if errno != 0 {
		return
	}
	var a gitfs.Attr
	var err error
	if h, ok := fh.(*handle); ok {
		a, err = m.Stat(h.token)
	} else {
		a, err = m.Getattr(n.path)
	}
	if err != nil {
		return errnoOf(err)
	}
	fillAttr(&out.Attr, a)
	return 0
}

func (n *node) Open(ctx context.Context, flags uint32) (fh fs.FileHandle, fuseFlags uint32, errno syscall.Errno) {
	defer Unpanic(&errno, msglog)

	// disallow writes
	if flags&(syscall.O_RDWR|syscall.O_WRONLY) != 0 {
		return nil, 0, syscall.EROFS
	}
	m, errno := n.mount()
	if errno != 0 {
		return
	}
	token, err := m.Open(n.path)
	if err != nil {
		return nil, 0, errnoOf(err)
	}
	fh = &handle{mnt: m, token: token, path: n.path}

	// The file content is immutable, so ask the kernel to cache the data.
	return fh, fuse.FOPEN_KEEP_CACHE, fs.OK
}

func (n *node) Readdir(ctx context.Context) (stream fs.DirStream, errno syscall.Errno) {
	defer Unpanic(&errno, msglog)

	m, errno := n.mount()
	if errno != 0 {
		return
	}
	token, err := m.Open(n.path)
	if err != nil {
		return nil, errnoOf(err)
	}
	cur, err := m.Readdir(token, 0)
	if err != nil {
		m.Release(token)
		return nil, errnoOf(err)
	}
	return &dirStream{mnt: m, token: token, cur: cur}, 0
}

func (n *node) Readlink(ctx context.Context) (target []byte, errno syscall.Errno) {
	defer Unpanic(&errno, msglog)

	m, errno := n.mount()
	if errno != 0 {
		return
	}
	target, err := m.Readlink(n.path, linkMax)
	if err != nil {
		return nil, errnoOf(err)
	}
	// go-fuse adds its own terminator
	return target[:len(target)-1], 0
}

// handle is an open file.
type handle struct {
	mnt   *gitfs.Mount
	token uint64
	path  string
}

var _ = (fs.FileReader)((*handle)(nil))
var _ = (fs.FileReleaser)((*handle)(nil))

func (h *handle) Read(ctx context.Context, dest []byte, off int64) (res fuse.ReadResult, errno syscall.Errno) {
	defer Unpanic(&errno, msglog)

	n, err := h.mnt.Read(h.token, dest, off)
	if err != nil {
		return nil, errnoOf(err)
	}
	// XXX use ReadResultFd for zero-copy
	return fuse.ReadResultData(dest[:n]), 0
}

func (h *handle) Release(ctx context.Context) (errno syscall.Errno) {
	defer Unpanic(&errno, msglog)

	err := h.mnt.Release(h.token)
	if err != nil {
		return errnoOf(err)
	}
	return 0
}

// dirStream feeds a DirCursor to go-fuse, one entry of lookahead.
type dirStream struct {
	mnt    *gitfs.Mount
	token  uint64
	cur    *gitfs.DirCursor
	next   gitfs.DirEntry
	peeked bool
	ok     bool
}

func (s *dirStream) HasNext() bool {
	if !s.peeked {
		s.next, s.ok = s.cur.Next()
		s.peeked = true
	}
	return s.ok
}

func (s *dirStream) Next() (fuse.DirEntry, syscall.Errno) {
	if !s.HasNext() {
		if err := s.cur.Err(); err != nil {
			return fuse.DirEntry{}, errnoOf(err)
		}
		return fuse.DirEntry{}, syscall.EINVAL
	}
	s.peeked = false
	return fuse.DirEntry{
		Name: s.next.Name,
		Mode: s.next.Mode,
		Off:  s.next.Next,
	}, 0
}

// Seekdir restarts the listing at off, an offset taken from an entry
// handed out earlier.
func (s *dirStream) Seekdir(ctx context.Context, off uint64) syscall.Errno {
	cur, err := s.mnt.Readdir(s.token, off)
	if err != nil {
		return errnoOf(err)
	}
	s.cur = cur
	s.peeked = false
	return 0
}

func (s *dirStream) Close() {
	err := s.mnt.Release(s.token)
	if err != nil {
		log.Errorf("releasedir: %v", err)
	}
}

func fillAttr(out *fuse.Attr, a gitfs.Attr) {
	out.Mode = a.Mode
	out.Size = a.Size
	out.Nlink = a.Nlink
	out.Owner = fuse.Owner{Uid: a.Uid, Gid: a.Gid}
	out.Blksize = blksize
	out.Blocks = (a.Size + 511) / 512
	t := a.Time
	out.SetTimes(&t, &t, &t)
}

func errnoOf(err error) syscall.Errno {
	errno := gitfs.Errno(err)
	if errno == syscall.ENOENT {
		log.Debugf("%v", err)
	} else {
		log.WithFields(log.Fields{"errno": errno}).Errorf("%v", err)
	}
	return errno
}

// Mount brings b up on mountpoint: resolve, mount, confine, reopen,
// serve.  The kernel handshake happens before the process is confined,
// since go-fuse needs the mountpoint path for it; until b is serving
// every request gets EIO.
func Mount(b *gitfs.Bootstrap, mountpoint string) (server *fuse.Server, err error) {
	err = b.Resolve()
	if err != nil {
		return
	}

	opts := b.Options
	root := &node{boot: b, path: "/"}
	fsopts := &fs.Options{
		EntryTimeout:    &cacheTimeout,
		AttrTimeout:     &cacheTimeout,
		NegativeTimeout: &cacheTimeout,
		// start inode numbers at 2^16
		FirstAutomaticIno: 1 << 16,
		MountOptions: fuse.MountOptions{
			FsName:         b.GitDir(),
			Name:           "gitfs",
			Debug:          opts.Debug,
			AllowOther:     opts.AllowOther,
			SingleThreaded: true,
			// mount(2) when we're root, fusermount otherwise
			DirectMount: true,
			Options:     append([]string{"ro"}, opts.Kernel...),
		},
	}
	rawfs := fs.NewNodeFS(root, fsopts)
	server, err = fuse.NewServer(rawfs, mountpoint, &fsopts.MountOptions)
	if err != nil {
		return nil, b.Fail(err)
	}

	go server.Serve()
	err = server.WaitMount()
	if err != nil {
		umount(server)
		return nil, b.Fail(err)
	}

	_, err = b.Finish()
	if err != nil {
		Unmount(b, server)
		return nil, err
	}
	log.Debugf("serving %s at %s", b.GitDir(), mountpoint)
	return server, nil
}

// Unmount leaves the confinement, which hides the mountpoint, and then
// unmounts.
func Unmount(b *gitfs.Bootstrap, server *fuse.Server) error {
	err := b.Unconfine()
	if err != nil {
		log.Errorf("%v", err)
	}
	return umount(server)
}

func umount(server *fuse.Server) error {
	err := server.Unmount()
	if err != nil {
		log.Errorf("unmount: %v", err)
	}
	return err
}

func msglog(msg string) {
	log.Errorf("unpanic: %v", msg)
}
