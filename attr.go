package gitfs

import (
	"syscall"
	"time"
)

// DirSize is the size reported for every directory.
const DirSize = 4096

// Attr is what getattr reports.  Owner and group are always root: the
// mount is read-only, so there is nothing to protect by mirroring the
// repository's owner.
type Attr struct {
	Mode  uint32 // S_IF* type bits and permission bits
	Size  uint64
	Nlink uint32
	Uid   uint32
	Gid   uint32
	Time  time.Time // atime, mtime and ctime
}

func (a Attr) IsDir() bool {
	return a.Mode&syscall.S_IFMT == syscall.S_IFDIR
}

func (a Attr) IsSymlink() bool {
	return a.Mode&syscall.S_IFMT == syscall.S_IFLNK
}

func (a Attr) IsRegular() bool {
	return a.Mode&syscall.S_IFMT == syscall.S_IFREG
}

// attrOf extracts attributes from a live entry.
func (m *Mount) attrOf(e Entry) Attr {
	a := Attr{Time: m.snap.Time()}
	switch e := e.(type) {
	case *Dir:
		a.Mode = syscall.S_IFDIR | 0555
		if e.IsRoot() {
			a.Mode |= 0200
		}
		a.Size = DirSize
		a.Nlink = 2
	case *File:
		// git modes use the unix layout: 0100644, 0100755, 0120000
		a.Mode = uint32(e.Mode())
		if e.IsSymlink() {
			a.Mode = syscall.S_IFLNK | 0777
		}
		a.Size = uint64(e.Size())
		a.Nlink = 1
	case *VirtualFile:
		a.Mode = syscall.S_IFREG | 0444
		a.Size = uint64(len(e.content))
		a.Nlink = 1
	}
	return a
}
