package gitfs

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Confiner restricts what the process can reach.  Confine returns the
// path at which dir is visible afterwards; Unconfine puts things back so
// the mount can be torn down.
type Confiner interface {
	Confine(dir string) (string, error)
	Unconfine() error
}

// Chroot makes dir the process root.  It needs CAP_SYS_CHROOT.  A
// descriptor on the old root is held until Unconfine.
type Chroot struct {
	root int
	held bool
}

func (c *Chroot) Confine(dir string) (string, error) {
	fd, err := unix.Open("/", unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if err != nil {
		return "", errors.Wrap(err, "open /")
	}
	err = unix.Chroot(dir)
	if err != nil {
		unix.Close(fd)
		return "", errors.Wrapf(err, "chroot %s", dir)
	}
	c.root, c.held = fd, true
	err = unix.Chdir("/")
	if err != nil {
		return "", errors.Wrap(err, "chdir /")
	}
	return "/", nil
}

// Unconfine returns to the root Confine left.  It does nothing if
// nothing is held.
func (c *Chroot) Unconfine() error {
	if !c.held {
		return nil
	}
	c.held = false
	defer unix.Close(c.root)
	err := unix.Fchdir(c.root)
	if err != nil {
		return errors.Wrap(err, "fchdir old root")
	}
	err = unix.Chroot(".")
	if err != nil {
		return errors.Wrap(err, "chroot old root")
	}
	return errors.Wrap(unix.Chdir("/"), "chdir /")
}

// NoConfine leaves the process as it is.
type NoConfine struct{}

func (NoConfine) Confine(dir string) (string, error) {
	return dir, nil
}

func (NoConfine) Unconfine() error {
	return nil
}
