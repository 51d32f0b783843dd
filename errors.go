package gitfs

import (
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/t7a/gitfs/store"
)

// Kind classifies a failure.
type Kind int

const (
	KindNotFound Kind = iota + 1
	KindIO
	KindOutOfMemory
	KindConfig
	KindBootstrap
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "no such entry"
	case KindIO:
		return "i/o failure"
	case KindOutOfMemory:
		return "out of memory"
	case KindConfig:
		return "configuration error"
	case KindBootstrap:
		return "bootstrap failure"
	}
	return "unknown failure"
}

// Error is returned by every gitfs operation.  Compare against the
// sentinels below with errors.Is to test the kind.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

var (
	ErrNotFound    = &Error{Kind: KindNotFound}
	ErrIO          = &Error{Kind: KindIO}
	ErrOutOfMemory = &Error{Kind: KindOutOfMemory}
	ErrConfig      = &Error{Kind: KindConfig}
	ErrBootstrap   = &Error{Kind: KindBootstrap}
)

// causes wrapped inside an IOFailure
var (
	ErrBadHandle  = errors.New("handle is not open")
	ErrNotDir     = errors.New("not a directory")
	ErrIsDir      = errors.New("is a directory")
	ErrNotSymlink = errors.New("not a symlink")
	ErrBadMode    = errors.New("not a regular file or symlink")
)

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		if e.Path != "" {
			b.WriteString(" ")
			b.WriteString(e.Path)
		}
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches a bare sentinel of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Path == "" && t.Err == nil && t.Kind == e.Kind
}

func notFound(op, path string, err error) error {
	return &Error{Kind: KindNotFound, Op: op, Path: path, Err: err}
}

func ioFailure(op, path string, err error) error {
	return &Error{Kind: KindIO, Op: op, Path: path, Err: err}
}

func configError(op string, err error) error {
	return &Error{Kind: KindConfig, Op: op, Err: err}
}

func bootstrapFailure(op, path string, err error) error {
	return &Error{Kind: KindBootstrap, Op: op, Path: path, Err: err}
}

// storeError classifies an error from the object store.
func storeError(op, path string, err error) error {
	if store.IsNotFound(err) {
		return notFound(op, path, err)
	}
	return ioFailure(op, path, err)
}

// Errno maps err onto the errno the kernel should see.
func Errno(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	if errors.Is(err, ErrBadHandle) {
		return syscall.EBADF
	}
	var e *Error
	if errors.As(err, &e) {
		switch e.Kind {
		case KindNotFound:
			return syscall.ENOENT
		case KindOutOfMemory:
			return syscall.ENOMEM
		}
	}
	return syscall.EIO
}
