package gitfs

import (
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/t7a/gitfs/store"
)

// State is where a Bootstrap is in bringing a mount up.
type State int

const (
	Unconfined State = iota
	Confined
	Serving
	Failed
)

func (s State) String() string {
	switch s {
	case Unconfined:
		return "unconfined"
	case Confined:
		return "confined"
	case Serving:
		return "serving"
	case Failed:
		return "failed"
	}
	return "invalid"
}

// Bootstrap brings a mount up in a fixed order: resolve the revision
// while the whole filesystem is visible, confine the process, reopen
// the store inside the confinement, then serve.  No callback gets a
// Mount before Serve.
//
// Any failure, including a call out of order, moves it to Failed for
// good.
type Bootstrap struct {
	RepoPath string
	Options  MountOptions
	Confiner Confiner
	// OpenStore opens the repository; store.Open unless a test swaps it.
	OpenStore func(dir string) (*store.Repo, error)
	// Now is sampled once, in Resolve.
	Now func() time.Time

	state       State
	err         error
	resolved    bool
	confined    bool
	rev         store.Revision
	gitDir      string
	confinedDir string
	repo        *store.Repo
	mount       *Mount
	// live is the mount once serving; callbacks read it from the
	// serve loop
	live atomic.Pointer[Mount]
}

// NewBootstrap prepares to mount repoPath.  The process is chrooted into
// the git directory unless opts.NoChroot is set.
func NewBootstrap(repoPath string, opts MountOptions) *Bootstrap {
	var c Confiner = &Chroot{}
	if opts.NoChroot {
		c = NoConfine{}
	}
	return &Bootstrap{
		RepoPath:  repoPath,
		Options:   opts,
		Confiner:  c,
		OpenStore: store.Open,
		Now:       time.Now,
	}
}

func (b *Bootstrap) State() State {
	return b.state
}

// Fail records err and moves to Failed.  The first error sticks.
func (b *Bootstrap) Fail(err error) error {
	if b.err == nil {
		if !errors.Is(err, ErrBootstrap) && !errors.Is(err, ErrConfig) {
			err = bootstrapFailure("bootstrap", b.RepoPath, err)
		}
		b.err = err
	}
	b.state = Failed
	log.Debugf("bootstrap failed: %v", b.err)
	if b.repo != nil {
		b.repo.Close()
		b.repo = nil
	}
	b.mount = nil
	b.live.Store(nil)
	return b.err
}

func (b *Bootstrap) Err() error {
	return b.err
}

// ExitCode is the process status for the bootstrap's outcome: 0 unless
// it failed, 2 for a configuration error, 1 otherwise.
func (b *Bootstrap) ExitCode() int {
	if b.state != Failed {
		return 0
	}
	if errors.Is(b.err, ErrConfig) {
		return 2
	}
	return 1
}

func (b *Bootstrap) outOfOrder(op string) error {
	return b.Fail(bootstrapFailure(op, b.RepoPath,
		errors.Errorf("not allowed while %s", b.state)))
}

// Revision is valid after Resolve.
func (b *Bootstrap) Revision() store.Revision {
	return b.rev
}

// GitDir is the directory Confine will confine to, valid after Resolve.
func (b *Bootstrap) GitDir() string {
	return b.gitDir
}

// Resolve opens the store at the user's path and resolves the revision.
// The store is closed again before returning; only the hashes survive.
func (b *Bootstrap) Resolve() (err error) {
	if b.state != Unconfined || b.resolved {
		return b.outOfOrder("resolve")
	}
	repo, err := b.OpenStore(b.RepoPath)
	if err != nil {
		return b.Fail(bootstrapFailure("open", b.RepoPath, err))
	}
	defer repo.Close()

	rev, err := repo.Resolve(b.Options.Rev, b.Now())
	if err != nil {
		return b.Fail(bootstrapFailure("resolve", b.Options.Rev, err))
	}
	log.Debugf("resolved %q to tree %s commit %s", rev.Selector, rev.Tree, rev.Commit)

	b.rev = rev
	b.gitDir = repo.GitDir
	b.resolved = true
	return nil
}

// Confine restricts the process to the git directory found by Resolve.
func (b *Bootstrap) Confine() (err error) {
	if b.state != Unconfined || !b.resolved {
		return b.outOfOrder("confine")
	}
	dir, err := b.Confiner.Confine(b.gitDir)
	if err != nil {
		return b.Fail(bootstrapFailure("confine", b.gitDir, err))
	}
	b.confinedDir = dir
	b.confined = true
	b.state = Confined
	return nil
}

// Unconfine undoes Confine, whatever state the bootstrap is in, so the
// mount can be torn down.  It does nothing if the process isn't
// confined.
func (b *Bootstrap) Unconfine() error {
	if !b.confined {
		return nil
	}
	b.confined = false
	err := b.Confiner.Unconfine()
	if err != nil {
		return bootstrapFailure("unconfine", b.gitDir, err)
	}
	return nil
}

// Reopen opens the store again from inside the confinement and builds
// the Mount over the tree Resolve found.
func (b *Bootstrap) Reopen() (err error) {
	if b.state != Confined || b.mount != nil {
		return b.outOfOrder("reopen")
	}
	repo, err := b.OpenStore(b.confinedDir)
	if err != nil {
		return b.Fail(bootstrapFailure("reopen", b.confinedDir, err))
	}
	snap, err := NewSnapshot(repo, b.rev)
	if err != nil {
		repo.Close()
		return b.Fail(bootstrapFailure("reopen", b.confinedDir, err))
	}
	var virtual *Registry
	if !b.Options.NoOidFiles {
		virtual = NewRegistry(b.rev)
	}
	b.repo = repo
	b.mount = NewMount(snap, virtual)
	return nil
}

// Serve hands out the Mount.  Callbacks may run from here on.
func (b *Bootstrap) Serve() (*Mount, error) {
	if b.state != Confined || b.mount == nil {
		return nil, b.outOfOrder("serve")
	}
	b.state = Serving
	b.live.Store(b.mount)
	return b.mount, nil
}

// Mount is nil unless the bootstrap is serving.
func (b *Bootstrap) Mount() *Mount {
	return b.live.Load()
}

// Finish does every step after Resolve, for callers with nothing to do
// between them.
func (b *Bootstrap) Finish() (*Mount, error) {
	err := b.Confine()
	if err != nil {
		return nil, err
	}
	err = b.Reopen()
	if err != nil {
		return nil, err
	}
	return b.Serve()
}

// Run does every step in order.
func (b *Bootstrap) Run() (*Mount, error) {
	err := b.Resolve()
	if err != nil {
		return nil, err
	}
	return b.Finish()
}

// Close releases the store held by a serving mount.
func (b *Bootstrap) Close() error {
	if b.repo == nil {
		return nil
	}
	err := b.repo.Close()
	b.repo = nil
	return err
}
