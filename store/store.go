package store

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/filesystem"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	. "github.com/stevegt/goadapt"
)

// ErrNotFound is wrapped by every error that means "no such object or
// reference".
var ErrNotFound = errors.New("object not found")

// ErrNotTreeish means a selector resolved to something that has no tree,
// e.g. a blob.
var ErrNotTreeish = errors.New("not a commit or tree")

// TreeSuffix forces a selector to resolve to its bare tree.
const TreeSuffix = "^{tree}"

// Repo is a read-only view of a git object database.
type Repo struct {
	// GitDir is the directory containing objects/ and refs/.
	GitDir string
	repo   *git.Repository
}

// Revision is a resolved selector.
type Revision struct {
	Selector string
	Tree     plumbing.Hash
	Commit   plumbing.Hash // zero for a bare tree
	Time     time.Time     // committer time, or mount time for a bare tree
}

// HasCommit is true if the selector peeled to a commit.
func (rev Revision) HasCommit() bool {
	return !rev.Commit.IsZero()
}

type NotRepoError struct {
	Dir string
}

func (e *NotRepoError) Error() string {
	return "not a git repository: " + e.Dir
}

// Open opens the repository at dir, which may be a work tree or a bare
// git directory.
func Open(dir string) (r *Repo, err error) {
	defer Return(&err)

	dir = filepath.Clean(dir)
	if !canstat(dir) {
		return nil, &NotRepoError{Dir: dir}
	}

	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{
		EnableDotGitCommonDir: true,
	})
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, &NotRepoError{Dir: dir}
	}
	Ck(err)

	storage, ok := repo.Storer.(*filesystem.Storage)
	Assert(ok, "repository storage is not on a filesystem")
	gitdir, err := commonDir(storage.Filesystem().Root())
	Ck(err)

	log.Debugf("opened %s (git dir %s)", dir, gitdir)
	return &Repo{GitDir: gitdir, repo: repo}, nil
}

// FromRepository wraps an already-open go-git repository.
func FromRepository(repo *git.Repository, gitdir string) *Repo {
	return &Repo{GitDir: gitdir, repo: repo}
}

// commonDir returns the directory holding the objects of the git dir
// at root.  A linked worktree keeps only HEAD and its index in root and
// names the main git dir in a commondir file.
func commonDir(root string) (dir string, err error) {
	buf, err := util.ReadFile(osfs.New(root), "commondir")
	if os.IsNotExist(err) {
		return filepath.Clean(root), nil
	}
	if err != nil {
		return "", errors.Wrapf(err, "reading %s/commondir", root)
	}
	dir = strings.TrimSpace(string(buf))
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(root, dir)
	}
	return filepath.Clean(dir), nil
}

// Close releases any descriptors the storage keeps open.
func (r *Repo) Close() error {
	if c, ok := r.repo.Storer.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// TreeObject returns the tree with hash h.
func (r *Repo) TreeObject(h plumbing.Hash) (*object.Tree, error) {
	tree, err := r.repo.TreeObject(h)
	if err != nil {
		return nil, classify(err, "tree %s", h)
	}
	return tree, nil
}

// BlobObject returns the blob with hash h.
func (r *Repo) BlobObject(h plumbing.Hash) (*object.Blob, error) {
	blob, err := r.repo.BlobObject(h)
	if err != nil {
		return nil, classify(err, "blob %s", h)
	}
	return blob, nil
}

// Resolve turns a selector into a revision.  An empty selector means
// HEAD.  now is used as the timestamp of bare-tree revisions.
func (r *Repo) Resolve(selector string, now time.Time) (rev Revision, err error) {
	if selector == "" {
		selector = "HEAD"
	}
	rev.Selector = selector

	name := selector
	treeOnly := strings.HasSuffix(name, TreeSuffix)
	if treeOnly {
		name = strings.TrimSuffix(name, TreeSuffix)
	}

	obj, err := r.lookup(name)
	if err != nil {
		return rev, err
	}

	// peel tags until we hit a commit or tree
	for obj != nil {
		switch o := obj.(type) {
		case *object.Tag:
			obj, err = o.Object()
			if err != nil {
				return rev, classify(err, "tag %s", o.Hash)
			}
		case *object.Commit:
			rev.Commit = o.Hash
			rev.Tree = o.TreeHash
			rev.Time = o.Committer.When
			obj = nil
		case *object.Tree:
			rev.Tree = o.Hash
			rev.Time = now
			obj = nil
		default:
			return rev, errors.Wrapf(ErrNotTreeish, "%s is a %s", selector, obj.Type())
		}
	}

	if treeOnly {
		rev.Commit = plumbing.ZeroHash
		rev.Time = now
	}
	log.Debugf("resolved %q to tree %s commit %s", selector, rev.Tree, rev.Commit)
	return
}

// lookup finds the object a selector names without peeling it.
func (r *Repo) lookup(name string) (obj object.Object, err error) {
	if plumbing.IsHash(name) {
		obj, err = r.repo.Object(plumbing.AnyObject, plumbing.NewHash(name))
		if err == nil {
			return
		}
		if !errors.Is(err, plumbing.ErrObjectNotFound) {
			return nil, classify(err, "object %s", name)
		}
	}

	// refs may point at tags of trees, which ResolveRevision refuses
	for _, rule := range plumbing.RefRevParseRules {
		refname := plumbing.ReferenceName(strings.Replace(rule, "%s", name, 1))
		ref, err := r.repo.Reference(refname, true)
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			continue
		}
		if err != nil {
			return nil, classify(err, "%s", refname)
		}
		obj, err = r.repo.Object(plumbing.AnyObject, ref.Hash())
		if err != nil {
			return nil, classify(err, "%s", refname)
		}
		return obj, nil
	}

	// short hashes, HEAD~n and friends
	h, err := r.repo.ResolveRevision(plumbing.Revision(name))
	if err != nil {
		return nil, classify(err, "revision %s", name)
	}
	obj, err = r.repo.Object(plumbing.AnyObject, *h)
	if err != nil {
		return nil, classify(err, "object %s", h)
	}
	return
}

// IsNotFound reports whether err means a missing object, reference or
// tree entry, whether or not it has been through classify.
func IsNotFound(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrNotFound),
		errors.Is(err, plumbing.ErrObjectNotFound),
		errors.Is(err, plumbing.ErrReferenceNotFound),
		errors.Is(err, object.ErrEntryNotFound),
		errors.Is(err, object.ErrDirectoryNotFound),
		errors.Is(err, object.ErrFileNotFound):
		return true
	}
	return false
}

// classify maps go-git's not-found errors onto ErrNotFound and wraps
// everything else with context.
func classify(err error, format string, args ...interface{}) error {
	if IsNotFound(err) {
		return errors.Wrapf(ErrNotFound, format+": %v", append(args, err)...)
	}
	return errors.Wrapf(err, format, args...)
}

func canstat(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
