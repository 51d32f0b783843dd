package gitfs

import (
	"fmt"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/t7a/gitfs/store"
)

// test boolean condition
func tassert(t *testing.T, cond bool, txt string, args ...interface{}) {
	t.Helper() // cause file:line info to show caller
	if !cond {
		t.Fatalf(txt, args...)
	}
}

var commitTime = time.Unix(1700000000, 0)

// mountTime stands in for the clock when a bare tree is mounted
var mountTime = time.Unix(1800000000, 0)

const (
	readmeText = "0123456789"
	linkTarget = "docs/readme.txt"
	scriptText = "#!/bin/sh\necho hi\n"
	bigCount   = 300
)

// fixture is a repository holding one commit:
//
//	big/f000 .. big/f299
//	docs/readme.txt   10 bytes
//	link -> docs/readme.txt
//	run.sh            executable
//	sub               submodule
type fixture struct {
	repo   *store.Repo
	s      *memory.Storage
	readme plumbing.Hash
	docs   plumbing.Hash
	big    plumbing.Hash
	root   plumbing.Hash
	commit plumbing.Hash
}

func putBlob(t *testing.T, s *memory.Storage, content string) plumbing.Hash {
	t.Helper()
	obj := s.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	w, err := obj.Writer()
	tassert(t, err == nil, "%v", err)
	_, err = w.Write([]byte(content))
	tassert(t, err == nil, "%v", err)
	tassert(t, w.Close() == nil, "close")
	h, err := s.SetEncodedObject(obj)
	tassert(t, err == nil, "%v", err)
	return h
}

func putObject(t *testing.T, s *memory.Storage, enc interface {
	Encode(plumbing.EncodedObject) error
}) plumbing.Hash {
	t.Helper()
	obj := s.NewEncodedObject()
	err := enc.Encode(obj)
	tassert(t, err == nil, "%v", err)
	h, err := s.SetEncodedObject(obj)
	tassert(t, err == nil, "%v", err)
	return h
}

func setup(t *testing.T) (f *fixture) {
	t.Helper()
	s := memory.NewStorage()
	repo, err := git.Init(s, nil)
	tassert(t, err == nil, "%v", err)
	f = &fixture{s: s, repo: store.FromRepository(repo, "/repo/.git")}

	f.readme = putBlob(t, s, readmeText)
	target := putBlob(t, s, linkTarget)
	script := putBlob(t, s, scriptText)

	f.docs = putObject(t, s, &object.Tree{Entries: []object.TreeEntry{
		{Name: "readme.txt", Mode: filemode.Regular, Hash: f.readme},
	}})

	var big []object.TreeEntry
	for i := 0; i < bigCount; i++ {
		big = append(big, object.TreeEntry{
			Name: fmt.Sprintf("f%03d", i),
			Mode: filemode.Regular,
			Hash: f.readme,
		})
	}
	f.big = putObject(t, s, &object.Tree{Entries: big})

	f.root = putObject(t, s, &object.Tree{Entries: []object.TreeEntry{
		{Name: "big", Mode: filemode.Dir, Hash: f.big},
		{Name: "docs", Mode: filemode.Dir, Hash: f.docs},
		{Name: "link", Mode: filemode.Symlink, Hash: target},
		{Name: "run.sh", Mode: filemode.Executable, Hash: script},
		{Name: "sub", Mode: filemode.Submodule, Hash: plumbing.NewHash("1111111111111111111111111111111111111111")},
	}})

	sig := object.Signature{Name: "Test User", Email: "test@example.com", When: commitTime}
	f.commit = putObject(t, s, &object.Commit{
		Author:    sig,
		Committer: sig,
		Message:   "initial\n",
		TreeHash:  f.root,
	})
	err = s.SetReference(plumbing.NewHashReference(plumbing.Master, f.commit))
	tassert(t, err == nil, "%v", err)
	err = s.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.Master))
	tassert(t, err == nil, "%v", err)
	return
}

func (f *fixture) rev(t *testing.T, selector string) store.Revision {
	t.Helper()
	rev, err := f.repo.Resolve(selector, mountTime)
	tassert(t, err == nil, "resolve %q: %v", selector, err)
	return rev
}

func (f *fixture) snapshot(t *testing.T, selector string) *Snapshot {
	t.Helper()
	snap, err := NewSnapshot(f.repo, f.rev(t, selector))
	tassert(t, err == nil, "%v", err)
	return snap
}

// mount projects selector with the hash files enabled.
func (f *fixture) mount(t *testing.T, selector string) *Mount {
	t.Helper()
	snap := f.snapshot(t, selector)
	return NewMount(snap, NewRegistry(snap.Revision()))
}

// list drains a listing of path, restarting every chunk entries the
// way the kernel does when its buffer fills.
func list(t *testing.T, m *Mount, path string, chunk int) (names []string) {
	t.Helper()
	token, err := m.Open(path)
	tassert(t, err == nil, "open %s: %v", path, err)
	defer m.Release(token)

	var off uint64
	for {
		cur, err := m.Readdir(token, off)
		tassert(t, err == nil, "readdir %s: %v", path, err)
		n := 0
		for de := range cur.All() {
			names = append(names, de.Name)
			off = de.Next
			n++
			if n == chunk {
				break
			}
		}
		tassert(t, cur.Err() == nil, "%v", cur.Err())
		if n < chunk {
			return
		}
	}
}
