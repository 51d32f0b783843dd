package main

import (
	"bytes"
	"flag"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/google/go-cmdtest"
	. "github.com/stevegt/goadapt"
)

var update = flag.Bool("update", false, "update test files with results")

// mainEnv makes the test binary behave as gitfs itself.
const mainEnv = "GITFS_TEST_MAIN"

func TestMain(m *testing.M) {
	if os.Getenv(mainEnv) == "1" {
		os.Exit(run())
	}
	os.Exit(m.Run())
}

// test boolean condition
func tassert(t *testing.T, cond bool, txt string, args ...interface{}) {
	t.Helper() // cause file:line info to show caller
	if !cond {
		t.Fatalf(txt, args...)
	}
}

func TestCLI(t *testing.T) {
	ts, err := cmdtest.Read("testdata")
	if err != nil {
		t.Fatal(err)
	}
	ts.Commands["gitfs"] = cmdtest.InProcessProgram("gitfs", run)
	ts.Run(t, *update)
}

func put(s interface {
	NewEncodedObject() plumbing.EncodedObject
	SetEncodedObject(plumbing.EncodedObject) (plumbing.Hash, error)
}, content []byte, enc interface {
	Encode(plumbing.EncodedObject) error
}) plumbing.Hash {
	obj := s.NewEncodedObject()
	if enc != nil {
		Ck(enc.Encode(obj))
	} else {
		obj.SetType(plumbing.BlobObject)
		w, err := obj.Writer()
		Ck(err)
		_, err = w.Write(content)
		Ck(err)
		Ck(w.Close())
	}
	h, err := s.SetEncodedObject(obj)
	Ck(err)
	return h
}

// bareRepo writes a bare repository whose HEAD holds docs/readme.txt.
func bareRepo(t *testing.T) string {
	dir := filepath.Join(t.TempDir(), "repo.git")
	repo, err := git.PlainInit(dir, true)
	tassert(t, err == nil, "%v", err)
	s := repo.Storer

	readme := put(s, []byte("0123456789"), nil)
	docs := put(s, nil, &object.Tree{Entries: []object.TreeEntry{
		{Name: "readme.txt", Mode: filemode.Regular, Hash: readme},
	}})
	root := put(s, nil, &object.Tree{Entries: []object.TreeEntry{
		{Name: "docs", Mode: filemode.Dir, Hash: docs},
	}})
	sig := object.Signature{Name: "Test User", Email: "test@example.com", When: time.Unix(1700000000, 0)}
	commit := put(s, nil, &object.Commit{Author: sig, Committer: sig, Message: "initial\n", TreeHash: root})
	Ck(s.SetReference(plumbing.NewHashReference(plumbing.Master, commit)))
	Ck(s.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.Master)))
	return dir
}

func mounted(t *testing.T, mnt string) bool {
	buf, err := os.ReadFile("/proc/mounts")
	tassert(t, err == nil, "%v", err)
	for _, line := range strings.Split(string(buf), "\n") {
		fields := strings.Fields(line)
		if len(fields) > 1 && fields[1] == mnt {
			return true
		}
	}
	return false
}

// TestConfinedMount runs gitfs with its default chroot, reads through
// the mount, and stops it with SIGTERM.
func TestConfinedMount(t *testing.T) {
	if os.Geteuid() != 0 {
		t.Skip("chroot needs root")
	}
	if _, err := os.Stat("/dev/fuse"); err != nil {
		t.Skip("no /dev/fuse")
	}

	repo := bareRepo(t)
	mnt := t.TempDir()

	var out bytes.Buffer
	cmd := exec.Command(os.Args[0], repo, mnt)
	cmd.Env = append(os.Environ(), mainEnv+"=1")
	cmd.Stdout = &out
	cmd.Stderr = &out
	tassert(t, cmd.Start() == nil, "start")
	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()
	t.Cleanup(func() {
		cmd.Process.Kill()
		if mounted(t, mnt) {
			syscall.Unmount(mnt, syscall.MNT_DETACH)
		}
	})

	readme := filepath.Join(mnt, "docs", "readme.txt")
	var got []byte
	var err error
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case err := <-exited:
			t.Fatalf("gitfs exited early: %v\n%s", err, out.String())
		default:
		}
		got, err = os.ReadFile(readme)
		if err == nil {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	tassert(t, err == nil, "%v", err)
	tassert(t, string(got) == "0123456789", "got %q", got)

	_, err = os.Stat(filepath.Join(mnt, ".gitfs-commit-id"))
	tassert(t, err == nil, "%v", err)

	tassert(t, cmd.Process.Signal(syscall.SIGTERM) == nil, "signal")
	select {
	case err = <-exited:
		tassert(t, err == nil, "exit: %v\n%s", err, out.String())
	case <-time.After(10 * time.Second):
		t.Fatalf("gitfs did not stop on SIGTERM\n%s", out.String())
	}
	tassert(t, !mounted(t, mnt), "still mounted\n%s", out.String())
}
