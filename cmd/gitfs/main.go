package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/t7a/gitfs"
	"github.com/t7a/gitfs/fuse"

	"github.com/docopt/docopt-go"
	. "github.com/stevegt/goadapt"
)

const usage = `gitfs

Mount a git commit or tree read-only.

Usage:
  gitfs [-d] [-o <options>] <repo> <mountpoint>

Options:
  -h --help     Show this screen.
  --version     Show version.
  -d            Trace every request; same as -o debug.
  -o <options>  Comma separated mount options, listed below.

Mount options:
  rev=<selector>  branch, tag, commit or tree (default HEAD)
  no-oid-files    hide the .gitfs-* hash files
  nochroot        don't chroot into the git directory
  allow_other     let other users see the mount
  debug           same as -d
  anything else is passed to the kernel.

Environment:
  GITFS_REV     revision to use when -o rev= is not given
  DEBUG=1       debug logging
`

func main() {
	// see https://github.com/google/go-cmdtest
	os.Exit(run())
}

func run() int {
	rc, msg := Run(os.Args[1:])
	if len(msg) > 0 {
		fmt.Fprintln(os.Stderr, "gitfs: "+msg)
	}
	return rc
}

// Run parses args and serves until the filesystem is unmounted.  rc is
// 2 for a usage or option error, 1 for any other failure.
func Run(args []string) (rc int, msg string) {
	defer Halt(&rc, &msg)

	parser := &docopt.Parser{HelpHandler: docopt.PrintHelpOnly}
	o, err := parser.ParseArgs(usage, args, "0.1")
	if err != nil {
		return 2, ""
	}
	repo, _ := o["<repo>"].(string)
	mountpoint, _ := o["<mountpoint>"].(string)
	if repo == "" || mountpoint == "" {
		// --help or --version, already printed
		return 0, ""
	}

	optstr, _ := o["-o"].(string)
	opts, err := gitfs.ParseOptions(optstr)
	if err != nil {
		return 2, err.Error()
	}
	if debug, _ := o["-d"].(bool); debug {
		opts.Debug = true
	}
	if opts.Rev == "" {
		opts.Rev = os.Getenv("GITFS_REV")
	}
	gitfs.SetDebug(opts.Debug)
	log.Debugf("options %#v", opts)

	b := gitfs.NewBootstrap(repo, opts)
	err = serve(b, mountpoint)
	if err != nil {
		if b.Err() == nil {
			b.Fail(err)
		}
		return b.ExitCode(), b.Err().Error()
	}
	return 0, ""
}

func serve(b *gitfs.Bootstrap, mountpoint string) (err error) {
	defer Return(&err)
	defer b.Close()

	server, err := fuse.Mount(b, mountpoint)
	Ck(err)

	// unmount on SIGINT or SIGTERM
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-sig:
			log.Debugf("unmounting %s", mountpoint)
			fuse.Unmount(b, server)
		case <-done:
		}
	}()

	server.Wait()
	return
}
