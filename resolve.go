package gitfs

import (
	"strings"

	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Resolve maps an absolute path onto the snapshot's tree.  It never
// consults the virtual files.  The caller owns the returned entry.
func (s *Snapshot) Resolve(path string) (Entry, error) {
	log.Debugf("resolve %q", path)

	if path == "/" {
		return borrowRoot(s), nil
	}
	if !strings.HasPrefix(path, "/") {
		return nil, notFound("resolve", path, errors.New("path is not absolute"))
	}

	te, err := s.root.FindEntry(strings.TrimPrefix(path, "/"))
	if err != nil {
		return nil, storeError("resolve", path, err)
	}

	switch {
	case te.Mode == filemode.Dir:
		tree, err := s.objects.TreeObject(te.Hash)
		if err != nil {
			return nil, storeError("resolve", path, err)
		}
		return ownSubtree(tree), nil
	case te.Mode.IsFile():
		blob, err := s.objects.BlobObject(te.Hash)
		if err != nil {
			return nil, storeError("resolve", path, err)
		}
		f, err := ownFile(blob, *te)
		if err != nil {
			return nil, &Error{Kind: KindOutOfMemory, Op: "resolve", Path: path, Err: err}
		}
		return f, nil
	}

	// submodules are not part of the projection
	return nil, notFound("resolve", path, errors.Errorf("%s entry hidden", te.Mode))
}
