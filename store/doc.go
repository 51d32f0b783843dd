/*

Package store is the read-only object database behind a gitfs mount.
It wraps go-git and answers the handful of queries the resolver needs:
open a repository, resolve a revision selector, and fetch trees and
blobs by hash.

Vocabulary:

- repo path: the directory named on the command line; either a work
  tree containing .git, or a bare git directory
- git dir: the directory holding objects/, refs/ and HEAD; this is what
  the process is confined to
- selector: a branch, tag, symbolic ref, commit or tree hash, optionally
  suffixed with ^{tree}
- revision: a resolved selector; always has a tree, has a commit only if
  the selector peeled to one

*/

package store
