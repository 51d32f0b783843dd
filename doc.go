/*

Gitfs projects one git commit or tree as a read-only filesystem.  The
snapshot is fixed when the mount starts; nothing in the repository is
ever written.

Vocabulary:

- snapshot: the root tree being projected, with its tree hash, the
  commit hash if there is one, and the time every entry reports
- entry: what a path resolves to; a dir, a file (regular, executable or
  symlink) or a virtual file; every entry is released exactly once
- virtual file: a synthetic file in the root holding a hash, named
  with the .gitfs prefix so it can't collide with much
- handle: the token the kernel holds between open and release; it is
  empty, resolved or released, in that order
- offset: in a directory listing, the index of the next child to emit;
  virtual files take the offsets after the last real child
- bootstrap: resolve, confine, reopen, serve; in that order or not at all

*/

package gitfs
