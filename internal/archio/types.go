// Package archio provides the shared archive Reader/Writer abstraction used
// by the repack converter (C5) and the query engine (C7): a format-agnostic
// entry-at-a-time walk over an upstream tar files-DB or a cache cpio
// archive, each optionally wrapped in one of the recognised compressors.
//
// The split mirrors nabbar-golib's archive/archive (container format:
// tar/zip) and archive/compress (byte-stream codec: gzip/bzip2/lz4/xz)
// packages, which themselves dispatch on a small enum via Reader/Writer
// factory methods.
package archio

import (
	"io"
)

// EntryHeader describes one archive entry, enough for both the tar source
// format (NAME-VERSION-REL/files) and the cpio cache format (NAME-VERSION-REL).
// Per-entry mtime has no place here: the cache format's mtime contract (§6)
// is satisfied at the whole-file level via FileSystem.Chtimes, not per entry.
type EntryHeader struct {
	Name  string
	Size  int64
	Inode int64 // zeroed on cache write, never read back (§4.5 step 4)
}

// Reader walks entries of an archive one at a time. Next advances to the
// next entry header; the entry's body is then read via Read until io.EOF,
// at which point Next may be called again. Next returns io.EOF once no
// entries remain.
type Reader interface {
	Next() (*EntryHeader, error)
	io.Reader
	Close() error
}

// Writer appends entries to an archive. WriteHeader starts a new entry;
// Write streams its body. Close finalises the archive.
type Writer interface {
	WriteHeader(*EntryHeader) error
	io.Writer
	Close() error
}
