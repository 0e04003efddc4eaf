// Package archline implements C1: a bounded line reader over one archive
// entry's body, accumulating only as much as a single line straddling a
// read boundary requires.
package archline

import (
	"errors"
	"io"

	"github.com/dittofile/pkgfile/internal/pkgfileerrs"
)

// DefaultMaxLineSize is MAX_LINE_SIZE from §4.1: 10 KiB.
const DefaultMaxLineSize = 10 * 1024

// ErrEndOfEntry signals that the current entry's body has been fully
// consumed; the caller should call Next() on the underlying archive reader
// to advance to the next entry.
var ErrEndOfEntry = errors.New("archline: end of entry")

// Reader yields newline- or NUL-terminated lines from one entry's body,
// read from src via io.Reader.Read calls in arbitrary-sized chunks (the
// "opaque blocks" of §4.1). It is single-pass, forward-only, and holds no
// ownership of src: closing the underlying archive handle is the caller's
// job.
type Reader struct {
	src        io.Reader
	entryName  string // for diagnostics (LineTooLong, ArchiveError)
	maxLine    int
	pending    []byte // bytes read but not yet consumed into a line
	readBuf    []byte
	eof        bool
	yieldedEOF bool // true once the final (possibly empty) trailing line has been yielded
}

// New constructs a line reader over src, the body of the archive entry
// named entryName, bounding any single line to maxLineSize bytes.
func New(src io.Reader, entryName string, maxLineSize int) *Reader {
	if maxLineSize <= 0 {
		maxLineSize = DefaultMaxLineSize
	}
	return &Reader{
		src:       src,
		entryName: entryName,
		maxLine:   maxLineSize,
		readBuf:   make([]byte, 32*1024),
	}
}

// Line returns the next line, with its terminator stripped. The returned
// slice is valid only until the next call to Line (§4.1 "Guarantees").
// It returns ErrEndOfEntry once the body is exhausted (after yielding any
// unterminated trailing data as a final line), or a wrapped
// pkgfileerrs.ErrLineTooLong / pkgfileerrs.ErrArchiveRead on failure.
func (r *Reader) Line() ([]byte, error) {
	for {
		if idx, term := findTerminator(r.pending); idx >= 0 {
			if idx > r.maxLine {
				return nil, pkgfileerrs.NewLineTooLong(r.entryName, r.maxLine)
			}
			line := r.pending[:idx]
			r.pending = r.pending[idx+term:]
			return line, nil
		}

		if len(r.pending) > r.maxLine {
			return nil, pkgfileerrs.NewLineTooLong(r.entryName, r.maxLine)
		}

		if r.eof {
			if r.yieldedEOF {
				return nil, ErrEndOfEntry
			}
			r.yieldedEOF = true
			if len(r.pending) == 0 {
				return nil, ErrEndOfEntry
			}
			line := r.pending
			r.pending = nil
			return line, nil
		}

		n, err := r.src.Read(r.readBuf)
		if n > 0 {
			r.pending = append(r.pending, r.readBuf[:n]...)
		}
		if err != nil {
			if err == io.EOF {
				r.eof = true
				continue
			}
			return nil, pkgfileerrs.ErrArchiveRead
		}
		if n == 0 {
			// A Read that returns (0, nil) with more data expected would
			// spin; archive readers never do this, but guard anyway.
			continue
		}
	}
}

// findTerminator returns the index of the first \n or \0 in b and the
// number of terminator bytes to skip (always 1), or (-1, 0) if none found.
func findTerminator(b []byte) (int, int) {
	for i, c := range b {
		if c == '\n' || c == 0 {
			return i, 1
		}
	}
	return -1, 0
}
