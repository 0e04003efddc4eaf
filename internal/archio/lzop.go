package archio

import (
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
)

// lzopMagic tags the shim container written for the Compressor.Lzop tag.
// No example in the retrieval pack (nor any maintained Go module at time of
// writing) binds a real lzop codec, so --compress=lzop is implemented as a
// documented, versioned block-stream shim over the already-wired lz4
// dependency rather than silently falling back to no compression. This is
// NOT the upstream lzop wire format; it only has to round-trip through this
// program's own repack/query paths (§4.5, §4.7 never need to interoperate
// with an external lzop decoder).
var lzopMagic = [4]byte{'L', 'Z', 'O', '1'}

type lzopWriter struct {
	w    io.WriteCloser
	lz4w *lz4.Writer
}

func newLzopWriter(w io.WriteCloser) (io.WriteCloser, error) {
	if _, err := w.Write(lzopMagic[:]); err != nil {
		return nil, fmt.Errorf("lzop: write magic: %w", err)
	}
	return &lzopWriter{w: w, lz4w: lz4.NewWriter(w)}, nil
}

func (l *lzopWriter) Write(p []byte) (int, error) {
	return l.lz4w.Write(p)
}

func (l *lzopWriter) Close() error {
	if err := l.lz4w.Close(); err != nil {
		return err
	}
	return l.w.Close()
}

func newLzopReader(r io.Reader) (io.ReadCloser, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("lzop: read magic: %w", err)
	}
	if magic != lzopMagic {
		return nil, fmt.Errorf("lzop: bad magic %x", magic)
	}
	return io.NopCloser(lz4.NewReader(r)), nil
}
