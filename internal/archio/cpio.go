package archio

import (
	"io"

	"github.com/cavaliercoder/go-cpio"
)

// regularFileMode is S_IFREG|0644, the mode newc entries carry; the cache
// format has no use for arbitrary permission bits (§6 cache format).
const regularFileMode = cpio.FileMode(0100644)

// cpioReader adapts github.com/cavaliercoder/go-cpio to archio.Reader, used
// by the query engine (C7) to walk a repo's cached archive.
type cpioReader struct {
	src io.ReadCloser
	cr  *cpio.Reader
}

// NewCpioReader opens a cpio-newc Reader over src (already decompressed).
func NewCpioReader(src io.ReadCloser) Reader {
	return &cpioReader{src: src, cr: cpio.NewReader(src)}
}

func (r *cpioReader) Next() (*EntryHeader, error) {
	h, err := r.cr.Next()
	if err != nil {
		return nil, err
	}
	return &EntryHeader{Name: h.Name, Size: h.Size}, nil
}

func (r *cpioReader) Read(p []byte) (int, error) {
	return r.cr.Read(p)
}

func (r *cpioReader) Close() error {
	return r.src.Close()
}

// cpioWriter adapts github.com/cavaliercoder/go-cpio's Writer to
// archio.Writer, used by the repack converter (C5) to write the cache.
type cpioWriter struct {
	dst io.WriteCloser
	cw  *cpio.Writer
}

// NewCpioWriter opens a cpio-newc Writer over dst.
func NewCpioWriter(dst io.WriteCloser) Writer {
	return &cpioWriter{dst: dst, cw: cpio.NewWriter(dst)}
}

func (w *cpioWriter) WriteHeader(h *EntryHeader) error {
	// Inode is always zeroed: cpio inode fields must not leak source
	// metadata (§4.5 step 4), and the newc format derives hardlink
	// identity from Inode+NumLinks, neither of which the cache format uses.
	return w.cw.WriteHeader(&cpio.Header{
		Name:  h.Name,
		Mode:  regularFileMode,
		Size:  h.Size,
		Links: 1,
	})
}

func (w *cpioWriter) Write(p []byte) (int, error) {
	return w.cw.Write(p)
}

// Close closes the cpio writer (which appends the TRAILER!!! record) and
// then the underlying destination stream.
func (w *cpioWriter) Close() error {
	if err := w.cw.Close(); err != nil {
		return err
	}
	return w.dst.Close()
}
