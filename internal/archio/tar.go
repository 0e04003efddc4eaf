package archio

import (
	"archive/tar"
	"io"
)

// tarReader adapts the stdlib tar reader to the archio.Reader interface.
// Grounded on nabbar-golib/archive/archive/tar/reader.go's rdr type, minus
// the Reset() support that package needs for its multi-pass List()/Info()
// API — the repack converter only ever walks an archive once.
type tarReader struct {
	src io.ReadCloser
	tr  *tar.Reader
}

// NewTarReader opens a tar.Reader over src (already decompressed). Close
// on the returned Reader closes src.
func NewTarReader(src io.ReadCloser) Reader {
	return &tarReader{src: src, tr: tar.NewReader(src)}
}

func (r *tarReader) Next() (*EntryHeader, error) {
	h, err := r.tr.Next()
	if err != nil {
		return nil, err
	}
	return &EntryHeader{Name: h.Name, Size: h.Size}, nil
}

func (r *tarReader) Read(p []byte) (int, error) {
	return r.tr.Read(p)
}

func (r *tarReader) Close() error {
	return r.src.Close()
}
