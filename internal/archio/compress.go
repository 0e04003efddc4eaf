package archio

import (
	"compress/bzip2"
	"compress/gzip"
	"io"

	dsnetbz2 "github.com/dsnet/compress/bzip2"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
	"github.com/ulikunitz/xz/lzma"
)

// Compressor is the closed enumeration of compressor tags a cache archive
// may be written with (§3 "Compressor tag"). Grounded on nabbar-golib's
// archive/compress.Algorithm: a small uint8 enum with Reader/Writer
// dispatch methods.
type Compressor uint8

const (
	None Compressor = iota
	Gzip
	Bzip2
	LZMA
	Lzop
	LZ4
	XZ
)

// String names match the --compress[=TAG] CLI values (§6).
func (c Compressor) String() string {
	switch c {
	case Gzip:
		return "gzip"
	case Bzip2:
		return "bzip2"
	case LZMA:
		return "lzma"
	case Lzop:
		return "lzop"
	case LZ4:
		return "lz4"
	case XZ:
		return "xz"
	default:
		return "none"
	}
}

// ParseCompressor maps a --compress[=TAG] value to a Compressor, defaulting
// to Gzip for an empty tag (bare --compress/-z, matching pkgfile's historical
// default of a compressed cache) and None for "none"/"plain".
func ParseCompressor(tag string) (Compressor, bool) {
	switch tag {
	case "", "gzip":
		return Gzip, true
	case "bzip2", "bz2":
		return Bzip2, true
	case "lzma":
		return LZMA, true
	case "lzop":
		return Lzop, true
	case "lz4":
		return LZ4, true
	case "xz":
		return XZ, true
	case "none", "plain":
		return None, true
	default:
		return None, false
	}
}

// List returns every recognised compressor tag, in the order presented to
// users (e.g. for --compress help text).
func List() []Compressor {
	return []Compressor{None, Gzip, Bzip2, LZMA, Lzop, LZ4, XZ}
}

// Reader wraps r with a decompressing reader for this compressor. Used when
// reading back a cache archive (C7) or the rare upstream files DB that isn't
// gzip (C6 normally only ever sees gzip upstream, but the cache can be
// written with any tag and must be read back with the same one).
func (c Compressor) Reader(r io.Reader) (io.ReadCloser, error) {
	switch c {
	case Gzip:
		return gzip.NewReader(r)
	case Bzip2:
		return io.NopCloser(bzip2.NewReader(r)), nil
	case LZMA:
		lr, err := lzma.NewReader(r)
		if err != nil {
			return nil, err
		}
		return io.NopCloser(lr), nil
	case Lzop:
		return newLzopReader(r)
	case LZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	case XZ:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, err
		}
		return io.NopCloser(xr), nil
	default:
		return io.NopCloser(r), nil
	}
}

// Writer wraps w with a compressing writer for this compressor. Used when
// writing the cache archive in C5.
func (c Compressor) Writer(w io.WriteCloser) (io.WriteCloser, error) {
	switch c {
	case Gzip:
		return gzip.NewWriter(w), nil
	case Bzip2:
		return dsnetbz2.NewWriter(w, nil)
	case LZMA:
		return lzma.NewWriter(w)
	case Lzop:
		return newLzopWriter(w)
	case LZ4:
		return lz4.NewWriter(w), nil
	case XZ:
		return xz.NewWriter(w)
	default:
		return w, nil
	}
}
