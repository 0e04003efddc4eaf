// Package repack implements C5: converting a raw downloaded tar-of-metadata
// files DB into the cpio-of-file-lists cache format, one repo at a time.
package repack

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dittofile/pkgfile/internal/archio"
	"github.com/dittofile/pkgfile/internal/archline"
	"github.com/dittofile/pkgfile/internal/pkgentry"
	"github.com/dittofile/pkgfile/internal/pkgfileerrs"
	"github.com/dittofile/pkgfile/internal/reposet"
)

// filesEntrySuffix marks a tar entry as a package's file list (§4.5).
const filesEntrySuffix = "/files"

// Converter repacks one repo's raw files DB into its cache archive. It is
// single-threaded and holds no shared state across repos: callers run one
// Converter per worker task to repack multiple repos in parallel (§4.5
// "Concurrency").
type Converter struct {
	fs     reposet.FileSystem
	log    reposet.Logger
	maxLn  int
	tmpExt string
}

// New builds a Converter. maxLineSize of 0 uses archline.DefaultMaxLineSize.
func New(fs reposet.FileSystem, log reposet.Logger, maxLineSize int) *Converter {
	if maxLineSize <= 0 {
		maxLineSize = archline.DefaultMaxLineSize
	}
	return &Converter{fs: fs, log: log, maxLn: maxLineSize, tmpExt: "~"}
}

// Repack reads the tar-of-metadata at srcPath (itself compressed with
// srcCompressor, matching the "usually gzip" upstream format), rewrites it
// into a cpio-of-file-lists archive compressed with destCompressor, and
// atomically installs it at destPath. On any failure the temp output is
// unlinked and the error is wrapped in pkgfileerrs.RepackFailed for
// repoName.
func (c *Converter) Repack(repoName, srcPath, destPath string, srcCompressor, destCompressor archio.Compressor) (err error) {
	tmpPath := destPath + c.tmpExt

	defer func() {
		if err != nil {
			if rerr := c.fs.Remove(tmpPath); rerr != nil {
				c.log.Warn("repack: failed to clean up temp file", "repo", repoName, "path", tmpPath, "error", rerr)
			}
			err = pkgfileerrs.NewRepackFailed(repoName, err)
		}
	}()

	rawSrc, err := c.fs.Open(srcPath)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer rawSrc.Close()

	decompressed, err := srcCompressor.Reader(rawSrc)
	if err != nil {
		return fmt.Errorf("decompress source with %s: %w", srcCompressor, err)
	}

	// tr.Close() closes decompressed; rawSrc is closed separately above since
	// the decompressing readers never propagate Close to their source.
	tr := archio.NewTarReader(decompressed)
	defer tr.Close()

	rawOut, err := c.fs.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp output: %w", err)
	}

	compressedOut, err := destCompressor.Writer(rawOut)
	if err != nil {
		rawOut.Close()
		return fmt.Errorf("wrap compressor %s: %w", destCompressor, err)
	}

	cw := archio.NewCpioWriter(compressedOut)

	if err := c.convertEntries(tr, cw); err != nil {
		cw.Close()
		return err
	}

	// cw.Close() closes compressedOut (flushing any compression trailer).
	// That already closes rawOut too for None (same object) and for Lzop
	// (the shim's Close explicitly closes its wrapped writer); every other
	// codec wraps a plain io.Writer and never propagates Close, so rawOut
	// still needs an explicit Close of its own.
	if err := cw.Close(); err != nil {
		return fmt.Errorf("close cache writer: %w", err)
	}
	if destCompressor != archio.None && destCompressor != archio.Lzop {
		if err := rawOut.Close(); err != nil {
			return fmt.Errorf("close temp output: %w", err)
		}
	}

	if err := c.finalize(srcPath, tmpPath, destPath); err != nil {
		return err
	}
	return nil
}

// convertEntries drives the per-entry rewrite loop (§4.5 steps 1-5).
func (c *Converter) convertEntries(tr archio.Reader, cw archio.Writer) error {
	for {
		hdr, err := tr.Next()
		if err != nil {
			if isArchiveEOF(err) {
				return nil
			}
			return fmt.Errorf("%w: %v", pkgfileerrs.ErrArchiveRead, err)
		}
		if !strings.HasSuffix(hdr.Name, filesEntrySuffix) {
			continue
		}

		body, err := rewriteBody(tr, hdr.Name, c.maxLn)
		if err != nil {
			c.log.Warn("repack: skipping entry", "entry", hdr.Name, "error", err)
			continue
		}

		prefix := pkgentry.DirPrefix(hdr.Name)
		if _, perr := pkgentry.ParseEntryName(hdr.Name); perr != nil {
			c.log.Warn("repack: skipping entry with unparseable name", "entry", hdr.Name, "error", perr)
			continue
		}

		out := archio.EntryHeader{
			Name:  prefix,
			Size:  int64(len(body)),
			Inode: 0,
		}
		if err := cw.WriteHeader(&out); err != nil {
			return fmt.Errorf("%w: %v", pkgfileerrs.ErrArchiveWrite, err)
		}
		if _, err := cw.Write(body); err != nil {
			return fmt.Errorf("%w: %v", pkgfileerrs.ErrArchiveWrite, err)
		}
	}
}

// rewriteBody discards the "%FILES%" header line and prefixes every
// subsequent non-empty line with '/' (§4.5 steps 1-3).
func rewriteBody(src io.Reader, entryName string, maxLine int) ([]byte, error) {
	lr := archline.New(src, entryName, maxLine)

	if _, err := lr.Line(); err != nil && err != archline.ErrEndOfEntry {
		return nil, err
	}

	var buf bytes.Buffer
	for {
		line, err := lr.Line()
		if err == archline.ErrEndOfEntry {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(line) == 0 {
			continue
		}
		buf.WriteByte('/')
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// finalize propagates the source file's atime/mtime onto the temp output
// then atomically renames it over destPath (§4.5 "Finalisation").
func (c *Converter) finalize(srcPath, tmpPath, destPath string) error {
	info, err := c.fs.Stat(srcPath)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}
	mtime := info.ModTime().Unix()
	if err := c.fs.Chtimes(tmpPath, mtime, mtime); err != nil {
		return fmt.Errorf("propagate mtime: %w", err)
	}
	if err := c.fs.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

// isArchiveEOF reports whether err signals a clean end-of-archive from an
// archio.Reader's Next.
func isArchiveEOF(err error) bool {
	return errors.Is(err, io.EOF)
}
