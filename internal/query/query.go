// Package query implements C7: scanning one repo's cached archive through
// the C3 (package-entry parser) → C1 (line reader) → C2 (matcher) → C4
// (result accumulator) pipeline.
package query

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/dittofile/pkgfile/internal/archio"
	"github.com/dittofile/pkgfile/internal/archline"
	"github.com/dittofile/pkgfile/internal/match"
	"github.com/dittofile/pkgfile/internal/pkgentry"
	"github.com/dittofile/pkgfile/internal/pkgfileerrs"
	"github.com/dittofile/pkgfile/internal/reposet"
	"github.com/dittofile/pkgfile/internal/result"
)

// Mode selects search or list query semantics (§4.7).
type Mode int

const (
	Search Mode = iota
	List
)

// Request is one compiled query, shared across every repo it is run
// against. Filter is the predicate C7 applies per §4.7: in Search mode it
// is the composite built by match.BuildSearchFilter and is matched against
// body lines; in List mode it is matched against the package name.
// ListLineFilter, if non-nil, additionally filters List mode's body lines
// (the bin-only policy); nil means every line passes.
type Request struct {
	Mode           Mode
	Filter         match.Filter
	ListLineFilter match.Filter
	// ExactListMatch marks a List-mode Filter as an exact name match, which
	// lets the engine stop walking the archive once that one package has
	// been listed (§4.7: "terminates the archive walk early once the
	// single matching package has been listed in exact-match mode; in
	// glob/regex mode it continues scanning"). cmd/pkgfile always sets this
	// true, since its CLI rejects --list combined with --glob/--regex
	// (SPEC_FULL.md Open Question 3) — but the engine itself still honours
	// the weaker default for any other caller building a glob/regex list
	// Request directly.
	ExactListMatch bool
	Verbose        bool // search: report every match, not just the first per package
	Quiet          bool // force the short (prefix-only) print form
	MaxLineSize    int
}

// RepoSpec names one repo's cache file and the compressor it was written
// with, the minimum C7 needs to open and decompress it.
type RepoSpec struct {
	Name       string
	CachePath  string
	Compressor archio.Compressor
}

// CacheHandle is an opened, fully-readable cache archive. Production code
// backs this with a memory-mapped file (§5 "archives fit comfortably in
// virtual address space"); tests can back it with a plain byte slice.
type CacheHandle interface {
	Bytes() []byte
	Close() error
}

// CacheSource opens a repo's cache file. Open returns an error satisfying
// errors.Is(err, pkgfileerrs.ErrCacheMissing) when the file does not exist;
// that is not itself a query failure (§4.7 "Missing cache").
type CacheSource interface {
	Open(path string) (CacheHandle, error)
}

// Engine runs Requests against repo caches opened via source.
type Engine struct {
	source CacheSource
	log    reposet.Logger
}

// New builds a query Engine.
func New(source CacheSource, log reposet.Logger) *Engine {
	return &Engine{source: source, log: log}
}

// QueryOne scans a single repo's cache and returns its accumulator. The
// second return value is false when the repo has no cache file at all,
// which is not an error (§4.7 "Missing cache"): the caller simply omits
// this repo from the merged result set.
func (e *Engine) QueryOne(repo RepoSpec, req Request) (*result.Accumulator, bool, error) {
	handle, err := e.source.Open(repo.CachePath)
	if err != nil {
		if errors.Is(err, pkgfileerrs.ErrCacheMissing) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("open cache for repo %q: %w", repo.Name, err)
	}
	defer handle.Close()

	decompressed, err := repo.Compressor.Reader(bytes.NewReader(handle.Bytes()))
	if err != nil {
		return nil, true, fmt.Errorf("decompress cache for repo %q: %w", repo.Name, err)
	}
	defer decompressed.Close()

	cr := archio.NewCpioReader(decompressed)
	defer cr.Close()

	acc := result.New(repo.Name)
	maxLine := req.MaxLineSize
	if maxLine <= 0 {
		maxLine = archline.DefaultMaxLineSize
	}

	for {
		hdr, err := cr.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return acc, true, fmt.Errorf("%w: repo %q: %v", pkgfileerrs.ErrArchiveRead, repo.Name, err)
		}

		pkg, err := pkgentry.ParseEntryName(hdr.Name)
		if err != nil {
			e.log.Warn("query: skipping entry with malformed name", "repo", repo.Name, "entry", hdr.Name, "error", err)
			continue
		}

		switch req.Mode {
		case List:
			if !req.Filter.Matches(pkg.Name) {
				continue
			}
			e.scanListBody(cr, hdr.Name, pkg, repo.Name, maxLine, req, acc)
			if req.ExactListMatch {
				// Exact-match list can only ever match one package; stop
				// walking the rest of the archive now that it's been
				// listed (§4.7).
				return acc, true, nil
			}
		default:
			e.scanSearchBody(cr, hdr.Name, pkg, repo.Name, maxLine, req, acc)
		}
	}

	return acc, true, nil
}

func (e *Engine) scanSearchBody(src io.Reader, entryName string, pkg pkgentry.Package, repoName string, maxLine int, req Request, acc *result.Accumulator) {
	lr := archline.New(src, entryName, maxLine)
	for {
		line, err := lr.Line()
		if err != nil {
			if !errors.Is(err, archline.ErrEndOfEntry) {
				e.log.Warn("query: aborting entry after line error", "repo", repoName, "entry", entryName, "error", err)
			}
			return
		}

		// Cache lines carry a leading '/' (§3), but patterns are written
		// against the upstream (slash-less) form; match against the
		// stripped line and keep the original for display.
		rawLine := string(line)
		if !req.Filter.Matches(match.StripLeadingSlash(rawLine)) {
			continue
		}

		// Under --verbose the prefix carries the version and the line is
		// added in the long form with its path (§9 glossary "prefix ...
		// possibly with version"); otherwise, and always under --quiet,
		// only the bare prefix is added.
		showVersion := req.Verbose && !req.Quiet
		longForm := showVersion
		prefix := buildPrefix(repoName, pkg, showVersion)
		if longForm {
			acc.Add(prefix, rawLine, len(prefix))
		} else {
			acc.Add(prefix, "", 0)
		}

		if !req.Verbose {
			// One hit per package in non-verbose search (§4.7): stop
			// scanning this entry's remaining lines.
			return
		}
	}
}

func (e *Engine) scanListBody(src io.Reader, entryName string, pkg pkgentry.Package, repoName string, maxLine int, req Request, acc *result.Accumulator) {
	lr := archline.New(src, entryName, maxLine)
	showVersion := req.Verbose && !req.Quiet
	prefix := buildPrefix(repoName, pkg, showVersion)
	for {
		line, err := lr.Line()
		if err != nil {
			if !errors.Is(err, archline.ErrEndOfEntry) {
				e.log.Warn("query: aborting entry after line error", "repo", repoName, "entry", entryName, "error", err)
			}
			return
		}

		rawLine := string(line)
		if req.ListLineFilter != nil && !req.ListLineFilter.Matches(match.StripLeadingSlash(rawLine)) {
			continue
		}

		if req.Quiet {
			acc.Add(prefix, "", 0)
		} else {
			acc.Add(prefix, rawLine, len(prefix))
		}
	}
}

// buildPrefix formats the result line's prefix column (§3 "Result line").
// Version is appended only under --verbose; --quiet forces the short
// (prefix-only, no path column) print form regardless of mode.
func buildPrefix(repoName string, pkg pkgentry.Package, withVersion bool) string {
	if withVersion {
		return fmt.Sprintf("%s/%s %s", repoName, pkg.Name, pkg.Version)
	}
	return fmt.Sprintf("%s/%s", repoName, pkg.Name)
}
