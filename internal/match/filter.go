// Package match implements C2: a compiled filter sum type evaluated against
// archive lines. Grounded on the enum-with-dispatch-methods shape of
// nabbar-golib's archive/compress.Algorithm, adapted from a byte-stream
// codec selector to a line predicate.
package match

import (
	"path"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/dittofile/pkgfile/internal/pkgfileerrs"
)

// Filter is a compiled predicate over one archive line (§4.2).
type Filter interface {
	Matches(line string) bool
}

// exactFilter matches the whole line against a fixed string.
type exactFilter struct {
	s          string
	ignoreCase bool
}

// NewExact builds the Exact(s, case_flag) filter.
func NewExact(s string, ignoreCase bool) Filter {
	if ignoreCase {
		s = strings.ToLower(s)
	}
	return &exactFilter{s: s, ignoreCase: ignoreCase}
}

func (f *exactFilter) Matches(line string) bool {
	if f.ignoreCase {
		return strings.EqualFold(line, f.s)
	}
	return line == f.s
}

// basenameExactFilter matches the substring after the last '/' (or the
// whole line if there is none).
type basenameExactFilter struct {
	s          string
	ignoreCase bool
}

// NewBasenameExact builds the BasenameExact(s, case_flag) filter.
func NewBasenameExact(s string, ignoreCase bool) Filter {
	if ignoreCase {
		s = strings.ToLower(s)
	}
	return &basenameExactFilter{s: s, ignoreCase: ignoreCase}
}

func (f *basenameExactFilter) Matches(line string) bool {
	base := basename(line)
	if f.ignoreCase {
		return strings.EqualFold(base, f.s)
	}
	return base == f.s
}

func basename(line string) string {
	if idx := strings.LastIndexByte(line, '/'); idx >= 0 {
		return line[idx+1:]
	}
	return line
}

// globFilter matches with fnmatch-PATHNAME semantics: a bare '*' or '?'
// never crosses a '/' boundary. doublestar.Match already has this property
// for non-"**" patterns, which is exactly the PATHNAME flag's effect (§4.2).
type globFilter struct {
	pattern    string
	ignoreCase bool
}

// NewGlob builds the Glob(s, case_flag) filter. Returns a
// pkgfileerrs.FilterCompileError if the pattern is not valid glob syntax.
func NewGlob(pattern string, ignoreCase bool) (Filter, error) {
	if _, err := doublestar.Match(pattern, ""); err != nil {
		return nil, pkgfileerrs.NewFilterCompileError(pattern, 0, err.Error())
	}
	p := pattern
	if ignoreCase {
		p = strings.ToLower(p)
	}
	return &globFilter{pattern: p, ignoreCase: ignoreCase}, nil
}

func (f *globFilter) Matches(line string) bool {
	l := line
	if f.ignoreCase {
		l = strings.ToLower(l)
	}
	ok, err := doublestar.Match(f.pattern, l)
	return err == nil && ok
}

// regexFilter matches a Perl-compatible-ish regular expression. Go's RE2
// engine (stdlib regexp) is used instead of a true PCRE binding — see
// DESIGN.md. A leading '^' is passed straight through: RE2 honours
// anchoring natively, resolving Open Question 1 in SPEC_FULL.md §5 without
// any special-casing.
type regexFilter struct {
	re *regexp.Regexp
}

// NewRegex builds the Regex(pcre, case_flag) filter.
func NewRegex(pattern string, ignoreCase bool) (Filter, error) {
	p := pattern
	if ignoreCase {
		p = "(?i)" + p
	}
	re, err := regexp.Compile(p)
	if err != nil {
		return nil, pkgfileerrs.NewFilterCompileError(pattern, 0, err.Error())
	}
	return &regexFilter{re: re}, nil
}

func (f *regexFilter) Matches(line string) bool {
	return f.re.MatchString(line)
}

// directoryFilter matches lines ending in '/'.
type directoryFilter struct{}

// Directory is the Directory leaf filter (§3 "Filter").
func Directory() Filter { return directoryFilter{} }

func (directoryFilter) Matches(line string) bool {
	return strings.HasSuffix(line, "/")
}

// binFilter matches a non-directory line under a bin/ or sbin/ directory.
// §9 Open Question 2: the stricter "immediate parent directory" form is
// adopted — after the matched "/bin/" or "/sbin/" token, the remainder of
// the path must contain no further '/'.
type binFilter struct{}

// Bin is the Bin leaf filter: Not(Directory) ∧ (immediate .../bin/NAME or
// .../sbin/NAME).
func Bin() Filter { return binFilter{} }

func (binFilter) Matches(line string) bool {
	if strings.HasSuffix(line, "/") {
		return false
	}
	parent := parentDir(StripLeadingSlash(line))
	if j := strings.LastIndexByte(parent, '/'); j >= 0 {
		parent = parent[j+1:]
	}
	return parent == "bin" || parent == "sbin"
}

// parentDir returns the portion of line before its last '/', or "" if line
// carries no '/' at all (a bare filename has no parent directory, so it
// can never be a bin/sbin child).
func parentDir(line string) string {
	idx := strings.LastIndexByte(line, '/')
	if idx < 0 {
		return ""
	}
	return line[:idx]
}

// notFilter negates another filter.
type notFilter struct{ inner Filter }

// Not builds Not(f).
func Not(f Filter) Filter { return &notFilter{inner: f} }

func (f *notFilter) Matches(line string) bool { return !f.inner.Matches(line) }

// andFilter is the conjunction of two filters.
type andFilter struct{ a, b Filter }

// And builds And(a, b).
func And(a, b Filter) Filter { return &andFilter{a: a, b: b} }

func (f *andFilter) Matches(line string) bool {
	return f.a.Matches(line) && f.b.Matches(line)
}

// alwaysTrue is the identity filter used when a policy leg is disabled.
type alwaysTrue struct{}

func (alwaysTrue) Matches(string) bool { return true }

// BuildSearchFilter composes the query filter for search mode (§4.2):
// And(DirectoryPolicy, And(BinaryPolicy, pattern)), where DirectoryPolicy is
// Directory if includeDirectories else Not(Directory), and BinaryPolicy is
// Bin if binariesOnly else the always-true filter.
func BuildSearchFilter(pattern Filter, includeDirectories, binariesOnly bool) Filter {
	var dirPolicy Filter = Not(Directory())
	if includeDirectories {
		dirPolicy = Directory()
	}

	var binPolicy Filter = alwaysTrue{}
	if binariesOnly {
		binPolicy = Bin()
	}

	return And(dirPolicy, And(binPolicy, pattern))
}

// StripLeadingSlash mirrors match_glob/match_exact's historical habit of
// tolerating a leading '/' on a user-supplied pattern (the files DB itself
// never stores one), so `pkgfile /usr/bin/bash` behaves like `pkgfile usr/bin/bash`.
func StripLeadingSlash(s string) string {
	return strings.TrimPrefix(s, "/")
}

// CleanGlobSlash strips a leading slash from a glob pattern and runs the
// rest through path.Clean, which collapses repeated slashes and "." / ".."
// elements and drops a trailing slash; wildcard characters, "**" included,
// pass through unchanged.
func CleanGlobSlash(s string) string {
	return path.Clean("/" + StripLeadingSlash(s))[1:]
}
