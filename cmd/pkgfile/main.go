// Command pkgfile resolves which repository's package owns a given file,
// or lists every file owned by a given package, against locally cached
// per-repository file-list archives (§1-§2). It also refreshes those
// caches from configured mirror servers.
package main

import (
	_ "embed"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/dittofile/pkgfile/internal/archio"
	"github.com/dittofile/pkgfile/internal/config"
	"github.com/dittofile/pkgfile/internal/fetch"
	"github.com/dittofile/pkgfile/internal/match"
	"github.com/dittofile/pkgfile/internal/pkgfileerrs"
	"github.com/dittofile/pkgfile/internal/query"
	"github.com/dittofile/pkgfile/internal/repack"
	"github.com/dittofile/pkgfile/internal/reposet"
	"github.com/dittofile/pkgfile/internal/sched"
)

//go:embed config.default.toml
var defaultConfig []byte

// Exit codes (§6 "Exit codes").
const (
	exitFound    = 0
	exitNotFound = 1
	exitArgError = 2
)

type slogAdapter struct{ l *slog.Logger }

func (a slogAdapter) Debug(msg string, args ...any) { a.l.Debug(msg, args...) }
func (a slogAdapter) Error(msg string, args ...any) { a.l.Error(msg, args...) }
func (a slogAdapter) Info(msg string, args ...any)  { a.l.Info(msg, args...) }
func (a slogAdapter) Warn(msg string, args ...any)  { a.l.Warn(msg, args...) }

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// flags mirrors the CLI surface in §6, one field per switch. --glob/--regex
// select the pattern kind; the pattern itself is always the positional
// target argument (§6 "Target syntax").
type flags struct {
	list, search                      bool
	update                            int
	binaries, directories, ignorecase bool
	glob, regex                       bool
	repo                              string
	quiet, verbose, raw, null         bool
	compress                          string
	configPath, cacheDir              string
}

func parseFlags(args []string, stderr *os.File) (*flags, []string, error) {
	fs := pflag.NewFlagSet("pkgfile", pflag.ContinueOnError)
	fs.SetOutput(stderr)

	f := &flags{}
	fs.BoolVarP(&f.list, "list", "l", false, "list files owned by a package")
	fs.BoolVarP(&f.search, "search", "s", false, "search for the package owning a file (default)")
	fs.CountVarP(&f.update, "update", "u", "update the cached package databases; repeat to force")
	fs.BoolVarP(&f.binaries, "binaries", "b", false, "only match files in a bin/ or sbin/ directory")
	fs.BoolVarP(&f.directories, "directories", "d", false, "only match directory entries")
	fs.BoolVarP(&f.glob, "glob", "g", false, "treat the target pattern as a glob")
	fs.BoolVarP(&f.regex, "regex", "r", false, "treat the target pattern as a regular expression")
	fs.BoolVarP(&f.ignorecase, "ignorecase", "i", false, "case-insensitive match")
	fs.StringVarP(&f.repo, "repo", "R", "", "restrict to one configured repository")
	fs.BoolVarP(&f.quiet, "quiet", "q", false, "print the short form only")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "report every match, not just the first per package")
	fs.BoolVarP(&f.raw, "raw", "w", false, "do not align output columns across repos")
	fs.BoolVarP(&f.null, "null", "0", false, "terminate output lines with NUL instead of newline")
	fs.StringVarP(&f.compress, "compress", "z", "", "cache compressor tag for --update (default: the configured Compress tag; bare -z means gzip)")
	fs.Lookup("compress").NoOptDefVal = "gzip"
	fs.StringVarP(&f.configPath, "config", "C", "", "path to an INI repo-list config")
	fs.StringVarP(&f.cacheDir, "cachedir", "D", "", "override the configured cache directory")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	return f, fs.Args(), nil
}

func run(args []string, stdout, stderr *os.File) int {
	f, positional, err := parseFlags(args, stderr)
	if err != nil {
		return exitArgError
	}

	if f.glob && f.regex {
		fmt.Fprintln(stderr, pkgfileerrs.ErrGlobRegexExclusive)
		return exitArgError
	}
	if f.list && (f.glob || f.regex) {
		fmt.Fprintln(stderr, pkgfileerrs.ErrListRequiresExact)
		return exitArgError
	}

	log := slogAdapter{slog.New(slog.NewTextHandler(stderr, nil))}

	snap, err := config.Load(f.configPath, defaultConfig)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitNotFound
	}
	if f.cacheDir != "" {
		snap.CacheDir = f.cacheDir
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if f.update > 0 {
		return runUpdate(ctx, f, snap, log, stdout, stderr)
	}
	return runQuery(f, positional, snap, log, stdout, stderr)
}

func runUpdate(ctx context.Context, f *flags, snap *config.Snapshot, log reposet.Logger, stdout, stderr *os.File) int {
	destCompressor := snap.Compressor
	if f.compress != "" {
		c, ok := archio.ParseCompressor(f.compress)
		if !ok {
			fmt.Fprintf(stderr, "unrecognised --compress tag %q\n", f.compress)
			return exitArgError
		}
		destCompressor = c
	}

	repos, err := buildRepos(snap, f.repo, f.update >= 2)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitArgError
	}
	if len(repos) == 0 {
		fmt.Fprintln(stderr, pkgfileerrs.ErrNoRepos)
		return exitNotFound
	}

	if err := os.MkdirAll(snap.CacheDir, 0o755); err != nil {
		fmt.Fprintln(stderr, err)
		return exitNotFound
	}

	fs := reposet.NewOsFileSystem()
	conv := repack.New(fs, log, 0)
	downloader := fetch.New(fs, log, conv, snap.DefaultArch)
	scheduler := sched.New(downloader, nil)

	results := scheduler.Update(ctx, repos, destCompressor)
	for _, r := range results {
		switch r.Outcome {
		case reposet.OutcomeOK:
			fmt.Fprintf(stdout, "%s: downloaded\n", r.Repo)
		case reposet.OutcomeUpToDate:
			fmt.Fprintf(stdout, "%s: up to date\n", r.Repo)
		case reposet.OutcomeError:
			fmt.Fprintf(stderr, "%s: %v\n", r.Repo, r.Err)
		}
	}
	if line, ok := fetch.Summary(results); ok {
		fmt.Fprintln(stdout, line)
	}

	if err := sched.UpdateError(results); err != nil {
		return exitNotFound
	}
	return exitFound
}

func runQuery(f *flags, positional []string, snap *config.Snapshot, log reposet.Logger, stdout, stderr *os.File) int {
	pattern, repoFilter, exactFromTarget, err := parseTarget(positional, f.repo, snap.Repos)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitArgError
	}

	mode := query.Search
	if f.list {
		mode = query.List
	}

	req, err := buildRequest(f, mode, pattern, exactFromTarget)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitArgError
	}

	repos, err := buildRepos(snap, repoFilter, false)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitArgError
	}
	if len(repos) == 0 {
		fmt.Fprintln(stderr, pkgfileerrs.ErrNoRepos)
		return exitNotFound
	}

	source := query.NewMmapSource()
	engine := query.New(source, log)
	scheduler := sched.New(nil, engine)

	specs := make([]query.RepoSpec, len(repos))
	for i, r := range repos {
		specs[i] = query.RepoSpec{Name: r.Name, CachePath: r.CachePath, Compressor: snap.Compressor}
	}

	var outcome sched.QueryOutcome
	if repoFilter != "" {
		outcome = scheduler.QuerySingle(specs[0], req)
	} else {
		outcome = scheduler.Query(specs, req)
	}

	if outcome.Err != nil {
		fmt.Fprintln(stderr, outcome.Err)
		if !outcome.Found {
			return exitNotFound
		}
	}

	eol := byte('\n')
	if f.null {
		eol = 0
	}
	outcome.Set.Print(stdout, eol, !f.raw)

	if !outcome.Found {
		return exitNotFound
	}
	return exitFound
}

// parseTarget implements §6's target syntax: a bare pattern, or
// `<repo>/<pattern>` which implies --repo plus an exact match of the
// portion after '/' (§3 supplemented feature list, `pkgfile.cc`'s
// `<repo>/<pkg>` syntax). The split is made only when the text before the
// first '/' names a configured repo; any other slash (e.g. `usr/bin/bash`
// or `/usr/bin/bash`) stays part of the pattern. An explicit --repo flag
// always wins over the embedded-slash form.
func parseTarget(positional []string, repoFlag string, repos []config.RepoEntry) (pattern, repo string, exact bool, err error) {
	if len(positional) != 1 {
		return "", "", false, fmt.Errorf("%w: expected exactly one pattern argument, got %d", pkgfileerrs.ErrConfig, len(positional))
	}
	arg := positional[0]

	if repoFlag != "" {
		return arg, repoFlag, false, nil
	}
	if idx := strings.IndexByte(arg, '/'); idx > 0 {
		for _, r := range repos {
			if r.Name == arg[:idx] {
				return arg[idx+1:], arg[:idx], true, nil
			}
		}
	}
	return arg, "", false, nil
}

func buildRequest(f *flags, mode query.Mode, pattern string, forceExact bool) (query.Request, error) {
	var leaf match.Filter
	var exactListMatch bool
	var err error

	switch {
	case forceExact:
		leaf = match.NewExact(pattern, f.ignorecase)
		exactListMatch = true
	case f.glob:
		leaf, err = match.NewGlob(match.CleanGlobSlash(pattern), f.ignorecase)
	case f.regex:
		leaf, err = match.NewRegex(pattern, f.ignorecase)
	case mode == query.List:
		leaf = match.NewExact(pattern, f.ignorecase)
		exactListMatch = true
	case strings.Contains(pattern, "/"):
		// A pattern with a path separator names an exact file, not a bare
		// command name.
		leaf = match.NewExact(match.StripLeadingSlash(pattern), f.ignorecase)
	default:
		leaf = match.NewBasenameExact(pattern, f.ignorecase)
	}
	if err != nil {
		return query.Request{}, err
	}

	req := query.Request{
		Mode:           mode,
		Verbose:        f.verbose,
		Quiet:          f.quiet,
		ExactListMatch: exactListMatch,
	}
	if mode == query.List {
		req.Filter = leaf
		if f.binaries {
			req.ListLineFilter = match.Bin()
		}
	} else {
		req.Filter = match.BuildSearchFilter(leaf, f.directories, f.binaries)
	}
	return req, nil
}

// buildRepos selects the configured repos to operate on (all, or the one
// named by repoFilter) and constructs their reposet.Repo handles.
func buildRepos(snap *config.Snapshot, repoFilter string, force bool) ([]*reposet.Repo, error) {
	var out []*reposet.Repo
	for _, e := range snap.Repos {
		if repoFilter != "" && e.Name != repoFilter {
			continue
		}
		r := reposet.NewRepo(e.Name, e.Servers, e.Arch, filepath.Join(snap.CacheDir, e.Name+".files"))
		r.Force = force
		out = append(out, r)
	}
	if repoFilter != "" && len(out) == 0 {
		return nil, fmt.Errorf("%w: no such repo %q", pkgfileerrs.ErrConfig, repoFilter)
	}
	return out, nil
}
