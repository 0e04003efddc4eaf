// Package sched implements C8: a worker-per-repository fan-out/fan-in for
// both the update and query phases, with deterministic repo-ordered output
// and aggregate error reporting. Grounded on the teacher's
// processPackageIndex worker pool (repo/repo.go): a fixed-size goroutine
// pool, a WaitGroup join, and per-worker failures that don't abort
// siblings.
package sched

import (
	"context"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/dittofile/pkgfile/internal/archio"
	"github.com/dittofile/pkgfile/internal/fetch"
	"github.com/dittofile/pkgfile/internal/pkgfileerrs"
	"github.com/dittofile/pkgfile/internal/query"
	"github.com/dittofile/pkgfile/internal/reposet"
	"github.com/dittofile/pkgfile/internal/result"
)

// Scheduler fans work out across repos, one goroutine per repo, and joins
// before returning (§4.8 "results are printed only after all workers have
// joined").
type Scheduler struct {
	fetcher *fetch.Downloader
	query   *query.Engine
}

// New builds a Scheduler. Either dependency may be nil if the caller only
// ever exercises Update or only ever exercises Query.
func New(fetcher *fetch.Downloader, queryEngine *query.Engine) *Scheduler {
	return &Scheduler{fetcher: fetcher, query: queryEngine}
}

// Update runs one update worker per repo concurrently and joins (§4.8). A
// repack failure surfaces as a non-OK fetch.Result for that repo (fetch
// already folds repack errors into its per-repo outcome), which this
// method in turn folds into the aggregate error — "a repack worker's
// non-zero exit status counts as an update failure for that repo" (§4.8
// "Cancellation").
func (s *Scheduler) Update(ctx context.Context, repos []*reposet.Repo, destCompressor archio.Compressor) []fetch.Result {
	results := make([]fetch.Result, len(repos))

	var wg sync.WaitGroup
	for i, r := range repos {
		wg.Add(1)
		go func(i int, r *reposet.Repo) {
			defer wg.Done()
			results[i] = s.fetcher.Update(ctx, r, destCompressor)
		}(i, r)
	}
	wg.Wait()

	return results
}

// UpdateError folds per-repo update results into one aggregate error, nil
// if every repo succeeded or was already up to date (§6 exit codes: update
// failures are "any repo failure").
func UpdateError(results []fetch.Result) error {
	var errs *multierror.Error
	for _, r := range results {
		if r.Outcome == reposet.OutcomeError {
			errs = multierror.Append(errs, r.Err)
		}
	}
	return errs.ErrorOrNil()
}

// QueryOutcome is the joined result of running one Request against every
// configured repo.
type QueryOutcome struct {
	Set   *result.Set
	Found bool // true iff at least one result line was emitted (§4.7 "Exit semantics")
	Err   error
}

// repoQueryResult is one repo worker's raw output, collected before the
// deterministic repo-ordered merge.
type repoQueryResult struct {
	acc          *result.Accumulator
	cachePresent bool
	err          error
}

// Query runs req against every repo concurrently (§4.7 "dispatches a
// per-repo load concurrently and joins"), then merges accumulators in
// configured repo order (§4.4, §4.8 "across repos, output follows the
// configured repo list"). If no repo has a cache file at all, it reports
// ErrCacheMissing instead of an empty, successful result (§4.7 "Missing
// cache").
func (s *Scheduler) Query(repos []query.RepoSpec, req query.Request) QueryOutcome {
	raw := make([]repoQueryResult, len(repos))

	var wg sync.WaitGroup
	for i, r := range repos {
		wg.Add(1)
		go func(i int, r query.RepoSpec) {
			defer wg.Done()
			acc, found, err := s.query.QueryOne(r, req)
			raw[i] = repoQueryResult{acc: acc, cachePresent: found, err: err}
		}(i, r)
	}
	wg.Wait()

	return s.mergeQueryResults(raw)
}

// QuerySingle runs req against exactly one repo, synchronously (§4.7 "the
// single-repo path ... is loaded synchronously"), used for `<repo>/<pattern>`
// target syntax and `--repo`.
func (s *Scheduler) QuerySingle(repo query.RepoSpec, req query.Request) QueryOutcome {
	acc, found, err := s.query.QueryOne(repo, req)
	return s.mergeQueryResults([]repoQueryResult{{acc: acc, cachePresent: found, err: err}})
}

func (s *Scheduler) mergeQueryResults(raw []repoQueryResult) QueryOutcome {
	set := result.NewSet()
	var errs *multierror.Error
	anyCachePresent := false

	for _, r := range raw {
		if r.err != nil {
			errs = multierror.Append(errs, r.err)
			continue
		}
		if !r.cachePresent {
			continue
		}
		anyCachePresent = true
		set.Add(r.acc)
	}

	if !anyCachePresent && errs.ErrorOrNil() == nil {
		return QueryOutcome{Set: set, Found: false, Err: pkgfileerrs.ErrCacheMissing}
	}

	return QueryOutcome{
		Set:   set,
		Found: set.TotalLines() > 0,
		Err:   errs.ErrorOrNil(),
	}
}
