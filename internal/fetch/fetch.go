// Package fetch implements C6: downloading one repo's upstream files DB,
// trying configured servers in order, and handing a successful transfer off
// to the repack converter.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/dittofile/pkgfile/internal/archio"
	"github.com/dittofile/pkgfile/internal/humanize"
	"github.com/dittofile/pkgfile/internal/pkgfileerrs"
	"github.com/dittofile/pkgfile/internal/repack"
	"github.com/dittofile/pkgfile/internal/reposet"
)

// Result is the outcome of one repo's update attempt (§4.6).
type Result struct {
	Repo     string
	Outcome  reposet.Outcome
	Bytes    int64
	Duration time.Duration
	Err      error
}

// Downloader fetches each configured repo's upstream files DB and repacks
// it into the local cache, trying servers in order per repo (§4.6).
// Grounded on the teacher's HTTPDownloader: atomic temp-file writes and a
// single Do-the-whole-transfer method, generalised to per-server retry and
// conditional GET.
type Downloader struct {
	client      *retryablehttp.Client
	fs          reposet.FileSystem
	log         reposet.Logger
	converter   *repack.Converter
	defaultArch string
	upstreamFmt archio.Compressor // the upstream files DB's own compression, usually gzip
}

// New builds a Downloader. The retryablehttp client's own retry loop is set
// to zero: per-server failover (§4.6 "Retries") is handled by this package
// advancing reposet.Repo's server index, not by retryablehttp retrying the
// same URL.
func New(fs reposet.FileSystem, log reposet.Logger, converter *repack.Converter, defaultArch string) *Downloader {
	client := retryablehttp.NewClient()
	client.RetryMax = 0
	client.Logger = nil
	return &Downloader{
		client:      client,
		fs:          fs,
		log:         log,
		converter:   converter,
		defaultArch: defaultArch,
		upstreamFmt: archio.Gzip,
	}
}

// Update attempts to fetch and repack repo, trying each configured server
// until one succeeds or all are exhausted (§4.6 "Contract", "Retries").
func (d *Downloader) Update(ctx context.Context, r *reposet.Repo, destCompressor archio.Compressor) Result {
	r.ResetServerIndex()
	r.MarkStarted()
	defer r.MarkFinished()

	var lastErr error
	for {
		url, ok := r.NextServerURL(d.defaultArch)
		if !ok {
			break
		}

		n, err := d.attempt(ctx, r, url, destCompressor)
		if err == nil {
			r.AddBytes(n)
			r.SetOutcome(reposet.OutcomeOK, nil)
			return Result{Repo: r.Name, Outcome: reposet.OutcomeOK, Bytes: n, Duration: r.Duration()}
		}
		if err == errNotModified {
			r.SetOutcome(reposet.OutcomeUpToDate, nil)
			return Result{Repo: r.Name, Outcome: reposet.OutcomeUpToDate, Duration: r.Duration()}
		}

		d.log.Warn("fetch: server attempt failed, trying next", "repo", r.Name, "url", url, "error", err)
		lastErr = err
	}

	r.SetOutcome(reposet.OutcomeError, lastErr)
	return Result{Repo: r.Name, Outcome: reposet.OutcomeError, Err: lastErr, Duration: r.Duration()}
}

var errNotModified = fmt.Errorf("not modified")

// rawSuffix names the anonymous-ish temp file a successful download streams
// into before being handed to the repack converter.
const rawSuffix = ".download"

// attempt performs one GET against url, streaming the body into a per-repo
// temp file and repacking it on success. Returns bytes transferred.
func (d *Downloader) attempt(ctx context.Context, r *reposet.Repo, url string, destCompressor archio.Compressor) (int64, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}

	if !r.Force {
		if info, statErr := d.fs.Stat(r.CachePath); statErr == nil {
			req.Header.Set("If-Modified-Since", info.ModTime().UTC().Format(http.TimeFormat))
		}
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", pkgfileerrs.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return 0, errNotModified
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, pkgfileerrs.NewHTTPStatusError(url, resp.StatusCode)
	}

	rawPath := r.CachePath + rawSuffix
	out, err := d.fs.Create(rawPath)
	if err != nil {
		return 0, fmt.Errorf("create temp download: %w", err)
	}

	n, copyErr := io.Copy(out, resp.Body)
	closeErr := out.Close()
	if copyErr != nil {
		_ = d.fs.Remove(rawPath)
		return 0, fmt.Errorf("%w: %v", pkgfileerrs.ErrNetwork, copyErr)
	}
	if closeErr != nil {
		_ = d.fs.Remove(rawPath)
		return 0, fmt.Errorf("close temp download: %w", closeErr)
	}

	if err := d.converter.Repack(r.Name, rawPath, r.CachePath, d.upstreamFmt, destCompressor); err != nil {
		_ = d.fs.Remove(rawPath)
		return 0, err
	}
	_ = d.fs.Remove(rawPath)

	return n, nil
}

// Summary formats the aggregate "download complete" line printed once at
// least one transfer succeeded (§4.6).
func Summary(results []Result) (string, bool) {
	var total int64
	var n int
	var elapsed time.Duration
	for _, r := range results {
		if r.Outcome != reposet.OutcomeOK {
			continue
		}
		total += r.Bytes
		n++
		if r.Duration > elapsed {
			elapsed = r.Duration
		}
	}
	if n == 0 {
		return "", false
	}
	rate := float64(total) / elapsed.Seconds()
	if elapsed <= 0 {
		rate = float64(total)
	}
	return fmt.Sprintf("download complete in %s, %d files, %s (%s)",
		elapsed.Round(time.Millisecond), n, humanize.Size(float64(total)), humanize.Rate(rate)), true
}
