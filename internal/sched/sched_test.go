package sched

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dittofile/pkgfile/internal/archio"
	"github.com/dittofile/pkgfile/internal/fetch"
	"github.com/dittofile/pkgfile/internal/match"
	"github.com/dittofile/pkgfile/internal/pkgfileerrs"
	"github.com/dittofile/pkgfile/internal/query"
	"github.com/dittofile/pkgfile/internal/repack"
	"github.com/dittofile/pkgfile/internal/reposet"
)

type nullLogger struct{}

func (nullLogger) Debug(string, ...any) {}
func (nullLogger) Error(string, ...any) {}
func (nullLogger) Info(string, ...any)  {}
func (nullLogger) Warn(string, ...any)  {}

func gzippedFilesFixture(t *testing.T, entryName, body string) []byte {
	t.Helper()
	var tarBuf bytes.Buffer
	tw := tar.NewWriter(&tarBuf)
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name: entryName,
		Size: int64(len(body)),
		Mode: 0o644,
	}))
	_, err := tw.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, tw.Close())

	var gzBuf bytes.Buffer
	gw := gzip.NewWriter(&gzBuf)
	_, err = gw.Write(tarBuf.Bytes())
	require.NoError(t, err)
	require.NoError(t, gw.Close())
	return gzBuf.Bytes()
}

func serveFixture(fixture []byte) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(fixture)
	}))
}

func TestScheduler_Update_RunsOneWorkerPerRepoAndJoins(t *testing.T) {
	coreSrv := serveFixture(gzippedFilesFixture(t, "bash-5.2.037-1/files", "%FILES%\nusr/bin/bash\n"))
	defer coreSrv.Close()
	extraSrv := serveFixture(gzippedFilesFixture(t, "vim-9.1-1/files", "%FILES%\nusr/bin/vim\n"))
	defer extraSrv.Close()

	fs := reposet.NewMemFileSystem()
	require.NoError(t, fs.MkdirAll("/cache", 0o755))
	conv := repack.New(fs, nullLogger{}, 0)
	downloader := fetch.New(fs, nullLogger{}, conv, "x86_64")

	s := New(downloader, nil)
	repos := []*reposet.Repo{
		reposet.NewRepo("core", []string{coreSrv.URL}, "", "/cache/core.files"),
		reposet.NewRepo("extra", []string{extraSrv.URL}, "", "/cache/extra.files"),
	}

	results := s.Update(context.Background(), repos, archio.None)
	require.Len(t, results, 2)
	assert.Equal(t, "core", results[0].Repo)
	assert.Equal(t, "extra", results[1].Repo)
	assert.Equal(t, reposet.OutcomeOK, results[0].Outcome)
	assert.Equal(t, reposet.OutcomeOK, results[1].Outcome)
	assert.Nil(t, UpdateError(results))
}

func TestScheduler_Update_AggregatesPerRepoFailures(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()
	okSrv := serveFixture(gzippedFilesFixture(t, "vim-9.1-1/files", "%FILES%\nusr/bin/vim\n"))
	defer okSrv.Close()

	fs := reposet.NewMemFileSystem()
	require.NoError(t, fs.MkdirAll("/cache", 0o755))
	conv := repack.New(fs, nullLogger{}, 0)
	downloader := fetch.New(fs, nullLogger{}, conv, "x86_64")

	s := New(downloader, nil)
	repos := []*reposet.Repo{
		reposet.NewRepo("core", []string{failing.URL}, "", "/cache/core.files"),
		reposet.NewRepo("extra", []string{okSrv.URL}, "", "/cache/extra.files"),
	}

	results := s.Update(context.Background(), repos, archio.None)
	require.Len(t, results, 2)
	assert.Equal(t, reposet.OutcomeError, results[0].Outcome)
	assert.Equal(t, reposet.OutcomeOK, results[1].Outcome)

	err := UpdateError(results)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 error")
}

// memHandle/memSource mirror the query package's own test doubles; kept
// local since those doubles live in query's _test.go files, which other
// packages cannot import.
type memHandle struct{ data []byte }

func (h *memHandle) Bytes() []byte { return h.data }
func (h *memHandle) Close() error  { return nil }

type memSource struct{ caches map[string][]byte }

func (s *memSource) Open(path string) (query.CacheHandle, error) {
	data, ok := s.caches[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", pkgfileerrs.ErrCacheMissing, path)
	}
	return &memHandle{data: data}, nil
}

func buildCache(t *testing.T, fs reposet.FileSystem, repoName, entryName, body string) []byte {
	t.Helper()
	var tarBuf bytes.Buffer
	tw := tar.NewWriter(&tarBuf)
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name:    entryName,
		Size:    int64(len(body)),
		Mode:    0o644,
		ModTime: time.Unix(1700000000, 0),
	}))
	_, err := tw.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, tw.Close())

	srcPath := "/cache/" + repoName + ".raw"
	dstPath := "/cache/" + repoName + ".files"
	w, err := fs.Create(srcPath)
	require.NoError(t, err)
	_, err = w.Write(tarBuf.Bytes())
	require.NoError(t, err)
	require.NoError(t, w.Close())

	conv := repack.New(fs, nullLogger{}, 0)
	require.NoError(t, conv.Repack(repoName, srcPath, dstPath, archio.None, archio.None))

	out, err := fs.ReadFile(dstPath)
	require.NoError(t, err)
	return out
}

func TestScheduler_Query_MergesInConfiguredRepoOrder(t *testing.T) {
	fs := reposet.NewMemFileSystem()
	require.NoError(t, fs.MkdirAll("/cache", 0o755))

	coreCache := buildCache(t, fs, "core", "bash-5.2.037-1/files", "%FILES%\nusr/bin/bash\n")
	extraCache := buildCache(t, fs, "extra", "vim-9.1-1/files", "%FILES%\nusr/bin/bash\n")

	src := &memSource{caches: map[string][]byte{
		"/cache/core.files":  coreCache,
		"/cache/extra.files": extraCache,
	}}
	engine := query.New(src, nullLogger{})
	s := New(nil, engine)

	req := query.Request{
		Mode:   query.Search,
		Filter: match.BuildSearchFilter(match.NewBasenameExact("bash", false), false, false),
	}
	repos := []query.RepoSpec{
		{Name: "core", CachePath: "/cache/core.files", Compressor: archio.None},
		{Name: "extra", CachePath: "/cache/extra.files", Compressor: archio.None},
	}

	outcome := s.Query(repos, req)
	require.NoError(t, outcome.Err)
	assert.True(t, outcome.Found)
	assert.Equal(t, 2, outcome.Set.TotalLines())

	var buf bytes.Buffer
	_, err := outcome.Set.Print(&buf, '\n', true)
	require.NoError(t, err)
	assert.Equal(t, "core/bash\nextra/vim\n", buf.String())
}

func TestScheduler_Query_AllCachesMissingReportsErrCacheMissing(t *testing.T) {
	src := &memSource{caches: map[string][]byte{}}
	engine := query.New(src, nullLogger{})
	s := New(nil, engine)

	req := query.Request{Mode: query.Search, Filter: match.NewExact("bash", false)}
	repos := []query.RepoSpec{
		{Name: "core", CachePath: "/cache/core.files", Compressor: archio.None},
		{Name: "extra", CachePath: "/cache/extra.files", Compressor: archio.None},
	}

	outcome := s.Query(repos, req)
	require.Error(t, outcome.Err)
	assert.ErrorIs(t, outcome.Err, pkgfileerrs.ErrCacheMissing)
	assert.False(t, outcome.Found)
}

func TestScheduler_QuerySingle_NoMatchIsNotAnError(t *testing.T) {
	fs := reposet.NewMemFileSystem()
	require.NoError(t, fs.MkdirAll("/cache", 0o755))
	coreCache := buildCache(t, fs, "core", "bash-5.2.037-1/files", "%FILES%\nusr/bin/bash\n")

	src := &memSource{caches: map[string][]byte{"/cache/core.files": coreCache}}
	engine := query.New(src, nullLogger{})
	s := New(nil, engine)

	req := query.Request{Mode: query.Search, Filter: match.NewExact("usr/bin/zsh", false)}
	outcome := s.QuerySingle(query.RepoSpec{Name: "core", CachePath: "/cache/core.files", Compressor: archio.None}, req)

	require.NoError(t, outcome.Err)
	assert.False(t, outcome.Found)
}
