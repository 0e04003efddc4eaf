package fetch

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dittofile/pkgfile/internal/archio"
	"github.com/dittofile/pkgfile/internal/repack"
	"github.com/dittofile/pkgfile/internal/reposet"
)

type nullLogger struct{}

func (nullLogger) Debug(string, ...any) {}
func (nullLogger) Error(string, ...any) {}
func (nullLogger) Info(string, ...any)  {}
func (nullLogger) Warn(string, ...any)  {}

func gzippedFilesFixture(t *testing.T) []byte {
	t.Helper()
	var tarBuf bytes.Buffer
	tw := tar.NewWriter(&tarBuf)
	body := "%FILES%\nusr/bin/gzip\n"
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name: "gzip-1.13-3/files",
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

func TestDownloader_Update_Success(t *testing.T) {
	fixture := gzippedFilesFixture(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(fixture)
	}))
	defer srv.Close()

	fs := reposet.NewMemFileSystem()
	require.NoError(t, fs.MkdirAll("/cache", 0o755))

	conv := repack.New(fs, nullLogger{}, 0)
	d := New(fs, nullLogger{}, conv, "x86_64")

	r := reposet.NewRepo("core", []string{srv.URL}, "", "/cache/core.files")
	res := d.Update(context.Background(), r, archio.None)

	require.NoError(t, res.Err)
	assert.Equal(t, reposet.OutcomeOK, res.Outcome)
	assert.Greater(t, res.Bytes, int64(0))

	out, err := fs.ReadFile("/cache/core.files")
	require.NoError(t, err)
	assert.NotEmpty(t, out)

	outcome, _ := r.Outcome()
	assert.Equal(t, reposet.OutcomeOK, outcome)
}

func TestDownloader_Update_NotModified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-Modified-Since") != "" {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	fs := reposet.NewMemFileSystem()
	require.NoError(t, fs.MkdirAll("/cache", 0o755))
	cacheWriter, err := fs.Create("/cache/core.files")
	require.NoError(t, err)
	require.NoError(t, cacheWriter.Close())

	conv := repack.New(fs, nullLogger{}, 0)
	d := New(fs, nullLogger{}, conv, "x86_64")

	r := reposet.NewRepo("core", []string{srv.URL}, "", "/cache/core.files")
	res := d.Update(context.Background(), r, archio.None)

	require.NoError(t, res.Err)
	assert.Equal(t, reposet.OutcomeUpToDate, res.Outcome)
}

func TestDownloader_Update_FailoverToNextServer(t *testing.T) {
	fixture := gzippedFilesFixture(t)
	var failingHits int32

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&failingHits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()

	working := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(fixture)
	}))
	defer working.Close()

	fs := reposet.NewMemFileSystem()
	require.NoError(t, fs.MkdirAll("/cache", 0o755))

	conv := repack.New(fs, nullLogger{}, 0)
	d := New(fs, nullLogger{}, conv, "x86_64")

	r := reposet.NewRepo("core", []string{failing.URL, working.URL}, "", "/cache/core.files")
	res := d.Update(context.Background(), r, archio.None)

	require.NoError(t, res.Err)
	assert.Equal(t, reposet.OutcomeOK, res.Outcome)
	assert.Equal(t, int32(1), atomic.LoadInt32(&failingHits))
}

func TestDownloader_Update_AllServersFail(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()

	fs := reposet.NewMemFileSystem()
	require.NoError(t, fs.MkdirAll("/cache", 0o755))

	conv := repack.New(fs, nullLogger{}, 0)
	d := New(fs, nullLogger{}, conv, "x86_64")

	r := reposet.NewRepo("core", []string{failing.URL}, "", "/cache/core.files")
	res := d.Update(context.Background(), r, archio.None)

	require.Error(t, res.Err)
	assert.Equal(t, reposet.OutcomeError, res.Outcome)
}

func TestSummary(t *testing.T) {
	_, ok := Summary(nil)
	assert.False(t, ok)

	results := []Result{
		{Repo: "core", Outcome: reposet.OutcomeOK, Bytes: 2048, Duration: 2 * time.Second},
		{Repo: "extra", Outcome: reposet.OutcomeUpToDate},
	}
	line, ok := Summary(results)
	require.True(t, ok)
	assert.Contains(t, line, "1 files")
}
