package main

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dittofile/pkgfile/internal/archio"
	"github.com/dittofile/pkgfile/internal/repack"
	"github.com/dittofile/pkgfile/internal/reposet"
)

// captureOutput runs fn with a pair of temp files standing in for stdout and
// stderr (run() takes *os.File, since os.Stdout/os.Stderr are what main()
// actually passes it) and returns their contents.
func captureOutput(t *testing.T, fn func(stdout, stderr *os.File) int) (stdout, stderr string, code int) {
	t.Helper()
	dir := t.TempDir()

	outFile, err := os.Create(filepath.Join(dir, "stdout"))
	require.NoError(t, err)
	defer outFile.Close()
	errFile, err := os.Create(filepath.Join(dir, "stderr"))
	require.NoError(t, err)
	defer errFile.Close()

	code = fn(outFile, errFile)

	outBytes, err := os.ReadFile(outFile.Name())
	require.NoError(t, err)
	errBytes, err := os.ReadFile(errFile.Name())
	require.NoError(t, err)
	return string(outBytes), string(errBytes), code
}

func gzippedFilesFixture(t *testing.T, entryName, body string) []byte {
	t.Helper()
	return gzippedFilesFixtureMulti(t, map[string]string{entryName: body})
}

func gzippedFilesFixtureMulti(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var tarBuf bytes.Buffer
	tw := tar.NewWriter(&tarBuf)
	for entryName, body := range entries {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name: entryName,
			Size: int64(len(body)),
			Mode: 0o644,
		}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())

	var gzBuf bytes.Buffer
	gw := gzip.NewWriter(&gzBuf)
	_, err := gw.Write(tarBuf.Bytes())
	require.NoError(t, err)
	require.NoError(t, gw.Close())
	return gzBuf.Bytes()
}

// writeOnDiskCache repacks a tar-of-files fixture into a real cpio cache
// file, the same way C5 would, so query tests can mmap a real file.
func writeOnDiskCache(t *testing.T, cachePath, entryName, body string) {
	t.Helper()
	writeOnDiskCacheMulti(t, cachePath, map[string]string{entryName: body})
}

func writeOnDiskCacheMulti(t *testing.T, cachePath string, entries map[string]string) {
	t.Helper()
	fixture := gzippedFilesFixtureMulti(t, entries)
	gr, err := gzip.NewReader(bytes.NewReader(fixture))
	require.NoError(t, err)

	fs := reposet.NewOsFileSystem()
	require.NoError(t, fs.MkdirAll(filepath.Dir(cachePath), 0o755))
	rawPath := cachePath + ".raw"
	w, err := fs.Create(rawPath)
	require.NoError(t, err)
	_, err = io.Copy(w, gr)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	conv := repack.New(fs, testNullLogger{}, 0)
	require.NoError(t, conv.Repack("core", rawPath, cachePath, archio.None, archio.None))
}

type testNullLogger struct{}

func (testNullLogger) Debug(string, ...any) {}
func (testNullLogger) Error(string, ...any) {}
func (testNullLogger) Info(string, ...any)  {}
func (testNullLogger) Warn(string, ...any)  {}

func writeINI(t *testing.T, cacheDir string, repos map[string]string) string {
	t.Helper()
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "[options]\nCacheDir = %s\nArch = x86_64\nCompress = none\n\n", cacheDir)
	for name, server := range repos {
		fmt.Fprintf(&buf, "[%s]\nServer = %s\n\n", name, server)
	}
	path := filepath.Join(t.TempDir(), "pkgfile.conf")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestRun_UpdateDownloadsAndWritesCache(t *testing.T) {
	fixture := gzippedFilesFixture(t, "gzip-1.13-3/files", "%FILES%\nusr/bin/gzip\n")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(fixture)
	}))
	defer srv.Close()

	cacheDir := t.TempDir()
	iniPath := writeINI(t, cacheDir, map[string]string{"core": srv.URL})

	stdout, _, code := captureOutput(t, func(stdout, stderr *os.File) int {
		return run([]string{"-u", "-C", iniPath}, stdout, stderr)
	})

	assert.Equal(t, exitFound, code)
	assert.Contains(t, stdout, "core: downloaded")

	_, err := os.Stat(filepath.Join(cacheDir, "core.files"))
	require.NoError(t, err)
}

func TestRun_SearchFindsOwningPackage(t *testing.T) {
	cacheDir := t.TempDir()
	writeOnDiskCache(t, filepath.Join(cacheDir, "core.files"), "gzip-1.13-3/files", "%FILES%\nusr/bin/gzip\n")
	iniPath := writeINI(t, cacheDir, map[string]string{"core": "https://unused.example"})

	stdout, _, code := captureOutput(t, func(stdout, stderr *os.File) int {
		return run([]string{"-C", iniPath, "gzip"}, stdout, stderr)
	})

	assert.Equal(t, exitFound, code)
	assert.Contains(t, stdout, "core/gzip")
}

// A pattern containing '/' must match the full path, not just the basename,
// even when two packages share a file's basename.
func TestRun_SearchWithSlashMatchesExactPathNotBasename(t *testing.T) {
	cacheDir := t.TempDir()
	writeOnDiskCacheMulti(t, filepath.Join(cacheDir, "core.files"), map[string]string{
		"bash-5.2.037-1/files": "%FILES%\nusr/bin/bash\n",
		"fakebash-1.0-1/files": "%FILES%\nopt/fakebash/bash\n",
	})
	iniPath := writeINI(t, cacheDir, map[string]string{"core": "https://unused.example"})

	stdout, _, code := captureOutput(t, func(stdout, stderr *os.File) int {
		return run([]string{"-C", iniPath, "usr/bin/bash"}, stdout, stderr)
	})

	assert.Equal(t, exitFound, code)
	assert.Contains(t, stdout, "core/bash")
	assert.NotContains(t, stdout, "fakebash")
}

func TestRun_SearchNoMatchIsExitNotFound(t *testing.T) {
	cacheDir := t.TempDir()
	writeOnDiskCache(t, filepath.Join(cacheDir, "core.files"), "gzip-1.13-3/files", "%FILES%\nusr/bin/gzip\n")
	iniPath := writeINI(t, cacheDir, map[string]string{"core": "https://unused.example"})

	stdout, _, code := captureOutput(t, func(stdout, stderr *os.File) int {
		return run([]string{"-C", iniPath, "nonexistent"}, stdout, stderr)
	})

	assert.Equal(t, exitNotFound, code)
	assert.Empty(t, stdout)
}

func TestRun_ListFlagListsAllFiles(t *testing.T) {
	cacheDir := t.TempDir()
	writeOnDiskCache(t, filepath.Join(cacheDir, "core.files"), "gzip-1.13-3/files", "%FILES%\nusr/bin/gzip\nusr/share/man/man1/gzip.1.gz\n")
	iniPath := writeINI(t, cacheDir, map[string]string{"core": "https://unused.example"})

	stdout, _, code := captureOutput(t, func(stdout, stderr *os.File) int {
		return run([]string{"-C", iniPath, "-l", "gzip"}, stdout, stderr)
	})

	assert.Equal(t, exitFound, code)
	assert.Contains(t, stdout, "usr/bin/gzip")
	assert.Contains(t, stdout, "usr/share/man/man1/gzip.1.gz")
}

func TestRun_RepoTargetSyntaxRestrictsToOneRepo(t *testing.T) {
	cacheDir := t.TempDir()
	writeOnDiskCache(t, filepath.Join(cacheDir, "core.files"), "gzip-1.13-3/files", "%FILES%\nusr/bin/gzip\n")
	writeOnDiskCache(t, filepath.Join(cacheDir, "extra.files"), "gzip-1.13-3/files", "%FILES%\nusr/bin/gzip\n")
	iniPath := writeINI(t, cacheDir, map[string]string{
		"core":  "https://unused.example",
		"extra": "https://unused.example",
	})

	stdout, _, code := captureOutput(t, func(stdout, stderr *os.File) int {
		return run([]string{"-C", iniPath, "-l", "extra/gzip"}, stdout, stderr)
	})

	assert.Equal(t, exitFound, code)
	assert.Contains(t, stdout, "extra/gzip")
	assert.NotContains(t, stdout, "core/gzip")
}

func TestRun_ListWithGlobIsArgError(t *testing.T) {
	_, stderr, code := captureOutput(t, func(stdout, stderr *os.File) int {
		return run([]string{"-l", "-g", "gzip*"}, stdout, stderr)
	})

	assert.Equal(t, exitArgError, code)
	assert.NotEmpty(t, stderr)
}

func TestRun_GlobAndRegexTogetherIsArgError(t *testing.T) {
	_, stderr, code := captureOutput(t, func(stdout, stderr *os.File) int {
		return run([]string{"-g", "-r", "gzip*"}, stdout, stderr)
	})

	assert.Equal(t, exitArgError, code)
	assert.NotEmpty(t, stderr)
}

func TestRun_NoConfiguredReposIsNotFound(t *testing.T) {
	emptyINI := filepath.Join(t.TempDir(), "empty.conf")
	require.NoError(t, os.WriteFile(emptyINI, []byte("[options]\nCacheDir = /tmp/unused\n"), 0o644))

	_, stderr, code := captureOutput(t, func(stdout, stderr *os.File) int {
		return run([]string{"-C", emptyINI, "anything"}, stdout, stderr)
	})

	assert.Equal(t, exitNotFound, code)
	assert.NotEmpty(t, stderr)
}
