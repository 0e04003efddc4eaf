// Package reposet holds the Repository/Package data model (§3) shared by
// the downloader, repack, and query engine.
package reposet

import (
	"io"
	"os"
)

// Logger mirrors the subset of log/slog's methods the core needs. It lets
// callers plug in slog.Default(), a test double, or any other structured
// logger without the core importing log/slog directly everywhere.
type Logger interface {
	Debug(msg string, args ...any)
	Error(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// FileSystem abstracts every filesystem operation the core needs, so tests
// can swap in an in-memory double instead of touching disk.
type FileSystem interface {
	ReadFile(path string) ([]byte, error)
	Stat(path string) (os.FileInfo, error)
	Open(path string) (io.ReadCloser, error)
	Create(path string) (io.WriteCloser, error)
	MkdirAll(path string, perm os.FileMode) error
	Remove(path string) error
	Rename(oldPath, newPath string) error
	Chtimes(path string, atime, mtime int64) error
}
