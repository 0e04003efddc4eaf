package reposet

import (
	"io"
	"os"
	"time"
)

// OsFileSystem is a FileSystem implementation backed by the real OS.
type OsFileSystem struct{}

// NewOsFileSystem constructs the production FileSystem.
func NewOsFileSystem() FileSystem {
	return &OsFileSystem{}
}

func (fs *OsFileSystem) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func (fs *OsFileSystem) Stat(path string) (os.FileInfo, error) {
	return os.Stat(path)
}

func (fs *OsFileSystem) Open(path string) (io.ReadCloser, error) {
	return os.Open(path)
}

func (fs *OsFileSystem) Create(path string) (io.WriteCloser, error) {
	return os.Create(path)
}

func (fs *OsFileSystem) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

func (fs *OsFileSystem) Remove(path string) error {
	return os.Remove(path)
}

func (fs *OsFileSystem) Rename(oldPath, newPath string) error {
	return os.Rename(oldPath, newPath)
}

// Chtimes propagates atime/mtime (unix seconds) onto path, used by the
// repacker to copy the upstream files DB's timestamps onto the cache (§4.5).
func (fs *OsFileSystem) Chtimes(path string, atime, mtime int64) error {
	return os.Chtimes(path, time.Unix(atime, 0), time.Unix(mtime, 0))
}
