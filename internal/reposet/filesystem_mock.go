package reposet

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// MemFileSystem is an in-memory FileSystem double for tests, adapted from
// the teacher's repo/filesystem_mock.go with Chtimes support added.
type MemFileSystem struct {
	mu    sync.RWMutex
	files map[string]*memFile
}

type memFile struct {
	data    []byte
	mode    os.FileMode
	modTime time.Time
	isDir   bool
}

// NewMemFileSystem constructs an empty in-memory filesystem.
func NewMemFileSystem() *MemFileSystem {
	return &MemFileSystem{files: make(map[string]*memFile)}
}

func normalizePath(path string) string {
	path = filepath.Clean(path)
	if path == "." {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}

func (fs *MemFileSystem) ReadFile(path string) ([]byte, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	path = normalizePath(path)
	file, exists := fs.files[path]
	if !exists {
		return nil, &os.PathError{Op: "read", Path: path, Err: os.ErrNotExist}
	}
	if file.isDir {
		return nil, &os.PathError{Op: "read", Path: path, Err: fmt.Errorf("is a directory")}
	}

	data := make([]byte, len(file.data))
	copy(data, file.data)
	return data, nil
}

func (fs *MemFileSystem) Stat(path string) (os.FileInfo, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	path = normalizePath(path)
	file, exists := fs.files[path]
	if !exists {
		return nil, &os.PathError{Op: "stat", Path: path, Err: os.ErrNotExist}
	}

	return &memFileInfo{
		name:    filepath.Base(path),
		size:    int64(len(file.data)),
		mode:    file.mode,
		modTime: file.modTime,
		isDir:   file.isDir,
	}, nil
}

func (fs *MemFileSystem) Open(path string) (io.ReadCloser, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	path = normalizePath(path)
	file, exists := fs.files[path]
	if !exists {
		return nil, &os.PathError{Op: "open", Path: path, Err: os.ErrNotExist}
	}
	if file.isDir {
		return nil, &os.PathError{Op: "open", Path: path, Err: fmt.Errorf("is a directory")}
	}

	data := make([]byte, len(file.data))
	copy(data, file.data)
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (fs *MemFileSystem) Create(path string) (io.WriteCloser, error) {
	path = normalizePath(path)

	dir := filepath.Dir(path)
	if dir != "/" && dir != "." {
		fs.mu.RLock()
		_, exists := fs.files[dir]
		fs.mu.RUnlock()
		if !exists {
			return nil, &os.PathError{Op: "create", Path: path, Err: os.ErrNotExist}
		}
	}

	return &memFileWriter{fs: fs, path: path, buf: new(bytes.Buffer)}, nil
}

func (fs *MemFileSystem) MkdirAll(path string, perm os.FileMode) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	path = normalizePath(path)
	if path == "/" {
		return nil
	}

	parts := strings.Split(strings.Trim(path, "/"), "/")
	current := ""
	for _, part := range parts {
		current = current + "/" + part
		if _, exists := fs.files[current]; !exists {
			fs.files[current] = &memFile{mode: perm | os.ModeDir, modTime: time.Now(), isDir: true}
		}
	}
	return nil
}

func (fs *MemFileSystem) Remove(path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	path = normalizePath(path)
	if _, exists := fs.files[path]; !exists {
		return &os.PathError{Op: "remove", Path: path, Err: os.ErrNotExist}
	}
	delete(fs.files, path)
	return nil
}

func (fs *MemFileSystem) Rename(oldPath, newPath string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	oldPath = normalizePath(oldPath)
	newPath = normalizePath(newPath)

	file, exists := fs.files[oldPath]
	if !exists {
		return &os.PathError{Op: "rename", Path: oldPath, Err: os.ErrNotExist}
	}

	fs.files[newPath] = file
	delete(fs.files, oldPath)
	return nil
}

// Chtimes sets the in-memory mtime (atime is not tracked separately).
func (fs *MemFileSystem) Chtimes(path string, _, mtime int64) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	path = normalizePath(path)
	file, exists := fs.files[path]
	if !exists {
		return &os.PathError{Op: "chtimes", Path: path, Err: os.ErrNotExist}
	}
	file.modTime = time.Unix(mtime, 0)
	return nil
}

type memFileWriter struct {
	fs   *MemFileSystem
	path string
	buf  *bytes.Buffer
}

func (w *memFileWriter) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

func (w *memFileWriter) Close() error {
	w.fs.mu.Lock()
	defer w.fs.mu.Unlock()

	w.fs.files[w.path] = &memFile{data: w.buf.Bytes(), mode: 0o644, modTime: time.Now()}
	return nil
}

type memFileInfo struct {
	name    string
	size    int64
	mode    os.FileMode
	modTime time.Time
	isDir   bool
}

func (fi *memFileInfo) Name() string       { return fi.name }
func (fi *memFileInfo) Size() int64        { return fi.size }
func (fi *memFileInfo) Mode() os.FileMode  { return fi.mode }
func (fi *memFileInfo) ModTime() time.Time { return fi.modTime }
func (fi *memFileInfo) IsDir() bool        { return fi.isDir }
func (fi *memFileInfo) Sys() interface{}   { return nil }
