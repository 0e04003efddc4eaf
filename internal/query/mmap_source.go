package query

import (
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"

	"github.com/dittofile/pkgfile/internal/pkgfileerrs"
)

// mmapHandle backs a CacheHandle with a memory-mapped file (§5: "archives
// fit comfortably in virtual address space"). The file descriptor is kept
// open alongside the mapping and both are released on Close.
type mmapHandle struct {
	file *os.File
	m    mmap.MMap
}

func (h *mmapHandle) Bytes() []byte { return h.m }

func (h *mmapHandle) Close() error {
	unmapErr := h.m.Unmap()
	closeErr := h.file.Close()
	if unmapErr != nil {
		return unmapErr
	}
	return closeErr
}

// MmapSource is the production CacheSource: every repo's cache file is
// memory-mapped read-only for the duration of one query (§4.8 "Resource
// limits": "Memory-mapped archives are released at worker end").
type MmapSource struct{}

// NewMmapSource builds the production CacheSource.
func NewMmapSource() *MmapSource { return &MmapSource{} }

func (MmapSource) Open(path string) (CacheHandle, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", pkgfileerrs.ErrCacheMissing, path)
		}
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.Size() == 0 {
		f.Close()
		return nil, fmt.Errorf("%w: %s is empty", pkgfileerrs.ErrCacheMissing, path)
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}

	return &mmapHandle{file: f, m: m}, nil
}
