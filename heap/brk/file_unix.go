//go:build linux || darwin

package brk

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/joshuapare/heapkit/internal/buf"
	"github.com/joshuapare/heapkit/internal/format"
)

// File is a Break backed by a regular file. The whole reservation is mapped
// MAP_SHARED once; the break is the file size, moved with ftruncate, so pages
// past it are never touched.
type File struct {
	f        *os.File
	mem      []byte
	brk      int
	pageSize int
}

// OpenFile opens or creates the arena file at path and maps limit bytes
// (rounded up to whole pages). An existing file keeps its contents and its
// size becomes the initial break.
func OpenFile(path string, limit int) (*File, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("brk: file limit must be positive, got %d", limit)
	}
	pageSize := unix.Getpagesize()
	limit = format.AlignPage(limit, pageSize)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	size := st.Size()
	if size > int64(limit) {
		_ = f.Close()
		return nil, fmt.Errorf("brk: arena file %s is %d bytes, larger than limit %d", path, size, limit)
	}

	mem, err := unix.Mmap(int(f.Fd()), 0, limit, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("brk: mmap %s: %w", path, err)
	}
	return &File{f: f, mem: mem, brk: int(size), pageSize: pageSize}, nil
}

// Sbrk implements Break.
func (b *File) Sbrk(delta int) (int, error) {
	if b.f == nil {
		return Failed, ErrClosed
	}
	prev := b.brk
	switch {
	case delta == 0:
		return prev, nil
	case delta > 0:
		end, ok := buf.End(len(b.mem), prev, delta)
		if !ok {
			return Failed, fmt.Errorf("grow %d bytes at %d (limit %d): %w", delta, prev, len(b.mem), ErrNoMemory)
		}
		if err := b.f.Truncate(int64(end)); err != nil {
			return Failed, fmt.Errorf("extend arena file: %w: %w", ErrNoMemory, err)
		}
		b.brk = end
		return prev, nil
	default:
		end := prev + delta
		if end < 0 {
			return Failed, fmt.Errorf("shrink %d bytes at %d: %w", -delta, prev, ErrShrink)
		}
		if err := b.f.Truncate(int64(end)); err != nil {
			return Failed, fmt.Errorf("truncate arena file: %w: %w", ErrShrink, err)
		}
		b.brk = end
		return prev, nil
	}
}

// Bytes implements Break.
func (b *File) Bytes() []byte {
	if b.mem == nil {
		return nil
	}
	return b.mem[:b.brk]
}

// Limit implements Break.
func (b *File) Limit() int { return len(b.mem) }

// Path returns the name of the arena file.
func (b *File) Path() string {
	if b.f == nil {
		return ""
	}
	return b.f.Name()
}

// SyncRange flushes the pages covering [off, off+n) to the file. The range is
// clipped to the current break.
func (b *File) SyncRange(off, n int) error {
	if b.f == nil {
		return ErrClosed
	}
	if off < 0 || n <= 0 || off >= b.brk {
		return nil
	}
	end := min(off+n, b.brk)
	start := off &^ (b.pageSize - 1)
	end = min(format.AlignPage(end, b.pageSize), len(b.mem))
	return msyncRange(b.mem, start, end)
}

// Sync flushes every page below the break and syncs the file descriptor.
func (b *File) Sync() error {
	if b.f == nil {
		return ErrClosed
	}
	if b.brk > 0 {
		end := min(format.AlignPage(b.brk, b.pageSize), len(b.mem))
		if err := unix.Msync(b.mem[:end], unix.MS_SYNC); err != nil {
			return err
		}
	}
	return b.f.Sync()
}

// Close unmaps the arena and closes the file. The file keeps its contents.
func (b *File) Close() error {
	if b.f == nil {
		return ErrClosed
	}
	var errs []error
	if b.mem != nil {
		if err := unix.Munmap(b.mem); err != nil && !errors.Is(err, unix.EINVAL) {
			errs = append(errs, err)
		}
		b.mem = nil
	}
	if err := b.f.Close(); err != nil {
		errs = append(errs, err)
	}
	b.f = nil
	b.brk = 0
	return errors.Join(errs...)
}

var _ Break = (*File)(nil)
