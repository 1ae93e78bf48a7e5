//go:build linux || darwin

package brk

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/joshuapare/heapkit/internal/buf"
	"github.com/joshuapare/heapkit/internal/format"
)

// Mapped is a Break over an anonymous address-space reservation. Only pages
// below the break are readable; everything past the last committed page is
// PROT_NONE.
type Mapped struct {
	mem       []byte // whole reservation
	brk       int
	committed int // page-aligned prefix currently PROT_READ|PROT_WRITE
	pageSize  int
}

// NewMapped reserves limit bytes (rounded up to whole pages) of address space
// without committing any of it.
func NewMapped(limit int) (*Mapped, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("brk: mapped limit must be positive, got %d", limit)
	}
	pageSize := unix.Getpagesize()
	limit = format.AlignPage(limit, pageSize)

	mem, err := unix.Mmap(-1, 0, limit, unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("brk: reserve %d bytes: %w", limit, err)
	}
	return &Mapped{mem: mem, pageSize: pageSize}, nil
}

// Sbrk implements Break.
func (m *Mapped) Sbrk(delta int) (int, error) {
	if m.mem == nil {
		return Failed, ErrClosed
	}
	prev := m.brk
	switch {
	case delta == 0:
		return prev, nil
	case delta > 0:
		end, ok := buf.End(len(m.mem), prev, delta)
		if !ok {
			return Failed, fmt.Errorf("grow %d bytes at %d (limit %d): %w", delta, prev, len(m.mem), ErrNoMemory)
		}
		if need := format.AlignPage(end, m.pageSize); need > m.committed {
			if err := unix.Mprotect(m.mem[m.committed:need], unix.PROT_READ|unix.PROT_WRITE); err != nil {
				return Failed, fmt.Errorf("commit pages [%d, %d): %w: %w", m.committed, need, ErrNoMemory, err)
			}
			m.committed = need
		}
		m.brk = end
		return prev, nil
	default:
		end := prev + delta
		if end < 0 {
			return Failed, fmt.Errorf("shrink %d bytes at %d: %w", -delta, prev, ErrShrink)
		}
		keep := format.AlignPage(end, m.pageSize)
		if keep < m.committed {
			span := m.mem[keep:m.committed]
			if err := unix.Madvise(span, unix.MADV_DONTNEED); err != nil {
				return Failed, fmt.Errorf("release pages [%d, %d): %w: %w", keep, m.committed, ErrShrink, err)
			}
			if err := unix.Mprotect(span, unix.PROT_NONE); err != nil {
				return Failed, fmt.Errorf("decommit pages [%d, %d): %w: %w", keep, m.committed, ErrShrink, err)
			}
			m.committed = keep
		}
		// The page holding the new break stays committed; zero its tail so
		// regrowth hands out clean memory.
		clear(m.mem[end:min(prev, keep)])
		m.brk = end
		return prev, nil
	}
}

// Bytes implements Break.
func (m *Mapped) Bytes() []byte {
	if m.mem == nil {
		return nil
	}
	return m.mem[:m.brk]
}

// Limit implements Break.
func (m *Mapped) Limit() int { return len(m.mem) }

// Committed returns the number of bytes currently backed by accessible pages.
func (m *Mapped) Committed() int { return m.committed }

// Close unmaps the reservation.
func (m *Mapped) Close() error {
	if m.mem == nil {
		return ErrClosed
	}
	err := unix.Munmap(m.mem)
	m.mem = nil
	m.brk, m.committed = 0, 0
	if errors.Is(err, unix.EINVAL) {
		return nil
	}
	return err
}

var _ Break = (*Mapped)(nil)
