package brk

import (
	"fmt"

	"github.com/joshuapare/heapkit/internal/buf"
)

// Mem is a Break over a heap-allocated reservation of fixed capacity.
// Memory exposed by growth is always zeroed.
type Mem struct {
	buf    []byte // len is the break, cap is the limit
	closed bool
}

// NewMem reserves limit bytes. A non-positive limit yields a Break that
// fails every growth.
func NewMem(limit int) *Mem {
	if limit < 0 {
		limit = 0
	}
	return &Mem{buf: make([]byte, 0, limit)}
}

// Sbrk implements Break.
func (m *Mem) Sbrk(delta int) (int, error) {
	if m.closed {
		return Failed, ErrClosed
	}
	prev := len(m.buf)
	switch {
	case delta == 0:
		return prev, nil
	case delta > 0:
		end, ok := buf.End(cap(m.buf), prev, delta)
		if !ok {
			return Failed, fmt.Errorf("grow %d bytes at %d (limit %d): %w", delta, prev, cap(m.buf), ErrNoMemory)
		}
		m.buf = m.buf[:end]
		return prev, nil
	default:
		end := prev + delta
		if end < 0 {
			return Failed, fmt.Errorf("shrink %d bytes at %d: %w", -delta, prev, ErrShrink)
		}
		clear(m.buf[end:prev])
		m.buf = m.buf[:end]
		return prev, nil
	}
}

// Bytes implements Break.
func (m *Mem) Bytes() []byte { return m.buf }

// Limit implements Break.
func (m *Mem) Limit() int { return cap(m.buf) }

// Close implements Break.
func (m *Mem) Close() error {
	if m.closed {
		return ErrClosed
	}
	m.closed = true
	m.buf = nil
	return nil
}

var _ Break = (*Mem)(nil)
