//go:build !linux && !darwin

package brk

import "fmt"

// Mapped falls back to a heap reservation when anonymous mappings with
// mprotect are not available.
type Mapped struct {
	*Mem
}

// NewMapped reserves limit bytes on the Go heap.
func NewMapped(limit int) (*Mapped, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("brk: mapped limit must be positive, got %d", limit)
	}
	return &Mapped{Mem: NewMem(limit)}, nil
}

// Committed returns the current break; heap reservations are always committed.
func (m *Mapped) Committed() int { return len(m.Bytes()) }

var _ Break = (*Mapped)(nil)
