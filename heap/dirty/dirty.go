// Package dirty provides tracking and flushing of dirty pages in file-backed
// arenas.
//
// The tracker maintains a list of dirty byte ranges, coalesces them into
// page-aligned ranges, and hands them to a Syncer (msync for brk.File).
package dirty

import (
	"cmp"
	"context"
	"slices"
)

const (
	// defaultRangeCapacity is the pre-allocated capacity for dirty ranges.
	defaultRangeCapacity = 64

	// standardPageSize is the typical OS page size (4KB).
	standardPageSize = 4096
)

// Range represents a dirty byte range (arena offsets).
type Range struct {
	Off int64
	Len int64
}

// Tracker accumulates dirty ranges and flushes them efficiently.
//
// NOT thread-safe. The allocator only touches it while holding its lock.
type Tracker struct {
	ranges   []Range // Dirty ranges (coalesced at flush time)
	pageSize int64
}

// NewTracker creates a dirty tracker using the standard 4KB page size.
func NewTracker() *Tracker {
	return NewTrackerWithPageSize(standardPageSize)
}

// NewTrackerWithPageSize creates a tracker that aligns ranges to pageSize,
// which must be a positive power of two.
func NewTrackerWithPageSize(pageSize int) *Tracker {
	if pageSize <= 0 || pageSize&(pageSize-1) != 0 {
		pageSize = standardPageSize
	}
	return &Tracker{
		ranges:   make([]Range, 0, defaultRangeCapacity),
		pageSize: int64(pageSize),
	}
}

// Add records a dirty range. Empty and negative ranges are ignored.
//
// The range will be page-aligned and coalesced with other ranges at flush time.
func (t *Tracker) Add(off, length int) {
	if off < 0 || length <= 0 {
		return
	}
	t.ranges = append(t.ranges, Range{
		Off: int64(off),
		Len: int64(length),
	})
}

// Len returns the number of raw (uncoalesced) ranges.
func (t *Tracker) Len() int { return len(t.ranges) }

// Flush coalesces all dirty ranges, passes each to s, and clears the tracker.
//
// The context is checked before each range. If cancelled mid-flush, the
// ranges not yet synced stay tracked so a later Flush picks them up.
func (t *Tracker) Flush(ctx context.Context, s Syncer) error {
	if len(t.ranges) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	coalesced := t.coalesce()
	for i, r := range coalesced {
		if err := ctx.Err(); err != nil {
			t.ranges = append(t.ranges[:0], coalesced[i:]...)
			return err
		}
		if err := s.SyncRange(int(r.Off), int(r.Len)); err != nil {
			t.ranges = append(t.ranges[:0], coalesced[i:]...)
			return err
		}
	}

	t.ranges = t.ranges[:0]
	return nil
}

// Reset clears all tracked ranges.
func (t *Tracker) Reset() {
	t.ranges = t.ranges[:0]
}

// Ranges returns the coalesced dirty ranges: page-aligned, sorted and merged.
func (t *Tracker) Ranges() []Range {
	return t.coalesce()
}

// End returns the offset one past the last byte of r.
func (r Range) End() int64 { return r.Off + r.Len }

// span widens r outward to whole pages.
func (t *Tracker) span(r Range) Range {
	mask := t.pageSize - 1
	lo := r.Off &^ mask
	hi := (r.End() + mask) &^ mask
	return Range{Off: lo, Len: hi - lo}
}

// coalesce returns the tracked ranges as whole pages, ordered by offset,
// with touching spans folded together. The result is a fresh slice.
func (t *Tracker) coalesce() []Range {
	if len(t.ranges) == 0 {
		return nil
	}

	out := make([]Range, len(t.ranges))
	for i, r := range t.ranges {
		out[i] = t.span(r)
	}
	slices.SortFunc(out, func(a, b Range) int { return cmp.Compare(a.Off, b.Off) })

	// Fold in place: out[:n+1] holds the merged prefix.
	n := 0
	for _, r := range out[1:] {
		if last := &out[n]; r.Off <= last.End() {
			last.Len = max(last.End(), r.End()) - last.Off
			continue
		}
		n++
		out[n] = r
	}
	return out[:n+1]
}

var _ DirtyTracker = (*Tracker)(nil)
