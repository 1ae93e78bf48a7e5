package ledger

import (
	"fmt"

	"github.com/joshuapare/heapkit/internal/format"
)

// Check verifies the chain against the arena memory mem whose current break
// is end:
//
//   - an empty chain has both ends unset and end == 0
//   - the first record sits at offset 0
//   - every header is in range and carries the canary
//   - each payload is immediately followed by the next header
//   - the last record has no successor and ends exactly at end
//   - record and free counts match the chain
//
// The first violation is returned wrapping ErrCorrupt.
func (l *Ledger) Check(mem []byte, end int) error {
	if end > len(mem) {
		return fmt.Errorf("%w: break %d past arena length %d", ErrCorrupt, end, len(mem))
	}
	if l.count == 0 {
		if l.first != None || l.last != None {
			return fmt.Errorf("%w: empty chain with first=%d last=%d", ErrCorrupt, l.first, l.last)
		}
		if end != 0 {
			return fmt.Errorf("%w: empty chain but break at %d", ErrCorrupt, end)
		}
		return nil
	}
	if l.first != 0 {
		return fmt.Errorf("%w: first record at %d, want 0", ErrCorrupt, l.first)
	}

	var (
		n, free int
		prev    = None
		werr    error
	)
	err := l.Walk(mem, func(r Record) bool {
		if cerr := format.CheckCanary(mem, r.Offset); cerr != nil {
			werr = fmt.Errorf("%w: %w", ErrCorrupt, cerr)
			return false
		}
		if r.End() > end {
			werr = fmt.Errorf("%w: record at %d (size %d) runs past break %d", ErrCorrupt, r.Offset, r.Size, end)
			return false
		}
		if r.Next != None && r.Next != r.End() {
			werr = fmt.Errorf("%w: record at %d links to %d, want %d", ErrCorrupt, r.Offset, r.Next, r.End())
			return false
		}
		n++
		if r.Free {
			free++
		}
		prev = r.Offset
		return true
	})
	if err != nil {
		return err
	}
	if werr != nil {
		return werr
	}

	switch {
	case prev != l.last:
		return fmt.Errorf("%w: chain ends at %d, ledger last is %d", ErrCorrupt, prev, l.last)
	case n != l.count:
		return fmt.Errorf("%w: walked %d records, ledger counts %d", ErrCorrupt, n, l.count)
	case free != l.free:
		return fmt.Errorf("%w: walked %d free records, ledger counts %d", ErrCorrupt, free, l.free)
	}

	last, err := l.Record(mem, l.last)
	if err != nil {
		return err
	}
	if last.Next != None {
		return fmt.Errorf("%w: last record at %d links to %d", ErrCorrupt, last.Offset, last.Next)
	}
	if last.End() != end {
		return fmt.Errorf("%w: last record ends at %d, break at %d", ErrCorrupt, last.End(), end)
	}
	return nil
}

// Rebuild reconstructs a ledger by walking headers physically from offset 0 to
// end. It is used when an arena outlives the process, such as a reopened
// file-backed arena. mem is only read.
func Rebuild(mem []byte, end int) (*Ledger, error) {
	if end > len(mem) {
		return nil, fmt.Errorf("%w: break %d past arena length %d", ErrCorrupt, end, len(mem))
	}
	l := New()
	for off := 0; off < end; {
		h, err := format.DecodeHeader(mem, off)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		if err := format.CheckCanary(mem, off); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		if h.Size < 0 || h.End() > end || h.End() <= off {
			return nil, fmt.Errorf("%w: record at %d (size %d) runs past break %d", ErrCorrupt, off, h.Size, end)
		}
		switch {
		case h.End() == end && h.HasNext():
			return nil, fmt.Errorf("%w: last record at %d links to %d", ErrCorrupt, off, h.Next)
		case h.End() < end && h.Next != uint64(h.End()):
			return nil, fmt.Errorf("%w: record at %d links to %d, want %d", ErrCorrupt, off, h.Next, h.End())
		}
		if l.first == None {
			l.first = off
		}
		l.last = off
		l.count++
		if h.Free {
			l.free++
		}
		off = h.End()
	}
	return l, nil
}
