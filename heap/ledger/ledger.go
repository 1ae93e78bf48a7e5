package ledger

import (
	"fmt"

	"github.com/joshuapare/heapkit/internal/format"
)

// None is the offset reported for a missing record.
const None = -1

// Record is a decoded view of one block record.
type Record struct {
	Offset int  // Arena offset of the header
	Size   int  // Payload bytes
	Free   bool // Eligible for reuse
	Next   int  // Offset of the next record, None when last
}

// Payload returns the arena offset of the record's first payload byte.
func (r Record) Payload() int { return r.Offset + format.HeaderSize }

// End returns the arena offset one past the record's payload.
func (r Record) End() int { return r.Offset + format.HeaderSize + r.Size }

// Ledger tracks both ends of the record chain.
type Ledger struct {
	first int
	last  int
	count int
	free  int
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{first: None, last: None}
}

// First returns the offset of the first record, or None.
func (l *Ledger) First() int { return l.first }

// Last returns the offset of the last record, or None.
func (l *Ledger) Last() int { return l.last }

// Len returns the number of records in the chain.
func (l *Ledger) Len() int { return l.count }

// FreeLen returns the number of records marked free.
func (l *Ledger) FreeLen() int { return l.free }

// Empty reports whether the chain holds no records.
func (l *Ledger) Empty() bool { return l.count == 0 }

// FindFree returns the offset of the first free record whose payload holds at
// least min bytes, or None. The record is not modified.
func (l *Ledger) FindFree(mem []byte, min int) int {
	if l.free == 0 {
		return None
	}
	for off := l.first; off != None; off = nextOf(mem, off) {
		if format.IsFree(mem, off) && format.ReadSize(mem, off) >= min {
			return off
		}
	}
	return None
}

// Init writes a fresh busy record with no successor at off.
func (l *Ledger) Init(mem []byte, off, size int) {
	format.PutHeader(mem, off, size)
}

// Append links the record at off after the current last record, or makes it
// the first record of an empty chain.
func (l *Ledger) Append(mem []byte, off int) {
	format.PutNext(mem, off, format.NoNext)
	if l.last == None {
		l.first = off
	} else {
		format.PutNext(mem, l.last, uint64(off))
	}
	l.last = off
	l.count++
	if format.IsFree(mem, off) {
		l.free++
	}
}

// ExciseTail unlinks the last record and returns its offset, or None when the
// chain is empty. The predecessor, found by scanning from the first record,
// becomes the new last record.
func (l *Ledger) ExciseTail(mem []byte) int {
	tail := l.last
	if tail == None {
		return None
	}
	if format.IsFree(mem, tail) {
		l.free--
	}
	l.count--

	if tail == l.first {
		l.first, l.last = None, None
		return tail
	}

	prev := l.first
	for {
		next := nextOf(mem, prev)
		if next == tail || next == None {
			break
		}
		prev = next
	}
	format.PutNext(mem, prev, format.NoNext)
	l.last = prev
	return tail
}

// SetFree flips the free flag of the record at off and keeps the free count
// in step. It reports whether the flag changed.
func (l *Ledger) SetFree(mem []byte, off int, free bool) bool {
	if format.IsFree(mem, off) == free {
		return false
	}
	format.SetFree(mem, off, free)
	if free {
		l.free++
	} else {
		l.free--
	}
	return true
}

// Record decodes the record at off.
func (l *Ledger) Record(mem []byte, off int) (Record, error) {
	h, err := format.DecodeHeader(mem, off)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return fromHeader(h), nil
}

// Walk visits every record in chain order until fn returns false. It stops
// with an error wrapping ErrCorrupt if the chain cannot be followed.
func (l *Ledger) Walk(mem []byte, fn func(Record) bool) error {
	steps := 0
	for off := l.first; off != None; {
		if steps >= l.count {
			return fmt.Errorf("%w: chain longer than %d records (cycle?)", ErrCorrupt, l.count)
		}
		r, err := l.Record(mem, off)
		if err != nil {
			return err
		}
		if r.Next != None && r.Next <= off {
			return fmt.Errorf("%w: record at %d links backwards to %d", ErrCorrupt, off, r.Next)
		}
		if !fn(r) {
			return nil
		}
		off = r.Next
		steps++
	}
	return nil
}

// Records returns every record in chain order.
func (l *Ledger) Records(mem []byte) ([]Record, error) {
	out := make([]Record, 0, l.count)
	err := l.Walk(mem, func(r Record) bool {
		out = append(out, r)
		return true
	})
	return out, err
}

func fromHeader(h format.Header) Record {
	next := None
	if h.HasNext() {
		next = int(h.Next)
	}
	return Record{Offset: h.Offset, Size: h.Size, Free: h.Free, Next: next}
}

func nextOf(mem []byte, off int) int {
	next := format.ReadNext(mem, off)
	if next == format.NoNext {
		return None
	}
	return int(next)
}
