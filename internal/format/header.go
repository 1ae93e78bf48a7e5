package format

import (
	"fmt"

	"github.com/joshuapare/heapkit/internal/buf"
)

// Header is a decoded block header.
type Header struct {
	Offset int    // Arena offset of the header itself
	Size   int    // Payload bytes
	Next   uint64 // Offset of the next header, NoNext when last
	Free   bool   // True when the block may be reused
	Canary uint32
}

// Payload returns the arena offset of the first payload byte.
func (h Header) Payload() int { return h.Offset + HeaderSize }

// End returns the arena offset one past the last payload byte.
func (h Header) End() int { return h.Offset + HeaderSize + h.Size }

// HasNext reports whether another header follows in the chain.
func (h Header) HasNext() bool { return h.Next != NoNext }

// DecodeHeader reads the header at off. It only checks that the header bytes
// are in range; the canary is reported but not validated.
func DecodeHeader(b []byte, off int) (Header, error) {
	hb, ok := buf.Slice(b, off, HeaderSize)
	if !ok {
		return Header{}, fmt.Errorf("header at %d: %w", off, ErrTruncated)
	}
	return Header{
		Offset: off,
		Size:   int(buf.U64LE(hb[SizeOffset:])),
		Next:   buf.U64LE(hb[NextOffset:]),
		Free:   buf.U32LE(hb[FlagsOffset:])&FlagFree != 0,
		Canary: buf.U32LE(hb[CanaryOffset:]),
	}, nil
}

// PutHeader writes a fresh header at off: the given size, no successor, busy,
// and a valid canary. The padding bytes are zeroed.
func PutHeader(b []byte, off, size int) {
	clear(b[off : off+HeaderSize])
	PutU64(b, off+SizeOffset, uint64(size))
	PutU64(b, off+NextOffset, NoNext)
	PutU32(b, off+CanaryOffset, HeaderCanary)
}

// ReadSize returns the payload size stored in the header at off.
func ReadSize(b []byte, off int) int {
	return int(ReadU64(b, off+SizeOffset))
}

// ReadNext returns the next-header link stored in the header at off.
func ReadNext(b []byte, off int) uint64 {
	return ReadU64(b, off+NextOffset)
}

// PutNext stores the next-header link of the header at off.
func PutNext(b []byte, off int, next uint64) {
	PutU64(b, off+NextOffset, next)
}

// IsFree reports whether the header at off is marked free.
func IsFree(b []byte, off int) bool {
	return ReadU32(b, off+FlagsOffset)&FlagFree != 0
}

// SetFree sets or clears the free flag of the header at off.
func SetFree(b []byte, off int, free bool) {
	flags := ReadU32(b, off+FlagsOffset)
	if free {
		flags |= FlagFree
	} else {
		flags &^= FlagFree
	}
	PutU32(b, off+FlagsOffset, flags)
}

// CheckCanary returns ErrBadCanary when the header at off was not written by
// PutHeader.
func CheckCanary(b []byte, off int) error {
	if !buf.Has(b, off, HeaderSize) {
		return fmt.Errorf("header at %d: %w", off, ErrTruncated)
	}
	if got := ReadU32(b, off+CanaryOffset); got != HeaderCanary {
		return fmt.Errorf("header at %d: got 0x%08X: %w", off, got, ErrBadCanary)
	}
	return nil
}
