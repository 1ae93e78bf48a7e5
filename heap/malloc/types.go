package malloc

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/joshuapare/heapkit/heap/dirty"
	"github.com/joshuapare/heapkit/internal/format"
)

// HeaderSize is the footprint of the record preceding every payload.
const HeaderSize = format.HeaderSize

// Ptr is an opaque handle to a payload: its offset in the arena.
type Ptr uint64

// Null is the handle returned when nothing was allocated.
const Null Ptr = 0

// String formats the handle as a hexadecimal arena offset.
func (p Ptr) String() string {
	if p == Null {
		return "null"
	}
	return fmt.Sprintf("0x%x", uint64(p))
}

// offset returns the arena offset of the record owning p.
func (p Ptr) offset() int { return int(p) - format.HeaderSize }

func ptrAt(recordOff int) Ptr { return Ptr(recordOff + format.HeaderSize) }

// Options configures an Allocator. A nil *Options uses the zero value.
type Options struct {
	// Logger receives debug records for growth and shrink and warnings for
	// rejected frees. Nil discards everything.
	Logger *slog.Logger

	// Registerer registers the allocator's metrics. Nil leaves them
	// unregistered.
	Registerer prometheus.Registerer

	// Dirty is told about every header and new block the allocator writes.
	Dirty dirty.DirtyTracker

	// Validate makes Free check the record canary, chain membership and the
	// free flag before releasing.
	Validate bool

	// RoundSizes rounds every request up to a multiple of 16 bytes so every
	// payload offset stays 16-byte aligned.
	RoundSizes bool
}

// Block describes one record of the chain.
type Block struct {
	Ptr    Ptr  // Payload handle
	Offset int  // Arena offset of the record header
	Size   int  // Payload bytes
	Free   bool // Available for reuse
}

// Stats is a point-in-time view of allocator activity.
type Stats struct {
	Acquires        int64 // Successful acquisitions
	Reused          int64 // Acquisitions satisfied from a free record
	Grown           int64 // Acquisitions that grew the arena
	AcquireFailures int64 // Acquisitions refused because the arena could not grow
	Releases        int64 // Successful releases
	Shrunk          int64 // Releases that shrank the arena
	Freed           int64 // Releases that only marked the record free
	ShrinkFailures  int64 // Tail releases whose shrink failed (block kept, marked free)
	Rejected        int64 // Frees refused by validation

	Records     int // Records in the chain
	FreeRecords int // Records marked free
	ArenaBytes  int // Current arena break
	InUseBytes  int // Payload bytes handed to callers
}
