// Package malloc is a first-fit dynamic memory allocator over a single
// growable arena.
//
// # Overview
//
// An Allocator hands out variable-sized regions of one arena (a brk.Break)
// and takes them back. Every region is preceded by an inline block record;
// the records form a forward chain in carve order (package ledger).
//
//	a, err := malloc.New(brk.NewMem(1<<20), nil)
//	if err != nil {
//	    return err
//	}
//
//	p := a.Acquire(64)
//	if p == malloc.Null {
//	    // arena exhausted
//	}
//	copy(a.Bytes(p), payload)
//	a.Release(p)
//
// # Acquire
//
// Acquire scans the chain for the first free record whose payload is at least
// the requested size and hands it out unchanged (no splitting). When none
// fits, the arena grows by exactly HeaderSize+size bytes and a new record is
// appended. Growth failure returns Null and leaves the allocator untouched.
//
// # Release
//
// Releasing the block that ends at the arena break destroys its record and
// shrinks the arena by HeaderSize+size. Any other block is only marked free
// and stays in the chain for reuse. Freed blocks are never merged.
//
// # Two Surfaces
//
// Acquire/Release follow the minimal contract: failures come back as Null,
// releasing a foreign or already-released handle is undefined. Alloc/Free run
// the same engine but report why an operation failed, and with
// Options.Validate they reject bad and double releases.
//
// # Thread Safety
//
// Allocator instances are safe for concurrent use. One mutex guards the chain
// and the arena break for the whole of each operation, including the break
// call.
package malloc
