// Package brk provides the arena boundary primitive used by the heapkit
// allocator.
//
// # Overview
//
// A Break owns one contiguous region of memory that can only grow or shrink
// at its end, the classic program break. The allocator never touches memory
// past the current break and never asks a Break to move anything but the end.
//
// # Semantics
//
//	prev, err := b.Sbrk(0)    // query: current break, no side effect
//	prev, err := b.Sbrk(n)    // grow by n bytes, prev is the start of the new span
//	prev, err := b.Sbrk(-n)   // shrink by n bytes
//
// Growth past the reservation fails with ErrNoMemory and leaves the break
// where it was. Every implementation reserves its full capacity up front, so
// the slice returned by Bytes never moves while the Break is open; a payload
// slice handed out by the allocator stays valid until its block is released.
//
// # Implementations
//
//   - Mem: a heap-allocated []byte reservation. Portable, used by tests.
//   - Mapped: an anonymous PROT_NONE mapping whose pages are committed with
//     mprotect on growth and returned with madvise on shrink (linux, darwin;
//     other platforms fall back to Mem).
//   - File: a MAP_SHARED file mapping grown and shrunk with ftruncate, so the
//     arena survives the process (linux, darwin).
//
// # Thread Safety
//
// Break implementations are not safe for concurrent use. The allocator holds
// its lock across every Sbrk call.
package brk
