// Package ledger implements the chain of block records that describes every
// block carved from a heapkit arena.
//
// # Layout
//
// Each record is an inline header (see internal/format) written at the start
// of the block it describes, immediately followed by the block's payload.
// Records are linked forward by arena offset in the order they were carved,
// and the payload of one record always ends where the next header begins:
//
//	0x00            0x20        0x20+s0         0x40+s0
//	+---------------+-----------+---------------+-----------+-- ... --+
//	| header r0     | payload 0 | header r1     | payload 1 |   ...   | <- break
//	| next = r1     | s0 bytes  | next = none   | s1 bytes  |
//	+---------------+-----------+---------------+-----------+-- ... --+
//
// The Ledger itself only keeps the offsets of the first and last records and
// counters; everything else lives in the arena.
//
// # Policy
//
// FindFree is first-fit: the first free record large enough wins, and it is
// never split. ExciseTail removes the last record and finds its predecessor
// with a second forward scan, since records carry no back links.
//
// # Thread Safety
//
// A Ledger is not safe for concurrent use. The allocator serialises access
// with its own lock.
package ledger
