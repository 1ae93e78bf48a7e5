// Package format describes the inline block header that precedes every
// payload carved from a heapkit arena. Higher-level packages decode records
// through these helpers so the byte layout lives in one place.
package format

const (
	// HeaderSize is the footprint of a block header. Payloads begin exactly
	// HeaderSize bytes after the header offset.
	//
	// Layout (little-endian):
	//
	//	Offset  Size  Description
	//	0x00    8     Payload size in bytes (header excluded).
	//	0x08    8     Arena offset of the next header, NoNext when last.
	//	0x10    4     Flags. Bit 0 set => block is free.
	//	0x14    4     Canary (HeaderCanary).
	//	0x18    8     Padding to Alignment.
	HeaderSize = 0x20

	// SizeOffset is the offset of the payload size field.
	SizeOffset = 0x00

	// NextOffset is the offset of the next-header link.
	NextOffset = 0x08

	// FlagsOffset is the offset of the flags word.
	FlagsOffset = 0x10

	// CanaryOffset is the offset of the canary word.
	CanaryOffset = 0x14

	// FlagFree marks a block that is not handed to any caller.
	FlagFree = 1 << 0

	// HeaderCanary is written into every header on creation ("HAPK").
	HeaderCanary = 0x4B504148

	// NoNext is the link value of the last header in the chain.
	NoNext = ^uint64(0)

	// Alignment is the guaranteed alignment of HeaderSize and of rounded
	// payload sizes.
	Alignment = 16

	// AlignmentMask is Alignment - 1.
	AlignmentMask = Alignment - 1
)
