package brk

// Failed is the previous-break value returned alongside an error.
const Failed = -1

// Break is the grow/shrink/query primitive over a single arena.
type Break interface {
	// Sbrk moves the break by delta bytes and returns the break as it was
	// before the call. A zero delta only reports the current break. On
	// failure it returns Failed and an error, and the break is unchanged.
	Sbrk(delta int) (int, error)

	// Bytes returns the arena memory from offset 0 up to the current break.
	Bytes() []byte

	// Limit returns the reserved capacity in bytes.
	Limit() int

	// Close releases the reservation. Subsequent calls return ErrClosed.
	Close() error
}
