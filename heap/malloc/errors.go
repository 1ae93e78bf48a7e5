package malloc

import "errors"

var (
	// ErrZeroSize indicates a request for zero (or negative) bytes.
	ErrZeroSize = errors.New("malloc: zero-size request")

	// ErrNoMemory indicates the arena could not grow to satisfy a request.
	ErrNoMemory = errors.New("malloc: arena exhausted")

	// ErrTooLarge indicates a request whose header plus payload overflows int.
	ErrTooLarge = errors.New("malloc: request too large")

	// ErrBadPtr indicates a handle that does not name a block of this arena.
	ErrBadPtr = errors.New("malloc: bad pointer")

	// ErrDoubleFree indicates release of a block that is already free.
	ErrDoubleFree = errors.New("malloc: double free")

	// ErrClosed indicates use of an Allocator after Close.
	ErrClosed = errors.New("malloc: allocator closed")
)
