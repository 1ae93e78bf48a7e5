package brk

import "errors"

var (
	// ErrNoMemory indicates the reservation cannot hold the requested growth.
	ErrNoMemory = errors.New("brk: out of memory")

	// ErrShrink indicates a shrink request that could not be honoured.
	ErrShrink = errors.New("brk: shrink failed")

	// ErrClosed indicates use of a Break after Close.
	ErrClosed = errors.New("brk: break closed")

	// ErrUnsupported indicates the backing is not available on this platform.
	ErrUnsupported = errors.New("brk: unsupported on this platform")
)
