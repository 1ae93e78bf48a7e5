package format

import "errors"

var (
	// ErrTruncated indicates the buffer lacked the bytes required for a header.
	ErrTruncated = errors.New("format: truncated buffer")
	// ErrBadCanary indicates a header whose canary word does not match HeaderCanary.
	ErrBadCanary = errors.New("format: header canary mismatch")
)
