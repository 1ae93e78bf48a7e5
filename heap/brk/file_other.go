//go:build !linux && !darwin

package brk

// File is unavailable on this platform; OpenFile always fails.
type File struct{}

// OpenFile returns ErrUnsupported.
func OpenFile(string, int) (*File, error) { return nil, ErrUnsupported }

// Sbrk implements Break.
func (*File) Sbrk(int) (int, error) { return Failed, ErrUnsupported }

// Bytes implements Break.
func (*File) Bytes() []byte { return nil }

// Limit implements Break.
func (*File) Limit() int { return 0 }

// Path returns the empty string.
func (*File) Path() string { return "" }

// SyncRange returns ErrUnsupported.
func (*File) SyncRange(int, int) error { return ErrUnsupported }

// Sync returns ErrUnsupported.
func (*File) Sync() error { return ErrUnsupported }

// Close returns ErrUnsupported.
func (*File) Close() error { return ErrUnsupported }

var _ Break = (*File)(nil)
