//go:build darwin

package brk

import "golang.org/x/sys/unix"

// msyncRange flushes the mapping up to end.
//
// On macOS msync() must start at the address returned by mmap(), so the
// prefix is flushed whole. The kernel only writes pages that are dirty.
func msyncRange(mem []byte, _, end int) error {
	return unix.Msync(mem[:end], unix.MS_SYNC)
}
