//go:build linux

package brk

import "golang.org/x/sys/unix"

// msyncRange flushes mem[start:end].
//
// On Linux msync() accepts any page-aligned sub-slice of the mapping.
func msyncRange(mem []byte, start, end int) error {
	return unix.Msync(mem[start:end], unix.MS_SYNC)
}
