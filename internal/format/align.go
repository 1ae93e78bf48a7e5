package format

// Align16 returns n aligned up to the next 16-byte boundary.
//
// Example:
//
//	Align16(1)  = 16
//	Align16(16) = 16
//	Align16(17) = 32
func Align16(n int) int {
	return (n + AlignmentMask) & ^AlignmentMask
}

// AlignPage returns n aligned up to a multiple of pageSize, which must be a
// power of two.
func AlignPage(n, pageSize int) int {
	mask := pageSize - 1
	return (n + mask) & ^mask
}
