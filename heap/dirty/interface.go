package dirty

// DirtyTracker is the minimal interface for tracking dirty (modified) byte ranges.
// Implementations track which regions of an arena have been modified and need
// to be flushed to its backing file.
//
// This interface is intended for components that only need to notify about
// dirty regions but don't manage flushing themselves (e.g., the allocator).
type DirtyTracker interface {
	// Add marks a byte range as dirty.
	// off is the arena offset, length is the number of bytes.
	Add(off, length int)
}

// Syncer persists a range of arena memory. brk.File implements it.
type Syncer interface {
	SyncRange(off, n int) error
}
