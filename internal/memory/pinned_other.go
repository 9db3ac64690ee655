//go:build !unix

package memory

// PinnedAllocator returns the page-locked host allocator for this platform.
// Platforms without mmap/mlock fall back to heap memory.
func PinnedAllocator() Allocator {
	return heapAllocator{}
}
