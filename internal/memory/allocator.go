package memory

import "errors"

// ErrAllocFailed is returned when an allocator cannot satisfy a request.
var ErrAllocFailed = errors.New("memory allocation failed")

// Allocator hands out raw byte regions for one memory space.
type Allocator interface {
	// Alloc returns a region of exactly size bytes.
	Alloc(size int) ([]byte, error)

	// Free returns a region obtained from Alloc. The region must not be used afterwards.
	Free(b []byte)
}

// Syncer is implemented by allocators whose regions have a twin outside host-visible memory.
// Flush pushes the host-visible bytes to the twin, Load pulls them back.
type Syncer interface {
	Flush(b []byte) error
	Load(b []byte) error
}

// heapAllocator serves regions from the Go heap.
type heapAllocator struct{}

// HeapAllocator returns an allocator backed by ordinary Go memory.
func HeapAllocator() Allocator {
	return heapAllocator{}
}

func (heapAllocator) Alloc(size int) ([]byte, error) {
	if size < 0 {
		return nil, ErrAllocFailed
	}
	return make([]byte, size), nil
}

func (heapAllocator) Free([]byte) {}
