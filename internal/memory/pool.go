package memory

import "sync"

// SizeClass represents different region size categories for pooling.
type SizeClass int

const (
	// SmallRegion for regions < 4KB.
	SmallRegion SizeClass = iota
	// MediumRegion for regions 4KB-1MB.
	MediumRegion
	// LargeRegion for regions > 1MB.
	LargeRegion
)

const (
	smallThreshold  = 4 * 1024    // 4KB
	mediumThreshold = 1024 * 1024 // 1MB
	maxPoolSize     = 100         // Max regions per category
)

// Stats describes pool usage.
type Stats struct {
	Allocated uint64 // regions obtained from the allocator
	Released  uint64 // regions handed back to the pool
	Hits      uint64 // acquisitions served from the pool
	Misses    uint64 // acquisitions that needed a fresh region
	Pooled    int    // regions currently idle in the pool
}

// Pool manages region reuse for one memory space to reduce allocation overhead.
// Regions are categorized by capacity.
type Pool struct {
	space Space
	alloc Allocator

	small  [][]byte
	medium [][]byte
	large  [][]byte

	mu    sync.Mutex
	stats Stats
}

// NewPool creates a pool serving space from alloc.
func NewPool(space Space, alloc Allocator) *Pool {
	return &Pool{
		space:  space,
		alloc:  alloc,
		small:  make([][]byte, 0, maxPoolSize),
		medium: make([][]byte, 0, maxPoolSize),
		large:  make([][]byte, 0, maxPoolSize),
	}
}

// Space returns the memory space the pool serves.
func (p *Pool) Space() Space { return p.space }

// Acquire returns a region of exactly size bytes, reusing an idle one when
// its capacity suffices. Contents are not cleared.
func (p *Pool) Acquire(size int) ([]byte, error) {
	if size == 0 {
		return []byte{}, nil
	}

	p.mu.Lock()
	category := categorize(size)
	regions := p.regions(category)
	for i, r := range regions {
		if cap(r) >= size {
			p.remove(category, i)
			p.stats.Hits++
			p.mu.Unlock()
			return r[:size], nil
		}
	}
	p.stats.Misses++
	p.stats.Allocated++
	p.mu.Unlock()

	return p.alloc.Alloc(size)
}

// Release returns a region to the pool for reuse.
// If the category is full, the region goes straight back to the allocator.
func (p *Pool) Release(b []byte) {
	if cap(b) == 0 {
		return
	}
	b = b[:cap(b)]

	p.mu.Lock()
	p.stats.Released++
	category := categorize(cap(b))
	if len(p.regions(category)) >= maxPoolSize {
		p.mu.Unlock()
		p.alloc.Free(b)
		return
	}
	p.add(category, b)
	p.mu.Unlock()
}

// Clear frees all idle regions.
func (p *Pool) Clear() {
	p.mu.Lock()
	idle := make([][]byte, 0, len(p.small)+len(p.medium)+len(p.large))
	idle = append(idle, p.small...)
	idle = append(idle, p.medium...)
	idle = append(idle, p.large...)
	p.small = p.small[:0]
	p.medium = p.medium[:0]
	p.large = p.large[:0]
	p.mu.Unlock()

	for _, r := range idle {
		p.alloc.Free(r)
	}
}

// Stats returns statistics about pool usage.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.stats
	s.Pooled = len(p.small) + len(p.medium) + len(p.large)
	return s
}

// Flush pushes b to its device twin when the allocator keeps one.
func (p *Pool) Flush(b []byte) error {
	if s, ok := p.alloc.(Syncer); ok && cap(b) > 0 {
		return s.Flush(b)
	}
	return nil
}

// Load refreshes b from its device twin when the allocator keeps one.
func (p *Pool) Load(b []byte) error {
	if s, ok := p.alloc.(Syncer); ok && cap(b) > 0 {
		return s.Load(b)
	}
	return nil
}

// categorize determines the size category for a region.
func categorize(size int) SizeClass {
	if size < smallThreshold {
		return SmallRegion
	}
	if size < mediumThreshold {
		return MediumRegion
	}
	return LargeRegion
}

// regions returns the idle list for a given category (must hold mu).
func (p *Pool) regions(category SizeClass) [][]byte {
	switch category {
	case SmallRegion:
		return p.small
	case MediumRegion:
		return p.medium
	default:
		return p.large
	}
}

// add appends a region to the appropriate category (must hold mu).
func (p *Pool) add(category SizeClass, b []byte) {
	switch category {
	case SmallRegion:
		p.small = append(p.small, b)
	case MediumRegion:
		p.medium = append(p.medium, b)
	default:
		p.large = append(p.large, b)
	}
}

// remove removes the region at index i from the appropriate category (must hold mu).
func (p *Pool) remove(category SizeClass, i int) {
	switch category {
	case SmallRegion:
		p.small = append(p.small[:i], p.small[i+1:]...)
	case MediumRegion:
		p.medium = append(p.medium[:i], p.medium[i+1:]...)
	default:
		p.large = append(p.large[:i], p.large[i+1:]...)
	}
}
