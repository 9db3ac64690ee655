package tensor

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/born-ml/feed/internal/memory"
)

// Storage is a reference-counted memory region shared by samples, views and
// flat blocks. The region returns to its memory pool when the last reference
// is released; wrapped external memory is never returned.
type Storage struct {
	data  []byte
	refs  atomic.Int32
	views atomic.Int32 // references held by batch views, included in refs
	space memory.Space
	pool  *memory.Pool // nil for external memory
	mu    sync.Mutex
}

// allocStorage acquires size bytes from the pool serving space.
func allocStorage(mgr *memory.Manager, space memory.Space, size int) (*Storage, error) {
	if mgr == nil {
		mgr = memory.DefaultManager()
	}
	p := mgr.Pool(space)
	data, err := p.Acquire(size)
	if err != nil {
		return nil, fmt.Errorf("allocate %d bytes in %s: %w", size, space, err)
	}
	st := &Storage{data: data, space: space, pool: p}
	st.refs.Store(1)
	return st, nil
}

// WrapStorage adopts caller-owned memory with refCount = 1. The caller keeps
// ownership of data; releasing the storage only drops the reference.
func WrapStorage(data []byte, space memory.Space) *Storage {
	st := &Storage{data: data, space: space}
	st.refs.Store(1)
	return st
}

// Retain increments the reference count.
func (s *Storage) Retain() {
	s.refs.Add(1)
}

// Release decrements the reference count and returns the region to its pool
// when it reaches 0.
func (s *Storage) Release() {
	if s.refs.Add(-1) != 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pool != nil && s.data != nil {
		s.pool.Release(s.data)
	}
	s.data = nil
}

// Unique reports whether this is the only reference (enables in-place reuse).
func (s *Storage) Unique() bool {
	return s.refs.Load() == 1
}

// Refs returns the current reference count.
func (s *Storage) Refs() int {
	return int(s.refs.Load())
}

// External reports whether the storage wraps caller-owned memory.
func (s *Storage) External() bool {
	return s.pool == nil
}

// Bytes returns the whole region.
func (s *Storage) Bytes() []byte { return s.data }

// Len returns the region size in bytes.
func (s *Storage) Len() int { return len(s.data) }

// Space returns the memory space of the region.
func (s *Storage) Space() memory.Space { return s.space }

// writable reports whether the holder may reuse the region in place: apart
// from batch views, which are rebound after every resize, it holds the only
// reference.
func (s *Storage) writable() bool {
	return s.pool != nil && s.refs.Load()-s.views.Load() == 1
}

// flush publishes host writes to the device twin of b, if any.
func (s *Storage) flush(b []byte) error {
	if s.pool == nil || !s.space.IsDevice() {
		return nil
	}
	return s.pool.Flush(b)
}

// load refreshes the host view of b from its device twin, if any.
func (s *Storage) load(b []byte) error {
	if s.pool == nil || !s.space.IsDevice() {
		return nil
	}
	return s.pool.Load(b)
}

// handle is one holder's window into a storage region. Each handle owns
// exactly one storage reference. onRelease runs once when the handle drops.
type handle struct {
	storage   *Storage
	data      []byte
	onRelease func()

	// Set for views bound by a batch.
	viewOf *Batch
	epoch  uint32
}

func newHandle(st *Storage, data []byte) *handle {
	return &handle{storage: st, data: data}
}

// newViewHandle retains st on behalf of a batch view.
func newViewHandle(st *Storage, data []byte, b *Batch, epoch uint32) *handle {
	st.Retain()
	st.views.Add(1)
	return &handle{storage: st, data: data, viewOf: b, epoch: epoch}
}

// share returns a new handle over the same window holding its own reference.
func (h *handle) share() *handle {
	h.storage.Retain()
	return newHandle(h.storage, h.data)
}

func (h *handle) release() {
	if h.onRelease != nil {
		h.onRelease()
		h.onRelease = nil
	}
	if h.viewOf != nil {
		h.storage.views.Add(-1)
	}
	h.storage.Release()
}
