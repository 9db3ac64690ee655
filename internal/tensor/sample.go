package tensor

import (
	"fmt"

	"github.com/born-ml/feed/internal/memory"
)

// Sample is one element of a batch: a data handle plus shape, element type,
// layout, memory space and metadata.
//
// A Sample either owns its allocation or shares data held elsewhere (another
// sample, external memory, or a window of a batch's flat block). Invariant:
// when data is present its window holds at least Shape().Volume()*Type().Size()
// bytes.
type Sample struct {
	h      *handle
	owned  bool
	shape  Shape
	dtype  DataType
	layout Layout
	space  memory.Space
	meta   Meta
	mem    *memory.Manager
}

// NewSample returns an empty sample that allocates in space.
func NewSample(space memory.Space) *Sample {
	return &Sample{space: space}
}

// NewSampleFrom wraps caller-owned memory without copying. The caller must
// keep data alive and unmodified while the sample or anything sharing it is in use.
func NewSampleFrom(data []byte, shape Shape, dt DataType, space memory.Space) (*Sample, error) {
	if !dt.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidType, dt)
	}
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	need := shape.Volume() * dt.Size()
	if len(data) < need {
		return nil, fmt.Errorf("%w: have %d bytes, need %d", ErrBufferTooSmall, len(data), need)
	}
	st := WrapStorage(data, space)
	return &Sample{
		h:     newHandle(st, data[:need]),
		shape: shape.Clone(),
		dtype: dt,
		space: space,
	}, nil
}

// SetMemory selects the memory manager used for allocations.
func (s *Sample) SetMemory(mgr *memory.Manager) { s.mem = mgr }

// Shape returns the sample shape.
func (s *Sample) Shape() Shape { return s.shape }

// Type returns the element type.
func (s *Sample) Type() DataType { return s.dtype }

// Layout returns the layout tag.
func (s *Sample) Layout() Layout { return s.layout }

// SetLayout sets the layout tag.
func (s *Sample) SetLayout(l Layout) { s.layout = l }

// Space returns the memory space.
func (s *Sample) Space() memory.Space { return s.space }

// IsPinned reports whether the sample lives in page-locked host memory.
func (s *Sample) IsPinned() bool { return s.space.IsPinned() }

// Meta returns the sample metadata.
func (s *Sample) Meta() Meta { return s.meta }

// SetMeta replaces the sample metadata.
func (s *Sample) SetMeta(m Meta) { s.meta = m.Clone() }

// HasData reports whether the sample holds a data handle.
func (s *Sample) HasData() bool { return s.h != nil }

// SharesData reports whether the sample's data is held elsewhere.
func (s *Sample) SharesData() bool { return s.h != nil && !s.owned }

// Storage returns the storage backing the sample, nil when empty.
func (s *Sample) Storage() *Storage {
	if s.h == nil {
		return nil
	}
	return s.h.storage
}

// NBytes returns the number of bytes described by shape and type.
func (s *Sample) NBytes() int {
	if s.shape == nil || !s.dtype.IsValid() {
		return 0
	}
	return s.shape.Volume() * s.dtype.Size()
}

// Capacity returns the number of bytes the sample can hold without reallocating.
func (s *Sample) Capacity() int {
	if s.h == nil {
		return 0
	}
	if s.owned {
		return s.h.storage.Len()
	}
	return len(s.h.data)
}

// Bytes returns the sample data, nil when empty.
func (s *Sample) Bytes() []byte {
	if s.h == nil {
		return nil
	}
	return s.h.data[:s.NBytes()]
}

// Resize sets shape and type, reallocating when the current window is too small
// or shared. Shared data is never written through: a sample that shares data
// detaches into a fresh allocation.
func (s *Sample) Resize(shape Shape, dt DataType) error {
	if !dt.IsValid() {
		return fmt.Errorf("%w: %s", ErrInvalidType, dt)
	}
	if err := shape.Validate(); err != nil {
		return err
	}
	if err := s.ensure(shape.Volume() * dt.Size()); err != nil {
		return err
	}
	s.shape = shape.Clone()
	s.dtype = dt
	return nil
}

// Reserve makes sure the sample can hold nbytes without reallocating.
func (s *Sample) Reserve(nbytes int) error {
	if nbytes < 0 {
		return fmt.Errorf("%w: reserve %d bytes", ErrInvalidShape, nbytes)
	}
	nbytes = max(nbytes, s.NBytes())
	if s.owned && s.h.storage.writable() && s.h.storage.Len() >= nbytes {
		return nil
	}
	st, err := allocStorage(s.mem, s.space, nbytes)
	if err != nil {
		return err
	}
	s.drop()
	s.h = newHandle(st, st.data[:s.NBytes()])
	s.owned = true
	return nil
}

// SetType changes the element type. A sample that shares data keeps the
// window only when the byte size is unchanged.
func (s *Sample) SetType(dt DataType) error {
	if !dt.IsValid() {
		return fmt.Errorf("%w: %s", ErrInvalidType, dt)
	}
	if dt == s.dtype {
		return nil
	}
	if s.h == nil || s.shape == nil {
		s.dtype = dt
		return nil
	}
	if s.shape.Volume()*dt.Size() == s.NBytes() {
		s.dtype = dt
		return nil
	}
	return s.Resize(s.shape, dt)
}

// SetPinned moves a host sample between pageable and page-locked memory.
// Held data of the other kind is reset.
func (s *Sample) SetPinned(pinned bool) {
	if s.space.IsDevice() || s.space.IsPinned() == pinned {
		return
	}
	s.Reset()
	s.space = memory.HostSpace(pinned)
}

// SetSpace moves the sample to another memory space, resetting held data.
func (s *Sample) SetSpace(space memory.Space) {
	if s.space == space {
		return
	}
	s.Reset()
	s.space = space
}

// ShareData makes s alias other's data and copies its shape, type, layout,
// space and metadata.
func (s *Sample) ShareData(other *Sample) {
	if s == other {
		return
	}
	s.drop()
	if other.h != nil {
		s.h = other.h.share()
	}
	s.shape = other.shape.Clone()
	s.dtype = other.dtype
	s.layout = other.layout
	s.space = other.space
	s.meta = other.meta.Clone()
}

// Share returns an independent sample aliasing s. The returned sample keeps
// the data alive until it is Reset, even if s or its batch is reset first.
func (s *Sample) Share() *Sample {
	c := &Sample{mem: s.mem}
	c.ShareData(s)
	return c
}

// Reset drops the data handle, shape, type, layout and metadata.
// The memory space is kept.
func (s *Sample) Reset() {
	s.drop()
	s.shape = nil
	s.dtype = NoType
	s.layout = ""
	s.meta = Meta{}
}

// Release drops the data handle of a sample obtained from Share or ShareSample.
func (s *Sample) Release() { s.Reset() }

// ensure makes the sample own a writable window of nbytes.
func (s *Sample) ensure(nbytes int) error {
	if s.owned && s.h.storage.writable() && s.h.storage.Len() >= nbytes {
		s.h.data = s.h.storage.data[:nbytes]
		return nil
	}
	st, err := allocStorage(s.mem, s.space, nbytes)
	if err != nil {
		return err
	}
	s.drop()
	s.h = newHandle(st, st.data[:nbytes])
	s.owned = true
	return nil
}

func (s *Sample) drop() {
	if s.h != nil {
		s.h.release()
		s.h = nil
	}
	s.owned = false
}

// isViewOf reports whether s is a live view of b's current flat block.
func (s *Sample) isViewOf(b *Batch, epoch uint32) bool {
	return s.h != nil && s.h.viewOf == b && s.h.epoch == epoch
}
