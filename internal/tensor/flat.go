package tensor

import (
	"fmt"

	"github.com/born-ml/feed/internal/device"
	"github.com/born-ml/feed/internal/memory"
)

// FlatBlock is a single storage region holding all samples of a batch back to
// back, with per-sample shapes, offsets and metadata.
type FlatBlock struct {
	storage *Storage
	shapes  ListShape
	offsets []int // byte offset of each sample
	nbytes  int
	dtype   DataType
	layout  Layout
	space   memory.Space
	order   device.Order
	meta    []Meta
	gen     uint64 // bumped whenever storage or shapes change
	mem     *memory.Manager
}

// NewFlatBlock returns an empty block that allocates in space.
func NewFlatBlock(space memory.Space) *FlatBlock {
	return &FlatBlock{space: space, order: device.HostOrder()}
}

// WrapBlock adopts caller-owned memory laid out as shapes of type dt.
// No copy is made; the caller keeps data alive while the block is in use.
func WrapBlock(data []byte, shapes ListShape, dt DataType, space memory.Space) (*FlatBlock, error) {
	if !dt.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidType, dt)
	}
	if err := shapes.Validate(); err != nil {
		return nil, err
	}
	need := shapes.TotalVolume() * dt.Size()
	if len(data) < need {
		return nil, fmt.Errorf("%w: have %d bytes, need %d", ErrBufferTooSmall, len(data), need)
	}
	b := NewFlatBlock(space)
	b.storage = WrapStorage(data, space)
	b.setShapes(shapes, dt)
	return b, nil
}

// SetMemory selects the memory manager used for allocations.
func (b *FlatBlock) SetMemory(mgr *memory.Manager) { b.mem = mgr }

// NumSamples returns the number of samples in the block.
func (b *FlatBlock) NumSamples() int { return len(b.shapes) }

// Shape returns a copy of the per-sample shapes.
func (b *FlatBlock) Shape() ListShape { return b.shapes.Clone() }

// SampleShape returns the shape of sample i.
func (b *FlatBlock) SampleShape(i int) Shape { return b.shapes[i] }

// Type returns the element type.
func (b *FlatBlock) Type() DataType { return b.dtype }

// Layout returns the layout tag.
func (b *FlatBlock) Layout() Layout { return b.layout }

// SetLayout sets the layout tag.
func (b *FlatBlock) SetLayout(l Layout) { b.layout = l }

// Space returns the memory space.
func (b *FlatBlock) Space() memory.Space { return b.space }

// IsPinned reports whether the block lives in page-locked host memory.
func (b *FlatBlock) IsPinned() bool { return b.space.IsPinned() }

// Order returns the order the block's last write was issued on.
func (b *FlatBlock) Order() device.Order { return b.order }

// SetOrder records the order subsequent readers must synchronize with.
func (b *FlatBlock) SetOrder(o device.Order) { b.order = o }

// Storage returns the backing storage, nil when nothing is allocated.
func (b *FlatBlock) Storage() *Storage { return b.storage }

// NBytes returns the number of bytes described by shapes and type.
func (b *FlatBlock) NBytes() int { return b.nbytes }

// Capacity returns the allocated size in bytes.
func (b *FlatBlock) Capacity() int {
	if b.storage == nil {
		return 0
	}
	return b.storage.Len()
}

// Bytes returns the packed sample data.
func (b *FlatBlock) Bytes() []byte {
	if b.storage == nil {
		return nil
	}
	return b.storage.data[:b.nbytes]
}

// SampleBytes returns the window of sample i.
func (b *FlatBlock) SampleBytes(i int) []byte {
	off := b.offsets[i]
	n := b.shapes[i].Volume() * b.dtype.Size()
	return b.storage.data[off : off+n : off+n]
}

// Meta returns the metadata of sample i.
func (b *FlatBlock) Meta(i int) Meta { return b.meta[i] }

// SetMeta replaces the metadata of sample i.
func (b *FlatBlock) SetMeta(i int, m Meta) { b.meta[i] = m.Clone() }

// MetaTable returns a copy of the metadata side-table.
func (b *FlatBlock) MetaTable() MetaTable {
	t := make(MetaTable, len(b.meta))
	for i, m := range b.meta {
		t[i] = m.Clone()
	}
	return t
}

// Resize sets per-sample shapes and type. The block reallocates when the
// region is too small or shared with another holder; contents are not kept
// across a reallocation.
func (b *FlatBlock) Resize(shapes ListShape, dt DataType) error {
	if !dt.IsValid() {
		return fmt.Errorf("%w: %s", ErrInvalidType, dt)
	}
	if err := shapes.Validate(); err != nil {
		return err
	}
	if err := b.ensure(shapes.TotalVolume() * dt.Size()); err != nil {
		return err
	}
	b.setShapes(shapes, dt)
	return nil
}

// SetType changes the element type, reallocating if the byte size grows.
func (b *FlatBlock) SetType(dt DataType) error {
	if !dt.IsValid() {
		return fmt.Errorf("%w: %s", ErrInvalidType, dt)
	}
	if dt == b.dtype {
		return nil
	}
	if len(b.shapes) == 0 {
		b.dtype = dt
		b.gen++
		return nil
	}
	return b.Resize(b.shapes, dt)
}

// Reserve makes sure the block can hold nbytes without reallocating.
func (b *FlatBlock) Reserve(nbytes int) error {
	if nbytes < 0 {
		return fmt.Errorf("%w: reserve %d bytes", ErrInvalidShape, nbytes)
	}
	return b.ensure(max(nbytes, b.nbytes))
}

// SetPinned moves a host block between pageable and page-locked memory.
// A block holding data of the other kind is reset.
func (b *FlatBlock) SetPinned(pinned bool) {
	if b.space.IsDevice() || b.space.IsPinned() == pinned {
		return
	}
	b.SetSpace(memory.HostSpace(pinned))
}

// SetSpace moves the block to another memory space, resetting held data.
func (b *FlatBlock) SetSpace(space memory.Space) {
	if b.space == space {
		return
	}
	b.Reset()
	b.space = space
}

// Reset releases the storage and clears shapes, type, layout and metadata.
// Memory space and order are kept.
func (b *FlatBlock) Reset() {
	if b.storage != nil {
		b.storage.Release()
		b.storage = nil
	}
	b.shapes = nil
	b.offsets = nil
	b.nbytes = 0
	b.dtype = NoType
	b.layout = ""
	b.meta = nil
	b.gen++
}

// ShareData makes b alias src's storage and copies its shapes, type, layout,
// space, order and metadata.
func (b *FlatBlock) ShareData(src *FlatBlock) {
	if b == src {
		return
	}
	if src.storage != nil {
		src.storage.Retain()
	}
	if b.storage != nil {
		b.storage.Release()
	}
	b.storage = src.storage
	b.shapes = src.shapes.Clone()
	b.offsets = append([]int(nil), src.offsets...)
	b.nbytes = src.nbytes
	b.dtype = src.dtype
	b.layout = src.layout
	b.space = src.space
	b.order = src.order
	b.meta = src.MetaTable()
	b.gen++
}

// Copy copies src into b's own storage in b's memory space. With a device
// order the copy is queued on that stream and Copy returns before it runs;
// with a host order it has completed on return.
func (b *FlatBlock) Copy(src *FlatBlock, order device.Order, opts ...CopyOption) error {
	if b == src {
		return nil
	}
	if err := b.Resize(src.shapes, src.dtype); err != nil {
		return err
	}
	b.layout = src.layout
	b.meta = src.MetaTable()
	if b.nbytes == 0 {
		return nil
	}
	pieces := []piece{{dst: b.Bytes(), src: src.Bytes(), owner: src.storage}}
	if err := transfer(order, b.storage, pieces, opts); err != nil {
		return err
	}
	b.order = order
	return nil
}

// CopyBatch gathers every sample of src into b. A contiguous source is copied
// as one region; a scattered one piece by piece.
func (b *FlatBlock) CopyBatch(src *Batch, order device.Order, opts ...CopyOption) error {
	if src.Size() == 0 {
		b.setShapes(nil, src.Type())
		b.layout = src.Layout()
		return nil
	}
	if src.IsContiguous() {
		block, err := src.AsFlatBlock(true)
		if err != nil {
			return err
		}
		return b.Copy(block, order, opts...)
	}
	if err := b.Resize(src.Shape(), src.Type()); err != nil {
		return err
	}
	b.layout = src.Layout()
	pieces := make([]piece, 0, src.Size())
	for i := 0; i < src.Size(); i++ {
		s := src.samples[i]
		b.meta[i] = s.meta.Clone()
		if s.NBytes() == 0 {
			continue
		}
		if s.h == nil {
			return fmt.Errorf("copy batch: sample %d has no data", i)
		}
		pieces = append(pieces, piece{dst: b.SampleBytes(i), src: s.Bytes(), owner: s.h.storage})
	}
	if len(pieces) == 0 {
		return nil
	}
	if err := transfer(order, b.storage, pieces, opts); err != nil {
		return err
	}
	b.order = order
	return nil
}

// ensure makes the block own a writable region of at least nbytes.
func (b *FlatBlock) ensure(nbytes int) error {
	if b.storage != nil && b.storage.writable() && b.storage.Len() >= nbytes {
		return nil
	}
	st, err := allocStorage(b.mem, b.space, nbytes)
	if err != nil {
		return err
	}
	if b.storage != nil {
		b.storage.Release()
	}
	b.storage = st
	b.gen++
	return nil
}

func (b *FlatBlock) setShapes(shapes ListShape, dt DataType) {
	b.shapes = shapes.Clone()
	b.dtype = dt
	b.offsets = make([]int, len(shapes))
	off := 0
	for i, s := range shapes {
		b.offsets[i] = off
		off += s.Volume() * dt.Size()
	}
	b.nbytes = off
	if len(b.meta) > len(shapes) {
		b.meta = b.meta[:len(shapes)]
	}
	for len(b.meta) < len(shapes) {
		b.meta = append(b.meta, Meta{})
	}
	b.gen++
}
