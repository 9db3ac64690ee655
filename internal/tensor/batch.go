package tensor

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/born-ml/feed/internal/device"
	"github.com/born-ml/feed/internal/memory"
)

// State is the representation a batch currently uses.
type State int

// Batch representations.
const (
	Scattered  State = iota // samples own or share independent regions
	Contiguous              // samples are views into one flat block
)

// String returns a human-readable state name.
func (s State) String() string {
	if s == Contiguous {
		return "contiguous"
	}
	return "scattered"
}

// Batch is an ordered collection of samples that is either scattered or backed
// by one contiguous flat block. In the contiguous state every sample is a view
// (shared, non-owning window) into the block.
//
// A Batch is not safe for concurrent mutation. Views handed out through
// ShareSample may be reset from any goroutine.
type Batch struct {
	state   State
	samples []*Sample // len(samples) >= size; trailing entries are spare
	size    int
	block   *FlatBlock
	views   atomic.Uint64 // epoch<<32 | live view count
	synced  uint64        // block generation the views were built for
	dtype   DataType
	space   memory.Space
	mem     *memory.Manager
}

// NewBatch returns an empty scattered batch that allocates in space.
func NewBatch(space memory.Space) *Batch {
	return &Batch{
		block: NewFlatBlock(space),
		space: space,
	}
}

// NewBatchSize returns a scattered batch of n empty samples.
func NewBatchSize(n int, space memory.Space) *Batch {
	b := NewBatch(space)
	b.resizeSamples(max(n, 0))
	return b
}

// NewBatchFromBlock returns a contiguous batch whose samples are views into
// block's storage. No data is copied.
func NewBatchFromBlock(block *FlatBlock) *Batch {
	b := NewBatch(block.Space())
	b.ShareBlock(block)
	return b
}

// SetMemory selects the memory manager used for allocations.
func (b *Batch) SetMemory(mgr *memory.Manager) {
	b.mem = mgr
	b.block.SetMemory(mgr)
	for _, s := range b.samples {
		s.SetMemory(mgr)
	}
}

// Size returns the number of samples.
func (b *Batch) Size() int { return b.size }

// State returns the current representation.
func (b *Batch) State() State { return b.state }

// SetContiguous selects the representation used by subsequent resizes.
func (b *Batch) SetContiguous(on bool) {
	if on {
		b.state = Contiguous
	} else {
		b.state = Scattered
	}
}

// Sample returns sample i. The pointer stays valid until the batch is reset;
// use ShareSample to keep the data beyond that.
func (b *Batch) Sample(i int) *Sample {
	if i < 0 || i >= b.size {
		panic(fmt.Sprintf("tensor: sample index %d out of range [0, %d)", i, b.size))
	}
	return b.samples[i]
}

// ShareSample returns an independent sample aliasing sample i.
func (b *Batch) ShareSample(i int) *Sample {
	return b.Sample(i).Share()
}

// ViewCount returns the number of samples currently aliasing the flat block.
func (b *Batch) ViewCount() int {
	return int(uint32(b.views.Load()))
}

// IsContiguous reports whether the batch is in the contiguous state and every
// sample is a live view of the current flat block.
func (b *Batch) IsContiguous() bool {
	return b.state == Contiguous && b.ViewCount() == b.size && b.synced == b.block.gen
}

// Type returns the element type of the batch.
func (b *Batch) Type() DataType {
	if b.state == Contiguous && b.block.dtype.IsValid() {
		return b.block.dtype
	}
	if b.size > 0 && b.samples[0].dtype.IsValid() {
		return b.samples[0].dtype
	}
	return b.dtype
}

// SetType changes the element type of every sample.
func (b *Batch) SetType(dt DataType) error {
	if !dt.IsValid() {
		return fmt.Errorf("%w: %s", ErrInvalidType, dt)
	}
	if b.Type() == dt {
		return nil
	}
	b.dtype = dt
	if err := b.block.SetType(dt); err != nil {
		return err
	}
	if b.state == Contiguous {
		b.UpdateViews()
		return nil
	}
	for i := 0; i < b.size; i++ {
		if err := b.samples[i].SetType(dt); err != nil {
			return fmt.Errorf("sample %d: %w", i, err)
		}
	}
	return nil
}

// Shape returns the per-sample shapes.
func (b *Batch) Shape() ListShape {
	if b.IsContiguous() {
		return b.block.Shape()
	}
	ls := make(ListShape, b.size)
	for i := 0; i < b.size; i++ {
		ls[i] = b.samples[i].shape.Clone()
	}
	return ls
}

// Layout returns the layout tag shared by the samples.
func (b *Batch) Layout() Layout {
	if b.state == Contiguous && !b.block.layout.IsEmpty() {
		return b.block.layout
	}
	if b.size > 0 {
		return b.samples[0].layout
	}
	return ""
}

// SetLayout sets the layout of the batch and of every sample.
func (b *Batch) SetLayout(l Layout) error {
	if b.state == Scattered && b.size == 0 && !l.IsEmpty() {
		return ErrEmptyLayout
	}
	b.block.SetLayout(l)
	for i := 0; i < b.size; i++ {
		b.samples[i].SetLayout(l)
	}
	return nil
}

// Space returns the memory space of the batch.
func (b *Batch) Space() memory.Space {
	if b.state == Contiguous {
		return b.block.space
	}
	if b.size > 0 {
		return b.samples[0].space
	}
	return b.space
}

// IsPinned reports whether the batch lives in page-locked host memory.
func (b *Batch) IsPinned() bool { return b.Space().IsPinned() }

// SetPinned moves a host batch between pageable and page-locked memory.
// Held data of the other kind is reset.
func (b *Batch) SetPinned(pinned bool) {
	if b.space.IsDevice() {
		return
	}
	b.SetSpace(memory.HostSpace(pinned))
}

// SetSpace moves the batch to another memory space. Held data of another
// space is reset.
func (b *Batch) SetSpace(space memory.Space) {
	if b.space == space && b.Space() == space {
		return
	}
	if b.block.Space() != space {
		b.clearViews()
		b.block.SetSpace(space)
	}
	for _, s := range b.samples {
		s.SetSpace(space)
	}
	b.space = space
}

// Order returns the order the flat block was last written on.
func (b *Batch) Order() device.Order { return b.block.order }

// SetOrder records the order readers must synchronize with.
func (b *Batch) SetOrder(o device.Order) { b.block.SetOrder(o) }

// Meta returns the metadata of sample i.
func (b *Batch) Meta(i int) Meta { return b.Sample(i).meta }

// SetMeta replaces the metadata of sample i.
func (b *Batch) SetMeta(i int, m Meta) { b.Sample(i).SetMeta(m) }

// NBytes returns the bytes described by every sample's shape and type.
func (b *Batch) NBytes() int {
	if b.state == Contiguous {
		return b.block.NBytes()
	}
	n := 0
	for i := 0; i < b.size; i++ {
		n += b.samples[i].NBytes()
	}
	return n
}

// Capacity returns the allocated bytes backing the batch.
func (b *Batch) Capacity() int {
	if b.state == Contiguous {
		return b.block.Capacity()
	}
	n := 0
	for i := 0; i < b.size; i++ {
		n += b.samples[i].Capacity()
	}
	return n
}

// SetSize changes the number of samples. Trailing samples that hold data are
// reset when shrinking; new samples are empty.
func (b *Batch) SetSize(n int) error {
	if n < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidSize, n)
	}
	b.resizeSamples(n)
	return nil
}

// Resize sets per-sample shapes and type. In the contiguous state the flat
// block is resized and the views rebuilt; otherwise each sample is resized.
func (b *Batch) Resize(shapes ListShape, dt DataType) error {
	if !dt.IsValid() {
		return fmt.Errorf("%w: %s", ErrInvalidType, dt)
	}
	if err := shapes.Validate(); err != nil {
		return err
	}
	b.resizeSamples(len(shapes))
	b.dtype = dt
	if b.state == Contiguous {
		if err := b.block.Resize(shapes, dt); err != nil {
			return err
		}
		b.UpdateViews()
		return nil
	}
	for i, s := range shapes {
		if err := b.samples[i].Resize(s, dt); err != nil {
			return fmt.Errorf("sample %d: %w", i, err)
		}
	}
	return nil
}

// Reserve switches to the contiguous state and reserves totalBytes in the
// flat block.
func (b *Batch) Reserve(totalBytes int) error {
	if b.state == Scattered {
		b.dropSamples()
		b.block.setShapes(nil, b.block.dtype)
		b.state = Contiguous
	}
	if err := b.block.Reserve(totalBytes); err != nil {
		return err
	}
	b.UpdateViews()
	return nil
}

// ReserveSamples switches to the scattered state and reserves bytesPerSample
// in each of n samples.
func (b *Batch) ReserveSamples(bytesPerSample, n int) error {
	if n < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidSize, n)
	}
	if b.state == Contiguous {
		b.detachViews()
		b.block.Reset()
		b.state = Scattered
	}
	b.resizeSamples(n)
	for i := 0; i < n; i++ {
		if err := b.samples[i].Reserve(bytesPerSample); err != nil {
			return fmt.Errorf("sample %d: %w", i, err)
		}
	}
	return nil
}

// Reset drops every sample and, in the contiguous state, the flat block.
// Memory space, pinned-ness and state are kept.
func (b *Batch) Reset() {
	b.dropSamples()
	b.dtype = NoType
	if b.state == Contiguous {
		b.clearViews()
		b.block.Reset()
	}
}

// SetSample makes sample i alias s. A contiguous batch becomes scattered.
func (b *Batch) SetSample(i int, s *Sample) error {
	if i < 0 || i >= b.size {
		return fmt.Errorf("%w: index %d of %d", ErrInvalidSize, i, b.size)
	}
	if dt := b.Type(); dt.IsValid() && s.dtype.IsValid() && s.dtype != dt {
		return fmt.Errorf("%w: have %s, batch holds %s", ErrTypeMismatch, s.dtype, dt)
	}
	if sp := b.Space(); s.HasData() && sp != s.space {
		return fmt.Errorf("%w: have %s, batch lives in %s", ErrSpaceMismatch, s.space, sp)
	}
	if b.state == Contiguous {
		b.state = Scattered
	}
	b.samples[i].ShareData(s)
	if s.dtype.IsValid() {
		b.dtype = s.dtype
	}
	return nil
}

// ShareData makes b alias src. A contiguous source is shared as a flat block
// and b becomes contiguous; a scattered source is shared sample by sample.
func (b *Batch) ShareData(src *Batch) {
	if b == src {
		return
	}
	b.clearViews()
	if src.IsContiguous() {
		block, _ := src.AsFlatBlock(false)
		b.ShareBlock(block)
		return
	}
	b.state = Scattered
	b.block.Reset()
	b.resizeSamples(src.size)
	for i := 0; i < src.size; i++ {
		b.samples[i].ShareData(src.samples[i])
	}
	b.dtype = src.Type()
	b.space = src.Space()
}

// ShareBlock makes b a contiguous batch whose samples are views of block.
func (b *Batch) ShareBlock(block *FlatBlock) {
	b.state = Contiguous
	b.block.ShareData(block)
	b.space = block.space
	b.dtype = block.dtype
	b.UpdateViews()
}

// Copy copies src into b's own flat block, making b contiguous.
func (b *Batch) Copy(src *Batch, order device.Order, opts ...CopyOption) error {
	if b == src {
		return nil
	}
	b.state = Contiguous
	if err := b.block.CopyBatch(src, order, opts...); err != nil {
		return err
	}
	b.dtype = b.block.dtype
	b.UpdateViews()
	return nil
}

// CopyBlock copies block into b's own flat block, making b contiguous.
func (b *Batch) CopyBlock(block *FlatBlock, order device.Order, opts ...CopyOption) error {
	b.state = Contiguous
	if err := b.block.Copy(block, order, opts...); err != nil {
		return err
	}
	b.dtype = b.block.dtype
	b.UpdateViews()
	return nil
}

// AsFlatBlock returns the flat block after writing every sample's metadata
// into it. With require set it fails unless the batch is contiguous.
func (b *Batch) AsFlatBlock(require bool) (*FlatBlock, error) {
	if require && !b.IsContiguous() {
		return nil, ErrNotContiguous
	}
	for i := 0; i < b.size && i < len(b.block.meta); i++ {
		b.block.meta[i] = b.samples[i].meta.Clone()
	}
	return b.block, nil
}

// UpdateViews rebinds every sample to its window of the flat block. Samples
// whose data pointer and shape already match keep their view.
func (b *Batch) UpdateViews() {
	if b.size != b.block.NumSamples() {
		b.resizeSamples(b.block.NumSamples())
	}
	if b.block.storage == nil {
		b.synced = b.block.gen
		return
	}
	if b.block.dtype.IsValid() {
		b.dtype = b.block.dtype
	}
	epoch := b.epoch()
	for i := 0; i < b.size; i++ {
		b.updateView(i, epoch)
	}
	b.synced = b.block.gen
}

func (b *Batch) updateView(i int, epoch uint32) {
	s := b.samples[i]
	window := b.block.SampleBytes(i)
	shape := b.block.shapes[i]
	if s.isViewOf(b, epoch) && s.h.storage == b.block.storage &&
		sameWindow(s.h.data, window) && s.shape.Equal(shape) {
		s.dtype = b.block.dtype
	} else {
		s.drop()
		viewEpoch := b.addView()
		h := newViewHandle(b.block.storage, window, b, viewEpoch)
		h.onRelease = func() { b.dropView(viewEpoch) }
		s.h = h
		s.shape = shape.Clone()
		s.dtype = b.block.dtype
	}
	s.space = b.block.space
	s.layout = b.block.layout
	s.meta = b.block.meta[i].Clone()
}

func sameWindow(a, b []byte) bool {
	return len(a) == len(b) && unsafe.SliceData(a) == unsafe.SliceData(b)
}

// resizeSamples grows or shrinks the sample list. Shrinking resets trailing
// samples that hold data.
func (b *Batch) resizeSamples(n int) {
	for i := n; i < b.size; i++ {
		if b.samples[i].HasData() {
			b.samples[i].Reset()
		}
	}
	for len(b.samples) < n {
		b.samples = append(b.samples, nil)
	}
	for i := 0; i < n; i++ {
		if b.samples[i] == nil {
			s := NewSample(b.space)
			s.mem = b.mem
			b.samples[i] = s
		} else if i >= b.size && !b.samples[i].HasData() {
			b.samples[i].space = b.space
		}
	}
	b.size = n
}

// dropSamples resets and forgets every sample.
func (b *Batch) dropSamples() {
	for _, s := range b.samples {
		s.Reset()
	}
	b.samples = nil
	b.size = 0
}

// detachViews turns views into shared samples that no longer count as views.
func (b *Batch) detachViews() {
	b.clearViews()
	for i := 0; i < b.size; i++ {
		s := b.samples[i]
		if s.h != nil && s.h.viewOf == b {
			s.h.onRelease = nil
			s.h.storage.views.Add(-1)
			s.h.viewOf = nil
		}
	}
}

func (b *Batch) epoch() uint32 {
	return uint32(b.views.Load() >> 32)
}

// addView counts a new view and returns the epoch it belongs to.
func (b *Batch) addView() uint32 {
	for {
		v := b.views.Load()
		if b.views.CompareAndSwap(v, v+1) {
			return uint32(v >> 32)
		}
	}
}

// dropView uncounts a view unless the count was cleared since it was made.
func (b *Batch) dropView(epoch uint32) {
	for {
		v := b.views.Load()
		if uint32(v>>32) != epoch || uint32(v) == 0 {
			return
		}
		if b.views.CompareAndSwap(v, v-1) {
			return
		}
	}
}

// clearViews zeroes the count and starts a new epoch.
func (b *Batch) clearViews() {
	for {
		v := b.views.Load()
		next := uint64(uint32(v>>32)+1) << 32
		if b.views.CompareAndSwap(v, next) {
			return
		}
	}
}
