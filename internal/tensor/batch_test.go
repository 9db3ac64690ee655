package tensor

import (
	"context"
	"math/rand"
	"testing"
	"time"
	"unsafe"

	"github.com/born-ml/feed/internal/device"
	"github.com/born-ml/feed/internal/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newContiguousBatch(t *testing.T, mgr *memory.Manager, n int, shape Shape, dt DataType) *Batch {
	t.Helper()
	b := NewBatch(host)
	b.SetMemory(mgr)
	b.SetContiguous(true)
	require.NoError(t, b.Resize(UniformListShape(n, shape), dt))
	return b
}

func newScatteredBatch(t *testing.T, mgr *memory.Manager, payload []byte, n int, shape Shape) *Batch {
	t.Helper()
	b := NewBatchSize(n, host)
	b.SetMemory(mgr)
	per := shape.Volume()
	for i := 0; i < n; i++ {
		s := NewSample(host)
		s.SetMemory(mgr)
		require.NoError(t, s.Resize(shape, Uint8))
		copy(s.Bytes(), payload[i*per:(i+1)*per])
		require.NoError(t, b.SetSample(i, s))
		s.Release()
	}
	return b
}

// viewsMatchBlock checks sample windows against the flat block directly.
func viewsMatchBlock(b *Batch) bool {
	if b.state != Contiguous || b.size != b.block.NumSamples() {
		return false
	}
	for i := 0; i < b.size; i++ {
		s := b.samples[i]
		if s.h == nil || !sameWindow(s.h.data, b.block.SampleBytes(i)) || !s.shape.Equal(b.block.shapes[i]) {
			return false
		}
	}
	return true
}

func sequence(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i)
	}
	return data
}

func TestBatchContiguousResizeBuildsViews(t *testing.T) {
	b := newContiguousBatch(t, memory.NewManager(), 4, Shape{2, 2, 3}, Uint8)

	assert.True(t, b.IsContiguous())
	assert.Equal(t, 4, b.ViewCount())
	assert.Equal(t, 48, b.NBytes())
	assert.Equal(t, Uint8, b.Type())
	for i := 0; i < 4; i++ {
		assert.True(t, b.Sample(i).SharesData())
		assert.True(t, sameWindow(b.Sample(i).Bytes(), b.block.SampleBytes(i)))
	}
	assert.Equal(t, 5, b.block.Storage().Refs(), "block plus one reference per view")
}

func TestBatchAsFlatBlockAfterPartialResize(t *testing.T) {
	b := newContiguousBatch(t, memory.NewManager(), 4, Shape{2, 2, 3}, Uint8)

	require.NoError(t, b.Sample(0).Resize(Shape{1, 1, 3}, Uint8))
	require.NoError(t, b.Sample(1).Resize(Shape{1, 1, 3}, Uint8))

	assert.False(t, b.IsContiguous())
	assert.Equal(t, 2, b.ViewCount())
	_, err := b.AsFlatBlock(true)
	assert.ErrorIs(t, err, ErrNotContiguous)

	block, err := b.AsFlatBlock(false)
	require.NoError(t, err)
	assert.Equal(t, 4, block.NumSamples())

	b.UpdateViews()
	assert.True(t, b.IsContiguous())
	assert.Equal(t, 4, b.ViewCount())
}

func TestBatchResetZeroesViews(t *testing.T) {
	mgr := memory.NewManager()
	b := newContiguousBatch(t, mgr, 3, Shape{4}, Uint8)
	copy(b.block.Bytes(), sequence(12))
	storage := b.block.Storage()

	shared := b.ShareSample(1)
	b.Reset()

	assert.Equal(t, 0, b.ViewCount())
	assert.Equal(t, 0, b.Size())
	assert.Equal(t, 1, storage.Refs(), "external handle keeps the block alive")
	assert.Equal(t, []byte{4, 5, 6, 7}, shared.Bytes())
	assert.Equal(t, 0, mgr.Pool(host).Stats().Pooled)

	shared.Release()
	assert.Equal(t, 0, storage.Refs())
	assert.Equal(t, 1, mgr.Pool(host).Stats().Pooled)
}

func TestBatchLateViewReleaseIgnored(t *testing.T) {
	b := NewBatch(host)
	epoch := b.addView()
	b.addView()
	b.clearViews()
	b.dropView(epoch)
	assert.Equal(t, 0, b.ViewCount())

	current := b.addView()
	assert.NotEqual(t, epoch, current)
	assert.Equal(t, 1, b.ViewCount())
	b.dropView(current)
	b.dropView(current)
	assert.Equal(t, 0, b.ViewCount())
}

func TestBatchFromBlockRoundTrip(t *testing.T) {
	data := sequence(48)
	shapes := UniformListShape(4, Shape{2, 2, 3})
	src, err := WrapBlock(data, shapes, Uint8, host)
	require.NoError(t, err)
	src.SetMeta(2, Meta{SourceInfo: "cam-2"})

	b := NewBatchFromBlock(src)
	assert.True(t, b.IsContiguous())
	assert.Equal(t, "cam-2", b.Meta(2).SourceInfo)

	b.SetMeta(3, Meta{SourceInfo: "cam-3"})
	out, err := b.AsFlatBlock(true)
	require.NoError(t, err)

	assert.True(t, shapes.Equal(out.Shape()))
	assert.Equal(t, Uint8, out.Type())
	assert.Equal(t, data, out.Bytes())
	assert.Equal(t, unsafe.SliceData(data), unsafe.SliceData(out.Bytes()), "no copy was made")
	assert.Equal(t, "cam-3", out.Meta(3).SourceInfo)
}

func TestBatchCopyGathersScatteredSamples(t *testing.T) {
	mgr := memory.NewManager()
	payload := sequence(48)
	src := newScatteredBatch(t, mgr, payload, 4, Shape{2, 2, 3})
	assert.Equal(t, Scattered, src.State())
	assert.False(t, src.IsContiguous())

	dst := NewBatch(host)
	dst.SetMemory(mgr)
	require.NoError(t, dst.Copy(src, device.HostOrder()))

	assert.True(t, dst.IsContiguous())
	assert.Equal(t, payload, dst.block.Bytes())
	for i := 0; i < 4; i++ {
		assert.NotSame(t, src.Sample(i).Storage(), dst.Sample(i).Storage())
		assert.Equal(t, payload[i*12:(i+1)*12], src.Sample(i).Bytes())
	}
}

func TestBatchCopyWithoutKernel(t *testing.T) {
	mgr := memory.NewManager()
	payload := sequence(24)
	src := newScatteredBatch(t, mgr, payload, 2, Shape{12})

	dst := NewBatch(host)
	dst.SetMemory(mgr)
	require.NoError(t, dst.Copy(src, device.HostOrder(), WithCopyKernel(false)))
	assert.Equal(t, payload, dst.block.Bytes())
}

func TestBatchCopyOnStream(t *testing.T) {
	mgr := memory.NewManager()
	stream := device.NewStream(0)
	defer stream.Close()

	payload := sequence(32)
	src := newScatteredBatch(t, mgr, payload, 4, Shape{8})

	dst := NewBatch(memory.DeviceSpace(0))
	dst.SetMemory(mgr)
	require.NoError(t, dst.Copy(src, stream.Order()))
	src.Reset()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, stream.Synchronize(ctx))

	assert.True(t, dst.IsContiguous())
	assert.Equal(t, payload, dst.block.Bytes())
	assert.True(t, dst.Order().IsDevice())
	assert.True(t, dst.Space().IsDevice())
}

func TestBatchCopyOnClosedStream(t *testing.T) {
	mgr := memory.NewManager()
	stream := device.NewStream(0)
	stream.Close()

	src := newScatteredBatch(t, mgr, sequence(8), 1, Shape{8})
	dst := NewBatch(host)
	dst.SetMemory(mgr)
	err := dst.Copy(src, stream.Order())
	assert.ErrorIs(t, err, device.ErrStreamClosed)
	assert.Equal(t, 1, src.Sample(0).Storage().Refs(), "failed copy releases its references")
}

func TestBatchShareDataScattered(t *testing.T) {
	mgr := memory.NewManager()
	src := newScatteredBatch(t, mgr, sequence(9), 3, Shape{3})

	dst := newContiguousBatch(t, mgr, 2, Shape{4}, Uint8)
	dst.ShareData(src)

	assert.Equal(t, Scattered, dst.State())
	assert.False(t, dst.IsContiguous())
	assert.Equal(t, 3, dst.Size())
	for i := 0; i < 3; i++ {
		assert.Same(t, src.Sample(i).Storage(), dst.Sample(i).Storage())
	}
}

func TestBatchShareDataContiguous(t *testing.T) {
	mgr := memory.NewManager()
	src := newContiguousBatch(t, mgr, 3, Shape{4}, Float32)

	dst := NewBatch(host)
	dst.ShareData(src)

	assert.True(t, dst.IsContiguous())
	assert.Equal(t, 3, dst.ViewCount())
	assert.Same(t, src.block.Storage(), dst.block.Storage())
	assert.Equal(t, Float32, dst.Type())
}

func TestBatchSetType(t *testing.T) {
	b := newContiguousBatch(t, memory.NewManager(), 4, Shape{2}, Float32)
	storage := b.block.Storage()

	assert.ErrorIs(t, b.SetType(NoType), ErrInvalidType)
	require.NoError(t, b.SetType(Float32))

	require.NoError(t, b.SetType(Int32))
	assert.Same(t, storage, b.block.Storage(), "same element size reuses the block")
	assert.True(t, b.IsContiguous())
	assert.Equal(t, Int32, b.Sample(3).Type())

	require.NoError(t, b.SetType(Float64))
	assert.NotSame(t, storage, b.block.Storage())
	assert.True(t, b.IsContiguous())
	assert.Equal(t, 64, b.NBytes())
}

func TestBatchResizeCopiesOnWriteForExternalViews(t *testing.T) {
	b := newContiguousBatch(t, memory.NewManager(), 2, Shape{4}, Uint8)
	copy(b.block.Bytes(), sequence(8))
	shared := b.ShareSample(1)

	require.NoError(t, b.Resize(UniformListShape(2, Shape{4}), Uint8))
	assert.NotSame(t, shared.Storage(), b.block.Storage())
	assert.Equal(t, []byte{4, 5, 6, 7}, shared.Bytes())
	shared.Release()
}

func TestBatchErrors(t *testing.T) {
	b := NewBatch(host)
	assert.ErrorIs(t, b.SetSize(-1), ErrInvalidSize)
	assert.ErrorIs(t, b.Resize(UniformListShape(2, Shape{1}), NoType), ErrInvalidType)
	assert.ErrorIs(t, b.SetLayout("HWC"), ErrEmptyLayout)

	require.NoError(t, b.Resize(UniformListShape(2, Shape{1}), Uint8))
	other := NewSample(host)
	require.NoError(t, other.Resize(Shape{1}, Float32))
	assert.ErrorIs(t, b.SetSample(0, other), ErrTypeMismatch)
	assert.Error(t, b.SetSample(5, other))

	pinned := NewSample(memory.HostSpace(true))
	require.NoError(t, pinned.Resize(Shape{1}, Uint8))
	assert.ErrorIs(t, b.SetSample(1, pinned), ErrSpaceMismatch)
}

func TestBatchLayout(t *testing.T) {
	b := newContiguousBatch(t, memory.NewManager(), 2, Shape{2, 2, 3}, Uint8)
	require.NoError(t, b.SetLayout("HWC"))
	assert.Equal(t, Layout("HWC"), b.Layout())
	assert.Equal(t, Layout("HWC"), b.Sample(1).Layout())

	require.NoError(t, b.Resize(UniformListShape(3, Shape{2, 2, 3}), Uint8))
	assert.Equal(t, Layout("HWC"), b.Sample(2).Layout())
}

func TestBatchShrinkResetsTrailingSamples(t *testing.T) {
	mgr := memory.NewManager()
	b := newScatteredBatch(t, mgr, sequence(9), 3, Shape{3})
	last := b.Sample(2)

	require.NoError(t, b.SetSize(1))
	assert.Equal(t, 1, b.Size())
	assert.False(t, last.HasData())

	require.NoError(t, b.SetSize(3))
	assert.False(t, b.Sample(2).HasData())
	assert.True(t, b.Sample(0).HasData())
}

func TestBatchReserve(t *testing.T) {
	b := NewBatch(host)
	b.SetMemory(memory.NewManager())

	require.NoError(t, b.ReserveSamples(16, 3))
	assert.Equal(t, Scattered, b.State())
	assert.Equal(t, 3, b.Size())
	assert.Equal(t, 48, b.Capacity())

	require.NoError(t, b.Reserve(100))
	assert.Equal(t, Contiguous, b.State())
	assert.Equal(t, 0, b.Size())
	assert.GreaterOrEqual(t, b.Capacity(), 100)
}

func TestBatchReserveSamplesReleasesBlock(t *testing.T) {
	block, err := WrapBlock(make([]byte, 8), UniformListShape(2, Shape{4}), Uint8, host)
	require.NoError(t, err)
	st := block.Storage()

	b := NewBatchFromBlock(block)
	b.SetMemory(memory.NewManager())
	block.Reset()

	require.NoError(t, b.ReserveSamples(4, 2))
	assert.Equal(t, Scattered, b.State())
	assert.Equal(t, 0, st.Refs(), "old block storage stays referenced")
	assert.Equal(t, 0, b.block.Capacity())

	b.Reset()
	assert.Equal(t, 0, st.Refs())
}

func TestBatchSetPinned(t *testing.T) {
	b := newContiguousBatch(t, memory.NewManager(), 2, Shape{4}, Uint8)
	b.SetPinned(true)
	assert.True(t, b.IsPinned())
	assert.Equal(t, 0, b.ViewCount())

	require.NoError(t, b.Resize(UniformListShape(2, Shape{4}), Uint8))
	assert.True(t, b.IsContiguous())
	assert.True(t, b.Sample(0).IsPinned())
}

func TestBatchContiguityInvariant(t *testing.T) {
	mgr := memory.NewManager()
	rng := rand.New(rand.NewSource(7))
	types := []DataType{Uint8, Int16, Float32}

	randomShapes := func() ListShape {
		n := 1 + rng.Intn(5)
		ls := make(ListShape, n)
		for i := range ls {
			ls[i] = Shape{1 + rng.Intn(3), 1 + rng.Intn(3)}
		}
		return ls
	}

	b := NewBatch(host)
	b.SetMemory(mgr)
	b.SetContiguous(true)
	for step := 0; step < 500; step++ {
		switch rng.Intn(6) {
		case 0:
			require.NoError(t, b.Resize(randomShapes(), types[rng.Intn(len(types))]))
		case 1:
			if b.Size() > 0 {
				require.NoError(t, b.SetType(types[rng.Intn(len(types))]))
			}
		case 2:
			src := newContiguousBatch(t, mgr, 1+rng.Intn(4), Shape{2}, Uint8)
			b.ShareData(src)
		case 3:
			src := newScatteredBatch(t, mgr, sequence(8), 2, Shape{4})
			b.ShareData(src)
		case 4:
			if b.Size() > 0 && b.Type().IsValid() {
				require.NoError(t, b.Sample(rng.Intn(b.Size())).Resize(Shape{3, 1}, b.Type()))
			}
		case 5:
			b.SetContiguous(true)
			b.UpdateViews()
		}

		require.Equal(t, viewsMatchBlock(b), b.IsContiguous(), "step %d", step)
		if b.IsContiguous() {
			require.Equal(t, b.Size(), b.ViewCount(), "step %d", step)
		}
	}

	b.Reset()
	assert.Equal(t, 0, b.ViewCount())
}
