package tensor

import (
	"testing"
	"unsafe"

	"github.com/born-ml/feed/internal/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var host = memory.HostSpace(false)

func newTestSample(t *testing.T, mgr *memory.Manager, shape Shape, values ...float32) *Sample {
	t.Helper()
	s := NewSample(host)
	s.SetMemory(mgr)
	require.NoError(t, s.Resize(shape, Float32))
	v, err := Values[float32](s)
	require.NoError(t, err)
	copy(v, values)
	return s
}

func TestNewSampleFromIsZeroCopy(t *testing.T) {
	data := []float32{1, 2, 3, 4}
	s, err := NewSampleFrom(BytesOf(data), Shape{2, 2}, Float32, host)
	require.NoError(t, err)
	assert.True(t, s.SharesData())
	assert.True(t, s.Storage().External())

	data[3] = 42
	v, err := Values[float32](s)
	require.NoError(t, err)
	assert.Equal(t, float32(42), v[3])
}

func TestNewSampleFromErrors(t *testing.T) {
	_, err := NewSampleFrom(make([]byte, 4), Shape{2}, NoType, host)
	assert.ErrorIs(t, err, ErrInvalidType)

	_, err = NewSampleFrom(make([]byte, 4), Shape{2}, Float32, host)
	assert.ErrorIs(t, err, ErrBufferTooSmall)

	_, err = NewSampleFrom(make([]byte, 4), Shape{-1}, Uint8, host)
	assert.ErrorIs(t, err, ErrInvalidShape)
}

func TestSampleResizeReusesOwnedStorage(t *testing.T) {
	mgr := memory.NewManager()
	s := newTestSample(t, mgr, Shape{8}, 1, 2, 3)
	before := s.Storage()

	require.NoError(t, s.Resize(Shape{4}, Float32))
	assert.Same(t, before, s.Storage())
	assert.Equal(t, 16, s.NBytes())
	assert.Equal(t, 32, s.Capacity())
	assert.False(t, s.SharesData())
}

func TestSampleResizeDetachesSharedData(t *testing.T) {
	mgr := memory.NewManager()
	s := newTestSample(t, mgr, Shape{4}, 1, 2, 3, 4)
	shared := s.Share()
	original := s.Storage()
	assert.Equal(t, 2, original.Refs())

	require.NoError(t, s.Resize(Shape{4}, Float32))
	assert.NotSame(t, original, s.Storage())
	assert.Same(t, original, shared.Storage())

	v, err := Values[float32](shared)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3, 4}, v)

	require.NoError(t, shared.Resize(Shape{2}, Float32))
	assert.NotSame(t, original, shared.Storage(), "shared sample must not write through")
}

func TestSampleShareOutlivesOriginal(t *testing.T) {
	mgr := memory.NewManager()
	s := newTestSample(t, mgr, Shape{2}, 5, 6)
	shared := s.Share()

	s.Reset()
	assert.False(t, s.HasData())
	assert.Equal(t, NoType, s.Type())

	v, err := Values[float32](shared)
	require.NoError(t, err)
	assert.Equal(t, []float32{5, 6}, v)
	assert.Equal(t, 0, mgr.Pool(host).Stats().Pooled)

	shared.Reset()
	assert.Equal(t, 1, mgr.Pool(host).Stats().Pooled, "last release returns storage to the pool")
}

func TestSampleSetType(t *testing.T) {
	mgr := memory.NewManager()
	s := newTestSample(t, mgr, Shape{4})
	shared := s.Share()

	assert.ErrorIs(t, shared.SetType(NoType), ErrInvalidType)

	require.NoError(t, shared.SetType(Int32))
	assert.Same(t, s.Storage(), shared.Storage(), "same byte size keeps the window")

	require.NoError(t, shared.SetType(Float64))
	assert.NotSame(t, s.Storage(), shared.Storage())
	assert.Equal(t, 32, shared.NBytes())
}

func TestSampleSetPinned(t *testing.T) {
	s := newTestSample(t, memory.NewManager(), Shape{2})
	s.SetPinned(true)
	assert.True(t, s.IsPinned())
	assert.False(t, s.HasData())
	assert.Equal(t, 0, s.NBytes())
}

func TestSampleReserveKeepsShape(t *testing.T) {
	s := newTestSample(t, memory.NewManager(), Shape{2})
	require.NoError(t, s.Reserve(64))
	assert.Equal(t, 64, s.Capacity())
	assert.Equal(t, 8, len(s.Bytes()))

	require.NoError(t, s.Resize(Shape{16}, Float32))
	assert.Equal(t, 64, s.Capacity())
}

func TestValuesTypeMismatch(t *testing.T) {
	s := newTestSample(t, memory.NewManager(), Shape{2})
	_, err := Values[int64](s)
	assert.ErrorIs(t, err, ErrTypeMismatch)

	half := NewSample(host)
	require.NoError(t, half.Resize(Shape{3}, Float16))
	bits, err := Values[uint16](half)
	require.NoError(t, err)
	assert.Len(t, bits, 3)
}

func TestBytesOf(t *testing.T) {
	v := []int32{1, 2}
	b := BytesOf(v)
	assert.Len(t, b, 8)
	assert.Equal(t, unsafe.Pointer(&v[0]), unsafe.Pointer(&b[0]))
	assert.Nil(t, BytesOf([]int32(nil)))
}
