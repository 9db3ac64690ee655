package tensor

import (
	"testing"

	"github.com/born-ml/feed/internal/device"
	"github.com/born-ml/feed/internal/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapBlock(t *testing.T) {
	data := sequence(10)
	b, err := WrapBlock(data, ListShape{{2}, {3}, {5}}, Uint8, host)
	require.NoError(t, err)

	assert.Equal(t, 3, b.NumSamples())
	assert.Equal(t, 10, b.NBytes())
	assert.Equal(t, []byte{2, 3, 4}, b.SampleBytes(1))
	assert.True(t, b.Storage().External())

	_, err = WrapBlock(data, ListShape{{11}}, Uint8, host)
	assert.ErrorIs(t, err, ErrBufferTooSmall)
	_, err = WrapBlock(data, ListShape{{1}}, NoType, host)
	assert.ErrorIs(t, err, ErrInvalidType)
}

func TestFlatBlockResizeNeverWritesExternalMemory(t *testing.T) {
	data := sequence(8)
	b, err := WrapBlock(data, ListShape{{8}}, Uint8, host)
	require.NoError(t, err)
	b.SetMemory(memory.NewManager())

	require.NoError(t, b.Resize(ListShape{{4}}, Uint8))
	assert.False(t, b.Storage().External())
	copy(b.Bytes(), []byte{9, 9, 9, 9})
	assert.Equal(t, sequence(8), data)
}

func TestFlatBlockCopy(t *testing.T) {
	src, err := WrapBlock(sequence(12), UniformListShape(3, Shape{4}), Uint8, host)
	require.NoError(t, err)
	src.SetLayout("W")
	src.SetMeta(0, Meta{SourceInfo: "a"})

	dst := NewFlatBlock(memory.HostSpace(true))
	dst.SetMemory(memory.NewManager())
	require.NoError(t, dst.Copy(src, device.HostOrder()))

	assert.Equal(t, sequence(12), dst.Bytes())
	assert.Equal(t, Layout("W"), dst.Layout())
	assert.Equal(t, "a", dst.Meta(0).SourceInfo)
	assert.True(t, dst.IsPinned())
	assert.NotSame(t, src.Storage(), dst.Storage())
}

func TestFlatBlockShareData(t *testing.T) {
	src, err := WrapBlock(sequence(4), ListShape{{4}}, Uint8, host)
	require.NoError(t, err)

	dst := NewFlatBlock(host)
	dst.ShareData(src)
	assert.Same(t, src.Storage(), dst.Storage())
	assert.Equal(t, 2, src.Storage().Refs())

	dst.Reset()
	assert.Equal(t, 1, src.Storage().Refs())
	assert.Equal(t, NoType, dst.Type())
	assert.Equal(t, 0, dst.NumSamples())
}

func TestFlatBlockSetType(t *testing.T) {
	b := NewFlatBlock(host)
	b.SetMemory(memory.NewManager())
	assert.ErrorIs(t, b.SetType(NoType), ErrInvalidType)

	require.NoError(t, b.SetType(Int16))
	assert.Equal(t, 0, b.Capacity())

	require.NoError(t, b.Resize(UniformListShape(2, Shape{3}), Int16))
	assert.Equal(t, 12, b.NBytes())
	require.NoError(t, b.SetType(Int64))
	assert.Equal(t, 48, b.NBytes())
	assert.Equal(t, []int{0, 24}, b.offsets)
}

func TestFlatBlockMetaTableSnapshot(t *testing.T) {
	b := NewFlatBlock(host)
	b.SetMemory(memory.NewManager())
	require.NoError(t, b.Resize(UniformListShape(2, Shape{1}), Uint8))
	b.SetMeta(1, Meta{SourceInfo: "x", Tags: []string{"val"}})

	data, err := b.MetaTable().Marshal()
	require.NoError(t, err)
	table, err := UnmarshalMetaTable(data)
	require.NoError(t, err)
	require.Len(t, table, 2)
	assert.Equal(t, "x", table[1].SourceInfo)
}
