// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/born-ml/feed/internal/memory"
	"github.com/born-ml/feed/internal/tensor"
)

// Type aliases for public API

// Element is a constraint for sample element types.
type Element = tensor.Element

// DataType represents the element type of a sample.
type DataType = tensor.DataType

// Data type constants.
const (
	NoType  DataType = tensor.NoType
	Uint8   DataType = tensor.Uint8
	Uint16  DataType = tensor.Uint16
	Uint32  DataType = tensor.Uint32
	Uint64  DataType = tensor.Uint64
	Int8    DataType = tensor.Int8
	Int16   DataType = tensor.Int16
	Int32   DataType = tensor.Int32
	Int64   DataType = tensor.Int64
	Float16 DataType = tensor.Float16
	Float32 DataType = tensor.Float32
	Float64 DataType = tensor.Float64
	Bool    DataType = tensor.Bool
)

// Shape represents the extents of one sample.
// Example: Shape{2, 2, 3} is a 2×2×3 sample.
type Shape = tensor.Shape

// ListShape holds one Shape per sample of a batch.
type ListShape = tensor.ListShape

// Layout names the dimensions of a sample, e.g. "HWC".
type Layout = tensor.Layout

// State tells whether a batch is backed by one block or by independent samples.
type State = tensor.State

// Batch states.
const (
	Scattered  State = tensor.Scattered
	Contiguous State = tensor.Contiguous
)

// Sample is one n-dimensional array with its own shape and metadata.
type Sample = tensor.Sample

// FlatBlock is a list of samples packed back to back in one allocation.
type FlatBlock = tensor.FlatBlock

// Batch is an ordered list of samples that may alias a FlatBlock.
type Batch = tensor.Batch

// Storage is a reference-counted allocation shared by samples and blocks.
type Storage = tensor.Storage

// Meta is per-sample metadata carried next to the data.
type Meta = tensor.Meta

// MetaTable is the metadata of every sample of a block.
type MetaTable = tensor.MetaTable

// CopyOption configures Copy calls.
type CopyOption = tensor.CopyOption

// Errors.
var (
	ErrInvalidType    = tensor.ErrInvalidType
	ErrInvalidShape   = tensor.ErrInvalidShape
	ErrInvalidSize    = tensor.ErrInvalidSize
	ErrNotContiguous  = tensor.ErrNotContiguous
	ErrEmptyLayout    = tensor.ErrEmptyLayout
	ErrTypeMismatch   = tensor.ErrTypeMismatch
	ErrSpaceMismatch  = tensor.ErrSpaceMismatch
	ErrBufferTooSmall = tensor.ErrBufferTooSmall
)

// ParseDataType converts a type name such as "uint8" to a DataType.
func ParseDataType(s string) (DataType, error) {
	return tensor.ParseDataType(s)
}

// UniformListShape returns a ListShape of n copies of s.
func UniformListShape(n int, s Shape) ListShape {
	return tensor.UniformListShape(n, s)
}

// NewSample creates an empty sample in space.
func NewSample(space memory.Space) *Sample {
	return tensor.NewSample(space)
}

// NewSampleFrom wraps data without copying. The caller keeps data alive and
// unmodified for as long as the sample or anything sharing it is in use.
func NewSampleFrom(data []byte, shape Shape, dt DataType, space memory.Space) (*Sample, error) {
	return tensor.NewSampleFrom(data, shape, dt, space)
}

// NewFlatBlock creates an empty block in space.
func NewFlatBlock(space memory.Space) *FlatBlock {
	return tensor.NewFlatBlock(space)
}

// WrapBlock wraps data as a block of samples without copying.
func WrapBlock(data []byte, shapes ListShape, dt DataType, space memory.Space) (*FlatBlock, error) {
	return tensor.WrapBlock(data, shapes, dt, space)
}

// NewBatch creates an empty scattered batch in space.
func NewBatch(space memory.Space) *Batch {
	return tensor.NewBatch(space)
}

// NewBatchSize creates a scattered batch of n empty samples.
func NewBatchSize(n int, space memory.Space) *Batch {
	return tensor.NewBatchSize(n, space)
}

// NewBatchFromBlock creates a contiguous batch viewing block.
func NewBatchFromBlock(block *FlatBlock) *Batch {
	return tensor.NewBatchFromBlock(block)
}

// UnmarshalMetaTable decodes a table produced by MetaTable.Marshal.
func UnmarshalMetaTable(data []byte) (MetaTable, error) {
	return tensor.UnmarshalMetaTable(data)
}

// WithCopyKernel selects one batched gather (true) or one copy per sample.
func WithCopyKernel(on bool) CopyOption {
	return tensor.WithCopyKernel(on)
}

// Values returns the elements of s as a typed slice sharing its memory.
func Values[T Element](s *Sample) ([]T, error) {
	return tensor.Values[T](s)
}

// BytesOf reinterprets values as raw bytes without copying.
func BytesOf[T Element](values []T) []byte {
	return tensor.BytesOf(values)
}
