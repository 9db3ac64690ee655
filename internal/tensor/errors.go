package tensor

import "errors"

// Common errors.
var (
	ErrInvalidType    = errors.New("invalid element type")
	ErrInvalidShape   = errors.New("invalid shape")
	ErrInvalidSize    = errors.New("invalid sample count")
	ErrNotContiguous  = errors.New("batch is not contiguous")
	ErrEmptyLayout    = errors.New("layout cannot be set uniformly for an empty batch")
	ErrTypeMismatch   = errors.New("element type does not match the batch")
	ErrSpaceMismatch  = errors.New("memory space does not match the batch")
	ErrBufferTooSmall = errors.New("buffer smaller than shape requires")
)
