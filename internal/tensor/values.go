package tensor

import (
	"fmt"
	"unsafe"
)

// Values returns the data of s as a []T without copying.
// Float16 samples are viewed as uint16 bit patterns.
func Values[T Element](s *Sample) ([]T, error) {
	want := typeOf[T]()
	if s.dtype != want && (s.dtype != Float16 || want != Uint16) {
		return nil, fmt.Errorf("%w: sample holds %s, requested %s", ErrTypeMismatch, s.dtype, want)
	}
	data := s.Bytes()
	if len(data) == 0 {
		return nil, nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(data))), len(data)/s.dtype.Size()), nil
}

// BytesOf returns the byte representation of values without copying.
func BytesOf[T Element](values []T) []byte {
	if len(values) == 0 {
		return nil
	}
	var zero T
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(values))), len(values)*int(unsafe.Sizeof(zero)))
}
