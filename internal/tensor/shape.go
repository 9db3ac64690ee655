package tensor

import "fmt"

// Shape represents the extents of one sample. Extents are non-negative; a zero
// extent describes an empty sample.
type Shape []int

// Volume returns the total number of elements.
func (s Shape) Volume() int {
	if len(s) == 0 {
		return 1 // Scalar has 1 element
	}
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Validate checks that all extents are non-negative.
func (s Shape) Validate() error {
	for i, dim := range s {
		if dim < 0 {
			return fmt.Errorf("%w: extent at index %d is %d", ErrInvalidShape, i, dim)
		}
	}
	return nil
}

// Equal checks if two shapes are equal.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	if s == nil {
		return nil
	}
	clone := make(Shape, len(s))
	copy(clone, s)
	return clone
}

// ListShape holds one Shape per sample of a batch.
type ListShape []Shape

// UniformListShape returns n copies of s.
func UniformListShape(n int, s Shape) ListShape {
	ls := make(ListShape, n)
	for i := range ls {
		ls[i] = s.Clone()
	}
	return ls
}

// NumSamples returns the number of samples described.
func (ls ListShape) NumSamples() int { return len(ls) }

// TotalVolume returns the number of elements over all samples.
func (ls ListShape) TotalVolume() int {
	n := 0
	for _, s := range ls {
		n += s.Volume()
	}
	return n
}

// Validate checks every sample shape.
func (ls ListShape) Validate() error {
	for i, s := range ls {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("sample %d: %w", i, err)
		}
	}
	return nil
}

// Equal checks if two list shapes are equal.
func (ls ListShape) Equal(other ListShape) bool {
	if len(ls) != len(other) {
		return false
	}
	for i := range ls {
		if !ls[i].Equal(other[i]) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy.
func (ls ListShape) Clone() ListShape {
	if ls == nil {
		return nil
	}
	clone := make(ListShape, len(ls))
	for i, s := range ls {
		clone[i] = s.Clone()
	}
	return clone
}

// Layout is a dimension-semantics tag such as "HWC" or "CHW".
// The empty layout means unspecified.
type Layout string

// Ndim returns the number of dimensions the layout names.
func (l Layout) Ndim() int { return len(l) }

// IsEmpty reports whether the layout is unspecified.
func (l Layout) IsEmpty() bool { return l == "" }
