// Package tensor provides the batch containers of the ingestion engine: samples,
// contiguous flat blocks and batches that switch between the two representations.
package tensor

import (
	"fmt"
	"strings"
)

// Element is a constraint for Go types that can view sample bytes.
// It uses Go generics to ensure compile-time type safety.
type Element interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64 | ~int8 | ~int16 | ~int32 | ~int64 | ~float32 | ~float64 | ~bool
}

// DataType represents runtime element type information.
type DataType int

// Supported data types. NoType marks a container whose type was never set.
const (
	NoType DataType = iota
	Uint8
	Uint16
	Uint32
	Uint64
	Int8
	Int16
	Int32
	Int64
	Float16
	Float32
	Float64
	Bool
)

// Size returns the byte size of the data type, 0 for NoType.
func (dt DataType) Size() int {
	switch dt {
	case Uint8, Int8, Bool:
		return 1
	case Uint16, Int16, Float16:
		return 2
	case Uint32, Int32, Float32:
		return 4
	case Uint64, Int64, Float64:
		return 8
	default:
		return 0
	}
}

// IsValid reports whether dt is a concrete element type.
func (dt DataType) IsValid() bool {
	return dt.Size() > 0
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case NoType:
		return "none"
	case Uint8:
		return "uint8"
	case Uint16:
		return "uint16"
	case Uint32:
		return "uint32"
	case Uint64:
		return "uint64"
	case Int8:
		return "int8"
	case Int16:
		return "int16"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Float16:
		return "float16"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Bool:
		return "bool"
	default:
		return "unknown"
	}
}

// ParseDataType returns the data type named s.
func ParseDataType(s string) (DataType, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for dt := Uint8; dt <= Bool; dt++ {
		if dt.String() == name {
			return dt, nil
		}
	}
	return NoType, fmt.Errorf("%w: %q", ErrInvalidType, s)
}

// typeOf infers the DataType viewed by a generic element type T.
// Float16 has no Go type; it is viewed as uint16 bit patterns.
func typeOf[T Element]() DataType {
	var zero T
	switch any(zero).(type) {
	case uint8:
		return Uint8
	case uint16:
		return Uint16
	case uint32:
		return Uint32
	case uint64:
		return Uint64
	case int8:
		return Int8
	case int16:
		return Int16
	case int32:
		return Int32
	case int64:
		return Int64
	case float32:
		return Float32
	case float64:
		return Float64
	case bool:
		return Bool
	default:
		return NoType
	}
}
