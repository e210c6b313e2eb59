// Package tensor provides the tensor descriptors, data types and symbolic
// dimension expressions exchanged between plugins and the host runtime.
package tensor

import "github.com/pkg/errors"

// DataType represents the element type of a tensor as seen by the runtime.
type DataType int32

// Supported data types. The numeric values are part of the serialized plugin
// layout and must not be reordered.
const (
	Float32 DataType = iota
	Float16
	Int8
	Int32
	Bool
)

// Size returns the byte size of the data type.
func (dt DataType) Size() int {
	switch dt {
	case Float32, Int32:
		return 4
	case Float16:
		return 2
	case Int8, Bool:
		return 1
	default:
		panic("unknown data type")
	}
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Float16:
		return "float16"
	case Int8:
		return "int8"
	case Int32:
		return "int32"
	case Bool:
		return "bool"
	default:
		return "unknown"
	}
}

// Valid reports whether dt is one of the declared data types.
func (dt DataType) Valid() bool {
	return dt >= Float32 && dt <= Bool
}

// IsFloat reports whether dt is a floating point type.
func (dt DataType) IsFloat() bool {
	return dt == Float32 || dt == Float16
}

// ParseDataType converts a name ("float32", "fp16", "half", ...) into a DataType.
func ParseDataType(s string) (DataType, error) {
	switch s {
	case "float32", "fp32", "float":
		return Float32, nil
	case "float16", "fp16", "half":
		return Float16, nil
	case "int8":
		return Int8, nil
	case "int32":
		return Int32, nil
	case "bool":
		return Bool, nil
	default:
		return 0, errors.Errorf("unknown data type %q", s)
	}
}

// MarshalText encodes the data type by name.
func (dt DataType) MarshalText() ([]byte, error) {
	if !dt.Valid() {
		return nil, errors.Errorf("invalid data type %d", int32(dt))
	}
	return []byte(dt.String()), nil
}

// UnmarshalText decodes a name accepted by ParseDataType.
func (dt *DataType) UnmarshalText(text []byte) error {
	v, err := ParseDataType(string(text))
	if err != nil {
		return err
	}
	*dt = v
	return nil
}
