package tensor

import (
	"encoding/binary"
	"math"

	"github.com/x448/float16"
)

// Load reads element idx of a packed buffer of type dt as float32.
// Integer and bool elements are converted numerically.
func Load(data []byte, dt DataType, idx int) float32 {
	switch dt {
	case Float32:
		return math.Float32frombits(binary.LittleEndian.Uint32(data[idx*4:]))
	case Float16:
		return float16.Frombits(binary.LittleEndian.Uint16(data[idx*2:])).Float32()
	case Int32:
		//nolint:gosec // G115: two's complement reinterpretation is intended
		return float32(int32(binary.LittleEndian.Uint32(data[idx*4:])))
	case Int8:
		return float32(int8(data[idx]))
	case Bool:
		if data[idx] != 0 {
			return 1
		}
		return 0
	default:
		panic("unknown data type")
	}
}

// Store writes v into element idx of a packed buffer of type dt.
func Store(data []byte, dt DataType, idx int, v float32) {
	switch dt {
	case Float32:
		binary.LittleEndian.PutUint32(data[idx*4:], math.Float32bits(v))
	case Float16:
		binary.LittleEndian.PutUint16(data[idx*2:], float16.Fromfloat32(v).Bits())
	case Int32:
		//nolint:gosec // G115: truncation toward zero is intended
		binary.LittleEndian.PutUint32(data[idx*4:], uint32(int32(v)))
	case Int8:
		//nolint:gosec // G115: truncation toward zero is intended
		data[idx] = byte(int8(v))
	case Bool:
		if v != 0 {
			data[idx] = 1
		} else {
			data[idx] = 0
		}
	default:
		panic("unknown data type")
	}
}

// Encode packs float32 values into a new buffer of type dt.
func Encode(values []float32, dt DataType) []byte {
	out := make([]byte, len(values)*dt.Size())
	for i, v := range values {
		Store(out, dt, i, v)
	}
	return out
}

// Decode unpacks a buffer of type dt into float32 values.
func Decode(data []byte, dt DataType) []float32 {
	n := len(data) / dt.Size()
	out := make([]float32, n)
	for i := range out {
		out[i] = Load(data, dt, i)
	}
	return out
}
