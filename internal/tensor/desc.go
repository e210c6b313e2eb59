package tensor

import "fmt"

// Format is the memory layout of a tensor.
type Format int32

// Supported layouts. Only FormatLinear is packed row-major; the vectorized
// layouts exist so that format negotiation can be exercised and refused.
const (
	FormatLinear Format = iota
	FormatCHW2
	FormatHWC8
	FormatCHW4
	FormatCHW32
)

// String returns the layout name.
func (f Format) String() string {
	switch f {
	case FormatLinear:
		return "linear"
	case FormatCHW2:
		return "chw2"
	case FormatHWC8:
		return "hwc8"
	case FormatCHW4:
		return "chw4"
	case FormatCHW32:
		return "chw32"
	default:
		return "unknown"
	}
}

// Desc describes one tensor at a plugin boundary.
type Desc struct {
	Type   DataType
	Format Format
	Dims   Shape
	Scale  float32 // Quantization scale, unused for float types.
}

// NewDesc returns a linear descriptor with unit scale.
func NewDesc(dtype DataType, dims ...int) Desc {
	return Desc{Type: dtype, Format: FormatLinear, Dims: Shape(dims).Clone(), Scale: 1}
}

// ByteSize returns the packed byte size of the tensor, 0 for dynamic shapes.
func (d Desc) ByteSize() int {
	return d.Dims.NumElements() * d.Type.Size()
}

// Clone returns a deep copy of the descriptor.
func (d Desc) Clone() Desc {
	d.Dims = d.Dims.Clone()
	return d
}

// Equal reports whether two descriptors are identical.
func (d Desc) Equal(other Desc) bool {
	return d.Type == other.Type && d.Format == other.Format && d.Scale == other.Scale && d.Dims.Equal(other.Dims)
}

// String formats the descriptor for logs.
func (d Desc) String() string {
	return fmt.Sprintf("%s%s/%s", d.Type, d.Dims, d.Format)
}

// DynamicDesc is a descriptor plus the bounds of every dynamic dimension, as
// handed to a plugin during configuration.
type DynamicDesc struct {
	Desc
	Min Shape
	Max Shape
}

// NewDynamicDesc builds a DynamicDesc whose bounds equal its concrete dims.
func NewDynamicDesc(d Desc) DynamicDesc {
	return DynamicDesc{Desc: d.Clone(), Min: d.Dims.Clone(), Max: d.Dims.Clone()}
}

// Upper returns the largest shape the tensor can take: Max where present,
// otherwise the concrete dims.
func (d DynamicDesc) Upper() Shape {
	out := d.Dims.Clone()
	for i := range out {
		if i < len(d.Max) && d.Max[i] > 0 {
			out[i] = d.Max[i]
		}
	}
	return out
}
