// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import "github.com/born-ml/selectpad/internal/tensor"

// DataType is the element type of a tensor.
type DataType = tensor.DataType

// Supported data types.
const (
	Float32 = tensor.Float32
	Float16 = tensor.Float16
	Int8    = tensor.Int8
	Int32   = tensor.Int32
	Bool    = tensor.Bool
)

// ParseDataType converts a name such as "float32" or "fp16" into a DataType.
func ParseDataType(s string) (DataType, error) {
	return tensor.ParseDataType(s)
}

// Format is the memory layout of a tensor.
type Format = tensor.Format

// Supported layouts. Plugins in this module accept FormatLinear only.
const (
	FormatLinear = tensor.FormatLinear
	FormatCHW2   = tensor.FormatCHW2
	FormatHWC8   = tensor.FormatHWC8
	FormatCHW4   = tensor.FormatCHW4
	FormatCHW32  = tensor.FormatCHW32
)

// Shape represents tensor dimensions.
type Shape = tensor.Shape

// Dynamic marks a dimension known only at execution time.
const Dynamic = tensor.Dynamic

// Desc describes a tensor: element type, layout and dimensions.
type Desc = tensor.Desc

// DynamicDesc is a Desc with the range of shapes it may take at runtime.
type DynamicDesc = tensor.DynamicDesc

// NewDesc builds a linear descriptor.
func NewDesc(dtype DataType, dims ...int) Desc {
	return tensor.NewDesc(dtype, dims...)
}

// NewDynamicDesc builds a DynamicDesc whose bounds equal d's dims.
func NewDynamicDesc(d Desc) DynamicDesc {
	return tensor.NewDynamicDesc(d)
}

// DimExpr is a symbolic dimension expression.
type DimExpr = tensor.DimExpr

// DimsExprs is a symbolic shape.
type DimsExprs = tensor.DimsExprs

// ExprBuilder creates dimension expressions.
type ExprBuilder = tensor.ExprBuilder

// NewExprBuilder returns an empty builder.
func NewExprBuilder() *ExprBuilder {
	return tensor.NewExprBuilder()
}

// Bind records the values of the symbols in exprs given the actual shape.
func Bind(bindings map[string]int, exprs DimsExprs, actual Shape) error {
	return tensor.Bind(bindings, exprs, actual)
}
