// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the tensor descriptors exchanged with plugins.
//
// # Overview
//
// A plugin never owns tensor memory. The host describes every input and
// output with a Desc (element type, layout and shape) and hands the plugin
// raw device buffers at launch. This package provides:
//   - DataType: the element types a plugin may accept
//   - Shape: dimensions, where Dynamic marks an extent only known at launch
//   - Desc and DynamicDesc: concrete and range-bounded descriptors
//   - DimExpr: symbolic shape expressions used during shape inference
//
// # Basic Usage
//
//	import "github.com/born-ml/selectpad/tensor"
//
//	in := tensor.NewDesc(tensor.Float32, 8, 128, 64)
//	fmt.Println(in, in.ByteSize()) // float32(8, 128, 64)/linear 262144
//
// # Symbolic Shapes
//
// Shape inference works on expressions rather than integers, so a batch
// dimension can stay symbolic until execution:
//
//	b := tensor.NewExprBuilder()
//	dims := b.SymbolicDims("in0", tensor.Shape{tensor.Dynamic, 128, 64})
//	bindings := map[string]int{}
//	_ = tensor.Bind(bindings, dims, tensor.Shape{3, 128, 64})
//	shape, _ := dims.Eval(bindings) // (3, 128, 64)
//
// # Supported Data Types
//
//   - Float32, Float16 (data tensors)
//   - Int8 (recognized, rejected by format negotiation)
//   - Int32, Bool (masks)
package tensor
