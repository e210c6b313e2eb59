// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package selectpad provides the SelectAndPad plugin and a small engine to
// host it.
//
// # Overview
//
// SelectAndPad takes a batched tensor of shape (B, N, F), keeps the rows of
// each batch element that satisfy a criterion, and writes them in order into
// a fixed (B, P, Q) output. Missing rows and columns are padded; rows past P
// are dropped. The plugin follows the dynamic-shape plugin contract:
// negotiate shapes and formats, configure, initialize, then enqueue launches
// on a stream.
//
// Importing this package registers the creator in the default registry
// under SelectAndPadPlugin@1 in namespace custom_op.
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/selectpad/selectpad"
//	    "github.com/born-ml/selectpad/tensor"
//	)
//
//	eng := selectpad.NewEngine(nil)
//	inst, err := eng.Build(selectpad.Spec{
//	    Name:      selectpad.PluginName,
//	    Version:   selectpad.PluginVersion,
//	    Namespace: selectpad.DefaultNamespace,
//	    Attrs: selectpad.Attributes(
//	        selectpad.StringField(selectpad.AttrCriterion, "row_sum_positive"),
//	        selectpad.Int32Field(selectpad.AttrMaxRows, 4),
//	    ),
//	}, []tensor.Desc{tensor.NewDesc(tensor.Float32, 2, 5, 3)})
//	defer inst.Close()
//
//	stream, _ := selectpad.NewStream(selectpad.CPU)
//	defer stream.Close()
//	out, err := inst.Execute(ctx, stream, []selectpad.Tensor{input})
//
// # Criteria
//
// Built-in criteria are row_sum_positive, row_sum_above, row_max_above,
// row_any_nonzero and mask. Custom criteria can be added with
// RegisterCriterion before plugins using them are created or deserialized.
package selectpad
