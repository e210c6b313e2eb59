// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package selectpad

import (
	"github.com/born-ml/selectpad/internal/device"
	"github.com/born-ml/selectpad/internal/engine"
	"github.com/born-ml/selectpad/internal/plugin"
	"github.com/born-ml/selectpad/internal/selectpad"
)

// Plugin identity and attribute names.
const (
	PluginName       = selectpad.PluginName
	PluginVersion    = selectpad.PluginVersion
	DefaultNamespace = selectpad.DefaultNamespace

	AttrCriterion = selectpad.AttrCriterion
	AttrMaxRows   = selectpad.AttrMaxRows
	AttrMaxCols   = selectpad.AttrMaxCols
	AttrThreshold = selectpad.AttrThreshold
	AttrPadValue  = selectpad.AttrPadValue
)

// Built-in criterion ids. They are part of the serialized layout.
const (
	RowSumPositive = selectpad.RowSumPositive
	RowSumAbove    = selectpad.RowSumAbove
	RowMaxAbove    = selectpad.RowMaxAbove
	RowAnyNonzero  = selectpad.RowAnyNonzero
	MaskNonzero    = selectpad.MaskNonzero
)

// Plugin is a SelectAndPad instance.
type Plugin = selectpad.Plugin

// Creator builds Plugin instances.
type Creator = selectpad.Creator

// NewCreator returns a creator in the default namespace.
func NewCreator() *Creator {
	return selectpad.NewCreator()
}

// Criterion is a named row-selection rule.
type Criterion = selectpad.Criterion

// Row is one row of the data tensor as seen by a Predicate.
type Row = selectpad.Row

// Predicate reports whether a row is selected.
type Predicate = selectpad.Predicate

// RegisterCriterion adds a criterion. Names and ids must be unique.
func RegisterCriterion(c Criterion) error {
	return selectpad.RegisterCriterion(c)
}

// LookupCriterion finds a criterion by name.
func LookupCriterion(name string) (*Criterion, bool) {
	return selectpad.LookupCriterion(name)
}

// CriterionNames lists registered criteria in sorted order.
func CriterionNames() []string {
	return selectpad.CriterionNames()
}

// Plugin contract types.
type (
	DynamicPlugin   = plugin.DynamicPlugin
	PluginCreator   = plugin.Creator
	Registry        = plugin.Registry
	Field           = plugin.Field
	FieldCollection = plugin.FieldCollection
	State           = plugin.State
)

// Errors reported by plugins and the registry.
var (
	ErrConfig   = plugin.ErrConfig
	ErrCorrupt  = plugin.ErrCorrupt
	ErrContract = plugin.ErrContract
	ErrNotFound = plugin.ErrNotFound
	ErrLaunch   = device.ErrLaunch
	ErrNoFormat = engine.ErrNoFormat
)

// DefaultRegistry returns the process-wide creator registry.
func DefaultRegistry() *Registry {
	return plugin.Default()
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return plugin.NewRegistry()
}

// Attributes collects fields into a FieldCollection.
func Attributes(fields ...Field) *FieldCollection {
	return plugin.NewFieldCollection(fields...)
}

func Int32Field(name string, v ...int32) Field     { return plugin.Int32Field(name, v...) }
func Float32Field(name string, v ...float32) Field { return plugin.Float32Field(name, v...) }
func StringField(name, v string) Field             { return plugin.StringField(name, v) }

// Engine, instances and host tensors.
type (
	Engine   = engine.Engine
	Instance = engine.Instance
	Spec     = engine.Spec
	Tensor   = engine.Tensor
)

// NewEngine returns an engine over reg, or over the default registry when
// reg is nil.
func NewEngine(reg *Registry) *Engine {
	return engine.New(reg)
}

// Device streams.
type (
	Stream = device.Stream
	Kind   = device.Kind
)

// Supported devices.
const (
	CPU    = device.CPU
	WebGPU = device.WebGPU
)

// NewStream creates a stream on the requested device.
func NewStream(kind Kind) (Stream, error) {
	return device.NewStream(kind)
}
