package plugin

import (
	"github.com/born-ml/selectpad/internal/device"
	"github.com/born-ml/selectpad/internal/tensor"
)

// Identity is implemented by every plugin instance.
type Identity interface {
	PluginType() string
	PluginVersion() string
	SetPluginNamespace(ns string)
	PluginNamespace() string
}

// Negotiator answers the host's shape, type and format queries.
type Negotiator interface {
	// NbOutputs returns the number of output tensors.
	NbOutputs() int
	// OutputDimensions returns the symbolic shape of output outputIndex.
	// Contract violations panic.
	OutputDimensions(outputIndex int, inputs []tensor.DimsExprs, b *tensor.ExprBuilder) tensor.DimsExprs
	// SupportsFormatCombination reports whether inOut[pos] may take its
	// type and format given inOut[:pos]. It has no side effects.
	SupportsFormatCombination(pos int, inOut []tensor.Desc, nbInputs, nbOutputs int) bool
	// OutputDataType returns the element type of output index.
	OutputDataType(index int, inputTypes []tensor.DataType) (tensor.DataType, error)
	// ConfigurePlugin finalises shapes and types before execution.
	ConfigurePlugin(in, out []tensor.DynamicDesc) error
}

// Executor runs the plugin on a device stream.
type Executor interface {
	// WorkspaceSize reports scratch bytes needed by Enqueue. It never allocates.
	WorkspaceSize(inputs, outputs []tensor.Desc) int64
	// Initialize acquires per-engine resources. It pairs with Terminate.
	Initialize() error
	// Terminate releases everything Initialize acquired.
	Terminate()
	// Enqueue submits the computation on stream and returns without waiting.
	Enqueue(inputDesc, outputDesc []tensor.Desc, inputs, outputs []*device.Buffer,
		workspace *device.Buffer, stream device.Stream) error
}

// Serializer persists plugin state.
type Serializer interface {
	// SerializationSize returns the exact byte count Serialize writes.
	SerializationSize() int
	// Serialize writes the plugin state into buf.
	Serialize(buf []byte) error
}

// DynamicPlugin is an operation with dynamic-shape support.
type DynamicPlugin interface {
	Identity
	Negotiator
	Executor
	Serializer
	// Clone returns an independent copy with identical negotiated state.
	Clone() DynamicPlugin
	// Destroy releases the instance. It must be the last call.
	Destroy()
}

// Creator builds plugin instances of one type.
type Creator interface {
	PluginName() string
	PluginVersion() string
	// FieldNames returns the attribute schema. The result is shared and must
	// not be modified.
	FieldNames() *FieldCollection
	// CreatePlugin builds an unconfigured instance from attributes.
	CreatePlugin(name string, fc *FieldCollection) (DynamicPlugin, error)
	// DeserializePlugin rebuilds a configured instance from Serialize output.
	DeserializePlugin(name string, data []byte) (DynamicPlugin, error)
	SetPluginNamespace(ns string)
	PluginNamespace() string
}
