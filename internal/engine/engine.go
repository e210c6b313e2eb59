// Package engine is a minimal host runtime for dynamic plugins. It drives a
// plugin through the documented call order (lookup, create, format search,
// shape inference, configure, initialize, enqueue) and converts contract
// panics raised by plugin callbacks into errors.
package engine

import (
	"context"
	"fmt"

	"github.com/gomlx/exceptions"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/selectpad/internal/device"
	"github.com/born-ml/selectpad/internal/plugin"
	"github.com/born-ml/selectpad/internal/tensor"
)

// ErrNoFormat reports that a plugin accepts none of the candidate formats.
var ErrNoFormat = errors.New("no supported format combination")

// Tensor is a host tensor: a descriptor plus its values as float32.
type Tensor struct {
	Type tensor.DataType `json:"dtype"`
	Dims tensor.Shape    `json:"dims"`
	Data []float32       `json:"data"`
}

// Desc returns the linear descriptor of t.
func (t Tensor) Desc() tensor.Desc {
	return tensor.NewDesc(t.Type, t.Dims...)
}

// Validate checks that Data matches Dims.
func (t Tensor) Validate() error {
	if err := t.Dims.Validate(); err != nil {
		return err
	}
	if !t.Type.Valid() {
		return errors.Errorf("invalid data type %d", t.Type)
	}
	if n := t.Dims.NumElements(); n != len(t.Data) {
		return errors.Errorf("tensor %s%s has %d values, want %d", t.Type, t.Dims, len(t.Data), n)
	}
	return nil
}

// Spec selects a creator and the attributes to build a plugin with.
type Spec struct {
	Name      string
	Version   string
	Namespace string
	Attrs     *plugin.FieldCollection
}

// Engine builds plugin instances from a registry.
type Engine struct {
	registry *plugin.Registry
}

// New returns an engine resolving creators in reg, or in the default
// registry when reg is nil.
func New(reg *plugin.Registry) *Engine {
	if reg == nil {
		reg = plugin.Default()
	}
	return &Engine{registry: reg}
}

// Registry returns the registry the engine resolves creators in.
func (e *Engine) Registry() *plugin.Registry {
	return e.registry
}

// guard runs a plugin callback, turning a panic into an error wrapping
// plugin.ErrContract.
func guard(op string, fn func() error) error {
	var inner error
	if err := exceptions.TryCatch[error](func() { inner = fn() }); err != nil {
		return errors.Wrapf(plugin.ErrContract, "%s: %v", op, err)
	}
	return inner
}

// Instance is a configured and initialized plugin owned by the engine.
type Instance struct {
	ID     uuid.UUID
	Plugin plugin.DynamicPlugin

	inputTypes []tensor.DataType
	outputType tensor.DataType
	workspace  int64
}

// Build creates a plugin from spec and negotiates it for inputs, which give
// the largest shapes the instance will run with. inputs[0] is the data tensor;
// any further entries are auxiliary inputs such as masks.
func (e *Engine) Build(spec Spec, inputs []tensor.Desc) (*Instance, error) {
	creator, err := e.registry.Lookup(spec.Name, spec.Version, spec.Namespace)
	if err != nil {
		return nil, err
	}
	var p plugin.DynamicPlugin
	err = guard("CreatePlugin", func() error {
		var err error
		p, err = creator.CreatePlugin(spec.Name, spec.Attrs)
		return err
	})
	if err != nil {
		return nil, err
	}
	inst, err := e.negotiate(p, inputs)
	if err != nil {
		_ = guard("Destroy", func() error { p.Destroy(); return nil })
		return nil, err
	}
	return inst, nil
}

// Load rebuilds an instance from serialized plugin state.
func (e *Engine) Load(spec Spec, data []byte) (*Instance, error) {
	creator, err := e.registry.Lookup(spec.Name, spec.Version, spec.Namespace)
	if err != nil {
		return nil, err
	}
	var p plugin.DynamicPlugin
	err = guard("DeserializePlugin", func() error {
		var err error
		p, err = creator.DeserializePlugin(spec.Name, data)
		return err
	})
	if err != nil {
		return nil, err
	}
	inst := &Instance{ID: uuid.New(), Plugin: p}
	if err := inst.initialize(); err != nil {
		_ = guard("Destroy", func() error { p.Destroy(); return nil })
		return nil, err
	}
	return inst, nil
}

// negotiate runs format selection, shape inference and configuration with a
// dynamic batch axis bounded by inputs, then initializes the plugin.
func (e *Engine) negotiate(p plugin.DynamicPlugin, inputs []tensor.Desc) (*Instance, error) {
	if len(inputs) == 0 {
		return nil, errors.New("no inputs")
	}
	nbOut := p.NbOutputs()
	if nbOut != 1 {
		return nil, errors.Errorf("engine supports single-output plugins, %s has %d", p.PluginType(), nbOut)
	}

	inOut, err := selectFormats(p, inputs)
	if err != nil {
		return nil, err
	}

	types := make([]tensor.DataType, len(inputs))
	for i, in := range inOut[:len(inputs)] {
		types[i] = in.Type
	}
	var outType tensor.DataType
	err = guard("OutputDataType", func() error {
		var err error
		outType, err = p.OutputDataType(0, types)
		return err
	})
	if err != nil {
		return nil, err
	}

	b := tensor.NewExprBuilder()
	exprs := make([]tensor.DimsExprs, len(inputs))
	dyn := make([]tensor.DynamicDesc, len(inputs))
	for i, in := range inOut[:len(inputs)] {
		shape := batchDynamic(in.Dims)
		exprs[i] = b.SymbolicDims(fmt.Sprintf("in%d", i), shape)
		d := in.Clone()
		d.Dims = shape
		dyn[i] = tensor.DynamicDesc{Desc: d, Min: minShape(in.Dims), Max: in.Dims.Clone()}
	}

	var outExprs tensor.DimsExprs
	err = guard("OutputDimensions", func() error {
		outExprs = p.OutputDimensions(0, exprs, b)
		return nil
	})
	if err != nil {
		return nil, err
	}
	klog.V(1).Infof("engine: %s output dims %s", p.PluginType(), outExprs)

	outDesc := tensor.Desc{Type: outType, Format: tensor.FormatLinear, Dims: outExprs.Static(), Scale: 1}
	bindings := make(map[string]int)
	for i, in := range inputs {
		if err := tensor.Bind(bindings, exprs[i], in.Dims); err != nil {
			return nil, err
		}
	}
	maxOut, err := outExprs.Eval(bindings)
	if err != nil {
		return nil, err
	}
	out := []tensor.DynamicDesc{{Desc: outDesc, Max: maxOut}}

	err = guard("ConfigurePlugin", func() error { return p.ConfigurePlugin(dyn, out) })
	if err != nil {
		return nil, err
	}

	inst := &Instance{ID: uuid.New(), Plugin: p, inputTypes: types, outputType: outType}
	if err := inst.initialize(); err != nil {
		return nil, err
	}
	return inst, nil
}

func (inst *Instance) initialize() error {
	if err := guard("Initialize", inst.Plugin.Initialize); err != nil {
		return err
	}
	return guard("WorkspaceSize", func() error {
		inst.workspace = inst.Plugin.WorkspaceSize(nil, nil)
		return nil
	})
}

// selectFormats returns the first descriptor list, inputs then output, that
// the plugin accepts at every position. Input types are tried as given first
// and then with the data tensor in every other floating point type.
func selectFormats(p plugin.DynamicPlugin, inputs []tensor.Desc) ([]tensor.Desc, error) {
	candidates := []tensor.DataType{inputs[0].Type}
	for _, dt := range []tensor.DataType{tensor.Float32, tensor.Float16} {
		if dt != inputs[0].Type {
			candidates = append(candidates, dt)
		}
	}

	nbIn := len(inputs)
	for _, dt := range candidates {
		inOut := make([]tensor.Desc, 0, nbIn+1)
		for _, in := range inputs {
			inOut = append(inOut, in.Clone())
		}
		inOut[0].Type = dt
		inOut = append(inOut, tensor.Desc{Type: dt, Format: tensor.FormatLinear, Scale: 1})

		ok := true
		for pos := range inOut {
			var supported bool
			err := guard("SupportsFormatCombination", func() error {
				supported = p.SupportsFormatCombination(pos, inOut, nbIn, 1)
				return nil
			})
			if err != nil {
				return nil, err
			}
			if !supported {
				ok = false
				break
			}
		}
		if ok {
			if dt != inputs[0].Type {
				klog.Warningf("engine: %s does not accept %s, running in %s", p.PluginType(), inputs[0].Type, dt)
			}
			return inOut, nil
		}
	}
	return nil, errors.Wrapf(ErrNoFormat, "%s with inputs %v", p.PluginType(), inputs)
}

func batchDynamic(s tensor.Shape) tensor.Shape {
	out := s.Clone()
	if len(out) > 0 {
		out[0] = tensor.Dynamic
	}
	return out
}

func minShape(s tensor.Shape) tensor.Shape {
	out := s.Clone()
	if len(out) > 0 {
		out[0] = 1
	}
	return out
}

// InputTypes returns the element types negotiated for the inputs.
func (inst *Instance) InputTypes() []tensor.DataType {
	return inst.inputTypes
}

// WorkspaceSize returns the workspace bytes reported by the plugin.
func (inst *Instance) WorkspaceSize() int64 {
	return inst.workspace
}

// OutputShape evaluates the plugin's output dimensions for concrete input
// shapes.
func (inst *Instance) OutputShape(inputs []tensor.Shape) (tensor.Shape, error) {
	b := tensor.NewExprBuilder()
	bindings := make(map[string]int)
	exprs := make([]tensor.DimsExprs, len(inputs))
	for i, s := range inputs {
		exprs[i] = b.SymbolicDims(fmt.Sprintf("in%d", i), batchDynamic(s))
		if err := tensor.Bind(bindings, exprs[i], s); err != nil {
			return nil, err
		}
	}
	var out tensor.DimsExprs
	err := guard("OutputDimensions", func() error {
		out = inst.Plugin.OutputDimensions(0, exprs, b)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out.Eval(bindings)
}

// Execute runs the instance once on stream and waits for the result. Input
// values are converted to the negotiated types.
func (inst *Instance) Execute(ctx context.Context, stream device.Stream, inputs []Tensor) (Tensor, error) {
	if err := ctx.Err(); err != nil {
		return Tensor{}, err
	}
	shapes := make([]tensor.Shape, len(inputs))
	descs := make([]tensor.Desc, len(inputs))
	bufs := make([]*device.Buffer, len(inputs))
	for i, in := range inputs {
		if err := in.Validate(); err != nil {
			return Tensor{}, errors.WithMessagef(err, "input %d", i)
		}
		if i < len(inst.inputTypes) {
			in.Type = inst.inputTypes[i]
		}
		shapes[i] = in.Dims
		descs[i] = in.Desc()
		bufs[i] = device.FromBytes(stream.Device(), tensor.Encode(in.Data, in.Type))
	}

	outShape, err := inst.OutputShape(shapes)
	if err != nil {
		return Tensor{}, err
	}
	outType := inst.outputType
	if len(inst.inputTypes) == 0 {
		// Loaded instances take their types from the first execution.
		outType = descs[0].Type
	}
	outDesc := tensor.NewDesc(outType, outShape...)
	out := device.Alloc(stream.Device(), outDesc.ByteSize())
	ws := device.Alloc(stream.Device(), int(inst.workspace))

	err = guard("Enqueue", func() error {
		return inst.Plugin.Enqueue(descs, []tensor.Desc{outDesc}, bufs, []*device.Buffer{out}, ws, stream)
	})
	if err != nil {
		return Tensor{}, err
	}
	if err := stream.Synchronize(); err != nil {
		return Tensor{}, err
	}
	klog.V(2).Infof("engine: instance %s produced %s", inst.ID, outDesc)
	return Tensor{Type: outType, Dims: outShape, Data: tensor.Decode(out.Bytes(), outType)}, nil
}

// Serialize returns the plugin's serialized state.
func (inst *Instance) Serialize() ([]byte, error) {
	var buf []byte
	err := guard("Serialize", func() error {
		buf = make([]byte, inst.Plugin.SerializationSize())
		return inst.Plugin.Serialize(buf)
	})
	return buf, err
}

// Clone returns an independent instance with the same negotiated state.
func (inst *Instance) Clone() (*Instance, error) {
	var p plugin.DynamicPlugin
	err := guard("Clone", func() error {
		p = inst.Plugin.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	c := *inst
	c.ID = uuid.New()
	c.Plugin = p
	return &c, nil
}

// Close terminates and destroys the plugin.
func (inst *Instance) Close() error {
	return guard("Destroy", func() error {
		inst.Plugin.Terminate()
		inst.Plugin.Destroy()
		return nil
	})
}
