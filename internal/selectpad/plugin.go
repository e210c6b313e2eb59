package selectpad

import (
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/selectpad/internal/metrics"
	"github.com/born-ml/selectpad/internal/plugin"
	"github.com/born-ml/selectpad/internal/tensor"
)

// Plugin identity.
const (
	PluginName       = "SelectAndPadPlugin"
	PluginVersion    = "1"
	DefaultNamespace = "custom_op"
)

// unset marks a bound that negotiation has not fixed yet.
const unset = -1

// Plugin selects the valid rows of a [batch, rows, features] tensor and
// writes them, in order, into a [batch, P, Q] output padded with a constant.
//
// An instance is driven by one host thread at a time. Clones share nothing
// and may run concurrently.
type Plugin struct {
	life      plugin.Lifecycle
	name      string
	namespace string

	input  tensor.Desc // configured upper bound of input 0
	output tensor.Desc

	p, q     int32
	tmpBytes int64

	crit      *Criterion
	threshold float32
	padValue  float32

	exec *execTables // set between Initialize and Terminate
}

var _ plugin.DynamicPlugin = (*Plugin)(nil)

func newPlugin(name string, crit *Criterion, threshold, padValue float32) *Plugin {
	if name == "" {
		name = PluginName
	}
	return &Plugin{
		life:      plugin.NewLifecycle(plugin.Constructed),
		name:      name,
		namespace: DefaultNamespace,
		p:         unset,
		q:         unset,
		crit:      crit,
		threshold: threshold,
		padValue:  padValue,
	}
}

// Name returns the instance name.
func (p *Plugin) Name() string {
	return p.name
}

// PluginType implements plugin.Identity.
func (p *Plugin) PluginType() string {
	return PluginName
}

// PluginVersion implements plugin.Identity.
func (p *Plugin) PluginVersion() string {
	return PluginVersion
}

// SetPluginNamespace implements plugin.Identity. An empty namespace is
// ignored.
func (p *Plugin) SetPluginNamespace(ns string) {
	if ns == "" {
		klog.Warningf("selectpad %s: ignoring empty plugin namespace", p.name)
		return
	}
	p.namespace = ns
}

// PluginNamespace implements plugin.Identity.
func (p *Plugin) PluginNamespace() string {
	return p.namespace
}

// State returns the lifecycle state of the instance.
func (p *Plugin) State() plugin.State {
	return p.life.State()
}

// Bounds returns P and Q, or -1 for a bound not fixed yet.
func (p *Plugin) Bounds() (rows, cols int) {
	return int(p.p), int(p.q)
}

// Criterion returns the selection rule of the instance.
func (p *Plugin) Criterion() *Criterion {
	return p.crit
}

// Configured returns the upper-bound input and output descriptors fixed by
// ConfigurePlugin. Both are zero before configuration.
func (p *Plugin) Configured() (input, output tensor.Desc) {
	return p.input, p.output
}

// Threshold returns the criterion threshold and the padding value.
func (p *Plugin) Threshold() (threshold, padValue float32) {
	return p.threshold, p.padValue
}

// NbOutputs implements plugin.Negotiator.
func (p *Plugin) NbOutputs() int {
	return 1
}

// NbInputs returns the number of inputs the instance expects: the data tensor
// plus, for mask criteria, the mask.
func (p *Plugin) NbInputs() int {
	return p.crit.Inputs
}

// OutputDimensions implements plugin.Negotiator. The batch dimension is
// passed through symbolically; rows and features become the constants P and
// Q, fixing them from the input on first use.
func (p *Plugin) OutputDimensions(outputIndex int, inputs []tensor.DimsExprs, b *tensor.ExprBuilder) tensor.DimsExprs {
	if outputIndex != 0 {
		exceptions.Panicf("%s.OutputDimensions: output index %d out of range, plugin has 1 output", p.name, outputIndex)
	}
	if len(inputs) != p.NbInputs() {
		exceptions.Panicf("%s.OutputDimensions: got %d inputs, criterion %q takes %d", p.name, len(inputs), p.crit.Name, p.NbInputs())
	}
	in := inputs[0]
	if len(in) != 3 {
		exceptions.Panicf("%s.OutputDimensions: input 0 must have rank 3 [batch, rows, features], got %s", p.name, in)
	}
	if p.crit.Inputs == 2 && len(inputs[1]) != 2 {
		exceptions.Panicf("%s.OutputDimensions: mask must have rank 2 [batch, rows], got %s", p.name, inputs[1])
	}

	switch p.life.State() {
	case plugin.Destroyed:
		exceptions.Panicf("%s.OutputDimensions: %v", p.name, p.life.Require("OutputDimensions"))
	case plugin.Constructed, plugin.Negotiating:
		if err := p.life.Move(plugin.Negotiating); err != nil {
			exceptions.Panicf("%s.OutputDimensions: %v", p.name, err)
		}
	}

	if p.p == unset {
		if !in[1].IsConstant() {
			exceptions.Panicf("%s.OutputDimensions: row dimension %s is dynamic and max_rows is not set", p.name, in[1])
		}
		p.p = int32(in[1].ConstantValue()) //nolint:gosec // G115: tensor dims fit in int32
		klog.V(1).Infof("selectpad %s: fixed P=%d from input rows", p.name, p.p)
	}
	if p.q == unset {
		if !in[2].IsConstant() {
			exceptions.Panicf("%s.OutputDimensions: feature dimension %s is dynamic and max_cols is not set", p.name, in[2])
		}
		p.q = int32(in[2].ConstantValue()) //nolint:gosec // G115: tensor dims fit in int32
		klog.V(1).Infof("selectpad %s: fixed Q=%d from input features", p.name, p.q)
	}
	return tensor.DimsExprs{in[0], b.Constant(int(p.p)), b.Constant(int(p.q))}
}

// SupportsFormatCombination implements plugin.Negotiator. Data tensors are
// float32 or float16 in linear layout and the output matches input 0; a mask
// may also be int32 or bool.
func (p *Plugin) SupportsFormatCombination(pos int, inOut []tensor.Desc, nbInputs, nbOutputs int) bool {
	if nbInputs != p.NbInputs() || nbOutputs != 1 || len(inOut) != nbInputs+nbOutputs || pos < 0 || pos >= len(inOut) {
		return false
	}
	d := inOut[pos]
	if d.Format != tensor.FormatLinear {
		return false
	}
	switch {
	case pos == 0:
		return d.Type.IsFloat()
	case pos < nbInputs:
		return maskType(d.Type)
	default:
		return d.Type.IsFloat() && d.Type == inOut[0].Type
	}
}

func maskType(dt tensor.DataType) bool {
	switch dt {
	case tensor.Float32, tensor.Float16, tensor.Int32, tensor.Bool:
		return true
	}
	return false
}

// OutputDataType implements plugin.Negotiator. The output has the type of
// input 0.
func (p *Plugin) OutputDataType(index int, inputTypes []tensor.DataType) (tensor.DataType, error) {
	if index != 0 {
		return 0, errors.Wrapf(plugin.ErrContract, "%s.OutputDataType: output index %d out of range", p.name, index)
	}
	if len(inputTypes) != p.NbInputs() {
		return 0, errors.Wrapf(plugin.ErrContract, "%s.OutputDataType: got %d input types, want %d", p.name, len(inputTypes), p.NbInputs())
	}
	return inputTypes[0], nil
}

// ConfigurePlugin implements plugin.Negotiator. It fixes any bound still
// unset from the largest input shape and caches the workspace size.
// Reconfiguring with the same shapes changes nothing; a configuration that
// contradicts P or Q is refused.
func (p *Plugin) ConfigurePlugin(in, out []tensor.DynamicDesc) error {
	if err := p.life.Require("ConfigurePlugin", plugin.Constructed, plugin.Negotiating, plugin.Configured, plugin.Executable); err != nil {
		return err
	}
	if len(in) != p.NbInputs() || len(out) != 1 {
		return errors.Wrapf(plugin.ErrContract, "%s.ConfigurePlugin: got %d inputs and %d outputs, want %d and 1",
			p.name, len(in), len(out), p.NbInputs())
	}

	upper := in[0].Upper()
	if len(upper) != 3 {
		return errors.Wrapf(plugin.ErrConfig, "%s.ConfigurePlugin: input 0 must have rank 3, got %s", p.name, upper)
	}
	if upper.IsDynamic() {
		return errors.Wrapf(plugin.ErrConfig, "%s.ConfigurePlugin: input 0 %s has no upper bound", p.name, upper)
	}
	if !in[0].Type.IsFloat() || out[0].Type != in[0].Type {
		return errors.Wrapf(plugin.ErrConfig, "%s.ConfigurePlugin: unsupported types %s -> %s", p.name, in[0].Type, out[0].Type)
	}

	rows, cols := p.p, p.q
	if rows == unset {
		rows = int32(upper[1]) //nolint:gosec // G115: tensor dims fit in int32
	}
	if cols == unset {
		cols = int32(upper[2]) //nolint:gosec // G115: tensor dims fit in int32
	}
	if od := out[0].Dims; len(od) == 3 {
		if (od[1] >= 0 && od[1] != int(rows)) || (od[2] >= 0 && od[2] != int(cols)) {
			klog.Warningf("selectpad %s: refusing output %s, bounds are P=%d Q=%d", p.name, od, rows, cols)
			return errors.Wrapf(plugin.ErrConfig, "%s.ConfigurePlugin: output %s contradicts P=%d Q=%d", p.name, od, rows, cols)
		}
	}

	p.p, p.q = rows, cols
	p.input = in[0].Desc.Clone()
	p.input.Dims = upper
	p.output = tensor.Desc{
		Type:   in[0].Type,
		Format: tensor.FormatLinear,
		Dims:   tensor.Shape{upper[0], int(rows), int(cols)},
		Scale:  out[0].Scale,
	}
	p.tmpBytes = int64(p.layout().total)
	metrics.WorkspaceBytes.Observe(float64(p.tmpBytes))

	if p.life.State() == plugin.Executable {
		p.exec = newExecTables(p.crit, p.padValue, p.input.Type)
	} else if err := p.life.Move(plugin.Configured); err != nil {
		return err
	}
	klog.V(1).Infof("selectpad %s: configured %s -> %s, workspace %d bytes", p.name, p.input, p.output, p.tmpBytes)
	return nil
}

// layout returns the workspace layout for the configured upper bounds.
func (p *Plugin) layout() workspaceLayout {
	return decideTemp(p.input.Dims[0], p.input.Dims[1], int(p.p), int(p.q), p.input.Type)
}

// Clone implements plugin.DynamicPlugin. The copy has the same negotiated
// state and lifecycle position but shares nothing with p.
func (p *Plugin) Clone() plugin.DynamicPlugin {
	if p.life.State() == plugin.Destroyed {
		exceptions.Panicf("%s.Clone: %v", p.name, p.life.Require("Clone"))
	}
	c := *p
	c.input = p.input.Clone()
	c.output = p.output.Clone()
	if p.exec != nil {
		c.exec = newExecTables(p.crit, p.padValue, p.input.Type)
	}
	return &c
}

// Destroy implements plugin.DynamicPlugin.
func (p *Plugin) Destroy() {
	if p.life.State() == plugin.Destroyed {
		klog.Warningf("selectpad %s: Destroy called twice", p.name)
		return
	}
	p.exec = nil
	_ = p.life.Move(plugin.Destroyed)
	klog.V(1).Infof("selectpad %s: destroyed", p.name)
}
