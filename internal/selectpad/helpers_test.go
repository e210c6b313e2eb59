package selectpad

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/born-ml/selectpad/internal/device"
	"github.com/born-ml/selectpad/internal/parallel"
	"github.com/born-ml/selectpad/internal/plugin"
	"github.com/born-ml/selectpad/internal/tensor"
)

type attrs struct {
	criterion          string
	maxRows, maxCols   int32
	threshold, padding float32
}

func newTestPlugin(t *testing.T, a attrs) *Plugin {
	t.Helper()
	fields := []plugin.Field{plugin.StringField(AttrCriterion, a.criterion)}
	if a.maxRows != 0 {
		fields = append(fields, plugin.Int32Field(AttrMaxRows, a.maxRows))
	}
	if a.maxCols != 0 {
		fields = append(fields, plugin.Int32Field(AttrMaxCols, a.maxCols))
	}
	if a.threshold != 0 {
		fields = append(fields, plugin.Float32Field(AttrThreshold, a.threshold))
	}
	if a.padding != 0 {
		fields = append(fields, plugin.Float32Field(AttrPadValue, a.padding))
	}
	p, err := NewCreator().Create("test", plugin.NewFieldCollection(fields...))
	require.NoError(t, err)
	return p
}

// negotiate runs OutputDimensions and ConfigurePlugin for an input bounded by
// maxDims, with a dynamic batch axis, and returns the static output shape.
func negotiate(t *testing.T, p *Plugin, dt tensor.DataType, maxDims tensor.Shape) tensor.Shape {
	t.Helper()
	b := tensor.NewExprBuilder()
	inShape := tensor.Shape{tensor.Dynamic, maxDims[1], maxDims[2]}
	inputs := []tensor.DimsExprs{b.SymbolicDims("in0", inShape)}
	in := []tensor.DynamicDesc{{
		Desc: tensor.NewDesc(dt, inShape...),
		Min:  tensor.Shape{1, maxDims[1], maxDims[2]},
		Max:  maxDims.Clone(),
	}}
	if p.NbInputs() == 2 {
		maskShape := tensor.Shape{tensor.Dynamic, maxDims[1]}
		inputs = append(inputs, b.SymbolicDims("in1", maskShape))
		in = append(in, tensor.DynamicDesc{
			Desc: tensor.NewDesc(tensor.Int32, maskShape...),
			Max:  tensor.Shape{maxDims[0], maxDims[1]},
		})
	}
	outExprs := p.OutputDimensions(0, inputs, b)
	out := []tensor.DynamicDesc{{Desc: tensor.NewDesc(dt, outExprs.Static()...)}}
	require.NoError(t, p.ConfigurePlugin(in, out))
	return outExprs.Static()
}

func setup(t *testing.T, a attrs, dt tensor.DataType, maxDims tensor.Shape) *Plugin {
	t.Helper()
	p := newTestPlugin(t, a)
	negotiate(t, p, dt, maxDims)
	require.NoError(t, p.Initialize())
	return p
}

type hostTensor struct {
	desc tensor.Desc
	data []float32
}

// execute runs one Enqueue on a fresh CPU stream and returns the decoded
// output.
func execute(t *testing.T, p *Plugin, inputs ...hostTensor) []float32 {
	t.Helper()
	stream := device.NewCPUStream(parallel.DefaultConfig())
	defer func() { require.NoError(t, stream.Close()) }()
	out, err := enqueueOn(p, stream, inputs...)
	require.NoError(t, err)
	require.NoError(t, stream.Synchronize())
	return tensor.Decode(out.Bytes(), p.output.Type)
}

func enqueueOn(p *Plugin, stream device.Stream, inputs ...hostTensor) (*device.Buffer, error) {
	descs := make([]tensor.Desc, len(inputs))
	bufs := make([]*device.Buffer, len(inputs))
	for i, in := range inputs {
		descs[i] = in.desc
		bufs[i] = device.FromBytes(stream.Device(), tensor.Encode(in.data, in.desc.Type))
	}
	rows, cols := p.Bounds()
	outDesc := tensor.NewDesc(p.output.Type, inputs[0].desc.Dims[0], rows, cols)
	out := device.Alloc(stream.Device(), outDesc.ByteSize())
	ws := device.Alloc(stream.Device(), int(p.WorkspaceSize(descs, []tensor.Desc{outDesc})))
	err := p.Enqueue(descs, []tensor.Desc{outDesc}, bufs, []*device.Buffer{out}, ws, stream)
	return out, err
}

func flatten(rows ...[]float32) []float32 {
	var out []float32
	for _, r := range rows {
		out = append(out, r...)
	}
	return out
}
