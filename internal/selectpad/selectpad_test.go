package selectpad

import (
	"fmt"
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/born-ml/selectpad/internal/device"
	"github.com/born-ml/selectpad/internal/parallel"
	"github.com/born-ml/selectpad/internal/plugin"
	"github.com/born-ml/selectpad/internal/tensor"
)

// scenarioInput is a (2, 5, 3) input where item 0 has three rows with a
// positive sum and item 1 has one.
var scenarioInput = flatten(
	[]float32{1, 0, 0}, []float32{-1, -1, 0}, []float32{0, 2, 0}, []float32{0, 0, 0}, []float32{3, 3, 3},
	[]float32{0, 0, 0}, []float32{5, -1, 0}, []float32{0, 0, 0}, []float32{-2, 0, 0}, []float32{0, 0, -1},
)

var scenarioOutput = flatten(
	[]float32{1, 0, 0}, []float32{0, 2, 0}, []float32{3, 3, 3}, []float32{0, 0, 0},
	[]float32{5, -1, 0}, []float32{0, 0, 0}, []float32{0, 0, 0}, []float32{0, 0, 0},
)

func TestSelectAndPad_Scenario(t *testing.T) {
	for _, dt := range []tensor.DataType{tensor.Float32, tensor.Float16} {
		t.Run(dt.String(), func(t *testing.T) {
			p := setup(t, attrs{criterion: "row_sum_positive", maxRows: 4}, dt, tensor.Shape{2, 5, 3})
			rows, cols := p.Bounds()
			assert.Equal(t, 4, rows)
			assert.Equal(t, 3, cols)

			got := execute(t, p, hostTensor{tensor.NewDesc(dt, 2, 5, 3), scenarioInput})
			assert.Equal(t, scenarioOutput, got)
		})
	}
}

func TestSelectAndPad_SmallerBatchThanConfigured(t *testing.T) {
	p := setup(t, attrs{criterion: "row_sum_positive", maxRows: 4}, tensor.Float32, tensor.Shape{8, 5, 3})
	got := execute(t, p, hostTensor{tensor.NewDesc(tensor.Float32, 2, 5, 3), scenarioInput})
	assert.Equal(t, scenarioOutput, got)
}

func TestSelectAndPad_TruncatesToFirstPRows(t *testing.T) {
	p := setup(t, attrs{criterion: "row_any_nonzero", maxRows: 2}, tensor.Float32, tensor.Shape{1, 4, 2})
	in := flatten([]float32{1, 1}, []float32{2, 2}, []float32{3, 3}, []float32{4, 4})

	got := execute(t, p, hostTensor{tensor.NewDesc(tensor.Float32, 1, 4, 2), in})
	assert.Equal(t, flatten([]float32{1, 1}, []float32{2, 2}), got)
}

func TestSelectAndPad_PadsRowsAndColumns(t *testing.T) {
	p := setup(t, attrs{criterion: "row_sum_positive", maxRows: 3, maxCols: 4, padding: -1},
		tensor.Float32, tensor.Shape{1, 2, 2})
	in := flatten([]float32{0, 0}, []float32{7, 8})

	got := execute(t, p, hostTensor{tensor.NewDesc(tensor.Float32, 1, 2, 2), in})
	assert.Equal(t, flatten(
		[]float32{7, 8, -1, -1},
		[]float32{-1, -1, -1, -1},
		[]float32{-1, -1, -1, -1},
	), got)
}

func TestSelectAndPad_DropsColumnsBeyondQ(t *testing.T) {
	p := setup(t, attrs{criterion: "row_sum_positive", maxRows: 2, maxCols: 2}, tensor.Float32, tensor.Shape{1, 2, 3})
	in := flatten([]float32{1, 2, 3}, []float32{4, 5, 6})

	got := execute(t, p, hostTensor{tensor.NewDesc(tensor.Float32, 1, 2, 3), in})
	assert.Equal(t, flatten([]float32{1, 2}, []float32{4, 5}), got)
}

func TestSelectAndPad_ThresholdCriteria(t *testing.T) {
	in := flatten([]float32{1, 1, 1}, []float32{0, 0, 5}, []float32{2, 2, 0})
	tests := []struct {
		criterion string
		threshold float32
		want      []float32
	}{
		{"row_sum_above", 3.5, flatten([]float32{0, 0, 5}, []float32{2, 2, 0}, []float32{0, 0, 0})},
		{"row_max_above", 1.5, flatten([]float32{0, 0, 5}, []float32{2, 2, 0}, []float32{0, 0, 0})},
		{"row_max_above", 4, flatten([]float32{0, 0, 5}, []float32{0, 0, 0}, []float32{0, 0, 0})},
		{"row_sum_positive", 0, in},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%g", tt.criterion, tt.threshold), func(t *testing.T) {
			p := setup(t, attrs{criterion: tt.criterion, threshold: tt.threshold}, tensor.Float32, tensor.Shape{1, 3, 3})
			got := execute(t, p, hostTensor{tensor.NewDesc(tensor.Float32, 1, 3, 3), in})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSelectAndPad_Mask(t *testing.T) {
	p := setup(t, attrs{criterion: "mask", maxRows: 2}, tensor.Float16, tensor.Shape{2, 3, 2})
	require.Equal(t, 2, p.NbInputs())
	in := flatten(
		[]float32{1, 2}, []float32{3, 4}, []float32{5, 6},
		[]float32{7, 8}, []float32{9, 10}, []float32{11, 12},
	)

	for _, mt := range []tensor.DataType{tensor.Int32, tensor.Bool, tensor.Float32} {
		t.Run(mt.String(), func(t *testing.T) {
			mask := []float32{0, 1, 1, 1, 0, 0}
			got := execute(t, p,
				hostTensor{tensor.NewDesc(tensor.Float16, 2, 3, 2), in},
				hostTensor{tensor.NewDesc(mt, 2, 3), mask},
			)
			assert.Equal(t, flatten(
				[]float32{3, 4}, []float32{5, 6},
				[]float32{7, 8}, []float32{0, 0},
			), got)
		})
	}
}

func TestOutputDimensions(t *testing.T) {
	b := tensor.NewExprBuilder()
	in := b.SymbolicDims("in0", tensor.Shape{tensor.Dynamic, 5, 3})

	p := newTestPlugin(t, attrs{criterion: "row_sum_positive"})
	out := p.OutputDimensions(0, []tensor.DimsExprs{in}, b)
	require.Len(t, out, 3)
	assert.Same(t, in[0], out[0])
	assert.Equal(t, "in0.d0", out[0].String())
	assert.Equal(t, tensor.Shape{tensor.Dynamic, 5, 3}, out.Static())
	assert.Equal(t, plugin.Negotiating, p.State())

	// Bounds from attributes win and stay fixed.
	p = newTestPlugin(t, attrs{criterion: "row_sum_positive", maxRows: 4, maxCols: 2})
	out = p.OutputDimensions(0, []tensor.DimsExprs{in}, b)
	assert.Equal(t, tensor.Shape{tensor.Dynamic, 4, 2}, out.Static())
	out = p.OutputDimensions(0, []tensor.DimsExprs{b.SymbolicDims("in0", tensor.Shape{tensor.Dynamic, 9, 9})}, b)
	assert.Equal(t, tensor.Shape{tensor.Dynamic, 4, 2}, out.Static())

	got, err := out.Eval(map[string]int{"in0.d0": 6})
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{6, 4, 2}, got)
}

func TestOutputDimensions_ContractViolations(t *testing.T) {
	b := tensor.NewExprBuilder()
	in := b.SymbolicDims("in0", tensor.Shape{tensor.Dynamic, 5, 3})
	dynRows := b.SymbolicDims("in0", tensor.Shape{tensor.Dynamic, tensor.Dynamic, 3})

	tests := []struct {
		name   string
		index  int
		inputs []tensor.DimsExprs
	}{
		{"output index", 1, []tensor.DimsExprs{in}},
		{"arity", 0, []tensor.DimsExprs{in, in}},
		{"no inputs", 0, nil},
		{"rank", 0, []tensor.DimsExprs{in[:2]}},
		{"dynamic rows without max_rows", 0, []tensor.DimsExprs{dynRows}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPlugin(t, attrs{criterion: "row_sum_positive"})
			err := exceptions.TryCatch[error](func() {
				p.OutputDimensions(tt.index, tt.inputs, b)
			})
			require.Error(t, err)
			rows, _ := p.Bounds()
			assert.Equal(t, unset, rows)
		})
	}

	p := newTestPlugin(t, attrs{criterion: "row_sum_positive"})
	p.Destroy()
	assert.Panics(t, func() { p.OutputDimensions(0, []tensor.DimsExprs{in}, b) })
}

func TestSupportsFormatCombination(t *testing.T) {
	f32 := tensor.NewDesc(tensor.Float32, 2, 5, 3)
	f16 := tensor.NewDesc(tensor.Float16, 2, 5, 3)
	out32 := tensor.NewDesc(tensor.Float32, 2, 4, 3)
	out16 := tensor.NewDesc(tensor.Float16, 2, 4, 3)
	chw4 := f32
	chw4.Format = tensor.FormatCHW4

	p := newTestPlugin(t, attrs{criterion: "row_sum_positive"})
	tests := []struct {
		name  string
		pos   int
		inOut []tensor.Desc
		want  bool
	}{
		{"f32 input", 0, []tensor.Desc{f32, out32}, true},
		{"f16 input", 0, []tensor.Desc{f16, out16}, true},
		{"f32 output", 1, []tensor.Desc{f32, out32}, true},
		{"f16 output", 1, []tensor.Desc{f16, out16}, true},
		{"type mismatch", 1, []tensor.Desc{f32, out16}, false},
		{"vectorized layout", 0, []tensor.Desc{chw4, out32}, false},
		{"position out of range", 2, []tensor.Desc{f32, out32}, false},
		{"negative position", -1, []tensor.Desc{f32, out32}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.SupportsFormatCombination(tt.pos, tt.inOut, 1, 1))
		})
	}
	assert.False(t, p.SupportsFormatCombination(0, []tensor.Desc{f32, out32}, 2, 0))
}

func TestSupportsFormatCombination_RejectsInt8Everywhere(t *testing.T) {
	i8in := tensor.NewDesc(tensor.Int8, 2, 5, 3)
	i8out := tensor.NewDesc(tensor.Int8, 2, 4, 3)
	i8mask := tensor.NewDesc(tensor.Int8, 2, 5)

	for _, crit := range []string{"row_sum_positive", "mask"} {
		p := newTestPlugin(t, attrs{criterion: crit})
		inOut := []tensor.Desc{i8in, i8out}
		if p.NbInputs() == 2 {
			inOut = []tensor.Desc{i8in, i8mask, i8out}
		}
		for pos := range inOut {
			assert.False(t, p.SupportsFormatCombination(pos, inOut, p.NbInputs(), 1), "%s pos %d", crit, pos)
		}
	}
}

func TestSupportsFormatCombination_MaskTypes(t *testing.T) {
	p := newTestPlugin(t, attrs{criterion: "mask"})
	data := tensor.NewDesc(tensor.Float16, 2, 5, 3)
	out := tensor.NewDesc(tensor.Float16, 2, 4, 3)
	for dt, want := range map[tensor.DataType]bool{
		tensor.Float32: true, tensor.Float16: true, tensor.Int32: true, tensor.Bool: true, tensor.Int8: false,
	} {
		mask := tensor.NewDesc(dt, 2, 5)
		assert.Equal(t, want, p.SupportsFormatCombination(1, []tensor.Desc{data, mask, out}, 2, 1), dt.String())
	}
}

func TestOutputDataType(t *testing.T) {
	p := newTestPlugin(t, attrs{criterion: "row_sum_positive"})
	dt, err := p.OutputDataType(0, []tensor.DataType{tensor.Float16})
	require.NoError(t, err)
	assert.Equal(t, tensor.Float16, dt)

	_, err = p.OutputDataType(1, []tensor.DataType{tensor.Float16})
	assert.ErrorIs(t, err, plugin.ErrContract)
	_, err = p.OutputDataType(0, nil)
	assert.ErrorIs(t, err, plugin.ErrContract)
	assert.Equal(t, 1, p.NbOutputs())
}

func TestConfigurePlugin_Idempotent(t *testing.T) {
	p := newTestPlugin(t, attrs{criterion: "row_sum_positive"})
	first := negotiate(t, p, tensor.Float32, tensor.Shape{4, 5, 3})
	size := p.WorkspaceSize(nil, nil)
	buf1 := make([]byte, p.SerializationSize())
	require.NoError(t, p.Serialize(buf1))

	second := negotiate(t, p, tensor.Float32, tensor.Shape{4, 5, 3})
	buf2 := make([]byte, p.SerializationSize())
	require.NoError(t, p.Serialize(buf2))

	assert.Equal(t, first, second)
	assert.Equal(t, size, p.WorkspaceSize(nil, nil))
	assert.Equal(t, buf1, buf2)
	assert.Equal(t, plugin.Configured, p.State())
}

func TestConfigurePlugin_ConflictKeepsBounds(t *testing.T) {
	p := newTestPlugin(t, attrs{criterion: "row_sum_positive", maxRows: 4})
	negotiate(t, p, tensor.Float32, tensor.Shape{2, 5, 3})

	in := []tensor.DynamicDesc{tensor.NewDynamicDesc(tensor.NewDesc(tensor.Float32, 2, 5, 3))}
	out := []tensor.DynamicDesc{tensor.NewDynamicDesc(tensor.NewDesc(tensor.Float32, 2, 6, 3))}
	err := p.ConfigurePlugin(in, out)
	assert.ErrorIs(t, err, plugin.ErrConfig)

	rows, cols := p.Bounds()
	assert.Equal(t, 4, rows)
	assert.Equal(t, 3, cols)

	unbounded := []tensor.DynamicDesc{{Desc: tensor.NewDesc(tensor.Float32, tensor.Dynamic, 5, 3)}}
	assert.ErrorIs(t, p.ConfigurePlugin(unbounded, out[:1]), plugin.ErrConfig)
	assert.ErrorIs(t, p.ConfigurePlugin(in, nil), plugin.ErrContract)
}

func TestConfigurePlugin_AfterInitializeChangesType(t *testing.T) {
	p := setup(t, attrs{criterion: "row_sum_positive", maxRows: 2, maxCols: 3, padding: -1},
		tensor.Float32, tensor.Shape{1, 2, 2})
	negotiate(t, p, tensor.Float16, tensor.Shape{1, 2, 2})
	require.Equal(t, plugin.Executable, p.State())

	in := hostTensor{tensor.NewDesc(tensor.Float16, 1, 2, 2), []float32{1, 1, 0, 0}}
	assert.Equal(t, []float32{1, 1, -1, -1, -1, -1}, execute(t, p, in))
}

func TestConfigurePlugin_WithoutOutputDimensions(t *testing.T) {
	p := newTestPlugin(t, attrs{criterion: "row_sum_positive"})
	in := []tensor.DynamicDesc{{
		Desc: tensor.NewDesc(tensor.Float32, tensor.Dynamic, tensor.Dynamic, 3),
		Max:  tensor.Shape{8, 16, 3},
	}}
	out := []tensor.DynamicDesc{{Desc: tensor.NewDesc(tensor.Float32, tensor.Dynamic, tensor.Dynamic, tensor.Dynamic)}}
	require.NoError(t, p.ConfigurePlugin(in, out))

	rows, cols := p.Bounds()
	assert.Equal(t, 16, rows)
	assert.Equal(t, 3, cols)
}

func TestWorkspaceSize_MonotonicInBatch(t *testing.T) {
	for _, dt := range []tensor.DataType{tensor.Float32, tensor.Float16} {
		var prev int64
		for batch := 1; batch <= 64; batch *= 2 {
			p := newTestPlugin(t, attrs{criterion: "row_sum_positive", maxRows: 4})
			negotiate(t, p, dt, tensor.Shape{batch, 5, 3})
			size := p.WorkspaceSize(nil, nil)
			assert.GreaterOrEqual(t, size, prev, "%s batch %d", dt, batch)
			prev = size
		}
	}

	l := decideTemp(2, 5, 4, 3, tensor.Float32)
	assert.Equal(t, 0, l.flags.off)
	assert.Zero(t, l.offsets.off%workspaceAlign)
	assert.Zero(t, l.staging.off%workspaceAlign)
	assert.GreaterOrEqual(t, l.total, l.staging.off+2*4*3*4)
	assert.Less(t, decideTemp(2, 5, 4, 3, tensor.Float16).staging.size, l.staging.size)
}

func TestSerialize_RoundTrip(t *testing.T) {
	p := setup(t, attrs{criterion: "row_max_above", maxRows: 4, threshold: 0.25, padding: -2}, tensor.Float16, tensor.Shape{2, 5, 3})
	p.SetPluginNamespace("tests")

	buf := make([]byte, p.SerializationSize())
	require.NoError(t, p.Serialize(buf))

	c := NewCreator()
	q, err := c.Deserialize("restored", buf)
	require.NoError(t, err)

	assert.Equal(t, plugin.Configured, q.State())
	assert.Equal(t, "restored", q.Name())
	assert.Equal(t, DefaultNamespace, q.PluginNamespace())
	assert.True(t, p.input.Equal(q.input), "%s vs %s", p.input, q.input)
	assert.True(t, p.output.Equal(q.output))
	assert.Equal(t, p.p, q.p)
	assert.Equal(t, p.q, q.q)
	assert.Equal(t, p.crit, q.crit)
	assert.Equal(t, p.threshold, q.threshold)
	assert.Equal(t, p.padValue, q.padValue)
	assert.Equal(t, p.WorkspaceSize(nil, nil), q.WorkspaceSize(nil, nil))

	again := make([]byte, q.SerializationSize())
	require.NoError(t, q.Serialize(again))
	assert.Equal(t, buf, again)

	// A deserialized plugin runs without negotiation.
	require.NoError(t, q.Initialize())
	in := flatten(
		[]float32{0, 0, 1}, []float32{0, 0, 0}, []float32{0, 0, 0}, []float32{0, 0, 0}, []float32{0, 0, 0},
		[]float32{0, 0, 0}, []float32{0, 0, 0}, []float32{0, 0, 0}, []float32{0, 0, 0}, []float32{0, 0, 0},
	)
	got := execute(t, q, hostTensor{tensor.NewDesc(tensor.Float16, 2, 5, 3), in})
	want := make([]float32, 2*4*3)
	for i := range want {
		want[i] = -2
	}
	copy(want, []float32{0, 0, 1})
	assert.Equal(t, want, got)
}

func TestSerialize_Errors(t *testing.T) {
	p := newTestPlugin(t, attrs{criterion: "row_sum_positive"})
	assert.ErrorIs(t, p.Serialize(make([]byte, p.SerializationSize())), plugin.ErrContract)

	negotiate(t, p, tensor.Float32, tensor.Shape{2, 5, 3})
	assert.Error(t, p.Serialize(make([]byte, p.SerializationSize()-1)))
}

func TestDeserialize_Corrupt(t *testing.T) {
	p := setup(t, attrs{criterion: "row_sum_positive", maxRows: 4}, tensor.Float32, tensor.Shape{2, 5, 3})
	buf := make([]byte, p.SerializationSize())
	require.NoError(t, p.Serialize(buf))
	c := NewCreator()

	for _, n := range []int{0, 1, len(buf) - 1, len(buf) + 1} {
		data := make([]byte, n)
		copy(data, buf)
		got, err := c.DeserializePlugin("x", data)
		assert.ErrorIs(t, err, plugin.ErrCorrupt, "length %d", n)
		assert.Nil(t, got)
	}

	badCrit := append([]byte(nil), buf...)
	critOffset := len(buf) - 3*4
	badCrit[critOffset] = 0xff
	_, err := c.Deserialize("x", badCrit)
	assert.ErrorIs(t, err, plugin.ErrCorrupt)

	badType := append([]byte(nil), buf...)
	badType[0] = 0x7f
	_, err = c.Deserialize("x", badType)
	assert.ErrorIs(t, err, plugin.ErrCorrupt)
}

func TestCreatePlugin_Errors(t *testing.T) {
	c := NewCreator()
	tests := []struct {
		name   string
		fields []plugin.Field
	}{
		{"missing criterion", []plugin.Field{plugin.Int32Field(AttrMaxRows, 4)}},
		{"unknown criterion", []plugin.Field{plugin.StringField(AttrCriterion, "row_median")}},
		{"unknown attribute", []plugin.Field{plugin.StringField(AttrCriterion, "mask"), plugin.Int32Field("max_depth", 1)}},
		{"wrong type", []plugin.Field{plugin.StringField(AttrCriterion, "mask"), plugin.Float32Field(AttrMaxRows, 4)}},
		{"negative bound", []plugin.Field{plugin.StringField(AttrCriterion, "mask"), plugin.Int32Field(AttrMaxCols, -1)}},
		{"empty int data", []plugin.Field{plugin.StringField(AttrCriterion, "row_sum_positive"),
			{Name: AttrMaxRows, Type: plugin.FieldInt32, Data: []int32{}, Length: 1}}},
		{"missing float data", []plugin.Field{plugin.StringField(AttrCriterion, "row_sum_positive"),
			{Name: AttrPadValue, Type: plugin.FieldFloat32, Length: 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p plugin.DynamicPlugin
			var err error
			require.NotPanics(t, func() {
				p, err = c.CreatePlugin("x", plugin.NewFieldCollection(tt.fields...))
			})
			assert.ErrorIs(t, err, plugin.ErrConfig)
			assert.Nil(t, p)
		})
	}
}

func TestCreator(t *testing.T) {
	c := NewCreator()
	assert.Equal(t, "SelectAndPadPlugin", c.PluginName())
	assert.Equal(t, "1", c.PluginVersion())
	assert.Equal(t, []string{"criterion", "max_rows", "max_cols", "threshold", "pad_value"}, c.FieldNames().Names())
	assert.Same(t, c.FieldNames(), NewCreator().FieldNames())

	assert.Equal(t, "custom_op", c.PluginNamespace())
	c.SetPluginNamespace("")
	assert.Equal(t, "custom_op", c.PluginNamespace())
	c.SetPluginNamespace("vision")
	assert.Equal(t, "vision", c.PluginNamespace())

	p, err := c.Create("", plugin.NewFieldCollection(plugin.StringField(AttrCriterion, "row_sum_positive")))
	require.NoError(t, err)
	assert.Equal(t, PluginName, p.Name())
	assert.Equal(t, "vision", p.PluginNamespace())
	assert.Equal(t, PluginName, p.PluginType())
	assert.Equal(t, PluginVersion, p.PluginVersion())
	assert.Equal(t, plugin.Constructed, p.State())

	reg, err := plugin.Default().Lookup(PluginName, PluginVersion, DefaultNamespace)
	require.NoError(t, err)
	assert.IsType(t, &Creator{}, reg)
}

func TestEnqueue_Validation(t *testing.T) {
	stream := device.NewCPUStream(parallel.Sequential())
	defer stream.Close()
	input := hostTensor{tensor.NewDesc(tensor.Float32, 2, 5, 3), scenarioInput}

	p := newTestPlugin(t, attrs{criterion: "row_sum_positive", maxRows: 4})
	negotiate(t, p, tensor.Float32, tensor.Shape{2, 5, 3})
	_, err := enqueueOn(p, stream, input)
	assert.ErrorIs(t, err, device.ErrLaunch, "before Initialize")

	require.NoError(t, p.Initialize())
	_, err = enqueueOn(p, stream, hostTensor{tensor.NewDesc(tensor.Float32, 3, 5, 3), make([]float32, 45)})
	assert.ErrorIs(t, err, device.ErrLaunch, "batch beyond bound")
	_, err = enqueueOn(p, stream, hostTensor{tensor.NewDesc(tensor.Float16, 2, 5, 3), scenarioInput})
	assert.ErrorIs(t, err, device.ErrLaunch, "type")

	outDesc := tensor.NewDesc(tensor.Float32, 2, 4, 3)
	in := device.FromBytes(device.CPU, tensor.Encode(scenarioInput, tensor.Float32))
	out := device.Alloc(device.CPU, outDesc.ByteSize())
	err = p.Enqueue([]tensor.Desc{input.desc}, []tensor.Desc{outDesc}, []*device.Buffer{in}, []*device.Buffer{out},
		device.Alloc(device.CPU, 16), stream)
	assert.ErrorIs(t, err, device.ErrLaunch, "workspace")

	ws := device.Alloc(device.CPU, int(p.WorkspaceSize(nil, nil)))
	err = p.Enqueue([]tensor.Desc{input.desc}, []tensor.Desc{tensor.NewDesc(tensor.Float32, 2, 5, 3)},
		[]*device.Buffer{in}, []*device.Buffer{out}, ws, stream)
	assert.ErrorIs(t, err, device.ErrLaunch, "output dims")
	err = p.Enqueue([]tensor.Desc{input.desc}, []tensor.Desc{outDesc}, []*device.Buffer{in}, []*device.Buffer{out}, ws, nil)
	assert.ErrorIs(t, err, device.ErrLaunch, "nil stream")

	require.NoError(t, stream.Synchronize())
}

func TestEnqueue_RejectsUnsupportedMaskType(t *testing.T) {
	p := setup(t, attrs{criterion: "mask"}, tensor.Float32, tensor.Shape{1, 3, 2})
	stream := device.NewCPUStream(parallel.Sequential())
	defer stream.Close()

	data := hostTensor{tensor.NewDesc(tensor.Float32, 1, 3, 2), []float32{1, 2, 3, 4, 5, 6}}
	mask := hostTensor{tensor.NewDesc(tensor.Int8, 1, 3), []float32{1, 0, 1}}
	_, err := enqueueOn(p, stream, data, mask)
	assert.ErrorIs(t, err, device.ErrLaunch)

	mask.desc = tensor.NewDesc(tensor.Int32, 1, 3)
	_, err = enqueueOn(p, stream, data, mask)
	assert.NoError(t, err)
	require.NoError(t, stream.Synchronize())
}

func TestEnqueue_ClosedStream(t *testing.T) {
	p := setup(t, attrs{criterion: "row_sum_positive", maxRows: 4}, tensor.Float32, tensor.Shape{2, 5, 3})
	stream := device.NewCPUStream(parallel.Sequential())
	require.NoError(t, stream.Close())

	_, err := enqueueOn(p, stream, hostTensor{tensor.NewDesc(tensor.Float32, 2, 5, 3), scenarioInput})
	assert.ErrorIs(t, err, device.ErrStreamClosed)
}

func TestInitializeTerminate_Repeatable(t *testing.T) {
	p := setup(t, attrs{criterion: "row_sum_positive", maxRows: 4}, tensor.Float32, tensor.Shape{2, 5, 3})
	for range 3 {
		p.Terminate()
		assert.Equal(t, plugin.Configured, p.State())
		assert.Nil(t, p.exec)
		require.NoError(t, p.Initialize())
		assert.Equal(t, plugin.Executable, p.State())
	}
	got := execute(t, p, hostTensor{tensor.NewDesc(tensor.Float32, 2, 5, 3), scenarioInput})
	assert.Equal(t, scenarioOutput, got)

	p.Terminate()
	p.Destroy()
	assert.Equal(t, plugin.Destroyed, p.State())
	assert.ErrorIs(t, p.Initialize(), plugin.ErrContract)
	assert.Panics(t, func() { p.Clone() })
}

func TestClone_RunsConcurrently(t *testing.T) {
	p := setup(t, attrs{criterion: "row_sum_positive", maxRows: 4}, tensor.Float32, tensor.Shape{2, 5, 3})

	var g errgroup.Group
	results := make([][]float32, 8)
	for i := range results {
		clone := p.Clone().(*Plugin)
		assert.Equal(t, plugin.Executable, clone.State())
		g.Go(func() error {
			stream := device.NewCPUStream(parallel.DefaultConfig())
			defer stream.Close()
			out, err := enqueueOn(clone, stream, hostTensor{tensor.NewDesc(tensor.Float32, 2, 5, 3), scenarioInput})
			if err != nil {
				return err
			}
			if err := stream.Synchronize(); err != nil {
				return err
			}
			results[i] = tensor.Decode(out.Bytes(), tensor.Float32)
			return nil
		})
	}
	require.NoError(t, g.Wait())
	for _, r := range results {
		assert.Equal(t, scenarioOutput, r)
	}

	clone := p.Clone().(*Plugin)
	clone.Destroy()
	assert.Equal(t, plugin.Executable, p.State())
}

func TestRegisterCriterion(t *testing.T) {
	assert.Error(t, RegisterCriterion(Criterion{ID: RowSumPositive, Name: "dup_id", Inputs: 1, Select: func(Row, float32) bool { return true }}))
	assert.Error(t, RegisterCriterion(Criterion{ID: 100, Name: "row_sum_positive", Inputs: 1, Select: func(Row, float32) bool { return true }}))
	assert.Error(t, RegisterCriterion(Criterion{ID: 0, Name: "zero", Inputs: 1, Select: func(Row, float32) bool { return true }}))
	assert.Error(t, RegisterCriterion(Criterion{ID: 101, Name: "nil", Inputs: 1}))
	assert.Error(t, RegisterCriterion(Criterion{ID: 102, Name: "three", Inputs: 3, Select: func(Row, float32) bool { return true }}))

	if _, ok := LookupCriterion("first_feature_negative"); !ok {
		require.NoError(t, RegisterCriterion(Criterion{
			ID: 200, Name: "first_feature_negative", Inputs: 1,
			Select: func(r Row, _ float32) bool { return r.Len() > 0 && r.At(0) < 0 },
		}))
	}
	assert.Contains(t, CriterionNames(), "first_feature_negative")

	p := setup(t, attrs{criterion: "first_feature_negative", maxRows: 2}, tensor.Float32, tensor.Shape{1, 3, 2})
	got := execute(t, p, hostTensor{tensor.NewDesc(tensor.Float32, 1, 3, 2), []float32{1, 1, -1, 2, -3, 4}})
	assert.Equal(t, []float32{-1, 2, -3, 4}, got)
}

func TestFlagShader(t *testing.T) {
	for _, name := range []string{"row_sum_positive", "row_sum_above", "row_max_above", "row_any_nonzero"} {
		c, ok := LookupCriterion(name)
		require.True(t, ok)
		require.NotNil(t, c.reduce, name)
		src := c.reduce.source()
		assert.NotContains(t, src, "{{")
		assert.Contains(t, src, "fn main")
	}
	mask, ok := LookupCriterion("mask")
	require.True(t, ok)
	assert.Nil(t, mask.reduce)

	l := &launch{crit: mask, batch: 3, rows: 50, feats: 2, threshold: 1.5}
	prog := &flagProgram{launch: l}
	assert.Equal(t, uint32(3), prog.Workgroups())
	assert.Len(t, prog.Uniform(), 16)
	assert.Equal(t, []int{1}, prog.Writable())
}
