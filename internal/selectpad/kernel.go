package selectpad

import (
	"fmt"
	"strings"

	"k8s.io/klog/v2"

	"github.com/born-ml/selectpad/internal/device"
	"github.com/born-ml/selectpad/internal/metrics"
	"github.com/born-ml/selectpad/internal/parallel"
	"github.com/born-ml/selectpad/internal/serialization"
	"github.com/born-ml/selectpad/internal/tensor"
)

// launch holds everything the kernels of one Enqueue read and write.
// Kernels run on the stream worker after Enqueue has returned.
type launch struct {
	crit      *Criterion
	threshold float32
	pad       []byte // pad value encoded as one output element
	shader    string // WGSL flag stage, "" when the criterion has none

	dtype tensor.DataType
	elem  int

	batch, rows, feats int
	p, q               int

	in       []byte
	mask     []byte
	maskType tensor.DataType
	out      []byte

	ws   scratch
	kind device.Kind
}

// kernels returns the four stages in submission order.
func (l *launch) kernels() []device.Kernel {
	return []device.Kernel{
		l.flagKernel(),
		device.GridKernel{Label: "selectpad.scan", Grid: l.batch, Body: l.scan},
		device.TileKernel{Label: "selectpad.gather", Rows: l.batch, Cols: l.rows, Body: l.gather},
		device.TileKernel{Label: "selectpad.write", Rows: l.batch, Cols: l.p, Body: l.write},
	}
}

func (l *launch) flagKernel() device.Kernel {
	if l.shader != "" && l.dtype == tensor.Float32 && l.mask == nil {
		return &flagProgram{launch: l}
	}
	return device.GridKernel{Label: "selectpad.flag", Grid: l.batch * l.rows, Body: l.flag}
}

// flag evaluates the criterion for row i of the flattened [batch, rows] grid.
func (l *launch) flag(i int) {
	r := Row{data: l.in, dtype: l.dtype, base: i * l.feats, width: l.feats, Mask: 1}
	if l.mask != nil {
		r.Mask = tensor.Load(l.mask, l.maskType, i)
	}
	var v int32
	if l.crit.Select(r, l.threshold) {
		v = 1
	}
	putI32(l.ws.flags, i, v)
}

// scan computes the exclusive prefix sum of the flags of batch item b.
func (l *launch) scan(b int) {
	var n int32
	for r := 0; r < l.rows; r++ {
		i := b*l.rows + r
		putI32(l.ws.offsets, i, n)
		n += getI32(l.ws.flags, i)
	}
	putI32(l.ws.counts, b, n)

	metrics.SelectedRows.Add(float64(min(int(n), l.p)))
	if dropped := int(n) - l.p; dropped > 0 {
		metrics.TruncatedRows.Add(float64(dropped))
		klog.V(2).Infof("selectpad: batch item %d selected %d rows, truncated to %d", b, n, l.p)
	}
}

// gather copies selected row r of batch item b into its compacted slot of
// the staging tile. Rows past P are dropped.
func (l *launch) gather(b, r int) {
	i := b*l.rows + r
	if getI32(l.ws.flags, i) == 0 {
		return
	}
	slot := int(getI32(l.ws.offsets, i))
	if slot >= l.p {
		return
	}
	w := min(l.feats, l.q) * l.elem
	src := l.in[i*l.feats*l.elem:]
	dst := l.ws.staging[(b*l.p+slot)*l.q*l.elem:]
	copy(dst[:w], src[:w])
}

// write fills output row k of batch item b from the staging tile and pads
// whatever the tile does not cover.
func (l *launch) write(b, k int) {
	i := b*l.p + k
	rowBytes := l.q * l.elem
	dst := l.out[i*rowBytes : (i+1)*rowBytes]

	w := 0
	if k < int(getI32(l.ws.counts, b)) {
		w = min(l.feats, l.q)
		copy(dst[:w*l.elem], l.ws.staging[i*rowBytes:])
	}
	for j := w; j < l.q; j++ {
		copy(dst[j*l.elem:], l.pad)
	}
}

// rowReduce is the WGSL form of a single-input criterion: acc starts at init,
// folds every feature v with step and the row is selected when test holds.
type rowReduce struct {
	init, step, test string
}

const flagWorkgroupSize = 64

const flagShaderTemplate = `
struct Params {
    total: u32,
    cols: u32,
    threshold: f32,
    _pad: u32,
}

@group(0) @binding(0) var<storage, read> input: array<f32>;
@group(0) @binding(1) var<storage, read_write> flags: array<i32>;
@group(0) @binding(2) var<uniform> params: Params;

@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let r = gid.x;
    if (r >= params.total) {
        return;
    }
    let base = r * params.cols;
    var acc: f32 = {{init}};
    for (var j: u32 = 0u; j < params.cols; j = j + 1u) {
        let v = input[base + j];
        acc = {{step}};
    }
    flags[r] = select(0, 1, {{test}});
}
`

func (rr *rowReduce) source() string {
	return strings.NewReplacer("{{init}}", rr.init, "{{step}}", rr.step, "{{test}}", rr.test).
		Replace(flagShaderTemplate)
}

// flagProgram is the flag stage for float32 data. WebGPU streams run the
// shader; CPU streams run the host loop.
type flagProgram struct {
	*launch
}

func (k *flagProgram) Name() string {
	return "selectpad.flag." + k.crit.Name
}

func (k *flagProgram) Run(cfg parallel.Config) error {
	return parallel.For(k.batch*k.rows, k.flag, cfg)
}

func (k *flagProgram) Shader() (name, code string) {
	return k.Name(), k.shader
}

func (k *flagProgram) Bindings() []*device.Buffer {
	return []*device.Buffer{
		device.FromBytes(k.kind, k.in),
		device.FromBytes(k.kind, k.ws.flags),
	}
}

func (k *flagProgram) Writable() []int {
	return []int{1}
}

func (k *flagProgram) Uniform() []byte {
	buf := make([]byte, 16)
	w := serialization.NewWriter(buf)
	//nolint:gosec // G115: grid sizes are bounded by the configured workspace
	w.PutInt32(int32(k.batch * k.rows))
	//nolint:gosec // G115: feature count is bounded by the configured shape
	w.PutInt32(int32(k.feats))
	w.PutFloat32(k.threshold)
	w.PutInt32(0)
	return buf
}

func (k *flagProgram) Workgroups() uint32 {
	//nolint:gosec // G115: grid sizes are non-negative
	return uint32((k.batch*k.rows + flagWorkgroupSize - 1) / flagWorkgroupSize)
}

func (l *launch) String() string {
	return fmt.Sprintf("selectpad launch %s batch=%d rows=%d feats=%d P=%d Q=%d",
		l.dtype, l.batch, l.rows, l.feats, l.p, l.q)
}
