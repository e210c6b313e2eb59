package selectpad

import (
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/selectpad/internal/device"
	"github.com/born-ml/selectpad/internal/metrics"
	"github.com/born-ml/selectpad/internal/plugin"
	"github.com/born-ml/selectpad/internal/tensor"
)

// execTables are the per-engine constants built by Initialize.
type execTables struct {
	pad    []byte // pad value as one element of the data type
	shader string // WGSL flag shader, "" for host-only criteria
}

func newExecTables(crit *Criterion, padValue float32, dt tensor.DataType) *execTables {
	t := &execTables{pad: tensor.Encode([]float32{padValue}, dt)}
	if crit.reduce != nil {
		t.shader = crit.reduce.source()
	}
	return t
}

// Initialize implements plugin.Executor. It resolves the criterion and
// builds the pad and shader tables used by Enqueue.
func (p *Plugin) Initialize() error {
	if err := p.life.Require("Initialize", plugin.Configured, plugin.Executable); err != nil {
		return err
	}
	if _, ok := criterionByID(p.crit.ID); !ok {
		return errors.Wrapf(plugin.ErrConfig, "%s.Initialize: criterion %q is no longer registered", p.name, p.crit.Name)
	}
	p.exec = newExecTables(p.crit, p.padValue, p.input.Type)
	klog.V(1).Infof("selectpad %s: initialized (criterion %s)", p.name, p.crit.Name)
	return p.life.Move(plugin.Executable)
}

// Terminate implements plugin.Executor.
func (p *Plugin) Terminate() {
	if p.life.State() != plugin.Executable {
		return
	}
	p.exec = nil
	_ = p.life.Move(plugin.Configured)
	klog.V(1).Infof("selectpad %s: terminated", p.name)
}

// WorkspaceSize implements plugin.Executor. It returns the size computed by
// ConfigurePlugin for the largest shapes, which covers every smaller launch.
func (p *Plugin) WorkspaceSize(_, _ []tensor.Desc) int64 {
	return p.tmpBytes
}

func launchFailure(reason, format string, args ...any) error {
	metrics.LaunchFailures.WithLabelValues(reason).Inc()
	return errors.Wrapf(device.ErrLaunch, format, args...)
}

// Enqueue implements plugin.Executor. Arguments are validated before any
// work is submitted; the kernels then run asynchronously on stream and read
// the buffers after Enqueue returns.
func (p *Plugin) Enqueue(inputDesc, outputDesc []tensor.Desc, inputs, outputs []*device.Buffer,
	workspace *device.Buffer, stream device.Stream,
) error {
	if err := p.life.Require("Enqueue", plugin.Executable); err != nil {
		return launchFailure("state", "%s.Enqueue: %v", p.name, err)
	}
	l, err := p.prepare(inputDesc, outputDesc, inputs, outputs, workspace)
	if err != nil {
		return err
	}
	if stream == nil {
		return launchFailure("stream", "%s.Enqueue: nil stream", p.name)
	}
	if l.batch == 0 {
		return nil
	}
	l.kind = stream.Device()

	for _, k := range l.kernels() {
		if err := stream.Submit(k); err != nil {
			metrics.LaunchFailures.WithLabelValues("stream").Inc()
			return errors.Wrapf(err, "%s.Enqueue: submit %s", p.name, k.Name())
		}
	}
	metrics.Enqueues.WithLabelValues(l.dtype.String(), l.kind.String()).Inc()
	klog.V(2).Infof("selectpad %s: enqueued %s", p.name, l)
	return nil
}

// prepare checks the launch arguments against the configured bounds and
// binds them into a launch.
func (p *Plugin) prepare(inputDesc, outputDesc []tensor.Desc, inputs, outputs []*device.Buffer,
	workspace *device.Buffer,
) (*launch, error) {
	nIn := p.NbInputs()
	if len(inputDesc) != nIn || len(inputs) != nIn || len(outputDesc) != 1 || len(outputs) != 1 {
		return nil, launchFailure("shape", "%s.Enqueue: got %d/%d inputs and %d/%d outputs, want %d and 1",
			p.name, len(inputDesc), len(inputs), len(outputDesc), len(outputs), nIn)
	}

	in, out := inputDesc[0], outputDesc[0]
	if in.Type != p.input.Type || out.Type != p.output.Type {
		return nil, launchFailure("shape", "%s.Enqueue: types %s -> %s, configured %s -> %s",
			p.name, in.Type, out.Type, p.input.Type, p.output.Type)
	}
	if len(in.Dims) != 3 || in.Dims.IsDynamic() {
		return nil, launchFailure("shape", "%s.Enqueue: input dims %s are not a concrete rank-3 shape", p.name, in.Dims)
	}
	batch, rows, feats := in.Dims[0], in.Dims[1], in.Dims[2]
	upper := p.input.Dims
	if batch > upper[0] || rows > upper[1] || feats > upper[2] {
		return nil, launchFailure("shape", "%s.Enqueue: input %s exceeds configured bound %s", p.name, in.Dims, upper)
	}
	if !out.Dims.Equal(tensor.Shape{batch, int(p.p), int(p.q)}) {
		return nil, launchFailure("shape", "%s.Enqueue: output dims %s, want (%d, %d, %d)", p.name, out.Dims, batch, p.p, p.q)
	}

	if inputs[0].Len() < in.ByteSize() || outputs[0].Len() < out.ByteSize() {
		return nil, launchFailure("buffer", "%s.Enqueue: buffers of %d/%d bytes, need %d/%d",
			p.name, inputs[0].Len(), outputs[0].Len(), in.ByteSize(), out.ByteSize())
	}
	layout := decideTemp(batch, rows, int(p.p), int(p.q), in.Type)
	if workspace.Len() < layout.total {
		return nil, launchFailure("buffer", "%s.Enqueue: workspace of %d bytes, need %d", p.name, workspace.Len(), layout.total)
	}

	l := &launch{
		crit:      p.crit,
		threshold: p.threshold,
		pad:       p.exec.pad,
		shader:    p.exec.shader,
		dtype:     in.Type,
		elem:      in.Type.Size(),
		batch:     batch,
		rows:      rows,
		feats:     feats,
		p:         int(p.p),
		q:         int(p.q),
		in:        inputs[0].Bytes(),
		out:       outputs[0].Bytes(),
		ws:        layout.bind(workspace.Bytes()),
	}

	if nIn == 2 {
		m := inputDesc[1]
		if !m.Dims.Equal(tensor.Shape{batch, rows}) {
			return nil, launchFailure("shape", "%s.Enqueue: mask dims %s, want (%d, %d)", p.name, m.Dims, batch, rows)
		}
		if !maskType(m.Type) || m.Format != tensor.FormatLinear {
			return nil, launchFailure("type", "%s.Enqueue: unsupported mask %s", p.name, m)
		}
		if inputs[1].Len() < m.ByteSize() {
			return nil, launchFailure("buffer", "%s.Enqueue: mask buffer of %d bytes, need %d", p.name, inputs[1].Len(), m.ByteSize())
		}
		l.mask = inputs[1].Bytes()
		l.maskType = m.Type
	}
	return l, nil
}
