package selectpad

import (
	"github.com/pkg/errors"

	"github.com/born-ml/selectpad/internal/plugin"
	"github.com/born-ml/selectpad/internal/serialization"
	"github.com/born-ml/selectpad/internal/tensor"
)

// serializedSize is the encoded size of a plugin:
// input desc, output desc, P, Q, criterion id, threshold, pad value.
const serializedSize = 2*serialization.DescSize +
	2*serialization.Int32Size +
	serialization.Int32Size +
	2*serialization.Float32Size

// SerializationSize implements plugin.Serializer.
func (p *Plugin) SerializationSize() int {
	return serializedSize
}

// Serialize implements plugin.Serializer. Only configured instances can be
// serialized.
func (p *Plugin) Serialize(buf []byte) error {
	if err := p.life.Require("Serialize", plugin.Configured, plugin.Executable); err != nil {
		return err
	}
	w := serialization.NewWriter(buf)
	w.PutDesc(p.input)
	w.PutDesc(p.output)
	w.PutInt32(p.p)
	w.PutInt32(p.q)
	w.PutInt32(p.crit.ID)
	w.PutFloat32(p.threshold)
	w.PutFloat32(p.padValue)
	if err := w.Finish(); err != nil {
		return errors.Wrapf(err, "%s.Serialize", p.name)
	}
	return nil
}

// deserialize rebuilds a configured plugin written by Serialize.
func deserialize(name string, data []byte) (*Plugin, error) {
	if len(data) != serializedSize {
		return nil, errors.Wrapf(plugin.ErrCorrupt, "got %d bytes, want %d", len(data), serializedSize)
	}
	r := serialization.NewReader(data)
	input := r.Desc()
	output := r.Desc()
	rows := r.Int32()
	cols := r.Int32()
	critID := r.Int32()
	threshold := r.Float32()
	padValue := r.Float32()
	if err := r.Finish(); err != nil {
		return nil, errors.Wrapf(plugin.ErrCorrupt, "%v", err)
	}

	crit, ok := criterionByID(critID)
	if !ok {
		return nil, errors.Wrapf(plugin.ErrCorrupt, "unknown criterion id %d", critID)
	}
	if len(input.Dims) != 3 || input.Dims.IsDynamic() || !input.Type.IsFloat() {
		return nil, errors.Wrapf(plugin.ErrCorrupt, "bad input descriptor %s", input)
	}
	if rows < 0 || cols < 0 || !output.Dims.Equal(tensor.Shape{input.Dims[0], int(rows), int(cols)}) || output.Type != input.Type {
		return nil, errors.Wrapf(plugin.ErrCorrupt, "output descriptor %s does not match input %s with P=%d Q=%d", output, input, rows, cols)
	}

	p := newPlugin(name, crit, threshold, padValue)
	p.input, p.output = input, output
	p.p, p.q = rows, cols
	p.tmpBytes = int64(p.layout().total)
	if err := p.life.Move(plugin.Configured); err != nil {
		return nil, err
	}
	return p, nil
}
