package serialization

import "github.com/born-ml/selectpad/internal/tensor"

// DescSize is the encoded size of a tensor.Desc:
// type, format, rank, MaxDims dimension slots, scale.
const DescSize = Int32Size + Int32Size + Int32Size + tensor.MaxDims*Int64Size + Float32Size

// PutDesc writes a descriptor. Unused dimension slots are written as zero.
func (w *Writer) PutDesc(d tensor.Desc) {
	if w.err == nil && len(d.Dims) > tensor.MaxDims {
		w.err = &FieldError{Field: "desc.rank", Offset: w.pos, Err: ErrInvalidValue}
		return
	}
	w.PutInt32(int32(d.Type))
	w.PutInt32(int32(d.Format))
	//nolint:gosec // G115: rank bounded by MaxDims
	w.PutInt32(int32(len(d.Dims)))
	for i := 0; i < tensor.MaxDims; i++ {
		var dim int64
		if i < len(d.Dims) {
			dim = int64(d.Dims[i])
		}
		w.PutInt64(dim)
	}
	w.PutFloat32(d.Scale)
}

// Desc reads a descriptor written by PutDesc.
func (r *Reader) Desc() tensor.Desc {
	start := r.pos
	var d tensor.Desc
	d.Type = tensor.DataType(r.Int32())
	d.Format = tensor.Format(r.Int32())
	rank := int(r.Int32())
	dims := make([]int64, tensor.MaxDims)
	for i := range dims {
		dims[i] = r.Int64()
	}
	d.Scale = r.Float32()
	if r.err != nil {
		return tensor.Desc{}
	}
	if rank < 0 || rank > tensor.MaxDims || !d.Type.Valid() {
		r.err = &FieldError{Field: "desc", Offset: start, Err: ErrInvalidValue}
		return tensor.Desc{}
	}
	d.Dims = make(tensor.Shape, rank)
	for i := range d.Dims {
		d.Dims[i] = int(dims[i])
	}
	return d
}
