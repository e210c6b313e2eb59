package serialization

import (
	"encoding/binary"
	"math"
)

// Field widths in bytes.
const (
	Int32Size   = 4
	Int64Size   = 8
	Float32Size = 4
)

// Writer encodes fixed-width fields into a caller-provided buffer.
type Writer struct {
	buf []byte
	pos int
	err error
}

// NewWriter returns a writer positioned at the start of buf.
func NewWriter(buf []byte) *Writer {
	return &Writer{buf: buf}
}

// Pos returns the number of bytes written so far.
func (w *Writer) Pos() int {
	return w.pos
}

// Err returns the first error encountered, if any.
func (w *Writer) Err() error {
	return w.err
}

// Finish returns the sticky error. A writer that stopped short of the end of
// its buffer is not an error: callers may over-allocate.
func (w *Writer) Finish() error {
	return w.err
}

func (w *Writer) reserve(field string, n int) []byte {
	if w.err != nil {
		return nil
	}
	if w.pos+n > len(w.buf) {
		w.err = &FieldError{Field: field, Offset: w.pos, Err: ErrShortBuffer}
		return nil
	}
	b := w.buf[w.pos : w.pos+n]
	w.pos += n
	return b
}

// PutInt32 writes a little-endian int32.
func (w *Writer) PutInt32(v int32) {
	if b := w.reserve("int32", Int32Size); b != nil {
		//nolint:gosec // G115: bit pattern preserved
		binary.LittleEndian.PutUint32(b, uint32(v))
	}
}

// PutInt64 writes a little-endian int64.
func (w *Writer) PutInt64(v int64) {
	if b := w.reserve("int64", Int64Size); b != nil {
		//nolint:gosec // G115: bit pattern preserved
		binary.LittleEndian.PutUint64(b, uint64(v))
	}
}

// PutFloat32 writes an IEEE-754 float32.
func (w *Writer) PutFloat32(v float32) {
	if b := w.reserve("float32", Float32Size); b != nil {
		binary.LittleEndian.PutUint32(b, math.Float32bits(v))
	}
}

// Reader decodes fixed-width fields from a buffer.
type Reader struct {
	buf []byte
	pos int
	err error
}

// NewReader returns a reader positioned at the start of buf.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Pos returns the number of bytes consumed so far.
func (r *Reader) Pos() int {
	return r.pos
}

// Err returns the first error encountered, if any.
func (r *Reader) Err() error {
	return r.err
}

// Finish returns the sticky error, or ErrTrailingBytes if the buffer was not
// consumed exactly.
func (r *Reader) Finish() error {
	if r.err != nil {
		return r.err
	}
	if r.pos != len(r.buf) {
		return &FieldError{Field: "end", Offset: r.pos, Err: ErrTrailingBytes}
	}
	return nil
}

func (r *Reader) fail(field string, err error) {
	if r.err == nil {
		r.err = &FieldError{Field: field, Offset: r.pos, Err: err}
	}
}

func (r *Reader) take(field string, n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.pos+n > len(r.buf) {
		r.fail(field, ErrShortBuffer)
		return nil
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b
}

// Int32 reads a little-endian int32. It returns 0 after an error.
func (r *Reader) Int32() int32 {
	b := r.take("int32", Int32Size)
	if b == nil {
		return 0
	}
	//nolint:gosec // G115: bit pattern preserved
	return int32(binary.LittleEndian.Uint32(b))
}

// Int64 reads a little-endian int64. It returns 0 after an error.
func (r *Reader) Int64() int64 {
	b := r.take("int64", Int64Size)
	if b == nil {
		return 0
	}
	//nolint:gosec // G115: bit pattern preserved
	return int64(binary.LittleEndian.Uint64(b))
}

// Float32 reads an IEEE-754 float32. It returns 0 after an error.
func (r *Reader) Float32() float32 {
	b := r.take("float32", Float32Size)
	if b == nil {
		return 0
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}
