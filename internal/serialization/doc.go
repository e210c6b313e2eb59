// Package serialization provides the positional binary encoding used to
// persist plugin state inside a built engine.
//
// The encoding has no header, no length prefixes and no version field. Values
// are written little-endian with fixed widths, in an order both sides agree on:
//
//	w := serialization.NewWriter(buf)
//	w.PutDesc(in)
//	w.PutInt32(p)
//	if err := w.Finish(); err != nil { ... }
//
//	r := serialization.NewReader(buf)
//	in := r.Desc()
//	p := r.Int32()
//	if err := r.Finish(); err != nil { ... }
//
// Writer and Reader keep an explicit position index and a sticky error: after
// the first failure every further call is a no-op, and Finish reports it.
package serialization
