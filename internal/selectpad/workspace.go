package selectpad

import (
	"encoding/binary"

	"github.com/born-ml/selectpad/internal/tensor"
)

// workspaceAlign is the alignment of every workspace region, matching the
// allocation granularity of device allocators.
const workspaceAlign = 256

type region struct {
	off, size int
}

func (r region) slice(ws []byte) []byte {
	return ws[r.off : r.off+r.size]
}

// workspaceLayout places the scratch regions of one Enqueue:
//
//	flags   [batch*rows]int32   criterion result per row
//	offsets [batch*rows]int32   exclusive prefix sum of flags
//	counts  [batch]int32        selected rows per batch item
//	staging [batch*P*Q]elem     compacted tile before padding
type workspaceLayout struct {
	flags, offsets, counts, staging region
	total int
}

func alignUp(n int) int {
	return (n + workspaceAlign - 1) &^ (workspaceAlign - 1)
}

// decideTemp computes the workspace layout for the given bounds. The total is
// monotonic in every argument.
func decideTemp(batch, rows, p, q int, dt tensor.DataType) workspaceLayout {
	var l workspaceLayout
	off := 0
	next := func(size int) region {
		r := region{off: off, size: size}
		off += alignUp(size)
		return r
	}
	l.flags = next(batch * rows * 4)
	l.offsets = next(batch * rows * 4)
	l.counts = next(batch * 4)
	l.staging = next(batch * p * q * dt.Size())
	l.total = off
	return l
}

// scratch is a workspace buffer cut into its regions.
type scratch struct {
	flags, offsets, counts, staging []byte
}

func (l workspaceLayout) bind(ws []byte) scratch {
	return scratch{
		flags:   l.flags.slice(ws),
		offsets: l.offsets.slice(ws),
		counts:  l.counts.slice(ws),
		staging: l.staging.slice(ws),
	}
}

func getI32(b []byte, i int) int32 {
	//nolint:gosec // G115: bit pattern preserved
	return int32(binary.LittleEndian.Uint32(b[i*4:]))
}

func putI32(b []byte, i int, v int32) {
	//nolint:gosec // G115: bit pattern preserved
	binary.LittleEndian.PutUint32(b[i*4:], uint32(v))
}
