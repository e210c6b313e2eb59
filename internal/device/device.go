// Package device models the accelerator boundary a plugin executes against:
// device buffers, kernels and in-order streams.
//
// Work submitted to a Stream runs asynchronously and strictly in submission
// order. A kernel failure is sticky: the stream skips all later work and
// reports the failure on the next Submit or Synchronize, the way a CUDA
// context reports a prior asynchronous error.
package device

import (
	"github.com/pkg/errors"

	"github.com/born-ml/selectpad/internal/parallel"
)

// Kind identifies the device a buffer or stream belongs to.
type Kind int

// Supported devices.
const (
	CPU Kind = iota
	WebGPU
)

// String returns a human-readable device name.
func (k Kind) String() string {
	switch k {
	case CPU:
		return "CPU"
	case WebGPU:
		return "WebGPU"
	default:
		return "Unknown"
	}
}

// ParseKind converts "cpu" or "webgpu" into a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "cpu", "CPU", "":
		return CPU, nil
	case "webgpu", "WebGPU", "gpu":
		return WebGPU, nil
	default:
		return 0, errors.Errorf("unknown device %q (expected cpu or webgpu)", s)
	}
}

// Errors reported by streams.
var (
	ErrLaunch       = errors.New("kernel launch failed")
	ErrStreamClosed = errors.New("stream is closed")
	ErrUnavailable  = errors.New("device not available in this build")
)

// Buffer is a region of device memory. Host code only touches it through
// Bytes, which for the devices here aliases the device allocation.
type Buffer struct {
	data []byte
	kind Kind
}

// Alloc returns a zeroed buffer of size bytes on the given device.
func Alloc(kind Kind, size int) *Buffer {
	if size < 0 {
		size = 0
	}
	return &Buffer{data: make([]byte, size), kind: kind}
}

// FromBytes wraps an existing byte slice as a buffer without copying.
func FromBytes(kind Kind, data []byte) *Buffer {
	return &Buffer{data: data, kind: kind}
}

// Bytes returns the buffer contents.
func (b *Buffer) Bytes() []byte {
	if b == nil {
		return nil
	}
	return b.data
}

// Len returns the buffer size in bytes.
func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}
	return len(b.data)
}

// Device returns the device owning the buffer.
func (b *Buffer) Device() Kind {
	return b.kind
}

// Kernel is a unit of device work.
type Kernel interface {
	// Name identifies the kernel in logs and errors.
	Name() string
	// Run executes the kernel on the host fallback path.
	Run(cfg parallel.Config) error
}

// GridKernel runs Body once per grid index.
type GridKernel struct {
	Label string
	Grid  int
	Body  func(i int)
}

// Name implements Kernel.
func (k GridKernel) Name() string {
	return k.Label
}

// Run implements Kernel.
func (k GridKernel) Run(cfg parallel.Config) error {
	return parallel.For(k.Grid, k.Body, cfg)
}

// TileKernel runs Body once per cell of a Rows x Cols grid.
type TileKernel struct {
	Label      string
	Rows, Cols int
	Body       func(r, c int)
}

// Name implements Kernel.
func (k TileKernel) Name() string {
	return k.Label
}

// Run implements Kernel.
func (k TileKernel) Run(cfg parallel.Config) error {
	return parallel.ForGrid(k.Rows, k.Cols, k.Body, cfg)
}

// Stream is an in-order asynchronous work queue bound to one device.
type Stream interface {
	// Device returns the device the stream executes on.
	Device() Kind
	// Submit enqueues k and returns without waiting for it.
	Submit(k Kernel) error
	// Synchronize blocks until all submitted work has finished and returns
	// the first kernel failure, if any.
	Synchronize() error
	// Close drains the stream and releases its worker.
	Close() error
}

// NewStream creates a stream on the requested device.
func NewStream(kind Kind) (Stream, error) {
	switch kind {
	case CPU:
		return NewCPUStream(parallel.DefaultConfig()), nil
	case WebGPU:
		if newWebGPUStream == nil {
			return nil, errors.Wrap(ErrUnavailable, "webgpu")
		}
		return newWebGPUStream()
	default:
		return nil, errors.Errorf("unknown device kind %d", kind)
	}
}

// newWebGPUStream is installed by the webgpu package on platforms where it
// is built.
var newWebGPUStream func() (Stream, error)

// RegisterWebGPU installs the WebGPU stream constructor.
func RegisterWebGPU(ctor func() (Stream, error)) {
	newWebGPUStream = ctor
}
