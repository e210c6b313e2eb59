//go:build windows

// Package webgpu implements a device.Stream that dispatches WGSL programs
// through go-webgpu (github.com/go-webgpu/webgpu), zero-CGO.
//
// Ordering comes from an internal host stream: every submitted kernel is
// queued there, and Programs execute their GPU dispatch (upload, compute,
// read back) from that worker, one at a time.
package webgpu

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/selectpad/internal/device"
	"github.com/born-ml/selectpad/internal/parallel"
)

func init() {
	device.RegisterWebGPU(func() (device.Stream, error) {
		return New()
	})
}

// Stream executes kernels on a WebGPU adapter.
type Stream struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	shaders   map[string]*wgpu.ShaderModule
	pipelines map[string]*wgpu.ComputePipeline
	mu        sync.RWMutex

	host *device.CPUStream
}

// New creates a WebGPU stream.
// Returns an error if WebGPU is not available or initialization fails.
func New() (stream *Stream, err error) {
	// Recover from panic if wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			stream = nil
			err = errors.Wrapf(device.ErrUnavailable, "webgpu: native library not available: %v", r)
		}
	}()

	instance := wgpu.CreateInstance(nil)
	adapter, adapterErr := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if adapterErr != nil {
		instance.Release()
		return nil, errors.Wrap(adapterErr, "webgpu: failed to request adapter")
	}

	dev, deviceErr := adapter.RequestDevice(nil)
	if deviceErr != nil {
		adapter.Release()
		instance.Release()
		return nil, errors.Wrap(deviceErr, "webgpu: failed to request device")
	}

	queue := dev.GetQueue()
	if queue == nil {
		dev.Release()
		adapter.Release()
		instance.Release()
		return nil, errors.New("webgpu: failed to get queue")
	}

	return &Stream{
		instance:  instance,
		adapter:   adapter,
		device:    dev,
		queue:     queue,
		shaders:   make(map[string]*wgpu.ShaderModule),
		pipelines: make(map[string]*wgpu.ComputePipeline),
		host:      device.NewCPUStream(parallel.DefaultConfig()),
	}, nil
}

// IsAvailable reports whether a WebGPU adapter can be acquired.
func IsAvailable() (available bool) {
	defer func() {
		if r := recover(); r != nil {
			available = false
		}
	}()

	instance := wgpu.CreateInstance(nil)
	defer instance.Release()

	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		return false
	}
	adapter.Release()
	return true
}

// Device implements device.Stream.
func (s *Stream) Device() device.Kind {
	return device.WebGPU
}

// Submit implements device.Stream.
func (s *Stream) Submit(k device.Kernel) error {
	if p, ok := k.(device.Program); ok {
		return s.host.Submit(gpuKernel{stream: s, program: p})
	}
	return s.host.Submit(k)
}

// Synchronize implements device.Stream.
func (s *Stream) Synchronize() error {
	return s.host.Synchronize()
}

// Close implements device.Stream. It drains pending work and releases all
// WebGPU resources.
func (s *Stream) Close() error {
	err := s.host.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	for name, p := range s.pipelines {
		p.Release()
		delete(s.pipelines, name)
	}
	for name, sh := range s.shaders {
		sh.Release()
		delete(s.shaders, name)
	}
	if s.queue != nil {
		s.queue.Release()
		s.queue = nil
	}
	if s.device != nil {
		s.device.Release()
		s.device = nil
	}
	if s.adapter != nil {
		s.adapter.Release()
		s.adapter = nil
	}
	if s.instance != nil {
		s.instance.Release()
		s.instance = nil
	}
	return err
}

// gpuKernel adapts a Program so that it runs on the GPU from the host worker.
type gpuKernel struct {
	stream  *Stream
	program device.Program
}

func (k gpuKernel) Name() string {
	return k.program.Name()
}

func (k gpuKernel) Run(_ parallel.Config) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("webgpu dispatch %q: %v", k.program.Name(), r)
		}
	}()
	return k.stream.dispatch(k.program)
}

// pipeline returns a cached ComputePipeline, compiling the shader on first use.
func (s *Stream) pipeline(name, code string) *wgpu.ComputePipeline {
	s.mu.RLock()
	if p, ok := s.pipelines[name]; ok {
		s.mu.RUnlock()
		return p
	}
	s.mu.RUnlock()

	shader := s.device.CreateShaderModuleWGSL(code)
	p := s.device.CreateComputePipelineSimple(nil, shader, "main")

	s.mu.Lock()
	s.shaders[name] = shader
	s.pipelines[name] = p
	s.mu.Unlock()

	klog.V(1).Infof("webgpu: compiled pipeline %q", name)
	return p
}

// align4 rounds n up to a multiple of 4; storage bindings cannot be empty.
func align4(n int) uint64 {
	if n <= 0 {
		return 4
	}
	//nolint:gosec // G115: n > 0
	return uint64((n + 3) &^ 3)
}

// upload creates a GPU buffer initialised with data.
func (s *Stream) upload(data []byte, size uint64, usage wgpu.BufferUsage) *wgpu.Buffer {
	buffer := s.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            usage,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})
	mappedPtr := buffer.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mapped := unsafe.Slice((*byte)(mappedPtr), size)
	copy(mapped, data)
	buffer.Unmap()
	return buffer
}

// readBack copies size bytes of src into dst through a staging buffer.
func (s *Stream) readBack(src *wgpu.Buffer, size uint64, dst []byte) error {
	staging := s.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	defer staging.Release()

	encoder := s.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(src, 0, staging, 0, size)
	s.queue.Submit(encoder.Finish(nil))

	if err := staging.MapAsync(s.device, wgpu.MapModeRead, 0, size); err != nil {
		return errors.Wrap(err, "failed to map staging buffer")
	}
	mappedPtr := staging.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mapped := unsafe.Slice((*byte)(mappedPtr), size)
	copy(dst, mapped)
	staging.Unmap()
	return nil
}

// dispatch uploads the program's bindings, runs it and copies writable
// bindings back into their host buffers.
func (s *Stream) dispatch(p device.Program) error {
	name, code := p.Shader()
	pipeline := s.pipeline(name, code)

	bindings := p.Bindings()
	gpuBuffers := make([]*wgpu.Buffer, len(bindings))
	sizes := make([]uint64, len(bindings))
	entries := make([]wgpu.BindGroupEntry, 0, len(bindings)+1)
	for i, b := range bindings {
		sizes[i] = align4(b.Len())
		data := make([]byte, sizes[i])
		copy(data, b.Bytes())
		gpuBuffers[i] = s.upload(data, sizes[i], wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc|wgpu.BufferUsageCopyDst)
		defer gpuBuffers[i].Release()
		//nolint:gosec // G115: binding count is tiny
		entries = append(entries, wgpu.BufferBindingEntry(uint32(i), gpuBuffers[i], 0, sizes[i]))
	}

	params := p.Uniform()
	paramSize := uint64((len(params) + 15) &^ 15)
	if paramSize == 0 {
		paramSize = 16
	}
	padded := make([]byte, paramSize)
	copy(padded, params)
	uniform := s.upload(padded, paramSize, wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst)
	defer uniform.Release()
	//nolint:gosec // G115: binding count is tiny
	entries = append(entries, wgpu.BufferBindingEntry(uint32(len(bindings)), uniform, 0, paramSize))

	bindGroup := s.device.CreateBindGroupSimple(pipeline.GetBindGroupLayout(0), entries)
	defer bindGroup.Release()

	encoder := s.device.CreateCommandEncoder(nil)
	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(pipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.DispatchWorkgroups(p.Workgroups(), 1, 1)
	pass.End()
	s.queue.Submit(encoder.Finish(nil))

	for _, idx := range p.Writable() {
		out := make([]byte, sizes[idx])
		if err := s.readBack(gpuBuffers[idx], sizes[idx], out); err != nil {
			return err
		}
		copy(bindings[idx].Bytes(), out)
	}
	return nil
}
