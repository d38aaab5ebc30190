// Package webgpu implements the GPU framework over WebGPU, using
// go-webgpu (github.com/go-webgpu/webgpu) for zero-CGO bindings.
//
// On machines without a usable wgpu_native library or GPU adapter the
// framework enumerates no hardware, which makes backend construction skip
// it and fall back to the native framework.
package webgpu

import (
	"encoding/binary"
	"fmt"
	"sync"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"
	"github.com/google/uuid"
	"github.com/phloem-ml/phloem/internal/framework"
)

// Name is the registry name of the WebGPU framework.
const Name = "webgpu"

// workgroupSize matches the @workgroup_size attribute of the WGSL kernels.
const workgroupSize = 256

// Framework is the WebGPU framework. It owns the driver handle (instance,
// adapter, device, queue) and the shader/pipeline caches; opened Devices
// borrow them, so the framework must be torn down last.
type Framework struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	mu        sync.RWMutex
	shaders   map[string]*wgpu.ShaderModule
	pipelines map[string]*wgpu.ComputePipeline

	hardware []framework.Hardware
}

var _ framework.Framework = (*Framework)(nil)

// New initializes the WebGPU framework. Initialization failure is not an
// error: the framework simply enumerates no hardware.
func New() *Framework {
	f := &Framework{
		shaders:   make(map[string]*wgpu.ShaderModule),
		pipelines: make(map[string]*wgpu.ComputePipeline),
	}
	f.initialize()
	return f
}

// initialize probes the driver. A missing wgpu_native library panics inside
// the bindings, so treat any panic as "no hardware".
func (f *Framework) initialize() {
	defer func() {
		if r := recover(); r != nil {
			f.release()
		}
	}()

	instance, err := wgpu.CreateInstance(nil)
	if err != nil {
		return
	}
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		instance.Release()
		return
	}
	device, err := adapter.RequestDevice(nil)
	if err != nil {
		adapter.Release()
		instance.Release()
		return
	}
	queue := device.GetQueue()
	if queue == nil {
		device.Release()
		adapter.Release()
		instance.Release()
		return
	}

	info, err := adapter.GetInfo()
	if err != nil {
		queue.Release()
		device.Release()
		adapter.Release()
		instance.Release()
		return
	}
	f.instance = instance
	f.adapter = adapter
	f.device = device
	f.queue = queue
	f.hardware = []framework.Hardware{{
		ID:        0,
		Framework: Name,
		Kind:      framework.GPU,
		Name:      fmt.Sprintf("%s %s", info.Vendor, info.Device),
	}}
}

// Name returns "webgpu".
func (f *Framework) Name() string { return Name }

// Hardware returns the enumerated GPU adapters. Empty when WebGPU is
// unavailable on this machine.
func (f *Framework) Hardware() []framework.Hardware { return f.hardware }

// Open creates a device context on the adapter. All contexts share the
// framework's queue; each has its own identity.
func (f *Framework) Open(selection ...framework.Hardware) (framework.Device, error) {
	if len(f.hardware) == 0 {
		return nil, fmt.Errorf("webgpu: no adapter available: %w", framework.ErrNoSuchHardware)
	}
	if len(selection) == 0 {
		selection = f.hardware
	}
	for _, h := range selection {
		if h.Framework != Name || h.ID != 0 {
			return nil, fmt.Errorf("webgpu: open %s: %w", h, framework.ErrNoSuchHardware)
		}
	}
	return &Device{
		id:        uuid.NewString(),
		framework: f,
		hardware:  selection,
	}, nil
}

// Teardown releases all driver resources. Every Device opened from this
// framework must be closed, and its memory freed, beforehand.
func (f *Framework) Teardown() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.release()
}

func (f *Framework) release() {
	for _, p := range f.pipelines {
		p.Release()
	}
	f.pipelines = map[string]*wgpu.ComputePipeline{}
	for _, s := range f.shaders {
		s.Release()
	}
	f.shaders = map[string]*wgpu.ShaderModule{}
	if f.queue != nil {
		f.queue.Release()
		f.queue = nil
	}
	if f.device != nil {
		f.device.Release()
		f.device = nil
	}
	if f.adapter != nil {
		f.adapter.Release()
		f.adapter = nil
	}
	if f.instance != nil {
		f.instance.Release()
		f.instance = nil
	}
	f.hardware = nil
}

// compileShader returns a cached ShaderModule, compiling it on first use.
func (f *Framework) compileShader(name, code string) *wgpu.ShaderModule {
	f.mu.RLock()
	if shader, exists := f.shaders[name]; exists {
		f.mu.RUnlock()
		return shader
	}
	f.mu.RUnlock()

	shader := f.device.CreateShaderModuleWGSL(code)

	f.mu.Lock()
	f.shaders[name] = shader
	f.mu.Unlock()
	return shader
}

// getOrCreatePipeline returns a cached ComputePipeline or creates a new one.
func (f *Framework) getOrCreatePipeline(name string, shader *wgpu.ShaderModule) *wgpu.ComputePipeline {
	f.mu.RLock()
	if pipeline, exists := f.pipelines[name]; exists {
		f.mu.RUnlock()
		return pipeline
	}
	f.mu.RUnlock()

	pipeline := f.device.CreateComputePipelineSimple(nil, shader, "main")

	f.mu.Lock()
	f.pipelines[name] = pipeline
	f.mu.Unlock()
	return pipeline
}

// Device is an opened WebGPU execution context.
type Device struct {
	id        string
	framework *Framework
	hardware  []framework.Hardware
}

var _ framework.Device = (*Device)(nil)

// ID returns the unique context identity.
func (d *Device) ID() string { return d.id }

// Framework returns the owning WebGPU framework.
func (d *Device) Framework() framework.Framework { return d.framework }

// Hardware returns the targeted descriptors.
func (d *Device) Hardware() []framework.Hardware { return d.hardware }

// Allocate creates a storage buffer of byteLen bytes on the GPU.
func (d *Device) Allocate(byteLen int) (framework.Memory, error) {
	buffer := d.framework.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
		Size:  uint64(byteLen),
	})
	if buffer == nil {
		return nil, fmt.Errorf("webgpu: create buffer of %d bytes: %w", byteLen, framework.ErrAllocation)
	}
	return &Memory{device: d, buffer: buffer, size: uint64(byteLen)}, nil
}

// Free releases the GPU buffer.
func (d *Device) Free(mem framework.Memory) error {
	m, err := d.own(mem)
	if err != nil {
		return err
	}
	if m.buffer != nil {
		m.buffer.Release()
		m.buffer = nil
	}
	return nil
}

// CopyOut reads the buffer back to host bytes through a MapRead staging
// buffer.
func (d *Device) CopyOut(mem framework.Memory) ([]byte, error) {
	m, err := d.own(mem)
	if err != nil {
		return nil, err
	}
	staging := d.framework.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  m.size,
	})
	defer staging.Release()

	encoder := d.framework.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(m.buffer, 0, staging, 0, m.size)
	d.framework.queue.Submit(encoder.Finish(nil))

	if err := staging.MapAsync(d.framework.device, wgpu.MapModeRead, 0, m.size); err != nil {
		return nil, fmt.Errorf("webgpu: map staging buffer: %w: %v", framework.ErrDriver, err)
	}
	mapped := staging.GetMappedRange(0, m.size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	view := unsafe.Slice((*byte)(mapped), m.size)
	out := make([]byte, m.size)
	copy(out, view)
	staging.Unmap()
	return out, nil
}

// CopyIn uploads host bytes into the buffer through a mapped-at-creation
// staging buffer.
func (d *Device) CopyIn(mem framework.Memory, data []byte) error {
	m, err := d.own(mem)
	if err != nil {
		return err
	}
	if uint64(len(data)) != m.size {
		return fmt.Errorf("webgpu: copy in %d bytes into %d-byte buffer: %w",
			len(data), m.size, framework.ErrDriver)
	}
	staging := d.framework.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageCopySrc,
		Size:             m.size,
		MappedAtCreation: wgpu.True,
	})
	defer staging.Release()

	mapped := staging.GetMappedRange(0, m.size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	view := unsafe.Slice((*byte)(mapped), m.size)
	copy(view, data)
	staging.Unmap()

	encoder := d.framework.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(staging, 0, m.buffer, 0, m.size)
	d.framework.queue.Submit(encoder.Finish(nil))
	return nil
}

// Close detaches the context. Driver resources belong to the framework and
// are released by Teardown.
func (d *Device) Close() error { return nil }

// RunUnary executes a cached unary element-wise WGSL kernel: bindings are
// input buffer, output buffer, and a 16-byte uniform carrying the element
// count. Extension packages use it for their accelerated implementations.
func (d *Device) RunUnary(name, code string, in, out framework.Memory, numElements int) error {
	src, err := d.own(in)
	if err != nil {
		return err
	}
	dst, err := d.own(out)
	if err != nil {
		return err
	}

	shader := d.framework.compileShader(name, code)
	pipeline := d.framework.getOrCreatePipeline(name, shader)

	params := make([]byte, 16) // uniform structs need 16-byte alignment
	binary.LittleEndian.PutUint32(params[0:4], uint32(numElements))
	uniform := d.framework.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
		Size:             16,
		MappedAtCreation: wgpu.True,
	})
	defer uniform.Release()
	mapped := uniform.GetMappedRange(0, 16)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	copy(unsafe.Slice((*byte)(mapped), 16), params)
	uniform.Unmap()

	layout := pipeline.GetBindGroupLayout(0)
	bindGroup := d.framework.device.CreateBindGroupSimple(layout, []wgpu.BindGroupEntry{
		wgpu.BufferBindingEntry(0, src.buffer, 0, src.size),
		wgpu.BufferBindingEntry(1, dst.buffer, 0, dst.size),
		wgpu.BufferBindingEntry(2, uniform, 0, 16),
	})
	defer bindGroup.Release()

	encoder := d.framework.device.CreateCommandEncoder(nil)
	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(pipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	workgroups := uint32((numElements + workgroupSize - 1) / workgroupSize)
	pass.DispatchWorkgroups(workgroups, 1, 1)
	pass.End()
	d.framework.queue.Submit(encoder.Finish(nil))
	return nil
}

func (d *Device) own(mem framework.Memory) (*Memory, error) {
	m, ok := mem.(*Memory)
	if !ok || m.device != d {
		return nil, fmt.Errorf("webgpu: foreign memory: %w", framework.ErrDriver)
	}
	if m.buffer == nil {
		return nil, fmt.Errorf("webgpu: memory already freed: %w", framework.ErrDriver)
	}
	return m, nil
}

// Memory is a GPU storage buffer.
type Memory struct {
	device *Device
	buffer *wgpu.Buffer
	size   uint64
}

var _ framework.Memory = (*Memory)(nil)

// ByteLen returns the buffer length.
func (m *Memory) ByteLen() int { return int(m.size) }

// Device returns the owning context.
func (m *Memory) Device() framework.Device { return m.device }
