// Package native implements the host-CPU framework. It is always available
// and terminates every fallback chain: memory lives in ordinary Go byte
// slices and transfers are plain copies.
package native

import (
	"fmt"
	"runtime"

	"github.com/google/uuid"
	"github.com/phloem-ml/phloem/internal/framework"
)

// Name is the registry name of the native framework.
const Name = "native"

// Framework is the native CPU framework. The zero value is not usable;
// construct it with New.
type Framework struct {
	hardware []framework.Hardware
}

var _ framework.Framework = (*Framework)(nil)

// New initializes the native framework. Enumeration always yields exactly
// one descriptor for the host CPU.
func New() *Framework {
	return &Framework{
		hardware: []framework.Hardware{{
			ID:           0,
			Framework:    Name,
			Kind:         framework.CPU,
			Name:         "Host CPU",
			ComputeUnits: runtime.NumCPU(),
		}},
	}
}

// Name returns "native".
func (f *Framework) Name() string { return Name }

// Hardware returns the enumerated host CPU descriptor.
func (f *Framework) Hardware() []framework.Hardware { return f.hardware }

// Open creates a host device context. An empty selection targets all
// enumerated hardware.
func (f *Framework) Open(selection ...framework.Hardware) (framework.Device, error) {
	if len(selection) == 0 {
		selection = f.hardware
	}
	for _, h := range selection {
		if h.Framework != Name || h.ID != 0 {
			return nil, fmt.Errorf("native: open %s: %w", h, framework.ErrNoSuchHardware)
		}
	}
	return &Device{
		id:        uuid.NewString(),
		framework: f,
		hardware:  selection,
	}, nil
}

// Device is an opened host context. Operations run synchronously on the
// calling goroutine.
type Device struct {
	id        string
	framework *Framework
	hardware  []framework.Hardware
	closed    bool
}

var (
	_ framework.Device     = (*Device)(nil)
	_ framework.PeerCopier = (*Device)(nil)
)

// ID returns the unique context identity.
func (d *Device) ID() string { return d.id }

// Framework returns the owning native framework.
func (d *Device) Framework() framework.Framework { return d.framework }

// Hardware returns the targeted descriptors.
func (d *Device) Hardware() []framework.Hardware { return d.hardware }

// Allocate reserves a host buffer of byteLen bytes, zero-initialized.
func (d *Device) Allocate(byteLen int) (framework.Memory, error) {
	if d.closed {
		return nil, fmt.Errorf("native: allocate on closed device: %w", framework.ErrDriver)
	}
	if byteLen < 0 {
		return nil, fmt.Errorf("native: allocate %d bytes: %w", byteLen, framework.ErrAllocation)
	}
	return &Memory{device: d, data: make([]byte, byteLen)}, nil
}

// Free releases the buffer. For host memory this only severs the reference.
func (d *Device) Free(mem framework.Memory) error {
	m, err := d.own(mem)
	if err != nil {
		return err
	}
	m.data = nil
	return nil
}

// CopyOut returns a copy of the buffer contents.
func (d *Device) CopyOut(mem framework.Memory) ([]byte, error) {
	m, err := d.own(mem)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(m.data))
	copy(out, m.data)
	return out, nil
}

// CopyIn overwrites the buffer with host bytes of exactly ByteLen bytes.
func (d *Device) CopyIn(mem framework.Memory, data []byte) error {
	m, err := d.own(mem)
	if err != nil {
		return err
	}
	if len(data) != len(m.data) {
		return fmt.Errorf("native: copy in %d bytes into %d-byte buffer: %w",
			len(data), len(m.data), framework.ErrDriver)
	}
	copy(m.data, data)
	return nil
}

// CopyPeer copies between two native buffers without staging.
func (d *Device) CopyPeer(dst, src framework.Memory) error {
	dm, ok := dst.(*Memory)
	if !ok {
		return framework.ErrNoTransferRoute
	}
	sm, ok := src.(*Memory)
	if !ok {
		return framework.ErrNoTransferRoute
	}
	if len(dm.data) != len(sm.data) {
		return fmt.Errorf("native: peer copy %d -> %d bytes: %w",
			len(sm.data), len(dm.data), framework.ErrDriver)
	}
	copy(dm.data, sm.data)
	return nil
}

// Close tears down the context.
func (d *Device) Close() error {
	d.closed = true
	return nil
}

func (d *Device) own(mem framework.Memory) (*Memory, error) {
	m, ok := mem.(*Memory)
	if !ok || m.device != d {
		return nil, fmt.Errorf("native: foreign memory: %w", framework.ErrDriver)
	}
	if m.data == nil && m.ByteLen() != 0 {
		return nil, fmt.Errorf("native: memory already freed: %w", framework.ErrDriver)
	}
	return m, nil
}

// Memory is a host buffer. Extension packages running on the native
// framework may downcast to it for zero-copy access via Bytes.
type Memory struct {
	device *Device
	data   []byte
}

var _ framework.Memory = (*Memory)(nil)

// ByteLen returns the buffer length.
func (m *Memory) ByteLen() int { return len(m.data) }

// Device returns the owning context.
func (m *Memory) Device() framework.Device { return m.device }

// Bytes returns the backing slice. Mutations are visible to the device;
// callers are expected to follow a write with Shared.MarkWritten.
func (m *Memory) Bytes() []byte { return m.data }
