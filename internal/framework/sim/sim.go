// Package sim implements a deterministic in-process framework that poses as
// a second backend family. Memory lives in host byte slices behind the same
// capability surface a real accelerator would expose, and every device
// counts its allocations and transfers, which is what the coherence tests
// key on. A framework constructed with no hardware stands in for a machine
// where the family's driver is absent.
package sim

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/phloem-ml/phloem/internal/framework"
)

// Name is the registry name of the simulated framework.
const Name = "sim"

// Framework is a simulated accelerator family.
type Framework struct {
	name     string
	hardware []framework.Hardware
}

var _ framework.Framework = (*Framework)(nil)

// New initializes a simulated framework with n accelerator devices. n may
// be zero to simulate an unsupported family.
func New(n int) *Framework {
	f := &Framework{name: Name}
	for i := 0; i < n; i++ {
		f.hardware = append(f.hardware, framework.Hardware{
			ID:           i,
			Framework:    Name,
			Kind:         framework.Accelerator,
			Name:         fmt.Sprintf("Simulated Accelerator %d", i),
			Memory:       1 << 30,
			ComputeUnits: 16,
		})
	}
	return f
}

// Name returns "sim".
func (f *Framework) Name() string { return f.name }

// Hardware returns the configured descriptors.
func (f *Framework) Hardware() []framework.Hardware { return f.hardware }

// Open creates a simulated device context.
func (f *Framework) Open(selection ...framework.Hardware) (framework.Device, error) {
	if len(selection) == 0 {
		selection = f.hardware
	}
	if len(selection) == 0 {
		return nil, fmt.Errorf("sim: no hardware enumerated: %w", framework.ErrNoSuchHardware)
	}
	for _, h := range selection {
		if h.Framework != Name || h.ID < 0 || h.ID >= len(f.hardware) {
			return nil, fmt.Errorf("sim: open %s: %w", h, framework.ErrNoSuchHardware)
		}
	}
	return &Device{
		id:        uuid.NewString(),
		framework: f,
		hardware:  selection,
	}, nil
}

// Device is a simulated execution context with observable counters.
type Device struct {
	id        string
	framework *Framework
	hardware  []framework.Hardware

	allocs    atomic.Int64
	transfers atomic.Int64

	// FailNextAlloc makes the next Allocate return ErrAllocation,
	// simulating device memory pressure.
	FailNextAlloc bool
	// FailTransfers makes every copy fail with ErrDriver.
	FailTransfers bool
}

var (
	_ framework.Device     = (*Device)(nil)
	_ framework.PeerCopier = (*Device)(nil)
)

// ID returns the unique context identity.
func (d *Device) ID() string { return d.id }

// Framework returns the owning simulated framework.
func (d *Device) Framework() framework.Framework { return d.framework }

// Hardware returns the targeted descriptors.
func (d *Device) Hardware() []framework.Hardware { return d.hardware }

// Allocations returns how many buffers this device has allocated.
func (d *Device) Allocations() int64 { return d.allocs.Load() }

// Transfers returns how many copies (in or out) this device has performed.
func (d *Device) Transfers() int64 { return d.transfers.Load() }

// Allocate reserves a simulated device buffer.
func (d *Device) Allocate(byteLen int) (framework.Memory, error) {
	if d.FailNextAlloc {
		d.FailNextAlloc = false
		return nil, fmt.Errorf("sim: device out of memory: %w", framework.ErrAllocation)
	}
	d.allocs.Add(1)
	return &memory{device: d, data: make([]byte, byteLen)}, nil
}

// Free releases the buffer.
func (d *Device) Free(mem framework.Memory) error {
	m, err := d.own(mem)
	if err != nil {
		return err
	}
	m.data = nil
	return nil
}

// CopyOut dumps the buffer to host bytes, counting one transfer.
func (d *Device) CopyOut(mem framework.Memory) ([]byte, error) {
	m, err := d.own(mem)
	if err != nil {
		return nil, err
	}
	if d.FailTransfers {
		return nil, fmt.Errorf("sim: transfer failed: %w", framework.ErrDriver)
	}
	d.transfers.Add(1)
	out := make([]byte, len(m.data))
	copy(out, m.data)
	return out, nil
}

// CopyIn overwrites the buffer from host bytes, counting one transfer.
func (d *Device) CopyIn(mem framework.Memory, data []byte) error {
	m, err := d.own(mem)
	if err != nil {
		return err
	}
	if d.FailTransfers {
		return fmt.Errorf("sim: transfer failed: %w", framework.ErrDriver)
	}
	if len(data) != len(m.data) {
		return fmt.Errorf("sim: copy in %d bytes into %d-byte buffer: %w",
			len(data), len(m.data), framework.ErrDriver)
	}
	d.transfers.Add(1)
	copy(m.data, data)
	return nil
}

// CopyPeer copies directly between buffers of the simulated family,
// counting one transfer on the source device. Buffers of another family
// have no direct route.
func (d *Device) CopyPeer(dst, src framework.Memory) error {
	sm, err := d.own(src)
	if err != nil {
		return err
	}
	dm, ok := dst.(*memory)
	if !ok {
		return framework.ErrNoTransferRoute
	}
	if d.FailTransfers {
		return fmt.Errorf("sim: transfer failed: %w", framework.ErrDriver)
	}
	if len(dm.data) != len(sm.data) {
		return fmt.Errorf("sim: peer copy %d -> %d bytes: %w",
			len(sm.data), len(dm.data), framework.ErrDriver)
	}
	d.transfers.Add(1)
	copy(dm.data, sm.data)
	return nil
}

// Close tears down the context.
func (d *Device) Close() error { return nil }

func (d *Device) own(mem framework.Memory) (*memory, error) {
	m, ok := mem.(*memory)
	if !ok || m.device != d {
		return nil, fmt.Errorf("sim: foreign memory: %w", framework.ErrDriver)
	}
	return m, nil
}

type memory struct {
	device *Device
	data   []byte
}

func (m *memory) ByteLen() int             { return len(m.data) }
func (m *memory) Device() framework.Device { return m.device }
