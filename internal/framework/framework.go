// Package framework defines the capability surface every backend family
// (native CPU, WebGPU, simulated accelerators, ...) must implement.
//
// A Framework enumerates hardware and opens Devices; a Device owns an
// execution queue and the raw Memory allocated on it. The coherence engine
// in internal/tensor is written purely against these interfaces, which is
// what keeps it backend-agnostic.
package framework

// Framework is the entry point of one backend family.
//
// Enumeration never fails: a family that is unsupported on this machine
// reports an empty hardware list, which is what enables silent fallback to
// the native framework during backend construction.
type Framework interface {
	// Name identifies the framework ("native", "webgpu", ...). Used as the
	// framework half of the operation-registry key.
	Name() string

	// Hardware returns the cached list of hardware enumerated at framework
	// initialization. The returned slice must not be mutated.
	Hardware() []Hardware

	// Open creates a Device targeting the given hardware selection. With no
	// arguments, all enumerated hardware is selected. Open fails with
	// ErrNoSuchHardware if a descriptor was not enumerated by this
	// framework, and with ErrDriver if context creation fails at the driver
	// level.
	Open(selection ...Hardware) (Device, error)
}

// Device is an opened execution context (queue/stream) of one Framework.
//
// Devices own the memory allocated on them: closing a device invalidates
// its allocations, so allocations must be freed first. Calls block until
// the underlying queue has completed the work; overlap across distinct
// devices is the unit of parallelism.
type Device interface {
	// ID returns the unique identity of this context. Two Device values
	// with equal IDs refer to the same context.
	ID() string

	// Framework returns the owning framework.
	Framework() Framework

	// Hardware returns the descriptors this device targets.
	Hardware() []Hardware

	// Allocate reserves byteLen bytes of device memory. Fails with
	// ErrAllocation when the device is out of memory.
	Allocate(byteLen int) (Memory, error)

	// Free releases a previously allocated buffer.
	Free(mem Memory) error

	// CopyOut dumps the full contents of mem to host bytes.
	CopyOut(mem Memory) ([]byte, error)

	// CopyIn overwrites mem with the given host bytes, which must have
	// exactly mem.ByteLen() bytes.
	CopyIn(mem Memory, data []byte) error

	// Close tears down the execution context. The device is unusable
	// afterwards.
	Close() error
}

// Memory is a raw framework-owned buffer of device-resident bytes. It is
// exclusively owned by one shared-tensor copy slot.
type Memory interface {
	// ByteLen returns the buffer length in bytes.
	ByteLen() int

	// Device returns the context this buffer lives on.
	Device() Device
}

// PeerCopier is an optional Device capability for direct device-to-device
// transfers. The coherence engine uses it when the source device implements
// it and accepts the pair; otherwise it stages through host bytes, which
// every framework must support.
type PeerCopier interface {
	// CopyPeer copies src into dst. Returning ErrNoTransferRoute makes the
	// caller fall back to host staging.
	CopyPeer(dst, src Memory) error
}
