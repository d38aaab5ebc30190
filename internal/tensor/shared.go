package tensor

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/phloem-ml/phloem/internal/framework"
)

// CopyState is the freshness state of one physical copy of a shared tensor.
type CopyState int

// Freshness states. A tensor with zero copies is logically uninitialized.
const (
	Stale CopyState = iota
	Fresh
)

// String returns a human-readable state name.
func (s CopyState) String() string {
	if s == Fresh {
		return "fresh"
	}
	return "stale"
}

// replica is one physical copy of the tensor on one device context.
type replica struct {
	device framework.Device
	memory framework.Memory
	state  CopyState
}

// Shared is a coherent logical array: one shape descriptor plus zero or
// more physical copies across device contexts, each tagged with a freshness
// state.
//
// Shared tracks where the bytes live and which copy holds the latest value.
// A write on one device never propagates eagerly; propagation is deferred
// until another device calls EnsureFresh. Immediately after any
// write-completing operation exactly one copy is fresh and all others are
// stale.
//
// All state transitions are serialized by a per-tensor mutex, the only
// lock in the substrate. Two devices writing the same tensor concurrently
// is a caller error; the engine does not merge conflicting writes.
type Shared struct {
	mu     sync.Mutex
	shape  Shape
	dtype  DataType
	copies []*replica // insertion order; sync source is the first fresh copy
}

// NewShared constructs a tensor with the given shape and no copies. Copies
// are added lazily the first time a device reads or writes the tensor.
func NewShared(shape Shape, dtype DataType) (*Shared, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrShapeMismatch, err)
	}
	return &Shared{shape: shape.Clone(), dtype: dtype}, nil
}

// Shape returns a copy of the tensor's shape. Changing dimensions goes
// through Reshape or Realloc, which validate capacity.
func (t *Shared) Shape() Shape {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.shape.Clone()
}

// DType returns the tensor's element type.
func (t *Shared) DType() DataType { return t.dtype }

// NumElements returns the total number of elements.
func (t *Shared) NumElements() int { return t.shape.NumElements() }

// ByteSize returns the size of one physical copy in bytes.
func (t *Shared) ByteSize() int { return t.shape.NumElements() * t.dtype.Size() }

// Copies returns the number of physical copies currently allocated.
func (t *Shared) Copies() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.copies)
}

// State reports the freshness of the copy on dev, and whether a copy
// exists there at all.
func (t *Shared) State(dev framework.Device) (CopyState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if r := t.find(dev); r != nil {
		return r.state, true
	}
	return Stale, false
}

// EnsureFresh guarantees that, on return, the tensor has a fresh copy on
// dev. If one is already there this is a no-op: no allocation, no
// transfer. Otherwise the value is copied in from an existing fresh copy,
// allocating on dev first if needed; the source copy stays fresh.
//
// Fails with ErrUninitialized when no fresh copy exists anywhere, and with
// ErrAllocation when dev cannot hold a new copy.
func (t *Shared) EnsureFresh(dev framework.Device) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := t.ensureFresh(dev)
	return err
}

// Read is EnsureFresh plus access to the now-valid memory on dev.
func (t *Shared) Read(dev framework.Device) (framework.Memory, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, err := t.ensureFresh(dev)
	if err != nil {
		return nil, err
	}
	return r.memory, nil
}

// Write returns memory on dev that the caller is about to overwrite
// completely, allocating it if absent. The prior value is irrelevant, so
// no synchronization happens; the copy on dev becomes the sole fresh
// copy, with every other copy marked stale.
func (t *Shared) Write(dev framework.Device) (framework.Memory, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, err := t.materialize(dev)
	if err != nil {
		return nil, err
	}
	t.invalidateOthers(r)
	return r.memory, nil
}

// Reserve returns memory on dev without changing any freshness state,
// allocating it if absent. Callers fill the memory and then MarkWritten;
// until they do, the reserved copy stays stale and the tensor's prior
// value is untouched, so an abandoned reservation loses nothing.
func (t *Shared) Reserve(dev framework.Device) (framework.Memory, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, err := t.materialize(dev)
	if err != nil {
		return nil, err
	}
	return r.memory, nil
}

// ReadWrite synchronizes dev like Read and then marks it written, for
// operations that read and update a tensor in place.
func (t *Shared) ReadWrite(dev framework.Device) (framework.Memory, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, err := t.ensureFresh(dev)
	if err != nil {
		return nil, err
	}
	t.invalidateOthers(r)
	return r.memory, nil
}

// MarkWritten records that an operation has written a new value into the
// copy on dev: that copy becomes fresh and every other copy becomes stale.
// Idempotent. Fails with ErrUninitialized if no copy exists on dev.
func (t *Shared) MarkWritten(dev framework.Device) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.find(dev)
	if r == nil {
		return fmt.Errorf("%w: no copy allocated on device %s", ErrUninitialized, dev.ID())
	}
	t.invalidateOthers(r)
	return nil
}

// DropCopy evicts the copy on dev, freeing its device memory. Dropping a
// stale copy never transfers. Dropping the sole fresh copy while stale
// copies exist first promotes one of them (exactly one transfer) so the
// value survives the eviction. Dropping the only copy returns the tensor
// to the uninitialized state. Dropping a device that holds no copy is a
// no-op.
func (t *Shared) DropCopy(dev framework.Device) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := -1
	for i, r := range t.copies {
		if r.device.ID() == dev.ID() {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	victim := t.copies[idx]

	if victim.state == Fresh && t.freshCount() == 1 && len(t.copies) > 1 {
		// Promote a survivor before the sole fresh copy disappears.
		heir := t.copies[0]
		if heir == victim {
			heir = t.copies[1]
		}
		if err := t.transfer(victim, heir); err != nil {
			return err
		}
		heir.state = Fresh
	}

	t.copies = append(t.copies[:idx], t.copies[idx+1:]...)
	return victim.device.Free(victim.memory)
}

// Reshape changes the shape without touching any copy. The new shape must
// describe the same number of elements; use Realloc otherwise.
func (t *Shared) Reshape(shape Shape) error {
	if err := shape.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrShapeMismatch, err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if shape.NumElements() != t.shape.NumElements() {
		return fmt.Errorf("%w: reshape %v to %v changes capacity", ErrShapeMismatch, t.shape, shape)
	}
	t.shape = shape.Clone()
	return nil
}

// Realloc changes the shape to one of a different capacity. All copies are
// dropped, including fresh ones; the tensor becomes uninitialized.
func (t *Shared) Realloc(shape Shape) error {
	if err := shape.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrShapeMismatch, err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, r := range t.copies {
		_ = r.device.Free(r.memory)
	}
	t.copies = nil
	t.shape = shape.Clone()
	return nil
}

// SetBytes writes host bytes into the copy on dev, making it the sole
// fresh copy. The data must have exactly ByteSize bytes.
func (t *Shared) SetBytes(dev framework.Device, data []byte) error {
	if len(data) != t.ByteSize() {
		return fmt.Errorf("%w: %d bytes for %v %s tensor (%d bytes)",
			ErrShapeMismatch, len(data), t.shape, t.dtype, t.ByteSize())
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	r, err := t.materialize(dev)
	if err != nil {
		return err
	}
	if err := dev.CopyIn(r.memory, data); err != nil {
		return err
	}
	t.invalidateOthers(r)
	return nil
}

// Bytes synchronizes dev and dumps the tensor contents to host bytes.
func (t *Shared) Bytes(dev framework.Device) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, err := t.ensureFresh(dev)
	if err != nil {
		return nil, err
	}
	return dev.CopyOut(r.memory)
}

// SetFloat32s writes float32 host data into the copy on dev.
func (t *Shared) SetFloat32s(dev framework.Device, data []float32) error {
	if t.dtype != Float32 {
		return fmt.Errorf("%w: float32 data for %s tensor", ErrShapeMismatch, t.dtype)
	}
	if len(data) == 0 {
		return t.SetBytes(dev, nil)
	}
	raw := unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), len(data)*4)
	return t.SetBytes(dev, raw)
}

// Float32s synchronizes dev and returns the tensor contents as float32s.
func (t *Shared) Float32s(dev framework.Device) ([]float32, error) {
	if t.dtype != Float32 {
		return nil, fmt.Errorf("%w: float32 view of %s tensor", ErrShapeMismatch, t.dtype)
	}
	raw, err := t.Bytes(dev)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	view := unsafe.Slice((*float32)(unsafe.Pointer(&raw[0])), len(raw)/4)
	out := make([]float32, len(view))
	copy(out, view)
	return out, nil
}

// ensureFresh implements the synchronization algorithm. Caller holds t.mu.
func (t *Shared) ensureFresh(dev framework.Device) (*replica, error) {
	if r := t.find(dev); r != nil && r.state == Fresh {
		return r, nil
	}
	src := t.freshSource()
	if src == nil {
		return nil, fmt.Errorf("%w: tensor %v has no fresh copy", ErrUninitialized, t.shape)
	}
	dst, err := t.materialize(dev)
	if err != nil {
		return nil, err
	}
	if err := t.transfer(src, dst); err != nil {
		return nil, err
	}
	dst.state = Fresh // source stays fresh; everything else is untouched
	return dst, nil
}

// materialize returns the copy on dev, allocating one if absent. Caller
// holds t.mu.
func (t *Shared) materialize(dev framework.Device) (*replica, error) {
	if r := t.find(dev); r != nil {
		return r, nil
	}
	mem, err := dev.Allocate(t.ByteSize())
	if err != nil {
		return nil, fmt.Errorf("allocating %d bytes on %s: %w", t.ByteSize(), dev.ID(), err)
	}
	r := &replica{device: dev, memory: mem, state: Stale}
	t.copies = append(t.copies, r)
	return r, nil
}

// transfer moves the value of src into dst, preferring a direct
// device-to-device route and falling back to host staging. Caller holds
// t.mu.
func (t *Shared) transfer(src, dst *replica) error {
	if pc, ok := src.device.(framework.PeerCopier); ok {
		err := pc.CopyPeer(dst.memory, src.memory)
		if err == nil {
			return nil
		}
		if !errors.Is(err, framework.ErrNoTransferRoute) {
			return err
		}
		// no direct route; stage through the host
	}
	host, err := src.device.CopyOut(src.memory)
	if err != nil {
		return err
	}
	return dst.device.CopyIn(dst.memory, host)
}

// invalidateOthers makes r the sole fresh copy. Caller holds t.mu.
func (t *Shared) invalidateOthers(keep *replica) {
	for _, r := range t.copies {
		if r == keep {
			r.state = Fresh
		} else {
			r.state = Stale
		}
	}
}

func (t *Shared) find(dev framework.Device) *replica {
	for _, r := range t.copies {
		if r.device.ID() == dev.ID() {
			return r
		}
	}
	return nil
}

func (t *Shared) freshSource() *replica {
	for _, r := range t.copies {
		if r.state == Fresh {
			return r
		}
	}
	return nil
}

func (t *Shared) freshCount() int {
	n := 0
	for _, r := range t.copies {
		if r.state == Fresh {
			n++
		}
	}
	return n
}
