package tensor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phloem-ml/phloem/internal/framework"
	"github.com/phloem-ml/phloem/internal/framework/native"
	"github.com/phloem-ml/phloem/internal/framework/sim"
)

func newDevices(t *testing.T) (host framework.Device, accel *sim.Device) {
	t.Helper()
	h, err := native.New().Open()
	require.NoError(t, err)
	a, err := sim.New(1).Open()
	require.NoError(t, err)
	return h, a.(*sim.Device)
}

func TestSharedStartsUninitialized(t *testing.T) {
	host, _ := newDevices(t)

	ts, err := NewShared(Shape{2, 3}, Float32)
	require.NoError(t, err)

	assert.Equal(t, 0, ts.Copies())
	assert.Equal(t, 6, ts.NumElements())
	assert.Equal(t, 24, ts.ByteSize())

	_, err = ts.Read(host)
	assert.ErrorIs(t, err, ErrUninitialized)
	err = ts.EnsureFresh(host)
	assert.ErrorIs(t, err, ErrUninitialized)
	err = ts.MarkWritten(host)
	assert.ErrorIs(t, err, ErrUninitialized)
}

func TestSharedInvalidShape(t *testing.T) {
	_, err := NewShared(Shape{2, -1}, Float32)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestWriteThenReadAcrossDevices(t *testing.T) {
	host, accel := newDevices(t)

	ts, err := NewShared(Shape{4}, Float32)
	require.NoError(t, err)

	data := []float32{1, 2, 3, 4}
	require.NoError(t, ts.SetFloat32s(host, data))

	state, ok := ts.State(host)
	require.True(t, ok)
	assert.Equal(t, Fresh, state)

	// First access on the accelerator allocates and transfers once.
	got, err := ts.Float32s(accel)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.EqualValues(t, 1, accel.Allocations())
	// One copy in for the sync, one copy out for the read-back.
	assert.EqualValues(t, 2, accel.Transfers())

	// Both copies are fresh; the source stays fresh after a sync.
	state, ok = ts.State(host)
	require.True(t, ok)
	assert.Equal(t, Fresh, state)
	state, ok = ts.State(accel)
	require.True(t, ok)
	assert.Equal(t, Fresh, state)
	assert.Equal(t, 2, ts.Copies())
}

func TestEnsureFreshIsIdempotent(t *testing.T) {
	host, accel := newDevices(t)

	ts, err := NewShared(Shape{8}, Float32)
	require.NoError(t, err)
	require.NoError(t, ts.SetFloat32s(host, make([]float32, 8)))
	require.NoError(t, ts.EnsureFresh(accel))

	allocs, transfers := accel.Allocations(), accel.Transfers()
	for i := 0; i < 3; i++ {
		require.NoError(t, ts.EnsureFresh(accel))
	}
	assert.Equal(t, allocs, accel.Allocations(), "fresh copy must not reallocate")
	assert.Equal(t, transfers, accel.Transfers(), "fresh copy must not transfer")
}

func TestMarkWrittenInvalidatesOthers(t *testing.T) {
	host, accel := newDevices(t)

	ts, err := NewShared(Shape{2}, Float32)
	require.NoError(t, err)
	require.NoError(t, ts.SetFloat32s(host, []float32{1, 2}))
	require.NoError(t, ts.EnsureFresh(accel))

	require.NoError(t, ts.MarkWritten(host))
	state, _ := ts.State(host)
	assert.Equal(t, Fresh, state)
	state, _ = ts.State(accel)
	assert.Equal(t, Stale, state)

	// Idempotent: repeating changes nothing.
	require.NoError(t, ts.MarkWritten(host))
	state, _ = ts.State(accel)
	assert.Equal(t, Stale, state)
}

func TestReserveLeavesStatesAlone(t *testing.T) {
	host, accel := newDevices(t)

	ts, err := NewShared(Shape{3}, Float32)
	require.NoError(t, err)
	data := []float32{7, 8, 9}
	require.NoError(t, ts.SetFloat32s(host, data))

	// Reserving on a second device allocates but neither transfers nor
	// touches any freshness state.
	mem, err := ts.Reserve(accel)
	require.NoError(t, err)
	assert.Equal(t, ts.ByteSize(), mem.ByteLen())
	assert.EqualValues(t, 1, accel.Allocations())
	assert.EqualValues(t, 0, accel.Transfers(), "Reserve must not synchronize")

	state, ok := ts.State(host)
	require.True(t, ok)
	assert.Equal(t, Fresh, state)
	state, ok = ts.State(accel)
	require.True(t, ok)
	assert.Equal(t, Stale, state, "an unfilled reservation stays stale")

	// The prior value is untouched until the reservation is committed with
	// MarkWritten.
	got, err := ts.Float32s(host)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	// Reserving again reuses the copy.
	_, err = ts.Reserve(accel)
	require.NoError(t, err)
	assert.EqualValues(t, 1, accel.Allocations())
}

func TestShapeReturnsACopy(t *testing.T) {
	ts, err := NewShared(Shape{2, 3}, Float32)
	require.NoError(t, err)

	shape := ts.Shape()
	shape[0] = 99
	assert.Equal(t, Shape{2, 3}, ts.Shape())
	assert.Equal(t, 24, ts.ByteSize())
}

func TestWriteSkipsSynchronization(t *testing.T) {
	host, accel := newDevices(t)

	ts, err := NewShared(Shape{4}, Float32)
	require.NoError(t, err)
	require.NoError(t, ts.SetFloat32s(host, []float32{1, 2, 3, 4}))

	// A full overwrite on a second device must not pull the old value in.
	_, err = ts.Write(accel)
	require.NoError(t, err)
	assert.EqualValues(t, 0, accel.Transfers(), "Write must not synchronize")

	state, _ := ts.State(accel)
	assert.Equal(t, Fresh, state)
	state, _ = ts.State(host)
	assert.Equal(t, Stale, state)
}

func TestReadWriteSynchronizesThenInvalidates(t *testing.T) {
	host, accel := newDevices(t)

	ts, err := NewShared(Shape{4}, Float32)
	require.NoError(t, err)
	require.NoError(t, ts.SetFloat32s(host, []float32{1, 2, 3, 4}))

	_, err = ts.ReadWrite(accel)
	require.NoError(t, err)
	assert.EqualValues(t, 1, accel.Transfers(), "ReadWrite pulls the value in")

	state, _ := ts.State(accel)
	assert.Equal(t, Fresh, state)
	state, _ = ts.State(host)
	assert.Equal(t, Stale, state)
}

func TestDropCopyPromotesSurvivor(t *testing.T) {
	host, accel := newDevices(t)

	ts, err := NewShared(Shape{3}, Float32)
	require.NoError(t, err)
	data := []float32{5, 6, 7}
	require.NoError(t, ts.SetFloat32s(host, data))
	require.NoError(t, ts.EnsureFresh(accel))
	require.NoError(t, ts.MarkWritten(host)) // accel copy goes stale

	transfers := accel.Transfers()
	require.NoError(t, ts.DropCopy(host))
	assert.EqualValues(t, transfers+1, accel.Transfers(), "promotion costs exactly one transfer")

	got, err := ts.Float32s(accel)
	require.NoError(t, err)
	assert.Equal(t, data, got, "value survives eviction of the fresh copy")
	assert.Equal(t, 1, ts.Copies())
}

func TestDropStaleCopyNeverTransfers(t *testing.T) {
	host, accel := newDevices(t)

	ts, err := NewShared(Shape{3}, Float32)
	require.NoError(t, err)
	require.NoError(t, ts.SetFloat32s(host, []float32{1, 2, 3}))
	require.NoError(t, ts.EnsureFresh(accel))
	require.NoError(t, ts.MarkWritten(host))

	transfers := accel.Transfers()
	require.NoError(t, ts.DropCopy(accel))
	assert.Equal(t, transfers, accel.Transfers())
	assert.Equal(t, 1, ts.Copies())
}

func TestDropLastCopyUninitializes(t *testing.T) {
	host, _ := newDevices(t)

	ts, err := NewShared(Shape{2}, Float32)
	require.NoError(t, err)
	require.NoError(t, ts.SetFloat32s(host, []float32{1, 2}))

	require.NoError(t, ts.DropCopy(host))
	assert.Equal(t, 0, ts.Copies())
	_, err = ts.Read(host)
	assert.ErrorIs(t, err, ErrUninitialized)

	// Dropping on a device without a copy is a no-op.
	require.NoError(t, ts.DropCopy(host))
}

func TestReshapePreservesCopies(t *testing.T) {
	host, _ := newDevices(t)

	ts, err := NewShared(Shape{2, 3}, Float32)
	require.NoError(t, err)
	data := []float32{1, 2, 3, 4, 5, 6}
	require.NoError(t, ts.SetFloat32s(host, data))

	require.NoError(t, ts.Reshape(Shape{3, 2}))
	assert.Equal(t, Shape{3, 2}, ts.Shape())
	got, err := ts.Float32s(host)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	err = ts.Reshape(Shape{4, 2})
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestReallocDropsEverything(t *testing.T) {
	host, accel := newDevices(t)

	ts, err := NewShared(Shape{2}, Float32)
	require.NoError(t, err)
	require.NoError(t, ts.SetFloat32s(host, []float32{1, 2}))
	require.NoError(t, ts.EnsureFresh(accel))
	require.Equal(t, 2, ts.Copies())

	require.NoError(t, ts.Realloc(Shape{5}))
	assert.Equal(t, Shape{5}, ts.Shape())
	assert.Equal(t, 0, ts.Copies())
	_, err = ts.Read(host)
	assert.ErrorIs(t, err, ErrUninitialized)
}

func TestSetBytesSizeMismatch(t *testing.T) {
	host, _ := newDevices(t)

	ts, err := NewShared(Shape{4}, Float32)
	require.NoError(t, err)
	err = ts.SetBytes(host, make([]byte, 15))
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestAllocationFailureSurfaces(t *testing.T) {
	host, accel := newDevices(t)

	ts, err := NewShared(Shape{4}, Float32)
	require.NoError(t, err)
	require.NoError(t, ts.SetFloat32s(host, []float32{1, 2, 3, 4}))

	accel.FailNextAlloc = true
	err = ts.EnsureFresh(accel)
	assert.ErrorIs(t, err, framework.ErrAllocation)
	assert.Equal(t, 1, ts.Copies(), "failed allocation leaves no copy behind")

	// The device recovers on the next attempt.
	require.NoError(t, ts.EnsureFresh(accel))
}

func TestTransferFailureSurfaces(t *testing.T) {
	host, accel := newDevices(t)

	ts, err := NewShared(Shape{4}, Float32)
	require.NoError(t, err)
	require.NoError(t, ts.SetFloat32s(host, []float32{1, 2, 3, 4}))

	accel.FailTransfers = true
	err = ts.EnsureFresh(accel)
	require.Error(t, err)
	assert.True(t, errors.Is(err, framework.ErrDriver))

	state, ok := ts.State(accel)
	require.True(t, ok)
	assert.Equal(t, Stale, state, "failed transfer must not mark the copy fresh")
}

func TestPeerCopyBetweenNativeContexts(t *testing.T) {
	fw := native.New()
	d1, err := fw.Open()
	require.NoError(t, err)
	d2, err := fw.Open()
	require.NoError(t, err)

	ts, err := NewShared(Shape{4}, Float32)
	require.NoError(t, err)
	data := []float32{1, 2, 3, 4}
	require.NoError(t, ts.SetFloat32s(d1, data))

	// Both contexts are native, so the direct route applies.
	got, err := ts.Float32s(d2)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestDTypeGuards(t *testing.T) {
	host, _ := newDevices(t)

	ts, err := NewShared(Shape{2}, Int32)
	require.NoError(t, err)
	err = ts.SetFloat32s(host, []float32{1, 2})
	assert.ErrorIs(t, err, ErrShapeMismatch)
	_, err = ts.Float32s(host)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}
