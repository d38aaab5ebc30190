package native

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phloem-ml/phloem/internal/framework"
)

func TestEnumeration(t *testing.T) {
	fw := New()
	hw := fw.Hardware()
	require.Len(t, hw, 1, "native always enumerates the host CPU")
	assert.Equal(t, Name, hw[0].Framework)
	assert.Equal(t, framework.CPU, hw[0].Kind)
	assert.Greater(t, hw[0].ComputeUnits, 0)
}

func TestOpenSelection(t *testing.T) {
	fw := New()

	d1, err := fw.Open()
	require.NoError(t, err)
	d2, err := fw.Open(fw.Hardware()...)
	require.NoError(t, err)
	assert.NotEqual(t, d1.ID(), d2.ID(), "each context has its own identity")

	_, err = fw.Open(framework.Hardware{ID: 3, Framework: Name})
	assert.ErrorIs(t, err, framework.ErrNoSuchHardware)
	_, err = fw.Open(framework.Hardware{ID: 0, Framework: "sim"})
	assert.ErrorIs(t, err, framework.ErrNoSuchHardware)
}

func TestAllocateRoundTrip(t *testing.T) {
	dev, err := New().Open()
	require.NoError(t, err)

	mem, err := dev.Allocate(16)
	require.NoError(t, err)
	assert.Equal(t, 16, mem.ByteLen())

	data := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	require.NoError(t, dev.CopyIn(mem, data))
	got, err := dev.CopyOut(mem)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	// CopyOut returns an independent copy.
	got[0] = 99
	again, err := dev.CopyOut(mem)
	require.NoError(t, err)
	assert.EqualValues(t, 1, again[0])
}

func TestCopyInSizeMismatch(t *testing.T) {
	dev, err := New().Open()
	require.NoError(t, err)
	mem, err := dev.Allocate(8)
	require.NoError(t, err)

	err = dev.CopyIn(mem, make([]byte, 4))
	assert.ErrorIs(t, err, framework.ErrDriver)
}

func TestForeignMemoryRejected(t *testing.T) {
	fw := New()
	d1, err := fw.Open()
	require.NoError(t, err)
	d2, err := fw.Open()
	require.NoError(t, err)

	mem, err := d1.Allocate(4)
	require.NoError(t, err)
	_, err = d2.CopyOut(mem)
	assert.ErrorIs(t, err, framework.ErrDriver)
}

func TestFree(t *testing.T) {
	dev, err := New().Open()
	require.NoError(t, err)
	mem, err := dev.Allocate(4)
	require.NoError(t, err)

	require.NoError(t, dev.Free(mem))
	_, err = dev.CopyOut(mem)
	assert.ErrorIs(t, err, framework.ErrDriver)
}

func TestCopyPeer(t *testing.T) {
	dev, err := New().Open()
	require.NoError(t, err)

	src, err := dev.Allocate(4)
	require.NoError(t, err)
	dst, err := dev.Allocate(4)
	require.NoError(t, err)
	require.NoError(t, dev.CopyIn(src, []byte{9, 8, 7, 6}))

	d := dev.(*Device)
	require.NoError(t, d.CopyPeer(dst, src))
	got, err := dev.CopyOut(dst)
	require.NoError(t, err)
	assert.Equal(t, []byte{9, 8, 7, 6}, got)
}
