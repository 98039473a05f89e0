package allocator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michailvoronov/yet-another-storage/internal/codec"
	"github.com/michailvoronov/yet-another-storage/internal/device"
	"github.com/michailvoronov/yet-another-storage/internal/layout"
	"github.com/michailvoronov/yet-another-storage/internal/offtype"
)

func TestExpandFormatsClusterAsSingleFreeEntry(t *testing.T) {
	d := device.NewMemDevice()
	c := codec.New[uint32](d)
	a := New(c, 256, 0)

	offset, err := a.Expand()
	require.NoError(t, err)
	assert.Equal(t, uint32(0), offset)
	assert.Equal(t, uint32(256), a.DeviceEnd())
	assert.Equal(t, uint64(256), c.Size())

	h, err := c.ReadComplexHeader(offset)
	require.NoError(t, err)
	assert.Equal(t, layout.EmptyComplex, h.State.ValueType)
	assert.Equal(t, uint32(256), h.OverallSize)

	next, err := c.ReadComplexFreePointer(offset)
	require.NoError(t, err)
	assert.False(t, offtype.Exists(next))
}

func TestExpandAppendsSuccessiveClusters(t *testing.T) {
	d := device.NewMemDevice()
	c := codec.New[uint32](d)
	a := New(c, 128, 0)

	first, err := a.Expand()
	require.NoError(t, err)
	second, err := a.Expand()
	require.NoError(t, err)

	assert.Equal(t, uint32(0), first)
	assert.Equal(t, uint32(128), second)
	assert.Equal(t, uint32(256), a.DeviceEnd())
}

func TestExpandRejectsUndersizedCluster(t *testing.T) {
	d := device.NewMemDevice()
	c := codec.New[uint32](d)
	a := New(c, 4, 0)

	_, err := a.Expand()
	assert.Error(t, err)
}
