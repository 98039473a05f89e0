package freelist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michailvoronov/yet-another-storage/internal/codec"
	"github.com/michailvoronov/yet-another-storage/internal/device"
	"github.com/michailvoronov/yet-another-storage/internal/layout"
	"github.com/michailvoronov/yet-another-storage/internal/offtype"
)

func TestBinIndex(t *testing.T) {
	tests := []struct {
		size uint64
		want int
	}{
		{size: 1, want: 0},
		{size: 8, want: 0},
		{size: 15, want: 0},
		{size: 16, want: 1},
		{size: 4095, want: 8},
		{size: 4096, want: 9},
		{size: 8191, want: 9},
		{size: 8192, want: 10},
		{size: 1 << 20, want: 10},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, BinIndex(tt.size), "size=%d", tt.size)
	}
}

func emptyBins[O offtype.Type]() layout.FreelistHeader[O] {
	var fh layout.FreelistHeader[O]
	for i := range fh.Bins {
		fh.Bins[i] = offtype.NonExist[O]()
	}
	return fh
}

func TestPushPopLIFO(t *testing.T) {
	d := device.NewMemDevice()
	_, err := d.WriteAt(0, make([]byte, 256))
	require.NoError(t, err)

	c := codec.New[uint32](d)
	m := New(c)

	bins := emptyBins[uint32]()

	require.NoError(t, m.Push(&bins, 0, 16, layout.Empty4Simple, 0))
	require.NoError(t, m.Push(&bins, 0, 32, layout.Empty4Simple, 0))
	require.NoError(t, m.Push(&bins, 0, 48, layout.Empty4Simple, 0))

	got, err := m.Pop(&bins, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(48), got, "pop should return the most recently pushed entry")

	got, err = m.Pop(&bins, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(32), got)

	got, err = m.Pop(&bins, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(16), got)

	got, err = m.Pop(&bins, 0)
	require.NoError(t, err)
	assert.False(t, offtype.Exists(got), "bin should be empty")
}

func TestPushPopComplex(t *testing.T) {
	d := device.NewMemDevice()
	_, err := d.WriteAt(0, make([]byte, 256))
	require.NoError(t, err)

	c := codec.New[uint32](d)
	m := New(c)

	bins := emptyBins[uint32]()
	require.NoError(t, m.Push(&bins, 10, 64, layout.EmptyComplex, 64))
	require.NoError(t, m.Push(&bins, 10, 128, layout.EmptyComplex, 128))

	got, err := m.Pop(&bins, 10)
	require.NoError(t, err)
	assert.Equal(t, uint32(128), got)

	got, err = m.Pop(&bins, 10)
	require.NoError(t, err)
	assert.Equal(t, uint32(64), got)
}
