package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michailvoronov/yet-another-storage/internal/device"
	"github.com/michailvoronov/yet-another-storage/internal/layout"
	"github.com/michailvoronov/yet-another-storage/internal/offtype"
)

func newTestDevice(t *testing.T, size int) *device.MemDevice {
	t.Helper()
	d := device.NewMemDevice()
	_, err := d.WriteAt(0, make([]byte, size))
	require.NoError(t, err)
	return d
}

func TestPVHeaderRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		run  func(t *testing.T)
	}{
		{name: "uint32 offsets", run: pvHeaderRoundTrip[uint32]},
		{name: "uint64 offsets", run: pvHeaderRoundTrip[uint64]},
	}

	for _, tt := range tests {
		t.Run(tt.name, tt.run)
	}
}

func pvHeaderRoundTrip[O offtype.Type](t *testing.T) {
	d := newTestDevice(t, 128)
	c := New[O](d)

	want := layout.PVHeader[O]{
		Version:             layout.MaxSupportedVersion,
		PVSize:              4096,
		ClusterSize:         layout.DefaultClusterSize,
		Priority:            7,
		InvertedIndexOffset: 2048,
		FreelistBinsCount:   layout.BinCount,
	}

	require.NoError(t, c.WritePVHeader(0, want))
	got, err := c.ReadPVHeader(0)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestPVHeaderRejectsBadSignature(t *testing.T) {
	d := newTestDevice(t, 64)
	c := New[uint32](d)
	_, err := c.ReadPVHeader(0)
	assert.Error(t, err)
}

func TestFreelistHeaderRoundTrip(t *testing.T) {
	d := newTestDevice(t, 256)
	c := New[uint64](d)

	var want layout.FreelistHeader[uint64]
	for i := range want.Bins {
		want.Bins[i] = offtype.NonExist[uint64]()
	}
	want.Bins[3] = 512

	require.NoError(t, c.WriteFreelistHeader(0, want))
	got, err := c.ReadFreelistHeader(0)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSimple4RoundTrip(t *testing.T) {
	d := newTestDevice(t, 64)
	c := New[uint32](d)

	var h layout.Simple4Header[uint32]
	h.State = layout.PVState{ValueType: layout.Uint32, ValueState: layout.Empty}
	h.ExpiredTimeHigh = 7
	h.SetExpiredTimeLow(123456)
	h.SetValue(0xdeadbeef)

	require.NoError(t, c.WriteSimple4(0, h))
	got, err := c.ReadSimple4(0)
	require.NoError(t, err)

	assert.Equal(t, h.State, got.State)
	assert.Equal(t, h.ExpiredTimeHigh, got.ExpiredTimeHigh)
	assert.Equal(t, h.ExpiredTimeLow(), got.ExpiredTimeLow())
	assert.Equal(t, h.Value(), got.Value())
}

func TestSimple4FreePointerOverlay(t *testing.T) {
	d := newTestDevice(t, 64)
	c := New[uint32](d)

	var h layout.Simple4Header[uint32]
	h.State = layout.PVState{ValueType: layout.Empty4Simple}
	h.SetNextFreeEntryOffset(0x1234)

	require.NoError(t, c.WriteSimple4(0, h))
	got, err := c.ReadSimple4(0)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x1234), got.NextFreeEntryOffset())
}

func TestSimple8RoundTrip(t *testing.T) {
	d := newTestDevice(t, 64)
	c := New[uint64](d)

	var h layout.Simple8Header[uint64]
	h.State = layout.PVState{ValueType: layout.Double}
	h.ExpiredTimeHigh = 99
	h.SetExpiredTimeLow(42)
	h.SetValue(0x0123456789abcdef)

	require.NoError(t, c.WriteSimple8(0, h))
	got, err := c.ReadSimple8(0)
	require.NoError(t, err)

	assert.Equal(t, h.State, got.State)
	assert.Equal(t, h.Value(), got.Value())
}

func TestComplexSingleChunkRoundTrip(t *testing.T) {
	d := newTestDevice(t, 256)
	c := New[uint32](d)

	payload := []byte("hello, complex entry")
	h := layout.ComplexHeader[uint32]{
		State:           layout.PVState{ValueType: layout.String, ValueState: layout.ComplexBegin},
		OverallSize:     uint32(len(payload)),
		ChunkSize:       uint32(len(payload)),
		SequelOffset:    offtype.NonExist[uint32](),
	}

	require.NoError(t, c.WriteComplexChunk(0, h, payload))

	got, err := c.ReadComplex(0)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestComplexMultiChunkRoundTrip(t *testing.T) {
	d := newTestDevice(t, 256)
	c := New[uint32](d)

	chunk1 := []byte("first-chunk-bytes")
	chunk2 := []byte("second-and-final-chunk")

	secondOffset := uint32(128)
	h1 := layout.ComplexHeader[uint32]{
		State:        layout.PVState{ValueType: layout.Blob, ValueState: layout.ComplexBegin},
		OverallSize:  uint32(len(chunk1) + len(chunk2)),
		ChunkSize:    uint32(len(chunk1)),
		SequelOffset: secondOffset,
	}
	h2 := layout.ComplexHeader[uint32]{
		State:        layout.PVState{ValueType: layout.Blob, ValueState: layout.ComplexSequel},
		OverallSize:  uint32(len(chunk1) + len(chunk2)),
		ChunkSize:    uint32(len(chunk2)),
		SequelOffset: offtype.NonExist[uint32](),
	}

	require.NoError(t, c.WriteComplexChunk(0, h1, chunk1))
	require.NoError(t, c.WriteComplexChunk(secondOffset, h2, chunk2))

	got, err := c.ReadComplex(0)
	require.NoError(t, err)
	assert.Equal(t, append(append([]byte{}, chunk1...), chunk2...), got)
}

func TestComplexFreePointerOverlay(t *testing.T) {
	d := newTestDevice(t, 128)
	c := New[uint32](d)

	h := layout.ComplexHeader[uint32]{
		State:               layout.PVState{ValueType: layout.EmptyComplex},
		NextFreeEntryOffset: 96,
	}
	require.NoError(t, c.WriteComplexFree(0, h))

	got, err := c.ReadComplexFreePointer(0)
	require.NoError(t, err)
	assert.Equal(t, uint32(96), got)
}

func TestReadPVState(t *testing.T) {
	d := newTestDevice(t, 64)
	c := New[uint32](d)

	h := layout.Simple4Header[uint32]{State: layout.PVState{ValueType: layout.Int32, ValueState: layout.Expired}}
	require.NoError(t, c.WriteSimple4(0, h))

	st, err := c.ReadPVState(0)
	require.NoError(t, err)
	assert.Equal(t, layout.Int32, st.ValueType)
	assert.Equal(t, layout.Expired, st.ValueState)
}
