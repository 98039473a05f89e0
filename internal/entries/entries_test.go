package entries

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michailvoronov/yet-another-storage/errs"
	"github.com/michailvoronov/yet-another-storage/internal/device"
	"github.com/michailvoronov/yet-another-storage/internal/offtype"
)

func newBootedManager(t *testing.T, clusterSize int32) *Manager[uint32] {
	t.Helper()
	d := device.NewMemDevice()
	m := New[uint32](d, clusterSize, 3)
	require.NoError(t, m.BootCreate(0))
	return m
}

func TestScalarRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		value any
	}{
		{name: "int8", value: int8(-12)},
		{name: "uint8", value: uint8(200)},
		{name: "int16", value: int16(-3000)},
		{name: "uint16", value: uint16(40000)},
		{name: "int32", value: int32(-70000)},
		{name: "uint32", value: uint32(0xdeadbeef)},
		{name: "float32", value: float32(3.25)},
		{name: "int64", value: int64(-1 << 40)},
		{name: "uint64", value: uint64(1 << 62)},
		{name: "float64", value: float64(2.71828)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newBootedManager(t, 4096)

			offset, err := m.CreateEntryValue(tt.value)
			require.NoError(t, err)

			got, err := m.GetEntryContent(offset)
			require.NoError(t, err)
			assert.Equal(t, tt.value, got)
		})
	}
}

func TestFloatRoundTripPreservesNaNBitPattern(t *testing.T) {
	m := newBootedManager(t, 4096)

	offset32, err := m.CreateEntryValue(float32(math.NaN()))
	require.NoError(t, err)
	got32, err := m.GetEntryContent(offset32)
	require.NoError(t, err)
	assert.Equal(t, math.Float32bits(float32(math.NaN())), math.Float32bits(got32.(float32)))

	offset64, err := m.CreateEntryValue(math.NaN())
	require.NoError(t, err)
	got64, err := m.GetEntryContent(offset64)
	require.NoError(t, err)
	assert.Equal(t, math.Float64bits(math.NaN()), math.Float64bits(got64.(float64)))
}

func TestStringRoundTrip(t *testing.T) {
	m := newBootedManager(t, 4096)

	offset, err := m.CreateEntryValue("hello, yas")
	require.NoError(t, err)

	got, err := m.GetEntryContent(offset)
	require.NoError(t, err)
	assert.Equal(t, "hello, yas", got)
}

func TestBlobRoundTrip(t *testing.T) {
	m := newBootedManager(t, 4096)

	want := []byte{0x01, 0x02, 0x03, 0x04, 0xff}
	offset, err := m.CreateEntryValue(want)
	require.NoError(t, err)

	got, err := m.GetEntryContent(offset)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestComplexValueSpansMultipleClusters(t *testing.T) {
	// A tiny cluster size forces writeComplex to chain several chunks
	// together, exercising the SequelOffset linking path.
	m := newBootedManager(t, 64)

	want := strings.Repeat("0123456789abcdef", 32) // 512 bytes
	offset, err := m.CreateEntryValue(want)
	require.NoError(t, err)

	got, err := m.GetEntryContent(offset)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDeleteEntryReclaimsSpace(t *testing.T) {
	m := newBootedManager(t, 4096)

	offset, err := m.CreateEntryValue(int32(99))
	require.NoError(t, err)
	require.NoError(t, m.DeleteEntry(offset))

	// A same-size allocation should reuse the just-freed offset (LIFO).
	next, err := m.CreateEntryValue(int32(100))
	require.NoError(t, err)
	assert.Equal(t, offset, next)
}

func TestDeleteComplexChainReclaimsAllChunks(t *testing.T) {
	m := newBootedManager(t, 64)

	want := strings.Repeat("x", 400)
	offset, err := m.CreateEntryValue(want)
	require.NoError(t, err)
	require.NoError(t, m.DeleteEntry(offset))

	endBefore := m.alloc.DeviceEnd()
	// Re-creating a value of similar size should not need to grow the
	// device further, since the whole chain was reclaimed.
	_, err = m.CreateEntryValue(strings.Repeat("y", 400))
	require.NoError(t, err)
	assert.LessOrEqual(t, uint32(m.alloc.DeviceEnd()), uint32(endBefore)+64)
}

func TestExpiredDateRoundTrip(t *testing.T) {
	m := newBootedManager(t, 4096)

	offset, err := m.CreateEntryValue(uint64(7))
	require.NoError(t, err)

	_, _, expires, err := m.GetEntryExpiredDate(offset)
	require.NoError(t, err)
	assert.False(t, expires)

	require.NoError(t, m.SetEntryExpiredDate(offset, 1234, 5))
	low, high, expires, err := m.GetEntryExpiredDate(offset)
	require.NoError(t, err)
	assert.True(t, expires)
	assert.Equal(t, uint32(1234), low)
	assert.Equal(t, uint32(5), high)

	got, err := m.GetEntryContent(offset)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), got)
}

func TestBootLoadRoundTrip(t *testing.T) {
	d := device.NewMemDevice()
	m := New[uint32](d, 4096, 5)
	require.NoError(t, m.BootCreate(0))

	offset, err := m.CreateEntryValue("persisted")
	require.NoError(t, err)
	require.NoError(t, m.Flush(offset))

	reopened := New[uint32](d, 4096, 0)
	indexOffset, err := reopened.BootLoad()
	require.NoError(t, err)
	assert.Equal(t, offset, indexOffset)
	assert.Equal(t, int32(5), reopened.Priority())

	got, err := reopened.GetEntryContent(offset)
	require.NoError(t, err)
	assert.Equal(t, "persisted", got)
}

func TestBootLoadRejectsSentinelIndexOffset(t *testing.T) {
	d := device.NewMemDevice()
	m := New[uint32](d, 4096, 0)
	require.NoError(t, m.BootCreate(offtype.NonExist[uint32]()))

	reopened := New[uint32](d, 4096, 0)
	_, err := reopened.BootLoad()
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.InvalidPVSignature))
}

func TestIndexEntryRoundTrip(t *testing.T) {
	m := newBootedManager(t, 4096)

	data := []byte{0xAA, 0xBB, 0xCC}
	offset, err := m.CreateIndexEntry(data)
	require.NoError(t, err)

	got, err := m.ReadIndexEntry(offset)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}
