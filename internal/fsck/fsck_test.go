package fsck

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michailvoronov/yet-another-storage/internal/codec"
	"github.com/michailvoronov/yet-another-storage/internal/device"
	"github.com/michailvoronov/yet-another-storage/internal/entries"
	"github.com/michailvoronov/yet-another-storage/internal/trie"
)

func TestVerifyFreshlyBootedPVHasNoErrors(t *testing.T) {
	d := device.NewMemDevice()
	m := entries.New[uint32](d, 4096, 3)
	require.NoError(t, m.BootCreate(0))

	report, err := Verify[uint32](d)
	require.NoError(t, err)
	assert.True(t, report.OK(), report.Errors)
	assert.Zero(t, report.FreeEntryCount, "a fresh PV holds no entries until its first allocation")
	assert.Zero(t, report.LiveEntryCount)
}

func TestVerifyAccountsForLiveAndFreeEntries(t *testing.T) {
	d := device.NewMemDevice()
	m := entries.New[uint32](d, 4096, 3)
	require.NoError(t, m.BootCreate(0))

	_, err := m.CreateEntryValue(int32(42))
	require.NoError(t, err)
	strOff, err := m.CreateEntryValue("hello, yas")
	require.NoError(t, err)
	require.NoError(t, m.DeleteEntry(strOff))
	require.NoError(t, m.Flush(0))

	report, err := Verify[uint32](d)
	require.NoError(t, err)
	assert.True(t, report.OK(), report.Errors)
	assert.Equal(t, 1, report.LiveEntryCount)
	assert.GreaterOrEqual(t, report.FreeEntryCount, 1)
}

func TestVerifyDetectsTruncatedPVSize(t *testing.T) {
	d := device.NewMemDevice()
	m := entries.New[uint32](d, 4096, 3)
	require.NoError(t, m.BootCreate(0))

	_, err := m.CreateEntryValue(int32(7))
	require.NoError(t, err)
	require.NoError(t, m.Flush(0))

	report, err := Verify[uint32](d)
	require.NoError(t, err)
	require.True(t, report.OK())

	// Corrupt the PV by shrinking its recorded size mid-entry, forcing
	// the walk to stop short of a clean tiling boundary.
	c := codec.New[uint32](d)
	h, err := c.ReadPVHeader(0)
	require.NoError(t, err)
	h.PVSize -= 3
	require.NoError(t, c.WritePVHeader(0, h))

	report, err = Verify[uint32](d)
	require.NoError(t, err)
	assert.False(t, report.OK())
}

func TestVerifyIndexFlagsDanglingLeaf(t *testing.T) {
	d := device.NewMemDevice()
	m := entries.New[uint32](d, 4096, 3)
	require.NoError(t, m.BootCreate(0))

	offset, err := m.CreateEntryValue("live value")
	require.NoError(t, err)

	idx := trie.New[uint32]()
	require.True(t, idx.Insert([]byte("present"), offset))
	require.True(t, idx.Insert([]byte("stale"), 999999))
	require.NoError(t, m.Flush(0))

	report, err := Verify[uint32](d)
	require.NoError(t, err)
	require.True(t, report.OK())

	problems := VerifyIndex[uint32](report, idx)
	require.Len(t, problems, 1)
	assert.Contains(t, problems[0], "stale")
}
