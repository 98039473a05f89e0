// Package fsck offline-verifies a physical volume's structural
// integrity: that its live and free entries tile the device exactly
// (no overlaps, no gaps) and that every inverted-index leaf points at the
// start of a live entry (a live chunk of any position in its chain
// counts). It uses a bitset for byte-granularity
// overlap detection, since entries here can start at any offset rather
// than only at allocator-chosen block boundaries.
package fsck

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"

	"github.com/michailvoronov/yet-another-storage/internal/codec"
	"github.com/michailvoronov/yet-another-storage/internal/device"
	"github.com/michailvoronov/yet-another-storage/internal/layout"
	"github.com/michailvoronov/yet-another-storage/internal/offtype"
	"github.com/michailvoronov/yet-another-storage/internal/trie"
)

// Report summarizes a Verify pass.
type Report struct {
	Errors          []string
	LiveEntryCount  int
	FreeEntryCount  int
	LiveEntryBytes  uint64
	FreeEntryBytes  uint64
	LiveEntryStarts map[uint64]bool
}

// OK reports whether Verify found no structural problems.
func (r *Report) OK() bool { return len(r.Errors) == 0 }

// Verify walks dev's entry storage from the end of the header area to
// the PV's recorded size, covering a bitset one bit per byte as it
// accounts for each entry. Any overlap (two entries claiming the same
// byte) or gap (bytes claimed by neither) is recorded as an error
// rather than returned immediately, so a single pass surfaces every
// problem at once.
func Verify[O offtype.Type](dev device.Device) (*Report, error) {
	c := codec.New[O](dev)

	h, err := c.ReadPVHeader(0)
	if err != nil {
		return nil, err
	}

	start := uint64(layout.PVHeaderSize[O]() + layout.FreelistHeaderSize[O]())
	end := uint64(h.PVSize)

	report := &Report{LiveEntryStarts: make(map[uint64]bool)}
	if end < start {
		report.Errors = append(report.Errors, fmt.Sprintf("pv_size %d is smaller than the reserved header area %d", end, start))
		return report, nil
	}

	covered := bitset.New(uint(end))
	offset := O(start)

	for uint64(offset) < end {
		st, err := c.ReadPVState(offset)
		if err != nil {
			return nil, err
		}

		size, isLive, err := entrySize(c, offset, st)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("offset %d: %v", uint64(offset), err))
			break
		}
		if size == 0 {
			report.Errors = append(report.Errors, fmt.Sprintf("offset %d: zero-size entry, aborting walk", uint64(offset)))
			break
		}

		markRange(covered, uint64(offset), size, report, uint64(offset))

		if isLive {
			report.LiveEntryCount++
			report.LiveEntryBytes += size
			report.LiveEntryStarts[uint64(offset)] = true
		} else {
			report.FreeEntryCount++
			report.FreeEntryBytes += size
		}

		offset += O(size)
	}

	if uint64(offset) != end {
		report.Errors = append(report.Errors, fmt.Sprintf("entries end at %d, expected exactly pv_size %d", uint64(offset), end))
	}

	for i := uint(start); i < uint(end); i++ {
		if !covered.Test(i) {
			report.Errors = append(report.Errors, fmt.Sprintf("byte %d is not covered by any entry", i))
			break // one gap usually implies a contiguous run; avoid flooding the report
		}
	}

	return report, nil
}

func markRange(covered *bitset.BitSet, offset, size uint64, report *Report, entryStart uint64) {
	for i := offset; i < offset+size; i++ {
		if covered.Test(uint(i)) {
			report.Errors = append(report.Errors, fmt.Sprintf("byte %d claimed by entry at %d overlaps an earlier entry", i, entryStart))
			continue
		}
		covered.Set(uint(i))
	}
}

func entrySize[O offtype.Type](c *codec.Codec[O], offset O, st layout.PVState) (uint64, bool, error) {
	switch st.ValueType {
	case layout.Int8, layout.Uint8, layout.Int16, layout.Uint16, layout.Int32, layout.Uint32, layout.Float:
		return uint64(layout.Simple4HeaderSize), true, nil
	case layout.Empty4Simple:
		return uint64(layout.Simple4HeaderSize), false, nil
	case layout.Int64, layout.Uint64, layout.Double:
		return uint64(layout.Simple8HeaderSize), true, nil
	case layout.Empty8Simple:
		return uint64(layout.Simple8HeaderSize), false, nil
	case layout.String, layout.Blob, layout.InvertedIndex:
		h, err := c.ReadComplexHeader(offset)
		if err != nil {
			return 0, false, err
		}
		return uint64(layout.ComplexFixedSize[O]()) + uint64(h.ChunkSize), true, nil
	case layout.EmptyComplex:
		h, err := c.ReadComplexHeader(offset)
		if err != nil {
			return 0, false, err
		}
		return uint64(h.OverallSize), false, nil
	default:
		return 0, false, fmt.Errorf("unknown value_type %d", st.ValueType)
	}
}

// VerifyIndex cross-checks that every leaf in idx points at an offset
// Verify's walk recognized as the start of a live entry.
func VerifyIndex[O offtype.Type](report *Report, idx *trie.Index[O]) []string {
	var problems []string
	idx.Walk(func(key []byte, leaf O) {
		if !report.LiveEntryStarts[uint64(leaf)] {
			problems = append(problems, fmt.Sprintf("key %q points at offset %d, which is not a live entry start", key, uint64(leaf)))
		}
	})
	return problems
}
