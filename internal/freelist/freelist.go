// Package freelist implements a segregated freelist: BinCount
// geometrically-sized bins, each a LIFO stack of free entries threaded
// through the same NextFreeEntryOffset field a live entry would use for
// a freelist pointer. Bin 0..9 cover [2^(i+3), 2^(i+4)) bytes; bin 10
// is unbounded (>= 2^13 bytes).
package freelist

import (
	"github.com/michailvoronov/yet-another-storage/errs"
	"github.com/michailvoronov/yet-another-storage/internal/codec"
	"github.com/michailvoronov/yet-another-storage/internal/layout"
	"github.com/michailvoronov/yet-another-storage/internal/offtype"
)

// unboundedBin is the last bin, holding every entry too large for the
// geometric schedule below.
const unboundedBin = layout.BinCount - 1

// BinIndex returns the bin an entry of the given capacity belongs in.
// Capacities below bin 0's lower bound also go to bin 0.
func BinIndex(size uint64) int {
	if size < uint64(1)<<3 {
		return 0
	}
	for i := 0; i < unboundedBin; i++ {
		lo := uint64(1) << uint(i+3)
		hi := uint64(1) << uint(i+4)
		if size >= lo && size < hi {
			return i
		}
	}
	return unboundedBin
}

// BinMinSize returns the lower bound of bin's size class, 2^(bin+3)
// bytes (yasdump prints it as each bin's label).
func BinMinSize(bin int) uint64 {
	if bin == unboundedBin {
		return uint64(1) << uint(unboundedBin+3)
	}
	return uint64(1) << uint(bin+3)
}

// Manager pops and pushes free entries from/to the bins of a
// FreelistHeader, reading and rewriting whichever header kind
// (Empty4Simple/Empty8Simple/EmptyComplex) tags the entry at a given
// offset.
type Manager[O offtype.Type] struct {
	codec *codec.Codec[O]
}

// New returns a Manager operating through c.
func New[O offtype.Type](c *codec.Codec[O]) *Manager[O] {
	return &Manager[O]{codec: c}
}

// Pop removes and returns the head of bin, updating bins in place.
// It returns offtype.NonExist[O]() if the bin is empty.
func (m *Manager[O]) Pop(bins *layout.FreelistHeader[O], bin int) (O, error) {
	head := bins.Bins[bin]
	if !offtype.Exists(head) {
		return offtype.NonExist[O](), nil
	}

	next, err := m.nextFree(head)
	if err != nil {
		return offtype.NonExist[O](), err
	}
	bins.Bins[bin] = next
	return head, nil
}

// Push threads offset onto the front of bin as the new head, tagging it
// with entryType (one of the three Empty* kinds) and pointing its
// free-list field at the bin's previous head. capacity is the entry's
// total usable size in bytes; it is only meaningful (and stored, as
// ComplexHeader.OverallSize) for EmptyComplex entries, whose capacity
// varies entry to entry — Simple4/Simple8 free entries are always their
// fixed header size and ignore it.
func (m *Manager[O]) Push(bins *layout.FreelistHeader[O], bin int, offset O, entryType layout.PVType, capacity uint64) error {
	prevHead := bins.Bins[bin]

	switch entryType {
	case layout.Empty4Simple:
		var h layout.Simple4Header[O]
		h.State = layout.PVState{ValueType: layout.Empty4Simple}
		h.SetNextFreeEntryOffset(prevHead)
		if err := m.codec.WriteSimple4(offset, h); err != nil {
			return err
		}
	case layout.Empty8Simple:
		var h layout.Simple8Header[O]
		h.State = layout.PVState{ValueType: layout.Empty8Simple}
		h.SetNextFreeEntryOffset(prevHead)
		if err := m.codec.WriteSimple8(offset, h); err != nil {
			return err
		}
	case layout.EmptyComplex:
		h := layout.ComplexHeader[O]{
			State:               layout.PVState{ValueType: layout.EmptyComplex},
			OverallSize:         O(capacity),
			NextFreeEntryOffset: prevHead,
		}
		if err := m.codec.WriteComplexFree(offset, h); err != nil {
			return err
		}
	default:
		return errs.New(errs.IncorrectStorageValue, "freelist.Manager.Push")
	}

	bins.Bins[bin] = offset
	return nil
}

func (m *Manager[O]) nextFree(offset O) (O, error) {
	st, err := m.codec.ReadPVState(offset)
	if err != nil {
		return offtype.NonExist[O](), err
	}

	switch st.ValueType {
	case layout.Empty4Simple:
		h, err := m.codec.ReadSimple4(offset)
		if err != nil {
			return offtype.NonExist[O](), err
		}
		return h.NextFreeEntryOffset(), nil
	case layout.Empty8Simple:
		h, err := m.codec.ReadSimple8(offset)
		if err != nil {
			return offtype.NonExist[O](), err
		}
		return h.NextFreeEntryOffset(), nil
	case layout.EmptyComplex:
		return m.codec.ReadComplexFreePointer(offset)
	default:
		return offtype.NonExist[O](), errs.New(errs.CorruptedHeader, "freelist.Manager.nextFree")
	}
}
