// Package allocator grows a physical volume by one cluster at a time,
// formatting each new cluster as a single free EmptyComplex entry
// (ground: PVEntriesManager::getFreeOffset / PVEntriesAllocator::ExpandPV
// in the original engine). Deciding which freelist bin that new entry
// lands in, and splitting it down, is internal/entries' job.
package allocator

import (
	"github.com/michailvoronov/yet-another-storage/errs"
	"github.com/michailvoronov/yet-another-storage/internal/codec"
	"github.com/michailvoronov/yet-another-storage/internal/layout"
	"github.com/michailvoronov/yet-another-storage/internal/offtype"
)

// Allocator tracks the device's logical end and extends it one cluster
// at a time.
type Allocator[O offtype.Type] struct {
	codec       *codec.Codec[O]
	clusterSize int32
	deviceEnd   O
}

// New returns an Allocator for the given cluster size, with deviceEnd
// initialized to the PV's current size (0 for a brand-new PV).
func New[O offtype.Type](c *codec.Codec[O], clusterSize int32, deviceEnd O) *Allocator[O] {
	return &Allocator[O]{codec: c, clusterSize: clusterSize, deviceEnd: deviceEnd}
}

// DeviceEnd returns the current logical end of the device.
func (a *Allocator[O]) DeviceEnd() O { return a.deviceEnd }

// Expand appends one cluster to the device, formats it as a single free
// EmptyComplex entry spanning the whole cluster, and returns its offset.
func (a *Allocator[O]) Expand() (O, error) {
	offset := a.deviceEnd
	size := uint64(a.clusterSize)
	if size <= uint64(layout.ComplexHeaderSize[O]()) {
		return offtype.NonExist[O](), errs.New(errs.MemoryNotEnough, "allocator.Allocator.Expand")
	}

	blank := make([]byte, size)
	if _, err := a.codec.RawWrite(offset, blank); err != nil {
		return offtype.NonExist[O](), errs.Wrap(errs.DeviceExpand, "allocator.Allocator.Expand", err)
	}

	h := layout.ComplexHeader[O]{
		State:               layout.PVState{ValueType: layout.EmptyComplex},
		OverallSize:         O(size),
		NextFreeEntryOffset: offtype.NonExist[O](),
	}
	if err := a.codec.WriteComplexFree(offset, h); err != nil {
		return offtype.NonExist[O](), err
	}

	a.deviceEnd = offset + O(size)
	return offset, nil
}
