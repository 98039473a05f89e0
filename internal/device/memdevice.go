package device

import (
	"fmt"

	"github.com/michailvoronov/yet-another-storage/errs"
)

// MemDevice is a Device backed by a growable in-memory byte slice. It is
// the Go counterpart of the original engine's TestDevice<OffsetType>:
// used by this module's own tests, and available to callers who want a
// disk-free PV (ephemeral caches, unit tests of code layered on YAS).
//
// MemDevice is not safe for concurrent use; callers serialize access the
// same way the rest of YAS does.
type MemDevice struct {
	storage []byte
	closed  bool
}

// NewMemDevice returns an empty MemDevice.
func NewMemDevice() *MemDevice {
	return &MemDevice{storage: make([]byte, 0, 64*1024)}
}

func (d *MemDevice) ReadAt(offset uint64, buf []byte) error {
	if d.closed {
		return errorf(errs.DeviceGeneral, "MemDevice.ReadAt", fmt.Errorf("device closed"))
	}
	end := offset + uint64(len(buf))
	if end > uint64(len(d.storage)) {
		return errorf(errs.DeviceRead, "MemDevice.ReadAt",
			fmt.Errorf("read [%d,%d) past end %d", offset, end, len(d.storage)))
	}
	copy(buf, d.storage[offset:end])
	return nil
}

func (d *MemDevice) WriteAt(offset uint64, data []byte) (int, error) {
	if d.closed {
		return 0, errorf(errs.DeviceGeneral, "MemDevice.WriteAt", fmt.Errorf("device closed"))
	}
	size := uint64(len(d.storage))
	if offset > size {
		return 0, errorf(errs.DeviceWrite, "MemDevice.WriteAt",
			fmt.Errorf("write at %d past end %d", offset, size))
	}

	end := offset + uint64(len(data))
	if end > size {
		grown := make([]byte, end)
		copy(grown, d.storage)
		d.storage = grown
	}
	copy(d.storage[offset:end], data)
	return len(data), nil
}

func (d *MemDevice) Size() uint64 { return uint64(len(d.storage)) }

func (d *MemDevice) Close() error {
	d.closed = true
	return nil
}

// Bytes returns a copy of the device's full backing content, intended
// for tests. It works on a closed device too.
func (d *MemDevice) Bytes() []byte {
	out := make([]byte, len(d.storage))
	copy(out, d.storage)
	return out
}

// LoadBytes replaces the device's content wholesale — used by tests
// that want to simulate a pre-existing file (e.g. a corrupted PV).
func (d *MemDevice) LoadBytes(b []byte) {
	d.storage = append(d.storage[:0], b...)
}
