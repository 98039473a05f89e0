// Package device implements the narrow block-I/O abstraction a physical
// volume is built on. YAS's own packages only ever see the Device
// interface; MemDevice and FileDevice are the two concrete backends
// this module ships: an in-memory test/ephemeral device and an
// *os.File-backed one.
package device

import (
	"github.com/michailvoronov/yet-another-storage/errs"
)

// Device is a byte-addressable, growable store. Read past end is an
// error; write at offset == Size extends the device; write at offset >
// Size is an error; write at offset < Size overwrites in place.
type Device interface {
	ReadAt(offset uint64, buf []byte) error
	WriteAt(offset uint64, data []byte) (int, error)
	Size() uint64
	Close() error
}

// errorf wraps a cause with a device-layer error Kind, a small shared
// helper so MemDevice and FileDevice report failures identically.
func errorf(kind errs.Kind, op string, err error) error {
	return errs.Wrap(kind, op, err)
}
