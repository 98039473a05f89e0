package device

import (
	"fmt"
	"os"

	"github.com/michailvoronov/yet-another-storage/errs"
)

// FileDevice is a Device backed by an *os.File: it tracks a logical
// end-of-file cursor itself rather than re-stat-ing the file on every
// call, and distinguishes an "extend" write (offset == end) from an
// "overwrite" write (offset < end) per the Device contract.
type FileDevice struct {
	file *os.File
	end  uint64
}

// OpenFileDevice opens an existing file for read/write use as a Device.
func OpenFileDevice(path string) (*FileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, errorf(errs.DeviceGeneral, "OpenFileDevice", err)
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, errorf(errs.DeviceGeneral, "OpenFileDevice", err)
	}
	return &FileDevice{file: f, end: uint64(fi.Size())}, nil
}

// CreateFileDevice creates a new, empty file (truncating it if it
// already exists) and returns it as a Device.
func CreateFileDevice(path string) (*FileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, errorf(errs.DeviceGeneral, "CreateFileDevice", err)
	}
	return &FileDevice{file: f, end: 0}, nil
}

func (d *FileDevice) ReadAt(offset uint64, buf []byte) error {
	end := offset + uint64(len(buf))
	if end > d.end {
		return errorf(errs.DeviceRead, "FileDevice.ReadAt",
			fmt.Errorf("read [%d,%d) past end %d", offset, end, d.end))
	}
	n, err := d.file.ReadAt(buf, int64(offset))
	if err != nil && n < len(buf) {
		return errorf(errs.DeviceRead, "FileDevice.ReadAt", err)
	}
	return nil
}

func (d *FileDevice) WriteAt(offset uint64, data []byte) (int, error) {
	if offset > d.end {
		return 0, errorf(errs.DeviceWrite, "FileDevice.WriteAt",
			fmt.Errorf("write at %d past end %d", offset, d.end))
	}

	n, err := d.file.WriteAt(data, int64(offset))
	if err != nil {
		return n, errorf(errs.DeviceWrite, "FileDevice.WriteAt", err)
	}

	if newEnd := offset + uint64(n); newEnd > d.end {
		d.end = newEnd
	}
	return n, nil
}

func (d *FileDevice) Size() uint64 { return d.end }

// Sync flushes pending writes to stable storage.
func (d *FileDevice) Sync() error {
	return errorf(errs.DeviceGeneral, "FileDevice.Sync", d.file.Sync())
}

func (d *FileDevice) Close() error {
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	return err
}
