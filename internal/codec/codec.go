// Package codec implements typed read/write of the fixed-layout PV
// records on top of a Device, including the chunked read/write used
// for Complex (String/Blob/InvertedIndex) values. Codec knows byte
// layout; it never decides allocation policy — that's
// internal/allocator and internal/entries.
package codec

import (
	"github.com/michailvoronov/yet-another-storage/errs"
	"github.com/michailvoronov/yet-another-storage/internal/device"
	"github.com/michailvoronov/yet-another-storage/internal/layout"
	"github.com/michailvoronov/yet-another-storage/internal/offtype"
)

// Codec pairs a Device with the generic offset width O in use for this
// PV.
type Codec[O offtype.Type] struct {
	dev device.Device
}

// New wraps dev in a Codec for offset width O.
func New[O offtype.Type](dev device.Device) *Codec[O] {
	return &Codec[O]{dev: dev}
}

func (c *Codec[O]) read(offset O, buf []byte) error {
	return c.dev.ReadAt(uint64(offset), buf)
}

func (c *Codec[O]) write(offset O, buf []byte) error {
	_, err := c.dev.WriteAt(uint64(offset), buf)
	return err
}

// RawWrite exposes the underlying device write for callers that extend
// the device itself (internal/allocator growing the PV by a cluster),
// rather than marshaling one of the typed headers above.
func (c *Codec[O]) RawWrite(offset O, buf []byte) (int, error) {
	return c.dev.WriteAt(uint64(offset), buf)
}

// Size returns the device's current logical size.
func (c *Codec[O]) Size() uint64 {
	return c.dev.Size()
}

// ReadPVState reads just the 2-byte PVState prefix at offset, enough to
// discover an entry's runtime type before reading its full header.
func (c *Codec[O]) ReadPVState(offset O) (layout.PVState, error) {
	var buf [layout.PVStateSize]byte
	if err := c.read(offset, buf[:]); err != nil {
		return layout.PVState{}, errs.Wrap(errs.DeviceRead, "Codec.ReadPVState", err)
	}
	return layout.PVState{ValueType: layout.PVType(buf[0]), ValueState: layout.PVTypeState(buf[1])}, nil
}

func (c *Codec[O]) writePVState(buf []byte, s layout.PVState) {
	buf[0] = byte(s.ValueType)
	buf[1] = byte(s.ValueState)
}

// ReadPVHeader reads and validates the PV header's signature at offset.
// It does not itself reject unsupported versions — that's a boot_load
// policy decision left to internal/entries.
func (c *Codec[O]) ReadPVHeader(offset O) (layout.PVHeader[O], error) {
	size := layout.PVHeaderSize[O]()
	buf := make([]byte, size)
	if err := c.read(offset, buf); err != nil {
		return layout.PVHeader[O]{}, errs.Wrap(errs.DeviceRead, "Codec.ReadPVHeader", err)
	}

	var sig [6]byte
	copy(sig[:], buf[0:6])
	if sig != layout.Signature {
		return layout.PVHeader[O]{}, errs.New(errs.InvalidPVSignature, "Codec.ReadPVHeader")
	}

	oSize := offtype.Size[O]()
	cur := 6
	h := layout.PVHeader[O]{Version: layout.Version{Major: buf[cur], Minor: buf[cur+1]}}
	cur += 2
	h.PVSize = decodeO[O](buf[cur : cur+oSize])
	cur += oSize
	h.ClusterSize = int32(layout.Endian.Uint32(buf[cur : cur+4]))
	cur += 4
	h.Priority = int32(layout.Endian.Uint32(buf[cur : cur+4]))
	cur += 4
	h.InvertedIndexOffset = decodeO[O](buf[cur : cur+oSize])
	cur += oSize
	h.FreelistBinsCount = int32(layout.Endian.Uint32(buf[cur : cur+4]))

	return h, nil
}

// WritePVHeader marshals h to offset, stamping the fixed signature.
func (c *Codec[O]) WritePVHeader(offset O, h layout.PVHeader[O]) error {
	oSize := offtype.Size[O]()
	buf := make([]byte, layout.PVHeaderSize[O]())

	copy(buf[0:6], layout.Signature[:])
	cur := 6
	buf[cur] = h.Version.Major
	buf[cur+1] = h.Version.Minor
	cur += 2
	encodeO(buf[cur:cur+oSize], h.PVSize)
	cur += oSize
	layout.Endian.PutUint32(buf[cur:cur+4], uint32(h.ClusterSize))
	cur += 4
	layout.Endian.PutUint32(buf[cur:cur+4], uint32(h.Priority))
	cur += 4
	encodeO(buf[cur:cur+oSize], h.InvertedIndexOffset)
	cur += oSize
	layout.Endian.PutUint32(buf[cur:cur+4], uint32(h.FreelistBinsCount))

	if err := c.write(offset, buf); err != nil {
		return errs.Wrap(errs.DeviceWrite, "Codec.WritePVHeader", err)
	}
	return nil
}

// ReadFreelistHeader reads the BinCount-entry bin-head array.
func (c *Codec[O]) ReadFreelistHeader(offset O) (layout.FreelistHeader[O], error) {
	oSize := offtype.Size[O]()
	buf := make([]byte, layout.FreelistHeaderSize[O]())
	if err := c.read(offset, buf); err != nil {
		return layout.FreelistHeader[O]{}, errs.Wrap(errs.DeviceRead, "Codec.ReadFreelistHeader", err)
	}

	var fh layout.FreelistHeader[O]
	for i := 0; i < layout.BinCount; i++ {
		fh.Bins[i] = decodeO[O](buf[i*oSize : (i+1)*oSize])
	}
	return fh, nil
}

// WriteFreelistHeader marshals fh to offset.
func (c *Codec[O]) WriteFreelistHeader(offset O, fh layout.FreelistHeader[O]) error {
	oSize := offtype.Size[O]()
	buf := make([]byte, layout.FreelistHeaderSize[O]())
	for i := 0; i < layout.BinCount; i++ {
		encodeO(buf[i*oSize:(i+1)*oSize], fh.Bins[i])
	}
	if err := c.write(offset, buf); err != nil {
		return errs.Wrap(errs.DeviceWrite, "Codec.WriteFreelistHeader", err)
	}
	return nil
}

// ReadSimple4 reads a Simple4Header at offset.
func (c *Codec[O]) ReadSimple4(offset O) (layout.Simple4Header[O], error) {
	var h layout.Simple4Header[O]
	buf := make([]byte, layout.Simple4HeaderSize)
	if err := c.read(offset, buf); err != nil {
		return h, errs.Wrap(errs.DeviceRead, "Codec.ReadSimple4", err)
	}
	h.State = layout.PVState{ValueType: layout.PVType(buf[0]), ValueState: layout.PVTypeState(buf[1])}
	h.ExpiredTimeHigh = layout.Endian.Uint16(buf[2:4])
	copy(h.RawBytes(), buf[4:12])
	return h, nil
}

// WriteSimple4 marshals h to offset.
func (c *Codec[O]) WriteSimple4(offset O, h layout.Simple4Header[O]) error {
	buf := make([]byte, layout.Simple4HeaderSize)
	c.writePVState(buf, h.State)
	layout.Endian.PutUint16(buf[2:4], h.ExpiredTimeHigh)
	copy(buf[4:12], h.RawBytes())
	if err := c.write(offset, buf); err != nil {
		return errs.Wrap(errs.DeviceWrite, "Codec.WriteSimple4", err)
	}
	return nil
}

// ReadSimple8 reads a Simple8Header at offset.
func (c *Codec[O]) ReadSimple8(offset O) (layout.Simple8Header[O], error) {
	var h layout.Simple8Header[O]
	buf := make([]byte, layout.Simple8HeaderSize)
	if err := c.read(offset, buf); err != nil {
		return h, errs.Wrap(errs.DeviceRead, "Codec.ReadSimple8", err)
	}
	h.State = layout.PVState{ValueType: layout.PVType(buf[0]), ValueState: layout.PVTypeState(buf[1])}
	h.ExpiredTimeHigh = layout.Endian.Uint16(buf[2:4])
	copy(h.RawBytes(), buf[4:16])
	return h, nil
}

// WriteSimple8 marshals h to offset.
func (c *Codec[O]) WriteSimple8(offset O, h layout.Simple8Header[O]) error {
	buf := make([]byte, layout.Simple8HeaderSize)
	c.writePVState(buf, h.State)
	layout.Endian.PutUint16(buf[2:4], h.ExpiredTimeHigh)
	copy(buf[4:16], h.RawBytes())
	if err := c.write(offset, buf); err != nil {
		return errs.Wrap(errs.DeviceWrite, "Codec.WriteSimple8", err)
	}
	return nil
}

// ReadComplexHeader reads only the fixed part of a ComplexHeader
// (everything up to, but not including, the payload/next-free-pointer
// overlay region). Callers that need the free-list pointer call
// ReadComplexFreePointer; callers that need the payload call
// ReadComplexPayload.
func (c *Codec[O]) ReadComplexHeader(offset O) (layout.ComplexHeader[O], error) {
	oSize := offtype.Size[O]()
	fixed := layout.ComplexFixedSize[O]()
	buf := make([]byte, fixed)
	if err := c.read(offset, buf); err != nil {
		return layout.ComplexHeader[O]{}, errs.Wrap(errs.DeviceRead, "Codec.ReadComplexHeader", err)
	}

	var h layout.ComplexHeader[O]
	h.State = layout.PVState{ValueType: layout.PVType(buf[0]), ValueState: layout.PVTypeState(buf[1])}
	h.ExpiredTimeHigh = layout.Endian.Uint16(buf[2:4])
	h.ExpiredTimeLow = layout.Endian.Uint32(buf[4:8])
	cur := 8
	h.OverallSize = decodeO[O](buf[cur : cur+oSize])
	cur += oSize
	h.ChunkSize = decodeO[O](buf[cur : cur+oSize])
	cur += oSize
	h.SequelOffset = decodeO[O](buf[cur : cur+oSize])

	return h, nil
}

// ReadComplexFreePointer reads the NextFreeEntryOffset overlay of a
// free complex entry, which starts right after the fixed header.
func (c *Codec[O]) ReadComplexFreePointer(offset O) (O, error) {
	oSize := offtype.Size[O]()
	buf := make([]byte, oSize)
	if err := c.read(offset+O(layout.ComplexFixedSize[O]()), buf); err != nil {
		var zero O
		return zero, errs.Wrap(errs.DeviceRead, "Codec.ReadComplexFreePointer", err)
	}
	return decodeO[O](buf), nil
}

// WriteComplexFree writes a free ComplexHeader (fixed part plus the
// NextFreeEntryOffset pointer) to offset.
func (c *Codec[O]) WriteComplexFree(offset O, h layout.ComplexHeader[O]) error {
	oSize := offtype.Size[O]()
	fixed := layout.ComplexFixedSize[O]()
	buf := make([]byte, fixed+oSize)
	c.marshalComplexFixed(buf, h)
	encodeO(buf[fixed:fixed+oSize], h.NextFreeEntryOffset)
	if err := c.write(offset, buf); err != nil {
		return errs.Wrap(errs.DeviceWrite, "Codec.WriteComplexFree", err)
	}
	return nil
}

// WriteComplexChunk writes a live ComplexHeader together with its
// inline payload to offset.
func (c *Codec[O]) WriteComplexChunk(offset O, h layout.ComplexHeader[O], payload []byte) error {
	fixed := layout.ComplexFixedSize[O]()
	buf := make([]byte, fixed+len(payload))
	c.marshalComplexFixed(buf, h)
	copy(buf[fixed:], payload)
	if err := c.write(offset, buf); err != nil {
		return errs.Wrap(errs.DeviceWrite, "Codec.WriteComplexChunk", err)
	}
	return nil
}

// ReadComplexPayload reads exactly h.ChunkSize inline payload bytes
// following a live ComplexHeader previously read at offset.
func (c *Codec[O]) ReadComplexPayload(offset O, h layout.ComplexHeader[O]) ([]byte, error) {
	fixed := layout.ComplexFixedSize[O]()
	buf := make([]byte, uint64(h.ChunkSize))
	if err := c.read(offset+O(fixed), buf); err != nil {
		return nil, errs.Wrap(errs.DeviceRead, "Codec.ReadComplexPayload", err)
	}
	return buf, nil
}

// ReadComplex walks the chunk chain starting at firstOffset, following
// SequelOffset until NON_EXIST, concatenating each chunk's payload. It
// fails with CorruptedHeader if a sequel chunk reports ComplexBegin
// instead of ComplexSequel.
func (c *Codec[O]) ReadComplex(firstOffset O) ([]byte, error) {
	var out []byte
	offset := firstOffset
	first := true

	for {
		h, err := c.ReadComplexHeader(offset)
		if err != nil {
			return nil, err
		}
		if !first && h.State.ValueState&layout.ComplexSequel == 0 {
			return nil, errs.New(errs.CorruptedHeader, "Codec.ReadComplex")
		}

		payload, err := c.ReadComplexPayload(offset, h)
		if err != nil {
			return nil, err
		}
		out = append(out, payload...)

		if !offtype.Exists(h.SequelOffset) {
			break
		}
		offset = h.SequelOffset
		first = false
	}

	return out, nil
}

func (c *Codec[O]) marshalComplexFixed(buf []byte, h layout.ComplexHeader[O]) {
	oSize := offtype.Size[O]()
	c.writePVState(buf, h.State)
	layout.Endian.PutUint16(buf[2:4], h.ExpiredTimeHigh)
	layout.Endian.PutUint32(buf[4:8], h.ExpiredTimeLow)
	cur := 8
	encodeO(buf[cur:cur+oSize], h.OverallSize)
	cur += oSize
	encodeO(buf[cur:cur+oSize], h.ChunkSize)
	cur += oSize
	encodeO(buf[cur:cur+oSize], h.SequelOffset)
}

func decodeO[O offtype.Type](b []byte) O {
	switch offtype.Size[O]() {
	case 4:
		return O(layout.Endian.Uint32(b))
	default:
		return O(layout.Endian.Uint64(b))
	}
}

func encodeO[O offtype.Type](b []byte, v O) {
	switch offtype.Size[O]() {
	case 4:
		layout.Endian.PutUint32(b, uint32(v))
	default:
		layout.Endian.PutUint64(b, uint64(v))
	}
}
