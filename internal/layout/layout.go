// Package layout defines the on-disk record shapes for a YAS physical
// volume: the PV header, the freelist header, and the three entry
// header kinds (Simple4, Simple8, Complex). Nothing here touches a
// Device — layout only knows how bytes are shaped, internal/codec knows
// how to move them.
package layout

import (
	"encoding/binary"

	"github.com/michailvoronov/yet-another-storage/internal/offtype"
)

// Signature is the fixed 6-byte magic every PV file opens with.
var Signature = [6]byte{'Y', 'A', 'S', '_', 'P', 'V'}

// DefaultClusterSize is the PV growth unit used when a caller doesn't
// specify one explicitly.
const DefaultClusterSize int32 = 4096

// BinCount is the fixed number of freelist size-class bins.
const BinCount = 11

// MaxSupportedVersion is the highest PVHeader.Version this build of YAS
// will open. The write side always stamps this version.
var MaxSupportedVersion = Version{Major: 1, Minor: 0}

// Endian is the byte order used for every on-disk integer. YAS makes no
// attempt at cross-endian portability: the writer's native order is
// used, and the signature match at boot is the only compatibility
// check performed.
var Endian = binary.NativeEndian

// Version is the 2-byte on-disk format version (major, minor).
type Version struct {
	Major uint8
	Minor uint8
}

// Greater reports whether v is a strictly newer version than other.
func (v Version) Greater(other Version) bool {
	if v.Major != other.Major {
		return v.Major > other.Major
	}
	return v.Minor > other.Minor
}

// PVType tags the runtime type carried by an entry header.
type PVType uint8

const (
	Int8 PVType = iota
	Uint8
	Int16
	Uint16
	Int32
	Uint32
	Float

	Double
	Int64
	Uint64

	String
	Blob
	InvertedIndex

	Empty4Simple
	Empty8Simple
	EmptyComplex
)

// IsEmpty reports whether t is one of the three Empty* sentinel tags.
// A live entry never carries one.
func (t PVType) IsEmpty() bool {
	return t == Empty4Simple || t == Empty8Simple || t == EmptyComplex
}

var pvTypeNames = map[PVType]string{
	Int8: "int8", Uint8: "uint8", Int16: "int16", Uint16: "uint16",
	Int32: "int32", Uint32: "uint32", Float: "float32",
	Double: "float64", Int64: "int64", Uint64: "uint64",
	String: "string", Blob: "blob", InvertedIndex: "inverted_index",
	Empty4Simple: "empty4", Empty8Simple: "empty8", EmptyComplex: "empty_complex",
}

func (t PVType) String() string {
	if name, ok := pvTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// PVTypeState is a bitmask describing the additional state an entry
// header carries alongside its PVType.
type PVTypeState uint8

const (
	Empty          PVTypeState = 0x00
	Expired        PVTypeState = 0x01
	ComplexBegin   PVTypeState = 0x02
	ComplexSequel  PVTypeState = 0x04
)

// PVState is the common 2-byte prefix of every entry header.
type PVState struct {
	ValueType  PVType
	ValueState PVTypeState
}

const PVStateSize = 2

// PVHeader is the fixed PV-wide header at offset 0: 6-byte signature +
// 2-byte version + pv_size + cluster_size + priority +
// inverted_index_offset + freelist_bins_count, packed with no padding.
// Its encoded size is 20 + 2*sizeof(O) bytes.
type PVHeader[O offtype.Type] struct {
	Version             Version
	PVSize              O
	ClusterSize         int32
	Priority            int32
	InvertedIndexOffset O
	FreelistBinsCount   int32
}

// PVHeaderSize returns sizeof(PVHeader[O]) on disk.
func PVHeaderSize[O offtype.Type]() int {
	return 6 + 2 + offtype.Size[O]() + 4 + 4 + offtype.Size[O]() + 4
}

// FreelistHeader is the array of BinCount bin heads persisted right
// after the PVHeader.
type FreelistHeader[O offtype.Type] struct {
	Bins [BinCount]O
}

// FreelistHeaderSize returns sizeof(FreelistHeader[O]) on disk.
func FreelistHeaderSize[O offtype.Type]() int {
	return BinCount * offtype.Size[O]()
}

// Simple4Header holds 1/2/4-byte integers and float. Encoded size is
// always 12 bytes regardless of O, because the union's
// data-bearing branch (4-byte low time + 4-byte value) is never smaller
// than a free-list pointer of width sizeof(O) <= 8.
type Simple4Header[O offtype.Type] struct {
	State           PVState
	ExpiredTimeHigh uint16
	// raw is the 8-byte union region: either (expired_time_low u32,
	// value u32) when live, or next_free_entry_offset (width O) when
	// free. Two accessor pairs below read/write the same bytes under
	// each interpretation — Go has no union primitive to express this.
	raw [8]byte
}

const Simple4HeaderSize = PVStateSize + 2 + 8

func (h *Simple4Header[O]) ExpiredTimeLow() uint32     { return Endian.Uint32(h.raw[0:4]) }
func (h *Simple4Header[O]) SetExpiredTimeLow(v uint32) { Endian.PutUint32(h.raw[0:4], v) }
func (h *Simple4Header[O]) Value() uint32              { return Endian.Uint32(h.raw[4:8]) }
func (h *Simple4Header[O]) SetValue(v uint32)          { Endian.PutUint32(h.raw[4:8], v) }

func (h *Simple4Header[O]) NextFreeEntryOffset() O {
	return decodeOffset[O](h.raw[:offtype.Size[O]()])
}

func (h *Simple4Header[O]) SetNextFreeEntryOffset(v O) {
	encodeOffset(h.raw[:offtype.Size[O]()], v)
}

// RawBytes exposes the union region for the codec to marshal directly.
func (h *Simple4Header[O]) RawBytes() []byte { return h.raw[:] }

// Simple8Header holds 8-byte integers and double. Encoded size is
// always 16 bytes: PVState(2) + high(2) + union(12), where the union's
// data-bearing branch (4-byte low + 8-byte value) dominates sizeof(O).
type Simple8Header[O offtype.Type] struct {
	State           PVState
	ExpiredTimeHigh uint16
	raw             [12]byte
}

const Simple8HeaderSize = PVStateSize + 2 + 12

func (h *Simple8Header[O]) ExpiredTimeLow() uint32     { return Endian.Uint32(h.raw[0:4]) }
func (h *Simple8Header[O]) SetExpiredTimeLow(v uint32) { Endian.PutUint32(h.raw[0:4], v) }
func (h *Simple8Header[O]) Value() uint64              { return Endian.Uint64(h.raw[4:12]) }
func (h *Simple8Header[O]) SetValue(v uint64)          { Endian.PutUint64(h.raw[4:12], v) }

func (h *Simple8Header[O]) NextFreeEntryOffset() O {
	return decodeOffset[O](h.raw[:offtype.Size[O]()])
}

func (h *Simple8Header[O]) SetNextFreeEntryOffset(v O) {
	encodeOffset(h.raw[:offtype.Size[O]()], v)
}

func (h *Simple8Header[O]) RawBytes() []byte { return h.raw[:] }

// ComplexHeader holds String/Blob/InvertedIndex values, possibly spread
// over a chain of chunks. ComplexFixedSize bytes
// (8 + 3*sizeof(O)) are always present; what follows is either
// NextFreeEntryOffset (when this header tags a free entry) or
// ChunkSize bytes of inline payload (when it tags a live chunk) — the
// two are never both meaningful at once, so NextFreeEntryOffset is only
// read/written by the freelist/allocator code paths.
type ComplexHeader[O offtype.Type] struct {
	State               PVState
	ExpiredTimeHigh     uint16
	ExpiredTimeLow      uint32
	OverallSize         O
	ChunkSize           O
	SequelOffset        O
	NextFreeEntryOffset O
}

// ComplexFixedSize returns offsetof(ComplexHeader, data) — the byte
// offset, relative to the start of the entry, where either the inline
// payload (live) or NextFreeEntryOffset (free) begins.
func ComplexFixedSize[O offtype.Type]() int {
	return PVStateSize + 2 + 4 + 3*offtype.Size[O]()
}

// ComplexHeaderSize returns sizeof(ComplexHeader[O]): the minimum
// capacity any complex entry must have, since every complex entry is
// allocated with room for at least a free-list pointer.
func ComplexHeaderSize[O offtype.Type]() int {
	return ComplexFixedSize[O]() + offtype.Size[O]()
}

func decodeOffset[O offtype.Type](b []byte) O {
	switch offtype.Size[O]() {
	case 4:
		return O(Endian.Uint32(b))
	default:
		return O(Endian.Uint64(b))
	}
}

func encodeOffset[O offtype.Type](b []byte, v O) {
	switch offtype.Size[O]() {
	case 4:
		Endian.PutUint32(b, uint32(v))
	default:
		Endian.PutUint64(b, uint64(v))
	}
}
