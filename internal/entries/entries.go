// Package entries implements the physical volume's entry-level CRUD and
// allocation algorithm: picking a free entry of the right shape and
// size (splitting or growing the device as needed), writing/reading the
// Simple4/Simple8/Complex header that tags it, and reclaiming it back
// onto the freelist on delete. It is the Go counterpart of the original
// engine's PVEntriesManager, generalized from its build-time OffsetType
// template parameter to the offtype.Type generic.
package entries

import (
	"math"

	"github.com/michailvoronov/yet-another-storage/errs"
	"github.com/michailvoronov/yet-another-storage/internal/allocator"
	"github.com/michailvoronov/yet-another-storage/internal/codec"
	"github.com/michailvoronov/yet-another-storage/internal/device"
	"github.com/michailvoronov/yet-another-storage/internal/freelist"
	"github.com/michailvoronov/yet-another-storage/internal/layout"
	"github.com/michailvoronov/yet-another-storage/internal/offtype"
)

// Manager owns a PV's header, freelist bins and entry storage. It never
// touches the inverted index itself — offsets into entry storage are
// all it deals in, and a trie package above it is responsible for
// turning keys into those offsets.
type Manager[O offtype.Type] struct {
	codec    *codec.Codec[O]
	freelist *freelist.Manager[O]
	alloc    *allocator.Allocator[O]
	bins     layout.FreelistHeader[O]

	version     layout.Version
	priority    int32
	clusterSize int32
}

// New returns a Manager over dev, ready for either BootCreate or
// BootLoad.
func New[O offtype.Type](dev device.Device, clusterSize int32, priority int32) *Manager[O] {
	c := codec.New[O](dev)
	return &Manager[O]{
		codec:       c,
		freelist:    freelist.New(c),
		version:     layout.MaxSupportedVersion,
		priority:    priority,
		clusterSize: clusterSize,
	}
}

// Priority returns the PV's configured priority.
func (m *Manager[O]) Priority() int32 { return m.priority }

// headerAreaSize is the byte span the PVHeader and FreelistHeader
// occupy at the front of every PV.
func headerAreaSize[O offtype.Type]() O {
	return O(layout.PVHeaderSize[O]() + layout.FreelistHeaderSize[O]())
}

// BootCreate formats a brand-new PV: reserves the header area, records
// indexOffset as its inverted index offset (createPV passes NonExist and
// records the real offset with Flush once the index entry is written),
// and leaves all freelist bins empty. Callers write the first cluster's
// worth of entry storage lazily, on first allocation.
func (m *Manager[O]) BootCreate(indexOffset O) error {
	for i := range m.bins.Bins {
		m.bins.Bins[i] = offtype.NonExist[O]()
	}

	reserved := headerAreaSize[O]()
	if _, err := m.codec.RawWrite(0, make([]byte, uint64(reserved))); err != nil {
		return errs.Wrap(errs.DeviceExpand, "entries.Manager.BootCreate", err)
	}
	m.alloc = allocator.New(m.codec, m.clusterSize, reserved)

	h := layout.PVHeader[O]{
		Version:             m.version,
		PVSize:              m.alloc.DeviceEnd(),
		ClusterSize:         m.clusterSize,
		Priority:            m.priority,
		InvertedIndexOffset: indexOffset,
		FreelistBinsCount:   layout.BinCount,
	}
	if err := m.codec.WritePVHeader(0, h); err != nil {
		return err
	}
	return m.codec.WriteFreelistHeader(O(layout.PVHeaderSize[O]()), m.bins)
}

// BootLoad reads an existing PV's header and freelist bins, validating
// the signature and version, and returns its inverted index offset.
func (m *Manager[O]) BootLoad() (O, error) {
	h, err := m.codec.ReadPVHeader(0)
	if err != nil {
		return offtype.NonExist[O](), err
	}
	if h.Version.Greater(layout.MaxSupportedVersion) {
		return offtype.NonExist[O](), errs.New(errs.PVVersionNotSupported, "entries.Manager.BootLoad")
	}
	if !offtype.Exists(h.InvertedIndexOffset) {
		return offtype.NonExist[O](), errs.New(errs.InvalidPVSignature, "entries.Manager.BootLoad")
	}

	fh, err := m.codec.ReadFreelistHeader(O(layout.PVHeaderSize[O]()))
	if err != nil {
		return offtype.NonExist[O](), err
	}

	m.bins = fh
	m.version = h.Version
	m.priority = h.Priority
	m.clusterSize = h.ClusterSize
	m.alloc = allocator.New(m.codec, h.ClusterSize, h.PVSize)

	return h.InvertedIndexOffset, nil
}

// Flush persists the PV header's current size and the freelist bins —
// everything a reopen needs to resume exactly where this session left
// off. Callers invoke it after mutating operations and before Close.
func (m *Manager[O]) Flush(indexOffset O) error {
	h := layout.PVHeader[O]{
		Version:             m.version,
		PVSize:              m.alloc.DeviceEnd(),
		ClusterSize:         m.clusterSize,
		Priority:            m.priority,
		InvertedIndexOffset: indexOffset,
		FreelistBinsCount:   layout.BinCount,
	}
	if err := m.codec.WritePVHeader(0, h); err != nil {
		return err
	}
	return m.codec.WriteFreelistHeader(O(layout.PVHeaderSize[O]()), m.bins)
}

// CreateEntryValue allocates a new entry for value and returns its
// offset. Supported Go types mirror YAS's scalar/string/blob type set;
// anything else is IncorrectStorageValue.
func (m *Manager[O]) CreateEntryValue(value any) (O, error) {
	switch v := value.(type) {
	case int8:
		return m.createSimple4(layout.Int8, uint32(uint8(v)))
	case uint8:
		return m.createSimple4(layout.Uint8, uint32(v))
	case int16:
		return m.createSimple4(layout.Int16, uint32(uint16(v)))
	case uint16:
		return m.createSimple4(layout.Uint16, uint32(v))
	case int32:
		return m.createSimple4(layout.Int32, uint32(v))
	case uint32:
		return m.createSimple4(layout.Uint32, v)
	case float32:
		return m.createSimple4(layout.Float, math.Float32bits(v))
	case int64:
		return m.createSimple8(layout.Int64, uint64(v))
	case uint64:
		return m.createSimple8(layout.Uint64, v)
	case float64:
		return m.createSimple8(layout.Double, math.Float64bits(v))
	case string:
		return m.writeComplex(layout.String, []byte(v))
	case []byte:
		return m.writeComplex(layout.Blob, v)
	default:
		return offtype.NonExist[O](), errs.New(errs.IncorrectStorageValue, "entries.Manager.CreateEntryValue")
	}
}

// CreateIndexEntry writes a serialized inverted index blob and returns
// its offset; kept distinct from CreateEntryValue because both Blob and
// InvertedIndex values are carried as []byte on the Go side but must be
// tagged with different PVTypes on disk.
func (m *Manager[O]) CreateIndexEntry(data []byte) (O, error) {
	return m.writeComplex(layout.InvertedIndex, data)
}

// ReadIndexEntry reads back a serialized inverted index blob.
func (m *Manager[O]) ReadIndexEntry(offset O) ([]byte, error) {
	return m.codec.ReadComplex(offset)
}

// GetEntryContent reads the value stored at offset, returning it as the
// matching Go type.
func (m *Manager[O]) GetEntryContent(offset O) (any, error) {
	st, err := m.codec.ReadPVState(offset)
	if err != nil {
		return nil, err
	}

	switch st.ValueType {
	case layout.Int8, layout.Uint8, layout.Int16, layout.Uint16, layout.Int32, layout.Uint32, layout.Float:
		h, err := m.codec.ReadSimple4(offset)
		if err != nil {
			return nil, err
		}
		return convertSimple4(st.ValueType, h.Value()), nil
	case layout.Int64, layout.Uint64, layout.Double:
		h, err := m.codec.ReadSimple8(offset)
		if err != nil {
			return nil, err
		}
		return convertSimple8(st.ValueType, h.Value()), nil
	case layout.String, layout.Blob, layout.InvertedIndex:
		data, err := m.codec.ReadComplex(offset)
		if err != nil {
			return nil, err
		}
		if st.ValueType == layout.String {
			return string(data), nil
		}
		return data, nil
	default:
		return nil, errs.New(errs.CorruptedHeader, "entries.Manager.GetEntryContent")
	}
}

// DeleteEntry reclaims the entry at offset back onto the freelist.
func (m *Manager[O]) DeleteEntry(offset O) error {
	st, err := m.codec.ReadPVState(offset)
	if err != nil {
		return err
	}

	switch st.ValueType {
	case layout.Int8, layout.Uint8, layout.Int16, layout.Uint16, layout.Int32, layout.Uint32, layout.Float:
		bin := freelist.BinIndex(uint64(layout.Simple4HeaderSize))
		return m.freelist.Push(&m.bins, bin, offset, layout.Empty4Simple, 0)
	case layout.Int64, layout.Uint64, layout.Double:
		bin := freelist.BinIndex(uint64(layout.Simple8HeaderSize))
		return m.freelist.Push(&m.bins, bin, offset, layout.Empty8Simple, 0)
	case layout.String, layout.Blob, layout.InvertedIndex:
		return m.deleteComplexChain(offset)
	default:
		return errs.New(errs.CorruptedHeader, "entries.Manager.DeleteEntry")
	}
}

// deleteComplexChain reclaims every chunk in a complex value's chain,
// one ComplexHeader at a time (ground: PVEntriesManager::deleteEntry<ComplexTypeHeader>).
func (m *Manager[O]) deleteComplexChain(offset O) error {
	for {
		h, err := m.codec.ReadComplexHeader(offset)
		if err != nil {
			return err
		}
		next := h.SequelOffset

		capacity := uint64(layout.ComplexFixedSize[O]()) + uint64(h.ChunkSize)
		bin := freelist.BinIndex(capacity)
		if err := m.freelist.Push(&m.bins, bin, offset, layout.EmptyComplex, capacity); err != nil {
			return err
		}

		if !offtype.Exists(next) {
			return nil
		}
		offset = next
	}
}

// GetEntryExpiredDate reports whether offset carries an expiration
// timestamp and, if so, its (low, high) halves as stored on disk.
func (m *Manager[O]) GetEntryExpiredDate(offset O) (low uint32, high uint32, expires bool, err error) {
	st, err := m.codec.ReadPVState(offset)
	if err != nil {
		return 0, 0, false, err
	}
	if st.ValueState&layout.Expired == 0 {
		return 0, 0, false, nil
	}

	switch st.ValueType {
	case layout.Int8, layout.Uint8, layout.Int16, layout.Uint16, layout.Int32, layout.Uint32, layout.Float:
		h, err := m.codec.ReadSimple4(offset)
		if err != nil {
			return 0, 0, false, err
		}
		return h.ExpiredTimeLow(), uint32(h.ExpiredTimeHigh), true, nil
	case layout.Int64, layout.Uint64, layout.Double:
		h, err := m.codec.ReadSimple8(offset)
		if err != nil {
			return 0, 0, false, err
		}
		return h.ExpiredTimeLow(), uint32(h.ExpiredTimeHigh), true, nil
	case layout.String, layout.Blob, layout.InvertedIndex:
		h, err := m.codec.ReadComplexHeader(offset)
		if err != nil {
			return 0, 0, false, err
		}
		return h.ExpiredTimeLow, uint32(h.ExpiredTimeHigh), true, nil
	default:
		return 0, 0, false, errs.New(errs.CorruptedHeader, "entries.Manager.GetEntryExpiredDate")
	}
}

// SetEntryExpiredDate stamps offset's entry with an expiration
// timestamp split into (low, high) halves.
func (m *Manager[O]) SetEntryExpiredDate(offset O, low, high uint32) error {
	st, err := m.codec.ReadPVState(offset)
	if err != nil {
		return err
	}

	switch st.ValueType {
	case layout.Int8, layout.Uint8, layout.Int16, layout.Uint16, layout.Int32, layout.Uint32, layout.Float:
		h, err := m.codec.ReadSimple4(offset)
		if err != nil {
			return err
		}
		h.State.ValueState |= layout.Expired
		h.ExpiredTimeHigh = uint16(high)
		h.SetExpiredTimeLow(low)
		return m.codec.WriteSimple4(offset, h)
	case layout.Int64, layout.Uint64, layout.Double:
		h, err := m.codec.ReadSimple8(offset)
		if err != nil {
			return err
		}
		h.State.ValueState |= layout.Expired
		h.ExpiredTimeHigh = uint16(high)
		h.SetExpiredTimeLow(low)
		return m.codec.WriteSimple8(offset, h)
	case layout.String, layout.Blob, layout.InvertedIndex:
		h, err := m.codec.ReadComplexHeader(offset)
		if err != nil {
			return err
		}
		h.State.ValueState |= layout.Expired
		h.ExpiredTimeHigh = uint16(high)
		h.ExpiredTimeLow = low
		payload, err := m.codec.ReadComplexPayload(offset, h)
		if err != nil {
			return err
		}
		return m.codec.WriteComplexChunk(offset, h, payload)
	default:
		return errs.New(errs.CorruptedHeader, "entries.Manager.SetEntryExpiredDate")
	}
}

func (m *Manager[O]) createSimple4(t layout.PVType, value uint32) (O, error) {
	offset, _, err := m.getFreeEntryOffset(uint64(layout.Simple4HeaderSize))
	if err != nil {
		return offtype.NonExist[O](), err
	}
	var h layout.Simple4Header[O]
	h.State = layout.PVState{ValueType: t}
	h.SetValue(value)
	if err := m.codec.WriteSimple4(offset, h); err != nil {
		return offtype.NonExist[O](), err
	}
	return offset, nil
}

func (m *Manager[O]) createSimple8(t layout.PVType, value uint64) (O, error) {
	offset, _, err := m.getFreeEntryOffset(uint64(layout.Simple8HeaderSize))
	if err != nil {
		return offtype.NonExist[O](), err
	}
	var h layout.Simple8Header[O]
	h.State = layout.PVState{ValueType: t}
	h.SetValue(value)
	if err := m.codec.WriteSimple8(offset, h); err != nil {
		return offtype.NonExist[O](), err
	}
	return offset, nil
}

// writeComplex splits data across as many chunks as the freelist
// happens to hand back, threading each chunk's SequelOffset to the
// next (ground: PVEntriesManager::writeComplexType).
func (m *Manager[O]) writeComplex(t layout.PVType, data []byte) (O, error) {
	fixed := uint64(layout.ComplexFixedSize[O]())
	remaining := data
	firstOffset := offtype.NonExist[O]()
	var prevOffset O
	isFirst := true

	for {
		// A chunk request never exceeds one cluster, so the cluster that
		// getFreeOffset expands the device by always lies in a bin the
		// request searches.
		want := uint64(len(remaining)) + fixed
		if cs := uint64(m.clusterSize); want > cs {
			want = cs
		}
		offset, capacity, err := m.getFreeEntryOffset(want)
		if err != nil {
			return offtype.NonExist[O](), err
		}
		if isFirst {
			firstOffset = offset
		} else {
			if err := m.linkSequel(prevOffset, offset); err != nil {
				return offtype.NonExist[O](), err
			}
		}

		chunkCap := capacity - fixed
		chunkLen := uint64(len(remaining))
		if chunkLen > chunkCap {
			chunkLen = chunkCap
		}
		chunk := remaining[:chunkLen]

		state := layout.ComplexBegin
		var overallSize O
		if isFirst {
			overallSize = O(len(data))
		} else {
			state = layout.ComplexSequel
		}
		h := layout.ComplexHeader[O]{
			State:        layout.PVState{ValueType: t, ValueState: state},
			OverallSize:  overallSize,
			ChunkSize:    O(chunkLen),
			SequelOffset: offtype.NonExist[O](),
		}
		if err := m.codec.WriteComplexChunk(offset, h, chunk); err != nil {
			return offtype.NonExist[O](), err
		}

		remaining = remaining[chunkLen:]
		prevOffset = offset
		isFirst = false

		if len(remaining) == 0 {
			return firstOffset, nil
		}
	}
}

// linkSequel rewrites offset's SequelOffset field to point at next,
// without disturbing the rest of the already-written header/payload.
func (m *Manager[O]) linkSequel(offset, next O) error {
	h, err := m.codec.ReadComplexHeader(offset)
	if err != nil {
		return err
	}
	h.SequelOffset = next
	payload, err := m.codec.ReadComplexPayload(offset, h)
	if err != nil {
		return err
	}
	return m.codec.WriteComplexChunk(offset, h, payload)
}

// getFreeEntryOffset returns an entry with at least requestedSize bytes
// of capacity when the freelist can provide one in a single piece, or a
// smaller one otherwise (the chunked-complex-write loop above copes by
// issuing another chunk). Any excess capacity beyond requestedSize is
// split back into the freelist as its own entry.
func (m *Manager[O]) getFreeEntryOffset(requestedSize uint64) (O, uint64, error) {
	offset, err := m.getFreeOffset(requestedSize)
	if err != nil {
		return offtype.NonExist[O](), 0, err
	}

	st, err := m.codec.ReadPVState(offset)
	if err != nil {
		return offtype.NonExist[O](), 0, err
	}

	switch st.ValueType {
	case layout.Empty4Simple:
		return offset, uint64(layout.Simple4HeaderSize), nil
	case layout.Empty8Simple:
		return offset, uint64(layout.Simple8HeaderSize), nil
	case layout.EmptyComplex:
		h, err := m.codec.ReadComplexHeader(offset)
		if err != nil {
			return offtype.NonExist[O](), 0, err
		}
		capacity := uint64(h.OverallSize)
		if requestedSize >= capacity {
			return offset, capacity, nil
		}
		if err := m.splitEntries(offset+O(requestedSize), capacity-requestedSize); err != nil {
			return offtype.NonExist[O](), 0, err
		}
		return offset, requestedSize, nil
	default:
		return offtype.NonExist[O](), 0, errs.New(errs.CorruptedHeader, "entries.Manager.getFreeEntryOffset")
	}
}

// getFreeOffset pops a free entry whose own bin matches requestedSize,
// escalating to progressively larger bins when the matching bin is
// empty, and expanding the device by one cluster as a last resort.
func (m *Manager[O]) getFreeOffset(requestedSize uint64) (O, error) {
	bin := freelist.BinIndex(requestedSize)
	if offset, err := m.popFromBinOrLarger(bin); err != nil {
		return offtype.NonExist[O](), err
	} else if offtype.Exists(offset) {
		return offset, nil
	}

	newOffset, err := m.alloc.Expand()
	if err != nil {
		return offtype.NonExist[O](), err
	}
	newBin := freelist.BinIndex(uint64(m.clusterSize))
	if err := m.freelist.Push(&m.bins, newBin, newOffset, layout.EmptyComplex, uint64(m.clusterSize)); err != nil {
		return offtype.NonExist[O](), err
	}

	offset, err := m.popFromBinOrLarger(bin)
	if err != nil {
		return offtype.NonExist[O](), err
	}
	if !offtype.Exists(offset) {
		return offtype.NonExist[O](), errs.New(errs.DeviceExpand, "entries.Manager.getFreeOffset")
	}
	return offset, nil
}

func (m *Manager[O]) popFromBinOrLarger(bin int) (O, error) {
	for b := bin; b < layout.BinCount; b++ {
		offset, err := m.freelist.Pop(&m.bins, b)
		if err != nil {
			return offtype.NonExist[O](), err
		}
		if offtype.Exists(offset) {
			return offset, nil
		}
	}
	return offtype.NonExist[O](), nil
}

// splitEntries formats the size bytes left over after carving an entry
// out of a larger free block, reusing whichever header kind fits, or
// leaving the remainder as unreclaimed padding if it's too small for
// any header (ground: PVEntriesManager::splitEntries).
func (m *Manager[O]) splitEntries(offset O, size uint64) error {
	switch {
	case size > uint64(layout.ComplexHeaderSize[O]()):
		bin := freelist.BinIndex(size)
		return m.freelist.Push(&m.bins, bin, offset, layout.EmptyComplex, size)
	case size >= uint64(layout.Simple4HeaderSize) && size < uint64(layout.Simple8HeaderSize):
		bin := freelist.BinIndex(size)
		return m.freelist.Push(&m.bins, bin, offset, layout.Empty4Simple, 0)
	case size >= uint64(layout.Simple8HeaderSize):
		bin := freelist.BinIndex(size)
		return m.freelist.Push(&m.bins, bin, offset, layout.Empty8Simple, 0)
	default:
		return nil
	}
}

func convertSimple4(t layout.PVType, raw uint32) any {
	switch t {
	case layout.Int8:
		return int8(raw)
	case layout.Uint8:
		return uint8(raw)
	case layout.Int16:
		return int16(raw)
	case layout.Uint16:
		return uint16(raw)
	case layout.Int32:
		return int32(raw)
	case layout.Uint32:
		return raw
	case layout.Float:
		return math.Float32frombits(raw)
	default:
		return nil
	}
}

func convertSimple8(t layout.PVType, raw uint64) any {
	switch t {
	case layout.Int64:
		return int64(raw)
	case layout.Uint64:
		return raw
	case layout.Double:
		return math.Float64frombits(raw)
	default:
		return nil
	}
}
