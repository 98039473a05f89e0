package yas

import (
	"sync"
	"time"

	"github.com/michailvoronov/yet-another-storage/errs"
	"github.com/michailvoronov/yet-another-storage/internal/device"
	"github.com/michailvoronov/yet-another-storage/internal/entries"
	"github.com/michailvoronov/yet-another-storage/internal/offtype"
	"github.com/michailvoronov/yet-another-storage/internal/trie"
)

// indexIDType is the node/leaf id width used for the inverted index's
// on-disk serialization, chosen once here independently of the offset
// width O a PVManager is instantiated with: a trie rarely has enough
// distinct nodes to need more than 32 bits of id space, even when O is
// uint64.
type indexIDType = uint32

// expiredBitWidth is the number of bits the on-disk expiration
// timestamp carries: a 48-bit seconds-since-epoch value split into a
// 16-bit high half and a 32-bit low half.
const expiredBitWidth = 48

// PVManager is the public facade over one open physical volume: it owns
// the entries.Manager, the in-memory inverted index trie and its Bloom
// pre-filter, and serializes every operation behind a single mutex —
// only one writer may touch the volume at a time.
type PVManager[O offtype.Type] struct {
	mu sync.Mutex

	dev         device.Device
	entries     *entries.Manager[O]
	index       *trie.Index[O]
	pre         *trie.PreFilter[O]
	indexOffset O

	closed    bool
	closeHook func()
}

// createPV formats a brand-new, empty PV on dev.
func createPV[O offtype.Type](dev device.Device, priority, clusterSize int32) (*PVManager[O], error) {
	em := entries.New[O](dev, clusterSize, priority)
	if err := em.BootCreate(offtype.NonExist[O]()); err != nil {
		return nil, err
	}

	idx := trie.New[O]()
	blob := trie.Serialize[O, indexIDType](idx)
	indexOffset, err := em.CreateIndexEntry(blob)
	if err != nil {
		return nil, err
	}
	if err := em.Flush(indexOffset); err != nil {
		return nil, err
	}

	return &PVManager[O]{
		dev:         dev,
		entries:     em,
		index:       idx,
		pre:         trie.NewPreFilter(idx, 1024),
		indexOffset: indexOffset,
	}, nil
}

// openPV loads an existing PV from dev.
func openPV[O offtype.Type](dev device.Device, priority, clusterSize int32) (*PVManager[O], error) {
	em := entries.New[O](dev, clusterSize, priority)
	indexOffset, err := em.BootLoad()
	if err != nil {
		return nil, err
	}

	blob, err := em.ReadIndexEntry(indexOffset)
	if err != nil {
		return nil, err
	}
	idx, err := trie.Deserialize[O, indexIDType](blob)
	if err != nil {
		return nil, err
	}

	return &PVManager[O]{
		dev:         dev,
		entries:     em,
		index:       idx,
		pre:         trie.NewPreFilter(idx, 1024),
		indexOffset: indexOffset,
	}, nil
}

// Put allocates and writes value under key. It fails with
// KeyAlreadyCreated if key already has a value; YAS never overwrites a
// live value in place.
func (p *PVManager[O]) Put(key string, value any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errs.New(errs.DeviceGeneral, "PVManager.Put")
	}

	if p.index.HasKey([]byte(key)) {
		return errs.New(errs.KeyAlreadyCreated, "PVManager.Put")
	}

	offset, err := p.entries.CreateEntryValue(value)
	if err != nil {
		return err
	}
	if !p.index.Insert([]byte(key), offset) {
		return errs.New(errs.KeyAlreadyCreated, "PVManager.Put")
	}
	p.pre.Observe([]byte(key))
	return nil
}

// Get returns key's value. It fails with KeyNotFound if key is absent,
// or KeyExpired if key carries an expiration timestamp that has
// already passed (the entry is left in place; callers that want it
// reclaimed call Delete themselves).
func (p *PVManager[O]) Get(key string) (any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	offset, err := p.lookup(key)
	if err != nil {
		return nil, err
	}

	if t, expires, err := p.expiredDate(offset); err != nil {
		return nil, err
	} else if expires && t.Before(time.Now()) {
		return nil, errs.New(errs.KeyExpired, "PVManager.Get")
	}

	return p.entries.GetEntryContent(offset)
}

// HasKey reports whether key currently has a value, irrespective of
// expiration.
func (p *PVManager[O]) HasKey(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.pre.MaybeHasKey([]byte(key)) {
		return false
	}
	return p.index.HasKey([]byte(key))
}

// Delete removes key and reclaims its storage onto the freelist. It
// fails with KeyNotFound if key is absent.
func (p *PVManager[O]) Delete(key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	offset, err := p.lookup(key)
	if err != nil {
		return err
	}
	if err := p.entries.DeleteEntry(offset); err != nil {
		return err
	}
	p.index.Delete([]byte(key))
	return nil
}

// SetExpiredDate stamps key's entry with an expiration timestamp. It
// fails with KeyNotFound if key is absent.
func (p *PVManager[O]) SetExpiredDate(key string, t time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	offset, err := p.lookup(key)
	if err != nil {
		return err
	}

	secs := uint64(t.Unix()) & (1<<expiredBitWidth - 1)
	low := uint32(secs)
	high := uint32(secs >> 32)
	return p.entries.SetEntryExpiredDate(offset, low, high)
}

// GetExpiredDate returns key's expiration timestamp. It fails with
// KeyNotFound if key is absent, or KeyDoesntExpire if key has no
// expiration set (a distinct, non-fault condition from KeyExpired,
// which only Get reports, for an already-past timestamp).
func (p *PVManager[O]) GetExpiredDate(key string) (time.Time, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	offset, err := p.lookup(key)
	if err != nil {
		return time.Time{}, err
	}

	t, expires, err := p.expiredDate(offset)
	if err != nil {
		return time.Time{}, err
	}
	if !expires {
		return time.Time{}, errs.New(errs.KeyDoesntExpire, "PVManager.GetExpiredDate")
	}
	return t, nil
}

// Close serializes the inverted index, writes it as a fresh entry,
// frees the old index entry, flushes the PV header and freelist bins,
// and closes the underlying device. It is an error to call any other
// method after Close.
func (p *PVManager[O]) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}

	blob := trie.Serialize[O, indexIDType](p.index)
	newOffset, err := p.entries.CreateIndexEntry(blob)
	if err != nil {
		return err
	}
	if err := p.entries.DeleteEntry(p.indexOffset); err != nil {
		return err
	}
	p.indexOffset = newOffset

	if err := p.entries.Flush(p.indexOffset); err != nil {
		return err
	}

	p.closed = true
	err = p.dev.Close()
	if p.closeHook != nil {
		p.closeHook()
	}
	return err
}

func (p *PVManager[O]) lookup(key string) (O, error) {
	if !p.pre.MaybeHasKey([]byte(key)) {
		return offtype.NonExist[O](), errs.New(errs.KeyNotFound, "PVManager.lookup")
	}
	offset := p.index.Get([]byte(key))
	if !offtype.Exists(offset) {
		return offtype.NonExist[O](), errs.New(errs.KeyNotFound, "PVManager.lookup")
	}
	return offset, nil
}

func (p *PVManager[O]) expiredDate(offset O) (time.Time, bool, error) {
	low, high, expires, err := p.entries.GetEntryExpiredDate(offset)
	if err != nil {
		return time.Time{}, false, err
	}
	if !expires {
		return time.Time{}, false, nil
	}
	secs := uint64(high)<<32 | uint64(low)
	return time.Unix(int64(secs), 0).UTC(), true, nil
}
