package trie

import (
	"github.com/bits-and-blooms/bloom/v3"
	"github.com/cespare/xxhash/v2"

	"github.com/michailvoronov/yet-another-storage/internal/offtype"
)

// falsePositiveRate bounds the pre-filter's false-positive probability;
// it only ever produces an unnecessary trie walk, never a wrong answer.
const falsePositiveRate = 0.01

// PreFilter accelerates negative HasKey/Get lookups against a large
// Index with an in-memory Bloom filter keyed by xxhash — it is never
// serialized and is rebuilt from the live trie on boot, since the
// on-disk index blob format has no room for one.
type PreFilter[O offtype.Type] struct {
	index  *Index[O]
	filter *bloom.BloomFilter
}

// NewPreFilter builds a PreFilter over index, seeding the Bloom filter
// from its current keys. expectedKeys sizes the filter's bit array.
func NewPreFilter[O offtype.Type](index *Index[O], expectedKeys uint) *PreFilter[O] {
	p := &PreFilter[O]{index: index}
	p.Rebuild(expectedKeys)
	return p
}

// Observe records that key was just inserted.
func (p *PreFilter[O]) Observe(key []byte) {
	p.filter.Add(hashKey(key))
}

// MaybeHasKey reports false only when key is definitely absent,
// letting callers skip the trie walk entirely on a negative result. A
// true result still requires the real HasKey/Get call.
func (p *PreFilter[O]) MaybeHasKey(key []byte) bool {
	return p.filter.Test(hashKey(key))
}

// Rebuild resets the filter and re-observes every key currently in the
// underlying trie — used after Deserialize, since inserts made before
// this PreFilter existed were never Observe'd.
func (p *PreFilter[O]) Rebuild(expectedKeys uint) {
	p.filter = bloom.NewWithEstimates(expectedKeys, falsePositiveRate)
	p.index.Walk(func(key []byte, _ O) {
		p.Observe(key)
	})
}

func hashKey(key []byte) []byte {
	sum := xxhash.Sum64(key)
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(sum >> (8 * i))
	}
	return b[:]
}
