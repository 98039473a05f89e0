// Package offtype carries the generic "OffsetType" constraint used
// throughout YAS. The original engine fixes the file offset width (4 or
// 8 bytes) at build time via a C++ template parameter; Go models the
// same build-time choice with a type parameter instantiated once at the
// call site that opens or creates a physical volume. The same
// constraint doubles as the trie's serialization IdType, since both are
// a 4- or 8-byte unsigned integer chosen by the caller.
package offtype

// Type is satisfied by the two widths YAS supports for on-disk offsets
// and for inverted-index node/leaf ids.
type Type interface {
	~uint32 | ~uint64
}

// NonExist returns the NON_EXIST sentinel reserved to mean "no offset"
// — the maximum value representable in O. Relies on unsigned
// wraparound: the zero value of O minus one wraps to its max.
func NonExist[O Type]() O {
	var zero O
	return zero - 1
}

// Exists reports whether v is not the NonExist sentinel.
func Exists[O Type](v O) bool {
	return v != NonExist[O]()
}

// Size returns sizeof(O) in bytes: 4 for uint32, 8 for uint64.
func Size[O Type]() int {
	switch any(*new(O)).(type) {
	case uint32:
		return 4
	case uint64:
		return 8
	default:
		return 8
	}
}
