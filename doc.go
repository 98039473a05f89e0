// Package yas implements YAS, an embedded, single-file key-value store.
// Keys are arbitrary strings; values are tagged scalars (signed/unsigned
// 8/16/32/64-bit integers, 32/64-bit IEEE-754 floats) or variable-length
// payloads (strings, byte blobs), each with an optional expiration time.
// Everything lives in one backing file (the physical volume, or PV)
// addressed through the internal/device block-I/O abstraction.
//
// Open or Create a PV through the package-level Factory functions, which
// deduplicate concurrent callers of the same file path onto one
// *PVManager:
//
//	pv, err := yas.Create("data.yas", 0, 0)
//	...
//	if err := pv.Put("answer", int64(42)); err != nil { ... }
//	v, err := pv.Get("answer")
//	...
//	err = pv.Close()
//
// PVManager itself serializes every call behind a single mutex: there
// is no concurrent-writer support within one open PV, matching the
// single-process, single-writer model YAS is built for.
package yas
