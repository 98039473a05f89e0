// Package errs defines the error taxonomy shared by every YAS component.
//
// Every public YAS operation returns a value-or-error outcome; the only
// in-band sentinel left in the API is the documented NON_EXIST offset
// used internally by the freelist and trie.
package errs

import (
	"errors"
	"fmt"
)

// Kind identifies the class of failure a YAS operation reports. Kinds are
// compared with Is, never with ==, so new kinds can be inserted without
// breaking callers that only check for a subset.
type Kind int

const (
	Unknown Kind = iota
	DeviceGeneral
	DeviceRead
	DeviceWrite
	DeviceExpand
	InvertedIndexDeserialization
	InvertedIndexDeserializationVersionUnsupported
	CorruptedHeader
	InvalidPVSignature
	PVVersionNotSupported
	KeyNotFound
	KeyExpired
	KeyDoesntExpire
	IncorrectStorageValue
	KeyAlreadyCreated
	MemoryNotEnough
	CatalogNotFound
)

var kindNames = map[Kind]string{
	Unknown:                                         "unknown error",
	DeviceGeneral:                                   "device general error",
	DeviceRead:                                       "device read error",
	DeviceWrite:                                      "device write error",
	DeviceExpand:                                     "device expand error",
	InvertedIndexDeserialization:                     "inverted index deserialization error",
	InvertedIndexDeserializationVersionUnsupported:   "inverted index version unsupported",
	CorruptedHeader:                                  "corrupted header",
	InvalidPVSignature:                               "invalid PV signature",
	PVVersionNotSupported:                            "PV version not supported",
	KeyNotFound:                                      "key not found",
	KeyExpired:                                       "key expired",
	KeyDoesntExpire:                                  "key doesn't expire",
	IncorrectStorageValue:                            "incorrect storage value",
	KeyAlreadyCreated:                                "key already created",
	MemoryNotEnough:                                  "not enough memory",
	CatalogNotFound:                                  "catalog not found",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown error"
}

// Error is the concrete error type returned by every YAS package. Op names
// the failing operation (e.g. "EntriesManager.ReadEntry"); Err, when
// non-nil, is the underlying cause (a device I/O error, typically).
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error with no wrapped cause.
func New(kind Kind, op string) *Error {
	return &Error{Kind: kind, Op: op}
}

// Wrap builds an *Error around an existing cause. Wrap returns nil if err
// is nil, so it is safe to use as `return errs.Wrap(...)` at the end of a
// function that may or may not have actually failed.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err is (or wraps) a YAS *Error of the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
