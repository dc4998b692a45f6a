// Package bencode implements the canonical Bencode encoding used by
// BitTorrent metainfo files, tracker replies and extension messages.
//
// A decoded document is a tree of Values. Lists keep insertion order and
// dictionaries keep their entries sorted by key at all times, so encoding a
// tree always yields the unique canonical form.
//
// Values carry no locking. A tree shared between goroutines needs external
// synchronization.
package bencode

import (
	"strconv"
	"unicode/utf8"
)

type Kind int

const (
	KindInt Kind = iota + 1
	KindString
	KindList
	KindDict
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "integer"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindDict:
		return "dictionary"
	default:
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is one node of a bencode tree. The set of implementations is closed:
// BInt, BString, *BList and *BDict.
type Value interface {
	Kind() Kind
	appendTo(dst []byte) []byte
}

// BInt is a signed 64-bit bencode integer.
type BInt int64

func NewInt(n int64) BInt {
	return BInt(n)
}

func (BInt) Kind() Kind { return KindInt }

func (i BInt) Int64() int64 {
	return int64(i)
}

// BString is an immutable byte string. The bytes are held in a Go string so
// no caller can modify them after construction; they need not be valid
// UTF-8.
type BString struct {
	raw string
}

// NewBytes copies b into a new byte string. Embedded zero bytes are kept.
func NewBytes(b []byte) BString {
	return BString{raw: string(b)}
}

// NewText stores the UTF-8 encoding of s.
func NewText(s string) BString {
	return BString{raw: s}
}

func (BString) Kind() Kind { return KindString }

// Bytes returns a copy of the raw bytes.
func (s BString) Bytes() []byte {
	return []byte(s.raw)
}

// Len is the raw byte count, which is also the encoded length prefix.
func (s BString) Len() int {
	return len(s.raw)
}

// String returns the raw bytes unchanged, valid UTF-8 or not.
func (s BString) String() string {
	return s.raw
}

// Text interprets the raw bytes as UTF-8. Invalid sequences are reported as
// ErrInvalidUTF8 rather than replaced.
func (s BString) Text() (string, error) {
	if !utf8.ValidString(s.raw) {
		return "", ErrInvalidUTF8
	}
	return s.raw, nil
}

// Equal reports whether a and b are structurally identical trees.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() {
		return false
	}

	switch av := a.(type) {
	case BInt:
		return av == b.(BInt)
	case BString:
		return av.raw == b.(BString).raw
	case *BList:
		bv := b.(*BList)
		if av.Len() != bv.Len() {
			return false
		}
		for i := range av.elems {
			if !Equal(av.elems[i], bv.elems[i]) {
				return false
			}
		}
		return true
	case *BDict:
		bv := b.(*BDict)
		if av.Len() != bv.Len() {
			return false
		}
		for i := range av.entries {
			if av.entries[i].key != bv.entries[i].key {
				return false
			}
			if !Equal(av.entries[i].value, bv.entries[i].value) {
				return false
			}
		}
		return true
	}
	return false
}
