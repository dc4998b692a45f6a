package bencode

import (
	"iter"
	"slices"
	"strings"
)

type dictEntry struct {
	key   string
	value Value
}

// BDict maps byte-string keys to values. Entries are kept sorted by the
// byte-wise order of their keys after every insertion and removal.
type BDict struct {
	entries []dictEntry
}

func NewDict() *BDict {
	return &BDict{}
}

func (*BDict) Kind() Kind { return KindDict }

func (d *BDict) Len() int {
	return len(d.entries)
}

func (d *BDict) search(key string) (int, bool) {
	return slices.BinarySearchFunc(d.entries, key, func(e dictEntry, k string) int {
		return strings.Compare(e.key, k)
	})
}

// Add stores v under key and returns the number of entries. An existing
// value for key is replaced in place.
func (d *BDict) Add(key string, v Value) int {
	if v == nil {
		panic("bencode: nil value added to dictionary")
	}
	i, found := d.search(key)
	if found {
		d.entries[i].value = v
		return len(d.entries)
	}
	d.entries = slices.Insert(d.entries, i, dictEntry{key: key, value: v})
	return len(d.entries)
}

func (d *BDict) AddInt(key string, n int64) int {
	return d.Add(key, BInt(n))
}

func (d *BDict) AddBytes(key string, b []byte) int {
	return d.Add(key, NewBytes(b))
}

func (d *BDict) AddText(key string, s string) int {
	return d.Add(key, NewText(s))
}

func (d *BDict) Get(key string) (Value, bool) {
	i, found := d.search(key)
	if !found {
		return nil, false
	}
	return d.entries[i].value, true
}

func (d *BDict) GetInt(key string) (BInt, bool) {
	v, _ := d.Get(key)
	n, ok := v.(BInt)
	return n, ok
}

func (d *BDict) GetString(key string) (BString, bool) {
	v, _ := d.Get(key)
	s, ok := v.(BString)
	return s, ok
}

func (d *BDict) GetList(key string) (*BList, bool) {
	v, _ := d.Get(key)
	l, ok := v.(*BList)
	return l, ok
}

func (d *BDict) GetDict(key string) (*BDict, bool) {
	v, _ := d.Get(key)
	sub, ok := v.(*BDict)
	return sub, ok
}

// Remove detaches the value stored under key and hands it back to the
// caller.
func (d *BDict) Remove(key string) (Value, bool) {
	i, found := d.search(key)
	if !found {
		return nil, false
	}
	v := d.entries[i].value
	d.entries = slices.Delete(d.entries, i, i+1)
	return v, true
}

// Keys returns the keys in sorted order.
func (d *BDict) Keys() []string {
	keys := make([]string, len(d.entries))
	for i, e := range d.entries {
		keys[i] = e.key
	}
	return keys
}

func (d *BDict) All() iter.Seq2[string, Value] {
	return func(yield func(string, Value) bool) {
		for _, e := range d.entries {
			if !yield(e.key, e.value) {
				return
			}
		}
	}
}
