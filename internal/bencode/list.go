package bencode

import "iter"

// BList is an ordered list of values. Elements added to a list belong to it
// until they are removed.
type BList struct {
	elems []Value
}

func NewList(values ...Value) *BList {
	l := &BList{}
	for _, v := range values {
		l.Add(v)
	}
	return l
}

func (*BList) Kind() Kind { return KindList }

func (l *BList) Len() int {
	return len(l.elems)
}

// Add appends v and returns the new length.
func (l *BList) Add(v Value) int {
	if v == nil {
		panic("bencode: nil value added to list")
	}
	l.elems = append(l.elems, v)
	return len(l.elems)
}

func (l *BList) AddInt(n int64) int {
	return l.Add(BInt(n))
}

func (l *BList) AddBytes(b []byte) int {
	return l.Add(NewBytes(b))
}

func (l *BList) AddText(s string) int {
	return l.Add(NewText(s))
}

func (l *BList) Get(i int) (Value, bool) {
	if i < 0 || i >= len(l.elems) {
		return nil, false
	}
	return l.elems[i], true
}

func (l *BList) GetInt(i int) (BInt, bool) {
	v, _ := l.Get(i)
	n, ok := v.(BInt)
	return n, ok
}

func (l *BList) GetString(i int) (BString, bool) {
	v, _ := l.Get(i)
	s, ok := v.(BString)
	return s, ok
}

func (l *BList) GetList(i int) (*BList, bool) {
	v, _ := l.Get(i)
	sub, ok := v.(*BList)
	return sub, ok
}

func (l *BList) GetDict(i int) (*BDict, bool) {
	v, _ := l.Get(i)
	d, ok := v.(*BDict)
	return d, ok
}

// Remove detaches the element at i and hands it back to the caller. Later
// elements shift down by one.
func (l *BList) Remove(i int) (Value, bool) {
	if i < 0 || i >= len(l.elems) {
		return nil, false
	}
	v := l.elems[i]
	copy(l.elems[i:], l.elems[i+1:])
	l.elems[len(l.elems)-1] = nil
	l.elems = l.elems[:len(l.elems)-1]
	return v, true
}

func (l *BList) All() iter.Seq2[int, Value] {
	return func(yield func(int, Value) bool) {
		for i, v := range l.elems {
			if !yield(i, v) {
				return
			}
		}
	}
}
