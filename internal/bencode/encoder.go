package bencode

import (
	"io"
	"strconv"
)

// Encode returns the canonical encoding of v.
func Encode(v Value) []byte {
	return AppendEncode(nil, v)
}

// AppendEncode appends the canonical encoding of v to dst.
func AppendEncode(dst []byte, v Value) []byte {
	return v.appendTo(dst)
}

func (i BInt) appendTo(dst []byte) []byte {
	dst = append(dst, 'i')
	dst = strconv.AppendInt(dst, int64(i), 10)
	return append(dst, 'e')
}

func (s BString) appendTo(dst []byte) []byte {
	return appendString(dst, s.raw)
}

func appendString(dst []byte, s string) []byte {
	dst = strconv.AppendInt(dst, int64(len(s)), 10)
	dst = append(dst, ':')
	return append(dst, s...)
}

func (l *BList) appendTo(dst []byte) []byte {
	dst = append(dst, 'l')
	for _, v := range l.elems {
		dst = v.appendTo(dst)
	}
	return append(dst, 'e')
}

func (d *BDict) appendTo(dst []byte) []byte {
	dst = append(dst, 'd')
	for _, e := range d.entries {
		dst = appendString(dst, e.key)
		dst = e.value.appendTo(dst)
	}
	return append(dst, 'e')
}

// Encoder writes canonical encodings to a byte sink.
type Encoder struct {
	w   io.Writer
	buf []byte
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes v to the underlying writer. Only write errors are returned.
func (e *Encoder) Encode(v Value) error {
	e.buf = AppendEncode(e.buf[:0], v)
	_, err := e.w.Write(e.buf)
	return err
}
