package bencode

import (
	"fmt"
	"math"
)

// DefaultMaxDepth bounds list and dictionary nesting unless overridden with
// WithMaxDepth.
const DefaultMaxDepth = 256

type DecoderOption func(*Decoder)

// WithMaxDepth limits container nesting. n <= 0 disables the limit.
func WithMaxDepth(n int) DecoderOption {
	return func(d *Decoder) {
		d.maxDepth = n
	}
}

// WithStrictKeys rejects dictionaries whose keys are not strictly ascending
// on the wire. Without it, unsorted keys are sorted on insert and a repeated
// key overwrites the earlier value.
func WithStrictKeys() DecoderOption {
	return func(d *Decoder) {
		d.strictKeys = true
	}
}

type Decoder struct {
	data []byte
	pos  int

	maxDepth   int
	strictKeys bool
	depth      int
}

func NewDecoder(data []byte, opts ...DecoderOption) *Decoder {
	d := &Decoder{data: data, maxDepth: DefaultMaxDepth}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Decoder) Pos() int {
	return d.pos
}

// More reports whether unread bytes remain, for walking a concatenation of
// encoded values.
func (d *Decoder) More() bool {
	return d.pos < len(d.data)
}

// Decode reads the next value. On failure nothing is consumed and no partial
// value is returned.
func (d *Decoder) Decode() (Value, error) {
	start := d.pos
	v, err := d.decodeValue()
	if err != nil {
		d.pos = start
		d.depth = 0
		return nil, err
	}
	return v, nil
}

// DecodeWithSpan decodes the next value and also returns the exact bytes it
// was decoded from.
func (d *Decoder) DecodeWithSpan() (Value, []byte, error) {
	start := d.pos
	v, err := d.Decode()
	if err != nil {
		return nil, nil, err
	}
	return v, d.data[start:d.pos], nil
}

func (d *Decoder) DecodeDictWithSpan() (*BDict, []byte, error) {
	if err := d.expect('d'); err != nil {
		return nil, nil, err
	}
	v, raw, err := d.DecodeWithSpan()
	if err != nil {
		return nil, nil, err
	}
	return v.(*BDict), raw, nil
}

// DecodeDictFieldSpans decodes a dictionary and returns, for each of its
// keys, the raw bytes of the value as they appeared in the input. When a key
// repeats, the span of the last occurrence is kept.
func (d *Decoder) DecodeDictFieldSpans() (*BDict, map[string][]byte, error) {
	if err := d.expect('d'); err != nil {
		return nil, nil, err
	}
	start := d.pos
	spans := make(map[string][]byte)
	dict, err := d.decodeDict(spans)
	if err != nil {
		d.pos = start
		d.depth = 0
		return nil, nil, err
	}
	return dict, spans, nil
}

func (d *Decoder) expect(tag byte) error {
	if d.pos >= len(d.data) {
		return d.fail(d.pos, ErrUnexpectedEnd, "no value")
	}
	if d.data[d.pos] != tag {
		return d.fail(d.pos, ErrSyntax, fmt.Sprintf("expected %q, found %q", tag, d.data[d.pos]))
	}
	return nil
}

func (d *Decoder) fail(offset int, err error, msg string) error {
	return &SyntaxError{Offset: offset, Msg: msg, Err: err}
}

func (d *Decoder) decodeValue() (Value, error) {

	if d.pos >= len(d.data) {
		return nil, d.fail(d.pos, ErrUnexpectedEnd, "no value")
	}

	b := d.data[d.pos]

	switch {
	case b == 'i':
		return d.decodeInt()
	case b == 'l':
		return d.decodeList()
	case b == 'd':
		return d.decodeDict(nil)
	case isDigit(b):
		return d.decodeString()
	default:
		return nil, d.fail(d.pos, ErrInvalidTag, fmt.Sprintf("invalid value tag %q", b))
	}

}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func (d *Decoder) decodeInt() (Value, error) {

	d.pos++

	neg := false
	if d.pos < len(d.data) && d.data[d.pos] == '-' {
		neg = true
		d.pos++
	}

	limit := uint64(math.MaxInt64)
	if neg {
		limit++
	}

	start := d.pos
	var mag uint64
	for {
		if d.pos >= len(d.data) {
			return nil, d.fail(d.pos, ErrUnexpectedEnd, "unterminated integer")
		}
		c := d.data[d.pos]
		if c == 'e' {
			break
		}
		if !isDigit(c) {
			return nil, d.fail(d.pos, ErrSyntax, fmt.Sprintf("invalid byte %q in integer", c))
		}
		digit := uint64(c - '0')
		if mag > (limit-digit)/10 {
			return nil, d.fail(start, ErrIntegerOverflow, "integer out of 64-bit range")
		}
		mag = mag*10 + digit
		d.pos++
	}

	switch {
	case d.pos == start:
		return nil, d.fail(start, ErrSyntax, "integer has no digits")
	case d.data[start] == '0' && d.pos-start > 1:
		return nil, d.fail(start, ErrSyntax, "integer has a leading zero")
	case d.data[start] == '0' && neg:
		return nil, d.fail(start, ErrSyntax, "negative zero")
	}

	d.pos++

	if neg {
		// mag may be 1<<63, whose conversion wraps to math.MinInt64.
		return BInt(-int64(mag)), nil
	}
	return BInt(mag), nil
}

func (d *Decoder) decodeString() (BString, error) {
	start := d.pos

	var length uint64
	for d.pos < len(d.data) && isDigit(d.data[d.pos]) {
		// Past the buffer size the value only has to stay too large.
		if length <= uint64(len(d.data)) {
			length = length*10 + uint64(d.data[d.pos]-'0')
		}
		d.pos++
	}

	if d.pos == start {
		return BString{}, d.fail(start, ErrSyntax, "string length has no digits")
	}
	if d.pos >= len(d.data) {
		return BString{}, d.fail(d.pos, ErrUnexpectedEnd, "unterminated string length")
	}
	if d.data[d.pos] != ':' {
		return BString{}, d.fail(d.pos, ErrSyntax, fmt.Sprintf("invalid byte %q in string length", d.data[d.pos]))
	}

	d.pos++

	if length > uint64(len(d.data)-d.pos) {
		return BString{}, d.fail(start, ErrUnexpectedEnd, "string exceeds data length")
	}

	str := string(d.data[d.pos : d.pos+int(length)])
	d.pos += int(length)

	return BString{raw: str}, nil
}

func (d *Decoder) enter() error {
	d.depth++
	if d.maxDepth > 0 && d.depth > d.maxDepth {
		return d.fail(d.pos, ErrDepthExceeded, fmt.Sprintf("nesting deeper than %d", d.maxDepth))
	}
	return nil
}

func (d *Decoder) leave() {
	d.depth--
}

func (d *Decoder) decodeList() (Value, error) {
	if err := d.enter(); err != nil {
		return nil, err
	}
	defer d.leave()

	start := d.pos
	d.pos++

	list := &BList{}

	for {
		if d.pos >= len(d.data) {
			return nil, d.fail(start, ErrUnexpectedEnd, "unterminated list")
		}
		if d.data[d.pos] == 'e' {
			break
		}
		val, err := d.decodeValue()
		if err != nil {
			return nil, err
		}
		list.elems = append(list.elems, val)
	}

	d.pos++
	return list, nil
}

func (d *Decoder) decodeDict(spans map[string][]byte) (*BDict, error) {
	if err := d.enter(); err != nil {
		return nil, err
	}
	defer d.leave()

	start := d.pos
	d.pos++

	dict := &BDict{}
	var prev string

	for {
		if d.pos >= len(d.data) {
			return nil, d.fail(start, ErrUnexpectedEnd, "unterminated dictionary")
		}
		c := d.data[d.pos]
		if c == 'e' {
			break
		}
		if !isDigit(c) {
			return nil, d.fail(d.pos, ErrSyntax, fmt.Sprintf("dictionary key must be a string, found %q", c))
		}

		keyStart := d.pos
		keyVal, err := d.decodeString()
		if err != nil {
			return nil, err
		}
		key := keyVal.raw

		if d.strictKeys && dict.Len() > 0 && key <= prev {
			return nil, d.fail(keyStart, ErrKeyOrder, fmt.Sprintf("key %q does not sort after %q", key, prev))
		}
		prev = key

		valStart := d.pos
		val, err := d.decodeValue()
		if err != nil {
			return nil, err
		}
		if spans != nil {
			spans[key] = d.data[valStart:d.pos]
		}

		dict.Add(key, val)
	}

	d.pos++
	return dict, nil
}

// Decode parses the first value in data and reports how many bytes it used.
// Bytes after the value are left alone.
func Decode(data []byte, opts ...DecoderOption) (Value, int, error) {
	dec := NewDecoder(data, opts...)
	v, err := dec.Decode()
	if err != nil {
		return nil, 0, err
	}
	return v, dec.Pos(), nil
}

// Unmarshal parses data, which must hold exactly one value.
func Unmarshal(data []byte, opts ...DecoderOption) (Value, error) {
	v, n, err := Decode(data, opts...)
	if err != nil {
		return nil, err
	}
	if n != len(data) {
		return nil, &SyntaxError{Offset: n, Msg: "trailing data after value", Err: ErrTrailingData}
	}
	return v, nil
}
