package bencode

import (
	"errors"
	"fmt"
)

var (
	ErrSyntax          = errors.New("malformed bencode")
	ErrUnexpectedEnd   = errors.New("unexpected end of data")
	ErrInvalidTag      = errors.New("invalid value tag")
	ErrIntegerOverflow = errors.New("integer out of 64-bit range")
	ErrDepthExceeded   = errors.New("nesting depth exceeded")
	ErrKeyOrder        = errors.New("dictionary keys not in canonical order")
	ErrTrailingData    = errors.New("trailing data after value")
	ErrInvalidUTF8     = errors.New("bencode: string is not valid UTF-8")
)

// SyntaxError describes malformed input and the offset where it was found.
type SyntaxError struct {
	Offset int
	Msg    string
	Err    error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("bencode: %s at offset %d", e.Msg, e.Offset)
}

func (e *SyntaxError) Unwrap() error {
	return e.Err
}
