// Package convert projects bencode trees onto JSON, YAML and CBOR, and
// builds trees back from JSON.
//
// JSON has no byte strings, so a string that is not valid UTF-8 is written
// as {"$bytes": "<base64>"} and read back the same way.
package convert

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"unicode/utf8"

	"github.com/fxamacker/cbor/v2"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"torrent-bencode/internal/bencode"
)

const BytesKey = "$bytes"

var ErrBinaryKey = errors.New("dictionary key is not valid UTF-8")

// encMode uses Core Deterministic Encoding so map keys come out sorted,
// matching the bencode ordering for ASCII keys.
var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("convert: CBOR encoder initialization failed: " + err.Error())
	}
}

// ToNative returns the tree as plain Go values: map[string]any, []any,
// int64, and string for UTF-8 text or []byte otherwise.
func ToNative(v bencode.Value) any {
	return native(v, func(s bencode.BString) any {
		if text, err := s.Text(); err == nil {
			return text
		}
		return s.Bytes()
	})
}

func native(v bencode.Value, str func(bencode.BString) any) any {
	switch val := v.(type) {
	case bencode.BInt:
		return val.Int64()
	case bencode.BString:
		return str(val)
	case *bencode.BList:
		out := make([]any, 0, val.Len())
		for _, elem := range val.All() {
			out = append(out, native(elem, str))
		}
		return out
	case *bencode.BDict:
		out := make(map[string]any, val.Len())
		for key, elem := range val.All() {
			out[key] = native(elem, str)
		}
		return out
	}
	return nil
}

func checkKeys(v bencode.Value) error {
	switch val := v.(type) {
	case *bencode.BList:
		for _, elem := range val.All() {
			if err := checkKeys(elem); err != nil {
				return err
			}
		}
	case *bencode.BDict:
		for key, elem := range val.All() {
			if !utf8.ValidString(key) {
				return fmt.Errorf("%w: %q", ErrBinaryKey, key)
			}
			if err := checkKeys(elem); err != nil {
				return err
			}
		}
	}
	return nil
}

func ToJSON(v bencode.Value) ([]byte, error) {
	if err := checkKeys(v); err != nil {
		return nil, err
	}
	tree := jsonNative(v)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(tree); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func bytesObject(s bencode.BString) map[string]string {
	return map[string]string{BytesKey: base64.StdEncoding.EncodeToString(s.Bytes())}
}

// jsonNative is native with byte strings made JSON-safe. A dictionary
// whose only entry is a string under BytesKey would read back as a byte
// string, so that entry is always written in the wrapped form.
func jsonNative(v bencode.Value) any {
	switch val := v.(type) {
	case bencode.BInt:
		return val.Int64()
	case bencode.BString:
		if text, err := val.Text(); err == nil {
			return text
		}
		return bytesObject(val)
	case *bencode.BList:
		out := make([]any, 0, val.Len())
		for _, elem := range val.All() {
			out = append(out, jsonNative(elem))
		}
		return out
	case *bencode.BDict:
		out := make(map[string]any, val.Len())
		for key, elem := range val.All() {
			if s, ok := elem.(bencode.BString); ok && key == BytesKey && val.Len() == 1 {
				out[key] = bytesObject(s)
				continue
			}
			out[key] = jsonNative(elem)
		}
		return out
	}
	return nil
}

// ToYAML relies on yaml.v3 tagging non-UTF-8 strings as !!binary.
func ToYAML(v bencode.Value) ([]byte, error) {
	tree := native(v, func(s bencode.BString) any {
		return s.String()
	})
	return yaml.Marshal(tree)
}

// ToCBOR maps text to CBOR text strings and other byte strings to CBOR byte
// strings.
func ToCBOR(v bencode.Value) ([]byte, error) {
	return encMode.Marshal(ToNative(v))
}

// FromJSON builds a bencode tree from JSON. Comments and trailing commas
// are accepted. Numbers must be integers in the int64 range; booleans,
// null and fractions have no bencode form and are rejected.
func FromJSON(data []byte) (bencode.Value, error) {
	dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
	dec.UseNumber()

	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("json: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("json: trailing data after value")
	}
	return fromNative(tree, "$")
}

func fromNative(x any, path string) (bencode.Value, error) {
	switch val := x.(type) {
	case json.Number:
		n, err := strconv.ParseInt(val.String(), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: %s is not a 64-bit integer", path, val)
		}
		return bencode.NewInt(n), nil
	case string:
		return bencode.NewText(val), nil
	case []any:
		list := bencode.NewList()
		for i, elem := range val {
			v, err := fromNative(elem, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			list.Add(v)
		}
		return list, nil
	case map[string]any:
		if encoded, ok := val[BytesKey].(string); ok && len(val) == 1 {
			raw, err := base64.StdEncoding.DecodeString(encoded)
			if err != nil {
				return nil, fmt.Errorf("%s: invalid %s: %w", path, BytesKey, err)
			}
			return bencode.NewBytes(raw), nil
		}
		dict := bencode.NewDict()
		for key, elem := range val {
			v, err := fromNative(elem, path+"."+key)
			if err != nil {
				return nil, err
			}
			dict.Add(key, v)
		}
		return dict, nil
	case nil:
		return nil, fmt.Errorf("%s: null has no bencode form", path)
	default:
		return nil, fmt.Errorf("%s: %T has no bencode form", path, x)
	}
}
