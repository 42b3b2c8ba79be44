// Package canonical implements json-stable-v1, the deterministic JSON
// serialization used before hashing and signing.
//
// Two values with the same content serialize to the same bytes regardless
// of how they were built: object keys are sorted recursively, arrays keep
// their order, and scalars are encoded exactly as JavaScript's
// JSON.stringify encodes them. Hash and signature functions are
// byte-sensitive, so every replica must agree on this encoding.
package canonical

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"

	"github.com/roach88/plos/internal/value"
)

// Scheme is the algorithm descriptor recorded in segment manifests.
const Scheme = "json-stable-v1"

// Marshal produces the canonical serialization of v.
// CRITICAL: This is the ONLY serialization that may feed a hash or signature.
//
// Differences from json.Marshal:
//  1. Object keys sorted by UTF-16 code units at every level
//  2. No HTML escaping (< > & are NOT escaped)
//  3. U+2028 and U+2029 are emitted literally
func Marshal(v value.Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeValue(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MarshalAny canonicalizes an arbitrary Go value, honouring its json tags.
// The value is encoded with encoding/json and then transformed with the
// RFC 8785 scheme, which coincides with json-stable-v1 for any value that
// round-trips through JSON.
func MarshalAny(v any) ([]byte, error) {
	if val, ok := v.(value.Value); ok {
		return Marshal(val)
	}

	intermediate, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical: pre-marshal failed: %w", err)
	}

	out, err := jcs.Transform(intermediate)
	if err != nil {
		return nil, fmt.Errorf("canonical: transform failed: %w", err)
	}
	return out, nil
}

// String is a convenience wrapper returning the canonical form as a string.
func String(v value.Value) (string, error) {
	b, err := Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func writeValue(buf *bytes.Buffer, v value.Value) error {
	switch val := v.(type) {
	case nil, value.Null:
		buf.WriteString("null")
	case value.Bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case value.Number:
		b, err := value.Marshal(val)
		if err != nil {
			return fmt.Errorf("number: %w", err)
		}
		buf.Write(b)
	case value.String:
		b, err := marshalString(string(val))
		if err != nil {
			return err
		}
		buf.Write(b)
	case value.Array:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeValue(buf, elem); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case value.Object:
		buf.WriteByte('{')
		for i, k := range val.SortedKeys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := marshalString(k)
			if err != nil {
				return fmt.Errorf("key %q: %w", k, err)
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := writeValue(buf, val[k]); err != nil {
				return fmt.Errorf("value for key %q: %w", k, err)
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
	return nil
}

// marshalString encodes s the way JSON.stringify does: only quote,
// backslash and control characters are escaped.
func marshalString(s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false) // CRITICAL: <, >, & must NOT be escaped
	if err := enc.Encode(s); err != nil {
		return nil, err
	}

	// json.Encoder adds trailing newline, remove it
	out := bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})

	// encoding/json escapes U+2028 and U+2029 for JSONP safety;
	// JSON.stringify does not.
	return unescapeLineSeparators(out), nil
}

// unescapeLineSeparators rewrites \u2028 and \u2029 escapes into the literal
// characters. An escape preceded by an odd run of backslashes is literal text
// (\\u2028) and is left alone.
func unescapeLineSeparators(data []byte) []byte {
	if !bytes.Contains(data, []byte(`\u202`)) {
		return data
	}

	out := make([]byte, 0, len(data))
	backslashes := 0
	for i := 0; i < len(data); i++ {
		c := data[i]
		if c == '\\' && backslashes%2 == 0 && i+5 < len(data) &&
			data[i+1] == 'u' && data[i+2] == '2' && data[i+3] == '0' && data[i+4] == '2' &&
			(data[i+5] == '8' || data[i+5] == '9') {
			if data[i+5] == '8' {
				out = append(out, "\u2028"...)
			} else {
				out = append(out, "\u2029"...)
			}
			i += 5
			backslashes = 0
			continue
		}
		if c == '\\' {
			backslashes++
		} else {
			backslashes = 0
		}
		out = append(out, c)
	}
	return out
}
