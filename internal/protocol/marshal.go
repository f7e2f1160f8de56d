package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// TypeLookup resolves the declared type of a field by key.
// It returns TypeUnknown when the type model has no entry for the key.
type TypeLookup func(key string) DataType

// Encode renders device data as a JSON object, one member per entry, in
// slice order. The type tag decides the JSON kind of each member:
//   - text, date: string
//   - float, double: number
//   - int, bool, enum: integer
//   - struct, array: the value is embedded as JSON and must be valid
//
// An entry with TypeUnknown fails with InvalidType.
func Encode(data []DeviceData) (json.RawMessage, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, d := range data {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		val, err := encodeValue(d)
		if err != nil {
			return nil, err
		}
		if !utf8.ValidString(d.Key) {
			return nil, Errorf(InvalidParam, "key %q is not valid UTF-8", d.Key)
		}
		key, err := json.Marshal(d.Key)
		if err != nil {
			return nil, Errorf(InvalidParam, "key %q: %v", d.Key, err)
		}
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return json.RawMessage(buf.Bytes()), nil
}

func encodeValue(d DeviceData) ([]byte, error) {
	switch d.Type {
	case TypeText, TypeDate:
		// json.Marshal would silently replace invalid bytes with U+FFFD.
		if !utf8.ValidString(d.Value) {
			return nil, Errorf(InvalidParam, "%s value of %q is not valid UTF-8", d.Type, d.Key)
		}
		return json.Marshal(d.Value)
	case TypeFloat, TypeDouble:
		return encodeFloat(d)
	case TypeBool:
		switch strings.ToLower(strings.TrimSpace(d.Value)) {
		case "true":
			return []byte("1"), nil
		case "false":
			return []byte("0"), nil
		}
		return []byte(strconv.FormatInt(atoi(d.Value), 10)), nil
	case TypeInt, TypeEnum:
		return []byte(strconv.FormatInt(atoi(d.Value), 10)), nil
	case TypeStruct, TypeArray:
		var buf bytes.Buffer
		if err := json.Compact(&buf, []byte(d.Value)); err != nil {
			return nil, Errorf(InvalidJSON, "%s value of %q: %v", d.Type, d.Key, err)
		}
		return buf.Bytes(), nil
	default:
		return nil, Errorf(InvalidType, "key %q has type %s", d.Key, d.Type)
	}
}

// encodeFloat keeps a value that is already a JSON number verbatim so that
// decoding reproduces the same text.
func encodeFloat(d DeviceData) ([]byte, error) {
	s := strings.TrimSpace(d.Value)
	if isJSONNumber(s) {
		return []byte(s), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		var numErr *strconv.NumError
		if !errors.As(err, &numErr) || numErr.Err != strconv.ErrRange {
			f = 0
		}
	}
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return nil, Errorf(ParamRangeOverflow, "key %q value %q is not a finite number", d.Key, d.Value)
	}
	return []byte(strconv.FormatFloat(f, 'g', -1, 64)), nil
}

func isJSONNumber(s string) bool {
	if s == "" {
		return false
	}
	if s[0] != '-' && (s[0] < '0' || s[0] > '9') {
		return false
	}
	return json.Valid([]byte(s))
}

// atoi parses a leading decimal integer the way C atoi does: surrounding
// garbage is ignored and an unparsable string is 0. Out of range values clamp.
func atoi(s string) int64 {
	s = strings.TrimLeft(s, " \t\n\r\v\f")
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		var numErr *strconv.NumError
		if errors.As(err, &numErr) && numErr.Err == strconv.ErrRange {
			return n
		}
		return 0
	}
	return n
}

// Decode turns a wire params value into device data.
//
// An object yields one entry per member, in wire order. Numbers keep their
// literal text and strings are unquoted; both take their type from lookup.
// Objects and arrays carry their compact JSON text and are typed Struct or
// Array unless lookup declares the other of the two. Booleans and nulls are
// skipped.
//
// An array yields one key-only entry (TypeUnknown, empty value) per string
// element; this is the shape of a property read request.
func Decode(raw []byte, lookup TypeLookup) ([]DeviceData, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, nil
	}
	if lookup == nil {
		lookup = func(string) DataType { return TypeUnknown }
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, Errorf(InvalidJSON, "params: %v", err)
	}

	var out []DeviceData
	switch tok {
	case json.Delim('{'):
		out, err = decodeObject(dec, lookup)
	case json.Delim('['):
		out, err = decodeKeys(dec)
	default:
		return nil, NewError(InvalidJSON, "params must be an object or an array")
	}
	if err != nil {
		return nil, err
	}

	if _, err := dec.Token(); err != io.EOF {
		return nil, NewError(InvalidJSON, "trailing data after params")
	}
	return out, nil
}

func decodeObject(dec *json.Decoder, lookup TypeLookup) ([]DeviceData, error) {
	var out []DeviceData
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, Errorf(InvalidJSON, "params: %v", err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, NewError(InvalidJSON, "params: expected member name")
		}

		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, Errorf(InvalidJSON, "params member %q: %v", key, err)
		}

		d, keep, err := decodeValue(key, value, lookup)
		if err != nil {
			return nil, err
		}
		if keep {
			out = append(out, d)
		}
	}
	if _, err := dec.Token(); err != nil {
		return nil, Errorf(InvalidJSON, "params: %v", err)
	}
	return out, nil
}

func decodeValue(key string, value json.RawMessage, lookup TypeLookup) (DeviceData, bool, error) {
	d := DeviceData{Key: key}
	switch value[0] {
	case '{', '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, value); err != nil {
			return d, false, Errorf(InvalidJSON, "params member %q: %v", key, err)
		}
		d.Value = buf.String()
		d.Type = lookup(key)
		if d.Type != TypeStruct && d.Type != TypeArray {
			d.Type = TypeStruct
			if value[0] == '[' {
				d.Type = TypeArray
			}
		}
	case '"':
		if err := json.Unmarshal(value, &d.Value); err != nil {
			return d, false, Errorf(InvalidJSON, "params member %q: %v", key, err)
		}
		d.Type = lookup(key)
	case 't', 'f', 'n':
		return d, false, nil
	default:
		d.Value = string(value)
		d.Type = lookup(key)
	}

	if err := d.Validate(); err != nil {
		return d, false, err
	}
	return d, true, nil
}

func decodeKeys(dec *json.Decoder) ([]DeviceData, error) {
	var out []DeviceData
	for dec.More() {
		var elem json.RawMessage
		if err := dec.Decode(&elem); err != nil {
			return nil, Errorf(InvalidJSON, "params: %v", err)
		}
		var key string
		if elem[0] != '"' || json.Unmarshal(elem, &key) != nil {
			continue
		}
		d := DeviceData{Type: TypeUnknown, Key: key}
		if err := d.Validate(); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if _, err := dec.Token(); err != nil {
		return nil, Errorf(InvalidJSON, "params: %v", err)
	}
	return out, nil
}
