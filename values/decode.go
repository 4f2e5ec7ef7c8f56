package values

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Decode reads exactly one wire value from r. Well-formed input always
// yields exactly one Value variant; anything else is a decode error.
//
// Objects are read token by token so key insertion order survives the
// round trip, and the self-describing tags ("@ts", "@bytes", "@ref",
// "@obj") are resolved into their typed variants.
func Decode(r io.Reader) (Value, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("trailing data after value")
	}
	return v, nil
}

// DecodeBytes reads exactly one wire value from b.
func DecodeBytes(b []byte) (Value, error) {
	return Decode(bytes.NewReader(b))
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("read token: %w", err)
	}
	return decodeFromToken(dec, tok)
}

func decodeFromToken(dec *json.Decoder, tok json.Token) (Value, error) {
	switch t := tok.(type) {
	case nil:
		return NullV{}, nil
	case bool:
		return BoolV(t), nil
	case string:
		return StringV(t), nil
	case json.Number:
		return decodeNumber(t)
	case json.Delim:
		switch t {
		case '[':
			return decodeArray(dec)
		case '{':
			return decodeObject(dec)
		default:
			return nil, fmt.Errorf("unexpected delimiter %q", t.String())
		}
	default:
		return nil, fmt.Errorf("unexpected token %v", tok)
	}
}

func decodeNumber(n json.Number) (Value, error) {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		i, err := n.Int64()
		if err != nil {
			return nil, fmt.Errorf("integer %q out of range: %w", s, err)
		}
		return LongV(i), nil
	}
	f, err := n.Float64()
	if err != nil {
		return nil, fmt.Errorf("number %q: %w", s, err)
	}
	return DoubleV(f), nil
}

func decodeArray(dec *json.Decoder) (Value, error) {
	var elems []Value
	for dec.More() {
		v, err := decodeValue(dec)
		if err != nil {
			return nil, err
		}
		elems = append(elems, v)
	}
	if _, err := dec.Token(); err != nil { // closing ']'
		return nil, fmt.Errorf("unterminated array: %w", err)
	}
	return ArrayV{elems: elems}, nil
}

func decodeObject(dec *json.Decoder) (Value, error) {
	obj := ObjectV{index: make(map[string]Value)}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("read object key: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("object key is not a string: %v", keyTok)
		}
		var v Value
		if key == "@obj" {
			// The escape suppresses tag resolution one level down, so an
			// escaped object whose keys look like tags survives intact.
			v, err = decodeEscapedValue(dec)
		} else {
			v, err = decodeValue(dec)
		}
		if err != nil {
			return nil, err
		}
		if _, exists := obj.index[key]; !exists {
			obj.keys = append(obj.keys, key)
		}
		obj.index[key] = v
	}
	if _, err := dec.Token(); err != nil { // closing '}'
		return nil, fmt.Errorf("unterminated object: %w", err)
	}
	return resolveTag(obj)
}

// decodeEscapedValue decodes the payload of an "@obj" key. An object
// payload keeps its top-level keys literal; everything nested below it is
// decoded normally.
func decodeEscapedValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("read token: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return decodeFromToken(dec, tok)
	}

	obj := ObjectV{index: make(map[string]Value)}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("read object key: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("object key is not a string: %v", keyTok)
		}
		v, err := decodeValue(dec)
		if err != nil {
			return nil, err
		}
		if _, exists := obj.index[key]; !exists {
			obj.keys = append(obj.keys, key)
		}
		obj.index[key] = v
	}
	if _, err := dec.Token(); err != nil { // closing '}'
		return nil, fmt.Errorf("unterminated object: %w", err)
	}
	return obj, nil
}

// resolveTag converts a single-key tagged object into its typed variant.
// Untagged objects pass through unchanged.
func resolveTag(obj ObjectV) (Value, error) {
	if len(obj.keys) != 1 {
		return obj, nil
	}
	inner := obj.index[obj.keys[0]]
	switch obj.keys[0] {
	case "@ts":
		s, ok := inner.(StringV)
		if !ok {
			return nil, fmt.Errorf("@ts payload is %s, want string", inner.Kind())
		}
		ts, err := ParseHighPrecisionTime(string(s))
		if err != nil {
			return nil, fmt.Errorf("@ts payload: %w", err)
		}
		return TimeV{Time: ts}, nil
	case "@bytes":
		s, ok := inner.(StringV)
		if !ok {
			return nil, fmt.Errorf("@bytes payload is %s, want string", inner.Kind())
		}
		raw, err := base64.StdEncoding.DecodeString(string(s))
		if err != nil {
			return nil, fmt.Errorf("@bytes payload: %w", err)
		}
		return BytesV(raw), nil
	case "@ref":
		o, ok := inner.(ObjectV)
		if !ok {
			return nil, fmt.Errorf("@ref payload is %s, want object", inner.Kind())
		}
		return decodeRef(o)
	case "@obj":
		o, ok := inner.(ObjectV)
		if !ok {
			return nil, fmt.Errorf("@obj payload is %s, want object", inner.Kind())
		}
		return o, nil
	default:
		return obj, nil
	}
}

func decodeRef(obj ObjectV) (RefV, error) {
	ref := RefV{}
	idV, ok := obj.Get("id")
	if !ok {
		return RefV{}, fmt.Errorf("@ref payload missing id")
	}
	id, ok := idV.(StringV)
	if !ok {
		return RefV{}, fmt.Errorf("@ref id is %s, want string", idV.Kind())
	}
	ref.ID = string(id)

	for _, field := range []struct {
		key  string
		dest **RefV
	}{
		{"collection", &ref.Collection},
		{"database", &ref.Database},
	} {
		v, present := obj.Get(field.key)
		if !present {
			continue
		}
		nested, ok := v.(RefV)
		if !ok {
			return RefV{}, fmt.Errorf("@ref %s is %s, want ref", field.key, v.Kind())
		}
		*field.dest = &nested
	}
	return ref, nil
}
