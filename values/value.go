package values

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Value is the closed set of variants a wire payload can decode into.
// Every well-formed payload decodes into exactly one variant; consumption
// sites switch exhaustively over the concrete types below.
//
// Array and Object values are immutable once constructed: constructors copy
// their inputs and accessors never expose internal slices or maps.
type Value interface {
	// Kind returns the variant name used in decode failures ("string",
	// "long", "object", ...).
	Kind() string

	json.Marshaler

	isValue()
}

// NullV is the database null value.
type NullV struct{}

// BoolV is a boolean value.
type BoolV bool

// StringV is a string value.
type StringV string

// LongV is a 64-bit integer value.
type LongV int64

// DoubleV is a double-precision float value.
type DoubleV float64

// BytesV is a binary value, carried on the wire as base64 under the
// "@bytes" tag.
type BytesV []byte

// TimeV is a nanosecond-precision instant, carried on the wire under the
// "@ts" tag.
type TimeV struct {
	Time HighPrecisionTime
}

// RefV is a reference to a document, collection, or database, carried on
// the wire under the "@ref" tag.
type RefV struct {
	ID         string
	Collection *RefV
	Database   *RefV
}

// ArrayV is an ordered sequence of values.
type ArrayV struct {
	elems []Value
}

// ObjectV maps string keys to values. Keys are unique and insertion order
// is preserved so payloads round-trip byte-for-byte; order carries no
// semantic meaning.
type ObjectV struct {
	keys  []string
	index map[string]Value
}

func (NullV) isValue()   {}
func (BoolV) isValue()   {}
func (StringV) isValue() {}
func (LongV) isValue()   {}
func (DoubleV) isValue() {}
func (BytesV) isValue()  {}
func (TimeV) isValue()   {}
func (RefV) isValue()    {}
func (ArrayV) isValue()  {}
func (ObjectV) isValue() {}

// Kind implementations name the variant for decode failures.

func (NullV) Kind() string   { return "null" }
func (BoolV) Kind() string   { return "bool" }
func (StringV) Kind() string { return "string" }
func (LongV) Kind() string   { return "long" }
func (DoubleV) Kind() string { return "double" }
func (BytesV) Kind() string  { return "bytes" }
func (TimeV) Kind() string   { return "time" }
func (RefV) Kind() string    { return "ref" }
func (ArrayV) Kind() string  { return "array" }
func (ObjectV) Kind() string { return "object" }

// NewArray constructs an immutable array value from the given elements.
func NewArray(elems ...Value) ArrayV {
	copied := make([]Value, len(elems))
	copy(copied, elems)
	return ArrayV{elems: copied}
}

// Len returns the number of elements.
func (a ArrayV) Len() int { return len(a.elems) }

// At returns the element at index i and whether the index is in range.
func (a ArrayV) At(i int) (Value, bool) {
	if i < 0 || i >= len(a.elems) {
		return nil, false
	}
	return a.elems[i], true
}

// Elems returns a copy of the element slice.
func (a ArrayV) Elems() []Value {
	copied := make([]Value, len(a.elems))
	copy(copied, a.elems)
	return copied
}

// ObjectEntry is a single key/value pair for NewObject.
type ObjectEntry struct {
	Key   string
	Value Value
}

// Entry builds an ObjectEntry.
func Entry(key string, value Value) ObjectEntry {
	return ObjectEntry{Key: key, Value: value}
}

// NewObject constructs an immutable object value. A repeated key replaces
// the earlier value but keeps the original position.
func NewObject(entries ...ObjectEntry) ObjectV {
	o := ObjectV{index: make(map[string]Value, len(entries))}
	for _, e := range entries {
		if _, exists := o.index[e.Key]; !exists {
			o.keys = append(o.keys, e.Key)
		}
		o.index[e.Key] = e.Value
	}
	return o
}

// Get returns the value stored under key and whether the key is present.
func (o ObjectV) Get(key string) (Value, bool) {
	v, ok := o.index[key]
	return v, ok
}

// Keys returns a copy of the key list in insertion order.
func (o ObjectV) Keys() []string {
	copied := make([]string, len(o.keys))
	copy(copied, o.keys)
	return copied
}

// Len returns the number of keys.
func (o ObjectV) Len() int { return len(o.keys) }

// With returns a copy of the object with key set to value, appended to the
// key order when new. The receiver is not modified.
func (o ObjectV) With(key string, value Value) ObjectV {
	entries := make([]ObjectEntry, 0, len(o.keys)+1)
	for _, k := range o.keys {
		entries = append(entries, ObjectEntry{Key: k, Value: o.index[k]})
	}
	entries = append(entries, ObjectEntry{Key: key, Value: value})
	return NewObject(entries...)
}

// MarshalJSON implementations re-emit the wire forms, inverting Decode.

// MarshalJSON emits JSON null.
func (NullV) MarshalJSON() ([]byte, error) { return []byte("null"), nil }

// MarshalJSON emits a JSON boolean.
func (v BoolV) MarshalJSON() ([]byte, error) { return json.Marshal(bool(v)) }

// MarshalJSON emits a JSON string.
func (v StringV) MarshalJSON() ([]byte, error) { return json.Marshal(string(v)) }

// MarshalJSON emits a JSON integer.
func (v LongV) MarshalJSON() ([]byte, error) { return json.Marshal(int64(v)) }

// MarshalJSON emits a JSON number.
func (v DoubleV) MarshalJSON() ([]byte, error) { return json.Marshal(float64(v)) }

// MarshalJSON emits the tagged base64 form.
func (v BytesV) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{"@bytes": base64.StdEncoding.EncodeToString(v)})
}

// MarshalJSON emits the tagged timestamp form.
func (v TimeV) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{"@ts": v.Time.Format()})
}

// MarshalJSON emits the tagged reference form.
func (v RefV) MarshalJSON() ([]byte, error) {
	inner := map[string]any{"id": v.ID}
	if v.Collection != nil {
		inner["collection"] = *v.Collection
	}
	if v.Database != nil {
		inner["database"] = *v.Database
	}
	// Stable key order for round-trip fidelity.
	var buf bytes.Buffer
	buf.WriteString(`{"@ref":{`)
	keys := make([]string, 0, len(inner))
	for k := range inner {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, _ := json.Marshal(k)
		vb, err := json.Marshal(inner[k])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteString("}}")
	return buf.Bytes(), nil
}

// MarshalJSON emits a JSON array in element order.
func (v ArrayV) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, e := range v.elems {
		if i > 0 {
			buf.WriteByte(',')
		}
		b, err := e.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// MarshalJSON emits a JSON object in key insertion order. Objects whose
// first key starts with '@' are wrapped in the "@obj" escape so they cannot
// be mistaken for a wire tag when decoded back.
func (v ObjectV) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	escape := len(v.keys) > 0 && strings.HasPrefix(v.keys[0], "@")
	if escape {
		buf.WriteString(`{"@obj":`)
	}
	buf.WriteByte('{')
	for i, k := range v.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, _ := json.Marshal(k)
		vb, err := v.index[k].MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	if escape {
		buf.WriteByte('}')
	}
	return buf.Bytes(), nil
}

// Equal reports deep structural equality of two values.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case NullV:
		_, ok := b.(NullV)
		return ok
	case BoolV:
		bv, ok := b.(BoolV)
		return ok && av == bv
	case StringV:
		bv, ok := b.(StringV)
		return ok && av == bv
	case LongV:
		bv, ok := b.(LongV)
		return ok && av == bv
	case DoubleV:
		bv, ok := b.(DoubleV)
		return ok && av == bv
	case BytesV:
		bv, ok := b.(BytesV)
		return ok && bytes.Equal(av, bv)
	case TimeV:
		bv, ok := b.(TimeV)
		return ok && av.Time.Equal(bv.Time)
	case RefV:
		bv, ok := b.(RefV)
		return ok && refEqual(&av, &bv)
	case ArrayV:
		bv, ok := b.(ArrayV)
		if !ok || len(av.elems) != len(bv.elems) {
			return false
		}
		for i := range av.elems {
			if !Equal(av.elems[i], bv.elems[i]) {
				return false
			}
		}
		return true
	case ObjectV:
		bv, ok := b.(ObjectV)
		if !ok || len(av.keys) != len(bv.keys) {
			return false
		}
		for k, v := range av.index {
			other, present := bv.index[k]
			if !present || !Equal(v, other) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func refEqual(a, b *RefV) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID && refEqual(a.Collection, b.Collection) && refEqual(a.Database, b.Database)
}

// String renders a compact JSON form for logs and error messages.
func (v RefV) String() string    { return marshalToString(v) }
func (v ArrayV) String() string  { return marshalToString(v) }
func (v ObjectV) String() string { return marshalToString(v) }

func marshalToString(v Value) string {
	b, err := v.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("<unprintable %s>", v.Kind())
	}
	return string(b)
}
