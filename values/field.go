package values

import (
	"fmt"
	"strings"
)

// Segment is one step of a field path: an object key or an array index.
type Segment struct {
	key     string
	index   int
	isIndex bool
}

// Key builds an object-member segment.
func Key(k string) Segment { return Segment{key: k} }

// Index builds an array-element segment.
func Index(i int) Segment { return Segment{index: i, isIndex: true} }

func (s Segment) String() string {
	if s.isIndex {
		return fmt.Sprintf("[%d]", s.index)
	}
	return s.key
}

// Path is an ordered sequence of segments from the root of a value tree.
type Path []Segment

func (p Path) String() string {
	if len(p) == 0 {
		return "<root>"
	}
	var b strings.Builder
	for i, s := range p {
		if i > 0 && !s.isIndex {
			b.WriteByte('.')
		}
		b.WriteString(s.String())
	}
	return b.String()
}

func (p Path) child(s Segment) Path {
	childPath := make(Path, len(p), len(p)+1)
	copy(childPath, p)
	return append(childPath, s)
}

// DecodeError is a structured field-extraction failure naming the path at
// which extraction failed and the kind that was expected there.
type DecodeError struct {
	Path     Path
	Expected string
	Actual   string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: expected %s, got %s", e.Path, e.Expected, e.Actual)
}

// Field extracts a typed result from a Value tree. Fields are pure: they
// either produce a T or a *DecodeError, and never succeed with a value of
// the wrong kind. Compose them with At, MapField, Zip, and Collect.
type Field[T any] struct {
	run func(v Value, at Path) (T, error)
}

// Get runs the field against the root of a value tree.
func (f Field[T]) Get(v Value) (T, error) {
	return f.run(v, nil)
}

// At returns a field that descends through segs before running f. The
// descent failure, if any, names the deepest path that could be followed.
func At[T any](f Field[T], segs ...Segment) Field[T] {
	return Field[T]{run: func(v Value, at Path) (T, error) {
		var zero T
		for _, seg := range segs {
			child, err := step(v, at, seg)
			if err != nil {
				return zero, err
			}
			v = child
			at = at.child(seg)
		}
		return f.run(v, at)
	}}
}

func step(v Value, at Path, seg Segment) (Value, error) {
	if seg.isIndex {
		arr, ok := v.(ArrayV)
		if !ok {
			return nil, &DecodeError{Path: at, Expected: "array", Actual: v.Kind()}
		}
		elem, ok := arr.At(seg.index)
		if !ok {
			return nil, &DecodeError{Path: at.child(seg), Expected: "element", Actual: "missing"}
		}
		return elem, nil
	}
	obj, ok := v.(ObjectV)
	if !ok {
		return nil, &DecodeError{Path: at, Expected: "object", Actual: v.Kind()}
	}
	member, ok := obj.Get(seg.key)
	if !ok {
		return nil, &DecodeError{Path: at.child(seg), Expected: "value", Actual: "missing"}
	}
	return member, nil
}

// MapField transforms a successful extraction; failures pass through
// untouched.
func MapField[T, U any](f Field[T], fn func(T) U) Field[U] {
	return Field[U]{run: func(v Value, at Path) (U, error) {
		t, err := f.run(v, at)
		if err != nil {
			var zero U
			return zero, err
		}
		return fn(t), nil
	}}
}

// Zip runs two fields against the same node and combines their results.
// It fails with a's failure first, then b's.
func Zip[A, B, C any](a Field[A], b Field[B], combine func(A, B) C) Field[C] {
	return Field[C]{run: func(v Value, at Path) (C, error) {
		var zero C
		av, err := a.run(v, at)
		if err != nil {
			return zero, err
		}
		bv, err := b.run(v, at)
		if err != nil {
			return zero, err
		}
		return combine(av, bv), nil
	}}
}

// Collect applies f to every element of an array node in order, failing
// fast on the lowest-indexed element that does not decode.
func Collect[T any](f Field[T]) Field[[]T] {
	return Field[[]T]{run: func(v Value, at Path) ([]T, error) {
		arr, ok := v.(ArrayV)
		if !ok {
			return nil, &DecodeError{Path: at, Expected: "array", Actual: v.Kind()}
		}
		out := make([]T, 0, arr.Len())
		for i, elem := range arr.elems {
			t, err := f.run(elem, at.child(Index(i)))
			if err != nil {
				return nil, err
			}
			out = append(out, t)
		}
		return out, nil
	}}
}

func primitive[T any](expected string, convert func(Value) (T, bool)) Field[T] {
	return Field[T]{run: func(v Value, at Path) (T, error) {
		t, ok := convert(v)
		if !ok {
			var zero T
			return zero, &DecodeError{Path: at, Expected: expected, Actual: v.Kind()}
		}
		return t, nil
	}}
}

// StringField decodes a StringV node.
func StringField() Field[string] {
	return primitive("string", func(v Value) (string, bool) {
		s, ok := v.(StringV)
		return string(s), ok
	})
}

// LongField decodes a LongV node.
func LongField() Field[int64] {
	return primitive("long", func(v Value) (int64, bool) {
		n, ok := v.(LongV)
		return int64(n), ok
	})
}

// DoubleField decodes a DoubleV node, accepting LongV with widening.
func DoubleField() Field[float64] {
	return primitive("double", func(v Value) (float64, bool) {
		switch n := v.(type) {
		case DoubleV:
			return float64(n), true
		case LongV:
			return float64(n), true
		default:
			return 0, false
		}
	})
}

// BoolField decodes a BoolV node.
func BoolField() Field[bool] {
	return primitive("bool", func(v Value) (bool, bool) {
		b, ok := v.(BoolV)
		return bool(b), ok
	})
}

// TimeField decodes a TimeV node.
func TimeField() Field[HighPrecisionTime] {
	return primitive("time", func(v Value) (HighPrecisionTime, bool) {
		t, ok := v.(TimeV)
		return t.Time, ok
	})
}

// RefField decodes a RefV node.
func RefField() Field[RefV] {
	return primitive("ref", func(v Value) (RefV, bool) {
		r, ok := v.(RefV)
		return r, ok
	})
}

// ObjectField decodes an ObjectV node.
func ObjectField() Field[ObjectV] {
	return primitive("object", func(v Value) (ObjectV, bool) {
		o, ok := v.(ObjectV)
		return o, ok
	})
}

// RawField accepts any node unchanged.
func RawField() Field[Value] {
	return Field[Value]{run: func(v Value, _ Path) (Value, error) {
		return v, nil
	}}
}
