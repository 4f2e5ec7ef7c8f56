// Package values implements the typed in-memory model for the database's
// untyped, self-describing wire values, plus the combinators application
// code uses to interrogate them.
//
// # Value Model
//
// Value is a closed sum over the ten wire variants: NullV, BoolV, StringV,
// LongV, DoubleV, BytesV, TimeV, RefV, ArrayV, and ObjectV. Decode resolves
// the wire's self-describing tags into typed variants:
//
//	{"@ts": "2024-01-02T03:04:05.000000000Z"}  → TimeV
//	{"@bytes": "aGVsbG8="}                      → BytesV
//	{"@ref": {"id": "42", "collection": ...}}   → RefV
//	{"@obj": {"@weird key": 1}}                 → ObjectV (escape hatch)
//
// ObjectV preserves key insertion order so payloads round-trip through
// Decode and MarshalJSON unchanged; order has no semantic meaning.
//
// # High-Precision Time
//
// HighPrecisionTime carries nanosecond precision as (seconds, nanos) with
// the offset normalized into [0, 1e9). Format and ParseHighPrecisionTime
// are mutual inverses at full precision.
//
// # Field Combinators
//
// Field[T] is a composable extractor over a Value tree. Extraction either
// yields a T or a *DecodeError naming the failing path and expected kind —
// never a success of the wrong type. Combinators nest freely:
//
//	codes := values.At(
//	    values.Collect(values.At(values.StringField(), values.Key("code"))),
//	    values.Key("errors"),
//	)
//	result, err := codes.Get(payload)
package values
