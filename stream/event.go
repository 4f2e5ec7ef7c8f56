package stream

import (
	"github.com/c360/docstream/values"
)

// Well-known event types on the notification wire.
const (
	// TypeStart opens every stream; the snapshot stage requires it as
	// the first event.
	TypeStart = "start"
	// TypeError marks a server-reported error event. Most are
	// recoverable and forwarded as ordinary values.
	TypeError = "error"
	// TypeSnapshot is synthesized by the snapshot stage, never received.
	TypeSnapshot = "snapshot"
)

// PermissionDeniedCode is the error code the server sends when the stream
// loses authorization. Unlike other domain errors the server will not
// recover mid-stream, so it terminates the pipeline.
const PermissionDeniedCode = "permission denied"

// Field decoders over the wire event shape.
var (
	typeField  = values.At(values.StringField(), values.Key("type"))
	txnField   = values.At(values.LongField(), values.Key("txn"))
	tsField    = values.At(values.LongField(), values.Key("ts"))
	eventField = values.At(values.RawField(), values.Key("event"))
	dataField  = values.At(values.RawField(), values.Key("data"))
	codeField  = values.At(values.StringField(), values.Key("code"))
	descField  = values.At(values.StringField(), values.Key("description"))
)

// EventType extracts the mandatory type field of an event.
func EventType(v values.Value) (string, error) {
	return typeField.Get(v)
}

// EventTxn extracts the optional txn field of an event.
func EventTxn(v values.Value) (int64, bool) {
	txn, err := txnField.Get(v)
	return txn, err == nil
}

// ErrorInfo describes the error object embedded in an error-typed event.
type ErrorInfo struct {
	Code        string
	Description string
}

// errorInfo reads the embedded error object from an error-typed event.
// The object lives under "event", with "data" as the legacy location.
// A malformed error object yields a zero ErrorInfo; classification then
// treats the event as a recoverable domain error.
func errorInfo(v values.Value) ErrorInfo {
	body, err := eventField.Get(v)
	if err != nil {
		body, err = dataField.Get(v)
		if err != nil {
			return ErrorInfo{}
		}
	}
	info, err := values.Zip(
		codeField,
		optionalString(descField),
		func(code, desc string) ErrorInfo {
			return ErrorInfo{Code: code, Description: desc}
		},
	).Get(body)
	if err != nil {
		return ErrorInfo{}
	}
	return info
}

// optionalString turns a missing or mistyped string field into "".
func optionalString(f values.Field[string]) values.Field[string] {
	return values.MapField(
		values.RawField(),
		func(v values.Value) string {
			s, err := f.Get(v)
			if err != nil {
				return ""
			}
			return s
		},
	)
}
