package values

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_Scalars(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Value
	}{
		{"null", `null`, NullV{}},
		{"bool", `false`, BoolV(false)},
		{"string", `"hi"`, StringV("hi")},
		{"integer decodes as long", `42`, LongV(42)},
		{"large integer stays exact", `9007199254740993`, LongV(9007199254740993)},
		{"decimal decodes as double", `2.5`, DoubleV(2.5)},
		{"exponent decodes as double", `1e3`, DoubleV(1000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeBytes([]byte(tt.in))
			require.NoError(t, err)
			assert.True(t, Equal(tt.want, got), "got %v", got)
		})
	}
}

func TestDecode_TaggedValues(t *testing.T) {
	coll := RefV{ID: "spells", Collection: &RefV{ID: "collections"}}

	tests := []struct {
		name string
		in   string
		want Value
	}{
		{"timestamp", `{"@ts":"1970-01-01T00:00:00.000000005Z"}`, TimeV{Time: TimeFromParts(0, 5)}},
		{"bytes", `{"@bytes":"AQID"}`, BytesV{1, 2, 3}},
		{"bare ref", `{"@ref":{"id":"42"}}`, RefV{ID: "42"}},
		{
			"nested ref",
			`{"@ref":{"id":"181388642046968320","collection":{"@ref":{"id":"spells","collection":{"@ref":{"id":"collections"}}}}}}`,
			RefV{ID: "181388642046968320", Collection: &coll},
		},
		{"escaped object", `{"@obj":{"@name":"x"}}`, NewObject(Entry("@name", StringV("x")))},
		{"two-key object with tag-like key stays plain", `{"@ts":1,"other":2}`, NewObject(Entry("@ts", LongV(1)), Entry("other", LongV(2)))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeBytes([]byte(tt.in))
			require.NoError(t, err)
			assert.True(t, Equal(tt.want, got), "got %v", got)
		})
	}
}

func TestDecode_PreservesKeyOrder(t *testing.T) {
	in := `{"type":"version","txn":1234,"event":{"z":1,"a":2,"m":3}}`

	got, err := DecodeBytes([]byte(in))
	require.NoError(t, err)

	obj, ok := got.(ObjectV)
	require.True(t, ok)
	assert.Equal(t, []string{"type", "txn", "event"}, obj.Keys())

	// Round trip reproduces the input byte for byte.
	b, err := json.Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, in, string(b))
}

func TestDecode_Rejects(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"truncated object", `{"a":`},
		{"trailing data", `{} {}`},
		{"bad ts payload", `{"@ts":"not a time"}`},
		{"non-string ts payload", `{"@ts":12}`},
		{"bad base64", `{"@bytes":"!!!"}`},
		{"ref missing id", `{"@ref":{"collection":{"@ref":{"id":"c"}}}}`},
		{"ref id not string", `{"@ref":{"id":7}}`},
		{"obj payload not object", `{"@obj":[1]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeBytes([]byte(tt.in))
			assert.Error(t, err)
		})
	}
}

func TestDecode_FromReader(t *testing.T) {
	got, err := Decode(strings.NewReader(`[1,{"@bytes":"AQID"},"x"]`))
	require.NoError(t, err)

	want := NewArray(LongV(1), BytesV{1, 2, 3}, StringV("x"))
	assert.True(t, Equal(want, got))
}
