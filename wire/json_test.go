package wire

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"qtrpc/schema"
)

func TestJSONRoundTrip(t *testing.T) {
	d := schema.Dict("Event", "",
		schema.Field("name", schema.StringT),
		schema.Field("count", schema.Int64),
		schema.Field("ratio", schema.Float64),
		schema.Field("items", schema.Array(schema.StringT, 0)).Optional(),
	)
	codec := NewJSON()
	v := schema.New(d)
	native := map[string]any{
		"name":  "tick",
		"count": int64(5),
		"ratio": 1.5,
		"items": []any{"a", "b"},
	}
	if err := v.Assign(native); err != nil {
		t.Fatalf("Assign: %v", err)
	}
	buf, err := codec.Encode(d, v)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, _, err := codec.Decode(d, buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	reduced, err := decoded.Reduce(false)
	if err != nil {
		t.Fatalf("Reduce: %v", err)
	}
	if diff := cmp.Diff(native, reduced); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestJSONIntegerStaysIntegerNotFloat(t *testing.T) {
	d := schema.Dict("N", "", schema.Field("count", schema.Int64))
	codec := NewJSON()
	v := schema.New(d)
	if err := v.SetField("count", int64(9007199254740993)); err != nil {
		t.Fatalf("SetField: %v", err)
	}
	buf, err := codec.Encode(d, v)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, _, err := codec.Decode(d, buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	count, _ := decoded.Field("count")
	if count.Int64() != 9007199254740993 {
		t.Errorf("count = %d, want 9007199254740993 (lost precision via float64 path)", count.Int64())
	}
}
