package wire

import (
	"testing"

	"qtrpc/schema"
)

// doubledHook stores twice the byte count and recovers it by halving —
// exercises a size_ref_hook whose Forward/Inverse are not the identity.
var doubledHook = schema.SizeRefHook{
	Forward: func(n int) int64 { return int64(n) * 2 },
	Inverse: func(v int64) int { return int(v) / 2 },
}

// TestBinaryFieldSizeOfThroughHook unit-tests FieldSizeOf/SizeRefHook in
// isolation: a size_ref field's stored value passes through a non-identity
// hook in both directions. The automatic fill_size_ref pass itself (S2) is
// exercised end-to-end by framer.TestFillFieldSizeRefsAutomatic; here the
// size_ref field is seeded by hand to pin down FieldSizeOf's contract on
// its own, one layer below the framer.
func TestBinaryFieldSizeOfThroughHook(t *testing.T) {
	d := schema.Dict("Sized", "",
		schema.Field("bodyLen", schema.Uint16),
		schema.Field("body", schema.StringT).WithSizeRef("bodyLen", doubledHook),
		schema.Field("tail", schema.Int8),
	)
	codec := NewBinary()

	v := schema.New(d)
	if err := v.SetField("body", "hi"); err != nil {
		t.Fatalf("SetField(body): %v", err)
	}
	if err := v.SetField("tail", int8(9)); err != nil {
		t.Fatalf("SetField(tail): %v", err)
	}
	n, err := codec.FieldSizeOf(d, v, "body")
	if err != nil {
		t.Fatalf("FieldSizeOf: %v", err)
	}
	if n != 2 {
		t.Fatalf("FieldSizeOf(body) = %d, want 2", n)
	}
	if err := v.SetField("bodyLen", int(doubledHook.Forward(n))); err != nil {
		t.Fatalf("SetField(bodyLen): %v", err)
	}
	if bl, _ := v.Field("bodyLen"); bl.Int64() != 4 {
		t.Fatalf("bodyLen = %d, want 4 (2 bytes * hook factor 2)", bl.Int64())
	}

	buf, err := codec.Encode(d, v)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, rem, err := codec.Decode(d, buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(rem) != 0 {
		t.Errorf("Decode left %d unconsumed bytes", len(rem))
	}
	body, _ := decoded.Field("body")
	if body.Str() != "hi" {
		t.Errorf("body = %q, want %q", body.Str(), "hi")
	}
	tail, _ := decoded.Field("tail")
	if tail.Int64() != 9 {
		t.Errorf("tail = %d, want 9", tail.Int64())
	}
}

func TestBinaryTopLevelLastFieldConsumesToEnd(t *testing.T) {
	d := schema.Dict("Tail", "",
		schema.Field("id", schema.Uint8),
		schema.Field("payload", schema.StringT),
	)
	codec := NewBinary()
	v := schema.New(d)
	if err := v.SetField("id", 5); err != nil {
		t.Fatalf("SetField(id): %v", err)
	}
	if err := v.SetField("payload", "remaining bytes"); err != nil {
		t.Fatalf("SetField(payload): %v", err)
	}

	buf, err := codec.Encode(d, v)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, rem, err := codec.Decode(d, buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(rem) != 0 {
		t.Errorf("unconsumed = %d, want 0", len(rem))
	}
	payload, _ := decoded.Field("payload")
	if payload.Str() != "remaining bytes" {
		t.Errorf("payload = %q", payload.Str())
	}
}
