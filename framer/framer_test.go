package framer

import (
	"encoding/binary"
	"testing"

	"qtrpc/schema"
	"qtrpc/wire"
)

func lenPrefixed() *schema.Descriptor {
	return schema.Dict("Packet", "len",
		schema.Field("len", schema.Uint32),
		schema.Field("seq", schema.Int64),
		schema.Field("body", schema.StringT),
	)
}

// TestFillThenNextPacketLength is the S3 shape byte-at-a-time: fill a
// packet's length field after encode, then recover it field by field as
// more bytes trickle in off a simulated TCP stream.
func TestFillThenNextPacketLength(t *testing.T) {
	d := lenPrefixed()
	codec := wire.NewBinary()
	v := schema.New(d)
	if err := v.SetField("len", 0); err != nil {
		t.Fatalf("SetField(len): %v", err)
	}
	if err := v.SetField("seq", int64(42)); err != nil {
		t.Fatalf("SetField(seq): %v", err)
	}
	if err := v.SetField("body", "payload"); err != nil {
		t.Fatalf("SetField(body): %v", err)
	}
	buf, err := codec.Encode(d, v)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := FillSizeRefs(d, schema.IdentityHook, binary.BigEndian, buf, len(buf)); err != nil {
		t.Fatalf("FillSizeRefs: %v", err)
	}

	for i := 0; i < len(buf); i++ {
		_, ok, err := NextPacketLength(d, schema.IdentityHook, binary.BigEndian, buf[:i])
		if err != nil {
			t.Fatalf("NextPacketLength at %d bytes: %v", i, err)
		}
		if i < 4 && ok {
			t.Fatalf("NextPacketLength reported ready with only %d header bytes", i)
		}
	}
	n, ok, err := NextPacketLength(d, schema.IdentityHook, binary.BigEndian, buf)
	if err != nil || !ok {
		t.Fatalf("NextPacketLength(full buf) = %d, %v, %v", n, ok, err)
	}
	if n != len(buf) {
		t.Errorf("NextPacketLength = %d, want %d", n, len(buf))
	}
}

// doubledHook stores twice the byte count and recovers it by halving —
// exercises a size_ref_hook whose Forward/Inverse are not the identity.
var doubledHook = schema.SizeRefHook{
	Forward: func(n int) int64 { return int64(n) * 2 },
	Inverse: func(v int64) int { return int(v) / 2 },
}

// TestFillFieldSizeRefsAutomatic is S2: a field declared with WithSizeRef
// never needs its size_ref field seeded by the caller — FillFieldSizeRefs
// measures the referred field's encoded length and writes it through the
// hook on its own, from a value that leaves bodyLen entirely unset.
func TestFillFieldSizeRefsAutomatic(t *testing.T) {
	d := schema.Dict("Sized", "",
		schema.Field("bodyLen", schema.Uint16),
		schema.Field("body", schema.StringT).WithSizeRef("bodyLen", doubledHook),
		schema.Field("tail", schema.Int8),
	)
	codec := wire.NewBinary()

	v := schema.New(d)
	if err := v.SetField("body", "hi"); err != nil {
		t.Fatalf("SetField(body): %v", err)
	}
	if err := v.SetField("tail", int8(9)); err != nil {
		t.Fatalf("SetField(tail): %v", err)
	}

	if err := FillFieldSizeRefs(codec, d, v); err != nil {
		t.Fatalf("FillFieldSizeRefs: %v", err)
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

func TestHeaderOffsetRejectsVariableWidthPredecessor(t *testing.T) {
	d := schema.Dict("Bad", "len",
		schema.Field("name", schema.StringT), // variable-width, precedes len
		schema.Field("len", schema.Uint32),
	)
	if _, _, err := HeaderOffset(d); err == nil {
		t.Fatal("expected error: a variable-width field precedes the length field")
	}
}

func TestHeaderOffsetMissingLengthField(t *testing.T) {
	d := schema.Dict("NoLen", "")
	if _, _, err := HeaderOffset(d); err == nil {
		t.Fatal("expected error: dict declares no length_field")
	}
}
