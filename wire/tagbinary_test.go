package wire

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"qtrpc/schema"
)

func tagBinaryFixture() *schema.Descriptor {
	return schema.Dict("Frame", "",
		schema.Tagged(0, "seq", schema.Int64),
		schema.Tagged(1, "name", schema.StringT),
		schema.Tagged(2, "scores", schema.Array(schema.Int32, 0)).Optional(),
		schema.Tagged(3, "meta", schema.Map(schema.StringT, schema.StringT)).Optional(),
		schema.Tagged(20, "flag", schema.Bool).Optional(), // tag >= 15 exercises the extension byte
	)
}

// TestTagBinaryRoundTrip is S1: encode then decode returns an equal
// canonical value and consumes every byte.
func TestTagBinaryRoundTrip(t *testing.T) {
	codec := NewTagBinary(true)
	d := tagBinaryFixture()
	v := schema.New(d)
	native := map[string]any{
		"seq":    int64(7),
		"name":   "hello",
		"scores": []any{int64(1), int64(2), int64(3)},
		"flag":   true,
	}
	if err := v.Assign(native); err != nil {
		t.Fatalf("Assign: %v", err)
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

	reduced, err := decoded.Reduce(false)
	if err != nil {
		t.Fatalf("Reduce: %v", err)
	}
	if diff := cmp.Diff(native, reduced); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestTagBinaryUnknownTagSkippedByDefault(t *testing.T) {
	writer := schema.Dict("Wide", "",
		schema.Tagged(0, "seq", schema.Int64),
		schema.Tagged(9, "extra", schema.StringT),
	)
	reader := schema.Dict("Narrow", "",
		schema.Tagged(0, "seq", schema.Int64),
	)
	v := schema.New(writer)
	if err := v.Assign(map[string]any{"seq": int64(1), "extra": "ignored by reader"}); err != nil {
		t.Fatalf("Assign: %v", err)
	}
	buf, err := NewTagBinary(true).Encode(writer, v)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	lenient := NewTagBinary(true)
	decoded, _, err := lenient.Decode(reader, buf)
	if err != nil {
		t.Fatalf("lenient Decode: %v", err)
	}
	seq, _ := decoded.Field("seq")
	if seq.Int64() != 1 {
		t.Errorf("seq = %d, want 1", seq.Int64())
	}

	strict := NewTagBinary(false)
	if _, _, err := strict.Decode(reader, buf); err == nil {
		t.Fatal("expected strict codec to reject the unknown tag")
	}
}
