package schema

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func personDesc() *Descriptor {
	return Dict("Person", "",
		Field("name", StringT),
		Tagged(1, "age", Int32).Optional().WithDefault(int32(0)),
		Field("tags", Array(StringT, 0)).Optional(),
	)
}

func TestValueAssignReduceRoundTrip(t *testing.T) {
	d := personDesc()
	v := New(d)
	native := map[string]any{
		"name": "ada",
		"age":  int64(36),
		"tags": []any{"math", "computing"},
	}
	if err := v.Assign(native); err != nil {
		t.Fatalf("Assign: %v", err)
	}
	reduced, err := v.Reduce(false)
	if err != nil {
		t.Fatalf("Reduce: %v", err)
	}
	if diff := cmp.Diff(native, reduced); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestValueDefaultFillsWhenOmitted(t *testing.T) {
	d := personDesc()
	v := New(d)
	if err := v.Assign(map[string]any{"name": "grace"}); err != nil {
		t.Fatalf("Assign: %v", err)
	}
	reduced, err := v.Reduce(false)
	if err != nil {
		t.Fatalf("Reduce: %v", err)
	}
	m := reduced.(map[string]any)
	if m["age"] != int32(0) {
		t.Errorf("age = %v, want default 0", m["age"])
	}
	if _, ok := m["tags"]; ok {
		t.Errorf("optional unset array field should be omitted, got %v", m["tags"])
	}
}

func TestValueRequiredFieldUninitialized(t *testing.T) {
	d := Dict("Required", "", Field("x", Int32))
	v := New(d)
	if _, err := v.Reduce(false); err == nil {
		t.Fatal("expected UninitializedFieldError for unset required field")
	}
	if reduced, err := v.Reduce(true); err != nil {
		t.Fatalf("Reduce(allowUninit): %v", err)
	} else if m := reduced.(map[string]any); m["x"] != Uninitialized {
		t.Errorf("x = %v, want Uninitialized sentinel", m["x"])
	}
}

func TestValueRangeCheck(t *testing.T) {
	v := New(Int8)
	if err := v.Assign(200); err == nil {
		t.Fatal("expected range error assigning 200 to Int8")
	}
	if err := v.Assign(100); err != nil {
		t.Fatalf("Assign(100): %v", err)
	}
}

func TestValueUnknownFieldRejected(t *testing.T) {
	d := personDesc()
	v := New(d)
	err := v.Assign(map[string]any{"name": "x", "nickname": "y"})
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestRefDictSelfReferentialStruct(t *testing.T) {
	node := Register(Dict("Node", "",
		Field("value", Int32),
		Field("next", RefDict("Node")).Optional(),
	))
	v := New(node)
	err := v.Assign(map[string]any{
		"value": int32(1),
		"next": map[string]any{
			"value": int32(2),
		},
	})
	if err != nil {
		t.Fatalf("Assign nested ref dict: %v", err)
	}
	reduced, err := v.Reduce(false)
	if err != nil {
		t.Fatalf("Reduce: %v", err)
	}
	m := reduced.(map[string]any)
	next := m["next"].(map[string]any)
	if next["value"] != int64(2) {
		t.Errorf("next.value = %v, want 2", next["value"])
	}
}
