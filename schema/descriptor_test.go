package schema

import "testing"

func TestGetFieldsMergesBasesDepthFirst(t *testing.T) {
	base := Dict("Base", "", Field("id", Int32))
	derived := &Descriptor{
		Kind:   KindDict,
		Name:   "Derived",
		Bases:  []*Descriptor{base},
		Fields: []FieldDescriptor{Field("name", StringT)},
	}
	fields, err := derived.GetFields()
	if err != nil {
		t.Fatalf("GetFields: %v", err)
	}
	if len(fields) != 2 || fields[0].Name != "id" || fields[1].Name != "name" {
		t.Fatalf("unexpected field order: %+v", fields)
	}
}

func TestGetFieldsDetectsCycle(t *testing.T) {
	a := &Descriptor{Kind: KindDict, Name: "A"}
	b := &Descriptor{Kind: KindDict, Name: "B", Bases: []*Descriptor{a}}
	a.Bases = []*Descriptor{b}
	if _, err := a.GetFields(); err == nil {
		t.Fatal("expected cyclic inheritance error")
	}
}

func TestFieldByTagAndDisplay(t *testing.T) {
	d := Dict("Packet", "",
		Tagged(0, "seq", Int64),
		Field("body", StringT).WithDisplay("payload"),
	)
	if f, ok := d.FieldByTag(0); !ok || f.Name != "seq" {
		t.Fatalf("FieldByTag(0) = %+v, %v", f, ok)
	}
	if f, ok := d.FieldByName("payload"); !ok || f.Name != "body" {
		t.Fatalf("FieldByName(display alias) = %+v, %v", f, ok)
	}
}

func TestByteWidthAndRange(t *testing.T) {
	if w := KindUint16.ByteWidth(); w != 2 {
		t.Errorf("Uint16 ByteWidth = %d, want 2", w)
	}
	if w := KindString.ByteWidth(); w != 0 {
		t.Errorf("String ByteWidth = %d, want 0 (variable)", w)
	}
	lo, hi := KindInt8.Range()
	if lo != -128 || hi != 127 {
		t.Errorf("Int8 range = [%d,%d], want [-128,127]", lo, hi)
	}
}
