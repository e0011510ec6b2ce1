// Package wire implements the Serializer Interface: a polymorphic codec
// over the Type System. Four codecs ship: Binary (C-layout, length-prefixed,
// size-ref fields), TagBinary (self-describing tag+type headers), JSON (for
// text interop), and Passthrough (materializes canonical form for
// pretty-printing/tests without producing bytes).
package wire

import "qtrpc/schema"

// Codec is the Serializer Interface: encode(type, value) -> bytes,
// decode(type, bytes) -> (value, remaining bytes). A codec declares whether
// it supports field_size_of/offset_of (needed by the Packet Framer to fill
// size-refs); only codecs that do may serialize messages declaring
// size-refs.
type Codec interface {
	// Name identifies the codec for field-level serializer overrides and
	// diagnostics.
	Name() string

	// SupportsFieldSizeOf reports whether FieldSizeOf/OffsetOf are
	// implemented. Binary supports it; TagBinary, JSON and Passthrough do
	// not.
	SupportsFieldSizeOf() bool

	// SupportsMap reports whether this codec can encode/decode Map nodes.
	// Binary does not.
	SupportsMap() bool

	// Encode serializes v (whose descriptor is d) to bytes.
	Encode(d *schema.Descriptor, v *schema.Value) ([]byte, error)

	// Decode deserializes the first value of type d out of data, returning
	// the value and the unconsumed remainder.
	Decode(d *schema.Descriptor, data []byte) (v *schema.Value, remainder []byte, err error)

	// FieldSizeOf returns the current encoded byte size of the named
	// (possibly dotted) field path within v. Used by fill_size_ref and by
	// the Packet Framer.
	FieldSizeOf(d *schema.Descriptor, v *schema.Value, path string) (int, error)

	// OffsetOf returns the byte offset of the named field path within v's
	// encoding, summing the widths of all preceding fields.
	OffsetOf(d *schema.Descriptor, v *schema.Value, path string) (int, error)
}

// ByRegisteredName resolves a codec by the name used in field-level
// serializer overrides and Dict default-serializer declarations.
func ByRegisteredName(name string) Codec {
	switch name {
	case "binary":
		return NewBinary()
	case "tagbinary", "jce":
		return NewTagBinary(true)
	case "json":
		return NewJSON()
	case "passthrough", "python":
		return NewPassthrough()
	default:
		return nil
	}
}
