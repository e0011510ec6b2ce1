// Package schema implements the Type System: a declarative, recursive model
// of message structures (scalars, strings/buffers, arrays, maps, dicts,
// variants) with uniform Assign/Construct/Reduce operations converting
// between native Go values and a canonical in-memory dictionary form.
//
// Following the "field descriptors instead of metaprogramming" design note,
// a schema is built from Descriptor values — plain data, not Go types —
// registered by name so that cyclic, self-referential Dicts are expressible
// without inlined ownership cycles.
package schema

// Kind identifies the shape of a schema node.
type Kind int

const (
	KindInt8 Kind = iota
	KindInt16
	KindInt32
	KindInt64
	KindUint8
	KindUint16
	KindUint32
	KindUint64
	KindFloat32
	KindFloat64
	KindBool
	KindString
	KindBuffer
	KindArray
	KindMap
	KindDict
	KindVariant
)

func (k Kind) String() string {
	switch k {
	case KindInt8:
		return "Int8"
	case KindInt16:
		return "Int16"
	case KindInt32:
		return "Int32"
	case KindInt64:
		return "Int64"
	case KindUint8:
		return "Uint8"
	case KindUint16:
		return "Uint16"
	case KindUint32:
		return "Uint32"
	case KindUint64:
		return "Uint64"
	case KindFloat32:
		return "Float32"
	case KindFloat64:
		return "Float64"
	case KindBool:
		return "Bool"
	case KindString:
		return "String"
	case KindBuffer:
		return "Buffer"
	case KindArray:
		return "Array"
	case KindMap:
		return "Map"
	case KindDict:
		return "Dict"
	case KindVariant:
		return "Variant"
	default:
		return "Unknown"
	}
}

// IsScalar reports whether k is one of the fixed-width numeric/bool kinds.
func (k Kind) IsScalar() bool {
	return k <= KindBool
}

// IsInteger reports whether k is a signed or unsigned integer kind.
func (k Kind) IsInteger() bool {
	return k >= KindInt8 && k <= KindUint64
}

// IsUnsigned reports whether k is an unsigned integer kind.
func (k Kind) IsUnsigned() bool {
	switch k {
	case KindUint8, KindUint16, KindUint32, KindUint64:
		return true
	default:
		return false
	}
}

// ByteWidth returns the fixed encoded width of a scalar kind, or 0 for
// variable-width kinds (String, Buffer, Array, Map, Dict, Variant).
func (k Kind) ByteWidth() int {
	switch k {
	case KindInt8, KindUint8, KindBool:
		return 1
	case KindInt16, KindUint16:
		return 2
	case KindInt32, KindUint32, KindFloat32:
		return 4
	case KindInt64, KindUint64, KindFloat64:
		return 8
	default:
		return 0
	}
}

// Range returns the legal [min, max] of an integer kind, inclusive.
// Per the design notes, Uint ranges are interpreted as [0, 2^N-1], not
// [0, 2^N] — the off-by-one present in the source is not carried over.
func (k Kind) Range() (min, max int64) {
	switch k {
	case KindInt8:
		return -128, 127
	case KindUint8:
		return 0, 255
	case KindInt16:
		return -32768, 32767
	case KindUint16:
		return 0, 65535
	case KindInt32:
		return -2147483648, 2147483647
	case KindUint32:
		return 0, 4294967295
	case KindInt64:
		return -1 << 63, 1<<63 - 1
	case KindUint64:
		// Uint64's true max (2^64-1) overflows int64; callers needing the
		// exact bound use RangeUint64 instead.
		return 0, 1<<63 - 1
	default:
		return 0, 0
	}
}

// RangeUint64 returns the legal [0, max] for KindUint64 without overflowing
// into a signed representation.
func RangeUint64() uint64 {
	return ^uint64(0)
}
