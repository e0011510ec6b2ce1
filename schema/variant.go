package schema

import (
	"sort"

	"qtrpc/rpcerr"
)

// VariantKind discriminates the tagged sum backing a dynamically-typed
// Variant node, per the design note replacing the source's runtime
// "is it a list? is it a dict?" type introspection.
type VariantKind int

const (
	VNull VariantKind = iota
	VBool
	VInt
	VFloat
	VText
	VBytes
	VList
	VMap
)

// Variant is a JSON-ish open tree: only codecs that are structurally
// self-describing (TagBinary, JSON, Passthrough) accept it.
type Variant struct {
	Kind VariantKind

	b    bool
	i    int64
	f    float64
	text string
	data []byte
	list []*Variant
	m    map[string]*Variant
	keys []string // insertion order for m, since Go maps don't preserve it
}

func NullVariant() *Variant                 { return &Variant{Kind: VNull} }
func BoolVariant(v bool) *Variant           { return &Variant{Kind: VBool, b: v} }
func IntVariant(v int64) *Variant           { return &Variant{Kind: VInt, i: v} }
func FloatVariant(v float64) *Variant       { return &Variant{Kind: VFloat, f: v} }
func TextVariant(v string) *Variant         { return &Variant{Kind: VText, text: v} }
func BytesVariant(v []byte) *Variant        { return &Variant{Kind: VBytes, data: v} }
func ListVariant(v ...*Variant) *Variant    { return &Variant{Kind: VList, list: v} }
func MapVariant() *Variant                  { return &Variant{Kind: VMap, m: map[string]*Variant{}} }

// Put inserts a key into a VMap Variant, preserving first-insertion order.
func (v *Variant) Put(key string, val *Variant) {
	if _, exists := v.m[key]; !exists {
		v.keys = append(v.keys, key)
	}
	v.m[key] = val
}

// Get reads a key from a VMap Variant.
func (v *Variant) Get(key string) (*Variant, bool) {
	val, ok := v.m[key]
	return val, ok
}

// Keys returns a VMap Variant's keys in insertion order.
func (v *Variant) Keys() []string { return append([]string(nil), v.keys...) }

// Accessors for the tagged payload; callers must check Kind first.
func (v *Variant) BoolValue() bool       { return v.b }
func (v *Variant) IntValue() int64       { return v.i }
func (v *Variant) FloatValue() float64   { return v.f }
func (v *Variant) TextValue() string     { return v.text }
func (v *Variant) BytesValue() []byte    { return v.data }
func (v *Variant) ListValue() []*Variant { return v.list }

// VariantFromNative recursively builds a Variant from a native Go value:
// nil, bool, any numeric kind, string, []byte, []any, map[string]any, or an
// already-built *Variant.
func VariantFromNative(native any) (*Variant, error) {
	switch x := native.(type) {
	case nil:
		return NullVariant(), nil
	case *Variant:
		return x, nil
	case bool:
		return BoolVariant(x), nil
	case string:
		return TextVariant(x), nil
	case []byte:
		return BytesVariant(x), nil
	case []any:
		items := make([]*Variant, 0, len(x))
		for _, it := range x {
			iv, err := VariantFromNative(it)
			if err != nil {
				return nil, err
			}
			items = append(items, iv)
		}
		return ListVariant(items...), nil
	case map[string]any:
		mv := MapVariant()
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			cv, err := VariantFromNative(x[k])
			if err != nil {
				return nil, err
			}
			mv.Put(k, cv)
		}
		return mv, nil
	default:
		f, err := toFloat(native)
		if err != nil {
			return nil, rpcerr.NewTypeError("", "value %v (%T) is not representable as a Variant", native, native)
		}
		if i := int64(f); float64(i) == f {
			return IntVariant(i), nil
		}
		return FloatVariant(f), nil
	}
}

// Reduce emits the Variant's canonical native form recursively: nil, bool,
// int64/float64, string, []byte, []any, or map[string]any.
func (v *Variant) Reduce() any {
	switch v.Kind {
	case VNull:
		return nil
	case VBool:
		return v.b
	case VInt:
		return v.i
	case VFloat:
		return v.f
	case VText:
		return v.text
	case VBytes:
		return v.data
	case VList:
		out := make([]any, len(v.list))
		for i, it := range v.list {
			out[i] = it.Reduce()
		}
		return out
	case VMap:
		out := make(map[string]any, len(v.m))
		for _, k := range v.keys {
			out[k] = v.m[k].Reduce()
		}
		return out
	default:
		return nil
	}
}
