package schema

import (
	"fmt"

	"qtrpc/rpcerr"
)

// Value is the polymorphic struct value described in the Type System: a
// single object exposing Assign/Construct/Reduce regardless of the
// underlying Kind, mirroring the Python source's StructTypeBase contract.
type Value struct {
	Desc *Descriptor

	// Exactly one of these is meaningful, selected by Desc.Kind (resolved).
	scalar  any            // numeric or bool payload
	str     string         // String/Buffer payload
	arr     []*Value       // Array payload
	mapKeys []*Value       // Map payload, parallel to mapVals, preserving insertion order
	mapVals []*Value
	dict    map[string]*Value // Dict payload, keyed by field name
	variant *Variant          // Variant payload

	assigned bool // true once Assign/Construct has set a value
}

// New creates an empty Value of the given descriptor. Composite values
// materialize their children lazily on first access, per the Lifecycle
// invariant.
func New(d *Descriptor) *Value {
	return &Value{Desc: d.resolve()}
}

func (v *Value) kind() Kind { return v.Desc.resolve().Kind }

// Assign sets v from a native Go value, validating type and range; for
// composites it recurses into children.
func (v *Value) Assign(native any) error {
	d := v.Desc.resolve()
	switch d.Kind {
	case KindDict:
		m, ok := native.(map[string]any)
		if !ok {
			return rpcerr.NewTypeError(d.Name, "Assign expects map[string]any for a Dict, got %T", native)
		}
		return v.assignDict(m)
	case KindArray:
		return v.assignArray(native)
	case KindMap:
		return v.assignMap(native)
	case KindVariant:
		vv, err := VariantFromNative(native)
		if err != nil {
			return err
		}
		v.variant = vv
		v.assigned = true
		return nil
	case KindString, KindBuffer:
		s, err := toStringValue(native)
		if err != nil {
			return err
		}
		v.str = s
		v.assigned = true
		return nil
	case KindBool:
		b, ok := native.(bool)
		if !ok {
			return rpcerr.NewTypeError("", "expected bool, got %T", native)
		}
		v.scalar = b
		v.assigned = true
		return nil
	default: // numeric
		return v.assignNumber(native)
	}
}

func toStringValue(native any) (string, error) {
	switch x := native.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	default:
		return "", rpcerr.NewTypeError("", "expected string or []byte, got %T", native)
	}
}

func (v *Value) assignDict(m map[string]any) error {
	fields, err := v.Desc.GetFields()
	if err != nil {
		return rpcerr.NewSchemaError("%s", err.Error())
	}
	v.dict = make(map[string]*Value, len(fields))
	consumed := map[string]bool{}
	for _, f := range fields {
		fv := New(f.Type)
		if raw, ok := m[f.Name]; ok {
			if err := fv.Assign(raw); err != nil {
				return err
			}
			consumed[f.Name] = true
		} else if f.HasDefault {
			if err := fv.Assign(f.Default); err != nil {
				return err
			}
		}
		v.dict[f.Name] = fv
	}
	for k := range m {
		if !consumed[k] {
			return rpcerr.NewSchemaError("unknown field %q for dict %s", k, v.Desc.Name)
		}
	}
	v.assigned = true
	return nil
}

func (v *Value) assignArray(native any) error {
	d := v.Desc.resolve()
	elems, ok := native.([]any)
	if !ok {
		return rpcerr.NewTypeError("", "expected []any for Array, got %T", native)
	}
	if d.ArraySize != 0 && len(elems) != d.ArraySize {
		return rpcerr.NewRangeError("", "fixed array size %d, got %d elements", d.ArraySize, len(elems))
	}
	v.arr = make([]*Value, 0, len(elems))
	for _, e := range elems {
		ev := New(d.Elem)
		if err := ev.Assign(e); err != nil {
			return err
		}
		v.arr = append(v.arr, ev)
	}
	v.assigned = true
	return nil
}

func (v *Value) assignMap(native any) error {
	d := v.Desc.resolve()
	m, ok := native.(map[any]any)
	if !ok {
		return rpcerr.NewTypeError("", "expected map[any]any for Map, got %T", native)
	}
	v.mapKeys = v.mapKeys[:0]
	v.mapVals = v.mapVals[:0]
	for k, val := range m {
		kv := New(d.Key)
		if err := kv.Assign(k); err != nil {
			return err
		}
		vv := New(d.Val)
		if err := vv.Assign(val); err != nil {
			return err
		}
		v.mapKeys = append(v.mapKeys, kv)
		v.mapVals = append(v.mapVals, vv)
	}
	v.assigned = true
	return nil
}

func (v *Value) assignNumber(native any) error {
	d := v.Desc.resolve()
	f, err := toFloat(native)
	if err != nil {
		return err
	}
	if d.Kind == KindFloat32 || d.Kind == KindFloat64 {
		v.scalar = f
		v.assigned = true
		return nil
	}
	i := int64(f)
	switch x := native.(type) { // take wide integers exactly, not via float64
	case int:
		i = int64(x)
	case int64:
		i = x
	case uint:
		i = int64(x)
	case uint64:
		i = int64(x)
	}
	if float64(i) != f {
		return rpcerr.NewTypeError("", "expected integer value for %s, got %v", d.Kind, native)
	}
	if d.Kind == KindUint64 {
		if i < 0 {
			return rpcerr.NewRangeError("", "value %d out of range for Uint64", i)
		}
	} else {
		lo, hi := d.Kind.Range()
		if i < lo || i > hi {
			return rpcerr.NewRangeError("", "value %d out of range [%d,%d] for %s", i, lo, hi, d.Kind)
		}
	}
	v.scalar = i
	v.assigned = true
	return nil
}

func toFloat(native any) (float64, error) {
	switch x := native.(type) {
	case int:
		return float64(x), nil
	case int8:
		return float64(x), nil
	case int16:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case uint:
		return float64(x), nil
	case uint8:
		return float64(x), nil
	case uint16:
		return float64(x), nil
	case uint32:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	case float32:
		return float64(x), nil
	case float64:
		return x, nil
	default:
		return 0, rpcerr.NewTypeError("", "expected numeric value, got %T", native)
	}
}

// Construct sets v from a codec-produced canonical form: scalars as
// numeric/string, arrays as []any, dicts as map[string]any keyed by field
// name. This differs from Assign only where a codec's canonical form
// differs from the user-facing form.
func (v *Value) Construct(canonical any) error {
	return v.Assign(canonical)
}

// Reduce is the inverse of Construct: it emits the canonical form, filling
// defaults, omitting unset optional fields, and raising
// UninitializedFieldError unless allowUninit substitutes a sentinel.
// Assigned or decoded integer scalars reduce to int64 and floats to
// float64, whatever their declared width; a filled-in default is returned
// as declared.
func (v *Value) Reduce(allowUninit bool) (any, error) {
	d := v.Desc.resolve()
	switch d.Kind {
	case KindDict:
		return v.reduceDict(allowUninit)
	case KindArray:
		return v.reduceArray(allowUninit)
	case KindMap:
		return v.reduceMap(allowUninit)
	case KindVariant:
		if v.variant == nil {
			return nil, nil
		}
		return v.variant.Reduce(), nil
	case KindString, KindBuffer:
		if !v.assigned {
			if allowUninit {
				return Uninitialized, nil
			}
			return nil, &rpcerr.UninitializedFieldError{Field: d.Name}
		}
		return v.str, nil
	default:
		if !v.assigned {
			if allowUninit {
				return Uninitialized, nil
			}
			return nil, &rpcerr.UninitializedFieldError{Field: d.Name}
		}
		return v.scalar, nil
	}
}

// uninitializedSentinel is returned by Reduce(allowUninit=true) in place of
// an error, for diagnostics (e.g. pretty-printing a partially built value).
type uninitializedSentinel struct{}

func (uninitializedSentinel) String() string { return "<uninitialized>" }

// Uninitialized is the sentinel value substituted for an unset required
// field when Reduce is called with allowUninit=true.
var Uninitialized any = uninitializedSentinel{}

func (v *Value) reduceDict(allowUninit bool) (any, error) {
	d := v.Desc.resolve()
	fields, err := d.GetFields()
	if err != nil {
		return nil, rpcerr.NewSchemaError("%s", err.Error())
	}
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		fv, ok := v.dict[f.Name]
		if !ok || !fv.assigned {
			switch {
			case f.HasDefault:
				out[f.Name] = f.Default
			case f.Type.resolve().Kind == KindArray && f.Required:
				// An empty required array is emitted as [], not "unset".
				out[f.Name] = []any{}
			case !f.Required:
				continue
			case allowUninit:
				out[f.Name] = Uninitialized
			default:
				return nil, &rpcerr.UninitializedFieldError{Field: f.Name}
			}
			continue
		}
		reduced, err := fv.Reduce(allowUninit)
		if err != nil {
			return nil, err
		}
		out[f.Name] = reduced
	}
	return out, nil
}

func (v *Value) reduceArray(allowUninit bool) (any, error) {
	out := make([]any, 0, len(v.arr))
	for _, ev := range v.arr {
		r, err := ev.Reduce(allowUninit)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (v *Value) reduceMap(allowUninit bool) (any, error) {
	type kv struct {
		k any
		v any
	}
	pairs := make([]kv, 0, len(v.mapKeys))
	for i := range v.mapKeys {
		kr, err := v.mapKeys[i].Reduce(allowUninit)
		if err != nil {
			return nil, err
		}
		vr, err := v.mapVals[i].Reduce(allowUninit)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, kv{kr, vr})
	}
	return pairs, nil
}

// NeedReduce reports whether anything was assigned (directly, or via a
// non-empty Dict payload), matching the source's need_reduce().
func (v *Value) NeedReduce() bool {
	if v.assigned {
		return true
	}
	return len(v.dict) > 0
}

// IsSet reports whether v carries any assigned payload: a scalar/string
// assignment, at least one array element, at least one map pair, a
// non-empty dict, or a Variant. Used by codecs to decide whether an
// optional field should be skipped at encode time.
func (v *Value) IsSet() bool {
	if v.assigned {
		return true
	}
	if len(v.dict) > 0 || len(v.arr) > 0 || len(v.mapKeys) > 0 {
		return true
	}
	return v.variant != nil
}

// FieldRaw returns a Dict value's child by name without materializing it
// if absent, unlike Field which always creates the child.
func (v *Value) FieldRaw(name string) (*Value, bool) {
	fv, ok := v.dict[name]
	return fv, ok
}

// Field returns the named (or display-aliased) child of a Dict value.
func (v *Value) Field(name string) (*Value, error) {
	d := v.Desc.resolve()
	if d.Kind != KindDict {
		return nil, rpcerr.NewSchemaError("Field() called on non-Dict %s", d.Kind)
	}
	fd, ok := d.FieldByName(name)
	if !ok {
		return nil, rpcerr.NewSchemaError("dict %s has no field %q", d.Name, name)
	}
	if v.dict == nil {
		v.dict = map[string]*Value{}
	}
	fv, ok := v.dict[fd.Name]
	if !ok {
		fv = New(fd.Type)
		v.dict[fd.Name] = fv
	}
	return fv, nil
}

// SetField assigns a native value to the named field of a Dict value.
func (v *Value) SetField(name string, native any) error {
	fv, err := v.Field(name)
	if err != nil {
		return err
	}
	return fv.Assign(native)
}

// Elements returns the children of an Array value in order.
func (v *Value) Elements() []*Value { return v.arr }

// Append adds an element to an Array value, failing if the array is fixed-
// size and already full.
func (v *Value) Append(native any) error {
	d := v.Desc.resolve()
	if d.Kind != KindArray {
		return rpcerr.NewSchemaError("Append() called on non-Array %s", d.Kind)
	}
	if d.ArraySize != 0 && len(v.arr) >= d.ArraySize {
		return rpcerr.NewRangeError("", "fixed array of size %d is full", d.ArraySize)
	}
	ev := New(d.Elem)
	if err := ev.Assign(native); err != nil {
		return err
	}
	v.arr = append(v.arr, ev)
	v.assigned = true
	return nil
}

// SetInt64 stores a decoded signed integer payload directly, bypassing
// Assign's range validation (the wire format already constrains the width).
func (v *Value) SetInt64(n int64) { v.scalar = n; v.assigned = true }

// SetUint64 stores a decoded unsigned 64-bit payload. Kept distinct from
// SetInt64 so KindUint64 values above math.MaxInt64 round-trip exactly.
func (v *Value) SetUint64(n uint64) { v.scalar = int64(n); v.assigned = true }

// Uint64 returns a KindUint64 scalar reinterpreted as unsigned.
func (v *Value) Uint64() uint64 { return uint64(v.Int64()) }

// SetFloat64 stores a decoded floating-point payload directly.
func (v *Value) SetFloat64(f float64) { v.scalar = f; v.assigned = true }

// SetBool stores a decoded boolean payload directly.
func (v *Value) SetBool(b bool) { v.scalar = b; v.assigned = true }

// SetString stores a decoded String/Buffer payload directly.
func (v *Value) SetString(s string) { v.str = s; v.assigned = true }

// SetVariant stores a decoded Variant payload directly.
func (v *Value) SetVariant(vr *Variant) { v.variant = vr; v.assigned = true }

// VariantValue returns the Variant payload, or nil if unset.
func (v *Value) VariantValue() *Variant { return v.variant }

// AppendRaw appends an already-constructed child Value to an Array value
// without re-validating it, used by codec Decode paths.
func (v *Value) AppendRaw(ev *Value) {
	v.arr = append(v.arr, ev)
	v.assigned = true
}

// PutMapRaw inserts an already-decoded key/value pair into a Map value.
func (v *Value) PutMapRaw(kv, vv *Value) {
	v.mapKeys = append(v.mapKeys, kv)
	v.mapVals = append(v.mapVals, vv)
	v.assigned = true
}

// SetFieldRaw installs an already-decoded child Value under a Dict field
// name without re-validating it, used by codec Decode paths.
func (v *Value) SetFieldRaw(name string, fv *Value) {
	if v.dict == nil {
		v.dict = map[string]*Value{}
	}
	v.dict[name] = fv
	v.assigned = true
}

// Int64 returns the scalar as an int64; panics on non-integer kinds.
func (v *Value) Int64() int64 {
	switch x := v.scalar.(type) {
	case int64:
		return x
	case float64:
		return int64(x)
	default:
		panic(fmt.Sprintf("schema: Int64() on non-numeric value (%T)", v.scalar))
	}
}

// Float64 returns the scalar as a float64.
func (v *Value) Float64() float64 {
	switch x := v.scalar.(type) {
	case float64:
		return x
	case int64:
		return float64(x)
	default:
		panic(fmt.Sprintf("schema: Float64() on non-numeric value (%T)", v.scalar))
	}
}

// Bool returns the scalar as a bool.
func (v *Value) Bool() bool {
	b, _ := v.scalar.(bool)
	return b
}

// Str returns the String/Buffer payload.
func (v *Value) Str() string { return v.str }

// MapPairs returns the Map payload as parallel key/value slices, in
// insertion order (the source keys Map by struct-typed keys in a dict,
// Go's map lacks ordering guarantees so insertion order is tracked
// explicitly here).
func (v *Value) MapPairs() (keys, vals []*Value) { return v.mapKeys, v.mapVals }

// PutMap inserts or overwrites a key/value pair in a Map value.
func (v *Value) PutMap(key, val any) error {
	d := v.Desc.resolve()
	if d.Kind != KindMap {
		return rpcerr.NewSchemaError("PutMap() called on non-Map %s", d.Kind)
	}
	kv := New(d.Key)
	if err := kv.Assign(key); err != nil {
		return err
	}
	vv := New(d.Val)
	if err := vv.Assign(val); err != nil {
		return err
	}
	v.mapKeys = append(v.mapKeys, kv)
	v.mapVals = append(v.mapVals, vv)
	v.assigned = true
	return nil
}

// SortedFieldNames is a small helper used by pretty-printers: returns a
// Dict's declared field names in declaration order (not sorted — the name
// is historical, kept to signal "stable, not map-iteration order").
func SortedFieldNames(d *Descriptor) []string {
	fields, err := d.GetFields()
	if err != nil {
		return nil
	}
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names
}
