package wire

import (
	"bytes"
	"encoding/json"

	"qtrpc/rpcerr"
	"qtrpc/schema"
)

// JSON is the canonical-tree codec used for text/HTTP interop: it reduces a
// Value to its canonical Go form (map[string]any / []any / scalars) via
// schema.Reduce and hands that straight to encoding/json, the same library
// the teacher's own JSON codec wraps.
type JSON struct{}

func NewJSON() *JSON { return &JSON{} }

func (j *JSON) Name() string              { return "json" }
func (j *JSON) SupportsFieldSizeOf() bool { return false }
func (j *JSON) SupportsMap() bool         { return true }

func (j *JSON) Encode(d *schema.Descriptor, v *schema.Value) ([]byte, error) {
	canonical, err := v.Reduce(false)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(canonical)
	if err != nil {
		return nil, rpcerr.NewEncodeError("json", "%s", err.Error())
	}
	return data, nil
}

func (j *JSON) Decode(d *schema.Descriptor, data []byte) (*schema.Value, []byte, error) {
	var canonical any
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	if err := decoder.Decode(&canonical); err != nil {
		return nil, nil, rpcerr.NewDecodeError("json", "%s", err.Error())
	}
	v := schema.New(d)
	if err := assignFromJSON(v, canonical); err != nil {
		return nil, nil, err
	}
	return v, nil, nil // JSON is not streamable: a document consumes the whole buffer
}

// assignFromJSON mirrors schema.Value.Construct but tolerates
// json.Number and converts nested maps/slices recursively, since
// encoding/json's decoded shape doesn't exactly match Assign's native
// value expectations (json.Number vs float64, map[string]any keys already
// matching field names).
func assignFromJSON(v *schema.Value, canonical any) error {
	d := v.Desc
	switch d.Kind {
	case schema.KindDict:
		m, ok := canonical.(map[string]any)
		if !ok {
			return rpcerr.NewTypeError(d.Name, "expected a JSON object, got %T", canonical)
		}
		fields, err := d.GetFields()
		if err != nil {
			return rpcerr.NewSchemaError("%s", err.Error())
		}
		for _, f := range fields {
			raw, present := m[f.Name]
			if !present {
				if f.HasDefault {
					fv := schema.New(f.Type)
					if err := fv.Assign(f.Default); err != nil {
						return err
					}
					v.SetFieldRaw(f.Name, fv)
				}
				continue
			}
			fv := schema.New(f.Type)
			if err := assignFromJSON(fv, raw); err != nil {
				return err
			}
			v.SetFieldRaw(f.Name, fv)
		}
		return nil
	case schema.KindArray:
		items, ok := canonical.([]any)
		if !ok {
			return rpcerr.NewTypeError("", "expected a JSON array, got %T", canonical)
		}
		for _, it := range items {
			ev := schema.New(d.Elem)
			if err := assignFromJSON(ev, it); err != nil {
				return err
			}
			v.AppendRaw(ev)
		}
		return nil
	case schema.KindMap:
		m, ok := canonical.(map[string]any)
		if !ok {
			return rpcerr.NewTypeError("", "expected a JSON object for Map, got %T", canonical)
		}
		for k, raw := range m {
			kv := schema.New(d.Key)
			if err := kv.Assign(k); err != nil {
				return err
			}
			vv := schema.New(d.Val)
			if err := assignFromJSON(vv, raw); err != nil {
				return err
			}
			v.PutMapRaw(kv, vv)
		}
		return nil
	case schema.KindVariant:
		vr, err := variantFromJSON(canonical)
		if err != nil {
			return err
		}
		v.SetVariant(vr)
		return nil
	default:
		return v.Assign(jsonNumberToNative(canonical))
	}
}

func variantFromJSON(canonical any) (*schema.Variant, error) {
	switch x := canonical.(type) {
	case nil:
		return schema.NullVariant(), nil
	case bool:
		return schema.BoolVariant(x), nil
	case string:
		return schema.TextVariant(x), nil
	case []any:
		items := make([]*schema.Variant, 0, len(x))
		for _, it := range x {
			iv, err := variantFromJSON(it)
			if err != nil {
				return nil, err
			}
			items = append(items, iv)
		}
		return schema.ListVariant(items...), nil
	case map[string]any:
		mv := schema.MapVariant()
		for k, raw := range x {
			cv, err := variantFromJSON(raw)
			if err != nil {
				return nil, err
			}
			mv.Put(k, cv)
		}
		return mv, nil
	default:
		return schema.VariantFromNative(jsonNumberToNative(x))
	}
}

// FieldSizeOf/OffsetOf are not supported: JSON's layout depends on key
// order and whitespace choices encoding/json doesn't promise to keep
// stable, so no fixed byte offset exists to report.
func (j *JSON) FieldSizeOf(d *schema.Descriptor, v *schema.Value, path string) (int, error) {
	return 0, rpcerr.NewFramingError("json codec does not support field_size_of")
}

func (j *JSON) OffsetOf(d *schema.Descriptor, v *schema.Value, path string) (int, error) {
	return 0, rpcerr.NewFramingError("json codec does not support offset_of")
}

func jsonNumberToNative(x any) any {
	num, ok := x.(json.Number)
	if !ok {
		return x
	}
	if i, err := num.Int64(); err == nil {
		return i
	}
	f, _ := num.Float64()
	return f
}
