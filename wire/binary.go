package wire

import (
	"encoding/binary"
	"math"

	"qtrpc/rpcerr"
	"qtrpc/schema"
)

// Binary is the C-layout, length-prefix family codec: the exact
// concatenation of a Dict's fields in declaration order, no headers.
// Strings/Buffers and Arrays resolve their size from a size_ref field, a
// fixed byte_size/array_size, or "consume to end" when they are the last
// field. Maps are not supported.
type Binary struct {
	Order binary.ByteOrder
}

// NewBinary returns a Binary codec using network byte order (big-endian),
// the default per spec.
func NewBinary() *Binary { return &Binary{Order: binary.BigEndian} }

// NewBinaryWithOrder returns a Binary codec using a caller-chosen byte order.
func NewBinaryWithOrder(order binary.ByteOrder) *Binary { return &Binary{Order: order} }

func (b *Binary) Name() string              { return "binary" }
func (b *Binary) SupportsFieldSizeOf() bool { return true }
func (b *Binary) SupportsMap() bool         { return false }

func (b *Binary) Encode(d *schema.Descriptor, v *schema.Value) ([]byte, error) {
	buf := make([]byte, 0, 64)
	out, err := b.appendValue(buf, v, nil)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Binary) appendValue(buf []byte, v *schema.Value, field *schema.FieldDescriptor) ([]byte, error) {
	switch v.Desc.Kind {
	case schema.KindInt8, schema.KindUint8:
		return append(buf, byte(v.Int64())), nil
	case schema.KindInt16, schema.KindUint16:
		var tmp [2]byte
		b.Order.PutUint16(tmp[:], uint16(v.Int64()))
		return append(buf, tmp[:]...), nil
	case schema.KindInt32, schema.KindUint32:
		var tmp [4]byte
		b.Order.PutUint32(tmp[:], uint32(v.Int64()))
		return append(buf, tmp[:]...), nil
	case schema.KindInt64:
		var tmp [8]byte
		b.Order.PutUint64(tmp[:], uint64(v.Int64()))
		return append(buf, tmp[:]...), nil
	case schema.KindUint64:
		var tmp [8]byte
		b.Order.PutUint64(tmp[:], v.Uint64())
		return append(buf, tmp[:]...), nil
	case schema.KindFloat32:
		var tmp [4]byte
		b.Order.PutUint32(tmp[:], math.Float32bits(float32(v.Float64())))
		return append(buf, tmp[:]...), nil
	case schema.KindFloat64:
		var tmp [8]byte
		b.Order.PutUint64(tmp[:], math.Float64bits(v.Float64()))
		return append(buf, tmp[:]...), nil
	case schema.KindBool:
		if v.Bool() {
			return append(buf, 1), nil
		}
		return append(buf, 0), nil
	case schema.KindString, schema.KindBuffer:
		s := v.Str()
		if field != nil && field.SizeRef == "" && field.ByteSize > 0 {
			if len(s) > field.ByteSize {
				return nil, rpcerr.NewRangeError(field.Name, "%d bytes exceed byte_size %d", len(s), field.ByteSize)
			}
			buf = append(buf, s...)
			return append(buf, make([]byte, field.ByteSize-len(s))...), nil // pad right with NUL
		}
		return append(buf, s...), nil
	case schema.KindArray:
		for _, ev := range v.Elements() {
			var err error
			buf, err = b.appendValue(buf, ev, nil)
			if err != nil {
				return nil, err
			}
		}
		return buf, nil
	case schema.KindMap:
		return nil, rpcerr.NewEncodeError("binary", "Map type is not supported")
	case schema.KindVariant:
		return nil, rpcerr.NewEncodeError("binary", "Variant requires a self-describing codec")
	case schema.KindDict:
		fields, err := v.Desc.GetFields()
		if err != nil {
			return nil, rpcerr.NewSchemaError("%s", err.Error())
		}
		for _, f := range fields {
			fv, ok := v.FieldRaw(f.Name)
			if !ok || !fv.IsSet() {
				if f.Required && !f.HasDefault {
					if f.Type.Kind == schema.KindArray {
						continue // empty required array encodes as zero elements
					}
					return nil, &rpcerr.UninitializedFieldError{Field: f.Name}
				}
				continue // optional field absent from value: skip, matches _dump_dict
			}
			buf, err = b.appendValue(buf, fv, &f)
			if err != nil {
				return nil, err
			}
		}
		return buf, nil
	default:
		return nil, rpcerr.NewEncodeError("binary", "unsupported kind %s", v.Desc.Kind)
	}
}

func (b *Binary) Decode(d *schema.Descriptor, data []byte) (*schema.Value, []byte, error) {
	v := schema.New(d)
	rem, err := b.consumeValue(v, data, nil, nil)
	if err != nil {
		return nil, nil, err
	}
	return v, rem, nil
}

// consumeValue decodes one value of v's kind from data. field is the Dict
// field descriptor owning v (nil for array/map elements and the top-level
// value). owner is the in-progress parent Dict Value, used to resolve
// size_ref against sibling fields already decoded earlier in declaration
// order — the acyclic/single-pass invariant guarantees they exist by now.
func (b *Binary) consumeValue(v *schema.Value, data []byte, field *schema.FieldDescriptor, owner *schema.Value) ([]byte, error) {
	switch v.Desc.Kind {
	case schema.KindInt8:
		if len(data) < 1 {
			return nil, rpcerr.NewDecodeError("binary", "truncated Int8")
		}
		v.SetInt64(int64(int8(data[0])))
		return data[1:], nil
	case schema.KindUint8:
		if len(data) < 1 {
			return nil, rpcerr.NewDecodeError("binary", "truncated Uint8")
		}
		v.SetInt64(int64(data[0]))
		return data[1:], nil
	case schema.KindInt16:
		if len(data) < 2 {
			return nil, rpcerr.NewDecodeError("binary", "truncated Int16")
		}
		v.SetInt64(int64(int16(b.Order.Uint16(data))))
		return data[2:], nil
	case schema.KindUint16:
		if len(data) < 2 {
			return nil, rpcerr.NewDecodeError("binary", "truncated Uint16")
		}
		v.SetInt64(int64(b.Order.Uint16(data)))
		return data[2:], nil
	case schema.KindInt32:
		if len(data) < 4 {
			return nil, rpcerr.NewDecodeError("binary", "truncated Int32")
		}
		v.SetInt64(int64(int32(b.Order.Uint32(data))))
		return data[4:], nil
	case schema.KindUint32:
		if len(data) < 4 {
			return nil, rpcerr.NewDecodeError("binary", "truncated Uint32")
		}
		v.SetInt64(int64(b.Order.Uint32(data)))
		return data[4:], nil
	case schema.KindInt64:
		if len(data) < 8 {
			return nil, rpcerr.NewDecodeError("binary", "truncated Int64")
		}
		v.SetInt64(int64(b.Order.Uint64(data)))
		return data[8:], nil
	case schema.KindUint64:
		if len(data) < 8 {
			return nil, rpcerr.NewDecodeError("binary", "truncated Uint64")
		}
		v.SetUint64(b.Order.Uint64(data))
		return data[8:], nil
	case schema.KindFloat32:
		if len(data) < 4 {
			return nil, rpcerr.NewDecodeError("binary", "truncated Float32")
		}
		v.SetFloat64(float64(math.Float32frombits(b.Order.Uint32(data))))
		return data[4:], nil
	case schema.KindFloat64:
		if len(data) < 8 {
			return nil, rpcerr.NewDecodeError("binary", "truncated Float64")
		}
		v.SetFloat64(math.Float64frombits(b.Order.Uint64(data)))
		return data[8:], nil
	case schema.KindBool:
		if len(data) < 1 {
			return nil, rpcerr.NewDecodeError("binary", "truncated Bool")
		}
		v.SetBool(data[0] != 0)
		return data[1:], nil
	case schema.KindString, schema.KindBuffer:
		n, err := b.stringSize(field, owner, data)
		if err != nil {
			return nil, err
		}
		if len(data) < n {
			return nil, rpcerr.NewDecodeError("binary", "truncated string/buffer field")
		}
		v.SetString(string(data[:n]))
		return data[n:], nil
	case schema.KindArray:
		count, consumeRest, err := b.arraySize(v.Desc, field, owner)
		if err != nil {
			return nil, err
		}
		rem := data
		if consumeRest {
			for len(rem) > 0 {
				ev := schema.New(v.Desc.Elem)
				rem, err = b.consumeValue(ev, rem, nil, nil)
				if err != nil {
					return nil, err
				}
				v.AppendRaw(ev)
			}
			return rem, nil
		}
		for i := 0; i < count; i++ {
			ev := schema.New(v.Desc.Elem)
			rem, err = b.consumeValue(ev, rem, nil, nil)
			if err != nil {
				return nil, err
			}
			v.AppendRaw(ev)
		}
		return rem, nil
	case schema.KindMap:
		return nil, rpcerr.NewDecodeError("binary", "Map type is not supported")
	case schema.KindVariant:
		return nil, rpcerr.NewDecodeError("binary", "Variant requires a self-describing codec")
	case schema.KindDict:
		fields, err := v.Desc.GetFields()
		if err != nil {
			return nil, rpcerr.NewSchemaError("%s", err.Error())
		}
		rem := data
		for i := range fields {
			f := fields[i]
			if len(rem) == 0 && !f.Required {
				continue // EOF reached, remaining optional fields are skipped
			}
			fv := schema.New(f.Type)
			rem, err = b.consumeValue(fv, rem, &f, v)
			if err != nil {
				return nil, err
			}
			v.SetFieldRaw(f.Name, fv)
		}
		return rem, nil
	default:
		return nil, rpcerr.NewDecodeError("binary", "unsupported kind %s", v.Desc.Kind)
	}
}

// stringSize resolves a String/Buffer field's byte width for decode: a
// size_ref field's already-decoded value (through the inverse hook), a
// fixed byte_size (0 = consume to end), or no size info (legal only as the
// last field, consumes the remainder).
func (b *Binary) stringSize(field *schema.FieldDescriptor, owner *schema.Value, data []byte) (int, error) {
	if field == nil {
		return len(data), nil // array/map element with no field context: consume to end
	}
	if field.SizeRef != "" {
		return b.sizeFromRef(field, owner)
	}
	if field.ByteSize > 0 {
		return field.ByteSize, nil
	}
	return len(data), nil
}

// sizeFromRef reads a sibling field already decoded earlier in declaration
// order off owner and applies the inverse hook. The acyclic/single-pass
// size-ref invariant guarantees the referred-to field precedes this one.
func (b *Binary) sizeFromRef(field *schema.FieldDescriptor, owner *schema.Value) (int, error) {
	if owner == nil {
		return 0, rpcerr.NewFramingError("size_ref %q used outside a Dict context", field.SizeRef)
	}
	refVal, ok := owner.FieldRaw(field.SizeRef)
	if !ok {
		return 0, rpcerr.NewFramingError("size_ref %q not yet decoded", field.SizeRef)
	}
	n := field.SizeRefHook.Inverse(refVal.Int64())
	if n < 0 {
		return 0, rpcerr.NewFramingError("size_ref %q resolved to negative size %d", field.SizeRef, n)
	}
	return n, nil
}

func (b *Binary) arraySize(d *schema.Descriptor, field *schema.FieldDescriptor, owner *schema.Value) (count int, consumeRest bool, err error) {
	if field != nil && field.SizeRef != "" {
		n, err := b.sizeFromRef(field, owner)
		if err != nil {
			return 0, false, err
		}
		return n, false, nil
	}
	if d.ArraySize > 0 {
		return d.ArraySize, false, nil
	}
	return 0, true, nil
}

// FieldSizeOf/OffsetOf are implemented by walking a decoded/assigned value
// and its descriptor together, summing byte widths.
func (b *Binary) FieldSizeOf(d *schema.Descriptor, v *schema.Value, path string) (int, error) {
	target, err := walkPath(v, path)
	if err != nil {
		return 0, err
	}
	encoded, err := b.Encode(target.Desc, target)
	if err != nil {
		return 0, err
	}
	return len(encoded), nil
}

func (b *Binary) OffsetOf(d *schema.Descriptor, v *schema.Value, path string) (int, error) {
	return offsetOfBinaryLike(b, v, path)
}
