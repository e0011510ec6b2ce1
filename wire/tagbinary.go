package wire

import (
	"encoding/binary"
	"math"

	"qtrpc/rpcerr"
	"qtrpc/schema"
)

var beOrder = binary.BigEndian

// headType is the fixed TagBinary type enumeration from spec.md §4.2.2,
// named DataHeadType in the source.
type headType byte

const (
	hInt8 headType = iota
	hInt16
	hInt32
	hInt64
	hFloat
	hDouble
	hString1
	hString4
	hMap
	hList
	hStructBegin
	hStructEnd
	hZero
	hBytes
)

// TagBinary is the self-describing tag+type codec (internally "JCE" in the
// reference implementation): every field value is preceded by a one-byte
// (or two-byte, for tags >= 15) tag/type head. Integers auto-downcast to
// the smallest legal width at encode; ZERO encodes zero in zero payload
// bytes. Unknown tags during decode are skipped unless StrictUnknownTags is
// set, in which case they are an error; a skipped tag is not logged.
type TagBinary struct {
	StrictUnknownTags bool
}

// NewTagBinary returns a TagBinary codec. ignoreUnknown=false selects the
// strict (raise-on-unknown-tag) policy; true selects silently skipping
// unknown tags.
func NewTagBinary(ignoreUnknown bool) *TagBinary {
	return &TagBinary{StrictUnknownTags: !ignoreUnknown}
}

func (c *TagBinary) Name() string              { return "tagbinary" }
func (c *TagBinary) SupportsFieldSizeOf() bool { return false }
func (c *TagBinary) SupportsMap() bool         { return true }

func appendHead(buf []byte, tag int, typ headType) []byte {
	if tag < 15 {
		return append(buf, byte(tag<<4)|byte(typ))
	}
	buf = append(buf, 0xF0|byte(typ))
	return append(buf, byte(tag))
}

func readHead(data []byte) (tag int, typ headType, rest []byte, err error) {
	if len(data) == 0 {
		return 0, 0, nil, rpcerr.NewDecodeError("tagbinary", "truncated head")
	}
	b0 := data[0]
	typ = headType(b0 & 0x0F)
	tag = int(b0 >> 4)
	rest = data[1:]
	if tag == 15 {
		if len(rest) == 0 {
			return 0, 0, nil, rpcerr.NewDecodeError("tagbinary", "truncated extension tag")
		}
		tag = int(rest[0])
		rest = rest[1:]
	}
	return tag, typ, rest, nil
}

// Encode requires the top-level value be a Dict, matching the reference
// implementation's restriction that dumps() only accepts struct (Dict)
// values; nested Dicts are wrapped in STRUCT_BEGIN/STRUCT_END, but the
// outermost encode omits that wrapper.
func (c *TagBinary) Encode(d *schema.Descriptor, v *schema.Value) ([]byte, error) {
	if v.Desc.Kind != schema.KindDict {
		return nil, rpcerr.NewEncodeError("tagbinary", "top-level value must be a Dict")
	}
	return c.dumpDictBody(nil, v)
}

func (c *TagBinary) dumpDictBody(buf []byte, v *schema.Value) ([]byte, error) {
	fields, err := v.Desc.GetFields()
	if err != nil {
		return nil, rpcerr.NewSchemaError("%s", err.Error())
	}
	var encErr error
	for _, f := range fields {
		fv, ok := v.FieldRaw(f.Name)
		if !ok || !fv.IsSet() {
			if f.Required && !f.HasDefault && f.Type.Kind != schema.KindArray {
				return nil, &rpcerr.UninitializedFieldError{Field: f.Name}
			}
			continue // optional/defaulted/empty-array field absent: skip
		}
		tag := f.Tag
		if tag < 0 {
			tag = 0
		}
		buf, encErr = c.dumpValue(buf, tag, fv)
		if encErr != nil {
			return nil, encErr
		}
	}
	return buf, nil
}

func (c *TagBinary) dumpValue(buf []byte, tag int, v *schema.Value) ([]byte, error) {
	switch v.Desc.Kind {
	case schema.KindInt8:
		return c.appendInt(buf, tag, v.Int64(), 8), nil
	case schema.KindUint8:
		return c.appendInt(buf, tag, v.Int64(), 8), nil
	case schema.KindInt16:
		return c.appendInt(buf, tag, v.Int64(), 16), nil
	case schema.KindUint16:
		return c.appendInt(buf, tag, v.Int64(), 16), nil
	case schema.KindInt32:
		return c.appendInt(buf, tag, v.Int64(), 32), nil
	case schema.KindUint32:
		return c.appendInt(buf, tag, v.Int64(), 32), nil
	case schema.KindInt64:
		return c.appendInt(buf, tag, v.Int64(), 64), nil
	case schema.KindUint64:
		// Signed vs unsigned types share wire encodings; only the bit
		// pattern is carried, the schema dictates interpretation on decode.
		return c.appendInt(buf, tag, int64(v.Uint64()), 64), nil
	case schema.KindBool:
		b := int64(0)
		if v.Bool() {
			b = 1
		}
		return c.appendInt(buf, tag, b, 8), nil
	case schema.KindFloat32:
		buf = appendHead(buf, tag, hFloat)
		var tmp [4]byte
		beOrder.PutUint32(tmp[:], math.Float32bits(float32(v.Float64())))
		return append(buf, tmp[:]...), nil
	case schema.KindFloat64:
		buf = appendHead(buf, tag, hDouble)
		var tmp [8]byte
		beOrder.PutUint64(tmp[:], math.Float64bits(v.Float64()))
		return append(buf, tmp[:]...), nil
	case schema.KindString:
		return c.appendString(buf, tag, v.Str()), nil
	case schema.KindBuffer:
		return c.appendBytes(buf, tag, []byte(v.Str())), nil
	case schema.KindArray:
		if v.Desc.Elem.Kind == schema.KindUint8 || v.Desc.Elem.Kind == schema.KindInt8 {
			return nil, rpcerr.NewEncodeError("tagbinary", "use Buffer instead of Array(Uint8/Int8)")
		}
		buf = appendHead(buf, tag, hList)
		buf = c.appendInt(buf, 0, int64(len(v.Elements())), 32)
		var err error
		for _, ev := range v.Elements() {
			buf, err = c.dumpValue(buf, 0, ev)
			if err != nil {
				return nil, err
			}
		}
		return buf, nil
	case schema.KindMap:
		keys, vals := v.MapPairs()
		buf = appendHead(buf, tag, hMap)
		buf = c.appendInt(buf, 0, int64(len(keys)), 32)
		var err error
		for i := range keys {
			buf, err = c.dumpValue(buf, 0, keys[i])
			if err != nil {
				return nil, err
			}
			buf, err = c.dumpValue(buf, 1, vals[i])
			if err != nil {
				return nil, err
			}
		}
		return buf, nil
	case schema.KindDict:
		buf = appendHead(buf, tag, hStructBegin)
		var err error
		buf, err = c.dumpDictBody(buf, v)
		if err != nil {
			return nil, err
		}
		return appendHead(buf, 0, hStructEnd), nil
	case schema.KindVariant:
		return c.dumpVariant(buf, tag, v.VariantValue())
	default:
		return nil, rpcerr.NewEncodeError("tagbinary", "unsupported kind %s", v.Desc.Kind)
	}
}

func (c *TagBinary) appendInt(buf []byte, tag int, value int64, startWidth int) []byte {
	width := startWidth
	for width > 8 {
		var lo, hi int64
		var next int
		switch width {
		case 64:
			lo, hi, next = math.MinInt32, math.MaxInt32, 32
		case 32:
			lo, hi, next = math.MinInt16, math.MaxInt16, 16
		case 16:
			lo, hi, next = math.MinInt8, math.MaxInt8, 8
		}
		if value < lo || value > hi {
			break
		}
		width = next
	}
	if width == 8 && value == 0 {
		return appendHead(buf, tag, hZero)
	}
	switch width {
	case 64:
		buf = appendHead(buf, tag, hInt64)
		var tmp [8]byte
		beOrder.PutUint64(tmp[:], uint64(value))
		return append(buf, tmp[:]...)
	case 32:
		buf = appendHead(buf, tag, hInt32)
		var tmp [4]byte
		beOrder.PutUint32(tmp[:], uint32(value))
		return append(buf, tmp[:]...)
	case 16:
		buf = appendHead(buf, tag, hInt16)
		var tmp [2]byte
		beOrder.PutUint16(tmp[:], uint16(value))
		return append(buf, tmp[:]...)
	default:
		buf = appendHead(buf, tag, hInt8)
		return append(buf, byte(value))
	}
}

func (c *TagBinary) appendString(buf []byte, tag int, s string) []byte {
	if len(s) <= 255 {
		buf = appendHead(buf, tag, hString1)
		buf = append(buf, byte(len(s)))
		return append(buf, s...)
	}
	buf = appendHead(buf, tag, hString4)
	var tmp [4]byte
	beOrder.PutUint32(tmp[:], uint32(len(s)))
	buf = append(buf, tmp[:]...)
	return append(buf, s...)
}

func (c *TagBinary) appendBytes(buf []byte, tag int, data []byte) []byte {
	buf = appendHead(buf, tag, hBytes)
	buf = c.appendInt(buf, 0, int64(len(data)), 32)
	return append(buf, data...)
}

func (c *TagBinary) dumpVariant(buf []byte, tag int, vr *schema.Variant) ([]byte, error) {
	if vr == nil {
		return appendHead(buf, tag, hZero), nil
	}
	switch vr.Kind {
	case schema.VNull:
		return appendHead(buf, tag, hZero), nil
	case schema.VBool:
		b := int64(0)
		if vr.BoolValue() {
			b = 1
		}
		return c.appendInt(buf, tag, b, 8), nil
	case schema.VInt:
		return c.appendInt(buf, tag, vr.IntValue(), 64), nil
	case schema.VFloat:
		buf = appendHead(buf, tag, hDouble)
		var tmp [8]byte
		beOrder.PutUint64(tmp[:], math.Float64bits(vr.FloatValue()))
		return append(buf, tmp[:]...), nil
	case schema.VText:
		return c.appendString(buf, tag, vr.TextValue()), nil
	case schema.VBytes:
		return c.appendBytes(buf, tag, vr.BytesValue()), nil
	case schema.VList:
		buf = appendHead(buf, tag, hList)
		items := vr.ListValue()
		buf = c.appendInt(buf, 0, int64(len(items)), 32)
		var err error
		for _, it := range items {
			buf, err = c.dumpVariant(buf, 0, it)
			if err != nil {
				return nil, err
			}
		}
		return buf, nil
	case schema.VMap:
		buf = appendHead(buf, tag, hMap)
		keys := vr.Keys()
		buf = c.appendInt(buf, 0, int64(len(keys)), 32)
		var err error
		for _, k := range keys {
			val, _ := vr.Get(k)
			buf = c.appendString(buf, 0, k)
			buf, err = c.dumpVariant(buf, 1, val)
			if err != nil {
				return nil, err
			}
		}
		return buf, nil
	default:
		return appendHead(buf, tag, hZero), nil
	}
}

// Decode reads one top-level struct body (no outer STRUCT_BEGIN/END, per
// the single upstream convention described in spec.md §6) out of data.
func (c *TagBinary) Decode(d *schema.Descriptor, data []byte) (*schema.Value, []byte, error) {
	v := schema.New(d)
	rem, err := c.loadDictFields(v, data, false)
	if err != nil {
		return nil, nil, err
	}
	return v, rem, nil
}

// loadDictFields reads (tag, type, value) triples into v's fields. When
// nested is true it stops at a STRUCT_END sentinel (tag assumed 0, per the
// reference's assert); when false (top-level) it reads until data is
// exhausted.
func (c *TagBinary) loadDictFields(v *schema.Value, data []byte, nested bool) ([]byte, error) {
	rem := data
	for {
		if len(rem) == 0 {
			if nested {
				return nil, rpcerr.NewDecodeError("tagbinary", "missing STRUCT_END for dict %s", v.Desc.Name)
			}
			return rem, nil
		}
		tag, typ, after, err := readHead(rem)
		if err != nil {
			return nil, err
		}
		if nested && typ == hStructEnd {
			return after, nil
		}
		f, ok := v.Desc.FieldByTag(tag)
		if !ok {
			after, err = c.skipGeneric(typ, after)
			if err != nil {
				return nil, err
			}
			if c.StrictUnknownTags {
				return nil, rpcerr.NewDecodeError("tagbinary", "unknown tag %d for dict %s", tag, v.Desc.Name)
			}
			rem = after
			continue
		}
		fv := schema.New(f.Type)
		after, err = c.loadValue(fv, typ, after)
		if err != nil {
			return nil, err
		}
		v.SetFieldRaw(f.Name, fv)
		rem = after
	}
}

// loadIntGeneric decodes any integer head type (including ZERO) into an
// int64 bit pattern; decode is forgiving of narrower encodings than the
// field declares, matching the reference's per-width _load_intN chain.
func (c *TagBinary) loadIntGeneric(typ headType, data []byte) (int64, []byte, error) {
	switch typ {
	case hZero:
		return 0, data, nil
	case hInt8:
		if len(data) < 1 {
			return 0, nil, rpcerr.NewDecodeError("tagbinary", "truncated int8")
		}
		return int64(int8(data[0])), data[1:], nil
	case hInt16:
		if len(data) < 2 {
			return 0, nil, rpcerr.NewDecodeError("tagbinary", "truncated int16")
		}
		return int64(int16(beOrder.Uint16(data))), data[2:], nil
	case hInt32:
		if len(data) < 4 {
			return 0, nil, rpcerr.NewDecodeError("tagbinary", "truncated int32")
		}
		return int64(int32(beOrder.Uint32(data))), data[4:], nil
	case hInt64:
		if len(data) < 8 {
			return 0, nil, rpcerr.NewDecodeError("tagbinary", "truncated int64")
		}
		return int64(beOrder.Uint64(data)), data[8:], nil
	default:
		return 0, nil, rpcerr.NewDecodeError("tagbinary", "expected an integer head, got type %d", typ)
	}
}

func (c *TagBinary) loadValue(fv *schema.Value, typ headType, data []byte) ([]byte, error) {
	switch fv.Desc.Kind {
	case schema.KindInt8, schema.KindInt16, schema.KindInt32, schema.KindInt64,
		schema.KindUint8, schema.KindUint16, schema.KindUint32:
		n, rest, err := c.loadIntGeneric(typ, data)
		if err != nil {
			return nil, err
		}
		fv.SetInt64(n)
		return rest, nil
	case schema.KindUint64:
		n, rest, err := c.loadIntGeneric(typ, data)
		if err != nil {
			return nil, err
		}
		fv.SetUint64(uint64(n))
		return rest, nil
	case schema.KindBool:
		n, rest, err := c.loadIntGeneric(typ, data)
		if err != nil {
			return nil, err
		}
		fv.SetBool(n != 0)
		return rest, nil
	case schema.KindFloat32:
		if typ != hFloat {
			return nil, rpcerr.NewDecodeError("tagbinary", "expected FLOAT head, got type %d", typ)
		}
		if len(data) < 4 {
			return nil, rpcerr.NewDecodeError("tagbinary", "truncated float")
		}
		fv.SetFloat64(float64(math.Float32frombits(beOrder.Uint32(data))))
		return data[4:], nil
	case schema.KindFloat64:
		if typ != hDouble {
			return nil, rpcerr.NewDecodeError("tagbinary", "expected DOUBLE head, got type %d", typ)
		}
		if len(data) < 8 {
			return nil, rpcerr.NewDecodeError("tagbinary", "truncated double")
		}
		fv.SetFloat64(math.Float64frombits(beOrder.Uint64(data)))
		return data[8:], nil
	case schema.KindString:
		return c.loadString(typ, data, fv)
	case schema.KindBuffer:
		return c.loadBytes(typ, data, fv)
	case schema.KindArray:
		if typ != hList {
			return nil, rpcerr.NewDecodeError("tagbinary", "expected LIST head, got type %d", typ)
		}
		_, ctyp, after, err := readHead(data)
		if err != nil {
			return nil, err
		}
		count, rem, err := c.loadIntGeneric(ctyp, after)
		if err != nil {
			return nil, err
		}
		for i := int64(0); i < count; i++ {
			_, etyp, eafter, err := readHead(rem)
			if err != nil {
				return nil, err
			}
			ev := schema.New(fv.Desc.Elem)
			rem, err = c.loadValue(ev, etyp, eafter)
			if err != nil {
				return nil, err
			}
			fv.AppendRaw(ev)
		}
		return rem, nil
	case schema.KindMap:
		if typ != hMap {
			return nil, rpcerr.NewDecodeError("tagbinary", "expected MAP head, got type %d", typ)
		}
		_, ctyp, after, err := readHead(data)
		if err != nil {
			return nil, err
		}
		count, rem, err := c.loadIntGeneric(ctyp, after)
		if err != nil {
			return nil, err
		}
		for i := int64(0); i < count; i++ {
			_, ktyp, kafter, err := readHead(rem)
			if err != nil {
				return nil, err
			}
			kv := schema.New(fv.Desc.Key)
			rem, err = c.loadValue(kv, ktyp, kafter)
			if err != nil {
				return nil, err
			}
			_, vtyp, vafter, err := readHead(rem)
			if err != nil {
				return nil, err
			}
			vv := schema.New(fv.Desc.Val)
			rem, err = c.loadValue(vv, vtyp, vafter)
			if err != nil {
				return nil, err
			}
			fv.PutMapRaw(kv, vv)
		}
		return rem, nil
	case schema.KindDict:
		if typ != hStructBegin {
			return nil, rpcerr.NewDecodeError("tagbinary", "expected STRUCT_BEGIN head, got type %d", typ)
		}
		return c.loadDictFields(fv, data, true)
	case schema.KindVariant:
		vr, rest, err := c.loadVariantGeneric(typ, data)
		if err != nil {
			return nil, err
		}
		fv.SetVariant(vr)
		return rest, nil
	default:
		return nil, rpcerr.NewDecodeError("tagbinary", "unsupported kind %s", fv.Desc.Kind)
	}
}

func (c *TagBinary) loadString(typ headType, data []byte, fv *schema.Value) ([]byte, error) {
	switch typ {
	case hString1:
		if len(data) < 1 {
			return nil, rpcerr.NewDecodeError("tagbinary", "truncated string1 length")
		}
		n := int(data[0])
		if len(data) < 1+n {
			return nil, rpcerr.NewDecodeError("tagbinary", "truncated string1 payload")
		}
		fv.SetString(string(data[1 : 1+n]))
		return data[1+n:], nil
	case hString4:
		if len(data) < 4 {
			return nil, rpcerr.NewDecodeError("tagbinary", "truncated string4 length")
		}
		n := int(beOrder.Uint32(data))
		if len(data) < 4+n {
			return nil, rpcerr.NewDecodeError("tagbinary", "truncated string4 payload")
		}
		fv.SetString(string(data[4 : 4+n]))
		return data[4+n:], nil
	default:
		return nil, rpcerr.NewDecodeError("tagbinary", "expected STRING1/STRING4 head, got type %d", typ)
	}
}

func (c *TagBinary) loadBytes(typ headType, data []byte, fv *schema.Value) ([]byte, error) {
	if typ != hBytes {
		return nil, rpcerr.NewDecodeError("tagbinary", "expected BYTES head, got type %d", typ)
	}
	_, ltyp, after, err := readHead(data)
	if err != nil {
		return nil, err
	}
	n, rem, err := c.loadIntGeneric(ltyp, after)
	if err != nil {
		return nil, err
	}
	if int64(len(rem)) < n {
		return nil, rpcerr.NewDecodeError("tagbinary", "truncated bytes payload")
	}
	fv.SetString(string(rem[:n]))
	return rem[n:], nil
}

// skipGeneric discards one value of the given head type, used when
// StrictUnknownTags is false and a decoded tag has no matching field.
func (c *TagBinary) skipGeneric(typ headType, data []byte) ([]byte, error) {
	switch typ {
	case hZero:
		return data, nil
	case hInt8:
		if len(data) < 1 {
			return nil, rpcerr.NewDecodeError("tagbinary", "truncated int8 while skipping")
		}
		return data[1:], nil
	case hInt16:
		if len(data) < 2 {
			return nil, rpcerr.NewDecodeError("tagbinary", "truncated int16 while skipping")
		}
		return data[2:], nil
	case hInt32:
		if len(data) < 4 {
			return nil, rpcerr.NewDecodeError("tagbinary", "truncated int32 while skipping")
		}
		return data[4:], nil
	case hInt64:
		if len(data) < 8 {
			return nil, rpcerr.NewDecodeError("tagbinary", "truncated int64 while skipping")
		}
		return data[8:], nil
	case hFloat:
		if len(data) < 4 {
			return nil, rpcerr.NewDecodeError("tagbinary", "truncated float while skipping")
		}
		return data[4:], nil
	case hDouble:
		if len(data) < 8 {
			return nil, rpcerr.NewDecodeError("tagbinary", "truncated double while skipping")
		}
		return data[8:], nil
	case hString1:
		if len(data) < 1 {
			return nil, rpcerr.NewDecodeError("tagbinary", "truncated string1 while skipping")
		}
		n := int(data[0])
		if len(data) < 1+n {
			return nil, rpcerr.NewDecodeError("tagbinary", "truncated string1 while skipping")
		}
		return data[1+n:], nil
	case hString4:
		if len(data) < 4 {
			return nil, rpcerr.NewDecodeError("tagbinary", "truncated string4 while skipping")
		}
		n := int(beOrder.Uint32(data))
		if len(data) < 4+n {
			return nil, rpcerr.NewDecodeError("tagbinary", "truncated string4 while skipping")
		}
		return data[4+n:], nil
	case hBytes:
		_, ltyp, after, err := readHead(data)
		if err != nil {
			return nil, err
		}
		n, rem, err := c.loadIntGeneric(ltyp, after)
		if err != nil {
			return nil, err
		}
		if int64(len(rem)) < n {
			return nil, rpcerr.NewDecodeError("tagbinary", "truncated bytes while skipping")
		}
		return rem[n:], nil
	case hList:
		_, ctyp, after, err := readHead(data)
		if err != nil {
			return nil, err
		}
		count, rem, err := c.loadIntGeneric(ctyp, after)
		if err != nil {
			return nil, err
		}
		for i := int64(0); i < count; i++ {
			_, etyp, eafter, err := readHead(rem)
			if err != nil {
				return nil, err
			}
			rem, err = c.skipGeneric(etyp, eafter)
			if err != nil {
				return nil, err
			}
		}
		return rem, nil
	case hMap:
		_, ctyp, after, err := readHead(data)
		if err != nil {
			return nil, err
		}
		count, rem, err := c.loadIntGeneric(ctyp, after)
		if err != nil {
			return nil, err
		}
		for i := int64(0); i < count; i++ {
			_, ktyp, kafter, err := readHead(rem)
			if err != nil {
				return nil, err
			}
			rem, err = c.skipGeneric(ktyp, kafter)
			if err != nil {
				return nil, err
			}
			_, vtyp, vafter, err := readHead(rem)
			if err != nil {
				return nil, err
			}
			rem, err = c.skipGeneric(vtyp, vafter)
			if err != nil {
				return nil, err
			}
		}
		return rem, nil
	case hStructBegin:
		rem := data
		for {
			tag, ftyp, after, err := readHead(rem)
			_ = tag
			if err != nil {
				return nil, err
			}
			if ftyp == hStructEnd {
				return after, nil
			}
			rem, err = c.skipGeneric(ftyp, after)
			if err != nil {
				return nil, err
			}
		}
	default:
		return nil, rpcerr.NewDecodeError("tagbinary", "cannot skip unknown head type %d", typ)
	}
}

// loadVariantGeneric decodes any wire value generically into a Variant,
// used for fields declared as Variant where the concrete shape is
// determined by the wire type tag rather than the schema.
func (c *TagBinary) loadVariantGeneric(typ headType, data []byte) (*schema.Variant, []byte, error) {
	switch typ {
	case hZero:
		return schema.NullVariant(), data, nil
	case hInt8, hInt16, hInt32, hInt64:
		n, rest, err := c.loadIntGeneric(typ, data)
		if err != nil {
			return nil, nil, err
		}
		return schema.IntVariant(n), rest, nil
	case hFloat:
		if len(data) < 4 {
			return nil, nil, rpcerr.NewDecodeError("tagbinary", "truncated float variant")
		}
		return schema.FloatVariant(float64(math.Float32frombits(beOrder.Uint32(data)))), data[4:], nil
	case hDouble:
		if len(data) < 8 {
			return nil, nil, rpcerr.NewDecodeError("tagbinary", "truncated double variant")
		}
		return schema.FloatVariant(math.Float64frombits(beOrder.Uint64(data))), data[8:], nil
	case hString1, hString4:
		dummy := schema.New(schema.StringT)
		rest, err := c.loadString(typ, data, dummy)
		if err != nil {
			return nil, nil, err
		}
		return schema.TextVariant(dummy.Str()), rest, nil
	case hBytes:
		dummy := schema.New(schema.BufferT)
		rest, err := c.loadBytes(typ, data, dummy)
		if err != nil {
			return nil, nil, err
		}
		return schema.BytesVariant([]byte(dummy.Str())), rest, nil
	case hList:
		_, ctyp, after, err := readHead(data)
		if err != nil {
			return nil, nil, err
		}
		count, rem, err := c.loadIntGeneric(ctyp, after)
		if err != nil {
			return nil, nil, err
		}
		items := make([]*schema.Variant, 0, count)
		for i := int64(0); i < count; i++ {
			_, etyp, eafter, err := readHead(rem)
			if err != nil {
				return nil, nil, err
			}
			var iv *schema.Variant
			iv, rem, err = c.loadVariantGeneric(etyp, eafter)
			if err != nil {
				return nil, nil, err
			}
			items = append(items, iv)
		}
		return schema.ListVariant(items...), rem, nil
	case hMap:
		_, ctyp, after, err := readHead(data)
		if err != nil {
			return nil, nil, err
		}
		count, rem, err := c.loadIntGeneric(ctyp, after)
		if err != nil {
			return nil, nil, err
		}
		mv := schema.MapVariant()
		for i := int64(0); i < count; i++ {
			_, ktyp, kafter, err := readHead(rem)
			if err != nil {
				return nil, nil, err
			}
			var kv *schema.Variant
			kv, rem, err = c.loadVariantGeneric(ktyp, kafter)
			if err != nil {
				return nil, nil, err
			}
			_, vtyp, vafter, err := readHead(rem)
			if err != nil {
				return nil, nil, err
			}
			var vv *schema.Variant
			vv, rem, err = c.loadVariantGeneric(vtyp, vafter)
			if err != nil {
				return nil, nil, err
			}
			mv.Put(kv.TextValue(), vv)
		}
		return mv, rem, nil
	default:
		return nil, nil, rpcerr.NewDecodeError("tagbinary", "unsupported variant head type %d", typ)
	}
}

// FieldSizeOf/OffsetOf are not supported: TagBinary's layout is
// self-describing, not a fixed concatenation, so it carries no notion of a
// field's offset/size independent of decoding the whole value.
func (c *TagBinary) FieldSizeOf(d *schema.Descriptor, v *schema.Value, path string) (int, error) {
	return 0, rpcerr.NewFramingError("tagbinary codec does not support field_size_of")
}

func (c *TagBinary) OffsetOf(d *schema.Descriptor, v *schema.Value, path string) (int, error) {
	return 0, rpcerr.NewFramingError("tagbinary codec does not support offset_of")
}
