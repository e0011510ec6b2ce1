// Package framer is the Packet Framer: it locates a length-prefixed
// packet's boundary inside a raw byte stream before that packet has been
// decoded, and stamps the length field once a packet has been encoded.
// This is what lets Socket Channel know, byte-for-byte, when a TCP stream
// buffer holds one complete packet versus needing more data.
package framer

import (
	"encoding/binary"
	"strings"

	"qtrpc/rpcerr"
	"qtrpc/schema"
	"qtrpc/wire"
)

// HeaderOffset returns the byte offset and width of d's length field,
// assuming every field preceding it in declaration order is a fixed-width
// scalar — the only shape that lets framing locate the length before the
// rest of the packet is decodable. The length field may be a dotted path
// into nested Dicts ("head.len"); the same rule then holds at every level.
func HeaderOffset(d *schema.Descriptor) (offset, width int, err error) {
	if d.LengthField == "" {
		return 0, 0, rpcerr.NewFramingError("dict %s declares no length_field", d.Name)
	}
	parts := strings.Split(d.LengthField, ".")
	cur, off := d, 0
	for i, part := range parts {
		fields, err := cur.GetFields()
		if err != nil {
			return 0, 0, rpcerr.NewSchemaError("%s", err.Error())
		}
		var next *schema.Descriptor
		for _, f := range fields {
			if f.Name == part || (f.Display != "" && f.Display == part) {
				if i < len(parts)-1 {
					next = f.Type
					break
				}
				w := f.Type.Kind.ByteWidth()
				if w == 0 {
					return 0, 0, rpcerr.NewFramingError("length_field %q is not a fixed-width scalar", d.LengthField)
				}
				return off, w, nil
			}
			w := f.Type.Kind.ByteWidth()
			if w == 0 {
				return 0, 0, rpcerr.NewFramingError("field %q precedes length_field %q but is not fixed-width", f.Name, d.LengthField)
			}
			off += w
		}
		if next == nil {
			break
		}
		cur = next
	}
	return 0, 0, rpcerr.NewFramingError("dict %s has no field named %q", d.Name, d.LengthField)
}

// NextPacketLength inspects buf — the bytes read off the wire so far — and
// reports the total encoded length of the next packet. ok is false when
// buf doesn't yet hold enough bytes to know (the caller should keep
// reading), never an error in that case.
func NextPacketLength(d *schema.Descriptor, hook schema.SizeRefHook, order binary.ByteOrder, buf []byte) (n int, ok bool, err error) {
	off, width, err := HeaderOffset(d)
	if err != nil {
		return 0, false, err
	}
	if len(buf) < off+width {
		return 0, false, nil
	}
	var raw int64
	switch width {
	case 1:
		raw = int64(buf[off])
	case 2:
		raw = int64(order.Uint16(buf[off:]))
	case 4:
		raw = int64(order.Uint32(buf[off:]))
	case 8:
		raw = int64(order.Uint64(buf[off:]))
	}
	total := hook.Inverse(raw)
	if total < 0 {
		return 0, false, rpcerr.NewFramingError("length field resolved to negative packet size %d", total)
	}
	return total, true, nil
}

// FillSizeRefs writes totalLen into buf's length field (already reserved by
// the codec's encode pass), applying hook's forward transform. Mirrors the
// reference's set_message_length: called once per outbound packet, after
// encoding, before the bytes hit the wire.
func FillSizeRefs(d *schema.Descriptor, hook schema.SizeRefHook, order binary.ByteOrder, buf []byte, totalLen int) error {
	off, width, err := HeaderOffset(d)
	if err != nil {
		return err
	}
	if len(buf) < off+width {
		return rpcerr.NewFramingError("encoded packet too short to hold its own length field")
	}
	v := hook.Forward(totalLen)
	switch width {
	case 1:
		buf[off] = byte(v)
	case 2:
		order.PutUint16(buf[off:], uint16(v))
	case 4:
		order.PutUint32(buf[off:], uint32(v))
	case 8:
		order.PutUint64(buf[off:], uint64(v))
	}
	return nil
}

// FillFieldSizeRefs is the fill_size_ref pass: for every field of d that
// declares a size_ref through WithSizeRef, it measures that field's own
// current encoded byte length via codec and writes it — through the
// field's SizeRefHook — into the sibling field its SizeRef names. Run this
// once, after every measured field's value is assigned and before the
// Dict is encoded, so the size_ref field never needs to be seeded by hand.
func FillFieldSizeRefs(codec wire.Codec, d *schema.Descriptor, v *schema.Value) error {
	fields, err := d.GetFields()
	if err != nil {
		return rpcerr.NewSchemaError("%s", err.Error())
	}
	for _, f := range fields {
		if f.SizeRef == "" {
			continue
		}
		n, err := codec.FieldSizeOf(d, v, f.Name)
		if err != nil {
			return err
		}
		if err := v.SetField(f.SizeRef, f.SizeRefHook.Forward(n)); err != nil {
			return err
		}
	}
	return nil
}

// FieldSizeOf and OffsetOf delegate to the wire codec for an already
// constructed Value — used for size_ref validation and diagnostics once a
// packet exists, as opposed to NextPacketLength's raw-byte-stream scan.
func FieldSizeOf(codec wire.Codec, d *schema.Descriptor, v *schema.Value, path string) (int, error) {
	return codec.FieldSizeOf(d, v, path)
}

func OffsetOf(codec wire.Codec, d *schema.Descriptor, v *schema.Value, path string) (int, error) {
	return codec.OffsetOf(d, v, path)
}
