package wire

import (
	"strings"

	"qtrpc/rpcerr"
	"qtrpc/schema"
)

// walkPath navigates a dotted field path ("head.len") from a Dict value
// down to the *schema.Value at that path, creating intermediate children as
// needed (matching the Message/Dict field-access-by-dotted-path idiom used
// by the Packet Framer's length_field resolution).
func walkPath(v *schema.Value, path string) (*schema.Value, error) {
	cur := v
	for _, part := range strings.Split(path, ".") {
		next, err := cur.Field(part)
		if err != nil {
			return nil, rpcerr.NewFramingError("field path %q: %s", path, err.Error())
		}
		cur = next
	}
	return cur, nil
}

// offsetOfBinaryLike computes the byte offset of a dotted field path within
// v's encoding under codec, by summing the encoded size of every field that
// precedes the target at each level of nesting. Only meaningful for codecs
// whose layout is the plain concatenation of declared fields (Binary).
func offsetOfBinaryLike(codec Codec, v *schema.Value, path string) (int, error) {
	cur := v
	total := 0
	parts := strings.Split(path, ".")
	for i, part := range parts {
		fields, err := cur.Desc.GetFields()
		if err != nil {
			return 0, rpcerr.NewSchemaError("%s", err.Error())
		}
		for _, f := range fields {
			if f.Name == part {
				break
			}
			fv, ok := cur.FieldRaw(f.Name)
			if !ok || !fv.IsSet() {
				continue // unset optional fields contribute nothing, matching encode-time skip
			}
			sz, err := codec.Encode(f.Type, fv)
			if err != nil {
				return 0, err
			}
			total += len(sz)
		}
		if i == len(parts)-1 {
			break
		}
		next, err := cur.Field(part)
		if err != nil {
			return 0, rpcerr.NewFramingError("field path %q: %s", path, err.Error())
		}
		cur = next
	}
	return total, nil
}
