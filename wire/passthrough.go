package wire

import (
	"fmt"
	"sort"
	"strings"

	"qtrpc/rpcerr"
	"qtrpc/schema"
)

// Passthrough materializes a Value's canonical form without producing
// bytes: ReduceValue/ConstructValue round-trip through
// schema.Reduce/Construct, while Encode/Decode only return errors. It
// exists for debug printing and tests that want to assert against Go
// values instead of wire bytes, still enforcing the same required-field
// and default rules every other codec enforces.
type Passthrough struct{}

func NewPassthrough() *Passthrough { return &Passthrough{} }

func (p *Passthrough) Name() string              { return "passthrough" }
func (p *Passthrough) SupportsFieldSizeOf() bool { return false }
func (p *Passthrough) SupportsMap() bool         { return true }

// Encode is non-standard for this codec: it returns an EncodeError if
// called through the Codec interface expecting bytes. Channel code should special-case
// Passthrough via ReduceValue instead; this method exists only so
// Passthrough satisfies the Codec interface for registration purposes.
func (p *Passthrough) Encode(d *schema.Descriptor, v *schema.Value) ([]byte, error) {
	return nil, rpcerr.NewEncodeError("passthrough", "does not produce bytes; use ReduceValue")
}

func (p *Passthrough) Decode(d *schema.Descriptor, data []byte) (*schema.Value, []byte, error) {
	return nil, nil, rpcerr.NewDecodeError("passthrough", "does not consume bytes; use ConstructValue")
}

// ReduceValue exposes the canonical native form directly, the operation
// Passthrough actually exists to provide.
func (p *Passthrough) ReduceValue(v *schema.Value, allowUninit bool) (any, error) {
	return v.Reduce(allowUninit)
}

// ConstructValue builds a Value from a canonical native form directly.
func (p *Passthrough) ConstructValue(d *schema.Descriptor, canonical any) (*schema.Value, error) {
	v := schema.New(d)
	if err := v.Construct(canonical); err != nil {
		return nil, err
	}
	return v, nil
}

func (p *Passthrough) FieldSizeOf(d *schema.Descriptor, v *schema.Value, path string) (int, error) {
	return 0, rpcerr.NewFramingError("passthrough codec does not support field_size_of")
}

func (p *Passthrough) OffsetOf(d *schema.Descriptor, v *schema.Value, path string) (int, error) {
	return 0, rpcerr.NewFramingError("passthrough codec does not support offset_of")
}

// PrettyPrint renders v's canonical form as an indented, deterministically
// ordered tree for logs and test failure messages.
func PrettyPrint(v *schema.Value) string {
	var b strings.Builder
	prettyPrintValue(&b, v, 0)
	return b.String()
}

func prettyPrintValue(b *strings.Builder, v *schema.Value, depth int) {
	indent := strings.Repeat("  ", depth)
	switch v.Desc.Kind {
	case schema.KindDict:
		fmt.Fprintf(b, "%s{\n", indent)
		names := schema.SortedFieldNames(v.Desc)
		sort.Strings(names)
		for _, name := range names {
			fv, ok := v.FieldRaw(name)
			if !ok {
				continue
			}
			fmt.Fprintf(b, "%s  %s:\n", indent, name)
			prettyPrintValue(b, fv, depth+2)
		}
		fmt.Fprintf(b, "%s}\n", indent)
	case schema.KindArray:
		fmt.Fprintf(b, "%s[\n", indent)
		for _, ev := range v.Elements() {
			prettyPrintValue(b, ev, depth+1)
		}
		fmt.Fprintf(b, "%s]\n", indent)
	case schema.KindMap:
		fmt.Fprintf(b, "%s{\n", indent)
		keys, vals := v.MapPairs()
		for i := range keys {
			fmt.Fprintf(b, "%s  %s:\n", indent, oneLine(keys[i]))
			prettyPrintValue(b, vals[i], depth+2)
		}
		fmt.Fprintf(b, "%s}\n", indent)
	case schema.KindVariant:
		fmt.Fprintf(b, "%s%v\n", indent, v.VariantValue().Reduce())
	case schema.KindString, schema.KindBuffer:
		fmt.Fprintf(b, "%s%q\n", indent, v.Str())
	default:
		reduced, err := v.Reduce(true)
		if err != nil {
			fmt.Fprintf(b, "%s<error: %s>\n", indent, err.Error())
			return
		}
		fmt.Fprintf(b, "%s%v\n", indent, reduced)
	}
}

func oneLine(v *schema.Value) string {
	reduced, err := v.Reduce(true)
	if err != nil {
		return "<error>"
	}
	return fmt.Sprintf("%v", reduced)
}
