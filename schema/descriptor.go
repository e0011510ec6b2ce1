package schema

import (
	"fmt"
	"sync"
)

// SizeRefHook is the explicit forward/inverse pair mapping a referred
// field's byte count to the value stored in its size-ref field and back.
// The source applies the same hook symbol in both directions in some
// paths; this type resolves that Open Question by always requiring both
// halves explicitly.
type SizeRefHook struct {
	Forward func(byteCount int) int64
	Inverse func(storedValue int64) int
}

// IdentityHook is the default size_ref_hook: the stored value equals the
// byte count exactly.
var IdentityHook = SizeRefHook{
	Forward: func(n int) int64 { return int64(n) },
	Inverse: func(v int64) int { return int(v) },
}

// FieldDescriptor describes one field of a Dict. Use Field or Tagged (then
// .Optional() for an optional field) to construct one with sane zero values (Tag defaults to -1, meaning unset).
type FieldDescriptor struct {
	Name        string
	Type        *Descriptor
	Tag         int // small non-negative integer used by TagBinary; -1 if unset
	Required    bool
	HasDefault  bool
	Default     any
	Display     string // optional alias used for field access
	AllowNone   bool
	ByteSize    int    // fixed String/Buffer byte width; 0 = unset/to-end
	SizeRef     string // name of another field holding this field's length
	SizeRefHook SizeRefHook
	Serializer  string // per-field codec override name, "" if unset
}

// Field declares a required field with no TagBinary tag assigned.
func Field(name string, typ *Descriptor) FieldDescriptor {
	return FieldDescriptor{Name: name, Type: typ, Tag: -1, Required: true, SizeRefHook: IdentityHook}
}

// Tagged declares a required field carrying an explicit TagBinary tag.
func Tagged(tag int, name string, typ *Descriptor) FieldDescriptor {
	f := Field(name, typ)
	f.Tag = tag
	return f
}

// Optional marks a field as not required (omissible at construct/reduce).
func (f FieldDescriptor) Optional() FieldDescriptor {
	f.Required = false
	return f
}

// WithDefault attaches a default value, implying Optional semantics at
// reduce time (the field materializes the default on read).
func (f FieldDescriptor) WithDefault(v any) FieldDescriptor {
	f.HasDefault = true
	f.Default = v
	f.Required = false
	return f
}

// WithByteSize fixes a String/Buffer field's encoded width (0 = to end of
// buffer, legal only as the last field).
func (f FieldDescriptor) WithByteSize(n int) FieldDescriptor {
	f.ByteSize = n
	return f
}

// WithSizeRef ties this field's byte length to another field named ref,
// transformed through hook (IdentityHook if the caller has no custom pair).
func (f FieldDescriptor) WithSizeRef(ref string, hook SizeRefHook) FieldDescriptor {
	f.SizeRef = ref
	f.SizeRefHook = hook
	return f
}

// WithDisplay attaches an alias usable in place of Name for field access.
func (f FieldDescriptor) WithDisplay(alias string) FieldDescriptor {
	f.Display = alias
	return f
}

// WithSerializer pins a per-field codec override by name.
func (f FieldDescriptor) WithSerializer(name string) FieldDescriptor {
	f.Serializer = name
	return f
}

// Descriptor is a TypeDescriptor value: plain data describing one schema
// node. Composite descriptors reference children by pointer (Array, Map)
// or through the global registry by name (Dict), which is what lets Dicts
// be self-referential without an infinite struct literal.
type Descriptor struct {
	Kind Kind

	// Array/Map children.
	Elem *Descriptor // Array element type
	Key  *Descriptor // Map key type
	Val  *Descriptor // Map value type

	// Array sizing.
	ArraySize    int // 0 means "consume to end"; only legal for the last field
	ElemByteSize int // fixed per-element byte width, String/Buffer elements only

	// String/Buffer sizing lives on the owning FieldDescriptor (ByteSize,
	// SizeRef) since it is meaningless outside of field context.

	// Dict.
	Name        string
	Fields      []FieldDescriptor
	LengthField string // dotted path, e.g. "head.len"; "" if this Dict has none
	DefaultCodec string
	Bases       []*Descriptor // base Dict descriptors this one extends
}

var (
	registryMu sync.RWMutex
	registry   = map[string]*Descriptor{}
)

// Register makes a Dict descriptor resolvable by name, enabling
// self-referential schemas: a field may reference its own Dict type by
// name via RefDict before the descriptor literal finishes construction.
func Register(d *Descriptor) *Descriptor {
	if d.Kind != KindDict {
		panic("schema: Register requires a Dict descriptor")
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[d.Name] = d
	return d
}

const refPrefix = "@ref:"

// RefDict returns a lazily-resolved placeholder for a Dict registered (or
// to be registered) under name. Used to break cycles: a Dict field may
// refer to its own (or another) Dict type before that descriptor has
// finished being constructed, since resolution happens at first use, not
// at RefDict call time.
func RefDict(name string) *Descriptor {
	return &Descriptor{Kind: KindDict, Name: refPrefix + name}
}

func (d *Descriptor) resolve() *Descriptor {
	if d.Kind == KindDict && len(d.Name) > len(refPrefix) && d.Name[:len(refPrefix)] == refPrefix {
		target := d.Name[len(refPrefix):]
		registryMu.RLock()
		resolved, ok := registry[target]
		registryMu.RUnlock()
		if !ok {
			panic("schema: unresolved dict reference " + target)
		}
		return resolved
	}
	return d
}

// GetFields walks base Dict descriptors (depth-first, matching the Python
// source's BaseClassIterator) merging _fields_ lists, detecting cyclic
// inheritance.
func (d *Descriptor) GetFields() ([]FieldDescriptor, error) {
	seen := map[*Descriptor]bool{}
	var out []FieldDescriptor
	var walk func(cur *Descriptor) error
	walk = func(cur *Descriptor) error {
		cur = cur.resolve()
		if seen[cur] {
			return fmt.Errorf("cyclic inheritance detected at dict %q", cur.Name)
		}
		seen[cur] = true
		for _, base := range cur.Bases {
			if err := walk(base); err != nil {
				return err
			}
		}
		out = append(out, cur.Fields...)
		return nil
	}
	if err := walk(d); err != nil {
		return nil, err
	}
	return out, nil
}

// FieldByName returns the field descriptor matching name or its Display
// alias, and whether it was found.
func (d *Descriptor) FieldByName(name string) (FieldDescriptor, bool) {
	fields, err := d.GetFields()
	if err != nil {
		return FieldDescriptor{}, false
	}
	for _, f := range fields {
		if f.Name == name || (f.Display != "" && f.Display == name) {
			return f, true
		}
	}
	return FieldDescriptor{}, false
}

// FieldByTag returns the field descriptor carrying the given TagBinary tag.
func (d *Descriptor) FieldByTag(tag int) (FieldDescriptor, bool) {
	fields, err := d.GetFields()
	if err != nil {
		return FieldDescriptor{}, false
	}
	for _, f := range fields {
		if f.Tag == tag {
			return f, true
		}
	}
	return FieldDescriptor{}, false
}

// Scalar descriptor constructors — singletons, since scalar descriptors
// carry no per-instance state.
var (
	Int8    = &Descriptor{Kind: KindInt8}
	Int16   = &Descriptor{Kind: KindInt16}
	Int32   = &Descriptor{Kind: KindInt32}
	Int64   = &Descriptor{Kind: KindInt64}
	Uint8   = &Descriptor{Kind: KindUint8}
	Uint16  = &Descriptor{Kind: KindUint16}
	Uint32  = &Descriptor{Kind: KindUint32}
	Uint64  = &Descriptor{Kind: KindUint64}
	Float32 = &Descriptor{Kind: KindFloat32}
	Float64 = &Descriptor{Kind: KindFloat64}
	Bool    = &Descriptor{Kind: KindBool}
	StringT = &Descriptor{Kind: KindString}
	BufferT = &Descriptor{Kind: KindBuffer}
	VariantT = &Descriptor{Kind: KindVariant}
)

// Array builds an Array(T) descriptor. size == 0 means "consume to end",
// legal only when this array is the last field of its Dict.
func Array(elem *Descriptor, size int) *Descriptor {
	return &Descriptor{Kind: KindArray, Elem: elem, ArraySize: size}
}

// Map builds a Map(K,V) descriptor. Only self-describing codecs (TagBinary,
// JSON, Passthrough) accept Map; Binary rejects it at encode/decode time.
func Map(key, val *Descriptor) *Descriptor {
	return &Descriptor{Kind: KindMap, Key: key, Val: val}
}

// Dict declares a named record: an ordered list of fields. lengthField, if
// non-empty, is a dotted path used by the Packet Framer.
func Dict(name string, lengthField string, fields ...FieldDescriptor) *Descriptor {
	return &Descriptor{Kind: KindDict, Name: name, Fields: fields, LengthField: lengthField}
}
