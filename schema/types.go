package schema

import (
	"strconv"
	"strings"
)

// Type is a schema type. The set of implementations is closed: Leaf, *Enum,
// String, Handle, *Array, *Map, *Struct and *Union.
type Type interface {
	String() string
	isType()
}

// LeafKind identifies a fixed-width scalar.
type LeafKind uint8

const (
	KindBool LeafKind = iota
	KindInt8
	KindUint8
	KindInt16
	KindUint16
	KindInt32
	KindUint32
	KindInt64
	KindUint64
	KindFloat32
	KindFloat64
)

var leafNames = [...]string{
	KindBool:    "bool",
	KindInt8:    "int8",
	KindUint8:   "uint8",
	KindInt16:   "int16",
	KindUint16:  "uint16",
	KindInt32:   "int32",
	KindUint32:  "uint32",
	KindInt64:   "int64",
	KindUint64:  "uint64",
	KindFloat32: "float32",
	KindFloat64: "float64",
}

func (k LeafKind) String() string {
	if int(k) < len(leafNames) {
		return leafNames[k]
	}
	return "unknown"
}

// Size returns the encoded width in bytes. Bool reports 1 even though
// struct fields pack booleans into shared bitfield bytes.
func (k LeafKind) Size() uint32 {
	switch k {
	case KindBool, KindInt8, KindUint8:
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

// Leaf is a fixed-width scalar type.
type Leaf struct {
	Kind LeafKind
}

func (l Leaf) String() string { return l.Kind.String() }
func (Leaf) isType()          {}

var (
	Bool    = Leaf{Kind: KindBool}
	Int8    = Leaf{Kind: KindInt8}
	Uint8   = Leaf{Kind: KindUint8}
	Int16   = Leaf{Kind: KindInt16}
	Uint16  = Leaf{Kind: KindUint16}
	Int32   = Leaf{Kind: KindInt32}
	Uint32  = Leaf{Kind: KindUint32}
	Int64   = Leaf{Kind: KindInt64}
	Uint64  = Leaf{Kind: KindUint64}
	Float32 = Leaf{Kind: KindFloat32}
	Float64 = Leaf{Kind: KindFloat64}
)

// Enum is an int32-encoded enumeration. Extensible enums accept values
// outside Values when decoding.
type Enum struct {
	Name       string
	Values     []int32
	Extensible bool
}

func (e *Enum) String() string { return e.Name }
func (*Enum) isType()          {}

// Contains reports whether v is a declared value.
func (e *Enum) Contains(v int32) bool {
	for _, x := range e.Values {
		if x == v {
			return true
		}
	}
	return false
}

// String is a UTF-8 string, encoded as a byte array but checked as text.
type String struct{}

func (String) String() string { return "string" }
func (String) isType()        {}

// Handle is a transferable handle slot: an index into the handles that
// travel alongside the message bytes.
type Handle struct{}

func (Handle) String() string { return "handle" }
func (Handle) isType()        {}

// Array is a homogeneous array. FixedLen 0 means unbounded.
type Array struct {
	Elem         Type
	ElemNullable bool
	FixedLen     uint32
}

func (a *Array) String() string {
	var b strings.Builder
	b.WriteString("array<")
	b.WriteString(a.Elem.String())
	if a.ElemNullable {
		b.WriteByte('?')
	}
	if a.FixedLen > 0 {
		b.WriteString(", ")
		b.WriteString(strconv.FormatUint(uint64(a.FixedLen), 10))
	}
	b.WriteByte('>')
	return b.String()
}

func (*Array) isType() {}

// Map is an associative array. On the wire it is a 24-byte struct holding
// a pointer to the key array and a pointer to the value array; entries keep
// their order. Keys are scalars, enums or strings and are never null.
type Map struct {
	Key           Type
	Value         Type
	ValueNullable bool
}

func (m *Map) String() string {
	var b strings.Builder
	b.WriteString("map<")
	b.WriteString(m.Key.String())
	b.WriteString(", ")
	b.WriteString(m.Value.String())
	if m.ValueNullable {
		b.WriteByte('?')
	}
	b.WriteByte('>')
	return b.String()
}

func (*Map) isType() {}

// Keys returns the key array type of the wire form.
func (m *Map) Keys() *Array {
	return &Array{Elem: m.Key}
}

// Values returns the value array type of the wire form.
func (m *Map) Values() *Array {
	return &Array{Elem: m.Value, ElemNullable: m.ValueNullable}
}

// Field is a struct member in declaration order. Default, when set, is the
// value of a scalar or enum field decoded from a version that predates it,
// and the value encoded when the caller leaves the field nil.
type Field struct {
	Type       Type
	Default    any
	Name       string
	MinVersion uint32
	Nullable   bool
}

// Struct is a versioned record. Fields appear in declaration order; a field
// added in a later version carries that version as MinVersion.
type Struct struct {
	Name   string
	Fields []Field
}

func (s *Struct) String() string { return s.Name }
func (*Struct) isType()          {}

// Version returns the newest version any field belongs to.
func (s *Struct) Version() uint32 {
	var v uint32
	for _, f := range s.Fields {
		if f.MinVersion > v {
			v = f.MinVersion
		}
	}
	return v
}

// Field looks up a field by name.
func (s *Struct) Field(name string) (int, bool) {
	for i, f := range s.Fields {
		if f.Name == name {
			return i, true
		}
	}
	return -1, false
}

// Variant is one alternative of a union.
type Variant struct {
	Type     Type
	Name     string
	Tag      uint32
	Nullable bool
}

// Union is a tagged union. Extensible unions decode unknown tags as opaque
// values instead of failing.
type Union struct {
	Name       string
	Variants   []Variant
	Extensible bool
}

func (u *Union) String() string { return u.Name }
func (*Union) isType()          {}

// Variant returns the variant with the given tag.
func (u *Union) Variant(tag uint32) (*Variant, bool) {
	for i := range u.Variants {
		if u.Variants[i].Tag == tag {
			return &u.Variants[i], true
		}
	}
	return nil, false
}

// NewUnion builds a union whose tags are the variant indices.
func NewUnion(name string, extensible bool, variants ...Variant) *Union {
	for i := range variants {
		variants[i].Tag = uint32(i)
	}
	return &Union{Name: name, Variants: variants, Extensible: extensible}
}

// IsPointer reports whether values of t are stored out of line when they
// appear as struct fields or array elements.
func IsPointer(t Type) bool {
	switch t.(type) {
	case String, *Array, *Map, *Struct:
		return true
	default:
		return false
	}
}

// Nullable reports whether null is representable in the slot of type t
// itself: a null pointer or an invalid handle.
func Nullable(t Type) bool {
	switch t.(type) {
	case String, *Array, *Map, *Struct, *Union, Handle:
		return true
	default:
		return false
	}
}

// IsValueKind reports whether t is a scalar or enum. Nullable value kinds
// carry a separate has-value bit next to the value slot.
func IsValueKind(t Type) bool {
	switch t.(type) {
	case Leaf, *Enum:
		return true
	default:
		return false
	}
}
