package layout

import (
	"math"
	"sort"

	"github.com/wippyai/mojo-wire/codec/internal/wire"
	"github.com/wippyai/mojo-wire/schema"
)

// Kind is the wire representation of a struct field or array element.
type Kind uint8

const (
	// KindLeaf is a fixed-width scalar, enum or handle slot.
	KindLeaf Kind = iota
	// KindBitfield is one bit of a byte shared by up to 8 booleans.
	KindBitfield
	// KindPointer is an 8-byte relative offset to an out-of-line object.
	KindPointer
	// KindUnion is an inline 16-byte union.
	KindUnion
)

func (k Kind) String() string {
	switch k {
	case KindLeaf:
		return "leaf"
	case KindBitfield:
		return "bitfield"
	case KindPointer:
		return "pointer"
	case KindUnion:
		return "union"
	default:
		return "unknown"
	}
}

// Slot is the placement of one struct field. Offset is relative to the start
// of the struct payload, just past the StructHeader.
type Slot struct {
	// HasValue is the presence bit of a nullable scalar or enum field,
	// placed as if it were a bool field declared just before it.
	HasValue *Slot

	Field  int
	Kind   Kind
	Offset uint32
	Size   uint32
	Bit    uint8
}

// End returns the first payload byte after the slot and its presence bit.
func (s Slot) End() uint32 {
	end := s.Offset + s.Size
	if s.HasValue != nil && s.HasValue.End() > end {
		end = s.HasValue.End()
	}
	return end
}

// VersionSize is the exact encoded struct size, header included, for one
// struct version.
type VersionSize struct {
	Version uint32
	Size    uint32
}

// Struct is the packed layout of a schema struct.
type Struct struct {
	Schema *schema.Struct

	// Slots is indexed by field declaration order.
	Slots []Slot

	// Order lists field indices in wire order: ascending offset, then bit.
	Order []int

	PayloadSize uint32
	Size        uint32
	Versions    []VersionSize
}

// SizeFor returns the exact size for a known version.
func (s *Struct) SizeFor(version uint32) (uint32, bool) {
	for _, v := range s.Versions {
		if v.Version == version {
			return v.Size, true
		}
	}
	return 0, false
}

// Latest returns the newest known version and its size.
func (s *Struct) Latest() VersionSize {
	return s.Versions[len(s.Versions)-1]
}

// FieldKind returns the wire kind of a struct field or union variant of
// type t. Unions are inline except when nullable or nested inside another
// union, where they become pointers.
func FieldKind(t schema.Type, nullable, inUnion bool) (Kind, uint32) {
	switch typ := t.(type) {
	case schema.Leaf:
		if typ.Kind == schema.KindBool {
			return KindBitfield, 1
		}
		return KindLeaf, typ.Kind.Size()
	case *schema.Enum, schema.Handle:
		return KindLeaf, 4
	case *schema.Union:
		if nullable || inUnion {
			return KindPointer, wire.PointerSize
		}
		return KindUnion, wire.UnionSize
	default:
		return KindPointer, wire.PointerSize
	}
}

// HasPresenceBit reports whether a field of type t needs a separate
// has-value bit to be nullable.
func HasPresenceBit(t schema.Type, nullable bool) bool {
	return nullable && schema.IsValueKind(t)
}

// packed is a placed slot plus its bitfield occupancy.
type packed struct {
	slot *Slot
	bits uint8
}

// Pack lays out a struct. Fields are placed in declaration order; each new
// field goes into the first gap between already-placed fields that can hold
// it at its natural alignment, and booleans share a byte with an earlier
// boolean while that byte has a free bit. A nullable scalar places its
// presence bit first, then its value. Packing cannot fail.
func Pack(s *schema.Struct) *Struct {
	out := &Struct{
		Schema: s,
		Slots:  make([]Slot, len(s.Fields)),
	}
	flags := make([]Slot, len(s.Fields))

	// placed is kept sorted by offset.
	var placed []packed
	for i, f := range s.Fields {
		if HasPresenceBit(f.Type, f.Nullable) {
			flag := &flags[i]
			flag.Field = i
			flag.Kind = KindBitfield
			flag.Size = 1
			placed = place(placed, flag)
			out.Slots[i].HasValue = flag
		}

		kind, size := FieldKind(f.Type, f.Nullable, false)
		slot := &out.Slots[i]
		slot.Field = i
		slot.Kind = kind
		slot.Size = size
		placed = place(placed, slot)
	}

	out.Order = make([]int, len(s.Fields))
	for i := range out.Order {
		out.Order[i] = i
	}
	sort.SliceStable(out.Order, func(a, b int) bool {
		sa, sb := out.Slots[out.Order[a]], out.Slots[out.Order[b]]
		if sa.Offset != sb.Offset {
			return sa.Offset < sb.Offset
		}
		return sa.Bit < sb.Bit
	})

	out.Versions = versionSizes(s, out.Slots)
	latest := out.Latest()
	out.Size = latest.Size
	out.PayloadSize = latest.Size - wire.HeaderSize
	return out
}

// place inserts slot into the first gap of placed that fits it.
func place(placed []packed, slot *Slot) []packed {
	if len(placed) == 0 {
		return append(placed, packed{slot: slot, bits: 1})
	}
	for j := range placed {
		prev := &placed[j]
		if slot.Kind == KindBitfield && prev.slot.Kind == KindBitfield && prev.bits < 8 {
			slot.Offset = prev.slot.Offset
			slot.Bit = prev.bits
			prev.bits++
			return placed
		}

		off := uint32(wire.AlignTo(uint64(prev.slot.Offset+prev.slot.Size), uint64(alignOf(slot.Size))))
		var next *packed
		if j+1 < len(placed) {
			next = &placed[j+1]
		}
		if next == nil || off+slot.Size <= next.slot.Offset {
			slot.Offset = off
			placed = append(placed, packed{})
			copy(placed[j+2:], placed[j+1:])
			placed[j+1] = packed{slot: slot, bits: 1}
			return placed
		}
	}
	return placed
}

// alignOf is the natural alignment of a slot: its size, capped at 8 for
// inline unions.
func alignOf(size uint32) uint32 {
	if size > wire.Alignment {
		return wire.Alignment
	}
	return size
}

// versionSizes computes the size of every version from the fields that
// exist in it. Fields added later may fill gaps left by earlier ones, so a
// version's size is the furthest end among its own fields.
func versionSizes(s *schema.Struct, slots []Slot) []VersionSize {
	var versions []VersionSize
	emit := func(v uint32) {
		var end uint32
		for i, f := range s.Fields {
			if f.MinVersion <= v && slots[i].End() > end {
				end = slots[i].End()
			}
		}
		size := uint32(wire.HeaderSize + wire.AlignTo(uint64(end), wire.Alignment))
		versions = append(versions, VersionSize{Version: v, Size: size})
	}

	emit(0)
	last := uint32(0)
	for _, f := range s.Fields {
		if f.MinVersion > last {
			last = f.MinVersion
			emit(last)
		}
	}
	return versions
}

// Elem is the encoding of one array element.
type Elem struct {
	Kind Kind
	// Size is the element width in bytes; zero for bit-packed booleans.
	Size uint32
	// HasValue marks an array of nullable scalars, whose elements are
	// preceded by one presence bit per element.
	HasValue bool
}

// ElemOf returns the element encoding of an array. Bool arrays are
// bit-packed; unions are inline 16-byte records unless nullable.
func ElemOf(a *schema.Array) Elem {
	kind, size := FieldKind(a.Elem, a.ElemNullable, false)
	hasValue := HasPresenceBit(a.Elem, a.ElemNullable)
	if kind == KindBitfield {
		return Elem{Kind: KindBitfield, HasValue: hasValue}
	}
	return Elem{Kind: kind, Size: size, HasValue: hasValue}
}

// PresenceBytes returns the size of the has-value bitfield that precedes n
// elements: whole element-width words, so the elements stay aligned.
func PresenceBytes(e Elem, n uint64) uint64 {
	if !e.HasValue {
		return 0
	}
	width := uint64(e.Size)
	if width == 0 {
		width = 1
	}
	bits := width * 8
	return (n + bits - 1) / bits * width
}

// ArrayPayload returns the payload size of n elements, or false on
// overflow.
func ArrayPayload(e Elem, n uint64) (uint64, bool) {
	if n > math.MaxUint32 {
		return 0, false
	}
	prefix := PresenceBytes(e, n)
	if e.Kind == KindBitfield {
		return prefix + wire.BitfieldBytes(n), true
	}
	body, ok := wire.SafeMul(n, uint64(e.Size))
	if !ok {
		return 0, false
	}
	return wire.SafeAdd(prefix, body)
}
