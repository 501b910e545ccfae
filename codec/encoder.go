package codec

import (
	"math"
	"reflect"
	"strconv"
	"unicode/utf8"

	"github.com/wippyai/mojo-wire/codec/internal/layout"
	"github.com/wippyai/mojo-wire/codec/internal/wire"
	"github.com/wippyai/mojo-wire/errors"
	"github.com/wippyai/mojo-wire/schema"
)

// Encoder produces the canonical encoding of values. Objects are allocated
// depth-first in the order the decoder claims them, so every encoded buffer
// decodes back to the same value.
type Encoder struct {
	registry *Registry
}

func NewEncoder(reg *Registry) *Encoder {
	return &Encoder{registry: reg}
}

// Encode encodes v as a bare struct.
func (e *Encoder) Encode(s *schema.Struct, v *StructValue) ([]byte, error) {
	if err := e.registry.Register(s); err != nil {
		return nil, err
	}
	st := &encodeState{w: wire.NewWriter(64), registry: e.registry, lastHandle: -1}
	if _, err := st.structValue(s, v, []string{s.Name}); err != nil {
		return nil, err
	}
	return st.w.Bytes(), nil
}

// EncodeMessage encodes a header followed by the payload struct. The header
// version is the smallest one able to carry the fields set in h; h.Version
// is ignored.
func (e *Encoder) EncodeMessage(h MessageHeader, s *schema.Struct, v *StructValue) ([]byte, error) {
	if err := e.registry.Register(s); err != nil {
		return nil, err
	}
	version := h.minVersion()
	if err := checkFlags(errors.PhaseEncode, h.Flags, version); err != nil {
		return nil, err
	}

	st := &encodeState{w: wire.NewWriter(128), registry: e.registry, lastHandle: -1}
	size := headerSizes[version]
	st.w.Alloc(uint64(size))
	st.w.PutStructHeader(0, wire.StructHeader{Size: size, Version: version})
	st.w.PutU32(offInterfaceID, h.InterfaceID)
	st.w.PutU32(offName, h.Name)
	st.w.PutU32(offFlags, uint32(h.Flags))
	if version >= 1 {
		st.w.PutU64(offRequestID, h.RequestID)
	}
	if version >= 3 {
		st.w.PutU64(offCreation, uint64(h.CreationTimeTicks))
	}

	payload, err := st.structValue(s, v, []string{s.Name})
	if err != nil {
		return nil, err
	}
	if version >= 2 {
		st.w.PutPointer(offPayload, payload)
		if h.InterfaceIDs != nil {
			ids := make([]any, len(h.InterfaceIDs))
			for i, id := range h.InterfaceIDs {
				ids[i] = id
			}
			off, err := st.array(&schema.Array{Elem: schema.Uint32}, ids, []string{"header", "payload_interface_ids"})
			if err != nil {
				return nil, err
			}
			st.w.PutPointer(offInterfaceIDs, off)
		}
	}
	return st.w.Bytes(), nil
}

type encodeState struct {
	w          *wire.Writer
	registry   *Registry
	lastHandle int64
}

func encodeErr(kind errors.Kind, path []string, format string, args ...any) error {
	return errors.New(errors.PhaseEncode, kind).
		Path(path...).
		Detail(format, args...).
		Build()
}

// isNil reports whether v is nil or a typed nil of a value kind the encoder
// accepts for pointer slots.
func isNil(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case *StructValue:
		return x == nil
	case *UnionValue:
		return x == nil
	case *MapValue:
		return x == nil
	case []any:
		return x == nil
	case []byte:
		return x == nil
	default:
		return false
	}
}

func (st *encodeState) structValue(s *schema.Struct, v *StructValue, path []string) (uint64, error) {
	if v == nil {
		return 0, errors.UnexpectedNull(errors.PhaseEncode, path, errors.NoOffset)
	}
	if len(v.Fields) != len(s.Fields) {
		return 0, encodeErr(errors.KindInvalidInput, path,
			"struct %s has %d fields, value has %d", s.Name, len(s.Fields), len(v.Fields))
	}

	l := st.registry.packed(s)
	size, _ := expectedStructSize(l, v.Version)
	off := st.w.Alloc(uint64(size))
	st.w.PutStructHeader(off, wire.StructHeader{Size: size, Version: v.Version})

	payload := off + wire.HeaderSize
	for _, i := range l.Order {
		f := s.Fields[i]
		if f.MinVersion > v.Version {
			continue
		}
		slot := l.Slots[i]
		fv := v.Fields[i]
		if fv == nil && f.Default != nil {
			fv = f.Default
		}
		if slot.HasValue != nil {
			if fv == nil {
				continue
			}
			st.w.PutBit(payload+uint64(slot.HasValue.Offset), slot.HasValue.Bit, true)
		}
		if err := st.slot(slot.Kind, f.Type, f.Nullable, payload+uint64(slot.Offset), slot.Bit, fv, sub(path, f.Name)); err != nil {
			return 0, err
		}
	}
	return off, nil
}

func (st *encodeState) slot(kind layout.Kind, t schema.Type, nullable bool, at uint64, bit uint8, v any, path []string) error {
	switch kind {
	case layout.KindBitfield:
		b, ok := v.(bool)
		if !ok {
			return errors.TypeMismatch(errors.PhaseEncode, path, typeName(v), "bool")
		}
		st.w.PutBit(at, bit, b)
		return nil
	case layout.KindLeaf:
		return st.leaf(t, nullable, at, v, path)
	case layout.KindPointer:
		if isNil(v) {
			if !nullable {
				return errors.UnexpectedNull(errors.PhaseEncode, path, errors.NoOffset)
			}
			st.w.PutU64(at, wire.NullPointer)
			return nil
		}
		off, err := st.object(t, v, path)
		if err != nil {
			return err
		}
		st.w.PutPointer(at, off)
		return nil
	case layout.KindUnion:
		uv, ok := v.(*UnionValue)
		if !ok || uv == nil {
			if isNil(v) {
				return errors.UnexpectedNull(errors.PhaseEncode, path, errors.NoOffset)
			}
			return errors.TypeMismatch(errors.PhaseEncode, path, typeName(v), "*UnionValue")
		}
		return st.union(at, t.(*schema.Union), uv, path)
	default:
		return errors.Unsupported(errors.PhaseEncode, "wire kind "+kind.String())
	}
}

func (st *encodeState) object(t schema.Type, v any, path []string) (uint64, error) {
	switch typ := t.(type) {
	case *schema.Struct:
		sv, ok := v.(*StructValue)
		if !ok {
			return 0, errors.TypeMismatch(errors.PhaseEncode, path, typeName(v), "*StructValue")
		}
		return st.structValue(typ, sv, path)
	case *schema.Array:
		return st.array(typ, v, path)
	case *schema.Map:
		mv, ok := v.(*MapValue)
		if !ok {
			return 0, errors.TypeMismatch(errors.PhaseEncode, path, typeName(v), "*MapValue")
		}
		return st.mapValue(typ, mv, path)
	case schema.String:
		s, ok := v.(string)
		if !ok {
			return 0, errors.TypeMismatch(errors.PhaseEncode, path, typeName(v), "string")
		}
		if !utf8.ValidString(s) {
			return 0, encodeErr(errors.KindInvalidUTF8, path, "string is not valid UTF-8")
		}
		return st.bytes([]byte(s), path)
	case *schema.Union:
		uv, ok := v.(*UnionValue)
		if !ok {
			return 0, errors.TypeMismatch(errors.PhaseEncode, path, typeName(v), "*UnionValue")
		}
		off := st.w.Alloc(wire.UnionSize)
		if err := st.union(off, typ, uv, path); err != nil {
			return 0, err
		}
		return off, nil
	default:
		return 0, errors.TypeMismatch(errors.PhaseEncode, path, typeName(v), t.String())
	}
}

func (st *encodeState) bytes(data []byte, path []string) (uint64, error) {
	if uint64(len(data)) > math.MaxUint32-wire.HeaderSize {
		return 0, errors.Overflow(errors.PhaseEncode, path, len(data), "array size")
	}
	off := st.w.Alloc(wire.HeaderSize + uint64(len(data)))
	st.w.PutArrayHeader(off, wire.ArrayHeader{Size: uint32(wire.HeaderSize + len(data)), NumElems: uint32(len(data))})
	st.w.PutBytes(off+wire.HeaderSize, data)
	return off, nil
}

func (st *encodeState) array(a *schema.Array, v any, path []string) (uint64, error) {
	if data, ok := v.([]byte); ok && a.Elem == schema.Uint8 && !a.ElemNullable {
		if a.FixedLen != 0 && uint32(len(data)) != a.FixedLen {
			return 0, encodeErr(errors.KindWrongSize, path, "fixed array needs %d elements, got %d", a.FixedLen, len(data))
		}
		return st.bytes(data, path)
	}

	elems, ok := v.([]any)
	if !ok {
		return 0, errors.TypeMismatch(errors.PhaseEncode, path, typeName(v), "[]any")
	}
	n := uint64(len(elems))
	if a.FixedLen != 0 && n != uint64(a.FixedLen) {
		return 0, encodeErr(errors.KindWrongSize, path, "fixed array needs %d elements, got %d", a.FixedLen, n)
	}

	elem := layout.ElemOf(a)
	payload, ok := layout.ArrayPayload(elem, n)
	if !ok || payload > math.MaxUint32-wire.HeaderSize {
		return 0, errors.Overflow(errors.PhaseEncode, path, n, "array size")
	}
	off := st.w.Alloc(wire.HeaderSize + payload)
	st.w.PutArrayHeader(off, wire.ArrayHeader{Size: uint32(wire.HeaderSize + payload), NumElems: uint32(n)})

	flags := off + wire.HeaderSize
	base := flags + layout.PresenceBytes(elem, n)
	for i, ev := range elems {
		idx := uint64(i)
		if elem.HasValue {
			if ev == nil {
				continue
			}
			st.w.PutBit(flags+idx/8, uint8(idx%8), true)
		}
		elemPath := sub(path, "["+strconv.Itoa(i)+"]")
		var err error
		if elem.Kind == layout.KindBitfield {
			err = st.slot(layout.KindBitfield, a.Elem, false, base+idx/8, uint8(idx%8), ev, elemPath)
		} else {
			err = st.slot(elem.Kind, a.Elem, a.ElemNullable, base+idx*uint64(elem.Size), 0, ev, elemPath)
		}
		if err != nil {
			return 0, err
		}
	}
	return off, nil
}

// mapValue writes the map record, then the key array, then the value
// array.
func (st *encodeState) mapValue(m *schema.Map, mv *MapValue, path []string) (uint64, error) {
	if len(mv.Keys) != len(mv.Values) {
		return 0, encodeErr(errors.KindWrongSize, path,
			"map has %d keys and %d values", len(mv.Keys), len(mv.Values))
	}
	off := st.w.Alloc(wire.MapSize)
	st.w.PutStructHeader(off, wire.StructHeader{Size: wire.MapSize})

	keys, err := st.array(m.Keys(), mapElems(mv.Keys), sub(path, "keys"))
	if err != nil {
		return 0, err
	}
	st.w.PutPointer(off+8, keys)
	values, err := st.array(m.Values(), mapElems(mv.Values), sub(path, "values"))
	if err != nil {
		return 0, err
	}
	st.w.PutPointer(off+16, values)
	return off, nil
}

// mapElems keeps an empty side of a map non-nil so it encodes as an empty
// array rather than a type mismatch.
func mapElems(v []any) []any {
	if v == nil {
		return []any{}
	}
	return v
}

func (st *encodeState) union(at uint64, u *schema.Union, uv *UnionValue, path []string) error {
	st.w.PutU32(at, uv.Tag)
	if uv.Unknown {
		if !u.Extensible {
			return encodeErr(errors.KindInvalidDiscriminant, path, "union %s is not extensible", u.Name)
		}
		st.w.PutU64(at+8, uv.Raw)
		return nil
	}
	v, ok := u.Variant(uv.Tag)
	if !ok {
		return encodeErr(errors.KindInvalidDiscriminant, path, "union %s has no tag %d", u.Name, uv.Tag)
	}
	kind, _ := layout.FieldKind(v.Type, v.Nullable, true)
	return st.slot(kind, v.Type, v.Nullable, at+8, 0, uv.Value, sub(path, v.Name))
}

func (st *encodeState) leaf(t schema.Type, nullable bool, at uint64, v any, path []string) error {
	switch typ := t.(type) {
	case *schema.Enum:
		n, err := toInt(v, math.MinInt32, math.MaxInt32, path, typ.Name)
		if err != nil {
			return err
		}
		if !typ.Extensible && !typ.Contains(int32(n)) {
			return errors.InvalidEnum(errors.PhaseEncode, path, errors.NoOffset, int32(n), typ.Name)
		}
		st.w.PutU32(at, uint32(int32(n)))
		return nil
	case schema.Handle:
		return st.handle(nullable, at, v, path)
	case schema.Leaf:
		return st.scalar(typ.Kind, at, v, path)
	default:
		return errors.TypeMismatch(errors.PhaseEncode, path, typeName(v), t.String())
	}
}

func (st *encodeState) handle(nullable bool, at uint64, v any, path []string) error {
	h := InvalidHandle
	switch x := v.(type) {
	case nil:
	case HandleRef:
		h = x
	default:
		return errors.TypeMismatch(errors.PhaseEncode, path, typeName(v), "HandleRef")
	}
	if !h.Valid() {
		if !nullable {
			return errors.UnexpectedNull(errors.PhaseEncode, path, errors.NoOffset)
		}
		st.w.PutU32(at, wire.NullHandle)
		return nil
	}
	if int64(h) <= st.lastHandle {
		return encodeErr(errors.KindInvalidHandle, path,
			"handle index %d must be greater than the previous index %d", h, st.lastHandle)
	}
	st.lastHandle = int64(h)
	st.w.PutU32(at, uint32(h))
	return nil
}

func (st *encodeState) scalar(kind schema.LeafKind, at uint64, v any, path []string) error {
	switch kind {
	case schema.KindBool:
		b, ok := v.(bool)
		if !ok {
			return errors.TypeMismatch(errors.PhaseEncode, path, typeName(v), "bool")
		}
		if b {
			st.w.PutU8(at, 1)
		}
		return nil
	case schema.KindInt8:
		n, err := toInt(v, math.MinInt8, math.MaxInt8, path, "int8")
		if err != nil {
			return err
		}
		st.w.PutU8(at, uint8(int8(n)))
	case schema.KindUint8:
		n, err := toUint(v, math.MaxUint8, path, "uint8")
		if err != nil {
			return err
		}
		st.w.PutU8(at, uint8(n))
	case schema.KindInt16:
		n, err := toInt(v, math.MinInt16, math.MaxInt16, path, "int16")
		if err != nil {
			return err
		}
		st.w.PutU16(at, uint16(int16(n)))
	case schema.KindUint16:
		n, err := toUint(v, math.MaxUint16, path, "uint16")
		if err != nil {
			return err
		}
		st.w.PutU16(at, uint16(n))
	case schema.KindInt32:
		n, err := toInt(v, math.MinInt32, math.MaxInt32, path, "int32")
		if err != nil {
			return err
		}
		st.w.PutU32(at, uint32(int32(n)))
	case schema.KindUint32:
		n, err := toUint(v, math.MaxUint32, path, "uint32")
		if err != nil {
			return err
		}
		st.w.PutU32(at, uint32(n))
	case schema.KindInt64:
		n, err := toInt(v, math.MinInt64, math.MaxInt64, path, "int64")
		if err != nil {
			return err
		}
		st.w.PutU64(at, uint64(n))
	case schema.KindUint64:
		n, err := toUint(v, math.MaxUint64, path, "uint64")
		if err != nil {
			return err
		}
		st.w.PutU64(at, n)
	case schema.KindFloat32:
		switch f := v.(type) {
		case float32:
			st.w.PutU32(at, math.Float32bits(f))
		case float64:
			if !math.IsInf(f, 0) && !math.IsNaN(f) && math.Abs(f) > math.MaxFloat32 {
				return errors.Overflow(errors.PhaseEncode, path, f, "float32")
			}
			st.w.PutU32(at, math.Float32bits(float32(f)))
		default:
			return errors.TypeMismatch(errors.PhaseEncode, path, typeName(v), "float32")
		}
	case schema.KindFloat64:
		switch f := v.(type) {
		case float64:
			st.w.PutU64(at, math.Float64bits(f))
		case float32:
			st.w.PutU64(at, math.Float64bits(float64(f)))
		default:
			return errors.TypeMismatch(errors.PhaseEncode, path, typeName(v), "float64")
		}
	default:
		return errors.Unsupported(errors.PhaseEncode, "leaf kind "+kind.String())
	}
	return nil
}

// toInt converts any Go integer to int64 within [lo, hi]. Values outside
// the range are rejected rather than truncated.
func toInt(v any, lo, hi int64, path []string, target string) (int64, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n := rv.Int()
		if n < lo || n > hi {
			return 0, errors.Overflow(errors.PhaseEncode, path, v, target)
		}
		return n, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		n := rv.Uint()
		if n > uint64(hi) {
			return 0, errors.Overflow(errors.PhaseEncode, path, v, target)
		}
		return int64(n), nil
	default:
		return 0, errors.TypeMismatch(errors.PhaseEncode, path, typeName(v), target)
	}
}

// toUint converts any Go integer to uint64 within [0, hi].
func toUint(v any, hi uint64, path []string, target string) (uint64, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n := rv.Int()
		if n < 0 || uint64(n) > hi {
			return 0, errors.Overflow(errors.PhaseEncode, path, v, target)
		}
		return uint64(n), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		n := rv.Uint()
		if n > hi {
			return 0, errors.Overflow(errors.PhaseEncode, path, v, target)
		}
		return n, nil
	default:
		return 0, errors.TypeMismatch(errors.PhaseEncode, path, typeName(v), target)
	}
}

// typeName returns "nil" for nil values, avoiding reflect.TypeOf(nil) panic.
func typeName(value any) string {
	if value == nil {
		return "nil"
	}
	return reflect.TypeOf(value).String()
}
