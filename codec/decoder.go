package codec

import (
	"math"
	"strconv"
	"unicode/utf8"

	"github.com/wippyai/mojo-wire/codec/internal/layout"
	"github.com/wippyai/mojo-wire/codec/internal/wire"
	"github.com/wippyai/mojo-wire/errors"
	"github.com/wippyai/mojo-wire/schema"
)

// DefaultMaxDepth bounds object nesting on decode.
const DefaultMaxDepth = 100

// Limits bound the work a decoder does for one message.
type Limits struct {
	// MaxDepth is the deepest chain of nested objects accepted.
	MaxDepth int
	// MaxMessageSize rejects larger buffers up front. Zero means no limit.
	MaxMessageSize uint64
}

// Decoder validates untrusted buffers against a schema. It never panics and
// never reads outside the buffer; every failure is an *errors.Error carrying
// the field path and byte offset.
type Decoder struct {
	registry *Registry
	limits   Limits
}

func NewDecoder(reg *Registry) *Decoder {
	return NewDecoderWithLimits(reg, Limits{MaxDepth: DefaultMaxDepth})
}

func NewDecoderWithLimits(reg *Registry, limits Limits) *Decoder {
	if limits.MaxDepth <= 0 {
		limits.MaxDepth = DefaultMaxDepth
	}
	return &Decoder{registry: reg, limits: limits}
}

// Decode validates a bare struct occupying all of buf.
func (d *Decoder) Decode(buf []byte, numHandles uint32, s *schema.Struct) (*StructValue, error) {
	if err := d.prepare(buf, s); err != nil {
		return nil, err
	}
	st := d.newState(buf, numHandles)
	v, err := st.structAt(0, s, []string{s.Name})
	if err != nil {
		return nil, err
	}
	if err := st.finish(); err != nil {
		return nil, err
	}
	return v, nil
}

// DecodeMessage validates a header followed by a payload of struct s.
func (d *Decoder) DecodeMessage(buf []byte, numHandles uint32, s *schema.Struct) (*Message, error) {
	if err := d.prepare(buf, s); err != nil {
		return nil, err
	}
	st := d.newState(buf, numHandles)

	hdr, sh, err := parseHeader(st.r)
	if err != nil {
		return nil, err
	}
	st.claimed = uint64(sh.Size)

	path := []string{s.Name}
	if hdr.Version >= 2 {
		ptr, _ := st.r.U64(offPayload)
		if ptr == wire.NullPointer {
			return nil, errors.UnexpectedNull(errors.PhaseDecode, []string{"header", "payload"}, offPayload)
		}
		if _, err := st.target(offPayload, ptr, []string{"header", "payload"}); err != nil {
			return nil, err
		}
	}
	payload, err := st.structAt(st.claimed, s, path)
	if err != nil {
		return nil, err
	}

	if hdr.Version >= 2 {
		ids, err := st.interfaceIDs()
		if err != nil {
			return nil, err
		}
		hdr.InterfaceIDs = ids
	}
	if err := st.finish(); err != nil {
		return nil, err
	}
	return &Message{Header: hdr, Payload: payload}, nil
}

func (d *Decoder) prepare(buf []byte, s *schema.Struct) error {
	if d.limits.MaxMessageSize > 0 && uint64(len(buf)) > d.limits.MaxMessageSize {
		return errors.New(errors.PhaseDecode, errors.KindInvalidSize).
			Offset(0).
			Value(len(buf)).
			Detail("message of %d bytes exceeds limit %d", len(buf), d.limits.MaxMessageSize).
			Build()
	}
	return d.registry.Register(s)
}

func (d *Decoder) newState(buf []byte, numHandles uint32) *decodeState {
	return &decodeState{
		r:          wire.NewReader(buf),
		registry:   d.registry,
		maxDepth:   d.limits.MaxDepth,
		numHandles: numHandles,
		lastHandle: -1,
	}
}

// decodeState walks one buffer. claimed is the offset of the next byte no
// object has claimed yet; every pointer must resolve exactly to it.
type decodeState struct {
	r          *wire.Reader
	registry   *Registry
	claimed    uint64
	lastHandle int64
	depth      int
	maxDepth   int
	numHandles uint32
}

func (st *decodeState) finish() error {
	if st.claimed < st.r.Len() {
		return errors.TooMuchData(st.claimed, st.r.Len()-st.claimed)
	}
	return nil
}

func (st *decodeState) remaining(off uint64) uint64 {
	if off >= st.r.Len() {
		return 0
	}
	return st.r.Len() - off
}

// sub returns path+name without sharing the backing array of path.
func sub(path []string, name string) []string {
	return append(path[:len(path):len(path)], name)
}

func (st *decodeState) enter(path []string, at uint64) error {
	st.depth++
	if st.depth > st.maxDepth {
		return errors.New(errors.PhaseDecode, errors.KindDepthExceeded).
			Path(path...).
			Offset(at).
			Detail("nesting exceeds %d objects", st.maxDepth).
			Build()
	}
	return nil
}

func (st *decodeState) leave() {
	st.depth--
}

// target checks a non-null pointer value read at `at` and returns the
// absolute offset of the object it refers to.
func (st *decodeState) target(at, ptr uint64, path []string) (uint64, error) {
	if ptr < wire.PointerSize || ptr%wire.Alignment != 0 {
		return 0, errors.InvalidPointer(path, at, ptr)
	}
	tgt, ok := wire.SafeAdd(at, ptr)
	if !ok {
		return 0, errors.InvalidPointer(path, at, ptr)
	}
	if tgt != st.claimed {
		return 0, errors.WrongPointer(path, at, st.claimed, tgt)
	}
	return tgt, nil
}

// claim reserves size bytes, padded to the object alignment, at the
// current claim cursor.
func (st *decodeState) claim(off, size uint64, path []string, context string) error {
	padded, ok := wire.Align8(size)
	if !ok || !st.r.Has(off, padded) {
		return errors.NotEnoughData(path, off, context, padded, st.remaining(off))
	}
	st.claimed = off + padded
	return nil
}

func (st *decodeState) structAt(off uint64, s *schema.Struct, path []string) (*StructValue, error) {
	if err := st.enter(path, off); err != nil {
		return nil, err
	}
	defer st.leave()

	h, ok := st.r.StructHeader(off)
	if !ok {
		return nil, errors.NotEnoughData(path, off, "struct header", wire.HeaderSize, st.remaining(off))
	}
	if h.Size < wire.HeaderSize || h.Size%wire.Alignment != 0 {
		return nil, errors.InvalidSize(path, off, uint64(h.Size))
	}
	l := st.registry.packed(s)
	if want, exact := expectedStructSize(l, h.Version); (exact && h.Size != want) || (!exact && h.Size < want) {
		return nil, errors.WrongSize(path, off, "struct", uint64(want), uint64(h.Size))
	}
	if err := st.claim(off, uint64(h.Size), path, "struct"); err != nil {
		return nil, err
	}

	v := &StructValue{Version: h.Version, Fields: make([]any, len(s.Fields))}
	payload := off + wire.HeaderSize
	for _, i := range l.Order {
		f := s.Fields[i]
		if f.MinVersion > h.Version {
			v.Fields[i] = absentValue(f)
			continue
		}
		slot := l.Slots[i]
		fieldPath := sub(path, f.Name)
		if slot.HasValue != nil {
			at := payload + uint64(slot.HasValue.Offset)
			present, ok := st.r.Bit(at, slot.HasValue.Bit)
			if !ok {
				return nil, errors.NotEnoughData(fieldPath, at, "has-value bit", 1, st.remaining(at))
			}
			if !present {
				continue
			}
		}
		fv, err := st.slot(slot.Kind, f.Type, f.Nullable, payload+uint64(slot.Offset), slot.Bit, fieldPath)
		if err != nil {
			return nil, err
		}
		v.Fields[i] = fv
	}
	return v, nil
}

// expectedStructSize returns the exact size for a known version, or the
// latest size as a lower bound for a newer version.
func expectedStructSize(l *layout.Struct, version uint32) (uint32, bool) {
	latest := l.Latest()
	if version > latest.Version {
		return latest.Size, false
	}
	size := l.Versions[0].Size
	for _, vs := range l.Versions {
		if vs.Version > version {
			break
		}
		size = vs.Size
	}
	return size, true
}

// slot decodes one inline slot: a struct field, array element or union
// payload.
func (st *decodeState) slot(kind layout.Kind, t schema.Type, nullable bool, at uint64, bit uint8, path []string) (any, error) {
	switch kind {
	case layout.KindBitfield:
		b, ok := st.r.Bit(at, bit)
		if !ok {
			return nil, errors.NotEnoughData(path, at, "bool", 1, st.remaining(at))
		}
		return b, nil
	case layout.KindLeaf:
		return st.leaf(t, nullable, at, path)
	case layout.KindPointer:
		return st.pointer(t, nullable, at, path)
	case layout.KindUnion:
		return st.unionAt(at, t.(*schema.Union), path)
	default:
		return nil, errors.Unsupported(errors.PhaseDecode, "wire kind "+kind.String())
	}
}

func (st *decodeState) leaf(t schema.Type, nullable bool, at uint64, path []string) (any, error) {
	switch typ := t.(type) {
	case *schema.Enum:
		raw, ok := st.r.U32(at)
		if !ok {
			return nil, errors.NotEnoughData(path, at, "enum", 4, st.remaining(at))
		}
		v := int32(raw)
		if !typ.Extensible && !typ.Contains(v) {
			return nil, errors.InvalidEnum(errors.PhaseDecode, path, int64(at), v, typ.Name)
		}
		return v, nil
	case schema.Handle:
		return st.handle(nullable, at, path)
	case schema.Leaf:
		return st.scalar(typ.Kind, at, path)
	default:
		return nil, errors.TypeMismatch(errors.PhaseDecode, path, t.String(), "leaf")
	}
}

func (st *decodeState) scalar(kind schema.LeafKind, at uint64, path []string) (any, error) {
	size := uint64(kind.Size())
	if !st.r.Has(at, size) {
		return nil, errors.NotEnoughData(path, at, kind.String(), size, st.remaining(at))
	}
	switch kind {
	case schema.KindBool:
		b, _ := st.r.U8(at)
		return b&1 != 0, nil
	case schema.KindInt8:
		b, _ := st.r.U8(at)
		return int8(b), nil
	case schema.KindUint8:
		b, _ := st.r.U8(at)
		return b, nil
	case schema.KindInt16:
		v, _ := st.r.U16(at)
		return int16(v), nil
	case schema.KindUint16:
		v, _ := st.r.U16(at)
		return v, nil
	case schema.KindInt32:
		v, _ := st.r.U32(at)
		return int32(v), nil
	case schema.KindUint32:
		v, _ := st.r.U32(at)
		return v, nil
	case schema.KindInt64:
		v, _ := st.r.U64(at)
		return int64(v), nil
	case schema.KindUint64:
		v, _ := st.r.U64(at)
		return v, nil
	case schema.KindFloat32:
		v, _ := st.r.U32(at)
		return math.Float32frombits(v), nil
	case schema.KindFloat64:
		v, _ := st.r.U64(at)
		return math.Float64frombits(v), nil
	default:
		return nil, errors.Unsupported(errors.PhaseDecode, "leaf kind "+kind.String())
	}
}

func (st *decodeState) handle(nullable bool, at uint64, path []string) (any, error) {
	idx, ok := st.r.U32(at)
	if !ok {
		return nil, errors.NotEnoughData(path, at, "handle", 4, st.remaining(at))
	}
	if idx == wire.NullHandle {
		if !nullable {
			return nil, errors.UnexpectedNull(errors.PhaseDecode, path, int64(at))
		}
		return InvalidHandle, nil
	}
	if idx >= st.numHandles || int64(idx) <= st.lastHandle {
		return nil, errors.New(errors.PhaseDecode, errors.KindInvalidHandle).
			Path(path...).
			Offset(at).
			Value(idx).
			Detail("handle index %d out of order or beyond %d attached handles", idx, st.numHandles).
			Build()
	}
	st.lastHandle = int64(idx)
	return HandleRef(idx), nil
}

func (st *decodeState) pointer(t schema.Type, nullable bool, at uint64, path []string) (any, error) {
	ptr, ok := st.r.U64(at)
	if !ok {
		return nil, errors.NotEnoughData(path, at, "pointer", wire.PointerSize, st.remaining(at))
	}
	if ptr == wire.NullPointer {
		if !nullable {
			return nil, errors.UnexpectedNull(errors.PhaseDecode, path, int64(at))
		}
		return nil, nil
	}
	tgt, err := st.target(at, ptr, path)
	if err != nil {
		return nil, err
	}

	switch typ := t.(type) {
	case *schema.Struct:
		return st.structAt(tgt, typ, path)
	case *schema.Array:
		return st.arrayAt(tgt, typ, path)
	case schema.String:
		return st.stringAt(tgt, path)
	case *schema.Map:
		return st.mapAt(tgt, typ, path)
	case *schema.Union:
		if err := st.enter(path, tgt); err != nil {
			return nil, err
		}
		defer st.leave()
		if err := st.claim(tgt, wire.UnionSize, path, "union"); err != nil {
			return nil, err
		}
		return st.unionAt(tgt, typ, path)
	default:
		return nil, errors.TypeMismatch(errors.PhaseDecode, path, t.String(), "pointer")
	}
}

// arrayHeader reads and checks an array header and claims the array.
func (st *decodeState) arrayHeader(off uint64, elem layout.Elem, fixedLen uint32, path []string) (wire.ArrayHeader, error) {
	h, ok := st.r.ArrayHeader(off)
	if !ok {
		return h, errors.NotEnoughData(path, off, "array header", wire.HeaderSize, st.remaining(off))
	}
	if h.Size < wire.HeaderSize {
		return h, errors.InvalidSize(path, off, uint64(h.Size))
	}
	payload, ok := layout.ArrayPayload(elem, uint64(h.NumElems))
	if !ok || payload > math.MaxUint32-wire.HeaderSize {
		return h, errors.InvalidSize(path, off, uint64(h.Size))
	}
	if want := wire.HeaderSize + payload; uint64(h.Size) != want {
		return h, errors.WrongSize(path, off, "array", want, uint64(h.Size))
	}
	if fixedLen != 0 && h.NumElems != fixedLen {
		return h, errors.WrongSize(path, off+4, "num_elems", uint64(fixedLen), uint64(h.NumElems))
	}
	if err := st.claim(off, uint64(h.Size), path, "array"); err != nil {
		return h, err
	}
	return h, nil
}

func (st *decodeState) stringAt(off uint64, path []string) (any, error) {
	if err := st.enter(path, off); err != nil {
		return nil, err
	}
	defer st.leave()

	h, err := st.arrayHeader(off, layout.Elem{Kind: layout.KindLeaf, Size: 1}, 0, path)
	if err != nil {
		return nil, err
	}
	data, _ := st.r.Bytes(off+wire.HeaderSize, uint64(h.NumElems))
	if !utf8.Valid(data) {
		return nil, errors.InvalidUTF8(path, off+wire.HeaderSize, data)
	}
	return string(data), nil
}

func (st *decodeState) arrayAt(off uint64, a *schema.Array, path []string) (any, error) {
	if err := st.enter(path, off); err != nil {
		return nil, err
	}
	defer st.leave()

	elem := layout.ElemOf(a)
	h, err := st.arrayHeader(off, elem, a.FixedLen, path)
	if err != nil {
		return nil, err
	}
	n := uint64(h.NumElems)
	flags := off + wire.HeaderSize
	base := flags + layout.PresenceBytes(elem, n)

	if a.Elem == schema.Uint8 && !elem.HasValue {
		data, _ := st.r.Bytes(base, n)
		return append([]byte{}, data...), nil
	}

	out := make([]any, n)
	for i := uint64(0); i < n; i++ {
		if elem.HasValue {
			if present, _ := st.r.Bit(flags+i/8, uint8(i%8)); !present {
				continue
			}
		}
		elemPath := sub(path, "["+strconv.FormatUint(i, 10)+"]")
		var (
			v   any
			err error
		)
		if elem.Kind == layout.KindBitfield {
			v, err = st.slot(layout.KindBitfield, a.Elem, false, base+i/8, uint8(i%8), elemPath)
		} else {
			v, err = st.slot(elem.Kind, a.Elem, a.ElemNullable, base+i*uint64(elem.Size), 0, elemPath)
		}
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// mapAt decodes the 24-byte map record at off and the key and value
// arrays it points to, in that order.
func (st *decodeState) mapAt(off uint64, m *schema.Map, path []string) (any, error) {
	if err := st.enter(path, off); err != nil {
		return nil, err
	}
	defer st.leave()

	h, ok := st.r.StructHeader(off)
	if !ok {
		return nil, errors.NotEnoughData(path, off, "map header", wire.HeaderSize, st.remaining(off))
	}
	if h.Size != wire.MapSize {
		return nil, errors.WrongSize(path, off, "map", wire.MapSize, uint64(h.Size))
	}
	if h.Version != 0 {
		return nil, errors.New(errors.PhaseDecode, errors.KindInvalidData).
			Path(path...).
			Offset(off + 4).
			Value(h.Version).
			Detail("map record version %d, want 0", h.Version).
			Build()
	}
	if err := st.claim(off, wire.MapSize, path, "map"); err != nil {
		return nil, err
	}

	keys, err := st.pointer(m.Keys(), false, off+8, sub(path, "keys"))
	if err != nil {
		return nil, err
	}
	values, err := st.pointer(m.Values(), false, off+16, sub(path, "values"))
	if err != nil {
		return nil, err
	}
	mv := &MapValue{Keys: elements(keys), Values: elements(values)}
	if len(mv.Keys) != len(mv.Values) {
		return nil, errors.WrongSize(path, off+16, "map values", uint64(len(mv.Keys)), uint64(len(mv.Values)))
	}
	return mv, nil
}

// elements returns a decoded array as []any.
func elements(v any) []any {
	switch x := v.(type) {
	case []any:
		return x
	case []byte:
		out := make([]any, len(x))
		for i, b := range x {
			out[i] = b
		}
		return out
	default:
		return nil
	}
}

// unionAt decodes the 16-byte union record at off. The pad word is not
// interpreted.
func (st *decodeState) unionAt(off uint64, u *schema.Union, path []string) (any, error) {
	rec, ok := st.r.Union(off)
	if !ok {
		return nil, errors.NotEnoughData(path, off, "union", wire.UnionSize, st.remaining(off))
	}
	v, known := u.Variant(rec.Tag)
	if !known {
		if !u.Extensible {
			return nil, errors.InvalidDiscriminant(path, off, rec.Tag)
		}
		return &UnionValue{Tag: rec.Tag, Unknown: true, Raw: rec.Payload}, nil
	}

	kind, _ := layout.FieldKind(v.Type, v.Nullable, true)
	val, err := st.slot(kind, v.Type, v.Nullable, off+8, 0, sub(path, v.Name))
	if err != nil {
		return nil, err
	}
	return &UnionValue{Tag: rec.Tag, Value: val}, nil
}

// interfaceIDs resolves the v2+ payload_interface_ids pointer, which
// follows the payload.
func (st *decodeState) interfaceIDs() ([]uint32, error) {
	ids := &schema.Array{Elem: schema.Uint32}
	v, err := st.pointer(ids, true, offInterfaceIDs, []string{"header", "payload_interface_ids"})
	if err != nil || v == nil {
		return nil, err
	}
	elems := v.([]any)
	out := make([]uint32, len(elems))
	for i, e := range elems {
		out[i] = e.(uint32)
	}
	return out, nil
}

// absentValue is the value of a field missing from an older struct
// version.
func absentValue(f schema.Field) any {
	switch {
	case f.Default != nil:
		return f.Default
	case f.Nullable && schema.IsValueKind(f.Type):
		return nil
	default:
		return zeroValue(f.Type)
	}
}

// zeroValue is the zero value of a scalar, enum or handle type, and nil
// for everything stored out of line.
func zeroValue(t schema.Type) any {
	switch typ := t.(type) {
	case schema.Leaf:
		switch typ.Kind {
		case schema.KindBool:
			return false
		case schema.KindInt8:
			return int8(0)
		case schema.KindUint8:
			return uint8(0)
		case schema.KindInt16:
			return int16(0)
		case schema.KindUint16:
			return uint16(0)
		case schema.KindInt32:
			return int32(0)
		case schema.KindUint32:
			return uint32(0)
		case schema.KindInt64:
			return int64(0)
		case schema.KindUint64:
			return uint64(0)
		case schema.KindFloat32:
			return float32(0)
		case schema.KindFloat64:
			return float64(0)
		}
	case *schema.Enum:
		return int32(0)
	case schema.Handle:
		return InvalidHandle
	}
	return nil
}
