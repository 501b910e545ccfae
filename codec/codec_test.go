package codec

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wippyai/mojo-wire/errors"
	"github.com/wippyai/mojo-wire/schema"
)

var (
	innerSchema = &schema.Struct{Name: "Inner", Fields: []schema.Field{
		{Name: "x", Type: schema.Int32},
		{Name: "name", Type: schema.String{}},
	}}

	smallUnion = schema.NewUnion("Small", false,
		schema.Variant{Name: "b", Type: schema.Bool},
		schema.Variant{Name: "f", Type: schema.Float32},
	)

	bigUnion = schema.NewUnion("Big", false,
		schema.Variant{Name: "i", Type: schema.Int64},
		schema.Variant{Name: "s", Type: schema.String{}},
		schema.Variant{Name: "inner", Type: innerSchema},
		schema.Variant{Name: "nested", Type: smallUnion},
	)

	colorEnum = &schema.Enum{Name: "Color", Values: []int32{0, 1, 2}}

	topSchema = &schema.Struct{Name: "Top", Fields: []schema.Field{
		{Name: "flag", Type: schema.Bool},
		{Name: "count", Type: schema.Uint16},
		{Name: "color", Type: colorEnum},
		{Name: "name", Type: schema.String{}},
		{Name: "data", Type: &schema.Array{Elem: schema.Uint8}},
		{Name: "items", Type: &schema.Array{Elem: innerSchema}},
		{Name: "maybe", Type: innerSchema, Nullable: true},
		{Name: "bits", Type: &schema.Array{Elem: schema.Bool}},
		{Name: "u", Type: bigUnion},
		{Name: "opt_u", Type: bigUnion, Nullable: true},
		{Name: "fixed", Type: &schema.Array{Elem: schema.Int16, FixedLen: 3}},
		{Name: "h", Type: schema.Handle{}},
		{Name: "h2", Type: schema.Handle{}, Nullable: true},
		{Name: "strs", Type: &schema.Array{Elem: schema.String{}, ElemNullable: true}},
		{Name: "ratio", Type: schema.Float64},
		{Name: "small", Type: schema.Int8},
	}}
)

func inner(x int32, name string) *StructValue {
	return NewStruct(x, name)
}

func topValue() *StructValue {
	return NewStruct(
		true,
		uint16(7),
		int32(2),
		"hello",
		[]byte{1, 2, 3},
		[]any{inner(1, "a"), inner(-2, "bb")},
		nil,
		[]any{true, false, true, true, false, false, false, false, true},
		&UnionValue{Tag: 3, Value: &UnionValue{Tag: 1, Value: float32(1.5)}},
		&UnionValue{Tag: 2, Value: inner(9, "via union")},
		[]any{int16(1), int16(-2), int16(3)},
		HandleRef(0),
		HandleRef(1),
		[]any{"x", nil, "zz"},
		3.25,
		int8(-5),
	)
}

func newCodec() (*Encoder, *Decoder) {
	reg := NewRegistry()
	return NewEncoder(reg), NewDecoder(reg)
}

func mustEncode(t *testing.T, enc *Encoder, s *schema.Struct, v *StructValue) []byte {
	t.Helper()
	buf, err := enc.Encode(s, v)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return buf
}

func wantKind(t *testing.T, err error, kind errors.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if !errors.IsKind(err, kind) {
		t.Fatalf("error = %v, want kind %s", err, kind)
	}
}

func TestEncode_PackingReferenceBytes(t *testing.T) {
	s := &schema.Struct{Name: "S", Fields: []schema.Field{
		{Name: "a", Type: schema.Bool},
		{Name: "b", Type: schema.Uint32},
		{Name: "c", Type: schema.Bool},
	}}
	enc, dec := newCodec()

	buf := mustEncode(t, enc, s, NewStruct(true, uint32(0x11223344), true))
	want := []byte{
		16, 0, 0, 0, 0, 0, 0, 0,
		0x03, 0, 0, 0, 0x44, 0x33, 0x22, 0x11,
	}
	if !bytes.Equal(buf, want) {
		t.Fatalf("bytes = % x\nwant    % x", buf, want)
	}

	got, err := dec.Decode(buf, 0, s)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if diff := cmp.Diff(NewStruct(true, uint32(0x11223344), true), got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestRoundTrip(t *testing.T) {
	enc, dec := newCodec()
	v := topValue()

	buf, err := enc.Encode(topSchema, v)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := dec.Decode(buf, 2, topSchema)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if diff := cmp.Diff(v, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestRoundTrip_FlatSizeMatchesLayout(t *testing.T) {
	s := &schema.Struct{Name: "Flat", Fields: []schema.Field{
		{Name: "a", Type: schema.Uint8},
		{Name: "b", Type: schema.Float64},
		{Name: "c", Type: schema.Int16},
		{Name: "d", Type: schema.Bool},
		{Name: "e", Type: schema.Uint32},
	}}
	reg := NewRegistry()
	enc, dec := NewEncoder(reg), NewDecoder(reg)

	l, err := reg.Layout(s)
	if err != nil {
		t.Fatal(err)
	}
	v := NewStruct(uint8(1), 2.5, int16(-3), true, uint32(4))
	buf := mustEncode(t, enc, s, v)
	if uint32(len(buf)) != l.Size {
		t.Errorf("encoded %d bytes, layout predicts %d", len(buf), l.Size)
	}
	got, err := dec.Decode(buf, 0, s)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(v, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

var nameSchema = &schema.Struct{Name: "Named", Fields: []schema.Field{
	{Name: "name", Type: schema.String{}},
}}

// nameBytes is Named{"abc"}: a 16-byte struct whose pointer at offset 8
// refers to the string array at offset 16.
func nameBytes(t *testing.T) []byte {
	enc, _ := newCodec()
	buf := mustEncode(t, enc, nameSchema, NewStruct("abc"))
	if len(buf) != 32 {
		t.Fatalf("encoded %d bytes, want 32", len(buf))
	}
	return buf
}

func TestDecode_PointerMutations(t *testing.T) {
	tests := []struct {
		name string
		ptr  uint64
		kind errors.Kind
	}{
		{"null in non-nullable", 0, errors.KindUnexpectedNull},
		{"below 8", 4, errors.KindInvalidPointer},
		{"misaligned", 12, errors.KindInvalidPointer},
		{"skips a gap", 16, errors.KindWrongPointer},
		{"far beyond", 1 << 20, errors.KindWrongPointer},
		{"wraps around", math.MaxUint64 - 7, errors.KindInvalidPointer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := nameBytes(t)
			binary.LittleEndian.PutUint64(buf[8:], tt.ptr)
			_, dec := newCodec()
			_, err := dec.Decode(buf, 0, nameSchema)
			wantKind(t, err, tt.kind)
		})
	}
}

func TestDecode_WrongPointerReportsOffsets(t *testing.T) {
	buf := nameBytes(t)
	binary.LittleEndian.PutUint64(buf[8:], 16)
	_, dec := newCodec()
	_, err := dec.Decode(buf, 0, nameSchema)

	var e *errors.Error
	if !errors.As(err, &e) {
		t.Fatalf("error %v is not *errors.Error", err)
	}
	if e.Offset != 8 || e.Expected != uint64(16) || e.Actual != uint64(24) {
		t.Errorf("offset %d expected %v actual %v", e.Offset, e.Expected, e.Actual)
	}
}

func TestDecode_SizeMutations(t *testing.T) {
	tests := []struct {
		name string
		at   int
		size uint32
		kind errors.Kind
	}{
		{"struct smaller", 0, 8, errors.KindWrongSize},
		{"struct larger", 0, 24, errors.KindWrongSize},
		{"struct far larger", 0, 64, errors.KindWrongSize},
		{"struct unaligned", 0, 17, errors.KindInvalidSize},
		{"struct below header", 0, 4, errors.KindInvalidSize},
		{"array one more", 16, 12, errors.KindWrongSize},
		{"array one less", 16, 10, errors.KindWrongSize},
		{"array below header", 16, 7, errors.KindInvalidSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := nameBytes(t)
			binary.LittleEndian.PutUint32(buf[tt.at:], tt.size)
			_, dec := newCodec()
			_, err := dec.Decode(buf, 0, nameSchema)
			wantKind(t, err, tt.kind)
		})
	}
}

func TestDecode_FixedLengthMismatch(t *testing.T) {
	s := &schema.Struct{Name: "S", Fields: []schema.Field{
		{Name: "v", Type: &schema.Array{Elem: schema.Int32, FixedLen: 2}},
	}}
	loose := &schema.Struct{Name: "S", Fields: []schema.Field{
		{Name: "v", Type: &schema.Array{Elem: schema.Int32}},
	}}
	enc, dec := newCodec()

	buf := mustEncode(t, enc, loose, NewStruct([]any{int32(1), int32(2), int32(3)}))
	_, err := dec.Decode(buf, 0, s)
	wantKind(t, err, errors.KindWrongSize)

	var e *errors.Error
	if errors.As(err, &e) && e.Context != "num_elems" {
		t.Errorf("context = %q, want num_elems", e.Context)
	}

	_, err = enc.Encode(s, NewStruct([]any{int32(1)}))
	wantKind(t, err, errors.KindWrongSize)
}

func TestDecode_Discriminant(t *testing.T) {
	closed := schema.NewUnion("U", false,
		schema.Variant{Name: "a", Type: schema.Int32},
		schema.Variant{Name: "b", Type: schema.Uint8},
	)
	open := schema.NewUnion("U", true,
		schema.Variant{Name: "a", Type: schema.Int32},
		schema.Variant{Name: "b", Type: schema.Uint8},
	)
	closedS := &schema.Struct{Name: "S", Fields: []schema.Field{{Name: "u", Type: closed}}}
	openS := &schema.Struct{Name: "S", Fields: []schema.Field{{Name: "u", Type: open}}}

	enc, dec := newCodec()
	base := mustEncode(t, enc, closedS, NewStruct(&UnionValue{Tag: 0, Value: int32(42)}))

	for _, tag := range []uint32{2, 3, 100, math.MaxUint32} {
		buf := append([]byte{}, base...)
		binary.LittleEndian.PutUint32(buf[8:], tag)

		_, err := dec.Decode(buf, 0, closedS)
		wantKind(t, err, errors.KindInvalidDiscriminant)

		got, err := dec.Decode(buf, 0, openS)
		if err != nil {
			t.Fatalf("extensible union rejected tag %d: %v", tag, err)
		}
		want := NewStruct(&UnionValue{Tag: tag, Unknown: true, Raw: 42})
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("tag %d (-want +got):\n%s", tag, diff)
		}
	}
}

func TestDecode_TrailingData(t *testing.T) {
	tests := []struct {
		name  string
		extra int
	}{
		{"one word", 8},
		{"unaligned slack", 3},
		{"single byte", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := append(nameBytes(t), make([]byte, tt.extra)...)
			_, dec := newCodec()
			_, err := dec.Decode(buf, 0, nameSchema)
			wantKind(t, err, errors.KindTooMuchData)

			var e *errors.Error
			if errors.As(err, &e) && e.Value != uint64(tt.extra) {
				t.Errorf("remaining = %v, want %d", e.Value, tt.extra)
			}
		})
	}
}

func TestDecode_Truncated(t *testing.T) {
	full := nameBytes(t)
	_, dec := newCodec()
	for n := 0; n < len(full); n++ {
		if _, err := dec.Decode(full[:n], 0, nameSchema); err == nil {
			t.Errorf("decode of %d-byte prefix succeeded", n)
		}
	}
}

func TestDecode_NeverPanics(t *testing.T) {
	enc, dec := newCodec()
	base := mustEncode(t, enc, topSchema, topValue())

	for i := range base {
		for _, mask := range []byte{0x01, 0x08, 0x80, 0xFF} {
			buf := append([]byte{}, base...)
			buf[i] ^= mask
			_, _ = dec.Decode(buf, 2, topSchema)
		}
	}
	for n := range base {
		_, _ = dec.Decode(base[:n], 2, topSchema)
	}
}

func TestDecode_Depth(t *testing.T) {
	node := &schema.Struct{Name: "Node"}
	node.Fields = []schema.Field{
		{Name: "value", Type: schema.Int32},
		{Name: "next", Type: node, Nullable: true},
	}

	var chain *StructValue
	for i := int32(0); i < 5; i++ {
		next := any(nil)
		if chain != nil {
			next = chain
		}
		chain = NewStruct(i, next)
	}

	reg := NewRegistry()
	buf, err := NewEncoder(reg).Encode(node, chain)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := NewDecoder(reg).Decode(buf, 0, node); err != nil {
		t.Fatalf("default depth: %v", err)
	}
	_, err = NewDecoderWithLimits(reg, Limits{MaxDepth: 3}).Decode(buf, 0, node)
	wantKind(t, err, errors.KindDepthExceeded)
}

func TestDecode_MaxMessageSize(t *testing.T) {
	reg := NewRegistry()
	buf := nameBytes(t)
	_, err := NewDecoderWithLimits(reg, Limits{MaxMessageSize: 16}).Decode(buf, 0, nameSchema)
	wantKind(t, err, errors.KindInvalidSize)
}

func TestHandles(t *testing.T) {
	s := &schema.Struct{Name: "S", Fields: []schema.Field{
		{Name: "a", Type: schema.Handle{}},
		{Name: "b", Type: schema.Handle{}, Nullable: true},
	}}
	enc, dec := newCodec()

	t.Run("encode out of order", func(t *testing.T) {
		_, err := enc.Encode(s, NewStruct(HandleRef(1), HandleRef(0)))
		wantKind(t, err, errors.KindInvalidHandle)
	})

	t.Run("encode null in non-nullable", func(t *testing.T) {
		_, err := enc.Encode(s, NewStruct(InvalidHandle, nil))
		wantKind(t, err, errors.KindUnexpectedNull)
	})

	buf := mustEncode(t, enc, s, NewStruct(HandleRef(0), HandleRef(1)))

	t.Run("round trip", func(t *testing.T) {
		got, err := dec.Decode(buf, 2, s)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(NewStruct(HandleRef(0), HandleRef(1)), got); diff != "" {
			t.Errorf("(-want +got):\n%s", diff)
		}
	})

	t.Run("index beyond attached handles", func(t *testing.T) {
		_, err := dec.Decode(buf, 1, s)
		wantKind(t, err, errors.KindInvalidHandle)
	})

	t.Run("repeated index", func(t *testing.T) {
		dup := append([]byte{}, buf...)
		binary.LittleEndian.PutUint32(dup[12:], 0)
		_, err := dec.Decode(dup, 2, s)
		wantKind(t, err, errors.KindInvalidHandle)
	})

	t.Run("null in non-nullable", func(t *testing.T) {
		null := append([]byte{}, buf...)
		binary.LittleEndian.PutUint32(null[8:], math.MaxUint32)
		_, err := dec.Decode(null, 2, s)
		wantKind(t, err, errors.KindUnexpectedNull)
	})

	t.Run("nullable null", func(t *testing.T) {
		b := mustEncode(t, enc, s, NewStruct(HandleRef(0), nil))
		got, err := dec.Decode(b, 1, s)
		if err != nil {
			t.Fatal(err)
		}
		if got.Fields[1] != InvalidHandle {
			t.Errorf("null handle decoded as %v", got.Fields[1])
		}
	})
}

func TestVersioning(t *testing.T) {
	v0 := &schema.Struct{Name: "S", Fields: []schema.Field{
		{Name: "a", Type: schema.Uint32},
	}}
	v2 := &schema.Struct{Name: "S", Fields: []schema.Field{
		{Name: "a", Type: schema.Uint32},
		{Name: "b", Type: schema.Uint32, MinVersion: 1},
		{Name: "c", Type: schema.String{}, MinVersion: 2},
	}}
	enc, dec := newCodec()

	t.Run("older sender", func(t *testing.T) {
		buf := mustEncode(t, enc, v0, NewStruct(uint32(5)))
		got, err := dec.Decode(buf, 0, v2)
		if err != nil {
			t.Fatal(err)
		}
		want := &StructValue{Version: 0, Fields: []any{uint32(5), uint32(0), nil}}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("(-want +got):\n%s", diff)
		}
	})

	t.Run("newer sender", func(t *testing.T) {
		v := &StructValue{Version: 2, Fields: []any{uint32(5), uint32(6), "new"}}
		buf := mustEncode(t, enc, v2, v)

		// The old reader skips the unknown tail but must still account
		// for the string the newer struct points to.
		_, err := dec.Decode(buf, 0, v0)
		wantKind(t, err, errors.KindTooMuchData)
	})

	t.Run("newer sender without pointers", func(t *testing.T) {
		v1 := &schema.Struct{Name: "S", Fields: v2.Fields[:2]}
		buf := mustEncode(t, enc, v1, &StructValue{Version: 1, Fields: []any{uint32(5), uint32(6)}})
		got, err := dec.Decode(buf, 0, v0)
		if err != nil {
			t.Fatal(err)
		}
		want := &StructValue{Version: 1, Fields: []any{uint32(5)}}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("(-want +got):\n%s", diff)
		}
	})

	t.Run("version size mismatch", func(t *testing.T) {
		buf := mustEncode(t, enc, v0, NewStruct(uint32(5)))
		binary.LittleEndian.PutUint32(buf[4:], 2)
		_, err := dec.Decode(buf, 0, v2)
		wantKind(t, err, errors.KindWrongSize)
	})
}

func TestEncode_Errors(t *testing.T) {
	s := &schema.Struct{Name: "S", Fields: []schema.Field{
		{Name: "small", Type: schema.Int8},
		{Name: "name", Type: schema.String{}},
	}}
	enc, _ := newCodec()

	tests := []struct {
		name string
		v    *StructValue
		kind errors.Kind
	}{
		{"overflow", NewStruct(300, "x"), errors.KindOverflow},
		{"valid", NewStruct(int8(1), "x"), ""},
		{"type mismatch", NewStruct("one", "x"), errors.KindTypeMismatch},
		{"null string", NewStruct(int8(1), nil), errors.KindUnexpectedNull},
		{"wrong field count", NewStruct(int8(1)), errors.KindInvalidInput},
		{"invalid utf8", NewStruct(int8(1), string([]byte{0xff})), errors.KindInvalidUTF8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := enc.Encode(s, tt.v)
			if tt.kind == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			wantKind(t, err, tt.kind)
		})
	}

	unsigned := &schema.Struct{Name: "U", Fields: []schema.Field{{Name: "v", Type: schema.Uint16}}}
	_, err := enc.Encode(unsigned, NewStruct(-1))
	wantKind(t, err, errors.KindOverflow)
}

func TestDecode_InvalidEnum(t *testing.T) {
	raw := &schema.Struct{Name: "S", Fields: []schema.Field{{Name: "c", Type: schema.Int32}}}
	closed := &schema.Struct{Name: "S", Fields: []schema.Field{{Name: "c", Type: colorEnum}}}
	open := &schema.Struct{Name: "S", Fields: []schema.Field{
		{Name: "c", Type: &schema.Enum{Name: "Color", Values: []int32{0, 1, 2}, Extensible: true}},
	}}
	enc, dec := newCodec()

	buf := mustEncode(t, enc, raw, NewStruct(int32(7)))
	_, err := dec.Decode(buf, 0, closed)
	wantKind(t, err, errors.KindInvalidEnum)

	got, err := dec.Decode(buf, 0, open)
	if err != nil {
		t.Fatal(err)
	}
	if got.Fields[0] != int32(7) {
		t.Errorf("extensible enum = %v, want 7", got.Fields[0])
	}

	_, err = enc.Encode(closed, NewStruct(int32(7)))
	wantKind(t, err, errors.KindInvalidEnum)
}

func TestDecode_InvalidUTF8(t *testing.T) {
	raw := &schema.Struct{Name: "S", Fields: []schema.Field{{Name: "s", Type: &schema.Array{Elem: schema.Uint8}}}}
	text := &schema.Struct{Name: "S", Fields: []schema.Field{{Name: "s", Type: schema.String{}}}}
	enc, dec := newCodec()

	buf := mustEncode(t, enc, raw, NewStruct([]byte{'o', 'k', 0xff}))
	_, err := dec.Decode(buf, 0, text)
	wantKind(t, err, errors.KindInvalidUTF8)
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(topSchema); err != nil {
		t.Fatal(err)
	}
	if reg.Len() != 2 {
		t.Errorf("Len() = %d, want 2 (Top and Inner)", reg.Len())
	}
	if err := reg.Register(topSchema); err != nil || reg.Len() != 2 {
		t.Errorf("re-register changed the registry: %v, len %d", err, reg.Len())
	}

	reg.Reset()
	if reg.Len() != 0 {
		t.Errorf("Len() after Reset = %d", reg.Len())
	}

	bad := &schema.Struct{Name: "Bad", Fields: []schema.Field{
		{Name: "x", Type: schema.Int32, MinVersion: 1},
		{Name: "y", Type: schema.Int32},
	}}
	if err := reg.Register(bad); err == nil {
		t.Error("invalid struct registered")
	}
	if reg.Len() != 0 {
		t.Errorf("failed registration left %d layouts", reg.Len())
	}
}

func TestRegistry_Layout(t *testing.T) {
	s := &schema.Struct{Name: "S", Fields: []schema.Field{
		{Name: "a", Type: schema.Bool},
		{Name: "b", Type: schema.Uint32},
		{Name: "c", Type: schema.Bool},
	}}
	l, err := NewRegistry().Layout(s)
	if err != nil {
		t.Fatal(err)
	}
	want := []FieldLayout{
		{Name: "a", Type: "bool", Kind: "bitfield", Offset: 0, Size: 1, Bit: 0},
		{Name: "c", Type: "bool", Kind: "bitfield", Offset: 0, Size: 1, Bit: 1},
		{Name: "b", Type: "uint32", Kind: "leaf", Offset: 4, Size: 4},
	}
	if diff := cmp.Diff(want, l.Fields); diff != "" {
		t.Errorf("fields (-want +got):\n%s", diff)
	}
	if l.Size != 16 {
		t.Errorf("Size = %d, want 16", l.Size)
	}
}
