package witschema

import (
	"testing"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/mojo-wire/errors"
	"github.com/wippyai/mojo-wire/schema"
)

func named(name string, kind wit.TypeDefKind) *wit.TypeDef {
	return &wit.TypeDef{Name: &name, Kind: kind}
}

func TestImportStruct_Record(t *testing.T) {
	point := named("point", &wit.Record{Fields: []wit.Field{
		{Name: "x", Type: wit.S32{}},
		{Name: "y", Type: wit.S32{}},
	}})
	color := named("color", &wit.Enum{Cases: []wit.EnumCase{{Name: "red"}, {Name: "green"}}})
	perms := named("perms", &wit.Flags{Flags: []wit.Flag{{Name: "read"}, {Name: "write"}}})
	shape := named("shape", &wit.Variant{Cases: []wit.Case{
		{Name: "circle", Type: wit.F64{}},
		{Name: "empty"},
	}})

	drawing := named("drawing", &wit.Record{Fields: []wit.Field{
		{Name: "origin", Type: point},
		{Name: "color", Type: color},
		{Name: "perms", Type: perms},
		{Name: "shape", Type: shape},
		{Name: "label", Type: &wit.TypeDef{Kind: &wit.Option{Type: wit.String{}}}},
		{Name: "count", Type: &wit.TypeDef{Kind: &wit.Option{Type: wit.U32{}}}},
		{Name: "points", Type: &wit.TypeDef{Kind: &wit.List{Type: point}}},
		{Name: "glyph", Type: wit.Char{}},
		{Name: "file", Type: &wit.TypeDef{Kind: &wit.Own{}}},
	}})

	im := NewImporter()
	s, err := im.ImportStruct(drawing)
	if err != nil {
		t.Fatalf("ImportStruct: %v", err)
	}
	if s.Name != "drawing" || len(s.Fields) != 9 {
		t.Fatalf("got %s with %d fields", s.Name, len(s.Fields))
	}

	origin, ok := s.Fields[0].Type.(*schema.Struct)
	if !ok || origin.Name != "point" || len(origin.Fields) != 2 {
		t.Errorf("origin = %v", s.Fields[0].Type)
	}

	e, ok := s.Fields[1].Type.(*schema.Enum)
	if !ok || len(e.Values) != 2 || e.Values[1] != 1 {
		t.Errorf("color = %v", s.Fields[1].Type)
	}

	flags, ok := s.Fields[2].Type.(*schema.Struct)
	if !ok || len(flags.Fields) != 2 || flags.Fields[0].Type != schema.Bool {
		t.Errorf("perms = %v", s.Fields[2].Type)
	}

	u, ok := s.Fields[3].Type.(*schema.Union)
	if !ok || len(u.Variants) != 2 {
		t.Fatalf("shape = %v", s.Fields[3].Type)
	}
	if u.Variants[1].Type != schema.Uint8 {
		t.Errorf("unit case type = %v, want uint8", u.Variants[1].Type)
	}

	if _, ok := s.Fields[4].Type.(schema.String); !ok || !s.Fields[4].Nullable {
		t.Errorf("option<string> should import as a nullable string, got %v nullable=%v",
			s.Fields[4].Type, s.Fields[4].Nullable)
	}

	opt, ok := s.Fields[5].Type.(*schema.Union)
	if !ok || len(opt.Variants) != 2 || opt.Variants[1].Type != schema.Uint32 {
		t.Errorf("option<u32> = %v", s.Fields[5].Type)
	}

	arr, ok := s.Fields[6].Type.(*schema.Array)
	if !ok || arr.Elem != origin {
		t.Errorf("list<point> should share the point struct, got %v", s.Fields[6].Type)
	}

	if s.Fields[7].Type != schema.Uint32 {
		t.Errorf("char = %v", s.Fields[7].Type)
	}
	if _, ok := s.Fields[8].Type.(schema.Handle); !ok {
		t.Errorf("own = %v", s.Fields[8].Type)
	}
}

func TestImportStruct_TupleAndResult(t *testing.T) {
	pair := &wit.TypeDef{Kind: &wit.Tuple{Types: []wit.Type{
		wit.U32{},
		&wit.TypeDef{Kind: &wit.Result{OK: wit.U64{}, Err: wit.String{}}},
	}}}

	s, err := NewImporter().ImportStruct(pair)
	if err != nil {
		t.Fatalf("ImportStruct: %v", err)
	}
	if s.Fields[0].Name != "f0" || s.Fields[1].Name != "f1" {
		t.Errorf("tuple field names = %s, %s", s.Fields[0].Name, s.Fields[1].Name)
	}
	res, ok := s.Fields[1].Type.(*schema.Union)
	if !ok {
		t.Fatalf("result = %T", s.Fields[1].Type)
	}
	if v, ok := res.Variant(1); !ok || v.Name != "err" {
		t.Error("err variant should carry tag 1")
	}
}

func TestImportStruct_NotAStruct(t *testing.T) {
	_, err := NewImporter().ImportStruct(wit.U32{})
	if !errors.IsKind(err, errors.KindTypeMismatch) {
		t.Errorf("error = %v, want type mismatch", err)
	}
}
