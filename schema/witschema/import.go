// Package witschema imports WebAssembly Interface Type definitions as
// message schemas.
//
// The mapping is:
//
//	record        -> *schema.Struct
//	tuple         -> *schema.Struct with fields f0, f1, ...
//	flags         -> *schema.Struct of bool fields
//	variant       -> *schema.Union (unit cases carry a uint8)
//	result        -> *schema.Union with ok/err variants
//	enum          -> *schema.Enum with values 0..n-1
//	list<T>       -> *schema.Array
//	option<T>     -> a nullable T when T is nullable, else union {none, some}
//	own/borrow    -> schema.Handle
//	char          -> uint32
package witschema

import (
	"fmt"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/mojo-wire/errors"
	"github.com/wippyai/mojo-wire/schema"
)

// Importer converts WIT types. Imported named types are cached so a type
// definition shared by several records maps to a single schema type.
type Importer struct {
	cache map[*wit.TypeDef]schema.Type
}

func NewImporter() *Importer {
	return &Importer{cache: make(map[*wit.TypeDef]schema.Type)}
}

// ImportStruct imports a record, tuple or flags type as a validated struct.
func (im *Importer) ImportStruct(t wit.Type) (*schema.Struct, error) {
	typ, err := im.Import(t)
	if err != nil {
		return nil, err
	}
	s, ok := typ.(*schema.Struct)
	if !ok {
		return nil, errors.TypeMismatch(errors.PhaseParse, nil, "struct", typ.String())
	}
	if err := schema.Validate(s); err != nil {
		return nil, err
	}
	return s, nil
}

// Import converts any supported WIT type.
func (im *Importer) Import(t wit.Type) (schema.Type, error) {
	return im.importType(t, nil)
}

func (im *Importer) importType(t wit.Type, path []string) (schema.Type, error) {
	switch typ := t.(type) {
	case wit.Bool:
		return schema.Bool, nil
	case wit.S8:
		return schema.Int8, nil
	case wit.U8:
		return schema.Uint8, nil
	case wit.S16:
		return schema.Int16, nil
	case wit.U16:
		return schema.Uint16, nil
	case wit.S32:
		return schema.Int32, nil
	case wit.U32, wit.Char:
		return schema.Uint32, nil
	case wit.S64:
		return schema.Int64, nil
	case wit.U64:
		return schema.Uint64, nil
	case wit.F32:
		return schema.Float32, nil
	case wit.F64:
		return schema.Float64, nil
	case wit.String:
		return schema.String{}, nil
	case *wit.TypeDef:
		return im.importTypeDef(typ, path)
	case nil:
		return nil, errors.InvalidInput(errors.PhaseParse, "nil WIT type")
	default:
		return nil, errors.New(errors.PhaseParse, errors.KindUnsupported).
			Path(path...).
			Detail("unsupported WIT type %T", t).
			Build()
	}
}

func (im *Importer) importTypeDef(td *wit.TypeDef, path []string) (schema.Type, error) {
	if cached, ok := im.cache[td]; ok {
		return cached, nil
	}

	name := typeName(td)
	switch kind := td.Kind.(type) {
	case *wit.Record:
		s := &schema.Struct{Name: name}
		im.cache[td] = s
		for _, f := range kind.Fields {
			field, err := im.importField(f.Name, f.Type, append(path, f.Name))
			if err != nil {
				return nil, err
			}
			s.Fields = append(s.Fields, field)
		}
		return s, nil

	case *wit.Tuple:
		s := &schema.Struct{Name: name}
		im.cache[td] = s
		for i, et := range kind.Types {
			fname := fmt.Sprintf("f%d", i)
			field, err := im.importField(fname, et, append(path, fname))
			if err != nil {
				return nil, err
			}
			s.Fields = append(s.Fields, field)
		}
		return s, nil

	case *wit.Flags:
		s := &schema.Struct{Name: name}
		for _, fl := range kind.Flags {
			s.Fields = append(s.Fields, schema.Field{Name: fl.Name, Type: schema.Bool})
		}
		im.cache[td] = s
		return s, nil

	case *wit.Enum:
		e := &schema.Enum{Name: name}
		for i := range kind.Cases {
			e.Values = append(e.Values, int32(i))
		}
		im.cache[td] = e
		return e, nil

	case *wit.Variant:
		u := &schema.Union{Name: name}
		im.cache[td] = u
		for i, c := range kind.Cases {
			v, err := im.importVariant(c.Name, uint32(i), c.Type, append(path, c.Name))
			if err != nil {
				return nil, err
			}
			u.Variants = append(u.Variants, v)
		}
		return u, nil

	case *wit.Result:
		u := &schema.Union{Name: name}
		im.cache[td] = u
		ok, err := im.importVariant("ok", 0, kind.OK, append(path, "ok"))
		if err != nil {
			return nil, err
		}
		fail, err := im.importVariant("err", 1, kind.Err, append(path, "err"))
		if err != nil {
			return nil, err
		}
		u.Variants = []schema.Variant{ok, fail}
		return u, nil

	case *wit.List:
		elem, nullable, err := im.importOptional(kind.Type, append(path, "[]"))
		if err != nil {
			return nil, err
		}
		a := &schema.Array{Elem: elem, ElemNullable: nullable}
		im.cache[td] = a
		return a, nil

	case *wit.Option:
		// A bare option outside a field or element position has no slot to
		// carry nullability, so it is always the union form.
		inner, err := im.importType(kind.Type, path)
		if err != nil {
			return nil, err
		}
		u := optionUnion(name, inner)
		im.cache[td] = u
		return u, nil

	case *wit.Own, *wit.Borrow:
		return schema.Handle{}, nil

	case wit.Type:
		return im.importType(kind, path)

	default:
		return nil, errors.New(errors.PhaseParse, errors.KindUnsupported).
			Path(path...).
			Detail("unsupported WIT type definition %T", kind).
			Build()
	}
}

func (im *Importer) importField(name string, t wit.Type, path []string) (schema.Field, error) {
	typ, nullable, err := im.importOptional(t, path)
	if err != nil {
		return schema.Field{}, err
	}
	return schema.Field{Name: name, Type: typ, Nullable: nullable}, nil
}

func (im *Importer) importVariant(name string, tag uint32, t wit.Type, path []string) (schema.Variant, error) {
	if t == nil {
		return schema.Variant{Name: name, Tag: tag, Type: schema.Uint8}, nil
	}
	typ, nullable, err := im.importOptional(t, path)
	if err != nil {
		return schema.Variant{}, err
	}
	return schema.Variant{Name: name, Tag: tag, Type: typ, Nullable: nullable}, nil
}

// importOptional unwraps option<T> into a nullable T where T can be null on
// the wire.
func (im *Importer) importOptional(t wit.Type, path []string) (schema.Type, bool, error) {
	if td, ok := t.(*wit.TypeDef); ok {
		if opt, ok := td.Kind.(*wit.Option); ok {
			inner, err := im.importType(opt.Type, path)
			if err != nil {
				return nil, false, err
			}
			if schema.Nullable(inner) {
				return inner, true, nil
			}
			return optionUnion(typeName(td), inner), false, nil
		}
	}
	typ, err := im.importType(t, path)
	return typ, false, err
}

func optionUnion(name string, inner schema.Type) *schema.Union {
	return schema.NewUnion(name, false,
		schema.Variant{Name: "none", Type: schema.Uint8},
		schema.Variant{Name: "some", Type: inner},
	)
}

func typeName(td *wit.TypeDef) string {
	if td.Name != nil {
		return *td.Name
	}
	switch td.Kind.(type) {
	case *wit.Record:
		return "record"
	case *wit.Tuple:
		return "tuple"
	case *wit.Flags:
		return "flags"
	case *wit.Enum:
		return "enum"
	case *wit.Variant:
		return "variant"
	case *wit.Result:
		return "result"
	case *wit.Option:
		return "option"
	default:
		return "type"
	}
}
