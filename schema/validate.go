package schema

import (
	"fmt"
	"reflect"

	"github.com/wippyai/mojo-wire/errors"
)

// Validate checks a struct and every type reachable from it.
func Validate(s *Struct) error {
	v := validator{seen: make(map[Type]bool)}
	return v.validateType(s, []string{s.Name})
}

type validator struct {
	seen map[Type]bool
}

func (v *validator) validateType(t Type, path []string) error {
	switch typ := t.(type) {
	case nil:
		return errors.New(errors.PhaseValidate, errors.KindInvalidInput).
			Path(path...).
			Detail("missing type").
			Build()
	case Leaf:
		if typ.Kind.Size() == 0 {
			return errors.New(errors.PhaseValidate, errors.KindUnsupported).
				Path(path...).
				Detail("unknown leaf kind %d", typ.Kind).
				Build()
		}
		return nil
	case String, Handle:
		return nil
	case *Enum:
		return v.validateEnum(typ, path)
	case *Array:
		return v.validateArray(typ, path)
	case *Map:
		return v.validateMap(typ, path)
	case *Struct:
		return v.validateStruct(typ, path)
	case *Union:
		return v.validateUnion(typ, path)
	default:
		return errors.Unsupported(errors.PhaseValidate, "schema type "+t.String())
	}
}

func (v *validator) validateEnum(e *Enum, path []string) error {
	if v.seen[e] {
		return nil
	}
	v.seen[e] = true

	seen := make(map[int32]bool, len(e.Values))
	for _, x := range e.Values {
		if seen[x] {
			return errors.New(errors.PhaseValidate, errors.KindDuplicate).
				Path(path...).
				Detail("enum %s declares value %d twice", e.Name, x).
				Build()
		}
		seen[x] = true
	}
	return nil
}

func (v *validator) validateArray(a *Array, path []string) error {
	if a.ElemNullable && !Nullable(a.Elem) && !IsValueKind(a.Elem) {
		return errors.New(errors.PhaseValidate, errors.KindInvalidInput).
			Path(path...).
			Detail("array element type %v cannot be nullable", a.Elem).
			Build()
	}
	return v.validateType(a.Elem, append(path, "[]"))
}

func (v *validator) validateMap(m *Map, path []string) error {
	switch m.Key.(type) {
	case Leaf, *Enum, String:
	default:
		return errors.New(errors.PhaseValidate, errors.KindInvalidInput).
			Path(path...).
			Detail("map key type %v must be a scalar, enum or string", m.Key).
			Build()
	}
	if err := v.validateType(m.Key, sub(path, "key")); err != nil {
		return err
	}
	return v.validateArray(m.Values(), sub(path, "value"))
}

func sub(path []string, name string) []string {
	return append(path[:len(path):len(path)], name)
}

func (v *validator) validateStruct(s *Struct, path []string) error {
	if v.seen[s] {
		return nil
	}
	v.seen[s] = true

	names := make(map[string]bool, len(s.Fields))
	var lastVersion uint32
	for _, f := range s.Fields {
		fieldPath := append(append([]string{}, path...), f.Name)
		if f.Name == "" {
			return errors.New(errors.PhaseValidate, errors.KindInvalidInput).
				Path(path...).
				Detail("struct %s has an unnamed field", s.Name).
				Build()
		}
		if names[f.Name] {
			return errors.New(errors.PhaseValidate, errors.KindDuplicate).
				Path(fieldPath...).
				Detail("duplicate field %q", f.Name).
				Build()
		}
		names[f.Name] = true

		if f.MinVersion < lastVersion {
			return errors.New(errors.PhaseValidate, errors.KindInvalidInput).
				Path(fieldPath...).
				Detail("min_version %d is lower than a preceding field's %d", f.MinVersion, lastVersion).
				Build()
		}
		lastVersion = f.MinVersion

		if f.Type != nil && f.Nullable && !Nullable(f.Type) && !IsValueKind(f.Type) {
			return errors.New(errors.PhaseValidate, errors.KindInvalidInput).
				Path(fieldPath...).
				Detail("field of type %v cannot be nullable", f.Type).
				Build()
		}
		if err := v.validateType(f.Type, fieldPath); err != nil {
			return err
		}
		if f.Default != nil {
			if err := checkDefault(f, fieldPath); err != nil {
				return err
			}
		}
	}
	return nil
}

// checkDefault requires a default already in the codec's Go type for the
// field; NormalizeDefault produces one from looser input.
func checkDefault(f Field, path []string) error {
	if f.Nullable {
		return errors.New(errors.PhaseValidate, errors.KindInvalidInput).
			Path(path...).
			Detail("nullable field cannot have a default").
			Build()
	}
	norm, err := NormalizeDefault(f.Type, f.Default)
	if err != nil {
		if e, ok := err.(*errors.Error); ok {
			e.Path = path
		}
		return err
	}
	if reflect.TypeOf(norm) != reflect.TypeOf(f.Default) {
		return errors.New(errors.PhaseValidate, errors.KindTypeMismatch).
			Path(path...).
			Expected(fmt.Sprintf("%T", norm)).
			Actual(fmt.Sprintf("%T", f.Default)).
			Detail("default for %v must be a %T, got %T", f.Type, norm, f.Default).
			Build()
	}
	return nil
}

func (v *validator) validateUnion(u *Union, path []string) error {
	if v.seen[u] {
		return nil
	}
	v.seen[u] = true

	if len(u.Variants) == 0 {
		return errors.New(errors.PhaseValidate, errors.KindInvalidInput).
			Path(path...).
			Detail("union %s has no variants", u.Name).
			Build()
	}

	tags := make(map[uint32]bool, len(u.Variants))
	for _, vr := range u.Variants {
		varPath := append(append([]string{}, path...), vr.Name)
		if tags[vr.Tag] {
			return errors.New(errors.PhaseValidate, errors.KindDuplicate).
				Path(varPath...).
				Detail("union %s declares tag %d twice", u.Name, vr.Tag).
				Build()
		}
		tags[vr.Tag] = true

		if vr.Type != nil && vr.Nullable && !Nullable(vr.Type) {
			return errors.New(errors.PhaseValidate, errors.KindInvalidInput).
				Path(varPath...).
				Detail("variant of type %v cannot be nullable", vr.Type).
				Build()
		}
		if err := v.validateType(vr.Type, varPath); err != nil {
			return err
		}
	}
	return nil
}
