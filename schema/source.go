package schema

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/wippyai/mojo-wire/errors"
)

// Set is a collection of named schema types loaded from a schema file.
type Set struct {
	Structs map[string]*Struct
	Unions  map[string]*Union
	Enums   map[string]*Enum
	order   []string
}

// Struct returns the named struct.
func (s *Set) Struct(name string) (*Struct, error) {
	st, ok := s.Structs[name]
	if !ok {
		return nil, errors.NotFound(errors.PhaseParse, "struct", name)
	}
	return st, nil
}

// Names returns struct names in file order.
func (s *Set) Names() []string {
	return s.order
}

type fileSchema struct {
	Structs []fileStruct `toml:"struct"`
	Unions  []fileUnion  `toml:"union"`
	Enums   []fileEnum   `toml:"enum"`
}

type fileStruct struct {
	Name   string      `toml:"name"`
	Fields []fileField `toml:"field"`
}

type fileField struct {
	Default    any    `toml:"default"`
	Name       string `toml:"name"`
	Type       string `toml:"type"`
	MinVersion uint32 `toml:"min_version"`
	Nullable   bool   `toml:"nullable"`
}

type fileUnion struct {
	Name       string        `toml:"name"`
	Variants   []fileVariant `toml:"variant"`
	Extensible bool          `toml:"extensible"`
}

type fileVariant struct {
	Tag      *uint32 `toml:"tag"`
	Name     string  `toml:"name"`
	Type     string  `toml:"type"`
	Nullable bool    `toml:"nullable"`
}

type fileEnum struct {
	Name       string  `toml:"name"`
	Values     []int32 `toml:"values"`
	Extensible bool    `toml:"extensible"`
}

// LoadFile reads and parses a TOML schema file.
func LoadFile(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.ParseFailed(path, err)
	}
	return Parse(data)
}

// Parse builds schema types from a TOML document of the form:
//
//	[[enum]]
//	name = "Color"
//	values = [0, 1, 2]
//
//	[[struct]]
//	name = "Point"
//	  [[struct.field]]
//	  name = "x"
//	  type = "int32"
//	  default = 1
//	  [[struct.field]]
//	  name = "tags"
//	  type = "array<string?, 4>"
//	  nullable = true
//	  [[struct.field]]
//	  name = "weights"
//	  type = "map<string, float32?>"
//	  min_version = 1
//
// Type expressions are builtin names (bool, int8 ... float64, string,
// handle), names declared in the same file, array<T>, array<T?>,
// array<T, N>, and map<K, V> or map<K, V?>. Every struct is validated
// before Parse returns.
func Parse(data []byte) (*Set, error) {
	var f fileSchema
	md, err := toml.Decode(string(data), &f)
	if err != nil {
		return nil, errors.ParseFailed("schema", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, errors.New(errors.PhaseParse, errors.KindInvalidInput).
			Detail("unknown schema key %q", undecoded[0].String()).
			Build()
	}

	set := &Set{
		Structs: make(map[string]*Struct, len(f.Structs)),
		Unions:  make(map[string]*Union, len(f.Unions)),
		Enums:   make(map[string]*Enum, len(f.Enums)),
	}
	p := &parser{set: set, names: make(map[string]bool)}

	// Declare every name first so types can refer to each other in any order.
	for _, e := range f.Enums {
		if err := p.declare(e.Name); err != nil {
			return nil, err
		}
		set.Enums[e.Name] = &Enum{Name: e.Name, Values: e.Values, Extensible: e.Extensible}
	}
	for _, u := range f.Unions {
		if err := p.declare(u.Name); err != nil {
			return nil, err
		}
		set.Unions[u.Name] = &Union{Name: u.Name, Extensible: u.Extensible}
	}
	for _, s := range f.Structs {
		if err := p.declare(s.Name); err != nil {
			return nil, err
		}
		set.Structs[s.Name] = &Struct{Name: s.Name}
		set.order = append(set.order, s.Name)
	}

	for _, fu := range f.Unions {
		u := set.Unions[fu.Name]
		for i, fv := range fu.Variants {
			t, err := p.parseType(fv.Type)
			if err != nil {
				return nil, wrapAt(err, fu.Name, fv.Name)
			}
			tag := uint32(i)
			if fv.Tag != nil {
				tag = *fv.Tag
			}
			u.Variants = append(u.Variants, Variant{Name: fv.Name, Tag: tag, Type: t, Nullable: fv.Nullable})
		}
	}
	for _, fs := range f.Structs {
		s := set.Structs[fs.Name]
		for _, ff := range fs.Fields {
			t, err := p.parseType(ff.Type)
			if err != nil {
				return nil, wrapAt(err, fs.Name, ff.Name)
			}
			field := Field{
				Name:       ff.Name,
				Type:       t,
				Nullable:   ff.Nullable,
				MinVersion: ff.MinVersion,
			}
			if ff.Default != nil {
				field.Default, err = NormalizeDefault(t, ff.Default)
				if err != nil {
					return nil, wrapAt(err, fs.Name, ff.Name)
				}
			}
			s.Fields = append(s.Fields, field)
		}
	}

	for _, name := range set.order {
		if err := Validate(set.Structs[name]); err != nil {
			return nil, err
		}
	}
	return set, nil
}

type parser struct {
	set   *Set
	names map[string]bool
}

func (p *parser) declare(name string) error {
	if name == "" {
		return errors.InvalidInput(errors.PhaseParse, "schema type without a name")
	}
	if _, builtin := builtins[name]; builtin || p.names[name] {
		return errors.New(errors.PhaseParse, errors.KindDuplicate).
			Detail("type name %q declared twice", name).
			Build()
	}
	p.names[name] = true
	return nil
}

var builtins = map[string]Type{
	"bool":    Bool,
	"int8":    Int8,
	"uint8":   Uint8,
	"int16":   Int16,
	"uint16":  Uint16,
	"int32":   Int32,
	"uint32":  Uint32,
	"int64":   Int64,
	"uint64":  Uint64,
	"float32": Float32,
	"float64": Float64,
	"string":  String{},
	"handle":  Handle{},
}

func (p *parser) parseType(expr string) (Type, error) {
	expr = strings.TrimSpace(expr)
	if t, ok := builtins[expr]; ok {
		return t, nil
	}
	if inner, ok := strings.CutPrefix(expr, "array<"); ok {
		inner, ok = strings.CutSuffix(inner, ">")
		if !ok {
			return nil, badType(expr)
		}
		return p.parseArray(inner)
	}
	if inner, ok := strings.CutPrefix(expr, "map<"); ok {
		inner, ok = strings.CutSuffix(inner, ">")
		if !ok {
			return nil, badType(expr)
		}
		return p.parseMap(inner)
	}
	if s, ok := p.set.Structs[expr]; ok {
		return s, nil
	}
	if u, ok := p.set.Unions[expr]; ok {
		return u, nil
	}
	if e, ok := p.set.Enums[expr]; ok {
		return e, nil
	}
	return nil, errors.NotFound(errors.PhaseParse, "type", expr)
}

func (p *parser) parseArray(inner string) (Type, error) {
	elemExpr, lenExpr := splitTopLevel(inner)
	a := &Array{}
	if lenExpr != "" {
		n, err := strconv.ParseUint(strings.TrimSpace(lenExpr), 10, 32)
		if err != nil || n == 0 {
			return nil, badType("array<" + inner + ">")
		}
		a.FixedLen = uint32(n)
	}
	elemExpr = strings.TrimSpace(elemExpr)
	if trimmed, ok := strings.CutSuffix(elemExpr, "?"); ok {
		a.ElemNullable = true
		elemExpr = trimmed
	}
	elem, err := p.parseType(elemExpr)
	if err != nil {
		return nil, err
	}
	a.Elem = elem
	return a, nil
}

func (p *parser) parseMap(inner string) (Type, error) {
	keyExpr, valueExpr := splitTopLevel(inner)
	if valueExpr == "" {
		return nil, badType("map<" + inner + ">")
	}
	key, err := p.parseType(keyExpr)
	if err != nil {
		return nil, err
	}
	m := &Map{Key: key}
	valueExpr = strings.TrimSpace(valueExpr)
	if trimmed, ok := strings.CutSuffix(valueExpr, "?"); ok {
		m.ValueNullable = true
		valueExpr = trimmed
	}
	if m.Value, err = p.parseType(valueExpr); err != nil {
		return nil, err
	}
	return m, nil
}

// splitTopLevel splits "T, N" at the last comma outside angle brackets.
func splitTopLevel(s string) (string, string) {
	depth := 0
	for i := len(s) - 1; i >= 0; i-- {
		switch s[i] {
		case '>':
			depth++
		case '<':
			depth--
		case ',':
			if depth == 0 {
				return s[:i], s[i+1:]
			}
		}
	}
	return s, ""
}

func badType(expr string) error {
	return errors.New(errors.PhaseParse, errors.KindInvalidInput).
		Detail("malformed type expression %q", expr).
		Build()
}

func wrapAt(err error, owner, member string) error {
	if e, ok := err.(*errors.Error); ok && len(e.Path) == 0 {
		e.Path = []string{owner, member}
		return e
	}
	return err
}
