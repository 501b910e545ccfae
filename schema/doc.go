// Package schema defines the message schema model consumed by the codec.
//
// A schema is a tree of Type values built once, at load time, and never
// mutated afterwards. The set of types is closed:
//
//	Leaf     fixed-width scalars (bool, int8 ... uint64, float32, float64)
//	*Enum    int32-encoded enumerations, optionally extensible
//	String   UTF-8 text, encoded as a byte array
//	Handle   an index into the handles attached to a message
//	*Array   arrays, optionally fixed-length, optionally with nullable elements
//	*Map     key/value maps; keys are scalars, enums or strings
//	*Struct  versioned records
//	*Union   tagged unions, optionally extensible
//
// Scalars and enums may be nullable in struct fields and array elements.
// A non-nullable scalar field may carry a Default.
//
// Schemas may be built directly in Go, parsed from a TOML schema file with
// Parse or LoadFile, or imported from WIT definitions with the witschema
// subpackage. IDL compilation is outside the scope of this module.
package schema
