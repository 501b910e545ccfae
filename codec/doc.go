// Package codec encodes and validates messages in the canonical wire format.
//
// # Wire Format
//
// Messages are little-endian. Every object starts on an 8-byte boundary and
// objects follow each other contiguously, in the order their pointers are
// encountered by a depth-first walk:
//
//	┌──────────────┬───────────────────────────┬─────────────┬─────
//	│ MessageHeader│ payload struct            │ first child │ ...
//	└──────────────┴───────────────────────────┴─────────────┴─────
//
//	Record        Size  Layout
//	StructHeader  8     size:u32 version:u32
//	ArrayHeader   8     size:u32 num_elems:u32 (size includes the header)
//	Pointer       8     offset relative to the pointer itself, 0 = null
//	Union         16    tag:u32 pad:u32 payload:u64
//	Map           24    struct header, keys pointer, values pointer
//
// Struct fields are packed by the canonical gap-filling algorithm; see
// Registry.Layout for the placement of a given struct.
//
// # Registry
//
// A Registry caches packed layouts. Create one at schema load time, register
// the top-level structs and hand it to encoders and decoders:
//
//	reg := codec.NewRegistry()
//	if err := reg.Register(schema); err != nil { ... }
//	enc := codec.NewEncoder(reg)
//	dec := codec.NewDecoder(reg)
//
// # Validation
//
// The Decoder treats its input as hostile. Every length, offset and tag is
// range-checked before use, every pointer must point at the next unclaimed
// byte, and bytes left over after the last object are rejected:
//
//	[decode] wrong_pointer at Request.items (offset 24): pointer resolves to 40, next object expected at 32
//	[decode] too_much_data (offset 64): 8 trailing bytes
//
// # Values
//
// Values are plain Go values: bool, int8 ... uint64, float32, float64, int32
// for enums, string, []byte for arrays of uint8, []any for other arrays,
// *StructValue, *UnionValue, *MapValue and HandleRef. Null pointers and
// absent nullable scalars are nil.
//
// # Thread Safety
//
// Registry, Encoder and Decoder are safe for concurrent use.
package codec
