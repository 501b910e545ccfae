package codec

import "math"

// StructValue is a decoded or encodable struct. Fields are in schema
// declaration order. Fields that do not exist in Version hold their
// default, or the zero value when the schema declares none. A nullable
// scalar field holds nil when absent.
type StructValue struct {
	Fields  []any
	Version uint32
}

// NewStruct builds a StructValue at version 0.
func NewStruct(fields ...any) *StructValue {
	return &StructValue{Fields: fields}
}

// UnionValue is a union with its active variant. Unknown is set when an
// extensible union carried a tag the schema does not know; Raw then holds
// the opaque 8-byte payload.
type UnionValue struct {
	Value   any
	Tag     uint32
	Raw     uint64
	Unknown bool
}

// MapValue is a map as parallel key and value lists in wire order. Keys
// and Values always have the same length.
type MapValue struct {
	Keys   []any
	Values []any
}

// Len returns the number of entries.
func (m *MapValue) Len() int {
	return len(m.Keys)
}

// Get returns the value stored under key.
func (m *MapValue) Get(key any) (any, bool) {
	for i, k := range m.Keys {
		if k == key {
			return m.Values[i], true
		}
	}
	return nil, false
}

// HandleRef is an index into the handles attached to a message.
type HandleRef uint32

// InvalidHandle is the null handle slot.
const InvalidHandle HandleRef = math.MaxUint32

// Valid reports whether h refers to an attached handle.
func (h HandleRef) Valid() bool {
	return h != InvalidHandle
}

// Message is a decoded message: header plus payload struct.
type Message struct {
	Payload *StructValue
	Header  MessageHeader
}
