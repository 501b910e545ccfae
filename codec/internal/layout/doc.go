// Package layout computes the canonical byte layout of schema structs.
//
// Every implementation of the wire format must agree on field placement
// bit-for-bit, so packing is not append-at-end. Fields are placed in
// declaration order, each into the first gap between already-placed fields
// that fits it at its natural alignment:
//
//	Kind       Size  Align
//	leaf       1-8   size
//	bitfield   1     1      up to 8 booleans share one byte, LSB first
//	pointer    8     8      strings, arrays, structs, nullable unions
//	union      16    8      inline {tag, pad, payload}
//
// For fields [bool a, u32 b, bool c] the layout is
//
//	offset 0: a (bit 0), c (bit 1)
//	offset 4: b
//
// Struct sizes include the 8-byte header and are rounded up to 8. Each
// struct version has its own exact size computed from the fields that
// exist in that version.
//
// This package is internal to the codec.
package layout
