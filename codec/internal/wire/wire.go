// Package wire holds the byte-level records of the message format and a
// bounds-checked little-endian reader and writer over them.
//
// All multi-byte values are little-endian. Every object (struct, array,
// out-of-line union) starts on an 8-byte boundary and claims its size
// rounded up to 8.
//
//	StructHeader  {size:u32, version:u32}
//	ArrayHeader   {size:u32, num_elems:u32}
//	Pointer       u64 offset relative to the pointer's own position, 0 = null
//	Union         {tag:u32, pad:u32, payload:u64}
//
// This package is internal to the codec.
package wire

import "math"

const (
	HeaderSize  = 8
	PointerSize = 8
	UnionSize   = 16
	MapSize     = 24
	Alignment   = 8

	// NullPointer is the encoding of an absent pointer target.
	NullPointer = 0

	// NullHandle marks an absent handle slot.
	NullHandle = math.MaxUint32
)

// StructHeader prefixes every encoded struct.
type StructHeader struct {
	Size    uint32
	Version uint32
}

// ArrayHeader prefixes every encoded array. Size includes the header.
type ArrayHeader struct {
	Size     uint32
	NumElems uint32
}

// Union is the inline 16-byte union record.
type Union struct {
	Tag     uint32
	Pad     uint32
	Payload uint64
}

func AlignTo(offset, align uint64) uint64 {
	if align == 0 {
		return offset
	}
	return (offset + align - 1) &^ (align - 1)
}

// Align8 rounds n up to the object alignment. It reports false on overflow.
func Align8(n uint64) (uint64, bool) {
	if n > math.MaxUint64-(Alignment-1) {
		return 0, false
	}
	return AlignTo(n, Alignment), true
}

func SafeAdd(a, b uint64) (uint64, bool) {
	if a > math.MaxUint64-b {
		return 0, false
	}
	return a + b, true
}

func SafeMul(a, b uint64) (uint64, bool) {
	if b != 0 && a > math.MaxUint64/b {
		return 0, false
	}
	return a * b, true
}

// BitfieldBytes is the payload size of n bit-packed booleans.
func BitfieldBytes(n uint64) uint64 {
	return (n + 7) / 8
}
