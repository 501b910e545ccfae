package wire

import "encoding/binary"

// Reader is a read-only view over untrusted bytes. Every accessor checks
// the requested range against the buffer before touching it and reports
// false instead of panicking.
type Reader struct {
	buf []byte
}

func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Len returns the buffer length.
func (r *Reader) Len() uint64 {
	return uint64(len(r.buf))
}

// Has reports whether [off, off+n) lies within the buffer.
func (r *Reader) Has(off, n uint64) bool {
	end, ok := SafeAdd(off, n)
	return ok && end <= uint64(len(r.buf))
}

func (r *Reader) U8(off uint64) (uint8, bool) {
	if !r.Has(off, 1) {
		return 0, false
	}
	return r.buf[off], true
}

func (r *Reader) U16(off uint64) (uint16, bool) {
	if !r.Has(off, 2) {
		return 0, false
	}
	return binary.LittleEndian.Uint16(r.buf[off:]), true
}

func (r *Reader) U32(off uint64) (uint32, bool) {
	if !r.Has(off, 4) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(r.buf[off:]), true
}

func (r *Reader) U64(off uint64) (uint64, bool) {
	if !r.Has(off, 8) {
		return 0, false
	}
	return binary.LittleEndian.Uint64(r.buf[off:]), true
}

// Bytes returns a subslice aliasing the buffer.
func (r *Reader) Bytes(off, n uint64) ([]byte, bool) {
	if !r.Has(off, n) {
		return nil, false
	}
	return r.buf[off : off+n : off+n], true
}

func (r *Reader) StructHeader(off uint64) (StructHeader, bool) {
	if !r.Has(off, HeaderSize) {
		return StructHeader{}, false
	}
	return StructHeader{
		Size:    binary.LittleEndian.Uint32(r.buf[off:]),
		Version: binary.LittleEndian.Uint32(r.buf[off+4:]),
	}, true
}

func (r *Reader) ArrayHeader(off uint64) (ArrayHeader, bool) {
	if !r.Has(off, HeaderSize) {
		return ArrayHeader{}, false
	}
	return ArrayHeader{
		Size:     binary.LittleEndian.Uint32(r.buf[off:]),
		NumElems: binary.LittleEndian.Uint32(r.buf[off+4:]),
	}, true
}

func (r *Reader) Union(off uint64) (Union, bool) {
	if !r.Has(off, UnionSize) {
		return Union{}, false
	}
	return Union{
		Tag:     binary.LittleEndian.Uint32(r.buf[off:]),
		Pad:     binary.LittleEndian.Uint32(r.buf[off+4:]),
		Payload: binary.LittleEndian.Uint64(r.buf[off+8:]),
	}, true
}

// Bit reports bit `bit` of the byte at off.
func (r *Reader) Bit(off uint64, bit uint8) (bool, bool) {
	b, ok := r.U8(off)
	if !ok {
		return false, false
	}
	return b&(1<<bit) != 0, true
}
