package wire

import "encoding/binary"

// Writer builds a message buffer. Objects are allocated at the end of the
// buffer in the order Alloc is called; callers fill them in place.
type Writer struct {
	buf []byte
}

func NewWriter(sizeHint int) *Writer {
	return &Writer{buf: make([]byte, 0, sizeHint)}
}

// Bytes returns the written bytes.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Len returns the number of bytes written.
func (w *Writer) Len() uint64 {
	return uint64(len(w.buf))
}

// Alloc appends a zeroed object of size bytes, padded to the object
// alignment, and returns its offset.
func (w *Writer) Alloc(size uint64) uint64 {
	off := uint64(len(w.buf))
	padded := AlignTo(size, Alignment)
	w.buf = append(w.buf, make([]byte, padded)...)
	return off
}

func (w *Writer) PutU8(off uint64, v uint8) {
	w.buf[off] = v
}

func (w *Writer) PutU16(off uint64, v uint16) {
	binary.LittleEndian.PutUint16(w.buf[off:], v)
}

func (w *Writer) PutU32(off uint64, v uint32) {
	binary.LittleEndian.PutUint32(w.buf[off:], v)
}

func (w *Writer) PutU64(off uint64, v uint64) {
	binary.LittleEndian.PutUint64(w.buf[off:], v)
}

// PutBit sets bit `bit` of the byte at off.
func (w *Writer) PutBit(off uint64, bit uint8, v bool) {
	if v {
		w.buf[off] |= 1 << bit
	} else {
		w.buf[off] &^= 1 << bit
	}
}

func (w *Writer) PutBytes(off uint64, data []byte) {
	copy(w.buf[off:], data)
}

func (w *Writer) PutStructHeader(off uint64, h StructHeader) {
	w.PutU32(off, h.Size)
	w.PutU32(off+4, h.Version)
}

func (w *Writer) PutArrayHeader(off uint64, h ArrayHeader) {
	w.PutU32(off, h.Size)
	w.PutU32(off+4, h.NumElems)
}

// PutPointer writes the relative offset from at to target.
func (w *Writer) PutPointer(at, target uint64) {
	w.PutU64(at, target-at)
}
