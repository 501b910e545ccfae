package wire

import (
	"bytes"
	"math"
	"testing"
)

func TestSafeMul(t *testing.T) {
	tests := []struct {
		name   string
		a, b   uint64
		want   uint64
		wantOK bool
	}{
		{"zero * zero", 0, 0, 0, true},
		{"zero * max", 0, math.MaxUint64, 0, true},
		{"small * small", 100, 200, 20000, true},
		{"max * one", math.MaxUint64, 1, math.MaxUint64, true},
		{"overflow", math.MaxUint64, 2, 0, false},
		{"overflow symmetric", 2, math.MaxUint64, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SafeMul(tt.a, tt.b)
			if ok != tt.wantOK {
				t.Errorf("SafeMul(%d, %d) ok = %v, want %v", tt.a, tt.b, ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("SafeMul(%d, %d) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestSafeAdd(t *testing.T) {
	if _, ok := SafeAdd(math.MaxUint64, 1); ok {
		t.Error("MaxUint64 + 1 should overflow")
	}
	if got, ok := SafeAdd(math.MaxUint64-1, 1); !ok || got != math.MaxUint64 {
		t.Errorf("SafeAdd = %d, %v", got, ok)
	}
}

func TestAlign8(t *testing.T) {
	tests := []struct {
		in, want uint64
		ok       bool
	}{
		{0, 0, true},
		{1, 8, true},
		{8, 8, true},
		{9, 16, true},
		{math.MaxUint64, 0, false},
	}
	for _, tt := range tests {
		got, ok := Align8(tt.in)
		if ok != tt.ok || (ok && got != tt.want) {
			t.Errorf("Align8(%d) = %d, %v; want %d, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestReader_BoundsChecks(t *testing.T) {
	r := NewReader([]byte{1, 2, 3, 4, 5, 6, 7, 8})

	if v, ok := r.U32(4); !ok || v != 0x08070605 {
		t.Errorf("U32(4) = %#x, %v", v, ok)
	}
	if _, ok := r.U32(5); ok {
		t.Error("U32(5) should be out of range")
	}
	if _, ok := r.U64(1); ok {
		t.Error("U64(1) should be out of range")
	}
	if _, ok := r.Bytes(math.MaxUint64, 2); ok {
		t.Error("overflowing range should be rejected")
	}
	if _, ok := r.StructHeader(4); ok {
		t.Error("truncated header should be rejected")
	}
	if b, ok := r.Bit(0, 0); !ok || !b {
		t.Error("bit 0 of 0x01 should be set")
	}
}

func TestWriter_RoundTrip(t *testing.T) {
	w := NewWriter(0)
	off := w.Alloc(12)
	if off != 0 || w.Len() != 16 {
		t.Fatalf("Alloc(12) = %d, len %d", off, w.Len())
	}
	w.PutStructHeader(off, StructHeader{Size: 16, Version: 2})
	w.PutBit(off+8, 3, true)
	w.PutU16(off+10, 0xBEEF)

	child := w.Alloc(HeaderSize)
	w.PutArrayHeader(child, ArrayHeader{Size: 8, NumElems: 0})

	want := []byte{
		16, 0, 0, 0, 2, 0, 0, 0,
		0x08, 0, 0xEF, 0xBE, 0, 0, 0, 0,
		8, 0, 0, 0, 0, 0, 0, 0,
	}
	if !bytes.Equal(w.Bytes(), want) {
		t.Errorf("bytes = %v, want %v", w.Bytes(), want)
	}

	r := NewReader(w.Bytes())
	h, ok := r.StructHeader(0)
	if !ok || h.Size != 16 || h.Version != 2 {
		t.Errorf("StructHeader = %+v, %v", h, ok)
	}
	a, ok := r.ArrayHeader(16)
	if !ok || a.Size != 8 || a.NumElems != 0 {
		t.Errorf("ArrayHeader = %+v, %v", a, ok)
	}
}

func TestWriter_PutPointer(t *testing.T) {
	w := NewWriter(0)
	w.Alloc(16)
	w.PutPointer(8, 16)
	r := NewReader(w.Bytes())
	if v, _ := r.U64(8); v != 8 {
		t.Errorf("pointer = %d, want 8", v)
	}
}
