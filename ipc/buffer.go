package ipc

import (
	"io"
	"sync/atomic"
	"unsafe"

	"go.uber.org/zap"

	"github.com/wippyai/mojo-wire/resource"
	"github.com/wippyai/mojo-wire/system"
)

// SharedBuffer is a handle to memory shared with other handle holders.
type SharedBuffer struct {
	core system.Core
	h    *resource.Handle
}

// CreateSharedBuffer allocates a zeroed buffer of size bytes.
func CreateSharedBuffer(core system.Core, size uint64) (*SharedBuffer, error) {
	raw, err := core.CreateSharedBuffer(size)
	if err != nil {
		return nil, err
	}
	return &SharedBuffer{core: core, h: resource.FromRaw(core, raw)}, nil
}

// Handle returns the owned handle.
func (b *SharedBuffer) Handle() *resource.Handle { return b.h }

// Raw returns the raw handle.
func (b *SharedBuffer) Raw() system.Handle { return b.h.Raw() }

// Close closes this handle. Other duplicates and live mappings are not
// affected.
func (b *SharedBuffer) Close() { b.h.Close() }

// Duplicate returns an independently owned handle to the same memory. Once
// any duplicate is read-only, a writable duplicate fails with
// ResultPermissionDenied.
func (b *SharedBuffer) Duplicate(readOnly bool) (*SharedBuffer, error) {
	raw, err := b.core.DuplicateBuffer(b.h.Raw(), readOnly)
	if err != nil {
		return nil, err
	}
	return &SharedBuffer{core: b.core, h: resource.FromRaw(b.core, raw)}, nil
}

// Info describes the buffer.
func (b *SharedBuffer) Info() (system.BufferInfo, error) {
	return b.core.BufferInfo(b.h.Raw())
}

// Map maps length bytes at offset. The mapping must be closed.
func (b *SharedBuffer) Map(offset, length uint64) (*Mapping, error) {
	info, err := b.Info()
	if err != nil {
		return nil, err
	}
	data, err := b.core.MapBuffer(b.h.Raw(), offset, length)
	if err != nil {
		return nil, err
	}
	return &Mapping{core: b.core, data: data, readOnly: info.ReadOnly}, nil
}

// Mapping is a view of shared memory. Other processes may read and write
// the same bytes at any time: use the atomic Load and Store methods for
// values that coordinate with them. ReadAt, WriteAt and Bytes give plain
// access with no ordering guarantees.
type Mapping struct {
	core     system.Core
	data     []byte
	closed   atomic.Bool
	readOnly bool
}

// Len returns the mapped length.
func (m *Mapping) Len() int { return len(m.data) }

// ReadOnly reports whether writes are rejected.
func (m *Mapping) ReadOnly() bool { return m.readOnly }

// Bytes returns the mapped memory. It must not be used after Close.
func (m *Mapping) Bytes() []byte {
	if m.closed.Load() {
		return nil
	}
	return m.data
}

// Close unmaps the memory. Closing twice is a no-op.
func (m *Mapping) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	err := m.core.UnmapBuffer(m.data)
	if err != nil {
		Logger().Warn("unmap failed", zap.Int("bytes", len(m.data)), zap.Error(err))
	}
	m.data = nil
	return err
}

// ReadAt implements io.ReaderAt.
func (m *Mapping) ReadAt(p []byte, off int64) (int, error) {
	if m.closed.Load() {
		return 0, system.ResultFailedPrecondition
	}
	if off < 0 {
		return 0, system.ResultInvalidArgument
	}
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt implements io.WriterAt. Writes past the end fail without
// writing.
func (m *Mapping) WriteAt(p []byte, off int64) (int, error) {
	if err := m.check(off, len(p), 1); err != nil {
		return 0, err
	}
	if m.readOnly {
		return 0, system.ResultPermissionDenied
	}
	return copy(m.data[off:], p), nil
}

// LoadUint32 atomically loads the aligned uint32 at off.
func (m *Mapping) LoadUint32(off int64) (uint32, error) {
	if err := m.check(off, 4, 4); err != nil {
		return 0, err
	}
	return atomic.LoadUint32((*uint32)(unsafe.Pointer(&m.data[off]))), nil
}

// StoreUint32 atomically stores v at the aligned offset off.
func (m *Mapping) StoreUint32(off int64, v uint32) error {
	if err := m.check(off, 4, 4); err != nil {
		return err
	}
	if m.readOnly {
		return system.ResultPermissionDenied
	}
	atomic.StoreUint32((*uint32)(unsafe.Pointer(&m.data[off])), v)
	return nil
}

// LoadUint64 atomically loads the aligned uint64 at off.
func (m *Mapping) LoadUint64(off int64) (uint64, error) {
	if err := m.check(off, 8, 8); err != nil {
		return 0, err
	}
	return atomic.LoadUint64((*uint64)(unsafe.Pointer(&m.data[off]))), nil
}

// StoreUint64 atomically stores v at the aligned offset off.
func (m *Mapping) StoreUint64(off int64, v uint64) error {
	if err := m.check(off, 8, 8); err != nil {
		return err
	}
	if m.readOnly {
		return system.ResultPermissionDenied
	}
	atomic.StoreUint64((*uint64)(unsafe.Pointer(&m.data[off])), v)
	return nil
}

// check validates [off, off+size) against the mapping and the address
// alignment of off.
func (m *Mapping) check(off int64, size int, align uintptr) error {
	if m.closed.Load() {
		return system.ResultFailedPrecondition
	}
	if off < 0 || off > int64(len(m.data)) || int64(size) > int64(len(m.data))-off {
		return system.ResultOutOfRange
	}
	if size == 0 {
		return nil
	}
	if uintptr(unsafe.Pointer(&m.data[off]))%align != 0 {
		return system.ResultInvalidArgument
	}
	return nil
}
