package memsys

import (
	"math"

	"go.uber.org/zap"

	"github.com/wippyai/mojo-wire/resource"
	"github.com/wippyai/mojo-wire/system"
)

// MaxBufferSize bounds CreateSharedBuffer.
const MaxBufferSize = math.MaxInt32

// region is the memory behind a shared buffer.
type region interface {
	// mapRange returns a view of [offset, offset+length) and the function
	// that releases it.
	mapRange(offset, length uint64, readOnly bool) ([]byte, func() error, error)
	// release is called once the last handle is closed. Live mappings stay
	// valid.
	release() error
}

// heapRegion is plain Go memory. Read-only mappings are enforced by the
// ipc layer only.
type heapRegion struct {
	mem []byte
}

func newHeapRegion(size uint64) *heapRegion {
	return &heapRegion{mem: make([]byte, size)}
}

func (r *heapRegion) mapRange(offset, length uint64, _ bool) ([]byte, func() error, error) {
	end := offset + length
	return r.mem[offset:end:end], func() error { return nil }, nil
}

func (r *heapRegion) release() error { return nil }

// lineage is shared by every handle duplicated from one buffer.
type lineage struct {
	region   region
	size     uint64
	handles  int
	readOnly bool
}

type bufferHandle struct {
	core     *Core
	lineage  *lineage
	h        system.Handle
	readOnly bool
}

func (b *bufferHandle) kind() resource.TypeID        { return typeBuffer }
func (b *bufferHandle) handle() system.Handle        { return b.h }
func (b *bufferHandle) setHandle(h system.Handle)    { b.h = h }
func (b *bufferHandle) signals() system.SignalsState { return system.SignalsState{} }

func (b *bufferHandle) Drop() {
	b.h = system.InvalidHandle
	b.lineage.handles--
	if b.lineage.handles == 0 {
		if err := b.lineage.region.release(); err != nil {
			Logger().Warn("release shared buffer", zap.Uint64("size", b.lineage.size), zap.Error(err))
		}
	}
}

// CreateSharedBuffer implements system.Core.
func (c *Core) CreateSharedBuffer(size uint64) (system.Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkOpen(); err != nil {
		return 0, err
	}
	if size == 0 {
		return 0, system.ResultInvalidArgument
	}
	if size > MaxBufferSize {
		return 0, system.ResultResourceExhausted
	}
	r, err := newRegion(size)
	if err != nil {
		Logger().Warn("allocate shared buffer", zap.Uint64("size", size), zap.Error(err))
		return 0, system.ResultResourceExhausted
	}

	l := &lineage{region: r, size: size, handles: 1}
	h, err := c.insert(&bufferHandle{core: c, lineage: l})
	if err != nil {
		l.handles = 0
		_ = r.release()
		return 0, err
	}
	return h, nil
}

// DuplicateBuffer implements system.Core. Once a read-only duplicate exists
// every later duplicate in the lineage must be read-only as well.
func (c *Core) DuplicateBuffer(h system.Handle, readOnly bool) (system.Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	o, err := c.lookup(h, typeBuffer)
	if err != nil {
		return 0, err
	}
	b := o.(*bufferHandle)
	if !readOnly && (b.readOnly || b.lineage.readOnly) {
		return 0, system.ResultPermissionDenied
	}

	dup := &bufferHandle{core: c, lineage: b.lineage, readOnly: readOnly}
	b.lineage.handles++
	nh, err := c.insert(dup)
	if err != nil {
		b.lineage.handles--
		return 0, err
	}
	if readOnly {
		b.lineage.readOnly = true
	}
	return nh, nil
}

// BufferInfo implements system.Core.
func (c *Core) BufferInfo(h system.Handle) (system.BufferInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	o, err := c.lookup(h, typeBuffer)
	if err != nil {
		return system.BufferInfo{}, err
	}
	b := o.(*bufferHandle)
	return system.BufferInfo{Size: b.lineage.size, ReadOnly: b.readOnly}, nil
}

// MapBuffer implements system.Core.
func (c *Core) MapBuffer(h system.Handle, offset, length uint64) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	o, err := c.lookup(h, typeBuffer)
	if err != nil {
		return nil, err
	}
	b := o.(*bufferHandle)
	if length == 0 || offset > b.lineage.size || length > b.lineage.size-offset {
		return nil, system.ResultInvalidArgument
	}

	view, unmap, err := b.lineage.region.mapRange(offset, length, b.readOnly)
	if err != nil {
		Logger().Warn("map shared buffer", zap.Uint32("handle", uint32(h)), zap.Error(err))
		return nil, system.ResultResourceExhausted
	}
	key := keyOf(view)
	c.mappings[key] = append(c.mappings[key], unmap)
	return view, nil
}

// mappingKey identifies a view by its first byte and length. Heap regions
// hand out identical views for identical ranges, so a key holds one unmap
// function per live mapping.
type mappingKey struct {
	base   *byte
	length int
}

func keyOf(view []byte) mappingKey {
	return mappingKey{base: &view[0], length: len(view)}
}

// UnmapBuffer implements system.Core.
func (c *Core) UnmapBuffer(mapping []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(mapping) == 0 {
		return system.ResultInvalidArgument
	}
	key := keyOf(mapping)
	live := c.mappings[key]
	if len(live) == 0 {
		return system.ResultInvalidArgument
	}
	unmap := live[len(live)-1]
	if len(live) == 1 {
		delete(c.mappings, key)
	} else {
		c.mappings[key] = live[:len(live)-1]
	}
	if err := unmap(); err != nil {
		Logger().Warn("unmap shared buffer", zap.Error(err))
		return system.ResultInternal
	}
	return nil
}
