package resource

import (
	"runtime"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/mojo-wire/system"
)

// Closer is the part of system.Core a Handle needs.
type Closer interface {
	Close(h system.Handle) error
}

// Handle owns one raw system handle and closes it exactly once.
//
// A Handle is created by FromRaw or by the ipc constructors. Ownership moves
// with Take; Invalidate gives the raw value up without closing it, which is
// how handles leave the process inside a message. A Handle that becomes
// unreachable while still valid is closed by a GC cleanup and logged as a
// leak.
//
// A Handle is not safe for concurrent Take/Invalidate/Close by several
// goroutines, but Raw may be called concurrently with any of them.
type Handle struct {
	state   *handleState
	cleanup runtime.Cleanup
}

// handleState is kept apart from Handle so the cleanup does not keep the
// Handle reachable.
type handleState struct {
	core Closer
	raw  atomic.Uint32
}

// FromRaw takes ownership of raw. It is the only way to turn a raw value
// into an owner and should be confined to code that receives raw handles
// from a Core. An invalid raw value yields an invalid Handle.
func FromRaw(core Closer, raw system.Handle) *Handle {
	st := &handleState{core: core}
	st.raw.Store(uint32(raw))
	h := &Handle{state: st}
	if raw.IsValid() {
		h.cleanup = runtime.AddCleanup(h, closeLeaked, st)
	}
	return h
}

// closeLeaked runs on the cleanup goroutine. A failed close there is a
// DPanic rather than a panic.
func closeLeaked(st *handleState) {
	raw := system.Handle(st.raw.Swap(0))
	if !raw.IsValid() {
		return
	}
	Logger().Warn("closing leaked handle", zap.Uint32("handle", uint32(raw)))
	if err := st.core.Close(raw); err != nil {
		Logger().DPanic("close of leaked handle failed",
			zap.Uint32("handle", uint32(raw)),
			zap.Error(err))
	}
}

// Raw returns the raw value without giving up ownership.
func (h *Handle) Raw() system.Handle {
	if h == nil || h.state == nil {
		return system.InvalidHandle
	}
	return system.Handle(h.state.raw.Load())
}

// IsValid reports whether h still owns a raw handle.
func (h *Handle) IsValid() bool {
	return h.Raw().IsValid()
}

// Invalidate releases ownership without closing and returns the raw value.
// The caller becomes responsible for it.
func (h *Handle) Invalidate() system.Handle {
	if h == nil || h.state == nil {
		return system.InvalidHandle
	}
	raw := system.Handle(h.state.raw.Swap(0))
	if raw.IsValid() {
		h.cleanup.Stop()
	}
	return raw
}

// Take moves ownership into a new Handle and leaves h invalid.
func (h *Handle) Take() *Handle {
	if h == nil || h.state == nil {
		return &Handle{}
	}
	core := h.state.core
	return FromRaw(core, h.Invalidate())
}

// Close closes the raw handle if h still owns one. Closing twice is a
// no-op. A failed close panics, see CloseOwned.
func (h *Handle) Close() {
	raw := h.Invalidate()
	if !raw.IsValid() {
		return
	}
	CloseOwned(h.state.core, raw)
}

// CloseOwned closes a raw handle the caller owns outright, for code that
// holds raw values briefly without wrapping them. A Core refusing to close
// an owned handle means ownership has been corrupted elsewhere, so
// CloseOwned logs with fields and panics.
func CloseOwned(core Closer, raw system.Handle, fields ...zap.Field) {
	err := core.Close(raw)
	if err == nil {
		return
	}
	Logger().Error("close of owned handle failed",
		append([]zap.Field{zap.Uint32("handle", uint32(raw)), zap.Error(err)}, fields...)...)
	panic("resource: close of owned handle " + err.Error())
}
