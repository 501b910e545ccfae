// Package wait turns the asynchronous trap of a system.Core into blocking
// waits.
//
// Wait blocks on one handle:
//
//	st, err := wait.Wait(ctx, core, h, system.SignalReadable)
//	switch {
//	case err == nil:
//	    // readable
//	case errors.Is(err, system.ResultFailedPrecondition):
//	    // can never become readable, st says why
//	case errors.Is(err, system.ResultCancelled):
//	    // h was closed
//	}
//
// A WaitSet blocks on many handles, each registered under a caller-chosen
// cookie:
//
//	ws, _ := wait.NewWaitSet(core)
//	defer ws.Close()
//	_ = ws.Add(1, a.Raw(), system.SignalReadable)
//	_ = ws.Add(2, b.Raw(), system.SignalReadable)
//	events, err := ws.Wait(ctx)
//
// The trap callback records the newest event per cookie under a mutex and
// broadcasts a condition variable; waiters drain under the same mutex, so
// no event is lost between the two. Intermediate transitions of one handle
// between two Wait calls are not observable. A context ends a wait; there
// is no other cancellation.
package wait
