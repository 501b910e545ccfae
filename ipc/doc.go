// Package ipc provides owned endpoints over a system.Core: message pipes,
// data pipes and shared buffers.
//
// Every endpoint owns its handle through a resource.Handle and closes it on
// Close. Operations never block; a pipe with nothing to read or no room to
// write reports system.ResultShouldWait, and callers that need to block use
// package wait on the endpoint's Raw handle.
//
//	a, b, err := ipc.CreateMessagePipe(core)
//	if err != nil { ... }
//	defer a.Close()
//	defer b.Close()
//
//	if err := a.WriteMessage(enc, hdr, schema, value, nil); err != nil { ... }
//
//	if _, err := wait.Wait(ctx, core, b.Raw(), system.SignalReadable); err != nil { ... }
//	msg, handles, err := b.ReadMessage(dec, schema)
//
// Handles passed to Write are always consumed. On failure they are closed,
// so the caller never has to track which ones were sent.
package ipc
