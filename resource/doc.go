// Package resource manages ownership of raw system handles.
//
// # Handle
//
// A Handle owns one raw system.Handle and closes it exactly once:
//
//	h := resource.FromRaw(core, raw)
//	defer h.Close()
//
//	// Move ownership to another owner; h becomes invalid.
//	h2 := h.Take()
//
//	// Give the raw value away, for example to a message write.
//	raw := h2.Invalidate()
//
// Closing an invalid Handle does nothing. A Handle that is garbage collected
// while still valid is closed by a cleanup and the leak is logged. A Core
// that fails to close an owned handle indicates a double close elsewhere;
// Close logs the failure and panics.
//
// # Table
//
// Table maps raw handles to the objects behind them. It is the storage
// layer of an in-process Core:
//
//	table := resource.NewTable()
//
//	h := table.Insert(typeMessagePipe, endpoint)
//	v, ok := table.GetTyped(h, typeMessagePipe)
//
//	// Close: the value's Drop method runs.
//	table.Remove(h)
//
//	// Transfer: the value survives and can be inserted again.
//	v, ok = table.Detach(h)
//
// Handle values are never reused within a table.
//
// # Observers
//
// Observers see every insert, close and transfer synchronously:
//
//	table.Subscribe(obs)
//
//	func (o *obs) OnResourceEvent(e resource.Event) {
//	    if e.Type == resource.EventClosed {
//	        o.cancelTriggers(e.Handle)
//	    }
//	}
package resource
