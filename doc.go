// Package mojowire is a message codec and in-process IPC layer modelled on
// the Mojo bindings wire format.
//
// # Architecture Overview
//
// The module is organized into packages with distinct responsibilities:
//
//	mojowire/
//	├── schema/          Message schema model, TOML schema files
//	│   └── witschema/   WIT type import
//	├── codec/           Struct packing, validating decoder, encoder, message headers
//	├── system/          Handle, signals, results and the Core/Trap contracts
//	│   └── memsys/      In-process Core: message pipes, data pipes, shared buffers, traps
//	├── resource/        Handle table and owned Handle
//	├── ipc/             Owned endpoints over a Core
//	├── wait/            Blocking Wait and WaitSet over traps
//	├── config/          TOML configuration and logger construction
//	├── errors/          Structured error types with field path and byte offset
//	└── cmd/wiredump/    Layout inspection and message decoding CLI
//
// # Quick Start
//
// Encode a message, send it through a pipe and decode it on the other end:
//
//	core := memsys.New(memsys.DefaultOptions())
//	defer core.Shutdown()
//
//	a, b, _ := ipc.CreateMessagePipe(core)
//	defer a.Close()
//	defer b.Close()
//
//	reg := codec.NewRegistry()
//	enc, dec := codec.NewEncoder(reg), codec.NewDecoder(reg)
//
//	_ = a.WriteMessage(enc, codec.MessageHeader{Name: 1}, pingSchema, codec.NewStruct(uint32(7)), nil)
//	_, _ = wait.Wait(ctx, core, b.Raw(), system.SignalReadable)
//	msg, handles, err := b.ReadMessage(dec, pingSchema)
//
// # Trust
//
// The decoder treats every buffer as hostile. It checks bounds, alignment,
// pointer direction, claim order, handle order and UTF-8 before a value is
// returned, and reports the first violation as an *errors.Error with the
// field path and byte offset.
package mojowire
