package ipc

import (
	"errors"

	"go.uber.org/zap"

	"github.com/wippyai/mojo-wire/codec"
	"github.com/wippyai/mojo-wire/resource"
	"github.com/wippyai/mojo-wire/schema"
	"github.com/wippyai/mojo-wire/system"
)

// IsEmpty reports whether err means a read found nothing yet.
func IsEmpty(err error) bool {
	return errors.Is(err, system.ResultShouldWait)
}

// MessagePipeEndpoint is one end of a bidirectional message pipe.
type MessagePipeEndpoint struct {
	core system.Core
	h    *resource.Handle
}

// CreateMessagePipe creates a connected pair of endpoints.
func CreateMessagePipe(core system.Core) (*MessagePipeEndpoint, *MessagePipeEndpoint, error) {
	a, b, err := core.CreateMessagePipe()
	if err != nil {
		return nil, nil, err
	}
	return NewMessagePipeEndpoint(core, resource.FromRaw(core, a)),
		NewMessagePipeEndpoint(core, resource.FromRaw(core, b)), nil
}

// NewMessagePipeEndpoint wraps an owned handle, for example one received
// in a message. Ownership moves into the endpoint.
func NewMessagePipeEndpoint(core system.Core, h *resource.Handle) *MessagePipeEndpoint {
	return &MessagePipeEndpoint{core: core, h: h.Take()}
}

// Handle returns the owned handle. It stays owned by the endpoint.
func (e *MessagePipeEndpoint) Handle() *resource.Handle { return e.h }

// Raw returns the raw handle for waiting.
func (e *MessagePipeEndpoint) Raw() system.Handle { return e.h.Raw() }

// Close closes the endpoint. The peer observes SignalPeerClosed.
func (e *MessagePipeEndpoint) Close() { e.h.Close() }

// Write sends data and handles to the peer. The handles are consumed
// whether or not the write succeeds: on success they travel with the
// message, on failure they are closed.
func (e *MessagePipeEndpoint) Write(data []byte, handles []*resource.Handle) error {
	raws := make([]system.Handle, 0, len(handles))
	var invalid bool
	for _, h := range handles {
		raw := h.Invalidate()
		if !raw.IsValid() {
			invalid = true
			continue
		}
		raws = append(raws, raw)
	}

	var err error
	switch {
	case invalid:
		err = system.ResultInvalidArgument
	case !e.h.IsValid():
		err = system.ResultInvalidArgument
	default:
		err = e.core.WriteMessage(e.h.Raw(), data, raws)
	}
	if err != nil {
		e.closeRaw(raws, err)
		return err
	}
	return nil
}

func (e *MessagePipeEndpoint) closeRaw(raws []system.Handle, cause error) {
	for _, raw := range raws {
		resource.CloseOwned(e.core, raw, zap.NamedError("write_error", cause))
	}
}

// Read returns the next message. An empty pipe reports ResultShouldWait;
// test for it with IsEmpty.
func (e *MessagePipeEndpoint) Read() ([]byte, []*resource.Handle, error) {
	data, raws, err := e.core.ReadMessage(e.h.Raw())
	if err != nil {
		return nil, nil, err
	}
	handles := make([]*resource.Handle, len(raws))
	for i, raw := range raws {
		handles[i] = resource.FromRaw(e.core, raw)
	}
	return data, handles, nil
}

// WriteMessage encodes v behind hdr and writes it with handles. Handles are
// consumed even when encoding fails.
func (e *MessagePipeEndpoint) WriteMessage(enc *codec.Encoder, hdr codec.MessageHeader, s *schema.Struct, v *codec.StructValue, handles []*resource.Handle) error {
	buf, err := enc.EncodeMessage(hdr, s, v)
	if err != nil {
		closeAll(handles)
		return err
	}
	return e.Write(buf, handles)
}

// ReadMessage reads and validates the next message. The returned handles
// are those referenced by codec.HandleRef values in the payload. When
// validation fails the handles are closed.
func (e *MessagePipeEndpoint) ReadMessage(dec *codec.Decoder, s *schema.Struct) (*codec.Message, []*resource.Handle, error) {
	data, handles, err := e.Read()
	if err != nil {
		return nil, nil, err
	}
	msg, err := dec.DecodeMessage(data, uint32(len(handles)), s)
	if err != nil {
		Logger().Debug("dropping invalid message",
			zap.Uint32("endpoint", uint32(e.Raw())),
			zap.Int("bytes", len(data)),
			zap.Error(err))
		closeAll(handles)
		return nil, nil, err
	}
	return msg, handles, nil
}

func closeAll(handles []*resource.Handle) {
	for _, h := range handles {
		h.Close()
	}
}
