package codec

import (
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/mojo-wire/errors"
	"github.com/wippyai/mojo-wire/schema"
)

// DecodeFromMemory validates a message held in a WebAssembly guest's linear
// memory. The bytes are read in place; decoded strings and byte arrays are
// copies and stay valid after the guest memory changes.
func DecodeFromMemory(d *Decoder, mem api.Memory, offset, length, numHandles uint32, s *schema.Struct) (*Message, error) {
	buf, ok := mem.Read(offset, length)
	if !ok {
		return nil, errors.New(errors.PhaseDecode, errors.KindNotEnoughData).
			Offset(uint64(offset)).
			Context("guest memory").
			Expected(length).
			Actual(mem.Size()).
			Detail("range [%d, +%d) outside %d bytes of guest memory", offset, length, mem.Size()).
			Build()
	}
	return d.DecodeMessage(buf, numHandles, s)
}

// WriteToMemory copies an encoded message into guest memory at offset.
func WriteToMemory(mem api.Memory, offset uint32, msg []byte) error {
	if uint64(len(msg)) > uint64(^uint32(0)) || !mem.Write(offset, msg) {
		return errors.New(errors.PhaseEncode, errors.KindOverflow).
			Offset(uint64(offset)).
			Value(len(msg)).
			Detail("%d bytes at %d do not fit %d bytes of guest memory", len(msg), offset, mem.Size()).
			Build()
	}
	return nil
}
