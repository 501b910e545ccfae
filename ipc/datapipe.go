package ipc

import (
	"github.com/wippyai/mojo-wire/resource"
	"github.com/wippyai/mojo-wire/system"
)

// DataPipeProducer is the write end of a data pipe.
type DataPipeProducer struct {
	core system.Core
	h    *resource.Handle
}

// DataPipeConsumer is the read end of a data pipe.
type DataPipeConsumer struct {
	core system.Core
	h    *resource.Handle
}

// CreateDataPipe creates a bounded byte stream. A zero Capacity selects the
// core's default, which holds at least one element.
func CreateDataPipe(core system.Core, opts system.DataPipeOptions) (*DataPipeProducer, *DataPipeConsumer, error) {
	p, c, err := core.CreateDataPipe(opts)
	if err != nil {
		return nil, nil, err
	}
	return &DataPipeProducer{core: core, h: resource.FromRaw(core, p)},
		&DataPipeConsumer{core: core, h: resource.FromRaw(core, c)}, nil
}

// Handle returns the owned handle.
func (p *DataPipeProducer) Handle() *resource.Handle { return p.h }

// Raw returns the raw handle for waiting.
func (p *DataPipeProducer) Raw() system.Handle { return p.h.Raw() }

// Close closes the producer. The consumer can drain what was written.
func (p *DataPipeProducer) Close() { p.h.Close() }

// Write writes whole elements and returns the number of bytes accepted.
// With DataAllOrNone a write that does not fit fails with
// ResultOutOfRange and transfers nothing. A full pipe reports
// ResultShouldWait.
func (p *DataPipeProducer) Write(data []byte, flags system.DataFlags) (int, error) {
	return p.core.WriteData(p.h.Raw(), data, flags)
}

// Handle returns the owned handle.
func (c *DataPipeConsumer) Handle() *resource.Handle { return c.h }

// Raw returns the raw handle for waiting.
func (c *DataPipeConsumer) Raw() system.Handle { return c.h.Raw() }

// Close closes the consumer.
func (c *DataPipeConsumer) Close() { c.h.Close() }

// Read reads whole elements into buf. flags may add DataAllOrNone or
// DataPeek.
func (c *DataPipeConsumer) Read(buf []byte, flags system.DataFlags) (int, error) {
	return c.core.ReadData(c.h.Raw(), buf, flags)
}

// Peek copies without consuming.
func (c *DataPipeConsumer) Peek(buf []byte) (int, error) {
	return c.Read(buf, system.DataPeek)
}

// Discard consumes up to n bytes without copying them.
func (c *DataPipeConsumer) Discard(n int, flags system.DataFlags) (int, error) {
	return c.core.DiscardData(c.h.Raw(), n, flags)
}

// Query returns the number of readable bytes.
func (c *DataPipeConsumer) Query() (int, error) {
	return c.core.ReadData(c.h.Raw(), nil, system.DataQuery)
}
