package memsys

import (
	"github.com/wippyai/mojo-wire/resource"
	"github.com/wippyai/mojo-wire/system"
)

type dataPipe struct {
	producer       *dataProducer
	consumer       *dataConsumer
	buf            []byte
	capacity       int
	elemSize       int
	producerClosed bool
	consumerClosed bool
}

func (p *dataPipe) free() int { return p.capacity - len(p.buf) }

type dataProducer struct {
	core *Core
	pipe *dataPipe
	h    system.Handle
}

func (p *dataProducer) kind() resource.TypeID     { return typeDataProducer }
func (p *dataProducer) handle() system.Handle     { return p.h }
func (p *dataProducer) setHandle(h system.Handle) { p.h = h }

func (p *dataProducer) signals() system.SignalsState {
	var st system.SignalsState
	if p.pipe.consumerClosed {
		st.Satisfied = system.SignalPeerClosed
		st.Satisfiable = system.SignalPeerClosed
		return st
	}
	if p.pipe.free() > 0 {
		st.Satisfied |= system.SignalWritable
	}
	st.Satisfiable = system.SignalWritable | system.SignalPeerClosed
	return st
}

func (p *dataProducer) Drop() {
	p.pipe.producerClosed = true
	p.h = system.InvalidHandle
	p.core.touch(p.pipe.consumer)
}

type dataConsumer struct {
	core *Core
	pipe *dataPipe
	h    system.Handle
}

func (c *dataConsumer) kind() resource.TypeID     { return typeDataConsumer }
func (c *dataConsumer) handle() system.Handle     { return c.h }
func (c *dataConsumer) setHandle(h system.Handle) { c.h = h }

func (c *dataConsumer) signals() system.SignalsState {
	var st system.SignalsState
	if len(c.pipe.buf) > 0 {
		st.Satisfied |= system.SignalReadable
		st.Satisfiable |= system.SignalReadable
	}
	if c.pipe.producerClosed {
		st.Satisfied |= system.SignalPeerClosed
	} else {
		st.Satisfiable |= system.SignalReadable
	}
	st.Satisfiable |= system.SignalPeerClosed
	return st
}

func (c *dataConsumer) Drop() {
	c.pipe.consumerClosed = true
	c.pipe.buf = nil
	c.h = system.InvalidHandle
	c.core.touch(c.pipe.producer)
}

// CreateDataPipe implements system.Core. A zero capacity selects the
// configured default, rounded down to whole elements but never below one
// element.
func (c *Core) CreateDataPipe(opts system.DataPipeOptions) (system.Handle, system.Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkOpen(); err != nil {
		return 0, 0, err
	}

	elem := int(opts.ElementSize)
	if elem == 0 {
		elem = 1
	}
	capacity := int(opts.Capacity)
	switch {
	case capacity == 0:
		capacity = int(c.opts.DefaultDataPipeCapacity)
		capacity -= capacity % elem
		if capacity < elem {
			capacity = elem
		}
	case capacity%elem != 0:
		return 0, 0, system.ResultInvalidArgument
	}

	pipe := &dataPipe{capacity: capacity, elemSize: elem}
	pipe.producer = &dataProducer{core: c, pipe: pipe}
	pipe.consumer = &dataConsumer{core: c, pipe: pipe}

	hp, err := c.insert(pipe.producer)
	if err != nil {
		return 0, 0, err
	}
	hc, err := c.insert(pipe.consumer)
	if err != nil {
		c.table.Remove(hp)
		return 0, 0, err
	}
	return hp, hc, nil
}

// WriteData implements system.Core. Only DataAllOrNone is accepted.
func (c *Core) WriteData(h system.Handle, data []byte, flags system.DataFlags) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	o, err := c.lookup(h, typeDataProducer)
	if err != nil {
		return 0, err
	}
	pipe := o.(*dataProducer).pipe

	if flags&^system.DataAllOrNone != 0 || len(data)%pipe.elemSize != 0 {
		return 0, system.ResultInvalidArgument
	}
	if pipe.consumerClosed {
		return 0, system.ResultFailedPrecondition
	}
	if len(data) == 0 {
		return 0, nil
	}

	free := pipe.free()
	if flags.Has(system.DataAllOrNone) && len(data) > free {
		return 0, system.ResultOutOfRange
	}
	if free == 0 {
		return 0, system.ResultShouldWait
	}
	n := min(len(data), free)
	n -= n % pipe.elemSize

	pipe.buf = append(pipe.buf, data[:n]...)
	c.touch(pipe.consumer)
	c.touch(pipe.producer)
	c.flush()
	return n, nil
}

// ReadData implements system.Core.
func (c *Core) ReadData(h system.Handle, buf []byte, flags system.DataFlags) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pipe, err := c.consumerPipe(h)
	if err != nil {
		return 0, err
	}
	if flags.Has(system.DataQuery) {
		if flags != system.DataQuery {
			return 0, system.ResultInvalidArgument
		}
		return len(pipe.buf), nil
	}
	if flags.Has(system.DataDiscard) {
		return c.consume(pipe, len(buf), nil, flags)
	}
	return c.consume(pipe, len(buf), buf, flags)
}

// DiscardData implements system.Core.
func (c *Core) DiscardData(h system.Handle, n int, flags system.DataFlags) (int, error) {
	if n < 0 || flags.Has(system.DataQuery) || flags.Has(system.DataPeek) {
		return 0, system.ResultInvalidArgument
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	pipe, err := c.consumerPipe(h)
	if err != nil {
		return 0, err
	}
	return c.consume(pipe, n, nil, flags|system.DataDiscard)
}

func (c *Core) consumerPipe(h system.Handle) (*dataPipe, error) {
	o, err := c.lookup(h, typeDataConsumer)
	if err != nil {
		return nil, err
	}
	return o.(*dataConsumer).pipe, nil
}

// consume takes up to want bytes from pipe, copying them into dst unless
// dst is nil. Caller holds c.mu.
func (c *Core) consume(pipe *dataPipe, want int, dst []byte, flags system.DataFlags) (int, error) {
	if flags.Has(system.DataDiscard|system.DataPeek) || want%pipe.elemSize != 0 {
		return 0, system.ResultInvalidArgument
	}
	if want == 0 {
		return 0, nil
	}

	avail := len(pipe.buf)
	if avail == 0 {
		if pipe.producerClosed {
			return 0, system.ResultFailedPrecondition
		}
		return 0, system.ResultShouldWait
	}
	if flags.Has(system.DataAllOrNone) && want > avail {
		return 0, system.ResultOutOfRange
	}
	n := min(want, avail)
	n -= n % pipe.elemSize

	if dst != nil {
		copy(dst, pipe.buf[:n])
	}
	if !flags.Has(system.DataPeek) {
		pipe.buf = append(pipe.buf[:0], pipe.buf[n:]...)
		c.touch(pipe.consumer)
		c.touch(pipe.producer)
		c.flush()
	}
	return n, nil
}
