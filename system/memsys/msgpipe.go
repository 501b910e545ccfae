package memsys

import (
	"github.com/wippyai/mojo-wire/resource"
	"github.com/wippyai/mojo-wire/system"
)

type message struct {
	data    []byte
	objects []object
}

type msgEndpoint struct {
	core   *Core
	peer   *msgEndpoint
	queue  []message
	h      system.Handle
	closed bool
}

func (e *msgEndpoint) kind() resource.TypeID     { return typeMessagePipe }
func (e *msgEndpoint) handle() system.Handle     { return e.h }
func (e *msgEndpoint) setHandle(h system.Handle) { e.h = h }

func (e *msgEndpoint) peerOpen() bool {
	return e.peer != nil && !e.peer.closed
}

func (e *msgEndpoint) signals() system.SignalsState {
	var st system.SignalsState
	if len(e.queue) > 0 {
		st.Satisfied |= system.SignalReadable
		st.Satisfiable |= system.SignalReadable
	}
	if e.peerOpen() {
		st.Satisfied |= system.SignalWritable
		st.Satisfiable |= system.SignalReadable | system.SignalWritable
	} else {
		st.Satisfied |= system.SignalPeerClosed
	}
	st.Satisfiable |= system.SignalPeerClosed
	return st
}

// Drop closes the endpoint and destroys everything still queued on it.
func (e *msgEndpoint) Drop() {
	e.closed = true
	e.h = system.InvalidHandle
	queue := e.queue
	e.queue = nil
	for _, m := range queue {
		for _, o := range m.objects {
			o.Drop()
		}
	}
	if e.peer != nil {
		e.core.touch(e.peer)
	}
}

// CreateMessagePipe implements system.Core.
func (c *Core) CreateMessagePipe() (system.Handle, system.Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkOpen(); err != nil {
		return 0, 0, err
	}
	a := &msgEndpoint{core: c}
	b := &msgEndpoint{core: c, peer: a}
	a.peer = b

	ha, err := c.insert(a)
	if err != nil {
		return 0, 0, err
	}
	hb, err := c.insert(b)
	if err != nil {
		c.table.Remove(ha)
		return 0, 0, err
	}
	return ha, hb, nil
}

// WriteMessage implements system.Core.
func (c *Core) WriteMessage(h system.Handle, data []byte, handles []system.Handle) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	o, err := c.lookup(h, typeMessagePipe)
	if err != nil {
		return err
	}
	ep := o.(*msgEndpoint)

	if c.opts.MaxHandlesPerMessage > 0 && len(handles) > c.opts.MaxHandlesPerMessage {
		return system.ResultResourceExhausted
	}
	seen := make(map[system.Handle]struct{}, len(handles))
	for _, th := range handles {
		if th == h {
			return system.ResultInvalidArgument
		}
		if _, dup := seen[th]; dup {
			return system.ResultInvalidArgument
		}
		seen[th] = struct{}{}
		if _, ok := c.table.Get(th); !ok {
			return system.ResultInvalidArgument
		}
	}
	if !ep.peerOpen() {
		return system.ResultFailedPrecondition
	}
	if c.opts.MaxQueuedMessages > 0 && len(ep.peer.queue) >= c.opts.MaxQueuedMessages {
		return system.ResultResourceExhausted
	}

	m := message{data: append([]byte(nil), data...)}
	for _, th := range handles {
		v, _ := c.table.Detach(th)
		obj := v.(object)
		obj.setHandle(system.InvalidHandle)
		m.objects = append(m.objects, obj)
	}
	ep.peer.queue = append(ep.peer.queue, m)
	c.touch(ep.peer)
	c.flush()
	return nil
}

// ReadMessage implements system.Core.
func (c *Core) ReadMessage(h system.Handle) ([]byte, []system.Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	o, err := c.lookup(h, typeMessagePipe)
	if err != nil {
		return nil, nil, err
	}
	ep := o.(*msgEndpoint)

	if len(ep.queue) == 0 {
		if !ep.peerOpen() {
			return nil, nil, system.ResultFailedPrecondition
		}
		return nil, nil, system.ResultShouldWait
	}
	m := ep.queue[0]
	ep.queue[0] = message{}
	ep.queue = ep.queue[1:]

	var handles []system.Handle
	for i, obj := range m.objects {
		nh, err := c.insert(obj)
		if err != nil {
			for _, rest := range m.objects[i:] {
				rest.Drop()
			}
			for _, done := range handles {
				c.table.Remove(done)
			}
			c.flush()
			return nil, nil, err
		}
		handles = append(handles, nh)
	}
	c.touch(ep)
	c.flush()
	return m.data, handles, nil
}
