package broadcast

import (
	"context"
	"errors"
	"sync"
)

var ErrClosed = errors.New("broadcast channel closed")

// MemoryHub connects in-process channels by name, like BroadcastChannel
// instances of one origin. Payloads are cloned through JSON for every
// receiver so no two instances share order slices.
type MemoryHub struct {
	mu    sync.RWMutex
	peers map[string]map[*MemoryChannel]struct{}
}

func NewMemoryHub() *MemoryHub {
	return &MemoryHub{peers: make(map[string]map[*MemoryChannel]struct{})}
}

// Open joins the channel called name.
func (h *MemoryHub) Open(name string) *MemoryChannel {
	c := &MemoryChannel{hub: h, name: name, handlers: make(map[*memorySubscription]Handler)}

	h.mu.Lock()
	if h.peers[name] == nil {
		h.peers[name] = make(map[*MemoryChannel]struct{})
	}
	h.peers[name][c] = struct{}{}
	h.mu.Unlock()

	return c
}

func (h *MemoryHub) leave(c *MemoryChannel) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.peers[c.name], c)
	if len(h.peers[c.name]) == 0 {
		delete(h.peers, c.name)
	}
}

func (h *MemoryHub) others(c *MemoryChannel) []*MemoryChannel {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*MemoryChannel, 0, len(h.peers[c.name]))
	for peer := range h.peers[c.name] {
		if peer != c {
			out = append(out, peer)
		}
	}
	return out
}

type MemoryChannel struct {
	hub  *MemoryHub
	name string

	mu       sync.RWMutex
	closed   bool
	handlers map[*memorySubscription]Handler
}

type memorySubscription struct {
	channel *MemoryChannel
	once    sync.Once
}

func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		s.channel.mu.Lock()
		delete(s.channel.handlers, s)
		s.channel.mu.Unlock()
	})
	return nil
}

func (c *MemoryChannel) Publish(_ context.Context, msg Message) error {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	data, err := encode(msg)
	if err != nil {
		return err
	}
	for _, peer := range c.hub.others(c) {
		peer.deliver(data)
	}
	return nil
}

func (c *MemoryChannel) deliver(data []byte) {
	c.mu.RLock()
	handlers := make([]Handler, 0, len(c.handlers))
	for _, h := range c.handlers {
		handlers = append(handlers, h)
	}
	c.mu.RUnlock()

	for _, h := range handlers {
		msg, err := decode(data)
		if err != nil {
			continue
		}
		h(msg)
	}
}

func (c *MemoryChannel) Subscribe(_ context.Context, h Handler) (Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	sub := &memorySubscription{channel: c}
	c.handlers[sub] = h
	return sub, nil
}

// Close leaves the hub and drops every subscription.
func (c *MemoryChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.handlers = make(map[*memorySubscription]Handler)
	c.mu.Unlock()

	c.hub.leave(c)
	return nil
}
