package transport

import (
	"context"
	"errors"
	"sync"
)

// MemoryBus is an in-process pub/sub broker. Every message sent on a
// session is delivered to all connections of that session, the sender
// included, like a Redis channel subscriber.
type MemoryBus struct {
	mu       sync.Mutex
	sessions map[string]map[*memoryConn]struct{}
	failNext int
	dropped  int
}

// NewMemoryBus creates an empty bus
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{sessions: make(map[string]map[*memoryConn]struct{})}
}

// ErrBusUnavailable is returned by Connect while failures are injected
var ErrBusUnavailable = errors.New("memory bus unavailable")

// FailConnects makes the next n Connect calls fail
func (b *MemoryBus) FailConnects(n int) {
	b.mu.Lock()
	b.failNext = n
	b.mu.Unlock()
}

// Connect subscribes a new connection to the session
func (b *MemoryBus) Connect(ctx context.Context, sessionID string) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failNext > 0 {
		b.failNext--
		return nil, ErrBusUnavailable
	}

	c := &memoryConn{bus: b, session: sessionID, events: make(chan Event, eventBuffer)}
	if b.sessions[sessionID] == nil {
		b.sessions[sessionID] = make(map[*memoryConn]struct{})
	}
	b.sessions[sessionID][c] = struct{}{}
	c.events <- Event{Kind: EventOpen}
	return c, nil
}

// Disconnect drops every connection of a session as if the broker went away
func (b *MemoryBus) Disconnect(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for c := range b.sessions[sessionID] {
		c.shutdownLocked(Event{Kind: EventError, Err: ErrConnClosed})
	}
}

// Connections returns the number of live connections in a session
func (b *MemoryBus) Connections(sessionID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions[sessionID])
}

// Dropped returns how many deliveries were discarded for full buffers
func (b *MemoryBus) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

type memoryConn struct {
	bus     *MemoryBus
	session string
	events  chan Event
	closed  bool
}

func (c *memoryConn) Send(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b := c.bus
	b.mu.Lock()
	defer b.mu.Unlock()

	if c.closed {
		return ErrConnClosed
	}
	for peer := range b.sessions[c.session] {
		msg := make([]byte, len(data))
		copy(msg, data)
		select {
		case peer.events <- Event{Kind: EventMessage, Data: msg}:
		default:
			b.dropped++
		}
	}
	return nil
}

func (c *memoryConn) Events() <-chan Event {
	return c.events
}

func (c *memoryConn) Close() error {
	c.bus.mu.Lock()
	defer c.bus.mu.Unlock()
	c.shutdownLocked(Event{Kind: EventClose})
	return nil
}

// shutdownLocked must be called with the bus mutex held
func (c *memoryConn) shutdownLocked(final Event) {
	if c.closed {
		return
	}
	c.closed = true
	delete(c.bus.sessions[c.session], c)
	if len(c.bus.sessions[c.session]) == 0 {
		delete(c.bus.sessions, c.session)
	}
	select {
	case c.events <- final:
	default:
	}
	if final.Kind != EventClose {
		select {
		case c.events <- Event{Kind: EventClose}:
		default:
		}
	}
	close(c.events)
}
