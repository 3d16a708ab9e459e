// Package transport carries encoded presence messages between the
// collaborators of one session. Delivery is FIFO per sender; there is no
// ordering across senders and no replay after a reconnect.
package transport

import (
	"context"
	"errors"
)

// EventKind classifies connection events
type EventKind string

const (
	EventOpen    EventKind = "open"
	EventMessage EventKind = "message"
	EventClose   EventKind = "close"
	EventError   EventKind = "error"
)

// Event is delivered on Conn.Events. Data is set for EventMessage, Err for
// EventError.
type Event struct {
	Kind EventKind
	Data []byte
	Err  error
}

// Conn is one live subscription to a session channel. Events emits
// EventOpen once the connection is usable and is closed after the final
// EventClose.
type Conn interface {
	Send(ctx context.Context, data []byte) error
	Events() <-chan Event
	Close() error
}

// Transport opens connections scoped to a session id
type Transport interface {
	Connect(ctx context.Context, sessionID string) (Conn, error)
}

// ErrConnClosed is returned when sending on a closed connection
var ErrConnClosed = errors.New("transport connection closed")

const eventBuffer = 256

// ChannelName is the pub/sub channel a session's messages travel on
func ChannelName(sessionID string) string {
	return "collab:session:" + sessionID
}
