package service

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GoSim-25-26J-441/go-collab-graph/internal/collab_graph/protocol"
	"github.com/GoSim-25-26J-441/go-collab-graph/internal/collab_graph/transport"
)

// client is one websocket connection attached to a session. Only writePump
// writes to the socket.
type client struct {
	sessionID string
	ws        *websocket.Conn
	sub       transport.Conn
	outbox    chan []byte
	done      chan struct{}
	logger    *zap.Logger

	// set by the read loop only
	senderID string
	left     bool
}

func (c *client) enqueue(data []byte) bool {
	select {
	case c.outbox <- data:
		return true
	default:
		return false
	}
}

func (c *client) readPump(handle func([]byte)) {
	c.ws.SetReadLimit(protocol.MaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		handle(data)
	}
}

// writePump ends when the client goes away, the subscription closes or ctx
// is cancelled. On cancellation the peer gets a going-away close frame.
func (c *client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	events := c.sub.Events()
	for {
		select {
		case <-c.done:
			_ = c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-ctx.Done():
			_ = c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			c.abort()
			return
		case data := <-c.outbox:
			if err := c.write(websocket.TextMessage, data); err != nil {
				c.abort()
				return
			}
		case ev, ok := <-events:
			if !ok || ev.Kind == transport.EventClose {
				// subscription gone; closing the socket ends readPump
				c.abort()
				return
			}
			if ev.Kind != transport.EventMessage {
				continue
			}
			if err := c.write(websocket.TextMessage, ev.Data); err != nil {
				c.abort()
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.abort()
				return
			}
		}
	}
}

func (c *client) write(kind int, data []byte) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(kind, data)
}

func (c *client) abort() {
	_ = c.ws.Close()
}
