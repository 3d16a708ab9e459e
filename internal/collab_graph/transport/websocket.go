package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 64 * 1024
)

// WebsocketTransport connects to the relay's per-session websocket endpoint
type WebsocketTransport struct {
	baseURL string
	dialer  *websocket.Dialer
	header  http.Header
	logger  *zap.Logger
}

// NewWebsocketTransport creates a transport for a relay base URL such as
// ws://localhost:8080
func NewWebsocketTransport(baseURL string, header http.Header, logger *zap.Logger) *WebsocketTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebsocketTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		header: header,
		logger: logger,
	}
}

// SessionURL returns the websocket URL of a session on the relay
func (t *WebsocketTransport) SessionURL(sessionID string) string {
	return fmt.Sprintf("%s/api/v1/sessions/%s/ws", t.baseURL, url.PathEscape(sessionID))
}

// Connect dials the relay and starts the read and ping pumps
func (t *WebsocketTransport) Connect(ctx context.Context, sessionID string) (Conn, error) {
	target := t.SessionURL(sessionID)
	ws, resp, err := t.dialer.DialContext(ctx, target, t.header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", target, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}

	c := &wsConn{
		ws:     ws,
		events: make(chan Event, eventBuffer),
		done:   make(chan struct{}),
		logger: t.logger.With(zap.String("url", target)),
	}
	c.events <- Event{Kind: EventOpen}
	go c.readPump()
	go c.pingPump()
	return c, nil
}

type wsConn struct {
	ws     *websocket.Conn
	events chan Event
	done   chan struct{}
	logger *zap.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func (c *wsConn) readPump() {
	defer close(c.events)

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					c.logger.Warn("websocket read error", zap.Error(err))
					c.emit(Event{Kind: EventError, Err: err})
				}
			}
			c.shutdown()
			c.emit(Event{Kind: EventClose})
			return
		}
		if kind != websocket.TextMessage {
			c.logger.Debug("ignoring non-text websocket frame", zap.Int("kind", kind))
			continue
		}
		select {
		case c.events <- Event{Kind: EventMessage, Data: data}:
		case <-c.done:
		}
	}
}

func (c *wsConn) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
	}
}

func (c *wsConn) pingPump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			err := c.ws.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				c.logger.Debug("websocket ping failed", zap.Error(err))
				return
			}
		}
	}
}

func (c *wsConn) Send(ctx context.Context, data []byte) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(deadline)
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

func (c *wsConn) Events() <-chan Event {
	return c.events
}

func (c *wsConn) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		_ = c.ws.Close()
	})
}

func (c *wsConn) Close() error {
	c.shutdown()
	return nil
}
