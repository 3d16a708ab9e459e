package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisTransport carries session messages over Redis Pub/Sub. Each session
// maps to the channel collab:session:{id}; Redis echoes a subscriber's own
// publications back to it.
type RedisTransport struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisTransport creates a transport on an existing client
func NewRedisTransport(client *redis.Client, logger *zap.Logger) *RedisTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisTransport{client: client, logger: logger}
}

// Connect subscribes to the session channel and waits for the
// subscription to be confirmed before reporting EventOpen
func (t *RedisTransport) Connect(ctx context.Context, sessionID string) (Conn, error) {
	channel := ChannelName(sessionID)
	ps := t.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	c := &redisConn{
		client:  t.client,
		ps:      ps,
		channel: channel,
		events:  make(chan Event, eventBuffer),
		cancel:  cancel,
		logger:  t.logger.With(zap.String("channel", channel)),
	}
	c.events <- Event{Kind: EventOpen}
	go c.pump(pumpCtx)
	return c, nil
}

type redisConn struct {
	client  *redis.Client
	ps      *redis.PubSub
	channel string
	events  chan Event
	cancel  context.CancelFunc
	logger  *zap.Logger

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

func (c *redisConn) pump(ctx context.Context) {
	defer close(c.events)

	for {
		msg, err := c.ps.Receive(ctx)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, redis.ErrClosed) {
				c.logger.Warn("redis subscription lost", zap.Error(err))
				c.emit(ctx, Event{Kind: EventError, Err: err})
			}
			c.markClosed()
			_ = c.ps.Close()
			c.emitFinal(Event{Kind: EventClose})
			return
		}

		switch m := msg.(type) {
		case *redis.Message:
			if !c.emit(ctx, Event{Kind: EventMessage, Data: []byte(m.Payload)}) {
				c.emitFinal(Event{Kind: EventClose})
				return
			}
		case *redis.Subscription, *redis.Pong:
		default:
			c.logger.Debug("ignoring redis pubsub frame", zap.String("type", fmt.Sprintf("%T", msg)))
		}
	}
}

// emit blocks until the consumer takes the event or the conn is closed
func (c *redisConn) emit(ctx context.Context, ev Event) bool {
	select {
	case c.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *redisConn) emitFinal(ev Event) {
	select {
	case c.events <- ev:
	default:
	}
}

func (c *redisConn) markClosed() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *redisConn) Send(ctx context.Context, data []byte) error {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return ErrConnClosed
	}
	if err := c.client.Publish(ctx, c.channel, data).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", c.channel, err)
	}
	return nil
}

func (c *redisConn) Events() <-chan Event {
	return c.events
}

func (c *redisConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.markClosed()
		c.cancel()
		err = c.ps.Close()
	})
	return err
}
