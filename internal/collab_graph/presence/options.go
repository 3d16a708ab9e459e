package presence

import (
	"time"

	"go.uber.org/zap"
)

const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultRetention         = 5 * time.Minute
	DefaultThrottleInterval  = 50 * time.Millisecond
	DefaultSweepInterval     = time.Second
	DefaultPendingTTL        = 2 * time.Second

	// a collaborator silent for this many heartbeat intervals is inactive
	heartbeatTimeoutFactor = 3

	defaultBackoffInitial = 500 * time.Millisecond
	defaultBackoffMax     = 30 * time.Second
	sendTimeout           = 5 * time.Second
)

type options struct {
	logger      *zap.Logger
	localID     string
	displayName string
	color       string
	now         func() time.Time

	heartbeat  time.Duration
	retention  time.Duration
	throttle   time.Duration
	sweep      time.Duration
	pendingTTL time.Duration

	backoffInitial time.Duration
	backoffMax     time.Duration

	mirrorZoom bool
	viewport   *Viewport
}

func defaultOptions() options {
	return options{
		logger:         zap.NewNop(),
		now:            time.Now,
		heartbeat:      DefaultHeartbeatInterval,
		retention:      DefaultRetention,
		throttle:       DefaultThrottleInterval,
		sweep:          DefaultSweepInterval,
		pendingTTL:     DefaultPendingTTL,
		backoffInitial: defaultBackoffInitial,
		backoffMax:     defaultBackoffMax,
	}
}

// Option configures a Session
type Option func(*options)

func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithLocalID fixes the local collaborator id instead of generating one
func WithLocalID(id string) Option {
	return func(o *options) { o.localID = id }
}

func WithDisplayName(name string) Option {
	return func(o *options) { o.displayName = name }
}

// WithColor fixes the local color; collisions are then left unresolved
func WithColor(c string) Option {
	return func(o *options) { o.color = c }
}

// WithClock overrides the time source used for roster bookkeeping
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func WithHeartbeatInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.heartbeat = d
		}
	}
}

// WithRetention sets how long inactive collaborators stay in the roster
func WithRetention(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.retention = d
		}
	}
}

// WithThrottleInterval sets the minimum spacing of outbound intents per key.
// Zero disables throttling.
func WithThrottleInterval(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.throttle = d
		}
	}
}

func WithSweepInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.sweep = d
		}
	}
}

// WithPendingTTL sets how long messages from unknown senders wait for a join
func WithPendingTTL(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pendingTTL = d
		}
	}
}

// WithBackoff sets the reconnect schedule bounds
func WithBackoff(initial, max time.Duration) Option {
	return func(o *options) {
		if initial > 0 {
			o.backoffInitial = initial
		}
		if max >= initial && max > 0 {
			o.backoffMax = max
		}
	}
}

// WithMirrorRemoteZoom applies remote zoom changes to the local viewport
func WithMirrorRemoteZoom(on bool) Option {
	return func(o *options) { o.mirrorZoom = on }
}

// WithViewport shares a viewport with the session
func WithViewport(v *Viewport) Option {
	return func(o *options) {
		if v != nil {
			o.viewport = v
		}
	}
}
