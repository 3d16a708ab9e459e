// Package presence keeps a collaborator roster and shared node positions in
// loose sync across the viewers of one session.
//
// A Session owns one transport connection at a time. Run is its event loop:
// it connects, announces the local collaborator, applies inbound messages,
// sends heartbeats, sweeps stale collaborators and reconnects with backoff.
// Outbound intents from the renderer pass through a per-key throttle.
package presence

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/GoSim-25-26J-441/go-collab-graph/internal/collab_graph/domain"
	"github.com/GoSim-25-26J-441/go-collab-graph/internal/collab_graph/graph"
	"github.com/GoSim-25-26J-441/go-collab-graph/internal/collab_graph/protocol"
	"github.com/GoSim-25-26J-441/go-collab-graph/internal/collab_graph/transport"
)

const (
	intentCursor     = "cursor"
	intentZoom       = "zoom"
	intentNodePrefix = "node:"

	subscriberBuffer = 16
)

var errAlreadyRunning = errors.New("presence session already running")

// Update notifies subscribers that session state changed
type Update struct {
	Status domain.ConnectionStatus
	Roster bool // collaborator entries changed
	Graph  bool // a remote move changed node positions
}

// Session is the local participant of a shared graph session
type Session struct {
	transport transport.Transport
	sessionID string
	graph     *graph.Graph
	viewport  *Viewport
	opts      options
	logger    *zap.Logger
	throttle  *throttle
	rng       *rand.Rand

	mu           sync.RWMutex
	local        domain.Collaborator
	roster       *roster
	status       domain.ConnectionStatus
	rosterSynced bool

	connMu  sync.RWMutex
	conn    transport.Conn
	closing bool

	subMu      sync.Mutex
	subs       []chan Update
	subsClosed bool

	running   atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
}

// NewSession creates a session in the Connecting state. Nothing is sent
// until Run is called.
func NewSession(tr transport.Transport, sessionID string, g *graph.Graph, opts ...Option) *Session {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if g == nil {
		g, _ = graph.New(nil, nil)
	}
	if o.viewport == nil {
		o.viewport = NewViewport()
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	id := o.localID
	if id == "" {
		id = uuid.NewString()
	}
	name := o.displayName
	if name == "" {
		name = "guest-" + id[:min(8, len(id))]
	}
	color := o.color
	if color == "" {
		color = pickColor(rng, nil)
	}

	s := &Session{
		transport: tr,
		sessionID: sessionID,
		graph:     g,
		viewport:  o.viewport,
		opts:      o,
		rng:       rng,
		roster:    newRoster(),
		status:    domain.StatusConnecting,
		done:      make(chan struct{}),
		local: domain.Collaborator{
			ID:          id,
			DisplayName: name,
			Color:       color,
			Zoom:        o.viewport.Zoom(),
			Active:      true,
			LastActive:  o.now(),
		},
	}
	s.logger = o.logger.With(zap.String("session", sessionID), zap.String("collaborator", id))
	s.throttle = newThrottle(o.throttle, s.sendThrottled)
	return s
}

// Run drives the session until ctx is cancelled or Close is called. The
// session leaves and closes itself on return.
func (s *Session) Run(ctx context.Context) error {
	if s.isClosed() {
		return domain.ErrSessionClosed
	}
	if !s.running.CompareAndSwap(false, true) {
		return errAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.done:
			cancel()
		case <-ctx.Done():
		}
	}()
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), sendTimeout)
		defer closeCancel()
		_ = s.Close(closeCtx)
	}()

	heartbeat := time.NewTicker(s.opts.heartbeat)
	defer heartbeat.Stop()
	sweep := time.NewTicker(s.opts.sweep)
	defer sweep.Stop()
	bo := s.newBackOff()

	for {
		conn, err := s.connect(ctx, bo)
		if err != nil {
			return s.exitErr(err)
		}
		s.serve(ctx, conn, bo, heartbeat.C, sweep.C)
		if ctx.Err() != nil || s.isClosed() {
			return s.exitErr(ctx.Err())
		}

		s.dropConn(conn)
		s.setStatus(domain.StatusReconnecting)
		wait := bo.NextBackOff()
		s.logger.Info("connection lost, reconnecting", zap.Duration("retry_in", wait))
		if !sleepCtx(ctx, wait) {
			return s.exitErr(ctx.Err())
		}
	}
}

func (s *Session) exitErr(err error) error {
	if s.isClosed() {
		return nil
	}
	return err
}

func (s *Session) newBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.opts.backoffInitial
	bo.MaxInterval = s.opts.backoffMax
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}

func (s *Session) connect(ctx context.Context, bo backoff.BackOff) (transport.Conn, error) {
	for {
		conn, err := s.transport.Connect(ctx, s.sessionID)
		if err == nil {
			if err := s.setConn(conn); err != nil {
				return nil, err
			}
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			return nil, fmt.Errorf("connect session %s: %w", s.sessionID, err)
		}
		s.logger.Warn("connect failed", zap.Error(err), zap.Duration("retry_in", wait))
		if !sleepCtx(ctx, wait) {
			return nil, ctx.Err()
		}
	}
}

func (s *Session) serve(ctx context.Context, conn transport.Conn, bo backoff.BackOff, heartbeat, sweep <-chan time.Time) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-conn.Events():
			if !ok {
				return
			}
			switch ev.Kind {
			case transport.EventOpen:
				bo.Reset()
				s.onOpen()
			case transport.EventMessage:
				s.handleRaw(ev.Data)
			case transport.EventError:
				s.logger.Warn("transport error", zap.Error(ev.Err))
			case transport.EventClose:
				return
			}
		case <-heartbeat:
			s.sendHeartbeat()
		case <-sweep:
			s.SweepLiveness(s.opts.now())
		}
	}
}

func (s *Session) onOpen() {
	now := s.opts.now()
	s.mu.Lock()
	s.rosterSynced = false
	s.local.LastActive = now
	join := domain.NewJoin(s.local, true, now)
	s.mu.Unlock()

	s.setStatus(domain.StatusOpen)
	s.sendNow(join)
}

func (s *Session) sendHeartbeat() {
	now := s.opts.now()
	s.mu.Lock()
	s.local.LastActive = now
	id := s.local.ID
	s.mu.Unlock()
	s.sendNow(domain.NewHeartbeat(id, now))
}

func (s *Session) handleRaw(data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		s.logger.Warn("dropping malformed message", zap.Error(err))
		return
	}
	s.HandleMessage(msg)
}

// HandleMessage applies one decoded inbound message
func (s *Session) HandleMessage(msg domain.Message) {
	if err := protocol.Validate(&msg); err != nil {
		s.logger.Warn("dropping invalid message", zap.Error(err))
		return
	}
	now := s.opts.now()
	var (
		update Update
		out    *domain.Message
	)

	s.mu.Lock()
	if msg.SenderID == s.local.ID {
		s.mu.Unlock()
		return
	}
	switch msg.Type {
	case domain.MessageJoin:
		update.Roster, out = s.applyJoinLocked(msg, now)
	case domain.MessageLeave:
		if msg.ID != s.local.ID {
			update.Roster = s.roster.markLeft(msg.ID, now)
		}
	case domain.MessageNodeMove:
		update.Roster = s.roster.touch(msg.SenderID, now)
		update.Graph = s.graph.SetNodePosition(msg.NodeID, *msg.Position)
		if !update.Graph {
			s.logger.Debug("node move for unknown node", zap.String("node", msg.NodeID), zap.String("sender", msg.SenderID))
		}
	case domain.MessageCursorMove, domain.MessageZoomChange, domain.MessageHeartbeat:
		if s.applyPresenceLocked(msg, now) {
			update.Roster = true
		} else {
			s.roster.buffer(msg, now)
		}
	}
	s.mu.Unlock()

	if out != nil {
		s.sendNow(*out)
	}
	if update.Roster || update.Graph {
		s.notify(update)
	}
}

// applyJoinLocked returns whether the roster changed and an optional
// message to send in response
func (s *Session) applyJoinLocked(msg domain.Message, now time.Time) (bool, *domain.Message) {
	if msg.IsBulkRoster() {
		users := make([]domain.Collaborator, 0, len(msg.Users))
		for _, u := range msg.Users {
			if u.ID != s.local.ID {
				users = append(users, u)
			}
		}
		if !s.rosterSynced {
			s.roster.replace(users, now)
			s.rosterSynced = true
		} else {
			for _, u := range users {
				s.roster.mergeSnapshot(u, now)
			}
		}
		for _, u := range users {
			s.replayLocked(u.ID, now)
		}
		if s.resolveColorLocked() {
			m := domain.NewJoin(s.local, false, now)
			return true, &m
		}
		return true, nil
	}

	if msg.Presence == nil {
		return false, nil
	}
	s.roster.upsert(*msg.Presence, now)
	s.replayLocked(msg.Presence.ID, now)
	recolored := s.resolveColorLocked()

	switch {
	case msg.RequestRoster && !msg.Reply:
		m := domain.NewJoin(s.local, false, now)
		m.Reply = true
		return true, &m
	case recolored:
		m := domain.NewJoin(s.local, false, now)
		return true, &m
	}
	return true, nil
}

// applyPresenceLocked applies a cursor, zoom or heartbeat message from a
// known sender and reports false when the sender is unknown
func (s *Session) applyPresenceLocked(msg domain.Message, now time.Time) bool {
	switch msg.Type {
	case domain.MessageCursorMove:
		return s.roster.setCursor(msg.SenderID, *msg.Cursor, now)
	case domain.MessageZoomChange:
		if !s.roster.setZoom(msg.SenderID, msg.Level, now) {
			return false
		}
		if s.opts.mirrorZoom {
			s.local.Zoom = s.viewport.Set(msg.Level)
		}
		return true
	case domain.MessageHeartbeat:
		return s.roster.touch(msg.SenderID, now)
	}
	return false
}

func (s *Session) replayLocked(id string, now time.Time) {
	pending := s.roster.takePending(id)
	for _, msg := range pending {
		s.applyPresenceLocked(msg, now)
	}
	if len(pending) > 0 {
		s.logger.Debug("replayed buffered messages", zap.String("sender", id), zap.Int("count", len(pending)))
	}
}

// resolveColorLocked picks a new local color when an active collaborator
// with a lower id already holds it
func (s *Session) resolveColorLocked() bool {
	if s.opts.color != "" {
		return false
	}
	for _, c := range s.roster.entries {
		if c.Active && c.Color == s.local.Color && c.ID < s.local.ID {
			used := s.roster.colors()
			next := pickColor(s.rng, used)
			if used[next] {
				return false
			}
			s.logger.Info("color taken, switching", zap.String("from", s.local.Color), zap.String("to", next))
			s.local.Color = next
			return true
		}
	}
	return false
}

// SweepLiveness marks silent collaborators inactive, purges expired ones
// and drops buffered messages whose sender never joined
func (s *Session) SweepLiveness(now time.Time) {
	timeout := heartbeatTimeoutFactor * s.opts.heartbeat

	s.mu.Lock()
	changed := s.roster.sweep(now, timeout, s.opts.retention)
	dropped := s.roster.expirePending(now, s.opts.pendingTTL)
	s.mu.Unlock()

	if dropped > 0 {
		s.logger.Debug("dropped messages from unknown senders", zap.Int("count", dropped))
	}
	if changed {
		s.notify(Update{Roster: true})
	}
}

// ReportCursorMove broadcasts the local cursor position
func (s *Session) ReportCursorMove(p domain.Point) error {
	if !p.Finite() {
		return domain.ErrInvalidPosition
	}
	if s.isClosed() {
		return domain.ErrSessionClosed
	}
	now := s.opts.now()
	s.mu.Lock()
	cur := p
	s.local.Cursor = &cur
	s.local.LastActive = now
	id := s.local.ID
	s.mu.Unlock()

	s.throttle.submit(intentCursor, domain.NewCursorMove(id, p, now))
	return nil
}

// ReportNodeMove pins a node locally and broadcasts the move
func (s *Session) ReportNodeMove(nodeID string, p domain.Point) error {
	if !p.Finite() {
		return domain.ErrInvalidPosition
	}
	if s.isClosed() {
		return domain.ErrSessionClosed
	}
	if !s.graph.SetNodePosition(nodeID, p) {
		return fmt.Errorf("move %q: %w", nodeID, domain.ErrNodeNotFound)
	}
	now := s.opts.now()
	s.mu.RLock()
	id := s.local.ID
	s.mu.RUnlock()

	s.notify(Update{Graph: true})
	s.throttle.submit(intentNodePrefix+nodeID, domain.NewNodeMove(id, nodeID, p, now))
	return nil
}

// ReportZoomChange records the local zoom level and broadcasts it. The
// level is clamped to the viewport bounds.
func (s *Session) ReportZoomChange(level float64) error {
	if !(level > 0) || math.IsInf(level, 0) {
		return domain.ErrInvalidZoom
	}
	if s.isClosed() {
		return domain.ErrSessionClosed
	}
	level = s.viewport.Set(level)
	now := s.opts.now()
	s.mu.Lock()
	s.local.Zoom = level
	s.local.LastActive = now
	id := s.local.ID
	s.mu.Unlock()

	s.throttle.submit(intentZoom, domain.NewZoomChange(id, level, now))
	return nil
}

func (s *Session) sendThrottled(msg domain.Message) {
	s.sendNow(msg)
}

func (s *Session) sendNow(msg domain.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := s.send(ctx, msg); err != nil {
		s.logger.Debug("send failed", zap.String("type", string(msg.Type)), zap.Error(err))
	}
}

func (s *Session) send(ctx context.Context, msg domain.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	conn := s.currentConn()
	if conn == nil {
		return domain.ErrNotConnected
	}
	return conn.Send(ctx, data)
}

func (s *Session) currentConn() transport.Conn {
	s.connMu.RLock()
	defer s.connMu.RUnlock()
	return s.conn
}

func (s *Session) setConn(conn transport.Conn) error {
	s.connMu.Lock()
	if s.closing {
		s.connMu.Unlock()
		_ = conn.Close()
		return domain.ErrSessionClosed
	}
	s.conn = conn
	s.connMu.Unlock()
	return nil
}

func (s *Session) dropConn(conn transport.Conn) {
	s.connMu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.connMu.Unlock()
	_ = conn.Close()
}

func (s *Session) setStatus(st domain.ConnectionStatus) {
	s.mu.Lock()
	if s.status == st || s.status == domain.StatusClosed {
		s.mu.Unlock()
		return
	}
	s.status = st
	s.mu.Unlock()

	s.logger.Info("session status changed", zap.String("status", string(st)))
	s.notify(Update{Status: st})
}

// Close announces the departure, stops pending intents, closes the
// transport and moves the session to Closed. Sends are best-effort.
func (s *Session) Close(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		s.throttle.stop()

		s.connMu.Lock()
		conn := s.conn
		s.conn = nil
		s.closing = true
		s.connMu.Unlock()

		if conn != nil {
			s.mu.RLock()
			leave := domain.NewLeave(s.local.ID, s.opts.now())
			s.mu.RUnlock()
			if data, encErr := protocol.Encode(leave); encErr == nil {
				if sendErr := conn.Send(ctx, data); sendErr != nil {
					s.logger.Debug("leave not delivered", zap.Error(sendErr))
				}
			}
			err = conn.Close()
		}

		close(s.done)
		s.setStatus(domain.StatusClosed)
		s.closeSubscribers()
	})
	return err
}

func (s *Session) isClosed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Subscribe returns a channel of state change notifications. Updates are
// dropped when the subscriber falls behind; the channel is closed with the
// session.
func (s *Session) Subscribe() <-chan Update {
	ch := make(chan Update, subscriberBuffer)
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if s.subsClosed {
		close(ch)
		return ch
	}
	s.subs = append(s.subs, ch)
	return ch
}

func (s *Session) notify(u Update) {
	if u.Status == "" {
		u.Status = s.Status()
	}
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- u:
		default:
		}
	}
}

func (s *Session) closeSubscribers() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.subsClosed = true
	for _, ch := range s.subs {
		close(ch)
	}
	s.subs = nil
}

// Roster returns copies of the remote collaborators sorted by id
func (s *Session) Roster() []domain.Collaborator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roster.list()
}

// Collaborator returns one remote collaborator
func (s *Session) Collaborator(id string) (domain.Collaborator, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roster.get(id)
}

func (s *Session) Status() domain.ConnectionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Session) LocalUser() domain.Collaborator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.local.Clone()
}

func (s *Session) ID() string { return s.sessionID }

func (s *Session) Graph() *graph.Graph { return s.graph }

func (s *Session) Viewport() *Viewport { return s.viewport }

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
