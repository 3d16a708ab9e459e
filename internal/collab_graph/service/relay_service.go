package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/GoSim-25-26J-441/go-collab-graph/internal/collab_graph/domain"
	"github.com/GoSim-25-26J-441/go-collab-graph/internal/collab_graph/protocol"
	"github.com/GoSim-25-26J-441/go-collab-graph/internal/collab_graph/repository"
	"github.com/GoSim-25-26J-441/go-collab-graph/internal/collab_graph/transport"
	"github.com/GoSim-25-26J-441/go-collab-graph/internal/observability"
)

// RelaySenderID is the sender id of roster snapshots produced by the relay
const RelaySenderID = "relay"

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Buffered frames per client before the relay starts dropping
	clientBuffer = 256

	storeTimeout = 2 * time.Second
)

// RelayConfig holds liveness settings for the relay
type RelayConfig struct {
	HeartbeatInterval time.Duration
	Retention         time.Duration
	SweepSchedule     string
}

func (c RelayConfig) withDefaults() RelayConfig {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.Retention <= 0 {
		c.Retention = 5 * time.Minute
	}
	if c.SweepSchedule == "" {
		c.SweepSchedule = "@every 30s"
	}
	return c
}

// RelayService fans collaborator websocket traffic out over a pub/sub
// transport and keeps the roster store current
type RelayService struct {
	repo      *repository.PresenceRepository
	transport transport.Transport
	metrics   *observability.Collector
	logger    *zap.Logger
	cfg       RelayConfig
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]int

	cron *cron.Cron
}

// NewRelayService creates a new RelayService
func NewRelayService(repo *repository.PresenceRepository, tr transport.Transport, metrics *observability.Collector, cfg RelayConfig, logger *zap.Logger) *RelayService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewCollector("collab")
	}
	return &RelayService{
		repo:      repo,
		transport: tr,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg.withDefaults(),
		now:       time.Now,
		sessions:  make(map[string]int),
	}
}

// Roster returns the stored roster of a session
func (s *RelayService) Roster(ctx context.Context, sessionID string) ([]domain.Collaborator, error) {
	return s.repo.List(ctx, sessionID)
}

// Connections returns the number of websocket clients attached to a session
func (s *RelayService) Connections(sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[sessionID]
}

// Serve relays one websocket client until it disconnects or ctx is
// cancelled. It blocks.
func (s *RelayService) Serve(ctx context.Context, sessionID string, ws *websocket.Conn) error {
	sub, err := s.transport.Connect(ctx, sessionID)
	if err != nil {
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "relay unavailable"),
			time.Now().Add(writeWait))
		_ = ws.Close()
		return fmt.Errorf("subscribe session %s: %w", sessionID, err)
	}

	c := &client{
		sessionID: sessionID,
		ws:        ws,
		sub:       sub,
		outbox:    make(chan []byte, clientBuffer),
		done:      make(chan struct{}),
		logger:    s.logger.With(zap.String("session", sessionID), zap.String("remote", ws.RemoteAddr().String())),
	}

	s.track(sessionID, 1)
	defer s.track(sessionID, -1)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writePump(ctx)
	}()

	c.readPump(func(data []byte) { s.handleInbound(ctx, c, data) })

	close(c.done)
	<-writerDone
	_ = ws.Close()

	if c.senderID != "" && !c.left {
		s.depart(c)
	}
	_ = sub.Close()
	c.logger.Debug("client disconnected", zap.String("collaborator", c.senderID))
	return nil
}

func (s *RelayService) handleInbound(ctx context.Context, c *client, data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		s.metrics.DroppedMessages.WithLabelValues("malformed").Inc()
		c.logger.Debug("dropping malformed message", zap.Error(err))
		return
	}
	if c.senderID == "" {
		c.senderID = msg.SenderID
	} else if msg.SenderID != c.senderID {
		s.metrics.DroppedMessages.WithLabelValues("sender_mismatch").Inc()
		c.logger.Warn("dropping message from a second sender id",
			zap.String("collaborator", c.senderID), zap.String("sender", msg.SenderID))
		return
	}
	if msg.IsBulkRoster() {
		s.metrics.DroppedMessages.WithLabelValues("client_snapshot").Inc()
		return
	}
	if msg.Type == domain.MessageLeave && msg.ID != msg.SenderID {
		s.metrics.DroppedMessages.WithLabelValues("sender_mismatch").Inc()
		return
	}

	if err := s.record(ctx, c.sessionID, msg); err != nil && !errors.Is(err, domain.ErrCollaboratorNotFound) {
		c.logger.Warn("roster store update failed", zap.String("type", string(msg.Type)), zap.Error(err))
	}
	if msg.Type == domain.MessageLeave {
		c.left = true
	}
	if msg.Type == domain.MessageJoin && msg.RequestRoster && !msg.Reply {
		s.sendSnapshot(ctx, c)
	}

	if err := c.sub.Send(ctx, data); err != nil {
		s.metrics.DroppedMessages.WithLabelValues("publish").Inc()
		c.logger.Warn("publish failed", zap.Error(err))
		return
	}
	s.metrics.RelayedMessages.WithLabelValues(string(msg.Type)).Inc()
}

// record mirrors a protocol message into the roster store
func (s *RelayService) record(ctx context.Context, sessionID string, msg domain.Message) error {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	now := s.now()

	switch msg.Type {
	case domain.MessageJoin:
		return s.repo.Upsert(ctx, sessionID, *msg.Presence, now)
	case domain.MessageLeave:
		return s.repo.MarkLeft(ctx, sessionID, msg.ID, now)
	case domain.MessageCursorMove:
		return s.repo.SetCursor(ctx, sessionID, msg.SenderID, *msg.Cursor, now)
	case domain.MessageZoomChange:
		return s.repo.SetZoom(ctx, sessionID, msg.SenderID, msg.Level, now)
	case domain.MessageNodeMove, domain.MessageHeartbeat:
		return s.repo.Touch(ctx, sessionID, msg.SenderID, now)
	}
	return nil
}

// sendSnapshot answers a roster request with the stored roster, to the
// requesting client only
func (s *RelayService) sendSnapshot(ctx context.Context, c *client) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	users, err := s.repo.List(ctx, c.sessionID)
	if err != nil {
		c.logger.Warn("roster snapshot failed", zap.Error(err))
		return
	}
	data, err := protocol.Encode(domain.NewRosterSnapshot(RelaySenderID, users, s.now()))
	if err != nil {
		c.logger.Warn("roster snapshot encode failed", zap.Error(err))
		return
	}
	if !c.enqueue(data) {
		s.metrics.DroppedMessages.WithLabelValues("client_backpressure").Inc()
	}
}

// depart publishes a leave for a client that disconnected without one. It
// runs before the client's subscription is closed and publishes through it.
func (s *RelayService) depart(c *client) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	now := s.now()
	if err := s.repo.MarkLeft(ctx, c.sessionID, c.senderID, now); err != nil && !errors.Is(err, domain.ErrCollaboratorNotFound) {
		c.logger.Warn("roster store update failed", zap.Error(err))
	}

	data, err := protocol.Encode(domain.NewLeave(c.senderID, now))
	if err != nil {
		return
	}
	if err := c.sub.Send(ctx, data); err != nil {
		c.logger.Warn("could not announce departure", zap.Error(err))
		return
	}
	s.metrics.RelayedMessages.WithLabelValues(string(domain.MessageLeave)).Inc()
}

func (s *RelayService) track(sessionID string, delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[sessionID] += delta
	if s.sessions[sessionID] <= 0 {
		delete(s.sessions, sessionID)
	}
	s.metrics.Connections.Add(float64(delta))
	s.metrics.Sessions.Set(float64(len(s.sessions)))
}

// Sweep applies liveness timeouts and retention to every stored roster
func (s *RelayService) Sweep(ctx context.Context) (repository.SweepResult, error) {
	timeout := 3 * s.cfg.HeartbeatInterval
	res, err := s.repo.Sweep(ctx, s.now(), timeout, s.cfg.Retention)
	if err != nil {
		return res, err
	}
	s.metrics.SweptEntries.Add(float64(res.Deactivated + res.Purged))
	if res.Deactivated+res.Purged > 0 {
		s.logger.Info("roster sweep",
			zap.Int("sessions", res.Sessions),
			zap.Int("deactivated", res.Deactivated),
			zap.Int("purged", res.Purged))
	}
	return res, nil
}

// StartSweeper schedules Sweep on the configured cron schedule
func (s *RelayService) StartSweeper() error {
	c := cron.New()
	_, err := c.AddFunc(s.cfg.SweepSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := s.Sweep(ctx); err != nil {
			s.logger.Error("roster sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule roster sweep: %w", err)
	}

	s.cron = c
	c.Start()
	s.logger.Info("roster sweeper started", zap.String("schedule", s.cfg.SweepSchedule))
	return nil
}

// Stop halts the sweeper and waits for a running sweep to finish
func (s *RelayService) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}
