package presence

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoSim-25-26J-441/go-collab-graph/internal/collab_graph/domain"
	"github.com/GoSim-25-26J-441/go-collab-graph/internal/collab_graph/graph"
	"github.com/GoSim-25-26J-441/go-collab-graph/internal/collab_graph/protocol"
	"github.com/GoSim-25-26J-441/go-collab-graph/internal/collab_graph/transport"
)

const (
	testSession = "board"
	waitFor     = 2 * time.Second
	tick        = 5 * time.Millisecond
)

func testGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g, err := graph.New(
		[]domain.GraphNode{{ID: "a"}, {ID: "b"}, {ID: "c"}},
		[]domain.GraphLink{{Source: "a", Target: "b"}},
	)
	require.NoError(t, err)
	return g
}

func newTestSession(t *testing.T, tr transport.Transport, id string, opts ...Option) *Session {
	t.Helper()
	base := []Option{
		WithLocalID(id),
		WithDisplayName(id),
		WithThrottleInterval(0),
		WithBackoff(5*time.Millisecond, 20*time.Millisecond),
	}
	return NewSession(tr, testSession, testGraph(t), append(base, opts...)...)
}

func runSession(t *testing.T, s *Session) {
	t.Helper()
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(context.Background()) }()
	t.Cleanup(func() {
		_ = s.Close(context.Background())
		select {
		case err := <-errCh:
			assert.NoError(t, err)
		case <-time.After(waitFor):
			t.Error("session did not stop")
		}
	})
	require.Eventually(t, func() bool { return s.Status() == domain.StatusOpen }, waitFor, tick)
}

func startSession(t *testing.T, tr transport.Transport, id string, opts ...Option) *Session {
	t.Helper()
	s := newTestSession(t, tr, id, opts...)
	runSession(t, s)
	return s
}

// peer is a raw protocol participant used to inject and observe messages
type peer struct {
	t    *testing.T
	conn transport.Conn
	msgs chan domain.Message
}

func connectPeer(t *testing.T, bus *transport.MemoryBus) *peer {
	t.Helper()
	conn, err := bus.Connect(context.Background(), testSession)
	require.NoError(t, err)
	p := &peer{t: t, conn: conn, msgs: make(chan domain.Message, 1024)}
	go func() {
		for ev := range conn.Events() {
			if ev.Kind != transport.EventMessage {
				continue
			}
			if m, err := protocol.Decode(ev.Data); err == nil {
				p.msgs <- m
			}
		}
	}()
	t.Cleanup(func() { _ = conn.Close() })
	return p
}

func (p *peer) send(m domain.Message) {
	p.t.Helper()
	data, err := protocol.Encode(m)
	require.NoError(p.t, err)
	require.NoError(p.t, p.conn.Send(context.Background(), data))
}

func (p *peer) sendRaw(data string) {
	p.t.Helper()
	require.NoError(p.t, p.conn.Send(context.Background(), []byte(data)))
}

func (p *peer) expect(match func(domain.Message) bool) domain.Message {
	p.t.Helper()
	deadline := time.After(waitFor)
	for {
		select {
		case m := <-p.msgs:
			if match(m) {
				return m
			}
		case <-deadline:
			p.t.Fatal("expected message never arrived")
			return domain.Message{}
		}
	}
}

func collaborator(id string) domain.Collaborator {
	return domain.Collaborator{ID: id, DisplayName: id, Color: "#123456"}
}

func hasActive(s *Session, id string) bool {
	c, ok := s.Collaborator(id)
	return ok && c.Active
}

func TestSession_JoinHandshake(t *testing.T) {
	bus := transport.NewMemoryBus()
	alice := startSession(t, bus, "alice")
	bob := startSession(t, bus, "bob")

	require.Eventually(t, func() bool { return hasActive(alice, "bob") && hasActive(bob, "alice") }, waitFor, tick)

	roster := alice.Roster()
	require.Len(t, roster, 1, "roster excludes the local collaborator")
	assert.Equal(t, "bob", roster[0].ID)
	assert.Equal(t, "bob", roster[0].DisplayName)
	require.Eventually(t, func() bool {
		c, _ := alice.Collaborator("bob")
		return c.Color == bob.LocalUser().Color
	}, waitFor, tick)
}

func TestSession_RepliesToRosterRequest(t *testing.T) {
	bus := transport.NewMemoryBus()
	startSession(t, bus, "alice")
	p := connectPeer(t, bus)

	p.send(domain.NewJoin(collaborator("carol"), true, time.Now()))

	reply := p.expect(func(m domain.Message) bool {
		return m.Type == domain.MessageJoin && m.SenderID == "alice"
	})
	assert.True(t, reply.Reply)
	assert.False(t, reply.RequestRoster)
	require.NotNil(t, reply.Presence)
	assert.Equal(t, "alice", reply.Presence.ID)
}

func TestSession_CursorAndZoom(t *testing.T) {
	bus := transport.NewMemoryBus()
	alice := startSession(t, bus, "alice", WithMirrorRemoteZoom(true))
	bob := startSession(t, bus, "bob")
	require.Eventually(t, func() bool { return hasActive(alice, "bob") }, waitFor, tick)

	require.NoError(t, bob.ReportCursorMove(domain.Point{X: 10, Y: 20}))
	require.NoError(t, bob.ReportZoomChange(1.6))

	require.Eventually(t, func() bool {
		c, _ := alice.Collaborator("bob")
		return c.Cursor != nil && *c.Cursor == domain.Point{X: 10, Y: 20} && c.Zoom == 1.6
	}, waitFor, tick)
	assert.Equal(t, 1.6, alice.Viewport().Zoom())
	assert.Equal(t, 1.6, alice.LocalUser().Zoom)

	// bob does not mirror, so alice's zoom only lands on her presence entry
	require.NoError(t, alice.ReportZoomChange(2.0))
	require.Eventually(t, func() bool {
		c, _ := bob.Collaborator("alice")
		return c.Zoom == 2.0
	}, waitFor, tick)
	assert.Equal(t, 1.6, bob.Viewport().Zoom())
}

func TestSession_ReportValidation(t *testing.T) {
	bus := transport.NewMemoryBus()
	alice := startSession(t, bus, "alice")

	assert.ErrorIs(t, alice.ReportCursorMove(domain.Point{X: math.NaN()}), domain.ErrInvalidPosition)
	assert.ErrorIs(t, alice.ReportNodeMove("a", domain.Point{X: math.Inf(1)}), domain.ErrInvalidPosition)
	assert.ErrorIs(t, alice.ReportNodeMove("missing", domain.Point{X: 1, Y: 1}), domain.ErrNodeNotFound)
	assert.ErrorIs(t, alice.ReportZoomChange(0), domain.ErrInvalidZoom)
	assert.ErrorIs(t, alice.ReportZoomChange(math.NaN()), domain.ErrInvalidZoom)

	require.NoError(t, alice.ReportZoomChange(9))
	assert.Equal(t, MaxZoom, alice.LocalUser().Zoom)
}

func TestSession_ReportNodeMove(t *testing.T) {
	bus := transport.NewMemoryBus()
	alice := startSession(t, bus, "alice")
	p := connectPeer(t, bus)

	require.NoError(t, alice.ReportNodeMove("a", domain.Point{X: 300, Y: 310}))

	n, ok := alice.Graph().Node("a")
	require.True(t, ok)
	assert.Equal(t, domain.Point{X: 300, Y: 310}, n.Position)
	assert.True(t, n.Pinned)

	m := p.expect(func(m domain.Message) bool { return m.Type == domain.MessageNodeMove })
	assert.Equal(t, "alice", m.SenderID)
	assert.Equal(t, "a", m.NodeID)
	assert.Equal(t, domain.Point{X: 300, Y: 310}, *m.Position)
}

func TestSession_RemoteNodeMoveLastAppliedWins(t *testing.T) {
	bus := transport.NewMemoryBus()
	alice := startSession(t, bus, "alice")
	p := connectPeer(t, bus)
	now := time.Now()

	// carol never joined; node moves are applied anyway
	p.send(domain.NewNodeMove("carol", "b", domain.Point{X: 100, Y: 100}, now))
	p.send(domain.NewNodeMove("dave", "b", domain.Point{X: 200, Y: 250}, now.Add(-time.Minute)))

	require.Eventually(t, func() bool {
		n, _ := alice.Graph().Node("b")
		return n.Position == domain.Point{X: 200, Y: 250}
	}, waitFor, tick)

	// repeated delivery of the same move is idempotent
	move := domain.NewNodeMove("carol", "c", domain.Point{X: 70, Y: 80}, now)
	p.send(move)
	p.send(move)
	require.Eventually(t, func() bool {
		n, _ := alice.Graph().Node("c")
		return n.Position == domain.Point{X: 70, Y: 80} && n.Pinned
	}, waitFor, tick)
	_, known := alice.Collaborator("carol")
	assert.False(t, known)
}

func TestSession_LeaveAndRetention(t *testing.T) {
	bus := transport.NewMemoryBus()
	alice := startSession(t, bus, "alice")
	bob := startSession(t, bus, "bob")
	require.Eventually(t, func() bool { return hasActive(alice, "bob") }, waitFor, tick)

	require.NoError(t, bob.Close(context.Background()))

	require.Eventually(t, func() bool {
		c, ok := alice.Collaborator("bob")
		return ok && !c.Active
	}, waitFor, tick)

	alice.SweepLiveness(time.Now().Add(time.Minute))
	_, ok := alice.Collaborator("bob")
	assert.True(t, ok, "left collaborators stay within the retention window")

	alice.SweepLiveness(time.Now().Add(DefaultRetention + time.Minute))
	assert.Empty(t, alice.Roster())
}

func TestSession_HeartbeatTimeout(t *testing.T) {
	bus := transport.NewMemoryBus()
	alice := startSession(t, bus, "alice")
	p := connectPeer(t, bus)

	p.send(domain.NewJoin(collaborator("carol"), false, time.Now()))
	require.Eventually(t, func() bool { return hasActive(alice, "carol") }, waitFor, tick)

	alice.SweepLiveness(time.Now().Add(heartbeatTimeoutFactor*DefaultHeartbeatInterval + time.Second))
	c, ok := alice.Collaborator("carol")
	require.True(t, ok)
	assert.False(t, c.Active)

	p.send(domain.NewHeartbeat("carol", time.Now()))
	require.Eventually(t, func() bool { return hasActive(alice, "carol") }, waitFor, tick)
}

func TestSession_UnknownSenderBuffered(t *testing.T) {
	bus := transport.NewMemoryBus()
	alice := startSession(t, bus, "alice")
	p := connectPeer(t, bus)
	now := time.Now()

	p.send(domain.NewCursorMove("dave", domain.Point{X: 5, Y: 6}, now))
	p.send(domain.NewJoin(collaborator("dave"), false, now))

	require.Eventually(t, func() bool {
		c, ok := alice.Collaborator("dave")
		return ok && c.Cursor != nil && *c.Cursor == domain.Point{X: 5, Y: 6}
	}, waitFor, tick)

	t.Run("dropped after one retry cycle", func(t *testing.T) {
		p.send(domain.NewCursorMove("erin", domain.Point{X: 1, Y: 2}, now))
		p.send(domain.NewJoin(collaborator("marker"), false, now))
		require.Eventually(t, func() bool { return hasActive(alice, "marker") }, waitFor, tick)

		alice.SweepLiveness(time.Now().Add(DefaultPendingTTL + time.Second))

		p.send(domain.NewJoin(collaborator("erin"), false, time.Now()))
		require.Eventually(t, func() bool { return hasActive(alice, "erin") }, waitFor, tick)
		c, _ := alice.Collaborator("erin")
		assert.Nil(t, c.Cursor)
	})
}

func TestSession_BulkRosterReplacesThenMerges(t *testing.T) {
	bus := transport.NewMemoryBus()
	alice := startSession(t, bus, "alice")
	p := connectPeer(t, bus)
	now := time.Now()

	p.send(domain.NewJoin(collaborator("stale"), false, now))
	require.Eventually(t, func() bool { return hasActive(alice, "stale") }, waitFor, tick)

	first := []domain.Collaborator{collaborator("alice"), collaborator("x"), collaborator("y")}
	first[1].Active, first[2].Active = true, true
	p.send(domain.NewRosterSnapshot("relay", first, now))

	ids := func() []string {
		var out []string
		for _, c := range alice.Roster() {
			out = append(out, c.ID)
		}
		return out
	}
	require.Eventually(t, func() bool { return assert.ObjectsAreEqual([]string{"x", "y"}, ids()) }, waitFor, tick)

	second := []domain.Collaborator{collaborator("z")}
	second[0].Active = true
	p.send(domain.NewRosterSnapshot("relay", second, now))
	require.Eventually(t, func() bool { return assert.ObjectsAreEqual([]string{"x", "y", "z"}, ids()) }, waitFor, tick)

	p.send(domain.NewRosterSnapshot("relay", nil, now))
	p.send(domain.NewJoin(collaborator("marker"), false, now))
	require.Eventually(t, func() bool { return hasActive(alice, "marker") }, waitFor, tick)
	assert.Len(t, alice.Roster(), 4, "an empty snapshot after sync removes nobody")
}

func TestSession_MalformedMessagesDropped(t *testing.T) {
	bus := transport.NewMemoryBus()
	alice := startSession(t, bus, "alice")
	p := connectPeer(t, bus)

	p.sendRaw("{not json")
	p.sendRaw(`{"type":"teleport","senderId":"x","timestamp":1}`)
	p.sendRaw(`{"type":"cursor_move","senderId":"x","timestamp":1}`)
	p.send(domain.NewJoin(collaborator("carol"), false, time.Now()))

	require.Eventually(t, func() bool { return hasActive(alice, "carol") }, waitFor, tick)
	assert.Equal(t, domain.StatusOpen, alice.Status())
}

func TestSession_OwnEchoIgnored(t *testing.T) {
	bus := transport.NewMemoryBus()
	alice := startSession(t, bus, "alice")
	p := connectPeer(t, bus)

	require.NoError(t, alice.ReportCursorMove(domain.Point{X: 1, Y: 1}))
	p.expect(func(m domain.Message) bool { return m.Type == domain.MessageCursorMove })

	assert.Empty(t, alice.Roster())
	require.NotNil(t, alice.LocalUser().Cursor)
}

type recordingTransport struct {
	bus *transport.MemoryBus

	mu   sync.Mutex
	sent []domain.Message
}

func (r *recordingTransport) Connect(ctx context.Context, sessionID string) (transport.Conn, error) {
	c, err := r.bus.Connect(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &recordingConn{Conn: c, rec: r}, nil
}

func (r *recordingTransport) count(match func(domain.Message) bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.sent {
		if match(m) {
			n++
		}
	}
	return n
}

type recordingConn struct {
	transport.Conn
	rec *recordingTransport
}

func (c *recordingConn) Send(ctx context.Context, data []byte) error {
	if m, err := protocol.Decode(data); err == nil {
		c.rec.mu.Lock()
		c.rec.sent = append(c.rec.sent, m)
		c.rec.mu.Unlock()
	}
	return c.Conn.Send(ctx, data)
}

func TestSession_ReconnectResendsJoin(t *testing.T) {
	bus := transport.NewMemoryBus()
	rec := &recordingTransport{bus: bus}
	alice := newTestSession(t, rec, "alice")
	updates := alice.Subscribe()
	runSession(t, alice)

	joinRequests := func() int {
		return rec.count(func(m domain.Message) bool {
			return m.Type == domain.MessageJoin && m.RequestRoster
		})
	}
	require.Equal(t, 1, joinRequests())

	bus.FailConnects(2)
	bus.Disconnect(testSession)

	require.Eventually(t, func() bool {
		return joinRequests() == 2 && alice.Status() == domain.StatusOpen
	}, waitFor, tick)

	var statuses []domain.ConnectionStatus
	for len(updates) > 0 {
		u := <-updates
		if len(statuses) == 0 || statuses[len(statuses)-1] != u.Status {
			statuses = append(statuses, u.Status)
		}
	}
	assert.Equal(t, []domain.ConnectionStatus{domain.StatusOpen, domain.StatusReconnecting, domain.StatusOpen}, statuses)
}

func TestSession_Close(t *testing.T) {
	bus := transport.NewMemoryBus()
	alice := startSession(t, bus, "alice")
	p := connectPeer(t, bus)
	updates := alice.Subscribe()

	require.NoError(t, alice.Close(context.Background()))

	leave := p.expect(func(m domain.Message) bool { return m.Type == domain.MessageLeave })
	assert.Equal(t, "alice", leave.ID)
	assert.Equal(t, domain.StatusClosed, alice.Status())
	assert.ErrorIs(t, alice.ReportCursorMove(domain.Point{}), domain.ErrSessionClosed)
	assert.ErrorIs(t, alice.Run(context.Background()), domain.ErrSessionClosed)

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-updates:
			return !ok
		default:
			return false
		}
	}, waitFor, tick)
	assert.NoError(t, alice.Close(context.Background()))
}

func TestSession_ColorCollision(t *testing.T) {
	bus := transport.NewMemoryBus()
	first := newTestSession(t, bus, "a-first")
	second := newTestSession(t, bus, "b-second")
	first.local.Color = Palette[0]
	second.local.Color = Palette[0]

	runSession(t, first)
	runSession(t, second)

	require.Eventually(t, func() bool {
		c, ok := first.Collaborator("b-second")
		return ok && c.Color != Palette[0] && c.Color == second.LocalUser().Color
	}, waitFor, tick)
	assert.Equal(t, Palette[0], first.LocalUser().Color)
}
