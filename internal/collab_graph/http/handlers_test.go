package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoSim-25-26J-441/go-collab-graph/internal/collab_graph/domain"
	"github.com/GoSim-25-26J-441/go-collab-graph/internal/collab_graph/layout"
	"github.com/GoSim-25-26J-441/go-collab-graph/internal/collab_graph/protocol"
	"github.com/GoSim-25-26J-441/go-collab-graph/internal/collab_graph/repository"
	"github.com/GoSim-25-26J-441/go-collab-graph/internal/collab_graph/service"
	"github.com/GoSim-25-26J-441/go-collab-graph/internal/collab_graph/transport"
	"github.com/GoSim-25-26J-441/go-collab-graph/internal/observability"
)

type fixture struct {
	router *gin.Engine
	repo   *repository.PresenceRepository
}

func setupRouter(t *testing.T, origins ...string) *fixture {
	gin.SetMode(gin.TestMode)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	metrics := observability.NewCollector("test")
	repo := repository.NewPresenceRepository(client)
	relay := service.NewRelayService(repo, transport.NewRedisTransport(client, nil), metrics, service.RelayConfig{}, nil)
	layoutSvc := service.NewLayoutService(layout.Config{Seed: 1, Iterations: 20}, metrics, nil)

	router := gin.New()
	New(relay, layoutSvc, origins, nil).Register(router.Group("/api/v1"))
	return &fixture{router: router, repo: repo}
}

func (f *fixture) do(t *testing.T, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req, err := http.NewRequest(method, path, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func TestGetRoster(t *testing.T) {
	f := setupRouter(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, f.repo.Upsert(ctx, "board", domain.Collaborator{ID: "ann", Color: "#e6194b"}, now))
	require.NoError(t, f.repo.Upsert(ctx, "board", domain.Collaborator{ID: "ben"}, now))
	require.NoError(t, f.repo.MarkLeft(ctx, "board", "ben", now))

	rr := f.do(t, http.MethodGet, "/api/v1/sessions/board/roster", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		SessionID string                `json:"session_id"`
		Users     []domain.Collaborator `json:"users"`
		Active    int                   `json:"active"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "board", resp.SessionID)
	require.Len(t, resp.Users, 2)
	assert.Equal(t, "ann", resp.Users[0].ID)
	assert.Equal(t, 1, resp.Active)
}

func TestGetRoster_InvalidSession(t *testing.T) {
	f := setupRouter(t)

	rr := f.do(t, http.MethodGet, "/api/v1/sessions/"+strings.Repeat("x", 200)+"/roster", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRunLayout(t *testing.T) {
	f := setupRouter(t)

	body := []byte(`{
		"graph": {
			"nodes": [{"id": "a", "layer": "semantic"}, {"id": "b", "layer": "kinetic"}],
			"links": [{"source": "a", "target": "b", "strength": 0.5}]
		},
		"width": 500,
		"height": 400
	}`)
	rr := f.do(t, http.MethodPost, "/api/v1/layout", body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp service.LayoutResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 20, resp.Result.Iterations)
	require.Len(t, resp.Frame.Nodes, 2)

	cfg := layout.Config{Width: 500, Height: 400}
	for _, n := range resp.Frame.Nodes {
		assert.True(t, cfg.Contains(domain.Point{X: n.X, Y: n.Y}))
	}
}

func TestRunLayout_Errors(t *testing.T) {
	f := setupRouter(t)

	tests := []struct {
		name string
		body string
		code int
	}{
		{"malformed body", `{"graph":`, http.StatusBadRequest},
		{"dangling link", `{"graph":{"nodes":[{"id":"a"}],"links":[{"source":"a","target":"zzz"}]}}`, http.StatusUnprocessableEntity},
		{"bad layer", `{"graph":{"nodes":[{"id":"a"}]},"layers":["astral"]}`, http.StatusBadRequest},
		{"too many iterations", `{"graph":{"nodes":[{"id":"a"}]},"iterations":100000}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := f.do(t, http.MethodPost, "/api/v1/layout", []byte(tt.body))
			assert.Equal(t, tt.code, rr.Code, rr.Body.String())
			assert.Contains(t, rr.Body.String(), `"error"`)
		})
	}
}

func TestServeSession(t *testing.T) {
	f := setupRouter(t, "https://app.example.com")
	srv := httptest.NewServer(f.router)
	t.Cleanup(srv.Close)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/sessions/board/ws"

	t.Run("rejects foreign origins", func(t *testing.T) {
		header := http.Header{"Origin": []string{"https://evil.example.com"}}
		_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("answers a roster request", func(t *testing.T) {
		header := http.Header{"Origin": []string{"https://app.example.com"}}
		ws, _, err := websocket.DefaultDialer.Dial(wsURL, header)
		require.NoError(t, err)
		defer ws.Close()

		data, err := protocol.Encode(domain.NewJoin(domain.Collaborator{ID: "ann"}, true, time.Now()))
		require.NoError(t, err)
		require.NoError(t, ws.WriteMessage(websocket.TextMessage, data))

		require.NoError(t, ws.SetReadDeadline(time.Now().Add(3*time.Second)))
		for {
			_, frame, err := ws.ReadMessage()
			require.NoError(t, err)
			msg, err := protocol.Decode(frame)
			require.NoError(t, err)
			if msg.IsBulkRoster() {
				require.Len(t, msg.Users, 1)
				assert.Equal(t, "ann", msg.Users[0].ID)
				return
			}
		}
	})
}

func TestOriginChecker(t *testing.T) {
	req := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	open := originChecker(nil)
	assert.True(t, open(req("https://anything.test")))

	wildcard := originChecker([]string{"https://a.test", "*"})
	assert.True(t, wildcard(req("https://b.test")))

	strict := originChecker([]string{" https://A.test/ "})
	assert.True(t, strict(req("https://a.test")))
	assert.True(t, strict(req("")))
	assert.False(t, strict(req("https://b.test")))
	assert.False(t, strict(req("://bad")))
}
