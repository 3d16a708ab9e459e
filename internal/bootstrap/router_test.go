package bootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoSim-25-26J-441/go-collab-graph/internal/collab_graph/layout"
	"github.com/GoSim-25-26J-441/go-collab-graph/internal/collab_graph/repository"
	"github.com/GoSim-25-26J-441/go-collab-graph/internal/collab_graph/service"
	"github.com/GoSim-25-26J-441/go-collab-graph/internal/collab_graph/transport"
	"github.com/GoSim-25-26J-441/go-collab-graph/internal/observability"
)

func testRouter(t *testing.T, origins []string) *gin.Engine {
	SetGinMode("test")

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := OpenRedis(context.Background(), RedisOptions{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	metrics := observability.NewCollector("test")
	repo := repository.NewPresenceRepository(client)
	return BuildRouter(RouterDeps{
		ServiceName: "collab-graph",
		Version:     "test",
		CORSOrigins: origins,
		Redis:       client,
		Relay:       service.NewRelayService(repo, transport.NewRedisTransport(client, nil), metrics, service.RelayConfig{}, nil),
		Layout:      service.NewLayoutService(layout.Config{Iterations: 5}, metrics, nil),
		Metrics:     metrics,
	})
}

func TestBuildRouter(t *testing.T) {
	r := testRouter(t, []string{"https://app.test"})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("X-Request-Id"))

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/board/roster", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `test_http_requests_total{method="GET",route="/api/v1/sessions/:id/roster",status="OK"} 1`)
}

func TestBuildRouter_CORS(t *testing.T) {
	r := testRouter(t, []string{"https://app.test"})

	preflight := func(origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/layout", strings.NewReader(""))
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		return rr
	}

	ok := preflight("https://app.test")
	assert.Equal(t, http.StatusNoContent, ok.Code)
	assert.Equal(t, "https://app.test", ok.Header().Get("Access-Control-Allow-Origin"))

	denied := preflight("https://evil.test")
	assert.Equal(t, http.StatusForbidden, denied.Code)
}

func TestCorsConfig(t *testing.T) {
	assert.True(t, corsConfig(nil).AllowAllOrigins)
	assert.True(t, corsConfig([]string{"https://a.test", "*"}).AllowAllOrigins)

	cfg := corsConfig([]string{"https://a.test"})
	assert.False(t, cfg.AllowAllOrigins)
	assert.Equal(t, []string{"https://a.test"}, cfg.AllowOrigins)
}

func TestOpenRedis_Errors(t *testing.T) {
	_, err := OpenRedis(context.Background(), RedisOptions{})
	assert.ErrorContains(t, err, "REDIS_ADDR")

	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	_, err = OpenRedis(context.Background(), RedisOptions{Addr: addr})
	assert.ErrorContains(t, err, "redis ping")
}
