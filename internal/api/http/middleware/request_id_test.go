package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoSim-25-26J-441/go-collab-graph/internal/observability"
)

func newRouter(metrics *observability.Collector) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestIDMiddleware(nil), MetricsMiddleware(metrics))
	r.GET("/sessions/:id", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"gin": c.GetString("request_id"),
			"ctx": GetRequestID(c.Request.Context()),
		})
	})
	return r
}

func TestRequestIDMiddleware(t *testing.T) {
	r := newRouter(observability.NewCollector("test"))

	t.Run("keeps the caller's id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/sessions/a", nil)
		req.Header.Set(RequestIDHeader, "abc-123")
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)

		assert.Equal(t, "abc-123", rr.Header().Get(RequestIDHeader))
		assert.JSONEq(t, `{"gin":"abc-123","ctx":"abc-123"}`, rr.Body.String())
	})

	t.Run("generates an id when missing", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/sessions/a", nil)
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)

		_, err := uuid.Parse(rr.Header().Get(RequestIDHeader))
		require.NoError(t, err)
	})
}

func TestMetricsMiddleware(t *testing.T) {
	metrics := observability.NewCollector("test")
	r := newRouter(metrics)

	for _, path := range []string{"/sessions/a", "/sessions/b", "/nowhere"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues("GET", "/sessions/:id", "OK")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues("GET", "unmatched", "Not Found")))
}
