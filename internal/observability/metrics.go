package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the relay's Prometheus metrics on a private registry
type Collector struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Relay metrics
	Connections     prometheus.Gauge
	Sessions        prometheus.Gauge
	RelayedMessages *prometheus.CounterVec
	DroppedMessages *prometheus.CounterVec
	SweptEntries    prometheus.Counter

	// Layout metrics
	LayoutRuns     *prometheus.CounterVec
	LayoutDuration prometheus.Histogram
}

// NewCollector creates a collector with metrics under the given namespace.
// Each call builds a fresh registry, so tests can create as many as needed.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_connections",
			Help:      "Open collaborator websocket connections",
		}),
		Sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Sessions with at least one local connection",
		}),
		RelayedMessages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "relayed_messages_total",
				Help:      "Protocol messages published to a session",
			},
			[]string{"type"},
		),
		DroppedMessages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dropped_messages_total",
				Help:      "Messages discarded by the relay",
			},
			[]string{"reason"},
		),
		SweptEntries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "roster_swept_total",
			Help:      "Roster entries marked inactive or purged by the sweeper",
		}),
		LayoutRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "layout_runs_total",
				Help:      "Force layout passes run by the layout endpoint",
			},
			[]string{"status"},
		),
		LayoutDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "layout_duration_seconds",
			Help:      "Force layout pass duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	registry.MustRegister(
		c.HTTPRequests,
		c.HTTPDuration,
		c.Connections,
		c.Sessions,
		c.RelayedMessages,
		c.DroppedMessages,
		c.SweptEntries,
		c.LayoutRuns,
		c.LayoutDuration,
	)
	return c
}

// ObserveHTTP records one finished request
func (c *Collector) ObserveHTTP(method, route string, status int, d time.Duration) {
	c.HTTPRequests.WithLabelValues(method, route, http.StatusText(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// ObserveLayout records one layout pass
func (c *Collector) ObserveLayout(err error, d time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.LayoutRuns.WithLabelValues(status).Inc()
	c.LayoutDuration.Observe(d.Seconds())
}

// Registry returns the Prometheus registry for this collector
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
