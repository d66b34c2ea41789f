// Package metrics provides Prometheus instrumentation for the proctoring
// engine.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vigil",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status bucket.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vigil",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// EventsIngestedTotal counts behavioral events by type.
	EventsIngestedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vigil",
			Name:      "events_ingested_total",
			Help:      "Total behavioral events ingested by observation type.",
		},
		[]string{"type"},
	)

	// ScoringDuration observes how long a full rescore takes.
	ScoringDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "vigil",
		Name:      "scoring_duration_seconds",
		Help:      "Time to recompute a session risk score.",
		Buckets:   []float64{.00005, .0001, .0005, .001, .005, .01, .05},
	})

	// ActiveSessions tracks non-ended sessions.
	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "vigil",
		Name:      "active_sessions",
		Help:      "Number of active (non-ended) exam sessions.",
	})

	// ActiveViewerConnections tracks connected WebSocket viewers.
	ActiveViewerConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "vigil",
		Name:      "active_viewer_connections",
		Help:      "Number of currently connected viewer WebSocket clients.",
	})

	// SessionsFlaggedTotal counts manual flags.
	SessionsFlaggedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "vigil",
		Name:      "sessions_flagged_total",
		Help:      "Total sessions manually flagged.",
	})

	// PersistFailuresTotal counts write-behind archive failures.
	PersistFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vigil",
			Name:      "persist_failures_total",
			Help:      "Total write-behind persistence failures by operation.",
		},
		[]string{"op"},
	)

	// BroadcastEvictionsTotal counts viewers evicted on failed sends.
	BroadcastEvictionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "vigil",
		Name:      "broadcast_evictions_total",
		Help:      "Total viewer connections evicted after a failed send.",
	})

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "vigil", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "vigil", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "vigil", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		EventsIngestedTotal,
		ScoringDuration,
		ActiveSessions,
		ActiveViewerConnections,
		SessionsFlaggedTotal,
		PersistFailuresTotal,
		BroadcastEvictionsTotal,
		DBOpenConnections,
		DBInUseConnections,
		GoroutineCount,
	)
}

// StartDBStatsCollector periodically samples sql.DBStats and the runtime
// goroutine count into gauges. Call in a goroutine; exits when ctx is done.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBInUseConnections.Set(float64(stats.InUse))
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
