// Package metrics provides Prometheus instrumentation for the career engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SessionsCreated counts career sessions created, partitioned by difficulty.
	SessionsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "career_sessions_created_total",
		Help: "Total career sessions created",
	}, []string{"difficulty"})

	// TurnsClosed counts completed turns, partitioned by difficulty.
	TurnsClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "career_turns_closed_total",
		Help: "Total turns closed",
	}, []string{"difficulty"})

	// TurnCloseLatency tracks close-turn processing latency.
	TurnCloseLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "career_turn_close_seconds",
		Help:    "Close-turn processing latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// EventsDrawn counts events created by the engine, partitioned by scope
	// and source (auto draw vs manual injection).
	EventsDrawn = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "career_events_total",
		Help: "Total market events created",
	}, []string{"scope", "source"})

	// ReportsBuilt counts performance reports generated.
	ReportsBuilt = promauto.NewCounter(prometheus.CounterOpts{
		Name: "career_reports_total",
		Help: "Total performance reports generated",
	})

	// RankingSubmissions counts leaderboard submissions by outcome.
	RankingSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "career_ranking_submissions_total",
		Help: "Total ranking submissions",
	}, []string{"outcome"})

	// ProviderRequests counts upstream price fetches by outcome
	// (ok, no_data, error).
	ProviderRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "career_provider_requests_total",
		Help: "Total price provider fetches",
	}, []string{"outcome"})

	// ProviderLatency tracks upstream price fetch latency.
	ProviderLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "career_provider_latency_seconds",
		Help:    "Price provider fetch latency in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	// PriceCacheHits and PriceCacheMisses track the memoized series cache.
	PriceCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "career_price_cache_hits_total",
		Help: "Price series cache hits",
	})
	PriceCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "career_price_cache_misses_total",
		Help: "Price series cache misses",
	})

	// WebSocketClients tracks connected activity-feed clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "career_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "career_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "career_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				path = p
			}
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
