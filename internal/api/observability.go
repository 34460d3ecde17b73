package api

import (
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics with bounded cardinality (no per-player labels to prevent DoS)
var (
	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sim_tick_duration_seconds",
		Help:    "Time spent advancing one simulation tick",
		Buckets: []float64{0.0005, 0.001, 0.002, 0.004, 0.008, 0.016, 0.032},
	})

	tickOverruns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sim_tick_overruns_total",
		Help: "Ticks that exceeded the per-tick budget",
	})

	entityCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sim_entity_count",
		Help: "Current number of live entities",
	})

	sessionCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "session_count",
		Help: "Current number of sessions (including disconnected, unexpired)",
	})

	inputsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "input_accepted_total",
		Help: "Inputs admitted into player queues",
	})

	// Bounded: reason is one of the fixed rejection constants
	inputsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "input_rejected_total",
		Help: "Inputs rejected at admission",
	}, []string{"reason"})

	updatesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "state_updates_sent_total",
		Help: "Per-session state updates enqueued",
	})

	updatesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "state_updates_dropped_total",
		Help: "State updates dropped to send backpressure",
	})

	updateBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "state_update_bytes",
		Help:    "Encoded state update size",
		Buckets: prometheus.ExponentialBuckets(64, 4, 8),
	})

	// Bounded: "rate_limit", "origin", "ws_total_limit", "ws_ip_limit"
	connectionRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connection_rejected_total",
		Help: "Connections rejected by rate limiter or origin check",
	}, []string{"reason"})

	wsConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "websocket_connections_active",
		Help: "Currently active WebSocket connections",
	})
)

// ObservabilityConfig configures the debug server
type ObservabilityConfig struct {
	Enabled       bool
	ListenAddr    string // MUST be "127.0.0.1:6060" in production
	BasicAuthUser string // Optional basic auth
	BasicAuthPass string
}

// DefaultObservabilityConfig returns safe defaults
func DefaultObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		Enabled:    true,
		ListenAddr: "127.0.0.1:6060", // Localhost only - NEVER expose externally
	}
}

// StartDebugServer starts the internal observability server.
// CRITICAL: This MUST bind to localhost only to prevent pprof-based DoS
func StartDebugServer(cfg ObservabilityConfig) error {
	if !cfg.Enabled {
		log.Println("📊 Debug server disabled")
		return nil
	}

	// SECURITY: Validate address is localhost
	if cfg.ListenAddr != "127.0.0.1:6060" && cfg.ListenAddr != "localhost:6060" {
		if os.Getenv("ALLOW_DEBUG_EXTERNAL") != "true" {
			log.Println("⚠️ Debug server forced to localhost for security")
			cfg.ListenAddr = "127.0.0.1:6060"
		}
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	var handler http.Handler = mux
	if cfg.BasicAuthUser != "" {
		handler = basicAuthMiddleware(cfg.BasicAuthUser, cfg.BasicAuthPass, mux)
	}

	go func() {
		log.Printf("📊 Debug server starting on %s", cfg.ListenAddr)
		log.Printf("   - pprof:   http://%s/debug/pprof/", cfg.ListenAddr)
		log.Printf("   - metrics: http://%s/metrics", cfg.ListenAddr)

		if err := http.ListenAndServe(cfg.ListenAddr, handler); err != nil {
			log.Printf("⚠️ Debug server error: %v", err)
		}
	}()

	return nil
}

// basicAuthMiddleware adds basic authentication to the handler
func basicAuthMiddleware(user, pass string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || u != user || p != pass {
			w.Header().Set("WWW-Authenticate", `Basic realm="debug"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RecordTick records tick timing; overrun ticks also bump the overrun counter.
func RecordTick(duration time.Duration, overrun bool) {
	tickDuration.Observe(duration.Seconds())
	if overrun {
		tickOverruns.Inc()
	}
}

// UpdateEntityCount updates the live entity gauge
func UpdateEntityCount(count int) {
	entityCount.Set(float64(count))
}

// UpdateSessionCount updates the session gauge
func UpdateSessionCount(count int) {
	sessionCount.Set(float64(count))
}

// RecordInputAccepted increments the admission counter
func RecordInputAccepted() {
	inputsAccepted.Inc()
}

// RecordInputRejected increments the rejection counter.
// reason must be one of the fixed admission rejection constants.
func RecordInputRejected(reason string) {
	inputsRejected.WithLabelValues(reason).Inc()
}

// RecordStateUpdate records one per-session emit outcome
func RecordStateUpdate(bytes int, dropped bool) {
	if dropped {
		updatesDropped.Inc()
		return
	}
	updatesSent.Inc()
	updateBytes.Observe(float64(bytes))
}

// RecordConnectionRejected increments the rejection counter.
// reason must be one of: "rate_limit", "origin", "ws_total_limit", "ws_ip_limit"
func RecordConnectionRejected(reason string) {
	connectionRejected.WithLabelValues(reason).Inc()
}

// UpdateWSConnections updates WebSocket connection count
func UpdateWSConnections(count int) {
	wsConnectionsActive.Set(float64(count))
}
