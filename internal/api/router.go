package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterConfig carries the router's dependencies. Designed for dependency
// injection so tests can stand the router up with httptest.NewServer.
type RouterConfig struct {
	// Hub serves the /ws endpoint (required).
	Hub *Hub

	// Stats serves /api/stats (required).
	Stats *StatsHandler

	// Admin serves /api/admin/*; skipped when nil or tokenless.
	Admin *AdminHandler

	// RateLimiter is an optional pre-configured limiter. If nil, one is
	// created from RateLimitConfig (or the defaults).
	RateLimiter *IPRateLimiter

	RateLimitConfig *RateLimitConfig

	// CORSOrigins beyond localhost. If nil, localhost only.
	CORSOrigins []string

	// DisableLogging disables the request logger middleware (benchmarks).
	DisableLogging bool
}

// NewRouter constructs the HTTP router with all middleware and routes.
//
// This function is PURE - no goroutines, no listeners - so it is safe to use
// in tests with httptest.NewServer. The exception is the rate limiter's
// cleanup goroutine when RateLimiter is nil; pass one in to control that.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	if !cfg.DisableLogging {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)

	// Rate limiting before CORS to reject early and save CPU.
	rateLimiter := cfg.RateLimiter
	if rateLimiter == nil {
		rateLimitCfg := DefaultRateLimitConfig
		if cfg.RateLimitConfig != nil {
			rateLimitCfg = *cfg.RateLimitConfig
		}
		rateLimiter = NewIPRateLimiter(rateLimitCfg)
	}
	r.Use(rateLimiter.Middleware)

	corsOrigins := []string{"http://localhost:*", "http://127.0.0.1:*"}
	corsOrigins = append(corsOrigins, cfg.CORSOrigins...)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	r.Get("/ws", cfg.Hub.HandleWS)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/stats", cfg.Stats.HandleStats)
		if cfg.Admin.Enabled() {
			r.Post("/admin/spawn", cfg.Admin.HandleSpawn)
		}
	})

	return r
}
