package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"riftline/internal/config"
	"riftline/internal/game"
	"riftline/internal/session"
)

// Server is the public HTTP surface: the websocket endpoint, health, and the
// stats API.
//
// Background workers do NOT start until Start() is called; tests construct
// the server and use Router() with httptest instead.
type Server struct {
	router      *chi.Mux
	httpServer  *http.Server
	hub         *Hub
	rateLimiter *IPRateLimiter
	cfg         config.ServerConfig
}

// NewServer wires the HTTP surface to the game core.
func NewServer(cfg config.ServerConfig, registry *session.Registry, gateway *game.Gateway, encoder *session.Encoder, world *game.World, engine *game.Engine) *Server {
	s := &Server{
		cfg:         cfg,
		hub:         NewHub(cfg, registry, gateway, encoder, world),
		rateLimiter: NewIPRateLimiter(DefaultRateLimitConfig),
	}

	s.router = NewRouter(RouterConfig{
		Hub:         s.hub,
		Stats:       NewStatsHandler(engine, world, registry, gateway, encoder),
		Admin:       NewAdminHandler(world, cfg.AdminToken),
		RateLimiter: s.rateLimiter,
		CORSOrigins: cfg.AllowedOrigins,
	})
	return s
}

// Start opens the listener and blocks until the server exits.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Printf("🌐 API server starting on %s", addr)
	log.Printf("   - websocket: ws://localhost%s/ws", addr)

	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.rateLimiter.Stop()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Router returns the HTTP handler for use with httptest.
func (s *Server) Router() http.Handler {
	return s.router
}

// Hub exposes the websocket hub, mainly for stats.
func (s *Server) Hub() *Hub { return s.hub }
