package api

import (
	"crypto/subtle"
	"encoding/json"
	"log"
	"net/http"

	"riftline/internal/game"
	"riftline/internal/protocol"
	"riftline/internal/session"
)

// StatsHandler serves the operational stats endpoint.
type StatsHandler struct {
	engine   *game.Engine
	world    *game.World
	registry *session.Registry
	gateway  *game.Gateway
	encoder  *session.Encoder
}

// NewStatsHandler binds the stats endpoint to the game core.
func NewStatsHandler(engine *game.Engine, world *game.World, registry *session.Registry, gateway *game.Gateway, encoder *session.Encoder) *StatsHandler {
	return &StatsHandler{
		engine:   engine,
		world:    world,
		registry: registry,
		gateway:  gateway,
		encoder:  encoder,
	}
}

// statsResponse is the /api/stats body.
type statsResponse struct {
	Tick         game.TickReport   `json:"tick"`
	GameTime     float64           `json:"gameTime"`
	Entities     int               `json:"entities"`
	Sessions     int               `json:"sessions"`
	Connected    int               `json:"connected"`
	GameEnded    bool              `json:"gameEnded"`
	InputsOK     uint64            `json:"inputsAccepted"`
	InputsReject map[string]uint64 `json:"inputsRejected"`
	UpdatesSent  uint64            `json:"updatesSent"`
	UpdatesDrop  uint64            `json:"updatesDropped"`
	UpdateBytes  uint64            `json:"updateBytes"`
}

// HandleStats returns tick health, session counts, and input/update counters.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	accepted, rejected := h.gateway.Stats()
	sent, dropped, bytes := h.encoder.Stats()
	total, connected := h.registry.Counts()

	resp := statsResponse{
		Tick:         h.engine.Stats(),
		GameTime:     h.world.GameTime(),
		Entities:     h.world.EntityCount(),
		Sessions:     total,
		Connected:    connected,
		GameEnded:    h.registry.Ended(),
		InputsOK:     accepted,
		InputsReject: rejected,
		UpdatesSent:  sent,
		UpdatesDrop:  dropped,
		UpdateBytes:  bytes,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, "encode error", http.StatusInternalServerError)
	}
}

// AdminHandler serves the harness-only admin endpoints. The routes are not
// registered unless a token is configured.
type AdminHandler struct {
	world *game.World
	token string
}

// NewAdminHandler binds the admin endpoints to the world. An empty token
// disables them.
func NewAdminHandler(world *game.World, token string) *AdminHandler {
	return &AdminHandler{world: world, token: token}
}

// Enabled reports whether the admin routes should be registered.
func (h *AdminHandler) Enabled() bool {
	return h != nil && h.token != ""
}

type spawnRequest struct {
	EntityID string  `json:"entityId"`
	Kind     string  `json:"kind"`
	Side     string  `json:"side"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Health   int     `json:"health"`
	Radius   float64 `json:"radius"`
}

// HandleSpawn queues a structure entity into the world. The spawn becomes
// live on the next tick, same as any other deferred add.
func (h *AdminHandler) HandleSpawn(w http.ResponseWriter, r *http.Request) {
	got := r.Header.Get("X-Admin-Token")
	if subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) != 1 {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req spawnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	if req.EntityID == "" {
		http.Error(w, "entityId required", http.StatusBadRequest)
		return
	}
	if req.Health <= 0 {
		req.Health = 100
	}
	if req.Radius <= 0 {
		req.Radius = 50
	}

	e := &game.Entity{
		ID:   protocol.EntityID(req.EntityID),
		Kind: protocol.EntityKind(req.Kind),
		Side: protocol.TeamID(req.Side),
		Pos:  game.Vec2{X: req.X, Y: req.Y},
	}
	e.Behavior = game.NewStructure(e, req.Health, req.Radius)

	if err := h.world.QueueSpawn(e); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	log.Printf("🔧 Admin spawn queued: %s (%s)", req.EntityID, req.Kind)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"queued": req.EntityID})
}
