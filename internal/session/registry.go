package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"riftline/internal/config"
	"riftline/internal/game"
	"riftline/internal/protocol"
)

// Join failures surfaced to the handshake path.
var (
	ErrGameFull  = errors.New(protocol.ErrGameFull)
	ErrGameEnded = errors.New(protocol.ErrGameEnded)
)

const sweepInterval = time.Second

// Registry owns every session and ties player lifecycle to the world: joining
// spawns the champion, expiry despawns it and forgets the gateway state.
type Registry struct {
	mu       sync.Mutex
	sessions map[protocol.PlayerID]*Session
	ended    bool

	cfg     config.ServerConfig
	world   *game.World
	gateway *game.Gateway
	journal *game.Journal

	gameID    string
	startTime time.Time

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRegistry creates a registry bound to the world and gateway.
func NewRegistry(cfg config.ServerConfig, world *game.World, gateway *game.Gateway, journal *game.Journal) *Registry {
	return &Registry{
		sessions:  make(map[protocol.PlayerID]*Session),
		cfg:       cfg,
		world:     world,
		gateway:   gateway,
		journal:   journal,
		gameID:    fmt.Sprintf("game-%d", time.Now().UnixNano()),
		startTime: time.Now(),
		stopChan:  make(chan struct{}),
	}
}

// GameID identifies this match instance.
func (r *Registry) GameID() string { return r.gameID }

// Start launches the expiry sweeper.
func (r *Registry) Start() {
	r.wg.Add(1)
	go r.sweepLoop()
}

// Stop halts the sweeper.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() { close(r.stopChan) })
	r.wg.Wait()
}

// Join admits a player, spawning their champion on first join or reattaching
// the surviving session on reconnect. Returns the session and whether this
// was a reconnect.
func (r *Registry) Join(playerID protocol.PlayerID, championID string) (*Session, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ended {
		return nil, false, ErrGameEnded
	}

	if s := r.sessions[playerID]; s != nil {
		s.reattach(r.cfg.SendBuffer)
		log.Printf("🔄 player %s reconnected", playerID)
		return s, true, nil
	}

	if len(r.sessions) >= r.cfg.MaxPlayers {
		return nil, false, ErrGameFull
	}

	side := protocol.TeamBlue
	spawn := game.Vec2{X: 500, Y: 500}
	if len(r.sessions)%2 == 1 {
		side = protocol.TeamRed
		width, height := r.world.Bounds()
		spawn = game.Vec2{X: width - 500, Y: height - 500}
	}

	entityID := protocol.EntityID("champion-" + string(playerID))
	ent := &game.Entity{
		ID:    entityID,
		Kind:  protocol.KindChampion,
		Side:  side,
		Owner: playerID,
	}
	ent.Behavior = game.NewChampion(ent, championID, spawn)
	if err := r.world.QueueSpawn(ent); err != nil {
		return nil, false, err
	}

	s := newSession(playerID, championID, side, entityID, r.cfg.SendBuffer)
	r.sessions[playerID] = s
	r.journal.Record(game.JournalPlayerJoined, r.world.Tick(), string(playerID), map[string]any{
		"championId": championID,
		"side":       side,
	})
	log.Printf("✅ player %s joined as %s (%s)", playerID, championID, side)
	return s, false, nil
}

// Disconnect detaches the socket but keeps the session alive for the expiry
// window. Pending inputs and rate-limit windows are cleared. gen must be the
// attachment generation the disconnecting handler captured at handshake; a
// stale generation means a newer socket reattached and the call is a no-op.
func (r *Registry) Disconnect(playerID protocol.PlayerID, gen uint64) {
	r.mu.Lock()
	s := r.sessions[playerID]
	r.mu.Unlock()
	if s == nil {
		return
	}
	if !s.detachIf(gen) {
		log.Printf("🔌 stale disconnect for %s ignored", playerID)
		return
	}
	r.gateway.Disconnect(playerID)
	log.Printf("🔌 player %s disconnected", playerID)
}

// Get returns the session for a player, or nil.
func (r *Registry) Get(playerID protocol.PlayerID) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[playerID]
}

// Sessions returns a snapshot of all live sessions.
func (r *Registry) Sessions() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Players describes every participant for the GAME_START payload.
func (r *Registry) Players() []protocol.PlayerInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]protocol.PlayerInfo, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, protocol.PlayerInfo{
			PlayerID:   s.PlayerID,
			ChampionID: s.ChampionID,
			Side:       s.Side,
		})
	}
	return out
}

// Counts returns total and currently connected session counts.
func (r *Registry) Counts() (total, connected int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	total = len(r.sessions)
	for _, s := range r.sessions {
		if s.Connected() {
			connected++
		}
	}
	return total, connected
}

// Broadcast enqueues a message for every connected session, best effort.
func (r *Registry) Broadcast(msg protocol.Message) {
	for _, s := range r.Sessions() {
		s.TrySend(msg)
	}
}

// EndGame marks the match over and broadcasts the result. Further joins are
// refused with game_ended. Idempotent.
func (r *Registry) EndGame(winner protocol.TeamID) {
	r.mu.Lock()
	if r.ended {
		r.mu.Unlock()
		return
	}
	r.ended = true
	r.mu.Unlock()

	duration := time.Since(r.startTime).Seconds()
	if data, err := json.Marshal(protocol.GameEndPayload{WinningSide: winner, Duration: duration}); err == nil {
		r.Broadcast(protocol.Message{Type: protocol.MsgGameEnd, Data: data})
	}
	r.journal.Record(game.JournalGameEnded, r.world.Tick(), "", map[string]any{
		"winningSide": winner,
		"duration":    duration,
	})
	log.Printf("🏁 game over: %s wins after %.0fs", winner, duration)
}

// Ended reports whether the match is over.
func (r *Registry) Ended() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ended
}

func (r *Registry) sweepLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stopChan:
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

// sweep expires sessions disconnected longer than the expiry window: the
// champion despawns next tick and the gateway forgets the player.
func (r *Registry) sweep() {
	expiry := time.Duration(r.cfg.SessionExpirySec) * time.Second
	cutoff := time.Now().Add(-expiry)

	r.mu.Lock()
	var expired []*Session
	for id, s := range r.sessions {
		if since, off := s.idleSince(); off && since.Before(cutoff) {
			expired = append(expired, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range expired {
		r.world.QueueDespawn(s.EntityID)
		r.gateway.Expire(s.PlayerID)
		r.journal.Record(game.JournalPlayerLeft, r.world.Tick(), string(s.PlayerID), nil)
		log.Printf("⏰ session %s expired, despawning %s", s.PlayerID, s.EntityID)
	}
}
