package session

import (
	"encoding/json"
	"log"
	"sync/atomic"
	"time"

	"riftline/internal/game"
	"riftline/internal/protocol"
)

// VisibilityPolicy decides which entities a session may see. The viewer's own
// controlled entity bypasses the policy and is always delivered.
type VisibilityPolicy interface {
	Visible(viewer *Session, snap protocol.EntitySnapshot) bool
}

// AllVisible delivers everything. The default until fog of war lands.
type AllVisible struct{}

func (AllVisible) Visible(*Session, protocol.EntitySnapshot) bool { return true }

// Encoder fans the per-tick world state out to every connected session as a
// delta against that session's last acked tick. Runs on the engine goroutine;
// all sends are non-blocking.
type Encoder struct {
	registry *Registry
	gateway  *game.Gateway
	policy   VisibilityPolicy

	updatesSent    atomic.Uint64
	updatesDropped atomic.Uint64
	bytesSent      atomic.Uint64

	// onEmit is an optional metrics hook: delta count and encoded size per
	// session update.
	onEmit func(deltas int, bytes int, dropped bool)
}

// NewEncoder creates a snapshot encoder. policy may be nil for AllVisible.
func NewEncoder(registry *Registry, gateway *game.Gateway, policy VisibilityPolicy) *Encoder {
	if policy == nil {
		policy = AllVisible{}
	}
	return &Encoder{registry: registry, gateway: gateway, policy: policy}
}

// SetEmitHook installs a metrics callback. Call before the engine starts.
func (enc *Encoder) SetEmitHook(fn func(deltas int, bytes int, dropped bool)) { enc.onEmit = fn }

// Emit implements game.SnapshotEmitter: one StateUpdate per connected
// session. A session whose send buffer is full loses this tick's update and
// keeps its old delta baseline, so the next update covers the gap.
func (enc *Encoder) Emit(tick protocol.Tick, w *game.World) {
	sessions := enc.registry.Sessions()
	if len(sessions) == 0 {
		return
	}

	now := time.Now().UnixMilli()
	gameTime := w.GameTime()
	events := w.Events()

	acks := make(map[protocol.PlayerID]protocol.InputSeq, len(sessions))
	for _, s := range sessions {
		acks[s.PlayerID] = enc.gateway.LastAcked(s.PlayerID)
	}

	for _, s := range sessions {
		if !s.Connected() {
			continue
		}

		ack := s.LastAckedTick()
		if tick > ack && tick-ack > game.GraveyardTicks {
			// The baseline predates the graveyard window, so a delta could
			// miss terminal snapshots already purged. Resync instead.
			enc.SendFullState(s, w)
			continue
		}

		changed := w.ChangedSince(ack)
		deltas := make([]protocol.EntityDelta, 0, len(changed))
		for _, snap := range changed {
			if snap.EntityID != s.EntityID && !enc.policy.Visible(s, snap) {
				continue
			}
			deltas = append(deltas, protocol.EntityDelta{
				EntityID:   snap.EntityID,
				ChangeMask: protocol.MaskAll,
				Data:       snap,
			})
		}

		update := protocol.StateUpdate{
			Tick:      tick,
			Timestamp: now,
			GameTime:  gameTime,
			InputAcks: acks,
			Deltas:    deltas,
			Events:    events,
		}
		data, err := json.Marshal(update)
		if err != nil {
			log.Printf("⚠️ encode state update for %s: %v", s.PlayerID, err)
			continue
		}

		if s.TrySend(protocol.Message{Type: protocol.MsgStateUpdate, Data: data}) {
			s.advanceAck(tick)
			enc.updatesSent.Add(1)
			enc.bytesSent.Add(uint64(len(data)))
			if enc.onEmit != nil {
				enc.onEmit(len(deltas), len(data), false)
			}
		} else {
			enc.updatesDropped.Add(1)
			if enc.onEmit != nil {
				enc.onEmit(len(deltas), len(data), true)
			}
		}
	}

	enc.checkGameEnd(events)
}

// checkGameEnd ends the match when a nexus falls.
func (enc *Encoder) checkGameEnd(events []protocol.GameEvent) {
	for _, ev := range events {
		if ev.Kind != "nexus_destroyed" {
			continue
		}
		var p struct {
			Side protocol.TeamID `json:"side"`
		}
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			continue
		}
		winner := protocol.TeamBlue
		if p.Side == protocol.TeamBlue {
			winner = protocol.TeamRed
		}
		enc.registry.EndGame(winner)
	}
}

// SendFullState delivers the complete visible entity set to one session and
// rebaselines its delta tracking at the snapshot tick. Used on join and on
// reconnect.
func (enc *Encoder) SendFullState(s *Session, w *game.World) bool {
	tick := w.Tick()
	entities := w.LiveSnapshots()
	visible := make([]protocol.EntitySnapshot, 0, len(entities))
	for _, snap := range entities {
		if snap.EntityID == s.EntityID || enc.policy.Visible(s, snap) {
			visible = append(visible, snap)
		}
	}

	full := protocol.FullStateSnapshot{
		Tick:      tick,
		Timestamp: time.Now().UnixMilli(),
		Entities:  visible,
		Events:    nil,
	}
	data, err := json.Marshal(full)
	if err != nil {
		log.Printf("⚠️ encode full state for %s: %v", s.PlayerID, err)
		return false
	}
	if !s.TrySend(protocol.Message{Type: protocol.MsgFullState, Data: data}) {
		return false
	}
	s.resetAck(tick)
	return true
}

// Stats returns encoder counters.
func (enc *Encoder) Stats() (sent, dropped, bytes uint64) {
	return enc.updatesSent.Load(), enc.updatesDropped.Load(), enc.bytesSent.Load()
}
