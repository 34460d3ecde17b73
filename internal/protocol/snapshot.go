package protocol

import (
	"bytes"
	"encoding/json"
)

// EntitySnapshot is the value record the encoder serializes for one entity.
// Kind-specific gameplay state travels in Payload, opaque to the netcode core.
type EntitySnapshot struct {
	EntityID EntityID        `json:"entityId"`
	Kind     EntityKind      `json:"kind"`
	Side     TeamID          `json:"side"`
	X        float32         `json:"x"`
	Y        float32         `json:"y"`
	IsDead   bool            `json:"isDead,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// Equal compares two snapshots field-wise. Any difference means the entity
// changed this tick and must be re-sent.
func (s EntitySnapshot) Equal(o EntitySnapshot) bool {
	return s.EntityID == o.EntityID &&
		s.Kind == o.Kind &&
		s.Side == o.Side &&
		s.X == o.X &&
		s.Y == o.Y &&
		s.IsDead == o.IsDead &&
		bytes.Equal(s.Payload, o.Payload)
}

// Change mask bits. The encoder currently always sends the full snapshot and
// sets MaskAll; per-field masking is reserved for a later compression pass.
const (
	MaskPosition uint32 = 1 << iota
	MaskSide
	MaskDead
	MaskPayload

	MaskAll = MaskPosition | MaskSide | MaskDead | MaskPayload
)

// EntityDelta is one changed entity inside a StateUpdate.
type EntityDelta struct {
	EntityID   EntityID       `json:"entityId"`
	ChangeMask uint32         `json:"changeMask"`
	Data       EntitySnapshot `json:"data"`
}

// GameEvent is a tick-local event emitted by entity behaviors.
type GameEvent struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// FullStateSnapshot carries the complete visible entity set. Sent on join and
// on reconnection with a stale last-acked tick.
type FullStateSnapshot struct {
	Tick      Tick             `json:"tick"`
	Timestamp int64            `json:"timestamp"` // server clock, ms since epoch
	Entities  []EntitySnapshot `json:"entities"`
	Events    []GameEvent      `json:"events"`
}

// StateUpdate is the per-tick delta: entities changed since the session's last
// acked tick plus the latest processed input sequence per player.
type StateUpdate struct {
	Tick      Tick                  `json:"tick"`
	Timestamp int64                 `json:"timestamp"`
	GameTime  float64               `json:"gameTime"` // seconds since game start
	InputAcks map[PlayerID]InputSeq `json:"inputAcks"`
	Deltas    []EntityDelta         `json:"deltas"`
	Events    []GameEvent           `json:"events"`
}
