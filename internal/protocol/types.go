// Package protocol defines the wire contract between the game server and its
// clients: message envelopes, client inputs, and entity snapshots.
//
// The encoding is JSON over an ordered reliable stream (WebSocket in this
// repo), but nothing here depends on the transport. Ticks and input sequence
// numbers are unsigned 32-bit, timestamps are milliseconds since epoch as
// 64-bit integers, coordinates travel as 32-bit floats.
package protocol

// PlayerID is an opaque stable identity assigned by the session layer.
type PlayerID string

// EntityID is unique per game for the lifetime of the entity.
// Reused ids are forbidden.
type EntityID string

// TeamID identifies which side an entity fights for.
type TeamID string

// Tick is the monotonically increasing simulation step counter. The world
// begins at tick 0 and the first simulated step produces tick 1; tick 0
// therefore doubles as the "nothing acked yet" delta baseline.
type Tick uint32

// InputSeq is the per-player monotonically increasing input counter,
// starting at 1.
type InputSeq uint32

// Sides of the arena.
const (
	TeamBlue TeamID = "blue"
	TeamRed  TeamID = "red"
)

// EntityKind is the closed tag identifying what an entity is.
type EntityKind string

const (
	KindChampion   EntityKind = "champion"
	KindMinion     EntityKind = "minion"
	KindTower      EntityKind = "tower"
	KindNexus      EntityKind = "nexus"
	KindWard       EntityKind = "ward"
	KindProjectile EntityKind = "projectile"
	KindJungleCamp EntityKind = "jungle-camp"
)

// ValidEntityKind reports whether k is one of the closed entity tags.
func ValidEntityKind(k EntityKind) bool {
	switch k {
	case KindChampion, KindMinion, KindTower, KindNexus, KindWard, KindProjectile, KindJungleCamp:
		return true
	}
	return false
}
