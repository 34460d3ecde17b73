package game

import (
	"riftline/internal/protocol"
)

// EntityBehavior is the contract through which all gameplay content is
// injected into the netcode core. The World advances each live entity by
// calling Step once per tick; controlled entities additionally receive
// validated player inputs through HandleInput.
//
// Behaviors hold a back reference to their own Entity but must not mutate
// other entities except through World-mediated operations. References to
// other entities (a projectile's caster, a ward's owner) are held as
// EntityIDs and resolved through the World, never as direct pointers.
type EntityBehavior interface {
	// Step advances the entity by dt simulated seconds.
	Step(dt float64, w *World)

	// HandleInput applies one accepted player input. Only called for the
	// entity controlled by the input's player.
	HandleInput(in protocol.ClientInput, w *World)

	// Snapshot returns the entity's wire state at the end of the tick.
	// The encoder compares consecutive results field-wise for dirty tracking.
	Snapshot() protocol.EntitySnapshot

	// IsCollidable reports whether the entity blocks movement.
	IsCollidable() bool

	// Radius returns the entity's collision radius in world units.
	Radius() float64
}

// Entity is one live object in the arena. The World exclusively owns Entity
// records; all mutation happens inside World.Update.
type Entity struct {
	ID   protocol.EntityID
	Kind protocol.EntityKind
	Side protocol.TeamID
	Pos  Vec2
	Dead bool

	// Owner is the controlling player for champion entities, empty otherwise.
	Owner protocol.PlayerID

	Behavior EntityBehavior
}

// snapshot asks the behavior for the current wire state and stamps the core
// fields the behavior does not own.
func (e *Entity) snapshot() protocol.EntitySnapshot {
	snap := e.Behavior.Snapshot()
	snap.EntityID = e.ID
	snap.Kind = e.Kind
	snap.Side = e.Side
	snap.X = float32(e.Pos.X)
	snap.Y = float32(e.Pos.Y)
	snap.IsDead = e.Dead
	return snap
}
