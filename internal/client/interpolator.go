package client

import (
	"riftline/internal/config"
	"riftline/internal/game"
	"riftline/internal/protocol"
)

// RenderSource tags where a rendered position came from.
type RenderSource string

const (
	SourceInterpolated RenderSource = "interpolated"
	SourcePredicted    RenderSource = "predicted"
)

// RenderState is the per-entity output handed to the renderer.
type RenderState struct {
	EntityID protocol.EntityID
	Position game.Vec2
	Snapshot protocol.EntitySnapshot // nearer entry's snapshot, for discrete fields
	Source   RenderSource
	Factor   float64 // blend factor actually used, always in [0,1]
}

// Interpolator renders remote entities a fixed delay behind arrival so there
// is almost always a pair of buffered states to blend between.
type Interpolator struct {
	buffer *StateBuffer
	delay  int64 // ms
}

// NewInterpolator creates an interpolator over the given buffer.
func NewInterpolator(buffer *StateBuffer, cfg config.PredictionConfig) *Interpolator {
	return &Interpolator{buffer: buffer, delay: int64(cfg.InterpolationDelayMs)}
}

// Delay returns the interpolation delay in ms.
func (ip *Interpolator) Delay() int64 { return ip.delay }

// Sample computes the entity's position at localNow minus the interpolation
// delay. The result is always finite; the factor is always in [0,1].
func (ip *Interpolator) Sample(id protocol.EntityID, localNow int64) (RenderState, bool) {
	target := localNow - ip.delay
	before, after, hasBefore, hasAfter := ip.buffer.Bracket(target)

	switch {
	case !hasBefore && !hasAfter:
		return RenderState{}, false
	case !hasBefore:
		// Target precedes the whole buffer: hold the oldest known state.
		snap, ok := after.Entities[id]
		if !ok {
			return RenderState{}, false
		}
		return renderFrom(id, snap, 0), true
	case !hasAfter:
		// Target is past the newest state: hold it.
		snap, ok := before.Entities[id]
		if !ok {
			return RenderState{}, false
		}
		return renderFrom(id, snap, 1), true
	}

	from, okFrom := before.Entities[id]
	to, okTo := after.Entities[id]
	if !okFrom && !okTo {
		return RenderState{}, false
	}
	if !okFrom {
		// Entity appeared between the two entries.
		return renderFrom(id, to, 1), true
	}
	if !okTo {
		// Entity vanished; hold its last known state.
		return renderFrom(id, from, 0), true
	}

	span := after.ReceivedAt - before.ReceivedAt
	u := 0.0
	if span > 0 {
		u = float64(target-before.ReceivedAt) / float64(span)
		if u < 0 {
			u = 0
		} else if u > 1 {
			u = 1
		}
	}

	pos := game.Vec2{X: float64(from.X), Y: float64(from.Y)}.Lerp(
		game.Vec2{X: float64(to.X), Y: float64(to.Y)}, u)

	// Discrete fields come from the nearer entry.
	snap := from
	if u > 0.5 {
		snap = to
	}
	return RenderState{
		EntityID: id,
		Position: pos,
		Snapshot: snap,
		Source:   SourceInterpolated,
		Factor:   u,
	}, true
}

func renderFrom(id protocol.EntityID, snap protocol.EntitySnapshot, factor float64) RenderState {
	return RenderState{
		EntityID: id,
		Position: game.Vec2{X: float64(snap.X), Y: float64(snap.Y)},
		Snapshot: snap,
		Source:   SourceInterpolated,
		Factor:   factor,
	}
}
