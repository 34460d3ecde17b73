package game

import (
	"encoding/json"

	"riftline/internal/protocol"
)

// StepToward moves pos toward target at the given speed over dt seconds,
// stopping exactly on the target instead of overshooting. Pure function:
// client prediction and the server champion behavior share it so that
// reconciliation converges.
func StepToward(pos, target Vec2, speed, dt float64) Vec2 {
	delta := target.Sub(pos)
	dist := delta.Len()
	if dist == 0 {
		return pos
	}
	step := speed * dt
	if step >= dist {
		return target
	}
	return pos.Add(delta.Scale(step / dist))
}

// ApplyInput applies one movement-family input to pos for dt seconds and
// returns the new position. Non-movement inputs and malformed payloads leave
// pos unchanged. Pure function of its arguments; both sides of the wire may
// call it.
func ApplyInput(in protocol.ClientInput, pos Vec2, speed, dt float64) Vec2 {
	switch in.Kind {
	case protocol.InputMove, protocol.InputAttackMove:
		var p protocol.MovePayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			return pos
		}
		target := Vec2{X: float64(p.X), Y: float64(p.Y)}
		if !target.Finite() {
			return pos
		}
		return StepToward(pos, target, speed, dt)
	case protocol.InputTargetUnit:
		// Chasing a unit needs its live position; the pure form falls back to
		// the point the client observed at submit time.
		var p protocol.TargetPayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			return pos
		}
		target := Vec2{X: float64(p.X), Y: float64(p.Y)}
		if !target.Finite() {
			return pos
		}
		return StepToward(pos, target, speed, dt)
	case protocol.InputStop:
		return pos
	}
	return pos
}

// MoveTarget extracts the destination of a movement-family input, if any.
func MoveTarget(in protocol.ClientInput) (Vec2, bool) {
	switch in.Kind {
	case protocol.InputMove, protocol.InputAttackMove:
		var p protocol.MovePayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			return Vec2{}, false
		}
		t := Vec2{X: float64(p.X), Y: float64(p.Y)}
		return t, t.Finite()
	case protocol.InputTargetUnit:
		var p protocol.TargetPayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			return Vec2{}, false
		}
		t := Vec2{X: float64(p.X), Y: float64(p.Y)}
		return t, t.Finite()
	}
	return Vec2{}, false
}
