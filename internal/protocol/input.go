package protocol

import (
	"encoding/json"
	"math"
)

// InputKind is the closed tag identifying a client action.
type InputKind string

const (
	InputMove       InputKind = "MOVE"
	InputAttackMove InputKind = "ATTACK_MOVE"
	InputTargetUnit InputKind = "TARGET_UNIT"
	InputStop       InputKind = "STOP"
	InputAbility    InputKind = "ABILITY"
	InputLevelUp    InputKind = "LEVEL_UP"
	InputBuyItem    InputKind = "BUY_ITEM"
	InputSellItem   InputKind = "SELL_ITEM"
	InputRecall     InputKind = "RECALL"
	InputPlaceWard  InputKind = "PLACE_WARD"
	InputPing       InputKind = "PING"
	InputChat       InputKind = "CHAT"
)

// ValidInputKind reports whether k is a known input tag.
func ValidInputKind(k InputKind) bool {
	switch k {
	case InputMove, InputAttackMove, InputTargetUnit, InputStop, InputAbility,
		InputLevelUp, InputBuyItem, InputSellItem, InputRecall, InputPlaceWard,
		InputPing, InputChat:
		return true
	}
	return false
}

// MovementFamily reports whether k belongs to the movement input family,
// which shares one rate-limit bucket and is eligible for client prediction.
func MovementFamily(k InputKind) bool {
	switch k {
	case InputMove, InputAttackMove, InputTargetUnit, InputStop:
		return true
	}
	return false
}

// ClientInput is one sequenced player action.
type ClientInput struct {
	Seq        InputSeq        `json:"seq"`
	ClientTime int64           `json:"clientTime"` // ms since epoch, client clock
	Kind       InputKind       `json:"kind"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// MovePayload targets a point on the map. Used by MOVE and ATTACK_MOVE.
type MovePayload struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
}

// TargetPayload references another entity. Used by TARGET_UNIT and ABILITY
// casts with a unit target.
type TargetPayload struct {
	TargetID EntityID `json:"targetId"`
	X        float32  `json:"x,omitempty"`
	Y        float32  `json:"y,omitempty"`
}

// AbilityPayload selects an ability slot with an optional point or unit target.
type AbilityPayload struct {
	Slot     int      `json:"slot"`
	TargetID EntityID `json:"targetId,omitempty"`
	X        float32  `json:"x,omitempty"`
	Y        float32  `json:"y,omitempty"`
}

// ItemPayload references a shop item for BUY_ITEM / SELL_ITEM.
type ItemPayload struct {
	ItemID string `json:"itemId"`
}

// WardPayload places a ward at a point.
type WardPayload struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
}

// ChatPayload carries a chat line.
type ChatPayload struct {
	Text string `json:"text"`
}

// finite reports whether f is a usable coordinate.
func finite(f float32) bool {
	f64 := float64(f)
	return !math.IsNaN(f64) && !math.IsInf(f64, 0)
}

// ValidatePayload checks well-formedness of the payload for the given kind:
// coordinates must be finite and target/item ids non-empty where the kind
// requires them. It does not validate gameplay legality; that is the
// behavior's job.
func ValidatePayload(in ClientInput) bool {
	switch in.Kind {
	case InputMove, InputAttackMove:
		var p MovePayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			return false
		}
		return finite(p.X) && finite(p.Y)
	case InputTargetUnit:
		var p TargetPayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			return false
		}
		return p.TargetID != "" && finite(p.X) && finite(p.Y)
	case InputAbility:
		var p AbilityPayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			return false
		}
		return p.Slot >= 0 && finite(p.X) && finite(p.Y)
	case InputBuyItem, InputSellItem:
		var p ItemPayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			return false
		}
		return p.ItemID != ""
	case InputPlaceWard:
		var p WardPayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			return false
		}
		return finite(p.X) && finite(p.Y)
	case InputChat:
		var p ChatPayload
		return json.Unmarshal(in.Payload, &p) == nil && p.Text != ""
	case InputStop, InputLevelUp, InputRecall, InputPing:
		// No payload required.
		return true
	}
	return false
}
