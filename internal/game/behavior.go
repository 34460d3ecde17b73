package game

import (
	"encoding/json"

	"riftline/internal/protocol"
)

// Default gameplay tuning for the built-in behaviors. Full champion kits are
// injected by the gameplay layer; these cover what the netcode substrate
// itself needs to run and test.
const (
	DefaultMoveSpeed      = 325.0 // units per second
	DefaultChampionHealth = 600
	DefaultRecallDuration = 8.0 // seconds
	projectileSpeed       = 1200.0
	projectileHitRadius   = 40.0
	wardLifetime          = 90.0 // seconds
)

// Damageable is implemented by behaviors that can lose health.
type Damageable interface {
	TakeDamage(amount int, w *World)
}

// =============================================================================
// Champion
// =============================================================================

// championState is the wire payload for a champion entity.
type championState struct {
	ChampionID string `json:"championId"`
	Health     int    `json:"health"`
	MaxHealth  int    `json:"maxHealth"`
	Level      int    `json:"level"`
	Gold       int    `json:"gold"`
	Recalling  bool   `json:"recalling"`
}

// Champion is the player-controlled behavior: point-to-point movement shared
// with client prediction, a tick-counted recall timer, and simple ability,
// shop and ward handling so every input kind has a server-side effect.
type Champion struct {
	entity     *Entity
	championID string
	speed      float64

	target    *Vec2
	spawn     Vec2
	recall    float64 // seconds remaining; 0 means not recalling
	health    int
	maxHealth int
	level     int
	gold      int
}

// NewChampion creates a champion behavior bound to its entity.
func NewChampion(e *Entity, championID string, spawn Vec2) *Champion {
	e.Pos = spawn
	return &Champion{
		entity:     e,
		championID: championID,
		speed:      DefaultMoveSpeed,
		spawn:      spawn,
		health:     DefaultChampionHealth,
		maxHealth:  DefaultChampionHealth,
		level:      1,
		gold:       500,
	}
}

// MoveSpeed returns the champion's current movement speed.
func (c *Champion) MoveSpeed() float64 { return c.speed }

// HandleInput applies one accepted input. Movement-family inputs cancel an
// in-progress recall, matching what the client predicts locally.
func (c *Champion) HandleInput(in protocol.ClientInput, w *World) {
	switch in.Kind {
	case protocol.InputMove, protocol.InputAttackMove, protocol.InputTargetUnit:
		if t, ok := MoveTarget(in); ok {
			c.target = &t
			c.recall = 0
		}
	case protocol.InputStop:
		c.target = nil
		c.recall = 0
	case protocol.InputRecall:
		c.target = nil
		c.recall = DefaultRecallDuration
	case protocol.InputLevelUp:
		c.level++
	case protocol.InputBuyItem:
		var p protocol.ItemPayload
		if json.Unmarshal(in.Payload, &p) == nil && c.gold >= 300 {
			c.gold -= 300
			w.EmitEvent("item_bought", map[string]any{"entityId": c.entity.ID, "itemId": p.ItemID})
		}
	case protocol.InputSellItem:
		var p protocol.ItemPayload
		if json.Unmarshal(in.Payload, &p) == nil {
			c.gold += 150
			w.EmitEvent("item_sold", map[string]any{"entityId": c.entity.ID, "itemId": p.ItemID})
		}
	case protocol.InputAbility:
		var p protocol.AbilityPayload
		if json.Unmarshal(in.Payload, &p) != nil {
			return
		}
		target := Vec2{X: float64(p.X), Y: float64(p.Y)}
		if !target.Finite() {
			return
		}
		proj := &Entity{
			ID:   w.AllocID(protocol.KindProjectile),
			Kind: protocol.KindProjectile,
			Side: c.entity.Side,
			Pos:  c.entity.Pos,
		}
		proj.Behavior = NewProjectile(proj, c.entity.ID, target, 60)
		_ = w.Add(proj)
	case protocol.InputPlaceWard:
		var p protocol.WardPayload
		if json.Unmarshal(in.Payload, &p) != nil {
			return
		}
		pos := Vec2{X: float64(p.X), Y: float64(p.Y)}
		if !pos.Finite() {
			return
		}
		ward := &Entity{
			ID:   w.AllocID(protocol.KindWard),
			Kind: protocol.KindWard,
			Side: c.entity.Side,
			Pos:  pos,
		}
		ward.Behavior = NewWard(ward, c.entity.ID)
		_ = w.Add(ward)
	case protocol.InputPing:
		w.EmitEvent("map_ping", map[string]any{"entityId": c.entity.ID})
	case protocol.InputChat:
		var p protocol.ChatPayload
		if json.Unmarshal(in.Payload, &p) == nil {
			w.EmitEvent("chat", map[string]any{"entityId": c.entity.ID, "text": p.Text})
		}
	}
}

// Step advances movement and the recall timer. Recall is a scalar counted
// down by dt, never a wall-clock wait.
func (c *Champion) Step(dt float64, w *World) {
	if c.recall > 0 {
		c.recall -= dt
		if c.recall <= 0 {
			c.recall = 0
			c.entity.Pos = c.spawn
			w.EmitEvent("recall_complete", map[string]any{"entityId": c.entity.ID})
		}
		return
	}

	if c.target != nil {
		c.entity.Pos = StepToward(c.entity.Pos, *c.target, c.speed, dt)
		if c.entity.Pos == *c.target {
			c.target = nil
		}
	}
}

// TakeDamage reduces health; reaching zero kills the entity.
func (c *Champion) TakeDamage(amount int, w *World) {
	c.health -= amount
	if c.health <= 0 {
		c.health = 0
		c.entity.Dead = true
		w.EmitEvent("champion_died", map[string]any{"entityId": c.entity.ID})
	}
}

// Snapshot returns the champion's wire payload.
func (c *Champion) Snapshot() protocol.EntitySnapshot {
	payload, _ := json.Marshal(championState{
		ChampionID: c.championID,
		Health:     c.health,
		MaxHealth:  c.maxHealth,
		Level:      c.level,
		Gold:       c.gold,
		Recalling:  c.recall > 0,
	})
	return protocol.EntitySnapshot{Payload: payload}
}

func (c *Champion) IsCollidable() bool { return true }
func (c *Champion) Radius() float64    { return 32 }

// =============================================================================
// Projectile
// =============================================================================

// projectileState is the wire payload for a projectile.
type projectileState struct {
	CasterID protocol.EntityID `json:"casterId"`
	TargetX  float32           `json:"targetX"`
	TargetY  float32           `json:"targetY"`
}

// Projectile flies to a point and damages enemies on arrival. The caster is
// held as a weak EntityID and resolved through the World; the caster may die
// or be removed while the projectile is in flight.
type Projectile struct {
	entity *Entity
	caster protocol.EntityID
	target Vec2
	speed  float64
	damage int
}

// NewProjectile creates a projectile behavior bound to its entity.
func NewProjectile(e *Entity, caster protocol.EntityID, target Vec2, damage int) *Projectile {
	return &Projectile{
		entity: e,
		caster: caster,
		target: target,
		speed:  projectileSpeed,
		damage: damage,
	}
}

// HandleInput is a no-op; projectiles are not controlled.
func (p *Projectile) HandleInput(protocol.ClientInput, *World) {}

// Step flies toward the target and detonates on arrival.
func (p *Projectile) Step(dt float64, w *World) {
	p.entity.Pos = StepToward(p.entity.Pos, p.target, p.speed, dt)
	if p.entity.Pos != p.target {
		return
	}

	for _, victim := range w.EnemiesOf(p.entity.Side, p.entity.Pos, projectileHitRadius) {
		if d, ok := victim.Behavior.(Damageable); ok {
			d.TakeDamage(p.damage, w)
		}
	}
	w.EmitEvent("projectile_hit", map[string]any{
		"casterId": p.caster,
		"x":        p.target.X,
		"y":        p.target.Y,
	})
	w.Remove(p.entity.ID)
}

// Snapshot returns the projectile's wire payload.
func (p *Projectile) Snapshot() protocol.EntitySnapshot {
	payload, _ := json.Marshal(projectileState{
		CasterID: p.caster,
		TargetX:  float32(p.target.X),
		TargetY:  float32(p.target.Y),
	})
	return protocol.EntitySnapshot{Payload: payload}
}

func (p *Projectile) IsCollidable() bool { return false }
func (p *Projectile) Radius() float64    { return 8 }

// =============================================================================
// Ward
// =============================================================================

// wardState is the wire payload for a ward. Remaining lifetime is
// intentionally excluded: it changes every tick and is informational only,
// so including it would mark the ward dirty on every tick.
type wardState struct {
	OwnerID protocol.EntityID `json:"ownerId"`
}

// Ward sits still and expires after a fixed lifetime.
type Ward struct {
	entity *Entity
	owner  protocol.EntityID
	ttl    float64
}

// NewWard creates a ward behavior bound to its entity.
func NewWard(e *Entity, owner protocol.EntityID) *Ward {
	return &Ward{entity: e, owner: owner, ttl: wardLifetime}
}

func (wd *Ward) HandleInput(protocol.ClientInput, *World) {}

// Step counts down the lifetime.
func (wd *Ward) Step(dt float64, w *World) {
	wd.ttl -= dt
	if wd.ttl <= 0 {
		w.Remove(wd.entity.ID)
	}
}

// Snapshot returns the ward's wire payload.
func (wd *Ward) Snapshot() protocol.EntitySnapshot {
	payload, _ := json.Marshal(wardState{OwnerID: wd.owner})
	return protocol.EntitySnapshot{Payload: payload}
}

func (wd *Ward) IsCollidable() bool { return false }
func (wd *Ward) Radius() float64    { return 12 }

// =============================================================================
// Structure (tower / nexus / jungle camp anchor)
// =============================================================================

// structureState is the wire payload for a static structure.
type structureState struct {
	Health    int `json:"health"`
	MaxHealth int `json:"maxHealth"`
}

// Structure is a static damageable entity. A nexus dying ends the game; the
// world emits nexus_destroyed when it leaves the live set.
type Structure struct {
	entity    *Entity
	health    int
	maxHealth int
	radius    float64
}

// NewStructure creates a static behavior bound to its entity.
func NewStructure(e *Entity, health int, radius float64) *Structure {
	return &Structure{entity: e, health: health, maxHealth: health, radius: radius}
}

func (s *Structure) HandleInput(protocol.ClientInput, *World) {}

// Step is a no-op; structures only change through damage.
func (s *Structure) Step(float64, *World) {}

// TakeDamage reduces health; reaching zero kills the structure.
func (s *Structure) TakeDamage(amount int, w *World) {
	s.health -= amount
	if s.health <= 0 {
		s.health = 0
		s.entity.Dead = true
	}
}

// Snapshot returns the structure's wire payload.
func (s *Structure) Snapshot() protocol.EntitySnapshot {
	payload, _ := json.Marshal(structureState{Health: s.health, MaxHealth: s.maxHealth})
	return protocol.EntitySnapshot{Payload: payload}
}

func (s *Structure) IsCollidable() bool { return true }
func (s *Structure) Radius() float64    { return s.radius }
