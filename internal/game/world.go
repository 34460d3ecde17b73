package game

import (
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"

	"riftline/internal/game/spatial"
	"riftline/internal/protocol"
)

// GraveyardTicks is how many ticks a removed entity's terminal snapshot is
// retained for delta encoding. Sessions whose baseline falls further behind
// can no longer be served by deltas and must be resynced with a full state.
const GraveyardTicks = 500

// spatialCellSize is the uniform grid cell size in world units, sized close
// to the largest common query radius.
const spatialCellSize = 500

// PlayerInputs is one player's drained input batch for a tick, seq-ascending.
type PlayerInputs struct {
	Player protocol.PlayerID
	Inputs []protocol.ClientInput
}

// removedRecord keeps a dead entity's terminal snapshot for delta encoding.
type removedRecord struct {
	snap protocol.EntitySnapshot
	at   protocol.Tick
}

// World owns the live entity set and advances it one tick at a time.
//
// Exactly one tick is in progress at any time: the tick engine calls Update
// on its own goroutine and no entity mutation happens outside it. The mutex
// exists for the read paths other goroutines use (encoders after a drop,
// the HTTP stats surface, full-state snapshots on join) and for queueing
// spawns/despawns from the session layer.
type World struct {
	mu sync.RWMutex

	tick     protocol.Tick
	gameTime float64

	entities map[protocol.EntityID]*Entity
	order    []protocol.EntityID // stable id order for deterministic iteration
	usedIDs  map[protocol.EntityID]struct{}

	// Deferred mutations. Behavior adds become live next tick; removals take
	// effect at the end of the current tick. Spawns queued from outside the
	// tick loop join at the start of the next Update.
	pendingSpawns   []*Entity
	deferredAdds    []*Entity
	deferredRemoves []protocol.EntityID

	// Dirty tracking: last stored snapshot and the tick it changed.
	latest    map[protocol.EntityID]protocol.EntitySnapshot
	changedAt map[protocol.EntityID]protocol.Tick
	graveyard map[protocol.EntityID]removedRecord

	owners map[protocol.PlayerID]protocol.EntityID

	events []protocol.GameEvent

	grid    *spatial.Grid
	journal *Journal

	nextID        uint64
	width, height float64
}

// AllocID returns a fresh entity id. The counter is part of world state so
// replaying the same input batches allocates the same ids.
func (w *World) AllocID(kind protocol.EntityKind) protocol.EntityID {
	w.nextID++
	return protocol.EntityID(fmt.Sprintf("%s-%d", kind, w.nextID))
}

// NewWorld creates an empty world with the given bounds. journal may be nil.
func NewWorld(width, height float64, journal *Journal) *World {
	return &World{
		entities:  make(map[protocol.EntityID]*Entity),
		usedIDs:   make(map[protocol.EntityID]struct{}),
		latest:    make(map[protocol.EntityID]protocol.EntitySnapshot),
		changedAt: make(map[protocol.EntityID]protocol.Tick),
		graveyard: make(map[protocol.EntityID]removedRecord),
		owners:    make(map[protocol.PlayerID]protocol.EntityID),
		grid:      spatial.NewGrid(width, height, spatialCellSize),
		journal:   journal,
		width:     width,
		height:    height,
	}
}

// Bounds returns the world dimensions in units.
func (w *World) Bounds() (width, height float64) { return w.width, w.height }

// =============================================================================
// Tick advance
// =============================================================================

// Update advances the world one tick: processes the drained input batches,
// steps every live entity in stable id order, applies deferred mutations,
// and refreshes dirty tracking.
//
// A panic from an entity's Step is contained: the entity is removed and an
// entity_faulted event is emitted. Any other panic propagates and terminates
// the game; the engine never silently drops a tick.
func (w *World) Update(tick protocol.Tick, dt float64, batches []PlayerInputs) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.tick = tick
	w.gameTime += dt
	w.events = w.events[:0]

	// Externally queued spawns join the live set now; this tick's snapshot is
	// their full baseline.
	for _, e := range w.pendingSpawns {
		w.insert(e)
	}
	w.pendingSpawns = nil

	// Rebuild the spatial index from current positions.
	w.grid.Clear()
	for _, id := range w.order {
		if e := w.entities[id]; !e.Dead {
			w.grid.Insert(string(id), e.Pos.X, e.Pos.Y)
		}
	}

	// 1. Drained inputs, per player in seq order. Inputs whose owning entity
	// is missing or dead are dropped.
	for _, batch := range batches {
		eid, ok := w.owners[batch.Player]
		var ent *Entity
		if ok {
			ent = w.entities[eid]
		}
		for _, in := range batch.Inputs {
			if ent == nil || ent.Dead {
				w.journal.Record(JournalInputDropped, tick, string(batch.Player), InputDropPayload{
					Seq:    uint32(in.Seq),
					Kind:   string(in.Kind),
					Reason: dropReason(ent),
				})
				continue
			}
			ent.Behavior.HandleInput(in, w)
		}
	}

	// 2. Step every live entity. Iteration order is stable by id so replays
	// of the same batch against the same initial state are bitwise equal.
	for _, id := range w.order {
		e := w.entities[id]
		if e == nil || e.Dead {
			continue
		}
		w.stepEntity(e, dt)
	}

	// Behavior-requested removals take effect now, as terminal snapshots.
	for _, id := range w.deferredRemoves {
		if e := w.entities[id]; e != nil {
			e.Dead = true
		}
	}
	w.deferredRemoves = w.deferredRemoves[:0]

	// 4. Dirty tracking: any field-wise snapshot difference marks the entity
	// changed this tick.
	for _, id := range w.order {
		e := w.entities[id]
		snap := w.safeSnapshot(e)
		prev, seen := w.latest[id]
		if !seen || !snap.Equal(prev) {
			w.changedAt[id] = tick
			w.latest[id] = snap
		}
	}

	// Behavior additions become live next tick, but their baseline snapshot
	// is recorded now so encoders see them on the tick that created them.
	for _, e := range w.deferredAdds {
		w.insert(e)
		w.latest[e.ID] = w.safeSnapshot(e)
		w.changedAt[e.ID] = tick
	}
	w.deferredAdds = nil

	// Dead entities have been emitted with isDead=true this tick; drop them
	// from the live set and keep the terminal snapshot for delta encoding.
	w.buryDead()

	// Forget terminal snapshots old enough that any interested session has
	// either acked past them or will resync via full state.
	for id, rec := range w.graveyard {
		if tick > rec.at && tick-rec.at > GraveyardTicks {
			delete(w.graveyard, id)
		}
	}
}

func dropReason(e *Entity) string {
	if e == nil {
		return RejectNoSuchEntity
	}
	return RejectEntityDead
}

// stepEntity advances one entity, containing behavior panics.
func (w *World) stepEntity(e *Entity, dt float64) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("⚠️ entity %s (%s) faulted during step: %v", e.ID, e.Kind, r)
			e.Dead = true
			w.EmitEvent("entity_faulted", map[string]any{
				"entityId": e.ID,
				"reason":   fmt.Sprint(r),
			})
			w.journal.Record(JournalEntityFaulted, w.tick, string(e.Owner), FaultPayload{
				EntityID: string(e.ID),
				Reason:   fmt.Sprint(r),
			})
		}
	}()
	e.Behavior.Step(dt, w)
}

// safeSnapshot reads the behavior snapshot, falling back to the previously
// stored state (forced dead) if the behavior panics.
func (w *World) safeSnapshot(e *Entity) (snap protocol.EntitySnapshot) {
	defer func() {
		if r := recover(); r != nil {
			snap = w.latest[e.ID]
			snap.EntityID = e.ID
			snap.IsDead = true
			e.Dead = true
		}
	}()
	return e.snapshot()
}

// insert makes an entity live, keeping the stable id order sorted.
func (w *World) insert(e *Entity) {
	if _, exists := w.entities[e.ID]; exists {
		return
	}
	w.entities[e.ID] = e
	w.usedIDs[e.ID] = struct{}{}
	idx := sort.Search(len(w.order), func(i int) bool { return w.order[i] >= e.ID })
	w.order = append(w.order, "")
	copy(w.order[idx+1:], w.order[idx:])
	w.order[idx] = e.ID
	if e.Owner != "" {
		w.owners[e.Owner] = e.ID
	}
}

// buryDead moves dead entities from the live set to the graveyard.
func (w *World) buryDead() {
	var dead []protocol.EntityID
	for _, id := range w.order {
		if w.entities[id].Dead {
			dead = append(dead, id)
		}
	}
	for _, id := range dead {
		e := w.entities[id]
		w.graveyard[id] = removedRecord{snap: w.latest[id], at: w.changedAt[id]}
		if e.Kind == protocol.KindNexus {
			w.EmitEvent("nexus_destroyed", map[string]any{"side": e.Side})
		}
		if e.Owner != "" && w.owners[e.Owner] == id {
			delete(w.owners, e.Owner)
		}
		delete(w.entities, id)
		delete(w.latest, id)
		delete(w.changedAt, id)
		for i, oid := range w.order {
			if oid == id {
				w.order = append(w.order[:i], w.order[i+1:]...)
				break
			}
		}
		w.journal.Record(JournalEntityRemoved, w.tick, string(e.Owner), FaultPayload{EntityID: string(id)})
	}
}

// =============================================================================
// Operations exposed to behaviors (engine goroutine, inside Update only)
// =============================================================================

// Get returns the live entity with the given id, or nil.
func (w *World) Get(id protocol.EntityID) *Entity {
	return w.entities[id]
}

// Add schedules a new entity. It becomes live next tick but is visible to
// encoders starting with the tick that created it. Reused ids are forbidden
// for the lifetime of the game.
func (w *World) Add(e *Entity) error {
	if e == nil || e.ID == "" {
		return fmt.Errorf("add entity: missing id")
	}
	if _, used := w.usedIDs[e.ID]; used {
		return fmt.Errorf("add entity: id %s already used this game", e.ID)
	}
	w.usedIDs[e.ID] = struct{}{}
	w.deferredAdds = append(w.deferredAdds, e)
	return nil
}

// Remove schedules an entity for removal at the end of the current tick.
// The entity's final snapshot is emitted with isDead=true.
func (w *World) Remove(id protocol.EntityID) {
	w.deferredRemoves = append(w.deferredRemoves, id)
}

// EntitiesInRadius returns live entities within r of p.
func (w *World) EntitiesInRadius(p Vec2, r float64) []*Entity {
	var out []*Entity
	for _, sid := range w.grid.QueryRadius(p.X, p.Y, r) {
		e := w.entities[protocol.EntityID(sid)]
		if e != nil && !e.Dead && e.Pos.Dist(p) <= r {
			out = append(out, e)
		}
	}
	return out
}

// EnemiesOf returns live entities hostile to side within r of p.
func (w *World) EnemiesOf(side protocol.TeamID, p Vec2, r float64) []*Entity {
	var out []*Entity
	for _, e := range w.EntitiesInRadius(p, r) {
		if e.Side != side {
			out = append(out, e)
		}
	}
	return out
}

// EmitEvent appends a tick-local event, delivered to clients with this
// tick's state update in emission order.
func (w *World) EmitEvent(kind string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		raw = nil
	}
	w.events = append(w.events, protocol.GameEvent{Kind: kind, Payload: raw})
}

// =============================================================================
// Session-layer operations (any goroutine)
// =============================================================================

// QueueSpawn schedules an entity to join the live set at the start of the
// next tick. Used by the session layer when a player joins.
func (w *World) QueueSpawn(e *Entity) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if e == nil || e.ID == "" {
		return fmt.Errorf("spawn: missing id")
	}
	if _, used := w.usedIDs[e.ID]; used {
		return fmt.Errorf("spawn: id %s already used this game", e.ID)
	}
	w.usedIDs[e.ID] = struct{}{}
	w.pendingSpawns = append(w.pendingSpawns, e)
	return nil
}

// QueueDespawn schedules an entity's removal on the next tick. Used when a
// session expires.
func (w *World) QueueDespawn(id protocol.EntityID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.deferredRemoves = append(w.deferredRemoves, id)
}

// =============================================================================
// Read surface (encoders, stats, full-state snapshots)
// =============================================================================

// Tick returns the last completed tick.
func (w *World) Tick() protocol.Tick {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.tick
}

// GameTime returns simulated seconds since game start.
func (w *World) GameTime() float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.gameTime
}

// EntityCount returns the number of live entities.
func (w *World) EntityCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.entities)
}

// ControlledEntity returns the entity id owned by the given player.
func (w *World) ControlledEntity(p protocol.PlayerID) (protocol.EntityID, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	id, ok := w.owners[p]
	return id, ok
}

// ChangedSince returns snapshots of every entity whose state changed after
// the given tick, including terminal isDead snapshots of removed entities.
// Results are sorted by entity id.
func (w *World) ChangedSince(since protocol.Tick) []protocol.EntitySnapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()

	var out []protocol.EntitySnapshot
	for id, at := range w.changedAt {
		if at > since {
			out = append(out, w.latest[id])
		}
	}
	for _, rec := range w.graveyard {
		if rec.at > since {
			out = append(out, rec.snap)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out
}

// LiveSnapshots returns the full live entity set, sorted by id. Used for
// full-state snapshots on join and reconnect.
func (w *World) LiveSnapshots() []protocol.EntitySnapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]protocol.EntitySnapshot, 0, len(w.order))
	for _, id := range w.order {
		if snap, ok := w.latest[id]; ok {
			out = append(out, snap)
		}
	}
	return out
}

// Events returns a copy of the events emitted during the last tick.
func (w *World) Events() []protocol.GameEvent {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]protocol.GameEvent, len(w.events))
	copy(out, w.events)
	return out
}
