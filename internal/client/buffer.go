package client

import (
	"sync"

	"riftline/internal/config"
	"riftline/internal/protocol"
)

// offset EMA weights: heavy history, light new sample.
const (
	offsetKeep  = 0.9
	offsetBlend = 0.1
)

// BufferEntry is one buffered tick: the materialized entity map plus timing.
type BufferEntry struct {
	Tick            protocol.Tick
	ServerTimestamp int64 // server clock, ms
	ReceivedAt      int64 // local clock, ms
	Entities        map[protocol.EntityID]protocol.EntitySnapshot
	Events          []protocol.GameEvent
}

// StateBuffer holds recent server states in arrival order. Deltas are
// materialized against the prior entry so every entry carries the full
// entity map for its tick.
type StateBuffer struct {
	mu      sync.Mutex
	cfg     config.BufferConfig
	entries []BufferEntry

	serverTimeOffset float64 // localNow - serverTimestamp, ms
	offsetValid      bool
}

// NewStateBuffer creates an empty buffer.
func NewStateBuffer(cfg config.BufferConfig) *StateBuffer {
	return &StateBuffer{cfg: cfg}
}

// ApplyFull resets the buffer from a full snapshot and rebases the server
// time offset.
func (b *StateBuffer) ApplyFull(full protocol.FullStateSnapshot, localNow int64) {
	entities := make(map[protocol.EntityID]protocol.EntitySnapshot, len(full.Entities))
	for _, snap := range full.Entities {
		if snap.IsDead {
			continue
		}
		entities[snap.EntityID] = snap
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = b.entries[:0]
	b.entries = append(b.entries, BufferEntry{
		Tick:            full.Tick,
		ServerTimestamp: full.Timestamp,
		ReceivedAt:      localNow,
		Entities:        entities,
		Events:          full.Events,
	})
	b.serverTimeOffset = float64(localNow - full.Timestamp)
	b.offsetValid = true
}

// ApplyUpdate materializes a delta into a new entry. Out-of-order ticks are
// ignored; the server sends updates in tick order per session.
func (b *StateBuffer) ApplyUpdate(update protocol.StateUpdate, localNow int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	var prior map[protocol.EntityID]protocol.EntitySnapshot
	if n := len(b.entries); n > 0 {
		last := &b.entries[n-1]
		if update.Tick <= last.Tick {
			return false
		}
		prior = last.Entities
	}

	entities := make(map[protocol.EntityID]protocol.EntitySnapshot, len(prior)+len(update.Deltas))
	for id, snap := range prior {
		entities[id] = snap
	}
	for _, d := range update.Deltas {
		if d.Data.IsDead {
			delete(entities, d.EntityID)
			continue
		}
		entities[d.EntityID] = d.Data
	}

	b.entries = append(b.entries, BufferEntry{
		Tick:            update.Tick,
		ServerTimestamp: update.Timestamp,
		ReceivedAt:      localNow,
		Entities:        entities,
		Events:          update.Events,
	})

	sample := float64(localNow - update.Timestamp)
	if b.offsetValid {
		b.serverTimeOffset = offsetKeep*b.serverTimeOffset + offsetBlend*sample
	} else {
		b.serverTimeOffset = sample
		b.offsetValid = true
	}

	b.trim(localNow)
	return true
}

// trim drops entries past capacity or age, always keeping at least two.
func (b *StateBuffer) trim(localNow int64) {
	for len(b.entries) > 2 && len(b.entries) > b.cfg.MaxSnapshots {
		b.entries = b.entries[1:]
	}
	maxAge := int64(b.cfg.BufferDuration)
	for len(b.entries) > 2 && localNow-b.entries[0].ReceivedAt > maxAge {
		b.entries = b.entries[1:]
	}
}

// Bracket returns the entries surrounding the target local time: the newest
// entry at or before it and the oldest entry after it. Entries are returned
// by value; their maps are immutable once buffered.
func (b *StateBuffer) Bracket(targetLocal int64) (before, after BufferEntry, hasBefore, hasAfter bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.entries {
		e := b.entries[i]
		if e.ReceivedAt <= targetLocal {
			before = e
			hasBefore = true
		} else {
			after = e
			hasAfter = true
			break
		}
	}
	return before, after, hasBefore, hasAfter
}

// Latest returns the newest entry, if any.
func (b *StateBuffer) Latest() (BufferEntry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.entries) == 0 {
		return BufferEntry{}, false
	}
	return b.entries[len(b.entries)-1], true
}

// Oldest returns the oldest entry, if any.
func (b *StateBuffer) Oldest() (BufferEntry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.entries) == 0 {
		return BufferEntry{}, false
	}
	return b.entries[0], true
}

// Len returns the number of buffered entries.
func (b *StateBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// ServerTimeOffset returns the current local-minus-server clock estimate.
func (b *StateBuffer) ServerTimeOffset() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.serverTimeOffset
}

// AverageSpacing returns the mean arrival gap between entries in ms, or 0
// with fewer than two entries.
func (b *StateBuffer) AverageSpacing() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.entries) < 2 {
		return 0
	}
	span := b.entries[len(b.entries)-1].ReceivedAt - b.entries[0].ReceivedAt
	return float64(span) / float64(len(b.entries)-1)
}
