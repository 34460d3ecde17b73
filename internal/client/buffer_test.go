package client

import (
	"testing"

	"riftline/internal/config"
	"riftline/internal/protocol"
)

func snapAt(id protocol.EntityID, x, y float32) protocol.EntitySnapshot {
	return protocol.EntitySnapshot{EntityID: id, Kind: protocol.KindChampion, X: x, Y: y}
}

func deltaFor(snap protocol.EntitySnapshot) protocol.EntityDelta {
	return protocol.EntityDelta{EntityID: snap.EntityID, ChangeMask: protocol.MaskAll, Data: snap}
}

func fullAt(tick protocol.Tick, ts int64, snaps ...protocol.EntitySnapshot) protocol.FullStateSnapshot {
	return protocol.FullStateSnapshot{Tick: tick, Timestamp: ts, Entities: snaps}
}

func updateAt(tick protocol.Tick, ts int64, deltas ...protocol.EntityDelta) protocol.StateUpdate {
	return protocol.StateUpdate{Tick: tick, Timestamp: ts, Deltas: deltas}
}

func TestBufferApplyFullResets(t *testing.T) {
	b := NewStateBuffer(config.DefaultBuffer())

	b.ApplyUpdate(updateAt(1, 1000, deltaFor(snapAt("e1", 1, 1))), 1050)
	b.ApplyFull(fullAt(10, 2000, snapAt("e1", 5, 5), snapAt("e2", 6, 6)), 2050)

	if b.Len() != 1 {
		t.Fatalf("len = %d, want 1 after full state", b.Len())
	}
	latest, _ := b.Latest()
	if latest.Tick != 10 || len(latest.Entities) != 2 {
		t.Errorf("latest = %+v", latest)
	}
	if off := b.ServerTimeOffset(); off != 50 {
		t.Errorf("offset = %v, want 50", off)
	}
}

func TestBufferFullStateSkipsDead(t *testing.T) {
	b := NewStateBuffer(config.DefaultBuffer())

	dead := snapAt("e2", 1, 1)
	dead.IsDead = true
	b.ApplyFull(fullAt(1, 1000, snapAt("e1", 0, 0), dead), 1000)

	latest, _ := b.Latest()
	if _, ok := latest.Entities["e2"]; ok {
		t.Error("dead entity materialized from full state")
	}
}

func TestBufferMaterializesDeltas(t *testing.T) {
	b := NewStateBuffer(config.DefaultBuffer())

	b.ApplyFull(fullAt(1, 1000, snapAt("e1", 0, 0), snapAt("e2", 10, 10)), 1000)

	// Only e1 moved; e2 must carry over into the new entry.
	if !b.ApplyUpdate(updateAt(2, 1008, deltaFor(snapAt("e1", 3, 0))), 1008) {
		t.Fatal("update rejected")
	}

	latest, _ := b.Latest()
	if latest.Entities["e1"].X != 3 {
		t.Errorf("e1.X = %v, want 3", latest.Entities["e1"].X)
	}
	if latest.Entities["e2"].X != 10 {
		t.Errorf("e2 not carried over: %+v", latest.Entities["e2"])
	}

	// The prior entry is untouched.
	oldest, _ := b.Oldest()
	if oldest.Entities["e1"].X != 0 {
		t.Errorf("prior entry mutated: %+v", oldest.Entities["e1"])
	}
}

func TestBufferDeadDeltaRemovesEntity(t *testing.T) {
	b := NewStateBuffer(config.DefaultBuffer())

	b.ApplyFull(fullAt(1, 1000, snapAt("e1", 0, 0), snapAt("e2", 10, 10)), 1000)

	dead := snapAt("e2", 10, 10)
	dead.IsDead = true
	b.ApplyUpdate(updateAt(2, 1008, deltaFor(dead)), 1008)

	latest, _ := b.Latest()
	if _, ok := latest.Entities["e2"]; ok {
		t.Error("dead entity still present")
	}
	if _, ok := latest.Entities["e1"]; !ok {
		t.Error("live entity lost")
	}
}

func TestBufferRejectsOutOfOrder(t *testing.T) {
	b := NewStateBuffer(config.DefaultBuffer())

	b.ApplyUpdate(updateAt(5, 1000, deltaFor(snapAt("e1", 1, 1))), 1000)
	if b.ApplyUpdate(updateAt(5, 1001, deltaFor(snapAt("e1", 2, 2))), 1001) {
		t.Error("duplicate tick accepted")
	}
	if b.ApplyUpdate(updateAt(3, 1002, deltaFor(snapAt("e1", 2, 2))), 1002) {
		t.Error("stale tick accepted")
	}
	if b.Len() != 1 {
		t.Errorf("len = %d, want 1", b.Len())
	}
}

func TestBufferTrimsToCapacityFloorTwo(t *testing.T) {
	cfg := config.BufferConfig{MaxSnapshots: 3, BufferDuration: 100000}
	b := NewStateBuffer(cfg)

	for i := 0; i < 10; i++ {
		ts := int64(1000 + i*8)
		b.ApplyUpdate(updateAt(protocol.Tick(i+1), ts, deltaFor(snapAt("e1", float32(i), 0))), ts)
	}
	if b.Len() != 3 {
		t.Errorf("len = %d, want 3", b.Len())
	}
	oldest, _ := b.Oldest()
	if oldest.Tick != 8 {
		t.Errorf("oldest tick = %d, want 8", oldest.Tick)
	}
}

func TestBufferTrimsByAgeKeepsTwo(t *testing.T) {
	cfg := config.BufferConfig{MaxSnapshots: 100, BufferDuration: 50}
	b := NewStateBuffer(cfg)

	// All entries are far older than the 50ms window; the floor of two wins.
	for i := 0; i < 5; i++ {
		ts := int64(1000 + i*8)
		b.ApplyUpdate(updateAt(protocol.Tick(i+1), ts, deltaFor(snapAt("e1", 0, 0))), ts)
	}
	b.ApplyUpdate(updateAt(100, 9000, deltaFor(snapAt("e1", 1, 1))), 9000)

	if b.Len() != 2 {
		t.Errorf("len = %d, want 2", b.Len())
	}
}

func TestBufferOffsetEMA(t *testing.T) {
	b := NewStateBuffer(config.DefaultBuffer())

	// First sample seeds the estimate.
	b.ApplyUpdate(updateAt(1, 1000, deltaFor(snapAt("e1", 0, 0))), 1040)
	if off := b.ServerTimeOffset(); off != 40 {
		t.Fatalf("seed offset = %v, want 40", off)
	}

	// Second sample of 60 blends in at 10%.
	b.ApplyUpdate(updateAt(2, 1008, deltaFor(snapAt("e1", 0, 0))), 1068)
	want := 0.9*40 + 0.1*60
	if off := b.ServerTimeOffset(); off != want {
		t.Errorf("offset = %v, want %v", off, want)
	}
}

func TestBufferAverageSpacing(t *testing.T) {
	b := NewStateBuffer(config.DefaultBuffer())
	if b.AverageSpacing() != 0 {
		t.Error("spacing with no entries should be 0")
	}

	for i := 0; i < 4; i++ {
		ts := int64(1000 + i*8)
		b.ApplyUpdate(updateAt(protocol.Tick(i+1), ts, deltaFor(snapAt("e1", 0, 0))), ts)
	}
	if got := b.AverageSpacing(); got != 8 {
		t.Errorf("spacing = %v, want 8", got)
	}
}
