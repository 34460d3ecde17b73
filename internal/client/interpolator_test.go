package client

import (
	"math"
	"testing"

	"riftline/internal/config"
)

func newTestInterpolator() (*Interpolator, *StateBuffer) {
	buf := NewStateBuffer(config.DefaultBuffer())
	return NewInterpolator(buf, config.DefaultPrediction()), buf
}

func TestInterpolatorBlendsBetweenEntries(t *testing.T) {
	ip, buf := newTestInterpolator()

	buf.ApplyUpdate(updateAt(1, 1000, deltaFor(snapAt("e1", 0, 0))), 1000)
	buf.ApplyUpdate(updateAt(2, 1100, deltaFor(snapAt("e1", 100, 0))), 1100)

	// Render at local 1150: target = 1150-100 = 1050, halfway between entries.
	rs, ok := ip.Sample("e1", 1150)
	if !ok {
		t.Fatal("no sample")
	}
	if rs.Factor != 0.5 {
		t.Errorf("factor = %v, want 0.5", rs.Factor)
	}
	if rs.Position.X != 50 || rs.Position.Y != 0 {
		t.Errorf("pos = %+v, want (50,0)", rs.Position)
	}
	if rs.Source != SourceInterpolated {
		t.Errorf("source = %s", rs.Source)
	}
}

func TestInterpolatorHoldsOldestBeforeBuffer(t *testing.T) {
	ip, buf := newTestInterpolator()
	buf.ApplyUpdate(updateAt(1, 5000, deltaFor(snapAt("e1", 7, 9))), 5000)

	// Target 900 precedes the only entry.
	rs, ok := ip.Sample("e1", 1000)
	if !ok {
		t.Fatal("no sample")
	}
	if rs.Factor != 0 || rs.Position.X != 7 || rs.Position.Y != 9 {
		t.Errorf("hold-oldest = %+v", rs)
	}
}

func TestInterpolatorHoldsNewestPastBuffer(t *testing.T) {
	ip, buf := newTestInterpolator()
	buf.ApplyUpdate(updateAt(1, 1000, deltaFor(snapAt("e1", 7, 9))), 1000)

	// Target far beyond the newest entry.
	rs, ok := ip.Sample("e1", 99999)
	if !ok {
		t.Fatal("no sample")
	}
	if rs.Factor != 1 || rs.Position.X != 7 {
		t.Errorf("hold-newest = %+v", rs)
	}
}

func TestInterpolatorZeroSpanYieldsFactorZero(t *testing.T) {
	ip, buf := newTestInterpolator()

	// Two entries received at the same local instant.
	buf.ApplyUpdate(updateAt(1, 1000, deltaFor(snapAt("e1", 0, 0))), 1000)
	buf.ApplyUpdate(updateAt(2, 1000, deltaFor(snapAt("e1", 100, 100))), 1000)

	rs, ok := ip.Sample("e1", 1100)
	if !ok {
		t.Fatal("no sample")
	}
	if rs.Factor != 0 && rs.Factor != 1 {
		t.Errorf("factor = %v, want endpoint", rs.Factor)
	}
	if math.IsNaN(rs.Position.X) || math.IsNaN(rs.Position.Y) {
		t.Fatalf("position is NaN: %+v", rs.Position)
	}
}

func TestInterpolatorFactorClamped(t *testing.T) {
	ip, buf := newTestInterpolator()
	buf.ApplyUpdate(updateAt(1, 1000, deltaFor(snapAt("e1", 0, 0))), 1000)
	buf.ApplyUpdate(updateAt(2, 1008, deltaFor(snapAt("e1", 10, 0))), 1008)
	buf.ApplyUpdate(updateAt(3, 2000, deltaFor(snapAt("e1", 20, 0))), 2000)

	// Sweep a range of render times; the factor must never escape [0,1].
	for now := int64(900); now < 2300; now += 7 {
		rs, ok := ip.Sample("e1", now)
		if !ok {
			continue
		}
		if rs.Factor < 0 || rs.Factor > 1 {
			t.Fatalf("factor %v outside [0,1] at now=%d", rs.Factor, now)
		}
		if math.IsNaN(rs.Position.X) {
			t.Fatalf("NaN position at now=%d", now)
		}
	}
}

func TestInterpolatorEntityAppears(t *testing.T) {
	ip, buf := newTestInterpolator()
	buf.ApplyUpdate(updateAt(1, 1000, deltaFor(snapAt("e1", 0, 0))), 1000)
	buf.ApplyUpdate(updateAt(2, 1100, deltaFor(snapAt("e1", 1, 1)), deltaFor(snapAt("e2", 50, 50))), 1100)

	// Mid-bracket: e2 exists only in the later entry.
	rs, ok := ip.Sample("e2", 1150)
	if !ok {
		t.Fatal("appearing entity not rendered")
	}
	if rs.Position.X != 50 || rs.Factor != 1 {
		t.Errorf("appear = %+v, want snap to new state", rs)
	}
}

func TestInterpolatorEntityVanishesHoldsLast(t *testing.T) {
	ip, buf := newTestInterpolator()
	buf.ApplyUpdate(updateAt(1, 1000, deltaFor(snapAt("e1", 3, 4)), deltaFor(snapAt("e2", 1, 1))), 1000)

	dead := snapAt("e1", 3, 4)
	dead.IsDead = true
	buf.ApplyUpdate(updateAt(2, 1100, deltaFor(dead)), 1100)

	rs, ok := ip.Sample("e1", 1150)
	if !ok {
		t.Fatal("vanished entity should hold last known state mid-bracket")
	}
	if rs.Position.X != 3 || rs.Factor != 0 {
		t.Errorf("vanish-hold = %+v", rs)
	}
}

func TestInterpolatorUnknownEntity(t *testing.T) {
	ip, buf := newTestInterpolator()
	buf.ApplyUpdate(updateAt(1, 1000, deltaFor(snapAt("e1", 0, 0))), 1000)

	if _, ok := ip.Sample("ghost", 1150); ok {
		t.Error("unknown entity rendered")
	}
}

func TestInterpolatorEmptyBuffer(t *testing.T) {
	ip, _ := newTestInterpolator()
	if _, ok := ip.Sample("e1", 1000); ok {
		t.Error("sample from empty buffer")
	}
}
