package client

import (
	"testing"

	"riftline/internal/config"
	"riftline/internal/game"
	"riftline/internal/protocol"
)

func newTestPredictor() *Predictor {
	return NewPredictor("p1", config.DefaultPrediction(), config.DefaultBuffer())
}

func TestPredictorSequenceStrictlyIncreasing(t *testing.T) {
	p := newTestPredictor()

	var prev protocol.InputSeq
	for i := 0; i < 10; i++ {
		in, err := p.MakeInput(protocol.InputMove, protocol.MovePayload{X: 10, Y: 10}, 1000)
		if err != nil {
			t.Fatal(err)
		}
		if in.Seq <= prev {
			t.Fatalf("seq %d after %d", in.Seq, prev)
		}
		prev = in.Seq
	}
}

func TestPredictorRoutesControlledEntityToPrediction(t *testing.T) {
	p := newTestPredictor()

	own := snapAt("champion-p1", 100, 100)
	other := snapAt("champion-p2", 500, 500)
	p.HandleFullState(fullAt(1, 1000, own, other), 1000)

	// A second update gives the interpolator a bracket.
	p.HandleUpdate(protocol.StateUpdate{
		Tick: 2, Timestamp: 1008,
		InputAcks: map[protocol.PlayerID]protocol.InputSeq{"p1": 0},
		Deltas:    []protocol.EntityDelta{deltaFor(snapAt("champion-p2", 510, 500))},
	}, 1008)

	states := p.Render(2000)
	if len(states) != 2 {
		t.Fatalf("rendered %d entities, want 2", len(states))
	}

	// Sorted by id: p1 then p2.
	if states[0].EntityID != "champion-p1" || states[0].Source != SourcePredicted {
		t.Errorf("own entity = %+v, want predicted", states[0])
	}
	if states[1].EntityID != "champion-p2" || states[1].Source != SourceInterpolated {
		t.Errorf("remote entity = %+v, want interpolated", states[1])
	}
}

func TestPredictorFullStateRebaselines(t *testing.T) {
	p := newTestPredictor()

	p.HandleFullState(fullAt(1, 1000, snapAt("champion-p1", 42, 43)), 1000)
	if pos := p.Reconciler().RenderedPos(); pos.X != 42 || pos.Y != 43 {
		t.Errorf("pos = %+v, want full-state position", pos)
	}

	// Pending predictions do not survive a resync.
	p.MakeInput(protocol.InputMove, protocol.MovePayload{X: 500, Y: 500}, 1100)
	p.HandleFullState(fullAt(50, 1400, snapAt("champion-p1", 60, 60)), 1400)
	if got := p.Reconciler().Stats(1400).PendingInputs; got != 0 {
		t.Errorf("pending = %d after full state, want 0", got)
	}
}

func TestPredictorHandleUpdateReconciles(t *testing.T) {
	p := newTestPredictor()
	p.HandleFullState(fullAt(1, 1000, snapAt("champion-p1", 0, 0)), 1000)

	in, err := p.MakeInput(protocol.InputMove, protocol.MovePayload{X: 100, Y: 0}, 1100)
	if err != nil {
		t.Fatal(err)
	}
	p.Advance(0.1)

	// Server acks the input and reports a far position: hard snap.
	p.HandleUpdate(protocol.StateUpdate{
		Tick: 2, Timestamp: 1200,
		InputAcks: map[protocol.PlayerID]protocol.InputSeq{"p1": in.Seq},
		Deltas:    []protocol.EntityDelta{deltaFor(snapAt("champion-p1", 5000, 5000))},
	}, 1200)

	if pos := p.Reconciler().RenderedPos(); pos != (game.Vec2{X: 5000, Y: 5000}) {
		t.Errorf("pos = %+v, want snapped server position", pos)
	}
	if got := p.Reconciler().Stats(1200).PendingInputs; got != 0 {
		t.Errorf("pending = %d, want 0 after ack", got)
	}
}

func TestPredictorIgnoresOwnDeathDelta(t *testing.T) {
	p := newTestPredictor()
	p.HandleFullState(fullAt(1, 1000, snapAt("champion-p1", 10, 10)), 1000)

	dead := snapAt("champion-p1", 10, 10)
	dead.IsDead = true
	p.HandleUpdate(protocol.StateUpdate{
		Tick:   2,
		Deltas: []protocol.EntityDelta{deltaFor(dead)},
	}, 1008)

	// Reconciling against a terminal snapshot would teleport the corpse; the
	// rendered position stays put.
	if pos := p.Reconciler().RenderedPos(); pos.X != 10 {
		t.Errorf("pos = %+v", pos)
	}
}

func TestPredictorStaleUpdateIgnored(t *testing.T) {
	p := newTestPredictor()
	p.HandleFullState(fullAt(10, 1000, snapAt("champion-p1", 10, 10)), 1000)

	p.HandleUpdate(protocol.StateUpdate{
		Tick:      5,
		InputAcks: map[protocol.PlayerID]protocol.InputSeq{"p1": 99},
		Deltas:    []protocol.EntityDelta{deltaFor(snapAt("champion-p1", 9999, 9999))},
	}, 1008)

	if pos := p.Reconciler().RenderedPos(); pos.X != 10 {
		t.Errorf("stale update reconciled: pos = %+v", pos)
	}
	if p.Buffer().Len() != 1 {
		t.Errorf("stale update buffered")
	}
}

func TestPredictorRenderEmptyBeforeFirstState(t *testing.T) {
	p := newTestPredictor()
	if states := p.Render(1000); states != nil {
		t.Errorf("rendered %d entities before any state", len(states))
	}
}

func TestPredictorStats(t *testing.T) {
	p := newTestPredictor()
	p.HandleFullState(fullAt(1, 1000, snapAt("champion-p1", 0, 0)), 1050)
	p.HandleUpdate(protocol.StateUpdate{
		Tick: 2, Timestamp: 1008,
		Deltas: []protocol.EntityDelta{deltaFor(snapAt("champion-p1", 1, 0))},
	}, 1058)

	s := p.Stats(1100)
	if s.BufferedSnapshots != 2 {
		t.Errorf("buffered = %d, want 2", s.BufferedSnapshots)
	}
	if s.InterpolationDelayMs != 100 {
		t.Errorf("delay = %d, want 100", s.InterpolationDelayMs)
	}
	if s.ServerTimeOffsetMs != 50 {
		t.Errorf("offset = %v, want 50", s.ServerTimeOffsetMs)
	}
}
