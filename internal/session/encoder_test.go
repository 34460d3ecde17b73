package session

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riftline/internal/config"
	"riftline/internal/game"
	"riftline/internal/protocol"
)

type encoderHarness struct {
	world    *game.World
	gateway  *game.Gateway
	registry *Registry
	encoder  *Encoder
}

func newEncoderHarness(t *testing.T, sendBuffer int, policy VisibilityPolicy) *encoderHarness {
	t.Helper()
	w := game.NewWorld(10000, 10000, nil)
	gw := game.NewGateway(config.DefaultInput(), nil)
	cfg := config.DefaultServer()
	cfg.SendBuffer = sendBuffer
	r := NewRegistry(cfg, w, gw, nil)
	return &encoderHarness{world: w, gateway: gw, registry: r, encoder: NewEncoder(r, gw, policy)}
}

func recvUpdate(t *testing.T, s *Session) protocol.StateUpdate {
	t.Helper()
	select {
	case msg := <-s.Send():
		require.Equal(t, protocol.MsgStateUpdate, msg.Type)
		var u protocol.StateUpdate
		require.NoError(t, json.Unmarshal(msg.Data, &u))
		return u
	default:
		t.Fatal("no state update enqueued")
		return protocol.StateUpdate{}
	}
}

func TestEncoderDeltaAgainstAckedBaseline(t *testing.T) {
	h := newEncoderHarness(t, 8, nil)
	s, _, err := h.registry.Join("p1", "a")
	require.NoError(t, err)

	h.world.Update(1, testDt, nil)
	h.encoder.Emit(1, h.world)

	u := recvUpdate(t, s)
	assert.Equal(t, protocol.Tick(1), u.Tick)
	require.Len(t, u.Deltas, 1, "join baseline snapshot expected")
	assert.Equal(t, s.EntityID, u.Deltas[0].EntityID)
	assert.Equal(t, protocol.MaskAll, u.Deltas[0].ChangeMask)
	assert.Equal(t, protocol.Tick(1), s.LastAckedTick())

	// Nothing changed: the next update is a heartbeat with no deltas.
	h.world.Update(2, testDt, nil)
	h.encoder.Emit(2, h.world)
	u = recvUpdate(t, s)
	assert.Empty(t, u.Deltas)
	assert.Equal(t, protocol.Tick(2), s.LastAckedTick())
}

func TestEncoderBackpressureKeepsBaseline(t *testing.T) {
	h := newEncoderHarness(t, 1, nil)
	s, _, err := h.registry.Join("p1", "a")
	require.NoError(t, err)

	h.world.Update(1, testDt, nil)
	h.encoder.Emit(1, h.world)
	require.Equal(t, protocol.Tick(1), s.LastAckedTick())

	// Buffer of 1 is now full; this tick's update is dropped and the
	// baseline must not advance.
	ok, _ := h.gateway.Admit("p1", protocol.ClientInput{
		Seq: 1, Kind: protocol.InputMove, Payload: json.RawMessage(`{"x":9000,"y":9000}`),
	})
	require.True(t, ok)
	h.world.Update(2, testDt, h.gateway.Drain())
	h.encoder.Emit(2, h.world)
	assert.Equal(t, protocol.Tick(1), s.LastAckedTick())

	_, dropped, _ := h.encoder.Stats()
	assert.Equal(t, uint64(1), dropped)

	// Drain the stale frame. The next update covers the missed tick: the
	// movement from tick 2 is still in the delta.
	<-s.Send()
	h.world.Update(3, testDt, nil)
	h.encoder.Emit(3, h.world)

	u := recvUpdate(t, s)
	require.NotEmpty(t, u.Deltas)
	assert.Equal(t, s.EntityID, u.Deltas[0].EntityID)
	assert.Equal(t, protocol.Tick(3), s.LastAckedTick())
}

func TestEncoderSkipsDisconnected(t *testing.T) {
	h := newEncoderHarness(t, 8, nil)
	s, _, err := h.registry.Join("p1", "a")
	require.NoError(t, err)

	h.registry.Disconnect("p1", s.Generation())
	h.world.Update(1, testDt, nil)
	h.encoder.Emit(1, h.world)

	assert.Equal(t, protocol.Tick(0), s.LastAckedTick())
	sent, _, _ := h.encoder.Stats()
	assert.Zero(t, sent)
}

func TestEncoderInputAcksCoverAllPlayers(t *testing.T) {
	h := newEncoderHarness(t, 8, nil)
	s1, _, err := h.registry.Join("p1", "a")
	require.NoError(t, err)
	_, _, err = h.registry.Join("p2", "b")
	require.NoError(t, err)

	ok, _ := h.gateway.Admit("p2", protocol.ClientInput{Seq: 4, Kind: protocol.InputStop})
	require.True(t, ok)

	h.world.Update(1, testDt, h.gateway.Drain())
	h.encoder.Emit(1, h.world)

	u := recvUpdate(t, s1)
	require.Contains(t, u.InputAcks, protocol.PlayerID("p1"))
	require.Contains(t, u.InputAcks, protocol.PlayerID("p2"))
	assert.Equal(t, protocol.InputSeq(0), u.InputAcks["p1"])
	assert.Equal(t, protocol.InputSeq(4), u.InputAcks["p2"])
}

// sideOnly hides everything not on the viewer's side.
type sideOnly struct{}

func (sideOnly) Visible(viewer *Session, snap protocol.EntitySnapshot) bool {
	return snap.Side == viewer.Side
}

func TestEncoderVisibilityPolicyWithOwnBypass(t *testing.T) {
	h := newEncoderHarness(t, 8, sideOnly{})
	s1, _, err := h.registry.Join("p1", "a") // blue
	require.NoError(t, err)
	s2, _, err := h.registry.Join("p2", "b") // red
	require.NoError(t, err)

	h.world.Update(1, testDt, nil)
	h.encoder.Emit(1, h.world)

	u1 := recvUpdate(t, s1)
	require.Len(t, u1.Deltas, 1)
	assert.Equal(t, s1.EntityID, u1.Deltas[0].EntityID)

	// The red player sees only their own champion too, via the own-entity
	// bypass, even though the policy would also pass it.
	u2 := recvUpdate(t, s2)
	require.Len(t, u2.Deltas, 1)
	assert.Equal(t, s2.EntityID, u2.Deltas[0].EntityID)
}

func TestEncoderSendFullStateRebaselines(t *testing.T) {
	h := newEncoderHarness(t, 8, nil)
	s, _, err := h.registry.Join("p1", "a")
	require.NoError(t, err)

	for tick := protocol.Tick(1); tick <= 5; tick++ {
		h.world.Update(tick, testDt, nil)
	}

	require.True(t, h.encoder.SendFullState(s, h.world))
	assert.Equal(t, protocol.Tick(5), s.LastAckedTick())

	select {
	case msg := <-s.Send():
		require.Equal(t, protocol.MsgFullState, msg.Type)
		var full protocol.FullStateSnapshot
		require.NoError(t, json.Unmarshal(msg.Data, &full))
		assert.Equal(t, protocol.Tick(5), full.Tick)
		require.Len(t, full.Entities, 1)
	default:
		t.Fatal("full state not enqueued")
	}
}

func TestEncoderSendFullStateFailsOnFullBuffer(t *testing.T) {
	h := newEncoderHarness(t, 1, nil)
	s, _, err := h.registry.Join("p1", "a")
	require.NoError(t, err)

	for tick := protocol.Tick(1); tick <= 3; tick++ {
		h.world.Update(tick, testDt, nil)
	}
	require.True(t, s.TrySend(protocol.Message{Type: protocol.MsgPong}))

	s.advanceAck(1)
	require.False(t, h.encoder.SendFullState(s, h.world))
	assert.Equal(t, protocol.Tick(1), s.LastAckedTick(), "failed full state must not rebaseline")
}

func TestEncoderStaleBaselineGetsFullState(t *testing.T) {
	h := newEncoderHarness(t, 8, nil)
	s, _, err := h.registry.Join("p1", "a")
	require.NoError(t, err)

	// Baseline at tick 1.
	h.world.Update(1, testDt, nil)
	h.encoder.Emit(1, h.world)
	recvUpdate(t, s)
	require.Equal(t, protocol.Tick(1), s.LastAckedTick())

	// A minion lives and dies entirely inside the stall window.
	minion := &game.Entity{ID: "minion-1", Kind: protocol.KindMinion, Side: protocol.TeamRed}
	minion.Behavior = &fuseBehavior{entity: minion, ticks: 2}
	require.NoError(t, h.world.QueueSpawn(minion))

	// Stall past the graveyard window without emitting: the terminal
	// snapshot is purged, so a delta from tick 1 can no longer carry it.
	last := protocol.Tick(1 + game.GraveyardTicks + 5)
	for tick := protocol.Tick(2); tick <= last; tick++ {
		h.world.Update(tick, testDt, nil)
	}

	h.encoder.Emit(last, h.world)

	select {
	case msg := <-s.Send():
		require.Equal(t, protocol.MsgFullState, msg.Type, "stale baseline must resync, not delta")
		var full protocol.FullStateSnapshot
		require.NoError(t, json.Unmarshal(msg.Data, &full))
		require.Len(t, full.Entities, 1, "the dead minion must not appear")
		assert.Equal(t, s.EntityID, full.Entities[0].EntityID)
	default:
		t.Fatal("nothing enqueued for the stalled session")
	}
	assert.Equal(t, last, s.LastAckedTick())
}

// fuseBehavior removes its entity after a fixed number of ticks.
type fuseBehavior struct {
	entity *game.Entity
	ticks  int
}

func (f *fuseBehavior) Step(dt float64, w *game.World) {
	f.ticks--
	if f.ticks <= 0 {
		w.Remove(f.entity.ID)
	}
}
func (f *fuseBehavior) HandleInput(protocol.ClientInput, *game.World) {}
func (f *fuseBehavior) Snapshot() protocol.EntitySnapshot {
	return protocol.EntitySnapshot{}
}
func (f *fuseBehavior) IsCollidable() bool { return false }
func (f *fuseBehavior) Radius() float64    { return 1 }

func TestEncoderNexusFallEndsGame(t *testing.T) {
	h := newEncoderHarness(t, 8, nil)
	_, _, err := h.registry.Join("p1", "a")
	require.NoError(t, err)

	nexus := &game.Entity{ID: "nexus-blue", Kind: protocol.KindNexus, Side: protocol.TeamBlue}
	nexus.Behavior = &fuseBehavior{entity: nexus, ticks: 2}
	require.NoError(t, h.world.QueueSpawn(nexus))

	h.world.Update(1, testDt, nil)
	h.encoder.Emit(1, h.world)
	assert.False(t, h.registry.Ended())

	h.world.Update(2, testDt, nil)
	h.encoder.Emit(2, h.world)
	assert.True(t, h.registry.Ended(), "blue nexus fell on tick 2")
}
