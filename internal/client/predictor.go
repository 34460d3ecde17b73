package client

import (
	"encoding/json"
	"sort"
	"sync/atomic"

	"riftline/internal/config"
	"riftline/internal/game"
	"riftline/internal/protocol"
)

// Predictor is the renderer's single entry point: the controlled entity
// renders from the reconciler, everything else from the interpolator.
type Predictor struct {
	playerID protocol.PlayerID
	entityID protocol.EntityID

	buffer *StateBuffer
	interp *Interpolator
	rec    *Reconciler

	seq atomic.Uint32
}

// NewPredictor wires the client-side prediction stack for one player.
func NewPredictor(playerID protocol.PlayerID, cfg config.PredictionConfig, bufCfg config.BufferConfig) *Predictor {
	buffer := NewStateBuffer(bufCfg)
	return &Predictor{
		playerID: playerID,
		entityID: protocol.EntityID("champion-" + string(playerID)),
		buffer:   buffer,
		interp:   NewInterpolator(buffer, cfg),
		rec:      NewReconciler(cfg, game.DefaultMoveSpeed),
	}
}

// Buffer exposes the underlying state buffer.
func (p *Predictor) Buffer() *StateBuffer { return p.buffer }

// Reconciler exposes the controlled entity's reconciler.
func (p *Predictor) Reconciler() *Reconciler { return p.rec }

// EntityID returns the controlled entity's id.
func (p *Predictor) EntityID() protocol.EntityID { return p.entityID }

// MakeInput builds the next input with a fresh strictly increasing sequence
// number. Movement-family inputs are also applied to local prediction.
func (p *Predictor) MakeInput(kind protocol.InputKind, payload any, localNow int64) (protocol.ClientInput, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return protocol.ClientInput{}, err
	}
	in := protocol.ClientInput{
		Seq:        protocol.InputSeq(p.seq.Add(1)),
		ClientTime: localNow,
		Kind:       kind,
		Payload:    raw,
	}
	p.rec.PredictInput(in, localNow)
	return in, nil
}

// HandleFullState resets the buffer and rebaselines prediction.
func (p *Predictor) HandleFullState(full protocol.FullStateSnapshot, localNow int64) {
	p.buffer.ApplyFull(full, localNow)
	for _, snap := range full.Entities {
		if snap.EntityID == p.entityID {
			p.rec.Reset(game.Vec2{X: float64(snap.X), Y: float64(snap.Y)})
			return
		}
	}
}

// HandleUpdate buffers one delta and reconciles if it carries the controlled
// entity.
func (p *Predictor) HandleUpdate(update protocol.StateUpdate, localNow int64) {
	if !p.buffer.ApplyUpdate(update, localNow) {
		return
	}
	for _, d := range update.Deltas {
		if d.EntityID != p.entityID || d.Data.IsDead {
			continue
		}
		serverPos := game.Vec2{X: float64(d.Data.X), Y: float64(d.Data.Y)}
		p.rec.Reconcile(serverPos, update.InputAcks[p.playerID], localNow)
		return
	}
}

// Advance integrates local prediction between frames.
func (p *Predictor) Advance(dt float64) { p.rec.Advance(dt) }

// Render produces one RenderState per visible entity, sorted by id for
// stable draw order.
func (p *Predictor) Render(localNow int64) []RenderState {
	latest, ok := p.buffer.Latest()
	if !ok {
		return nil
	}

	out := make([]RenderState, 0, len(latest.Entities))
	for id, snap := range latest.Entities {
		if id == p.entityID {
			out = append(out, RenderState{
				EntityID: id,
				Position: p.rec.RenderedPos(),
				Snapshot: snap,
				Source:   SourcePredicted,
				Factor:   0,
			})
			continue
		}
		if rs, ok := p.interp.Sample(id, localNow); ok {
			out = append(out, rs)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out
}

// PredictorStats is the client-side health summary.
type PredictorStats struct {
	ReconcilerStats
	InterpolationDelayMs int64   `json:"interpolationDelayMs"`
	AverageBufferDelayMs float64 `json:"averageBufferDelayMs"`
	BufferedSnapshots    int     `json:"bufferedSnapshots"`
	ServerTimeOffsetMs   float64 `json:"serverTimeOffsetMs"`
}

// Stats returns the combined prediction statistics.
func (p *Predictor) Stats(localNow int64) PredictorStats {
	return PredictorStats{
		ReconcilerStats:      p.rec.Stats(localNow),
		InterpolationDelayMs: p.interp.Delay(),
		AverageBufferDelayMs: p.buffer.AverageSpacing(),
		BufferedSnapshots:    p.buffer.Len(),
		ServerTimeOffsetMs:   p.buffer.ServerTimeOffset(),
	}
}
