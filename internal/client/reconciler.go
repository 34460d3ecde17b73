package client

import (
	"sync"

	"riftline/internal/config"
	"riftline/internal/game"
	"riftline/internal/protocol"
)

// snapsWindowMs sizes the rolling window for the snaps-per-second stat.
const snapsWindowMs = 5000

// pendingInput is one locally predicted input awaiting server ack.
type pendingInput struct {
	seq          protocol.InputSeq
	input        protocol.ClientInput
	predictedPos game.Vec2
	localTime    int64 // ms
}

// Reconciler keeps the controlled entity responsive to local input while
// converging to server truth. Movement prediction and server replay both go
// through the shared pure movement functions, so an undisturbed prediction
// reconciles to near-zero error.
type Reconciler struct {
	mu  sync.Mutex
	cfg config.PredictionConfig

	pending      []pendingInput
	renderedPos  game.Vec2
	activeTarget *game.Vec2
	speed        float64
	initialized  bool

	lastError float64
	snapTimes []int64 // local ms of recent hard snaps
}

// NewReconciler creates a reconciler with the given movement speed.
func NewReconciler(cfg config.PredictionConfig, speed float64) *Reconciler {
	return &Reconciler{cfg: cfg, speed: speed}
}

// SetSpeed updates the movement speed used for prediction and replay.
func (rc *Reconciler) SetSpeed(speed float64) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.speed = speed
}

// PredictInput records a movement-family input and retargets local
// prediction. Non-movement inputs are ignored; their effects arrive with the
// next server delta.
func (rc *Reconciler) PredictInput(in protocol.ClientInput, localNow int64) {
	target, ok := game.MoveTarget(in)
	isStop := in.Kind == protocol.InputStop
	if !ok && !isStop {
		return
	}

	rc.mu.Lock()
	defer rc.mu.Unlock()

	if isStop {
		rc.activeTarget = nil
	} else {
		t := target
		rc.activeTarget = &t
	}

	rc.pending = append(rc.pending, pendingInput{
		seq:          in.Seq,
		input:        in,
		predictedPos: rc.renderedPos,
		localTime:    localNow,
	})
	if len(rc.pending) > rc.cfg.MaxPendingInputs {
		rc.pending = rc.pending[len(rc.pending)-rc.cfg.MaxPendingInputs:]
	}
}

// Advance integrates local prediction by dt seconds: the rendered position
// moves toward the active target at the known speed. Called once per frame.
func (rc *Reconciler) Advance(dt float64) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.activeTarget == nil {
		return
	}
	rc.renderedPos = game.StepToward(rc.renderedPos, *rc.activeTarget, rc.speed, dt)
	if rc.renderedPos == *rc.activeTarget {
		rc.activeTarget = nil
	}
}

// Reconcile folds one authoritative update in: acked inputs are pruned, the
// rest are replayed from the server position, and the rendered position is
// corrected in tiers.
func (rc *Reconciler) Reconcile(serverPos game.Vec2, ackedSeq protocol.InputSeq, localNow int64) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if !rc.initialized {
		rc.renderedPos = serverPos
		rc.initialized = true
	}

	keep := rc.pending[:0]
	for _, p := range rc.pending {
		if p.seq > ackedSeq {
			keep = append(keep, p)
		}
	}
	rc.pending = keep

	// Replay the unacked tail from server truth. Each input ran locally from
	// its submit time to the next input's submit time (the last one until
	// now); replaying with those elapsed times reproduces the prediction.
	corrected := serverPos
	for i, p := range rc.pending {
		end := localNow
		if i+1 < len(rc.pending) {
			end = rc.pending[i+1].localTime
		}
		elapsed := float64(end-p.localTime) / 1000.0
		if elapsed < 0 {
			elapsed = 0
		}
		corrected = game.ApplyInput(p.input, corrected, rc.speed, elapsed)
	}

	err := rc.renderedPos.Dist(corrected)
	rc.lastError = err

	// Thresholds are inclusive: exactly at the snap threshold snaps, exactly
	// at the correction threshold smooths.
	switch {
	case err >= rc.cfg.SnapThreshold:
		rc.renderedPos = corrected
		rc.recordSnap(localNow)
	case err >= rc.cfg.CorrectionThreshold:
		rc.renderedPos = rc.renderedPos.Lerp(corrected, rc.cfg.SmoothingFactor)
	}
	// Below tolerance: keep the prediction.
}

// RenderedPos returns the current predicted position.
func (rc *Reconciler) RenderedPos() game.Vec2 {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.renderedPos
}

// Reset rebaselines on a full state snapshot: pending predictions are stale.
func (rc *Reconciler) Reset(pos game.Vec2) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.renderedPos = pos
	rc.activeTarget = nil
	rc.pending = rc.pending[:0]
	rc.initialized = true
	rc.lastError = 0
}

func (rc *Reconciler) recordSnap(localNow int64) {
	cutoff := localNow - snapsWindowMs
	times := rc.snapTimes[:0]
	for _, t := range rc.snapTimes {
		if t > cutoff {
			times = append(times, t)
		}
	}
	rc.snapTimes = append(times, localNow)
}

// ReconcilerStats reports prediction health.
type ReconcilerStats struct {
	PendingInputs  int     `json:"pendingInputs"`
	LastError      float64 `json:"lastReconciliationError"`
	SnapsPerSecond float64 `json:"snapsPerSecond"`
}

// Stats returns current reconciliation statistics.
func (rc *Reconciler) Stats(localNow int64) ReconcilerStats {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	snaps := 0
	cutoff := localNow - snapsWindowMs
	for _, t := range rc.snapTimes {
		if t > cutoff {
			snaps++
		}
	}
	return ReconcilerStats{
		PendingInputs:  len(rc.pending),
		LastError:      rc.lastError,
		SnapsPerSecond: float64(snaps) / (snapsWindowMs / 1000.0),
	}
}
