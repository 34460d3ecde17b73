package game

import (
	"sync"
	"time"

	"riftline/internal/config"
	"riftline/internal/protocol"
)

// Input rejection reasons. All rejections are silent drops of that one
// input; nothing is echoed to the client except at debug verbosity.
const (
	RejectOldSequence    = "old_sequence"
	RejectInvalidType    = "invalid_type"
	RejectRateLimited    = "rate_limited"
	RejectInvalidPayload = "invalid_payload"
	RejectQueueFull      = "queue_full"
	RejectNoSuchEntity   = "no_such_entity"
	RejectEntityDead     = "entity_dead"
)

// rateBucket groups input kinds that share one rate-limit window.
type rateBucket uint8

const (
	bucketMovement rateBucket = iota
	bucketAbility
	bucketShop
	bucketRecall
	bucketPing
	bucketChat
	numBuckets
)

func bucketFor(k protocol.InputKind) rateBucket {
	switch k {
	case protocol.InputMove, protocol.InputAttackMove, protocol.InputTargetUnit, protocol.InputStop:
		return bucketMovement
	case protocol.InputAbility:
		return bucketAbility
	case protocol.InputLevelUp, protocol.InputBuyItem, protocol.InputSellItem:
		return bucketShop
	case protocol.InputRecall:
		return bucketRecall
	case protocol.InputPing:
		return bucketPing
	default:
		return bucketChat
	}
}

// playerState is one player's admission state. The queue is seq-ascending by
// construction: admission rejects any seq at or below the highest admitted.
type playerState struct {
	queue        []protocol.ClientInput
	lastAdmitted protocol.InputSeq
	lastAcked    protocol.InputSeq
	accepted     [numBuckets][]time.Time // rolling 1 s acceptance windows
}

// Gateway admits validated player inputs into per-player bounded queues and
// hands them to the tick engine in one atomic drain per tick.
//
// Producers are the network readers (one per connection); the single consumer
// is the tick engine. The gateway exclusively owns the queues.
type Gateway struct {
	mu      sync.Mutex
	cfg     config.InputConfig
	players map[protocol.PlayerID]*playerState

	now     func() time.Time // injectable for tests
	journal *Journal

	// onReject is an optional metrics hook, called outside the hot-path lock.
	onReject func(reason string)

	acceptedCount uint64
	rejectedCount map[string]uint64
}

// NewGateway creates an input gateway with the given admission config.
func NewGateway(cfg config.InputConfig, journal *Journal) *Gateway {
	return &Gateway{
		cfg:           cfg,
		players:       make(map[protocol.PlayerID]*playerState),
		now:           time.Now,
		journal:       journal,
		rejectedCount: make(map[string]uint64),
	}
}

// SetClock overrides the admission clock. Tests use this to drive the
// rate-limit windows deterministically.
func (g *Gateway) SetClock(now func() time.Time) { g.now = now }

// SetRejectHook installs a metrics callback invoked once per rejection.
func (g *Gateway) SetRejectHook(fn func(reason string)) { g.onReject = fn }

func (g *Gateway) capFor(b rateBucket) int {
	switch b {
	case bucketMovement:
		return g.cfg.MovementPerSec
	case bucketAbility:
		return g.cfg.AbilityPerSec
	case bucketShop:
		return g.cfg.ShopPerSec
	case bucketRecall:
		return g.cfg.RecallPerSec
	case bucketPing:
		return g.cfg.PingPerSec
	default:
		return g.cfg.ChatPerSec
	}
}

// Admit validates one input and appends it to the player's queue. Rules
// apply in order: sequence monotonicity, known kind, rate limit, payload
// well-formedness, queue capacity. Returns the rejection reason on failure.
func (g *Gateway) Admit(player protocol.PlayerID, in protocol.ClientInput) (bool, string) {
	g.mu.Lock()
	ok, reason := g.admitLocked(player, in)
	g.mu.Unlock()

	if !ok {
		if g.onReject != nil {
			g.onReject(reason)
		}
		g.journal.Record(JournalInputRejected, 0, string(player), InputDropPayload{
			Seq:    uint32(in.Seq),
			Kind:   string(in.Kind),
			Reason: reason,
		})
	}
	return ok, reason
}

func (g *Gateway) admitLocked(player protocol.PlayerID, in protocol.ClientInput) (bool, string) {
	ps := g.players[player]
	if ps == nil {
		ps = &playerState{}
		g.players[player] = ps
	}

	// 1. Sequence must advance past both the highest admitted and the highest
	// acked; equality is stale.
	floor := ps.lastAdmitted
	if ps.lastAcked > floor {
		floor = ps.lastAcked
	}
	if in.Seq <= floor {
		g.rejectedCount[RejectOldSequence]++
		return false, RejectOldSequence
	}

	// 2. Closed kind tag.
	if !protocol.ValidInputKind(in.Kind) {
		g.rejectedCount[RejectInvalidType]++
		return false, RejectInvalidType
	}

	// 3. Rolling 1 s acceptance window per kind bucket, strictly below cap.
	now := g.now()
	bucket := bucketFor(in.Kind)
	window := ps.accepted[bucket]
	cutoff := now.Add(-time.Second)
	pruned := window[:0]
	for _, t := range window {
		if t.After(cutoff) {
			pruned = append(pruned, t)
		}
	}
	ps.accepted[bucket] = pruned
	if len(pruned) >= g.capFor(bucket) {
		g.rejectedCount[RejectRateLimited]++
		return false, RejectRateLimited
	}

	// 4. Payload well-formedness.
	if !protocol.ValidatePayload(in) {
		g.rejectedCount[RejectInvalidPayload]++
		return false, RejectInvalidPayload
	}

	// 5. Bounded queue.
	if len(ps.queue) >= g.cfg.QueueCapacity {
		g.rejectedCount[RejectQueueFull]++
		return false, RejectQueueFull
	}

	ps.queue = append(ps.queue, in)
	ps.lastAdmitted = in.Seq
	ps.accepted[bucket] = append(ps.accepted[bucket], now)
	g.acceptedCount++
	return true, ""
}

// Drain atomically moves every queue's contents out, ordered by player id so
// per-tick interleaving is deterministic. Each drained player's lastAckedSeq
// advances to the highest seq handed to the engine.
func (g *Gateway) Drain() []PlayerInputs {
	g.mu.Lock()
	defer g.mu.Unlock()

	var out []PlayerInputs
	for player, ps := range g.players {
		if len(ps.queue) == 0 {
			continue
		}
		batch := ps.queue
		ps.queue = nil
		ps.lastAcked = batch[len(batch)-1].Seq
		out = append(out, PlayerInputs{Player: player, Inputs: batch})
	}
	sortBatches(out)
	return out
}

func sortBatches(batches []PlayerInputs) {
	for i := 1; i < len(batches); i++ {
		for j := i; j > 0 && batches[j].Player < batches[j-1].Player; j-- {
			batches[j], batches[j-1] = batches[j-1], batches[j]
		}
	}
}

// LastAcked returns the highest input seq processed for a player. Only ever
// advances.
func (g *Gateway) LastAcked(player protocol.PlayerID) protocol.InputSeq {
	g.mu.Lock()
	defer g.mu.Unlock()
	if ps := g.players[player]; ps != nil {
		return ps.lastAcked
	}
	return 0
}

// Disconnect clears a player's pending inputs and rate-limit state. The
// acked sequence survives until session expiry so a reconnecting client
// resumes its counter correctly.
func (g *Gateway) Disconnect(player protocol.PlayerID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if ps := g.players[player]; ps != nil {
		ps.queue = nil
		for i := range ps.accepted {
			ps.accepted[i] = nil
		}
	}
}

// Expire forgets a player entirely. Called when their session expires.
func (g *Gateway) Expire(player protocol.PlayerID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.players, player)
}

// Pending returns the number of queued inputs for a player.
func (g *Gateway) Pending(player protocol.PlayerID) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if ps := g.players[player]; ps != nil {
		return len(ps.queue)
	}
	return 0
}

// Stats returns accepted/rejected counters for monitoring.
func (g *Gateway) Stats() (accepted uint64, rejected map[string]uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	rejected = make(map[string]uint64, len(g.rejectedCount))
	for k, v := range g.rejectedCount {
		rejected[k] = v
	}
	return g.acceptedCount, rejected
}
