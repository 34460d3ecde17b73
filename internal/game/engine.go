package game

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"riftline/internal/config"
	"riftline/internal/protocol"
)

// SnapshotEmitter receives the world after every completed tick and fans out
// per-session state updates. Called on the engine goroutine; must not block.
type SnapshotEmitter interface {
	Emit(tick protocol.Tick, w *World)
}

// TickHook observes every completed tick. Used for metrics.
type TickHook func(tick protocol.Tick, duration time.Duration, overrun bool)

// Engine drives the fixed-timestep loop: drain inputs, advance the world,
// emit snapshots, then sleep to the next slot.
//
// There is no catch-up. When a tick overruns its budget the next one starts
// immediately and the overrun is recorded; simulated time advances by exactly
// one dt per tick regardless of wall-clock slip.
type Engine struct {
	mu      sync.Mutex
	running bool

	cfg     config.SimConfig
	world   *World
	gateway *Gateway
	emitter SnapshotEmitter
	stats   *TickStats
	journal *Journal

	tick     atomic.Uint32
	interval time.Duration
	dt       float64

	onTick   TickHook
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewEngine wires the loop together. emitter may be nil (headless tests).
func NewEngine(cfg config.SimConfig, world *World, gateway *Gateway, emitter SnapshotEmitter, journal *Journal) *Engine {
	interval := time.Second / time.Duration(cfg.TickRate)
	return &Engine{
		cfg:      cfg,
		world:    world,
		gateway:  gateway,
		emitter:  emitter,
		journal:  journal,
		interval: interval,
		dt:       1.0 / float64(cfg.TickRate),
		stats:    NewTickStats(interval, time.Duration(cfg.TickBudgetMs)*time.Millisecond),
	}
}

// SetTickHook installs a per-tick metrics callback. Call before Start.
func (e *Engine) SetTickHook(fn TickHook) { e.onTick = fn }

// Start launches the loop goroutine. Idempotent while running.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.stopChan = make(chan struct{})
	e.doneChan = make(chan struct{})
	e.mu.Unlock()

	go e.loop()
	log.Printf("🎮 tick engine started at %d TPS (budget %dms)", e.cfg.TickRate, e.cfg.TickBudgetMs)
}

// Stop halts the loop and waits for the in-progress tick to finish.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	close(e.stopChan)
	done := e.doneChan
	e.mu.Unlock()

	<-done
	log.Println("🛑 tick engine stopped")
}

func (e *Engine) loop() {
	defer close(e.doneChan)

	budget := time.Duration(e.cfg.TickBudgetMs) * time.Millisecond
	next := time.Now()

	for {
		select {
		case <-e.stopChan:
			return
		default:
		}

		start := time.Now()
		tick := e.step()
		duration := time.Since(start)

		overrun := duration > budget
		e.stats.Record(start, duration)
		if e.onTick != nil {
			e.onTick(tick, duration, overrun)
		}

		// Next slot is relative to the previous deadline, not to now, so a
		// fast tick does not drift the schedule forward. An overrun resets
		// the schedule from the current time instead of replaying missed
		// slots.
		next = next.Add(e.interval)
		now := time.Now()
		if now.Before(next) {
			timer := time.NewTimer(next.Sub(now))
			select {
			case <-timer.C:
			case <-e.stopChan:
				timer.Stop()
				return
			}
		} else {
			if overrun {
				log.Printf("⚠️ tick %d overran budget: %v", tick, duration)
				e.journal.Record(JournalTick, tick, "", map[string]any{
					"durationMs": duration.Seconds() * 1000,
					"overrun":    true,
				})
			}
			next = now
		}
	}
}

// step runs exactly one tick.
func (e *Engine) step() protocol.Tick {
	tick := protocol.Tick(e.tick.Add(1))
	batches := e.gateway.Drain()
	e.world.Update(tick, e.dt, batches)
	if e.emitter != nil {
		e.emitter.Emit(tick, e.world)
	}
	return tick
}

// Tick returns the last completed tick number.
func (e *Engine) Tick() protocol.Tick {
	return protocol.Tick(e.tick.Load())
}

// Stats returns the tick health summary.
func (e *Engine) Stats() TickReport { return e.stats.Report() }

// Interval returns the nominal tick interval.
func (e *Engine) Interval() time.Duration { return e.interval }

// Dt returns the fixed simulation timestep in seconds.
func (e *Engine) Dt() float64 { return e.dt }
