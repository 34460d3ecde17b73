package game

import (
	"encoding/json"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"riftline/internal/protocol"
)

const (
	journalBufferSize    = 1024
	journalMaxPerSec     = 10000 // global rate limit
	journalMaxPerPlayer  = 100   // per-player rate limit per second
	journalFlushSize     = 64
	journalFlushInterval = 100 * time.Millisecond
	limiterCleanupEvery  = 5 * time.Minute
)

// JournalKind classifies journal entries.
type JournalKind string

const (
	JournalTick          JournalKind = "tick"
	JournalPlayerJoined  JournalKind = "player_joined"
	JournalPlayerLeft    JournalKind = "player_left"
	JournalInputRejected JournalKind = "input_rejected"
	JournalInputDropped  JournalKind = "input_dropped"
	JournalEntityFaulted JournalKind = "entity_faulted"
	JournalEntityRemoved JournalKind = "entity_removed"
	JournalGameEnded     JournalKind = "game_ended"
)

// Entry is one journal line. Payloads are JSON so the file is greppable
// newline-delimited JSON.
type Entry struct {
	Kind      JournalKind     `json:"kind"`
	Timestamp int64           `json:"timestamp"` // unix nano
	Sequence  uint64          `json:"sequence"`
	Tick      protocol.Tick   `json:"tick"`
	PlayerID  string          `json:"playerId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// InputDropPayload records why an input was discarded.
type InputDropPayload struct {
	Seq    uint32 `json:"seq"`
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
}

// FaultPayload records an entity fault or removal.
type FaultPayload struct {
	EntityID string `json:"entityId"`
	Reason   string `json:"reason,omitempty"`
}

// Journal is a bounded, rate-limited audit log with an async batched writer.
// Under pressure it drops entries rather than stalling the tick loop; drops
// are counted for monitoring.
type Journal struct {
	buffer    [journalBufferSize]Entry
	writeHead uint64 // atomic, producer position
	readHead  uint64 // atomic, consumer position

	globalLimiter  *rate.Limiter
	playerLimiters sync.Map // map[string]*journalLimiterEntry

	writerWg sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
	running  atomic.Bool

	file   *os.File
	fileMu sync.Mutex

	droppedCount uint64 // atomic
	totalCount   uint64 // atomic
}

type journalLimiterEntry struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// NewJournal creates a journal. Call Start before recording.
func NewJournal() *Journal {
	return &Journal{
		globalLimiter: rate.NewLimiter(journalMaxPerSec, journalMaxPerSec/10),
		stopChan:      make(chan struct{}),
	}
}

// Start opens the output file and begins the async writer.
func (j *Journal) Start(path string) error {
	if j.running.Load() {
		return nil
	}
	if path != "" {
		file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		j.file = file
	}

	j.running.Store(true)
	j.writerWg.Add(2)
	go j.writerLoop()
	go j.cleanupLoop()
	return nil
}

// Stop flushes pending entries and closes the file.
func (j *Journal) Stop() {
	j.stopOnce.Do(func() {
		j.running.Store(false)
		close(j.stopChan)
		j.writerWg.Wait()

		j.fileMu.Lock()
		if j.file != nil {
			j.file.Close()
		}
		j.fileMu.Unlock()
	})
}

// Record appends one entry. Safe on a nil or stopped journal; rate limited
// globally and per player.
func (j *Journal) Record(kind JournalKind, tick protocol.Tick, playerID string, payload any) bool {
	if j == nil || !j.running.Load() {
		return false
	}

	if !j.globalLimiter.Allow() {
		atomic.AddUint64(&j.droppedCount, 1)
		return false
	}
	if playerID != "" {
		if !j.playerLimiter(playerID).Allow() {
			atomic.AddUint64(&j.droppedCount, 1)
			return false
		}
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		raw = nil
	}

	// Claim a slot, then store into it: the consumer reads [readHead,
	// writeHead), so the claimed slot is the pre-increment position.
	seq := atomic.AddUint64(&j.writeHead, 1) - 1
	tail := atomic.LoadUint64(&j.readHead)
	if seq-tail >= journalBufferSize {
		// Buffer full: drop the oldest entry rather than block the tick.
		atomic.AddUint64(&j.readHead, 1)
		atomic.AddUint64(&j.droppedCount, 1)
	}

	j.buffer[seq%journalBufferSize] = Entry{
		Kind:      kind,
		Timestamp: time.Now().UnixNano(),
		Sequence:  seq,
		Tick:      tick,
		PlayerID:  playerID,
		Payload:   raw,
	}
	atomic.AddUint64(&j.totalCount, 1)
	return true
}

func (j *Journal) playerLimiter(playerID string) *rate.Limiter {
	if entry, ok := j.playerLimiters.Load(playerID); ok {
		e := entry.(*journalLimiterEntry)
		e.lastUsed = time.Now()
		return e.limiter
	}
	entry := &journalLimiterEntry{
		limiter:  rate.NewLimiter(journalMaxPerPlayer, journalMaxPerPlayer/10),
		lastUsed: time.Now(),
	}
	actual, _ := j.playerLimiters.LoadOrStore(playerID, entry)
	return actual.(*journalLimiterEntry).limiter
}

func (j *Journal) writerLoop() {
	defer j.writerWg.Done()

	ticker := time.NewTicker(journalFlushInterval)
	defer ticker.Stop()

	batch := make([]Entry, 0, journalFlushSize)
	for {
		select {
		case <-j.stopChan:
			for {
				batch = j.collect(batch[:0])
				if len(batch) == 0 {
					return
				}
				j.flush(batch)
			}
		case <-ticker.C:
			batch = j.collect(batch[:0])
			if len(batch) > 0 {
				j.flush(batch)
			}
		}
	}
}

func (j *Journal) cleanupLoop() {
	defer j.writerWg.Done()

	ticker := time.NewTicker(limiterCleanupEvery)
	defer ticker.Stop()
	for {
		select {
		case <-j.stopChan:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-limiterCleanupEvery)
			j.playerLimiters.Range(func(key, value any) bool {
				if value.(*journalLimiterEntry).lastUsed.Before(cutoff) {
					j.playerLimiters.Delete(key)
				}
				return true
			})
		}
	}
}

func (j *Journal) collect(batch []Entry) []Entry {
	head := atomic.LoadUint64(&j.writeHead)
	tail := atomic.LoadUint64(&j.readHead)
	for i := tail; i < head && len(batch) < journalFlushSize; i++ {
		batch = append(batch, j.buffer[i%journalBufferSize])
	}
	if len(batch) > 0 {
		atomic.AddUint64(&j.readHead, uint64(len(batch)))
	}
	return batch
}

func (j *Journal) flush(batch []Entry) {
	j.fileMu.Lock()
	defer j.fileMu.Unlock()
	if j.file == nil {
		return
	}
	for _, e := range batch {
		data, err := json.Marshal(e)
		if err != nil {
			continue
		}
		j.file.Write(data)
		j.file.Write([]byte("\n"))
	}
}

// Stats returns journal counters for monitoring.
func (j *Journal) Stats() map[string]uint64 {
	if j == nil {
		return nil
	}
	head := atomic.LoadUint64(&j.writeHead)
	tail := atomic.LoadUint64(&j.readHead)
	return map[string]uint64{
		"total":   atomic.LoadUint64(&j.totalCount),
		"dropped": atomic.LoadUint64(&j.droppedCount),
		"pending": head - tail,
	}
}
