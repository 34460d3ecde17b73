package game

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestJournalNilSafe(t *testing.T) {
	var j *Journal
	if j.Record(JournalTick, 1, "", nil) {
		t.Error("nil journal accepted an entry")
	}
	if j.Stats() != nil {
		t.Error("nil journal returned stats")
	}
}

func TestJournalStoppedRejectsRecords(t *testing.T) {
	j := NewJournal()
	if j.Record(JournalTick, 1, "", nil) {
		t.Error("unstarted journal accepted an entry")
	}
}

func TestJournalWritesJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	j := NewJournal()
	if err := j.Start(path); err != nil {
		t.Fatal(err)
	}

	j.Record(JournalPlayerJoined, 10, "p1", nil)
	j.Record(JournalInputDropped, 11, "p1", InputDropPayload{Seq: 3, Kind: "MOVE", Reason: "entity_dead"})
	j.Stop()

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("bad journal line %q: %v", scanner.Text(), err)
		}
		entries = append(entries, e)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].Kind != JournalPlayerJoined || entries[0].Tick != 10 {
		t.Errorf("first entry = %+v", entries[0])
	}

	var drop InputDropPayload
	if err := json.Unmarshal(entries[1].Payload, &drop); err != nil {
		t.Fatal(err)
	}
	if drop.Reason != "entity_dead" {
		t.Errorf("drop reason = %q", drop.Reason)
	}
}

func TestJournalPerPlayerRateLimit(t *testing.T) {
	j := NewJournal()
	if err := j.Start(""); err != nil {
		t.Fatal(err)
	}
	defer j.Stop()

	accepted := 0
	for i := 0; i < 500; i++ {
		if j.Record(JournalInputRejected, 1, "spammer", nil) {
			accepted++
		}
	}
	if accepted >= 500 {
		t.Error("per-player limiter never engaged")
	}
	if accepted == 0 {
		t.Error("limiter burst allowance missing")
	}
	if j.Stats()["dropped"] == 0 {
		t.Error("drops not counted")
	}
}

func TestJournalStopIsIdempotent(t *testing.T) {
	j := NewJournal()
	if err := j.Start(""); err != nil {
		t.Fatal(err)
	}
	j.Stop()
	j.Stop()
}

func TestTickStatsReport(t *testing.T) {
	s := NewTickStats(8*time.Millisecond, 8*time.Millisecond)

	start := time.Unix(0, 0)
	for i := 0; i < 100; i++ {
		d := time.Duration(i+1) * 100 * time.Microsecond // 0.1ms .. 10ms
		s.Record(start, d)
		start = start.Add(8 * time.Millisecond)
	}

	r := s.Report()
	if r.TickCount != 100 {
		t.Errorf("tickCount = %d", r.TickCount)
	}
	if r.MinMs != 0.1 || r.MaxMs != 10 {
		t.Errorf("min/max = %v/%v, want 0.1/10", r.MinMs, r.MaxMs)
	}
	if r.P95Ms < r.AvgMs || r.P99Ms < r.P95Ms {
		t.Errorf("percentiles out of order: %+v", r)
	}
	// Durations above the 8ms budget: 8.1ms through 10ms.
	if r.Overruns != 20 {
		t.Errorf("overruns = %d, want 20", r.Overruns)
	}
	// Starts were spaced exactly one interval apart.
	if r.JitterAvgMs != 0 || r.JitterMaxMs != 0 {
		t.Errorf("jitter = %v/%v, want 0", r.JitterAvgMs, r.JitterMaxMs)
	}
}

func TestTickStatsEmptyReport(t *testing.T) {
	s := NewTickStats(8*time.Millisecond, 8*time.Millisecond)
	r := s.Report()
	if r.TickCount != 0 || r.MaxMs != 0 {
		t.Errorf("empty report = %+v", r)
	}
}
