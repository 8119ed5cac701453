package trace

import "testing"

func TestRecordCallTracksSuccessAndFailure(t *testing.T) {
	log := &Log{stats: newStatsBook()}
	log.RecordCall("t", true, 10)
	log.RecordCall("t", false, 20)

	snap := log.StatsSnapshot()
	s := snap["t"]
	if s.Successes != 1 || s.Failures != 1 {
		t.Fatalf("unexpected stats: %+v", s)
	}
	if len(s.Latencies) != 2 {
		t.Fatalf("expected 2 latency samples, got %d", len(s.Latencies))
	}
}

func TestRecordCallBoundsRingBuffer(t *testing.T) {
	log := &Log{stats: newStatsBook()}
	for i := 0; i < ringBufferSize+50; i++ {
		log.RecordCall("t", true, float64(i))
	}
	snap := log.StatsSnapshot()
	if len(snap["t"].Latencies) != ringBufferSize {
		t.Fatalf("expected ring buffer bounded to %d, got %d", ringBufferSize, len(snap["t"].Latencies))
	}
	// Oldest samples should have been evicted: the buffer should now start
	// at sample index 50.
	if snap["t"].Latencies[0] != 50 {
		t.Fatalf("expected oldest sample evicted, got first=%v", snap["t"].Latencies[0])
	}
}

func TestRecordSkipAndNotFound(t *testing.T) {
	log := &Log{stats: newStatsBook()}
	log.RecordSkip("t", "blocked")
	log.RecordSkip("t", "blocked")
	log.RecordNotFound("t")

	snap := log.StatsSnapshot()
	s := snap["t"]
	if s.SkipReasons["blocked"] != 2 {
		t.Fatalf("expected 2 blocked skips, got %d", s.SkipReasons["blocked"])
	}
	if s.NotFound != 1 {
		t.Fatalf("expected 1 not_found, got %d", s.NotFound)
	}
}
