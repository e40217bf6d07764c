package metrics

import (
	"testing"
	"time"
)

func TestHistogramRecordsValues(t *testing.T) {
	h := NewHistogram()
	h.Record(100 * time.Microsecond)
	h.Record(200 * time.Microsecond)
	h.Record(150 * time.Microsecond)

	stats := h.Stats()
	if stats.Count != 3 {
		t.Fatalf("expected count 3, got %d", stats.Count)
	}
	if stats.MinUs != 100 {
		t.Fatalf("expected min 100, got %d", stats.MinUs)
	}
	if stats.MaxUs != 200 {
		t.Fatalf("expected max 200, got %d", stats.MaxUs)
	}
	if stats.SumUs != 450 {
		t.Fatalf("expected sum 450, got %d", stats.SumUs)
	}
	if stats.AvgUs != 150 {
		t.Fatalf("expected avg 150, got %d", stats.AvgUs)
	}
}

func TestHistogramResetClearsValues(t *testing.T) {
	h := NewHistogram()
	h.Record(100 * time.Microsecond)
	h.Reset()

	stats := h.Stats()
	if stats.Count != 0 || stats.MinUs != 0 || stats.MaxUs != 0 {
		t.Fatalf("expected zeroed stats after reset, got %+v", stats)
	}
}

func TestHistogramEmptyStatsHaveZeroMin(t *testing.T) {
	h := NewHistogram()
	stats := h.Stats()
	if stats.MinUs != 0 || stats.Count != 0 {
		t.Fatalf("expected zeroed stats on empty histogram, got %+v", stats)
	}
}

func TestTimerRecordsOnStop(t *testing.T) {
	h := NewHistogram()
	timer := StartTimer(h)
	time.Sleep(time.Millisecond)
	timer.Stop()

	stats := h.Stats()
	if stats.Count != 1 {
		t.Fatalf("expected count 1, got %d", stats.Count)
	}
	if stats.MinUs < 1000 {
		t.Fatalf("expected at least 1ms recorded, got %dus", stats.MinUs)
	}
}

func TestMetricsSummaryReflectsAllHistograms(t *testing.T) {
	m := New()
	m.RecordDuration("mux_cmd", 500*time.Microsecond)
	m.RecordDuration("agent_status_cmd", 250*time.Microsecond)
	m.RecordDuration("unknown_histogram", time.Second) // silently dropped

	summary := m.Summary()
	if summary.MuxCmd.Count != 1 {
		t.Fatalf("expected mux_cmd count 1, got %d", summary.MuxCmd.Count)
	}
	if summary.AgentStatusCmd.Count != 1 {
		t.Fatalf("expected agent_status_cmd count 1, got %d", summary.AgentStatusCmd.Count)
	}
}

func TestMetricsResetClearsEverything(t *testing.T) {
	m := New()
	m.RecordDuration("rpc_request", time.Millisecond)
	m.Reset()

	if m.Summary().RPCRequest.Count != 0 {
		t.Fatal("expected rpc_request histogram cleared after reset")
	}
}
