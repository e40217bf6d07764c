// Package metrics provides lock-free timing histograms threaded through the
// daemon's collectors, runner, and RPC surface.
package metrics

import (
	"sync/atomic"
	"time"
)

// Histogram is a lock-free latency bucket safe for concurrent use.
type Histogram struct {
	count atomic.Uint64
	sumUs atomic.Uint64
	minUs atomic.Uint64
	maxUs atomic.Uint64
}

// NewHistogram returns a zeroed histogram with minUs primed to the maximum
// so the first recorded sample always wins the min comparison.
func NewHistogram() *Histogram {
	h := &Histogram{}
	h.minUs.Store(^uint64(0))
	return h
}

// Record adds one observed duration to the histogram.
func (h *Histogram) Record(d time.Duration) {
	us := uint64(d.Microseconds())
	h.count.Add(1)
	h.sumUs.Add(us)

	for {
		current := h.minUs.Load()
		if us >= current {
			break
		}
		if h.minUs.CompareAndSwap(current, us) {
			break
		}
	}
	for {
		current := h.maxUs.Load()
		if us <= current {
			break
		}
		if h.maxUs.CompareAndSwap(current, us) {
			break
		}
	}
}

// HistogramStats is a point-in-time snapshot of a Histogram.
type HistogramStats struct {
	Count int64
	SumUs int64
	MinUs int64
	MaxUs int64
	AvgUs int64
}

// Stats snapshots the histogram's current counters.
func (h *Histogram) Stats() HistogramStats {
	count := h.count.Load()
	sumUs := h.sumUs.Load()
	minUs := h.minUs.Load()
	maxUs := h.maxUs.Load()
	if minUs == ^uint64(0) {
		minUs = 0
	}
	var avgUs uint64
	if count > 0 {
		avgUs = sumUs / count
	}
	return HistogramStats{
		Count: int64(count),
		SumUs: int64(sumUs),
		MinUs: int64(minUs),
		MaxUs: int64(maxUs),
		AvgUs: int64(avgUs),
	}
}

// Reset zeroes the histogram in place.
func (h *Histogram) Reset() {
	h.count.Store(0)
	h.sumUs.Store(0)
	h.minUs.Store(^uint64(0))
	h.maxUs.Store(0)
}

// Metrics is the daemon's full set of timing histograms, constructed once at
// bootstrap and threaded through every component rather than read from a
// package-level global.
type Metrics struct {
	MuxCmd          *Histogram
	AgentStatusCmd  *Histogram
	PollCycle       *Histogram
	EventProcessing *Histogram
	CacheWrite      *Histogram
	RPCRequest      *Histogram
}

// New builds a fresh, zeroed Metrics value.
func New() *Metrics {
	return &Metrics{
		MuxCmd:          NewHistogram(),
		AgentStatusCmd:  NewHistogram(),
		PollCycle:       NewHistogram(),
		EventProcessing: NewHistogram(),
		CacheWrite:      NewHistogram(),
		RPCRequest:      NewHistogram(),
	}
}

// Summary is a snapshot of every histogram in Metrics.
type Summary struct {
	MuxCmd          HistogramStats
	AgentStatusCmd  HistogramStats
	PollCycle       HistogramStats
	EventProcessing HistogramStats
	CacheWrite      HistogramStats
	RPCRequest      HistogramStats
}

// Summary snapshots every histogram.
func (m *Metrics) Summary() Summary {
	return Summary{
		MuxCmd:          m.MuxCmd.Stats(),
		AgentStatusCmd:  m.AgentStatusCmd.Stats(),
		PollCycle:       m.PollCycle.Stats(),
		EventProcessing: m.EventProcessing.Stats(),
		CacheWrite:      m.CacheWrite.Stats(),
		RPCRequest:      m.RPCRequest.Stats(),
	}
}

// Reset zeroes every histogram.
func (m *Metrics) Reset() {
	m.MuxCmd.Reset()
	m.AgentStatusCmd.Reset()
	m.PollCycle.Reset()
	m.EventProcessing.Reset()
	m.CacheWrite.Reset()
	m.RPCRequest.Reset()
}

// RecordDuration records d against the named histogram. Unknown names are
// silently dropped so a renamed or removed histogram never panics a caller.
func (m *Metrics) RecordDuration(name string, d time.Duration) {
	if h := m.histogram(name); h != nil {
		h.Record(d)
	}
}

func (m *Metrics) histogram(name string) *Histogram {
	switch name {
	case "mux_cmd":
		return m.MuxCmd
	case "agent_status_cmd":
		return m.AgentStatusCmd
	case "poll_cycle":
		return m.PollCycle
	case "event_processing":
		return m.EventProcessing
	case "cache_write":
		return m.CacheWrite
	case "rpc_request":
		return m.RPCRequest
	default:
		return nil
	}
}

// Timer records elapsed time against a histogram when Stop is called. The
// caller is responsible for calling Stop; there is no finalizer, matching
// a preference for explicit resource release over relying on
// garbage collection.
type Timer struct {
	histogram *Histogram
	start     time.Time
}

// StartTimer begins timing against h.
func StartTimer(h *Histogram) Timer {
	return Timer{histogram: h, start: time.Now()}
}

// Stop records the elapsed duration since StartTimer.
func (t Timer) Stop() {
	if t.histogram != nil {
		t.histogram.Record(time.Since(t.start))
	}
}
