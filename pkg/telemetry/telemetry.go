// Package telemetry measures per-hop latency with fixed-size lock-free
// sample windows and reports percentiles against an SLO.
package telemetry

import (
	"cmp"
	"slices"
	"sync/atomic"
)

// Hop names.
const (
	HopIngressToEngine      = "ingress_to_engine_ns"
	HopEngineClassification = "engine_classification_ns"
	HopStrategyDispatch     = "strategy_dispatch_ns"
)

// HopStats is derived from a window on demand.
type HopStats struct {
	Hop         string `json:"hop"`
	SampleCount int    `json:"sample_count"`
	P50Ns       uint64 `json:"p50_ns"`
	P99Ns       uint64 `json:"p99_ns"`
	MaxNs       uint64 `json:"max_ns"`
}

// window is a circular buffer of samples. Writers race on slots but the
// slot index is always taken modulo capacity.
type window struct {
	hop     string
	write   atomic.Uint64
	fill    atomic.Uint64
	samples []atomic.Uint64
}

func newWindow(hop string, capacity int) *window {
	return &window{hop: hop, samples: make([]atomic.Uint64, capacity)}
}

func (w *window) record(ns uint64) {
	capacity := uint64(len(w.samples))
	slot := w.write.Add(1) - 1
	w.samples[slot%capacity].Store(ns)
	for {
		n := w.fill.Load()
		if n >= capacity || w.fill.CompareAndSwap(n, n+1) {
			return
		}
	}
}

func (w *window) snapshot() (HopStats, bool) {
	capacity := uint64(len(w.samples))
	n := min(w.fill.Load(), capacity)
	if n == 0 {
		return HopStats{}, false
	}
	write := w.write.Load()
	var start uint64
	if write > n {
		start = write - n
	}
	values := make([]uint64, n)
	for i := range n {
		values[i] = w.samples[(start+i)%capacity].Load()
	}
	s := StatsFromSamples(values)
	s.Hop = w.hop
	return s, true
}

// StatsFromSamples computes p50/p99/max over values, sorting them in
// place. The Hop field is left empty.
func StatsFromSamples(values []uint64) HopStats {
	if len(values) == 0 {
		return HopStats{}
	}
	slices.Sort(values)
	return HopStats{
		SampleCount: len(values),
		P50Ns:       percentileBps(values, 5_000),
		P99Ns:       percentileBps(values, 9_900),
		MaxNs:       values[len(values)-1],
	}
}

// percentileBps is nearest-rank on a sorted slice:
// index = floor((n-1) * bps / 10000).
func percentileBps(sorted []uint64, bps uint64) uint64 {
	if len(sorted) == 0 {
		return 0
	}
	maxIndex := uint64(len(sorted) - 1)
	idx := maxIndex * bps / 10_000
	if idx > maxIndex {
		idx = maxIndex
	}
	return sorted[idx]
}

// LatencyTelemetry holds one window per hop.
type LatencyTelemetry struct {
	enabled bool
	sloNs   uint64
	windows [3]*window
	dropped atomic.Uint64
}

// New creates enabled telemetry. capacity below 1 is raised to 1.
func New(capacity int, sloNs uint64) *LatencyTelemetry {
	return newTelemetry(true, capacity, sloNs)
}

// Disabled returns telemetry whose recording and reporting are no-ops.
func Disabled() *LatencyTelemetry {
	return newTelemetry(false, 1, 0)
}

func newTelemetry(enabled bool, capacity int, sloNs uint64) *LatencyTelemetry {
	capacity = max(capacity, 1)
	return &LatencyTelemetry{
		enabled: enabled,
		sloNs:   sloNs,
		windows: [3]*window{
			newWindow(HopIngressToEngine, capacity),
			newWindow(HopEngineClassification, capacity),
			newWindow(HopStrategyDispatch, capacity),
		},
	}
}

func (t *LatencyTelemetry) Enabled() bool { return t.enabled }

// SLONs returns the alert threshold.
func (t *LatencyTelemetry) SLONs() uint64 { return t.sloNs }

// Record stores one sample. Unknown hops count as dropped.
func (t *LatencyTelemetry) Record(hop string, ns uint64) {
	if !t.enabled {
		return
	}
	switch hop {
	case HopIngressToEngine:
		t.windows[0].record(ns)
	case HopEngineClassification:
		t.windows[1].record(ns)
	case HopStrategyDispatch:
		t.windows[2].record(ns)
	default:
		t.dropped.Add(1)
	}
}

// Dropped returns the count of samples recorded against unknown hops.
func (t *LatencyTelemetry) Dropped() uint64 { return t.dropped.Load() }

// SnapshotAll returns stats for every hop with samples, sorted by hop
// name. Disabled telemetry returns nil.
func (t *LatencyTelemetry) SnapshotAll() []HopStats {
	if !t.enabled {
		return nil
	}
	out := make([]HopStats, 0, len(t.windows))
	for _, w := range t.windows {
		if s, ok := w.snapshot(); ok {
			out = append(out, s)
		}
	}
	slices.SortFunc(out, func(a, b HopStats) int { return cmp.Compare(a.Hop, b.Hop) })
	return out
}
