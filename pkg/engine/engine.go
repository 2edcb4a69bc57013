// Package engine classifies ingress log events and dispatches pool
// creations to the strategy handlers.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/psaab/slotstrike/pkg/events"
	"github.com/psaab/slotstrike/pkg/prefilter"
	"github.com/psaab/slotstrike/pkg/solana"
	"github.com/psaab/slotstrike/pkg/telemetry"
)

// Dispatcher receives classified pool-creation events.
type Dispatcher interface {
	HandleCPMM(ctx context.Context, ev events.RawLogEvent, sig solana.Signature)
	HandleOpenBook(ctx context.Context, ev events.RawLogEvent, sig solana.Signature)
}

// Counters tracks classification outcomes. Safe for concurrent use.
type Counters struct {
	Received         atomic.Uint64
	FailedTx         atomic.Uint64 // has_error set
	InvalidSignature atomic.Uint64
	CPMM             atomic.Uint64
	OpenBook         atomic.Uint64
	Ignored          atomic.Uint64 // no candidate
}

// CounterSnapshot is a point-in-time copy of Counters.
type CounterSnapshot struct {
	Received         uint64 `json:"received"`
	FailedTx         uint64 `json:"failed_tx"`
	InvalidSignature uint64 `json:"invalid_signature"`
	CPMM             uint64 `json:"cpmm"`
	OpenBook         uint64 `json:"openbook"`
	Ignored          uint64 `json:"ignored"`
}

// Engine is the single consumer of the ingress channel.
type Engine struct {
	dispatch  Dispatcher
	telemetry *telemetry.LatencyTelemetry
	counters  Counters
	inflight  sync.WaitGroup
}

// New creates an engine. A nil telemetry disables latency recording.
func New(d Dispatcher, t *telemetry.LatencyTelemetry) *Engine {
	if t == nil {
		t = telemetry.Disabled()
	}
	return &Engine{dispatch: d, telemetry: t}
}

// Snapshot returns the current classification counters.
func (e *Engine) Snapshot() CounterSnapshot {
	return CounterSnapshot{
		Received:         e.counters.Received.Load(),
		FailedTx:         e.counters.FailedTx.Load(),
		InvalidSignature: e.counters.InvalidSignature.Load(),
		CPMM:             e.counters.CPMM.Load(),
		OpenBook:         e.counters.OpenBook.Load(),
		Ignored:          e.counters.Ignored.Load(),
	}
}

// Run consumes events until in is closed. Each event is handled in its own
// goroutine so a slow strategy never blocks the channel. ctx is handed to
// the strategy handlers.
func (e *Engine) Run(ctx context.Context, in <-chan events.RawLogEvent) {
	for ev := range in {
		e.counters.Received.Add(1)
		e.telemetry.Record(telemetry.HopIngressToEngine, events.SinceNanos(ev.Ingress.NormalizedTimestampNs))

		e.inflight.Add(1)
		go func() {
			defer e.inflight.Done()
			e.handle(ctx, ev)
		}()
	}
	slog.Warn("Log event channel closed. Sniper engine stopped.")
}

// Wait blocks until every in-flight handler has returned.
func (e *Engine) Wait() {
	e.inflight.Wait()
}

func (e *Engine) handle(ctx context.Context, ev events.RawLogEvent) {
	start := time.Now()
	defer func() {
		e.telemetry.Record(telemetry.HopEngineClassification, elapsedNs(start))
	}()

	if ev.HasError {
		e.counters.FailedTx.Add(1)
		return
	}
	sig, err := solana.ParseSignature(ev.Signature)
	if err != nil {
		e.counters.InvalidSignature.Add(1)
		slog.Debug("Invalid signature in log event", "err", err)
		return
	}

	switch {
	case prefilter.IsCPMMCandidate(ev.Logs):
		e.counters.CPMM.Add(1)
		dispatched := time.Now()
		e.dispatch.HandleCPMM(ctx, ev, sig)
		e.telemetry.Record(telemetry.HopStrategyDispatch, elapsedNs(dispatched))
	case prefilter.IsOpenBookCandidate(ev.Logs):
		e.counters.OpenBook.Add(1)
		dispatched := time.Now()
		e.dispatch.HandleOpenBook(ctx, ev, sig)
		e.telemetry.Record(telemetry.HopStrategyDispatch, elapsedNs(dispatched))
	default:
		e.counters.Ignored.Add(1)
	}
}

func elapsedNs(since time.Time) uint64 {
	d := time.Since(since)
	if d < 0 {
		return 0
	}
	return uint64(d)
}
