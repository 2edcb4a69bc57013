package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Reporter periodically logs hop percentiles and SLO breaches.
type Reporter struct {
	t        *LatencyTelemetry
	interval time.Duration
	// OnReport, when set, receives each snapshot after it is logged.
	OnReport func([]HopStats)
}

// NewReporter creates a reporter. A non-positive interval defaults to 15s.
func NewReporter(t *LatencyTelemetry, interval time.Duration) *Reporter {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Reporter{t: t, interval: interval}
}

// Run reports on every tick until ctx is cancelled. It returns at once
// when telemetry is disabled.
func (r *Reporter) Run(ctx context.Context) {
	if !r.t.Enabled() {
		return
	}
	slog.Info("latency reporter started", "interval", r.interval, "slo_ns", r.t.SLONs())
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("latency reporter stopped")
			return
		case <-ticker.C:
			r.Report()
		}
	}
}

// Report logs one snapshot.
func (r *Reporter) Report() {
	stats := r.t.SnapshotAll()
	slo := r.t.SLONs()
	for _, s := range stats {
		slog.Info(fmt.Sprintf("Latency telemetry > hop=%s count=%d p50=%dns p99=%dns max=%dns",
			s.Hop, s.SampleCount, s.P50Ns, s.P99Ns, s.MaxNs))
		if s.P99Ns > slo || s.MaxNs > slo {
			slog.Warn(fmt.Sprintf("Latency SLO alert > hop=%s threshold=%dns p99=%dns max=%dns",
				s.Hop, slo, s.P99Ns, s.MaxNs))
		}
	}
	if d := r.t.Dropped(); d > 0 {
		slog.Warn(fmt.Sprintf("Latency telemetry > dropped unsupported hop samples=%d", d))
	}
	if r.OnReport != nil && r.t.Enabled() {
		r.OnReport(stats)
	}
}
