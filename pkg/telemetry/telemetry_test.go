package telemetry

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestPercentiles(t *testing.T) {
	tel := New(64, 1_000_000)
	for _, v := range []uint64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100} {
		tel.Record(HopIngressToEngine, v)
	}
	snaps := tel.SnapshotAll()
	if len(snaps) != 1 {
		t.Fatalf("got %d snapshots, want 1", len(snaps))
	}
	s := snaps[0]
	if s.Hop != HopIngressToEngine || s.SampleCount != 10 || s.P50Ns != 50 || s.P99Ns != 90 || s.MaxNs != 100 {
		t.Errorf("stats = %+v", s)
	}
}

func TestWindowKeepsRecentSamples(t *testing.T) {
	tel := New(3, 1_000_000)
	for v := uint64(1); v <= 4; v++ {
		tel.Record(HopIngressToEngine, v)
	}
	s := tel.SnapshotAll()[0]
	if s.SampleCount != 3 || s.MaxNs != 4 || s.P50Ns != 3 {
		t.Errorf("stats = %+v", s)
	}
}

func TestDisabledIsNoop(t *testing.T) {
	tel := Disabled()
	tel.Record(HopIngressToEngine, 1_000)
	tel.Record("bogus", 1)
	if tel.Enabled() || len(tel.SnapshotAll()) != 0 || tel.Dropped() != 0 {
		t.Error("disabled telemetry recorded something")
	}

	done := make(chan struct{})
	go func() {
		NewReporter(tel, time.Millisecond).Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reporter for disabled telemetry did not return")
	}
}

func TestUnknownHopDropped(t *testing.T) {
	tel := New(8, 1)
	tel.Record("rpc_roundtrip_ns", 5)
	if tel.Dropped() != 1 || len(tel.SnapshotAll()) != 0 {
		t.Errorf("dropped = %d", tel.Dropped())
	}
}

func TestSnapshotSortedByHop(t *testing.T) {
	tel := New(8, 1)
	tel.Record(HopStrategyDispatch, 1)
	tel.Record(HopIngressToEngine, 1)
	tel.Record(HopEngineClassification, 1)
	snaps := tel.SnapshotAll()
	want := []string{HopEngineClassification, HopIngressToEngine, HopStrategyDispatch}
	for i, s := range snaps {
		if s.Hop != want[i] {
			t.Errorf("snaps[%d] = %s, want %s", i, s.Hop, want[i])
		}
	}
}

func TestCapacityFloor(t *testing.T) {
	tel := New(0, 1)
	tel.Record(HopIngressToEngine, 7)
	tel.Record(HopIngressToEngine, 9)
	if s := tel.SnapshotAll()[0]; s.SampleCount != 1 || s.MaxNs != 9 {
		t.Errorf("stats = %+v", s)
	}
}

func TestConcurrentRecordStaysBounded(t *testing.T) {
	tel := New(16, 1)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := uint64(0); i < 1000; i++ {
				tel.Record(HopEngineClassification, i)
			}
		}()
	}
	wg.Wait()
	s := tel.SnapshotAll()[0]
	if s.SampleCount != 16 {
		t.Errorf("sample count = %d, want 16", s.SampleCount)
	}
	if !(s.P50Ns <= s.P99Ns && s.P99Ns <= s.MaxNs) {
		t.Errorf("percentiles out of order: %+v", s)
	}
}

func TestPercentileBps(t *testing.T) {
	if percentileBps(nil, 5_000) != 0 {
		t.Error("empty slice percentile not zero")
	}
	if got := percentileBps([]uint64{4}, 9_900); got != 4 {
		t.Errorf("single sample p99 = %d", got)
	}
	if got := percentileBps([]uint64{1, 2}, 20_000); got != 2 {
		t.Errorf("clamped index = %d", got)
	}
}

func TestReportLogsSLOAlert(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	tel := New(8, 100)
	tel.Record(HopStrategyDispatch, 50)
	tel.Record(HopStrategyDispatch, 500)
	tel.Record("unknown", 1)

	var got []HopStats
	r := NewReporter(tel, time.Second)
	r.OnReport = func(s []HopStats) { got = s }
	r.Report()

	out := buf.String()
	for _, want := range []string{
		"Latency telemetry > hop=strategy_dispatch_ns count=2 p50=50ns p99=50ns max=500ns",
		"Latency SLO alert > hop=strategy_dispatch_ns threshold=100ns p99=50ns max=500ns",
		"dropped unsupported hop samples=1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q in:\n%s", want, out)
		}
	}
	if len(got) != 1 {
		t.Errorf("OnReport got %d stats", len(got))
	}
}

func TestReporterStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewReporter(New(4, 1), 10*time.Millisecond).Run(ctx)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reporter did not stop")
	}
}
