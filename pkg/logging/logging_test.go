package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestEventBufferWraps(t *testing.T) {
	eb := NewEventBuffer(3)
	for _, sig := range []string{"a", "b", "c", "d"} {
		eb.Add(Record{Category: CategoryCandidate, Signature: sig})
	}
	got := eb.Latest(10)
	if len(got) != 3 {
		t.Fatalf("latest len = %d, want 3", len(got))
	}
	if got[0].Signature != "d" || got[2].Signature != "b" {
		t.Errorf("latest order = %s..%s", got[0].Signature, got[2].Signature)
	}
	if got[0].Seq != 4 || eb.Total() != 4 {
		t.Errorf("seq = %d total = %d", got[0].Seq, eb.Total())
	}
	if got[0].Time.IsZero() {
		t.Error("time not stamped")
	}
	if eb.Latest(0) != nil {
		t.Error("Latest(0) not nil")
	}
}

func TestLatestFiltered(t *testing.T) {
	eb := NewEventBuffer(8)
	eb.Add(Record{Category: CategoryCandidate, Strategy: "cpmm", Source: "fpga_dma"})
	eb.Add(Record{Category: CategoryAlert, Message: "slo"})
	eb.Add(Record{Category: CategoryCandidate, Strategy: "openbook", Source: "kernel_bypass"})

	if got := eb.LatestFiltered(10, RecordFilter{Category: "candidate"}); len(got) != 2 {
		t.Errorf("candidates = %d", len(got))
	}
	got := eb.LatestFiltered(10, RecordFilter{Strategy: "OPENBOOK"})
	if len(got) != 1 || got[0].Source != "kernel_bypass" {
		t.Errorf("openbook filter = %+v", got)
	}
	if got := eb.LatestFiltered(1, RecordFilter{}); len(got) != 1 || got[0].Strategy != "openbook" {
		t.Errorf("limit = %+v", got)
	}
	if !(RecordFilter{}).IsEmpty() || (RecordFilter{Source: "x"}).IsEmpty() {
		t.Error("IsEmpty wrong")
	}
}

func TestSubscribe(t *testing.T) {
	eb := NewEventBuffer(4)
	sub := eb.Subscribe(1)
	eb.Add(Record{Signature: "one"})
	eb.Add(Record{Signature: "two"}) // dropped, channel full

	select {
	case rec := <-sub.C:
		if rec.Signature != "one" {
			t.Errorf("got %q", rec.Signature)
		}
	case <-time.After(time.Second):
		t.Fatal("no record delivered")
	}
	select {
	case rec := <-sub.C:
		t.Errorf("slow subscriber got extra record %q", rec.Signature)
	default:
	}

	sub.Close()
	eb.Add(Record{Signature: "three"})
	select {
	case <-sub.C:
		t.Error("closed subscription still receives")
	default:
	}
}

func TestFanoutHandler(t *testing.T) {
	var out bytes.Buffer
	eb := NewEventBuffer(8)
	base := slog.NewTextHandler(&out, &slog.HandlerOptions{Level: slog.LevelError})
	log := slog.New(NewFanoutHandler(base, eb, slog.LevelWarn))

	log.Info("routine")
	log.With("hop", "strategy_dispatch_ns").WithGroup("slo").Warn("Latency SLO alert", "p99", 5)
	log.Error("boom")

	recs := eb.Latest(10)
	if len(recs) != 2 {
		t.Fatalf("got %d alert records, want 2", len(recs))
	}
	if recs[1].Message != "Latency SLO alert hop=strategy_dispatch_ns slo.p99=5" || recs[1].Level != "WARN" {
		t.Errorf("alert = %+v", recs[1])
	}
	if recs[0].Category != CategoryAlert {
		t.Errorf("category = %q", recs[0].Category)
	}
	if strings.Contains(out.String(), "Latency SLO alert") || !strings.Contains(out.String(), "boom") {
		t.Errorf("base handler level not honored: %q", out.String())
	}
}
