// Package replay benchmarks the two prefilter paths over a synthetic
// stream of pool-creation events.
package replay

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/psaab/slotstrike/pkg/events"
	"github.com/psaab/slotstrike/pkg/fpga"
	"github.com/psaab/slotstrike/pkg/prefilter"
	"github.com/psaab/slotstrike/pkg/solana"
	"github.com/psaab/slotstrike/pkg/telemetry"
)

// PathStats is the result for one ingress path.
type PathStats struct {
	Path       string `json:"path"`
	Total      int    `json:"total_events"`
	Candidates int    `json:"candidate_events"`
	ElapsedNs  uint64 `json:"elapsed_ns"`
	EventsPerS uint64 `json:"throughput_events_per_sec"`
	P50Ns      uint64 `json:"p50_ns"`
	P99Ns      uint64 `json:"p99_ns"`
	MaxNs      uint64 `json:"max_ns"`
}

// Report covers both paths over the same dataset.
type Report struct {
	EventCount   int       `json:"event_count"`
	BurstSize    int       `json:"burst_size"`
	FPGA         PathStats `json:"fpga_path"`
	KernelBypass PathStats `json:"kernel_bypass_path"`
}

type sample struct {
	event   events.RawLogEvent
	payload []byte
}

// Run builds eventCount synthetic events and times the DMA byte prefilter
// and the decoded-line prefilter over them, burst events at a time.
// Counts below 1 are raised to 1.
func Run(eventCount, burst int) Report {
	eventCount = max(eventCount, 1)
	burst = max(burst, 1)
	dataset := buildDataset(eventCount)

	return Report{
		EventCount: eventCount,
		BurstSize:  burst,
		FPGA: benchmark(events.SourceFpgaDma.String(), dataset, burst, func(s *sample) bool {
			return prefilter.IsPoolCreationPayload(s.payload)
		}),
		KernelBypass: benchmark(events.SourceKernelBypass.String(), dataset, burst, func(s *sample) bool {
			return prefilter.IsPoolCreationLogs(s.event.Logs)
		}),
	}
}

// Log writes the report in the operator format.
func Log(r Report) {
	slog.Info(fmt.Sprintf("Replay benchmark > events=%d burst=%d", r.EventCount, r.BurstSize))
	for _, p := range []PathStats{r.FPGA, r.KernelBypass} {
		slog.Info(fmt.Sprintf("Replay benchmark > path=%s candidates=%d throughput=%dev/s p50=%dns p99=%dns max=%dns",
			p.Path, p.Candidates, p.EventsPerS, p.P50Ns, p.P99Ns, p.MaxNs))
	}
}

func buildDataset(n int) []sample {
	out := make([]sample, n)
	for i := range out {
		sig := fmt.Sprintf("synthetic_sig_%d", i)
		logs := syntheticLogs(i)
		out[i] = sample{
			event: events.RawLogEvent{
				Signature: sig,
				Logs:      logs,
				Ingress:   events.FromReceiveClock(events.SourceKernelBypass, events.NowNanos()),
			},
			payload: fpga.EncodeDMAPayload(sig, false, logs),
		}
	}
	return out
}

// syntheticLogs alternates OpenBook (even) and CPMM (odd) pool creations.
func syntheticLogs(i int) []string {
	if i%2 == 0 {
		return []string{
			fmt.Sprintf("Program %s invoke [1]", solana.V4ProgramID),
			"Program log: initialize2",
		}
	}
	return []string{
		fmt.Sprintf("Program %s invoke [1]", solana.CPMMProgramID),
		"Program log: vault_0_amount:1234, vault_1_amount:5678",
	}
}

func benchmark(path string, dataset []sample, burst int, isCandidate func(*sample) bool) PathStats {
	perEvent := make([]uint64, 0, len(dataset))
	candidates := 0
	start := time.Now()
	for off := 0; off < len(dataset); off += burst {
		end := min(off+burst, len(dataset))
		for i := off; i < end; i++ {
			t := time.Now()
			if isCandidate(&dataset[i]) {
				candidates++
			}
			perEvent = append(perEvent, uint64(time.Since(t)))
		}
	}
	elapsed := uint64(time.Since(start))

	st := telemetry.StatsFromSamples(perEvent)
	return PathStats{
		Path:       path,
		Total:      len(dataset),
		Candidates: candidates,
		ElapsedNs:  elapsed,
		EventsPerS: throughput(len(dataset), elapsed),
		P50Ns:      st.P50Ns,
		P99Ns:      st.P99Ns,
		MaxNs:      st.MaxNs,
	}
}

func throughput(total int, elapsedNs uint64) uint64 {
	if elapsedNs == 0 {
		return 0
	}
	return uint64(float64(total) * float64(time.Second) / float64(elapsedNs))
}
