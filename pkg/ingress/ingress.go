// Package ingress defines the contract every log-event transport backend
// implements and the startup policy that picks exactly one of them.
package ingress

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/psaab/slotstrike/pkg/events"
)

// Mode is the configured network stack.
type Mode string

const (
	ModeFPGA         Mode = "fpga"
	ModeKernelBypass Mode = "kernel_bypass"
	ModeStandardTCP  Mode = "standard_tcp"
)

// ResolveMode picks the network stack from the runtime flags.
// FPGA wins over kernel bypass, which wins over standard TCP.
func ResolveMode(fpgaEnabled, kernelBypassEnabled bool) Mode {
	switch {
	case fpgaEnabled:
		return ModeFPGA
	case kernelBypassEnabled:
		return ModeKernelBypass
	default:
		return ModeStandardTCP
	}
}

// Port is one ingress backend.
type Port interface {
	// Name identifies the backend in logs, e.g. "fpga_dma".
	Name() string
	// ValidateReady probes preconditions (device, socket, environment)
	// without starting anything.
	ValidateReady() error
	// SpawnStream starts background workers that publish events to out
	// and returns immediately. Workers exit when ctx is cancelled.
	SpawnStream(ctx context.Context, out chan<- events.RawLogEvent) error
	// Wait blocks until every worker started by SpawnStream has exited.
	Wait()
	// Counters exposes per-backend frame accounting.
	Counters() *Counters
}

// Counters tracks frames through a backend. Safe for concurrent use.
type Counters struct {
	Frames       atomic.Uint64 // raw frames or messages read
	Filtered     atomic.Uint64 // dropped by the byte prefilter
	DecodeErrors atomic.Uint64 // dropped as malformed
	Published    atomic.Uint64 // handed to the engine
	Reconnects   atomic.Uint64 // connect/open failures and peer disconnects
}

// CounterSnapshot is a point-in-time copy of Counters.
type CounterSnapshot struct {
	Frames       uint64 `json:"frames"`
	Filtered     uint64 `json:"filtered"`
	DecodeErrors uint64 `json:"decode_errors"`
	Published    uint64 `json:"published"`
	Reconnects   uint64 `json:"reconnects"`
}

// Snapshot copies the current values.
func (c *Counters) Snapshot() CounterSnapshot {
	if c == nil {
		return CounterSnapshot{}
	}
	return CounterSnapshot{
		Frames:       c.Frames.Load(),
		Filtered:     c.Filtered.Load(),
		DecodeErrors: c.DecodeErrors.Load(),
		Published:    c.Published.Load(),
		Reconnects:   c.Reconnects.Load(),
	}
}

// Publish sends ev to out unless ctx is done first. It returns false when
// the stream should stop. The ingress channel is bounded: when the engine
// falls behind and out is full, Publish blocks the port worker until space
// frees up or ctx is cancelled. Events are never dropped here.
func Publish(ctx context.Context, out chan<- events.RawLogEvent, ev events.RawLogEvent, c *Counters) bool {
	select {
	case out <- ev:
		if c != nil {
			c.Published.Add(1)
		}
		return true
	case <-ctx.Done():
		return false
	}
}

// ReadinessError wraps a backend readiness failure with the mode it
// belongs to.
type ReadinessError struct {
	Mode Mode
	Err  error
}

func (e *ReadinessError) Error() string {
	switch e.Mode {
	case ModeFPGA:
		return fmt.Sprintf("fpga ingress prerequisites are not satisfied: %v", e.Err)
	case ModeKernelBypass:
		return fmt.Sprintf("kernel bypass ingress prerequisites are not satisfied: %v", e.Err)
	default:
		return fmt.Sprintf("standard tcp ingress prerequisites are not satisfied: %v", e.Err)
	}
}

func (e *ReadinessError) Unwrap() error { return e.Err }
