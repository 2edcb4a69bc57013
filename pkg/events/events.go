// Package events defines the log event types that flow from ingress
// backends to the sniper engine.
package events

import (
	"time"

	"golang.org/x/sys/unix"
)

// MaxHardwareSkewNs bounds how far a hardware timestamp may drift from the
// receive clock before it is discarded.
const MaxHardwareSkewNs uint64 = 5_000_000_000

// Source tags which ingress backend produced an event.
type Source uint8

const (
	SourceFpgaDma Source = iota
	SourceKernelBypass
	SourceStandardTCP
)

func (s Source) String() string {
	switch s {
	case SourceFpgaDma:
		return "fpga_dma"
	case SourceKernelBypass:
		return "kernel_bypass"
	case SourceStandardTCP:
		return "standard_tcp"
	default:
		return "unknown"
	}
}

// IngressMetadata records timing provenance for a single event.
// It is built once at ingress and never mutated.
type IngressMetadata struct {
	Source Source
	// HardwareTimestampNs is nil when the backend has no hardware clock.
	HardwareTimestampNs   *uint64
	ReceivedTimestampNs   uint64
	NormalizedTimestampNs uint64
}

// NewIngressMetadata builds metadata from an optional hardware timestamp
// and the local receive time.
func NewIngressMetadata(src Source, hardwareNs *uint64, receivedNs uint64) IngressMetadata {
	return IngressMetadata{
		Source:                src,
		HardwareTimestampNs:   hardwareNs,
		ReceivedTimestampNs:   receivedNs,
		NormalizedTimestampNs: NormalizeHardwareTimestamp(hardwareNs, receivedNs),
	}
}

// FromReceiveClock builds metadata for backends without a hardware clock.
func FromReceiveClock(src Source, receivedNs uint64) IngressMetadata {
	return NewIngressMetadata(src, nil, receivedNs)
}

// NormalizeHardwareTimestamp returns the hardware timestamp when it is
// present, non-zero and within MaxHardwareSkewNs of receivedNs (inclusive).
// Otherwise it returns receivedNs.
func NormalizeHardwareTimestamp(hardwareNs *uint64, receivedNs uint64) uint64 {
	if hardwareNs == nil || *hardwareNs == 0 {
		return receivedNs
	}
	hw := *hardwareNs
	var skew uint64
	if hw > receivedNs {
		skew = hw - receivedNs
	} else {
		skew = receivedNs - hw
	}
	if skew > MaxHardwareSkewNs {
		return receivedNs
	}
	return hw
}

// RawLogEvent is one program-log notification as seen by the engine.
type RawLogEvent struct {
	Signature string
	Logs      []string
	HasError  bool
	Ingress   IngressMetadata
}

// NowNanos returns the wall clock in nanoseconds since the Unix epoch,
// read straight from CLOCK_REALTIME.
func NowNanos() uint64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_REALTIME, &ts); err != nil {
		return uint64(time.Now().UnixNano())
	}
	return uint64(ts.Sec)*uint64(time.Second) + uint64(ts.Nsec)
}

// SinceNanos returns now minus ts, saturating at zero.
func SinceNanos(ts uint64) uint64 {
	now := NowNanos()
	if now < ts {
		return 0
	}
	return now - ts
}
