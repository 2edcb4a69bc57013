// Package fpga ingests pool-creation log frames produced by an FPGA NIC,
// either straight from a character device, through a Unix-socket DMA
// bridge, or from an in-memory mock ring.
package fpga

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/psaab/slotstrike/pkg/events"
	"github.com/psaab/slotstrike/pkg/ingress"
	"github.com/psaab/slotstrike/pkg/prefilter"
)

const (
	// VendorMock selects the in-memory mock ring.
	VendorMock = "mock_dma"
	// VendorGeneric is the default vendor, any card behind a DMA bridge.
	VendorGeneric = "generic"

	// MockFrameEnv holds the payload served by the mock ring.
	MockFrameEnv = "FPGA_DMA_MOCK_FRAME"

	DefaultDevicePath = "/dev/slotstrike-fpga0"
	DefaultSocketPath = "/tmp/slotstrike-fpga-dma.sock"

	mockRingCapacity = 1024
)

// Vendors whose cards are reachable through a direct device or an
// external DMA bridge.
var dmaVendors = []string{"generic", "exanic", "xilinx", "amd", "solarflare", "napatech"}

// Readiness errors.
var (
	ErrUnsupportedVendor        = errors.New("unsupported FPGA vendor")
	ErrUnsupportedPlatform      = errors.New("FPGA ingress requires a Unix platform")
	ErrMissingMockPayload       = errors.New("mock FPGA DMA ring requires 'FPGA_DMA_MOCK_FRAME' environment payload")
	ErrSocketPathMissing        = errors.New("configured FPGA DMA socket path does not exist")
	ErrSocketUnavailable        = errors.New("failed to connect FPGA DMA socket")
	ErrDevicePathMissing        = errors.New("configured FPGA direct device path does not exist")
	ErrDeviceUnavailable        = errors.New("failed to open FPGA direct device")
	ErrAlreadyStarted           = errors.New("FPGA stream already started")
	errUnsupportedModeForVendor = errors.New("ingress mode not supported for vendor")
)

// IngressMode is the configured FPGA transport.
type IngressMode string

const (
	ModeAuto           IngressMode = "auto"
	ModeMockDMA        IngressMode = "mock_dma"
	ModeDirectDevice   IngressMode = "direct_device"
	ModeExternalSocket IngressMode = "external_socket"
)

// ParseIngressMode accepts a mode name, case-insensitive.
func ParseIngressMode(s string) (IngressMode, bool) {
	switch m := IngressMode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeAuto, ModeMockDMA, ModeDirectDevice, ModeExternalSocket:
		return m, true
	default:
		return "", false
	}
}

type backend uint8

const (
	backendMock backend = iota
	backendDevice
	backendSocket
)

func (b backend) String() string {
	switch b {
	case backendMock:
		return "mock_dma"
	case backendDevice:
		return "direct_device"
	default:
		return "external_socket"
	}
}

// platformSupported is a variable so tests can exercise the unsupported
// branch on Linux.
var platformSupported = runtime.GOOS != "windows" && runtime.GOOS != "plan9" && runtime.GOOS != "js"

// Options configures a Feed.
type Options struct {
	Vendor     string
	Verbose    bool
	Mode       IngressMode
	DevicePath string
	SocketPath string
	// MockPayload overrides the FPGA_DMA_MOCK_FRAME environment variable.
	MockPayload []byte
}

// Feed is the FPGA ingress port.
type Feed struct {
	opts     Options
	vendor   string
	counters ingress.Counters

	mu      sync.Mutex
	started bool
	wg      sync.WaitGroup
}

var _ ingress.Port = (*Feed)(nil)

// New creates a feed. Nothing is probed until ValidateReady or SpawnStream.
func New(opts Options) *Feed {
	if opts.Mode == "" {
		opts.Mode = ModeAuto
	}
	if opts.DevicePath == "" {
		opts.DevicePath = DefaultDevicePath
	}
	if opts.SocketPath == "" {
		opts.SocketPath = DefaultSocketPath
	}
	return &Feed{
		opts:   opts,
		vendor: strings.ToLower(strings.TrimSpace(opts.Vendor)),
	}
}

func (f *Feed) Name() string { return events.SourceFpgaDma.String() }

func (f *Feed) Counters() *ingress.Counters { return &f.counters }

func isDMAVendor(v string) bool {
	for _, d := range dmaVendors {
		if v == d {
			return true
		}
	}
	return false
}

func (f *Feed) resolveBackend() (backend, error) {
	if !platformSupported {
		return 0, ErrUnsupportedPlatform
	}
	unsupported := func() error {
		return fmt.Errorf("%w %q in mode %s", ErrUnsupportedVendor, f.opts.Vendor, f.opts.Mode)
	}
	switch f.opts.Mode {
	case ModeMockDMA:
		return backendMock, nil
	case ModeDirectDevice:
		if isDMAVendor(f.vendor) {
			return backendDevice, nil
		}
		return 0, unsupported()
	case ModeExternalSocket:
		if isDMAVendor(f.vendor) {
			return backendSocket, nil
		}
		return 0, unsupported()
	case ModeAuto:
		switch {
		case f.vendor == VendorMock:
			return backendMock, nil
		case isDMAVendor(f.vendor):
			return backendDevice, nil
		}
		return 0, unsupported()
	default:
		return 0, fmt.Errorf("%w: %q", errUnsupportedModeForVendor, f.opts.Mode)
	}
}

func (f *Feed) mockPayload() ([]byte, error) {
	if len(f.opts.MockPayload) > 0 {
		return f.opts.MockPayload, nil
	}
	if v := os.Getenv(MockFrameEnv); v != "" {
		return []byte(v), nil
	}
	return nil, ErrMissingMockPayload
}

// ValidateReady checks that the selected backend can start.
func (f *Feed) ValidateReady() error {
	b, err := f.resolveBackend()
	if err != nil {
		return err
	}
	switch b {
	case backendMock:
		_, err = f.mockPayload()
		return err
	case backendDevice:
		return probeDevice(f.opts.DevicePath)
	default:
		return probeSocket(f.opts.SocketPath)
	}
}

// SpawnStream starts the backend worker. A mock feed drains its ring once
// and exits; device and socket feeds run until ctx is cancelled.
func (f *Feed) SpawnStream(ctx context.Context, out chan<- events.RawLogEvent) error {
	b, err := f.resolveBackend()
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started {
		return ErrAlreadyStarted
	}

	var run func()
	switch b {
	case backendMock:
		payload, err := f.mockPayload()
		if err != nil {
			return err
		}
		ring := newRing(mockRingCapacity)
		ring.Push(Frame{HardwareTimestampNs: events.NowNanos(), Payload: payload})
		run = func() { f.drainRing(ctx, ring, out) }
	case backendDevice:
		run = func() { f.readDevice(ctx, out) }
	default:
		run = func() { f.readSocket(ctx, out) }
	}

	f.started = true
	slog.Info("FPGA ingress started", "vendor", f.vendor, "backend", b.String())
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		run()
	}()
	return nil
}

// Wait blocks until the worker started by SpawnStream returns.
func (f *Feed) Wait() { f.wg.Wait() }

// processFrame prefilters, decodes and publishes one frame. It returns
// false when the consumer is gone.
func (f *Feed) processFrame(ctx context.Context, frame Frame, out chan<- events.RawLogEvent) bool {
	f.counters.Frames.Add(1)
	if f.opts.Verbose {
		slog.Debug("FPGA DMA RX", "ts", frame.HardwareTimestampNs, "bytes", len(frame.Payload))
	}
	if !prefilter.IsPoolCreationPayload(frame.Payload) {
		f.counters.Filtered.Add(1)
		slog.Debug("FPGA DMA frame dropped by prefilter", "bytes", len(frame.Payload))
		return true
	}

	decoded, err := DecodeDMAPayload(frame.Payload)
	if err != nil {
		f.counters.DecodeErrors.Add(1)
		slog.Warn("FPGA DMA decode failed", "err", err)
		return true
	}

	hw := frame.HardwareTimestampNs
	ev := events.RawLogEvent{
		Signature: decoded.Signature,
		Logs:      decoded.Logs,
		HasError:  decoded.HasError,
		Ingress:   events.NewIngressMetadata(events.SourceFpgaDma, &hw, events.NowNanos()),
	}
	if !ingress.Publish(ctx, out, ev, &f.counters) {
		slog.Warn("FPGA event consumer stopped. Stopping DMA stream.")
		return false
	}
	return true
}

func (f *Feed) drainRing(ctx context.Context, r *ring, out chan<- events.RawLogEvent) {
	for {
		frame, ok := r.Pop()
		if !ok {
			slog.Debug("mock FPGA DMA ring drained")
			return
		}
		if !f.processFrame(ctx, frame, out) {
			return
		}
	}
}
