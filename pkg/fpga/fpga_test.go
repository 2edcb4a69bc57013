package fpga

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/psaab/slotstrike/pkg/events"
	"github.com/psaab/slotstrike/pkg/solana"
)

func poolPayload(sig string) []byte {
	return EncodeDMAPayload(sig, false, []string{
		"Program " + solana.V4ProgramID + " invoke [1]",
		"Program log: initialize2: InitializeInstruction2 { nonce: 254, open_time: 0 }",
	})
}

func TestDecodeDMAPayload(t *testing.T) {
	got, err := DecodeDMAPayload([]byte("signature= abc \nhas_error= TRUE\nlog=one\nnoise\nlog=two\n"))
	if err != nil {
		t.Fatalf("DecodeDMAPayload: %v", err)
	}
	if got.Signature != "abc" || !got.HasError || len(got.Logs) != 2 || got.Logs[1] != "two" {
		t.Errorf("decoded = %+v", got)
	}
}

func TestDecodeDMAPayloadUnterminated(t *testing.T) {
	got, err := DecodeDMAPayload([]byte("signature=5M6A9\nhas_error=0\nlog=Program log: initialize2\nlog=Program log: init_pc_amount: 1,"))
	if err != nil {
		t.Fatalf("DecodeDMAPayload: %v", err)
	}
	if got.Signature != "5M6A9" || got.HasError || len(got.Logs) != 2 {
		t.Errorf("decoded = %+v", got)
	}
	if got.Logs[1] != "Program log: init_pc_amount: 1," {
		t.Errorf("last log = %q", got.Logs[1])
	}
}

func TestDecodeDMAPayloadErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		want    error
	}{
		{"invalid utf8", []byte{'s', 0xff, 0xfe}, ErrPayloadNotUTF8},
		{"invalid utf8 bytes only", []byte{0x80, 0xFF, 0x00}, ErrPayloadNotUTF8},
		{"empty signature", []byte("signature=  \nlog=x\n"), ErrEmptySignature},
		{"bad flag", []byte("signature=a\nhas_error=maybe\nlog=x\n"), ErrInvalidHasError},
		{"missing signature", []byte("has_error=0\nlog=x\n"), ErrMissingSignature},
		{"no logs", []byte("signature=a\nhas_error=off\n"), ErrMissingLogs},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeDMAPayload(tt.payload); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestParseFlag(t *testing.T) {
	for _, s := range []string{"1", "true", " YES ", "On"} {
		if v, ok := parseFlag(s); !ok || !v {
			t.Errorf("parseFlag(%q) = %v, %v", s, v, ok)
		}
	}
	for _, s := range []string{"0", "False", "no", "OFF"} {
		if v, ok := parseFlag(s); !ok || v {
			t.Errorf("parseFlag(%q) = %v, %v", s, v, ok)
		}
	}
	if _, ok := parseFlag("2"); ok {
		t.Error("parseFlag accepted 2")
	}
}

func TestParseExternalFrame(t *testing.T) {
	b64 := base64.StdEncoding.EncodeToString([]byte("from-b64"))
	f, err := ParseExternalFrame([]byte(`{"hardware_timestamp_ns":42,"payload":"plain","payload_base64":"`+b64+`"}`), 7)
	if err != nil {
		t.Fatalf("ParseExternalFrame: %v", err)
	}
	if f.HardwareTimestampNs != 42 || string(f.Payload) != "from-b64" {
		t.Errorf("frame = %d %q", f.HardwareTimestampNs, f.Payload)
	}

	f, err = ParseExternalFrame([]byte(`{"payload":"plain"}`), 7)
	if err != nil || f.HardwareTimestampNs != 7 || string(f.Payload) != "plain" {
		t.Errorf("frame = %+v, %v", f, err)
	}

	if _, err := ParseExternalFrame([]byte(`{nope`), 0); !errors.Is(err, ErrFrameNotJSON) {
		t.Errorf("bad json err = %v", err)
	}
	if _, err := ParseExternalFrame([]byte(`{"hardware_timestamp_ns":1}`), 0); !errors.Is(err, ErrFrameMissingPayload) {
		t.Errorf("missing payload err = %v", err)
	}
	if _, err := ParseExternalFrame([]byte(`{"payload":""}`), 0); !errors.Is(err, ErrFrameMissingPayload) {
		t.Errorf("empty payload err = %v", err)
	}
	if _, err := ParseExternalFrame([]byte(`{"payload_base64":"!!!"}`), 0); !errors.Is(err, ErrFrameInvalidBase64) {
		t.Errorf("bad base64 err = %v", err)
	}
}

func TestParseDeviceLine(t *testing.T) {
	f, err := ParseDeviceLine([]byte(base64.StdEncoding.EncodeToString([]byte("hello"))), 9)
	if err != nil || string(f.Payload) != "hello" || f.HardwareTimestampNs != 9 {
		t.Errorf("base64 line = %+v, %v", f, err)
	}
	f, err = ParseDeviceLine([]byte("signature=abc"), 9)
	if err != nil || string(f.Payload) != "signature=abc" {
		t.Errorf("raw line = %+v, %v", f, err)
	}
	f, err = ParseDeviceLine([]byte(`{"payload":"json","hardware_timestamp_ns":3}`), 9)
	if err != nil || string(f.Payload) != "json" || f.HardwareTimestampNs != 3 {
		t.Errorf("json line = %+v, %v", f, err)
	}
}

func TestParseIngressMode(t *testing.T) {
	if m, ok := ParseIngressMode(" Direct_Device "); !ok || m != ModeDirectDevice {
		t.Errorf("ParseIngressMode = %q, %v", m, ok)
	}
	if _, ok := ParseIngressMode("pcie"); ok {
		t.Error("unknown mode accepted")
	}
}

func TestResolveBackend(t *testing.T) {
	tests := []struct {
		vendor string
		mode   IngressMode
		want   backend
		err    bool
	}{
		{"mock_dma", ModeAuto, backendMock, false},
		{"exanic", ModeAuto, backendDevice, false},
		{"Napatech", ModeAuto, backendDevice, false},
		{"acme", ModeAuto, 0, true},
		{"acme", ModeMockDMA, backendMock, false},
		{"xilinx", ModeExternalSocket, backendSocket, false},
		{"mock_dma", ModeExternalSocket, 0, true},
		{"amd", ModeDirectDevice, backendDevice, false},
		{"mock_dma", ModeDirectDevice, 0, true},
	}
	for _, tt := range tests {
		got, err := New(Options{Vendor: tt.vendor, Mode: tt.mode}).resolveBackend()
		if tt.err {
			if !errors.Is(err, ErrUnsupportedVendor) {
				t.Errorf("%s/%s: err = %v, want unsupported vendor", tt.vendor, tt.mode, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("%s/%s = %v, %v; want %v", tt.vendor, tt.mode, got, err, tt.want)
		}
	}
}

func TestUnsupportedPlatform(t *testing.T) {
	saved := platformSupported
	platformSupported = false
	defer func() { platformSupported = saved }()

	err := New(Options{Vendor: VendorMock, MockPayload: []byte("x")}).ValidateReady()
	if !errors.Is(err, ErrUnsupportedPlatform) {
		t.Errorf("err = %v", err)
	}
}

func TestMockReadiness(t *testing.T) {
	t.Setenv(MockFrameEnv, "")
	if err := New(Options{Vendor: VendorMock}).ValidateReady(); !errors.Is(err, ErrMissingMockPayload) {
		t.Errorf("missing payload err = %v", err)
	}
	t.Setenv(MockFrameEnv, "signature=a\nlog=x\n")
	if err := New(Options{Vendor: VendorMock}).ValidateReady(); err != nil {
		t.Errorf("env payload rejected: %v", err)
	}
}

func TestDeviceReadiness(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "fpga0")
	err := New(Options{Vendor: "exanic", DevicePath: missing}).ValidateReady()
	if !errors.Is(err, ErrDevicePathMissing) || !strings.Contains(err.Error(), missing) {
		t.Errorf("missing device err = %v", err)
	}

	if err := os.WriteFile(missing, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := New(Options{Vendor: "exanic", DevicePath: missing}).ValidateReady(); err != nil {
		t.Errorf("regular file rejected: %v", err)
	}

	if err := New(Options{Vendor: "exanic", DevicePath: dir}).ValidateReady(); !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("directory err = %v", err)
	}
}

func TestSocketReadiness(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dma.sock")
	feed := New(Options{Vendor: "generic", Mode: ModeExternalSocket, SocketPath: path})
	if err := feed.ValidateReady(); !errors.Is(err, ErrSocketPathMissing) {
		t.Errorf("missing socket err = %v", err)
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	if err := feed.ValidateReady(); err != nil {
		t.Errorf("listening socket rejected: %v", err)
	}
}

func receive(t *testing.T, ch <-chan events.RawLogEvent) events.RawLogEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
		return events.RawLogEvent{}
	}
}

func TestMockStreamDrainsOnce(t *testing.T) {
	feed := New(Options{Vendor: VendorMock, MockPayload: poolPayload("sig-1")})
	out := make(chan events.RawLogEvent, 4)
	if err := feed.SpawnStream(context.Background(), out); err != nil {
		t.Fatalf("SpawnStream: %v", err)
	}
	ev := receive(t, out)
	feed.Wait()

	if ev.Signature != "sig-1" || ev.Ingress.Source != events.SourceFpgaDma || ev.HasError {
		t.Errorf("event = %+v", ev)
	}
	if ev.Ingress.HardwareTimestampNs == nil || ev.Ingress.NormalizedTimestampNs != *ev.Ingress.HardwareTimestampNs {
		t.Errorf("hardware timestamp not used: %+v", ev.Ingress)
	}
	if len(out) != 0 {
		t.Errorf("ring drained more than once")
	}
	if s := feed.Counters().Snapshot(); s.Frames != 1 || s.Published != 1 {
		t.Errorf("counters = %+v", s)
	}
	if err := feed.SpawnStream(context.Background(), out); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second spawn err = %v", err)
	}
}

func TestMockStreamPrefilterDrop(t *testing.T) {
	feed := New(Options{Vendor: VendorMock, MockPayload: []byte("signature=a\nlog=Program log: swap\n")})
	out := make(chan events.RawLogEvent, 1)
	if err := feed.SpawnStream(context.Background(), out); err != nil {
		t.Fatal(err)
	}
	feed.Wait()
	if len(out) != 0 {
		t.Error("filtered frame was published")
	}
	if s := feed.Counters().Snapshot(); s.Filtered != 1 {
		t.Errorf("counters = %+v", s)
	}
}

func TestSocketStream(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dma.sock")
	ln, err := net.Listen("unix", path)
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		b64 := base64.StdEncoding.EncodeToString(poolPayload("sock-sig"))
		fmt.Fprintf(conn, "not json\n")
		fmt.Fprintf(conn, `{"hardware_timestamp_ns":%d,"payload_base64":"%s"}`+"\n", events.NowNanos(), b64)
		time.Sleep(100 * time.Millisecond)
	}()

	ctx, cancel := context.WithCancel(context.Background())
	feed := New(Options{Vendor: "solarflare", Mode: ModeExternalSocket, SocketPath: path})
	out := make(chan events.RawLogEvent, 4)
	if err := feed.SpawnStream(ctx, out); err != nil {
		t.Fatal(err)
	}
	ev := receive(t, out)
	cancel()
	feed.Wait()

	if ev.Signature != "sock-sig" || len(ev.Logs) != 2 {
		t.Errorf("event = %+v", ev)
	}
	if s := feed.Counters().Snapshot(); s.DecodeErrors != 1 {
		t.Errorf("counters = %+v", s)
	}
}

func TestDeviceStream(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fpga0")
	if err := os.WriteFile(path, append(poolPayloadLine("dev-sig"), '\n'), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	feed := New(Options{Vendor: "generic", Mode: ModeDirectDevice, DevicePath: path})
	out := make(chan events.RawLogEvent, 16)
	if err := feed.SpawnStream(ctx, out); err != nil {
		t.Fatal(err)
	}
	ev := receive(t, out)
	cancel()
	feed.Wait()
	if ev.Signature != "dev-sig" {
		t.Errorf("event = %+v", ev)
	}
}

func TestDeviceStreamFIFOWithoutWriterStops(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fpga-fifo")
	if err := unix.Mkfifo(path, 0o600); err != nil {
		t.Skipf("mkfifo: %v", err)
	}
	feed := New(Options{Vendor: "generic", Mode: ModeDirectDevice, DevicePath: path})
	if err := feed.ValidateReady(); err != nil {
		t.Fatalf("ValidateReady: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := feed.SpawnStream(ctx, make(chan events.RawLogEvent, 1)); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	cancel()

	done := make(chan struct{})
	go func() {
		feed.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Wait blocked after cancel on a FIFO with no writer")
	}
}

type lockedBuffer struct {
	mu sync.Mutex
	b  strings.Builder
}

func (l *lockedBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.Write(p)
}

func (l *lockedBuffer) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.String()
}

func TestDeviceStreamWarnsOnEOF(t *testing.T) {
	var logs lockedBuffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelWarn})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	path := filepath.Join(t.TempDir(), "fpga0")
	if err := os.WriteFile(path, append(poolPayloadLine("eof-sig"), '\n'), 0o644); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	feed := New(Options{Vendor: "generic", Mode: ModeDirectDevice, DevicePath: path})
	out := make(chan events.RawLogEvent, 64)
	if err := feed.SpawnStream(ctx, out); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for feed.Counters().Snapshot().Reconnects == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	feed.Wait()

	if feed.Counters().Snapshot().Reconnects == 0 {
		t.Fatal("device not reopened after EOF")
	}
	if !strings.Contains(logs.String(), "FPGA direct device reached EOF. Reopening.") {
		t.Errorf("EOF not logged at warn: %q", logs.String())
	}
}

func poolPayloadLine(sig string) []byte {
	return []byte(base64.StdEncoding.EncodeToString(poolPayload(sig)))
}

func TestRing(t *testing.T) {
	r := newRing(2)
	if !r.Push(Frame{HardwareTimestampNs: 1}) || !r.Push(Frame{HardwareTimestampNs: 2}) {
		t.Fatal("push failed below capacity")
	}
	if r.Push(Frame{HardwareTimestampNs: 3}) {
		t.Error("push succeeded at capacity")
	}
	if f, _ := r.Pop(); f.HardwareTimestampNs != 1 {
		t.Errorf("pop = %d, want 1", f.HardwareTimestampNs)
	}
	r.Push(Frame{HardwareTimestampNs: 4})
	if r.Len() != 2 {
		t.Errorf("len = %d", r.Len())
	}
	r.Pop()
	if f, _ := r.Pop(); f.HardwareTimestampNs != 4 {
		t.Errorf("wraparound pop = %d, want 4", f.HardwareTimestampNs)
	}
	if _, ok := r.Pop(); ok {
		t.Error("pop from empty ring")
	}
}
