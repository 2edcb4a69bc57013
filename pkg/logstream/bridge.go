package logstream

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/sugawarayuuta/sonnet"

	"github.com/psaab/slotstrike/pkg/events"
	"github.com/psaab/slotstrike/pkg/ingress"
)

var (
	bridgeRetryDelay     = time.Second
	bridgeReconnectDelay = 250 * time.Millisecond
)

// bridgeFrame is one line written by the external AF_XDP/DPDK bridge.
type bridgeFrame struct {
	Signature           string   `json:"signature"`
	Logs                []string `json:"logs"`
	HasError            bool     `json:"has_error"`
	HardwareTimestampNs *uint64  `json:"hardware_timestamp_ns"`
	ReceivedTimestampNs *uint64  `json:"received_timestamp_ns"`
}

var errBridgeFrameIncomplete = errors.New("kernel bypass frame missing signature or logs")

// ParseBridgeFrame decodes one bridge line. A missing receive timestamp
// becomes nowNs.
func ParseBridgeFrame(line []byte, nowNs uint64) (events.RawLogEvent, error) {
	var f bridgeFrame
	if err := sonnet.Unmarshal(line, &f); err != nil {
		return events.RawLogEvent{}, err
	}
	if f.Signature == "" || f.Logs == nil {
		return events.RawLogEvent{}, errBridgeFrameIncomplete
	}
	recv := nowNs
	if f.ReceivedTimestampNs != nil {
		recv = *f.ReceivedTimestampNs
	}
	return events.RawLogEvent{
		Signature: f.Signature,
		Logs:      f.Logs,
		HasError:  f.HasError,
		Ingress:   events.NewIngressMetadata(events.SourceKernelBypass, f.HardwareTimestampNs, recv),
	}, nil
}

// readBridge consumes the external bridge socket until ctx is cancelled.
func (s *Stream) readBridge(ctx context.Context, out chan<- events.RawLogEvent) {
	var d net.Dialer
	for ctx.Err() == nil {
		conn, err := d.DialContext(ctx, "unix", s.socketPath)
		if err != nil {
			s.counters.Reconnects.Add(1)
			slog.Warn("Kernel bypass socket reconnect failed", "path", s.socketPath, "err", err)
			if !sleepCtx(ctx, bridgeRetryDelay) {
				return
			}
			continue
		}
		slog.Info("Listening for tokens on kernel_bypass path via external socket", "path", s.socketPath)

		stop := context.AfterFunc(ctx, func() { conn.Close() })
		cont := s.consumeBridge(ctx, conn, out)
		stop()
		conn.Close()
		if !cont {
			return
		}
		s.counters.Reconnects.Add(1)
		if !sleepCtx(ctx, bridgeReconnectDelay) {
			return
		}
	}
}

func (s *Stream) consumeBridge(ctx context.Context, r io.Reader, out chan<- events.RawLogEvent) bool {
	br := bufio.NewReaderSize(r, 64*1024)
	for {
		line, err := br.ReadBytes('\n')
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			s.counters.Frames.Add(1)
			ev, perr := ParseBridgeFrame(trimmed, events.NowNanos())
			if perr != nil {
				s.counters.DecodeErrors.Add(1)
				slog.Debug("Kernel bypass frame parse failed", "err", perr)
			} else if !ingress.Publish(ctx, out, ev, &s.counters) {
				slog.Warn("Event channel closed. Stopping kernel bypass stream.")
				return false
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			if errors.Is(err, io.EOF) {
				slog.Warn("Kernel bypass socket closed by peer. Reconnecting.")
			} else {
				slog.Warn("Kernel bypass socket read failed", "err", err)
			}
			return true
		}
	}
}
