package fpga

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/psaab/slotstrike/pkg/events"
)

const (
	retryDelay     = time.Second
	reconnectDelay = 250 * time.Millisecond
	maxLineBytes   = 1 << 20
)

// probeDevice checks that path is a character device, regular file or
// FIFO and can be opened for reading.
func probeDevice(path string) error {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return fmt.Errorf("%w: '%s'", ErrDevicePathMissing, path)
	}
	switch st.Mode & unix.S_IFMT {
	case unix.S_IFCHR, unix.S_IFREG, unix.S_IFIFO:
	default:
		return fmt.Errorf("%w: '%s' is not a character device, file or FIFO", ErrDeviceUnavailable, path)
	}
	// O_NONBLOCK keeps the probe from hanging on a FIFO with no writer.
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("%w at '%s': %v", ErrDeviceUnavailable, path, err)
	}
	unix.Close(fd)
	return nil
}

// probeSocket checks that path is a Unix socket accepting connections.
func probeSocket(path string) error {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return fmt.Errorf("%w: '%s'", ErrSocketPathMissing, path)
	}
	if st.Mode&unix.S_IFMT != unix.S_IFSOCK {
		return fmt.Errorf("%w at '%s': not a socket", ErrSocketUnavailable, path)
	}
	conn, err := net.DialTimeout("unix", path, time.Second)
	if err != nil {
		return fmt.Errorf("%w at '%s': %v", ErrSocketUnavailable, path, err)
	}
	conn.Close()
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// openDevice opens path non-blocking so a FIFO without a writer neither
// blocks the open nor a later read past cancellation.
func openDevice(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_RDONLY|unix.O_NONBLOCK, 0)
}

// readDevice tails the direct device line by line, reopening it after
// EOF or an open failure.
func (f *Feed) readDevice(ctx context.Context, out chan<- events.RawLogEvent) {
	path := f.opts.DevicePath
	for ctx.Err() == nil {
		file, err := openDevice(path)
		if err != nil {
			f.counters.Reconnects.Add(1)
			slog.Warn("failed to open FPGA direct device", "path", path, "err", err)
			if !sleepCtx(ctx, retryDelay) {
				return
			}
			continue
		}

		stop := context.AfterFunc(ctx, func() { file.Close() })
		cont := f.consumeLines(ctx, file, out, ParseDeviceLine)
		stop()
		file.Close()
		if !cont {
			return
		}
		f.counters.Reconnects.Add(1)
		slog.Warn("FPGA direct device reached EOF. Reopening.", "path", path)
		if !sleepCtx(ctx, reconnectDelay) {
			return
		}
	}
}

// readSocket consumes JSON frames from the DMA bridge, reconnecting when
// the peer goes away.
func (f *Feed) readSocket(ctx context.Context, out chan<- events.RawLogEvent) {
	path := f.opts.SocketPath
	var d net.Dialer
	for ctx.Err() == nil {
		conn, err := d.DialContext(ctx, "unix", path)
		if err != nil {
			f.counters.Reconnects.Add(1)
			slog.Warn("failed to connect FPGA DMA socket", "path", path, "err", err)
			if !sleepCtx(ctx, retryDelay) {
				return
			}
			continue
		}
		slog.Info("FPGA DMA socket connected", "path", path)

		stop := context.AfterFunc(ctx, func() { conn.Close() })
		cont := f.consumeLines(ctx, conn, out, ParseExternalFrame)
		stop()
		conn.Close()
		if !cont {
			return
		}
		f.counters.Reconnects.Add(1)
		slog.Warn("FPGA DMA socket closed by peer. Reconnecting.")
		if !sleepCtx(ctx, reconnectDelay) {
			return
		}
	}
}

// consumeLines parses and processes each line from r until EOF or a read
// error. It returns false when the stream should stop entirely.
func (f *Feed) consumeLines(ctx context.Context, r io.Reader, out chan<- events.RawLogEvent,
	parse func([]byte, uint64) (Frame, error)) bool {
	br := bufio.NewReaderSize(r, 64*1024)
	for {
		line, err := readLine(br)
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				slog.Warn("FPGA DMA read failed", "err", err)
			}
			return true
		}
		if len(line) == 0 {
			continue
		}
		if len(line) > maxLineBytes {
			f.counters.DecodeErrors.Add(1)
			slog.Debug("FPGA DMA frame too large", "bytes", len(line))
			continue
		}
		frame, err := parse(line, events.NowNanos())
		if err != nil {
			f.counters.DecodeErrors.Add(1)
			slog.Debug("failed to parse FPGA DMA frame", "err", err)
			continue
		}
		if !f.processFrame(ctx, frame, out) {
			return false
		}
	}
}
