// Package logstream subscribes to Solana program logs over the standard
// websocket path or the kernel-bypass path.
package logstream

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/psaab/slotstrike/pkg/events"
	"github.com/psaab/slotstrike/pkg/ingress"
)

// DefaultSocketPath is where the external AF_XDP/DPDK bridge listens.
const DefaultSocketPath = "/tmp/slotstrike-kernel-bypass.sock"

// ErrAlreadyStarted is returned by a second SpawnStream call.
var ErrAlreadyStarted = errors.New("log stream already started")

// KernelBypassOptions configures the kernel-bypass stream.
type KernelBypassOptions struct {
	WSSURL     string
	Engine     Engine
	SocketPath string
	// Interface, when set with the af_xdp engine, is probed for XDP
	// support during readiness.
	Interface string
}

// Stream is a log stream ingress port.
type Stream struct {
	wssURL     string
	pathName   string
	source     events.Source
	engine     Engine
	socketPath string
	iface      string
	env        onloadEnv
	counters   ingress.Counters

	mu      sync.Mutex
	started bool
	wg      sync.WaitGroup
}

var _ ingress.Port = (*Stream)(nil)

// NewKernelBypass creates the kernel-bypass stream.
func NewKernelBypass(opts KernelBypassOptions) *Stream {
	return &Stream{
		wssURL:     opts.WSSURL,
		pathName:   events.SourceKernelBypass.String(),
		source:     events.SourceKernelBypass,
		engine:     opts.Engine,
		socketPath: opts.SocketPath,
		iface:      opts.Interface,
		env:        hostEnv,
	}
}

// NewStandardTCP creates the plain websocket stream.
func NewStandardTCP(wssURL string) *Stream {
	return &Stream{
		wssURL:   wssURL,
		pathName: events.SourceStandardTCP.String(),
		source:   events.SourceStandardTCP,
		env:      hostEnv,
	}
}

func (s *Stream) Name() string { return s.pathName }

func (s *Stream) Counters() *ingress.Counters { return &s.counters }

// Wait blocks until the stream worker exits.
func (s *Stream) Wait() { s.wg.Wait() }

func (s *Stream) bypass() bool { return s.source == events.SourceKernelBypass }

func validWebsocketURL(raw string) bool {
	if !strings.HasPrefix(raw, "wss://") && !strings.HasPrefix(raw, "ws://") {
		return false
	}
	u, err := url.Parse(raw)
	return err == nil && u.Host != ""
}

// ValidateReady checks the URL, engine selection and, for bypass engines,
// the runtime the engine depends on.
func (s *Stream) ValidateReady() error {
	if err := s.validateConfig(); err != nil {
		return err
	}
	if !s.bypass() {
		return nil
	}
	switch {
	case s.engine == EngineOpenOnload:
		if !s.env.onloadActive() {
			return &Error{Kind: KindOnloadInactive}
		}
	case s.engine.usesBridge():
		if strings.TrimSpace(s.socketPath) == "" {
			return &Error{Kind: KindMissingSocketPath}
		}
		if s.engine == EngineAFXDP && s.iface != "" {
			if err := probeXDP(s.iface); err != nil {
				return &Error{Kind: KindInterfaceUnavailable, Err: err}
			}
		}
		return probeBridge(s.socketPath)
	}
	return nil
}

func (s *Stream) validateConfig() error {
	if !validWebsocketURL(s.wssURL) {
		return &Error{Kind: KindInvalidURL, URL: s.wssURL, Path: s.pathName}
	}
	if s.bypass() && s.engine == "" {
		return &Error{Kind: KindMissingEngine}
	}
	return nil
}

// SpawnStream starts the worker. Bridge engines connect to the external
// socket; everything else subscribes over the websocket.
func (s *Stream) SpawnStream(ctx context.Context, out chan<- events.RawLogEvent) error {
	if err := s.validateConfig(); err != nil {
		return err
	}

	var run func()
	if s.bypass() && s.engine.usesBridge() {
		if strings.TrimSpace(s.socketPath) == "" {
			return &Error{Kind: KindMissingSocketPath}
		}
		if err := probeBridge(s.socketPath); err != nil {
			return err
		}
		run = func() { s.readBridge(ctx, out) }
	} else {
		run = func() { s.subscribe(ctx, out) }
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true
	slog.Info("log stream started", "path", s.pathName, "engine", string(s.engine))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		run()
	}()
	return nil
}
