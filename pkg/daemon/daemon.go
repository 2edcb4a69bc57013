// Package daemon implements the slotstrike runtime lifecycle.
package daemon

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/psaab/slotstrike/pkg/api"
	"github.com/psaab/slotstrike/pkg/config"
	"github.com/psaab/slotstrike/pkg/configsync"
	"github.com/psaab/slotstrike/pkg/engine"
	"github.com/psaab/slotstrike/pkg/events"
	"github.com/psaab/slotstrike/pkg/fpga"
	"github.com/psaab/slotstrike/pkg/grpcapi"
	"github.com/psaab/slotstrike/pkg/ingress"
	"github.com/psaab/slotstrike/pkg/logging"
	"github.com/psaab/slotstrike/pkg/logstream"
	"github.com/psaab/slotstrike/pkg/replay"
	"github.com/psaab/slotstrike/pkg/rules"
	"github.com/psaab/slotstrike/pkg/rulestore"
	"github.com/psaab/slotstrike/pkg/strategy"
	"github.com/psaab/slotstrike/pkg/telemetry"
)

// eventQueueSize bounds the ingress channel. Ports block on a full queue
// rather than drop events.
const eventQueueSize = 1 << 16

// Options configures the daemon. Set flags override the config file.
type Options struct {
	ConfigFile string
	Debug      bool

	FPGA        bool // force fpga_enabled
	FPGAVerbose bool // force fpga_verbose
	Replay      bool // force replay_benchmark
	APIAddr     string
	GRPCAddr    string

	// LogOutput receives the runtime log. Defaults to os.Stderr.
	LogOutput io.Writer

	// Resolver and Executor are handed to the strategy handlers.
	Resolver strategy.Resolver
	Executor strategy.Executor
}

// Daemon is the slotstrike runtime.
type Daemon struct {
	opts Options
}

// New creates a new Daemon.
func New(opts Options) *Daemon {
	if opts.ConfigFile == "" {
		opts.ConfigFile = config.DefaultPath
	}
	if opts.LogOutput == nil {
		opts.LogOutput = os.Stderr
	}
	return &Daemon{opts: opts}
}

func (d *Daemon) loadConfig() (*config.Config, error) {
	return config.LoadWith(d.opts.ConfigFile, func(c *config.Config) {
		r := &c.Runtime
		if d.opts.FPGA {
			r.FPGAEnabled = true
		}
		if d.opts.FPGAVerbose {
			r.FPGAVerbose = true
		}
		if d.opts.Replay {
			r.ReplayBenchmark = true
		}
		if d.opts.APIAddr != "" {
			c.API.HTTPAddr = d.opts.APIAddr
		}
		if d.opts.GRPCAddr != "" {
			c.API.GRPCAddr = d.opts.GRPCAddr
		}
	})
}

// Run starts the runtime and blocks until shutdown.
func (d *Daemon) Run(ctx context.Context) error {
	cfg, err := d.loadConfig()
	if err != nil {
		return err
	}

	// Warnings and errors are mirrored into the recent-event buffer so the
	// API can serve them as alerts.
	eventBuf := logging.NewEventBuffer(cfg.Ingress.RecentEvents)
	base := cfg.Logging.NewHandler(d.opts.LogOutput, d.opts.Debug)
	slog.SetDefault(slog.New(logging.NewFanoutHandler(base, eventBuf, slog.LevelWarn)))

	slog.Info("Slotstrike runtime",
		"config", d.opts.ConfigFile,
		"pid", os.Getpid())

	r := cfg.Runtime
	if r.ReplayBenchmark {
		replay.Log(replay.Run(r.ReplayEventCount, r.ReplayBurstSize))
		return nil
	}

	tel := telemetry.Disabled()
	if cfg.Telemetry.Enabled {
		tel = telemetry.New(cfg.Telemetry.SampleCapacity, cfg.Telemetry.SLONs)
	}

	repo, err := rulestore.New(cfg.RuleStore, d.opts.ConfigFile)
	if err != nil {
		return fmt.Errorf("rule store: %w", err)
	}
	if c, ok := repo.(io.Closer); ok {
		defer c.Close()
	}
	initial, err := configsync.LoadRuleBook(ctx, repo, true)
	if err != nil {
		return fmt.Errorf("read rules: %w", err)
	}
	bc := configsync.NewBroadcast(initial)
	sub := bc.Subscribe()
	defer sub.Close()
	syncer := configsync.NewService(repo, bc, cfg.RuleStore.PollInterval)

	mode := ingress.ResolveMode(r.FPGAEnabled, r.KernelTCPBypass)
	describe := ingress.Describe(mode, r.KernelTCPBypassEngine, r.FPGAVendor)
	logSettings(cfg, initial, mode, describe)

	port, active, err := selectPort(buildPorts(cfg), mode, cfg.Ingress.Policy)
	if err != nil {
		return err
	}
	if active != mode {
		describe = ingress.Describe(active, r.KernelTCPBypassEngine, r.FPGAVendor)
	}

	// Handle signals for clean shutdown
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	handlers := strategy.New(strategy.Options{
		Rules:      sub,
		Resolver:   d.opts.Resolver,
		Executor:   d.opts.Executor,
		Candidates: eventBuf,
	})
	eng := engine.New(handlers, tel)
	evCh := make(chan events.RawLogEvent, eventQueueSize)
	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		eng.Run(ctx, evCh)
	}()

	// WaitGroup for coordinated shutdown of background goroutines
	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		syncer.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		sub.Watch(ctx, func(rb *rules.RuleBook) {
			slog.Info("rulebook snapshot adopted",
				"mints", rb.Len(rules.KindMint),
				"deployers", rb.Len(rules.KindDeployer))
		})
	}()

	if tel.Enabled() {
		reporter := telemetry.NewReporter(tel, cfg.Telemetry.ReportPeriod())
		wg.Add(1)
		go func() {
			defer wg.Done()
			reporter.Run(ctx)
		}()
	}

	if cfg.API.HTTPAddr != "" {
		srv := api.NewServer(api.Config{
			Addr:      cfg.API.HTTPAddr,
			Auth:      api.NewAuthConfig(cfg.API.APIKeys),
			Mode:      active,
			Ingress:   port,
			Describe:  describe,
			Telemetry: tel,
			Engine:    eng,
			Rules:     bc,
			History:   syncer.History(),
			EventBuf:  eventBuf,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Run(ctx); err != nil {
				errCh <- fmt.Errorf("HTTP API: %w", err)
			}
		}()
	}

	var grpcSrv *grpcapi.Server
	if cfg.API.GRPCAddr != "" {
		grpcSrv = grpcapi.NewServer(cfg.API.GRPCAddr, grpcapi.Config{
			Mode:      active,
			Ingress:   port,
			Telemetry: tel,
			Engine:    eng,
			Rules:     bc,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := grpcSrv.Run(ctx); err != nil {
				errCh <- fmt.Errorf("gRPC: %w", err)
			}
		}()
	}

	var runErr error
	if err := port.SpawnStream(ctx, evCh); err != nil {
		runErr = fmt.Errorf("start %s ingress: %w", port.Name(), err)
	} else {
		logPathSelected(active, port.Name())
		if grpcSrv != nil {
			grpcSrv.SetServing(true)
		}

		select {
		case err := <-errCh:
			runErr = err
		case <-ctx.Done():
			slog.Info("signal received, shutting down")
		}
	}

	// Cancel context to stop the port and background goroutines. The
	// engine drains the queue once the port has stopped publishing.
	stop()
	port.Wait()
	close(evCh)
	<-engineDone
	eng.Wait()
	wg.Wait()

	logFinalStats(eng, port, tel)
	slog.Info("shutdown complete")
	return runErr
}

// buildPorts registers every ingress backend. Only the one selected by
// the startup policy is validated and started.
func buildPorts(cfg *config.Config) *ingress.Set {
	r := cfg.Runtime
	fpgaMode, _ := fpga.ParseIngressMode(r.FPGAIngressMode)
	bypassEngine, _ := logstream.ParseEngine(r.KernelTCPBypassEngine)

	set := ingress.NewSet()
	set.Register(ingress.ModeFPGA, fpga.New(fpga.Options{
		Vendor:     r.FPGAVendor,
		Verbose:    r.FPGAVerbose,
		Mode:       fpgaMode,
		DevicePath: r.FPGADirectDevicePath,
		SocketPath: r.FPGADMASocketPath,
	}))
	set.Register(ingress.ModeKernelBypass, logstream.NewKernelBypass(logstream.KernelBypassOptions{
		WSSURL:     r.WSSURL,
		Engine:     bypassEngine,
		SocketPath: r.KernelBypassSocketPath,
		Interface:  r.KernelBypassInterface,
	}))
	set.Register(ingress.ModeStandardTCP, logstream.NewStandardTCP(r.WSSURL))
	return set
}

func selectPort(set *ingress.Set, mode ingress.Mode, policy string) (ingress.Port, ingress.Mode, error) {
	if policy == config.PolicyFailover {
		return set.Failover(mode)
	}
	p, err := set.Gate(mode)
	return p, mode, err
}

func logSettings(cfg *config.Config, rb *rules.RuleBook, mode ingress.Mode, describe string) {
	r := cfg.Runtime
	slog.Info("Settings",
		"priority_fees", r.PriorityFees,
		"mints", formatRules(rb.MintLogLines()),
		"deployers", formatRules(rb.DeployerLogLines()),
		"tx_submission_mode", r.TxSubmissionMode,
		"jito_url", r.JitoEndpoint(),
		"rpc_url", r.RPCURL,
		"wss_url", r.WSSURL,
		"network_stack_mode", string(mode),
		"network_path", describe,
		"kernel_tcp_bypass", mode == ingress.ModeKernelBypass,
		"fpga_enabled", mode == ingress.ModeFPGA,
		"telemetry_enabled", cfg.Telemetry.Enabled)
	if r.FPGAEnabled {
		slog.Info(fmt.Sprintf("FPGA_FEED: %s (vendor=%s, verbose=%t)",
			r.FPGAIngressMode, r.FPGAVendor, r.FPGAVerbose))
	}
}

func formatRules(lines []string) string {
	if len(lines) == 0 {
		return "(none)"
	}
	return strings.Join(lines, "; ")
}

func logPathSelected(mode ingress.Mode, name string) {
	if mode == ingress.ModeFPGA {
		slog.Info("Ingress path selected: FPGA DMA ring -> strategy events (zero-copy frame parse)")
		return
	}
	slog.Info(fmt.Sprintf("Ingress path selected: %s -> strategy events", name))
}

// logFinalStats logs the engine and ingress counters at shutdown.
func logFinalStats(eng *engine.Engine, port ingress.Port, tel *telemetry.LatencyTelemetry) {
	c := eng.Snapshot()
	slog.Info("engine stats",
		"received", c.Received,
		"failed_tx", c.FailedTx,
		"invalid_signature", c.InvalidSignature,
		"cpmm", c.CPMM,
		"openbook", c.OpenBook,
		"ignored", c.Ignored)

	p := port.Counters().Snapshot()
	slog.Info("ingress stats",
		"backend", port.Name(),
		"frames", p.Frames,
		"filtered", p.Filtered,
		"decode_errors", p.DecodeErrors,
		"published", p.Published,
		"reconnects", p.Reconnects)

	if tel.Enabled() {
		slog.Info("telemetry stats", "dropped_samples", tel.Dropped())
	}
}
