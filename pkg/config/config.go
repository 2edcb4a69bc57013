// Package config loads the slotstrike runtime configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/psaab/slotstrike/pkg/fpga"
	"github.com/psaab/slotstrike/pkg/logstream"
)

// DefaultPath is used when no -config flag is given.
const DefaultPath = "/etc/slotstrike/slotstrike.yaml"

// Config is the full daemon configuration.
type Config struct {
	Runtime   RuntimeConfig   `yaml:"runtime"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	API       APIConfig       `yaml:"api"`
	Logging   LoggingConfig   `yaml:"logging"`
	Ingress   IngressConfig   `yaml:"ingress"`
	RuleStore RuleStoreConfig `yaml:"rule_store"`
	Rules     []RuleEntry     `yaml:"rules"`
}

// RuntimeConfig selects the network path and collaborator endpoints.
type RuntimeConfig struct {
	KeypairPath      string `yaml:"keypair_path"`
	RPCURL           string `yaml:"rpc_url"`
	WSSURL           string `yaml:"wss_url"`
	PriorityFees     uint64 `yaml:"priority_fees"`
	TxSubmissionMode string `yaml:"tx_submission_mode"` // jito, direct
	JitoURL          string `yaml:"jito_url"`

	KernelTCPBypass        bool   `yaml:"kernel_tcp_bypass"`
	KernelTCPBypassEngine  string `yaml:"kernel_tcp_bypass_engine"`
	KernelBypassSocketPath string `yaml:"kernel_bypass_socket_path"`
	KernelBypassInterface  string `yaml:"kernel_bypass_interface"` // optional NIC checked for AF_XDP

	FPGAEnabled          bool   `yaml:"fpga_enabled"`
	FPGAVerbose          bool   `yaml:"fpga_verbose"`
	FPGAVendor           string `yaml:"fpga_vendor"`
	FPGAIngressMode      string `yaml:"fpga_ingress_mode"`
	FPGADirectDevicePath string `yaml:"fpga_direct_device_path"`
	FPGADMASocketPath    string `yaml:"fpga_dma_socket_path"`

	ReplayBenchmark  bool `yaml:"replay_benchmark"`
	ReplayEventCount int  `yaml:"replay_event_count"`
	ReplayBurstSize  int  `yaml:"replay_burst_size"`
}

// TelemetryConfig controls hop latency sampling.
type TelemetryConfig struct {
	Enabled          bool   `yaml:"enabled"`
	SampleCapacity   int    `yaml:"sample_capacity"`
	SLONs            uint64 `yaml:"slo_ns"`
	ReportPeriodSecs uint64 `yaml:"report_period_secs"`
}

// ReportPeriod returns the reporter interval.
func (t TelemetryConfig) ReportPeriod() time.Duration {
	return time.Duration(t.ReportPeriodSecs) * time.Second
}

// APIConfig sets the listen addresses. Empty disables a server.
type APIConfig struct {
	HTTPAddr string `yaml:"http_addr"`
	GRPCAddr string `yaml:"grpc_addr"`
	// APIKeys guard the /api/v1 routes when non-empty.
	APIKeys []string `yaml:"api_keys"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// IngressConfig selects the startup policy for the network path.
type IngressConfig struct {
	Policy       string `yaml:"policy"` // gate, failover
	RecentEvents int    `yaml:"recent_events"`
}

// Ingress policies.
const (
	PolicyGate     = "gate"
	PolicyFailover = "failover"
)

// RuleStoreConfig selects where snipe rules are read from.
type RuleStoreConfig struct {
	Kind         string        `yaml:"kind"` // config, yaml, sqlite
	Path         string        `yaml:"path"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// Rule store kinds.
const (
	StoreConfig = "config"
	StoreYAML   = "yaml"
	StoreSQLite = "sqlite"
)

// RuleEntry is one rule as written in configuration.
type RuleEntry struct {
	Kind           string `yaml:"kind"` // mint, deployer
	Address        string `yaml:"address"`
	SnipeHeightSOL string `yaml:"snipe_height_sol"`
	TipBudgetSOL   string `yaml:"tip_budget_sol"`
	SlippagePct    string `yaml:"slippage_pct"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	c := &Config{
		Runtime: RuntimeConfig{
			KernelTCPBypass: true,
		},
		Telemetry: TelemetryConfig{
			Enabled: true,
		},
	}
	c.applyDefaults()
	return c
}

// Load reads and validates the configuration at path.
func Load(path string) (*Config, error) {
	return LoadWith(path, nil)
}

// LoadWith is Load with an override applied after decoding and before
// validation. Command-line flags use it.
func LoadWith(path string, override func(*Config)) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return parse(raw, override)
}

// Parse decodes and validates a YAML document. Fields absent from the
// document keep their defaults.
func Parse(raw []byte) (*Config, error) {
	return parse(raw, nil)
}

func parse(raw []byte, override func(*Config)) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if override != nil {
		override(cfg)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	r := &c.Runtime
	if r.TxSubmissionMode == "" {
		r.TxSubmissionMode = "jito"
	}
	if r.KernelTCPBypassEngine == "" {
		r.KernelTCPBypassEngine = string(logstream.EngineExternal)
	}
	if r.KernelBypassSocketPath == "" {
		r.KernelBypassSocketPath = logstream.DefaultSocketPath
	}
	if r.FPGAVendor == "" {
		r.FPGAVendor = fpga.VendorGeneric
	}
	if r.FPGAIngressMode == "" {
		r.FPGAIngressMode = string(fpga.ModeAuto)
	}
	if r.FPGADirectDevicePath == "" {
		r.FPGADirectDevicePath = fpga.DefaultDevicePath
	}
	if r.FPGADMASocketPath == "" {
		r.FPGADMASocketPath = fpga.DefaultSocketPath
	}
	if r.ReplayEventCount == 0 {
		r.ReplayEventCount = 50_000
	}
	if r.ReplayBurstSize == 0 {
		r.ReplayBurstSize = 512
	}

	t := &c.Telemetry
	if t.SampleCapacity == 0 {
		t.SampleCapacity = 4_096
	}
	if t.SLONs == 0 {
		t.SLONs = 1_000_000
	}
	if t.ReportPeriodSecs == 0 {
		t.ReportPeriodSecs = 15
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Ingress.Policy == "" {
		c.Ingress.Policy = PolicyGate
	}
	if c.Ingress.RecentEvents <= 0 {
		c.Ingress.RecentEvents = 1_000
	}
	if c.RuleStore.Kind == "" {
		c.RuleStore.Kind = StoreConfig
	}
	if c.RuleStore.PollInterval <= 0 {
		c.RuleStore.PollInterval = time.Second
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	r := c.Runtime
	if _, ok := logstream.ParseEngine(r.KernelTCPBypassEngine); !ok {
		return fmt.Errorf("invalid kernel_tcp_bypass_engine %q (valid: af_xdp, dpdk, openonload, af_xdp_or_dpdk_external)",
			r.KernelTCPBypassEngine)
	}
	if _, ok := fpga.ParseIngressMode(r.FPGAIngressMode); !ok {
		return fmt.Errorf("invalid fpga_ingress_mode %q (valid: auto, mock_dma, direct_device, external_socket)",
			r.FPGAIngressMode)
	}
	if strings.TrimSpace(r.FPGAVendor) == "" {
		return errors.New("fpga_vendor must not be empty")
	}
	if strings.TrimSpace(r.KernelBypassSocketPath) == "" {
		return errors.New("kernel_bypass_socket_path must not be empty")
	}
	switch strings.ToLower(strings.TrimSpace(r.TxSubmissionMode)) {
	case "jito", "direct":
	default:
		return fmt.Errorf("invalid tx_submission_mode %q", r.TxSubmissionMode)
	}
	if r.ReplayEventCount < 0 {
		return errors.New("replay_event_count must be greater than 0")
	}
	if r.ReplayBurstSize < 0 {
		return errors.New("replay_burst_size must be greater than 0")
	}
	if !r.ReplayBenchmark {
		if strings.TrimSpace(r.RPCURL) == "" {
			return errors.New("missing rpc_url in runtime config")
		}
		if strings.TrimSpace(r.WSSURL) == "" {
			return errors.New("missing wss_url in runtime config")
		}
	}

	if c.Telemetry.Enabled {
		if c.Telemetry.SampleCapacity <= 0 {
			return errors.New("telemetry.sample_capacity must be greater than 0 when telemetry.enabled=true")
		}
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid logging.format %q (valid: text, json)", c.Logging.Format)
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	switch c.Ingress.Policy {
	case PolicyGate, PolicyFailover:
	default:
		return fmt.Errorf("invalid ingress.policy %q (valid: gate, failover)", c.Ingress.Policy)
	}
	switch c.RuleStore.Kind {
	case StoreConfig:
	case StoreYAML, StoreSQLite:
		if c.RuleStore.Path == "" {
			return fmt.Errorf("rule_store.path is required for kind %q", c.RuleStore.Kind)
		}
	default:
		return fmt.Errorf("invalid rule_store.kind %q (valid: config, yaml, sqlite)", c.RuleStore.Kind)
	}
	for i, e := range c.Rules {
		switch strings.ToLower(e.Kind) {
		case "mint", "deployer":
		default:
			return fmt.Errorf("rules[%d]: invalid kind %q (valid: mint, deployer)", i, e.Kind)
		}
	}
	return nil
}

// JitoEndpoint returns the bundle endpoint, falling back to the RPC URL
// for direct submission.
func (r RuntimeConfig) JitoEndpoint() string {
	if r.JitoURL != "" {
		return r.JitoURL
	}
	return r.RPCURL
}
