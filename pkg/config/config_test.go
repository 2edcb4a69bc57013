package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimal = `
runtime:
  rpc_url: https://rpc.example
  wss_url: wss://wss.example
`

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte(minimal))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	r := cfg.Runtime
	if !r.KernelTCPBypass {
		t.Error("kernel_tcp_bypass should default to true")
	}
	if r.KernelTCPBypassEngine != "af_xdp_or_dpdk_external" {
		t.Errorf("engine = %q", r.KernelTCPBypassEngine)
	}
	if r.KernelBypassSocketPath != "/tmp/slotstrike-kernel-bypass.sock" {
		t.Errorf("bypass socket = %q", r.KernelBypassSocketPath)
	}
	if r.FPGAVendor != "generic" || r.FPGAIngressMode != "auto" {
		t.Errorf("fpga vendor/mode = %q/%q", r.FPGAVendor, r.FPGAIngressMode)
	}
	if r.FPGADirectDevicePath != "/dev/slotstrike-fpga0" || r.FPGADMASocketPath != "/tmp/slotstrike-fpga-dma.sock" {
		t.Errorf("fpga paths = %q %q", r.FPGADirectDevicePath, r.FPGADMASocketPath)
	}
	if r.ReplayEventCount != 50_000 || r.ReplayBurstSize != 512 {
		t.Errorf("replay = %d/%d", r.ReplayEventCount, r.ReplayBurstSize)
	}
	tel := cfg.Telemetry
	if !tel.Enabled || tel.SampleCapacity != 4096 || tel.SLONs != 1_000_000 || tel.ReportPeriod() != 15*time.Second {
		t.Errorf("telemetry = %+v", tel)
	}
	if cfg.RuleStore.Kind != StoreConfig || cfg.RuleStore.PollInterval != time.Second {
		t.Errorf("rule store = %+v", cfg.RuleStore)
	}
	if cfg.Ingress.Policy != PolicyGate {
		t.Errorf("ingress policy = %q", cfg.Ingress.Policy)
	}
}

func TestParseOverrides(t *testing.T) {
	cfg, err := Parse([]byte(minimal + `
  kernel_tcp_bypass: false
  kernel_tcp_bypass_engine: onload
  fpga_enabled: true
  fpga_vendor: mock_dma
telemetry:
  enabled: false
rule_store:
  kind: sqlite
  path: /var/lib/slotstrike/rules.db
  poll_interval: 250ms
rules:
  - kind: mint
    address: So11111111111111111111111111111111111111112
    snipe_height_sol: "1"
    tip_budget_sol: "0.01"
    slippage_pct: "1.5"
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Runtime.KernelTCPBypass || !cfg.Runtime.FPGAEnabled || cfg.Telemetry.Enabled {
		t.Errorf("bool overrides not applied: %+v %+v", cfg.Runtime, cfg.Telemetry)
	}
	if cfg.RuleStore.PollInterval != 250*time.Millisecond {
		t.Errorf("poll interval = %v", cfg.RuleStore.PollInterval)
	}
	if len(cfg.Rules) != 1 || cfg.Rules[0].SlippagePct != "1.5" {
		t.Errorf("rules = %+v", cfg.Rules)
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"missing rpc", "runtime:\n  wss_url: wss://x\n", "rpc_url"},
		{"missing wss", "runtime:\n  rpc_url: https://x\n", "wss_url"},
		{"bad engine", minimal + "  kernel_tcp_bypass_engine: netmap\n", "kernel_tcp_bypass_engine"},
		{"bad mode", minimal + "  fpga_ingress_mode: pcie\n", "fpga_ingress_mode"},
		{"bad submission", minimal + "  tx_submission_mode: carrier\n", "tx_submission_mode"},
		{"bad policy", minimal + "ingress:\n  policy: random\n", "ingress.policy"},
		{"sqlite without path", minimal + "rule_store:\n  kind: sqlite\n", "rule_store.path"},
		{"bad rule kind", minimal + "rules:\n  - kind: pool\n", "rules[0]"},
		{"bad level", minimal + "logging:\n  level: loud\n", "logging.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestReplayDoesNotNeedEndpoints(t *testing.T) {
	if _, err := Parse([]byte("runtime:\n  replay_benchmark: true\n")); err != nil {
		t.Fatalf("replay config rejected: %v", err)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slotstrike.yaml")
	if err := os.WriteFile(path, []byte(minimal), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file should fail")
	}
}

func TestLoadWithOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slotstrike.yaml")
	if err := os.WriteFile(path, []byte("runtime:\n  fpga_enabled: false\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("endpoints should be required without replay")
	}
	cfg, err := LoadWith(path, func(c *Config) {
		c.Runtime.ReplayBenchmark = true
		c.Runtime.FPGAEnabled = true
	})
	if err != nil {
		t.Fatalf("LoadWith: %v", err)
	}
	if !cfg.Runtime.FPGAEnabled || !cfg.Runtime.ReplayBenchmark {
		t.Errorf("override not applied: %+v", cfg.Runtime)
	}
}

func TestNewHandler(t *testing.T) {
	var buf bytes.Buffer
	h := LoggingConfig{Level: "warn", Format: "json"}.NewHandler(&buf, false)
	slog.New(h).Info("hidden")
	slog.New(h).Warn("shown", "k", 1)
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, `"msg":"shown"`) {
		t.Errorf("json handler output = %q", out)
	}

	buf.Reset()
	h = LoggingConfig{Level: "warn", Format: "text"}.NewHandler(&buf, true)
	slog.New(h).Debug("verbose")
	if !strings.Contains(buf.String(), "msg=verbose") {
		t.Errorf("debug override ignored: %q", buf.String())
	}
}
