package api

import (
	"time"

	"github.com/psaab/slotstrike/pkg/engine"
	"github.com/psaab/slotstrike/pkg/ingress"
	"github.com/psaab/slotstrike/pkg/telemetry"
)

// Response is the envelope for every JSON reply.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// StatusResponse summarizes the runtime.
type StatusResponse struct {
	Uptime           string                  `json:"uptime"`
	NetworkStack     string                  `json:"network_stack"`
	Ingress          string                  `json:"ingress"`
	Describe         string                  `json:"describe,omitempty"`
	IngressCounters  ingress.CounterSnapshot `json:"ingress_counters"`
	Engine           engine.CounterSnapshot  `json:"engine"`
	MintRules        int                     `json:"mint_rules"`
	DeployerRules    int                     `json:"deployer_rules"`
	TelemetryEnabled bool                    `json:"telemetry_enabled"`
	RecordsTotal     uint64                  `json:"records_total"`
}

// TelemetryResponse is a snapshot of every latency hop.
type TelemetryResponse struct {
	Enabled        bool                 `json:"enabled"`
	SLONs          uint64               `json:"slo_ns"`
	DroppedSamples uint64               `json:"dropped_samples"`
	Hops           []telemetry.HopStats `json:"hops"`
}

// RuleInfo is one snipe rule as operators write it.
type RuleInfo struct {
	Address        string `json:"address"`
	SnipeHeightSOL string `json:"snipe_height_sol"`
	JitoTipSOL     string `json:"jito_tip_sol"`
	SlippagePct    string `json:"slippage_pct"`
}

// RulesResponse lists the active rule snapshot.
type RulesResponse struct {
	Mints     []RuleInfo `json:"mints"`
	Deployers []RuleInfo `json:"deployers"`
}

// RuleHistoryEntry is one published snapshot.
type RuleHistoryEntry struct {
	Index     int       `json:"index"`
	Timestamp time.Time `json:"timestamp"`
	Changes   []string  `json:"changes,omitempty"`
}
