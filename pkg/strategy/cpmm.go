package strategy

import (
	"context"
	"log/slog"

	"github.com/psaab/slotstrike/pkg/events"
	"github.com/psaab/slotstrike/pkg/logparse"
	"github.com/psaab/slotstrike/pkg/rules"
	"github.com/psaab/slotstrike/pkg/solana"
)

// CPMM log fields.
const (
	vault0Prefix = "vault_0_amount:"
	vault1Prefix = "vault_1_amount:"
)

// HandleCPMM processes a Raydium CPMM pool initialization.
func (h *Handlers) HandleCPMM(ctx context.Context, ev events.RawLogEvent, sig solana.Signature) {
	vault0, ok := logparse.U64AfterPrefix(ev.Logs, vault0Prefix)
	if !ok {
		return
	}
	vault1, ok := logparse.U64AfterPrefix(ev.Logs, vault1Prefix)
	if !ok {
		return
	}
	slog.Debug("CPMM > pool amounts", "vault_0_amount", vault0, "vault_1_amount", vault1)

	h.snipe(ctx, candidate{
		label: "CPMM",
		name:  NameCPMM,
		ev:    ev,
		sig:   sig,
		minOut: func(lamports uint64, slippage rules.SlippageBps, tokenIsBase bool) uint64 {
			return cpmmMinOut(lamports, slippage, vault0, vault1, tokenIsBase)
		},
	})
}
