package strategy

import (
	"context"
	"log/slog"

	"github.com/psaab/slotstrike/pkg/events"
	"github.com/psaab/slotstrike/pkg/logparse"
	"github.com/psaab/slotstrike/pkg/rules"
	"github.com/psaab/slotstrike/pkg/solana"
)

// OpenBook (Raydium V4) initialize2 log fields.
const (
	initPCPrefix   = "init_pc_amount: "
	initCoinPrefix = "init_coin_amount: "
	openTimePrefix = "open_time: "
)

// HandleOpenBook processes a Raydium V4 initialize2 event.
func (h *Handlers) HandleOpenBook(ctx context.Context, ev events.RawLogEvent, sig solana.Signature) {
	initPC, ok := logparse.U64AfterPrefix(ev.Logs, initPCPrefix)
	if !ok {
		return
	}
	initCoin, ok := logparse.U64AfterPrefix(ev.Logs, initCoinPrefix)
	if !ok {
		return
	}
	openTime, ok := logparse.I64AfterPrefix(ev.Logs, openTimePrefix)
	if !ok {
		return
	}
	slog.Debug("OpenBook > pool amounts",
		"init_pc_amount", initPC, "init_coin_amount", initCoin, "open_time", openTime)

	h.snipe(ctx, candidate{
		label:    "OpenBook",
		name:     NameOpenBook,
		ev:       ev,
		sig:      sig,
		openTime: openTime,
		minOut: func(lamports uint64, slippage rules.SlippageBps, tokenIsBase bool) uint64 {
			return openBookMinOut(lamports, slippage, initPC, initCoin, tokenIsBase)
		},
	})
}
