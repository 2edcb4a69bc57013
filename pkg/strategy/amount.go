package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"time"

	"github.com/psaab/slotstrike/pkg/rules"
)

var (
	bpsDenominator = big.NewInt(int64(rules.MaxSlippageBps))
	maxUint64      = new(big.Int).SetUint64(math.MaxUint64)
)

// MinAmountOut returns the slippage-adjusted output for swapping lamports
// into a constant-product pool with reserves reserveIn/reserveOut.
// Intermediate products are exact; a result above MaxUint64 saturates.
// Zero reserves or slippage of 100% or more yield 0.
func MinAmountOut(lamports uint64, slippage rules.SlippageBps, reserveIn, reserveOut uint64) uint64 {
	if reserveIn == 0 || reserveOut == 0 {
		return 0
	}
	if uint16(slippage) >= rules.MaxSlippageBps {
		return 0
	}

	v := new(big.Int).SetUint64(lamports)
	v.Mul(v, new(big.Int).SetUint64(reserveOut))
	v.Quo(v, new(big.Int).SetUint64(reserveIn))
	v.Mul(v, big.NewInt(int64(rules.MaxSlippageBps-uint16(slippage))))
	v.Quo(v, bpsDenominator)

	if v.Cmp(maxUint64) > 0 {
		return math.MaxUint64
	}
	return v.Uint64()
}

// cpmmMinOut orients the CPMM vaults: the token leaves the pool from
// vault 0 when tokenIsVaultZero, otherwise from vault 1.
func cpmmMinOut(lamports uint64, slippage rules.SlippageBps, vault0, vault1 uint64, tokenIsVaultZero bool) uint64 {
	if tokenIsVaultZero {
		return MinAmountOut(lamports, slippage, vault1, vault0)
	}
	return MinAmountOut(lamports, slippage, vault0, vault1)
}

// openBookMinOut orients the V4 pool: pc is the quote side, coin the base.
func openBookMinOut(lamports uint64, slippage rules.SlippageBps, initPC, initCoin uint64, tokenIsCoin bool) uint64 {
	if tokenIsCoin {
		return MinAmountOut(lamports, slippage, initPC, initCoin)
	}
	return MinAmountOut(lamports, slippage, initCoin, initPC)
}

// waitForPoolOpen blocks until openTime (unix seconds) when the pool has
// not opened yet.
func (h *Handlers) waitForPoolOpen(ctx context.Context, openTime int64, token, label string) error {
	target := time.Unix(openTime, 0)
	now := h.now()
	if !now.Before(target) {
		return nil
	}
	d := target.Sub(now)
	mins := int64(d / time.Minute)
	secs := int64(d/time.Second) - mins*60
	slog.Info(fmt.Sprintf("%s > %s > Pool closed. Proceeding with snipe in %dm %ds. UTC: %s",
		label, token, mins, secs, target.UTC().Format(time.RFC1123Z)))
	return h.sleep(ctx, d)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
