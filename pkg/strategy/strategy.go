// Package strategy turns pool-creation candidates into snipe orders.
//
// A handler extracts pool amounts from the program logs, asks a Resolver
// for the pool's accounts, matches the mint and deployer against the
// current RuleBook, prices the swap and hands the order to an Executor.
// Resolving accounts and building transactions are left to those
// collaborators; without them the handlers still record every candidate.
package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/psaab/slotstrike/pkg/events"
	"github.com/psaab/slotstrike/pkg/logging"
	"github.com/psaab/slotstrike/pkg/rules"
	"github.com/psaab/slotstrike/pkg/solana"
)

// Strategy names as they appear in records and metrics.
const (
	NameCPMM     = "cpmm"
	NameOpenBook = "openbook"
)

// RuleSource yields the current rule snapshot.
type RuleSource interface {
	Load() *rules.RuleBook
}

// Pool is the account view of a newly created pool.
type Pool struct {
	Mint     string
	Deployer string
	// TokenIsBase is true when the token sits in CPMM vault 0 or is the
	// OpenBook coin mint.
	TokenIsBase bool
	// OpenTime is the pool open time in unix seconds. Zero means open.
	OpenTime int64
}

// Resolver loads a pool's accounts from its creation transaction.
type Resolver interface {
	ResolvePool(ctx context.Context, strategy string, sig solana.Signature) (Pool, error)
}

// Order is a priced snipe ready for submission.
type Order struct {
	Strategy     string
	Signature    solana.Signature
	Pool         Pool
	Rule         rules.SnipeRule
	MatchedBy    rules.MatchSource
	AmountIn     uint64
	MinAmountOut uint64
}

// Executor builds and submits the swap for an order.
type Executor interface {
	Execute(ctx context.Context, o Order) error
}

// Options configures Handlers. Only Rules is required.
type Options struct {
	Rules      RuleSource
	Resolver   Resolver
	Executor   Executor
	Candidates *logging.EventBuffer
}

// Handlers implements the CPMM and OpenBook strategies.
type Handlers struct {
	rules      RuleSource
	resolver   Resolver
	executor   Executor
	candidates *logging.EventBuffer

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// New creates strategy handlers.
func New(opts Options) *Handlers {
	return &Handlers{
		rules:      opts.Rules,
		resolver:   opts.Resolver,
		executor:   opts.Executor,
		candidates: opts.Candidates,
		now:        time.Now,
		sleep:      sleepCtx,
	}
}

// candidate is the state shared by both strategies once amounts are known.
type candidate struct {
	label    string // log prefix, "CPMM" or "OpenBook"
	name     string
	ev       events.RawLogEvent
	sig      solana.Signature
	openTime int64 // from logs; zero defers to the resolved pool
	minOut   func(lamports uint64, slippage rules.SlippageBps, tokenIsBase bool) uint64
}

func (h *Handlers) snipe(ctx context.Context, c candidate) {
	latency := events.SinceNanos(c.ev.Ingress.NormalizedTimestampNs)
	var hwTs uint64
	if c.ev.Ingress.HardwareTimestampNs != nil {
		hwTs = *c.ev.Ingress.HardwareTimestampNs
	}
	slog.Debug(fmt.Sprintf("%s > ingress", c.label),
		"source", c.ev.Ingress.Source.String(),
		"normalized_ts", c.ev.Ingress.NormalizedTimestampNs,
		"hw_ts", hwTs,
		"latency_ns", latency)

	rec := logging.Record{
		Time:      h.now(),
		Category:  logging.CategoryCandidate,
		Source:    c.ev.Ingress.Source.String(),
		Strategy:  c.name,
		Signature: c.ev.Signature,
		IngressNs: latency,
	}
	defer h.record(&rec)

	if h.resolver == nil {
		slog.Debug(fmt.Sprintf("%s > no pool resolver configured", c.label), "signature", c.ev.Signature)
		return
	}
	pool, err := h.resolver.ResolvePool(ctx, c.name, c.sig)
	if err != nil {
		slog.Error(fmt.Sprintf("%s > Error getting transaction", c.label), "signature", c.ev.Signature, "err", err)
		return
	}
	rec.Mint, rec.Deployer = pool.Mint, pool.Deployer

	var rb *rules.RuleBook
	if h.rules != nil {
		rb = h.rules.Load()
	}
	m, ok := rules.MatchRule(rb, pool.Mint, pool.Deployer)
	if !ok {
		slog.Debug(fmt.Sprintf("%s > %s > Ignoring token", c.label, pool.Mint))
		return
	}
	rec.Matched = m.Source.String()
	slog.Debug(fmt.Sprintf("%s > %s > Matched by %s rule key %s", c.label, pool.Mint, m.Source, m.Rule.Address))
	slog.Debug(fmt.Sprintf("%s > %s > %s", c.label, pool.Mint, m.Rule.Summary()))
	slog.Info(fmt.Sprintf("%s > Found token: %s", c.label, pool.Mint))

	lamports := uint64(m.Rule.SnipeHeight)
	minOut := c.minOut(lamports, m.Rule.Slippage, pool.TokenIsBase)
	rec.SnipeHeight, rec.MinOut = lamports, minOut
	slog.Debug(fmt.Sprintf("%s > %s > Min amount out: %d", c.label, pool.Mint, minOut))

	openTime := c.openTime
	if openTime == 0 {
		openTime = pool.OpenTime
	}
	// Record the candidate before a potentially long wait for pool open.
	h.record(&rec)
	rec = logging.Record{}

	if err := h.waitForPoolOpen(ctx, openTime, pool.Mint, c.label); err != nil {
		return
	}

	if h.executor == nil {
		slog.Info(fmt.Sprintf("%s > %s > No executor configured. Skipping submission", c.label, pool.Mint))
		return
	}
	order := Order{
		Strategy:     c.name,
		Signature:    c.sig,
		Pool:         pool,
		Rule:         m.Rule,
		MatchedBy:    m.Source,
		AmountIn:     lamports,
		MinAmountOut: minOut,
	}
	if err := h.executor.Execute(ctx, order); err != nil {
		slog.Error(fmt.Sprintf("%s > %s > Swap failed", c.label, pool.Mint), "err", err)
		return
	}
	slog.Info(fmt.Sprintf("%s > %s > Swap submitted", c.label, pool.Mint))
}

func (h *Handlers) record(rec *logging.Record) {
	if h.candidates == nil || rec.Category == "" {
		return
	}
	h.candidates.Add(*rec)
}
