package rules

import (
	"fmt"
	"maps"
	"slices"
)

// Kind names a rule table.
type Kind string

const (
	KindMint     Kind = "MINTS"
	KindDeployer Kind = "DEPLOYERS"
)

// SnipeRule is the per-address buy configuration.
type SnipeRule struct {
	Address     Address
	SnipeHeight Lamports
	JitoTip     Lamports
	Slippage    SlippageBps
}

// Summary renders the scalar fields the way operators read them in logs.
func (r SnipeRule) Summary() string {
	return fmt.Sprintf("Snipe height: %s SOL, Jito tip: %s SOL, Slippage: %s %%",
		r.SnipeHeight.SOLString(), r.JitoTip.SOLString(), r.Slippage.PctString())
}

// LogLine renders the rule under a label such as "Token address".
func (r SnipeRule) LogLine(label string) string {
	return fmt.Sprintf("%s > %s > %s", label, r.Address, r.Summary())
}

// RuleBook is an immutable snapshot of mint and deployer rules. A new
// snapshot replaces the old one wholesale; nothing mutates it after New.
type RuleBook struct {
	mints     map[Address]SnipeRule
	deployers map[Address]SnipeRule
}

// New indexes rules by address. A later duplicate address wins.
func New(mints, deployers []SnipeRule) *RuleBook {
	rb := &RuleBook{
		mints:     make(map[Address]SnipeRule, len(mints)),
		deployers: make(map[Address]SnipeRule, len(deployers)),
	}
	for _, r := range mints {
		rb.mints[r.Address] = r
	}
	for _, r := range deployers {
		rb.deployers[r.Address] = r
	}
	return rb
}

// Empty returns a RuleBook with no rules.
func Empty() *RuleBook { return New(nil, nil) }

// MintRule looks up a rule by token mint.
func (rb *RuleBook) MintRule(mint string) (SnipeRule, bool) {
	r, ok := rb.mints[Address(mint)]
	return r, ok
}

// DeployerRule looks up a rule by deployer address.
func (rb *RuleBook) DeployerRule(deployer string) (SnipeRule, bool) {
	r, ok := rb.deployers[Address(deployer)]
	return r, ok
}

// Rules returns the rules of one kind sorted by address.
func (rb *RuleBook) Rules(kind Kind) []SnipeRule {
	m := rb.table(kind)
	keys := slices.Sorted(maps.Keys(m))
	out := make([]SnipeRule, 0, len(keys))
	for _, k := range keys {
		out = append(out, m[k])
	}
	return out
}

// Len returns the number of rules of a kind.
func (rb *RuleBook) Len(kind Kind) int { return len(rb.table(kind)) }

// Equal reports whether both snapshots hold identical rules.
func (rb *RuleBook) Equal(other *RuleBook) bool {
	if rb == other {
		return true
	}
	if rb == nil || other == nil {
		return false
	}
	return maps.Equal(rb.mints, other.mints) && maps.Equal(rb.deployers, other.deployers)
}

// MintLogLines returns one line per mint rule, sorted by address.
func (rb *RuleBook) MintLogLines() []string {
	return rb.logLines(KindMint, "Token address")
}

// DeployerLogLines returns one line per deployer rule, sorted by address.
func (rb *RuleBook) DeployerLogLines() []string {
	return rb.logLines(KindDeployer, "Deployer address")
}

func (rb *RuleBook) logLines(kind Kind, label string) []string {
	rs := rb.Rules(kind)
	lines := make([]string, len(rs))
	for i, r := range rs {
		lines[i] = r.LogLine(label)
	}
	return lines
}

func (rb *RuleBook) table(kind Kind) map[Address]SnipeRule {
	if rb == nil {
		return nil
	}
	if kind == KindDeployer {
		return rb.deployers
	}
	return rb.mints
}
