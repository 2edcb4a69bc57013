// Package rulestore loads snipe rules from the daemon config file, a
// standalone YAML rules file, or a SQLite database.
package rulestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/psaab/slotstrike/pkg/config"
	"github.com/psaab/slotstrike/pkg/rules"
	"github.com/psaab/slotstrike/pkg/solana"
)

// ErrInvalidRule is returned, wrapped, when an invalid entry is found
// during an initial load.
var ErrInvalidRule = errors.New("invalid rule")

// Repository reads the rules of one kind. When initial is true any
// invalid entry fails the load; otherwise invalid entries are logged and
// skipped.
type Repository interface {
	LoadRules(ctx context.Context, kind rules.Kind, initial bool) ([]rules.SnipeRule, error)
}

// New builds the repository selected by the rule_store section.
// configPath is the daemon config file, used by the config kind.
func New(cfg config.RuleStoreConfig, configPath string) (Repository, error) {
	switch cfg.Kind {
	case config.StoreConfig, "":
		return NewConfigFile(configPath), nil
	case config.StoreYAML:
		return NewYAMLFile(cfg.Path), nil
	case config.StoreSQLite:
		return OpenSQLite(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown rule store kind %q (valid: config, yaml, sqlite)", cfg.Kind)
	}
}

// entryKind maps a rule table to the kind written in entries.
func entryKind(kind rules.Kind) (string, error) {
	switch kind {
	case rules.KindMint:
		return "mint", nil
	case rules.KindDeployer:
		return "deployer", nil
	default:
		return "", fmt.Errorf("unsupported rule file type '%s'", kind)
	}
}

// BuildRules validates the entries of the given kind and returns them in
// order. The first occurrence of an address wins.
func BuildRules(kind rules.Kind, entries []config.RuleEntry, initial bool) ([]rules.SnipeRule, error) {
	want, err := entryKind(kind)
	if err != nil {
		return nil, err
	}

	var out []rules.SnipeRule
	seen := make(map[rules.Address]struct{})
	for _, e := range entries {
		if !strings.EqualFold(strings.TrimSpace(e.Kind), want) {
			continue
		}
		r, msg := parseEntry(kind, e)
		if msg == "" {
			if _, dup := seen[r.Address]; dup {
				msg = fmt.Sprintf("%s > Same address used multiple times %s", kind, r.Address)
			}
		}
		if msg != "" {
			slog.Error(msg)
			if initial {
				return nil, fmt.Errorf("%w: %s", ErrInvalidRule, msg)
			}
			continue
		}
		seen[r.Address] = struct{}{}
		out = append(out, r)
	}
	return out, nil
}

// parseEntry returns the rule, or a non-empty message naming the problem.
func parseEntry(kind rules.Kind, e config.RuleEntry) (rules.SnipeRule, string) {
	address := strings.TrimSpace(e.Address)
	if address == "" {
		return rules.SnipeRule{}, fmt.Sprintf("%s > Empty address", kind)
	}
	height, err := rules.ParsePositiveSOL(e.SnipeHeightSOL)
	if err != nil {
		return rules.SnipeRule{}, fmt.Sprintf("%s > Invalid snipe height '%s' on address %s", kind, e.SnipeHeightSOL, address)
	}
	tip, err := rules.ParsePositiveSOL(e.TipBudgetSOL)
	if err != nil {
		return rules.SnipeRule{}, fmt.Sprintf("%s > Invalid tip budget '%s' on address %s", kind, e.TipBudgetSOL, address)
	}
	slippage, err := rules.ParseSlippagePct(e.SlippagePct)
	if err != nil {
		return rules.SnipeRule{}, fmt.Sprintf("%s > Invalid slippage '%s' on address %s: %v", kind, e.SlippagePct, address, err)
	}
	if _, err := solana.ParsePubkey(address); err != nil {
		return rules.SnipeRule{}, fmt.Sprintf("%s > Invalid address %s", kind, address)
	}
	addr, err := rules.NewAddress(address)
	if err != nil {
		return rules.SnipeRule{}, fmt.Sprintf("%s > %v", kind, err)
	}
	return rules.SnipeRule{Address: addr, SnipeHeight: height, JitoTip: tip, Slippage: slippage}, ""
}
