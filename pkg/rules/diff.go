package rules

import (
	"fmt"
	"maps"
	"slices"
)

// ChangeType classifies one diff entry.
type ChangeType string

const (
	ChangeAdded   ChangeType = "Added"
	ChangeUpdated ChangeType = "Updated"
	ChangeRemoved ChangeType = "Removed"
)

// Change is one address-level difference between two snapshots.
type Change struct {
	Kind    Kind
	Type    ChangeType
	Address Address
	Old     *SnipeRule // nil for Added
	New     *SnipeRule // nil for Removed
}

// String renders the change as the config sync log line.
func (c Change) String() string {
	switch c.Type {
	case ChangeUpdated:
		return fmt.Sprintf("%s > Updated - %s > Old > %s > New > %s",
			c.Kind, c.Address, c.Old.Summary(), c.New.Summary())
	case ChangeAdded:
		return fmt.Sprintf("%s > Added - %s > Value > %s", c.Kind, c.Address, c.New.Summary())
	default:
		return fmt.Sprintf("%s > Removed - %s", c.Kind, c.Address)
	}
}

// Diff compares two snapshots per kind. Entries are ordered by kind
// (mints first), then by address, with additions and updates before
// removals within a kind.
func Diff(prev, next *RuleBook) []Change {
	var out []Change
	for _, kind := range []Kind{KindMint, KindDeployer} {
		out = append(out, diffTable(kind, prev.table(kind), next.table(kind))...)
	}
	return out
}

func diffTable(kind Kind, old, cur map[Address]SnipeRule) []Change {
	var out []Change
	for _, addr := range slices.Sorted(maps.Keys(cur)) {
		n := cur[addr]
		o, ok := old[addr]
		switch {
		case !ok:
			out = append(out, Change{Kind: kind, Type: ChangeAdded, Address: addr, New: &n})
		case o != n:
			out = append(out, Change{Kind: kind, Type: ChangeUpdated, Address: addr, Old: &o, New: &n})
		}
	}
	for _, addr := range slices.Sorted(maps.Keys(old)) {
		if _, ok := cur[addr]; !ok {
			o := old[addr]
			out = append(out, Change{Kind: kind, Type: ChangeRemoved, Address: addr, Old: &o})
		}
	}
	return out
}
