package rules

import (
	"strings"
	"testing"
)

const (
	wsol   = "So11111111111111111111111111111111111111112"
	system = "11111111111111111111111111111111"
)

func mustRule(t *testing.T, addr, height, tip, slip string) SnipeRule {
	t.Helper()
	a, err := NewAddress(addr)
	if err != nil {
		t.Fatalf("NewAddress(%q): %v", addr, err)
	}
	h, err := ParsePositiveSOL(height)
	if err != nil {
		t.Fatalf("ParsePositiveSOL(%q): %v", height, err)
	}
	tp, err := ParsePositiveSOL(tip)
	if err != nil {
		t.Fatalf("ParsePositiveSOL(%q): %v", tip, err)
	}
	s, err := ParseSlippagePct(slip)
	if err != nil {
		t.Fatalf("ParseSlippagePct(%q): %v", slip, err)
	}
	return SnipeRule{Address: a, SnipeHeight: h, JitoTip: tp, Slippage: s}
}

func TestNewAddress(t *testing.T) {
	if _, err := NewAddress(wsol); err != nil {
		t.Errorf("valid address rejected: %v", err)
	}
	if _, err := NewAddress(" "); err != ErrEmptyAddress {
		t.Errorf("blank address err = %v", err)
	}
}

func TestParseSlippagePct(t *testing.T) {
	tests := []struct {
		in      string
		bps     SlippageBps
		pct     string
		wantErr bool
	}{
		{in: "1.25", bps: 125, pct: "1.25"},
		{in: "1", bps: 100, pct: "1.00"},
		{in: "1.5", bps: 150, pct: "1.50"},
		{in: "100", bps: 10_000, pct: "100.00"},
		{in: "0.0001", bps: 0, pct: "0.00"},
		{in: "100.01", wantErr: true},
		{in: "1.23456", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "1.2x", wantErr: true},
		{in: "", wantErr: true},
		{in: "-1", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseSlippagePct(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseSlippagePct(%q) = %d, want error", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseSlippagePct(%q): %v", tt.in, err)
			continue
		}
		if got != tt.bps || got.PctString() != tt.pct {
			t.Errorf("ParseSlippagePct(%q) = %d (%s), want %d (%s)", tt.in, got, got.PctString(), tt.bps, tt.pct)
		}
	}
}

func TestParsePositiveSOL(t *testing.T) {
	good := map[string]Lamports{
		"1":           1_000_000_000,
		"1.23":        1_230_000_000,
		".5":          500_000_000,
		"0.000000001": 1,
		" 2 ":         2_000_000_000,
	}
	for in, want := range good {
		got, err := ParsePositiveSOL(in)
		if err != nil || got != want {
			t.Errorf("ParsePositiveSOL(%q) = %d, %v; want %d", in, got, err, want)
		}
	}
	for _, in := range []string{"0", "0.000000000", "-1", "1.0000000001", "1.2.3", ".", "abc", "", "18446744073709551615"} {
		if got, err := ParsePositiveSOL(in); err == nil {
			t.Errorf("ParsePositiveSOL(%q) = %d, want error", in, got)
		}
	}
}

func TestLamportsSOLString(t *testing.T) {
	tests := map[Lamports]string{
		0:             "0",
		1:             "0.000000001",
		1_500_000_000: "1.5",
		2_000_000_000: "2",
		100_000_000:   "0.1",
	}
	for in, want := range tests {
		if got := in.SOLString(); got != want {
			t.Errorf("Lamports(%d).SOLString() = %q, want %q", in, got, want)
		}
	}
}

func TestRuleBookIndexesAndSorts(t *testing.T) {
	a := mustRule(t, system, "1", "0.1", "1")
	b := mustRule(t, wsol, "1", "0.1", "1")
	book := New([]SnipeRule{b, a}, []SnipeRule{a})

	if _, ok := book.MintRule(wsol); !ok {
		t.Error("mint rule not indexed")
	}
	if _, ok := book.DeployerRule(system); !ok {
		t.Error("deployer rule not indexed")
	}
	lines := book.MintLogLines()
	if len(lines) != 2 || !strings.Contains(lines[0], system) {
		t.Errorf("mint log lines not sorted: %q", lines)
	}
	if !strings.HasPrefix(book.DeployerLogLines()[0], "Deployer address > ") {
		t.Errorf("deployer label missing: %q", book.DeployerLogLines())
	}
}

func TestRuleBookEqual(t *testing.T) {
	a := mustRule(t, wsol, "1", "0.1", "1")
	if !New([]SnipeRule{a}, nil).Equal(New([]SnipeRule{a}, nil)) {
		t.Error("identical books not equal")
	}
	c := a
	c.Slippage = 150
	if New([]SnipeRule{a}, nil).Equal(New([]SnipeRule{c}, nil)) {
		t.Error("books with different slippage compare equal")
	}
	if New([]SnipeRule{a}, nil).Equal(New(nil, []SnipeRule{a})) {
		t.Error("mint and deployer tables conflated")
	}
}

func TestMatchRulePrefersMint(t *testing.T) {
	mintRule := mustRule(t, wsol, "1", "0.1", "1")
	deployerRule := mustRule(t, system, "2", "0.2", "2")
	book := New([]SnipeRule{mintRule}, []SnipeRule{deployerRule})

	m, ok := MatchRule(book, wsol, system)
	if !ok || m.Source != MatchMint || m.Rule != mintRule {
		t.Errorf("match = %+v, %v; want mint rule", m, ok)
	}
	m, ok = MatchRule(book, "unknown", system)
	if !ok || m.Source != MatchDeployer || m.Rule != deployerRule {
		t.Errorf("match = %+v, %v; want deployer rule", m, ok)
	}
	if _, ok := MatchRule(book, "unknown", "unknown"); ok {
		t.Error("unexpected match")
	}
	if _, ok := MatchRule(nil, wsol, system); ok {
		t.Error("nil book matched")
	}
}

func TestDiffSlippageChangeIsSingleUpdate(t *testing.T) {
	before := New([]SnipeRule{mustRule(t, wsol, "1", "0.1", "1.00")}, nil)
	after := New([]SnipeRule{mustRule(t, wsol, "1", "0.1", "1.50")}, nil)

	changes := Diff(before, after)
	if len(changes) != 1 {
		t.Fatalf("got %d changes, want 1: %v", len(changes), changes)
	}
	c := changes[0]
	if c.Type != ChangeUpdated || c.Kind != KindMint || c.Address != wsol {
		t.Fatalf("change = %+v", c)
	}
	line := c.String()
	if !strings.Contains(line, "Slippage: 1.00 %") || !strings.Contains(line, "Slippage: 1.50 %") {
		t.Errorf("update line missing old/new slippage: %q", line)
	}
}

func TestDiffAddedRemoved(t *testing.T) {
	before := New(nil, []SnipeRule{mustRule(t, system, "1", "0.1", "1")})
	after := New([]SnipeRule{mustRule(t, wsol, "1", "0.1", "1")}, nil)

	changes := Diff(before, after)
	if len(changes) != 2 {
		t.Fatalf("got %d changes, want 2", len(changes))
	}
	if changes[0].Type != ChangeAdded || changes[0].Kind != KindMint {
		t.Errorf("first change = %+v", changes[0])
	}
	if changes[1].Type != ChangeRemoved || changes[1].Kind != KindDeployer {
		t.Errorf("second change = %+v", changes[1])
	}
	if got := changes[1].String(); got != "DEPLOYERS > Removed - "+system {
		t.Errorf("removed line = %q", got)
	}
	if len(Diff(after, after)) != 0 {
		t.Error("diff of identical books is non-empty")
	}
}
