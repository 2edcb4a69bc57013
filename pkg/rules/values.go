// Package rules holds the snipe rule model: value types, the immutable
// RuleBook snapshot, rule matching, and snapshot diffs.
package rules

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// LamportsPerSOL is the fixed-point scale of SOL amounts.
const LamportsPerSOL uint64 = 1_000_000_000

// MaxSlippageBps is 100%.
const MaxSlippageBps uint16 = 10_000

var (
	ErrEmptyAddress    = errors.New("rule address must not be empty")
	ErrInvalidSlippage = errors.New("invalid slippage value")
	ErrInvalidSOL      = errors.New("invalid SOL amount")
)

// Address is a non-empty base58 mint or deployer address.
type Address string

// NewAddress validates that s is not blank.
func NewAddress(s string) (Address, error) {
	if strings.TrimSpace(s) == "" {
		return "", ErrEmptyAddress
	}
	return Address(s), nil
}

func (a Address) String() string { return string(a) }

// Lamports is an amount of SOL in its smallest unit.
type Lamports uint64

// SOLString formats l as SOL with trailing fractional zeros trimmed,
// e.g. 1_500_000_000 -> "1.5" and 2_000_000_000 -> "2".
func (l Lamports) SOLString() string {
	whole := uint64(l) / LamportsPerSOL
	frac := uint64(l) % LamportsPerSOL
	if frac == 0 {
		return strconv.FormatUint(whole, 10)
	}
	f := strings.TrimRight(fmt.Sprintf("%09d", frac), "0")
	return strconv.FormatUint(whole, 10) + "." + f
}

// ParsePositiveSOL parses a decimal SOL string ("1", "0.25", ".5") into
// lamports. Zero, negative, and more than nine decimals are rejected.
func ParsePositiveSOL(s string) (Lamports, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidSOL
	}
	whole, frac, _ := strings.Cut(s, ".")
	if strings.Contains(frac, ".") || (whole == "" && frac == "") || len(frac) > 9 {
		return 0, ErrInvalidSOL
	}
	if !allDigits(whole) || !allDigits(frac) {
		return 0, ErrInvalidSOL
	}
	var w, f uint64
	var err error
	if whole != "" {
		if w, err = strconv.ParseUint(whole, 10, 64); err != nil {
			return 0, ErrInvalidSOL
		}
	}
	if frac != "" {
		if f, err = strconv.ParseUint(frac+strings.Repeat("0", 9-len(frac)), 10, 64); err != nil {
			return 0, ErrInvalidSOL
		}
	}
	if w > (^uint64(0)-f)/LamportsPerSOL {
		return 0, ErrInvalidSOL
	}
	total := w*LamportsPerSOL + f
	if total == 0 {
		return 0, ErrInvalidSOL
	}
	return Lamports(total), nil
}

// SlippageBps is a slippage tolerance in basis points, 0..10000.
type SlippageBps uint16

// ParseSlippagePct parses a percent string with up to four decimals,
// e.g. "1.25" -> 125 bps. Sub-basis-point precision is truncated.
func ParseSlippagePct(s string) (SlippageBps, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("slippage must not be empty")
	}
	whole, frac, found := strings.Cut(s, ".")
	if !found {
		frac = "0"
	}
	if len(frac) > 4 {
		return 0, fmt.Errorf("slippage supports up to 4 decimal places")
	}
	if whole == "" || !allDigits(whole) || !allDigits(frac) {
		return 0, ErrInvalidSlippage
	}
	w, err := strconv.ParseUint(whole, 10, 64)
	if err != nil || w > uint64(MaxSlippageBps) {
		return 0, fmt.Errorf("slippage must be between 0 and 100")
	}
	f, _ := strconv.ParseUint(frac+strings.Repeat("0", 4-len(frac)), 10, 64)
	bps := (w*10_000 + f) / 100
	if bps > uint64(MaxSlippageBps) {
		return 0, fmt.Errorf("slippage must be between 0 and 100")
	}
	return SlippageBps(bps), nil
}

// PctString formats the slippage as a percent with two decimals.
func (b SlippageBps) PctString() string {
	return fmt.Sprintf("%d.%02d", b/100, b%100)
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
