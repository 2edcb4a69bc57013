// Package logparse pulls numeric fields out of program log lines such as
// "Program log: vault_0_amount:12345, vault_1_amount:67890".
package logparse

import (
	"math"
	"strings"
)

// U64AfterPrefix returns the decimal digits immediately following the first
// occurrence of prefix in the first line that has one.
func U64AfterPrefix(logs []string, prefix string) (uint64, bool) {
	for _, line := range logs {
		if v, ok := u64FromLine(line, prefix); ok {
			return v, true
		}
	}
	return 0, false
}

// I64AfterPrefix is U64AfterPrefix with an optional leading minus sign.
func I64AfterPrefix(logs []string, prefix string) (int64, bool) {
	for _, line := range logs {
		if v, ok := i64FromLine(line, prefix); ok {
			return v, true
		}
	}
	return 0, false
}

func u64FromLine(line, prefix string) (uint64, bool) {
	i := strings.Index(line, prefix)
	if i < 0 {
		return 0, false
	}
	return parseDigits(line[i+len(prefix):])
}

func i64FromLine(line, prefix string) (int64, bool) {
	i := strings.Index(line, prefix)
	if i < 0 {
		return 0, false
	}
	rest := line[i+len(prefix):]
	if unsigned, ok := strings.CutPrefix(rest, "-"); ok {
		v, ok := parseDigits(unsigned)
		if !ok || v > math.MaxInt64 {
			return 0, false
		}
		return -int64(v), true
	}
	v, ok := parseDigits(rest)
	if !ok || v > math.MaxInt64 {
		return 0, false
	}
	return int64(v), true
}

// parseDigits reads the leading ASCII digit run, failing on overflow or
// when no digit is present.
func parseDigits(s string) (uint64, bool) {
	var v uint64
	n := 0
	for ; n < len(s); n++ {
		c := s[n]
		if c < '0' || c > '9' {
			break
		}
		d := uint64(c - '0')
		if v > (math.MaxUint64-d)/10 {
			return 0, false
		}
		v = v*10 + d
	}
	return v, n > 0
}
