// Package prefilter decides cheaply whether a log batch can be a Raydium
// pool creation before any decoding or network work happens.
package prefilter

import (
	"bytes"
	"strings"

	"github.com/psaab/slotstrike/pkg/solana"
)

// OpenBookMarker is the log line fragment emitted by V4 pool initialization.
const OpenBookMarker = "initialize2"

// CPMMExclusionMarkers name routine CPMM instructions that share the program
// id with pool creation.
var CPMMExclusionMarkers = [...]string{
	"SwapBaseIn",
	"SwapBaseOutput",
	"CollectProtocolFee",
	"Deposit",
	"CollectFundFee",
	"Burn",
}

var (
	cpmmIDBytes    = []byte(solana.CPMMProgramID)
	v4IDBytes      = []byte(solana.V4ProgramID)
	openBookBytes  = []byte(OpenBookMarker)
	exclusionBytes = func() [][]byte {
		out := make([][]byte, len(CPMMExclusionMarkers))
		for i, m := range CPMMExclusionMarkers {
			out[i] = []byte(m)
		}
		return out
	}()
)

// IsCPMMCandidate reports whether some line mentions the CPMM program and
// no line carries an exclusion marker.
func IsCPMMCandidate(logs []string) bool {
	hit := false
	for _, line := range logs {
		if strings.Contains(line, solana.CPMMProgramID) {
			hit = true
			break
		}
	}
	if !hit {
		return false
	}
	for _, line := range logs {
		for _, m := range CPMMExclusionMarkers {
			if strings.Contains(line, m) {
				return false
			}
		}
	}
	return true
}

// IsOpenBookCandidate reports whether some line mentions the V4 program and
// some line carries the initialize2 marker.
func IsOpenBookCandidate(logs []string) bool {
	var program, marker bool
	for _, line := range logs {
		if !program && strings.Contains(line, solana.V4ProgramID) {
			program = true
		}
		if !marker && strings.Contains(line, OpenBookMarker) {
			marker = true
		}
		if program && marker {
			return true
		}
	}
	return false
}

// IsPoolCreationLogs is the line-level prefilter used on socket paths.
func IsPoolCreationLogs(logs []string) bool {
	return IsCPMMCandidate(logs) || IsOpenBookCandidate(logs)
}

// IsPoolCreationPayload is the byte-level prefilter for raw DMA payloads.
// It scans substrings only: no line splitting, no UTF-8 validation.
func IsPoolCreationPayload(payload []byte) bool {
	if bytes.Contains(payload, v4IDBytes) && bytes.Contains(payload, openBookBytes) {
		return true
	}
	if !bytes.Contains(payload, cpmmIDBytes) {
		return false
	}
	for _, m := range exclusionBytes {
		if bytes.Contains(payload, m) {
			return false
		}
	}
	return true
}
