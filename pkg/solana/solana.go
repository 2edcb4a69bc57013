// Package solana holds the program identifiers and base58 key types the
// sniper needs to recognize Raydium pool creation.
package solana

import (
	"fmt"
	"sync"

	"github.com/mr-tron/base58"
)

// Well-known account and program addresses.
const (
	CPMMProgramID  = "CPMMoo8L3F4NbTegBCKVNunggL7H1ZpdTHKxQB5qKP1C"
	V4ProgramID    = "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"
	TokenProgramID = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	WSOLMint       = "So11111111111111111111111111111111111111112"
	JitoTipAccount = "DttWaMuVvTiduZRnguLF7jNxTgiMBZ1hyAumKUiL2KRL"
	SignatureLen   = 64
	PubkeyLen      = 32
)

// Signature is a decoded transaction signature.
type Signature [SignatureLen]byte

func (s Signature) String() string { return base58.Encode(s[:]) }

// Pubkey is a decoded account address.
type Pubkey [PubkeyLen]byte

func (p Pubkey) String() string { return base58.Encode(p[:]) }

// ParseSignature decodes a base58 transaction signature.
func ParseSignature(s string) (Signature, error) {
	var sig Signature
	raw, err := base58.Decode(s)
	if err != nil {
		return sig, fmt.Errorf("decode signature: %w", err)
	}
	if len(raw) != SignatureLen {
		return sig, fmt.Errorf("signature length %d, want %d", len(raw), SignatureLen)
	}
	copy(sig[:], raw)
	return sig, nil
}

// ParsePubkey decodes a base58 account address.
func ParsePubkey(s string) (Pubkey, error) {
	var pk Pubkey
	raw, err := base58.Decode(s)
	if err != nil {
		return pk, fmt.Errorf("decode pubkey: %w", err)
	}
	if len(raw) != PubkeyLen {
		return pk, fmt.Errorf("pubkey length %d, want %d", len(raw), PubkeyLen)
	}
	copy(pk[:], raw)
	return pk, nil
}

// WellKnown holds the decoded forms of the constant addresses above.
type WellKnown struct {
	WSOL         Pubkey
	TokenProgram Pubkey
	JitoTip      Pubkey
	CPMMProgram  Pubkey
	V4Program    Pubkey
}

var (
	wellKnownOnce sync.Once
	wellKnown     WellKnown
	wellKnownErr  error
)

// Keys returns the decoded well-known addresses, parsing them on first use.
func Keys() (WellKnown, error) {
	wellKnownOnce.Do(func() {
		for _, k := range []struct {
			dst  *Pubkey
			addr string
		}{
			{&wellKnown.WSOL, WSOLMint},
			{&wellKnown.TokenProgram, TokenProgramID},
			{&wellKnown.JitoTip, JitoTipAccount},
			{&wellKnown.CPMMProgram, CPMMProgramID},
			{&wellKnown.V4Program, V4ProgramID},
		} {
			pk, err := ParsePubkey(k.addr)
			if err != nil {
				wellKnownErr = fmt.Errorf("well-known key %s: %w", k.addr, err)
				return
			}
			*k.dst = pk
		}
	})
	return wellKnown, wellKnownErr
}
