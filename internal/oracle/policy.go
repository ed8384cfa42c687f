// Package oracle implements the resolution-authorization policies consulted
// by the market state machine, plus signing helpers for the oracle side.
package oracle

import (
	"crypto/ed25519"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/marketcore/internal/domain"
)

// outcomeByte encodes an outcome for the signed resolution message: 0x01 for
// yes, 0x00 for no.
func outcomeByte(outcome domain.Outcome) byte {
	if outcome == domain.OutcomeYes {
		return 0x01
	}
	return 0x00
}

// ResolutionDigest returns the 32-byte message an oracle signs to attest a
// resolution: keccak256(market_id || outcome_byte).
func ResolutionDigest(marketID string, outcome domain.Outcome) []byte {
	msg := make([]byte, 0, len(marketID)+1)
	msg = append(msg, marketID...)
	msg = append(msg, outcomeByte(outcome))
	return ethcrypto.Keccak256(msg)
}

// Sign produces an attestation signature for the given market and outcome.
// Used by the oracle backend and by tests.
func Sign(priv ed25519.PrivateKey, marketID string, outcome domain.Outcome) []byte {
	return ed25519.Sign(priv, ResolutionDigest(marketID, outcome))
}

// SingleKey authorizes a resolution when exactly one valid ed25519 signature
// over the resolution digest is presented. The verifying key is the market's
// registered oracle key, falling back to the policy's default key for
// markets created without one.
type SingleKey struct {
	// Default is the fallback public key for markets without their own.
	Default ed25519.PublicKey
}

// Authorize implements domain.ResolutionPolicy.
func (p SingleKey) Authorize(market domain.Market, req domain.ResolutionRequest) error {
	key := ed25519.PublicKey(market.OraclePubKey)
	if len(key) == 0 {
		key = p.Default
	}
	if len(key) != ed25519.PublicKeySize {
		return fmt.Errorf("oracle: no verifying key for market %s: %w", market.ID, domain.ErrUnauthorized)
	}
	if len(req.Signatures) != 1 {
		return fmt.Errorf("oracle: expected 1 signature, got %d: %w", len(req.Signatures), domain.ErrUnauthorized)
	}

	digest := ResolutionDigest(market.ID, req.Outcome)
	if !ed25519.Verify(key, digest, req.Signatures[0]) {
		return fmt.Errorf("oracle: invalid signature for market %s: %w", market.ID, domain.ErrUnauthorized)
	}
	return nil
}

// MultiSig authorizes a resolution when at least Threshold of the configured
// keys have signed the resolution digest. Each key is counted once no matter
// how many of the presented signatures it matches.
type MultiSig struct {
	Keys      []ed25519.PublicKey
	Threshold int
}

// Authorize implements domain.ResolutionPolicy.
func (p MultiSig) Authorize(market domain.Market, req domain.ResolutionRequest) error {
	if p.Threshold <= 0 || p.Threshold > len(p.Keys) {
		return fmt.Errorf("oracle: invalid threshold %d of %d: %w", p.Threshold, len(p.Keys), domain.ErrUnauthorized)
	}

	digest := ResolutionDigest(market.ID, req.Outcome)
	used := make(map[int]bool, len(p.Keys))
	valid := 0

	for _, sig := range req.Signatures {
		for i, key := range p.Keys {
			if used[i] {
				continue
			}
			if ed25519.Verify(key, digest, sig) {
				used[i] = true
				valid++
				break
			}
		}
	}

	if valid < p.Threshold {
		return fmt.Errorf("oracle: %d of %d required signatures for market %s: %w",
			valid, p.Threshold, market.ID, domain.ErrUnauthorized)
	}
	return nil
}

// Allowlist authorizes a resolution purely by caller account, without
// signatures. Intended for deployments where the host platform already
// authenticates the caller.
type Allowlist struct {
	Accounts map[string]bool
}

// NewAllowlist builds an Allowlist from account ids.
func NewAllowlist(accounts ...string) Allowlist {
	set := make(map[string]bool, len(accounts))
	for _, a := range accounts {
		set[a] = true
	}
	return Allowlist{Accounts: set}
}

// Authorize implements domain.ResolutionPolicy.
func (p Allowlist) Authorize(market domain.Market, req domain.ResolutionRequest) error {
	if !p.Accounts[req.Caller] {
		return fmt.Errorf("oracle: caller %q not allowed for market %s: %w",
			req.Caller, market.ID, domain.ErrUnauthorized)
	}
	return nil
}

// CreatorAllowlist restricts market creation to the configured accounts.
type CreatorAllowlist struct {
	Accounts map[string]bool
}

// NewCreatorAllowlist builds a CreatorAllowlist from account ids.
func NewCreatorAllowlist(accounts ...string) CreatorAllowlist {
	set := make(map[string]bool, len(accounts))
	for _, a := range accounts {
		set[a] = true
	}
	return CreatorAllowlist{Accounts: set}
}

// AuthorizeCreate implements domain.CreatorPolicy.
func (p CreatorAllowlist) AuthorizeCreate(params domain.CreateMarketParams) error {
	if !p.Accounts[params.Creator] {
		return fmt.Errorf("oracle: creator %q not allowed: %w",
			params.Creator, domain.ErrUnauthorized)
	}
	return nil
}
