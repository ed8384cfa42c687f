package oracle

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marketcore/internal/domain"
)

func genKey(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return pub, priv
}

func TestResolutionDigest(t *testing.T) {
	d1 := ResolutionDigest("mkt-1", domain.OutcomeYes)
	assert.Len(t, d1, 32)

	// Deterministic.
	assert.Equal(t, d1, ResolutionDigest("mkt-1", domain.OutcomeYes))

	// Distinct per outcome and per market.
	assert.NotEqual(t, d1, ResolutionDigest("mkt-1", domain.OutcomeNo))
	assert.NotEqual(t, d1, ResolutionDigest("mkt-2", domain.OutcomeYes))
}

func TestSingleKeyAuthorize(t *testing.T) {
	pub, priv := genKey(t)
	market := domain.Market{ID: "mkt-1", OraclePubKey: pub}
	policy := SingleKey{}

	req := domain.ResolutionRequest{
		Outcome:    domain.OutcomeYes,
		Signatures: [][]byte{Sign(priv, "mkt-1", domain.OutcomeYes)},
	}
	assert.NoError(t, policy.Authorize(market, req))
}

func TestSingleKeyRejectsWrongKey(t *testing.T) {
	pub, _ := genKey(t)
	_, otherPriv := genKey(t)
	market := domain.Market{ID: "mkt-1", OraclePubKey: pub}

	req := domain.ResolutionRequest{
		Outcome:    domain.OutcomeYes,
		Signatures: [][]byte{Sign(otherPriv, "mkt-1", domain.OutcomeYes)},
	}
	err := SingleKey{}.Authorize(market, req)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestSingleKeyRejectsOutcomeSwap(t *testing.T) {
	pub, priv := genKey(t)
	market := domain.Market{ID: "mkt-1", OraclePubKey: pub}

	// A signature over "yes" must not authorize a "no" resolution.
	req := domain.ResolutionRequest{
		Outcome:    domain.OutcomeNo,
		Signatures: [][]byte{Sign(priv, "mkt-1", domain.OutcomeYes)},
	}
	err := SingleKey{}.Authorize(market, req)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestSingleKeyFallsBackToDefault(t *testing.T) {
	pub, priv := genKey(t)
	market := domain.Market{ID: "mkt-7"} // no per-market key
	policy := SingleKey{Default: pub}

	req := domain.ResolutionRequest{
		Outcome:    domain.OutcomeNo,
		Signatures: [][]byte{Sign(priv, "mkt-7", domain.OutcomeNo)},
	}
	assert.NoError(t, policy.Authorize(market, req))
}

func TestSingleKeyRequiresExactlyOneSignature(t *testing.T) {
	pub, priv := genKey(t)
	market := domain.Market{ID: "mkt-1", OraclePubKey: pub}
	sig := Sign(priv, "mkt-1", domain.OutcomeYes)

	err := SingleKey{}.Authorize(market, domain.ResolutionRequest{Outcome: domain.OutcomeYes})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	err = SingleKey{}.Authorize(market, domain.ResolutionRequest{
		Outcome:    domain.OutcomeYes,
		Signatures: [][]byte{sig, sig},
	})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestMultiSigThreshold(t *testing.T) {
	pub1, priv1 := genKey(t)
	pub2, priv2 := genKey(t)
	pub3, _ := genKey(t)

	market := domain.Market{ID: "mkt-1"}
	policy := MultiSig{Keys: []ed25519.PublicKey{pub1, pub2, pub3}, Threshold: 2}

	sig1 := Sign(priv1, "mkt-1", domain.OutcomeYes)
	sig2 := Sign(priv2, "mkt-1", domain.OutcomeYes)

	// Two valid signatures meet the threshold.
	assert.NoError(t, policy.Authorize(market, domain.ResolutionRequest{
		Outcome:    domain.OutcomeYes,
		Signatures: [][]byte{sig1, sig2},
	}))

	// One is not enough.
	err := policy.Authorize(market, domain.ResolutionRequest{
		Outcome:    domain.OutcomeYes,
		Signatures: [][]byte{sig1},
	})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	// The same signature presented twice counts once.
	err = policy.Authorize(market, domain.ResolutionRequest{
		Outcome:    domain.OutcomeYes,
		Signatures: [][]byte{sig1, sig1},
	})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestAllowlist(t *testing.T) {
	policy := NewAllowlist("oracle-1", "oracle-2")
	market := domain.Market{ID: "mkt-1"}

	assert.NoError(t, policy.Authorize(market, domain.ResolutionRequest{
		Outcome: domain.OutcomeYes,
		Caller:  "oracle-1",
	}))

	err := policy.Authorize(market, domain.ResolutionRequest{
		Outcome: domain.OutcomeYes,
		Caller:  "mallory",
	})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestCreatorAllowlist(t *testing.T) {
	policy := NewCreatorAllowlist("admin")

	assert.NoError(t, policy.AuthorizeCreate(domain.CreateMarketParams{Creator: "admin"}))

	err := policy.AuthorizeCreate(domain.CreateMarketParams{Creator: "mallory"})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}
