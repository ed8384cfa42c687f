package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marketcore/internal/domain"
)

func TestTradeLifecycleScenario(t *testing.T) {
	reg, clock := newTestRegistry()
	m := openMarket(reg, clock)

	// Account A deposits 100 and buys 50 yes-shares, locking 50.
	require.NoError(t, m.Deposit("acct-a", 100))

	pos, err := m.Trade("acct-a", domain.SideYes, 50, 50)
	require.NoError(t, err)
	assert.Equal(t, int64(50), pos.YesShares)
	assert.Equal(t, int64(0), pos.NoShares)
	assert.Equal(t, int64(50), pos.LockedCollateral)

	events := reg.Log().Events(m.ID(), 0)
	last := events[len(events)-1]
	require.Equal(t, domain.EventPositionUpdated, last.Kind)
	payload := last.Payload.(*domain.PositionUpdatedPayload)
	assert.Equal(t, int64(50), payload.YesShares)
	assert.Equal(t, int64(0), payload.NoShares)
	assert.Equal(t, int64(50), payload.LockedCollateral)

	// Resolve yes and settle.
	require.NoError(t, m.Resolve(domain.ResolutionRequest{Outcome: domain.OutcomeYes}))

	res, err := m.Settle("acct-a")
	require.NoError(t, err)
	assert.Equal(t, int64(50), res.Payout)
	assert.Equal(t, int64(0), res.Forfeited)

	settled := m.Position("acct-a")
	assert.True(t, settled.Settled)
	assert.Equal(t, int64(0), settled.LockedCollateral)

	// The unlocked 50 remain withdrawable.
	assert.Equal(t, int64(50), m.Collateral("acct-a").Available())
	require.NoError(t, m.Withdraw("acct-a", 50))
	assert.Equal(t, int64(0), m.Collateral("acct-a").Available())

	require.NoError(t, m.CheckConservation())
}

func TestTradeInsufficientFunds(t *testing.T) {
	reg, clock := newTestRegistry()
	m := openMarket(reg, clock)

	require.NoError(t, m.Deposit("acct-b", 30))
	before := len(reg.Log().Events(m.ID(), 0))

	_, err := m.Trade("acct-b", domain.SideYes, 50, 50)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	// No event, no state change.
	assert.Len(t, reg.Log().Events(m.ID(), 0), before)
	assert.Equal(t, int64(30), m.Collateral("acct-b").Available())
	assert.Equal(t, int64(0), m.Position("acct-b").YesShares)
}

func TestTradeAfterEndTime(t *testing.T) {
	reg, clock := newTestRegistry()
	m := openMarket(reg, clock)
	require.NoError(t, m.Deposit("acct-a", 100))

	clock.Advance(101 * time.Second)

	before := len(reg.Log().Events(m.ID(), 0))
	_, err := m.Trade("acct-a", domain.SideYes, 10, 10)
	assert.ErrorIs(t, err, domain.ErrMarketClosed)
	assert.Len(t, reg.Log().Events(m.ID(), 0), before)
}

func TestTradeExactlyAtEndTime(t *testing.T) {
	reg, clock := newTestRegistry()
	m := openMarket(reg, clock)
	require.NoError(t, m.Deposit("acct-a", 100))

	clock.Advance(100 * time.Second)

	_, err := m.Trade("acct-a", domain.SideYes, 10, 10)
	assert.ErrorIs(t, err, domain.ErrMarketClosed)
}

func TestTradeValidation(t *testing.T) {
	reg, clock := newTestRegistry()
	m := openMarket(reg, clock)
	require.NoError(t, m.Deposit("acct-a", 100))

	_, err := m.Trade("", domain.SideYes, 10, 10)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = m.Trade("acct-a", domain.Side("maybe"), 10, 10)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = m.Trade("acct-a", domain.SideYes, 0, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSellReleasesCollateral(t *testing.T) {
	reg, clock := newTestRegistry()
	m := openMarket(reg, clock)

	require.NoError(t, m.Deposit("acct-a", 100))
	_, err := m.Trade("acct-a", domain.SideNo, 40, 40)
	require.NoError(t, err)
	assert.Equal(t, int64(60), m.Collateral("acct-a").Available())

	pos, err := m.Trade("acct-a", domain.SideNo, -25, -25)
	require.NoError(t, err)
	assert.Equal(t, int64(15), pos.NoShares)
	assert.Equal(t, int64(15), pos.LockedCollateral)
	assert.Equal(t, int64(85), m.Collateral("acct-a").Available())

	require.NoError(t, m.CheckConservation())
}

func TestOversellIsInvariantViolation(t *testing.T) {
	reg, clock := newTestRegistry()
	m := openMarket(reg, clock)

	require.NoError(t, m.Deposit("acct-a", 100))
	_, err := m.Trade("acct-a", domain.SideYes, 10, 10)
	require.NoError(t, err)

	before := len(reg.Log().Events(m.ID(), 0))
	_, err = m.Trade("acct-a", domain.SideYes, -20, -10)
	assert.ErrorIs(t, err, domain.ErrInvariantViolation)
	assert.True(t, domain.IsFatal(err))

	// Zero side effects.
	assert.Len(t, reg.Log().Events(m.ID(), 0), before)
	assert.Equal(t, int64(10), m.Position("acct-a").YesShares)
	require.NoError(t, m.CheckConservation())
}

func TestResolveIsIdempotentSafe(t *testing.T) {
	reg, clock := newTestRegistry()
	m := openMarket(reg, clock)

	require.NoError(t, m.Resolve(domain.ResolutionRequest{Outcome: domain.OutcomeNo}))

	first := m.Snapshot()
	require.Equal(t, domain.MarketStatusResolved, first.Status)
	require.NotNil(t, first.ResolvedAt)
	require.Equal(t, domain.OutcomeNo, *first.Outcome)

	clock.Advance(time.Second)
	err := m.Resolve(domain.ResolutionRequest{Outcome: domain.OutcomeYes})
	assert.ErrorIs(t, err, domain.ErrAlreadyResolved)

	// State after the failed second call is identical to after the first.
	assert.Equal(t, first, m.Snapshot())

	var resolved int
	for _, ev := range reg.Log().Events(m.ID(), 0) {
		if ev.Kind == domain.EventMarketResolved {
			resolved++
		}
	}
	assert.Equal(t, 1, resolved)
}

func TestResolveValidatesOutcome(t *testing.T) {
	reg, clock := newTestRegistry()
	m := openMarket(reg, clock)

	err := m.Resolve(domain.ResolutionRequest{Outcome: domain.Outcome("draw")})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Equal(t, domain.MarketStatusOpen, m.Snapshot().Status)
}

type denyAllResolution struct{}

func (denyAllResolution) Authorize(domain.Market, domain.ResolutionRequest) error {
	return domain.ErrUnauthorized
}

func TestResolveHonorsPolicy(t *testing.T) {
	clock := newFakeClock()
	reg := NewRegistry(RegistryConfig{Clock: clock, Resolution: denyAllResolution{}})
	m := openMarket(reg, clock)

	before := len(reg.Log().Events(m.ID(), 0))
	err := m.Resolve(domain.ResolutionRequest{Outcome: domain.OutcomeYes, Caller: "mallory"})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Equal(t, domain.MarketStatusOpen, m.Snapshot().Status)
	assert.Len(t, reg.Log().Events(m.ID(), 0), before)
}

func TestSettleExactlyOnce(t *testing.T) {
	reg, clock := newTestRegistry()
	m := openMarket(reg, clock)

	require.NoError(t, m.Deposit("acct-a", 100))
	_, err := m.Trade("acct-a", domain.SideYes, 50, 50)
	require.NoError(t, err)
	require.NoError(t, m.Resolve(domain.ResolutionRequest{Outcome: domain.OutcomeYes}))

	_, err = m.Settle("acct-a")
	require.NoError(t, err)

	before := len(reg.Log().Events(m.ID(), 0))
	_, err = m.Settle("acct-a")
	assert.ErrorIs(t, err, domain.ErrAlreadySettled)
	assert.Len(t, reg.Log().Events(m.ID(), 0), before)
}

func TestSettleBeforeResolutionFails(t *testing.T) {
	reg, clock := newTestRegistry()
	m := openMarket(reg, clock)

	_, err := m.Settle("acct-a")
	assert.ErrorIs(t, err, domain.ErrNotResolved)
}

func TestSettleLosingSideForfeitsStake(t *testing.T) {
	reg, clock := newTestRegistry()
	m := openMarket(reg, clock)

	require.NoError(t, m.Deposit("acct-b", 80))
	_, err := m.Trade("acct-b", domain.SideNo, 80, 80)
	require.NoError(t, err)
	require.NoError(t, m.Resolve(domain.ResolutionRequest{Outcome: domain.OutcomeYes}))

	res, err := m.Settle("acct-b")
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Payout)
	assert.Equal(t, int64(80), res.Forfeited)

	assert.Equal(t, int64(0), m.Collateral("acct-b").Available())
	require.NoError(t, m.CheckConservation())
}

func TestPotentialPayout(t *testing.T) {
	reg, clock := newTestRegistry()
	m := openMarket(reg, clock)

	require.NoError(t, m.Deposit("acct-a", 100))
	_, err := m.Trade("acct-a", domain.SideYes, 60, 60)
	require.NoError(t, err)

	_, ok := m.PotentialPayout("acct-a")
	assert.False(t, ok)

	require.NoError(t, m.Resolve(domain.ResolutionRequest{Outcome: domain.OutcomeYes}))
	payout, ok := m.PotentialPayout("acct-a")
	require.True(t, ok)
	assert.Equal(t, int64(60), payout)
}

func TestDepositAfterResolutionFails(t *testing.T) {
	reg, clock := newTestRegistry()
	m := openMarket(reg, clock)

	require.NoError(t, m.Resolve(domain.ResolutionRequest{Outcome: domain.OutcomeYes}))

	err := m.Deposit("acct-a", 10)
	assert.ErrorIs(t, err, domain.ErrMarketClosed)
}

func TestConservationAcrossMixedOperations(t *testing.T) {
	reg, clock := newTestRegistry()
	m := openMarket(reg, clock)

	accounts := []string{"acct-a", "acct-b", "acct-c"}
	for _, acct := range accounts {
		require.NoError(t, m.Deposit(acct, 1000))
	}

	_, err := m.Trade("acct-a", domain.SideYes, 400, 400)
	require.NoError(t, err)
	_, err = m.Trade("acct-b", domain.SideNo, 700, 700)
	require.NoError(t, err)
	_, err = m.Trade("acct-c", domain.SideYes, 100, 100)
	require.NoError(t, err)
	require.NoError(t, m.Withdraw("acct-c", 500))
	_, err = m.Trade("acct-a", domain.SideYes, -100, -100)
	require.NoError(t, err)
	require.NoError(t, m.CheckConservation())

	require.NoError(t, m.Resolve(domain.ResolutionRequest{Outcome: domain.OutcomeNo}))
	for _, acct := range accounts {
		_, err := m.Settle(acct)
		require.NoError(t, err)
		require.NoError(t, m.CheckConservation())
	}
}
