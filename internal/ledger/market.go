package ledger

import (
	"fmt"
	"sync"

	"github.com/alanyoungcy/marketcore/internal/domain"
)

// Market is the lifecycle state machine for one binary-outcome prediction
// market. It orchestrates the collateral ledger and position book and emits
// exactly one event per state mutation, inside the same critical section, so
// no partial state is ever observable.
//
// Every public operation validates completely before mutating anything: a
// failure after validation cannot occur, so an error always means zero side
// effects and zero events.
type Market struct {
	mu sync.Mutex

	info       domain.Market
	collateral *CollateralLedger
	positions  *positionBook

	log        *EventLog
	resolution domain.ResolutionPolicy
	payout     PayoutPolicy
	clock      domain.Clock
}

// ID returns the market's immutable identifier.
func (m *Market) ID() string { return m.info.ID }

// Snapshot returns a copy of the market's current descriptor.
func (m *Market) Snapshot() domain.Market {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.info
}

// Position returns a copy of the account's position.
func (m *Market) Position(account string) domain.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.positions.Position(account)
}

// Collateral returns a copy of the account's collateral entry.
func (m *Market) Collateral(account string) domain.CollateralAccount {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.collateral.Account(account)
}

// Deposit credits collateral to the account. Deposits are refused once the
// market has resolved; withdrawal of unlocked collateral remains open.
func (m *Market) Deposit(account string, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if account == "" {
		return fmt.Errorf("ledger: deposit: empty account: %w", domain.ErrInvalidInput)
	}
	if m.info.Status != domain.MarketStatusOpen {
		return fmt.Errorf("ledger: deposit into %s market: %w", m.info.Status, domain.ErrMarketClosed)
	}
	return m.collateral.Deposit(account, amount)
}

// Withdraw debits available collateral from the account. Valid in any
// lifecycle state: settlement zeroes locks, after which the remainder is
// withdrawable.
func (m *Market) Withdraw(account string, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if account == "" {
		return fmt.Errorf("ledger: withdraw: empty account: %w", domain.ErrInvalidInput)
	}
	return m.collateral.Withdraw(account, amount)
}

// Trade applies a position change for the account. A positive shareDelta on
// the given side buys shares; a negative one sells. collateralDelta is the
// signed change to the position's locked collateral: positive locks available
// collateral, negative releases it.
//
// The collateral lock and the position adjustment commit as one atomic unit
// with a single PositionUpdated event carrying the absolute post-trade
// snapshot.
func (m *Market) Trade(account string, side domain.Side, shareDelta, collateralDelta int64) (domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if account == "" {
		return domain.Position{}, fmt.Errorf("ledger: trade: empty account: %w", domain.ErrInvalidInput)
	}
	if !side.Valid() {
		return domain.Position{}, fmt.Errorf("ledger: trade: unknown side %q: %w", side, domain.ErrInvalidInput)
	}
	if shareDelta == 0 && collateralDelta == 0 {
		return domain.Position{}, fmt.Errorf("ledger: trade: empty deltas: %w", domain.ErrInvalidInput)
	}
	if m.info.Status != domain.MarketStatusOpen {
		return domain.Position{}, fmt.Errorf("ledger: trade on %s market: %w", m.info.Status, domain.ErrMarketClosed)
	}
	if !m.clock.Now().Before(m.info.EndTime) {
		return domain.Position{}, fmt.Errorf("ledger: trade after end time: %w", domain.ErrMarketClosed)
	}
	if m.positions.Position(account).Settled {
		return domain.Position{}, fmt.Errorf("ledger: trade on settled position: %w", domain.ErrAlreadySettled)
	}

	var dYes, dNo int64
	if side == domain.SideYes {
		dYes = shareDelta
	} else {
		dNo = shareDelta
	}

	// Validate both legs before touching either.
	yes, no, locked, err := m.positions.validateAdjust(account, dYes, dNo, collateralDelta)
	if err != nil {
		return domain.Position{}, err
	}
	if collateralDelta > 0 {
		if err := m.collateral.canLock(account, collateralDelta); err != nil {
			return domain.Position{}, err
		}
	}

	// Commit.
	if collateralDelta > 0 {
		if err := m.collateral.lock(account, collateralDelta); err != nil {
			return domain.Position{}, err
		}
	} else if collateralDelta < 0 {
		if err := m.collateral.unlock(account, -collateralDelta); err != nil {
			return domain.Position{}, err
		}
	}
	pos := m.positions.apply(account, yes, no, locked)

	m.log.Append(domain.EventPositionUpdated, m.info.ID, account, &domain.PositionUpdatedPayload{
		YesShares:        pos.YesShares,
		NoShares:         pos.NoShares,
		LockedCollateral: pos.LockedCollateral,
	})
	return pos, nil
}

// Resolve fixes the market's outcome. The transition is authorized by the
// configured resolution policy, happens at most once, and is irreversible.
func (m *Market) Resolve(req domain.ResolutionRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !req.Outcome.Valid() {
		return fmt.Errorf("ledger: resolve: unknown outcome %q: %w", req.Outcome, domain.ErrInvalidInput)
	}
	if m.info.Status != domain.MarketStatusOpen {
		return fmt.Errorf("ledger: resolve %s market: %w", m.info.Status, domain.ErrAlreadyResolved)
	}
	if m.resolution != nil {
		if err := m.resolution.Authorize(m.info, req); err != nil {
			return fmt.Errorf("ledger: resolve: %w", err)
		}
	}

	now := m.clock.Now()
	outcome := req.Outcome
	m.info.Status = domain.MarketStatusResolved
	m.info.Outcome = &outcome
	m.info.ResolvedAt = &now

	m.log.Append(domain.EventMarketResolved, m.info.ID, "", &domain.MarketResolvedPayload{
		Outcome:    outcome,
		ResolvedAt: now,
	})
	return nil
}

// Settle drains the account's position against the resolved outcome. The
// payout is computed from a single atomic read of the position; the settled
// flag and the locked collateral are zeroed in the same step the event is
// emitted. Exactly-once per account: a second call fails with
// ErrAlreadySettled and emits nothing.
func (m *Market) Settle(account string) (domain.SettlementResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if account == "" {
		return domain.SettlementResult{}, fmt.Errorf("ledger: settle: empty account: %w", domain.ErrInvalidInput)
	}
	if m.info.Status != domain.MarketStatusResolved {
		return domain.SettlementResult{}, fmt.Errorf("ledger: settle open market: %w", domain.ErrNotResolved)
	}

	pos := m.positions.Position(account)
	if pos.Settled {
		return domain.SettlementResult{}, fmt.Errorf("ledger: settle %s twice: %w", account, domain.ErrAlreadySettled)
	}

	payout, forfeited := m.payout.Payout(pos, *m.info.Outcome)
	if payout+forfeited != pos.LockedCollateral {
		return domain.SettlementResult{}, fmt.Errorf(
			"ledger: payout %d + forfeited %d != locked %d: %w",
			payout, forfeited, pos.LockedCollateral, domain.ErrInvariantViolation)
	}

	// The consumed collateral leaves the market via the treasury; validate
	// the accounting before committing anything.
	if err := m.collateral.consume(account, pos.LockedCollateral); err != nil {
		return domain.SettlementResult{}, err
	}

	now := m.clock.Now()
	m.positions.markSettled(account, now)

	m.log.Append(domain.EventPositionSettled, m.info.ID, account, &domain.PositionSettledPayload{
		Payout:    payout,
		Forfeited: forfeited,
		SettledAt: now,
	})

	return domain.SettlementResult{
		MarketID:  m.info.ID,
		Account:   account,
		Payout:    payout,
		Forfeited: forfeited,
		SettledAt: now,
	}, nil
}

// PotentialPayout reports what the account would receive if it settled now.
// The second return is false while the market is unresolved.
func (m *Market) PotentialPayout(account string) (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.info.Status != domain.MarketStatusResolved {
		return 0, false
	}
	payout, _ := m.payout.Payout(m.positions.Position(account), *m.info.Outcome)
	return payout, true
}

// CheckConservation verifies the market-level collateral invariants: the sum
// of locked collateral never exceeds net deposits, and the collateral ledger
// and position book agree on the locked total. A non-nil error indicates a
// bug in the core.
func (m *Market) CheckConservation() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	locked := m.collateral.TotalLocked()
	if locked > m.collateral.TotalNetDeposits() {
		return fmt.Errorf("ledger: locked %d exceeds net deposits %d: %w",
			locked, m.collateral.TotalNetDeposits(), domain.ErrInvariantViolation)
	}
	if locked != m.positions.TotalLocked() {
		return fmt.Errorf("ledger: collateral locked %d != positions locked %d: %w",
			locked, m.positions.TotalLocked(), domain.ErrInvariantViolation)
	}
	return nil
}
