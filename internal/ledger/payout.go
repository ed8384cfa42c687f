package ledger

import "github.com/alanyoungcy/marketcore/internal/domain"

// PayoutPolicy computes the settlement split for one position against the
// resolved outcome. Payout is owed to the account; forfeited is the locked
// remainder surrendered to the treasury. Policies must satisfy
// payout + forfeited == position.LockedCollateral so settlement conserves
// value.
//
// How losing-side collateral is redistributed (treasury, pro-rata to winners,
// burned) is a treasury concern; the default policy reports it as forfeited
// and leaves the destination to the caller.
type PayoutPolicy interface {
	Payout(pos domain.Position, outcome domain.Outcome) (payout, forfeited int64)
}

// WinnerTakesStake redeems winning-side shares 1:1 against the position's
// locked collateral and forfeits whatever remains locked. A payout can never
// exceed the collateral actually locked for the position.
type WinnerTakesStake struct{}

// Payout implements PayoutPolicy.
func (WinnerTakesStake) Payout(pos domain.Position, outcome domain.Outcome) (int64, int64) {
	winning := pos.YesShares
	if outcome == domain.OutcomeNo {
		winning = pos.NoShares
	}

	payout := winning
	if payout > pos.LockedCollateral {
		payout = pos.LockedCollateral
	}
	return payout, pos.LockedCollateral - payout
}
