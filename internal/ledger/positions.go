package ledger

import (
	"fmt"
	"time"

	"github.com/alanyoungcy/marketcore/internal/domain"
)

// positionBook holds the share positions for a single market. adjust is the
// sole mutation primitive for trading; settlement uses markSettled.
type positionBook struct {
	marketID  string
	positions map[string]*domain.Position
}

func newPositionBook(marketID string) *positionBook {
	return &positionBook{
		marketID:  marketID,
		positions: make(map[string]*domain.Position),
	}
}

func (b *positionBook) position(account string) *domain.Position {
	pos, ok := b.positions[account]
	if !ok {
		pos = &domain.Position{MarketID: b.marketID, Account: account}
		b.positions[account] = pos
	}
	return pos
}

// Position returns a copy of the account's position. Unknown accounts read
// as an empty position.
func (b *positionBook) Position(account string) domain.Position {
	if pos, ok := b.positions[account]; ok {
		return *pos
	}
	return domain.Position{MarketID: b.marketID, Account: account}
}

// validateAdjust computes the post-adjust values without mutating anything.
// A result that would drive shares or locked collateral negative is an
// invariant violation.
func (b *positionBook) validateAdjust(account string, dYes, dNo, dLocked int64) (yes, no, locked int64, err error) {
	pos := b.Position(account)

	yes, err = addChecked(pos.YesShares, dYes)
	if err != nil {
		return 0, 0, 0, err
	}
	no, err = addChecked(pos.NoShares, dNo)
	if err != nil {
		return 0, 0, 0, err
	}
	locked, err = addChecked(pos.LockedCollateral, dLocked)
	if err != nil {
		return 0, 0, 0, err
	}

	if yes < 0 || no < 0 || locked < 0 {
		return 0, 0, 0, fmt.Errorf(
			"ledger: adjust %s would produce yes=%d no=%d locked=%d: %w",
			account, yes, no, locked, domain.ErrInvariantViolation)
	}
	return yes, no, locked, nil
}

// apply writes pre-validated values for an account and returns the new
// position snapshot.
func (b *positionBook) apply(account string, yes, no, locked int64) domain.Position {
	pos := b.position(account)
	pos.YesShares = yes
	pos.NoShares = no
	pos.LockedCollateral = locked
	return *pos
}

// markSettled flags the position settled and zeroes its locked collateral in
// one step.
func (b *positionBook) markSettled(account string, at time.Time) domain.Position {
	pos := b.position(account)
	pos.LockedCollateral = 0
	pos.Settled = true
	settledAt := at
	pos.SettledAt = &settledAt
	return *pos
}

// TotalLocked sums locked collateral across all positions.
func (b *positionBook) TotalLocked() int64 {
	var total int64
	for _, pos := range b.positions {
		total += pos.LockedCollateral
	}
	return total
}
