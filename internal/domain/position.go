package domain

import "time"

// Position is an account's share holdings and locked collateral within one
// market. Quantities are integer collateral units; winning shares redeem 1:1.
type Position struct {
	MarketID         string     `json:"market_id"`
	Account          string     `json:"account"`
	YesShares        int64      `json:"yes_shares"`
	NoShares         int64      `json:"no_shares"`
	LockedCollateral int64      `json:"locked_collateral"`
	Settled          bool       `json:"settled"`
	SettledAt        *time.Time `json:"settled_at,omitempty"`
}

// Shares returns the holdings on the given side.
func (p Position) Shares(side Side) int64 {
	if side == SideYes {
		return p.YesShares
	}
	return p.NoShares
}

// CollateralAccount tracks cumulative collateral flows for one account in one
// market. Available collateral is derived, never stored.
type CollateralAccount struct {
	MarketID  string `json:"market_id"`
	Account   string `json:"account"`
	Deposited int64  `json:"deposited"`
	Withdrawn int64  `json:"withdrawn"`
	Locked    int64  `json:"locked"`
}

// Available returns the collateral free for withdrawal or locking.
func (c CollateralAccount) Available() int64 {
	return c.Deposited - c.Withdrawn - c.Locked
}

// SettlementResult reports the outcome of settling one position. Payout is
// owed to the account and Forfeited to the treasury; the token subsystem
// performs the actual transfers.
type SettlementResult struct {
	MarketID  string    `json:"market_id"`
	Account   string    `json:"account"`
	Payout    int64     `json:"payout"`
	Forfeited int64     `json:"forfeited"`
	SettledAt time.Time `json:"settled_at"`
}
