package ledger

import (
	"fmt"

	"github.com/alanyoungcy/marketcore/internal/domain"
)

// CollateralLedger tracks per-account collateral for a single market. It
// enforces conservation: available balances never go negative, and the sum of
// locked collateral never exceeds the net deposits of the market.
//
// Deposit and Withdraw emit their events as part of the same step that
// mutates the balances. lock, unlock, and consume are internal primitives
// used by the market state machine, which emits the higher-level position
// event that subsumes their effect.
type CollateralLedger struct {
	marketID string
	accounts map[string]*domain.CollateralAccount
	log      *EventLog
}

func newCollateralLedger(marketID string, log *EventLog) *CollateralLedger {
	return &CollateralLedger{
		marketID: marketID,
		accounts: make(map[string]*domain.CollateralAccount),
		log:      log,
	}
}

func (c *CollateralLedger) account(account string) *domain.CollateralAccount {
	acct, ok := c.accounts[account]
	if !ok {
		acct = &domain.CollateralAccount{MarketID: c.marketID, Account: account}
		c.accounts[account] = acct
	}
	return acct
}

// Account returns a copy of the collateral entry for an account. Unknown
// accounts read as all-zero, matching a ledger that has never seen them.
func (c *CollateralLedger) Account(account string) domain.CollateralAccount {
	if acct, ok := c.accounts[account]; ok {
		return *acct
	}
	return domain.CollateralAccount{MarketID: c.marketID, Account: account}
}

// Deposit credits the account and emits CollateralDeposited.
func (c *CollateralLedger) Deposit(account string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("ledger: deposit %d: %w", amount, domain.ErrInvalidAmount)
	}

	acct := c.account(account)
	deposited, err := addChecked(acct.Deposited, amount)
	if err != nil {
		return err
	}

	acct.Deposited = deposited
	c.log.Append(domain.EventCollateralDeposited, c.marketID, account, &domain.CollateralPayload{
		Amount:   amount,
		NewTotal: deposited,
	})
	return nil
}

// Withdraw debits the account and emits CollateralWithdrawn. Withdrawals are
// capped at the available balance; locked collateral cannot leave the market.
func (c *CollateralLedger) Withdraw(account string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("ledger: withdraw %d: %w", amount, domain.ErrInvalidAmount)
	}

	acct := c.account(account)
	if amount > acct.Available() {
		return fmt.Errorf("ledger: withdraw %d exceeds available %d: %w",
			amount, acct.Available(), domain.ErrInsufficientFunds)
	}

	withdrawn, err := addChecked(acct.Withdrawn, amount)
	if err != nil {
		return err
	}

	acct.Withdrawn = withdrawn
	c.log.Append(domain.EventCollateralWithdrawn, c.marketID, account, &domain.CollateralPayload{
		Amount:   amount,
		NewTotal: withdrawn,
	})
	return nil
}

// canLock reports whether lock(account, amount) would succeed.
func (c *CollateralLedger) canLock(account string, amount int64) error {
	if amount > c.Account(account).Available() {
		return fmt.Errorf("ledger: lock %d exceeds available %d: %w",
			amount, c.Account(account).Available(), domain.ErrInsufficientFunds)
	}
	return nil
}

// lock moves available collateral into the locked pot. The caller must have
// validated the amount with canLock first.
func (c *CollateralLedger) lock(account string, amount int64) error {
	acct := c.account(account)
	if amount > acct.Available() {
		return fmt.Errorf("ledger: lock %d exceeds available %d: %w",
			amount, acct.Available(), domain.ErrInsufficientFunds)
	}
	locked, err := addChecked(acct.Locked, amount)
	if err != nil {
		return err
	}
	acct.Locked = locked
	return nil
}

// unlock releases locked collateral back to the available pot. Driving the
// locked balance below zero is a bug in the core, not a caller error.
func (c *CollateralLedger) unlock(account string, amount int64) error {
	acct := c.account(account)
	if amount > acct.Locked {
		return fmt.Errorf("ledger: unlock %d exceeds locked %d: %w",
			amount, acct.Locked, domain.ErrInvariantViolation)
	}
	acct.Locked -= amount
	return nil
}

// consume removes locked collateral from the market at settlement. The value
// leaves the ledger (the treasury performs the actual transfer), so it is
// accounted as withdrawn: the account's available balance is unchanged.
func (c *CollateralLedger) consume(account string, amount int64) error {
	acct := c.account(account)
	if amount > acct.Locked {
		return fmt.Errorf("ledger: consume %d exceeds locked %d: %w",
			amount, acct.Locked, domain.ErrInvariantViolation)
	}
	withdrawn, err := addChecked(acct.Withdrawn, amount)
	if err != nil {
		return err
	}
	acct.Locked -= amount
	acct.Withdrawn = withdrawn
	return nil
}

// TotalLocked sums locked collateral across all accounts.
func (c *CollateralLedger) TotalLocked() int64 {
	var total int64
	for _, acct := range c.accounts {
		total += acct.Locked
	}
	return total
}

// TotalNetDeposits sums deposited minus withdrawn across all accounts.
func (c *CollateralLedger) TotalNetDeposits() int64 {
	var total int64
	for _, acct := range c.accounts {
		total += acct.Deposited - acct.Withdrawn
	}
	return total
}
