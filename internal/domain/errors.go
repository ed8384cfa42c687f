package domain

import "errors"

// Sentinel errors returned by the ledger core. Callers match them with
// errors.Is; the HTTP layer maps them to status codes.
var (
	// ErrInvalidInput marks malformed arguments (empty question, end time in
	// the past, unknown side). The caller may retry with corrected input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidAmount marks a zero or negative collateral amount.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrNotFound marks an unknown market or account.
	ErrNotFound = errors.New("not found")

	// ErrMarketClosed is returned for trading past end time or on a market
	// that is no longer open.
	ErrMarketClosed = errors.New("market closed")

	// ErrAlreadyResolved is returned when resolving a resolved market.
	ErrAlreadyResolved = errors.New("market already resolved")

	// ErrNotResolved is returned when settling against an open market.
	ErrNotResolved = errors.New("market not resolved")

	// ErrAlreadySettled is returned on a second settlement for the same
	// account.
	ErrAlreadySettled = errors.New("position already settled")

	// ErrInsufficientFunds marks a withdraw or lock beyond available
	// collateral.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrUnauthorized marks a rejected resolution or creation attempt.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvariantViolation marks a state transition that would corrupt the
	// ledger (negative shares, negative locked collateral). Fatal: the
	// invocation is aborted with no state change and no event.
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrArithmeticOverflow marks an int64 overflow in balance arithmetic.
	// Fatal, never silently wrapped.
	ErrArithmeticOverflow = errors.New("arithmetic overflow")

	// ErrLockHeld is returned when a distributed lock is already held by
	// another process.
	ErrLockHeld = errors.New("lock already held")
)

// IsFatal reports whether err indicates a bug in the core rather than a
// recoverable caller error. Fatal errors should halt further processing of
// the affected market pending investigation.
func IsFatal(err error) bool {
	return errors.Is(err, ErrInvariantViolation) || errors.Is(err, ErrArithmeticOverflow)
}
