// Package domain defines the core types, errors, and store interfaces shared
// by every layer of the market ledger.
package domain

import "time"

// MarketStatus represents the lifecycle state of a market. The only legal
// transition is open -> resolved; per-account settlement is tracked on the
// positions, not as a market status.
type MarketStatus string

const (
	MarketStatusOpen     MarketStatus = "open"
	MarketStatusResolved MarketStatus = "resolved"
)

// Outcome is the resolved result of a binary market.
type Outcome string

const (
	OutcomeYes Outcome = "yes"
	OutcomeNo  Outcome = "no"
)

// Valid reports whether o is one of the two defined outcomes.
func (o Outcome) Valid() bool {
	return o == OutcomeYes || o == OutcomeNo
}

// Side selects which share class a trade touches.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// Valid reports whether s is one of the two defined sides.
func (s Side) Valid() bool {
	return s == SideYes || s == SideNo
}

// Market is a snapshot of one binary-outcome prediction market.
type Market struct {
	ID           string       `json:"id"`
	Question     string       `json:"question"`
	EndTime      time.Time    `json:"end_time"`
	Creator      string       `json:"creator"`
	OraclePubKey []byte       `json:"oracle_pubkey,omitempty"`
	Status       MarketStatus `json:"status"`
	Outcome      *Outcome     `json:"outcome,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	ResolvedAt   *time.Time   `json:"resolved_at,omitempty"`
}

// CreateMarketParams carries the inputs for market creation. OraclePubKey is
// optional; signature-based resolution policies fall back to their configured
// default key when it is empty.
type CreateMarketParams struct {
	Question     string    `json:"question"`
	EndTime      time.Time `json:"end_time"`
	Creator      string    `json:"creator"`
	OraclePubKey []byte    `json:"oracle_pubkey,omitempty"`
}

// ResolutionRequest carries everything a resolution policy may inspect when
// deciding whether a proposed outcome is authoritative.
type ResolutionRequest struct {
	Outcome    Outcome
	Caller     string
	Signatures [][]byte
}

// ResolutionPolicy authorizes a market resolution. Implementations range from
// a single trusted key to m-of-n multisig; the ledger treats the check as an
// opaque capability and refuses the transition on any error.
type ResolutionPolicy interface {
	Authorize(market Market, req ResolutionRequest) error
}

// CreatorPolicy authorizes market creation. A nil policy admits any creator.
type CreatorPolicy interface {
	AuthorizeCreate(params CreateMarketParams) error
}

// Clock abstracts time so the deterministic core can be driven by tests.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock backed by time.Now.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }
