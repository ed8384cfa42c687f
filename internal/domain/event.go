package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventKind identifies one of the six ledger event types.
type EventKind string

const (
	EventMarketCreated       EventKind = "market_created"
	EventMarketResolved      EventKind = "market_resolved"
	EventPositionUpdated     EventKind = "position_updated"
	EventPositionSettled     EventKind = "position_settled"
	EventCollateralDeposited EventKind = "collateral_deposited"
	EventCollateralWithdrawn EventKind = "collateral_withdrawn"
)

// Symbol returns the short filterable symbol used as topic zero. Consumers
// subscribe by symbol without parsing payloads.
func (k EventKind) Symbol() string {
	switch k {
	case EventMarketCreated:
		return "mkt_created"
	case EventMarketResolved:
		return "mkt_resolved"
	case EventPositionUpdated:
		return "pos_updated"
	case EventPositionSettled:
		return "pos_settled"
	case EventCollateralDeposited:
		return "col_deposited"
	case EventCollateralWithdrawn:
		return "col_withdrawn"
	}
	return string(k)
}

// Event is one entry of the append-only ledger record. Sequence is strictly
// increasing per market with no gaps; consumers treat a gap as a fatal
// desynchronization requiring a full resync from the archive.
type Event struct {
	UID       string    `json:"uid"`
	Kind      EventKind `json:"kind"`
	MarketID  string    `json:"market_id"`
	Account   string    `json:"account,omitempty"`
	Sequence  uint64    `json:"sequence"`
	EmittedAt time.Time `json:"emitted_at"`
	Payload   any       `json:"payload"`
}

// Topics returns the ordered indexed fields for off-chain filtering: the kind
// symbol, the market id, and the account when the event is account-scoped.
func (e Event) Topics() []string {
	topics := []string{e.Kind.Symbol(), e.MarketID}
	if e.Account != "" {
		topics = append(topics, e.Account)
	}
	return topics
}

// MarketCreatedPayload accompanies EventMarketCreated.
type MarketCreatedPayload struct {
	Question string    `json:"question"`
	EndTime  time.Time `json:"end_time"`
	Creator  string    `json:"creator"`
}

// MarketResolvedPayload accompanies EventMarketResolved.
type MarketResolvedPayload struct {
	Outcome    Outcome   `json:"outcome"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// PositionUpdatedPayload accompanies EventPositionUpdated. It is an absolute
// snapshot of the post-trade position, not a delta: the latest event per
// account is sufficient to reconstruct current holdings.
type PositionUpdatedPayload struct {
	YesShares        int64 `json:"yes_shares"`
	NoShares         int64 `json:"no_shares"`
	LockedCollateral int64 `json:"locked_collateral"`
}

// PositionSettledPayload accompanies EventPositionSettled.
type PositionSettledPayload struct {
	Payout    int64     `json:"payout"`
	Forfeited int64     `json:"forfeited"`
	SettledAt time.Time `json:"settled_at"`
}

// CollateralPayload accompanies the deposit and withdraw events. NewTotal is
// the account's cumulative figure after the operation (deposited for
// deposits, withdrawn for withdrawals).
type CollateralPayload struct {
	Amount   int64 `json:"amount"`
	NewTotal int64 `json:"new_total"`
}

// DecodePayload re-types a payload that was round-tripped through JSON (for
// example out of the postgres journal) back into its concrete struct.
func (e *Event) DecodePayload() error {
	raw, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("domain: marshal payload: %w", err)
	}

	var dst any
	switch e.Kind {
	case EventMarketCreated:
		dst = &MarketCreatedPayload{}
	case EventMarketResolved:
		dst = &MarketResolvedPayload{}
	case EventPositionUpdated:
		dst = &PositionUpdatedPayload{}
	case EventPositionSettled:
		dst = &PositionSettledPayload{}
	case EventCollateralDeposited, EventCollateralWithdrawn:
		dst = &CollateralPayload{}
	default:
		return fmt.Errorf("domain: unknown event kind %q", e.Kind)
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("domain: decode %s payload: %w", e.Kind, err)
	}
	e.Payload = dst
	return nil
}
