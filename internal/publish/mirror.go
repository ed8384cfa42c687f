package publish

import (
	"context"
	"errors"
	"fmt"

	"github.com/alanyoungcy/marketcore/internal/domain"
)

// MarketMirror implements domain.EventSink by projecting market lifecycle
// events into the market store. The in-memory registry stays the source of
// truth; the mirror exists so the read API survives restarts and so external
// tooling can query markets with plain SQL.
type MarketMirror struct {
	store domain.MarketStore
}

// NewMarketMirror creates a MarketMirror writing to the given store.
func NewMarketMirror(store domain.MarketStore) *MarketMirror {
	return &MarketMirror{store: store}
}

// Deliver implements domain.EventSink. Only market lifecycle events are
// projected; everything else is a no-op.
func (m *MarketMirror) Deliver(ctx context.Context, ev domain.Event) error {
	switch ev.Kind {
	case domain.EventMarketCreated:
		return m.applyCreated(ctx, ev)
	case domain.EventMarketResolved:
		return m.applyResolved(ctx, ev)
	default:
		return nil
	}
}

func (m *MarketMirror) applyCreated(ctx context.Context, ev domain.Event) error {
	p, ok := ev.Payload.(*domain.MarketCreatedPayload)
	if !ok {
		return fmt.Errorf("publish: event %s: unexpected payload type %T", ev.UID, ev.Payload)
	}
	return m.store.Upsert(ctx, domain.Market{
		ID:        ev.MarketID,
		Question:  p.Question,
		EndTime:   p.EndTime,
		Creator:   p.Creator,
		Status:    domain.MarketStatusOpen,
		CreatedAt: ev.EmittedAt,
	})
}

func (m *MarketMirror) applyResolved(ctx context.Context, ev domain.Event) error {
	p, ok := ev.Payload.(*domain.MarketResolvedPayload)
	if !ok {
		return fmt.Errorf("publish: event %s: unexpected payload type %T", ev.UID, ev.Payload)
	}

	market, err := m.store.GetByID(ctx, ev.MarketID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		// The created event was never mirrored (fresh store). Project what
		// the resolved event carries.
		market = domain.Market{ID: ev.MarketID, CreatedAt: ev.EmittedAt}
	}

	outcome := p.Outcome
	resolvedAt := p.ResolvedAt
	market.Status = domain.MarketStatusResolved
	market.Outcome = &outcome
	market.ResolvedAt = &resolvedAt

	return m.store.Upsert(ctx, market)
}

// Compile-time interface check.
var _ domain.EventSink = (*MarketMirror)(nil)
