package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/alanyoungcy/marketcore/internal/domain"
)

// BusSink implements domain.EventSink on top of the redis signal bus. Every
// event is published to three pub/sub channels so WebSocket subscribers can
// filter by kind, market, or account without parsing payloads:
//
//	ev:<symbol>              - all events of one kind
//	ev:market:<market_id>    - all events for one market
//	ev:account:<account>     - account-scoped events only
//
// Events are also appended to a per-market stream ("events:<market_id>") for
// short-horizon catch-up, and PositionUpdated events refresh the position
// snapshot cache.
type BusSink struct {
	bus   domain.SignalBus
	cache domain.SnapshotCache
}

// NewBusSink creates a BusSink. Cache may be nil when snapshot caching is
// disabled.
func NewBusSink(bus domain.SignalBus, cache domain.SnapshotCache) *BusSink {
	return &BusSink{bus: bus, cache: cache}
}

// Deliver implements domain.EventSink.
func (s *BusSink) Deliver(ctx context.Context, ev domain.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("publish: marshal event %s: %w", ev.UID, err)
	}

	var errs []error

	channels := []string{
		"ev:" + ev.Kind.Symbol(),
		"ev:market:" + ev.MarketID,
	}
	if ev.Account != "" {
		channels = append(channels, "ev:account:"+ev.Account)
	}
	for _, ch := range channels {
		if err := s.bus.Publish(ctx, ch, payload); err != nil {
			errs = append(errs, err)
		}
	}

	if err := s.bus.StreamAppend(ctx, "events:"+ev.MarketID, payload); err != nil {
		errs = append(errs, err)
	}

	if s.cache != nil && ev.Kind == domain.EventPositionUpdated {
		if err := s.updateSnapshot(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (s *BusSink) updateSnapshot(ctx context.Context, ev domain.Event) error {
	p, ok := ev.Payload.(*domain.PositionUpdatedPayload)
	if !ok {
		return fmt.Errorf("publish: event %s: unexpected payload type %T", ev.UID, ev.Payload)
	}
	return s.cache.SetPosition(ctx, domain.Position{
		MarketID:         ev.MarketID,
		Account:          ev.Account,
		YesShares:        p.YesShares,
		NoShares:         p.NoShares,
		LockedCollateral: p.LockedCollateral,
	})
}

// Compile-time interface check.
var _ domain.EventSink = (*BusSink)(nil)
