package publish

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marketcore/internal/domain"
)

type fakeBus struct {
	published map[string][][]byte
	streams   map[string][][]byte
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		published: make(map[string][][]byte),
		streams:   make(map[string][][]byte),
	}
}

func (b *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.published[channel] = append(b.published[channel], payload)
	return nil
}

func (b *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func (b *fakeBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.streams[stream] = append(b.streams[stream], payload)
	return nil
}

type fakeSnapshotCache struct {
	positions map[string]domain.Position
}

func (c *fakeSnapshotCache) SetPosition(_ context.Context, pos domain.Position) error {
	if c.positions == nil {
		c.positions = make(map[string]domain.Position)
	}
	c.positions[pos.MarketID+"/"+pos.Account] = pos
	return nil
}

func (c *fakeSnapshotCache) GetPosition(_ context.Context, marketID, account string) (domain.Position, error) {
	pos, ok := c.positions[marketID+"/"+account]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return pos, nil
}

func TestBusSinkFansOutChannels(t *testing.T) {
	bus := newFakeBus()
	sink := NewBusSink(bus, nil)

	ev := domain.Event{
		UID:       "uid-1",
		Kind:      domain.EventCollateralDeposited,
		MarketID:  "mkt-1",
		Account:   "alice",
		Sequence:  1,
		EmittedAt: time.Now().UTC(),
		Payload:   &domain.CollateralPayload{Amount: 100, NewTotal: 100},
	}
	require.NoError(t, sink.Deliver(context.Background(), ev))

	assert.Len(t, bus.published["ev:col_deposited"], 1)
	assert.Len(t, bus.published["ev:market:mkt-1"], 1)
	assert.Len(t, bus.published["ev:account:alice"], 1)
	assert.Len(t, bus.streams["events:mkt-1"], 1)

	// The published payload round-trips back to the event.
	var got domain.Event
	require.NoError(t, json.Unmarshal(bus.published["ev:market:mkt-1"][0], &got))
	require.NoError(t, got.DecodePayload())
	assert.Equal(t, ev.UID, got.UID)
	assert.Equal(t, &domain.CollateralPayload{Amount: 100, NewTotal: 100}, got.Payload)
}

func TestBusSinkSkipsAccountChannelForMarketEvents(t *testing.T) {
	bus := newFakeBus()
	sink := NewBusSink(bus, nil)

	ev := domain.Event{
		UID:      "uid-2",
		Kind:     domain.EventMarketResolved,
		MarketID: "mkt-1",
		Sequence: 9,
		Payload:  &domain.MarketResolvedPayload{Outcome: domain.OutcomeYes},
	}
	require.NoError(t, sink.Deliver(context.Background(), ev))

	assert.Len(t, bus.published["ev:mkt_resolved"], 1)
	assert.Len(t, bus.published["ev:market:mkt-1"], 1)
	assert.Empty(t, bus.published["ev:account:"])
}

func TestBusSinkUpdatesPositionSnapshot(t *testing.T) {
	bus := newFakeBus()
	cache := &fakeSnapshotCache{}
	sink := NewBusSink(bus, cache)

	ev := domain.Event{
		UID:      "uid-3",
		Kind:     domain.EventPositionUpdated,
		MarketID: "mkt-1",
		Account:  "alice",
		Sequence: 2,
		Payload:  &domain.PositionUpdatedPayload{YesShares: 50, NoShares: 0, LockedCollateral: 50},
	}
	require.NoError(t, sink.Deliver(context.Background(), ev))

	pos, err := cache.GetPosition(context.Background(), "mkt-1", "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(50), pos.YesShares)
	assert.Equal(t, int64(50), pos.LockedCollateral)
}
