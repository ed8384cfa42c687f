package notify

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marketcore/internal/domain"
)

type captureSender struct {
	titles   []string
	messages []string
	err      error
}

func (c *captureSender) Send(_ context.Context, title, message string) error {
	if c.err != nil {
		return c.err
	}
	c.titles = append(c.titles, title)
	c.messages = append(c.messages, message)
	return nil
}

func (c *captureSender) Name() string { return "capture" }

func newTestSink(events []string) (*Sink, *captureSender) {
	sender := &captureSender{}
	notifier := NewNotifier([]Sender{sender}, events, slog.Default())
	return NewSink(notifier), sender
}

func TestSinkAnnouncesLifecycleEvents(t *testing.T) {
	sink, sender := newTestSink(nil)
	ctx := context.Background()

	created := domain.Event{
		Kind:     domain.EventMarketCreated,
		MarketID: "mkt-1",
		Payload: &domain.MarketCreatedPayload{
			Question: "Will it rain tomorrow?",
			EndTime:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
			Creator:  "alice",
		},
	}
	require.NoError(t, sink.Deliver(ctx, created))

	resolved := domain.Event{
		Kind:     domain.EventMarketResolved,
		MarketID: "mkt-1",
		Payload: &domain.MarketResolvedPayload{
			Outcome:    domain.OutcomeYes,
			ResolvedAt: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		},
	}
	require.NoError(t, sink.Deliver(ctx, resolved))

	require.Len(t, sender.titles, 2)
	assert.Equal(t, "Market created", sender.titles[0])
	assert.Contains(t, sender.messages[0], "Will it rain tomorrow?")
	assert.Contains(t, sender.messages[0], "alice")
	assert.Equal(t, "Market resolved", sender.titles[1])
	assert.Contains(t, sender.messages[1], "yes")
}

func TestSinkIgnoresChattyKinds(t *testing.T) {
	sink, sender := newTestSink(nil)

	err := sink.Deliver(context.Background(), domain.Event{
		Kind:     domain.EventPositionUpdated,
		MarketID: "mkt-1",
		Account:  "bob",
		Payload:  &domain.PositionUpdatedPayload{YesShares: 10, LockedCollateral: 10},
	})
	require.NoError(t, err)
	assert.Empty(t, sender.titles)

	err = sink.Deliver(context.Background(), domain.Event{
		Kind:     domain.EventCollateralDeposited,
		MarketID: "mkt-1",
		Account:  "bob",
		Payload:  &domain.CollateralPayload{Amount: 100, NewTotal: 100},
	})
	require.NoError(t, err)
	assert.Empty(t, sender.titles)
}

func TestSinkHonoursEventFilter(t *testing.T) {
	sink, sender := newTestSink([]string{"mkt_resolved"})
	ctx := context.Background()

	require.NoError(t, sink.Deliver(ctx, domain.Event{
		Kind:     domain.EventMarketCreated,
		MarketID: "mkt-1",
		Payload:  &domain.MarketCreatedPayload{Question: "q", Creator: "alice"},
	}))
	assert.Empty(t, sender.titles)

	require.NoError(t, sink.Deliver(ctx, domain.Event{
		Kind:     domain.EventMarketResolved,
		MarketID: "mkt-1",
		Payload:  &domain.MarketResolvedPayload{Outcome: domain.OutcomeNo},
	}))
	require.Len(t, sender.titles, 1)
	assert.Equal(t, "Market resolved", sender.titles[0])
}

func TestSinkSettlementAnnouncement(t *testing.T) {
	sink, sender := newTestSink(nil)

	require.NoError(t, sink.Deliver(context.Background(), domain.Event{
		Kind:     domain.EventPositionSettled,
		MarketID: "mkt-2",
		Account:  "carol",
		Payload:  &domain.PositionSettledPayload{Payout: 75, Forfeited: 25},
	}))

	require.Len(t, sender.messages, 1)
	assert.Contains(t, sender.messages[0], "carol")
	assert.Contains(t, sender.messages[0], "75")
	assert.Contains(t, sender.messages[0], "25")
}
