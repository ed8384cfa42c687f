package ledger

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marketcore/internal/domain"
)

func TestCreateMarket(t *testing.T) {
	reg, clock := newTestRegistry()

	m, err := reg.CreateMarket(domain.CreateMarketParams{
		Question: "Will it rain tomorrow?",
		EndTime:  clock.Now().Add(time.Hour),
		Creator:  "alice",
	})
	require.NoError(t, err)

	snap := m.Snapshot()
	assert.Equal(t, "mkt-1", snap.ID)
	assert.Equal(t, domain.MarketStatusOpen, snap.Status)
	assert.Equal(t, "alice", snap.Creator)
	assert.Nil(t, snap.Outcome)
	assert.Nil(t, snap.ResolvedAt)

	events := reg.Log().Events(snap.ID, 0)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventMarketCreated, events[0].Kind)
	assert.Equal(t, uint64(1), events[0].Sequence)

	payload, ok := events[0].Payload.(*domain.MarketCreatedPayload)
	require.True(t, ok)
	assert.Equal(t, "Will it rain tomorrow?", payload.Question)
	assert.Equal(t, "alice", payload.Creator)
}

func TestCreateMarketValidation(t *testing.T) {
	reg, clock := newTestRegistry()

	tests := []struct {
		name   string
		params domain.CreateMarketParams
	}{
		{"empty question", domain.CreateMarketParams{
			Question: "  ",
			EndTime:  clock.Now().Add(time.Hour),
			Creator:  "alice",
		}},
		{"end time in the past", domain.CreateMarketParams{
			Question: "Q?",
			EndTime:  clock.Now().Add(-time.Second),
			Creator:  "alice",
		}},
		{"end time exactly now", domain.CreateMarketParams{
			Question: "Q?",
			EndTime:  clock.Now(),
			Creator:  "alice",
		}},
		{"empty creator", domain.CreateMarketParams{
			Question: "Q?",
			EndTime:  clock.Now().Add(time.Hour),
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := reg.CreateMarket(tc.params)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}

	assert.Equal(t, 0, reg.Count())
}

func TestMarketIDsAreUnique(t *testing.T) {
	reg, clock := newTestRegistry()

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		m, err := reg.CreateMarket(domain.CreateMarketParams{
			Question: fmt.Sprintf("Question %d?", i),
			EndTime:  clock.Now().Add(time.Hour),
			Creator:  "alice",
		})
		require.NoError(t, err)
		require.False(t, seen[m.ID()], "duplicate id %s", m.ID())
		seen[m.ID()] = true
	}
	assert.Equal(t, 50, reg.Count())
}

func TestGetMarketNotFound(t *testing.T) {
	reg, _ := newTestRegistry()

	_, err := reg.Market("mkt-404")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMarketsReturnsCreationOrder(t *testing.T) {
	reg, clock := newTestRegistry()

	for i := 0; i < 3; i++ {
		openMarket(reg, clock)
	}

	markets := reg.Markets()
	require.Len(t, markets, 3)
	assert.Equal(t, "mkt-1", markets[0].ID)
	assert.Equal(t, "mkt-2", markets[1].ID)
	assert.Equal(t, "mkt-3", markets[2].ID)
}

type denyAllCreator struct{}

func (denyAllCreator) AuthorizeCreate(domain.CreateMarketParams) error {
	return domain.ErrUnauthorized
}

func TestCreateMarketHonorsCreatorPolicy(t *testing.T) {
	clock := newFakeClock()
	reg := NewRegistry(RegistryConfig{Clock: clock, Creator: denyAllCreator{}})

	_, err := reg.CreateMarket(domain.CreateMarketParams{
		Question: "Q?",
		EndTime:  clock.Now().Add(time.Hour),
		Creator:  "mallory",
	})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Equal(t, 0, reg.Count())
}
