package ledger

import (
	"sync"
	"time"

	"github.com/alanyoungcy/marketcore/internal/domain"
)

// fakeClock is a manually advanced clock for deterministic lifecycle tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// newTestRegistry builds a registry with a fake clock and a permissive
// resolution policy.
func newTestRegistry() (*Registry, *fakeClock) {
	clock := newFakeClock()
	reg := NewRegistry(RegistryConfig{Clock: clock})
	return reg, clock
}

// openMarket creates a market that closes 100 seconds from the fake now.
func openMarket(reg *Registry, clock *fakeClock) *Market {
	m, err := reg.CreateMarket(domain.CreateMarketParams{
		Question: "Will it rain tomorrow?",
		EndTime:  clock.Now().Add(100 * time.Second),
		Creator:  "alice",
	})
	if err != nil {
		panic(err)
	}
	return m
}
