package ledger

import (
	"fmt"
	"strings"
	"sync"

	"github.com/alanyoungcy/marketcore/internal/domain"
)

// Registry owns every market instance, keyed by id. It is an explicit,
// injected store rather than a process-wide singleton, so independent
// registries (for example in tests) stay fully isolated.
type Registry struct {
	mu      sync.RWMutex
	markets map[string]*Market
	order   []string
	nextID  uint64

	log        *EventLog
	clock      domain.Clock
	resolution domain.ResolutionPolicy
	payout     PayoutPolicy
	creator    domain.CreatorPolicy
}

// RegistryConfig carries the collaborators a Registry hands to each market it
// creates. Log is required. Nil Clock defaults to the system clock, nil
// Payout to WinnerTakesStake, nil Resolution admits any resolution request,
// and nil Creator admits any creator.
type RegistryConfig struct {
	Log        *EventLog
	Clock      domain.Clock
	Resolution domain.ResolutionPolicy
	Payout     PayoutPolicy
	Creator    domain.CreatorPolicy
}

// NewRegistry creates an empty market registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	clock := cfg.Clock
	if clock == nil {
		clock = domain.SystemClock{}
	}
	payout := cfg.Payout
	if payout == nil {
		payout = WinnerTakesStake{}
	}
	log := cfg.Log
	if log == nil {
		log = NewEventLog(clock)
	}
	return &Registry{
		markets:    make(map[string]*Market),
		log:        log,
		clock:      clock,
		resolution: cfg.Resolution,
		payout:     payout,
		creator:    cfg.Creator,
	}
}

// Log returns the registry's shared event log.
func (r *Registry) Log() *EventLog { return r.log }

// CreateMarket validates the parameters, allocates a fresh id, constructs an
// open market, and emits MarketCreated. The id is a monotonic counter, so it
// is collision-free for the registry's lifetime.
func (r *Registry) CreateMarket(params domain.CreateMarketParams) (*Market, error) {
	if strings.TrimSpace(params.Question) == "" {
		return nil, fmt.Errorf("ledger: create market: empty question: %w", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(params.Creator) == "" {
		return nil, fmt.Errorf("ledger: create market: empty creator: %w", domain.ErrInvalidInput)
	}
	if !params.EndTime.After(r.clock.Now()) {
		return nil, fmt.Errorf("ledger: create market: end time not in the future: %w", domain.ErrInvalidInput)
	}
	if r.creator != nil {
		if err := r.creator.AuthorizeCreate(params); err != nil {
			return nil, fmt.Errorf("ledger: create market: %w", err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := fmt.Sprintf("mkt-%d", r.nextID)

	m := &Market{
		info: domain.Market{
			ID:           id,
			Question:     params.Question,
			EndTime:      params.EndTime,
			Creator:      params.Creator,
			OraclePubKey: params.OraclePubKey,
			Status:       domain.MarketStatusOpen,
			CreatedAt:    r.clock.Now(),
		},
		log:        r.log,
		resolution: r.resolution,
		payout:     r.payout,
		clock:      r.clock,
	}
	m.collateral = newCollateralLedger(id, r.log)
	m.positions = newPositionBook(id)

	r.markets[id] = m
	r.order = append(r.order, id)

	r.log.Append(domain.EventMarketCreated, id, "", &domain.MarketCreatedPayload{
		Question: params.Question,
		EndTime:  params.EndTime,
		Creator:  params.Creator,
	})
	return m, nil
}

// Market returns the market with the given id.
func (r *Registry) Market(id string) (*Market, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.markets[id]
	if !ok {
		return nil, fmt.Errorf("ledger: market %q: %w", id, domain.ErrNotFound)
	}
	return m, nil
}

// Markets returns snapshots of all markets in creation order.
func (r *Registry) Markets() []domain.Market {
	r.mu.RLock()
	ids := make([]string, len(r.order))
	copy(ids, r.order)
	markets := make([]*Market, 0, len(ids))
	for _, id := range ids {
		markets = append(markets, r.markets[id])
	}
	r.mu.RUnlock()

	out := make([]domain.Market, 0, len(markets))
	for _, m := range markets {
		out = append(out, m.Snapshot())
	}
	return out
}

// Count returns the number of markets ever created.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.markets)
}
