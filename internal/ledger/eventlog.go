package ledger

import (
	"sync"

	"github.com/google/uuid"

	"github.com/alanyoungcy/marketcore/internal/domain"
)

// EventLog is the append-only, ordered record of ledger events. It assigns
// per-market sequence numbers at emission time; for a given market the
// sequence is strictly increasing with no gaps. The in-process log is the
// authoritative record; observers receive committed events for fan-out to
// durable sinks.
//
// Append happens inside the owning market's critical section, so observers
// must return quickly (the application observer only enqueues).
type EventLog struct {
	mu        sync.Mutex
	seq       map[string]uint64
	byMarket  map[string][]domain.Event
	observers []func(domain.Event)
	clock     domain.Clock
}

// NewEventLog creates an empty EventLog driven by the given clock.
func NewEventLog(clock domain.Clock) *EventLog {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &EventLog{
		seq:      make(map[string]uint64),
		byMarket: make(map[string][]domain.Event),
		clock:    clock,
	}
}

// Observe registers fn to be called synchronously with every event, in
// emission order. Observers must be registered before traffic starts.
func (l *EventLog) Observe(fn func(domain.Event)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.observers = append(l.observers, fn)
}

// Append records a new event for the given market and returns it with its
// assigned sequence number and emission timestamp.
func (l *EventLog) Append(kind domain.EventKind, marketID, account string, payload any) domain.Event {
	l.mu.Lock()
	l.seq[marketID]++
	ev := domain.Event{
		UID:       uuid.NewString(),
		Kind:      kind,
		MarketID:  marketID,
		Account:   account,
		Sequence:  l.seq[marketID],
		EmittedAt: l.clock.Now(),
		Payload:   payload,
	}
	l.byMarket[marketID] = append(l.byMarket[marketID], ev)
	observers := l.observers
	l.mu.Unlock()

	for _, fn := range observers {
		fn(ev)
	}
	return ev
}

// Events returns a copy of the events recorded for a market, in sequence
// order. FromSeq filters to events with Sequence >= fromSeq; zero returns
// everything.
func (l *EventLog) Events(marketID string, fromSeq uint64) []domain.Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	all := l.byMarket[marketID]
	out := make([]domain.Event, 0, len(all))
	for _, ev := range all {
		if ev.Sequence >= fromSeq {
			out = append(out, ev)
		}
	}
	return out
}

// LastSequence returns the highest sequence number assigned for a market, or
// zero when no events have been emitted.
func (l *EventLog) LastSequence(marketID string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq[marketID]
}
