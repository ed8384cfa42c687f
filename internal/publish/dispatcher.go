// Package publish fans committed ledger events out to durable sinks: the
// postgres journal, the redis signal bus, the AMQP exchange, and the market
// mirror. Ordering is preserved end to end; a failing sink is logged and
// skipped, never allowed to stall the others or unwind ledger state.
package publish

import (
	"context"
	"log/slog"

	"github.com/alanyoungcy/marketcore/internal/domain"
)

// dispatchBuffer bounds the in-flight event queue. The ledger emits inside
// its critical section, so enqueueing must not block under normal load.
const dispatchBuffer = 1024

// Dispatcher decouples event emission from sink delivery. The ledger's
// observer callback enqueues; a single worker goroutine drains the queue and
// delivers to every sink in registration order, which preserves per-market
// event ordering across all sinks.
type Dispatcher struct {
	sinks  []domain.EventSink
	queue  chan domain.Event
	logger *slog.Logger
}

// NewDispatcher creates a Dispatcher delivering to the given sinks.
func NewDispatcher(logger *slog.Logger, sinks ...domain.EventSink) *Dispatcher {
	return &Dispatcher{
		sinks:  sinks,
		queue:  make(chan domain.Event, dispatchBuffer),
		logger: logger.With("component", "dispatcher"),
	}
}

// Enqueue hands a committed event to the dispatcher. It is the ledger's
// observer callback: it must not block, so when the queue is full the event
// is dropped and a warning is logged. The drop affects every sink fed from
// this queue, the postgres journal included; only the in-memory log and the
// archive segments flushed from it stay complete, so consumers that detect
// the sequence gap resync from the archive.
func (d *Dispatcher) Enqueue(ev domain.Event) {
	select {
	case d.queue <- ev:
	default:
		d.logger.Warn("event queue full, dropping from live fan-out",
			"uid", ev.UID,
			"market_id", ev.MarketID,
			"sequence", ev.Sequence,
		)
	}
}

// Run drains the queue until ctx is cancelled, then flushes whatever is still
// buffered before returning.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			d.drain()
			return ctx.Err()
		case ev := <-d.queue:
			d.deliver(ctx, ev)
		}
	}
}

// drain delivers buffered events with a background context so a shutdown does
// not lose journal writes for events the ledger already committed.
func (d *Dispatcher) drain() {
	for {
		select {
		case ev := <-d.queue:
			d.deliver(context.Background(), ev)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, ev domain.Event) {
	for _, sink := range d.sinks {
		if err := sink.Deliver(ctx, ev); err != nil {
			d.logger.Error("sink delivery failed",
				"uid", ev.UID,
				"kind", string(ev.Kind),
				"market_id", ev.MarketID,
				"sequence", ev.Sequence,
				"error", err,
			)
		}
	}
}
