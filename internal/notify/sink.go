package notify

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/marketcore/internal/domain"
)

// Sink adapts the Notifier into an event sink so operators can follow market
// lifecycle changes without tailing the journal. Position and collateral
// events are far too chatty for chat channels, so only lifecycle and
// settlement kinds are ever announced; the Notifier's event filter narrows
// further.
type Sink struct {
	notifier *Notifier
}

// NewSink creates a Sink delivering through the given Notifier.
func NewSink(notifier *Notifier) *Sink {
	return &Sink{notifier: notifier}
}

var _ domain.EventSink = (*Sink)(nil)

// Deliver implements domain.EventSink.
func (s *Sink) Deliver(ctx context.Context, ev domain.Event) error {
	title, message, ok := format(ev)
	if !ok {
		return nil
	}
	return s.notifier.Notify(ctx, ev.Kind.Symbol(), title, message)
}

// format renders an event as an operator alert. The second return is false
// for kinds that are never announced.
func format(ev domain.Event) (title, message string, ok bool) {
	switch p := ev.Payload.(type) {
	case *domain.MarketCreatedPayload:
		return "Market created",
			fmt.Sprintf("%s\n%q by %s, ends %s",
				ev.MarketID, p.Question, p.Creator, p.EndTime.Format("2006-01-02 15:04 MST")),
			true

	case *domain.MarketResolvedPayload:
		return "Market resolved",
			fmt.Sprintf("%s resolved %s at %s",
				ev.MarketID, p.Outcome, p.ResolvedAt.Format("2006-01-02 15:04 MST")),
			true

	case *domain.PositionSettledPayload:
		return "Position settled",
			fmt.Sprintf("%s: %s paid out %d (forfeited %d)",
				ev.MarketID, ev.Account, p.Payout, p.Forfeited),
			true

	default:
		return "", "", false
	}
}
