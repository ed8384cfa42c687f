package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/marketcore/internal/domain"
)

// EventStore implements domain.EventStore using PostgreSQL. It also satisfies
// domain.EventSink so the dispatcher can journal committed events directly.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates an EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Append journals a single event. Appending the same (market, sequence) pair
// twice is a no-op, which makes redelivery after a crash safe.
func (s *EventStore) Append(ctx context.Context, ev domain.Event) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("postgres: marshal event %s payload: %w", ev.UID, err)
	}

	const query = `
		INSERT INTO ledger_events (uid, kind, market_id, account, sequence, emitted_at, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (market_id, sequence) DO NOTHING`

	_, err = s.pool.Exec(ctx, query,
		ev.UID, string(ev.Kind), ev.MarketID, ev.Account,
		int64(ev.Sequence), ev.EmittedAt, payload,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// Duplicate uid from a redelivered event.
			return nil
		}
		return fmt.Errorf("postgres: append event %s/%d: %w", ev.MarketID, ev.Sequence, err)
	}
	return nil
}

// Deliver implements domain.EventSink.
func (s *EventStore) Deliver(ctx context.Context, ev domain.Event) error {
	return s.Append(ctx, ev)
}

// ListByMarket returns events for a market with sequence >= fromSeq in
// sequence order. A limit of 0 or less means no limit.
func (s *EventStore) ListByMarket(ctx context.Context, marketID string, fromSeq uint64, limit int) ([]domain.Event, error) {
	query := `
		SELECT uid, kind, market_id, account, sequence, emitted_at, payload
		FROM ledger_events
		WHERE market_id = $1 AND sequence >= $2
		ORDER BY sequence ASC`
	args := []any{marketID, int64(fromSeq)}

	if limit > 0 {
		query += " LIMIT $3"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events %s: %w", marketID, err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list events %s rows: %w", marketID, err)
	}
	return events, nil
}

// LatestSequence returns the highest journaled sequence for a market, or 0
// when the market has no events.
func (s *EventStore) LatestSequence(ctx context.Context, marketID string) (uint64, error) {
	var seq int64
	err := s.pool.QueryRow(ctx,
		"SELECT COALESCE(MAX(sequence), 0) FROM ledger_events WHERE market_id = $1",
		marketID,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("postgres: latest sequence %s: %w", marketID, err)
	}
	return uint64(seq), nil
}

func scanEvent(row pgx.Row) (domain.Event, error) {
	var (
		ev      domain.Event
		kind    string
		seq     int64
		payload []byte
	)
	if err := row.Scan(&ev.UID, &kind, &ev.MarketID, &ev.Account, &seq, &ev.EmittedAt, &payload); err != nil {
		return domain.Event{}, err
	}
	ev.Kind = domain.EventKind(kind)
	ev.Sequence = uint64(seq)

	if err := json.Unmarshal(payload, &ev.Payload); err != nil {
		return domain.Event{}, fmt.Errorf("unmarshal payload for %s: %w", ev.UID, err)
	}
	if err := ev.DecodePayload(); err != nil {
		return domain.Event{}, err
	}
	return ev, nil
}

// Compile-time interface checks.
var (
	_ domain.EventStore = (*EventStore)(nil)
	_ domain.EventSink  = (*EventStore)(nil)
)
