package domain

import (
	"context"
	"io"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// EventSink receives committed ledger events in emission order. Delivery
// happens after the owning market's state transition has committed; a sink
// error never unwinds ledger state.
type EventSink interface {
	Deliver(ctx context.Context, ev Event) error
}

// EventStore persists the event journal and serves replay queries.
type EventStore interface {
	Append(ctx context.Context, ev Event) error
	ListByMarket(ctx context.Context, marketID string, fromSeq uint64, limit int) ([]Event, error)
	LatestSequence(ctx context.Context, marketID string) (uint64, error)
}

// MarketStore persists market snapshots for the read API.
type MarketStore interface {
	Upsert(ctx context.Context, market Market) error
	GetByID(ctx context.Context, id string) (Market, error)
	List(ctx context.Context, opts ListOpts) ([]Market, error)
	Count(ctx context.Context) (int64, error)
}

// SnapshotCache holds the latest position snapshot per (market, account),
// mirroring the PositionUpdated consumer contract.
type SnapshotCache interface {
	SetPosition(ctx context.Context, pos Position) error
	GetPosition(ctx context.Context, marketID, account string) (Position, error)
}

// SignalBus is a lightweight publish/subscribe transport for committed
// events, consumed by the WebSocket hub.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
}

// BlobWriter uploads archive objects to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// BlobReader retrieves and enumerates archive objects.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// BlobInfo describes one stored archive object.
type BlobInfo struct {
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// StreamMessage is one entry read back from a durable bus stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// RateLimiter enforces per-key request limits for the API surface.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides coarse distributed locks so that only one process
// runs a singleton task (for example the archiver) at a time. Acquire returns
// ErrLockHeld when the lock is taken.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}
