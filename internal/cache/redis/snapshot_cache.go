package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/marketcore/internal/domain"
)

const positionTTL = 24 * time.Hour

// SnapshotCache implements domain.SnapshotCache using Redis hashes with
// JSON-serialized Position data. Position events carry absolute snapshots, so
// a plain last-write-wins SET is sufficient.
//
// Key schema:
//
//	pos:{marketID}:{account} - hash with field "data" containing JSON
type SnapshotCache struct {
	rdb *redis.Client
}

// NewSnapshotCache creates a SnapshotCache backed by the given Client.
func NewSnapshotCache(c *Client) *SnapshotCache {
	return &SnapshotCache{rdb: c.Underlying()}
}

func positionKey(marketID, account string) string {
	return "pos:" + marketID + ":" + account
}

// SetPosition stores the latest position snapshot with a 24-hour TTL.
func (sc *SnapshotCache) SetPosition(ctx context.Context, pos domain.Position) error {
	data, err := json.Marshal(pos)
	if err != nil {
		return fmt.Errorf("redis: marshal position %s/%s: %w", pos.MarketID, pos.Account, err)
	}

	key := positionKey(pos.MarketID, pos.Account)

	pipe := sc.rdb.TxPipeline()
	pipe.HSet(ctx, key, "data", data)
	pipe.Expire(ctx, key, positionTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set position %s/%s: %w", pos.MarketID, pos.Account, err)
	}
	return nil
}

// GetPosition retrieves the latest position snapshot for an account in a
// market. It returns domain.ErrNotFound when no snapshot is cached.
func (sc *SnapshotCache) GetPosition(ctx context.Context, marketID, account string) (domain.Position, error) {
	data, err := sc.rdb.HGet(ctx, positionKey(marketID, account), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("redis: get position %s/%s: %w", marketID, account, err)
	}

	var pos domain.Position
	if err := json.Unmarshal(data, &pos); err != nil {
		return domain.Position{}, fmt.Errorf("redis: unmarshal position %s/%s: %w", marketID, account, err)
	}
	return pos, nil
}

// Compile-time interface check.
var _ domain.SnapshotCache = (*SnapshotCache)(nil)
