// Package archive periodically flushes the event journal to object storage
// as JSONL segments. Consumers that detect a sequence gap on the live feeds
// resync by replaying the archived segments for the affected market.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/alanyoungcy/marketcore/internal/domain"
)

// multipartThreshold is the buffer size above which segment uploads switch to
// the multipart path.
const multipartThreshold = 5 * 1024 * 1024

// MarketLister enumerates the markets whose events need archiving. The
// ledger registry satisfies it.
type MarketLister interface {
	Markets() []domain.Market
}

// EventSource serves ordered events for one market. The in-process event log
// satisfies it.
type EventSource interface {
	Events(marketID string, fromSeq uint64) []domain.Event
	LastSequence(marketID string) uint64
}

// SegmentWriter uploads archive objects. *s3blob.Writer satisfies it.
type SegmentWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// Config controls segment sizing and pacing.
type Config struct {
	// Interval between archive sweeps.
	Interval time.Duration

	// SegmentSize is the maximum number of events per segment object.
	SegmentSize int

	// Prefix is the object key prefix, typically "events".
	Prefix string

	// LockTTL bounds how long the distributed archiver lock is held. Zero
	// defaults to twice the interval.
	LockTTL time.Duration
}

// manifest records archive progress for one market.
type manifest struct {
	LastArchived uint64 `json:"last_archived"`
	UpdatedAt    string `json:"updated_at"`
}

// Archiver writes event segments and tracks per-market progress in a
// manifest object. Locks is optional; when present only one process archives
// at a time across the deployment.
type Archiver struct {
	cfg     Config
	markets MarketLister
	events  EventSource
	writer  SegmentWriter
	reader  domain.BlobReader
	locks   domain.LockManager
	logger  *slog.Logger

	// progress caches manifest reads so steady-state sweeps skip the
	// round-trip.
	progress map[string]uint64
}

// New creates an Archiver. Reader is required for manifest recovery; locks
// may be nil for single-instance deployments.
func New(cfg Config, markets MarketLister, events EventSource, writer SegmentWriter, reader domain.BlobReader, locks domain.LockManager, logger *slog.Logger) *Archiver {
	if cfg.SegmentSize <= 0 {
		cfg.SegmentSize = 1000
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "events"
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * cfg.Interval
	}
	return &Archiver{
		cfg:      cfg,
		markets:  markets,
		events:   events,
		writer:   writer,
		reader:   reader,
		locks:    locks,
		logger:   logger.With("component", "archiver"),
		progress: make(map[string]uint64),
	}
}

// Run sweeps on the configured interval until ctx is cancelled, then runs a
// final sweep so committed events are not lost on shutdown.
func (a *Archiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			a.Sweep(flushCtx)
			cancel()
			return ctx.Err()
		case <-ticker.C:
			a.Sweep(ctx)
		}
	}
}

// Sweep archives all unarchived events for every market. Errors are logged
// per market; one failing market does not block the rest.
func (a *Archiver) Sweep(ctx context.Context) {
	if a.locks != nil {
		unlock, err := a.locks.Acquire(ctx, "archiver", a.cfg.LockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				return
			}
			a.logger.Error("archiver lock", "error", err)
			return
		}
		defer unlock()
	}

	for _, m := range a.markets.Markets() {
		if err := a.archiveMarket(ctx, m.ID); err != nil {
			a.logger.Error("archive market", "market_id", m.ID, "error", err)
		}
	}
}

func (a *Archiver) archiveMarket(ctx context.Context, marketID string) error {
	last, err := a.lastArchived(ctx, marketID)
	if err != nil {
		return err
	}

	latest := a.events.LastSequence(marketID)
	if latest <= last {
		return nil
	}

	events := a.events.Events(marketID, last+1)
	for start := 0; start < len(events); start += a.cfg.SegmentSize {
		end := start + a.cfg.SegmentSize
		if end > len(events) {
			end = len(events)
		}
		segment := events[start:end]

		if err := a.writeSegment(ctx, marketID, segment); err != nil {
			return err
		}

		last = segment[len(segment)-1].Sequence
		if err := a.writeManifest(ctx, marketID, last); err != nil {
			return err
		}
		a.progress[marketID] = last

		a.logger.Info("archived segment",
			"market_id", marketID,
			"from", segment[0].Sequence,
			"to", last,
			"count", len(segment),
		)
	}
	return nil
}

// lastArchived returns the highest archived sequence for a market, probing
// the manifest on first touch and the in-memory cache afterwards.
func (a *Archiver) lastArchived(ctx context.Context, marketID string) (uint64, error) {
	if last, ok := a.progress[marketID]; ok {
		return last, nil
	}

	ok, err := a.reader.Exists(ctx, a.manifestPath(marketID))
	if err != nil {
		return 0, fmt.Errorf("archive: probe manifest %s: %w", marketID, err)
	}
	if !ok {
		// Fresh market, nothing archived yet.
		a.progress[marketID] = 0
		return 0, nil
	}

	body, err := a.reader.Get(ctx, a.manifestPath(marketID))
	if err != nil {
		return 0, fmt.Errorf("archive: read manifest %s: %w", marketID, err)
	}
	defer body.Close()

	var m manifest
	if err := json.NewDecoder(body).Decode(&m); err != nil {
		return 0, fmt.Errorf("archive: decode manifest %s: %w", marketID, err)
	}
	a.progress[marketID] = m.LastArchived
	return m.LastArchived, nil
}

func (a *Archiver) writeSegment(ctx context.Context, marketID string, events []domain.Event) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for _, ev := range events {
		if err := enc.Encode(ev); err != nil {
			return fmt.Errorf("archive: encode event %s: %w", ev.UID, err)
		}
	}

	path := a.segmentPath(marketID, events[0].Sequence, events[len(events)-1].Sequence)

	if buf.Len() > multipartThreshold {
		if err := a.writer.PutMultipart(ctx, path, &buf, multipartThreshold); err != nil {
			return fmt.Errorf("archive: upload segment %s: %w", path, err)
		}
		return nil
	}
	if err := a.writer.Put(ctx, path, &buf, "application/x-ndjson"); err != nil {
		return fmt.Errorf("archive: upload segment %s: %w", path, err)
	}
	return nil
}

func (a *Archiver) writeManifest(ctx context.Context, marketID string, last uint64) error {
	data, err := json.Marshal(manifest{
		LastArchived: last,
		UpdatedAt:    time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("archive: marshal manifest %s: %w", marketID, err)
	}
	if err := a.writer.Put(ctx, a.manifestPath(marketID), bytes.NewReader(data), "application/json"); err != nil {
		return fmt.Errorf("archive: upload manifest %s: %w", marketID, err)
	}
	return nil
}

// Segments lists the archived segment objects for a market, excluding the
// manifest. Consumers use it to plan a resync replay.
func (a *Archiver) Segments(ctx context.Context, marketID string) ([]domain.BlobInfo, error) {
	infos, err := a.reader.List(ctx, a.cfg.Prefix+"/"+marketID+"/seg-")
	if err != nil {
		return nil, fmt.Errorf("archive: list segments %s: %w", marketID, err)
	}
	return infos, nil
}

func (a *Archiver) segmentPath(marketID string, from, to uint64) string {
	return fmt.Sprintf("%s/%s/seg-%010d-%010d.jsonl", a.cfg.Prefix, marketID, from, to)
}

func (a *Archiver) manifestPath(marketID string) string {
	return a.cfg.Prefix + "/" + marketID + "/manifest.json"
}
