package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marketcore/internal/domain"
	"github.com/alanyoungcy/marketcore/internal/ledger"
)

// memBlobs is an in-memory object store satisfying both SegmentWriter and
// domain.BlobReader.
type memBlobs struct {
	objects     map[string][]byte
	existsCalls int
}

func newMemBlobs() *memBlobs {
	return &memBlobs{objects: make(map[string][]byte)}
}

func (b *memBlobs) Put(_ context.Context, path string, data io.Reader, _ string) error {
	buf, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	b.objects[path] = buf
	return nil
}

func (b *memBlobs) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return b.Put(ctx, path, data, "")
}

func (b *memBlobs) Get(_ context.Context, path string) (io.ReadCloser, error) {
	buf, ok := b.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(buf)), nil
}

func (b *memBlobs) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	var infos []domain.BlobInfo
	for path, data := range b.objects {
		if strings.HasPrefix(path, prefix) {
			infos = append(infos, domain.BlobInfo{Path: path, Size: int64(len(data))})
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Path < infos[j].Path })
	return infos, nil
}

func (b *memBlobs) Exists(_ context.Context, path string) (bool, error) {
	b.existsCalls++
	_, ok := b.objects[path]
	return ok, nil
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func newArchiveFixture(t *testing.T) (*ledger.Registry, *ledger.Market, *memBlobs, *Archiver) {
	t.Helper()

	clock := fixedClock{now: time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)}
	reg := ledger.NewRegistry(ledger.RegistryConfig{Clock: clock})
	m, err := reg.CreateMarket(domain.CreateMarketParams{
		Question: "Will the archive flush?",
		EndTime:  clock.now.Add(time.Hour),
		Creator:  "alice",
	})
	require.NoError(t, err)

	blobs := newMemBlobs()
	arch := New(
		Config{Interval: time.Minute, SegmentSize: 3, Prefix: "events"},
		reg, reg.Log(), blobs, blobs, nil, slog.Default(),
	)
	return reg, m, blobs, arch
}

func decodeSegment(t *testing.T, data []byte) []domain.Event {
	t.Helper()
	var events []domain.Event
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var ev domain.Event
		require.NoError(t, dec.Decode(&ev))
		require.NoError(t, ev.DecodePayload())
		events = append(events, ev)
	}
	return events
}

func TestArchiverWritesSegmentsAndManifest(t *testing.T) {
	_, m, blobs, arch := newArchiveFixture(t)
	ctx := context.Background()

	// 1 create event exists already; add 4 more for 5 total, segment size 3.
	require.NoError(t, m.Deposit("alice", 100))
	_, err := m.Trade("alice", domain.SideYes, 10, 10)
	require.NoError(t, err)
	require.NoError(t, m.Deposit("bob", 50))
	_, err = m.Trade("bob", domain.SideNo, 5, 5)
	require.NoError(t, err)

	arch.Sweep(ctx)

	segs, err := arch.Segments(ctx, m.ID())
	require.NoError(t, err)
	require.Len(t, segs, 2)
	assert.Equal(t, "events/"+m.ID()+"/seg-0000000001-0000000003.jsonl", segs[0].Path)
	assert.Equal(t, "events/"+m.ID()+"/seg-0000000004-0000000005.jsonl", segs[1].Path)

	// Segments hold the journal in order with no gaps.
	var all []domain.Event
	for _, seg := range segs {
		all = append(all, decodeSegment(t, blobs.objects[seg.Path])...)
	}
	require.Len(t, all, 5)
	for i, ev := range all {
		assert.Equal(t, uint64(i+1), ev.Sequence)
	}
	assert.Equal(t, domain.EventMarketCreated, all[0].Kind)

	// Manifest tracks the last archived sequence.
	body, err := blobs.Get(ctx, "events/"+m.ID()+"/manifest.json")
	require.NoError(t, err)
	var mf manifest
	require.NoError(t, json.NewDecoder(body).Decode(&mf))
	assert.Equal(t, uint64(5), mf.LastArchived)
}

func TestArchiverSweepIsIncremental(t *testing.T) {
	_, m, blobs, arch := newArchiveFixture(t)
	ctx := context.Background()

	require.NoError(t, m.Deposit("alice", 100))
	arch.Sweep(ctx)

	before := len(blobs.objects)

	// Nothing new: no extra objects.
	arch.Sweep(ctx)
	assert.Equal(t, before, len(blobs.objects))

	// New events produce exactly one more segment.
	_, err := m.Trade("alice", domain.SideYes, 10, 10)
	require.NoError(t, err)
	arch.Sweep(ctx)

	segs, err := arch.Segments(ctx, m.ID())
	require.NoError(t, err)
	require.Len(t, segs, 2)
	events := decodeSegment(t, blobs.objects[segs[1].Path])
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventPositionUpdated, events[0].Kind)
	assert.Equal(t, uint64(3), events[0].Sequence)
}

func TestArchiverRecoversProgressFromManifest(t *testing.T) {
	reg, m, blobs, arch := newArchiveFixture(t)
	ctx := context.Background()

	require.NoError(t, m.Deposit("alice", 100))
	arch.Sweep(ctx)

	// A fresh archiver instance (restart) resumes from the manifest instead
	// of re-uploading archived segments.
	arch2 := New(
		Config{Interval: time.Minute, SegmentSize: 3, Prefix: "events"},
		reg, reg.Log(), blobs, blobs, nil, slog.Default(),
	)

	before := len(blobs.objects)
	arch2.Sweep(ctx)
	assert.Equal(t, before, len(blobs.objects))
}

func TestArchiverProbesManifestOncePerMarket(t *testing.T) {
	_, m, blobs, arch := newArchiveFixture(t)
	ctx := context.Background()

	require.NoError(t, m.Deposit("alice", 100))

	// First touch goes through the HeadObject-style probe.
	arch.Sweep(ctx)
	assert.Equal(t, 1, blobs.existsCalls)

	// Progress is cached afterwards; further sweeps skip the probe.
	require.NoError(t, m.Deposit("bob", 50))
	arch.Sweep(ctx)
	assert.Equal(t, 1, blobs.existsCalls)
}
