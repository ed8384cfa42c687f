package ws

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marketcore/internal/domain"
)

// pubSubOnlyBus implements domain.SignalBus without the stream read side.
type pubSubOnlyBus struct{}

func (pubSubOnlyBus) Publish(context.Context, string, []byte) error { return nil }

func (pubSubOnlyBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return make(chan []byte), nil
}

func (pubSubOnlyBus) StreamAppend(context.Context, string, []byte) error { return nil }

// streamBus additionally serves an in-memory stream, recording how it was
// queried.
type streamBus struct {
	pubSubOnlyBus
	streams    map[string][]domain.StreamMessage
	lastStream string
	lastID     string
}

func (b *streamBus) StreamRead(_ context.Context, stream, lastID string, count int) ([]domain.StreamMessage, error) {
	b.lastStream = stream
	b.lastID = lastID
	msgs := b.streams[stream]
	if len(msgs) > count {
		msgs = msgs[:count]
	}
	return msgs, nil
}

func eventFrames(n int) []domain.StreamMessage {
	msgs := make([]domain.StreamMessage, 0, n)
	for i := 0; i < n; i++ {
		msgs = append(msgs, domain.StreamMessage{
			ID:      fmt.Sprintf("%d-0", i+1),
			Payload: []byte(fmt.Sprintf(`{"sequence":%d}`, i+1)),
		})
	}
	return msgs
}

func TestReplayServesStreamHistoryInOrder(t *testing.T) {
	bus := &streamBus{streams: map[string][]domain.StreamMessage{
		"events:mkt-1": eventFrames(3),
	}}
	hub := NewHub(bus, nil, slog.Default())

	send := make(chan []byte, 8)
	sent := hub.replay(context.Background(), "mkt-1", "", send)

	require.Equal(t, 3, sent)
	assert.Equal(t, "events:mkt-1", bus.lastStream)
	assert.Equal(t, "0", bus.lastID)
	for i := 1; i <= 3; i++ {
		assert.JSONEq(t, fmt.Sprintf(`{"sequence":%d}`, i), string(<-send))
	}
}

func TestReplayResumesAfterLastID(t *testing.T) {
	bus := &streamBus{streams: map[string][]domain.StreamMessage{}}
	hub := NewHub(bus, nil, slog.Default())

	send := make(chan []byte, 1)
	sent := hub.replay(context.Background(), "mkt-1", "41-0", send)

	assert.Equal(t, 0, sent)
	assert.Equal(t, "41-0", bus.lastID)
}

func TestReplayRequiresStreamSupport(t *testing.T) {
	hub := NewHub(pubSubOnlyBus{}, nil, slog.Default())

	send := make(chan []byte, 1)
	assert.Equal(t, 0, hub.replay(context.Background(), "mkt-1", "", send))
}

func TestReplayDropsWhenClientSaturated(t *testing.T) {
	bus := &streamBus{streams: map[string][]domain.StreamMessage{
		"events:mkt-1": eventFrames(3),
	}}
	hub := NewHub(bus, nil, slog.Default())

	// Room for a single frame: the rest is dropped rather than blocking the
	// read pump; the client re-replays on the remaining gap.
	send := make(chan []byte, 1)
	assert.Equal(t, 1, hub.replay(context.Background(), "mkt-1", "", send))
}

func TestReplayIgnoresEmptyMarket(t *testing.T) {
	bus := &streamBus{streams: map[string][]domain.StreamMessage{}}
	hub := NewHub(bus, nil, slog.Default())

	send := make(chan []byte, 1)
	assert.Equal(t, 0, hub.replay(context.Background(), "", "", send))
	assert.Empty(t, bus.lastStream)
}
