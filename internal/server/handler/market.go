package handler

import (
	"context"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/marketcore/internal/domain"
	"github.com/alanyoungcy/marketcore/internal/ledger"
)

// ArchiveLister serves the archived segment listing for a market. The
// archiver satisfies it; nil disables the endpoint.
type ArchiveLister interface {
	Segments(ctx context.Context, marketID string) ([]domain.BlobInfo, error)
}

// MarketHandler serves market lifecycle and event replay endpoints.
type MarketHandler struct {
	registry *ledger.Registry
	archive  ArchiveLister
	logger   *slog.Logger
}

// NewMarketHandler creates a MarketHandler. Archive may be nil when the
// archiver is disabled.
func NewMarketHandler(registry *ledger.Registry, archive ArchiveLister, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		registry: registry,
		archive:  archive,
		logger:   logger,
	}
}

// createMarketRequest is the body for market creation. OraclePubKey is a hex
// ed25519 public key; empty defers to the deployment-wide resolution policy.
type createMarketRequest struct {
	Question     string    `json:"question"`
	EndTime      time.Time `json:"end_time"`
	Creator      string    `json:"creator"`
	OraclePubKey string    `json:"oracle_pub_key,omitempty"`
}

// CreateMarket opens a new market.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	params := domain.CreateMarketParams{
		Question: req.Question,
		EndTime:  req.EndTime,
		Creator:  req.Creator,
	}
	if req.OraclePubKey != "" {
		key, err := hex.DecodeString(strings.TrimPrefix(req.OraclePubKey, "0x"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "oracle_pub_key is not valid hex")
			return
		}
		params.OraclePubKey = key
	}

	m, err := h.registry.CreateMarket(params)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	snapshot := m.Snapshot()
	h.logger.InfoContext(r.Context(), "market created",
		slog.String("market_id", snapshot.ID),
		slog.String("creator", snapshot.Creator),
	)
	writeJSON(w, http.StatusCreated, snapshot)
}

// listMarketsResponse wraps the list endpoint output with metadata.
type listMarketsResponse struct {
	Markets []domain.Market `json:"markets"`
	Total   int             `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

// ListMarkets returns markets in creation order with pagination.
// GET /api/markets?limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	all := h.registry.Markets()
	total := len(all)

	start := opts.Offset
	if start > total {
		start = total
	}
	end := start + opts.Limit
	if end > total {
		end = total
	}

	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: all[start:end],
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

// GetMarket returns a single market by its ID.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	m, err := h.registry.Market(pathParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m.Snapshot())
}

// resolveRequest is the body for market resolution. Signatures are hex
// ed25519 signatures over the market's resolution digest.
type resolveRequest struct {
	Outcome    string   `json:"outcome"`
	Caller     string   `json:"caller,omitempty"`
	Signatures []string `json:"signatures,omitempty"`
}

// Resolve fixes a market's outcome.
// POST /api/markets/{id}/resolve
func (h *MarketHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	var req resolveRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	sigs := make([][]byte, 0, len(req.Signatures))
	for _, s := range req.Signatures {
		sig, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "signature is not valid hex")
			return
		}
		sigs = append(sigs, sig)
	}

	m, err := h.registry.Market(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if err := m.Resolve(domain.ResolutionRequest{
		Outcome:    domain.Outcome(req.Outcome),
		Caller:     req.Caller,
		Signatures: sigs,
	}); err != nil {
		writeDomainError(w, err)
		return
	}

	h.logger.InfoContext(r.Context(), "market resolved",
		slog.String("market_id", id),
		slog.String("outcome", req.Outcome),
	)
	writeJSON(w, http.StatusOK, m.Snapshot())
}

// listEventsResponse wraps the replay endpoint output.
type listEventsResponse struct {
	Events       []domain.Event `json:"events"`
	LastSequence uint64         `json:"last_sequence"`
}

// ListEvents replays a market's event journal from a sequence number.
// GET /api/markets/{id}/events?from_seq=1&limit=100
func (h *MarketHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	if _, err := h.registry.Market(id); err != nil {
		writeDomainError(w, err)
		return
	}

	var fromSeq uint64
	if v := r.URL.Query().Get("from_seq"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "from_seq must be a non-negative integer")
			return
		}
		fromSeq = n
	}
	limit := parseListOpts(r).Limit

	events := h.registry.Log().Events(id, fromSeq)
	if len(events) > limit {
		events = events[:limit]
	}

	writeJSON(w, http.StatusOK, listEventsResponse{
		Events:       events,
		LastSequence: h.registry.Log().LastSequence(id),
	})
}

// ListArchive lists the archived JSONL segments for a market so consumers
// can plan a resync replay.
// GET /api/markets/{id}/archive
func (h *MarketHandler) ListArchive(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	if _, err := h.registry.Market(id); err != nil {
		writeDomainError(w, err)
		return
	}
	if h.archive == nil {
		writeError(w, http.StatusNotFound, "archive is not enabled")
		return
	}

	segments, err := h.archive.Segments(r.Context(), id)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list archive segments failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list archive segments")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"segments": segments})
}
