package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/marketcore/internal/domain"
	"github.com/alanyoungcy/marketcore/internal/ledger"
)

// PositionHandler serves trade, settle, and position query endpoints.
type PositionHandler struct {
	registry *ledger.Registry
	logger   *slog.Logger
}

// NewPositionHandler creates a PositionHandler.
func NewPositionHandler(registry *ledger.Registry, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		registry: registry,
		logger:   logger,
	}
}

// tradeRequest is the body for position changes. ShareDelta buys (positive)
// or sells (negative) shares on the given side; CollateralDelta is the signed
// change to the position's locked collateral.
type tradeRequest struct {
	Account         string `json:"account"`
	Side            string `json:"side"`
	ShareDelta      int64  `json:"share_delta"`
	CollateralDelta int64  `json:"collateral_delta"`
}

// Trade applies a position change.
// POST /api/markets/{id}/trade
func (h *PositionHandler) Trade(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	var req tradeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	m, err := h.registry.Market(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	pos, err := m.Trade(req.Account, domain.Side(req.Side), req.ShareDelta, req.CollateralDelta)
	if err != nil {
		if domain.IsFatal(err) {
			h.logger.ErrorContext(r.Context(), "fatal ledger error on trade",
				slog.String("market_id", id),
				slog.String("account", req.Account),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, pos)
}

// settleRequest is the body for settlement.
type settleRequest struct {
	Account string `json:"account"`
}

// Settle drains an account's position against the resolved outcome.
// POST /api/markets/{id}/settle
func (h *PositionHandler) Settle(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	var req settleRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	m, err := h.registry.Market(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	result, err := m.Settle(req.Account)
	if err != nil {
		if domain.IsFatal(err) {
			h.logger.ErrorContext(r.Context(), "fatal ledger error on settle",
				slog.String("market_id", id),
				slog.String("account", req.Account),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err)
		return
	}

	h.logger.InfoContext(r.Context(), "position settled",
		slog.String("market_id", id),
		slog.String("account", req.Account),
		slog.Int64("payout", result.Payout),
		slog.Int64("forfeited", result.Forfeited),
	)
	writeJSON(w, http.StatusOK, result)
}

// GetPosition returns an account's position in a market.
// GET /api/markets/{id}/positions/{account}
func (h *PositionHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	m, err := h.registry.Market(pathParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m.Position(pathParam(r, "account")))
}

// GetPayout reports what an account would receive if it settled now.
// GET /api/markets/{id}/positions/{account}/payout
func (h *PositionHandler) GetPayout(w http.ResponseWriter, r *http.Request) {
	m, err := h.registry.Market(pathParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	account := pathParam(r, "account")
	payout, resolved := m.PotentialPayout(account)

	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": m.ID(),
		"account":   account,
		"resolved":  resolved,
		"payout":    payout,
	})
}
