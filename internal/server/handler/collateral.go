package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/marketcore/internal/ledger"
)

// CollateralHandler serves deposit, withdraw, and balance endpoints.
type CollateralHandler struct {
	registry *ledger.Registry
	logger   *slog.Logger
}

// NewCollateralHandler creates a CollateralHandler.
func NewCollateralHandler(registry *ledger.Registry, logger *slog.Logger) *CollateralHandler {
	return &CollateralHandler{
		registry: registry,
		logger:   logger,
	}
}

// collateralRequest is the body for deposits and withdrawals. Amount is in
// integer collateral units.
type collateralRequest struct {
	Account string `json:"account"`
	Amount  int64  `json:"amount"`
}

// Deposit credits collateral to an account.
// POST /api/markets/{id}/deposit
func (h *CollateralHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, "deposit")
}

// Withdraw debits available collateral from an account.
// POST /api/markets/{id}/withdraw
func (h *CollateralHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, "withdraw")
}

func (h *CollateralHandler) move(w http.ResponseWriter, r *http.Request, op string) {
	id := pathParam(r, "id")

	var req collateralRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	m, err := h.registry.Market(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if op == "deposit" {
		err = m.Deposit(req.Account, req.Amount)
	} else {
		err = m.Withdraw(req.Account, req.Amount)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}

	h.logger.InfoContext(r.Context(), "collateral "+op,
		slog.String("market_id", id),
		slog.String("account", req.Account),
		slog.Int64("amount", req.Amount),
	)
	writeJSON(w, http.StatusOK, m.Collateral(req.Account))
}

// GetCollateral returns an account's collateral entry for a market.
// GET /api/markets/{id}/collateral/{account}
func (h *CollateralHandler) GetCollateral(w http.ResponseWriter, r *http.Request) {
	m, err := h.registry.Market(pathParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	account := pathParam(r, "account")
	entry := m.Collateral(account)

	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": m.ID(),
		"account":   account,
		"deposited": entry.Deposited,
		"withdrawn": entry.Withdrawn,
		"locked":    entry.Locked,
		"available": entry.Available(),
	})
}
