package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/refinance/ledger/internal/adapter/http/dto"
	"github.com/refinance/ledger/internal/domain"
)

// BalanceService is the balance read side used by BalanceHandler.
type BalanceService interface {
	GetBalances(ctx context.Context, entityID string, asOf *time.Time) (*domain.Balance, error)
}

// BalanceHandler handles entity balance requests.
type BalanceHandler struct {
	balances BalanceService
}

// NewBalanceHandler creates a new BalanceHandler.
func NewBalanceHandler(balances BalanceService) *BalanceHandler {
	return &BalanceHandler{balances: balances}
}

// Get returns the confirmed and non-confirmed balances of an entity,
// optionally as of a point in time.
func (h *BalanceHandler) Get(w http.ResponseWriter, r *http.Request) {
	entityID := chi.URLParam(r, "entityID")
	if entityID == "" {
		writeError(w, http.StatusBadRequest, "missing entity ID", "")
		return
	}

	asOf, err := parseTimeQuery(r, "as_of")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid as_of", err.Error())
		return
	}

	balance, err := h.balances.GetBalances(r.Context(), entityID, asOf)
	if err != nil {
		writeDomainError(w, "failed to get balances", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.BalanceFromDomain(balance))
}
