package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/refinance/ledger/internal/adapter/http/dto"
	"github.com/refinance/ledger/internal/usecase"
)

// TreasuryService is the treasury surface used by TreasuryHandler.
type TreasuryService interface {
	GetTreasury(ctx context.Context, id string) (*usecase.TreasuryWithBalances, error)
	CheckTransaction(ctx context.Context, transactionID string) (bool, error)
	DeleteTreasury(ctx context.Context, id string) error
}

// TreasuryHandler handles treasury requests.
type TreasuryHandler struct {
	treasuries TreasuryService
}

// NewTreasuryHandler creates a new TreasuryHandler.
func NewTreasuryHandler(treasuries TreasuryService) *TreasuryHandler {
	return &TreasuryHandler{treasuries: treasuries}
}

// Get returns a treasury with its balances.
func (h *TreasuryHandler) Get(w http.ResponseWriter, r *http.Request) {
	t, err := h.treasuries.GetTreasury(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "failed to get treasury", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.TreasuryFromDomain(t))
}

// Balances returns only the balances of a treasury.
func (h *TreasuryHandler) Balances(w http.ResponseWriter, r *http.Request) {
	t, err := h.treasuries.GetTreasury(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "failed to get treasury balances", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.BalanceFromDomain(t.Balances))
}

// Delete removes a treasury no transaction references.
func (h *TreasuryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.treasuries.DeleteTreasury(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, "failed to delete treasury", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Overdraft reports whether completing a transaction would overdraft its
// source treasury.
func (h *TreasuryHandler) Overdraft(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "transactionID")
	overdraft, err := h.treasuries.CheckTransaction(r.Context(), id)
	if err != nil {
		writeDomainError(w, "failed to check overdraft", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.OverdraftResponse{TransactionID: id, Overdraft: overdraft})
}
