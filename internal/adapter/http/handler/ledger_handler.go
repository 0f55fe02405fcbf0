package handler

import (
	"context"
	"net/http"

	"github.com/refinance/ledger/internal/adapter/http/dto"
	"github.com/refinance/ledger/internal/usecase"
)

// ReconciliationService produces ledger reconciliation reports.
type ReconciliationService interface {
	GenerateReconciliationReport(ctx context.Context) (*usecase.ReconciliationReport, error)
}

// LedgerHandler handles ledger-wide checks.
type LedgerHandler struct {
	reconciliation ReconciliationService
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(reconciliation ReconciliationService) *LedgerHandler {
	return &LedgerHandler{reconciliation: reconciliation}
}

// Consistency reports whether confirmed balances close to zero per currency
// and whether cached balances match fresh ones. An inconsistent ledger is
// reported with 409.
func (h *LedgerHandler) Consistency(w http.ResponseWriter, r *http.Request) {
	report, err := h.reconciliation.GenerateReconciliationReport(r.Context())
	if err != nil {
		writeDomainError(w, "failed to check ledger consistency", err)
		return
	}

	status := http.StatusOK
	if !report.LedgerConsistent {
		status = http.StatusConflict
	}
	writeJSON(w, status, dto.ConsistencyFromReport(report))
}
