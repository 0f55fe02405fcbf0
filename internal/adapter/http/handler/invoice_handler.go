package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/refinance/ledger/internal/adapter/http/dto"
	"github.com/refinance/ledger/internal/domain"
	"github.com/refinance/ledger/internal/usecase"
)

// InvoiceService is the invoice surface used by InvoiceHandler.
type InvoiceService interface {
	CreateInvoice(ctx context.Context, input usecase.CreateInvoiceInput) (*domain.Invoice, error)
	GetInvoice(ctx context.Context, id string) (*domain.Invoice, error)
	ListInvoices(ctx context.Context, filter domain.InvoiceFilter) ([]*domain.Invoice, error)
	UpdateInvoice(ctx context.Context, input usecase.UpdateInvoiceInput) (*domain.Invoice, error)
	CancelInvoice(ctx context.Context, id string) (*domain.Invoice, error)
	DeleteInvoice(ctx context.Context, id string) error
	AutoPayOldestInvoices(ctx context.Context) (int, error)
	IssueFeeInvoices(ctx context.Context, billingPeriod *time.Time, actorEntityID string) (*usecase.FeeInvoiceReport, error)
}

// InvoiceHandler handles invoice requests.
type InvoiceHandler struct {
	invoices     InvoiceService
	defaultActor string
}

// NewInvoiceHandler creates a new InvoiceHandler.
func NewInvoiceHandler(invoices InvoiceService, defaultActor string) *InvoiceHandler {
	return &InvoiceHandler{invoices: invoices, defaultActor: defaultActor}
}

// Create issues a pending invoice.
func (h *InvoiceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateInvoiceRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	input, err := req.ToUseCaseInput(actorOrDefault(r, h.defaultActor))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid billing period", err.Error())
		return
	}

	inv, err := h.invoices.CreateInvoice(r.Context(), input)
	if err != nil {
		writeDomainError(w, "failed to create invoice", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.InvoiceFromDomain(inv))
}

// Get retrieves an invoice by ID.
func (h *InvoiceHandler) Get(w http.ResponseWriter, r *http.Request) {
	inv, err := h.invoices.GetInvoice(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "failed to get invoice", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.InvoiceFromDomain(inv))
}

// List lists invoices matching the query filters.
func (h *InvoiceHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var period *string
	if v := q.Get("billing_period"); v != "" {
		period = &v
	}
	billingPeriod, err := dto.ParseBillingPeriod(period)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid billing period", err.Error())
		return
	}

	filter := domain.InvoiceFilter{
		EntityID:      q.Get("entity_id"),
		FromEntityID:  q.Get("from_entity_id"),
		ToEntityID:    q.Get("to_entity_id"),
		Status:        domain.InvoiceStatus(q.Get("status")),
		BillingPeriod: billingPeriod,
		TagID:         q.Get("tag_id"),
		Limit:         parseIntQuery(r, "limit", 100),
		Offset:        parseIntQuery(r, "offset", 0),
	}

	invoices, err := h.invoices.ListInvoices(r.Context(), filter)
	if err != nil {
		writeDomainError(w, "failed to list invoices", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.InvoicesFromDomain(invoices))
}

// Update applies a partial update to a pending invoice.
func (h *InvoiceHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdateInvoiceRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	input, err := req.ToUseCaseInput(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid billing period", err.Error())
		return
	}

	inv, err := h.invoices.UpdateInvoice(r.Context(), input)
	if err != nil {
		writeDomainError(w, "failed to update invoice", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.InvoiceFromDomain(inv))
}

// Cancel cancels a pending invoice.
func (h *InvoiceHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	inv, err := h.invoices.CancelInvoice(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "failed to cancel invoice", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.InvoiceFromDomain(inv))
}

// Delete removes a pending invoice.
func (h *InvoiceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.invoices.DeleteInvoice(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, "failed to delete invoice", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AutoPay pays pending invoices, oldest first, from payer balances.
func (h *InvoiceHandler) AutoPay(w http.ResponseWriter, r *http.Request) {
	paid, err := h.invoices.AutoPayOldestInvoices(r.Context())
	if err != nil {
		writeDomainError(w, "invoice auto-pay failed", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.AutoPayResponse{Paid: paid})
}

// IssueFees bills residents and members for a billing period. An empty body
// bills the current month.
func (h *InvoiceHandler) IssueFees(w http.ResponseWriter, r *http.Request) {
	var req dto.IssueFeesRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}

	period, err := dto.ParseBillingPeriod(req.BillingPeriod)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid billing period", err.Error())
		return
	}

	report, err := h.invoices.IssueFeeInvoices(r.Context(), period, actorOrDefault(r, h.defaultActor))
	if err != nil {
		writeDomainError(w, "failed to issue fee invoices", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.FeeInvoicesFromReport(report))
}
