package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/refinance/ledger/internal/adapter/http/dto"
	"github.com/refinance/ledger/internal/domain"
	"github.com/refinance/ledger/internal/usecase"
)

// TransactionService is the transaction surface used by TransactionHandler.
type TransactionService interface {
	CreateTransaction(ctx context.Context, input usecase.CreateTransactionInput) (*domain.Transaction, error)
	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]*domain.Transaction, error)
	UpdateTransaction(ctx context.Context, input usecase.UpdateTransactionInput) (*domain.Transaction, error)
	DeleteTransaction(ctx context.Context, id string) error
	AddTag(ctx context.Context, id, tagID string) (*domain.Transaction, error)
	RemoveTag(ctx context.Context, id, tagID string) (*domain.Transaction, error)
}

// TransactionHandler handles transaction requests.
type TransactionHandler struct {
	transactions TransactionService
	defaultActor string
}

// NewTransactionHandler creates a new TransactionHandler. defaultActor is
// recorded when a request carries no actor header.
func NewTransactionHandler(transactions TransactionService, defaultActor string) *TransactionHandler {
	return &TransactionHandler{transactions: transactions, defaultActor: defaultActor}
}

// Create records a new transaction.
func (h *TransactionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateTransactionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	t, err := h.transactions.CreateTransaction(r.Context(), req.ToUseCaseInput(actorOrDefault(r, h.defaultActor)))
	if err != nil {
		writeDomainError(w, "failed to create transaction", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.TransactionFromDomain(t))
}

// Get retrieves a transaction by ID.
func (h *TransactionHandler) Get(w http.ResponseWriter, r *http.Request) {
	t, err := h.transactions.GetTransaction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "failed to get transaction", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.TransactionFromDomain(t))
}

// List lists transactions, newest first.
func (h *TransactionHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.TransactionFilter{
		EntityID:   q.Get("entity_id"),
		TreasuryID: q.Get("treasury_id"),
		InvoiceID:  q.Get("invoice_id"),
		Currency:   q.Get("currency"),
		Status:     domain.TransactionStatus(q.Get("status")),
		Limit:      parseIntQuery(r, "limit", 100),
		Offset:     parseIntQuery(r, "offset", 0),
	}

	txs, err := h.transactions.ListTransactions(r.Context(), filter)
	if err != nil {
		writeDomainError(w, "failed to list transactions", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.TransactionsFromDomain(txs))
}

// Update applies a partial update to a draft transaction.
func (h *TransactionHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdateTransactionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	t, err := h.transactions.UpdateTransaction(r.Context(), req.ToUseCaseInput(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "failed to update transaction", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.TransactionFromDomain(t))
}

// Delete removes a draft transaction.
func (h *TransactionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.transactions.DeleteTransaction(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, "failed to delete transaction", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AddTag attaches a tag to a transaction.
func (h *TransactionHandler) AddTag(w http.ResponseWriter, r *http.Request) {
	t, err := h.transactions.AddTag(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "tagID"))
	if err != nil {
		writeDomainError(w, "failed to add tag", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.TransactionFromDomain(t))
}

// RemoveTag detaches a tag from a transaction.
func (h *TransactionHandler) RemoveTag(w http.ResponseWriter, r *http.Request) {
	t, err := h.transactions.RemoveTag(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "tagID"))
	if err != nil {
		writeDomainError(w, "failed to remove tag", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.TransactionFromDomain(t))
}
