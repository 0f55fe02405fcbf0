package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/refinance/ledger/internal/adapter/http/dto"
	"github.com/refinance/ledger/internal/domain"
	"github.com/refinance/ledger/internal/usecase"
)

// ExchangeService is the currency exchange surface used by ExchangeHandler.
type ExchangeService interface {
	Rates(ctx context.Context) (domain.Rates, error)
	Preview(ctx context.Context, req usecase.ExchangeRequest) (*domain.ExchangeQuote, error)
	Exchange(ctx context.Context, req usecase.ExchangeRequest, actorEntityID string) (*domain.ExchangeReceipt, error)
	RunForEntity(ctx context.Context, entityID, actorEntityID string) ([]domain.ExchangeReceipt, error)
	RunForAll(ctx context.Context, actorEntityID string) ([]usecase.EntityRun, error)
	PreviewForAll(ctx context.Context) ([]usecase.EntityPlan, error)
}

// ExchangeHandler handles currency exchange and auto-balance requests.
type ExchangeHandler struct {
	exchange     ExchangeService
	defaultActor string
}

// NewExchangeHandler creates a new ExchangeHandler.
func NewExchangeHandler(exchange ExchangeService, defaultActor string) *ExchangeHandler {
	return &ExchangeHandler{exchange: exchange, defaultActor: defaultActor}
}

// Rates returns the current base-currency rate table.
func (h *ExchangeHandler) Rates(w http.ResponseWriter, r *http.Request) {
	rates, err := h.exchange.Rates(r.Context())
	if err != nil {
		writeDomainError(w, "failed to get rates", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.RatesFromDomain(rates))
}

// Preview quotes a conversion without recording it.
func (h *ExchangeHandler) Preview(w http.ResponseWriter, r *http.Request) {
	var req dto.ExchangeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	quote, err := h.exchange.Preview(r.Context(), req.ToUseCaseInput())
	if err != nil {
		writeDomainError(w, "failed to preview exchange", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.QuoteFromDomain(quote))
}

// Exchange records a manual conversion.
func (h *ExchangeHandler) Exchange(w http.ResponseWriter, r *http.Request) {
	var req dto.ExchangeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	receipt, err := h.exchange.Exchange(r.Context(), req.ToUseCaseInput(), actorOrDefault(r, h.defaultActor))
	if err != nil {
		writeDomainError(w, "failed to exchange", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.ReceiptFromDomain(receipt))
}

// AutoBalancePreview plans auto-balance for every eligible entity.
func (h *ExchangeHandler) AutoBalancePreview(w http.ResponseWriter, r *http.Request) {
	plans, err := h.exchange.PreviewForAll(r.Context())
	if err != nil {
		writeDomainError(w, "failed to preview auto-balance", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.PlansFromDomain(plans))
}

// AutoBalanceRun auto-balances every eligible entity that carries a debt.
func (h *ExchangeHandler) AutoBalanceRun(w http.ResponseWriter, r *http.Request) {
	runs, err := h.exchange.RunForAll(r.Context(), actorOrDefault(r, h.defaultActor))
	if err != nil {
		writeDomainError(w, "auto-balance failed", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.RunsFromDomain(runs))
}

// AutoBalanceEntity auto-balances a single entity.
func (h *ExchangeHandler) AutoBalanceEntity(w http.ResponseWriter, r *http.Request) {
	entityID := chi.URLParam(r, "entityID")
	receipts, err := h.exchange.RunForEntity(r.Context(), entityID, actorOrDefault(r, h.defaultActor))
	if err != nil {
		writeDomainError(w, "auto-balance failed", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.EntityRunResponse{EntityID: entityID, Receipts: dto.ReceiptsFromDomain(receipts)})
}
