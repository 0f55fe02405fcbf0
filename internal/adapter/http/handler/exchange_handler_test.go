package handler

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/refinance/ledger/internal/adapter/http/dto"
	"github.com/refinance/ledger/internal/domain"
	"github.com/refinance/ledger/internal/usecase"
)

type exchangeServiceStub struct {
	ratesFn         func(ctx context.Context) (domain.Rates, error)
	previewFn       func(ctx context.Context, req usecase.ExchangeRequest) (*domain.ExchangeQuote, error)
	exchangeFn      func(ctx context.Context, req usecase.ExchangeRequest, actorEntityID string) (*domain.ExchangeReceipt, error)
	runForEntityFn  func(ctx context.Context, entityID, actorEntityID string) ([]domain.ExchangeReceipt, error)
	runForAllFn     func(ctx context.Context, actorEntityID string) ([]usecase.EntityRun, error)
	previewForAllFn func(ctx context.Context) ([]usecase.EntityPlan, error)
}

func (s *exchangeServiceStub) Rates(ctx context.Context) (domain.Rates, error) {
	return s.ratesFn(ctx)
}

func (s *exchangeServiceStub) Preview(ctx context.Context, req usecase.ExchangeRequest) (*domain.ExchangeQuote, error) {
	return s.previewFn(ctx, req)
}

func (s *exchangeServiceStub) Exchange(ctx context.Context, req usecase.ExchangeRequest, actorEntityID string) (*domain.ExchangeReceipt, error) {
	return s.exchangeFn(ctx, req, actorEntityID)
}

func (s *exchangeServiceStub) RunForEntity(ctx context.Context, entityID, actorEntityID string) ([]domain.ExchangeReceipt, error) {
	return s.runForEntityFn(ctx, entityID, actorEntityID)
}

func (s *exchangeServiceStub) RunForAll(ctx context.Context, actorEntityID string) ([]usecase.EntityRun, error) {
	return s.runForAllFn(ctx, actorEntityID)
}

func (s *exchangeServiceStub) PreviewForAll(ctx context.Context) ([]usecase.EntityPlan, error) {
	return s.previewForAllFn(ctx)
}

func receipt(entityID string) domain.ExchangeReceipt {
	return domain.ExchangeReceipt{
		EntityID:       entityID,
		SourceCurrency: "usd",
		SourceAmount:   decimal.RequireFromString("10"),
		TargetCurrency: "gel",
		TargetAmount:   decimal.RequireFromString("30"),
		Rate:           decimal.RequireFromString("3"),
	}
}

func TestExchangeHandler_Rates(t *testing.T) {
	h := NewExchangeHandler(&exchangeServiceStub{
		ratesFn: func(ctx context.Context) (domain.Rates, error) {
			return domain.Rates{"usd": decimal.RequireFromString("2.7")}, nil
		},
	}, "ent_f0")

	rr := serve(t, http.MethodGet, "/rates", "/rates", h.Rates, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if resp := decode[dto.RatesResponse](t, rr); resp.Base != "gel" || resp.Rates["usd"] != "2.7" {
		t.Fatalf("unexpected rates: %+v", resp)
	}

	h = NewExchangeHandler(&exchangeServiceStub{
		ratesFn: func(ctx context.Context) (domain.Rates, error) {
			return nil, fmt.Errorf("fetch: %w", domain.ErrRateProviderUnavailable)
		},
	}, "ent_f0")
	rr = serve(t, http.MethodGet, "/rates", "/rates", h.Rates, nil)
	if rr.Code != http.StatusBadGateway || decode[dto.ErrorResponse](t, rr).Code != 9004 {
		t.Fatalf("expected 502 with code 9004, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestExchangeHandler_PreviewAndExchange(t *testing.T) {
	var captured usecase.ExchangeRequest
	var actor string
	h := NewExchangeHandler(&exchangeServiceStub{
		previewFn: func(ctx context.Context, req usecase.ExchangeRequest) (*domain.ExchangeQuote, error) {
			if req.SourceAmount != nil && req.TargetAmount != nil {
				return nil, domain.ErrExchangeAmountRequired
			}
			captured = req
			return &domain.ExchangeQuote{EntityID: req.EntityID, SourceCurrency: "usd", SourceAmount: *req.SourceAmount, TargetCurrency: "gel", TargetAmount: decimal.RequireFromString("30"), Rate: decimal.RequireFromString("3")}, nil
		},
		exchangeFn: func(ctx context.Context, req usecase.ExchangeRequest, actorEntityID string) (*domain.ExchangeReceipt, error) {
			actor = actorEntityID
			r := receipt(req.EntityID)
			return &r, nil
		},
	}, "ent_f0")

	rr := serve(t, http.MethodPost, "/preview", "/preview", h.Preview, `{"entity_id":"alice","source_currency":"usd","target_currency":"gel","source_amount":"10"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.EntityID != "alice" || !captured.SourceAmount.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("unexpected preview request: %+v", captured)
	}
	if resp := decode[dto.ExchangeQuoteResponse](t, rr); resp.TargetAmount != "30.00" || resp.Rate != "3.00" {
		t.Fatalf("unexpected quote: %+v", resp)
	}

	rr = serve(t, http.MethodPost, "/preview", "/preview", h.Preview, `{"entity_id":"alice","source_amount":"10","target_amount":"30"}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}

	rr = serve(t, http.MethodPost, "/exchange", "/exchange", h.Exchange, `{"entity_id":"alice","source_currency":"usd","target_currency":"gel","source_amount":"10"}`, ActorHeader, "alice")
	if rr.Code != http.StatusCreated || actor != "alice" {
		t.Fatalf("unexpected exchange: %d %q", rr.Code, actor)
	}
}

func TestExchangeHandler_AutoBalance(t *testing.T) {
	var runActor, entity string
	h := NewExchangeHandler(&exchangeServiceStub{
		previewForAllFn: func(ctx context.Context) ([]usecase.EntityPlan, error) {
			return []usecase.EntityPlan{{EntityID: "alice", Steps: []domain.ExchangeStep{{SourceCurrency: "usd", TargetCurrency: "gel"}}}}, nil
		},
		runForAllFn: func(ctx context.Context, actorEntityID string) ([]usecase.EntityRun, error) {
			runActor = actorEntityID
			return []usecase.EntityRun{{EntityID: "alice", Receipts: []domain.ExchangeReceipt{receipt("alice")}}}, nil
		},
		runForEntityFn: func(ctx context.Context, entityID, actorEntityID string) ([]domain.ExchangeReceipt, error) {
			entity = entityID
			return nil, nil
		},
	}, "ent_f0")

	rr := serve(t, http.MethodGet, "/auto_balance/preview", "/auto_balance/preview", h.AutoBalancePreview, nil)
	if rr.Code != http.StatusOK || len(decode[[]dto.EntityPlanResponse](t, rr)) != 1 {
		t.Fatalf("unexpected preview %d: %s", rr.Code, rr.Body.String())
	}

	rr = serve(t, http.MethodPost, "/auto_balance/run", "/auto_balance/run", h.AutoBalanceRun, nil)
	if rr.Code != http.StatusOK || runActor != "ent_f0" {
		t.Fatalf("unexpected run %d %q", rr.Code, runActor)
	}
	runs := decode[[]dto.EntityRunResponse](t, rr)
	if len(runs) != 1 || runs[0].Receipts[0].SourceAmount != "10.00" {
		t.Fatalf("unexpected runs: %+v", runs)
	}

	rr = serve(t, http.MethodPost, "/auto_balance/{entityID}/run", "/auto_balance/bob/run", h.AutoBalanceEntity, nil)
	if rr.Code != http.StatusOK || entity != "bob" {
		t.Fatalf("unexpected entity run %d %q", rr.Code, entity)
	}
	if resp := decode[dto.EntityRunResponse](t, rr); resp.EntityID != "bob" || len(resp.Receipts) != 0 {
		t.Fatalf("unexpected entity run response: %+v", resp)
	}
}
