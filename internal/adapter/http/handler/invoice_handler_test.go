package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/refinance/ledger/internal/adapter/http/dto"
	"github.com/refinance/ledger/internal/domain"
	"github.com/refinance/ledger/internal/usecase"
)

type invoiceServiceStub struct {
	createFn  func(ctx context.Context, input usecase.CreateInvoiceInput) (*domain.Invoice, error)
	getFn     func(ctx context.Context, id string) (*domain.Invoice, error)
	listFn    func(ctx context.Context, filter domain.InvoiceFilter) ([]*domain.Invoice, error)
	updateFn  func(ctx context.Context, input usecase.UpdateInvoiceInput) (*domain.Invoice, error)
	cancelFn  func(ctx context.Context, id string) (*domain.Invoice, error)
	deleteFn  func(ctx context.Context, id string) error
	autoPayFn func(ctx context.Context) (int, error)
	feesFn    func(ctx context.Context, billingPeriod *time.Time, actorEntityID string) (*usecase.FeeInvoiceReport, error)
}

func (s *invoiceServiceStub) CreateInvoice(ctx context.Context, input usecase.CreateInvoiceInput) (*domain.Invoice, error) {
	return s.createFn(ctx, input)
}

func (s *invoiceServiceStub) GetInvoice(ctx context.Context, id string) (*domain.Invoice, error) {
	return s.getFn(ctx, id)
}

func (s *invoiceServiceStub) ListInvoices(ctx context.Context, filter domain.InvoiceFilter) ([]*domain.Invoice, error) {
	return s.listFn(ctx, filter)
}

func (s *invoiceServiceStub) UpdateInvoice(ctx context.Context, input usecase.UpdateInvoiceInput) (*domain.Invoice, error) {
	return s.updateFn(ctx, input)
}

func (s *invoiceServiceStub) CancelInvoice(ctx context.Context, id string) (*domain.Invoice, error) {
	return s.cancelFn(ctx, id)
}

func (s *invoiceServiceStub) DeleteInvoice(ctx context.Context, id string) error {
	return s.deleteFn(ctx, id)
}

func (s *invoiceServiceStub) AutoPayOldestInvoices(ctx context.Context) (int, error) {
	return s.autoPayFn(ctx)
}

func (s *invoiceServiceStub) IssueFeeInvoices(ctx context.Context, billingPeriod *time.Time, actorEntityID string) (*usecase.FeeInvoiceReport, error) {
	return s.feesFn(ctx, billingPeriod, actorEntityID)
}

func TestInvoiceHandler_Create(t *testing.T) {
	var captured usecase.CreateInvoiceInput
	h := NewInvoiceHandler(&invoiceServiceStub{
		createFn: func(ctx context.Context, input usecase.CreateInvoiceInput) (*domain.Invoice, error) {
			captured = input
			return &domain.Invoice{
				ID:            "inv-1",
				Amounts:       input.Amounts,
				BillingPeriod: input.BillingPeriod,
				Status:        domain.InvoiceStatusPending,
			}, nil
		},
	}, "ent_f0")

	body := `{"from_entity_id":"alice","to_entity_id":"ent_f0","amounts":[{"currency":"usd","amount":"42"}],"billing_period":"2024-05-01"}`
	rr := serve(t, http.MethodPost, "/invoices", "/invoices", h.Create, body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.ActorEntityID != "ent_f0" || len(captured.Amounts) != 1 || !captured.Amounts[0].Amount.Equal(decimal.NewFromInt(42)) {
		t.Fatalf("unexpected input: %+v", captured)
	}
	resp := decode[dto.InvoiceResponse](t, rr)
	if resp.BillingPeriod == nil || *resp.BillingPeriod != "2024-05-01" || resp.Amounts[0].Amount != "42.00" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	rr = serve(t, http.MethodPost, "/invoices", "/invoices", h.Create, `{"billing_period":"05/2024"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a malformed billing period, got %d", rr.Code)
	}
}

func TestInvoiceHandler_ListFilters(t *testing.T) {
	var captured domain.InvoiceFilter
	h := NewInvoiceHandler(&invoiceServiceStub{
		listFn: func(ctx context.Context, filter domain.InvoiceFilter) ([]*domain.Invoice, error) {
			captured = filter
			return nil, nil
		},
	}, "ent_f0")

	rr := serve(t, http.MethodGet, "/invoices", "/invoices?from_entity_id=alice&status=pending&billing_period=2024-05-01&tag_id=tag_fee", h.List, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if captured.FromEntityID != "alice" || captured.Status != domain.InvoiceStatusPending || captured.TagID != "tag_fee" {
		t.Fatalf("unexpected filter: %+v", captured)
	}
	if captured.BillingPeriod == nil || captured.BillingPeriod.Month() != time.May || captured.Limit != 100 {
		t.Fatalf("unexpected filter: %+v", captured)
	}
	if resp := decode[[]dto.InvoiceResponse](t, rr); len(resp) != 0 {
		t.Fatalf("expected empty list, got %+v", resp)
	}
}

func TestInvoiceHandler_Lifecycle(t *testing.T) {
	h := NewInvoiceHandler(&invoiceServiceStub{
		getFn: func(ctx context.Context, id string) (*domain.Invoice, error) {
			return &domain.Invoice{ID: id, Status: domain.InvoiceStatusPaid}, nil
		},
		updateFn: func(ctx context.Context, input usecase.UpdateInvoiceInput) (*domain.Invoice, error) {
			return nil, domain.ErrInvoiceNotEditable
		},
		cancelFn: func(ctx context.Context, id string) (*domain.Invoice, error) {
			return &domain.Invoice{ID: id, Status: domain.InvoiceStatusCancelled}, nil
		},
		deleteFn: func(ctx context.Context, id string) error {
			return nil
		},
	}, "ent_f0")

	rr := serve(t, http.MethodGet, "/invoices/{id}", "/invoices/inv-1", h.Get, nil)
	if rr.Code != http.StatusOK || decode[dto.InvoiceResponse](t, rr).Status != "paid" {
		t.Fatalf("unexpected get response %d: %s", rr.Code, rr.Body.String())
	}

	rr = serve(t, http.MethodPatch, "/invoices/{id}", "/invoices/inv-1", h.Update, `{"comment":"x"}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}

	rr = serve(t, http.MethodPost, "/invoices/{id}/cancel", "/invoices/inv-1/cancel", h.Cancel, nil)
	if rr.Code != http.StatusOK || decode[dto.InvoiceResponse](t, rr).Status != "cancelled" {
		t.Fatalf("unexpected cancel response %d: %s", rr.Code, rr.Body.String())
	}

	rr = serve(t, http.MethodDelete, "/invoices/{id}", "/invoices/inv-1", h.Delete, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
}

func TestInvoiceHandler_AutoPayAndFees(t *testing.T) {
	var period *time.Time
	var actor string
	h := NewInvoiceHandler(&invoiceServiceStub{
		autoPayFn: func(ctx context.Context) (int, error) {
			return 3, nil
		},
		feesFn: func(ctx context.Context, billingPeriod *time.Time, actorEntityID string) (*usecase.FeeInvoiceReport, error) {
			period, actor = billingPeriod, actorEntityID
			return &usecase.FeeInvoiceReport{BillingPeriod: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), CreatedCount: 2}, nil
		},
	}, "ent_f0")

	rr := serve(t, http.MethodPost, "/invoices/auto_pay", "/invoices/auto_pay", h.AutoPay, nil)
	if rr.Code != http.StatusOK || decode[dto.AutoPayResponse](t, rr).Paid != 3 {
		t.Fatalf("unexpected auto-pay response %d: %s", rr.Code, rr.Body.String())
	}

	rr = serve(t, http.MethodPost, "/invoices/fees", "/invoices/fees", h.IssueFees, nil)
	if rr.Code != http.StatusCreated || period != nil || actor != "ent_f0" {
		t.Fatalf("empty body should bill the current month as the default actor: %d %v %q", rr.Code, period, actor)
	}

	rr = serve(t, http.MethodPost, "/invoices/fees", "/invoices/fees", h.IssueFees, `{"billing_period":"2024-06-01"}`, ActorHeader, "alice")
	if rr.Code != http.StatusCreated || period == nil || period.Month() != time.June || actor != "alice" {
		t.Fatalf("unexpected fee call: %d %v %q", rr.Code, period, actor)
	}
	if resp := decode[dto.FeeInvoicesResponse](t, rr); resp.BillingPeriod != "2024-06-01" || resp.Created != 2 {
		t.Fatalf("unexpected fee response: %+v", resp)
	}
}

func TestInvoiceHandler_AutoPayFailure(t *testing.T) {
	h := NewInvoiceHandler(&invoiceServiceStub{
		autoPayFn: func(ctx context.Context) (int, error) {
			return 1, errors.New("database unavailable")
		},
	}, "ent_f0")

	rr := serve(t, http.MethodPost, "/invoices/auto_pay", "/invoices/auto_pay", h.AutoPay, nil)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}
