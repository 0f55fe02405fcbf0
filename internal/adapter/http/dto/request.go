package dto

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/refinance/ledger/internal/domain"
	"github.com/refinance/ledger/internal/usecase"
)

// BillingPeriodLayout is the wire format of billing periods.
const BillingPeriodLayout = "2006-01-02"

// ErrInvalidBillingPeriod is returned for billing periods not in BillingPeriodLayout.
var ErrInvalidBillingPeriod = errors.New("billing_period must be formatted as YYYY-MM-DD")

// CreateTransactionRequest represents a request to record a transaction.
type CreateTransactionRequest struct {
	FromEntityID   string          `json:"from_entity_id"`
	ToEntityID     string          `json:"to_entity_id"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	Status         string          `json:"status,omitempty"`
	FromTreasuryID *string         `json:"from_treasury_id,omitempty"`
	ToTreasuryID   *string         `json:"to_treasury_id,omitempty"`
	InvoiceID      *string         `json:"invoice_id,omitempty"`
	Comment        string          `json:"comment,omitempty"`
	TagIDs         []string        `json:"tag_ids,omitempty"`
}

// ToUseCaseInput converts to use case input.
func (r *CreateTransactionRequest) ToUseCaseInput(actorEntityID string) usecase.CreateTransactionInput {
	return usecase.CreateTransactionInput{
		ActorEntityID:  actorEntityID,
		FromEntityID:   r.FromEntityID,
		ToEntityID:     r.ToEntityID,
		Amount:         r.Amount,
		Currency:       r.Currency,
		Status:         domain.TransactionStatus(r.Status),
		FromTreasuryID: r.FromTreasuryID,
		ToTreasuryID:   r.ToTreasuryID,
		InvoiceID:      r.InvoiceID,
		Comment:        r.Comment,
		TagIDs:         r.TagIDs,
	}
}

// UpdateTransactionRequest is a partial update. An empty string clears an
// optional reference.
type UpdateTransactionRequest struct {
	Amount         *decimal.Decimal `json:"amount,omitempty"`
	Currency       *string          `json:"currency,omitempty"`
	Status         *string          `json:"status,omitempty"`
	FromTreasuryID *string          `json:"from_treasury_id,omitempty"`
	ToTreasuryID   *string          `json:"to_treasury_id,omitempty"`
	InvoiceID      *string          `json:"invoice_id,omitempty"`
	Comment        *string          `json:"comment,omitempty"`
	TagIDs         []string         `json:"tag_ids,omitempty"`
}

// ToUseCaseInput converts to use case input.
func (r *UpdateTransactionRequest) ToUseCaseInput(id string) usecase.UpdateTransactionInput {
	input := usecase.UpdateTransactionInput{
		ID:             id,
		Amount:         r.Amount,
		Currency:       r.Currency,
		FromTreasuryID: r.FromTreasuryID,
		ToTreasuryID:   r.ToTreasuryID,
		InvoiceID:      r.InvoiceID,
		Comment:        r.Comment,
		TagIDs:         r.TagIDs,
	}
	if r.Status != nil {
		status := domain.TransactionStatus(*r.Status)
		input.Status = &status
	}
	return input
}

// InvoiceAmountRequest is one acceptable payment option of an invoice.
type InvoiceAmountRequest struct {
	Currency string          `json:"currency"`
	Amount   decimal.Decimal `json:"amount"`
}

func toInvoiceAmounts(amounts []InvoiceAmountRequest) []domain.InvoiceAmount {
	if amounts == nil {
		return nil
	}
	result := make([]domain.InvoiceAmount, len(amounts))
	for i, a := range amounts {
		result[i] = domain.InvoiceAmount{Currency: a.Currency, Amount: a.Amount}
	}
	return result
}

// ParseBillingPeriod parses an optional YYYY-MM-DD billing period.
func ParseBillingPeriod(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := time.Parse(BillingPeriodLayout, *s)
	if err != nil {
		return nil, ErrInvalidBillingPeriod
	}
	return &t, nil
}

// CreateInvoiceRequest represents a request to issue an invoice.
type CreateInvoiceRequest struct {
	FromEntityID  string                 `json:"from_entity_id"`
	ToEntityID    string                 `json:"to_entity_id"`
	Amounts       []InvoiceAmountRequest `json:"amounts"`
	BillingPeriod *string                `json:"billing_period,omitempty"`
	Comment       string                 `json:"comment,omitempty"`
	TagIDs        []string               `json:"tag_ids,omitempty"`
}

// ToUseCaseInput converts to use case input.
func (r *CreateInvoiceRequest) ToUseCaseInput(actorEntityID string) (usecase.CreateInvoiceInput, error) {
	period, err := ParseBillingPeriod(r.BillingPeriod)
	if err != nil {
		return usecase.CreateInvoiceInput{}, err
	}
	return usecase.CreateInvoiceInput{
		ActorEntityID: actorEntityID,
		FromEntityID:  r.FromEntityID,
		ToEntityID:    r.ToEntityID,
		Amounts:       toInvoiceAmounts(r.Amounts),
		BillingPeriod: period,
		Comment:       r.Comment,
		TagIDs:        r.TagIDs,
	}, nil
}

// UpdateInvoiceRequest is a partial invoice update.
type UpdateInvoiceRequest struct {
	Amounts       []InvoiceAmountRequest `json:"amounts,omitempty"`
	BillingPeriod *string                `json:"billing_period,omitempty"`
	Comment       *string                `json:"comment,omitempty"`
	TagIDs        []string               `json:"tag_ids,omitempty"`
}

// ToUseCaseInput converts to use case input.
func (r *UpdateInvoiceRequest) ToUseCaseInput(id string) (usecase.UpdateInvoiceInput, error) {
	period, err := ParseBillingPeriod(r.BillingPeriod)
	if err != nil {
		return usecase.UpdateInvoiceInput{}, err
	}
	return usecase.UpdateInvoiceInput{
		ID:            id,
		Amounts:       toInvoiceAmounts(r.Amounts),
		BillingPeriod: period,
		Comment:       r.Comment,
		TagIDs:        r.TagIDs,
	}, nil
}

// IssueFeesRequest triggers fee invoicing for a billing period.
type IssueFeesRequest struct {
	BillingPeriod *string `json:"billing_period,omitempty"`
}

// CreateSplitRequest represents a request to create a split.
type CreateSplitRequest struct {
	RecipientEntityID string          `json:"recipient_entity_id"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	Comment           string          `json:"comment,omitempty"`
	TagIDs            []string        `json:"tag_ids,omitempty"`
}

// ToUseCaseInput converts to use case input.
func (r *CreateSplitRequest) ToUseCaseInput(actorEntityID string) usecase.CreateSplitInput {
	return usecase.CreateSplitInput{
		ActorEntityID:     actorEntityID,
		RecipientEntityID: r.RecipientEntityID,
		Amount:            r.Amount,
		Currency:          r.Currency,
		Comment:           r.Comment,
		TagIDs:            r.TagIDs,
	}
}

// UpdateSplitRequest is a partial split update.
type UpdateSplitRequest struct {
	RecipientEntityID *string          `json:"recipient_entity_id,omitempty"`
	Amount            *decimal.Decimal `json:"amount,omitempty"`
	Currency          *string          `json:"currency,omitempty"`
	Comment           *string          `json:"comment,omitempty"`
	TagIDs            []string         `json:"tag_ids,omitempty"`
}

// ToUseCaseInput converts to use case input.
func (r *UpdateSplitRequest) ToUseCaseInput(id string) usecase.UpdateSplitInput {
	return usecase.UpdateSplitInput{
		ID:                id,
		RecipientEntityID: r.RecipientEntityID,
		Amount:            r.Amount,
		Currency:          r.Currency,
		Comment:           r.Comment,
		TagIDs:            r.TagIDs,
	}
}

// AddParticipantRequest adds one entity or every entity carrying a tag.
type AddParticipantRequest struct {
	EntityID    string           `json:"entity_id,omitempty"`
	EntityTagID string           `json:"entity_tag_id,omitempty"`
	FixedAmount *decimal.Decimal `json:"fixed_amount,omitempty"`
}

// ToUseCaseInput converts to use case input.
func (r *AddParticipantRequest) ToUseCaseInput(splitID string) usecase.AddParticipantInput {
	return usecase.AddParticipantInput{
		SplitID:     splitID,
		EntityID:    r.EntityID,
		EntityTagID: r.EntityTagID,
		FixedAmount: r.FixedAmount,
	}
}

// ExchangeRequest is a manual currency conversion. Exactly one amount must be set.
type ExchangeRequest struct {
	EntityID       string           `json:"entity_id"`
	SourceCurrency string           `json:"source_currency"`
	TargetCurrency string           `json:"target_currency"`
	SourceAmount   *decimal.Decimal `json:"source_amount,omitempty"`
	TargetAmount   *decimal.Decimal `json:"target_amount,omitempty"`
}

// ToUseCaseInput converts to use case input.
func (r *ExchangeRequest) ToUseCaseInput() usecase.ExchangeRequest {
	return usecase.ExchangeRequest{
		EntityID:       r.EntityID,
		SourceCurrency: r.SourceCurrency,
		TargetCurrency: r.TargetCurrency,
		SourceAmount:   r.SourceAmount,
		TargetAmount:   r.TargetAmount,
	}
}
