package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/refinance/ledger/internal/domain"
	"github.com/refinance/ledger/internal/usecase"
)

// ErrorResponse represents an error in API responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}

// Amounts renders per-currency amounts as two-decimal strings.
func Amounts(m map[string]decimal.Decimal) map[string]string {
	out := make(map[string]string, len(m))
	for currency, amount := range m {
		out[currency] = domain.FormatAmount(amount)
	}
	return out
}

// BalanceResponse represents entity or treasury balances.
type BalanceResponse struct {
	Confirmed    map[string]string `json:"confirmed"`
	NonConfirmed map[string]string `json:"non_confirmed"`
}

// BalanceFromDomain converts a domain balance to response.
func BalanceFromDomain(b *domain.Balance) *BalanceResponse {
	if b == nil {
		b = domain.NewBalance()
	}
	return &BalanceResponse{
		Confirmed:    Amounts(b.Confirmed),
		NonConfirmed: Amounts(b.NonConfirmed),
	}
}

// TreasuryResponse represents a treasury with its balances.
type TreasuryResponse struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Comment   string           `json:"comment,omitempty"`
	Active    bool             `json:"active"`
	CreatedAt time.Time        `json:"created_at"`
	Balances  *BalanceResponse `json:"balances"`
}

// TreasuryFromDomain converts a treasury with balances to response.
func TreasuryFromDomain(t *usecase.TreasuryWithBalances) *TreasuryResponse {
	return &TreasuryResponse{
		ID:        t.Treasury.ID,
		Name:      t.Treasury.Name,
		Comment:   t.Treasury.Comment,
		Active:    t.Treasury.Active,
		CreatedAt: t.Treasury.CreatedAt,
		Balances:  BalanceFromDomain(t.Balances),
	}
}

// OverdraftResponse reports whether a transaction would overdraft its source treasury.
type OverdraftResponse struct {
	TransactionID string `json:"transaction_id"`
	Overdraft     bool   `json:"overdraft"`
}

// TransactionResponse represents a transaction in API responses.
type TransactionResponse struct {
	ID             string     `json:"id"`
	ActorEntityID  string     `json:"actor_entity_id"`
	FromEntityID   string     `json:"from_entity_id"`
	ToEntityID     string     `json:"to_entity_id"`
	Amount         string     `json:"amount"`
	Currency       string     `json:"currency"`
	Status         string     `json:"status"`
	FromTreasuryID *string    `json:"from_treasury_id"`
	ToTreasuryID   *string    `json:"to_treasury_id"`
	InvoiceID      *string    `json:"invoice_id"`
	Comment        string     `json:"comment"`
	TagIDs         []string   `json:"tag_ids"`
	CreatedAt      time.Time  `json:"created_at"`
	ModifiedAt     *time.Time `json:"modified_at,omitempty"`
}

// TransactionFromDomain converts a domain transaction to response.
func TransactionFromDomain(t *domain.Transaction) *TransactionResponse {
	return &TransactionResponse{
		ID:             t.ID,
		ActorEntityID:  t.ActorEntityID,
		FromEntityID:   t.FromEntityID,
		ToEntityID:     t.ToEntityID,
		Amount:         domain.FormatAmount(t.Amount),
		Currency:       t.Currency,
		Status:         string(t.Status),
		FromTreasuryID: t.FromTreasuryID,
		ToTreasuryID:   t.ToTreasuryID,
		InvoiceID:      t.InvoiceID,
		Comment:        t.Comment,
		TagIDs:         nonNil(t.TagIDs),
		CreatedAt:      t.CreatedAt,
		ModifiedAt:     t.ModifiedAt,
	}
}

// TransactionsFromDomain converts domain transactions to responses.
func TransactionsFromDomain(txs []*domain.Transaction) []*TransactionResponse {
	result := make([]*TransactionResponse, len(txs))
	for i, t := range txs {
		result[i] = TransactionFromDomain(t)
	}
	return result
}

// InvoiceAmountResponse is one payment option of an invoice.
type InvoiceAmountResponse struct {
	Currency string `json:"currency"`
	Amount   string `json:"amount"`
}

// InvoiceResponse represents an invoice in API responses.
type InvoiceResponse struct {
	ID            string                  `json:"id"`
	ActorEntityID string                  `json:"actor_entity_id"`
	FromEntityID  string                  `json:"from_entity_id"`
	ToEntityID    string                  `json:"to_entity_id"`
	Amounts       []InvoiceAmountResponse `json:"amounts"`
	BillingPeriod *string                 `json:"billing_period"`
	Status        string                  `json:"status"`
	Comment       string                  `json:"comment"`
	TagIDs        []string                `json:"tag_ids"`
	CreatedAt     time.Time               `json:"created_at"`
	ModifiedAt    *time.Time              `json:"modified_at,omitempty"`
}

// InvoiceFromDomain converts a domain invoice to response.
func InvoiceFromDomain(inv *domain.Invoice) *InvoiceResponse {
	amounts := make([]InvoiceAmountResponse, len(inv.Amounts))
	for i, a := range inv.Amounts {
		amounts[i] = InvoiceAmountResponse{Currency: a.Currency, Amount: domain.FormatAmount(a.Amount)}
	}
	var period *string
	if inv.BillingPeriod != nil {
		s := inv.BillingPeriod.Format(BillingPeriodLayout)
		period = &s
	}
	return &InvoiceResponse{
		ID:            inv.ID,
		ActorEntityID: inv.ActorEntityID,
		FromEntityID:  inv.FromEntityID,
		ToEntityID:    inv.ToEntityID,
		Amounts:       amounts,
		BillingPeriod: period,
		Status:        string(inv.Status),
		Comment:       inv.Comment,
		TagIDs:        nonNil(inv.TagIDs),
		CreatedAt:     inv.CreatedAt,
		ModifiedAt:    inv.ModifiedAt,
	}
}

// InvoicesFromDomain converts domain invoices to responses.
func InvoicesFromDomain(invoices []*domain.Invoice) []*InvoiceResponse {
	result := make([]*InvoiceResponse, len(invoices))
	for i, inv := range invoices {
		result[i] = InvoiceFromDomain(inv)
	}
	return result
}

// AutoPayResponse reports the outcome of an auto-pay run.
type AutoPayResponse struct {
	Paid int `json:"paid"`
}

// FeeInvoicesResponse reports the outcome of a fee invoicing run.
type FeeInvoicesResponse struct {
	BillingPeriod string   `json:"billing_period"`
	Created       int      `json:"created"`
	Skipped       int      `json:"skipped"`
	InvoiceIDs    []string `json:"invoice_ids"`
}

// FeeInvoicesFromReport converts a fee invoicing report to response.
func FeeInvoicesFromReport(r *usecase.FeeInvoiceReport) *FeeInvoicesResponse {
	return &FeeInvoicesResponse{
		BillingPeriod: r.BillingPeriod.Format(BillingPeriodLayout),
		Created:       r.CreatedCount,
		Skipped:       r.SkippedCount,
		InvoiceIDs:    nonNil(r.InvoiceIDs),
	}
}

// SplitParticipantResponse is one participant of a split.
type SplitParticipantResponse struct {
	EntityID    string  `json:"entity_id"`
	FixedAmount *string `json:"fixed_amount"`
}

// SplitResponse represents a split in API responses.
type SplitResponse struct {
	ID                      string                     `json:"id"`
	ActorEntityID           string                     `json:"actor_entity_id"`
	RecipientEntityID       string                     `json:"recipient_entity_id"`
	Amount                  string                     `json:"amount"`
	Currency                string                     `json:"currency"`
	Comment                 string                     `json:"comment"`
	Participants            []SplitParticipantResponse `json:"participants"`
	Performed               bool                       `json:"performed"`
	PerformedTransactionIDs []string                   `json:"performed_transaction_ids"`
	TagIDs                  []string                   `json:"tag_ids"`
	CreatedAt               time.Time                  `json:"created_at"`
	ModifiedAt              *time.Time                 `json:"modified_at,omitempty"`
}

// SplitFromDomain converts a domain split to response.
func SplitFromDomain(s *domain.Split) *SplitResponse {
	participants := make([]SplitParticipantResponse, len(s.Participants))
	for i, p := range s.Participants {
		participants[i] = SplitParticipantResponse{EntityID: p.EntityID}
		if p.FixedAmount != nil {
			fixed := domain.FormatAmount(*p.FixedAmount)
			participants[i].FixedAmount = &fixed
		}
	}
	return &SplitResponse{
		ID:                      s.ID,
		ActorEntityID:           s.ActorEntityID,
		RecipientEntityID:       s.RecipientEntityID,
		Amount:                  domain.FormatAmount(s.Amount),
		Currency:                s.Currency,
		Comment:                 s.Comment,
		Participants:            participants,
		Performed:               s.Performed,
		PerformedTransactionIDs: nonNil(s.PerformedTransactionIDs),
		TagIDs:                  nonNil(s.TagIDs),
		CreatedAt:               s.CreatedAt,
		ModifiedAt:              s.ModifiedAt,
	}
}

// SplitsFromDomain converts domain splits to responses.
func SplitsFromDomain(splits []*domain.Split) []*SplitResponse {
	result := make([]*SplitResponse, len(splits))
	for i, s := range splits {
		result[i] = SplitFromDomain(s)
	}
	return result
}

// RatesResponse lists base-currency rates. Rates keep their full precision.
type RatesResponse struct {
	Base  string            `json:"base"`
	Rates map[string]string `json:"rates"`
}

// RatesFromDomain converts a rate table to response.
func RatesFromDomain(rates domain.Rates) *RatesResponse {
	out := make(map[string]string, len(rates))
	for currency, rate := range rates {
		out[currency] = rate.String()
	}
	return &RatesResponse{Base: domain.BaseCurrency, Rates: out}
}

// ExchangeQuoteResponse is a previewed conversion.
type ExchangeQuoteResponse struct {
	EntityID       string `json:"entity_id"`
	SourceCurrency string `json:"source_currency"`
	SourceAmount   string `json:"source_amount"`
	TargetCurrency string `json:"target_currency"`
	TargetAmount   string `json:"target_amount"`
	Rate           string `json:"rate"`
}

// QuoteFromDomain converts an exchange quote to response.
func QuoteFromDomain(q *domain.ExchangeQuote) *ExchangeQuoteResponse {
	return &ExchangeQuoteResponse{
		EntityID:       q.EntityID,
		SourceCurrency: q.SourceCurrency,
		SourceAmount:   domain.FormatAmount(q.SourceAmount),
		TargetCurrency: q.TargetCurrency,
		TargetAmount:   domain.FormatAmount(q.TargetAmount),
		Rate:           domain.FormatAmount(q.Rate),
	}
}

// ExchangeReceiptResponse is an executed conversion.
type ExchangeReceiptResponse struct {
	ExchangeQuoteResponse
	SourceTransactionID string `json:"source_transaction_id"`
	TargetTransactionID string `json:"target_transaction_id"`
}

// ReceiptFromDomain converts an exchange receipt to response.
func ReceiptFromDomain(r *domain.ExchangeReceipt) *ExchangeReceiptResponse {
	return &ExchangeReceiptResponse{
		ExchangeQuoteResponse: ExchangeQuoteResponse{
			EntityID:       r.EntityID,
			SourceCurrency: r.SourceCurrency,
			SourceAmount:   domain.FormatAmount(r.SourceAmount),
			TargetCurrency: r.TargetCurrency,
			TargetAmount:   domain.FormatAmount(r.TargetAmount),
			Rate:           domain.FormatAmount(r.Rate),
		},
		SourceTransactionID: r.SourceTransactionID,
		TargetTransactionID: r.TargetTransactionID,
	}
}

// ReceiptsFromDomain converts exchange receipts to responses.
func ReceiptsFromDomain(receipts []domain.ExchangeReceipt) []*ExchangeReceiptResponse {
	result := make([]*ExchangeReceiptResponse, len(receipts))
	for i := range receipts {
		result[i] = ReceiptFromDomain(&receipts[i])
	}
	return result
}

// ExchangeStepResponse is one planned auto-balance conversion.
type ExchangeStepResponse struct {
	SourceCurrency string `json:"source_currency"`
	SourceAmount   string `json:"source_amount"`
	TargetCurrency string `json:"target_currency"`
	TargetAmount   string `json:"target_amount"`
}

// EntityPlanResponse is the auto-balance plan for one entity.
type EntityPlanResponse struct {
	EntityID string                 `json:"entity_id"`
	Steps    []ExchangeStepResponse `json:"steps"`
}

// PlansFromDomain converts auto-balance plans to responses.
func PlansFromDomain(plans []usecase.EntityPlan) []*EntityPlanResponse {
	result := make([]*EntityPlanResponse, len(plans))
	for i, p := range plans {
		steps := make([]ExchangeStepResponse, len(p.Steps))
		for j, s := range p.Steps {
			steps[j] = ExchangeStepResponse{
				SourceCurrency: s.SourceCurrency,
				SourceAmount:   domain.FormatAmount(s.SourceAmount),
				TargetCurrency: s.TargetCurrency,
				TargetAmount:   domain.FormatAmount(s.TargetAmount),
			}
		}
		result[i] = &EntityPlanResponse{EntityID: p.EntityID, Steps: steps}
	}
	return result
}

// EntityRunResponse is the auto-balance outcome for one entity.
type EntityRunResponse struct {
	EntityID string                     `json:"entity_id"`
	Receipts []*ExchangeReceiptResponse `json:"receipts"`
}

// RunsFromDomain converts auto-balance runs to responses.
func RunsFromDomain(runs []usecase.EntityRun) []*EntityRunResponse {
	result := make([]*EntityRunResponse, len(runs))
	for i, r := range runs {
		result[i] = &EntityRunResponse{EntityID: r.EntityID, Receipts: ReceiptsFromDomain(r.Receipts)}
	}
	return result
}

// ConsistencyResponse is a ledger reconciliation report.
type ConsistencyResponse struct {
	Consistent         bool              `json:"consistent"`
	Totals             map[string]string `json:"totals"`
	TotalEntities      int               `json:"total_entities"`
	ReconciledEntities int               `json:"reconciled_entities"`
	Discrepancies      []string          `json:"discrepancies"`
	CheckedAt          time.Time         `json:"checked_at"`
}

// ConsistencyFromReport converts a reconciliation report to response.
func ConsistencyFromReport(r *usecase.ReconciliationReport) *ConsistencyResponse {
	discrepancies := make([]string, len(r.Discrepancies))
	for i, d := range r.Discrepancies {
		discrepancies[i] = d.EntityID
	}
	return &ConsistencyResponse{
		Consistent:         r.LedgerConsistent,
		Totals:             Amounts(r.Totals),
		TotalEntities:      r.TotalEntities,
		ReconciledEntities: r.ReconciledEntities,
		Discrepancies:      discrepancies,
		CheckedAt:          r.CheckedAt,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
