package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceStatus is the lifecycle state of an invoice.
type InvoiceStatus string

const (
	InvoiceStatusPending   InvoiceStatus = "pending"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

// InvoiceAmount is one accepted (currency, amount) pair.
type InvoiceAmount struct {
	Currency string
	Amount   decimal.Decimal
}

// Invoice requests payment from FromEntityID (payer) to ToEntityID (payee)
// in any one of the accepted Amounts.
type Invoice struct {
	ID            string
	ActorEntityID string
	FromEntityID  string
	ToEntityID    string
	Amounts       []InvoiceAmount
	BillingPeriod *time.Time
	Status        InvoiceStatus
	Comment       string
	TagIDs        []string
	CreatedAt     time.Time
	ModifiedAt    *time.Time
}

// IsPending reports whether the invoice still awaits payment.
func (i *Invoice) IsPending() bool {
	return i.Status == InvoiceStatusPending
}

// RequiredAmount returns the amount required when paying in currency.
func (i *Invoice) RequiredAmount(currency string) (decimal.Decimal, bool) {
	for _, a := range i.Amounts {
		if a.Currency == currency {
			return a.Amount, true
		}
	}
	return decimal.Zero, false
}

// NormalizeInvoiceAmounts lower-cases currencies, rejects duplicates and
// quantizes amounts to cents.
func NormalizeInvoiceAmounts(amounts []InvoiceAmount) ([]InvoiceAmount, error) {
	if len(amounts) == 0 {
		return nil, ErrInvoiceAmountsRequired
	}

	normalized := make([]InvoiceAmount, 0, len(amounts))
	seen := make(map[string]struct{}, len(amounts))
	for _, a := range amounts {
		if a.Currency == "" {
			return nil, ErrInvoiceCurrencyNotAllowed
		}
		currency, err := NormalizeCurrency(a.Currency)
		if err != nil {
			return nil, ErrInvoiceCurrencyNotAllowed
		}
		if _, dup := seen[currency]; dup {
			return nil, ErrInvoiceDuplicateCurrency
		}
		seen[currency] = struct{}{}

		amount := Quantize(a.Amount)
		if !amount.IsPositive() {
			return nil, ErrInvoiceAmountInvalid
		}
		normalized = append(normalized, InvoiceAmount{Currency: currency, Amount: amount})
	}
	return normalized, nil
}

// NormalizeBillingPeriod moves t to the first day of its month (UTC).
func NormalizeBillingPeriod(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// InvoicePayment describes a transaction being checked against an invoice.
// TransactionID is empty for transactions not yet persisted.
type InvoicePayment struct {
	TransactionID string
	FromEntityID  string
	ToEntityID    string
	Amount        decimal.Decimal
	Currency      string
	Status        TransactionStatus
}

// CheckPayment validates payment against the invoice. attachedTxID is the id of
// the transaction currently attached to the invoice, empty when none is.
// It reports whether the invoice should transition to paid.
func (i *Invoice) CheckPayment(p InvoicePayment, attachedTxID string) (bool, error) {
	if i.Status == InvoiceStatusCancelled {
		return false, ErrInvoiceCancelledNotPayable
	}
	foreign := attachedTxID != "" && attachedTxID != p.TransactionID
	if i.Status == InvoiceStatusPaid && (attachedTxID == "" || foreign) {
		return false, ErrInvoiceAlreadyPaid
	}
	if foreign {
		return false, ErrInvoiceTransactionAlreadyAttached
	}
	if i.FromEntityID != p.FromEntityID || i.ToEntityID != p.ToEntityID {
		return false, ErrInvoiceEntitiesMismatch
	}
	required, ok := i.RequiredAmount(p.Currency)
	if !ok {
		return false, ErrInvoiceCurrencyNotAllowed
	}
	if p.Amount.LessThan(required) {
		return false, ErrInvoiceAmountInsufficient
	}
	return p.Status == TransactionStatusCompleted && i.Status != InvoiceStatusPaid, nil
}

// SelectAutoPayCurrency picks, among the accepted currencies, the one whose
// confirmed balance covers the required amount, preferring the smallest such
// balance. Ties are broken by currency code.
func (i *Invoice) SelectAutoPayCurrency(confirmed map[string]decimal.Decimal) (InvoiceAmount, bool) {
	var (
		selected InvoiceAmount
		best     decimal.Decimal
		found    bool
	)
	for _, a := range i.Amounts {
		bal, ok := confirmed[a.Currency]
		if !ok || bal.LessThan(a.Amount) {
			continue
		}
		if !found || bal.LessThan(best) || (bal.Equal(best) && a.Currency < selected.Currency) {
			selected, best, found = a, bal, true
		}
	}
	return selected, found
}

// InvoiceFilter narrows invoice listings.
type InvoiceFilter struct {
	EntityID      string
	FromEntityID  string
	ToEntityID    string
	Status        InvoiceStatus
	BillingPeriod *time.Time
	TagID         string
	Limit         int
	Offset        int
}
