package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionStatus is the lifecycle state of a transaction.
type TransactionStatus string

const (
	TransactionStatusDraft     TransactionStatus = "draft"
	TransactionStatusCompleted TransactionStatus = "completed"
)

// ParseTransactionStatus validates a status string.
func ParseTransactionStatus(s string) (TransactionStatus, error) {
	switch TransactionStatus(s) {
	case TransactionStatusDraft, TransactionStatusCompleted:
		return TransactionStatus(s), nil
	case "":
		return TransactionStatusDraft, nil
	default:
		return "", ErrInvalidStatus
	}
}

// Transaction moves Amount of Currency from one entity to another.
// Completed transactions are immutable and cannot be deleted.
type Transaction struct {
	ID             string
	ActorEntityID  string
	FromEntityID   string
	ToEntityID     string
	Amount         decimal.Decimal
	Currency       string
	Status         TransactionStatus
	FromTreasuryID *string
	ToTreasuryID   *string
	InvoiceID      *string
	Comment        string
	TagIDs         []string
	CreatedAt      time.Time
	ModifiedAt     *time.Time
}

// IsCompleted reports whether the transaction affects confirmed balances.
func (t *Transaction) IsCompleted() bool {
	return t.Status == TransactionStatusCompleted
}

// Validate normalizes the currency and checks the transaction invariants.
func (t *Transaction) Validate() error {
	if t.FromEntityID == t.ToEntityID {
		return ErrSameEntity
	}

	if err := ValidateAmount(t.Amount); err != nil {
		return err
	}

	currency, err := NormalizeCurrency(t.Currency)
	if err != nil {
		return err
	}
	t.Currency = currency

	if _, err := ParseTransactionStatus(string(t.Status)); err != nil {
		return err
	}

	return ValidateComment(t.Comment)
}

// Touches reports the entity and treasury ids whose balances this transaction affects.
func (t *Transaction) Touches() (entityIDs, treasuryIDs []string) {
	entityIDs = []string{t.FromEntityID, t.ToEntityID}
	if t.FromTreasuryID != nil {
		treasuryIDs = append(treasuryIDs, *t.FromTreasuryID)
	}
	if t.ToTreasuryID != nil {
		treasuryIDs = append(treasuryIDs, *t.ToTreasuryID)
	}
	return entityIDs, treasuryIDs
}

// TransactionFilter narrows transaction listings.
type TransactionFilter struct {
	EntityID   string
	TreasuryID string
	InvoiceID  string
	Currency   string
	Status     TransactionStatus
	Limit      int
	Offset     int
}
