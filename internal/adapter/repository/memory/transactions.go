package memory

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/refinance/ledger/internal/domain"
	"github.com/refinance/ledger/internal/usecase"
)

// TransactionRepository implements usecase.TransactionRepository.
type TransactionRepository struct {
	s *Store
}

// Create stores a new transaction.
func (r *TransactionRepository) Create(_ context.Context, tx usecase.Transaction, t *domain.Transaction) error {
	st, err := r.s.write(tx)
	if err != nil {
		return err
	}
	st.transactions[t.ID] = cloneTransaction(t)
	return nil
}

// GetByID retrieves a transaction by ID.
func (r *TransactionRepository) GetByID(_ context.Context, id string) (*domain.Transaction, error) {
	return r.get(nil, id)
}

// GetByIDForUpdate retrieves a transaction inside tx.
func (r *TransactionRepository) GetByIDForUpdate(_ context.Context, tx usecase.Transaction, id string) (*domain.Transaction, error) {
	return r.get(tx, id)
}

func (r *TransactionRepository) get(tx usecase.Transaction, id string) (*domain.Transaction, error) {
	st, release := r.s.read(tx)
	defer release()

	if t, ok := st.transactions[id]; ok {
		return cloneTransaction(t), nil
	}
	return nil, domain.ErrTransactionNotFound
}

// GetByInvoiceID returns the transaction attached to the invoice.
func (r *TransactionRepository) GetByInvoiceID(_ context.Context, tx usecase.Transaction, invoiceID string) (*domain.Transaction, error) {
	st, release := r.s.read(tx)
	defer release()

	for _, t := range st.transactions {
		if t.InvoiceID != nil && *t.InvoiceID == invoiceID {
			return cloneTransaction(t), nil
		}
	}
	return nil, domain.ErrTransactionNotFound
}

// Update replaces a stored transaction.
func (r *TransactionRepository) Update(_ context.Context, tx usecase.Transaction, t *domain.Transaction) error {
	st, err := r.s.write(tx)
	if err != nil {
		return err
	}
	if _, ok := st.transactions[t.ID]; !ok {
		return domain.ErrTransactionNotFound
	}
	st.transactions[t.ID] = cloneTransaction(t)
	return nil
}

// Delete removes a transaction.
func (r *TransactionRepository) Delete(_ context.Context, tx usecase.Transaction, id string) error {
	st, err := r.s.write(tx)
	if err != nil {
		return err
	}
	if _, ok := st.transactions[id]; !ok {
		return domain.ErrTransactionNotFound
	}
	delete(st.transactions, id)
	return nil
}

// List returns matching transactions, newest first.
func (r *TransactionRepository) List(_ context.Context, filter domain.TransactionFilter) ([]*domain.Transaction, error) {
	st, release := r.s.read(nil)
	defer release()

	var out []*domain.Transaction
	for _, t := range st.transactions {
		if !matchTransaction(t, filter) {
			continue
		}
		out = append(out, cloneTransaction(t))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return page(out, filter.Limit, filter.Offset), nil
}

func matchTransaction(t *domain.Transaction, f domain.TransactionFilter) bool {
	if f.EntityID != "" && t.FromEntityID != f.EntityID && t.ToEntityID != f.EntityID && t.ActorEntityID != f.EntityID {
		return false
	}
	if f.TreasuryID != "" && !strEq(t.FromTreasuryID, f.TreasuryID) && !strEq(t.ToTreasuryID, f.TreasuryID) {
		return false
	}
	if f.InvoiceID != "" && !strEq(t.InvoiceID, f.InvoiceID) {
		return false
	}
	if f.Currency != "" && t.Currency != f.Currency {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	return true
}

func strEq(p *string, v string) bool {
	return p != nil && *p == v
}

// CountByTreasury counts transactions referencing the treasury on either side.
func (r *TransactionRepository) CountByTreasury(_ context.Context, tx usecase.Transaction, treasuryID string) (int, error) {
	st, release := r.s.read(tx)
	defer release()

	n := 0
	for _, t := range st.transactions {
		if strEq(t.FromTreasuryID, treasuryID) || strEq(t.ToTreasuryID, treasuryID) {
			n++
		}
	}
	return n, nil
}

// SumByEntity aggregates the entity's transactions by currency and status.
func (r *TransactionRepository) SumByEntity(_ context.Context, tx usecase.Transaction, entityID string, asOf *time.Time) ([]domain.BalanceSum, error) {
	st, release := r.s.read(tx)
	defer release()

	return sum(st.transactions, func(t *domain.Transaction) decimal.Decimal {
		if asOf != nil && t.CreatedAt.After(*asOf) {
			return decimal.Zero
		}
		return signed(t, t.ToEntityID == entityID, t.FromEntityID == entityID)
	}), nil
}

// SumByTreasury aggregates the treasury's transactions by currency and status.
func (r *TransactionRepository) SumByTreasury(_ context.Context, tx usecase.Transaction, treasuryID string) ([]domain.BalanceSum, error) {
	st, release := r.s.read(tx)
	defer release()

	return sum(st.transactions, func(t *domain.Transaction) decimal.Decimal {
		return signed(t, strEq(t.ToTreasuryID, treasuryID), strEq(t.FromTreasuryID, treasuryID))
	}), nil
}

func signed(t *domain.Transaction, in, out bool) decimal.Decimal {
	v := decimal.Zero
	if in {
		v = v.Add(t.Amount)
	}
	if out {
		v = v.Sub(t.Amount)
	}
	return v
}

type sumKey struct {
	currency string
	status   domain.TransactionStatus
}

func sum(transactions map[string]*domain.Transaction, contribution func(*domain.Transaction) decimal.Decimal) []domain.BalanceSum {
	totals := make(map[sumKey]decimal.Decimal)
	touched := make(map[sumKey]bool)
	for _, t := range transactions {
		v := contribution(t)
		k := sumKey{currency: t.Currency, status: t.Status}
		if v.IsZero() && !touched[k] {
			continue
		}
		totals[k] = totals[k].Add(v)
		touched[k] = true
	}

	out := make([]domain.BalanceSum, 0, len(totals))
	for k, v := range totals {
		out = append(out, domain.BalanceSum{Currency: k.currency, Status: k.status, Amount: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Currency != out[j].Currency {
			return out[i].Currency < out[j].Currency
		}
		return out[i].Status < out[j].Status
	})
	return out
}

// LedgerRepository implements usecase.LedgerRepository.
type LedgerRepository struct {
	s *Store
}

// ConfirmedTotals sums every entity's confirmed balance per currency.
func (r *LedgerRepository) ConfirmedTotals(_ context.Context) (map[string]decimal.Decimal, error) {
	st, release := r.s.read(nil)
	defer release()

	perEntity := make(map[string]map[string]decimal.Decimal)
	credit := func(entityID, currency string, v decimal.Decimal) {
		if perEntity[entityID] == nil {
			perEntity[entityID] = make(map[string]decimal.Decimal)
		}
		perEntity[entityID][currency] = perEntity[entityID][currency].Add(v)
	}
	for _, t := range st.transactions {
		if !t.IsCompleted() {
			continue
		}
		credit(t.ToEntityID, t.Currency, t.Amount)
		credit(t.FromEntityID, t.Currency, t.Amount.Neg())
	}

	totals := make(map[string]decimal.Decimal)
	for _, balances := range perEntity {
		for currency, v := range balances {
			totals[currency] = totals[currency].Add(v)
		}
	}
	return totals, nil
}
