package domain

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Balance holds per-currency signed sums for an entity or treasury.
// Confirmed covers completed transactions, NonConfirmed covers drafts.
type Balance struct {
	Confirmed    map[string]decimal.Decimal
	NonConfirmed map[string]decimal.Decimal
}

// NewBalance returns an empty balance.
func NewBalance() *Balance {
	return &Balance{
		Confirmed:    map[string]decimal.Decimal{},
		NonConfirmed: map[string]decimal.Decimal{},
	}
}

// BalanceSum is one aggregated (currency, status) bucket.
type BalanceSum struct {
	Currency string
	Status   TransactionStatus
	Amount   decimal.Decimal
}

// BalanceFromSums folds aggregated rows into a Balance.
func BalanceFromSums(sums []BalanceSum) *Balance {
	b := NewBalance()
	for _, s := range sums {
		bucket := b.NonConfirmed
		if s.Status == TransactionStatusCompleted {
			bucket = b.Confirmed
		}
		bucket[s.Currency] = bucket[s.Currency].Add(s.Amount)
	}
	return b
}

// ConfirmedIn returns the confirmed balance in currency, zero if absent.
func (b *Balance) ConfirmedIn(currency string) decimal.Decimal {
	if v, ok := b.Confirmed[currency]; ok {
		return v
	}
	return decimal.Zero
}

// HasDebt reports whether any confirmed currency is negative.
func (b *Balance) HasDebt() bool {
	for _, v := range b.Confirmed {
		if v.IsNegative() {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (b *Balance) Clone() *Balance {
	c := NewBalance()
	for k, v := range b.Confirmed {
		c.Confirmed[k] = v
	}
	for k, v := range b.NonConfirmed {
		c.NonConfirmed[k] = v
	}
	return c
}

// Currencies returns the sorted union of currencies present in either bucket.
func (b *Balance) Currencies() []string {
	seen := map[string]struct{}{}
	for k := range b.Confirmed {
		seen[k] = struct{}{}
	}
	for k := range b.NonConfirmed {
		seen[k] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
