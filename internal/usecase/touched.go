package usecase

import (
	"sort"

	"github.com/refinance/ledger/internal/domain"
)

// Touched collects the entity and treasury ids whose balances a unit of work changes.
type Touched struct {
	entities   map[string]struct{}
	treasuries map[string]struct{}
}

// NewTouched creates an empty set.
func NewTouched() *Touched {
	return &Touched{
		entities:   make(map[string]struct{}),
		treasuries: make(map[string]struct{}),
	}
}

// Add records every id the transaction affects.
func (t *Touched) Add(tx *domain.Transaction) {
	entityIDs, treasuryIDs := tx.Touches()
	for _, id := range entityIDs {
		t.entities[id] = struct{}{}
	}
	for _, id := range treasuryIDs {
		t.treasuries[id] = struct{}{}
	}
}

// EntityIDs returns the touched entity ids, sorted.
func (t *Touched) EntityIDs() []string {
	return sortedKeys(t.entities)
}

// TreasuryIDs returns the touched treasury ids, sorted.
func (t *Touched) TreasuryIDs() []string {
	return sortedKeys(t.treasuries)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
