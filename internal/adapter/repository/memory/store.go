// Package memory is an in-process ledger store. Units of work run one at a
// time against a private copy of the state that replaces the committed state
// on Commit. Reads outside a unit of work see committed state only.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/refinance/ledger/internal/domain"
	"github.com/refinance/ledger/internal/usecase"
)

// ErrNoUnitOfWork is returned by writes issued without a transaction.
var ErrNoUnitOfWork = errors.New("memory: write outside unit of work")

// ErrTxClosed is returned when committing a finished transaction.
var ErrTxClosed = errors.New("memory: transaction already closed")

type state struct {
	entities     map[string]*domain.Entity
	tags         map[string]*domain.Tag
	treasuries   map[string]*domain.Treasury
	transactions map[string]*domain.Transaction
	invoices     map[string]*domain.Invoice
	splits       map[string]*domain.Split
}

func newState() *state {
	return &state{
		entities:     make(map[string]*domain.Entity),
		tags:         make(map[string]*domain.Tag),
		treasuries:   make(map[string]*domain.Treasury),
		transactions: make(map[string]*domain.Transaction),
		invoices:     make(map[string]*domain.Invoice),
		splits:       make(map[string]*domain.Split),
	}
}

// clone copies the maps. Stored records are never mutated in place, so the
// pointers can be shared.
func (s *state) clone() *state {
	return &state{
		entities:     copyMap(s.entities),
		tags:         copyMap(s.tags),
		treasuries:   copyMap(s.treasuries),
		transactions: copyMap(s.transactions),
		invoices:     copyMap(s.invoices),
		splits:       copyMap(s.splits),
	}
}

func copyMap[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Store holds every ledger record in memory.
type Store struct {
	mu        sync.RWMutex
	committed *state
	sem       chan struct{}
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		committed: newState(),
		sem:       make(chan struct{}, 1),
	}
}

// Begin starts a unit of work, waiting for any running one to finish.
func (s *Store) Begin(ctx context.Context) (usecase.Transaction, error) {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	s.mu.RLock()
	working := s.committed.clone()
	s.mu.RUnlock()

	return &Tx{store: s, working: working}, nil
}

// Tx is a unit of work against a Store.
type Tx struct {
	store   *Store
	working *state
	done    bool
}

// Commit publishes the working state.
func (t *Tx) Commit(_ context.Context) error {
	if t.done {
		return ErrTxClosed
	}
	t.store.mu.Lock()
	t.store.committed = t.working
	t.store.mu.Unlock()
	t.finish()
	return nil
}

// Rollback discards the working state. It is a no-op after Commit.
func (t *Tx) Rollback(_ context.Context) error {
	if t.done {
		return nil
	}
	t.finish()
	return nil
}

func (t *Tx) finish() {
	t.done = true
	t.working = nil
	<-t.store.sem
}

// read returns the state visible to tx and a release func.
func (s *Store) read(tx usecase.Transaction) (*state, func()) {
	if t, ok := tx.(*Tx); ok && t != nil && !t.done {
		return t.working, func() {}
	}
	s.mu.RLock()
	return s.committed, s.mu.RUnlock
}

// write returns the working state of tx.
func (s *Store) write(tx usecase.Transaction) (*state, error) {
	t, ok := tx.(*Tx)
	if !ok || t == nil || t.done || t.store != s {
		return nil, ErrNoUnitOfWork
	}
	return t.working, nil
}

// TxManager returns s as a usecase.TransactionManager.
func (s *Store) TxManager() usecase.TransactionManager { return s }

// Entities returns the entity repository view.
func (s *Store) Entities() *EntityRepository { return &EntityRepository{s: s} }

// Tags returns the tag repository view.
func (s *Store) Tags() *TagRepository { return &TagRepository{s: s} }

// Treasuries returns the treasury repository view.
func (s *Store) Treasuries() *TreasuryRepository { return &TreasuryRepository{s: s} }

// Transactions returns the transaction repository view.
func (s *Store) Transactions() *TransactionRepository { return &TransactionRepository{s: s} }

// Invoices returns the invoice repository view.
func (s *Store) Invoices() *InvoiceRepository { return &InvoiceRepository{s: s} }

// Splits returns the split repository view.
func (s *Store) Splits() *SplitRepository { return &SplitRepository{s: s} }

// Ledger returns the ledger-wide repository view.
func (s *Store) Ledger() *LedgerRepository { return &LedgerRepository{s: s} }
