package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/refinance/ledger/internal/domain"
)

// Repository methods taking a Transaction run inside that unit of work.
// A nil Transaction reads outside of any unit of work.

// EntityRepository defines data access for entities.
type EntityRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Entity, error)
	List(ctx context.Context) ([]*domain.Entity, error)
	ListByTagIDs(ctx context.Context, tagIDs []string) ([]*domain.Entity, error)
}

// TagRepository defines data access for tags.
type TagRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Tag, error)
	GetByName(ctx context.Context, name string) (*domain.Tag, error)
}

// TreasuryRepository defines data access for treasuries.
type TreasuryRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Treasury, error)
	GetByIDForUpdate(ctx context.Context, tx Transaction, id string) (*domain.Treasury, error)
	Delete(ctx context.Context, tx Transaction, id string) error
}

// TransactionRepository defines data access for ledger transactions.
type TransactionRepository interface {
	Create(ctx context.Context, tx Transaction, t *domain.Transaction) error
	GetByID(ctx context.Context, id string) (*domain.Transaction, error)
	GetByIDForUpdate(ctx context.Context, tx Transaction, id string) (*domain.Transaction, error)
	// GetByInvoiceID returns domain.ErrTransactionNotFound when no transaction is attached.
	GetByInvoiceID(ctx context.Context, tx Transaction, invoiceID string) (*domain.Transaction, error)
	Update(ctx context.Context, tx Transaction, t *domain.Transaction) error
	Delete(ctx context.Context, tx Transaction, id string) error
	List(ctx context.Context, filter domain.TransactionFilter) ([]*domain.Transaction, error)
	CountByTreasury(ctx context.Context, tx Transaction, treasuryID string) (int, error)
	SumByEntity(ctx context.Context, tx Transaction, entityID string, asOf *time.Time) ([]domain.BalanceSum, error)
	SumByTreasury(ctx context.Context, tx Transaction, treasuryID string) ([]domain.BalanceSum, error)
}

// InvoiceRepository defines data access for invoices.
type InvoiceRepository interface {
	Create(ctx context.Context, tx Transaction, inv *domain.Invoice) error
	GetByID(ctx context.Context, id string) (*domain.Invoice, error)
	GetByIDForUpdate(ctx context.Context, tx Transaction, id string) (*domain.Invoice, error)
	Update(ctx context.Context, tx Transaction, inv *domain.Invoice) error
	Delete(ctx context.Context, tx Transaction, id string) error
	List(ctx context.Context, filter domain.InvoiceFilter) ([]*domain.Invoice, error)
	// ListPending returns pending invoices oldest first.
	ListPending(ctx context.Context) ([]*domain.Invoice, error)
	ExistsForPeriod(ctx context.Context, tx Transaction, fromEntityID string, period time.Time, tagID string) (bool, error)
}

// SplitRepository defines data access for splits.
type SplitRepository interface {
	Create(ctx context.Context, tx Transaction, s *domain.Split) error
	GetByID(ctx context.Context, id string) (*domain.Split, error)
	GetByIDForUpdate(ctx context.Context, tx Transaction, id string) (*domain.Split, error)
	Update(ctx context.Context, tx Transaction, s *domain.Split) error
	Delete(ctx context.Context, tx Transaction, id string) error
	List(ctx context.Context, filter domain.SplitFilter) ([]*domain.Split, error)
}

// LedgerRepository defines data access for ledger-wide operations.
type LedgerRepository interface {
	// ConfirmedTotals sums every entity's confirmed balance per currency.
	ConfirmedTotals(ctx context.Context) (map[string]decimal.Decimal, error)
}

// Transaction represents a database transaction.
type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TransactionManager handles transaction lifecycle.
type TransactionManager interface {
	Begin(ctx context.Context) (Transaction, error)
}

// IDGenerator generates unique IDs.
type IDGenerator interface {
	Generate() string
}

// BalanceNamespace separates entity and treasury cache entries.
type BalanceNamespace string

const (
	EntityBalances   BalanceNamespace = "entity"
	TreasuryBalances BalanceNamespace = "treasury"
)

// BalanceCache stores computed balances. Only BalanceUseCase mutates it.
//
// Every id carries a generation that Invalidate bumps. A reader captures the
// generation before summing and Set stores the result only if no
// invalidation happened in between, so a sum taken before a commit can never
// outlive that commit's invalidation.
type BalanceCache interface {
	Get(ctx context.Context, ns BalanceNamespace, id string) (*domain.Balance, bool, error)
	// Generation returns the current generation of id; zero if never invalidated.
	Generation(ctx context.Context, ns BalanceNamespace, id string) (uint64, error)
	// Set stores balance if id is still at generation and reports whether it did.
	Set(ctx context.Context, ns BalanceNamespace, id string, generation uint64, balance *domain.Balance) (bool, error)
	// Invalidate drops the entries of ids and bumps their generations.
	Invalidate(ctx context.Context, ns BalanceNamespace, ids ...string) error
}

// RateProvider supplies the current exchange rate table.
type RateProvider interface {
	GetRates(ctx context.Context) (domain.Rates, error)
}

// ErrCacheMiss is returned by Cache.Get when the key is absent.
var ErrCacheMiss = errors.New("cache miss")

// Cache defines caching operations.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// IdempotencyPending is the placeholder stored while the first request for a
// key is still running.
const IdempotencyPending = "processing"

// IdempotencyStore handles idempotency key storage.
type IdempotencyStore interface {
	// CheckAndSet atomically checks if key exists, sets if not.
	// Returns (exists, existingValue, error).
	CheckAndSet(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error)
	// Update updates an existing key with the final response.
	Update(ctx context.Context, key string, response []byte, ttl time.Duration) error
}
