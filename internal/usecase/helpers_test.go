package usecase_test

import (
	"context"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/refinance/ledger/internal/adapter/repository/memory"
	"github.com/refinance/ledger/internal/domain"
	"github.com/refinance/ledger/internal/infrastructure/metrics"
	"github.com/refinance/ledger/internal/usecase"
	"github.com/refinance/ledger/internal/usecase/mocks"
)

const (
	f0       = memory.SystemEntityID
	clearing = memory.ExchangeEntityID
	alice    = "ent_alice"
	bob      = "ent_bob"
	carol    = "ent_carol"
	dave     = "ent_dave"
	cash     = "trs_cash"
)

var testRates = domain.Rates{
	"usd": decimal.RequireFromString("3.00"),
	"eur": decimal.RequireFromString("3.50"),
}

type rateFunc func(ctx context.Context) (domain.Rates, error)

func (f rateFunc) GetRates(ctx context.Context) (domain.Rates, error) { return f(ctx) }

func fixedRates(r domain.Rates) usecase.RateProvider {
	return rateFunc(func(context.Context) (domain.Rates, error) { return r, nil })
}

type testLedger struct {
	store          *memory.Store
	cache          usecase.BalanceCache
	balances       *usecase.BalanceUseCase
	treasuries     *usecase.TreasuryUseCase
	transactions   *usecase.TransactionUseCase
	invoices       *usecase.InvoiceUseCase
	splits         *usecase.SplitUseCase
	exchange       *usecase.ExchangeUseCase
	reconciliation *usecase.ReconciliationUseCase
	metrics        *metrics.Metrics
}

var testFees = usecase.FeeSchedule{
	Resident: []domain.InvoiceAmount{
		{Currency: "usd", Amount: decimal.NewFromInt(42)},
		{Currency: "gel", Amount: decimal.NewFromInt(115)},
	},
	Member: []domain.InvoiceAmount{
		{Currency: "usd", Amount: decimal.NewFromInt(25)},
		{Currency: "gel", Amount: decimal.NewFromInt(70)},
	},
}

// ledgerOption swaps a dependency of the test ledger.
type ledgerOption func(*ledgerDeps)

type ledgerDeps struct {
	txRepo usecase.TransactionRepository
	cache  usecase.BalanceCache
}

// withTransactionRepo wraps the store's transaction repository.
func withTransactionRepo(wrap func(usecase.TransactionRepository) usecase.TransactionRepository) ledgerOption {
	return func(d *ledgerDeps) { d.txRepo = wrap(d.txRepo) }
}

// withBalanceCache replaces the in-process balance cache.
func withBalanceCache(c usecase.BalanceCache) ledgerOption {
	return func(d *ledgerDeps) { d.cache = c }
}

// newTestLedger wires every use case over a seeded memory store with alice
// (resident), bob (member), carol (guest), dave (ex-resident) and a cash treasury.
func newTestLedger(t *testing.T, rates usecase.RateProvider, opts ...ledgerOption) *testLedger {
	t.Helper()

	store := memory.New()
	store.Seed()
	store.PutEntity(&domain.Entity{ID: alice, Name: "alice", Active: true, TagIDs: []string{memory.TagID(domain.TagResident)}})
	store.PutEntity(&domain.Entity{ID: bob, Name: "bob", Active: true, TagIDs: []string{memory.TagID(domain.TagMember)}})
	store.PutEntity(&domain.Entity{ID: carol, Name: "carol", Active: true, TagIDs: []string{memory.TagID(domain.TagGuest)}})
	store.PutEntity(&domain.Entity{ID: dave, Name: "dave", Active: true, TagIDs: []string{memory.TagID(domain.TagExResident)}})
	store.PutTreasury(&domain.Treasury{ID: cash, Name: "cash", Active: true})

	if rates == nil {
		rates = fixedRates(testRates)
	}

	deps := &ledgerDeps{txRepo: store.Transactions(), cache: memory.NewBalanceCache()}
	for _, opt := range opts {
		opt(deps)
	}

	logger := zerolog.Nop()
	idGen := mocks.NewMockIDGenerator()
	txRepo := deps.txRepo

	l := &testLedger{store: store, cache: deps.cache, metrics: metrics.New(prometheus.NewRegistry())}
	l.balances = usecase.NewBalanceUseCase(store.Entities(), store.Treasuries(), txRepo, deps.cache, logger)
	l.treasuries = usecase.NewTreasuryUseCase(store, store.Treasuries(), txRepo, l.balances, logger)
	reconciler := usecase.NewInvoiceReconciler(store.Invoices(), txRepo, logger)
	l.transactions = usecase.NewTransactionUseCase(store, store.Entities(), store.Treasuries(), store.Tags(),
		txRepo, idGen, l.balances, l.treasuries, reconciler, l.metrics, logger)
	l.invoices = usecase.NewInvoiceUseCase(store, store.Entities(), store.Tags(), store.Invoices(), idGen,
		reconciler, l.transactions, l.balances, testFees, f0, l.metrics, logger)
	l.splits = usecase.NewSplitUseCase(store, store.Entities(), store.Tags(), store.Splits(), idGen,
		l.transactions, l.balances, l.metrics, logger)
	l.exchange = usecase.NewExchangeUseCase(store, store.Entities(), store.Tags(), rates, l.transactions,
		l.balances, clearing, l.metrics, logger)
	l.reconciliation = usecase.NewReconciliationUseCase(store.Entities(), store.Ledger(), l.balances, l.metrics)
	return l
}

// failingCreates fails the nth Create (1-based) and every Create after it.
type failingCreates struct {
	usecase.TransactionRepository
	mu      sync.Mutex
	calls   int
	failAt  int
	failErr error
}

func (r *failingCreates) Create(ctx context.Context, tx usecase.Transaction, t *domain.Transaction) error {
	r.mu.Lock()
	r.calls++
	fail := r.failAt > 0 && r.calls >= r.failAt
	r.mu.Unlock()
	if fail {
		return r.failErr
	}
	return r.TransactionRepository.Create(ctx, tx, t)
}

// withFailingCreates routes every transaction write through f.
func withFailingCreates(f *failingCreates) ledgerOption {
	return withTransactionRepo(func(r usecase.TransactionRepository) usecase.TransactionRepository {
		f.TransactionRepository = r
		return f
	})
}

// arm makes the nth Create from now on fail; n <= 0 disarms.
func (r *failingCreates) arm(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n <= 0 {
		r.failAt = 0
		return
	}
	r.failAt = r.calls + n
}

// countTransactions returns how many transactions the store holds.
func (l *testLedger) countTransactions(t *testing.T) int {
	t.Helper()
	txs, err := l.store.Transactions().List(context.Background(), domain.TransactionFilter{Limit: 1000})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	return len(txs)
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func ptr[T any](v T) *T {
	return &v
}

// deposit credits entityID from the hackerspace with a completed transaction.
func (l *testLedger) deposit(t *testing.T, entityID, amount, currency string) *domain.Transaction {
	t.Helper()
	tx, err := l.transactions.CreateTransaction(context.Background(), usecase.CreateTransactionInput{
		ActorEntityID: f0,
		FromEntityID:  f0,
		ToEntityID:    entityID,
		Amount:        d(amount),
		Currency:      currency,
		Status:        domain.TransactionStatusCompleted,
	})
	if err != nil {
		t.Fatalf("deposit %s %s to %s: %v", amount, currency, entityID, err)
	}
	return tx
}

func (l *testLedger) confirmed(t *testing.T, entityID, currency string) decimal.Decimal {
	t.Helper()
	b, err := l.balances.GetBalances(context.Background(), entityID, nil)
	if err != nil {
		t.Fatalf("GetBalances(%s): %v", entityID, err)
	}
	return b.ConfirmedIn(currency)
}

// plantCached puts balance into the entity cache as if a reader had stored it.
func (l *testLedger) plantCached(t *testing.T, entityID string, balance *domain.Balance) {
	t.Helper()
	ctx := context.Background()
	gen, err := l.cache.Generation(ctx, usecase.EntityBalances, entityID)
	if err != nil {
		t.Fatalf("Generation failed: %v", err)
	}
	if stored, err := l.cache.Set(ctx, usecase.EntityBalances, entityID, gen, balance); err != nil || !stored {
		t.Fatalf("Set failed: stored=%v err=%v", stored, err)
	}
}

func assertAmount(t *testing.T, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(d(want)) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}
