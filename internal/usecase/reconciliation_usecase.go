package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/refinance/ledger/internal/domain"
	"github.com/refinance/ledger/internal/infrastructure/metrics"
)

// ReconciliationUseCase handles balance reconciliation operations
type ReconciliationUseCase struct {
	entityRepo EntityRepository
	ledgerRepo LedgerRepository
	balances   *BalanceUseCase
	metrics    *metrics.Metrics
}

// NewReconciliationUseCase creates a new reconciliation use case
func NewReconciliationUseCase(
	entityRepo EntityRepository,
	ledgerRepo LedgerRepository,
	balances *BalanceUseCase,
	metrics *metrics.Metrics,
) *ReconciliationUseCase {
	return &ReconciliationUseCase{
		entityRepo: entityRepo,
		ledgerRepo: ledgerRepo,
		balances:   balances,
		metrics:    metrics,
	}
}

// ReconciliationResult compares an entity's cached balance with a fresh computation
type ReconciliationResult struct {
	EntityID     string
	Cached       *domain.Balance
	Calculated   *domain.Balance
	IsReconciled bool
	LastChecked  time.Time
}

// ReconcileEntity checks that the cached balance, when present, equals a fresh one
func (uc *ReconciliationUseCase) ReconcileEntity(ctx context.Context, entityID string) (*ReconciliationResult, error) {
	if _, err := uc.entityRepo.GetByID(ctx, entityID); err != nil {
		return nil, err
	}

	fresh, err := uc.balances.FreshBalances(ctx, nil, entityID)
	if err != nil {
		return nil, err
	}
	result := &ReconciliationResult{
		EntityID:     entityID,
		Calculated:   fresh,
		IsReconciled: true,
		LastChecked:  time.Now().UTC(),
	}

	if cached, ok := uc.balances.CachedBalances(ctx, entityID); ok {
		result.Cached = cached
		result.IsReconciled = sameAmounts(cached.Confirmed, fresh.Confirmed) && sameAmounts(cached.NonConfirmed, fresh.NonConfirmed)
	}
	return result, nil
}

// CheckLedgerConsistency verifies that confirmed balances close to zero in every currency
func (uc *ReconciliationUseCase) CheckLedgerConsistency(ctx context.Context) (map[string]decimal.Decimal, error) {
	totals, err := uc.ledgerRepo.ConfirmedTotals(ctx)
	if err != nil {
		return nil, err
	}

	var offending []string
	for currency, total := range totals {
		if !total.IsZero() {
			offending = append(offending, fmt.Sprintf("%s=%s", currency, total.String()))
		}
	}
	if uc.metrics != nil {
		consistent := 0.0
		if len(offending) == 0 {
			consistent = 1
		}
		uc.metrics.LedgerConsistent.Set(consistent)
	}
	if len(offending) > 0 {
		sort.Strings(offending)
		return totals, fmt.Errorf("%w: %s", domain.ErrLedgerInconsistent, strings.Join(offending, ", "))
	}
	return totals, nil
}

// ReconciliationReport represents a full reconciliation report
type ReconciliationReport struct {
	TotalEntities      int
	ReconciledEntities int
	Discrepancies      []*ReconciliationResult
	LedgerConsistent   bool
	Totals             map[string]decimal.Decimal
	CheckedAt          time.Time
}

// GenerateReconciliationReport generates a comprehensive reconciliation report
func (uc *ReconciliationUseCase) GenerateReconciliationReport(ctx context.Context) (*ReconciliationReport, error) {
	entities, err := uc.entityRepo.List(ctx)
	if err != nil {
		return nil, err
	}

	totals, ledgerErr := uc.CheckLedgerConsistency(ctx)
	if ledgerErr != nil && totals == nil {
		return nil, ledgerErr
	}

	report := &ReconciliationReport{
		TotalEntities:    len(entities),
		Discrepancies:    make([]*ReconciliationResult, 0),
		LedgerConsistent: ledgerErr == nil,
		Totals:           totals,
		CheckedAt:        time.Now().UTC(),
	}

	for _, entity := range entities {
		result, err := uc.ReconcileEntity(ctx, entity.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to reconcile entity %s: %w", entity.ID, err)
		}
		if result.IsReconciled {
			report.ReconciledEntities++
		} else {
			report.Discrepancies = append(report.Discrepancies, result)
		}
	}

	return report, nil
}

func sameAmounts(a, b map[string]decimal.Decimal) bool {
	for k, v := range a {
		if !v.Equal(b[k]) {
			return false
		}
	}
	for k, v := range b {
		if !v.Equal(a[k]) {
			return false
		}
	}
	return true
}
