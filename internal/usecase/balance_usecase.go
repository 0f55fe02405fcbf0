package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/refinance/ledger/internal/domain"
)

// BalanceUseCase aggregates transactions into balances and owns the balance cache.
type BalanceUseCase struct {
	entityRepo   EntityRepository
	treasuryRepo TreasuryRepository
	txRepo       TransactionRepository
	cache        BalanceCache
	logger       zerolog.Logger
}

// NewBalanceUseCase creates a new BalanceUseCase.
func NewBalanceUseCase(
	entityRepo EntityRepository,
	treasuryRepo TreasuryRepository,
	txRepo TransactionRepository,
	cache BalanceCache,
	logger zerolog.Logger,
) *BalanceUseCase {
	return &BalanceUseCase{
		entityRepo:   entityRepo,
		treasuryRepo: treasuryRepo,
		txRepo:       txRepo,
		cache:        cache,
		logger:       logger.With().Str("component", "balance").Logger(),
	}
}

// GetBalances returns the entity's balances. Point-in-time queries bypass the cache.
func (uc *BalanceUseCase) GetBalances(ctx context.Context, entityID string, asOf *time.Time) (*domain.Balance, error) {
	if _, err := uc.entityRepo.GetByID(ctx, entityID); err != nil {
		return nil, err
	}

	if asOf != nil {
		sums, err := uc.txRepo.SumByEntity(ctx, nil, entityID, asOf)
		if err != nil {
			return nil, err
		}
		return domain.BalanceFromSums(sums), nil
	}

	return uc.cachedOrSum(ctx, EntityBalances, entityID, func() ([]domain.BalanceSum, error) {
		return uc.txRepo.SumByEntity(ctx, nil, entityID, nil)
	})
}

// GetTreasuryBalances returns the treasury's balances.
func (uc *BalanceUseCase) GetTreasuryBalances(ctx context.Context, treasuryID string) (*domain.Balance, error) {
	if _, err := uc.treasuryRepo.GetByID(ctx, treasuryID); err != nil {
		return nil, err
	}

	return uc.cachedOrSum(ctx, TreasuryBalances, treasuryID, func() ([]domain.BalanceSum, error) {
		return uc.txRepo.SumByTreasury(ctx, nil, treasuryID)
	})
}

// cachedOrSum serves id from the cache or sums it. The generation is read
// before summing; the result is cached only if no write invalidated id while
// the sum ran.
func (uc *BalanceUseCase) cachedOrSum(ctx context.Context, ns BalanceNamespace, id string, sum func() ([]domain.BalanceSum, error)) (*domain.Balance, error) {
	if cached, ok := uc.cached(ctx, ns, id); ok {
		return cached, nil
	}

	generation, genErr := uc.cache.Generation(ctx, ns, id)
	if genErr != nil {
		uc.logger.Warn().Err(genErr).Str("namespace", string(ns)).Str("id", id).Msg("balance cache generation read failed")
	}

	sums, err := sum()
	if err != nil {
		return nil, err
	}
	balance := domain.BalanceFromSums(sums)
	if genErr == nil {
		uc.store(ctx, ns, id, generation, balance)
	}
	return balance, nil
}

// FreshBalances computes the entity's balances without consulting the cache.
func (uc *BalanceUseCase) FreshBalances(ctx context.Context, tx Transaction, entityID string) (*domain.Balance, error) {
	sums, err := uc.txRepo.SumByEntity(ctx, tx, entityID, nil)
	if err != nil {
		return nil, err
	}
	return domain.BalanceFromSums(sums), nil
}

// CachedBalances returns the cached entity balances, if any.
func (uc *BalanceUseCase) CachedBalances(ctx context.Context, entityID string) (*domain.Balance, bool) {
	return uc.cached(ctx, EntityBalances, entityID)
}

// freshTreasuryBalances reads treasury balances inside a unit of work.
func (uc *BalanceUseCase) freshTreasuryBalances(ctx context.Context, tx Transaction, treasuryID string) (*domain.Balance, error) {
	sums, err := uc.txRepo.SumByTreasury(ctx, tx, treasuryID)
	if err != nil {
		return nil, err
	}
	return domain.BalanceFromSums(sums), nil
}

// InvalidateEntity drops cached balances for the given entities.
func (uc *BalanceUseCase) InvalidateEntity(ctx context.Context, ids ...string) error {
	if err := uc.cache.Invalidate(ctx, EntityBalances, ids...); err != nil {
		return fmt.Errorf("invalidate entity balances: %w", err)
	}
	return nil
}

// InvalidateTreasury drops cached balances for the given treasuries.
func (uc *BalanceUseCase) InvalidateTreasury(ctx context.Context, ids ...string) error {
	if err := uc.cache.Invalidate(ctx, TreasuryBalances, ids...); err != nil {
		return fmt.Errorf("invalidate treasury balances: %w", err)
	}
	return nil
}

func (uc *BalanceUseCase) invalidate(ctx context.Context, touched *Touched) error {
	if len(touched.entities) > 0 {
		if err := uc.InvalidateEntity(ctx, touched.EntityIDs()...); err != nil {
			return err
		}
	}
	if len(touched.treasuries) > 0 {
		if err := uc.InvalidateTreasury(ctx, touched.TreasuryIDs()...); err != nil {
			return err
		}
	}
	return nil
}

// Commit invalidates every touched balance, commits tx and invalidates again.
// The second pass bumps the generations once more, so a sum taken between the
// first pass and the commit is never cached. A failure of the second pass is
// only logged: the write is durable and the first pass already dropped the
// entries.
func (uc *BalanceUseCase) Commit(ctx context.Context, tx Transaction, touched *Touched) error {
	if err := uc.invalidate(ctx, touched); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	if err := uc.invalidate(ctx, touched); err != nil {
		uc.logger.Error().Err(err).
			Strs("entities", touched.EntityIDs()).
			Strs("treasuries", touched.TreasuryIDs()).
			Msg("post-commit balance invalidation failed")
	}
	return nil
}

func (uc *BalanceUseCase) cached(ctx context.Context, ns BalanceNamespace, id string) (*domain.Balance, bool) {
	balance, ok, err := uc.cache.Get(ctx, ns, id)
	if err != nil {
		uc.logger.Warn().Err(err).Str("namespace", string(ns)).Str("id", id).Msg("balance cache read failed")
		return nil, false
	}
	return balance, ok
}

func (uc *BalanceUseCase) store(ctx context.Context, ns BalanceNamespace, id string, generation uint64, balance *domain.Balance) {
	stored, err := uc.cache.Set(ctx, ns, id, generation, balance)
	if err != nil {
		uc.logger.Warn().Err(err).Str("namespace", string(ns)).Str("id", id).Msg("balance cache write failed")
		return
	}
	if !stored {
		uc.logger.Debug().Str("namespace", string(ns)).Str("id", id).Msg("balance changed while summing, not cached")
	}
}
