package usecase

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/refinance/ledger/internal/domain"
)

// TreasuryUseCase guards treasuries against overdraft and manages their lifecycle.
type TreasuryUseCase struct {
	txManager    TransactionManager
	treasuryRepo TreasuryRepository
	txRepo       TransactionRepository
	balances     *BalanceUseCase
	logger       zerolog.Logger
}

// NewTreasuryUseCase creates a new TreasuryUseCase.
func NewTreasuryUseCase(
	txManager TransactionManager,
	treasuryRepo TreasuryRepository,
	txRepo TransactionRepository,
	balances *BalanceUseCase,
	logger zerolog.Logger,
) *TreasuryUseCase {
	return &TreasuryUseCase{
		txManager:    txManager,
		treasuryRepo: treasuryRepo,
		txRepo:       txRepo,
		balances:     balances,
		logger:       logger.With().Str("component", "treasury").Logger(),
	}
}

// TreasuryWithBalances is a treasury together with its current balances.
type TreasuryWithBalances struct {
	Treasury *domain.Treasury
	Balances *domain.Balance
}

// GetTreasury returns the treasury and its balances.
func (uc *TreasuryUseCase) GetTreasury(ctx context.Context, id string) (*TreasuryWithBalances, error) {
	treasury, err := uc.treasuryRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	balances, err := uc.balances.GetTreasuryBalances(ctx, id)
	if err != nil {
		return nil, err
	}
	return &TreasuryWithBalances{Treasury: treasury, Balances: balances}, nil
}

// WouldOverdraft reports whether drawing amount of currency from the treasury
// would leave its confirmed balance negative.
func (uc *TreasuryUseCase) WouldOverdraft(ctx context.Context, treasuryID, currency string, amount decimal.Decimal) (bool, error) {
	balances, err := uc.balances.GetTreasuryBalances(ctx, treasuryID)
	if err != nil {
		return false, err
	}
	return wouldOverdraft(balances, currency, amount), nil
}

// guard locks the treasury row and checks the draw against a fresh balance.
func (uc *TreasuryUseCase) guard(ctx context.Context, tx Transaction, treasuryID, currency string, amount decimal.Decimal) error {
	if _, err := uc.treasuryRepo.GetByIDForUpdate(ctx, tx, treasuryID); err != nil {
		return err
	}
	balances, err := uc.balances.freshTreasuryBalances(ctx, tx, treasuryID)
	if err != nil {
		return err
	}
	if wouldOverdraft(balances, currency, amount) {
		uc.logger.Info().
			Str("treasury_id", treasuryID).
			Str("currency", currency).
			Str("amount", amount.String()).
			Msg("rejected treasury overdraft")
		return domain.ErrTransactionWillOverdraftTreasury
	}
	return nil
}

// CheckTransaction reports whether completing the transaction would overdraft
// its source treasury. Completed transactions and transactions without a
// source treasury never do.
func (uc *TreasuryUseCase) CheckTransaction(ctx context.Context, transactionID string) (bool, error) {
	t, err := uc.txRepo.GetByID(ctx, transactionID)
	if err != nil {
		return false, err
	}
	if t.FromTreasuryID == nil || t.IsCompleted() {
		return false, nil
	}
	return uc.WouldOverdraft(ctx, *t.FromTreasuryID, t.Currency, t.Amount)
}

// DeleteTreasury removes a treasury that no transaction references.
func (uc *TreasuryUseCase) DeleteTreasury(ctx context.Context, id string) error {
	tx, err := uc.txManager.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := uc.treasuryRepo.GetByIDForUpdate(ctx, tx, id); err != nil {
		return err
	}
	count, err := uc.txRepo.CountByTreasury(ctx, tx, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return domain.ErrTreasuryInUse
	}
	if err := uc.treasuryRepo.Delete(ctx, tx, id); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	return uc.balances.InvalidateTreasury(ctx, id)
}

func wouldOverdraft(balances *domain.Balance, currency string, amount decimal.Decimal) bool {
	return balances.ConfirmedIn(currency).Sub(amount).IsNegative()
}
