package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/refinance/ledger/internal/domain"
	"github.com/refinance/ledger/internal/infrastructure/metrics"
)

// ExchangeUseCase plans and executes currency conversions through the clearing entity.
type ExchangeUseCase struct {
	txManager        TransactionManager
	entityRepo       EntityRepository
	tagRepo          TagRepository
	rates            RateProvider
	transactions     *TransactionUseCase
	balances         *BalanceUseCase
	clearingEntityID string
	metrics          *metrics.Metrics
	logger           zerolog.Logger
}

// NewExchangeUseCase creates a new ExchangeUseCase.
func NewExchangeUseCase(
	txManager TransactionManager,
	entityRepo EntityRepository,
	tagRepo TagRepository,
	rates RateProvider,
	transactions *TransactionUseCase,
	balances *BalanceUseCase,
	clearingEntityID string,
	metrics *metrics.Metrics,
	logger zerolog.Logger,
) *ExchangeUseCase {
	return &ExchangeUseCase{
		txManager:        txManager,
		entityRepo:       entityRepo,
		tagRepo:          tagRepo,
		rates:            rates,
		transactions:     transactions,
		balances:         balances,
		clearingEntityID: clearingEntityID,
		metrics:          metrics,
		logger:           logger.With().Str("component", "exchange").Logger(),
	}
}

// ExchangeRequest is a manual conversion. Exactly one amount must be set.
type ExchangeRequest struct {
	EntityID       string
	SourceCurrency string
	TargetCurrency string
	SourceAmount   *decimal.Decimal
	TargetAmount   *decimal.Decimal
}

// EntityPlan is the auto-balance plan for one entity.
type EntityPlan struct {
	EntityID string
	Steps    []domain.ExchangeStep
}

// EntityRun is the auto-balance outcome for one entity.
type EntityRun struct {
	EntityID string
	Receipts []domain.ExchangeReceipt
}

// Rates returns the current rate table.
func (uc *ExchangeUseCase) Rates(ctx context.Context) (domain.Rates, error) {
	rates, err := uc.rates.GetRates(ctx)
	if err != nil {
		if domain.KindOf(err) == domain.KindExternalDependencyFailure {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrRateProviderUnavailable, err)
	}
	return rates, nil
}

// Preview quotes a manual conversion without touching the ledger.
func (uc *ExchangeUseCase) Preview(ctx context.Context, req ExchangeRequest) (*domain.ExchangeQuote, error) {
	req, err := normalizeRequest(req)
	if err != nil {
		return nil, err
	}
	rates, err := uc.Rates(ctx)
	if err != nil {
		return nil, err
	}
	quote, err := domain.QuoteExchange(rates, req.SourceCurrency, req.TargetCurrency, req.SourceAmount, req.TargetAmount)
	if err != nil {
		return nil, err
	}
	quote.EntityID = req.EntityID
	return &quote, nil
}

// Exchange executes a manual conversion for the entity.
func (uc *ExchangeUseCase) Exchange(ctx context.Context, req ExchangeRequest, actorEntityID string) (*domain.ExchangeReceipt, error) {
	if _, err := uc.entityRepo.GetByID(ctx, req.EntityID); err != nil {
		return nil, err
	}
	quote, err := uc.Preview(ctx, req)
	if err != nil {
		return nil, err
	}
	exchangeTag, err := uc.tagRepo.GetByName(ctx, domain.TagExchange)
	if err != nil {
		return nil, err
	}

	receipt, err := uc.execute(ctx, req.EntityID, actorEntityID, domain.ExchangeStep{
		SourceCurrency: quote.SourceCurrency,
		SourceAmount:   quote.SourceAmount,
		TargetCurrency: quote.TargetCurrency,
		TargetAmount:   quote.TargetAmount,
	}, []string{exchangeTag.ID})
	if err != nil {
		if uc.metrics != nil {
			uc.metrics.ExchangeErrors.Inc()
		}
		return nil, err
	}
	receipt.Rate = quote.Rate
	observeExchange(uc.metrics, ExchangeModeManual, *receipt)
	return receipt, nil
}

// RunForEntity covers the entity's negative confirmed balances from its
// positive ones. Each step commits its two transactions together.
func (uc *ExchangeUseCase) RunForEntity(ctx context.Context, entityID, actorEntityID string) ([]domain.ExchangeReceipt, error) {
	rates, err := uc.Rates(ctx)
	if err != nil {
		return nil, err
	}
	tagIDs, err := uc.autoTagIDs(ctx)
	if err != nil {
		return nil, err
	}
	return uc.runForEntity(ctx, entityID, actorEntityID, rates, tagIDs)
}

func (uc *ExchangeUseCase) runForEntity(ctx context.Context, entityID, actorEntityID string, rates domain.Rates, tagIDs []string) ([]domain.ExchangeReceipt, error) {
	steps, err := uc.plan(ctx, entityID, rates)
	if err != nil {
		return nil, err
	}

	receipts := make([]domain.ExchangeReceipt, 0, len(steps))
	for _, step := range steps {
		receipt, err := uc.execute(ctx, entityID, actorEntityID, step, tagIDs)
		if err != nil {
			if uc.metrics != nil {
				uc.metrics.ExchangeErrors.Inc()
			}
			return receipts, err
		}
		if r, err := rates.DisplayRate(step.SourceCurrency, step.TargetCurrency); err == nil {
			receipt.Rate = r
		}
		receipts = append(receipts, *receipt)
	}

	observeExchange(uc.metrics, ExchangeModeAuto, receipts...)
	if len(receipts) > 0 {
		uc.logger.Info().Str("entity_id", entityID).Int("steps", len(receipts)).Msg("auto-balance executed")
	}
	return receipts, nil
}

// RunForAll auto-balances every eligible entity that carries a debt.
func (uc *ExchangeUseCase) RunForAll(ctx context.Context, actorEntityID string) ([]EntityRun, error) {
	rates, err := uc.Rates(ctx)
	if err != nil {
		return nil, err
	}
	tagIDs, err := uc.autoTagIDs(ctx)
	if err != nil {
		return nil, err
	}
	entities, err := uc.eligibleEntities(ctx)
	if err != nil {
		return nil, err
	}

	var (
		runs []EntityRun
		errs []error
	)
	for _, entity := range entities {
		if err := ctx.Err(); err != nil {
			return runs, err
		}
		receipts, err := uc.runForEntity(ctx, entity.ID, actorEntityID, rates, tagIDs)
		if err != nil {
			uc.logger.Warn().Err(err).Str("entity_id", entity.ID).Msg("auto-balance failed")
			errs = append(errs, fmt.Errorf("entity %s: %w", entity.ID, err))
		}
		if len(receipts) > 0 {
			runs = append(runs, EntityRun{EntityID: entity.ID, Receipts: receipts})
		}
	}
	return runs, errors.Join(errs...)
}

// PreviewForAll plans auto-balance for every eligible entity without executing.
func (uc *ExchangeUseCase) PreviewForAll(ctx context.Context) ([]EntityPlan, error) {
	rates, err := uc.Rates(ctx)
	if err != nil {
		return nil, err
	}
	entities, err := uc.eligibleEntities(ctx)
	if err != nil {
		return nil, err
	}

	var plans []EntityPlan
	for _, entity := range entities {
		steps, err := uc.plan(ctx, entity.ID, rates)
		if err != nil {
			return nil, err
		}
		if len(steps) > 0 {
			plans = append(plans, EntityPlan{EntityID: entity.ID, Steps: steps})
		}
	}
	return plans, nil
}

func (uc *ExchangeUseCase) plan(ctx context.Context, entityID string, rates domain.Rates) ([]domain.ExchangeStep, error) {
	balance, err := uc.balances.GetBalances(ctx, entityID, nil)
	if err != nil {
		return nil, err
	}
	if !balance.HasDebt() {
		return nil, nil
	}
	return domain.PlanExchanges(balance.Confirmed, rates), nil
}

// execute writes both legs of one conversion in a single unit of work.
func (uc *ExchangeUseCase) execute(ctx context.Context, entityID, actorEntityID string, step domain.ExchangeStep, tagIDs []string) (*domain.ExchangeReceipt, error) {
	tx, err := uc.txManager.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	comment := fmt.Sprintf("exchange %s %s -> %s %s",
		domain.FormatAmount(step.SourceAmount), step.SourceCurrency,
		domain.FormatAmount(step.TargetAmount), step.TargetCurrency)

	debit, err := uc.transactions.createInTx(ctx, tx, CreateTransactionInput{
		ActorEntityID: actorEntityID,
		FromEntityID:  entityID,
		ToEntityID:    uc.clearingEntityID,
		Amount:        step.SourceAmount,
		Currency:      step.SourceCurrency,
		Status:        domain.TransactionStatusCompleted,
		Comment:       comment,
		TagIDs:        tagIDs,
	})
	if err != nil {
		return nil, err
	}
	credit, err := uc.transactions.createInTx(ctx, tx, CreateTransactionInput{
		ActorEntityID: actorEntityID,
		FromEntityID:  uc.clearingEntityID,
		ToEntityID:    entityID,
		Amount:        step.TargetAmount,
		Currency:      step.TargetCurrency,
		Status:        domain.TransactionStatusCompleted,
		Comment:       comment,
		TagIDs:        tagIDs,
	})
	if err != nil {
		return nil, err
	}

	touched := NewTouched()
	touched.Add(debit)
	touched.Add(credit)
	if err := uc.balances.Commit(ctx, tx, touched); err != nil {
		return nil, err
	}

	return &domain.ExchangeReceipt{
		EntityID:            entityID,
		SourceCurrency:      step.SourceCurrency,
		SourceAmount:        step.SourceAmount,
		TargetCurrency:      step.TargetCurrency,
		TargetAmount:        step.TargetAmount,
		SourceTransactionID: debit.ID,
		TargetTransactionID: credit.ID,
	}, nil
}

func (uc *ExchangeUseCase) autoTagIDs(ctx context.Context) ([]string, error) {
	ids := make([]string, 0, 2)
	for _, name := range []string{domain.TagExchange, domain.TagAutomatic} {
		tag, err := uc.tagRepo.GetByName(ctx, name)
		if err != nil {
			return nil, err
		}
		ids = append(ids, tag.ID)
	}
	return ids, nil
}

// eligibleEntities lists active entities tagged for auto-balance, excluding
// the clearing entity.
func (uc *ExchangeUseCase) eligibleEntities(ctx context.Context) ([]*domain.Entity, error) {
	tagIDs := make([]string, 0, len(domain.AutoExchangeTags))
	for _, name := range domain.AutoExchangeTags {
		tag, err := uc.tagRepo.GetByName(ctx, name)
		if err != nil {
			return nil, err
		}
		tagIDs = append(tagIDs, tag.ID)
	}
	entities, err := uc.entityRepo.ListByTagIDs(ctx, tagIDs)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(entities))
	out := make([]*domain.Entity, 0, len(entities))
	for _, e := range entities {
		if e.ID == uc.clearingEntityID || !e.Active {
			continue
		}
		if _, dup := seen[e.ID]; dup {
			continue
		}
		seen[e.ID] = struct{}{}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func normalizeRequest(req ExchangeRequest) (ExchangeRequest, error) {
	var err error
	if req.SourceCurrency, err = domain.NormalizeCurrency(req.SourceCurrency); err != nil {
		return req, err
	}
	if req.TargetCurrency, err = domain.NormalizeCurrency(req.TargetCurrency); err != nil {
		return req, err
	}
	return req, nil
}
