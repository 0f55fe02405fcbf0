package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/refinance/ledger/internal/domain"
	"github.com/refinance/ledger/internal/infrastructure/metrics"
)

// SplitUseCase handles splits and turns them into ledger transactions.
type SplitUseCase struct {
	txManager    TransactionManager
	entityRepo   EntityRepository
	tagRepo      TagRepository
	splitRepo    SplitRepository
	idGen        IDGenerator
	transactions *TransactionUseCase
	balances     *BalanceUseCase
	metrics      *metrics.Metrics
	logger       zerolog.Logger
}

// NewSplitUseCase creates a new SplitUseCase.
func NewSplitUseCase(
	txManager TransactionManager,
	entityRepo EntityRepository,
	tagRepo TagRepository,
	splitRepo SplitRepository,
	idGen IDGenerator,
	transactions *TransactionUseCase,
	balances *BalanceUseCase,
	metrics *metrics.Metrics,
	logger zerolog.Logger,
) *SplitUseCase {
	return &SplitUseCase{
		txManager:    txManager,
		entityRepo:   entityRepo,
		tagRepo:      tagRepo,
		splitRepo:    splitRepo,
		idGen:        idGen,
		transactions: transactions,
		balances:     balances,
		metrics:      metrics,
		logger:       logger.With().Str("component", "split").Logger(),
	}
}

// CreateSplitInput represents input for creating a split.
type CreateSplitInput struct {
	ActorEntityID     string
	RecipientEntityID string
	Amount            decimal.Decimal
	Currency          string
	Comment           string
	TagIDs            []string
}

// UpdateSplitInput represents a partial split update.
type UpdateSplitInput struct {
	ID                string
	RecipientEntityID *string
	Amount            *decimal.Decimal
	Currency          *string
	Comment           *string
	TagIDs            []string
}

// AddParticipantInput adds either one entity or every entity carrying a tag.
type AddParticipantInput struct {
	SplitID     string
	EntityID    string
	EntityTagID string
	FixedAmount *decimal.Decimal
}

// CreateSplit records a new, unperformed split.
func (uc *SplitUseCase) CreateSplit(ctx context.Context, input CreateSplitInput) (*domain.Split, error) {
	s := &domain.Split{
		ID:                uc.idGen.Generate(),
		ActorEntityID:     input.ActorEntityID,
		RecipientEntityID: input.RecipientEntityID,
		Amount:            input.Amount,
		Currency:          input.Currency,
		Comment:           input.Comment,
		TagIDs:            input.TagIDs,
		CreatedAt:         time.Now().UTC(),
	}
	if err := uc.validate(ctx, s); err != nil {
		return nil, err
	}

	tx, err := uc.txManager.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := uc.splitRepo.Create(ctx, tx, s); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (uc *SplitUseCase) validate(ctx context.Context, s *domain.Split) error {
	if err := domain.ValidateAmount(s.Amount); err != nil {
		return err
	}
	currency, err := domain.NormalizeCurrency(s.Currency)
	if err != nil {
		return err
	}
	s.Currency = currency
	if err := domain.ValidateComment(s.Comment); err != nil {
		return err
	}
	if _, err := uc.entityRepo.GetByID(ctx, s.RecipientEntityID); err != nil {
		return err
	}
	for _, id := range s.TagIDs {
		if _, err := uc.tagRepo.GetByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// GetSplit retrieves a split by ID.
func (uc *SplitUseCase) GetSplit(ctx context.Context, id string) (*domain.Split, error) {
	return uc.splitRepo.GetByID(ctx, id)
}

// ListSplits lists splits matching filter.
func (uc *SplitUseCase) ListSplits(ctx context.Context, filter domain.SplitFilter) ([]*domain.Split, error) {
	filter.Limit, filter.Offset = domain.ValidatePagination(filter.Limit, filter.Offset)
	return uc.splitRepo.List(ctx, filter)
}

// UpdateSplit edits an unperformed split.
func (uc *SplitUseCase) UpdateSplit(ctx context.Context, input UpdateSplitInput) (*domain.Split, error) {
	return uc.mutate(ctx, input.ID, domain.ErrPerformedSplitNotEditable, func(s *domain.Split) error {
		if input.RecipientEntityID != nil {
			s.RecipientEntityID = *input.RecipientEntityID
		}
		if input.Amount != nil {
			s.Amount = *input.Amount
		}
		if input.Currency != nil {
			s.Currency = *input.Currency
		}
		if input.Comment != nil {
			s.Comment = *input.Comment
		}
		if input.TagIDs != nil {
			s.TagIDs = input.TagIDs
		}
		return uc.validate(ctx, s)
	})
}

// DeleteSplit removes an unperformed split.
func (uc *SplitUseCase) DeleteSplit(ctx context.Context, id string) error {
	tx, err := uc.txManager.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	s, err := uc.splitRepo.GetByIDForUpdate(ctx, tx, id)
	if err != nil {
		return err
	}
	if s.Performed {
		return domain.ErrPerformedSplitNotDeletable
	}
	if err := uc.splitRepo.Delete(ctx, tx, id); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// AddParticipant adds an entity, or every entity carrying a tag, to the split.
// Entities already participating are skipped.
func (uc *SplitUseCase) AddParticipant(ctx context.Context, input AddParticipantInput) (*domain.Split, error) {
	if (input.EntityID == "") == (input.EntityTagID == "") {
		return nil, domain.ErrEitherEntityOrTagRequired
	}
	var fixed *decimal.Decimal
	if input.FixedAmount != nil {
		v := domain.Quantize(*input.FixedAmount)
		if v.IsNegative() {
			return nil, domain.ErrInvalidAmount
		}
		fixed = &v
	}

	var candidates []string
	if input.EntityTagID != "" {
		if _, err := uc.tagRepo.GetByID(ctx, input.EntityTagID); err != nil {
			return nil, err
		}
		entities, err := uc.entityRepo.ListByTagIDs(ctx, []string{input.EntityTagID})
		if err != nil {
			return nil, err
		}
		for _, e := range entities {
			candidates = append(candidates, e.ID)
		}
	} else {
		if _, err := uc.entityRepo.GetByID(ctx, input.EntityID); err != nil {
			return nil, err
		}
		candidates = []string{input.EntityID}
	}

	return uc.mutate(ctx, input.SplitID, domain.ErrPerformedSplitParticipantsNotEditable, func(s *domain.Split) error {
		for _, id := range candidates {
			if s.HasParticipant(id) {
				continue
			}
			s.Participants = append(s.Participants, domain.SplitParticipant{EntityID: id, FixedAmount: fixed})
		}
		return nil
	})
}

// RemoveParticipant drops an entity from the split.
func (uc *SplitUseCase) RemoveParticipant(ctx context.Context, splitID, entityID string) (*domain.Split, error) {
	return uc.mutate(ctx, splitID, domain.ErrPerformedSplitParticipantsNotEditable, func(s *domain.Split) error {
		for i, p := range s.Participants {
			if p.EntityID == entityID {
				s.Participants = append(s.Participants[:i:i], s.Participants[i+1:]...)
				return nil
			}
		}
		return domain.ErrSplitParticipantAlreadyRemoved
	})
}

// AddTag attaches a tag to the split.
func (uc *SplitUseCase) AddTag(ctx context.Context, id, tagID string) (*domain.Split, error) {
	if _, err := uc.tagRepo.GetByID(ctx, tagID); err != nil {
		return nil, err
	}
	return uc.mutate(ctx, id, nil, func(s *domain.Split) error {
		return domain.AddTag(s, tagID)
	})
}

// RemoveTag detaches a tag from the split.
func (uc *SplitUseCase) RemoveTag(ctx context.Context, id, tagID string) (*domain.Split, error) {
	return uc.mutate(ctx, id, nil, func(s *domain.Split) error {
		return domain.RemoveTag(s, tagID)
	})
}

// mutate applies fn to the locked split; performedErr, when set, rejects performed splits.
func (uc *SplitUseCase) mutate(ctx context.Context, id string, performedErr error, fn func(*domain.Split) error) (*domain.Split, error) {
	tx, err := uc.txManager.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	s, err := uc.splitRepo.GetByIDForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if s.Performed && performedErr != nil {
		return nil, performedErr
	}
	if err := fn(s); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	s.ModifiedAt = &now
	if err := uc.splitRepo.Update(ctx, tx, s); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// PerformSplit charges every participant their share with a completed
// transaction to the recipient. All transactions commit together.
func (uc *SplitUseCase) PerformSplit(ctx context.Context, id, actorEntityID string) (*domain.Split, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	s, err := uc.splitRepo.GetByIDForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if s.Performed {
		return nil, domain.ErrPerformedSplitNotEditable
	}

	shares, err := s.Shares()
	if err != nil {
		return nil, err
	}

	touched := NewTouched()
	var txIDs []string
	for _, p := range s.Participants {
		share := shares[p.EntityID]
		if !share.IsPositive() || p.EntityID == s.RecipientEntityID {
			continue
		}
		t, err := uc.transactions.createInTx(ctx, tx, CreateTransactionInput{
			ActorEntityID: actorEntityID,
			FromEntityID:  p.EntityID,
			ToEntityID:    s.RecipientEntityID,
			Amount:        share,
			Currency:      s.Currency,
			Status:        domain.TransactionStatusCompleted,
			Comment:       fmt.Sprintf("%s (split #%s)", s.Comment, s.ID),
		})
		if err != nil {
			return nil, fmt.Errorf("split %s participant %s: %w", s.ID, p.EntityID, err)
		}
		touched.Add(t)
		txIDs = append(txIDs, t.ID)
	}

	now := time.Now().UTC()
	s.Performed = true
	s.PerformedTransactionIDs = txIDs
	s.ActorEntityID = actorEntityID
	s.ModifiedAt = &now
	if err := uc.splitRepo.Update(ctx, tx, s); err != nil {
		return nil, err
	}

	if err := uc.balances.Commit(ctx, tx, touched); err != nil {
		return nil, err
	}
	if uc.metrics != nil {
		uc.metrics.SplitsPerformed.Inc()
	}

	uc.logger.Info().
		Str("split_id", s.ID).
		Int("transactions", len(txIDs)).
		Strs("participants", participantIDs(s)).
		Msg("split performed")
	return s, nil
}

func participantIDs(s *domain.Split) []string {
	ids := make([]string, 0, len(s.Participants))
	for _, p := range s.Participants {
		ids = append(ids, p.EntityID)
	}
	sort.Strings(ids)
	return ids
}
