package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/refinance/ledger/internal/domain"
	"github.com/refinance/ledger/internal/infrastructure/metrics"
)

// TransactionUseCase orchestrates ledger transaction writes.
type TransactionUseCase struct {
	txManager    TransactionManager
	entityRepo   EntityRepository
	treasuryRepo TreasuryRepository
	tagRepo      TagRepository
	txRepo       TransactionRepository
	idGen        IDGenerator
	balances     *BalanceUseCase
	treasuries   *TreasuryUseCase
	reconciler   *InvoiceReconciler
	metrics      *metrics.Metrics
	logger       zerolog.Logger
}

// NewTransactionUseCase creates a new TransactionUseCase.
func NewTransactionUseCase(
	txManager TransactionManager,
	entityRepo EntityRepository,
	treasuryRepo TreasuryRepository,
	tagRepo TagRepository,
	txRepo TransactionRepository,
	idGen IDGenerator,
	balances *BalanceUseCase,
	treasuries *TreasuryUseCase,
	reconciler *InvoiceReconciler,
	metrics *metrics.Metrics,
	logger zerolog.Logger,
) *TransactionUseCase {
	return &TransactionUseCase{
		txManager:    txManager,
		entityRepo:   entityRepo,
		treasuryRepo: treasuryRepo,
		tagRepo:      tagRepo,
		txRepo:       txRepo,
		idGen:        idGen,
		balances:     balances,
		treasuries:   treasuries,
		reconciler:   reconciler,
		metrics:      metrics,
		logger:       logger.With().Str("component", "transaction").Logger(),
	}
}

// CreateTransactionInput represents input for creating a transaction.
type CreateTransactionInput struct {
	ActorEntityID  string
	FromEntityID   string
	ToEntityID     string
	Amount         decimal.Decimal
	Currency       string
	Status         domain.TransactionStatus
	FromTreasuryID *string
	ToTreasuryID   *string
	InvoiceID      *string
	Comment        string
	TagIDs         []string
}

// UpdateTransactionInput represents a partial update. Nil fields are left
// unchanged; an empty string clears an optional reference.
type UpdateTransactionInput struct {
	ID             string
	Amount         *decimal.Decimal
	Currency       *string
	Status         *domain.TransactionStatus
	FromTreasuryID *string
	ToTreasuryID   *string
	InvoiceID      *string
	Comment        *string
	TagIDs         []string
}

// CreateTransaction validates and records a transaction in one unit of work.
func (uc *TransactionUseCase) CreateTransaction(ctx context.Context, input CreateTransactionInput) (*domain.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	t, err := uc.createInTx(ctx, tx, input)
	if err != nil {
		observeError(uc.metrics, err)
		return nil, err
	}

	touched := NewTouched()
	touched.Add(t)
	if err := uc.balances.Commit(ctx, tx, touched); err != nil {
		return nil, err
	}
	observeTransaction(uc.metrics, t)
	return t, nil
}

// createInTx runs every creation check and writes the transaction inside tx.
func (uc *TransactionUseCase) createInTx(ctx context.Context, tx Transaction, input CreateTransactionInput) (*domain.Transaction, error) {
	t := &domain.Transaction{
		ID:             uc.idGen.Generate(),
		ActorEntityID:  input.ActorEntityID,
		FromEntityID:   input.FromEntityID,
		ToEntityID:     input.ToEntityID,
		Amount:         input.Amount,
		Currency:       input.Currency,
		Status:         input.Status,
		FromTreasuryID: nonEmpty(input.FromTreasuryID),
		ToTreasuryID:   nonEmpty(input.ToTreasuryID),
		InvoiceID:      nonEmpty(input.InvoiceID),
		Comment:        input.Comment,
		TagIDs:         input.TagIDs,
		CreatedAt:      time.Now().UTC(),
	}
	if t.Status == "" {
		t.Status = domain.TransactionStatusDraft
	}

	if err := uc.check(ctx, tx, t); err != nil {
		return nil, err
	}

	if err := uc.txRepo.Create(ctx, tx, t); err != nil {
		return nil, err
	}

	uc.logger.Debug().
		Str("transaction_id", t.ID).
		Str("from", t.FromEntityID).
		Str("to", t.ToEntityID).
		Str("amount", domain.FormatAmount(t.Amount)).
		Str("currency", t.Currency).
		Str("status", string(t.Status)).
		Msg("transaction created")
	return t, nil
}

// check validates t against the ledger state visible in tx.
func (uc *TransactionUseCase) check(ctx context.Context, tx Transaction, t *domain.Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}

	for _, id := range []string{t.FromEntityID, t.ToEntityID} {
		if _, err := uc.entityRepo.GetByID(ctx, id); err != nil {
			return err
		}
	}
	if t.ActorEntityID != "" {
		if _, err := uc.entityRepo.GetByID(ctx, t.ActorEntityID); err != nil {
			return err
		}
	}
	for _, id := range []*string{t.FromTreasuryID, t.ToTreasuryID} {
		if id == nil {
			continue
		}
		if _, err := uc.treasuryRepo.GetByID(ctx, *id); err != nil {
			return err
		}
	}
	for _, id := range t.TagIDs {
		if _, err := uc.tagRepo.GetByID(ctx, id); err != nil {
			return err
		}
	}

	if t.IsCompleted() && t.FromTreasuryID != nil {
		if err := uc.treasuries.guard(ctx, tx, *t.FromTreasuryID, t.Currency, t.Amount); err != nil {
			return err
		}
	}

	if t.InvoiceID != nil {
		return uc.reconciler.ValidateTransactionForInvoice(ctx, tx, *t.InvoiceID, domain.InvoicePayment{
			TransactionID: t.ID,
			FromEntityID:  t.FromEntityID,
			ToEntityID:    t.ToEntityID,
			Amount:        t.Amount,
			Currency:      t.Currency,
			Status:        t.Status,
		})
	}
	return nil
}

// GetTransaction retrieves a transaction by ID.
func (uc *TransactionUseCase) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	return uc.txRepo.GetByID(ctx, id)
}

// ListTransactions lists transactions matching filter.
func (uc *TransactionUseCase) ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]*domain.Transaction, error) {
	filter.Limit, filter.Offset = domain.ValidatePagination(filter.Limit, filter.Offset)
	return uc.txRepo.List(ctx, filter)
}

// UpdateTransaction edits a draft transaction.
func (uc *TransactionUseCase) UpdateTransaction(ctx context.Context, input UpdateTransactionInput) (*domain.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	t, err := uc.txRepo.GetByIDForUpdate(ctx, tx, input.ID)
	if err != nil {
		return nil, err
	}
	if t.IsCompleted() {
		return nil, domain.ErrCompletedTransactionNotEditable
	}

	touched := NewTouched()
	touched.Add(t)

	if input.InvoiceID != nil {
		next := nonEmpty(input.InvoiceID)
		if t.InvoiceID != nil && (next == nil || *next != *t.InvoiceID) {
			return nil, domain.ErrInvoiceTransactionReassignmentNotAllowed
		}
		t.InvoiceID = next
	}
	if input.Amount != nil {
		t.Amount = *input.Amount
	}
	if input.Currency != nil {
		t.Currency = *input.Currency
	}
	if input.Status != nil {
		t.Status = *input.Status
	}
	if input.FromTreasuryID != nil {
		t.FromTreasuryID = nonEmpty(input.FromTreasuryID)
	}
	if input.ToTreasuryID != nil {
		t.ToTreasuryID = nonEmpty(input.ToTreasuryID)
	}
	if input.Comment != nil {
		t.Comment = *input.Comment
	}
	if input.TagIDs != nil {
		t.TagIDs = input.TagIDs
	}

	if err := uc.check(ctx, tx, t); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	t.ModifiedAt = &now
	if err := uc.txRepo.Update(ctx, tx, t); err != nil {
		return nil, err
	}

	touched.Add(t)
	if err := uc.balances.Commit(ctx, tx, touched); err != nil {
		return nil, err
	}
	return t, nil
}

// DeleteTransaction removes a draft transaction.
func (uc *TransactionUseCase) DeleteTransaction(ctx context.Context, id string) error {
	tx, err := uc.txManager.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	t, err := uc.txRepo.GetByIDForUpdate(ctx, tx, id)
	if err != nil {
		return err
	}
	if t.IsCompleted() {
		return domain.ErrCompletedTransactionNotDeletable
	}
	if err := uc.txRepo.Delete(ctx, tx, id); err != nil {
		return err
	}

	touched := NewTouched()
	touched.Add(t)
	return uc.balances.Commit(ctx, tx, touched)
}

// AddTag attaches a tag to the transaction. Tags are metadata and may change
// on completed transactions.
func (uc *TransactionUseCase) AddTag(ctx context.Context, id, tagID string) (*domain.Transaction, error) {
	return uc.retag(ctx, id, tagID, domain.AddTag)
}

// RemoveTag detaches a tag from the transaction.
func (uc *TransactionUseCase) RemoveTag(ctx context.Context, id, tagID string) (*domain.Transaction, error) {
	return uc.retag(ctx, id, tagID, domain.RemoveTag)
}

func (uc *TransactionUseCase) retag(ctx context.Context, id, tagID string, op func(domain.Taggable, string) error) (*domain.Transaction, error) {
	if _, err := uc.tagRepo.GetByID(ctx, tagID); err != nil {
		return nil, err
	}

	tx, err := uc.txManager.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	t, err := uc.txRepo.GetByIDForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := op(t, tagID); err != nil {
		return nil, err
	}
	if err := uc.txRepo.Update(ctx, tx, t); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	v := *s
	return &v
}
