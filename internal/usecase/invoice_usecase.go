package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/refinance/ledger/internal/domain"
	"github.com/refinance/ledger/internal/infrastructure/metrics"
)

// FeeSchedule lists the monthly fee amounts per membership tier.
type FeeSchedule struct {
	Resident []domain.InvoiceAmount
	Member   []domain.InvoiceAmount
}

// InvoiceUseCase handles the invoice lifecycle and automatic payment.
type InvoiceUseCase struct {
	txManager    TransactionManager
	entityRepo   EntityRepository
	tagRepo      TagRepository
	invoiceRepo  InvoiceRepository
	idGen        IDGenerator
	reconciler   *InvoiceReconciler
	transactions *TransactionUseCase
	balances     *BalanceUseCase
	fees         FeeSchedule
	feePayeeID   string
	metrics      *metrics.Metrics
	logger       zerolog.Logger
}

// NewInvoiceUseCase creates a new InvoiceUseCase. feePayeeID receives monthly fees.
func NewInvoiceUseCase(
	txManager TransactionManager,
	entityRepo EntityRepository,
	tagRepo TagRepository,
	invoiceRepo InvoiceRepository,
	idGen IDGenerator,
	reconciler *InvoiceReconciler,
	transactions *TransactionUseCase,
	balances *BalanceUseCase,
	fees FeeSchedule,
	feePayeeID string,
	metrics *metrics.Metrics,
	logger zerolog.Logger,
) *InvoiceUseCase {
	return &InvoiceUseCase{
		txManager:    txManager,
		entityRepo:   entityRepo,
		tagRepo:      tagRepo,
		invoiceRepo:  invoiceRepo,
		idGen:        idGen,
		reconciler:   reconciler,
		transactions: transactions,
		balances:     balances,
		fees:         fees,
		feePayeeID:   feePayeeID,
		metrics:      metrics,
		logger:       logger.With().Str("component", "invoice").Logger(),
	}
}

// CreateInvoiceInput represents input for creating an invoice.
type CreateInvoiceInput struct {
	ActorEntityID string
	FromEntityID  string
	ToEntityID    string
	Amounts       []domain.InvoiceAmount
	BillingPeriod *time.Time
	Comment       string
	TagIDs        []string
}

// UpdateInvoiceInput represents a partial invoice update.
type UpdateInvoiceInput struct {
	ID            string
	Amounts       []domain.InvoiceAmount
	BillingPeriod *time.Time
	Comment       *string
	TagIDs        []string
}

// ValidateTransactionForInvoice checks a payment against an invoice inside tx.
func (uc *InvoiceUseCase) ValidateTransactionForInvoice(ctx context.Context, tx Transaction, invoiceID string, payment domain.InvoicePayment) error {
	return uc.reconciler.ValidateTransactionForInvoice(ctx, tx, invoiceID, payment)
}

// CreateInvoice records a pending invoice and tries to pay it right away.
func (uc *InvoiceUseCase) CreateInvoice(ctx context.Context, input CreateInvoiceInput) (*domain.Invoice, error) {
	amounts, err := domain.NormalizeInvoiceAmounts(input.Amounts)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateComment(input.Comment); err != nil {
		return nil, err
	}
	if input.FromEntityID == input.ToEntityID {
		return nil, domain.ErrSameEntity
	}
	for _, id := range []string{input.FromEntityID, input.ToEntityID} {
		if _, err := uc.entityRepo.GetByID(ctx, id); err != nil {
			return nil, err
		}
	}
	for _, id := range input.TagIDs {
		if _, err := uc.tagRepo.GetByID(ctx, id); err != nil {
			return nil, err
		}
	}

	inv := &domain.Invoice{
		ID:            uc.idGen.Generate(),
		ActorEntityID: input.ActorEntityID,
		FromEntityID:  input.FromEntityID,
		ToEntityID:    input.ToEntityID,
		Amounts:       amounts,
		Status:        domain.InvoiceStatusPending,
		Comment:       input.Comment,
		TagIDs:        input.TagIDs,
		CreatedAt:     time.Now().UTC(),
	}
	if input.BillingPeriod != nil {
		period := domain.NormalizeBillingPeriod(*input.BillingPeriod)
		inv.BillingPeriod = &period
	}

	tx, err := uc.txManager.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := uc.invoiceRepo.Create(ctx, tx, inv); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	if _, err := uc.tryAutoPay(ctx, inv.ID); err != nil {
		uc.logger.Warn().Err(err).Str("invoice_id", inv.ID).Msg("auto-pay on create failed")
	}
	return uc.invoiceRepo.GetByID(ctx, inv.ID)
}

// GetInvoice retrieves an invoice by ID.
func (uc *InvoiceUseCase) GetInvoice(ctx context.Context, id string) (*domain.Invoice, error) {
	return uc.invoiceRepo.GetByID(ctx, id)
}

// ListInvoices lists invoices matching filter.
func (uc *InvoiceUseCase) ListInvoices(ctx context.Context, filter domain.InvoiceFilter) ([]*domain.Invoice, error) {
	filter.Limit, filter.Offset = domain.ValidatePagination(filter.Limit, filter.Offset)
	return uc.invoiceRepo.List(ctx, filter)
}

// UpdateInvoice edits a pending, unattached invoice.
func (uc *InvoiceUseCase) UpdateInvoice(ctx context.Context, input UpdateInvoiceInput) (*domain.Invoice, error) {
	return uc.mutate(ctx, input.ID, func(inv *domain.Invoice) error {
		if input.Amounts != nil {
			amounts, err := domain.NormalizeInvoiceAmounts(input.Amounts)
			if err != nil {
				return err
			}
			inv.Amounts = amounts
		}
		if input.BillingPeriod != nil {
			period := domain.NormalizeBillingPeriod(*input.BillingPeriod)
			inv.BillingPeriod = &period
		}
		if input.Comment != nil {
			if err := domain.ValidateComment(*input.Comment); err != nil {
				return err
			}
			inv.Comment = *input.Comment
		}
		if input.TagIDs != nil {
			for _, id := range input.TagIDs {
				if _, err := uc.tagRepo.GetByID(ctx, id); err != nil {
					return err
				}
			}
			inv.TagIDs = input.TagIDs
		}
		return nil
	})
}

// CancelInvoice moves a pending, unattached invoice to cancelled.
func (uc *InvoiceUseCase) CancelInvoice(ctx context.Context, id string) (*domain.Invoice, error) {
	return uc.mutate(ctx, id, func(inv *domain.Invoice) error {
		inv.Status = domain.InvoiceStatusCancelled
		return nil
	})
}

func (uc *InvoiceUseCase) mutate(ctx context.Context, id string, apply func(*domain.Invoice) error) (*domain.Invoice, error) {
	tx, err := uc.txManager.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	inv, err := uc.invoiceRepo.GetByIDForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := uc.reconciler.editable(ctx, tx, inv); err != nil {
		return nil, err
	}
	if err := apply(inv); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	inv.ModifiedAt = &now
	if err := uc.invoiceRepo.Update(ctx, tx, inv); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return inv, nil
}

// DeleteInvoice removes a pending, unattached invoice.
func (uc *InvoiceUseCase) DeleteInvoice(ctx context.Context, id string) error {
	tx, err := uc.txManager.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	inv, err := uc.invoiceRepo.GetByIDForUpdate(ctx, tx, id)
	if err != nil {
		return err
	}
	if err := uc.reconciler.editable(ctx, tx, inv); err != nil {
		return err
	}
	if err := uc.invoiceRepo.Delete(ctx, tx, id); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// AddTag attaches a tag to the invoice.
func (uc *InvoiceUseCase) AddTag(ctx context.Context, id, tagID string) (*domain.Invoice, error) {
	return uc.retag(ctx, id, tagID, domain.AddTag)
}

// RemoveTag detaches a tag from the invoice.
func (uc *InvoiceUseCase) RemoveTag(ctx context.Context, id, tagID string) (*domain.Invoice, error) {
	return uc.retag(ctx, id, tagID, domain.RemoveTag)
}

func (uc *InvoiceUseCase) retag(ctx context.Context, id, tagID string, op func(domain.Taggable, string) error) (*domain.Invoice, error) {
	if _, err := uc.tagRepo.GetByID(ctx, tagID); err != nil {
		return nil, err
	}

	tx, err := uc.txManager.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	inv, err := uc.invoiceRepo.GetByIDForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := op(inv, tagID); err != nil {
		return nil, err
	}
	if err := uc.invoiceRepo.Update(ctx, tx, inv); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return inv, nil
}

// AutoPayOldestInvoices pays pending invoices, oldest first, from the payer's
// confirmed balance. Each payment is its own unit of work, so balances are
// re-read before every invoice. It returns the number of invoices paid.
func (uc *InvoiceUseCase) AutoPayOldestInvoices(ctx context.Context) (int, error) {
	pending, err := uc.invoiceRepo.ListPending(ctx)
	if err != nil {
		return 0, err
	}

	paid := 0
	var errs []error
	for _, inv := range pending {
		if err := ctx.Err(); err != nil {
			return paid, err
		}
		ok, err := uc.tryAutoPay(ctx, inv.ID)
		if err != nil {
			uc.logger.Warn().Err(err).Str("invoice_id", inv.ID).Msg("auto-pay failed")
			errs = append(errs, fmt.Errorf("invoice %s: %w", inv.ID, err))
			continue
		}
		if ok {
			paid++
			if uc.metrics != nil {
				uc.metrics.InvoicesPaid.WithLabelValues(PaymentModeAuto).Inc()
			}
		}
	}

	uc.logger.Info().Int("pending", len(pending)).Int("paid", paid).Msg("invoice auto-pay finished")
	return paid, errors.Join(errs...)
}

// tryAutoPay pays one invoice if its payer can afford it.
func (uc *InvoiceUseCase) tryAutoPay(ctx context.Context, invoiceID string) (bool, error) {
	inv, err := uc.invoiceRepo.GetByID(ctx, invoiceID)
	if err != nil {
		return false, err
	}
	if !inv.IsPending() {
		return false, nil
	}

	tx, err := uc.txManager.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	attachedID, err := uc.reconciler.attachedTransactionID(ctx, tx, inv.ID)
	if err != nil {
		return false, err
	}
	if attachedID != "" {
		return false, nil
	}

	balance, err := uc.balances.FreshBalances(ctx, tx, inv.FromEntityID)
	if err != nil {
		return false, err
	}
	choice, ok := inv.SelectAutoPayCurrency(balance.Confirmed)
	if !ok {
		uc.logger.Debug().Str("invoice_id", inv.ID).Msg("payer cannot cover invoice")
		return false, nil
	}

	invoiceID = inv.ID
	t, err := uc.transactions.createInTx(ctx, tx, CreateTransactionInput{
		ActorEntityID: inv.ActorEntityID,
		FromEntityID:  inv.FromEntityID,
		ToEntityID:    inv.ToEntityID,
		Amount:        choice.Amount,
		Currency:      choice.Currency,
		Status:        domain.TransactionStatusCompleted,
		InvoiceID:     &invoiceID,
		Comment:       inv.Comment,
	})
	if err != nil {
		return false, err
	}

	touched := NewTouched()
	touched.Add(t)
	if err := uc.balances.Commit(ctx, tx, touched); err != nil {
		return false, err
	}

	uc.logger.Info().
		Str("invoice_id", inv.ID).
		Str("transaction_id", t.ID).
		Str("currency", choice.Currency).
		Str("amount", domain.FormatAmount(choice.Amount)).
		Msg("invoice auto-paid")
	return true, nil
}

// FeeInvoiceReport summarises a fee issuance run.
type FeeInvoiceReport struct {
	BillingPeriod time.Time
	CreatedCount  int
	SkippedCount  int
	InvoiceIDs    []string
}

// IssueFeeInvoices bills every active resident and member for the period,
// skipping those already billed. A nil period means the current month.
func (uc *InvoiceUseCase) IssueFeeInvoices(ctx context.Context, billingPeriod *time.Time, actorEntityID string) (*FeeInvoiceReport, error) {
	period := domain.NormalizeBillingPeriod(time.Now().UTC())
	if billingPeriod != nil {
		period = domain.NormalizeBillingPeriod(*billingPeriod)
	}
	if actorEntityID == "" {
		actorEntityID = uc.feePayeeID
	}

	residentTag, err := uc.tagRepo.GetByName(ctx, domain.TagResident)
	if err != nil {
		return nil, err
	}
	memberTag, err := uc.tagRepo.GetByName(ctx, domain.TagMember)
	if err != nil {
		return nil, err
	}
	feeTag, err := uc.tagRepo.GetByName(ctx, domain.TagFee)
	if err != nil {
		return nil, err
	}

	targets, err := uc.entityRepo.ListByTagIDs(ctx, []string{residentTag.ID, memberTag.ID})
	if err != nil {
		return nil, err
	}

	report := &FeeInvoiceReport{BillingPeriod: period}
	for _, entity := range targets {
		if !entity.Active || entity.ID == uc.feePayeeID {
			report.SkippedCount++
			continue
		}
		exists, err := uc.invoiceRepo.ExistsForPeriod(ctx, nil, entity.ID, period, feeTag.ID)
		if err != nil {
			return report, err
		}
		if exists {
			report.SkippedCount++
			continue
		}

		amounts := uc.fees.Member
		if hasTag(entity, residentTag.ID) {
			amounts = uc.fees.Resident
		}

		inv, err := uc.CreateInvoice(ctx, CreateInvoiceInput{
			ActorEntityID: actorEntityID,
			FromEntityID:  entity.ID,
			ToEntityID:    uc.feePayeeID,
			Amounts:       amounts,
			BillingPeriod: &period,
			Comment:       fmt.Sprintf("Monthly fee %04d-%02d", period.Year(), int(period.Month())),
			TagIDs:        []string{feeTag.ID},
		})
		if err != nil {
			return report, fmt.Errorf("issue fee invoice for %s: %w", entity.ID, err)
		}
		report.InvoiceIDs = append(report.InvoiceIDs, inv.ID)
		report.CreatedCount++
	}

	if uc.metrics != nil {
		uc.metrics.InvoicesIssued.Add(float64(report.CreatedCount))
	}
	uc.logger.Info().
		Time("billing_period", period).
		Int("created", report.CreatedCount).
		Int("skipped", report.SkippedCount).
		Msg("fee invoices issued")
	return report, nil
}

func hasTag(e *domain.Entity, tagID string) bool {
	for _, id := range e.TagIDs {
		if id == tagID {
			return true
		}
	}
	return false
}
