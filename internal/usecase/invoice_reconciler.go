package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/refinance/ledger/internal/domain"
)

// InvoiceReconciler checks transactions against the invoices they pay.
type InvoiceReconciler struct {
	invoiceRepo InvoiceRepository
	txRepo      TransactionRepository
	logger      zerolog.Logger
}

// NewInvoiceReconciler creates a new InvoiceReconciler.
func NewInvoiceReconciler(invoiceRepo InvoiceRepository, txRepo TransactionRepository, logger zerolog.Logger) *InvoiceReconciler {
	return &InvoiceReconciler{
		invoiceRepo: invoiceRepo,
		txRepo:      txRepo,
		logger:      logger.With().Str("component", "invoice_reconciler").Logger(),
	}
}

// ValidateTransactionForInvoice checks payment against the invoice and marks
// the invoice paid when a completed payment satisfies it.
func (r *InvoiceReconciler) ValidateTransactionForInvoice(ctx context.Context, tx Transaction, invoiceID string, payment domain.InvoicePayment) error {
	inv, err := r.invoiceRepo.GetByIDForUpdate(ctx, tx, invoiceID)
	if err != nil {
		return err
	}

	attachedID, err := r.attachedTransactionID(ctx, tx, invoiceID)
	if err != nil {
		return err
	}

	markPaid, err := inv.CheckPayment(payment, attachedID)
	if err != nil {
		return err
	}
	if !markPaid {
		return nil
	}

	now := time.Now().UTC()
	inv.Status = domain.InvoiceStatusPaid
	inv.ModifiedAt = &now
	if err := r.invoiceRepo.Update(ctx, tx, inv); err != nil {
		return err
	}

	r.logger.Info().
		Str("invoice_id", inv.ID).
		Str("transaction_id", payment.TransactionID).
		Str("currency", payment.Currency).
		Str("amount", domain.FormatAmount(payment.Amount)).
		Msg("invoice paid")
	return nil
}

func (r *InvoiceReconciler) attachedTransactionID(ctx context.Context, tx Transaction, invoiceID string) (string, error) {
	attached, err := r.txRepo.GetByInvoiceID(ctx, tx, invoiceID)
	if errors.Is(err, domain.ErrTransactionNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return attached.ID, nil
}

// editable fails unless the invoice is pending with no transaction attached.
func (r *InvoiceReconciler) editable(ctx context.Context, tx Transaction, inv *domain.Invoice) error {
	if !inv.IsPending() {
		return domain.ErrInvoiceNotEditable
	}
	attachedID, err := r.attachedTransactionID(ctx, tx, inv.ID)
	if err != nil {
		return err
	}
	if attachedID != "" {
		return domain.ErrInvoiceNotEditable
	}
	return nil
}
