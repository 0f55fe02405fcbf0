package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/refinance/ledger/internal/domain"
	"github.com/refinance/ledger/internal/usecase"
)

const invoiceColumns = `id, actor_entity_id, from_entity_id, to_entity_id, amounts, billing_period,
	status, comment, tag_ids, created_at, modified_at`

// invoiceAmountRow is the JSONB element of invoices.amounts.
type invoiceAmountRow struct {
	Currency string          `json:"currency"`
	Amount   decimal.Decimal `json:"amount"`
}

// InvoiceRepository implements usecase.InvoiceRepository.
type InvoiceRepository struct {
	db querier
}

// NewInvoiceRepository creates a new InvoiceRepository.
func NewInvoiceRepository(pool *pgxpool.Pool) *InvoiceRepository {
	return &InvoiceRepository{db: pool}
}

// Create inserts an invoice.
func (r *InvoiceRepository) Create(ctx context.Context, tx usecase.Transaction, inv *domain.Invoice) error {
	amounts, err := encodeAmounts(inv.Amounts)
	if err != nil {
		return err
	}
	_, err = on(r.db, tx).Exec(ctx, `
		INSERT INTO invoices (`+invoiceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		inv.ID, inv.ActorEntityID, inv.FromEntityID, inv.ToEntityID, amounts, optionalDate(inv.BillingPeriod),
		string(inv.Status), inv.Comment, tagIDs(inv.TagIDs), timeToPgTimestamptz(inv.CreatedAt), optionalTime(inv.ModifiedAt),
	)
	return err
}

// GetByID retrieves an invoice by ID.
func (r *InvoiceRepository) GetByID(ctx context.Context, id string) (*domain.Invoice, error) {
	return scanInvoice(r.db.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id))
}

// GetByIDForUpdate retrieves an invoice by ID with a FOR UPDATE lock.
func (r *InvoiceRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.Invoice, error) {
	return scanInvoice(on(r.db, tx).QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 FOR UPDATE`, id))
}

// Update overwrites the mutable columns of an invoice.
func (r *InvoiceRepository) Update(ctx context.Context, tx usecase.Transaction, inv *domain.Invoice) error {
	amounts, err := encodeAmounts(inv.Amounts)
	if err != nil {
		return err
	}
	tag, err := on(r.db, tx).Exec(ctx, `
		UPDATE invoices SET
			from_entity_id = $2, to_entity_id = $3, amounts = $4, billing_period = $5,
			status = $6, comment = $7, tag_ids = $8, modified_at = $9
		WHERE id = $1`,
		inv.ID, inv.FromEntityID, inv.ToEntityID, amounts, optionalDate(inv.BillingPeriod),
		string(inv.Status), inv.Comment, tagIDs(inv.TagIDs), optionalTime(inv.ModifiedAt),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInvoiceNotFound
	}
	return nil
}

// Delete removes an invoice.
func (r *InvoiceRepository) Delete(ctx context.Context, tx usecase.Transaction, id string) error {
	tag, err := on(r.db, tx).Exec(ctx, `DELETE FROM invoices WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInvoiceNotFound
	}
	return nil
}

// List returns matching invoices, newest first.
func (r *InvoiceRepository) List(ctx context.Context, filter domain.InvoiceFilter) ([]*domain.Invoice, error) {
	var w where
	if filter.EntityID != "" {
		w.add("(from_entity_id = ? OR to_entity_id = ?)", filter.EntityID)
	}
	if filter.FromEntityID != "" {
		w.add("from_entity_id = ?", filter.FromEntityID)
	}
	if filter.ToEntityID != "" {
		w.add("to_entity_id = ?", filter.ToEntityID)
	}
	if filter.Status != "" {
		w.add("status = ?", string(filter.Status))
	}
	if filter.BillingPeriod != nil {
		w.add("billing_period = ?", optionalDate(filter.BillingPeriod))
	}
	if filter.TagID != "" {
		w.add("? = ANY(tag_ids)", filter.TagID)
	}

	query, args := w.paged(`SELECT `+invoiceColumns+` FROM invoices`,
		"created_at DESC, id DESC", filter.Limit, filter.Offset)
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectInvoices(rows)
}

// ListPending returns pending invoices, oldest first.
func (r *InvoiceRepository) ListPending(ctx context.Context) ([]*domain.Invoice, error) {
	rows, err := r.db.Query(ctx, `SELECT `+invoiceColumns+` FROM invoices
		WHERE status = $1 ORDER BY created_at, id`, string(domain.InvoiceStatusPending))
	if err != nil {
		return nil, err
	}
	return collectInvoices(rows)
}

// ExistsForPeriod reports whether fromEntityID already has an invoice for the
// billing period carrying tagID.
func (r *InvoiceRepository) ExistsForPeriod(ctx context.Context, tx usecase.Transaction, fromEntityID string, period time.Time, tagID string) (bool, error) {
	var exists bool
	err := on(r.db, tx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM invoices
			WHERE from_entity_id = $1 AND billing_period = $2 AND $3 = ANY(tag_ids)
		)`, fromEntityID, optionalDate(&period), tagID).Scan(&exists)
	return exists, err
}

func collectInvoices(rows pgx.Rows) ([]*domain.Invoice, error) {
	defer rows.Close()

	invoices := make([]*domain.Invoice, 0)
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

func scanInvoice(row pgx.Row) (*domain.Invoice, error) {
	var (
		inv           domain.Invoice
		amounts       []byte
		billingPeriod pgtype.Date
		status        string
		createdAt     pgtype.Timestamptz
		modifiedAt    pgtype.Timestamptz
	)
	err := row.Scan(&inv.ID, &inv.ActorEntityID, &inv.FromEntityID, &inv.ToEntityID, &amounts, &billingPeriod,
		&status, &inv.Comment, &inv.TagIDs, &createdAt, &modifiedAt)
	if err != nil {
		return nil, notFound(err, domain.ErrInvoiceNotFound)
	}
	if inv.Amounts, err = decodeAmounts(amounts); err != nil {
		return nil, fmt.Errorf("invoice %s: %w", inv.ID, err)
	}
	inv.BillingPeriod = datePtr(billingPeriod)
	inv.Status = domain.InvoiceStatus(status)
	inv.CreatedAt = createdAt.Time.UTC()
	inv.ModifiedAt = timePtr(modifiedAt)
	return &inv, nil
}

func encodeAmounts(amounts []domain.InvoiceAmount) ([]byte, error) {
	rows := make([]invoiceAmountRow, 0, len(amounts))
	for _, a := range amounts {
		rows = append(rows, invoiceAmountRow{Currency: a.Currency, Amount: a.Amount})
	}
	return json.Marshal(rows)
}

func decodeAmounts(raw []byte) ([]domain.InvoiceAmount, error) {
	var rows []invoiceAmountRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("decode amounts: %w", err)
	}
	amounts := make([]domain.InvoiceAmount, 0, len(rows))
	for _, a := range rows {
		amounts = append(amounts, domain.InvoiceAmount{Currency: a.Currency, Amount: a.Amount})
	}
	return amounts, nil
}
