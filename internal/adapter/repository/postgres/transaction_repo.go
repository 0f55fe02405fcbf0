package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/refinance/ledger/internal/domain"
	"github.com/refinance/ledger/internal/usecase"
)

const transactionColumns = `id, actor_entity_id, from_entity_id, to_entity_id, amount, currency, status,
	from_treasury_id, to_treasury_id, invoice_id, comment, tag_ids, created_at, modified_at`

// TransactionRepository implements usecase.TransactionRepository.
type TransactionRepository struct {
	db querier
}

// NewTransactionRepository creates a new TransactionRepository.
func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{db: pool}
}

// Create inserts a transaction.
func (r *TransactionRepository) Create(ctx context.Context, tx usecase.Transaction, t *domain.Transaction) error {
	_, err := on(r.db, tx).Exec(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		t.ID, t.ActorEntityID, t.FromEntityID, t.ToEntityID, decimalToNumeric(t.Amount), t.Currency, string(t.Status),
		t.FromTreasuryID, t.ToTreasuryID, t.InvoiceID, t.Comment, tagIDs(t.TagIDs),
		timeToPgTimestamptz(t.CreatedAt), optionalTime(t.ModifiedAt),
	)
	if isUniqueViolation(err) {
		return domain.ErrInvoiceTransactionAlreadyAttached
	}
	return err
}

// GetByID retrieves a transaction by ID.
func (r *TransactionRepository) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	return scanTransaction(r.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id))
}

// GetByIDForUpdate retrieves a transaction by ID with a FOR UPDATE lock.
func (r *TransactionRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.Transaction, error) {
	return scanTransaction(on(r.db, tx).QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, id))
}

// GetByInvoiceID returns the transaction attached to the invoice.
func (r *TransactionRepository) GetByInvoiceID(ctx context.Context, tx usecase.Transaction, invoiceID string) (*domain.Transaction, error) {
	return scanTransaction(on(r.db, tx).QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE invoice_id = $1`, invoiceID))
}

// Update overwrites the mutable columns of a transaction.
func (r *TransactionRepository) Update(ctx context.Context, tx usecase.Transaction, t *domain.Transaction) error {
	tag, err := on(r.db, tx).Exec(ctx, `
		UPDATE transactions SET
			from_entity_id = $2, to_entity_id = $3, amount = $4, currency = $5, status = $6,
			from_treasury_id = $7, to_treasury_id = $8, invoice_id = $9, comment = $10,
			tag_ids = $11, modified_at = $12
		WHERE id = $1`,
		t.ID, t.FromEntityID, t.ToEntityID, decimalToNumeric(t.Amount), t.Currency, string(t.Status),
		t.FromTreasuryID, t.ToTreasuryID, t.InvoiceID, t.Comment, tagIDs(t.TagIDs), optionalTime(t.ModifiedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrInvoiceTransactionAlreadyAttached
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTransactionNotFound
	}
	return nil
}

// Delete removes a transaction.
func (r *TransactionRepository) Delete(ctx context.Context, tx usecase.Transaction, id string) error {
	tag, err := on(r.db, tx).Exec(ctx, `DELETE FROM transactions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTransactionNotFound
	}
	return nil
}

// List returns matching transactions, newest first.
func (r *TransactionRepository) List(ctx context.Context, filter domain.TransactionFilter) ([]*domain.Transaction, error) {
	var w where
	if filter.EntityID != "" {
		w.add("(from_entity_id = ? OR to_entity_id = ? OR actor_entity_id = ?)", filter.EntityID)
	}
	if filter.TreasuryID != "" {
		w.add("(from_treasury_id = ? OR to_treasury_id = ?)", filter.TreasuryID)
	}
	if filter.InvoiceID != "" {
		w.add("invoice_id = ?", filter.InvoiceID)
	}
	if filter.Currency != "" {
		w.add("currency = ?", filter.Currency)
	}
	if filter.Status != "" {
		w.add("status = ?", string(filter.Status))
	}

	query, args := w.paged(`SELECT `+transactionColumns+` FROM transactions`,
		"created_at DESC, id DESC", filter.Limit, filter.Offset)
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := make([]*domain.Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, t)
	}
	return transactions, rows.Err()
}

// CountByTreasury counts transactions drawing from or depositing to the treasury.
func (r *TransactionRepository) CountByTreasury(ctx context.Context, tx usecase.Transaction, treasuryID string) (int, error) {
	var n int
	err := on(r.db, tx).QueryRow(ctx,
		`SELECT count(*) FROM transactions WHERE from_treasury_id = $1 OR to_treasury_id = $1`, treasuryID).Scan(&n)
	return n, err
}

// SumByEntity aggregates the entity's signed amounts per currency and status.
// A non-nil asOf ignores transactions created after it.
func (r *TransactionRepository) SumByEntity(ctx context.Context, tx usecase.Transaction, entityID string, asOf *time.Time) ([]domain.BalanceSum, error) {
	rows, err := on(r.db, tx).Query(ctx, `
		SELECT currency, status,
			SUM(CASE WHEN to_entity_id = $1 THEN amount ELSE 0 END) -
			SUM(CASE WHEN from_entity_id = $1 THEN amount ELSE 0 END)
		FROM transactions
		WHERE (from_entity_id = $1 OR to_entity_id = $1)
			AND ($2::timestamptz IS NULL OR created_at <= $2)
		GROUP BY currency, status
		ORDER BY currency, status`,
		entityID, optionalTime(asOf))
	if err != nil {
		return nil, err
	}
	return collectSums(rows)
}

// SumByTreasury aggregates the treasury's signed amounts per currency and status.
func (r *TransactionRepository) SumByTreasury(ctx context.Context, tx usecase.Transaction, treasuryID string) ([]domain.BalanceSum, error) {
	rows, err := on(r.db, tx).Query(ctx, `
		SELECT currency, status,
			SUM(CASE WHEN to_treasury_id = $1 THEN amount ELSE 0 END) -
			SUM(CASE WHEN from_treasury_id = $1 THEN amount ELSE 0 END)
		FROM transactions
		WHERE from_treasury_id = $1 OR to_treasury_id = $1
		GROUP BY currency, status
		ORDER BY currency, status`,
		treasuryID)
	if err != nil {
		return nil, err
	}
	return collectSums(rows)
}

func collectSums(rows pgx.Rows) ([]domain.BalanceSum, error) {
	defer rows.Close()

	sums := make([]domain.BalanceSum, 0)
	for rows.Next() {
		var (
			currency, status string
			amount           pgtype.Numeric
		)
		if err := rows.Scan(&currency, &status, &amount); err != nil {
			return nil, err
		}
		sums = append(sums, domain.BalanceSum{
			Currency: currency,
			Status:   domain.TransactionStatus(status),
			Amount:   numericToDecimal(amount),
		})
	}
	return sums, rows.Err()
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var (
		t          domain.Transaction
		amount     pgtype.Numeric
		status     string
		createdAt  pgtype.Timestamptz
		modifiedAt pgtype.Timestamptz
	)
	err := row.Scan(&t.ID, &t.ActorEntityID, &t.FromEntityID, &t.ToEntityID, &amount, &t.Currency, &status,
		&t.FromTreasuryID, &t.ToTreasuryID, &t.InvoiceID, &t.Comment, &t.TagIDs, &createdAt, &modifiedAt)
	if err != nil {
		return nil, notFound(err, domain.ErrTransactionNotFound)
	}
	t.Amount = numericToDecimal(amount)
	t.Status = domain.TransactionStatus(status)
	t.CreatedAt = createdAt.Time.UTC()
	t.ModifiedAt = timePtr(modifiedAt)
	return &t, nil
}
