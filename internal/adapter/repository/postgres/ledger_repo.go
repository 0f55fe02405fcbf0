package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// LedgerRepository implements usecase.LedgerRepository.
type LedgerRepository struct {
	db querier
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{db: pool}
}

// ConfirmedTotals sums every entity's confirmed balance per currency.
func (r *LedgerRepository) ConfirmedTotals(ctx context.Context) (map[string]decimal.Decimal, error) {
	rows, err := r.db.Query(ctx, `
		SELECT t.currency,
			SUM(CASE WHEN t.to_entity_id = e.id THEN t.amount ELSE -t.amount END)
		FROM entities e
		JOIN transactions t ON t.status = 'completed'
			AND (t.to_entity_id = e.id OR t.from_entity_id = e.id)
		GROUP BY t.currency`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	totals := make(map[string]decimal.Decimal)
	for rows.Next() {
		var (
			currency string
			total    pgtype.Numeric
		)
		if err := rows.Scan(&currency, &total); err != nil {
			return nil, err
		}
		totals[currency] = numericToDecimal(total)
	}
	return totals, rows.Err()
}
