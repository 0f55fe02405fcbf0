package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refinance/ledger/internal/domain"
)

func TestEntityRepositoryGetByID(t *testing.T) {
	mock := newMockPool(t)
	repo := &EntityRepository{db: mock}
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM entities WHERE id = $1")).
		WithArgs("ent_alice").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "comment", "active", "tag_ids", "created_at"}).
			AddRow("ent_alice", "alice", "", true, []string{"tag_resident"}, created))

	e, err := repo.GetByID(context.Background(), "ent_alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", e.Name)
	assert.Equal(t, []string{"tag_resident"}, e.TagIDs)
	assert.True(t, e.CreatedAt.Equal(created))

	mock.ExpectQuery(regexp.QuoteMeta("FROM entities WHERE id = $1")).
		WithArgs("ghost").
		WillReturnError(pgx.ErrNoRows)

	_, err = repo.GetByID(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrEntityNotFound)
	assertExpectations(t, mock)
}

func TestTreasuryRepositoryDeleteMissing(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectBeginTx(readCommitted)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM treasuries WHERE id = $1")).
		WithArgs("trs_missing").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectRollback()

	tx, err := newTxManagerWithPool(mock).Begin(context.Background())
	require.NoError(t, err)

	repo := &TreasuryRepository{db: mock}
	err = repo.Delete(context.Background(), tx, "trs_missing")
	assert.ErrorIs(t, err, domain.ErrTreasuryNotFound)

	require.NoError(t, tx.Rollback(context.Background()))
	assertExpectations(t, mock)
}

func TestTransactionRepositorySumByEntity(t *testing.T) {
	mock := newMockPool(t)
	repo := &TransactionRepository{db: mock}

	mock.ExpectQuery(regexp.QuoteMeta("GROUP BY currency, status")).
		WithArgs("ent_alice", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"currency", "status", "sum"}).
			AddRow("gel", "completed", "-30.00").
			AddRow("usd", "draft", "12.50"))

	sums, err := repo.SumByEntity(context.Background(), nil, "ent_alice", nil)
	require.NoError(t, err)
	require.Len(t, sums, 2)
	assert.Equal(t, domain.TransactionStatusCompleted, sums[0].Status)
	assert.True(t, sums[0].Amount.Equal(decimal.RequireFromString("-30")))
	assert.Equal(t, "usd", sums[1].Currency)
	assert.True(t, sums[1].Amount.Equal(decimal.RequireFromString("12.5")))
	assertExpectations(t, mock)
}

func TestTransactionRepositoryCreateDuplicateInvoice(t *testing.T) {
	mock := newMockPool(t)
	repo := &TransactionRepository{db: mock}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO transactions")).
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})

	invoiceID := "inv_1"
	err := repo.Create(context.Background(), nil, &domain.Transaction{
		ID:        "txn_1",
		Amount:    decimal.NewFromInt(10),
		Currency:  "gel",
		Status:    domain.TransactionStatusDraft,
		InvoiceID: &invoiceID,
		CreatedAt: time.Now(),
	})
	assert.ErrorIs(t, err, domain.ErrInvoiceTransactionAlreadyAttached)
}

func TestInvoiceRepositoryExistsForPeriod(t *testing.T) {
	mock := newMockPool(t)
	repo := &InvoiceRepository{db: mock}
	period := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("ent_alice", pgxmock.AnyArg(), "tag_fee").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.ExistsForPeriod(context.Background(), nil, "ent_alice", period, "tag_fee")
	require.NoError(t, err)
	assert.True(t, exists)
	assertExpectations(t, mock)
}

func TestInvoiceRepositoryListFilters(t *testing.T) {
	mock := newMockPool(t)
	repo := &InvoiceRepository{db: mock}

	mock.ExpectQuery(regexp.QuoteMeta("WHERE (from_entity_id = $1 OR to_entity_id = $1) AND status = $2 ORDER BY created_at DESC, id DESC LIMIT $3 OFFSET $4")).
		WithArgs("ent_alice", "pending", 10, 20).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	invoices, err := repo.List(context.Background(), domain.InvoiceFilter{
		EntityID: "ent_alice",
		Status:   domain.InvoiceStatusPending,
		Limit:    10,
		Offset:   20,
	})
	require.NoError(t, err)
	assert.Empty(t, invoices)
	assertExpectations(t, mock)
}

func TestLedgerRepositoryConfirmedTotals(t *testing.T) {
	mock := newMockPool(t)
	repo := &LedgerRepository{db: mock}

	mock.ExpectQuery(regexp.QuoteMeta("GROUP BY t.currency")).
		WillReturnRows(pgxmock.NewRows([]string{"currency", "sum"}).
			AddRow("gel", "0.00").
			AddRow("usd", "0.01"))

	totals, err := repo.ConfirmedTotals(context.Background())
	require.NoError(t, err)
	assert.True(t, totals["gel"].IsZero())
	assert.True(t, totals["usd"].Equal(decimal.RequireFromString("0.01")))
	assertExpectations(t, mock)
}

func TestAmountsCodec(t *testing.T) {
	raw, err := encodeAmounts([]domain.InvoiceAmount{{Currency: "usd", Amount: decimal.RequireFromString("42.00")}})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"currency":"usd","amount":"42"}]`, string(raw))

	_, err = decodeAmounts([]byte(`{`))
	assert.Error(t, err)
}

func TestParticipantsCodec(t *testing.T) {
	fixed := decimal.RequireFromString("50")
	raw, err := encodeParticipants([]domain.SplitParticipant{{EntityID: "ent_a", FixedAmount: &fixed}, {EntityID: "ent_b"}})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"entity_id":"ent_a","fixed_amount":"50"},{"entity_id":"ent_b"}]`, string(raw))

	participants, err := decodeParticipants(raw)
	require.NoError(t, err)
	require.Len(t, participants, 2)
	assert.True(t, participants[0].FixedAmount.Equal(fixed))
	assert.Nil(t, participants[1].FixedAmount)
}

func TestWhereBindsRepeatedPlaceholders(t *testing.T) {
	var w where
	w.add("(a = ? OR b = ?)", "x")
	w.add("c = ?", "y")

	query, args := w.paged("SELECT 1 FROM t", "id", 0, 0)
	assert.Equal(t, "SELECT 1 FROM t WHERE (a = $1 OR b = $1) AND c = $2 ORDER BY id LIMIT $3 OFFSET $4", query)
	assert.Equal(t, []any{"x", "y", nil, 0}, args)
}
