package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/refinance/ledger/internal/domain"
	"github.com/refinance/ledger/internal/usecase"
)

const splitColumns = `id, actor_entity_id, recipient_entity_id, amount, currency, comment, participants,
	performed, performed_transaction_ids, tag_ids, created_at, modified_at`

// participantRow is the JSONB element of splits.participants.
type participantRow struct {
	EntityID    string           `json:"entity_id"`
	FixedAmount *decimal.Decimal `json:"fixed_amount,omitempty"`
}

// SplitRepository implements usecase.SplitRepository.
type SplitRepository struct {
	db querier
}

// NewSplitRepository creates a new SplitRepository.
func NewSplitRepository(pool *pgxpool.Pool) *SplitRepository {
	return &SplitRepository{db: pool}
}

// Create inserts a split.
func (r *SplitRepository) Create(ctx context.Context, tx usecase.Transaction, s *domain.Split) error {
	participants, err := encodeParticipants(s.Participants)
	if err != nil {
		return err
	}
	_, err = on(r.db, tx).Exec(ctx, `
		INSERT INTO splits (`+splitColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		s.ID, s.ActorEntityID, s.RecipientEntityID, decimalToNumeric(s.Amount), s.Currency, s.Comment, participants,
		s.Performed, tagIDs(s.PerformedTransactionIDs), tagIDs(s.TagIDs),
		timeToPgTimestamptz(s.CreatedAt), optionalTime(s.ModifiedAt),
	)
	return err
}

// GetByID retrieves a split by ID.
func (r *SplitRepository) GetByID(ctx context.Context, id string) (*domain.Split, error) {
	return scanSplit(r.db.QueryRow(ctx, `SELECT `+splitColumns+` FROM splits WHERE id = $1`, id))
}

// GetByIDForUpdate retrieves a split by ID with a FOR UPDATE lock.
func (r *SplitRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.Split, error) {
	return scanSplit(on(r.db, tx).QueryRow(ctx,
		`SELECT `+splitColumns+` FROM splits WHERE id = $1 FOR UPDATE`, id))
}

// Update overwrites the mutable columns of a split.
func (r *SplitRepository) Update(ctx context.Context, tx usecase.Transaction, s *domain.Split) error {
	participants, err := encodeParticipants(s.Participants)
	if err != nil {
		return err
	}
	tag, err := on(r.db, tx).Exec(ctx, `
		UPDATE splits SET
			recipient_entity_id = $2, amount = $3, currency = $4, comment = $5, participants = $6,
			performed = $7, performed_transaction_ids = $8, tag_ids = $9, modified_at = $10
		WHERE id = $1`,
		s.ID, s.RecipientEntityID, decimalToNumeric(s.Amount), s.Currency, s.Comment, participants,
		s.Performed, tagIDs(s.PerformedTransactionIDs), tagIDs(s.TagIDs), optionalTime(s.ModifiedAt),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSplitNotFound
	}
	return nil
}

// Delete removes a split.
func (r *SplitRepository) Delete(ctx context.Context, tx usecase.Transaction, id string) error {
	tag, err := on(r.db, tx).Exec(ctx, `DELETE FROM splits WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSplitNotFound
	}
	return nil
}

// List returns matching splits, newest first.
func (r *SplitRepository) List(ctx context.Context, filter domain.SplitFilter) ([]*domain.Split, error) {
	var w where
	if filter.ActorEntityID != "" {
		w.add("actor_entity_id = ?", filter.ActorEntityID)
	}
	if filter.RecipientEntityID != "" {
		w.add("recipient_entity_id = ?", filter.RecipientEntityID)
	}
	if filter.ParticipantEntityID != "" {
		w.add("participants @> jsonb_build_array(jsonb_build_object('entity_id', ?::text))", filter.ParticipantEntityID)
	}
	if filter.Currency != "" {
		w.add("currency = ?", filter.Currency)
	}
	if filter.Performed != nil {
		w.add("performed = ?", *filter.Performed)
	}

	query, args := w.paged(`SELECT `+splitColumns+` FROM splits`,
		"created_at DESC, id DESC", filter.Limit, filter.Offset)
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	splits := make([]*domain.Split, 0)
	for rows.Next() {
		s, err := scanSplit(rows)
		if err != nil {
			return nil, err
		}
		splits = append(splits, s)
	}
	return splits, rows.Err()
}

func scanSplit(row pgx.Row) (*domain.Split, error) {
	var (
		s            domain.Split
		amount       pgtype.Numeric
		participants []byte
		createdAt    pgtype.Timestamptz
		modifiedAt   pgtype.Timestamptz
	)
	err := row.Scan(&s.ID, &s.ActorEntityID, &s.RecipientEntityID, &amount, &s.Currency, &s.Comment, &participants,
		&s.Performed, &s.PerformedTransactionIDs, &s.TagIDs, &createdAt, &modifiedAt)
	if err != nil {
		return nil, notFound(err, domain.ErrSplitNotFound)
	}
	if s.Participants, err = decodeParticipants(participants); err != nil {
		return nil, fmt.Errorf("split %s: %w", s.ID, err)
	}
	s.Amount = numericToDecimal(amount)
	s.CreatedAt = createdAt.Time.UTC()
	s.ModifiedAt = timePtr(modifiedAt)
	return &s, nil
}

func encodeParticipants(participants []domain.SplitParticipant) ([]byte, error) {
	rows := make([]participantRow, 0, len(participants))
	for _, p := range participants {
		rows = append(rows, participantRow{EntityID: p.EntityID, FixedAmount: p.FixedAmount})
	}
	return json.Marshal(rows)
}

func decodeParticipants(raw []byte) ([]domain.SplitParticipant, error) {
	var rows []participantRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("decode participants: %w", err)
	}
	participants := make([]domain.SplitParticipant, 0, len(rows))
	for _, p := range rows {
		participants = append(participants, domain.SplitParticipant{EntityID: p.EntityID, FixedAmount: p.FixedAmount})
	}
	return participants, nil
}
