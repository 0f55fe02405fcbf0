package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/refinance/ledger/internal/domain"
	"github.com/refinance/ledger/internal/usecase"
)

const entityColumns = `id, name, comment, active, tag_ids, created_at`

// EntityRepository implements usecase.EntityRepository.
type EntityRepository struct {
	db querier
}

// NewEntityRepository creates a new EntityRepository.
func NewEntityRepository(pool *pgxpool.Pool) *EntityRepository {
	return &EntityRepository{db: pool}
}

// GetByID retrieves an entity by ID.
func (r *EntityRepository) GetByID(ctx context.Context, id string) (*domain.Entity, error) {
	row := r.db.QueryRow(ctx, `SELECT `+entityColumns+` FROM entities WHERE id = $1`, id)
	e, err := scanEntity(row)
	if err != nil {
		return nil, notFound(err, domain.ErrEntityNotFound)
	}
	return e, nil
}

// List returns all entities ordered by ID.
func (r *EntityRepository) List(ctx context.Context) ([]*domain.Entity, error) {
	rows, err := r.db.Query(ctx, `SELECT `+entityColumns+` FROM entities ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return collectEntities(rows)
}

// ListByTagIDs returns entities carrying any of the tags, ordered by ID.
func (r *EntityRepository) ListByTagIDs(ctx context.Context, tagIDs []string) ([]*domain.Entity, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE tag_ids && $1 ORDER BY id`, tagIDs)
	if err != nil {
		return nil, err
	}
	return collectEntities(rows)
}

func scanEntity(row pgx.Row) (*domain.Entity, error) {
	var (
		e         domain.Entity
		createdAt pgtype.Timestamptz
	)
	if err := row.Scan(&e.ID, &e.Name, &e.Comment, &e.Active, &e.TagIDs, &createdAt); err != nil {
		return nil, err
	}
	e.CreatedAt = createdAt.Time.UTC()
	return &e, nil
}

func collectEntities(rows pgx.Rows) ([]*domain.Entity, error) {
	defer rows.Close()

	entities := make([]*domain.Entity, 0)
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

// TagRepository implements usecase.TagRepository.
type TagRepository struct {
	db querier
}

// NewTagRepository creates a new TagRepository.
func NewTagRepository(pool *pgxpool.Pool) *TagRepository {
	return &TagRepository{db: pool}
}

// GetByID retrieves a tag by ID.
func (r *TagRepository) GetByID(ctx context.Context, id string) (*domain.Tag, error) {
	return r.get(ctx, `SELECT id, name, comment FROM tags WHERE id = $1`, id)
}

// GetByName retrieves a tag by its unique name.
func (r *TagRepository) GetByName(ctx context.Context, name string) (*domain.Tag, error) {
	return r.get(ctx, `SELECT id, name, comment FROM tags WHERE name = $1`, name)
}

func (r *TagRepository) get(ctx context.Context, query, arg string) (*domain.Tag, error) {
	var t domain.Tag
	if err := r.db.QueryRow(ctx, query, arg).Scan(&t.ID, &t.Name, &t.Comment); err != nil {
		return nil, notFound(err, domain.ErrTagNotFound)
	}
	return &t, nil
}

// TreasuryRepository implements usecase.TreasuryRepository.
type TreasuryRepository struct {
	db querier
}

// NewTreasuryRepository creates a new TreasuryRepository.
func NewTreasuryRepository(pool *pgxpool.Pool) *TreasuryRepository {
	return &TreasuryRepository{db: pool}
}

const treasuryColumns = `id, name, comment, active, created_at`

// GetByID retrieves a treasury by ID.
func (r *TreasuryRepository) GetByID(ctx context.Context, id string) (*domain.Treasury, error) {
	return scanTreasury(r.db.QueryRow(ctx, `SELECT `+treasuryColumns+` FROM treasuries WHERE id = $1`, id))
}

// GetByIDForUpdate retrieves a treasury by ID with a FOR UPDATE lock.
func (r *TreasuryRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.Treasury, error) {
	return scanTreasury(on(r.db, tx).QueryRow(ctx,
		`SELECT `+treasuryColumns+` FROM treasuries WHERE id = $1 FOR UPDATE`, id))
}

// Delete removes a treasury.
func (r *TreasuryRepository) Delete(ctx context.Context, tx usecase.Transaction, id string) error {
	tag, err := on(r.db, tx).Exec(ctx, `DELETE FROM treasuries WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTreasuryNotFound
	}
	return nil
}

func scanTreasury(row pgx.Row) (*domain.Treasury, error) {
	var (
		t         domain.Treasury
		createdAt pgtype.Timestamptz
	)
	if err := row.Scan(&t.ID, &t.Name, &t.Comment, &t.Active, &createdAt); err != nil {
		return nil, notFound(err, domain.ErrTreasuryNotFound)
	}
	t.CreatedAt = createdAt.Time.UTC()
	return &t, nil
}
