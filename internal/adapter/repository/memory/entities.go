package memory

import (
	"context"
	"slices"
	"sort"

	"github.com/refinance/ledger/internal/domain"
	"github.com/refinance/ledger/internal/usecase"
)

// PutEntity inserts or replaces an entity outside of any unit of work.
func (s *Store) PutEntity(e *domain.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.committed.entities[e.ID] = cloneEntity(e)
}

// PutTag inserts or replaces a tag outside of any unit of work.
func (s *Store) PutTag(t *domain.Tag) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *t
	s.committed.tags[t.ID] = &c
}

// PutTreasury inserts or replaces a treasury outside of any unit of work.
func (s *Store) PutTreasury(t *domain.Treasury) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *t
	s.committed.treasuries[t.ID] = &c
}

// EntityRepository implements usecase.EntityRepository.
type EntityRepository struct {
	s *Store
}

// GetByID retrieves an entity by ID.
func (r *EntityRepository) GetByID(_ context.Context, id string) (*domain.Entity, error) {
	st, release := r.s.read(nil)
	defer release()

	if e, ok := st.entities[id]; ok {
		return cloneEntity(e), nil
	}
	return nil, domain.ErrEntityNotFound
}

// List returns every entity ordered by ID.
func (r *EntityRepository) List(_ context.Context) ([]*domain.Entity, error) {
	st, release := r.s.read(nil)
	defer release()

	out := make([]*domain.Entity, 0, len(st.entities))
	for _, e := range st.entities {
		out = append(out, cloneEntity(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListByTagIDs returns entities carrying any of the tags, ordered by ID.
func (r *EntityRepository) ListByTagIDs(ctx context.Context, tagIDs []string) ([]*domain.Entity, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Entity, 0, len(all))
	for _, e := range all {
		if slices.ContainsFunc(e.TagIDs, func(id string) bool { return slices.Contains(tagIDs, id) }) {
			out = append(out, e)
		}
	}
	return out, nil
}

// TagRepository implements usecase.TagRepository.
type TagRepository struct {
	s *Store
}

// GetByID retrieves a tag by ID.
func (r *TagRepository) GetByID(_ context.Context, id string) (*domain.Tag, error) {
	st, release := r.s.read(nil)
	defer release()

	if t, ok := st.tags[id]; ok {
		c := *t
		return &c, nil
	}
	return nil, domain.ErrTagNotFound
}

// GetByName retrieves a tag by name.
func (r *TagRepository) GetByName(_ context.Context, name string) (*domain.Tag, error) {
	st, release := r.s.read(nil)
	defer release()

	for _, t := range st.tags {
		if t.Name == name {
			c := *t
			return &c, nil
		}
	}
	return nil, domain.ErrTagNotFound
}

// TreasuryRepository implements usecase.TreasuryRepository.
type TreasuryRepository struct {
	s *Store
}

// GetByID retrieves a treasury by ID.
func (r *TreasuryRepository) GetByID(_ context.Context, id string) (*domain.Treasury, error) {
	return r.get(nil, id)
}

// GetByIDForUpdate retrieves a treasury inside tx.
func (r *TreasuryRepository) GetByIDForUpdate(_ context.Context, tx usecase.Transaction, id string) (*domain.Treasury, error) {
	return r.get(tx, id)
}

func (r *TreasuryRepository) get(tx usecase.Transaction, id string) (*domain.Treasury, error) {
	st, release := r.s.read(tx)
	defer release()

	if t, ok := st.treasuries[id]; ok {
		c := *t
		return &c, nil
	}
	return nil, domain.ErrTreasuryNotFound
}

// Delete removes a treasury.
func (r *TreasuryRepository) Delete(_ context.Context, tx usecase.Transaction, id string) error {
	st, err := r.s.write(tx)
	if err != nil {
		return err
	}
	if _, ok := st.treasuries[id]; !ok {
		return domain.ErrTreasuryNotFound
	}
	delete(st.treasuries, id)
	return nil
}
