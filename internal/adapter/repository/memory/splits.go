package memory

import (
	"context"
	"sort"

	"github.com/refinance/ledger/internal/domain"
	"github.com/refinance/ledger/internal/usecase"
)

// SplitRepository implements usecase.SplitRepository.
type SplitRepository struct {
	s *Store
}

// Create stores a new split.
func (r *SplitRepository) Create(_ context.Context, tx usecase.Transaction, sp *domain.Split) error {
	st, err := r.s.write(tx)
	if err != nil {
		return err
	}
	st.splits[sp.ID] = cloneSplit(sp)
	return nil
}

// GetByID retrieves a split by ID.
func (r *SplitRepository) GetByID(_ context.Context, id string) (*domain.Split, error) {
	return r.get(nil, id)
}

// GetByIDForUpdate retrieves a split inside tx.
func (r *SplitRepository) GetByIDForUpdate(_ context.Context, tx usecase.Transaction, id string) (*domain.Split, error) {
	return r.get(tx, id)
}

func (r *SplitRepository) get(tx usecase.Transaction, id string) (*domain.Split, error) {
	st, release := r.s.read(tx)
	defer release()

	if sp, ok := st.splits[id]; ok {
		return cloneSplit(sp), nil
	}
	return nil, domain.ErrSplitNotFound
}

// Update replaces a stored split.
func (r *SplitRepository) Update(_ context.Context, tx usecase.Transaction, sp *domain.Split) error {
	st, err := r.s.write(tx)
	if err != nil {
		return err
	}
	if _, ok := st.splits[sp.ID]; !ok {
		return domain.ErrSplitNotFound
	}
	st.splits[sp.ID] = cloneSplit(sp)
	return nil
}

// Delete removes a split.
func (r *SplitRepository) Delete(_ context.Context, tx usecase.Transaction, id string) error {
	st, err := r.s.write(tx)
	if err != nil {
		return err
	}
	if _, ok := st.splits[id]; !ok {
		return domain.ErrSplitNotFound
	}
	delete(st.splits, id)
	return nil
}

// List returns matching splits, newest first.
func (r *SplitRepository) List(_ context.Context, f domain.SplitFilter) ([]*domain.Split, error) {
	st, release := r.s.read(nil)
	defer release()

	var out []*domain.Split
	for _, sp := range st.splits {
		switch {
		case f.ActorEntityID != "" && sp.ActorEntityID != f.ActorEntityID,
			f.RecipientEntityID != "" && sp.RecipientEntityID != f.RecipientEntityID,
			f.ParticipantEntityID != "" && !sp.HasParticipant(f.ParticipantEntityID),
			f.Currency != "" && sp.Currency != f.Currency,
			f.Performed != nil && sp.Performed != *f.Performed:
			continue
		}
		out = append(out, cloneSplit(sp))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return page(out, f.Limit, f.Offset), nil
}
