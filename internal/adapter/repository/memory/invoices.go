package memory

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/refinance/ledger/internal/domain"
	"github.com/refinance/ledger/internal/usecase"
)

// InvoiceRepository implements usecase.InvoiceRepository.
type InvoiceRepository struct {
	s *Store
}

// Create stores a new invoice.
func (r *InvoiceRepository) Create(_ context.Context, tx usecase.Transaction, inv *domain.Invoice) error {
	st, err := r.s.write(tx)
	if err != nil {
		return err
	}
	st.invoices[inv.ID] = cloneInvoice(inv)
	return nil
}

// GetByID retrieves an invoice by ID.
func (r *InvoiceRepository) GetByID(_ context.Context, id string) (*domain.Invoice, error) {
	return r.get(nil, id)
}

// GetByIDForUpdate retrieves an invoice inside tx.
func (r *InvoiceRepository) GetByIDForUpdate(_ context.Context, tx usecase.Transaction, id string) (*domain.Invoice, error) {
	return r.get(tx, id)
}

func (r *InvoiceRepository) get(tx usecase.Transaction, id string) (*domain.Invoice, error) {
	st, release := r.s.read(tx)
	defer release()

	if inv, ok := st.invoices[id]; ok {
		return cloneInvoice(inv), nil
	}
	return nil, domain.ErrInvoiceNotFound
}

// Update replaces a stored invoice.
func (r *InvoiceRepository) Update(_ context.Context, tx usecase.Transaction, inv *domain.Invoice) error {
	st, err := r.s.write(tx)
	if err != nil {
		return err
	}
	if _, ok := st.invoices[inv.ID]; !ok {
		return domain.ErrInvoiceNotFound
	}
	st.invoices[inv.ID] = cloneInvoice(inv)
	return nil
}

// Delete removes an invoice.
func (r *InvoiceRepository) Delete(_ context.Context, tx usecase.Transaction, id string) error {
	st, err := r.s.write(tx)
	if err != nil {
		return err
	}
	if _, ok := st.invoices[id]; !ok {
		return domain.ErrInvoiceNotFound
	}
	delete(st.invoices, id)
	return nil
}

// List returns matching invoices, newest first.
func (r *InvoiceRepository) List(_ context.Context, filter domain.InvoiceFilter) ([]*domain.Invoice, error) {
	out := r.collect(func(inv *domain.Invoice) bool { return matchInvoice(inv, filter) })
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return page(out, filter.Limit, filter.Offset), nil
}

// ListPending returns pending invoices, oldest first.
func (r *InvoiceRepository) ListPending(_ context.Context) ([]*domain.Invoice, error) {
	out := r.collect((*domain.Invoice).IsPending)
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// ExistsForPeriod reports whether fromEntityID already has an invoice for the
// billing period carrying tagID.
func (r *InvoiceRepository) ExistsForPeriod(_ context.Context, tx usecase.Transaction, fromEntityID string, period time.Time, tagID string) (bool, error) {
	st, release := r.s.read(tx)
	defer release()

	for _, inv := range st.invoices {
		if inv.FromEntityID != fromEntityID || inv.BillingPeriod == nil || !inv.BillingPeriod.Equal(period) {
			continue
		}
		if slices.Contains(inv.TagIDs, tagID) {
			return true, nil
		}
	}
	return false, nil
}

func (r *InvoiceRepository) collect(keep func(*domain.Invoice) bool) []*domain.Invoice {
	st, release := r.s.read(nil)
	defer release()

	var out []*domain.Invoice
	for _, inv := range st.invoices {
		if keep(inv) {
			out = append(out, cloneInvoice(inv))
		}
	}
	return out
}

func matchInvoice(inv *domain.Invoice, f domain.InvoiceFilter) bool {
	if f.EntityID != "" && inv.FromEntityID != f.EntityID && inv.ToEntityID != f.EntityID {
		return false
	}
	if f.FromEntityID != "" && inv.FromEntityID != f.FromEntityID {
		return false
	}
	if f.ToEntityID != "" && inv.ToEntityID != f.ToEntityID {
		return false
	}
	if f.Status != "" && inv.Status != f.Status {
		return false
	}
	if f.BillingPeriod != nil && (inv.BillingPeriod == nil || !inv.BillingPeriod.Equal(*f.BillingPeriod)) {
		return false
	}
	if f.TagID != "" && !slices.Contains(inv.TagIDs, f.TagID) {
		return false
	}
	return true
}
