package memory

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/refinance/ledger/internal/domain"
)

func cloneStr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneDecimal(p *decimal.Decimal) *decimal.Decimal {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneEntity(e *domain.Entity) *domain.Entity {
	c := *e
	c.TagIDs = slices.Clone(e.TagIDs)
	return &c
}

func cloneTransaction(t *domain.Transaction) *domain.Transaction {
	c := *t
	c.FromTreasuryID = cloneStr(t.FromTreasuryID)
	c.ToTreasuryID = cloneStr(t.ToTreasuryID)
	c.InvoiceID = cloneStr(t.InvoiceID)
	c.TagIDs = slices.Clone(t.TagIDs)
	c.ModifiedAt = cloneTime(t.ModifiedAt)
	return &c
}

func cloneInvoice(i *domain.Invoice) *domain.Invoice {
	c := *i
	c.Amounts = slices.Clone(i.Amounts)
	c.BillingPeriod = cloneTime(i.BillingPeriod)
	c.TagIDs = slices.Clone(i.TagIDs)
	c.ModifiedAt = cloneTime(i.ModifiedAt)
	return &c
}

func cloneSplit(s *domain.Split) *domain.Split {
	c := *s
	c.Participants = make([]domain.SplitParticipant, len(s.Participants))
	for i, p := range s.Participants {
		c.Participants[i] = domain.SplitParticipant{EntityID: p.EntityID, FixedAmount: cloneDecimal(p.FixedAmount)}
	}
	c.PerformedTransactionIDs = slices.Clone(s.PerformedTransactionIDs)
	c.TagIDs = slices.Clone(s.TagIDs)
	c.ModifiedAt = cloneTime(s.ModifiedAt)
	return &c
}

// page applies offset and limit; a non-positive limit returns everything after offset.
func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
