package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SplitParticipant is one party owing a share of a split. A nil FixedAmount
// means the participant shares the remainder equally.
type SplitParticipant struct {
	EntityID    string
	FixedAmount *decimal.Decimal
}

// Split divides Amount among its participants, payable to RecipientEntityID.
type Split struct {
	ID                      string
	ActorEntityID           string
	RecipientEntityID       string
	Amount                  decimal.Decimal
	Currency                string
	Comment                 string
	Participants            []SplitParticipant
	Performed               bool
	PerformedTransactionIDs []string
	TagIDs                  []string
	CreatedAt               time.Time
	ModifiedAt              *time.Time
}

// HasParticipant reports whether entityID already participates.
func (s *Split) HasParticipant(entityID string) bool {
	for _, p := range s.Participants {
		if p.EntityID == entityID {
			return true
		}
	}
	return false
}

// Shares computes every participant's share of the split amount.
func (s *Split) Shares() (map[string]decimal.Decimal, error) {
	if len(s.Participants) == 0 {
		return nil, ErrEmptyParticipants
	}
	fixed := make(map[string]decimal.Decimal)
	var equal []string
	for _, p := range s.Participants {
		if p.FixedAmount != nil {
			fixed[p.EntityID] = *p.FixedAmount
			continue
		}
		equal = append(equal, p.EntityID)
	}
	return DistributeSplit(s.Amount, fixed, equal)
}

// SharePreview is the per-head share of non-fixed participants, for display.
func (s *Split) SharePreview() decimal.Decimal {
	remaining := s.Amount
	n := 0
	for _, p := range s.Participants {
		if p.FixedAmount != nil {
			remaining = remaining.Sub(*p.FixedAmount)
			continue
		}
		n++
	}
	if n == 0 || !remaining.IsPositive() {
		return decimal.Zero
	}
	return RoundDown(remaining.Div(decimal.NewFromInt(int64(n))))
}

// CalculateSplit distributes total across participants so that shares sum to
// total exactly and differ by at most one cent. Leading participants receive
// the extra cents.
func CalculateSplit(total decimal.Decimal, participants []string) (map[string]decimal.Decimal, error) {
	n := len(participants)
	if n == 0 {
		return nil, ErrEmptyParticipants
	}

	total = Quantize(total)
	count := decimal.NewFromInt(int64(n))
	base := total.Div(count).RoundFloor(2)
	remainderCents := total.Sub(base.Mul(count)).Div(Cent).Round(0).IntPart()

	shares := make(map[string]decimal.Decimal, n)
	for i, id := range participants {
		share := base
		if int64(i) < remainderCents {
			share = share.Add(Cent)
		}
		shares[id] = share
	}
	return shares, nil
}

// DistributeSplit assigns fixed amounts verbatim and splits what is left of
// total equally among the remaining participants.
func DistributeSplit(total decimal.Decimal, fixed map[string]decimal.Decimal, equal []string) (map[string]decimal.Decimal, error) {
	if len(fixed) == 0 && len(equal) == 0 {
		return nil, ErrEmptyParticipants
	}

	remaining := Quantize(total)
	shares := make(map[string]decimal.Decimal, len(fixed)+len(equal))
	for id, amount := range fixed {
		amount = Quantize(amount)
		shares[id] = amount
		remaining = remaining.Sub(amount)
	}
	if remaining.IsNegative() {
		return nil, ErrSplitFixedAmountsExceedTotal
	}

	if len(equal) == 0 {
		return shares, nil
	}
	rest, err := CalculateSplit(remaining, equal)
	if err != nil {
		return nil, err
	}
	for id, amount := range rest {
		shares[id] = amount
	}
	return shares, nil
}

// SplitFilter narrows split listings.
type SplitFilter struct {
	ActorEntityID       string
	RecipientEntityID   string
	ParticipantEntityID string
	Currency            string
	Performed           *bool
	Limit               int
	Offset              int
}
