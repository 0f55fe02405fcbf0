package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/refinance/ledger/internal/adapter/repository/memory"
	"github.com/refinance/ledger/internal/domain"
	"github.com/refinance/ledger/internal/usecase"
)

func newSplit(t *testing.T, l *testLedger, recipient, amount string, participants ...string) *domain.Split {
	t.Helper()
	ctx := context.Background()
	s, err := l.splits.CreateSplit(ctx, usecase.CreateSplitInput{
		ActorEntityID:     recipient,
		RecipientEntityID: recipient,
		Amount:            d(amount),
		Currency:          "GEL",
		Comment:           "pizza",
	})
	if err != nil {
		t.Fatalf("CreateSplit failed: %v", err)
	}
	for _, p := range participants {
		if s, err = l.splits.AddParticipant(ctx, usecase.AddParticipantInput{SplitID: s.ID, EntityID: p}); err != nil {
			t.Fatalf("AddParticipant(%s) failed: %v", p, err)
		}
	}
	return s
}

func TestSplitUseCase_PerformChargesParticipants(t *testing.T) {
	l := newTestLedger(t, nil)
	ctx := context.Background()
	s := newSplit(t, l, alice, "200", alice, bob, carol)

	performed, err := l.splits.PerformSplit(ctx, s.ID, alice)
	if err != nil {
		t.Fatalf("PerformSplit failed: %v", err)
	}
	if !performed.Performed {
		t.Fatalf("expected split to be performed")
	}
	if len(performed.PerformedTransactionIDs) != 2 {
		t.Fatalf("the recipient's own share creates no transaction, got %d", len(performed.PerformedTransactionIDs))
	}

	assertAmount(t, l.confirmed(t, alice, "gel"), "133.33")
	assertAmount(t, l.confirmed(t, bob, "gel"), "-66.67")
	assertAmount(t, l.confirmed(t, carol, "gel"), "-66.66")

	tx, err := l.transactions.GetTransaction(ctx, performed.PerformedTransactionIDs[0])
	if err != nil {
		t.Fatalf("GetTransaction failed: %v", err)
	}
	if tx.Comment != "pizza (split #"+s.ID+")" || !tx.IsCompleted() {
		t.Fatalf("unexpected split transaction %+v", tx)
	}
}

func TestSplitUseCase_PerformRollsBackOnParticipantFailure(t *testing.T) {
	failing := &failingCreates{failErr: errors.New("disk full")}
	l := newTestLedger(t, nil, withFailingCreates(failing))
	ctx := context.Background()
	s := newSplit(t, l, alice, "90", bob, carol, dave)

	for _, id := range []string{alice, bob, carol, dave} {
		assertAmount(t, l.confirmed(t, id, "gel"), "0")
	}
	before := l.countTransactions(t)

	failing.arm(3)
	if _, err := l.splits.PerformSplit(ctx, s.ID, alice); !errors.Is(err, failing.failErr) {
		t.Fatalf("expected the third participant to fail, got %v", err)
	}
	if got := l.countTransactions(t); got != before {
		t.Fatalf("expected %d transactions, got %d", before, got)
	}

	for _, id := range []string{alice, bob, carol, dave} {
		cached, ok, err := l.cache.Get(ctx, usecase.EntityBalances, id)
		if err != nil || !ok {
			t.Fatalf("cached balance of %s must survive the rollback, ok=%v err=%v", id, ok, err)
		}
		assertAmount(t, cached.ConfirmedIn("gel"), "0")
		fresh, err := l.balances.FreshBalances(ctx, nil, id)
		if err != nil {
			t.Fatalf("FreshBalances failed: %v", err)
		}
		assertAmount(t, fresh.ConfirmedIn("gel"), "0")
	}

	got, err := l.splits.GetSplit(ctx, s.ID)
	if err != nil {
		t.Fatalf("GetSplit failed: %v", err)
	}
	if got.Performed || len(got.PerformedTransactionIDs) != 0 {
		t.Fatalf("split must stay pending, got %+v", got)
	}

	failing.arm(0)
	if _, err := l.splits.PerformSplit(ctx, s.ID, alice); err != nil {
		t.Fatalf("retrying PerformSplit failed: %v", err)
	}
	assertAmount(t, l.confirmed(t, bob, "gel"), "-30")
}

func TestSplitUseCase_PerformedIsImmutable(t *testing.T) {
	l := newTestLedger(t, nil)
	ctx := context.Background()
	s := newSplit(t, l, alice, "10", bob)
	if _, err := l.splits.PerformSplit(ctx, s.ID, alice); err != nil {
		t.Fatalf("PerformSplit failed: %v", err)
	}

	if _, err := l.splits.PerformSplit(ctx, s.ID, alice); !errors.Is(err, domain.ErrPerformedSplitNotEditable) {
		t.Fatalf("expected ErrPerformedSplitNotEditable, got %v", err)
	}
	if _, err := l.splits.UpdateSplit(ctx, usecase.UpdateSplitInput{ID: s.ID, Comment: ptr("x")}); !errors.Is(err, domain.ErrPerformedSplitNotEditable) {
		t.Fatalf("expected ErrPerformedSplitNotEditable, got %v", err)
	}
	if err := l.splits.DeleteSplit(ctx, s.ID); !errors.Is(err, domain.ErrPerformedSplitNotDeletable) {
		t.Fatalf("expected ErrPerformedSplitNotDeletable, got %v", err)
	}
	if _, err := l.splits.AddParticipant(ctx, usecase.AddParticipantInput{SplitID: s.ID, EntityID: carol}); !errors.Is(err, domain.ErrPerformedSplitParticipantsNotEditable) {
		t.Fatalf("expected ErrPerformedSplitParticipantsNotEditable, got %v", err)
	}
	if _, err := l.splits.RemoveParticipant(ctx, s.ID, bob); !errors.Is(err, domain.ErrPerformedSplitParticipantsNotEditable) {
		t.Fatalf("expected ErrPerformedSplitParticipantsNotEditable, got %v", err)
	}

	// tags remain editable
	if _, err := l.splits.AddTag(ctx, s.ID, memory.TagID(domain.TagHackerspace)); err != nil {
		t.Fatalf("AddTag on performed split failed: %v", err)
	}
}

func TestSplitUseCase_Participants(t *testing.T) {
	l := newTestLedger(t, nil)
	ctx := context.Background()
	s := newSplit(t, l, f0, "90")

	for _, in := range []usecase.AddParticipantInput{
		{SplitID: s.ID},
		{SplitID: s.ID, EntityID: alice, EntityTagID: memory.TagID(domain.TagMember)},
	} {
		if _, err := l.splits.AddParticipant(ctx, in); !errors.Is(err, domain.ErrEitherEntityOrTagRequired) {
			t.Fatalf("expected ErrEitherEntityOrTagRequired, got %v", err)
		}
	}

	s, err := l.splits.AddParticipant(ctx, usecase.AddParticipantInput{SplitID: s.ID, EntityTagID: memory.TagID(domain.TagMember)})
	if err != nil {
		t.Fatalf("AddParticipant by tag failed: %v", err)
	}
	if !s.HasParticipant(bob) || len(s.Participants) != 1 {
		t.Fatalf("expected bob from the member tag, got %+v", s.Participants)
	}

	s, err = l.splits.AddParticipant(ctx, usecase.AddParticipantInput{SplitID: s.ID, EntityID: bob})
	if err != nil {
		t.Fatalf("AddParticipant failed: %v", err)
	}
	if len(s.Participants) != 1 {
		t.Fatalf("existing participants are skipped, got %+v", s.Participants)
	}

	if _, err := l.splits.RemoveParticipant(ctx, s.ID, bob); err != nil {
		t.Fatalf("RemoveParticipant failed: %v", err)
	}
	if _, err := l.splits.RemoveParticipant(ctx, s.ID, bob); !errors.Is(err, domain.ErrSplitParticipantAlreadyRemoved) {
		t.Fatalf("expected ErrSplitParticipantAlreadyRemoved, got %v", err)
	}
	if _, err := l.splits.PerformSplit(ctx, s.ID, f0); !errors.Is(err, domain.ErrEmptyParticipants) {
		t.Fatalf("expected ErrEmptyParticipants, got %v", err)
	}

	listed, err := l.splits.ListSplits(ctx, domain.SplitFilter{Performed: ptr(false)})
	if err != nil || len(listed) != 1 {
		t.Fatalf("expected one open split, got %d err=%v", len(listed), err)
	}
}

func TestSplitUseCase_FixedAmounts(t *testing.T) {
	l := newTestLedger(t, nil)
	ctx := context.Background()
	s := newSplit(t, l, f0, "200", alice, carol)

	if _, err := l.splits.AddParticipant(ctx, usecase.AddParticipantInput{SplitID: s.ID, EntityID: bob, FixedAmount: ptr(d("50"))}); err != nil {
		t.Fatalf("AddParticipant failed: %v", err)
	}
	if _, err := l.splits.PerformSplit(ctx, s.ID, f0); err != nil {
		t.Fatalf("PerformSplit failed: %v", err)
	}

	assertAmount(t, l.confirmed(t, bob, "gel"), "-50")
	assertAmount(t, l.confirmed(t, alice, "gel"), "-75")
	assertAmount(t, l.confirmed(t, carol, "gel"), "-75")
}

func TestSplitUseCase_FixedAmountsExceedingTotal(t *testing.T) {
	l := newTestLedger(t, nil)
	ctx := context.Background()
	s := newSplit(t, l, f0, "20", alice)

	if _, err := l.splits.AddParticipant(ctx, usecase.AddParticipantInput{SplitID: s.ID, EntityID: bob, FixedAmount: ptr(d("25"))}); err != nil {
		t.Fatalf("AddParticipant failed: %v", err)
	}
	if _, err := l.splits.PerformSplit(ctx, s.ID, f0); !errors.Is(err, domain.ErrSplitFixedAmountsExceedTotal) {
		t.Fatalf("expected ErrSplitFixedAmountsExceedTotal, got %v", err)
	}

	got, _ := l.splits.GetSplit(ctx, s.ID)
	if got.Performed {
		t.Fatalf("failed perform must leave the split open")
	}
	assertAmount(t, l.confirmed(t, bob, "gel"), "0")
}

func TestSplitUseCase_CreateValidation(t *testing.T) {
	l := newTestLedger(t, nil)
	ctx := context.Background()

	_, err := l.splits.CreateSplit(ctx, usecase.CreateSplitInput{RecipientEntityID: alice, Amount: d("0"), Currency: "gel"})
	if !errors.Is(err, domain.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	_, err = l.splits.CreateSplit(ctx, usecase.CreateSplitInput{RecipientEntityID: "ghost", Amount: d("1"), Currency: "gel"})
	if !errors.Is(err, domain.ErrEntityNotFound) {
		t.Fatalf("expected ErrEntityNotFound, got %v", err)
	}

	s := newSplit(t, l, alice, "10")
	updated, err := l.splits.UpdateSplit(ctx, usecase.UpdateSplitInput{ID: s.ID, Amount: ptr(d("12.5")), Currency: ptr("USD")})
	if err != nil {
		t.Fatalf("UpdateSplit failed: %v", err)
	}
	if updated.Currency != "usd" {
		t.Fatalf("expected normalized currency, got %s", updated.Currency)
	}
	if err := l.splits.DeleteSplit(ctx, s.ID); err != nil {
		t.Fatalf("DeleteSplit failed: %v", err)
	}
}
