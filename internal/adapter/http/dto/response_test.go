package dto

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/refinance/ledger/internal/domain"
	"github.com/refinance/ledger/internal/usecase"
)

func TestBalanceFromDomain(t *testing.T) {
	b := domain.NewBalance()
	b.Confirmed["usd"] = decimal.RequireFromString("10")
	b.NonConfirmed["gel"] = decimal.RequireFromString("-3.5")

	resp := BalanceFromDomain(b)
	if resp.Confirmed["usd"] != "10.00" || resp.NonConfirmed["gel"] != "-3.50" {
		t.Fatalf("unexpected balance response: %+v", resp)
	}

	empty := BalanceFromDomain(nil)
	if empty.Confirmed == nil || len(empty.Confirmed) != 0 {
		t.Fatalf("nil balance should render empty maps, got %+v", empty)
	}
}

func TestTransactionFromDomain(t *testing.T) {
	now := time.Now()
	treasury := "safe"
	tx := &domain.Transaction{
		ID:           "tx-1",
		FromEntityID: "alice",
		ToEntityID:   "bob",
		Amount:       decimal.RequireFromString("0.1"),
		Currency:     "usd",
		Status:       domain.TransactionStatusDraft,
		ToTreasuryID: &treasury,
		CreatedAt:    now,
	}

	resp := TransactionFromDomain(tx)
	if resp.Amount != "0.10" || resp.Status != "draft" || resp.ToTreasuryID == nil || *resp.ToTreasuryID != "safe" {
		t.Fatalf("unexpected transaction response: %+v", resp)
	}
	if resp.TagIDs == nil {
		t.Fatal("TagIDs must render as an empty list")
	}

	list := TransactionsFromDomain([]*domain.Transaction{tx})
	if len(list) != 1 || list[0].ID != "tx-1" {
		t.Fatalf("TransactionsFromDomain returned %+v", list)
	}
}

func TestInvoiceFromDomain(t *testing.T) {
	period := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	inv := &domain.Invoice{
		ID:            "inv-1",
		FromEntityID:  "alice",
		ToEntityID:    "ent_f0",
		Amounts:       []domain.InvoiceAmount{{Currency: "gel", Amount: decimal.NewFromInt(115)}, {Currency: "usd", Amount: decimal.NewFromInt(42)}},
		BillingPeriod: &period,
		Status:        domain.InvoiceStatusPending,
	}

	resp := InvoiceFromDomain(inv)
	if resp.BillingPeriod == nil || *resp.BillingPeriod != "2024-05-01" {
		t.Fatalf("BillingPeriod = %v", resp.BillingPeriod)
	}
	if len(resp.Amounts) != 2 || resp.Amounts[0].Amount != "115.00" || resp.Amounts[1].Currency != "usd" {
		t.Fatalf("Amounts = %+v", resp.Amounts)
	}
	if resp.Status != "pending" {
		t.Fatalf("Status = %q", resp.Status)
	}
}

func TestSplitFromDomain(t *testing.T) {
	fixed := decimal.RequireFromString("20")
	s := &domain.Split{
		ID:           "split-1",
		Amount:       decimal.RequireFromString("200"),
		Currency:     "gel",
		Participants: []domain.SplitParticipant{{EntityID: "alice"}, {EntityID: "bob", FixedAmount: &fixed}},
	}

	resp := SplitFromDomain(s)
	if resp.Amount != "200.00" || len(resp.Participants) != 2 {
		t.Fatalf("unexpected split response: %+v", resp)
	}
	if resp.Participants[0].FixedAmount != nil {
		t.Fatalf("alice should have no fixed amount")
	}
	if resp.Participants[1].FixedAmount == nil || *resp.Participants[1].FixedAmount != "20.00" {
		t.Fatalf("bob fixed amount = %v", resp.Participants[1].FixedAmount)
	}
	if resp.PerformedTransactionIDs == nil {
		t.Fatal("PerformedTransactionIDs must render as an empty list")
	}
}

func TestExchangeResponses(t *testing.T) {
	receipt := domain.ExchangeReceipt{
		EntityID:            "alice",
		SourceCurrency:      "usd",
		SourceAmount:        decimal.RequireFromString("10"),
		TargetCurrency:      "gel",
		TargetAmount:        decimal.RequireFromString("30"),
		Rate:                decimal.RequireFromString("3"),
		SourceTransactionID: "tx-1",
		TargetTransactionID: "tx-2",
	}

	runs := RunsFromDomain([]usecase.EntityRun{{EntityID: "alice", Receipts: []domain.ExchangeReceipt{receipt}}})
	if len(runs) != 1 || len(runs[0].Receipts) != 1 {
		t.Fatalf("unexpected runs: %+v", runs)
	}
	got := runs[0].Receipts[0]
	if got.SourceAmount != "10.00" || got.TargetAmount != "30.00" || got.Rate != "3.00" || got.TargetTransactionID != "tx-2" {
		t.Fatalf("unexpected receipt: %+v", got)
	}

	plans := PlansFromDomain([]usecase.EntityPlan{{EntityID: "alice", Steps: []domain.ExchangeStep{{
		SourceCurrency: "usd", SourceAmount: decimal.RequireFromString("10"),
		TargetCurrency: "gel", TargetAmount: decimal.RequireFromString("30"),
	}}}})
	if len(plans) != 1 || plans[0].Steps[0].TargetAmount != "30.00" {
		t.Fatalf("unexpected plans: %+v", plans)
	}

	rates := RatesFromDomain(domain.Rates{"usd": decimal.RequireFromString("2.6912")})
	if rates.Base != "gel" || rates.Rates["usd"] != "2.6912" {
		t.Fatalf("unexpected rates: %+v", rates)
	}
}

func TestConsistencyFromReport(t *testing.T) {
	report := &usecase.ReconciliationReport{
		TotalEntities:      3,
		ReconciledEntities: 2,
		Discrepancies:      []*usecase.ReconciliationResult{{EntityID: "bob"}},
		LedgerConsistent:   true,
		Totals:             map[string]decimal.Decimal{"usd": decimal.Zero},
	}

	resp := ConsistencyFromReport(report)
	if !resp.Consistent || resp.Totals["usd"] != "0.00" {
		t.Fatalf("unexpected consistency response: %+v", resp)
	}
	if len(resp.Discrepancies) != 1 || resp.Discrepancies[0] != "bob" {
		t.Fatalf("Discrepancies = %v", resp.Discrepancies)
	}
}

func TestFeeInvoicesFromReport(t *testing.T) {
	resp := FeeInvoicesFromReport(&usecase.FeeInvoiceReport{
		BillingPeriod: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		CreatedCount:  2,
		SkippedCount:  1,
	})
	if resp.BillingPeriod != "2024-06-01" || resp.Created != 2 || resp.Skipped != 1 || resp.InvoiceIDs == nil {
		t.Fatalf("unexpected fee response: %+v", resp)
	}
}
