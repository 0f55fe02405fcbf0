package usecase

import (
	"strconv"

	"github.com/refinance/ledger/internal/domain"
	"github.com/refinance/ledger/internal/infrastructure/metrics"
)

// Modes recorded for invoice payments and exchanges.
const (
	PaymentModeManual  = "manual"
	PaymentModeAuto    = "auto"
	ExchangeModeManual = "manual"
	ExchangeModeAuto   = "auto"
)

func observeError(m *metrics.Metrics, err error) {
	if m == nil || err == nil {
		return
	}
	if code := domain.CodeOf(err); code != 0 {
		m.TransactionErrors.WithLabelValues(strconv.Itoa(code)).Inc()
	}
}

func observeTransaction(m *metrics.Metrics, t *domain.Transaction) {
	if m == nil {
		return
	}
	m.TransactionsCreated.WithLabelValues(t.Currency, string(t.Status)).Inc()
	if t.InvoiceID != nil && t.IsCompleted() {
		m.InvoicesPaid.WithLabelValues(PaymentModeManual).Inc()
	}
}

func observeExchange(m *metrics.Metrics, mode string, receipts ...domain.ExchangeReceipt) {
	if m == nil {
		return
	}
	for _, r := range receipts {
		m.ExchangesExecuted.WithLabelValues(r.SourceCurrency, r.TargetCurrency, mode).Inc()
	}
}
