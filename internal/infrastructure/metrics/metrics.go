package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Transaction metrics
	TransactionsCreated *prometheus.CounterVec
	TransactionErrors   *prometheus.CounterVec

	// Invoice metrics
	InvoicesPaid   *prometheus.CounterVec
	InvoicesIssued prometheus.Counter

	// Split metrics
	SplitsPerformed prometheus.Counter

	// Exchange metrics
	ExchangesExecuted *prometheus.CounterVec
	ExchangeErrors    prometheus.Counter

	// Ledger metrics
	LedgerConsistent prometheus.Gauge

	// Scheduler metrics
	JobRuns     *prometheus.CounterVec
	JobDuration *prometheus.HistogramVec

	// API metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
	HTTPInFlight prometheus.Gauge
}

// New creates all metrics and registers them with reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		TransactionsCreated: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_transactions_created_total",
				Help: "Total number of transactions created by currency and status",
			},
			[]string{"currency", "status"},
		),
		TransactionErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_transaction_errors_total",
				Help: "Total number of rejected ledger operations by error code",
			},
			[]string{"code"},
		),

		InvoicesPaid: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_invoices_paid_total",
				Help: "Total number of invoices paid by mode",
			},
			[]string{"mode"},
		),
		InvoicesIssued: f.NewCounter(prometheus.CounterOpts{
			Name: "ledger_fee_invoices_issued_total",
			Help: "Total number of monthly fee invoices issued",
		}),

		SplitsPerformed: f.NewCounter(prometheus.CounterOpts{
			Name: "ledger_splits_performed_total",
			Help: "Total number of splits performed",
		}),

		ExchangesExecuted: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_exchanges_executed_total",
				Help: "Total number of currency exchanges by source and target currency",
			},
			[]string{"source", "target", "mode"},
		),
		ExchangeErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "ledger_exchange_errors_total",
			Help: "Total number of failed exchange runs",
		}),

		LedgerConsistent: f.NewGauge(prometheus.GaugeOpts{
			Name: "ledger_consistent",
			Help: "1 when confirmed balances close to zero in every currency at the last check",
		}),

		JobRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_job_runs_total",
				Help: "Total number of scheduled job runs by job and result",
			},
			[]string{"job", "result"},
		),
		JobDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_job_duration_seconds",
				Help:    "Duration of scheduled job runs",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"job"},
		),

		HTTPRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		}),
	}
}

// Result labels a job run outcome.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
