package scheduler

import (
	"context"
	"time"

	"github.com/refinance/ledger/internal/usecase"
)

// Ledger job names.
const (
	JobAutoExchange   = "auto-exchange"
	JobInvoiceAutoPay = "invoice-auto-pay"
	JobFeeInvoices    = "fee-invoices"
)

// Exchanger auto-balances entity currencies.
type Exchanger interface {
	RunForAll(ctx context.Context, actorEntityID string) ([]usecase.EntityRun, error)
}

// Biller pays and issues invoices.
type Biller interface {
	AutoPayOldestInvoices(ctx context.Context) (int, error)
	IssueFeeInvoices(ctx context.Context, billingPeriod *time.Time, actorEntityID string) (*usecase.FeeInvoiceReport, error)
}

// Retrier reruns an operation aborted by a transient storage conflict.
type Retrier interface {
	Retry(ctx context.Context, operation func() error) error
}

// LedgerJobs wires the recurring ledger jobs.
type LedgerJobs struct {
	Exchange      Exchanger
	Invoices      Biller
	ActorEntityID string
	// Retrier is optional. Every job body is safe to repeat.
	Retrier Retrier

	AutoExchangeAt   Trigger
	InvoiceAutoPayAt Trigger
	FeeInvoicesAt    Trigger
}

// RegisterLedgerJobs registers auto-exchange, invoice auto-pay and the monthly
// fee run. Fee invoices are only issued on the first day of the month.
func RegisterLedgerJobs(s *Scheduler, jobs LedgerJobs) error {
	retry := func(ctx context.Context, op func() error) error {
		if jobs.Retrier == nil {
			return op()
		}
		return jobs.Retrier.Retry(ctx, op)
	}

	if err := s.Register(JobAutoExchange, jobs.AutoExchangeAt, func(ctx context.Context) error {
		return retry(ctx, func() error {
			runs, err := jobs.Exchange.RunForAll(ctx, jobs.ActorEntityID)
			s.logger.Info().Int("entities", len(runs)).Msg("auto-exchange run")
			return err
		})
	}); err != nil {
		return err
	}

	if err := s.Register(JobInvoiceAutoPay, jobs.InvoiceAutoPayAt, func(ctx context.Context) error {
		return retry(ctx, func() error {
			paid, err := jobs.Invoices.AutoPayOldestInvoices(ctx)
			s.logger.Info().Int("paid", paid).Msg("invoice auto-pay run")
			return err
		})
	}); err != nil {
		return err
	}

	return s.Register(JobFeeInvoices, jobs.FeeInvoicesAt, func(ctx context.Context) error {
		now := s.Now().In(jobs.FeeInvoicesAt.Location())
		if now.Day() != 1 {
			s.logger.Debug().Time("now", now).Msg("fee invoices are issued on the first day of the month")
			return nil
		}
		period := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return retry(ctx, func() error {
			_, err := jobs.Invoices.IssueFeeInvoices(ctx, &period, jobs.ActorEntityID)
			return err
		})
	})
}
