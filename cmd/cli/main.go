package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/refinance/ledger/internal/adapter/http/dto"
	"github.com/refinance/ledger/internal/adapter/http/handler"
	"github.com/refinance/ledger/internal/infrastructure/config"
	"github.com/refinance/ledger/internal/infrastructure/logger"
	"github.com/refinance/ledger/internal/infrastructure/postgres"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type options struct {
	baseURL string
	actor   string
	timeout time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "ledger-cli",
		Short:         "Ledger CLI tool",
		Long:          `A command line interface for the ledger API and its database migrations.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.baseURL, "url", "http://localhost:8080", "Base URL of the ledger API")
	rootCmd.PersistentFlags().StringVar(&opts.actor, "actor", "", "Entity ID recorded as the actor of mutations")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "Request timeout")

	rootCmd.AddCommand(
		balanceCmd(opts),
		exchangeCmd(opts),
		autoBalanceCmd(opts),
		invoicesCmd(opts),
		ledgerCmd(opts),
		migrateCmd(),
	)
	return rootCmd
}

// apiClient talks to the ledger HTTP API.
type apiClient struct {
	baseURL string
	actor   string
	http    *http.Client
}

func (o *options) client() *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(o.baseURL, "/"),
		actor:   o.actor,
		http:    &http.Client{Timeout: o.timeout},
	}
}

// apiError is a non-2xx answer from the API.
type apiError struct {
	Status int
	Body   dto.ErrorResponse
}

func (e *apiError) Error() string {
	if e.Body.Code != 0 {
		return fmt.Sprintf("%s: %s (code %d, status %d)", e.Body.Error, e.Body.Message, e.Body.Code, e.Status)
	}
	if e.Body.Error != "" {
		return fmt.Sprintf("%s (status %d)", e.Body.Error, e.Status)
	}
	return fmt.Sprintf("request failed with status %d", e.Status)
}

// do sends body as JSON and returns the raw response of a 2xx answer.
func (c *apiClient) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.actor != "" {
		req.Header.Set(handler.ActorHeader, c.actor)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &apiError{Status: resp.StatusCode}
		_ = json.Unmarshal(raw, &apiErr.Body)
		return raw, apiErr
	}
	return raw, nil
}

// printJSON re-indents a JSON document.
func printJSON(w io.Writer, raw []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		_, err = w.Write(raw)
		return err
	}
	buf.WriteByte('\n')
	_, err := w.Write(buf.Bytes())
	return err
}

func (o *options) call(cmd *cobra.Command, method, path string, body any) error {
	raw, err := o.client().do(cmd.Context(), method, path, body)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		return nil
	}
	return printJSON(cmd.OutOrStdout(), raw)
}

func balanceCmd(opts *options) *cobra.Command {
	var asOf string
	cmd := &cobra.Command{
		Use:   "balance <entity-id>",
		Short: "Show confirmed and non-confirmed balances of an entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/balances/" + url.PathEscape(args[0])
			if asOf != "" {
				if _, err := time.Parse(time.RFC3339, asOf); err != nil {
					return fmt.Errorf("--as-of must be RFC3339: %w", err)
				}
				path += "?as_of=" + url.QueryEscape(asOf)
			}
			return opts.call(cmd, http.MethodGet, path, nil)
		},
	}
	cmd.Flags().StringVar(&asOf, "as-of", "", "Only count transactions created at or before this RFC3339 time")
	return cmd
}

func exchangeCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exchange",
		Short: "Currency exchange operations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "rates",
		Short: "Show the current exchange rate table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.call(cmd, http.MethodGet, "/api/v1/currency_exchange/rates", nil)
		},
	})

	cmd.AddCommand(exchangeRequestCmd(opts, "preview", "Quote an exchange without recording it", "/api/v1/currency_exchange/preview"))
	cmd.AddCommand(exchangeRequestCmd(opts, "run", "Exchange currencies of an entity", "/api/v1/currency_exchange/exchange"))
	return cmd
}

func exchangeRequestCmd(opts *options, use, short, path string) *cobra.Command {
	var req dto.ExchangeRequest
	var sourceAmount, targetAmount string

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (sourceAmount == "") == (targetAmount == "") {
				return fmt.Errorf("exactly one of --source-amount or --target-amount is required")
			}
			var err error
			if req.SourceAmount, err = parseAmount("source-amount", sourceAmount); err != nil {
				return err
			}
			if req.TargetAmount, err = parseAmount("target-amount", targetAmount); err != nil {
				return err
			}
			return opts.call(cmd, http.MethodPost, path, req)
		},
	}
	cmd.Flags().StringVar(&req.EntityID, "entity", "", "Entity whose balances are exchanged")
	cmd.Flags().StringVar(&req.SourceCurrency, "from", "", "Source currency")
	cmd.Flags().StringVar(&req.TargetCurrency, "to", "", "Target currency")
	cmd.Flags().StringVar(&sourceAmount, "source-amount", "", "Amount of the source currency to sell")
	cmd.Flags().StringVar(&targetAmount, "target-amount", "", "Amount of the target currency to buy")
	_ = cmd.MarkFlagRequired("entity")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func parseAmount(flag, raw string) (*decimal.Decimal, error) {
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", flag, err)
	}
	return &d, nil
}

func autoBalanceCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auto-balance",
		Short: "Cover negative balances from positive ones of other currencies",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "preview",
		Short: "Show the exchanges a run would perform",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.call(cmd, http.MethodGet, "/api/v1/currency_exchange/auto_balance/preview", nil)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "run [entity-id]",
		Short: "Auto-balance every eligible entity, or just one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/currency_exchange/auto_balance/run"
			if len(args) == 1 {
				path = "/api/v1/currency_exchange/auto_balance/" + url.PathEscape(args[0]) + "/run"
			}
			return opts.call(cmd, http.MethodPost, path, nil)
		},
	})
	return cmd
}

func invoicesCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invoices",
		Short: "Invoice operations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "auto-pay",
		Short: "Pay the oldest pending invoice of every entity that can afford it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.call(cmd, http.MethodPost, "/api/v1/invoices/auto_pay", nil)
		},
	})

	var period string
	fees := &cobra.Command{
		Use:   "fees",
		Short: "Issue monthly fee invoices for residents and members",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var req dto.IssueFeesRequest
			if period != "" {
				if _, err := dto.ParseBillingPeriod(&period); err != nil {
					return err
				}
				req.BillingPeriod = &period
			}
			return opts.call(cmd, http.MethodPost, "/api/v1/invoices/fees", req)
		},
	}
	fees.Flags().StringVar(&period, "period", "", "Billing period ("+dto.BillingPeriodLayout+"), defaults to the current month")
	cmd.AddCommand(fees)
	return cmd
}

func ledgerCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Ledger operations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "consistency",
		Short: "Check ledger consistency",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return checkConsistency(cmd, opts)
		},
	})
	return cmd
}

func checkConsistency(cmd *cobra.Command, opts *options) error {
	raw, err := opts.client().do(cmd.Context(), http.MethodGet, "/api/v1/ledger/consistency", nil)
	out := cmd.OutOrStdout()

	var report dto.ConsistencyResponse
	if len(raw) > 0 && json.Unmarshal(raw, &report) == nil && report.Totals != nil {
		status := "PASSED"
		if !report.Consistent {
			status = "FAILED"
		}
		fmt.Fprintf(out, "Consistency check %s\n", status)
		fmt.Fprintf(out, "Consistent: %v\n", report.Consistent)
		fmt.Fprintf(out, "Entities reconciled: %d/%d\n", report.ReconciledEntities, report.TotalEntities)
		for _, d := range report.Discrepancies {
			fmt.Fprintf(out, "  %s\n", d)
		}
		if !report.Consistent {
			return fmt.Errorf("ledger is inconsistent")
		}
		return nil
	}
	if err != nil {
		return err
	}
	return printJSON(out, raw)
}

// migrator is the part of postgres.Migrator the CLI drives.
type migrator interface {
	Up() error
	Down() error
	Version() (uint, bool, error)
}

var newMigrator = func(databaseURL, path string, log zerolog.Logger) migrator {
	return postgres.NewMigrator(databaseURL, path, log)
}

func migrateCmd() *cobra.Command {
	var databaseURL, path string

	open := func(cmd *cobra.Command) (migrator, error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		if databaseURL == "" {
			databaseURL = cfg.DatabaseURL
		}
		if path == "" {
			path = cfg.MigrationsPath
		}
		log := logger.New(logger.Config{Level: cfg.LogLevel, Format: logger.FormatConsole, Service: "ledger-cli", Output: cmd.ErrOrStderr()})
		return newMigrator(databaseURL, path, log), nil
	}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
	}
	cmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "PostgreSQL URL, defaults to DATABASE_URL")
	cmd.PersistentFlags().StringVar(&path, "path", "", "Migrations directory, defaults to MIGRATIONS_PATH")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := open(cmd)
			if err != nil {
				return err
			}
			return m.Up()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the last migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := open(cmd)
			if err != nil {
				return err
			}
			return m.Down()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := open(cmd)
			if err != nil {
				return err
			}
			version, dirty, err := m.Version()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version: %d dirty: %v\n", version, dirty)
			return nil
		},
	})
	return cmd
}
