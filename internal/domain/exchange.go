package domain

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Rates maps a currency to its value in BaseCurrency per one unit.
type Rates map[string]decimal.Decimal

// Rate returns the base-currency value of one unit of currency.
func (r Rates) Rate(currency string) (decimal.Decimal, bool) {
	if currency == BaseCurrency {
		return decimal.NewFromInt(1), true
	}
	rate, ok := r[currency]
	if !ok || !rate.IsPositive() {
		return decimal.Zero, false
	}
	return rate, true
}

// Convert converts amount from one currency to another, rounding down to cents.
func (r Rates) Convert(amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	fromRate, ok := r.Rate(from)
	if !ok {
		return decimal.Zero, ErrRateNotAvailable
	}
	toRate, ok := r.Rate(to)
	if !ok {
		return decimal.Zero, ErrRateNotAvailable
	}
	return RoundDown(amount.Mul(fromRate).Div(toRate)), nil
}

// DisplayRate is the quoted rate between two currencies, always >= 1.
func (r Rates) DisplayRate(from, to string) (decimal.Decimal, error) {
	fromRate, ok := r.Rate(from)
	if !ok {
		return decimal.Zero, ErrRateNotAvailable
	}
	toRate, ok := r.Rate(to)
	if !ok {
		return decimal.Zero, ErrRateNotAvailable
	}
	ratio := fromRate.Div(toRate)
	if ratio.LessThan(decimal.NewFromInt(1)) {
		ratio = toRate.Div(fromRate)
	}
	return RoundDown(ratio), nil
}

// ExchangeStep is one planned conversion. When UseTargetAmount is set the
// step must credit exactly TargetAmount.
type ExchangeStep struct {
	SourceCurrency  string
	SourceAmount    decimal.Decimal
	TargetCurrency  string
	TargetAmount    decimal.Decimal
	UseTargetAmount bool
}

// ExchangeReceipt records an executed conversion for an entity.
type ExchangeReceipt struct {
	EntityID            string
	SourceCurrency      string
	SourceAmount        decimal.Decimal
	TargetCurrency      string
	TargetAmount        decimal.Decimal
	Rate                decimal.Decimal
	SourceTransactionID string
	TargetTransactionID string
}

// ExchangeQuote is the outcome of a manual conversion request.
type ExchangeQuote struct {
	EntityID       string
	SourceCurrency string
	SourceAmount   decimal.Decimal
	TargetCurrency string
	TargetAmount   decimal.Decimal
	Rate           decimal.Decimal
}

// QuoteExchange derives the missing side of a manual conversion. Exactly one
// of sourceAmount and targetAmount must be set.
func QuoteExchange(rates Rates, sourceCurrency, targetCurrency string, sourceAmount, targetAmount *decimal.Decimal) (ExchangeQuote, error) {
	if (sourceAmount == nil) == (targetAmount == nil) {
		return ExchangeQuote{}, ErrExchangeAmountRequired
	}
	if sourceCurrency == targetCurrency {
		return ExchangeQuote{}, ErrExchangeSameCurrency
	}

	q := ExchangeQuote{SourceCurrency: sourceCurrency, TargetCurrency: targetCurrency}
	var err error
	if sourceAmount != nil {
		if err := ValidateAmount(*sourceAmount); err != nil {
			return ExchangeQuote{}, err
		}
		q.SourceAmount = *sourceAmount
		q.TargetAmount, err = rates.Convert(q.SourceAmount, sourceCurrency, targetCurrency)
	} else {
		if err := ValidateAmount(*targetAmount); err != nil {
			return ExchangeQuote{}, err
		}
		q.TargetAmount = *targetAmount
		q.SourceAmount, err = rates.Convert(q.TargetAmount, targetCurrency, sourceCurrency)
	}
	if err != nil {
		return ExchangeQuote{}, err
	}
	if q.SourceAmount.IsZero() || q.TargetAmount.IsZero() {
		return ExchangeQuote{}, ErrExchangeAmountZero
	}

	q.Rate, err = rates.DisplayRate(sourceCurrency, targetCurrency)
	if err != nil {
		return ExchangeQuote{}, err
	}
	return q, nil
}

type planEntry struct {
	currency  string
	amount    decimal.Decimal
	rate      decimal.Decimal
	baseValue decimal.Decimal
}

// PlanExchanges produces the ordered conversions that cover negative balances
// with positive ones. Largest debts are covered first, each from the smallest
// sources first. Currencies without a rate are ignored, and a step whose
// source or target amount rounds to zero is skipped, so a debt worth less
// than one cent of every source stays open.
func PlanExchanges(balances map[string]decimal.Decimal, rates Rates) []ExchangeStep {
	var debts, sources []*planEntry
	for currency, amount := range balances {
		rate, ok := rates.Rate(currency)
		if !ok || amount.IsZero() {
			continue
		}
		e := &planEntry{currency: currency, amount: amount.Abs(), rate: rate}
		e.baseValue = e.amount.Mul(rate)
		if amount.IsNegative() {
			debts = append(debts, e)
		} else {
			sources = append(sources, e)
		}
	}
	if len(debts) == 0 || len(sources) == 0 {
		return nil
	}

	sort.Slice(debts, func(i, j int) bool {
		if c := debts[i].baseValue.Cmp(debts[j].baseValue); c != 0 {
			return c > 0
		}
		return debts[i].currency < debts[j].currency
	})

	var steps []ExchangeStep
	for _, debt := range debts {
		candidates := make([]*planEntry, 0, len(sources))
		for _, s := range sources {
			if s.currency != debt.currency && s.amount.IsPositive() {
				candidates = append(candidates, s)
			}
		}
		sort.SliceStable(candidates, func(i, j int) bool {
			vi := candidates[i].amount.Mul(candidates[i].rate)
			vj := candidates[j].amount.Mul(candidates[j].rate)
			if c := vi.Cmp(vj); c != 0 {
				return c < 0
			}
			return candidates[i].currency < candidates[j].currency
		})

		for _, src := range candidates {
			if !debt.amount.IsPositive() {
				break
			}
			needed := debt.amount.Mul(debt.rate).Div(src.rate)

			step := ExchangeStep{SourceCurrency: src.currency, TargetCurrency: debt.currency}
			if src.amount.GreaterThanOrEqual(needed) {
				step.UseTargetAmount = true
				step.TargetAmount = debt.amount
				step.SourceAmount = RoundDown(needed)
			} else {
				step.SourceAmount = RoundDown(src.amount)
				step.TargetAmount = Quantize(step.SourceAmount.Mul(src.rate).Div(debt.rate))
			}
			if !step.SourceAmount.IsPositive() || !step.TargetAmount.IsPositive() {
				continue
			}

			src.amount = src.amount.Sub(step.SourceAmount)
			debt.amount = debt.amount.Sub(step.TargetAmount)
			steps = append(steps, step)
		}
	}
	return steps
}
