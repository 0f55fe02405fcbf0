package domain

import "github.com/shopspring/decimal"

// BaseCurrency is the unit exchange rates are expressed in.
const BaseCurrency = "gel"

// Cent is the smallest representable amount.
var Cent = decimal.New(1, -2)

// Quantize rounds half away from zero to cents.
func Quantize(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// RoundDown truncates toward zero to cents.
func RoundDown(d decimal.Decimal) decimal.Decimal {
	return d.Truncate(2)
}

// FormatAmount renders an amount with exactly two fractional digits.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}
