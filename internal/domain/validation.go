package domain

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Validation constants
const (
	MaxCommentLength = 4096
	// MaxAmount keeps amounts inside the NUMERIC(20, 2) columns.
	MaxAmount = "1000000000000"
)

var maxAmount = decimal.RequireFromString(MaxAmount)

var currencyRegex = regexp.MustCompile(`^[a-z]{3}$`)

// NormalizeCurrency lower-cases and validates a currency code.
func NormalizeCurrency(currency string) (string, error) {
	c := strings.ToLower(strings.TrimSpace(currency))
	if !currencyRegex.MatchString(c) {
		return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, currency)
	}
	return c, nil
}

// ValidateAmount validates a transaction or split amount.
func ValidateAmount(amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}

	if !amount.Equal(amount.Truncate(2)) {
		return fmt.Errorf("%w: %s has more than 2 decimal places", ErrInvalidAmount, amount)
	}

	if amount.GreaterThan(maxAmount) {
		return fmt.Errorf("%w: maximum amount is %s", ErrInvalidAmount, MaxAmount)
	}

	return nil
}

// ValidateComment validates free-text comments
func ValidateComment(comment string) error {
	if len(comment) > MaxCommentLength {
		return fmt.Errorf("%w: comment exceeds %d characters", ErrInvalidComment, MaxCommentLength)
	}
	return nil
}

// ValidatePagination validates and limits pagination parameters
func ValidatePagination(limit, offset int) (int, int) {
	const MaxPageSize = 1000
	const DefaultPageSize = 50

	if limit <= 0 {
		limit = DefaultPageSize
	}

	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	if offset < 0 {
		offset = 0
	}

	return limit, offset
}
