// Package money holds the fixed-point rules shared by every amount the
// service accepts: positive, at most two fractional digits.
package money

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

const Places = 2

var ErrInvalidAmount = errors.New("invalid_amount")

// Tolerance absorbs rounding when comparing against derived balances.
var Tolerance = decimal.New(1, -6)

// Parse reads a positive amount with at most two fractional digits.
func Parse(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if !Valid(d) {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// Valid reports whether d is a positive amount in minor-unit precision.
func Valid(d decimal.Decimal) bool {
	return d.IsPositive() && d.Equal(d.Round(Places))
}

// Exceeds reports amount > limit beyond Tolerance.
func Exceeds(amount, limit decimal.Decimal) bool {
	return amount.GreaterThan(limit.Add(Tolerance))
}

// Sum adds amounts.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}
