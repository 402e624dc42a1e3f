package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestSummaryCanSettle(t *testing.T) {
	summary := NewSummary(decimal.RequireFromString("500.00"), decimal.RequireFromString("300.00"), 4)
	assert.True(t, summary.OutstandingAmount.Equal(decimal.RequireFromString("200.00")))

	assert.True(t, summary.CanSettle(decimal.RequireFromString("200.00")))
	assert.True(t, summary.CanSettle(decimal.RequireFromString("199.99")))
	assert.False(t, summary.CanSettle(decimal.RequireFromString("250.00")))
	assert.False(t, summary.CanSettle(decimal.RequireFromString("200.01")))
}
