package domain

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var defaultRules = Rules{CutoffDay: 5, MonthThreshold: 3}

func open(user snowflake.ID, year, month int, amount, paid string) OpenInvoice {
	return OpenInvoice{
		UserID:    user,
		FullName:  "Resident",
		Building:  "B1",
		InvoiceID: snowflake.ID(year*100 + month),
		Year:      year,
		Month:     month,
		Amount:    decimal.RequireFromString(amount),
		Paid:      decimal.RequireFromString(paid),
	}
}

func TestClassifyFiveUnpaidMonthsInJune(t *testing.T) {
	var rows []OpenInvoice
	for m := 1; m <= 5; m++ {
		rows = append(rows, open(1, 2026, m, "200.00", "0"))
	}
	today := time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC)

	out := Classify(rows, today, defaultRules)
	require.Len(t, out, 1)
	r := out[0]
	assert.True(t, r.MoreThan3Months)
	assert.False(t, r.CurrentMonthLate)
	assert.False(t, r.PartialPayment)
	assert.Len(t, r.Months, 5)
	assert.Equal(t, "1000.00", r.TotalUnpaid.StringFixed(2))

	var aged []int
	for _, line := range r.Months {
		if MonthsBetween(today, line.Year, line.Month) >= 3 {
			aged = append(aged, line.Month)
		}
	}
	assert.Equal(t, []int{1, 2, 3}, aged)
}

func TestClassifyCurrentMonthCutoff(t *testing.T) {
	rows := []OpenInvoice{open(1, 2026, 6, "200.00", "0")}

	assert.Empty(t, Classify(rows, time.Date(2026, 6, 5, 0, 0, 0, 0, time.UTC), defaultRules))

	out := Classify(rows, time.Date(2026, 6, 6, 0, 0, 0, 0, time.UTC), defaultRules)
	require.Len(t, out, 1)
	assert.True(t, out[0].CurrentMonthLate)
	assert.False(t, out[0].MoreThan3Months)
}

func TestClassifyPartialAndFullyPaid(t *testing.T) {
	today := time.Date(2026, 6, 2, 0, 0, 0, 0, time.UTC)
	rows := []OpenInvoice{
		open(1, 2026, 5, "200.00", "50.00"),
		open(2, 2026, 5, "200.00", "200.00"),
		open(3, 2026, 5, "200.00", "0"),
		open(4, 2026, 7, "200.00", "0"),
	}

	out := Classify(rows, today, defaultRules)
	require.Len(t, out, 1)
	assert.Equal(t, snowflake.ID(1), out[0].UserID)
	assert.True(t, out[0].PartialPayment)
	assert.Equal(t, "150.00", out[0].Months[0].Unpaid.StringFixed(2))
}

func TestClassifyAcrossYearBoundary(t *testing.T) {
	rows := []OpenInvoice{open(1, 2025, 10, "200.00", "0")}
	out := Classify(rows, time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC), defaultRules)
	require.Len(t, out, 1)
	assert.True(t, out[0].MoreThan3Months)
}
