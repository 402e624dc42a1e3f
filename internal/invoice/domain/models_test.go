package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 14, 16, 30, 0, 0, time.UTC)

func TestMarkPaidGuardsBySource(t *testing.T) {
	cases := []struct {
		name   string
		status InvoiceStatus
		source PaymentSource
		want   error
	}{
		{"cash from unpaid", InvoiceStatusUnpaid, SourceCash, nil},
		{"cash from pending", InvoiceStatusPending, SourceCash, nil},
		{"cash from paid", InvoiceStatusPaid, SourceCash, ErrAlreadyPaid},
		{"cash while awaiting confirmation", InvoiceStatusPendingConfirmation, SourceCash, ErrAwaitingOnlineConfirmation},
		{"online while awaiting confirmation", InvoiceStatusPendingConfirmation, SourceOnline, nil},
		{"online from paid", InvoiceStatusPaid, SourceOnline, ErrAlreadyPaid},
		{"override from paid", InvoiceStatusPaid, SourceOverride, nil},
		{"override while awaiting confirmation", InvoiceStatusPendingConfirmation, SourceOverride, nil},
		{"unknown source", InvoiceStatusUnpaid, PaymentSource("CHEQUE"), ErrInvalidSource},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			inv := &Invoice{Status: tc.status}
			err := inv.MarkPaid(tc.source, now)
			if tc.want != nil {
				assert.ErrorIs(t, err, tc.want)
				assert.Equal(t, tc.status, inv.Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, InvoiceStatusPaid, inv.Status)
			require.NotNil(t, inv.PaidDate)
		})
	}
}

func TestMarkPaidStampsCalendarDate(t *testing.T) {
	inv := &Invoice{Status: InvoiceStatusUnpaid}
	require.NoError(t, inv.MarkPaid(SourceCash, now))
	assert.Equal(t, time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC), *inv.PaidDate)
}

func TestAwaitConfirmationAndRevert(t *testing.T) {
	inv := &Invoice{Status: InvoiceStatusPending}
	require.NoError(t, inv.AwaitConfirmation(now))
	assert.Equal(t, InvoiceStatusPendingConfirmation, inv.Status)

	assert.ErrorIs(t, inv.AwaitConfirmation(now), ErrAwaitingOnlineConfirmation)

	assert.True(t, inv.RevertToUnpaid(now))
	assert.Equal(t, InvoiceStatusUnpaid, inv.Status)
	assert.Nil(t, inv.PaidDate)

	assert.False(t, inv.RevertToUnpaid(now))

	paid := &Invoice{Status: InvoiceStatusPaid}
	assert.ErrorIs(t, paid.AwaitConfirmation(now), ErrAlreadyPaid)
	assert.False(t, paid.RevertToUnpaid(now))
	assert.Equal(t, InvoiceStatusPaid, paid.Status)
}

func TestCheckDeletable(t *testing.T) {
	assert.NoError(t, (&Invoice{Status: InvoiceStatusUnpaid}).CheckDeletable(0, 0))
	assert.ErrorIs(t, (&Invoice{Status: InvoiceStatusPaid}).CheckDeletable(0, 0), ErrInvalidState)
	assert.ErrorIs(t, (&Invoice{Status: InvoiceStatusPendingConfirmation}).CheckDeletable(0, 0), ErrInvalidState)
	assert.ErrorIs(t, (&Invoice{Status: InvoiceStatusUnpaid}).CheckDeletable(1, 0), ErrInvalidState)
	assert.ErrorIs(t, (&Invoice{Status: InvoiceStatusUnpaid}).CheckDeletable(0, 1), ErrInvalidState)
}

func TestDueDateForClampsToMonthEnd(t *testing.T) {
	assert.Equal(t, time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC), DueDateFor(2026, 2, 31))
	assert.Equal(t, time.Date(2028, 2, 29, 0, 0, 0, 0, time.UTC), DueDateFor(2028, 2, 30))
	assert.Equal(t, time.Date(2026, 7, 5, 0, 0, 0, 0, time.UTC), DueDateFor(2026, 7, 5))
	assert.Equal(t, time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC), DueDateFor(2026, 7, 0))
}

func TestMonthsBefore(t *testing.T) {
	inv := &Invoice{Year: 2025, Month: 11}
	assert.Equal(t, 4, inv.MonthsBefore(2026, time.March))
	assert.Equal(t, 0, inv.MonthsBefore(2025, time.November))
	assert.Equal(t, -1, inv.MonthsBefore(2025, time.October))
}

func TestValidatePeriod(t *testing.T) {
	assert.NoError(t, ValidatePeriod(2026, 12))
	assert.ErrorIs(t, ValidatePeriod(1999, 1), ErrInvalidYear)
	assert.ErrorIs(t, ValidatePeriod(2026, 13), ErrInvalidMonth)
	assert.ErrorIs(t, ValidatePeriod(2026, 0), ErrInvalidMonth)
}
