package service

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/duesledger/internal/clock"
	"github.com/smallbiznis/duesledger/internal/config"
	"github.com/smallbiznis/duesledger/internal/overdue/domain"
	"github.com/smallbiznis/duesledger/internal/overdue/repository"
	"github.com/smallbiznis/duesledger/internal/testutil/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestReportScopesAndFlags(t *testing.T) {
	db := dbtest.Open(t)
	svc := NewService(Params{
		DB:     db,
		Log:    zap.NewNop(),
		Repo:   repository.Provide(),
		Policy: config.NewStaticDuesPolicyHolder(config.DefaultDuesPolicy()),
		Clock:  clock.NewFakeClock(time.Date(2026, 6, 10, 9, 0, 0, 0, time.UTC)),
	})
	seed := dbtest.NewSeeder(t, db)
	collector := seed.User("karim", "ADMIN")

	rana := seed.Resident("rana", "B1", "1", "2")
	for m := 1; m <= 5; m++ {
		seed.Invoice(rana, 2026, m, "200.00", "UNPAID")
	}
	seed.Invoice(rana, 2026, 7, "200.00", "PENDING")

	omar := seed.Resident("omar", "B2", "3", "1")
	partial := seed.Invoice(omar, 2026, 5, "200.00", "UNPAID")
	seed.Payment(omar, partial, collector, "80.00", "CASH")

	lina := seed.Resident("lina", "B1", "1", "1")
	paid := seed.Invoice(lina, 2026, 5, "200.00", "PAID")
	seed.Payment(lina, paid, collector, "200.00", "CASH")
	seed.Invoice(lina, 2026, 6, "200.00", "UNPAID")

	ctx := context.Background()
	report, err := svc.Report(ctx, domain.ReportRequest{})
	require.NoError(t, err)
	assert.Equal(t, "2026-06-10", report.AsOf)
	require.Len(t, report.Residents, 3)

	// ordered by building, floor, apartment
	assert.Equal(t, "Lina", report.Residents[0].FullName)
	assert.True(t, report.Residents[0].CurrentMonthLate)
	assert.Len(t, report.Residents[0].Months, 1)

	assert.Equal(t, "Rana", report.Residents[1].FullName)
	assert.True(t, report.Residents[1].MoreThan3Months)
	assert.Len(t, report.Residents[1].Months, 5)
	assert.Equal(t, "1000.00", report.Residents[1].TotalUnpaid.StringFixed(2))

	assert.Equal(t, "Omar", report.Residents[2].FullName)
	assert.True(t, report.Residents[2].PartialPayment)
	assert.Equal(t, "120.00", report.Residents[2].TotalUnpaid.StringFixed(2))

	b2, err := svc.Report(ctx, domain.ReportRequest{Building: "B2"})
	require.NoError(t, err)
	require.Len(t, b2.Residents, 1)
	assert.Equal(t, omar, b2.Residents[0].UserID)

	scoped, err := svc.Report(ctx, domain.ReportRequest{Buildings: []string{"B2"}})
	require.NoError(t, err)
	assert.Len(t, scoped.Residents, 1)

	_, err = svc.Report(ctx, domain.ReportRequest{Building: "B1", Buildings: []string{"B2"}})
	assert.ErrorIs(t, err, domain.ErrOutOfScope)

	none, err := svc.Report(ctx, domain.ReportRequest{Buildings: []string{}})
	require.NoError(t, err)
	assert.Empty(t, none.Residents)
}
