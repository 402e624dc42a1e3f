package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/duesledger/internal/clock"
	"github.com/smallbiznis/duesledger/internal/fundraiser/domain"
	"github.com/smallbiznis/duesledger/internal/fundraiser/repository"
	ledgerdomain "github.com/smallbiznis/duesledger/internal/ledger/domain"
	ledgerrepository "github.com/smallbiznis/duesledger/internal/ledger/repository"
	ledgerservice "github.com/smallbiznis/duesledger/internal/ledger/service"
	"github.com/smallbiznis/duesledger/internal/testutil/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newFundraiserService(t *testing.T, db *gorm.DB, audit *dbtest.AuditRecorder) (domain.Service, ledgerdomain.Service) {
	t.Helper()
	node := dbtest.Node(t)
	fake := clock.NewFakeClock(time.Date(2026, 3, 12, 10, 0, 0, 0, time.UTC))
	ledgerSvc := ledgerservice.NewService(ledgerservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  ledgerrepository.Provide(),
		Clock: fake,
	})
	return NewService(Params{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Repo:      repository.Provide(),
		LedgerSvc: ledgerSvc,
		Clock:     fake,
		AuditSvc:  audit,
	}), ledgerSvc
}

func TestFundraiserAmountEditsAppendSignedAdjustments(t *testing.T) {
	db := dbtest.Open(t)
	audit := &dbtest.AuditRecorder{}
	svc, ledgerSvc := newFundraiserService(t, db, audit)
	treasurer := dbtest.NewSeeder(t, db).User("tala", "TREASURER")
	ctx := context.Background()

	created, err := svc.Create(ctx, domain.CreateFundraiserRequest{
		Name:     "Ramadan Lights!",
		Amount:   dbtest.Dec("500.00"),
		Year:     2026,
		Month:    3,
		AuthorID: treasurer,
	})
	require.NoError(t, err)
	assert.Equal(t, "ramadan-lights", created.Fundraiser.Slug)
	assert.Equal(t, int64(1), created.LedgerSeq)
	assert.Equal(t, "500.00", created.UnionBalance.StringFixed(2))

	lower := dbtest.Dec("420.00")
	updated, err := svc.Update(ctx, domain.UpdateFundraiserRequest{ID: created.Fundraiser.ID, Amount: &lower, AuthorID: treasurer})
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.LedgerSeq)
	assert.Equal(t, "420.00", updated.UnionBalance.StringFixed(2))

	tail, err := ledgerSvc.Tail(ctx)
	require.NoError(t, err)
	assert.Equal(t, ledgerdomain.EntryTypeFundraiserAdjustment, tail.EntryType)
	assert.Equal(t, "80.00", tail.Debit.StringFixed(2))
	assert.True(t, tail.Credit.IsZero())

	higher := dbtest.Dec("600.00")
	updated, err = svc.Update(ctx, domain.UpdateFundraiserRequest{ID: created.Fundraiser.ID, Amount: &higher, AuthorID: treasurer})
	require.NoError(t, err)
	assert.Equal(t, "600.00", updated.UnionBalance.StringFixed(2))

	// the original credit stays untouched
	entries, err := ledgerSvc.List(ctx, ledgerdomain.ListRequest{})
	require.NoError(t, err)
	require.Len(t, entries.Entries, 3)
	for _, e := range entries.Entries {
		if e.Seq == 1 {
			assert.True(t, e.Credit.Equal(decimal.RequireFromString("500")))
		}
	}

	assert.Equal(t, []string{"fundraiser.created", "fundraiser.updated", "fundraiser.updated"}, audit.Actions)
}

func TestFundraiserRenameWithoutAmountSkipsLedger(t *testing.T) {
	db := dbtest.Open(t)
	svc, _ := newFundraiserService(t, db, &dbtest.AuditRecorder{})
	treasurer := dbtest.NewSeeder(t, db).User("tala", "TREASURER")
	ctx := context.Background()

	created, err := svc.Create(ctx, domain.CreateFundraiserRequest{Name: "Garden", Amount: dbtest.Dec("100"), Year: 2026, Month: 3, AuthorID: treasurer})
	require.NoError(t, err)

	name := "Garden Renovation"
	same := dbtest.Dec("100.00")
	updated, err := svc.Update(ctx, domain.UpdateFundraiserRequest{ID: created.Fundraiser.ID, Name: &name, Amount: &same, AuthorID: treasurer})
	require.NoError(t, err)
	assert.Equal(t, "garden-renovation", updated.Fundraiser.Slug)
	assert.Zero(t, updated.LedgerSeq)
	assert.Equal(t, "100.00", updated.UnionBalance.StringFixed(2))
	assert.Equal(t, int64(1), dbtest.Count(t, db, `SELECT COUNT(1) FROM union_ledger_entries`))
}

func TestFundraiserGuards(t *testing.T) {
	db := dbtest.Open(t)
	svc, _ := newFundraiserService(t, db, &dbtest.AuditRecorder{})
	treasurer := dbtest.NewSeeder(t, db).User("tala", "TREASURER")
	ctx := context.Background()

	_, err := svc.Create(ctx, domain.CreateFundraiserRequest{Name: "Garden", Amount: dbtest.Dec("100"), Year: 2026, Month: 3, AuthorID: treasurer})
	require.NoError(t, err)

	_, err = svc.Create(ctx, domain.CreateFundraiserRequest{Name: "garden", Amount: dbtest.Dec("50"), Year: 2026, Month: 3, AuthorID: treasurer})
	assert.ErrorIs(t, err, domain.ErrDuplicateFundraiser)
	assert.Equal(t, int64(1), dbtest.Count(t, db, `SELECT COUNT(1) FROM union_ledger_entries`))

	_, err = svc.Create(ctx, domain.CreateFundraiserRequest{Name: "!!!", Amount: dbtest.Dec("50"), Year: 2026, Month: 3, AuthorID: treasurer})
	assert.ErrorIs(t, err, domain.ErrInvalidName)

	_, err = svc.Create(ctx, domain.CreateFundraiserRequest{Name: "Pool", Amount: dbtest.Dec("50"), Year: 2026, Month: 13, AuthorID: treasurer})
	assert.ErrorIs(t, err, domain.ErrInvalidPeriod)

	zero := dbtest.Dec("0")
	_, err = svc.Update(ctx, domain.UpdateFundraiserRequest{ID: 1, Amount: &zero, AuthorID: treasurer})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = svc.Update(ctx, domain.UpdateFundraiserRequest{ID: 1, AuthorID: treasurer})
	assert.ErrorIs(t, err, domain.ErrFundraiserNotFound)
}

func TestListFundraisersNewestPeriodFirst(t *testing.T) {
	db := dbtest.Open(t)
	svc, _ := newFundraiserService(t, db, &dbtest.AuditRecorder{})
	treasurer := dbtest.NewSeeder(t, db).User("tala", "TREASURER")
	ctx := context.Background()

	for _, p := range []struct{ year, month int }{{2025, 12}, {2026, 2}, {2026, 3}} {
		_, err := svc.Create(ctx, domain.CreateFundraiserRequest{Name: "Drive", Amount: dbtest.Dec("10"), Year: p.year, Month: p.month, AuthorID: treasurer})
		require.NoError(t, err)
	}

	all, err := svc.List(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, 2026, all[0].Year)
	assert.Equal(t, 3, all[0].Month)
	assert.Equal(t, 2025, all[2].Year)

	only, err := svc.List(ctx, 2026, 2)
	require.NoError(t, err)
	require.Len(t, only, 1)

	_, err = svc.List(ctx, 2026, 14)
	assert.ErrorIs(t, err, domain.ErrInvalidPeriod)
}
