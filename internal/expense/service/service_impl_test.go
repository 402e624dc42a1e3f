package service

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/duesledger/internal/clock"
	"github.com/smallbiznis/duesledger/internal/expense/domain"
	"github.com/smallbiznis/duesledger/internal/expense/repository"
	ledgerdomain "github.com/smallbiznis/duesledger/internal/ledger/domain"
	ledgerrepository "github.com/smallbiznis/duesledger/internal/ledger/repository"
	ledgerservice "github.com/smallbiznis/duesledger/internal/ledger/service"
	"github.com/smallbiznis/duesledger/internal/testutil/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newExpenseService(t *testing.T, db *gorm.DB, audit *dbtest.AuditRecorder) (domain.Service, ledgerdomain.Service) {
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

func TestCreateExpenseDebitsLedger(t *testing.T) {
	db := dbtest.Open(t)
	audit := &dbtest.AuditRecorder{}
	svc, ledgerSvc := newExpenseService(t, db, audit)
	treasurer := dbtest.NewSeeder(t, db).User("tala", "TREASURER")
	ctx := context.Background()

	_, err := ledgerSvc.Append(ctx, nil, ledgerdomain.AppendRequest{
		EntryType:   ledgerdomain.EntryTypeFundraiser,
		Credit:      dbtest.Dec("1000.00"),
		Description: "Spring drive",
		SourceType:  ledgerdomain.SourceTypeFundraiser,
		SourceID:    7,
		AuthorID:    treasurer,
	})
	require.NoError(t, err)

	result, err := svc.Create(ctx, domain.CreateExpenseRequest{
		Title:    " Elevator repair ",
		Category: "maintenance",
		Amount:   dbtest.Dec("350.50"),
		AuthorID: treasurer,
	})
	require.NoError(t, err)
	assert.Equal(t, "Elevator repair", result.Expense.Title)
	assert.Equal(t, time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC), result.Expense.SpentOn)
	assert.Equal(t, int64(2), result.LedgerSeq)
	assert.Equal(t, "649.50", result.UnionBalance.StringFixed(2))

	tail, err := ledgerSvc.Tail(ctx)
	require.NoError(t, err)
	assert.Equal(t, ledgerdomain.EntryTypeExpense, tail.EntryType)
	assert.Equal(t, "350.50", tail.Debit.StringFixed(2))
	assert.True(t, tail.Credit.IsZero())
	assert.Equal(t, result.Expense.ID, tail.SourceID)
	assert.Equal(t, []string{"expense.recorded"}, audit.Actions)
}

func TestCreateExpenseValidation(t *testing.T) {
	db := dbtest.Open(t)
	svc, _ := newExpenseService(t, db, &dbtest.AuditRecorder{})
	ctx := context.Background()

	_, err := svc.Create(ctx, domain.CreateExpenseRequest{Title: " ", Amount: dbtest.Dec("1"), AuthorID: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidTitle)

	_, err = svc.Create(ctx, domain.CreateExpenseRequest{Title: "Paint", Amount: dbtest.Dec("-1"), AuthorID: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = svc.Create(ctx, domain.CreateExpenseRequest{Title: "Paint", Amount: dbtest.Dec("1")})
	assert.ErrorIs(t, err, domain.ErrInvalidAuthor)

	assert.Equal(t, int64(0), dbtest.Count(t, db, `SELECT COUNT(1) FROM union_ledger_entries`))
}

func TestListExpensesByMonth(t *testing.T) {
	db := dbtest.Open(t)
	svc, _ := newExpenseService(t, db, &dbtest.AuditRecorder{})
	treasurer := dbtest.NewSeeder(t, db).User("tala", "TREASURER")
	ctx := context.Background()

	for _, day := range []time.Time{
		time.Date(2026, 2, 27, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
	} {
		spent := day
		_, err := svc.Create(ctx, domain.CreateExpenseRequest{Title: "Cleaning", Amount: dbtest.Dec("10"), SpentOn: &spent, AuthorID: treasurer})
		require.NoError(t, err)
	}

	march, err := svc.List(ctx, domain.ListExpensesRequest{Year: 2026, Month: 3})
	require.NoError(t, err)
	require.Len(t, march, 2)
	assert.Equal(t, 31, march[0].SpentOn.Day())

	all, err := svc.List(ctx, domain.ListExpensesRequest{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = svc.List(ctx, domain.ListExpensesRequest{Month: 3})
	assert.ErrorIs(t, err, domain.ErrInvalidPeriod)
}
