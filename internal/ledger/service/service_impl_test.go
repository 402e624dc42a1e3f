package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/duesledger/internal/audit/domain"
	"github.com/smallbiznis/duesledger/internal/clock"
	ledgerdomain "github.com/smallbiznis/duesledger/internal/ledger/domain"
	"github.com/smallbiznis/duesledger/internal/ledger/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type mockAuditSvc struct {
	mock.Mock
}

func (m *mockAuditSvc) AuditLog(ctx context.Context, actorType string, actorID *string, action string, targetType string, targetID *string, metadata map[string]any) error {
	args := m.Called(ctx, actorType, actorID, action, targetType, targetID, metadata)
	return args.Error(0)
}

func (m *mockAuditSvc) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(auditdomain.ListAuditLogResponse), args.Error(1)
}

func setupLedgerDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Exec(`CREATE TABLE union_ledger_entries (
		id INTEGER PRIMARY KEY,
		seq INTEGER NOT NULL UNIQUE,
		entry_type TEXT NOT NULL,
		debit NUMERIC NOT NULL DEFAULT 0,
		credit NUMERIC NOT NULL DEFAULT 0,
		balance_after NUMERIC NOT NULL,
		description TEXT NOT NULL,
		source_type TEXT NOT NULL,
		source_id INTEGER NOT NULL,
		author_id INTEGER NOT NULL,
		created_at DATETIME NOT NULL
	)`).Error)
	return db
}

func newLedgerService(t *testing.T, db *gorm.DB) *Service {
	t.Helper()
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	return NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.Provide(),
		Clock: clock.NewFakeClock(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)),
	}).(*Service)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func credit(amount string) ledgerdomain.AppendRequest {
	return ledgerdomain.AppendRequest{
		EntryType:   ledgerdomain.EntryTypeSettlement,
		Credit:      dec(amount),
		Description: "collector hand-over",
		SourceType:  ledgerdomain.SourceTypeSettlement,
		SourceID:    snowflake.ID(11),
		AuthorID:    snowflake.ID(21),
	}
}

func debit(amount string) ledgerdomain.AppendRequest {
	return ledgerdomain.AppendRequest{
		EntryType:   ledgerdomain.EntryTypeExpense,
		Debit:       dec(amount),
		Description: "gate repair",
		SourceType:  ledgerdomain.SourceTypeExpense,
		SourceID:    snowflake.ID(12),
		AuthorID:    snowflake.ID(21),
	}
}

func TestAppendSeedsEmptyLedgerFromFirstEntry(t *testing.T) {
	svc := newLedgerService(t, setupLedgerDB(t))
	ctx := context.Background()

	entry, err := svc.Append(ctx, nil, credit("300.00"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), entry.Seq)
	assert.True(t, entry.BalanceAfter.Equal(dec("300")))

	balance, err := svc.Balance(ctx)
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("300")))
}

func TestAppendMaintainsRunningBalance(t *testing.T) {
	svc := newLedgerService(t, setupLedgerDB(t))
	ctx := context.Background()

	steps := []ledgerdomain.AppendRequest{credit("300.00"), debit("120.50"), credit("50.25"), debit("30.00")}
	for _, step := range steps {
		_, err := svc.Append(ctx, nil, step)
		require.NoError(t, err)
	}

	resp, err := svc.List(ctx, ledgerdomain.ListRequest{})
	require.NoError(t, err)
	require.Len(t, resp.Entries, 4)

	entries := resp.Entries
	for i := len(entries) - 2; i >= 0; i-- {
		prev := entries[i+1]
		cur := entries[i]
		assert.Equal(t, prev.Seq+1, cur.Seq)
		assert.True(t, cur.BalanceAfter.Equal(prev.BalanceAfter.Add(cur.Credit).Sub(cur.Debit)),
			"seq %d balance %s", cur.Seq, cur.BalanceAfter)
	}

	balance, err := svc.Balance(ctx)
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("199.75")), balance.String())

	result, err := svc.Verify(ctx)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, int64(4), result.Entries)
	assert.True(t, result.Balance.Equal(dec("199.75")))
}

func TestConcurrentAppendsKeepChainIntact(t *testing.T) {
	svc := newLedgerService(t, setupLedgerDB(t))
	ctx := context.Background()

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := range writers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Append(ctx, nil, credit("10.00"))
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		require.NoError(t, err, "writer %d", i)
	}

	result, err := svc.Verify(ctx)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Nil(t, result.FirstBrokenSeq)
	assert.Equal(t, int64(writers), result.Entries)
	assert.True(t, result.Balance.Equal(dec("80.00")), result.Balance.String())
}

func TestAppendAllowsNegativeBalance(t *testing.T) {
	svc := newLedgerService(t, setupLedgerDB(t))

	entry, err := svc.Append(context.Background(), nil, debit("40.00"))
	require.NoError(t, err)
	assert.True(t, entry.BalanceAfter.Equal(dec("-40")))
}

func TestAppendRejectsInvalidAmounts(t *testing.T) {
	svc := newLedgerService(t, setupLedgerDB(t))
	ctx := context.Background()

	both := credit("10.00")
	both.Debit = dec("5.00")
	neither := credit("0")
	negative := credit("-5")
	fractional := credit("1.001")

	for name, req := range map[string]ledgerdomain.AppendRequest{
		"both":       both,
		"neither":    neither,
		"negative":   negative,
		"fractional": fractional,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Append(ctx, nil, req)
			assert.ErrorIs(t, err, ledgerdomain.ErrInvalidEntryAmounts)
		})
	}

	badType := credit("10")
	badType.EntryType = "REFUND"
	_, err := svc.Append(ctx, nil, badType)
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidEntryType)

	balance, err := svc.Balance(ctx)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
}

func TestAppendInsideCallerTransactionRollsBack(t *testing.T) {
	db := setupLedgerDB(t)
	svc := newLedgerService(t, db)
	ctx := context.Background()

	_, err := svc.Append(ctx, nil, credit("100.00"))
	require.NoError(t, err)

	err = db.Transaction(func(tx *gorm.DB) error {
		if _, err := svc.Append(ctx, tx, debit("60.00")); err != nil {
			return err
		}
		return fmt.Errorf("settlement insert failed")
	})
	require.Error(t, err)

	balance, err := svc.Balance(ctx)
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("100")))
}

func TestDuplicateSeqMapsToLedgerConflict(t *testing.T) {
	db := setupLedgerDB(t)
	repo := repository.Provide()
	ctx := context.Background()

	entry := &ledgerdomain.Entry{
		ID: 1, Seq: 1, EntryType: ledgerdomain.EntryTypeFundraiser,
		Credit: dec("10"), BalanceAfter: dec("10"), Description: "x",
		SourceType: ledgerdomain.SourceTypeFundraiser, SourceID: 1, AuthorID: 1,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, repo.Insert(ctx, db, entry))

	dup := *entry
	dup.ID = 2
	assert.ErrorIs(t, repo.Insert(ctx, db, &dup), ledgerdomain.ErrLedgerConflict)
}

func TestVerifyReportsFirstBrokenSeq(t *testing.T) {
	db := setupLedgerDB(t)
	svc := newLedgerService(t, db)
	ctx := context.Background()

	for _, req := range []ledgerdomain.AppendRequest{credit("100"), credit("50"), debit("20")} {
		_, err := svc.Append(ctx, nil, req)
		require.NoError(t, err)
	}
	// Simulate an out-of-band edit on the second row.
	require.NoError(t, db.Exec(`UPDATE union_ledger_entries SET balance_after = 999 WHERE seq = 2`).Error)

	result, err := svc.Verify(ctx)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	require.NotNil(t, result.FirstBrokenSeq)
	assert.Equal(t, int64(2), *result.FirstBrokenSeq)
	assert.True(t, result.Expected.Equal(dec("150")))
}

func TestListPaginatesBySeq(t *testing.T) {
	svc := newLedgerService(t, setupLedgerDB(t))
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := svc.Append(ctx, nil, credit("10"))
		require.NoError(t, err)
	}

	req := ledgerdomain.ListRequest{}
	req.PageSize = 2
	page1, err := svc.List(ctx, req)
	require.NoError(t, err)
	require.Len(t, page1.Entries, 2)
	assert.Equal(t, int64(5), page1.Entries[0].Seq)
	assert.True(t, page1.HasMore)

	req.PageToken = page1.NextPageToken
	page2, err := svc.List(ctx, req)
	require.NoError(t, err)
	require.Len(t, page2.Entries, 2)
	assert.Equal(t, int64(3), page2.Entries[0].Seq)

	req.EntryType = "BOGUS"
	_, err = svc.List(ctx, req)
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidEntryType)
}

func TestPublishedWritesAudit(t *testing.T) {
	db := setupLedgerDB(t)
	svc := newLedgerService(t, db)
	audit := new(mockAuditSvc)
	svc.auditSvc = audit
	audit.On("AuditLog", mock.Anything, "user", mock.Anything, "ledger.entry_appended", "union_ledger_entry", mock.Anything, mock.Anything).Return(nil).Once()

	_, err := svc.Append(context.Background(), nil, credit("10"))
	require.NoError(t, err)
	audit.AssertExpectations(t)
}
