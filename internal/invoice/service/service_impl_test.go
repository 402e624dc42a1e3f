package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/duesledger/internal/clock"
	"github.com/smallbiznis/duesledger/internal/config"
	invoicedomain "github.com/smallbiznis/duesledger/internal/invoice/domain"
	"github.com/smallbiznis/duesledger/internal/invoice/repository"
	paymentdomain "github.com/smallbiznis/duesledger/internal/payment/domain"
	paymentrepository "github.com/smallbiznis/duesledger/internal/payment/repository"
	settlementrepository "github.com/smallbiznis/duesledger/internal/settlement/repository"
	"github.com/smallbiznis/duesledger/internal/testutil/dbtest"
	userrepository "github.com/smallbiznis/duesledger/internal/user/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db        *gorm.DB
	svc       *Service
	seed      *dbtest.Seeder
	audit     *dbtest.AuditRecorder
	resident  snowflake.ID
	collector snowflake.ID
	super     snowflake.ID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	audit := &dbtest.AuditRecorder{}
	svc := NewService(Params{
		DB:             db,
		Log:            zap.NewNop(),
		GenID:          dbtest.Node(t),
		Repo:           repository.Provide(),
		PaymentRepo:    paymentrepository.Provide(),
		SettlementRepo: settlementrepository.Provide(),
		UserRepo:       userrepository.Provide(),
		Policy:         config.NewStaticDuesPolicyHolder(config.DefaultDuesPolicy()),
		Clock:          clock.NewFakeClock(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)),
		AuditSvc:       audit,
	}).(*Service)

	seed := dbtest.NewSeeder(t, db)
	return &fixture{
		db:        db,
		svc:       svc,
		seed:      seed,
		audit:     audit,
		resident:  seed.Resident("rana", "B1", "2", "4"),
		collector: seed.User("karim", "ADMIN"),
		super:     seed.User("root", "SUPERADMIN"),
	}
}

func (f *fixture) cash(invoiceID snowflake.ID, amount string) (invoicedomain.ApplyPaymentResult, error) {
	return f.svc.ApplyPayment(context.Background(), nil, invoicedomain.ApplyPaymentRequest{
		InvoiceID:   invoiceID,
		UserID:      f.resident,
		Source:      invoicedomain.SourceCash,
		Amount:      dbtest.Dec(amount),
		CollectorID: f.collector,
	})
}

func amountPtr(s string) *decimal.Decimal {
	d := dbtest.Dec(s)
	return &d
}

func TestCreateUsesPolicyDefaults(t *testing.T) {
	f := newFixture(t)

	inv, err := f.svc.Create(context.Background(), invoicedomain.CreateInvoiceRequest{
		UserID:  f.resident,
		Year:    2026,
		Month:   2,
		ActorID: f.super,
	})
	require.NoError(t, err)
	assert.True(t, inv.Amount.Equal(dbtest.Dec("200")))
	assert.Equal(t, invoicedomain.InvoiceStatusUnpaid, inv.Status)
	assert.Equal(t, time.Date(2026, 2, 5, 0, 0, 0, 0, time.UTC), inv.DueDate)
	assert.Equal(t, []string{"invoice.created"}, f.audit.Actions)
}

func TestCreateRejectsDuplicatePeriod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := invoicedomain.CreateInvoiceRequest{UserID: f.resident, Year: 2026, Month: 4, Amount: amountPtr("150.00")}

	_, err := f.svc.Create(ctx, req)
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, req)
	assert.ErrorIs(t, err, invoicedomain.ErrDuplicateInvoice)
	assert.Equal(t, int64(1), dbtest.Count(t, f.db, `SELECT COUNT(1) FROM maintenance_invoices`))
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, invoicedomain.CreateInvoiceRequest{UserID: f.resident, Year: 1999, Month: 4})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidYear)

	_, err = f.svc.Create(ctx, invoicedomain.CreateInvoiceRequest{UserID: f.resident, Year: 2026, Month: 13})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidMonth)

	_, err = f.svc.Create(ctx, invoicedomain.CreateInvoiceRequest{UserID: f.resident, Year: 2026, Month: 4, Amount: amountPtr("0")})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidAmount)

	_, err = f.svc.Create(ctx, invoicedomain.CreateInvoiceRequest{UserID: f.collector, Year: 2026, Month: 4})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidUser)
}

func TestCreateBatchRunsThroughNextDecemberAndSkipsExisting(t *testing.T) {
	f := newFixture(t)
	f.seed.Invoice(f.resident, 2026, 5, "200.00", "UNPAID")

	created, err := f.svc.CreateBatch(context.Background(), nil, f.resident, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	// March 2026 through December 2027 minus the seeded May.
	assert.Len(t, created, 21)
	assert.Equal(t, 2026, created[0].Year)
	assert.Equal(t, 3, created[0].Month)
	assert.Equal(t, invoicedomain.InvoiceStatusUnpaid, created[0].Status)
	assert.Equal(t, invoicedomain.InvoiceStatusPending, created[1].Status)
	last := created[len(created)-1]
	assert.Equal(t, 2027, last.Year)
	assert.Equal(t, 12, last.Month)

	again, err := f.svc.CreateBatch(context.Background(), nil, f.resident, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestCollectRoundTripThenAlreadyPaid(t *testing.T) {
	f := newFixture(t)
	invoiceID := f.seed.Invoice(f.resident, 2026, 3, "200.00", "UNPAID")

	result, err := f.cash(invoiceID, "200.00")
	require.NoError(t, err)
	assert.True(t, result.MarkedPaid)
	require.NotNil(t, result.Payment)
	assert.Equal(t, paymentdomain.MethodCash, result.Payment.Method)

	status, paidDate := dbtest.InvoiceStatus(t, f.db, invoiceID)
	assert.Equal(t, "PAID", status)
	require.NotNil(t, paidDate)
	assert.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), paidDate.UTC())

	_, err = f.cash(invoiceID, "200.00")
	assert.ErrorIs(t, err, invoicedomain.ErrAlreadyPaid)
	assert.Equal(t, int64(1), dbtest.Count(t, f.db, `SELECT COUNT(1) FROM payments WHERE invoice_id = ?`, invoiceID))
}

func TestPartialCashPaymentsAccumulate(t *testing.T) {
	f := newFixture(t)
	invoiceID := f.seed.Invoice(f.resident, 2026, 3, "200.00", "UNPAID")

	first, err := f.cash(invoiceID, "50.00")
	require.NoError(t, err)
	assert.False(t, first.MarkedPaid)
	assert.True(t, first.Remaining.Equal(dbtest.Dec("150")))

	_, err = f.cash(invoiceID, "150.50")
	assert.ErrorIs(t, err, invoicedomain.ErrAmountExceedsRemaining)

	second, err := f.cash(invoiceID, "150.00")
	require.NoError(t, err)
	assert.True(t, second.MarkedPaid)

	paid, err := f.svc.Paid(context.Background(), nil, invoiceID)
	require.NoError(t, err)
	assert.True(t, paid.Equal(dbtest.Dec("200")))
}

func TestCashBlockedWhileAwaitingConfirmation(t *testing.T) {
	f := newFixture(t)
	invoiceID := f.seed.Invoice(f.resident, 2026, 3, "200.00", "PENDING_CONFIRMATION")

	_, err := f.cash(invoiceID, "200.00")
	assert.ErrorIs(t, err, invoicedomain.ErrAwaitingOnlineConfirmation)
	assert.Equal(t, int64(0), dbtest.Count(t, f.db, `SELECT COUNT(1) FROM payments`))
}

func TestApplyPaymentRejectsForeignInvoice(t *testing.T) {
	f := newFixture(t)
	other := f.seed.Resident("omar", "B1", "3", "1")
	invoiceID := f.seed.Invoice(other, 2026, 3, "200.00", "UNPAID")

	_, err := f.cash(invoiceID, "200.00")
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceNotFound)
}

func TestPartialOnlinePaymentReturnsInvoiceToUnpaid(t *testing.T) {
	f := newFixture(t)
	invoiceID := f.seed.Invoice(f.resident, 2026, 3, "200.00", "PENDING_CONFIRMATION")

	result, err := f.svc.ApplyPayment(context.Background(), nil, invoicedomain.ApplyPaymentRequest{
		InvoiceID:   invoiceID,
		Source:      invoicedomain.SourceOnline,
		Amount:      dbtest.Dec("120.00"),
		CollectorID: f.collector,
	})
	require.NoError(t, err)
	assert.False(t, result.MarkedPaid)
	assert.Equal(t, paymentdomain.MethodOnline, result.Payment.Method)

	status, _ := dbtest.InvoiceStatus(t, f.db, invoiceID)
	assert.Equal(t, "UNPAID", status)
}

func TestConcurrentCollectorsSerialize(t *testing.T) {
	f := newFixture(t)
	invoiceID := f.seed.Invoice(f.resident, 2026, 3, "200.00", "UNPAID")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.cash(invoiceID, "200.00")
		}(i)
	}
	wg.Wait()

	var ok, paid int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case assert.ErrorIs(t, err, invoicedomain.ErrAlreadyPaid):
			paid++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, paid)
	assert.Equal(t, int64(1), dbtest.Count(t, f.db, `SELECT COUNT(1) FROM payments`))
}

func TestDeleteGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	open := f.seed.Invoice(f.resident, 2026, 1, "200.00", "UNPAID")
	require.NoError(t, f.svc.Delete(ctx, open, f.super))
	_, err := f.svc.Get(ctx, open)
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceNotFound)

	withPayment := f.seed.Invoice(f.resident, 2026, 2, "200.00", "UNPAID")
	f.seed.Payment(f.resident, withPayment, f.collector, "50.00", "CASH")
	assert.ErrorIs(t, f.svc.Delete(ctx, withPayment, f.super), invoicedomain.ErrInvalidState)

	withClaim := f.seed.Invoice(f.resident, 2026, 3, "200.00", "UNPAID")
	f.seed.Claim(f.resident, withClaim, "200.00", "PENDING")
	assert.ErrorIs(t, f.svc.Delete(ctx, withClaim, f.super), invoicedomain.ErrInvalidState)

	paid := f.seed.Invoice(f.resident, 2026, 4, "200.00", "PAID")
	assert.ErrorIs(t, f.svc.Delete(ctx, paid, f.super), invoicedomain.ErrInvalidState)

	assert.ErrorIs(t, f.svc.Delete(ctx, snowflake.ID(42), f.super), invoicedomain.ErrInvoiceNotFound)
}

func TestOverrideToPaidCoversRemainder(t *testing.T) {
	f := newFixture(t)
	invoiceID := f.seed.Invoice(f.resident, 2026, 3, "200.00", "UNPAID")
	f.seed.Payment(f.resident, invoiceID, f.collector, "75.00", "CASH")

	result, err := f.svc.Override(context.Background(), invoicedomain.OverrideRequest{
		InvoiceID: invoiceID,
		Status:    invoicedomain.InvoiceStatusPaid,
		ActorID:   f.super,
	})
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, result.Invoice.Status)

	paid, err := f.svc.Paid(context.Background(), nil, invoiceID)
	require.NoError(t, err)
	assert.True(t, paid.Equal(dbtest.Dec("200")))
	assert.Contains(t, f.audit.Actions, "invoice.status_overridden")
}

func TestOverrideToUnpaidRemovesPayments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	invoiceID := f.seed.Invoice(f.resident, 2026, 3, "200.00", "UNPAID")
	_, err := f.cash(invoiceID, "200.00")
	require.NoError(t, err)

	result, err := f.svc.Override(ctx, invoicedomain.OverrideRequest{
		InvoiceID: invoiceID,
		Status:    invoicedomain.InvoiceStatusUnpaid,
		ActorID:   f.super,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.PaymentsRemoved)

	status, paidDate := dbtest.InvoiceStatus(t, f.db, invoiceID)
	assert.Equal(t, "UNPAID", status)
	assert.Nil(t, paidDate)
	assert.Equal(t, int64(0), dbtest.Count(t, f.db, `SELECT COUNT(1) FROM payments`))
}

func TestOverrideToUnpaidRefusesSettledPayments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	treasurer := f.seed.User("tariq", "TREASURER")
	invoiceID := f.seed.Invoice(f.resident, 2026, 3, "200.00", "UNPAID")
	_, err := f.cash(invoiceID, "200.00")
	require.NoError(t, err)
	f.seed.Settlement(f.collector, treasurer, "200.00")

	_, err = f.svc.Override(ctx, invoicedomain.OverrideRequest{
		InvoiceID: invoiceID,
		Status:    invoicedomain.InvoiceStatusUnpaid,
		ActorID:   f.super,
	})
	require.ErrorIs(t, err, invoicedomain.ErrPaymentsSettled)

	status, _ := dbtest.InvoiceStatus(t, f.db, invoiceID)
	assert.Equal(t, "PAID", status)
	assert.Equal(t, int64(1), dbtest.Count(t, f.db, `SELECT COUNT(1) FROM payments WHERE invoice_id = ?`, invoiceID))
	assert.NotContains(t, f.audit.Actions, "invoice.status_overridden")
}

func TestOverrideToUnpaidAllowedWhileCollectorStillCovered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	treasurer := f.seed.User("tariq", "TREASURER")
	older := f.seed.Invoice(f.resident, 2026, 2, "200.00", "UNPAID")
	_, err := f.cash(older, "200.00")
	require.NoError(t, err)
	invoiceID := f.seed.Invoice(f.resident, 2026, 3, "200.00", "UNPAID")
	_, err = f.cash(invoiceID, "200.00")
	require.NoError(t, err)
	f.seed.Settlement(f.collector, treasurer, "200.00")

	result, err := f.svc.Override(ctx, invoicedomain.OverrideRequest{
		InvoiceID: invoiceID,
		Status:    invoicedomain.InvoiceStatusUnpaid,
		ActorID:   f.super,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.PaymentsRemoved)

	paid := dbtest.Count(t, f.db, `SELECT COUNT(1) FROM payments WHERE collected_by = ?`, f.collector)
	assert.Equal(t, int64(1), paid)
}

func TestOverrideToPaidOnPaidInvoiceIsSilent(t *testing.T) {
	f := newFixture(t)
	invoiceID := f.seed.Invoice(f.resident, 2026, 3, "200.00", "UNPAID")
	_, err := f.cash(invoiceID, "200.00")
	require.NoError(t, err)

	result, err := f.svc.Override(context.Background(), invoicedomain.OverrideRequest{
		InvoiceID: invoiceID,
		Status:    invoicedomain.InvoiceStatusPaid,
		ActorID:   f.super,
	})
	require.NoError(t, err)
	assert.False(t, result.Changed)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, result.Invoice.Status)
	assert.NotContains(t, f.audit.Actions, "invoice.status_overridden")
	assert.Equal(t, int64(1), dbtest.Count(t, f.db, `SELECT COUNT(1) FROM payments`))
}

func TestOverrideToUnpaidBlockedByPendingClaim(t *testing.T) {
	f := newFixture(t)
	invoiceID := f.seed.Invoice(f.resident, 2026, 3, "200.00", "PENDING_CONFIRMATION")
	f.seed.Claim(f.resident, invoiceID, "200.00", "PENDING")

	_, err := f.svc.Override(context.Background(), invoicedomain.OverrideRequest{
		InvoiceID: invoiceID,
		Status:    invoicedomain.InvoiceStatusUnpaid,
		ActorID:   f.super,
	})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidState)

	_, err = f.svc.Override(context.Background(), invoicedomain.OverrideRequest{
		InvoiceID: invoiceID,
		Status:    invoicedomain.InvoiceStatusPendingConfirmation,
		ActorID:   f.super,
	})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidStatus)
}

func TestListByUserOrdersNewestFirstWithBalances(t *testing.T) {
	f := newFixture(t)
	jan := f.seed.Invoice(f.resident, 2026, 1, "200.00", "UNPAID")
	f.seed.Invoice(f.resident, 2025, 12, "200.00", "UNPAID")
	f.seed.Invoice(f.resident, 2026, 2, "200.00", "UNPAID")
	f.seed.Payment(f.resident, jan, f.collector, "50.00", "CASH")

	list, err := f.svc.ListByUser(context.Background(), f.resident)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []int{2, 1, 12}, []int{list[0].Month, list[1].Month, list[2].Month})
	assert.True(t, list[1].Paid.Equal(dbtest.Dec("50")))
	assert.True(t, list[1].Remaining.Equal(dbtest.Dec("150")))
}

func TestUnitsStatusReportsPaymentMethod(t *testing.T) {
	f := newFixture(t)
	online := f.seed.User("nadia", "ONLINE_ADMIN")
	second := f.seed.Resident("omar", "B1", "1", "2")
	third := f.seed.Resident("lina", "B1", "3", "1")
	f.seed.Resident("sami", "B2", "1", "1")

	first := f.seed.Invoice(f.resident, 2026, 3, "200.00", "PAID")
	f.seed.Payment(f.resident, first, online, "200.00", "ONLINE")
	secondInv := f.seed.Invoice(second, 2026, 3, "200.00", "UNPAID")
	f.seed.Payment(second, secondInv, f.collector, "50.00", "CASH")
	_ = third

	units, err := f.svc.UnitsStatus(context.Background(), "B1", 2026, 3)
	require.NoError(t, err)
	require.Len(t, units, 3)

	// floor 1, then 2, then 3
	assert.Equal(t, second, units[0].UserID)
	require.NotNil(t, units[0].PaymentMethod)
	assert.Equal(t, paymentdomain.MethodCash, *units[0].PaymentMethod)
	assert.True(t, units[0].PaidAmount.Equal(dbtest.Dec("50")))

	assert.Equal(t, f.resident, units[1].UserID)
	require.NotNil(t, units[1].PaymentMethod)
	assert.Equal(t, paymentdomain.MethodOnline, *units[1].PaymentMethod)

	assert.Equal(t, third, units[2].UserID)
	assert.Nil(t, units[2].InvoiceID)
	assert.Nil(t, units[2].Amount)
	assert.Nil(t, units[2].PaymentMethod)

	_, err = f.svc.UnitsStatus(context.Background(), " ", 2026, 3)
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidBuilding)
}
