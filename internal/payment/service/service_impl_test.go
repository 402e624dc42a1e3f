package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/duesledger/internal/clock"
	invoicedomain "github.com/smallbiznis/duesledger/internal/invoice/domain"
	invoicerepository "github.com/smallbiznis/duesledger/internal/invoice/repository"
	invoiceservice "github.com/smallbiznis/duesledger/internal/invoice/service"
	paymentdomain "github.com/smallbiznis/duesledger/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/duesledger/internal/payment/repository"
	paymentservice "github.com/smallbiznis/duesledger/internal/payment/service"
	"github.com/smallbiznis/duesledger/internal/testutil/dbtest"
	userrepository "github.com/smallbiznis/duesledger/internal/user/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newPaymentService(t *testing.T, db *gorm.DB, audit *dbtest.AuditRecorder) paymentdomain.Service {
	t.Helper()
	node := dbtest.Node(t)
	invoiceSvc := invoiceservice.NewService(invoiceservice.Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Repo:        invoicerepository.Provide(),
		PaymentRepo: paymentrepo.Provide(),
		UserRepo:    userrepository.Provide(),
		Clock:       clock.NewFakeClock(time.Date(2026, 3, 12, 10, 0, 0, 0, time.UTC)),
	})
	return paymentservice.NewService(paymentservice.Params{
		DB:         db,
		Log:        zap.NewNop(),
		Repo:       paymentrepo.Provide(),
		InvoiceSvc: invoiceSvc,
		AuditSvc:   audit,
	})
}

func TestCollectMarksInvoicePaid(t *testing.T) {
	db := dbtest.Open(t)
	audit := &dbtest.AuditRecorder{}
	svc := newPaymentService(t, db, audit)
	seed := dbtest.NewSeeder(t, db)
	resident := seed.Resident("rana", "B1", "2", "4")
	collector := seed.User("karim", "ADMIN")
	invoiceID := seed.Invoice(resident, 2026, 3, "200.00", "UNPAID")

	result, err := svc.Collect(context.Background(), paymentdomain.CollectRequest{
		UserID:      resident,
		InvoiceID:   invoiceID,
		Amount:      dbtest.Dec("200.00"),
		CollectorID: collector,
	})
	require.NoError(t, err)
	assert.Equal(t, "PAID", result.InvoiceStatus)
	assert.Equal(t, paymentdomain.MethodCash, result.Payment.Method)
	assert.True(t, result.Remaining.IsZero())
	assert.Equal(t, []string{"payment.collected"}, audit.Actions)

	_, err = svc.Collect(context.Background(), paymentdomain.CollectRequest{
		UserID:      resident,
		InvoiceID:   invoiceID,
		Amount:      dbtest.Dec("200.00"),
		CollectorID: collector,
	})
	assert.ErrorIs(t, err, invoicedomain.ErrAlreadyPaid)
}

func TestCollectValidation(t *testing.T) {
	db := dbtest.Open(t)
	svc := newPaymentService(t, db, &dbtest.AuditRecorder{})
	seed := dbtest.NewSeeder(t, db)
	resident := seed.Resident("rana", "B1", "2", "4")
	collector := seed.User("karim", "ADMIN")
	invoiceID := seed.Invoice(resident, 2026, 3, "200.00", "UNPAID")
	ctx := context.Background()

	cases := []struct {
		name string
		req  paymentdomain.CollectRequest
		want error
	}{
		{"zero amount", paymentdomain.CollectRequest{UserID: resident, InvoiceID: invoiceID, Amount: dbtest.Dec("0"), CollectorID: collector}, paymentdomain.ErrInvalidAmount},
		{"negative amount", paymentdomain.CollectRequest{UserID: resident, InvoiceID: invoiceID, Amount: dbtest.Dec("-5"), CollectorID: collector}, paymentdomain.ErrInvalidAmount},
		{"sub-cent amount", paymentdomain.CollectRequest{UserID: resident, InvoiceID: invoiceID, Amount: dbtest.Dec("10.005"), CollectorID: collector}, paymentdomain.ErrInvalidAmount},
		{"unknown method", paymentdomain.CollectRequest{UserID: resident, InvoiceID: invoiceID, Amount: dbtest.Dec("10"), Method: "CHEQUE", CollectorID: collector}, paymentdomain.ErrInvalidMethod},
		{"unknown invoice", paymentdomain.CollectRequest{UserID: resident, InvoiceID: snowflake.ID(7), Amount: dbtest.Dec("10"), CollectorID: collector}, invoicedomain.ErrInvoiceNotFound},
		{"over remainder", paymentdomain.CollectRequest{UserID: resident, InvoiceID: invoiceID, Amount: dbtest.Dec("250"), CollectorID: collector}, invoicedomain.ErrAmountExceedsRemaining},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Collect(ctx, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.Equal(t, int64(0), dbtest.Count(t, db, `SELECT COUNT(1) FROM payments`))
}

func TestListByCollectorNewestFirst(t *testing.T) {
	db := dbtest.Open(t)
	svc := newPaymentService(t, db, &dbtest.AuditRecorder{})
	seed := dbtest.NewSeeder(t, db)
	resident := seed.Resident("rana", "B1", "2", "4")
	collector := seed.User("karim", "ADMIN")
	other := seed.User("nadia", "ADMIN")
	jan := seed.Invoice(resident, 2026, 1, "200.00", "UNPAID")
	feb := seed.Invoice(resident, 2026, 2, "200.00", "UNPAID")
	ctx := context.Background()

	for _, invoiceID := range []snowflake.ID{jan, feb} {
		_, err := svc.Collect(ctx, paymentdomain.CollectRequest{
			UserID:      resident,
			InvoiceID:   invoiceID,
			Amount:      dbtest.Dec("100.00"),
			CollectorID: collector,
		})
		require.NoError(t, err)
	}
	seed.Payment(resident, feb, other, "25.00", "CASH")

	payments, err := svc.ListByCollector(ctx, collector, 0)
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.Equal(t, "Rana", payments[0].ResidentName)
	for _, p := range payments {
		assert.Equal(t, collector, p.CollectedBy)
	}

	onInvoice, err := svc.ListByInvoice(ctx, feb)
	require.NoError(t, err)
	assert.Len(t, onInvoice, 2)
}
