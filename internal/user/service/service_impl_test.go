package service

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/duesledger/internal/clock"
	"github.com/smallbiznis/duesledger/internal/config"
	invoicerepository "github.com/smallbiznis/duesledger/internal/invoice/repository"
	invoiceservice "github.com/smallbiznis/duesledger/internal/invoice/service"
	paymentrepository "github.com/smallbiznis/duesledger/internal/payment/repository"
	"github.com/smallbiznis/duesledger/internal/testutil/dbtest"
	"github.com/smallbiznis/duesledger/internal/user/domain"
	"github.com/smallbiznis/duesledger/internal/user/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newUserService(t *testing.T, db *gorm.DB, audit *dbtest.AuditRecorder) domain.Service {
	t.Helper()
	node := dbtest.Node(t)
	fake := clock.NewFakeClock(time.Date(2026, 11, 20, 8, 0, 0, 0, time.UTC))
	repo := repository.Provide()

	invoiceSvc := invoiceservice.NewService(invoiceservice.Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Repo:        invoicerepository.Provide(),
		PaymentRepo: paymentrepository.Provide(),
		UserRepo:    repo,
		Policy:      config.NewStaticDuesPolicyHolder(config.DefaultDuesPolicy()),
		Clock:       fake,
	})
	return New(Params{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Repo:       repo,
		InvoiceSvc: invoiceSvc,
		Clock:      fake,
		AuditSvc:   audit,
	})
}

func TestOnboardCreatesResidentAndInvoiceBatch(t *testing.T) {
	db := dbtest.Open(t)
	audit := &dbtest.AuditRecorder{}
	svc := newUserService(t, db, audit)

	result, err := svc.Onboard(context.Background(), domain.OnboardRequest{
		Username:  "  Rana.H ",
		FullName:  "Rana Haddad",
		Building:  "B1",
		Floor:     "2",
		Apartment: "4",
	})
	require.NoError(t, err)
	assert.Equal(t, "rana.h", result.Resident.Username)
	// November and December 2026, then all of 2027.
	assert.Equal(t, 14, result.InvoiceCount)
	assert.Equal(t, int64(14), dbtest.Count(t, db, `SELECT COUNT(1) FROM maintenance_invoices WHERE user_id = ?`, result.Resident.ID))
	assert.Equal(t, []string{"user.resident_onboarded"}, audit.Actions)

	resident, err := svc.GetResident(context.Background(), result.Resident.ID)
	require.NoError(t, err)
	assert.Equal(t, "B1", resident.Building)
}

func TestOnboardRollsBackOnDuplicateUsername(t *testing.T) {
	db := dbtest.Open(t)
	svc := newUserService(t, db, &dbtest.AuditRecorder{})
	dbtest.NewSeeder(t, db).User("rana", "RESIDENT")

	_, err := svc.Onboard(context.Background(), domain.OnboardRequest{Username: "rana", FullName: "Rana", Building: "B1"})
	assert.ErrorIs(t, err, domain.ErrDuplicateUsername)
	assert.Equal(t, int64(0), dbtest.Count(t, db, `SELECT COUNT(1) FROM maintenance_invoices`))
	assert.Equal(t, int64(0), dbtest.Count(t, db, `SELECT COUNT(1) FROM person_details`))
}

func TestOnboardValidation(t *testing.T) {
	svc := newUserService(t, dbtest.Open(t), &dbtest.AuditRecorder{})
	ctx := context.Background()

	_, err := svc.Onboard(ctx, domain.OnboardRequest{Username: "ab", FullName: "A", Building: "B1"})
	assert.ErrorIs(t, err, domain.ErrInvalidUsername)

	_, err = svc.Onboard(ctx, domain.OnboardRequest{Username: "abc", FullName: " ", Building: "B1"})
	assert.ErrorIs(t, err, domain.ErrInvalidName)

	_, err = svc.Onboard(ctx, domain.OnboardRequest{Username: "abc", FullName: "Abc"})
	assert.ErrorIs(t, err, domain.ErrInvalidBuilding)
}

func TestCreateStaffRejectsResidentRole(t *testing.T) {
	svc := newUserService(t, dbtest.Open(t), &dbtest.AuditRecorder{})

	_, err := svc.CreateStaff(context.Background(), domain.CreateStaffRequest{Username: "karim", FullName: "Karim", Role: domain.RoleResident})
	assert.ErrorIs(t, err, domain.ErrInvalidRole)

	staff, err := svc.CreateStaff(context.Background(), domain.CreateStaffRequest{Username: "karim", FullName: "Karim", Role: domain.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, staff.Role)

	admins, err := svc.ListByRole(context.Background(), domain.RoleAdmin)
	require.NoError(t, err)
	require.Len(t, admins, 1)
	assert.Equal(t, staff.ID, admins[0].ID)
}

func TestAssignBuildingsReplacesScope(t *testing.T) {
	db := dbtest.Open(t)
	svc := newUserService(t, db, &dbtest.AuditRecorder{})
	seed := dbtest.NewSeeder(t, db)
	collector := seed.User("karim", "ADMIN")
	treasurer := seed.User("tala", "TREASURER")
	ctx := context.Background()

	buildings, err := svc.AssignBuildings(ctx, collector, []string{"B2", " B1", "B2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"B1", "B2"}, buildings)

	_, err = svc.AssignBuildings(ctx, collector, []string{"B3"})
	require.NoError(t, err)
	stored, err := svc.Buildings(ctx, collector)
	require.NoError(t, err)
	assert.Equal(t, []string{"B3"}, stored)

	_, err = svc.AssignBuildings(ctx, treasurer, []string{"B1"})
	assert.ErrorIs(t, err, domain.ErrNotCollector)

	_, err = svc.AssignBuildings(ctx, collector, []string{""})
	assert.ErrorIs(t, err, domain.ErrInvalidBuilding)
}
