package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	auditrepository "github.com/smallbiznis/duesledger/internal/audit/repository"
	auditservice "github.com/smallbiznis/duesledger/internal/audit/service"
	"github.com/smallbiznis/duesledger/internal/auth"
	"github.com/smallbiznis/duesledger/internal/auth/token"
	"github.com/smallbiznis/duesledger/internal/authorization"
	"github.com/smallbiznis/duesledger/internal/clock"
	"github.com/smallbiznis/duesledger/internal/config"
	expenserepository "github.com/smallbiznis/duesledger/internal/expense/repository"
	expenseservice "github.com/smallbiznis/duesledger/internal/expense/service"
	fundraiserrepository "github.com/smallbiznis/duesledger/internal/fundraiser/repository"
	fundraiserservice "github.com/smallbiznis/duesledger/internal/fundraiser/service"
	invoicerepository "github.com/smallbiznis/duesledger/internal/invoice/repository"
	invoiceservice "github.com/smallbiznis/duesledger/internal/invoice/service"
	ledgerrepository "github.com/smallbiznis/duesledger/internal/ledger/repository"
	ledgerservice "github.com/smallbiznis/duesledger/internal/ledger/service"
	onlinepaymentrepository "github.com/smallbiznis/duesledger/internal/onlinepayment/repository"
	onlinepaymentservice "github.com/smallbiznis/duesledger/internal/onlinepayment/service"
	overduerepository "github.com/smallbiznis/duesledger/internal/overdue/repository"
	overdueservice "github.com/smallbiznis/duesledger/internal/overdue/service"
	paymentrepository "github.com/smallbiznis/duesledger/internal/payment/repository"
	paymentservice "github.com/smallbiznis/duesledger/internal/payment/service"
	settlementrepository "github.com/smallbiznis/duesledger/internal/settlement/repository"
	settlementservice "github.com/smallbiznis/duesledger/internal/settlement/service"
	"github.com/smallbiznis/duesledger/internal/testutil/dbtest"
	userdomain "github.com/smallbiznis/duesledger/internal/user/domain"
	userrepository "github.com/smallbiznis/duesledger/internal/user/repository"
	userservice "github.com/smallbiznis/duesledger/internal/user/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testServer struct {
	t      *testing.T
	db     *gorm.DB
	seed   *dbtest.Seeder
	tokens *token.Issuer
	engine *gin.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := dbtest.Open(t)
	node := dbtest.Node(t)
	log := zap.NewNop()
	fake := clock.NewFakeClock(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	policy := config.NewStaticDuesPolicyHolder(config.DefaultDuesPolicy())

	userRepo := userrepository.Provide()
	paymentRepo := paymentrepository.Provide()

	auditSvc := auditservice.NewService(auditservice.Params{DB: db, Log: log, GenID: node, Repo: auditrepository.Provide()})
	invoiceSvc := invoiceservice.NewService(invoiceservice.Params{
		DB: db, Log: log, GenID: node, Repo: invoicerepository.Provide(),
		PaymentRepo: paymentRepo, SettlementRepo: settlementrepository.Provide(), UserRepo: userRepo,
		Policy: policy, Clock: fake, AuditSvc: auditSvc,
	})
	ledgerSvc := ledgerservice.NewService(ledgerservice.Params{DB: db, Log: log, GenID: node, Repo: ledgerrepository.Provide(), Clock: fake, AuditSvc: auditSvc})

	tokens, err := token.New("secret", "", time.Hour, fake)
	require.NoError(t, err)
	enforcer, err := authorization.NewEnforcer(db)
	require.NoError(t, err)

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())

	NewServer(ServerParams{
		Gin:      engine,
		Clock:    fake,
		Tokens:   tokens,
		Authz:    authorization.NewAuthorizer(authorization.Params{Log: log, Enforcer: enforcer, AuditSvc: auditSvc}),
		Scope:    authorization.NewCollectorScope(db, userRepo),
		AuditSvc: auditSvc,
		UserSvc: userservice.New(userservice.Params{
			DB: db, Log: log, GenID: node, Repo: userRepo, InvoiceSvc: invoiceSvc, Clock: fake, AuditSvc: auditSvc,
		}),
		InvoiceSvc: invoiceSvc,
		PaymentSvc: paymentservice.NewService(paymentservice.Params{
			DB: db, Log: log, Repo: paymentRepo, InvoiceSvc: invoiceSvc, AuditSvc: auditSvc,
		}),
		ClaimSvc: onlinepaymentservice.NewService(onlinepaymentservice.Params{
			DB: db, Log: log, GenID: node, Repo: onlinepaymentrepository.Provide(), InvoiceSvc: invoiceSvc, Clock: fake, AuditSvc: auditSvc,
		}),
		SettlementSvc: settlementservice.NewService(settlementservice.Params{
			DB: db, Log: log, GenID: node, Repo: settlementrepository.Provide(),
			PaymentRepo: paymentRepo, UserRepo: userRepo, LedgerSvc: ledgerSvc, Clock: fake, AuditSvc: auditSvc,
		}),
		LedgerSvc: ledgerSvc,
		ExpenseSvc: expenseservice.NewService(expenseservice.Params{
			DB: db, Log: log, GenID: node, Repo: expenserepository.Provide(), LedgerSvc: ledgerSvc, Clock: fake, AuditSvc: auditSvc,
		}),
		FundraiserSvc: fundraiserservice.NewService(fundraiserservice.Params{
			DB: db, Log: log, GenID: node, Repo: fundraiserrepository.Provide(), LedgerSvc: ledgerSvc, Clock: fake, AuditSvc: auditSvc,
		}),
		OverdueSvc: overdueservice.NewService(overdueservice.Params{
			DB: db, Log: log, Repo: overduerepository.Provide(), Policy: policy, Clock: fake,
		}),
	})

	return &testServer{t: t, db: db, seed: dbtest.NewSeeder(t, db), tokens: tokens, engine: engine}
}

func (ts *testServer) bearer(id snowflake.ID, role userdomain.Role) string {
	ts.t.Helper()
	raw, _, err := ts.tokens.Issue(auth.Principal{ID: id, Role: role, Username: id.String()})
	require.NoError(ts.t, err)
	return raw
}

func (ts *testServer) do(method, path, bearer string, body any) *httptest.ResponseRecorder {
	ts.t.Helper()
	var payload bytes.Buffer
	if body != nil {
		require.NoError(ts.t, json.NewEncoder(&payload).Encode(body))
	}
	req := httptest.NewRequest(method, path, &payload)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestAPIRequiresBearerToken(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/me/invoices", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decodeError(t, rec).Type)

	rec = ts.do(http.MethodGet, "/api/me/invoices", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRoleGateRejectsWrongRole(t *testing.T) {
	ts := newTestServer(t)
	rana := ts.seed.Resident("rana", "B1", "1", "1A")

	rec := ts.do(http.MethodPost, "/api/settlements", ts.bearer(rana, userdomain.RoleResident), gin.H{
		"collector_id": rana.String(),
		"amount":       "10",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", decodeError(t, rec).Type)
}

func TestCollectOutsideAssignedBuilding(t *testing.T) {
	ts := newTestServer(t)
	karim := ts.seed.User("karim", "ADMIN")
	ts.seed.Building(karim, "B1")
	omar := ts.seed.Resident("omar", "B2", "3", "3C")
	invoiceID := ts.seed.Invoice(omar, 2026, 3, "150", "UNPAID")

	rec := ts.do(http.MethodPost, "/api/payments/collect", ts.bearer(karim, userdomain.RoleAdmin), gin.H{
		"user_id":    omar.String(),
		"invoice_id": invoiceID.String(),
		"amount":     "150",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "scope_violation", decodeError(t, rec).Type)
	assert.Equal(t, int64(0), dbtest.Count(t, ts.db, `SELECT COUNT(*) FROM payments`))
}

func TestCollectThenSettle(t *testing.T) {
	ts := newTestServer(t)
	karim := ts.seed.User("karim", "ADMIN")
	ts.seed.Building(karim, "B1")
	huda := ts.seed.User("huda", "TREASURER")
	rana := ts.seed.Resident("rana", "B1", "1", "1A")
	invoiceID := ts.seed.Invoice(rana, 2026, 3, "150", "UNPAID")
	collector := ts.bearer(karim, userdomain.RoleAdmin)

	rec := ts.do(http.MethodPost, "/api/payments/collect", collector, gin.H{
		"user_id":    rana.String(),
		"invoice_id": invoiceID.String(),
		"amount":     "150",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var collected struct {
		Data struct {
			InvoiceStatus string `json:"invoice_status"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &collected))
	assert.Equal(t, "PAID", collected.Data.InvoiceStatus)

	rec = ts.do(http.MethodPost, "/api/payments/collect", collector, gin.H{
		"user_id":    rana.String(),
		"invoice_id": invoiceID.String(),
		"amount":     "10",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "state_conflict", decodeError(t, rec).Type)

	treasurer := ts.bearer(huda, userdomain.RoleTreasurer)
	rec = ts.do(http.MethodPost, "/api/settlements", treasurer, gin.H{
		"collector_id": karim.String(),
		"amount":       "100",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = ts.do(http.MethodPost, "/api/settlements", treasurer, gin.H{
		"collector_id": karim.String(),
		"amount":       "60",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "state_conflict", decodeError(t, rec).Type)
	assert.Equal(t, int64(1), dbtest.Count(t, ts.db, `SELECT COUNT(*) FROM settlements`))
	assert.Equal(t, int64(1), dbtest.Count(t, ts.db, `SELECT COUNT(*) FROM union_ledger_entries`))
}

func TestPublicUnitsStatusNeedsNoToken(t *testing.T) {
	ts := newTestServer(t)
	rana := ts.seed.Resident("rana", "B1", "1", "1A")
	ts.seed.Resident("samir", "B1", "2", "2B")
	ts.seed.Invoice(rana, 2026, 3, "150", "PAID")

	rec := ts.do(http.MethodGet, "/public/buildings/B1/units-status", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Data struct {
			Year  int               `json:"year"`
			Month int               `json:"month"`
			Units []json.RawMessage `json:"units"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2026, resp.Data.Year)
	assert.Equal(t, 3, resp.Data.Month)
	assert.Len(t, resp.Data.Units, 2)

	rec = ts.do(http.MethodGet, "/public/buildings/B1/units-status?month=13", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestValidationErrorPayload(t *testing.T) {
	ts := newTestServer(t)
	karim := ts.seed.User("karim", "ADMIN")

	rec := ts.do(http.MethodPost, "/api/payments/collect", ts.bearer(karim, userdomain.RoleAdmin), gin.H{
		"user_id":    "abc",
		"invoice_id": "1",
		"amount":     "10",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decodeError(t, rec)
	assert.Equal(t, "validation_error", payload.Type)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "user_id", payload.Errors[0].Field)
	assert.Equal(t, "invalid_user_id", payload.Errors[0].Code)
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec).Type)
}

func TestClaimSubmitWithoutLimiter(t *testing.T) {
	ts := newTestServer(t)
	rana := ts.seed.Resident("rana", "B1", "1", "1A")
	invoiceID := ts.seed.Invoice(rana, 2026, 3, "150", "UNPAID")
	resident := ts.bearer(rana, userdomain.RoleResident)

	rec := ts.do(http.MethodPost, "/api/me/claims", resident, gin.H{
		"invoice_id":            invoiceID.String(),
		"amount":                "150",
		"sender_reference":      "Rana A.",
		"transaction_reference": "TX-1",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	status, _ := dbtest.InvoiceStatus(t, ts.db, invoiceID)
	assert.Equal(t, "PENDING_CONFIRMATION", status)

	rec = ts.do(http.MethodPost, "/api/me/claims", resident, gin.H{
		"invoice_id":            invoiceID.String(),
		"amount":                "150",
		"sender_reference":      "Rana A.",
		"transaction_reference": "TX-2",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "state_conflict", decodeError(t, rec).Type)
}
