package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	auditdomain "github.com/smallbiznis/duesledger/internal/audit/domain"
	"github.com/smallbiznis/duesledger/internal/auth/token"
	"github.com/smallbiznis/duesledger/internal/authorization"
	"github.com/smallbiznis/duesledger/internal/clock"
	"github.com/smallbiznis/duesledger/internal/config"
	expensedomain "github.com/smallbiznis/duesledger/internal/expense/domain"
	fundraiserdomain "github.com/smallbiznis/duesledger/internal/fundraiser/domain"
	invoicedomain "github.com/smallbiznis/duesledger/internal/invoice/domain"
	ledgerdomain "github.com/smallbiznis/duesledger/internal/ledger/domain"
	"github.com/smallbiznis/duesledger/internal/observability"
	obslogger "github.com/smallbiznis/duesledger/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/duesledger/internal/observability/metrics"
	obstracing "github.com/smallbiznis/duesledger/internal/observability/tracing"
	onlinepaymentdomain "github.com/smallbiznis/duesledger/internal/onlinepayment/domain"
	overduedomain "github.com/smallbiznis/duesledger/internal/overdue/domain"
	paymentdomain "github.com/smallbiznis/duesledger/internal/payment/domain"
	"github.com/smallbiznis/duesledger/internal/ratelimit"
	settlementdomain "github.com/smallbiznis/duesledger/internal/settlement/domain"
	userdomain "github.com/smallbiznis/duesledger/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(RunHTTP),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func RunHTTP(lc fx.Lifecycle, cfg config.Config, s *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", srv.Addr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	clock         clock.Clock
	tokens        *token.Issuer
	authz         *authorization.Authorizer
	scope         *authorization.CollectorScope
	auditSvc      auditdomain.Service
	userSvc       userdomain.Service
	invoiceSvc    invoicedomain.Service
	paymentSvc    paymentdomain.Service
	claimSvc      onlinepaymentdomain.Service
	settlementSvc settlementdomain.Service
	ledgerSvc     ledgerdomain.Service
	expenseSvc    expensedomain.Service
	fundraiserSvc fundraiserdomain.Service
	overdueSvc    overduedomain.Service
	obsMetrics    *obsmetrics.Metrics
	claimLimiter  *ratelimit.ClaimSubmitLimiter
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	Clock         clock.Clock `optional:"true"`
	Tokens        *token.Issuer
	Authz         *authorization.Authorizer
	Scope         *authorization.CollectorScope
	AuditSvc      auditdomain.Service
	UserSvc       userdomain.Service
	InvoiceSvc    invoicedomain.Service
	PaymentSvc    paymentdomain.Service
	ClaimSvc      onlinepaymentdomain.Service
	SettlementSvc settlementdomain.Service
	LedgerSvc     ledgerdomain.Service
	ExpenseSvc    expensedomain.Service
	FundraiserSvc fundraiserdomain.Service
	OverdueSvc    overduedomain.Service
	ObsMetrics    *obsmetrics.Metrics           `optional:"true"`
	ClaimLimiter  *ratelimit.ClaimSubmitLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		clock:         c,
		tokens:        p.Tokens,
		authz:         p.Authz,
		scope:         p.Scope,
		auditSvc:      p.AuditSvc,
		userSvc:       p.UserSvc,
		invoiceSvc:    p.InvoiceSvc,
		paymentSvc:    p.PaymentSvc,
		claimSvc:      p.ClaimSvc,
		settlementSvc: p.SettlementSvc,
		ledgerSvc:     p.LedgerSvc,
		expenseSvc:    p.ExpenseSvc,
		fundraiserSvc: p.FundraiserSvc,
		overdueSvc:    p.OverdueSvc,
		obsMetrics:    p.ObsMetrics,
		claimLimiter:  p.ClaimLimiter,
	}

	svc.registerPublicRoutes()
	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerPublicRoutes() {
	public := s.engine.Group("/public")

	public.GET("/buildings/:building/units-status", s.PublicUnitsStatus)
	public.GET("/fundraisers", s.ListFundraisers)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.AuthRequired())

	// -------- Directory --------
	api.POST("/residents", s.RequireRole(userdomain.RoleSuperAdmin), s.authorize(authorization.ObjectResident, authorization.ActionResidentOnboard), s.OnboardResident)
	api.PUT("/collectors/:id/buildings", s.RequireRole(userdomain.RoleSuperAdmin), s.authorize(authorization.ObjectCollector, authorization.ActionCollectorAssign), s.AssignCollectorBuildings)

	// -------- Resident self-service --------
	me := api.Group("/me", s.RequireRole(userdomain.RoleResident))
	{
		me.GET("/invoices", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceViewOwn), s.ListMyInvoices)
		me.GET("/claims", s.authorize(authorization.ObjectClaim, authorization.ActionClaimViewOwn), s.ListMyClaims)
		me.POST("/claims", s.authorize(authorization.ObjectClaim, authorization.ActionClaimSubmit), s.ClaimSubmitRateLimit(), s.SubmitClaim)
	}

	// -------- Invoices --------
	api.GET("/residents/:id/invoices", s.RequireRole(userdomain.RoleAdmin, userdomain.RoleOnlineAdmin, userdomain.RoleSuperAdmin), s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceView), s.ListResidentInvoices)
	api.POST("/invoices", s.RequireRole(userdomain.RoleAdmin, userdomain.RoleSuperAdmin), s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceCreate), s.CreateInvoice)
	api.DELETE("/invoices/:id", s.RequireRole(userdomain.RoleAdmin, userdomain.RoleSuperAdmin), s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceDelete), s.DeleteInvoice)
	api.POST("/invoices/:id/override", s.RequireRole(userdomain.RoleSuperAdmin), s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceOverride), s.OverrideInvoice)

	// -------- Payments --------
	api.POST("/payments/collect", s.RequireRole(userdomain.RoleAdmin), s.authorize(authorization.ObjectPayment, authorization.ActionPaymentCollect), s.CollectPayment)
	api.GET("/payments/mine", s.RequireRole(userdomain.RoleAdmin, userdomain.RoleOnlineAdmin), s.authorize(authorization.ObjectPayment, authorization.ActionPaymentViewOwn), s.ListMyPayments)

	// -------- Online claims --------
	claims := api.Group("/claims", s.RequireRole(userdomain.RoleOnlineAdmin, userdomain.RoleSuperAdmin), s.authorize(authorization.ObjectClaim, authorization.ActionClaimReview))
	{
		claims.GET("/pending", s.ListPendingClaims)
		claims.POST("/:id/approve", s.ApproveClaim)
		claims.POST("/:id/reject", s.RejectClaim)
	}

	// -------- Treasury --------
	api.GET("/collectors", s.RequireRole(userdomain.RoleTreasurer), s.authorize(authorization.ObjectCollector, authorization.ActionCollectorView), s.ListCollectors)
	api.GET("/collectors/:id", s.RequireRole(userdomain.RoleTreasurer), s.authorize(authorization.ObjectCollector, authorization.ActionCollectorView), s.GetCollector)
	api.POST("/settlements", s.RequireRole(userdomain.RoleTreasurer), s.authorize(authorization.ObjectSettlement, authorization.ActionSettlementRecord), s.RecordSettlement)
	api.GET("/treasury/summary", s.RequireRole(userdomain.RoleTreasurer, userdomain.RoleSuperAdmin), s.authorize(authorization.ObjectTreasury, authorization.ActionTreasuryView), s.TreasurySummary)

	// -------- Union ledger --------
	ledger := api.Group("/ledger", s.RequireRole(userdomain.RoleTreasurer, userdomain.RoleSuperAdmin))
	{
		ledger.GET("", s.authorize(authorization.ObjectLedger, authorization.ActionLedgerView), s.ListLedgerEntries)
		ledger.GET("/verify", s.authorize(authorization.ObjectLedger, authorization.ActionLedgerVerify), s.VerifyLedger)
	}

	// -------- Expenses & fundraisers --------
	api.POST("/expenses", s.RequireRole(userdomain.RoleTreasurer), s.authorize(authorization.ObjectExpense, authorization.ActionExpenseCreate), s.CreateExpense)
	api.GET("/expenses", s.RequireRole(userdomain.RoleTreasurer), s.authorize(authorization.ObjectExpense, authorization.ActionExpenseView), s.ListExpenses)
	api.POST("/fundraisers", s.RequireRole(userdomain.RoleTreasurer), s.authorize(authorization.ObjectFundraiser, authorization.ActionFundraiserCreate), s.CreateFundraiser)
	api.PATCH("/fundraisers/:id", s.RequireRole(userdomain.RoleTreasurer), s.authorize(authorization.ObjectFundraiser, authorization.ActionFundraiserUpdate), s.UpdateFundraiser)

	// -------- Overdue --------
	api.GET("/overdue", s.RequireRole(userdomain.RoleAdmin, userdomain.RoleTreasurer, userdomain.RoleSuperAdmin), s.authorize(authorization.ObjectOverdue, authorization.ActionOverdueView), s.OverdueReport)

	// -------- Audit --------
	api.GET("/audit-logs", s.RequireRole(userdomain.RoleTreasurer, userdomain.RoleSuperAdmin), s.authorize(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
