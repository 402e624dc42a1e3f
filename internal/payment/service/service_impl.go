package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/duesledger/internal/audit/domain"
	invoicedomain "github.com/smallbiznis/duesledger/internal/invoice/domain"
	"github.com/smallbiznis/duesledger/internal/money"
	obsmetrics "github.com/smallbiznis/duesledger/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/duesledger/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Repo       paymentdomain.Repository
	InvoiceSvc invoicedomain.Service
	AuditSvc   auditdomain.Service               `optional:"true"`
	ObsMetrics *obsmetrics.Metrics               `optional:"true"`
	Recon      *obsmetrics.ReconciliationMetrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	repo       paymentdomain.Repository
	invoiceSvc invoicedomain.Service
	auditSvc   auditdomain.Service
	obsMetrics *obsmetrics.Metrics
	recon      *obsmetrics.ReconciliationMetrics
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.service"),
		repo:       p.Repo,
		invoiceSvc: p.InvoiceSvc,
		auditSvc:   p.AuditSvc,
		obsMetrics: p.ObsMetrics,
		recon:      p.Recon,
	}
}

func (s *Service) Collect(ctx context.Context, req paymentdomain.CollectRequest) (result paymentdomain.CollectResult, err error) {
	start := time.Now()
	defer func() { s.recon.ObserveTx(obsmetrics.OpCollectCash, start, err) }()

	if !money.Valid(req.Amount) {
		return paymentdomain.CollectResult{}, paymentdomain.ErrInvalidAmount
	}
	if req.Method == "" {
		req.Method = paymentdomain.MethodCash
	}
	if !req.Method.Valid() {
		return paymentdomain.CollectResult{}, paymentdomain.ErrInvalidMethod
	}
	if req.UserID == 0 {
		return paymentdomain.CollectResult{}, invoicedomain.ErrInvoiceNotFound
	}

	var applied invoicedomain.ApplyPaymentResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		applied, err = s.invoiceSvc.ApplyPayment(ctx, tx, invoicedomain.ApplyPaymentRequest{
			InvoiceID:   req.InvoiceID,
			UserID:      req.UserID,
			Source:      invoicedomain.SourceCash,
			Method:      req.Method,
			Amount:      req.Amount,
			CollectorID: req.CollectorID,
			Notes:       req.Notes,
		})
		return err
	})
	if err != nil {
		return paymentdomain.CollectResult{}, err
	}

	payment := *applied.Payment
	s.obsMetrics.RecordPayment(ctx, string(invoicedomain.SourceCash))
	if applied.MarkedPaid {
		s.obsMetrics.RecordInvoicePaid(ctx, string(invoicedomain.SourceCash))
	}
	s.log.Info("payment collected",
		zap.String("payment_id", payment.ID.String()),
		zap.String("invoice_id", payment.InvoiceID.String()),
		zap.String("collector_id", payment.CollectedBy.String()),
		zap.String("amount", payment.Amount.StringFixed(money.Places)),
		zap.Bool("invoice_paid", applied.MarkedPaid),
	)
	if s.auditSvc != nil {
		actorID := req.CollectorID.String()
		targetID := payment.ID.String()
		if err := s.auditSvc.AuditLog(ctx, string(auditdomain.ActorTypeUser), &actorID, "payment.collected", "payment", &targetID, map[string]any{
			"invoice_id":     payment.InvoiceID.String(),
			"user_id":        payment.UserID.String(),
			"amount":         payment.Amount.StringFixed(money.Places),
			"method":         string(payment.Method),
			"invoice_status": string(applied.Invoice.Status),
		}); err != nil {
			s.log.Warn("failed to write payment audit log", zap.Error(err))
		}
	}

	return paymentdomain.CollectResult{
		Payment:       payment,
		InvoiceStatus: string(applied.Invoice.Status),
		PaidAmount:    applied.Paid,
		Remaining:     applied.Remaining,
	}, nil
}

func (s *Service) ListByCollector(ctx context.Context, collectorID snowflake.ID, limit int) ([]paymentdomain.CollectorPayment, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	payments, err := s.repo.ListByCollector(ctx, s.db, collectorID, limit)
	if err != nil {
		return nil, err
	}
	if payments == nil {
		payments = []paymentdomain.CollectorPayment{}
	}
	return payments, nil
}

func (s *Service) ListByInvoice(ctx context.Context, invoiceID snowflake.ID) ([]paymentdomain.Payment, error) {
	payments, err := s.repo.ListByInvoice(ctx, s.db, invoiceID)
	if err != nil {
		return nil, err
	}
	if payments == nil {
		payments = []paymentdomain.Payment{}
	}
	return payments, nil
}
