package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	auditdomain "github.com/smallbiznis/duesledger/internal/audit/domain"
	"github.com/smallbiznis/duesledger/internal/clock"
	invoicedomain "github.com/smallbiznis/duesledger/internal/invoice/domain"
	"github.com/smallbiznis/duesledger/internal/money"
	obsmetrics "github.com/smallbiznis/duesledger/internal/observability/metrics"
	"github.com/smallbiznis/duesledger/internal/observability/tracing"
	"github.com/smallbiznis/duesledger/internal/onlinepayment/domain"
	paymentdomain "github.com/smallbiznis/duesledger/internal/payment/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxReferenceLength = 128

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       domain.Repository
	InvoiceSvc invoicedomain.Service
	Clock      clock.Clock                       `optional:"true"`
	AuditSvc   auditdomain.Service               `optional:"true"`
	ObsMetrics *obsmetrics.Metrics               `optional:"true"`
	Recon      *obsmetrics.ReconciliationMetrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       domain.Repository
	invoiceSvc invoicedomain.Service
	clock      clock.Clock
	auditSvc   auditdomain.Service
	obsMetrics *obsmetrics.Metrics
	recon      *obsmetrics.ReconciliationMetrics
}

func NewService(p Params) domain.Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("onlinepayment.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		invoiceSvc: p.InvoiceSvc,
		clock:      c,
		auditSvc:   p.AuditSvc,
		obsMetrics: p.ObsMetrics,
		recon:      p.Recon,
	}
}

func (s *Service) SubmitClaim(ctx context.Context, req domain.SubmitClaimRequest) (domain.OnlinePayment, error) {
	if req.UserID == 0 || req.InvoiceID == 0 {
		return domain.OnlinePayment{}, invoicedomain.ErrInvoiceNotFound
	}
	if !money.Valid(req.Amount) {
		return domain.OnlinePayment{}, domain.ErrInvalidAmount
	}
	sender, err := normalizeReference(req.SenderReference)
	if err != nil {
		return domain.OnlinePayment{}, err
	}
	transaction, err := normalizeReference(req.TransactionReference)
	if err != nil {
		return domain.OnlinePayment{}, err
	}

	claim := domain.OnlinePayment{
		ID:                   s.genID.Generate(),
		Reference:            ulid.Make().String(),
		UserID:               req.UserID,
		InvoiceID:            req.InvoiceID,
		Amount:               req.Amount,
		SenderReference:      sender,
		TransactionReference: transaction,
		Status:               domain.ClaimStatusPending,
		SubmittedAt:          s.clock.Now().UTC(),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := s.invoiceSvc.AwaitConfirmation(ctx, tx, invoicedomain.AwaitConfirmationRequest{
			InvoiceID: req.InvoiceID,
			UserID:    req.UserID,
			Amount:    req.Amount,
		})
		switch {
		case errors.Is(err, invoicedomain.ErrAwaitingOnlineConfirmation):
			return domain.ErrDuplicateClaim
		case errors.Is(err, invoicedomain.ErrAmountExceedsRemaining):
			return domain.ErrInvalidAmount
		case err != nil:
			return err
		}

		pending, err := s.repo.HasPending(ctx, tx, req.InvoiceID)
		if err != nil {
			return err
		}
		if pending {
			return domain.ErrDuplicateClaim
		}
		return s.repo.Insert(ctx, tx, &claim)
	})
	if err != nil {
		return domain.OnlinePayment{}, err
	}

	s.obsMetrics.RecordClaimEvent(ctx, "submitted")
	s.log.Info("payment claim submitted",
		zap.String("claim_id", claim.ID.String()),
		zap.String("reference", claim.Reference),
		zap.String("invoice_id", claim.InvoiceID.String()),
	)
	s.audit(ctx, claim.UserID, "claim.submitted", &claim, nil)
	return claim, nil
}

func (s *Service) Approve(ctx context.Context, req domain.ReviewRequest) (result domain.ReviewResult, err error) {
	start := time.Now()
	defer func() { s.recon.ObserveTx(obsmetrics.OpApproveClaim, start, err) }()

	ctx, span := tracing.StartSpan(ctx, "onlinepayment.approve", attribute.String("claim_id", req.ClaimID.String()))
	defer func() { tracing.EndSpan(span, err) }()

	if req.ReviewerID == 0 {
		return domain.ReviewResult{}, domain.ErrInvalidReviewer
	}

	var applied invoicedomain.ApplyPaymentResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		claim, err := s.lockClaim(ctx, tx, req.ClaimID)
		if err != nil {
			return err
		}
		if claim.Status != domain.ClaimStatusPending {
			return domain.ErrNotPending
		}

		notes := fmt.Sprintf("online transfer %s (transaction %s)", claim.Reference, claim.TransactionReference)
		applied, err = s.invoiceSvc.ApplyPayment(ctx, tx, invoicedomain.ApplyPaymentRequest{
			InvoiceID:   claim.InvoiceID,
			UserID:      claim.UserID,
			Source:      invoicedomain.SourceOnline,
			Method:      paymentdomain.MethodOnline,
			Amount:      claim.Amount,
			CollectorID: req.ReviewerID,
			Notes:       &notes,
		})
		if err != nil {
			return err
		}

		if err := claim.Review(domain.ClaimStatusApproved, req.ReviewerID, normalizeNotes(req.Notes), s.clock.Now()); err != nil {
			return err
		}
		if err := s.repo.UpdateReview(ctx, tx, claim); err != nil {
			return err
		}
		result.Claim = *claim
		result.InvoiceStatus = string(applied.Invoice.Status)
		return nil
	})
	if err != nil {
		return domain.ReviewResult{}, err
	}

	s.obsMetrics.RecordClaimEvent(ctx, "approved")
	s.obsMetrics.RecordPayment(ctx, string(invoicedomain.SourceOnline))
	if applied.MarkedPaid {
		s.obsMetrics.RecordInvoicePaid(ctx, string(invoicedomain.SourceOnline))
	}
	s.log.Info("payment claim approved",
		zap.String("claim_id", result.Claim.ID.String()),
		zap.String("invoice_status", result.InvoiceStatus),
	)
	s.audit(ctx, req.ReviewerID, "claim.approved", &result.Claim, map[string]any{
		"payment_id":     applied.Payment.ID.String(),
		"invoice_status": result.InvoiceStatus,
	})
	return result, nil
}

func (s *Service) Reject(ctx context.Context, req domain.ReviewRequest) (domain.ReviewResult, error) {
	if req.ReviewerID == 0 {
		return domain.ReviewResult{}, domain.ErrInvalidReviewer
	}

	var result domain.ReviewResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		claim, err := s.lockClaim(ctx, tx, req.ClaimID)
		if err != nil {
			return err
		}
		if err := claim.Review(domain.ClaimStatusRejected, req.ReviewerID, normalizeNotes(req.Notes), s.clock.Now()); err != nil {
			return err
		}
		if err := s.repo.UpdateReview(ctx, tx, claim); err != nil {
			return err
		}
		if _, err := s.invoiceSvc.ReleaseConfirmation(ctx, tx, claim.InvoiceID); err != nil {
			return err
		}
		result.Claim = *claim
		return nil
	})
	if err != nil {
		return domain.ReviewResult{}, err
	}

	invoice, err := s.invoiceSvc.Get(ctx, result.Claim.InvoiceID)
	if err == nil {
		result.InvoiceStatus = string(invoice.Status)
	}

	s.obsMetrics.RecordClaimEvent(ctx, "rejected")
	s.log.Info("payment claim rejected", zap.String("claim_id", result.Claim.ID.String()))
	s.audit(ctx, req.ReviewerID, "claim.rejected", &result.Claim, nil)
	return result, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (domain.OnlinePayment, error) {
	claim, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.OnlinePayment{}, err
	}
	if claim == nil {
		return domain.OnlinePayment{}, domain.ErrClaimNotFound
	}
	return *claim, nil
}

func (s *Service) ListPending(ctx context.Context) ([]domain.PendingClaim, error) {
	claims, err := s.repo.ListPending(ctx, s.db)
	if err != nil {
		return nil, err
	}
	if claims == nil {
		claims = []domain.PendingClaim{}
	}
	return claims, nil
}

func (s *Service) ListByUser(ctx context.Context, userID snowflake.ID) ([]domain.OnlinePayment, error) {
	claims, err := s.repo.ListByUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if claims == nil {
		claims = []domain.OnlinePayment{}
	}
	return claims, nil
}

func (s *Service) CountPending(ctx context.Context) (int64, error) {
	return s.repo.CountPending(ctx, s.db)
}

func (s *Service) lockClaim(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.OnlinePayment, error) {
	waitStart := time.Now()
	claim, err := s.repo.FindByIDForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	s.recon.ObserveLockWait(obsmetrics.LockClaimRow, time.Since(waitStart))
	if claim == nil {
		return nil, domain.ErrClaimNotFound
	}
	return claim, nil
}

func (s *Service) audit(ctx context.Context, actorID snowflake.ID, action string, claim *domain.OnlinePayment, extra map[string]any) {
	if s.auditSvc == nil {
		return
	}
	metadata := map[string]any{
		"reference":             claim.Reference,
		"invoice_id":            claim.InvoiceID.String(),
		"amount":                claim.Amount.StringFixed(money.Places),
		"status":                string(claim.Status),
		"sender_reference":      claim.SenderReference,
		"transaction_reference": claim.TransactionReference,
	}
	for k, v := range extra {
		metadata[k] = v
	}
	actor := actorID.String()
	targetID := claim.ID.String()
	if err := s.auditSvc.AuditLog(ctx, string(auditdomain.ActorTypeUser), &actor, action, "online_payment", &targetID, metadata); err != nil {
		s.log.Warn("failed to write claim audit log", zap.String("action", action), zap.Error(err))
	}
}

func normalizeReference(raw string) (string, error) {
	ref := strings.TrimSpace(raw)
	if ref == "" || len(ref) > maxReferenceLength {
		return "", domain.ErrInvalidReference
	}
	return ref, nil
}

func normalizeNotes(notes *string) *string {
	if notes == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*notes)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
