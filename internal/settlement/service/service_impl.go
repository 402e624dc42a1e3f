package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/duesledger/internal/audit/domain"
	"github.com/smallbiznis/duesledger/internal/clock"
	ledgerdomain "github.com/smallbiznis/duesledger/internal/ledger/domain"
	"github.com/smallbiznis/duesledger/internal/money"
	obsmetrics "github.com/smallbiznis/duesledger/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/duesledger/internal/payment/domain"
	"github.com/smallbiznis/duesledger/internal/settlement/domain"
	userdomain "github.com/smallbiznis/duesledger/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const recentSettlements = 10

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Repo        domain.Repository
	PaymentRepo paymentdomain.Repository
	UserRepo    userdomain.Repository
	LedgerSvc   ledgerdomain.Service
	Clock       clock.Clock                       `optional:"true"`
	AuditSvc    auditdomain.Service               `optional:"true"`
	ObsMetrics  *obsmetrics.Metrics               `optional:"true"`
	Recon       *obsmetrics.ReconciliationMetrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	repo        domain.Repository
	paymentRepo paymentdomain.Repository
	userRepo    userdomain.Repository
	ledgerSvc   ledgerdomain.Service
	clock       clock.Clock
	auditSvc    auditdomain.Service
	obsMetrics  *obsmetrics.Metrics
	recon       *obsmetrics.ReconciliationMetrics
}

func NewService(p Params) domain.Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("settlement.service"),
		genID:       p.GenID,
		repo:        p.Repo,
		paymentRepo: p.PaymentRepo,
		userRepo:    p.UserRepo,
		ledgerSvc:   p.LedgerSvc,
		clock:       c,
		auditSvc:    p.AuditSvc,
		obsMetrics:  p.ObsMetrics,
		recon:       p.Recon,
	}
}

func (s *Service) Outstanding(ctx context.Context, collectorID snowflake.ID) (decimal.Decimal, error) {
	summary, err := s.Summary(ctx, collectorID)
	if err != nil {
		return decimal.Zero, err
	}
	return summary.OutstandingAmount, nil
}

func (s *Service) Summary(ctx context.Context, collectorID snowflake.ID) (domain.Summary, error) {
	return s.summary(ctx, s.db, collectorID)
}

func (s *Service) summary(ctx context.Context, db *gorm.DB, collectorID snowflake.ID) (domain.Summary, error) {
	collected, count, err := s.paymentRepo.SumByCollector(ctx, db, collectorID)
	if err != nil {
		return domain.Summary{}, err
	}
	settled, err := s.repo.SumByCollector(ctx, db, collectorID)
	if err != nil {
		return domain.Summary{}, err
	}
	return domain.NewSummary(collected, settled, count), nil
}

// RecordSettlement stores the hand-over and credits the union ledger in the
// same transaction. The collector row lock serializes concurrent
// settlements for one collector.
func (s *Service) RecordSettlement(ctx context.Context, req domain.RecordSettlementRequest) (result domain.RecordSettlementResult, err error) {
	start := time.Now()
	defer func() { s.recon.ObserveTx(obsmetrics.OpRecordSettle, start, err) }()

	if !money.Valid(req.Amount) {
		return domain.RecordSettlementResult{}, domain.ErrInvalidAmount
	}
	if req.TreasurerID == 0 {
		return domain.RecordSettlementResult{}, domain.ErrInvalidTreasurer
	}

	var entry *ledgerdomain.Entry
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		waitStart := time.Now()
		collector, err := s.userRepo.FindByIDForUpdate(ctx, tx, req.CollectorID)
		if err != nil {
			return err
		}
		s.recon.ObserveLockWait(obsmetrics.LockCollector, time.Since(waitStart))
		if collector == nil || !collector.Role.IsCollector() {
			return domain.ErrCollectorNotFound
		}

		summary, err := s.summary(ctx, tx, req.CollectorID)
		if err != nil {
			return err
		}
		if !summary.CanSettle(req.Amount) {
			return domain.ErrExceedsOutstanding
		}

		settlement := domain.Settlement{
			ID:          s.genID.Generate(),
			CollectorID: req.CollectorID,
			TreasurerID: req.TreasurerID,
			Amount:      req.Amount,
			Notes:       req.Notes,
			CreatedAt:   s.clock.Now().UTC(),
		}
		if err := s.repo.Insert(ctx, tx, &settlement); err != nil {
			return err
		}

		entry, err = s.ledgerSvc.Append(ctx, tx, ledgerdomain.AppendRequest{
			EntryType:   ledgerdomain.EntryTypeSettlement,
			Credit:      req.Amount,
			Description: fmt.Sprintf("Settlement from %s", collector.FullName),
			SourceType:  ledgerdomain.SourceTypeSettlement,
			SourceID:    settlement.ID,
			AuthorID:    req.TreasurerID,
		})
		if err != nil {
			return err
		}

		result.Settlement = settlement
		result.Summary = domain.NewSummary(summary.TotalAmount, summary.SettledAmount.Add(req.Amount), summary.PaymentsCount)
		return nil
	})
	if err != nil {
		return domain.RecordSettlementResult{}, err
	}

	s.ledgerSvc.Published(ctx, entry)
	result.LedgerSeq = entry.Seq
	result.UnionBalance = entry.BalanceAfter

	s.obsMetrics.RecordSettlement(ctx)
	s.log.Info("settlement recorded",
		zap.String("settlement_id", result.Settlement.ID.String()),
		zap.String("collector_id", req.CollectorID.String()),
		zap.String("amount", req.Amount.StringFixed(money.Places)),
		zap.String("outstanding", result.Summary.OutstandingAmount.StringFixed(money.Places)),
	)
	if s.auditSvc != nil {
		actorID := req.TreasurerID.String()
		targetID := result.Settlement.ID.String()
		if err := s.auditSvc.AuditLog(ctx, string(auditdomain.ActorTypeUser), &actorID, "settlement.recorded", "settlement", &targetID, map[string]any{
			"collector_id": req.CollectorID.String(),
			"amount":       req.Amount.StringFixed(money.Places),
			"ledger_seq":   entry.Seq,
			"outstanding":  result.Summary.OutstandingAmount.StringFixed(money.Places),
		}); err != nil {
			s.log.Warn("failed to write settlement audit log", zap.Error(err))
		}
	}
	return result, nil
}

func (s *Service) ListCollectors(ctx context.Context) ([]domain.CollectorSummary, error) {
	collectors, err := s.userRepo.ListByRole(ctx, s.db, userdomain.RoleAdmin, userdomain.RoleOnlineAdmin)
	if err != nil {
		return nil, err
	}

	summaries := make([]domain.CollectorSummary, 0, len(collectors))
	outstanding := decimal.Zero
	for _, collector := range collectors {
		summary, err := s.summary(ctx, s.db, collector.ID)
		if err != nil {
			return nil, err
		}
		outstanding = outstanding.Add(summary.OutstandingAmount)
		summaries = append(summaries, collectorSummary(collector, summary))
	}
	s.recon.SetOutstandingTotal(outstanding.InexactFloat64())
	return summaries, nil
}

func (s *Service) CollectorDetail(ctx context.Context, collectorID snowflake.ID) (domain.CollectorDetail, error) {
	collector, err := s.userRepo.FindByID(ctx, s.db, collectorID)
	if err != nil {
		return domain.CollectorDetail{}, err
	}
	if collector == nil || !collector.Role.IsCollector() {
		return domain.CollectorDetail{}, domain.ErrCollectorNotFound
	}

	summary, err := s.summary(ctx, s.db, collectorID)
	if err != nil {
		return domain.CollectorDetail{}, err
	}
	recent, err := s.repo.ListRecent(ctx, s.db, collectorID, recentSettlements)
	if err != nil {
		return domain.CollectorDetail{}, err
	}
	if recent == nil {
		recent = []domain.SettlementView{}
	}
	return domain.CollectorDetail{
		CollectorSummary:  collectorSummary(*collector, summary),
		RecentSettlements: recent,
	}, nil
}

func (s *Service) TreasurySummary(ctx context.Context, today time.Time) (domain.TreasurySummary, error) {
	today = today.UTC()
	dayStart := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	monthStart := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)

	var (
		summary domain.TreasurySummary
		err     error
	)
	if summary.TotalCollected, err = s.repo.CollectedSince(ctx, s.db, time.Time{}); err != nil {
		return domain.TreasurySummary{}, err
	}
	if summary.TodayCollected, err = s.repo.CollectedSince(ctx, s.db, dayStart); err != nil {
		return domain.TreasurySummary{}, err
	}
	if summary.ThisMonthCollected, err = s.repo.CollectedSince(ctx, s.db, monthStart); err != nil {
		return domain.TreasurySummary{}, err
	}
	if summary.TotalSettled, err = s.repo.TotalSettled(ctx, s.db); err != nil {
		return domain.TreasurySummary{}, err
	}
	if summary.UnionBalance, err = s.ledgerSvc.Balance(ctx); err != nil {
		return domain.TreasurySummary{}, err
	}

	counts, err := s.repo.InvoiceCounts(ctx, s.db)
	if err != nil {
		return domain.TreasurySummary{}, err
	}
	summary.TotalInvoices = counts.Total
	summary.PaidInvoices = counts.Paid
	summary.UnpaidInvoices = counts.Unpaid

	s.recon.SetLedgerBalance(summary.UnionBalance.InexactFloat64())
	return summary, nil
}

func collectorSummary(user userdomain.User, summary domain.Summary) domain.CollectorSummary {
	return domain.CollectorSummary{
		CollectorID: user.ID,
		Username:    user.Username,
		FullName:    user.FullName,
		Role:        string(user.Role),
		Summary:     summary,
	}
}
