package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/duesledger/internal/audit/domain"
	"github.com/smallbiznis/duesledger/internal/clock"
	ledgerdomain "github.com/smallbiznis/duesledger/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/duesledger/internal/observability/metrics"
	onlinepaymentdomain "github.com/smallbiznis/duesledger/internal/onlinepayment/domain"
	overduedomain "github.com/smallbiznis/duesledger/internal/overdue/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log        *zap.Logger
	GenID      *snowflake.Node
	LedgerSvc  ledgerdomain.Service
	ClaimSvc   onlinepaymentdomain.Service
	OverdueSvc overduedomain.Service
	AuditSvc   auditdomain.Service `optional:"true"`
	Clock      clock.Clock         `optional:"true"`
	Config     Config              `optional:"true"`
}

// Scheduler runs read-only reconciliation jobs on an interval. None of the
// jobs move money; they report what needs a human.
type Scheduler struct {
	log        *zap.Logger
	cfg        Config
	genID      *snowflake.Node
	clock      clock.Clock
	ledgerSvc  ledgerdomain.Service
	claimSvc   onlinepaymentdomain.Service
	overdueSvc overduedomain.Service
	auditSvc   auditdomain.Service

	mu             sync.Mutex
	lastBrokenSeq  *int64
	reportedClaims map[snowflake.ID]struct{}
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.LedgerSvc == nil || p.ClaimSvc == nil || p.OverdueSvc == nil {
		return nil, ErrInvalidConfig
	}
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Scheduler{
		log:            p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:            p.Config.withDefaults(),
		genID:          p.GenID,
		clock:          c,
		ledgerSvc:      p.LedgerSvc,
		claimSvc:       p.ClaimSvc,
		overdueSvc:     p.OverdueSvc,
		auditSvc:       p.AuditSvc,
		reportedClaims: map[snowflake.ID]struct{}{},
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, time.Since(start))
	if owner {
		if err != nil {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	schedMetrics.IncJobError(name, err)
	// a deadline is a soft timeout; the next tick retries
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		schedMetrics.IncJobTimeout(name)
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{JobLedgerVerify, s.LedgerVerifyJob},
		{JobStaleClaims, s.StaleClaimsJob},
		{JobOverdueSnapshot, s.OverdueSnapshotJob},
	}

	for _, job := range jobs {
		if !s.cfg.isJobEnabled(job.Name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, job.Name, s.cfg.JobTimeout, job.Run))
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := time.Now()
	schedMetrics := obsmetrics.Scheduler()

	for {
		if lag := time.Since(nextRun); lag > 0 {
			schedMetrics.ObserveRunLoopLag(lag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// LedgerVerifyJob walks the union ledger chain. A break is audited once per
// distinct broken sequence.
func (s *Scheduler) LedgerVerifyJob(ctx context.Context) error {
	run := jobRunFromContext(ctx)
	result, err := s.ledgerSvc.Verify(ctx)
	if err != nil {
		return err
	}
	run.AddProcessed(int(result.Entries))

	s.mu.Lock()
	defer s.mu.Unlock()
	if result.Valid {
		s.lastBrokenSeq = nil
		return nil
	}

	run.AddFinding()
	fields := []zap.Field{zap.Int64("entries", result.Entries)}
	if result.FirstBrokenSeq != nil {
		fields = append(fields, zap.Int64("first_broken_seq", *result.FirstBrokenSeq))
	}
	s.logger(ctx).Error("ledger chain broken", fields...)

	if s.lastBrokenSeq != nil && result.FirstBrokenSeq != nil && *s.lastBrokenSeq == *result.FirstBrokenSeq {
		return nil
	}
	s.lastBrokenSeq = result.FirstBrokenSeq

	metadata := map[string]any{"entries": result.Entries}
	if result.FirstBrokenSeq != nil {
		metadata["first_broken_seq"] = *result.FirstBrokenSeq
	}
	if result.Expected != nil && result.Actual != nil {
		metadata["expected_balance_after"] = result.Expected.String()
		metadata["actual_balance_after"] = result.Actual.String()
	}
	s.audit(ctx, "ledger.verification_failed", "ledger", "union", metadata)
	return nil
}

// StaleClaimsJob reports online claims left pending past the threshold.
func (s *Scheduler) StaleClaimsJob(ctx context.Context) error {
	run := jobRunFromContext(ctx)
	claims, err := s.claimSvc.ListPending(ctx)
	if err != nil {
		return err
	}
	run.AddProcessed(len(claims))

	now := s.clock.Now()
	cutoff := now.Add(-s.cfg.StaleClaimAfter)
	pending := make(map[snowflake.ID]struct{}, len(claims))

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, claim := range claims {
		pending[claim.ID] = struct{}{}
		if !claim.SubmittedAt.Before(cutoff) {
			continue
		}
		run.AddFinding()
		if _, seen := s.reportedClaims[claim.ID]; seen {
			continue
		}
		s.reportedClaims[claim.ID] = struct{}{}
		s.logger(ctx).Warn("online claim awaiting review",
			zap.String("claim_id", claim.ID.String()),
			zap.String("invoice_id", claim.InvoiceID.String()),
			zap.String("building", claim.Building),
			zap.Float64("age_hours", now.Sub(claim.SubmittedAt).Hours()),
		)
	}
	// forget claims that have since been reviewed
	for id := range s.reportedClaims {
		if _, ok := pending[id]; !ok {
			delete(s.reportedClaims, id)
		}
	}
	return nil
}

// OverdueSnapshotJob refreshes the overdue gauge across all buildings.
func (s *Scheduler) OverdueSnapshotJob(ctx context.Context) error {
	run := jobRunFromContext(ctx)
	report, err := s.overdueSvc.Report(ctx, overduedomain.ReportRequest{})
	if err != nil {
		return err
	}
	run.AddProcessed(len(report.Residents))
	for range report.Residents {
		run.AddFinding()
	}
	return nil
}

func (s *Scheduler) audit(ctx context.Context, action, targetType, targetID string, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	actorID := "scheduler"
	if err := s.auditSvc.AuditLog(ctx, string(auditdomain.ActorTypeSystem), &actorID, action, targetType, &targetID, metadata); err != nil {
		s.logger(ctx).Warn("failed to write scheduler audit log", zap.Error(err))
	}
}
