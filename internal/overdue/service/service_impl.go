package service

import (
	"context"
	"slices"
	"strings"

	"github.com/smallbiznis/duesledger/internal/clock"
	"github.com/smallbiznis/duesledger/internal/config"
	obsmetrics "github.com/smallbiznis/duesledger/internal/observability/metrics"
	"github.com/smallbiznis/duesledger/internal/overdue/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Repo   domain.Repository
	Policy *config.DuesPolicyHolder          `optional:"true"`
	Clock  clock.Clock                       `optional:"true"`
	Recon  *obsmetrics.ReconciliationMetrics `optional:"true"`
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	repo   domain.Repository
	policy *config.DuesPolicyHolder
	clock  clock.Clock
	recon  *obsmetrics.ReconciliationMetrics
}

func NewService(p Params) domain.Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("overdue.service"),
		repo:   p.Repo,
		policy: p.Policy,
		clock:  c,
		recon:  p.Recon,
	}
}

func (s *Service) Report(ctx context.Context, req domain.ReportRequest) (domain.Report, error) {
	today := clock.Today(s.clock)
	policy := s.policy.Get()
	rules := domain.Rules{CutoffDay: policy.OverdueCutoffDay, MonthThreshold: policy.OverdueMonths}
	report := domain.Report{
		AsOf:           today.Format("2006-01-02"),
		CutoffDay:      rules.CutoffDay,
		MonthThreshold: rules.MonthThreshold,
		Residents:      []domain.OverdueResident{},
	}

	building := strings.TrimSpace(req.Building)
	if req.Buildings != nil {
		if building != "" && !slices.Contains(req.Buildings, building) {
			return domain.Report{}, domain.ErrOutOfScope
		}
		if len(req.Buildings) == 0 {
			return report, nil
		}
	}

	rows, err := s.repo.ListOpen(ctx, s.db, domain.ListFilter{
		Building:  building,
		Buildings: req.Buildings,
		UpToYear:  today.Year(),
		UpToMonth: int(today.Month()),
	})
	if err != nil {
		return domain.Report{}, err
	}

	report.Residents = domain.Classify(rows, today, rules)
	if building == "" && req.Buildings == nil {
		s.recon.SetOverdueResidents(len(report.Residents))
	}
	s.log.Debug("overdue report computed",
		zap.String("building", building),
		zap.Int("open_invoices", len(rows)),
		zap.Int("residents", len(report.Residents)),
	)
	return report, nil
}
