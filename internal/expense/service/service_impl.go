package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/duesledger/internal/audit/domain"
	"github.com/smallbiznis/duesledger/internal/clock"
	"github.com/smallbiznis/duesledger/internal/expense/domain"
	ledgerdomain "github.com/smallbiznis/duesledger/internal/ledger/domain"
	"github.com/smallbiznis/duesledger/internal/money"
	obsmetrics "github.com/smallbiznis/duesledger/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
	maxTitleLength   = 200
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Repo      domain.Repository
	LedgerSvc ledgerdomain.Service
	Clock     clock.Clock                       `optional:"true"`
	AuditSvc  auditdomain.Service               `optional:"true"`
	Recon     *obsmetrics.ReconciliationMetrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	repo      domain.Repository
	ledgerSvc ledgerdomain.Service
	clock     clock.Clock
	auditSvc  auditdomain.Service
	recon     *obsmetrics.ReconciliationMetrics
}

func NewService(p Params) domain.Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("expense.service"),
		genID:     p.GenID,
		repo:      p.Repo,
		ledgerSvc: p.LedgerSvc,
		clock:     c,
		auditSvc:  p.AuditSvc,
		recon:     p.Recon,
	}
}

// Create records the expense and its ledger debit in one transaction.
func (s *Service) Create(ctx context.Context, req domain.CreateExpenseRequest) (result domain.CreateExpenseResult, err error) {
	start := time.Now()
	defer func() { s.recon.ObserveTx(obsmetrics.OpRecordExpense, start, err) }()

	title := strings.TrimSpace(req.Title)
	if title == "" || len(title) > maxTitleLength {
		return domain.CreateExpenseResult{}, domain.ErrInvalidTitle
	}
	if !money.Valid(req.Amount) {
		return domain.CreateExpenseResult{}, domain.ErrInvalidAmount
	}
	if req.AuthorID == 0 {
		return domain.CreateExpenseResult{}, domain.ErrInvalidAuthor
	}

	now := s.clock.Now().UTC()
	spentOn := now
	if req.SpentOn != nil {
		spentOn = req.SpentOn.UTC()
	}
	expense := domain.Expense{
		ID:        s.genID.Generate(),
		Title:     title,
		Category:  strings.TrimSpace(req.Category),
		Amount:    req.Amount,
		SpentOn:   time.Date(spentOn.Year(), spentOn.Month(), spentOn.Day(), 0, 0, 0, 0, time.UTC),
		Notes:     normalizeNotes(req.Notes),
		CreatedBy: req.AuthorID,
		CreatedAt: now,
	}

	var entry *ledgerdomain.Entry
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, &expense); err != nil {
			return err
		}
		var err error
		entry, err = s.ledgerSvc.Append(ctx, tx, ledgerdomain.AppendRequest{
			EntryType:   ledgerdomain.EntryTypeExpense,
			Debit:       expense.Amount,
			Description: fmt.Sprintf("Expense: %s", expense.Title),
			SourceType:  ledgerdomain.SourceTypeExpense,
			SourceID:    expense.ID,
			AuthorID:    req.AuthorID,
		})
		return err
	})
	if err != nil {
		return domain.CreateExpenseResult{}, err
	}

	s.ledgerSvc.Published(ctx, entry)
	s.log.Info("expense recorded",
		zap.String("expense_id", expense.ID.String()),
		zap.String("amount", expense.Amount.StringFixed(money.Places)),
		zap.Int64("ledger_seq", entry.Seq),
	)
	if s.auditSvc != nil {
		actorID := req.AuthorID.String()
		targetID := expense.ID.String()
		if err := s.auditSvc.AuditLog(ctx, string(auditdomain.ActorTypeUser), &actorID, "expense.recorded", "expense", &targetID, map[string]any{
			"title":      expense.Title,
			"amount":     expense.Amount.StringFixed(money.Places),
			"ledger_seq": entry.Seq,
		}); err != nil {
			s.log.Warn("failed to write expense audit log", zap.Error(err))
		}
	}

	return domain.CreateExpenseResult{
		Expense:      expense,
		LedgerSeq:    entry.Seq,
		UnionBalance: entry.BalanceAfter,
	}, nil
}

func (s *Service) List(ctx context.Context, req domain.ListExpensesRequest) ([]domain.Expense, error) {
	filter := domain.ListFilter{Limit: req.Limit}
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}

	switch {
	case req.Month != 0 && req.Year == 0:
		return nil, domain.ErrInvalidPeriod
	case req.Month < 0 || req.Month > 12 || req.Year < 0:
		return nil, domain.ErrInvalidPeriod
	case req.Month != 0:
		filter.From = time.Date(req.Year, time.Month(req.Month), 1, 0, 0, 0, 0, time.UTC)
		filter.To = filter.From.AddDate(0, 1, 0)
	case req.Year != 0:
		filter.From = time.Date(req.Year, time.January, 1, 0, 0, 0, 0, time.UTC)
		filter.To = filter.From.AddDate(1, 0, 0)
	}

	expenses, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return nil, err
	}
	if expenses == nil {
		expenses = []domain.Expense{}
	}
	return expenses, nil
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
