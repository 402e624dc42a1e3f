package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/duesledger/internal/audit/domain"
	"github.com/smallbiznis/duesledger/internal/clock"
	"github.com/smallbiznis/duesledger/internal/fundraiser/domain"
	ledgerdomain "github.com/smallbiznis/duesledger/internal/ledger/domain"
	"github.com/smallbiznis/duesledger/internal/money"
	obsmetrics "github.com/smallbiznis/duesledger/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxNameLength = 200

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
		log:       p.Log.Named("fundraiser.service"),
		genID:     p.GenID,
		repo:      p.Repo,
		ledgerSvc: p.LedgerSvc,
		clock:     c,
		auditSvc:  p.AuditSvc,
		recon:     p.Recon,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateFundraiserRequest) (result domain.FundraiserResult, err error) {
	start := time.Now()
	defer func() { s.recon.ObserveTx(obsmetrics.OpFundraiser, start, err) }()

	name, err := normalizeName(req.Name)
	if err != nil {
		return domain.FundraiserResult{}, err
	}
	if !money.Valid(req.Amount) {
		return domain.FundraiserResult{}, domain.ErrInvalidAmount
	}
	if req.Year < 2000 || req.Year > 2100 || req.Month < 1 || req.Month > 12 {
		return domain.FundraiserResult{}, domain.ErrInvalidPeriod
	}
	if req.AuthorID == 0 {
		return domain.FundraiserResult{}, domain.ErrInvalidAuthor
	}

	now := s.clock.Now().UTC()
	fundraiser := domain.FundRaiser{
		ID:        s.genID.Generate(),
		Name:      name,
		Slug:      slug.Make(name),
		Amount:    req.Amount,
		Year:      req.Year,
		Month:     req.Month,
		Notes:     normalizeNotes(req.Notes),
		CreatedBy: req.AuthorID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	var entry *ledgerdomain.Entry
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, &fundraiser); err != nil {
			return err
		}
		var err error
		entry, err = s.ledgerSvc.Append(ctx, tx, ledgerdomain.AppendRequest{
			EntryType:   ledgerdomain.EntryTypeFundraiser,
			Credit:      fundraiser.Amount,
			Description: fmt.Sprintf("Fundraiser: %s (%04d-%02d)", fundraiser.Name, fundraiser.Year, fundraiser.Month),
			SourceType:  ledgerdomain.SourceTypeFundraiser,
			SourceID:    fundraiser.ID,
			AuthorID:    req.AuthorID,
		})
		return err
	})
	if err != nil {
		return domain.FundraiserResult{}, err
	}

	s.ledgerSvc.Published(ctx, entry)
	s.log.Info("fundraiser recorded",
		zap.String("fundraiser_id", fundraiser.ID.String()),
		zap.String("slug", fundraiser.Slug),
		zap.String("amount", fundraiser.Amount.StringFixed(money.Places)),
	)
	s.audit(ctx, req.AuthorID, "fundraiser.created", &fundraiser, map[string]any{"ledger_seq": entry.Seq})

	return domain.FundraiserResult{
		Fundraiser:   fundraiser,
		LedgerSeq:    entry.Seq,
		UnionBalance: entry.BalanceAfter,
	}, nil
}

// Update edits a fundraiser. An amount change appends one
// FUNDRAISER_ADJUSTMENT entry carrying the signed difference.
func (s *Service) Update(ctx context.Context, req domain.UpdateFundraiserRequest) (result domain.FundraiserResult, err error) {
	start := time.Now()
	defer func() { s.recon.ObserveTx(obsmetrics.OpFundraiserPatch, start, err) }()

	if req.AuthorID == 0 {
		return domain.FundraiserResult{}, domain.ErrInvalidAuthor
	}
	var name string
	if req.Name != nil {
		if name, err = normalizeName(*req.Name); err != nil {
			return domain.FundraiserResult{}, err
		}
	}
	if req.Amount != nil && !money.Valid(*req.Amount) {
		return domain.FundraiserResult{}, domain.ErrInvalidAmount
	}

	var (
		entry    *ledgerdomain.Entry
		previous decimal.Decimal
		delta    decimal.Decimal
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		waitStart := time.Now()
		fundraiser, err := s.repo.FindByIDForUpdate(ctx, tx, req.ID)
		if err != nil {
			return err
		}
		s.recon.ObserveLockWait(obsmetrics.LockFundraiser, time.Since(waitStart))
		if fundraiser == nil {
			return domain.ErrFundraiserNotFound
		}

		previous = fundraiser.Amount
		if req.Name != nil {
			fundraiser.Name = name
			fundraiser.Slug = slug.Make(name)
		}
		if req.Notes != nil {
			fundraiser.Notes = normalizeNotes(req.Notes)
		}
		if req.Amount != nil {
			delta = fundraiser.Delta(*req.Amount)
			fundraiser.Amount = *req.Amount
		}
		fundraiser.UpdatedAt = s.clock.Now().UTC()
		if err := s.repo.Update(ctx, tx, fundraiser); err != nil {
			return err
		}
		result.Fundraiser = *fundraiser

		if delta.IsZero() {
			return nil
		}
		adjustment := ledgerdomain.AppendRequest{
			EntryType:   ledgerdomain.EntryTypeFundraiserAdjustment,
			Description: fmt.Sprintf("Fundraiser adjustment: %s (%s -> %s)", fundraiser.Name, previous.StringFixed(money.Places), fundraiser.Amount.StringFixed(money.Places)),
			SourceType:  ledgerdomain.SourceTypeFundraiser,
			SourceID:    fundraiser.ID,
			AuthorID:    req.AuthorID,
		}
		if delta.IsPositive() {
			adjustment.Credit = delta
		} else {
			adjustment.Debit = delta.Neg()
		}
		entry, err = s.ledgerSvc.Append(ctx, tx, adjustment)
		return err
	})
	if err != nil {
		return domain.FundraiserResult{}, err
	}

	extra := map[string]any{"previous_amount": previous.StringFixed(money.Places)}
	if entry != nil {
		s.ledgerSvc.Published(ctx, entry)
		result.LedgerSeq = entry.Seq
		result.UnionBalance = entry.BalanceAfter
		extra["ledger_seq"] = entry.Seq
		extra["delta"] = delta.StringFixed(money.Places)
	} else if result.UnionBalance, err = s.ledgerSvc.Balance(ctx); err != nil {
		return domain.FundraiserResult{}, err
	}

	s.log.Info("fundraiser updated",
		zap.String("fundraiser_id", result.Fundraiser.ID.String()),
		zap.String("delta", delta.StringFixed(money.Places)),
	)
	s.audit(ctx, req.AuthorID, "fundraiser.updated", &result.Fundraiser, extra)
	return result, nil
}

func (s *Service) List(ctx context.Context, year, month int) ([]domain.FundRaiser, error) {
	if month < 0 || month > 12 || year < 0 {
		return nil, domain.ErrInvalidPeriod
	}
	rows, err := s.repo.List(ctx, s.db, year, month)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []domain.FundRaiser{}
	}
	return rows, nil
}

func (s *Service) audit(ctx context.Context, actorID snowflake.ID, action string, f *domain.FundRaiser, extra map[string]any) {
	if s.auditSvc == nil {
		return
	}
	metadata := map[string]any{
		"name":   f.Name,
		"amount": f.Amount.StringFixed(money.Places),
		"year":   f.Year,
		"month":  f.Month,
	}
	for k, v := range extra {
		metadata[k] = v
	}
	actor := actorID.String()
	targetID := f.ID.String()
	if err := s.auditSvc.AuditLog(ctx, string(auditdomain.ActorTypeUser), &actor, action, "fund_raiser", &targetID, metadata); err != nil {
		s.log.Warn("failed to write fundraiser audit log", zap.String("action", action), zap.Error(err))
	}
}

func normalizeName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" || len(name) > maxNameLength || slug.Make(name) == "" {
		return "", domain.ErrInvalidName
	}
	return name, nil
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
