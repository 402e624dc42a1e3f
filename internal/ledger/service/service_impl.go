package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/duesledger/internal/audit/domain"
	"github.com/smallbiznis/duesledger/internal/clock"
	ledgerdomain "github.com/smallbiznis/duesledger/internal/ledger/domain"
	"github.com/smallbiznis/duesledger/internal/money"
	obsmetrics "github.com/smallbiznis/duesledger/internal/observability/metrics"
	"github.com/smallbiznis/duesledger/internal/observability/tracing"
	"github.com/smallbiznis/duesledger/pkg/db/pagination"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// verifyBatch bounds the rows held in memory while walking the chain.
const verifyBatch = 500

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       ledgerdomain.Repository
	Clock      clock.Clock                       `optional:"true"`
	AuditSvc   auditdomain.Service               `optional:"true"`
	ObsMetrics *obsmetrics.Metrics               `optional:"true"`
	Recon      *obsmetrics.ReconciliationMetrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       ledgerdomain.Repository
	clock      clock.Clock
	auditSvc   auditdomain.Service
	obsMetrics *obsmetrics.Metrics
	recon      *obsmetrics.ReconciliationMetrics
}

func NewService(p Params) ledgerdomain.Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("ledger.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		clock:      c,
		auditSvc:   p.AuditSvc,
		obsMetrics: p.ObsMetrics,
		recon:      p.Recon,
	}
}

func (s *Service) Append(ctx context.Context, tx *gorm.DB, req ledgerdomain.AppendRequest) (*ledgerdomain.Entry, error) {
	if err := validateAppend(&req); err != nil {
		return nil, err
	}

	if tx == nil {
		var entry *ledgerdomain.Entry
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			entry, err = s.append(ctx, tx, req)
			return err
		})
		if err != nil {
			return nil, err
		}
		s.Published(ctx, entry)
		return entry, nil
	}
	return s.append(ctx, tx, req)
}

func (s *Service) append(ctx context.Context, tx *gorm.DB, req ledgerdomain.AppendRequest) (*ledgerdomain.Entry, error) {
	ctx, span := tracing.StartSpan(ctx, "ledger.append", attribute.String("entry_type", string(req.EntryType)))
	var err error
	defer func() { tracing.EndSpan(span, err) }()

	waitStart := time.Now()
	if err = s.repo.LockTail(ctx, tx); err != nil {
		return nil, err
	}
	s.recon.ObserveLockWait(obsmetrics.LockLedgerTail, time.Since(waitStart))

	tail, err := s.repo.Tail(ctx, tx)
	if err != nil {
		return nil, err
	}

	seq, balance := ledgerdomain.Next(tail, req.Debit, req.Credit)
	entry := &ledgerdomain.Entry{
		ID:           s.genID.Generate(),
		Seq:          seq,
		EntryType:    req.EntryType,
		Debit:        req.Debit,
		Credit:       req.Credit,
		BalanceAfter: balance,
		Description:  req.Description,
		SourceType:   req.SourceType,
		SourceID:     req.SourceID,
		AuthorID:     req.AuthorID,
		CreatedAt:    s.clock.Now().UTC(),
	}
	if err = s.repo.Insert(ctx, tx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *Service) Published(ctx context.Context, entry *ledgerdomain.Entry) {
	if entry == nil {
		return
	}
	s.obsMetrics.RecordLedgerEntry(ctx, string(entry.EntryType))
	s.recon.SetLedgerBalance(entry.BalanceAfter.InexactFloat64())

	s.log.Info("ledger entry appended",
		zap.Int64("seq", entry.Seq),
		zap.String("entry_type", string(entry.EntryType)),
		zap.String("balance_after", entry.BalanceAfter.StringFixed(money.Places)),
	)

	if s.auditSvc == nil {
		return
	}
	targetID := entry.ID.String()
	authorID := entry.AuthorID.String()
	if err := s.auditSvc.AuditLog(ctx, string(auditdomain.ActorTypeUser), &authorID, "ledger.entry_appended", "union_ledger_entry", &targetID, map[string]any{
		"seq":           entry.Seq,
		"entry_type":    string(entry.EntryType),
		"debit":         entry.Debit.StringFixed(money.Places),
		"credit":        entry.Credit.StringFixed(money.Places),
		"balance_after": entry.BalanceAfter.StringFixed(money.Places),
		"source_type":   string(entry.SourceType),
		"source_id":     entry.SourceID.String(),
	}); err != nil {
		s.log.Warn("failed to write ledger audit log", zap.Error(err))
	}
}

func (s *Service) Balance(ctx context.Context) (decimal.Decimal, error) {
	tail, err := s.Tail(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	if tail == nil {
		return decimal.Zero, nil
	}
	return tail.BalanceAfter, nil
}

func (s *Service) Tail(ctx context.Context) (*ledgerdomain.Entry, error) {
	return s.repo.Tail(ctx, s.db)
}

func (s *Service) List(ctx context.Context, req ledgerdomain.ListRequest) (ledgerdomain.ListResponse, error) {
	cursor, err := pagination.DecodeCursor(req.PageToken)
	if err != nil {
		return ledgerdomain.ListResponse{}, ledgerdomain.ErrInvalidPageToken
	}
	if req.EntryType != "" && !req.EntryType.Valid() {
		return ledgerdomain.ListResponse{}, ledgerdomain.ErrInvalidEntryType
	}

	limit := req.Limit()
	filter := ledgerdomain.ListFilter{EntryType: req.EntryType, Limit: limit}
	if cursor != nil {
		filter.BeforeSeq = cursor.Key
	}

	rows, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return ledgerdomain.ListResponse{}, err
	}
	entries, pageInfo, err := pagination.Page(rows, limit, func(e ledgerdomain.Entry) pagination.Cursor {
		return pagination.Cursor{Key: e.Seq}
	})
	if err != nil {
		return ledgerdomain.ListResponse{}, err
	}
	if entries == nil {
		entries = []ledgerdomain.Entry{}
	}
	return ledgerdomain.ListResponse{PageInfo: pageInfo, Entries: entries}, nil
}

// Verify walks the ledger in seq order and checks the running balance.
func (s *Service) Verify(ctx context.Context) (ledgerdomain.VerifyResult, error) {
	result := ledgerdomain.VerifyResult{Valid: true, Balance: decimal.Zero}

	var prev *ledgerdomain.Entry
	var after int64
	for {
		rows, err := s.repo.List(ctx, s.db, ledgerdomain.ListFilter{
			AfterSeq:  after,
			Ascending: true,
			Limit:     verifyBatch,
		})
		if err != nil {
			return ledgerdomain.VerifyResult{}, err
		}
		if len(rows) > verifyBatch {
			rows = rows[:verifyBatch]
		}

		for i := range rows {
			entry := rows[i]
			result.Entries++
			_, expected := ledgerdomain.Next(prev, entry.Debit, entry.Credit)
			if !expected.Equal(entry.BalanceAfter) {
				seq := entry.Seq
				actual := entry.BalanceAfter
				result.Valid = false
				result.FirstBrokenSeq = &seq
				result.Expected = &expected
				result.Actual = &actual
				s.log.Error("ledger chain broken",
					zap.Int64("seq", seq),
					zap.String("expected", expected.StringFixed(money.Places)),
					zap.String("actual", actual.StringFixed(money.Places)),
				)
				return result, nil
			}
			result.Balance = entry.BalanceAfter
			prev = &entry
		}

		if len(rows) < verifyBatch {
			return result, nil
		}
		after = rows[len(rows)-1].Seq
	}
}

func validateAppend(req *ledgerdomain.AppendRequest) error {
	if !req.EntryType.Valid() {
		return ledgerdomain.ErrInvalidEntryType
	}

	debitSet := money.Valid(req.Debit)
	creditSet := money.Valid(req.Credit)
	debitZero := req.Debit.IsZero()
	creditZero := req.Credit.IsZero()
	if !((debitSet && creditZero) || (creditSet && debitZero)) {
		return ledgerdomain.ErrInvalidEntryAmounts
	}

	req.Description = strings.TrimSpace(req.Description)
	if req.Description == "" {
		return ledgerdomain.ErrInvalidDescription
	}
	if strings.TrimSpace(string(req.SourceType)) == "" || req.SourceID == 0 {
		return ledgerdomain.ErrInvalidSource
	}
	if req.AuthorID == 0 {
		return ledgerdomain.ErrInvalidAuthor
	}
	return nil
}
