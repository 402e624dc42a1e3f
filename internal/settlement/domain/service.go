package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/duesledger/internal/money"
	"gorm.io/gorm"
)

type RecordSettlementRequest struct {
	CollectorID snowflake.ID
	TreasurerID snowflake.ID
	Amount      decimal.Decimal
	Notes       *string
}

type RecordSettlementResult struct {
	Settlement Settlement `json:"settlement"`
	Summary    Summary    `json:"summary"`
	// LedgerSeq is the union ledger entry that credited the hand-over.
	LedgerSeq    int64           `json:"ledger_seq"`
	UnionBalance decimal.Decimal `json:"union_balance"`
}

// InvoiceCounts are compound-wide invoice totals by state.
type InvoiceCounts struct {
	Total  int64
	Paid   int64
	Unpaid int64
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, settlement *Settlement) error
	SumByCollector(ctx context.Context, db *gorm.DB, collectorID snowflake.ID) (decimal.Decimal, error)
	ListRecent(ctx context.Context, db *gorm.DB, collectorID snowflake.ID, limit int) ([]SettlementView, error)
	TotalSettled(ctx context.Context, db *gorm.DB) (decimal.Decimal, error)
	// CollectedSince sums payments created at or after since; a zero since
	// sums everything.
	CollectedSince(ctx context.Context, db *gorm.DB, since time.Time) (decimal.Decimal, error)
	InvoiceCounts(ctx context.Context, db *gorm.DB) (InvoiceCounts, error)
}

type Service interface {
	Outstanding(ctx context.Context, collectorID snowflake.ID) (decimal.Decimal, error)
	Summary(ctx context.Context, collectorID snowflake.ID) (Summary, error)
	RecordSettlement(ctx context.Context, req RecordSettlementRequest) (RecordSettlementResult, error)
	ListCollectors(ctx context.Context) ([]CollectorSummary, error)
	CollectorDetail(ctx context.Context, collectorID snowflake.ID) (CollectorDetail, error)
	TreasurySummary(ctx context.Context, today time.Time) (TreasurySummary, error)
}

var (
	ErrCollectorNotFound  = errors.New("collector_not_found")
	ErrExceedsOutstanding = errors.New("amount_exceeds_outstanding")
	ErrInvalidTreasurer   = errors.New("invalid_treasurer")
	ErrInvalidAmount      = money.ErrInvalidAmount
)
