package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/duesledger/pkg/db/pagination"
	"gorm.io/gorm"
)

type AppendRequest struct {
	EntryType   EntryType
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	Description string
	SourceType  SourceType
	SourceID    snowflake.ID
	AuthorID    snowflake.ID
}

type ListRequest struct {
	pagination.Pagination
	EntryType EntryType
}

type ListResponse struct {
	pagination.PageInfo
	Entries []Entry `json:"entries"`
}

// VerifyResult reports the outcome of walking the whole chain.
type VerifyResult struct {
	Entries        int64            `json:"entries"`
	Valid          bool             `json:"valid"`
	Balance        decimal.Decimal  `json:"balance"`
	FirstBrokenSeq *int64           `json:"first_broken_seq,omitempty"`
	Expected       *decimal.Decimal `json:"expected_balance_after,omitempty"`
	Actual         *decimal.Decimal `json:"actual_balance_after,omitempty"`
}

type ListFilter struct {
	EntryType EntryType
	BeforeSeq int64
	AfterSeq  int64
	Ascending bool
	Limit     int
}

type Repository interface {
	LockTail(ctx context.Context, db *gorm.DB) error
	Tail(ctx context.Context, db *gorm.DB) (*Entry, error)
	Insert(ctx context.Context, db *gorm.DB, entry *Entry) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Entry, error)
}

type Service interface {
	// Append writes one entry after the current tail inside tx. A nil tx
	// runs the append in its own transaction.
	Append(ctx context.Context, tx *gorm.DB, req AppendRequest) (*Entry, error)
	// Published records metrics and audit for an entry whose transaction committed.
	Published(ctx context.Context, entry *Entry)
	Balance(ctx context.Context) (decimal.Decimal, error)
	Tail(ctx context.Context) (*Entry, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	Verify(ctx context.Context) (VerifyResult, error)
}

var (
	ErrInvalidEntryType    = errors.New("invalid_entry_type")
	ErrInvalidEntryAmounts = errors.New("invalid_entry_amounts")
	ErrInvalidSource       = errors.New("invalid_source")
	ErrInvalidAuthor       = errors.New("invalid_author")
	ErrInvalidDescription  = errors.New("invalid_description")
	ErrInvalidPageToken    = errors.New("invalid_page_token")
	ErrLedgerConflict      = errors.New("ledger_conflict")
)
