package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/duesledger/internal/money"
	"gorm.io/gorm"
)

type CreateFundraiserRequest struct {
	Name     string
	Amount   decimal.Decimal
	Year     int
	Month    int
	Notes    *string
	AuthorID snowflake.ID
}

// UpdateFundraiserRequest changes only the fields that are set.
type UpdateFundraiserRequest struct {
	ID       snowflake.ID
	Name     *string
	Amount   *decimal.Decimal
	Notes    *string
	AuthorID snowflake.ID
}

type FundraiserResult struct {
	Fundraiser FundRaiser `json:"fundraiser"`
	// LedgerSeq is zero when the change did not touch the ledger.
	LedgerSeq    int64           `json:"ledger_seq,omitempty"`
	UnionBalance decimal.Decimal `json:"union_balance"`
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, f *FundRaiser) error
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*FundRaiser, error)
	Update(ctx context.Context, db *gorm.DB, f *FundRaiser) error
	// List filters on year and month when they are non-zero.
	List(ctx context.Context, db *gorm.DB, year, month int) ([]FundRaiser, error)
}

type Service interface {
	Create(ctx context.Context, req CreateFundraiserRequest) (FundraiserResult, error)
	Update(ctx context.Context, req UpdateFundraiserRequest) (FundraiserResult, error)
	List(ctx context.Context, year, month int) ([]FundRaiser, error)
}

var (
	ErrFundraiserNotFound  = errors.New("fundraiser_not_found")
	ErrDuplicateFundraiser = errors.New("duplicate_fundraiser")
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidPeriod       = errors.New("invalid_period")
	ErrInvalidAuthor       = errors.New("invalid_author")
	ErrInvalidAmount       = money.ErrInvalidAmount
)
