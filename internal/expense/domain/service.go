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

type CreateExpenseRequest struct {
	Title    string
	Category string
	Amount   decimal.Decimal
	// SpentOn defaults to today.
	SpentOn  *time.Time
	Notes    *string
	AuthorID snowflake.ID
}

type CreateExpenseResult struct {
	Expense      Expense         `json:"expense"`
	LedgerSeq    int64           `json:"ledger_seq"`
	UnionBalance decimal.Decimal `json:"union_balance"`
}

// ListExpensesRequest filters by the calendar month of spent_on. Zero
// values match everything.
type ListExpensesRequest struct {
	Year  int
	Month int
	Limit int
}

type ListFilter struct {
	From  time.Time
	To    time.Time
	Limit int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, expense *Expense) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Expense, error)
}

type Service interface {
	Create(ctx context.Context, req CreateExpenseRequest) (CreateExpenseResult, error)
	List(ctx context.Context, req ListExpensesRequest) ([]Expense, error)
}

var (
	ErrInvalidTitle  = errors.New("invalid_title")
	ErrInvalidAuthor = errors.New("invalid_author")
	ErrInvalidPeriod = errors.New("invalid_period")
	ErrInvalidAmount = money.ErrInvalidAmount
)
