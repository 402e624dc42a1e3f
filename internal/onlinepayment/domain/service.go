package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	invoicedomain "github.com/smallbiznis/duesledger/internal/invoice/domain"
	"github.com/smallbiznis/duesledger/internal/money"
	"gorm.io/gorm"
)

type SubmitClaimRequest struct {
	UserID               snowflake.ID
	InvoiceID            snowflake.ID
	Amount               decimal.Decimal
	SenderReference      string
	TransactionReference string
}

type ReviewRequest struct {
	ClaimID    snowflake.ID
	ReviewerID snowflake.ID
	Notes      *string
}

type ReviewResult struct {
	Claim         OnlinePayment `json:"claim"`
	InvoiceStatus string        `json:"invoice_status"`
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, claim *OnlinePayment) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*OnlinePayment, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*OnlinePayment, error)
	HasPending(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) (bool, error)
	UpdateReview(ctx context.Context, db *gorm.DB, claim *OnlinePayment) error
	ListPending(ctx context.Context, db *gorm.DB) ([]PendingClaim, error)
	ListByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]OnlinePayment, error)
	CountPending(ctx context.Context, db *gorm.DB) (int64, error)
}

type Service interface {
	SubmitClaim(ctx context.Context, req SubmitClaimRequest) (OnlinePayment, error)
	Approve(ctx context.Context, req ReviewRequest) (ReviewResult, error)
	Reject(ctx context.Context, req ReviewRequest) (ReviewResult, error)
	Get(ctx context.Context, id snowflake.ID) (OnlinePayment, error)
	ListPending(ctx context.Context) ([]PendingClaim, error)
	ListByUser(ctx context.Context, userID snowflake.ID) ([]OnlinePayment, error)
	CountPending(ctx context.Context) (int64, error)
}

var (
	ErrClaimNotFound      = errors.New("claim_not_found")
	ErrInvoiceAlreadyPaid = invoicedomain.ErrAlreadyPaid
	ErrDuplicateClaim     = errors.New("duplicate_claim")
	ErrNotPending         = errors.New("claim_not_pending")
	ErrInvalidStatus      = errors.New("invalid_claim_status")
	ErrInvalidReference   = errors.New("invalid_reference")
	ErrInvalidReviewer    = errors.New("invalid_reviewer")
	ErrInvalidAmount      = money.ErrInvalidAmount
)
