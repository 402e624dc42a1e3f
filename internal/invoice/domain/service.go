package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/duesledger/internal/money"
	paymentdomain "github.com/smallbiznis/duesledger/internal/payment/domain"
	"gorm.io/gorm"
)

type CreateInvoiceRequest struct {
	UserID snowflake.ID
	Year   int
	Month  int
	// Amount falls back to the dues policy when nil.
	Amount  *decimal.Decimal
	DueDate *time.Time
	Notes   *string
	ActorID snowflake.ID
}

// ApplyPaymentRequest is the single write path into PAID.
type ApplyPaymentRequest struct {
	InvoiceID snowflake.ID
	// UserID, when set, must own the invoice.
	UserID      snowflake.ID
	Source      PaymentSource
	Method      paymentdomain.Method
	Amount      decimal.Decimal
	CollectorID snowflake.ID
	Notes       *string
}

type ApplyPaymentResult struct {
	Invoice *Invoice
	// Payment is nil when an override found nothing left to cover.
	Payment    *paymentdomain.Payment
	MarkedPaid bool
	Paid       decimal.Decimal
	Remaining  decimal.Decimal
}

// AwaitConfirmationRequest moves an invoice under online review for a
// resident's claim of Amount.
type AwaitConfirmationRequest struct {
	InvoiceID snowflake.ID
	UserID    snowflake.ID
	Amount    decimal.Decimal
}

type OverrideRequest struct {
	InvoiceID snowflake.ID
	Status    InvoiceStatus
	ActorID   snowflake.ID
	Notes     *string
}

type OverrideResult struct {
	Invoice         Invoice `json:"invoice"`
	PaymentsRemoved int64   `json:"payments_removed"`
	// Changed is false when the invoice already had the requested status.
	Changed         bool    `json:"changed"`
}

// InvoiceBalance is an invoice with its settled and open parts.
type InvoiceBalance struct {
	Invoice
	Paid      decimal.Decimal `json:"paid_amount"`
	Remaining decimal.Decimal `json:"remaining_amount"`
}

// UnitStatus is one resident unit's position for a billing month.
type UnitStatus struct {
	UserID        snowflake.ID          `json:"user_id"`
	FullName      string                `json:"full_name"`
	Floor         string                `json:"floor"`
	Apartment     string                `json:"apartment"`
	InvoiceID     *snowflake.ID         `json:"invoice_id"`
	Amount        *decimal.Decimal      `json:"amount"`
	Status        *InvoiceStatus        `json:"status"`
	PaidAmount    decimal.Decimal       `json:"paid_amount"`
	PaymentMethod *paymentdomain.Method `json:"payment_method"`
}

type Service interface {
	Create(ctx context.Context, req CreateInvoiceRequest) (Invoice, error)
	// CreateBatch runs inside the caller's transaction and returns the
	// invoices it created.
	CreateBatch(ctx context.Context, tx *gorm.DB, userID snowflake.ID, from time.Time) ([]Invoice, error)
	Get(ctx context.Context, id snowflake.ID) (Invoice, error)
	GetBalance(ctx context.Context, id snowflake.ID) (InvoiceBalance, error)
	ListByUser(ctx context.Context, userID snowflake.ID) ([]InvoiceBalance, error)
	Delete(ctx context.Context, id snowflake.ID, actorID snowflake.ID) error
	ApplyPayment(ctx context.Context, tx *gorm.DB, req ApplyPaymentRequest) (ApplyPaymentResult, error)
	AwaitConfirmation(ctx context.Context, tx *gorm.DB, req AwaitConfirmationRequest) (*Invoice, error)
	// ReleaseConfirmation returns an invoice under review to UNPAID and
	// reports whether it changed anything.
	ReleaseConfirmation(ctx context.Context, tx *gorm.DB, invoiceID snowflake.ID) (bool, error)
	Override(ctx context.Context, req OverrideRequest) (OverrideResult, error)
	Paid(ctx context.Context, tx *gorm.DB, invoiceID snowflake.ID) (decimal.Decimal, error)
	UnitsStatus(ctx context.Context, building string, year, month int) ([]UnitStatus, error)
}

var (
	ErrInvoiceNotFound            = errors.New("invoice_not_found")
	ErrDuplicateInvoice           = errors.New("duplicate_invoice")
	ErrAlreadyPaid                = errors.New("invoice_already_paid")
	ErrAwaitingOnlineConfirmation = errors.New("invoice_awaiting_online_confirmation")
	ErrAmountExceedsRemaining     = errors.New("amount_exceeds_remaining")
	ErrInvalidState               = errors.New("invalid_invoice_state")
	ErrPaymentsSettled            = errors.New("payments_already_settled")
	ErrInvalidStatus              = errors.New("invalid_status")
	ErrInvalidSource              = errors.New("invalid_payment_source")
	ErrInvalidYear                = errors.New("invalid_year")
	ErrInvalidMonth               = errors.New("invalid_month")
	ErrInvalidUser                = errors.New("invalid_user")
	ErrInvalidBuilding            = errors.New("invalid_building")
	ErrInvalidAmount              = money.ErrInvalidAmount
)
