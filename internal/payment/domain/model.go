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

type Method string

const (
	MethodCash   Method = "CASH"
	MethodOnline Method = "ONLINE"
)

func (m Method) Valid() bool {
	return m == MethodCash || m == MethodOnline
}

// Payment is money actually collected against an invoice. Rows are never
// updated; a privileged override to UNPAID is the only delete path.
type Payment struct {
	ID          snowflake.ID    `gorm:"primaryKey" json:"id"`
	UserID      snowflake.ID    `gorm:"not null;index" json:"user_id"`
	InvoiceID   snowflake.ID    `gorm:"not null;index" json:"invoice_id"`
	Amount      decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"amount"`
	Method      Method          `gorm:"type:text;not null" json:"method"`
	Notes       *string         `gorm:"type:text" json:"notes,omitempty"`
	CollectedBy snowflake.ID    `gorm:"not null;index" json:"collected_by"`
	CreatedAt   time.Time       `gorm:"not null" json:"created_at"`
}

func (Payment) TableName() string { return "payments" }

// CollectorPayment is a payment as listed for the collecting principal.
type CollectorPayment struct {
	Payment
	ResidentName string `json:"resident_name"`
	Year         int    `json:"year"`
	Month        int    `json:"month"`
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payment *Payment) error
	SumByInvoice(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) (decimal.Decimal, error)
	CountByInvoice(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) (int64, error)
	DeleteByInvoice(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) (int64, error)
	ListByInvoice(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]Payment, error)
	ListByCollector(ctx context.Context, db *gorm.DB, collectorID snowflake.ID, limit int) ([]CollectorPayment, error)
	SumByCollector(ctx context.Context, db *gorm.DB, collectorID snowflake.ID) (total decimal.Decimal, count int64, err error)
}

var (
	ErrInvalidAmount = money.ErrInvalidAmount
	ErrInvalidMethod = errors.New("invalid_method")
)
