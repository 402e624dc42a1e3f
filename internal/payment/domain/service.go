package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type CollectRequest struct {
	UserID      snowflake.ID
	InvoiceID   snowflake.ID
	Amount      decimal.Decimal
	Method      Method
	Notes       *string
	CollectorID snowflake.ID
}

type CollectResult struct {
	Payment       Payment         `json:"payment"`
	InvoiceStatus string          `json:"invoice_status"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	Remaining     decimal.Decimal `json:"remaining_amount"`
}

type Service interface {
	// Collect records money handed to a collector against a resident's
	// invoice.
	Collect(ctx context.Context, req CollectRequest) (CollectResult, error)
	ListByCollector(ctx context.Context, collectorID snowflake.ID, limit int) ([]CollectorPayment, error)
	ListByInvoice(ctx context.Context, invoiceID snowflake.ID) ([]Payment, error)
}
