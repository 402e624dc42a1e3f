// Package domain tracks what each collector still holds: payments collected
// minus settlements handed to the treasurer.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/duesledger/internal/money"
)

// Settlement is a hand-over of collected cash to the treasury.
type Settlement struct {
	ID          snowflake.ID    `gorm:"primaryKey" json:"id"`
	CollectorID snowflake.ID    `gorm:"not null;index" json:"collector_id"`
	TreasurerID snowflake.ID    `gorm:"not null" json:"treasurer_id"`
	Amount      decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"amount"`
	Notes       *string         `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt   time.Time       `gorm:"not null" json:"created_at"`
}

func (Settlement) TableName() string { return "settlements" }

type SettlementView struct {
	Settlement
	TreasurerName string `json:"treasurer_name"`
}

type Summary struct {
	TotalAmount       decimal.Decimal `json:"total_amount"`
	SettledAmount     decimal.Decimal `json:"settled_amount"`
	OutstandingAmount decimal.Decimal `json:"outstanding_amount"`
	PaymentsCount     int64           `json:"payments_count"`
}

// NewSummary derives the outstanding amount from collected and settled totals.
func NewSummary(collected, settled decimal.Decimal, payments int64) Summary {
	return Summary{
		TotalAmount:       collected,
		SettledAmount:     settled,
		OutstandingAmount: collected.Sub(settled),
		PaymentsCount:     payments,
	}
}

// CanSettle reports whether amount fits in the outstanding balance.
func (s Summary) CanSettle(amount decimal.Decimal) bool {
	return !money.Exceeds(amount, s.OutstandingAmount)
}

type CollectorSummary struct {
	CollectorID snowflake.ID `json:"collector_id"`
	Username    string       `json:"username"`
	FullName    string       `json:"full_name"`
	Role        string       `json:"role"`
	Summary
}

type CollectorDetail struct {
	CollectorSummary
	RecentSettlements []SettlementView `json:"recent_settlements"`
}

type TreasurySummary struct {
	TotalCollected     decimal.Decimal `json:"total_collected"`
	TotalSettled       decimal.Decimal `json:"total_settled"`
	UnionBalance       decimal.Decimal `json:"union_balance"`
	TodayCollected     decimal.Decimal `json:"today_collected"`
	ThisMonthCollected decimal.Decimal `json:"this_month_collected"`
	TotalInvoices      int64           `json:"total_invoices"`
	PaidInvoices       int64           `json:"paid_invoices"`
	UnpaidInvoices     int64           `json:"unpaid_invoices"`
}
