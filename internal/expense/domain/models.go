package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Expense is money spent out of the treasury. Each row has exactly one
// EXPENSE debit in the union ledger.
type Expense struct {
	ID        snowflake.ID    `gorm:"primaryKey" json:"id"`
	Title     string          `gorm:"type:text;not null" json:"title"`
	Category  string          `gorm:"type:text;not null" json:"category"`
	Amount    decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"amount"`
	SpentOn   time.Time       `gorm:"type:date;not null" json:"spent_on"`
	Notes     *string         `gorm:"type:text" json:"notes,omitempty"`
	CreatedBy snowflake.ID    `gorm:"not null" json:"created_by"`
	CreatedAt time.Time       `gorm:"not null" json:"created_at"`
}

func (Expense) TableName() string { return "expenses" }
