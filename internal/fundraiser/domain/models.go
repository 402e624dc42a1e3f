package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// FundRaiser is money raised for the compound in a given month. Creation
// credits the union ledger; every amount change appends a signed
// adjustment instead of rewriting the original entry.
type FundRaiser struct {
	ID        snowflake.ID    `gorm:"primaryKey" json:"id"`
	Name      string          `gorm:"type:text;not null" json:"name"`
	Slug      string          `gorm:"type:text;not null" json:"slug"`
	Amount    decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"amount"`
	Year      int             `gorm:"not null" json:"year"`
	Month     int             `gorm:"not null" json:"month"`
	Notes     *string         `gorm:"type:text" json:"notes,omitempty"`
	CreatedBy snowflake.ID    `gorm:"not null" json:"created_by"`
	CreatedAt time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time       `gorm:"not null" json:"updated_at"`
}

func (FundRaiser) TableName() string { return "fund_raisers" }

// Delta is the signed ledger adjustment for moving to amount.
func (f FundRaiser) Delta(amount decimal.Decimal) decimal.Decimal {
	return amount.Sub(f.Amount)
}
