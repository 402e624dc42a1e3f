package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type EntryType string

const (
	EntryTypeSettlement           EntryType = "SETTLEMENT"
	EntryTypeExpense              EntryType = "EXPENSE"
	EntryTypeFundraiser           EntryType = "FUNDRAISER"
	EntryTypeFundraiserAdjustment EntryType = "FUNDRAISER_ADJUSTMENT"
)

func (t EntryType) Valid() bool {
	switch t {
	case EntryTypeSettlement, EntryTypeExpense, EntryTypeFundraiser, EntryTypeFundraiserAdjustment:
		return true
	default:
		return false
	}
}

type SourceType string

const (
	SourceTypeSettlement SourceType = "settlement"
	SourceTypeExpense    SourceType = "expense"
	SourceTypeFundraiser SourceType = "fund_raiser"
)

// Entry is one row of the union ledger. Rows are never updated; the tail's
// BalanceAfter is the treasury balance.
type Entry struct {
	ID           snowflake.ID    `gorm:"primaryKey" json:"id"`
	Seq          int64           `gorm:"not null;uniqueIndex" json:"seq"`
	EntryType    EntryType       `gorm:"type:text;not null" json:"entry_type"`
	Debit        decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"debit"`
	Credit       decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"credit"`
	BalanceAfter decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"balance_after"`
	Description  string          `gorm:"type:text;not null" json:"description"`
	SourceType   SourceType      `gorm:"type:text;not null" json:"source_type"`
	SourceID     snowflake.ID    `gorm:"not null" json:"source_id"`
	AuthorID     snowflake.ID    `gorm:"not null" json:"author_id"`
	CreatedAt    time.Time       `gorm:"not null" json:"created_at"`
}

func (Entry) TableName() string { return "union_ledger_entries" }

// Net is credit minus debit.
func (e Entry) Net() decimal.Decimal {
	return e.Credit.Sub(e.Debit)
}

// Next computes the entry that follows tail (nil for an empty ledger).
func Next(tail *Entry, debit, credit decimal.Decimal) (seq int64, balance decimal.Decimal) {
	if tail == nil {
		return 1, credit.Sub(debit)
	}
	return tail.Seq + 1, tail.BalanceAfter.Add(credit).Sub(debit)
}
