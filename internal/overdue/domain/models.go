// Package domain classifies residents with unpaid dues. Nothing here is
// persisted; a report is recomputed from invoices and payments on demand.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// OpenInvoice is an invoice up to the current month with its payment total.
type OpenInvoice struct {
	UserID    snowflake.ID
	FullName  string
	Building  string
	Floor     string
	Apartment string
	InvoiceID snowflake.ID
	Year      int
	Month     int
	Amount    decimal.Decimal
	Paid      decimal.Decimal
}

func (o OpenInvoice) Unpaid() decimal.Decimal {
	return o.Amount.Sub(o.Paid)
}

type MonthLine struct {
	InvoiceID snowflake.ID    `json:"invoice_id"`
	Year      int             `json:"year"`
	Month     int             `json:"month"`
	Amount    decimal.Decimal `json:"amount"`
	Paid      decimal.Decimal `json:"paid"`
	Unpaid    decimal.Decimal `json:"unpaid"`
}

type Flags struct {
	CurrentMonthLate bool `json:"current_month_late"`
	MoreThan3Months  bool `json:"more_than_3_months"`
	PartialPayment   bool `json:"partial_payment"`
}

func (f Flags) Any() bool {
	return f.CurrentMonthLate || f.MoreThan3Months || f.PartialPayment
}

type OverdueResident struct {
	UserID      snowflake.ID    `json:"user_id"`
	FullName    string          `json:"full_name"`
	Building    string          `json:"building"`
	Floor       string          `json:"floor"`
	Apartment   string          `json:"apartment"`
	TotalUnpaid decimal.Decimal `json:"total_unpaid"`
	Flags
	Months []MonthLine `json:"months"`
}

// Rules are the policy knobs of the classification.
type Rules struct {
	CutoffDay      int
	MonthThreshold int
}

type Report struct {
	AsOf           string            `json:"as_of"`
	CutoffDay      int               `json:"cutoff_day"`
	MonthThreshold int               `json:"month_threshold"`
	Residents      []OverdueResident `json:"residents"`
}

// MonthsBetween is the calendar month distance from (year, month) to today.
func MonthsBetween(today time.Time, year, month int) int {
	return (today.Year()-year)*12 + (int(today.Month()) - month)
}

// Classify groups open invoices per resident and keeps residents with at
// least one flag raised. Input order is preserved for residents and months.
func Classify(rows []OpenInvoice, today time.Time, rules Rules) []OverdueResident {
	var (
		order []snowflake.ID
		byID  = map[snowflake.ID]*OverdueResident{}
	)
	for _, row := range rows {
		unpaid := row.Unpaid()
		if !unpaid.IsPositive() {
			continue
		}
		if MonthsBetween(today, row.Year, row.Month) < 0 {
			continue
		}

		r, ok := byID[row.UserID]
		if !ok {
			r = &OverdueResident{
				UserID:      row.UserID,
				FullName:    row.FullName,
				Building:    row.Building,
				Floor:       row.Floor,
				Apartment:   row.Apartment,
				TotalUnpaid: decimal.Zero,
			}
			byID[row.UserID] = r
			order = append(order, row.UserID)
		}

		age := MonthsBetween(today, row.Year, row.Month)
		if age == 0 && today.Day() > rules.CutoffDay {
			r.CurrentMonthLate = true
		}
		if age >= rules.MonthThreshold {
			r.MoreThan3Months = true
		}
		if row.Paid.IsPositive() && row.Paid.LessThan(row.Amount) {
			r.PartialPayment = true
		}

		r.TotalUnpaid = r.TotalUnpaid.Add(unpaid)
		r.Months = append(r.Months, MonthLine{
			InvoiceID: row.InvoiceID,
			Year:      row.Year,
			Month:     row.Month,
			Amount:    row.Amount,
			Paid:      row.Paid,
			Unpaid:    unpaid,
		})
	}

	out := make([]OverdueResident, 0, len(order))
	for _, id := range order {
		if r := byID[id]; r.Any() {
			out = append(out, *r)
		}
	}
	return out
}
