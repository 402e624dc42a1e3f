// Package domain holds the maintenance invoice and its status machine.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type InvoiceStatus string

const (
	InvoiceStatusUnpaid              InvoiceStatus = "UNPAID"
	InvoiceStatusPending             InvoiceStatus = "PENDING"
	InvoiceStatusPendingConfirmation InvoiceStatus = "PENDING_CONFIRMATION"
	InvoiceStatusPaid                InvoiceStatus = "PAID"
)

// Open reports UNPAID or its synonym PENDING.
func (s InvoiceStatus) Open() bool {
	return s == InvoiceStatusUnpaid || s == InvoiceStatusPending
}

func (s InvoiceStatus) Valid() bool {
	return s.Open() || s == InvoiceStatusPendingConfirmation || s == InvoiceStatusPaid
}

// PaymentSource tags the route by which an invoice becomes PAID.
type PaymentSource string

const (
	SourceCash     PaymentSource = "CASH"
	SourceOnline   PaymentSource = "ONLINE"
	SourceOverride PaymentSource = "OVERRIDE"
)

func (s PaymentSource) Valid() bool {
	return s == SourceCash || s == SourceOnline || s == SourceOverride
}

// Invoice is one month's maintenance charge for one resident.
type Invoice struct {
	ID        snowflake.ID    `gorm:"primaryKey" json:"id"`
	UserID    snowflake.ID    `gorm:"not null;uniqueIndex:ux_invoices_user_period,priority:1" json:"user_id"`
	Year      int             `gorm:"not null;uniqueIndex:ux_invoices_user_period,priority:2" json:"year"`
	Month     int             `gorm:"not null;uniqueIndex:ux_invoices_user_period,priority:3" json:"month"`
	Amount    decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"amount"`
	Status    InvoiceStatus   `gorm:"type:text;not null" json:"status"`
	DueDate   time.Time       `gorm:"type:date;not null" json:"due_date"`
	PaidDate  *time.Time      `gorm:"type:date" json:"paid_date,omitempty"`
	Notes     *string         `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time       `gorm:"not null" json:"updated_at"`
}

func (Invoice) TableName() string { return "maintenance_invoices" }

// CheckPayable applies the guards a payment from source must pass before it
// is written.
func (inv *Invoice) CheckPayable(source PaymentSource) error {
	switch source {
	case SourceCash:
		switch inv.Status {
		case InvoiceStatusPaid:
			return ErrAlreadyPaid
		case InvoiceStatusPendingConfirmation:
			return ErrAwaitingOnlineConfirmation
		}
	case SourceOnline:
		if inv.Status == InvoiceStatusPaid {
			return ErrAlreadyPaid
		}
	case SourceOverride:
	default:
		return ErrInvalidSource
	}
	return nil
}

// MarkPaid is the only transition into PAID.
func (inv *Invoice) MarkPaid(source PaymentSource, at time.Time) error {
	if err := inv.CheckPayable(source); err != nil {
		return err
	}
	if inv.Status == InvoiceStatusPaid {
		return nil
	}
	paid := dateOf(at)
	inv.Status = InvoiceStatusPaid
	inv.PaidDate = &paid
	inv.UpdatedAt = at.UTC()
	return nil
}

// AwaitConfirmation moves an open invoice under online review.
func (inv *Invoice) AwaitConfirmation(at time.Time) error {
	switch {
	case inv.Status == InvoiceStatusPaid:
		return ErrAlreadyPaid
	case inv.Status == InvoiceStatusPendingConfirmation:
		return ErrAwaitingOnlineConfirmation
	case !inv.Status.Open():
		return ErrInvalidState
	}
	inv.Status = InvoiceStatusPendingConfirmation
	inv.UpdatedAt = at.UTC()
	return nil
}

// RevertToUnpaid undoes AwaitConfirmation. It reports false, changing
// nothing, when the invoice is not under review.
func (inv *Invoice) RevertToUnpaid(at time.Time) bool {
	if inv.Status != InvoiceStatusPendingConfirmation {
		return false
	}
	inv.Status = InvoiceStatusUnpaid
	inv.PaidDate = nil
	inv.UpdatedAt = at.UTC()
	return true
}

// ForceUnpaid is the privileged PAID to UNPAID override. Payments are removed
// by the caller in the same transaction.
func (inv *Invoice) ForceUnpaid(at time.Time) {
	inv.Status = InvoiceStatusUnpaid
	inv.PaidDate = nil
	inv.UpdatedAt = at.UTC()
}

// CheckDeletable guards Delete; payment and claim counts come from the store.
func (inv *Invoice) CheckDeletable(payments, pendingClaims int64) error {
	if inv.Status == InvoiceStatusPaid || inv.Status == InvoiceStatusPendingConfirmation {
		return ErrInvalidState
	}
	if payments > 0 || pendingClaims > 0 {
		return ErrInvalidState
	}
	return nil
}

// MonthsBefore counts whole months from the invoice period to (year, month).
func (inv *Invoice) MonthsBefore(year int, month time.Month) int {
	return (year-inv.Year)*12 + (int(month) - inv.Month)
}

// DueDateFor places dueDay inside the month, clamped to its last day.
func DueDateFor(year, month, dueDay int) time.Time {
	last := time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if dueDay < 1 {
		dueDay = 1
	}
	if dueDay > last {
		dueDay = last
	}
	return time.Date(year, time.Month(month), dueDay, 0, 0, 0, 0, time.UTC)
}

// ValidatePeriod checks year and month bounds.
func ValidatePeriod(year, month int) error {
	if year < 2000 || year > 2100 {
		return ErrInvalidYear
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

func dateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
