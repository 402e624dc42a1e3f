package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/duesledger/internal/invoice/domain"
	paymentdomain "github.com/smallbiznis/duesledger/internal/payment/domain"
	userdomain "github.com/smallbiznis/duesledger/internal/user/domain"
	"github.com/smallbiznis/duesledger/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const invoiceColumns = `id, user_id, year, month, amount, status, due_date, paid_date, notes, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, conn *gorm.DB, invoice *domain.Invoice) error {
	err := conn.WithContext(ctx).Exec(
		`INSERT INTO maintenance_invoices (`+invoiceColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		invoice.ID,
		invoice.UserID,
		invoice.Year,
		invoice.Month,
		invoice.Amount,
		invoice.Status,
		invoice.DueDate,
		invoice.PaidDate,
		invoice.Notes,
		invoice.CreatedAt,
		invoice.UpdatedAt,
	).Error
	if db.IsDuplicateKeyErr(err) {
		return domain.ErrDuplicateInvoice
	}
	return err
}

func (r *repo) FindByID(ctx context.Context, conn *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	return r.findByID(ctx, conn, id, "")
}

func (r *repo) FindByIDForUpdate(ctx context.Context, conn *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	return r.findByID(ctx, conn, id, db.ForUpdate(conn))
}

func (r *repo) findByID(ctx context.Context, conn *gorm.DB, id snowflake.ID, lock string) (*domain.Invoice, error) {
	var invoice domain.Invoice
	err := conn.WithContext(ctx).Raw(
		`SELECT `+invoiceColumns+` FROM maintenance_invoices WHERE id = ?`+lock,
		id,
	).Scan(&invoice).Error
	if err != nil {
		return nil, err
	}
	if invoice.ID == 0 {
		return nil, nil
	}
	return &invoice, nil
}

func (r *repo) Exists(ctx context.Context, conn *gorm.DB, userID snowflake.ID, year, month int) (bool, error) {
	var count int64
	err := conn.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM maintenance_invoices WHERE user_id = ? AND year = ? AND month = ?`,
		userID, year, month,
	).Scan(&count).Error
	return count > 0, err
}

func (r *repo) ListByUser(ctx context.Context, conn *gorm.DB, userID snowflake.ID) ([]domain.InvoiceBalance, error) {
	var rows []struct {
		domain.Invoice
		Paid decimal.Decimal
	}
	err := conn.WithContext(ctx).Raw(
		`SELECT i.id, i.user_id, i.year, i.month, i.amount, i.status, i.due_date, i.paid_date,
			i.notes, i.created_at, i.updated_at,
			COALESCE((SELECT SUM(p.amount) FROM payments p WHERE p.invoice_id = i.id), 0) AS paid
		 FROM maintenance_invoices i
		 WHERE i.user_id = ?
		 ORDER BY i.year DESC, i.month DESC`,
		userID,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	balances := make([]domain.InvoiceBalance, 0, len(rows))
	for _, row := range rows {
		paid := row.Paid.Round(2)
		balances = append(balances, domain.InvoiceBalance{
			Invoice:   row.Invoice,
			Paid:      paid,
			Remaining: row.Amount.Sub(paid),
		})
	}
	return balances, nil
}

func (r *repo) UpdateStatus(ctx context.Context, conn *gorm.DB, invoice *domain.Invoice) error {
	return conn.WithContext(ctx).Exec(
		`UPDATE maintenance_invoices SET status = ?, paid_date = ?, notes = ?, updated_at = ? WHERE id = ?`,
		invoice.Status,
		invoice.PaidDate,
		invoice.Notes,
		invoice.UpdatedAt,
		invoice.ID,
	).Error
}

func (r *repo) Delete(ctx context.Context, conn *gorm.DB, id snowflake.ID) error {
	return conn.WithContext(ctx).Exec(`DELETE FROM maintenance_invoices WHERE id = ?`, id).Error
}

func (r *repo) CountPendingClaims(ctx context.Context, conn *gorm.DB, invoiceID snowflake.ID) (int64, error) {
	var count int64
	err := conn.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM online_payments WHERE invoice_id = ? AND status = 'PENDING'`,
		invoiceID,
	).Scan(&count).Error
	return count, err
}

// UnitsStatus lists every resident of the building with the month's invoice,
// if any, and how it was paid.
func (r *repo) UnitsStatus(ctx context.Context, conn *gorm.DB, building string, year, month int) ([]domain.UnitStatus, error) {
	var rows []struct {
		UserID       snowflake.ID
		FullName     string
		Floor        string
		Apartment    string
		InvoiceID    *snowflake.ID
		Amount       decimal.NullDecimal
		Status       *domain.InvoiceStatus
		PaidAmount   decimal.Decimal
		OnlineCount  int64
		PaymentCount int64
	}
	err := conn.WithContext(ctx).Raw(
		`SELECT u.id AS user_id, u.full_name, d.floor, d.apartment,
			i.id AS invoice_id, i.amount, i.status,
			COALESCE((SELECT SUM(p.amount) FROM payments p WHERE p.invoice_id = i.id), 0) AS paid_amount,
			(SELECT COUNT(1) FROM payments p JOIN users c ON c.id = p.collected_by
				WHERE p.invoice_id = i.id AND c.role = ?) AS online_count,
			(SELECT COUNT(1) FROM payments p WHERE p.invoice_id = i.id) AS payment_count
		 FROM users u
		 JOIN person_details d ON d.user_id = u.id
		 LEFT JOIN maintenance_invoices i ON i.user_id = u.id AND i.year = ? AND i.month = ?
		 WHERE u.role = ? AND d.building = ?
		 ORDER BY d.floor ASC, d.apartment ASC`,
		userdomain.RoleOnlineAdmin, year, month, userdomain.RoleResident, building,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	units := make([]domain.UnitStatus, 0, len(rows))
	for _, row := range rows {
		unit := domain.UnitStatus{
			UserID:     row.UserID,
			FullName:   row.FullName,
			Floor:      row.Floor,
			Apartment:  row.Apartment,
			InvoiceID:  row.InvoiceID,
			Status:     row.Status,
			PaidAmount: row.PaidAmount.Round(2),
		}
		if row.Amount.Valid {
			amount := row.Amount.Decimal
			unit.Amount = &amount
		}
		switch {
		case row.OnlineCount > 0:
			method := paymentdomain.MethodOnline
			unit.PaymentMethod = &method
		case row.PaymentCount > 0:
			method := paymentdomain.MethodCash
			unit.PaymentMethod = &method
		}
		units = append(units, unit)
	}
	return units, nil
}
