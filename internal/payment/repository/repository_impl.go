package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/duesledger/internal/payment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, p *domain.Payment) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payments (id, user_id, invoice_id, amount, method, notes, collected_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID,
		p.UserID,
		p.InvoiceID,
		p.Amount,
		p.Method,
		p.Notes,
		p.CollectedBy,
		p.CreatedAt,
	).Error
}

func (r *repo) SumByInvoice(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) (decimal.Decimal, error) {
	var row struct {
		Total decimal.Decimal
	}
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(amount), 0) AS total FROM payments WHERE invoice_id = ?`,
		invoiceID,
	).Scan(&row).Error
	if err != nil {
		return decimal.Zero, err
	}
	return row.Total.Round(2), nil
}

func (r *repo) CountByInvoice(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM payments WHERE invoice_id = ?`,
		invoiceID,
	).Scan(&count).Error
	return count, err
}

func (r *repo) DeleteByInvoice(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) (int64, error) {
	res := db.WithContext(ctx).Exec(`DELETE FROM payments WHERE invoice_id = ?`, invoiceID)
	return res.RowsAffected, res.Error
}

func (r *repo) ListByInvoice(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]domain.Payment, error) {
	var payments []domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, invoice_id, amount, method, notes, collected_by, created_at
		 FROM payments
		 WHERE invoice_id = ?
		 ORDER BY created_at ASC, id ASC`,
		invoiceID,
	).Scan(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *repo) ListByCollector(ctx context.Context, db *gorm.DB, collectorID snowflake.ID, limit int) ([]domain.CollectorPayment, error) {
	var rows []domain.CollectorPayment
	err := db.WithContext(ctx).Raw(
		`SELECT p.id, p.user_id, p.invoice_id, p.amount, p.method, p.notes, p.collected_by, p.created_at,
			u.full_name AS resident_name, i.year, i.month
		 FROM payments p
		 JOIN users u ON u.id = p.user_id
		 JOIN maintenance_invoices i ON i.id = p.invoice_id
		 WHERE p.collected_by = ?
		 ORDER BY p.created_at DESC, p.id DESC
		 LIMIT ?`,
		collectorID,
		limit,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) SumByCollector(ctx context.Context, db *gorm.DB, collectorID snowflake.ID) (decimal.Decimal, int64, error) {
	var row struct {
		Total decimal.Decimal
		Count int64
	}
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(amount), 0) AS total, COUNT(1) AS count FROM payments WHERE collected_by = ?`,
		collectorID,
	).Scan(&row).Error
	if err != nil {
		return decimal.Zero, 0, err
	}
	return row.Total.Round(2), row.Count, nil
}
