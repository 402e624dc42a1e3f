package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/duesledger/internal/money"
	"github.com/smallbiznis/duesledger/internal/settlement/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

type totalRow struct {
	Total decimal.Decimal
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, s *domain.Settlement) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO settlements (id, collector_id, treasurer_id, amount, notes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		s.ID,
		s.CollectorID,
		s.TreasurerID,
		s.Amount,
		s.Notes,
		s.CreatedAt,
	).Error
}

func (r *repo) SumByCollector(ctx context.Context, db *gorm.DB, collectorID snowflake.ID) (decimal.Decimal, error) {
	var row totalRow
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(amount), 0) AS total FROM settlements WHERE collector_id = ?`,
		collectorID,
	).Scan(&row).Error
	if err != nil {
		return decimal.Zero, err
	}
	return row.Total.Round(money.Places), nil
}

func (r *repo) ListRecent(ctx context.Context, db *gorm.DB, collectorID snowflake.ID, limit int) ([]domain.SettlementView, error) {
	var rows []domain.SettlementView
	err := db.WithContext(ctx).Raw(
		`SELECT s.id, s.collector_id, s.treasurer_id, s.amount, s.notes, s.created_at,
			COALESCE(u.full_name, '') AS treasurer_name
		 FROM settlements s
		 LEFT JOIN users u ON u.id = s.treasurer_id
		 WHERE s.collector_id = ?
		 ORDER BY s.created_at DESC, s.id DESC
		 LIMIT ?`,
		collectorID,
		limit,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) TotalSettled(ctx context.Context, db *gorm.DB) (decimal.Decimal, error) {
	var row totalRow
	if err := db.WithContext(ctx).Raw(`SELECT COALESCE(SUM(amount), 0) AS total FROM settlements`).Scan(&row).Error; err != nil {
		return decimal.Zero, err
	}
	return row.Total.Round(money.Places), nil
}

func (r *repo) CollectedSince(ctx context.Context, db *gorm.DB, since time.Time) (decimal.Decimal, error) {
	var row totalRow
	stmt := db.WithContext(ctx)
	var err error
	if since.IsZero() {
		err = stmt.Raw(`SELECT COALESCE(SUM(amount), 0) AS total FROM payments`).Scan(&row).Error
	} else {
		err = stmt.Raw(`SELECT COALESCE(SUM(amount), 0) AS total FROM payments WHERE created_at >= ?`, since).Scan(&row).Error
	}
	if err != nil {
		return decimal.Zero, err
	}
	return row.Total.Round(money.Places), nil
}

func (r *repo) InvoiceCounts(ctx context.Context, db *gorm.DB) (domain.InvoiceCounts, error) {
	var row struct {
		Total int64
		Paid  int64
	}
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) AS total,
			COALESCE(SUM(CASE WHEN status = 'PAID' THEN 1 ELSE 0 END), 0) AS paid
		 FROM maintenance_invoices`,
	).Scan(&row).Error
	if err != nil {
		return domain.InvoiceCounts{}, err
	}
	return domain.InvoiceCounts{Total: row.Total, Paid: row.Paid, Unpaid: row.Total - row.Paid}, nil
}
