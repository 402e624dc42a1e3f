package repository

import (
	"context"
	"strings"

	"github.com/smallbiznis/duesledger/internal/money"
	"github.com/smallbiznis/duesledger/internal/overdue/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) ListOpen(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.OpenInvoice, error) {
	where := []string{"(i.year < ? OR (i.year = ? AND i.month <= ?))"}
	args := []any{filter.UpToYear, filter.UpToYear, filter.UpToMonth}
	if filter.Building != "" {
		where = append(where, "pd.building = ?")
		args = append(args, filter.Building)
	}
	if filter.Buildings != nil {
		where = append(where, "pd.building IN ?")
		args = append(args, filter.Buildings)
	}

	var rows []domain.OpenInvoice
	err := db.WithContext(ctx).Raw(
		`SELECT u.id AS user_id, u.full_name, pd.building, pd.floor, pd.apartment,
			i.id AS invoice_id, i.year, i.month, i.amount,
			COALESCE((SELECT SUM(p.amount) FROM payments p WHERE p.invoice_id = i.id), 0) AS paid
		 FROM maintenance_invoices i
		 JOIN users u ON u.id = i.user_id
		 JOIN person_details pd ON pd.user_id = u.id
		 WHERE `+strings.Join(where, " AND ")+`
		 ORDER BY pd.building, pd.floor, pd.apartment, u.id, i.year, i.month`,
		args...,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	open := rows[:0]
	for _, row := range rows {
		row.Paid = row.Paid.Round(money.Places)
		if row.Unpaid().IsPositive() {
			open = append(open, row)
		}
	}
	return open, nil
}
