package repository

import (
	"context"
	"strings"

	"github.com/smallbiznis/duesledger/internal/expense/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, e *domain.Expense) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO expenses (id, title, category, amount, spent_on, notes, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID,
		e.Title,
		e.Category,
		e.Amount,
		e.SpentOn,
		e.Notes,
		e.CreatedBy,
		e.CreatedAt,
	).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.Expense, error) {
	var (
		where []string
		args  []any
	)
	if !filter.From.IsZero() {
		where = append(where, "spent_on >= ?")
		args = append(args, filter.From)
	}
	if !filter.To.IsZero() {
		where = append(where, "spent_on < ?")
		args = append(args, filter.To)
	}

	query := `SELECT id, title, category, amount, spent_on, notes, created_by, created_at FROM expenses`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY spent_on DESC, id DESC LIMIT ?"
	args = append(args, filter.Limit)

	var rows []domain.Expense
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
