package repository

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/duesledger/internal/fundraiser/domain"
	"github.com/smallbiznis/duesledger/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const fundraiserColumns = `id, name, slug, amount, year, month, notes, created_by, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, conn *gorm.DB, f *domain.FundRaiser) error {
	err := conn.WithContext(ctx).Exec(
		`INSERT INTO fund_raisers (`+fundraiserColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID,
		f.Name,
		f.Slug,
		f.Amount,
		f.Year,
		f.Month,
		f.Notes,
		f.CreatedBy,
		f.CreatedAt,
		f.UpdatedAt,
	).Error
	if db.IsDuplicateKeyErr(err) {
		return domain.ErrDuplicateFundraiser
	}
	return err
}

func (r *repo) FindByIDForUpdate(ctx context.Context, conn *gorm.DB, id snowflake.ID) (*domain.FundRaiser, error) {
	var f domain.FundRaiser
	err := conn.WithContext(ctx).Raw(
		`SELECT `+fundraiserColumns+` FROM fund_raisers WHERE id = ?`+db.ForUpdate(conn),
		id,
	).Scan(&f).Error
	if err != nil {
		return nil, err
	}
	if f.ID == 0 {
		return nil, nil
	}
	return &f, nil
}

func (r *repo) Update(ctx context.Context, conn *gorm.DB, f *domain.FundRaiser) error {
	err := conn.WithContext(ctx).Exec(
		`UPDATE fund_raisers SET name = ?, slug = ?, amount = ?, notes = ?, updated_at = ? WHERE id = ?`,
		f.Name,
		f.Slug,
		f.Amount,
		f.Notes,
		f.UpdatedAt,
		f.ID,
	).Error
	if db.IsDuplicateKeyErr(err) {
		return domain.ErrDuplicateFundraiser
	}
	return err
}

func (r *repo) List(ctx context.Context, conn *gorm.DB, year, month int) ([]domain.FundRaiser, error) {
	var (
		where []string
		args  []any
	)
	if year != 0 {
		where = append(where, "year = ?")
		args = append(args, year)
	}
	if month != 0 {
		where = append(where, "month = ?")
		args = append(args, month)
	}

	query := `SELECT ` + fundraiserColumns + ` FROM fund_raisers`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY year DESC, month DESC, id DESC"

	var rows []domain.FundRaiser
	if err := conn.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
