package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/duesledger/internal/onlinepayment/domain"
	"github.com/smallbiznis/duesledger/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const claimColumns = `id, reference, user_id, invoice_id, amount, sender_reference, transaction_reference,
	status, submitted_at, reviewed_at, reviewed_by, review_notes`

func (r *repo) Insert(ctx context.Context, conn *gorm.DB, claim *domain.OnlinePayment) error {
	err := conn.WithContext(ctx).Exec(
		`INSERT INTO online_payments (`+claimColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		claim.ID,
		claim.Reference,
		claim.UserID,
		claim.InvoiceID,
		claim.Amount,
		claim.SenderReference,
		claim.TransactionReference,
		claim.Status,
		claim.SubmittedAt,
		claim.ReviewedAt,
		claim.ReviewedBy,
		claim.ReviewNotes,
	).Error
	if db.IsDuplicateKeyErr(err) {
		// one pending claim per invoice
		return domain.ErrDuplicateClaim
	}
	return err
}

func (r *repo) FindByID(ctx context.Context, conn *gorm.DB, id snowflake.ID) (*domain.OnlinePayment, error) {
	return r.findByID(ctx, conn, id, "")
}

func (r *repo) FindByIDForUpdate(ctx context.Context, conn *gorm.DB, id snowflake.ID) (*domain.OnlinePayment, error) {
	return r.findByID(ctx, conn, id, db.ForUpdate(conn))
}

func (r *repo) findByID(ctx context.Context, conn *gorm.DB, id snowflake.ID, lock string) (*domain.OnlinePayment, error) {
	var claim domain.OnlinePayment
	err := conn.WithContext(ctx).Raw(
		`SELECT `+claimColumns+` FROM online_payments WHERE id = ?`+lock,
		id,
	).Scan(&claim).Error
	if err != nil {
		return nil, err
	}
	if claim.ID == 0 {
		return nil, nil
	}
	return &claim, nil
}

func (r *repo) HasPending(ctx context.Context, conn *gorm.DB, invoiceID snowflake.ID) (bool, error) {
	var count int64
	err := conn.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM online_payments WHERE invoice_id = ? AND status = ?`,
		invoiceID, domain.ClaimStatusPending,
	).Scan(&count).Error
	return count > 0, err
}

func (r *repo) UpdateReview(ctx context.Context, conn *gorm.DB, claim *domain.OnlinePayment) error {
	return conn.WithContext(ctx).Exec(
		`UPDATE online_payments
		 SET status = ?, reviewed_at = ?, reviewed_by = ?, review_notes = ?
		 WHERE id = ? AND status = ?`,
		claim.Status,
		claim.ReviewedAt,
		claim.ReviewedBy,
		claim.ReviewNotes,
		claim.ID,
		domain.ClaimStatusPending,
	).Error
}

// ListPending returns the review queue, oldest first.
func (r *repo) ListPending(ctx context.Context, conn *gorm.DB) ([]domain.PendingClaim, error) {
	var claims []domain.PendingClaim
	err := conn.WithContext(ctx).Raw(
		`SELECT o.id, o.reference, o.user_id, o.invoice_id, o.amount, o.sender_reference,
			o.transaction_reference, o.status, o.submitted_at, o.reviewed_at, o.reviewed_by, o.review_notes,
			u.full_name AS resident_name,
			COALESCE(d.building, '') AS building,
			COALESCE(d.floor, '') AS floor,
			COALESCE(d.apartment, '') AS apartment,
			i.year, i.month
		 FROM online_payments o
		 JOIN users u ON u.id = o.user_id
		 JOIN maintenance_invoices i ON i.id = o.invoice_id
		 LEFT JOIN person_details d ON d.user_id = o.user_id
		 WHERE o.status = ?
		 ORDER BY o.submitted_at ASC, o.id ASC`,
		domain.ClaimStatusPending,
	).Scan(&claims).Error
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func (r *repo) ListByUser(ctx context.Context, conn *gorm.DB, userID snowflake.ID) ([]domain.OnlinePayment, error) {
	var claims []domain.OnlinePayment
	err := conn.WithContext(ctx).Raw(
		`SELECT `+claimColumns+` FROM online_payments WHERE user_id = ? ORDER BY submitted_at DESC, id DESC`,
		userID,
	).Scan(&claims).Error
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func (r *repo) CountPending(ctx context.Context, conn *gorm.DB) (int64, error) {
	var count int64
	err := conn.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM online_payments WHERE status = ?`,
		domain.ClaimStatusPending,
	).Scan(&count).Error
	return count, err
}
