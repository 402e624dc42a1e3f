package repository

import (
	"context"

	"github.com/smallbiznis/duesledger/internal/ledger/domain"
	"github.com/smallbiznis/duesledger/pkg/db"
	"gorm.io/gorm"
)

// Arbitrary constant shared by every process appending to the ledger.
const tailLockKey int64 = 0x756e696f6e // "union"

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// LockTail serializes appenders for the rest of the transaction.
func (r *repo) LockTail(ctx context.Context, conn *gorm.DB) error {
	switch conn.Dialector.Name() {
	case "postgres":
		return conn.WithContext(ctx).Exec(`SELECT pg_advisory_xact_lock(?)`, tailLockKey).Error
	case "mysql":
		var id int64
		return conn.WithContext(ctx).
			Raw(`SELECT id FROM union_ledger_entries ORDER BY seq DESC LIMIT 1 FOR UPDATE`).
			Scan(&id).Error
	default:
		// sqlite: a single writer holds the database lock until commit.
		return nil
	}
}

func (r *repo) Tail(ctx context.Context, conn *gorm.DB) (*domain.Entry, error) {
	var entry domain.Entry
	err := conn.WithContext(ctx).Raw(
		`SELECT id, seq, entry_type, debit, credit, balance_after, description,
			source_type, source_id, author_id, created_at
		FROM union_ledger_entries
		ORDER BY seq DESC
		LIMIT 1`,
	).Scan(&entry).Error
	if err != nil {
		return nil, err
	}
	if entry.ID == 0 {
		return nil, nil
	}
	return &entry, nil
}

func (r *repo) Insert(ctx context.Context, conn *gorm.DB, entry *domain.Entry) error {
	err := conn.WithContext(ctx).Exec(
		`INSERT INTO union_ledger_entries (
			id, seq, entry_type, debit, credit, balance_after, description,
			source_type, source_id, author_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.Seq,
		entry.EntryType,
		entry.Debit,
		entry.Credit,
		entry.BalanceAfter,
		entry.Description,
		entry.SourceType,
		entry.SourceID,
		entry.AuthorID,
		entry.CreatedAt,
	).Error
	if db.IsDuplicateKeyErr(err) {
		return domain.ErrLedgerConflict
	}
	return err
}

// List returns up to Limit+1 rows.
func (r *repo) List(ctx context.Context, conn *gorm.DB, filter domain.ListFilter) ([]domain.Entry, error) {
	stmt := conn.WithContext(ctx).Model(&domain.Entry{})
	if filter.EntryType != "" {
		stmt = stmt.Where("entry_type = ?", filter.EntryType)
	}
	if filter.BeforeSeq > 0 {
		stmt = stmt.Where("seq < ?", filter.BeforeSeq)
	}
	if filter.AfterSeq > 0 {
		stmt = stmt.Where("seq > ?", filter.AfterSeq)
	}
	if filter.Ascending {
		stmt = stmt.Order("seq asc")
	} else {
		stmt = stmt.Order("seq desc")
	}
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}

	var entries []domain.Entry
	if err := stmt.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
