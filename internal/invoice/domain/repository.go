package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	// FindByIDForUpdate locks the invoice row for the rest of the transaction.
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	Exists(ctx context.Context, db *gorm.DB, userID snowflake.ID, year, month int) (bool, error)
	ListByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]InvoiceBalance, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	CountPendingClaims(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) (int64, error)
	UnitsStatus(ctx context.Context, db *gorm.DB, building string, year, month int) ([]UnitStatus, error)
}
