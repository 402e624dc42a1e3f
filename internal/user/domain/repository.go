package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, user *User) error
	InsertDetails(ctx context.Context, db *gorm.DB, details *PersonDetails) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*User, error)
	// FindByIDForUpdate locks the user row for the rest of the transaction.
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*User, error)
	ListByRole(ctx context.Context, db *gorm.DB, roles ...Role) ([]User, error)
	FindResident(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Resident, error)
	ListResidents(ctx context.Context, db *gorm.DB, building string) ([]Resident, error)

	ReplaceBuildings(ctx context.Context, db *gorm.DB, collectorID snowflake.ID, buildings []string) error
	Buildings(ctx context.Context, db *gorm.DB, collectorID snowflake.ID) ([]string, error)
	HasBuilding(ctx context.Context, db *gorm.DB, collectorID snowflake.ID, building string) (bool, error)
}
