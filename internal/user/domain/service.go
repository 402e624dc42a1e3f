package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type OnboardRequest struct {
	Username  string
	FullName  string
	Building  string
	Floor     string
	Apartment string
}

type OnboardResult struct {
	Resident     Resident `json:"resident"`
	InvoiceCount int      `json:"invoices_created"`
}

type CreateStaffRequest struct {
	Username string
	FullName string
	Role     Role
}

type Service interface {
	// Onboard registers a resident and its invoice batch in one transaction.
	Onboard(ctx context.Context, req OnboardRequest) (OnboardResult, error)
	CreateStaff(ctx context.Context, req CreateStaffRequest) (User, error)
	Get(ctx context.Context, id snowflake.ID) (User, error)
	GetResident(ctx context.Context, id snowflake.ID) (Resident, error)
	ListByRole(ctx context.Context, roles ...Role) ([]User, error)
	ListResidents(ctx context.Context, building string) ([]Resident, error)
	AssignBuildings(ctx context.Context, collectorID snowflake.ID, buildings []string) ([]string, error)
	Buildings(ctx context.Context, collectorID snowflake.ID) ([]string, error)
}

var (
	ErrUserNotFound      = errors.New("user_not_found")
	ErrResidentNotFound  = errors.New("resident_not_found")
	ErrDuplicateUsername = errors.New("duplicate_username")
	ErrInvalidUsername   = errors.New("invalid_username")
	ErrInvalidName       = errors.New("invalid_name")
	ErrInvalidRole       = errors.New("invalid_role")
	ErrInvalidBuilding   = errors.New("invalid_building")
	ErrNotCollector      = errors.New("not_collector")
)
