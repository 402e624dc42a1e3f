package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Role string

const (
	RoleResident    Role = "RESIDENT"
	RoleAdmin       Role = "ADMIN"
	RoleOnlineAdmin Role = "ONLINE_ADMIN"
	RoleTreasurer   Role = "TREASURER"
	RoleSuperAdmin  Role = "SUPERADMIN"
)

func (r Role) Valid() bool {
	switch r {
	case RoleResident, RoleAdmin, RoleOnlineAdmin, RoleTreasurer, RoleSuperAdmin:
		return true
	default:
		return false
	}
}

// IsCollector reports whether the role records payments and owes settlements.
func (r Role) IsCollector() bool {
	return r == RoleAdmin || r == RoleOnlineAdmin
}

// User is a directory row. Credentials live with the identity provider.
type User struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Username  string       `gorm:"type:text;not null;uniqueIndex" json:"username"`
	FullName  string       `gorm:"type:text;not null" json:"full_name"`
	Role      Role         `gorm:"type:text;not null" json:"role"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null" json:"updated_at"`
}

func (User) TableName() string { return "users" }

// PersonDetails places a resident in the compound.
type PersonDetails struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	UserID    snowflake.ID `gorm:"not null;uniqueIndex" json:"user_id"`
	Building  string       `gorm:"type:text;not null" json:"building"`
	Floor     string       `gorm:"type:text;not null" json:"floor"`
	Apartment string       `gorm:"type:text;not null" json:"apartment"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
}

func (PersonDetails) TableName() string { return "person_details" }

// Resident is a user joined with its placement.
type Resident struct {
	ID        snowflake.ID `json:"id"`
	Username  string       `json:"username"`
	FullName  string       `json:"full_name"`
	Building  string       `json:"building"`
	Floor     string       `json:"floor"`
	Apartment string       `json:"apartment"`
}
