package repository

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/duesledger/internal/user/domain"
	"github.com/smallbiznis/duesledger/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const residentColumns = `u.id, u.username, u.full_name, p.building, p.floor, p.apartment`

func (r *repo) Insert(ctx context.Context, conn *gorm.DB, user *domain.User) error {
	err := conn.WithContext(ctx).Exec(
		`INSERT INTO users (id, username, full_name, role, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Username,
		user.FullName,
		user.Role,
		user.CreatedAt,
		user.UpdatedAt,
	).Error
	if db.IsDuplicateKeyErr(err) {
		return domain.ErrDuplicateUsername
	}
	return err
}

func (r *repo) InsertDetails(ctx context.Context, conn *gorm.DB, details *domain.PersonDetails) error {
	return conn.WithContext(ctx).Exec(
		`INSERT INTO person_details (id, user_id, building, floor, apartment, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		details.ID,
		details.UserID,
		details.Building,
		details.Floor,
		details.Apartment,
		details.CreatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, conn *gorm.DB, id snowflake.ID) (*domain.User, error) {
	return r.findByID(ctx, conn, id, "")
}

func (r *repo) FindByIDForUpdate(ctx context.Context, conn *gorm.DB, id snowflake.ID) (*domain.User, error) {
	return r.findByID(ctx, conn, id, db.ForUpdate(conn))
}

func (r *repo) findByID(ctx context.Context, conn *gorm.DB, id snowflake.ID, lock string) (*domain.User, error) {
	var user domain.User
	err := conn.WithContext(ctx).Raw(
		`SELECT id, username, full_name, role, created_at, updated_at
		 FROM users WHERE id = ?`+lock,
		id,
	).Scan(&user).Error
	if err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, nil
	}
	return &user, nil
}

func (r *repo) ListByRole(ctx context.Context, conn *gorm.DB, roles ...domain.Role) ([]domain.User, error) {
	var users []domain.User
	stmt := conn.WithContext(ctx).Model(&domain.User{})
	if len(roles) > 0 {
		stmt = stmt.Where("role IN ?", roles)
	}
	if err := stmt.Order("full_name asc, id asc").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (r *repo) FindResident(ctx context.Context, conn *gorm.DB, id snowflake.ID) (*domain.Resident, error) {
	var resident domain.Resident
	err := conn.WithContext(ctx).Raw(
		`SELECT `+residentColumns+`
		 FROM users u
		 JOIN person_details p ON p.user_id = u.id
		 WHERE u.id = ? AND u.role = ?`,
		id, domain.RoleResident,
	).Scan(&resident).Error
	if err != nil {
		return nil, err
	}
	if resident.ID == 0 {
		return nil, nil
	}
	return &resident, nil
}

// ListResidents returns residents ordered by building, floor and apartment.
// An empty building lists the whole compound.
func (r *repo) ListResidents(ctx context.Context, conn *gorm.DB, building string) ([]domain.Resident, error) {
	query := `SELECT ` + residentColumns + `
		FROM users u
		JOIN person_details p ON p.user_id = u.id
		WHERE u.role = ?`
	args := []any{domain.RoleResident}
	if building = strings.TrimSpace(building); building != "" {
		query += ` AND p.building = ?`
		args = append(args, building)
	}
	query += ` ORDER BY p.building, p.floor, p.apartment, u.id`

	var residents []domain.Resident
	if err := conn.WithContext(ctx).Raw(query, args...).Scan(&residents).Error; err != nil {
		return nil, err
	}
	return residents, nil
}

func (r *repo) ReplaceBuildings(ctx context.Context, conn *gorm.DB, collectorID snowflake.ID, buildings []string) error {
	if err := conn.WithContext(ctx).Exec(
		`DELETE FROM collector_buildings WHERE collector_id = ?`, collectorID,
	).Error; err != nil {
		return err
	}
	for _, building := range buildings {
		if err := conn.WithContext(ctx).Exec(
			`INSERT INTO collector_buildings (collector_id, building, created_at) VALUES (?, ?, CURRENT_TIMESTAMP)`,
			collectorID, building,
		).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) Buildings(ctx context.Context, conn *gorm.DB, collectorID snowflake.ID) ([]string, error) {
	var buildings []string
	err := conn.WithContext(ctx).Raw(
		`SELECT building FROM collector_buildings WHERE collector_id = ? ORDER BY building`,
		collectorID,
	).Scan(&buildings).Error
	if err != nil {
		return nil, err
	}
	return buildings, nil
}

func (r *repo) HasBuilding(ctx context.Context, conn *gorm.DB, collectorID snowflake.ID, building string) (bool, error) {
	var count int64
	err := conn.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM collector_buildings WHERE collector_id = ? AND building = ?`,
		collectorID, strings.TrimSpace(building),
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
