package authorization

import (
	"context"
	"strings"

	"github.com/smallbiznis/duesledger/internal/auth"
	userdomain "github.com/smallbiznis/duesledger/internal/user/domain"
	"gorm.io/gorm"
)

// Predicate decides whether a principal may act on a building.
type Predicate func(ctx context.Context, p auth.Principal, building string) (bool, error)

// BypassRoles admits the listed roles for every building.
func BypassRoles(roles ...userdomain.Role) Predicate {
	return func(_ context.Context, p auth.Principal, _ string) (bool, error) {
		return p.HasRole(roles...), nil
	}
}

// AssignedBuildings admits collectors for the buildings assigned to them.
func AssignedBuildings(db *gorm.DB, repo userdomain.Repository) Predicate {
	return func(ctx context.Context, p auth.Principal, building string) (bool, error) {
		if !p.Role.IsCollector() {
			return false, nil
		}
		return repo.HasBuilding(ctx, db, p.ID, building)
	}
}

// AnyOf admits when one predicate does, evaluated in order.
func AnyOf(predicates ...Predicate) Predicate {
	return func(ctx context.Context, p auth.Principal, building string) (bool, error) {
		for _, predicate := range predicates {
			ok, err := predicate(ctx, p, building)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}
}

// CollectorScope limits ADMIN principals to their buildings. Treasury,
// super admins and online reviewers see every building.
type CollectorScope struct {
	db     *gorm.DB
	repo   userdomain.Repository
	bypass []userdomain.Role
	allows Predicate
}

func NewCollectorScope(db *gorm.DB, repo userdomain.Repository) *CollectorScope {
	bypass := []userdomain.Role{userdomain.RoleSuperAdmin, userdomain.RoleTreasurer, userdomain.RoleOnlineAdmin}
	return &CollectorScope{
		db:     db,
		repo:   repo,
		bypass: bypass,
		allows: AnyOf(BypassRoles(bypass...), AssignedBuildings(db, repo)),
	}
}

func (s *CollectorScope) Allows(ctx context.Context, p auth.Principal, building string) (bool, error) {
	building = strings.TrimSpace(building)
	if building == "" {
		return p.HasRole(s.bypass...), nil
	}
	return s.allows(ctx, p, building)
}

// Require returns ErrOutOfScope when p may not act on building.
func (s *CollectorScope) Require(ctx context.Context, p auth.Principal, building string) error {
	ok, err := s.Allows(ctx, p, building)
	if err != nil {
		return err
	}
	if !ok {
		return ErrOutOfScope
	}
	return nil
}

// Buildings lists the buildings p is limited to. A nil slice means no
// restriction.
func (s *CollectorScope) Buildings(ctx context.Context, p auth.Principal) ([]string, error) {
	if p.HasRole(s.bypass...) {
		return nil, nil
	}
	if !p.Role.IsCollector() {
		return []string{}, nil
	}
	buildings, err := s.repo.Buildings(ctx, s.db, p.ID)
	if err != nil {
		return nil, err
	}
	if buildings == nil {
		buildings = []string{}
	}
	return buildings, nil
}
