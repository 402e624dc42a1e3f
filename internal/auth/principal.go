// Package auth carries the authenticated principal of a request. Tokens are
// minted by the external identity service; this service only verifies them.
package auth

import (
	"context"
	"slices"

	"github.com/bwmarrin/snowflake"
	userdomain "github.com/smallbiznis/duesledger/internal/user/domain"
)

type Principal struct {
	ID       snowflake.ID    `json:"id"`
	Role     userdomain.Role `json:"role"`
	Username string          `json:"username"`
}

// Subject is the casbin subject of the principal.
func (p Principal) Subject() string {
	return "user:" + p.ID.String()
}

func (p Principal) HasRole(roles ...userdomain.Role) bool {
	return slices.Contains(roles, p.Role)
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok && p.ID != 0
}
