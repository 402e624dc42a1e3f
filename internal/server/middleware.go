package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/duesledger/internal/audit/domain"
	"github.com/smallbiznis/duesledger/internal/auditcontext"
	"github.com/smallbiznis/duesledger/internal/auth"
	obscontext "github.com/smallbiznis/duesledger/internal/observability/context"
	userdomain "github.com/smallbiznis/duesledger/internal/user/domain"
)

const bearerPrefix = "bearer "

// AuthRequired resolves the Bearer token into a principal and stamps the
// request context for handlers, audit rows and logs.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader("Authorization"))
		if len(raw) <= len(bearerPrefix) || !strings.EqualFold(raw[:len(bearerPrefix)], bearerPrefix) {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		principal, err := s.tokens.Parse(strings.TrimSpace(raw[len(bearerPrefix):]))
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := auth.WithPrincipal(c.Request.Context(), principal)
		ctx = auditcontext.WithActor(ctx, string(auditdomain.ActorTypeUser), principal.ID.String())
		ctx = obscontext.WithActor(ctx, string(principal.Role), principal.ID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Set("principal_id", principal.ID.String())
		c.Next()
	}
}

// RequireRole admits principals holding one of roles.
func (s *Server) RequireRole(roles ...userdomain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := s.authz.RequirePrincipal(c.Request.Context(), roles...); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

// authorize checks the principal's capability through the policy enforcer.
func (s *Server) authorize(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, err := s.authz.RequirePrincipal(c.Request.Context())
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if err := s.authz.Authorize(c.Request.Context(), principal, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func principalFrom(c *gin.Context) (auth.Principal, error) {
	principal, ok := auth.PrincipalFromContext(c.Request.Context())
	if !ok {
		return auth.Principal{}, ErrUnauthorized
	}
	return principal, nil
}
