package seed

import (
	"context"
	"errors"
	"strings"

	"github.com/smallbiznis/duesledger/internal/auth"
	"github.com/smallbiznis/duesledger/internal/auth/token"
	userdomain "github.com/smallbiznis/duesledger/internal/user/domain"
	"go.uber.org/zap"
)

// Bootstrap describes the first super admin of a fresh installation.
type Bootstrap struct {
	Username string
	FullName string
	// IssueToken mints a token for the super admin and logs it. Only for
	// non-production environments.
	IssueToken bool
}

// EnsureSuperAdmin creates the bootstrap super admin when no super admin
// exists yet. It is a no-op without a username.
func EnsureSuperAdmin(ctx context.Context, users userdomain.Service, tokens *token.Issuer, log *zap.Logger, b Bootstrap) (*userdomain.User, error) {
	username := strings.TrimSpace(b.Username)
	if username == "" {
		return nil, nil
	}

	existing, err := users.ListByRole(ctx, userdomain.RoleSuperAdmin)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		log.Debug("super admin already present, skipping bootstrap", zap.Int("count", len(existing)))
		return &existing[0], nil
	}

	user, err := users.CreateStaff(ctx, userdomain.CreateStaffRequest{
		Username: username,
		FullName: b.FullName,
		Role:     userdomain.RoleSuperAdmin,
	})
	if err != nil {
		if errors.Is(err, userdomain.ErrDuplicateUsername) {
			log.Warn("bootstrap username is taken by another role", zap.String("username", username))
			return nil, nil
		}
		return nil, err
	}
	log.Info("bootstrap super admin created",
		zap.String("user_id", user.ID.String()),
		zap.String("username", user.Username),
	)

	if b.IssueToken && tokens != nil {
		raw, expiresAt, err := tokens.Issue(auth.Principal{ID: user.ID, Role: user.Role, Username: user.Username})
		if err != nil {
			log.Warn("failed to issue bootstrap token", zap.Error(err))
		} else {
			log.Info("bootstrap token issued", zap.String("token", raw), zap.Time("expires_at", expiresAt))
		}
	}
	return &user, nil
}
