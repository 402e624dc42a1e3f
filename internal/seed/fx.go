package seed

import (
	"context"

	"github.com/smallbiznis/duesledger/internal/auth/token"
	"github.com/smallbiznis/duesledger/internal/config"
	userdomain "github.com/smallbiznis/duesledger/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("seed",
	fx.Invoke(register),
)

func register(lc fx.Lifecycle, cfg config.Config, users userdomain.Service, tokens *token.Issuer, log *zap.Logger) {
	log = log.Named("seed")
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			_, err := EnsureSuperAdmin(ctx, users, tokens, log, Bootstrap{
				Username:   cfg.Auth.BootstrapUsername,
				FullName:   cfg.Auth.BootstrapFullName,
				IssueToken: !cfg.IsProduction(),
			})
			return err
		},
	})
}
