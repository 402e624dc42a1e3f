package migration

import (
	"github.com/smallbiznis/duesledger/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		// the embedded schema is postgres only; other dialects must be
		// provisioned before start
		if conn.Dialector.Name() != "postgres" {
			return EnsureSchema(conn)
		}
		if !cfg.DBRunMigrations {
			return nil
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		if err := RunMigrations(sqlDB); err != nil {
			return err
		}
		log.Info("migrations applied", zap.String("dialect", conn.Dialector.Name()))
		return nil
	}),
)
