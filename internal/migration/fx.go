package migration

import (
	"github.com/briefworks/briefworks/internal/config"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		// The embedded migrator targets postgres; other dialects are for
		// development and are migrated out of band.
		if cfg.DBType != "postgres" {
			return nil
		}
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
