package migration

import (
	"github.com/smallbiznis/boxoffice/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		dialect := conn.Dialector.Name()
		if !shouldMigrate(cfg, dialect) {
			log.Info("embedded migrations skipped",
				zap.String("dialect", dialect),
				zap.Bool("auto_migrate", cfg.DBAutoMigrate),
			)
			return nil
		}
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		res, err := RunMigrations(sqlDB)
		if err != nil {
			return err
		}
		log.Info("schema ready", zap.Uint("version", res.Version), zap.Bool("applied", res.Applied))
		return nil
	}),
)

// shouldMigrate reports whether the embedded postgres migrations apply.
// Other dialects are provisioned out of band.
func shouldMigrate(cfg config.Config, dialect string) bool {
	return cfg.DBAutoMigrate && dialect == "postgres"
}
