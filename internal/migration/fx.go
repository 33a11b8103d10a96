package migration

import (
	"fmt"

	"github.com/smallbiznis/recurring/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if !cfg.DBAutoMigrate {
			return nil
		}
		log = log.Named("migration")

		if conn.Dialector.Name() != "postgres" {
			if err := ApplyStatements(conn); err != nil {
				return err
			}
			log.Info("schema applied", zap.String("dialect", conn.Dialector.Name()))
			return nil
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		if err := RunMigrations(sqlDB); err != nil {
			return err
		}
		log.Info("migrations applied")
		return nil
	}),
)

// ApplyStatements executes the sqlite rendition of every up migration. It
// is meant for fresh local databases and is not versioned.
func ApplyStatements(conn *gorm.DB) error {
	statements, err := SQLiteStatements()
	if err != nil {
		return err
	}
	for _, stmt := range statements {
		if err := conn.Exec(stmt).Error; err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
