package migration

import (
	"github.com/smallbiznis/pixora/internal/config"
	generationdomain "github.com/smallbiznis/pixora/internal/generation/domain"
	profiledomain "github.com/smallbiznis/pixora/internal/profile/domain"
	usagedomain "github.com/smallbiznis/pixora/internal/usage/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType != "postgres" {
			// sqlite and mysql are dev conveniences; AutoMigrate covers
			// them without a dialect-specific migration set.
			return conn.AutoMigrate(
				&generationdomain.GenerationRequest{},
				&generationdomain.Artifact{},
				&usagedomain.UsageCall{},
				&usagedomain.TenantPlan{},
				&profiledomain.BusinessProfile{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
