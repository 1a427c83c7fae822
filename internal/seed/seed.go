// Package seed bootstraps a demo tenant so a fresh install is usable
// without manual database writes.
package seed

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pixora/internal/config"
	profiledomain "github.com/smallbiznis/pixora/internal/profile/domain"
	usagedomain "github.com/smallbiznis/pixora/internal/usage/domain"
	"github.com/smallbiznis/pixora/pkg/db"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

const (
	// DemoTenantID is a fixed snowflake so docs and curl examples work
	// against any dev install.
	DemoTenantID snowflake.ID = 1000000000000000001

	demoPlanCode        = "demo"
	demoGenerationLimit = 50
)

// EnsureDemoTenant creates the demo plan and business profile if absent.
// Existing rows are left untouched so local edits survive restarts.
func EnsureDemoTenant(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureDemoPlanTx(tx); err != nil {
			return err
		}
		return ensureDemoProfileTx(tx)
	})
}

func ensureDemoPlanTx(tx *gorm.DB) error {
	var existing usagedomain.TenantPlan
	err := tx.Where("tenant_id = ?", DemoTenantID).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	err = tx.Create(&usagedomain.TenantPlan{
		TenantID:        DemoTenantID,
		PlanCode:        demoPlanCode,
		GenerationLimit: demoGenerationLimit,
	}).Error
	if db.IsDuplicateKeyErr(err) {
		// Another replica seeded between our read and write.
		return nil
	}
	return err
}

func ensureDemoProfileTx(tx *gorm.DB) error {
	var existing profiledomain.BusinessProfile
	err := tx.Where("tenant_id = ?", DemoTenantID).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	err = tx.Create(&profiledomain.BusinessProfile{
		TenantID:       DemoTenantID,
		Name:           "Kopi Senja",
		Description:    "Neighborhood coffee shop roasting small batches",
		Category:       "coffee shop",
		BrandVoice:     "warm, informal",
		TargetAudience: "students and remote workers",
	}).Error
	if db.IsDuplicateKeyErr(err) {
		return nil
	}
	return err
}

// Module seeds the demo tenant outside production.
var Module = fx.Module("seed",
	fx.Invoke(func(db *gorm.DB, cfg config.Config) error {
		if cfg.Environment == "production" {
			return nil
		}
		return EnsureDemoTenant(db)
	}),
)
