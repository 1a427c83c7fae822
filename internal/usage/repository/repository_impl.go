// Package repository implements the usage ledger read projection over gorm.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	usagedomain "github.com/smallbiznis/pixora/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type LedgerParam struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

type ledger struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewLedger returns the gorm-backed usage ledger reader.
func NewLedger(p LedgerParam) usagedomain.Ledger {
	return &ledger{
		db:  p.DB,
		log: p.Log.Named("usage.ledger"),
	}
}

func (l *ledger) Record(ctx context.Context, call *usagedomain.UsageCall) error {
	return l.db.WithContext(ctx).Create(call).Error
}

func (l *ledger) CountSuccessfulCalls(ctx context.Context, tenantID snowflake.ID, periodStart, periodEnd time.Time) (int64, error) {
	var count int64
	err := l.db.WithContext(ctx).
		Model(&usagedomain.UsageCall{}).
		Where("tenant_id = ? AND succeeded = ? AND occurred_at >= ? AND occurred_at < ?",
			tenantID, true, periodStart, periodEnd).
		Count(&count).Error
	return count, err
}

func (l *ledger) PlanLimit(ctx context.Context, tenantID snowflake.ID) (int, error) {
	var plan usagedomain.TenantPlan
	err := l.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		First(&plan).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Tenants without a plan row are not capped.
			l.log.Debug("no plan row for tenant, treating as unlimited",
				zap.Int64("tenant_id", int64(tenantID)))
			return usagedomain.UnlimitedPlanLimit, nil
		}
		return 0, err
	}
	return plan.GenerationLimit, nil
}
