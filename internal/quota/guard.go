// Package quota gates pipeline starts against the tenant's plan limit.
package quota

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pixora/internal/clock"
	usagedomain "github.com/smallbiznis/pixora/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ErrQuotaExceeded is the sentinel for a rejected pipeline start.
var ErrQuotaExceeded = errors.New("quota_exceeded")

// ExceededError reports the numbers behind a quota rejection.
type ExceededError struct {
	Required  int
	Remaining int64
	Used      int64
	Limit     int
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("generation quota exceeded: required %d, remaining %d (used %d of %d)",
		e.Required, e.Remaining, e.Used, e.Limit)
}

func (e *ExceededError) Unwrap() error { return ErrQuotaExceeded }

// Guard decides whether a tenant may start a pipeline run.
type Guard interface {
	Check(ctx context.Context, tenantID snowflake.ID, requiredUnits int) error
}

type GuardParam struct {
	fx.In

	Ledger usagedomain.Ledger
	Clock  clock.Clock
	Log    *zap.Logger
}

type guard struct {
	ledger usagedomain.Ledger
	clock  clock.Clock
	log    *zap.Logger
}

// NewGuard returns the ledger-backed quota guard.
func NewGuard(p GuardParam) Guard {
	return &guard{
		ledger: p.Ledger,
		clock:  p.Clock,
		log:    p.Log.Named("quota.guard"),
	}
}

// Check is advisory: it does not reserve units, so two concurrent runs from
// the same tenant can both pass and overshoot the limit by a small margin.
// Accepted risk; see DESIGN.md.
func (g *guard) Check(ctx context.Context, tenantID snowflake.ID, requiredUnits int) error {
	limit, err := g.ledger.PlanLimit(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("resolve plan limit: %w", err)
	}
	if limit == usagedomain.UnlimitedPlanLimit {
		return nil
	}

	periodStart, periodEnd := usagedomain.BillingPeriod(g.clock.Now())
	used, err := g.ledger.CountSuccessfulCalls(ctx, tenantID, periodStart, periodEnd)
	if err != nil {
		return fmt.Errorf("count usage: %w", err)
	}

	remaining := int64(limit) - used
	if remaining < int64(requiredUnits) {
		g.log.Info("quota exceeded",
			zap.Int64("tenant_id", int64(tenantID)),
			zap.Int("required", requiredUnits),
			zap.Int64("remaining", remaining),
			zap.Int64("used", used),
			zap.Int("limit", limit),
		)
		return &ExceededError{
			Required:  requiredUnits,
			Remaining: remaining,
			Used:      used,
			Limit:     limit,
		}
	}
	return nil
}

// Module wires the quota guard.
var Module = fx.Module("quota",
	fx.Provide(NewGuard),
)
