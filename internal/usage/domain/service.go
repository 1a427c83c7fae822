package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Ledger is the append-only call log. Remaining quota is derived from it at
// request time; it never holds a mutable counter, so there is nothing to
// drift out of sync with the log.
type Ledger interface {
	Record(ctx context.Context, call *UsageCall) error
	CountSuccessfulCalls(ctx context.Context, tenantID snowflake.ID, periodStart, periodEnd time.Time) (int64, error)
	PlanLimit(ctx context.Context, tenantID snowflake.ID) (int, error)
}

// BillingPeriod returns the UTC calendar-month window containing now.
func BillingPeriod(now time.Time) (start, end time.Time) {
	now = now.UTC()
	start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	end = start.AddDate(0, 1, 0)
	return start, end
}
