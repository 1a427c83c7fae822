package quota

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pixora/internal/clock"
	usagedomain "github.com/smallbiznis/pixora/internal/usage/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type ledgerStub struct {
	limit    int
	used     int64
	limitErr error
	countErr error

	gotStart time.Time
	gotEnd   time.Time
}

func (l *ledgerStub) Record(ctx context.Context, call *usagedomain.UsageCall) error {
	return nil
}

func (l *ledgerStub) CountSuccessfulCalls(ctx context.Context, tenantID snowflake.ID, periodStart, periodEnd time.Time) (int64, error) {
	l.gotStart = periodStart
	l.gotEnd = periodEnd
	return l.used, l.countErr
}

func (l *ledgerStub) PlanLimit(ctx context.Context, tenantID snowflake.ID) (int, error) {
	return l.limit, l.limitErr
}

func newGuard(t *testing.T, ledger usagedomain.Ledger, now time.Time) Guard {
	t.Helper()
	return NewGuard(GuardParam{
		Ledger: ledger,
		Clock:  clock.NewFakeClock(now),
		Log:    zap.NewNop(),
	})
}

func TestCheckUnlimitedNeverFails(t *testing.T) {
	ledger := &ledgerStub{limit: usagedomain.UnlimitedPlanLimit, used: 1_000_000}
	g := newGuard(t, ledger, time.Now())

	err := g.Check(context.Background(), 1, 500)
	require.NoError(t, err)

	// The count query is skipped entirely for unlimited plans.
	assert.True(t, ledger.gotStart.IsZero())
}

func TestCheckFiniteLimit(t *testing.T) {
	tests := []struct {
		name     string
		limit    int
		used     int64
		required int
		wantErr  bool
	}{
		{"well under limit", 100, 10, 3, false},
		{"exactly enough remaining", 100, 97, 3, false},
		{"one short", 100, 98, 3, true},
		{"fully consumed", 50, 50, 1, true},
		{"overshot already", 50, 55, 1, true},
		{"zero limit", 0, 0, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGuard(t, &ledgerStub{limit: tt.limit, used: tt.used}, time.Now())
			err := g.Check(context.Background(), 7, tt.required)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrQuotaExceeded)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestCheckReportsNumbers(t *testing.T) {
	g := newGuard(t, &ledgerStub{limit: 20, used: 19}, time.Now())

	err := g.Check(context.Background(), 7, 3)
	require.Error(t, err)

	var exceeded *ExceededError
	require.True(t, errors.As(err, &exceeded))
	assert.Equal(t, 3, exceeded.Required)
	assert.Equal(t, int64(1), exceeded.Remaining)
	assert.Equal(t, int64(19), exceeded.Used)
	assert.Equal(t, 20, exceeded.Limit)
	assert.Contains(t, err.Error(), "required 3")
	assert.Contains(t, err.Error(), "remaining 1")
}

func TestCheckUsesCalendarMonthWindow(t *testing.T) {
	ledger := &ledgerStub{limit: 10, used: 0}
	now := time.Date(2026, 8, 17, 13, 45, 0, 0, time.UTC)
	g := newGuard(t, ledger, now)

	require.NoError(t, g.Check(context.Background(), 7, 1))

	assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), ledger.gotStart)
	assert.Equal(t, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), ledger.gotEnd)
}

func TestCheckPropagatesLedgerErrors(t *testing.T) {
	boom := errors.New("ledger down")

	g := newGuard(t, &ledgerStub{limitErr: boom}, time.Now())
	err := g.Check(context.Background(), 7, 1)
	require.ErrorIs(t, err, boom)

	g = newGuard(t, &ledgerStub{limit: 10, countErr: boom}, time.Now())
	err = g.Check(context.Background(), 7, 1)
	require.ErrorIs(t, err, boom)
}
