// Package scheduler sweeps interrupted pipeline runs into a terminal state.
//
// The pipeline is synchronous, so the only way a run stays non-terminal is a
// crash or kill between its stage writes. Those rows would otherwise sit in
// processing forever and confuse both tenants and quota math.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/pixora/internal/clock"
	generationdomain "github.com/smallbiznis/pixora/internal/generation/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrInvalidConfig marks a scheduler constructed without its dependencies.
var ErrInvalidConfig = errors.New("scheduler: invalid configuration")

// Config tunes the sweep loop.
type Config struct {
	// Interval between sweeps.
	Interval time.Duration
	// StaleAfter is how long a non-terminal run may go without an update
	// before it is declared interrupted. Must comfortably exceed the
	// slowest legitimate stage.
	StaleAfter time.Duration
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 5 * time.Minute
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 30 * time.Minute
	}
	return c
}

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Clock  clock.Clock
	Config Config `optional:"true"`
}

type Scheduler struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	cfg   Config
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:    p.DB,
		log:   p.Log.Named("scheduler"),
		clock: p.Clock,
		cfg:   p.Config.withDefaults(),
	}, nil
}

// SweepOnce fails every non-terminal run that has not been touched within
// StaleAfter. Returns the number of runs swept.
func (s *Scheduler) SweepOnce(ctx context.Context) (int64, error) {
	now := s.clock.Now().UTC()
	cutoff := now.Add(-s.cfg.StaleAfter)

	res := s.db.WithContext(ctx).
		Model(&generationdomain.GenerationRequest{}).
		Where("status NOT IN ? AND updated_at < ?", []generationdomain.Status{
			generationdomain.StatusCompleted,
			generationdomain.StatusFailed,
		}, cutoff).
		Updates(map[string]any{
			"status":        generationdomain.StatusFailed,
			"error_message": "run interrupted before completion",
			"completed_at":  now,
			"updated_at":    now,
		})
	if res.Error != nil {
		return 0, res.Error
	}

	if res.RowsAffected > 0 {
		s.log.Warn("swept interrupted runs",
			zap.Int64("count", res.RowsAffected),
			zap.Time("cutoff", cutoff),
		)
	}
	return res.RowsAffected, nil
}

func (s *Scheduler) run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.log.Error("sweep failed", zap.Error(err))
			}
		}
	}
}
