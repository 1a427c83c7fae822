package service

import (
	"context"
	"fmt"

	"github.com/smallbiznis/pixora/internal/clock"
	generationdomain "github.com/smallbiznis/pixora/internal/generation/domain"
	"github.com/smallbiznis/pixora/internal/uploader"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Reconciler folds the fan-out upload outcome into the run's terminal state.
type Reconciler interface {
	Reconcile(ctx context.Context, run *generationdomain.GenerationRequest, successful []*uploader.Uploaded, failed []uploader.FailedUpload) generationdomain.Status
}

type ReconcilerParam struct {
	fx.In

	Store generationdomain.Store
	Clock clock.Clock
	Log   *zap.Logger
}

type reconciler struct {
	store generationdomain.Store
	clock clock.Clock
	log   *zap.Logger
}

// NewReconciler returns the status reconciler.
func NewReconciler(p ReconcilerParam) Reconciler {
	return &reconciler{
		store: p.Store,
		clock: p.Clock,
		log:   p.Log.Named("generation.reconciler"),
	}
}

// Reconcile decides the terminal status from counts alone. A run with at
// least one stored artifact completes; the error message records any partial
// loss. Every path sets totals and completedAt in one guarded write.
func (r *reconciler) Reconcile(ctx context.Context, run *generationdomain.GenerationRequest, successful []*uploader.Uploaded, failed []uploader.FailedUpload) generationdomain.Status {
	total := len(successful) + len(failed)

	status := generationdomain.StatusCompleted
	var message *string
	switch {
	case total == 0:
		status = generationdomain.StatusFailed
		message = ptr("provider returned no artifacts")
	case len(successful) == 0:
		status = generationdomain.StatusFailed
		message = ptr(fmt.Sprintf("all %d artifact uploads failed", total))
	case len(failed) > 0:
		message = ptr(fmt.Sprintf("%d of %d artifact uploads failed", len(failed), total))
	}

	err := r.store.Finalize(ctx, run.ID, status,
		len(successful), run.StageTokens(), message, r.clock.Now().UTC())
	if err != nil {
		// The artifacts and stage data are already durable; surfacing this
		// would discard a run the tenant can still see. Log and move on.
		r.log.Error("final status write failed",
			zap.String("request_id", run.RequestID),
			zap.String("status", string(status)),
			zap.Error(err),
		)
	}
	return status
}

func ptr(s string) *string { return &s }
