package uploader

import (
	"context"
	"sort"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// FailedUpload records one artifact that never reached storage.
type FailedUpload struct {
	Ordinal int
	Err     error
}

// PersistFunc runs immediately after one artifact lands in storage, before
// its siblings settle, so partial progress survives a crash mid-fan-out.
type PersistFunc func(ctx context.Context, uploaded *Uploaded) error

// Coordinator fans out uploads for one run and joins without
// short-circuiting: every upload settles regardless of sibling outcomes.
type Coordinator interface {
	UploadAll(ctx context.Context, arts []RawArtifact, tenantID snowflake.ID, requestID string, persist PersistFunc) (successful []*Uploaded, failed []FailedUpload)
}

type CoordinatorParam struct {
	fx.In

	Uploader Uploader
	Log      *zap.Logger
}

type coordinator struct {
	uploader Uploader
	log      *zap.Logger
}

// NewCoordinator returns the parallel upload coordinator.
func NewCoordinator(p CoordinatorParam) Coordinator {
	return &coordinator{
		uploader: p.Uploader,
		log:      p.Log.Named("uploader.coordinator"),
	}
}

func (c *coordinator) UploadAll(ctx context.Context, arts []RawArtifact, tenantID snowflake.ID, requestID string, persist PersistFunc) ([]*Uploaded, []FailedUpload) {
	type slot struct {
		uploaded *Uploaded
		err      error
	}
	slots := make([]slot, len(arts))

	// A plain group, not WithContext: one failing artifact must never
	// cancel its siblings.
	var g errgroup.Group
	for i, art := range arts {
		g.Go(func() error {
			uploaded, err := c.uploader.Upload(ctx, art, tenantID, requestID)
			if err != nil {
				slots[i] = slot{err: err}
				return nil
			}

			if persist != nil {
				if perr := persist(ctx, uploaded); perr != nil {
					// Without a row the artifact is invisible to the
					// tenant; count it as failed.
					c.log.Error("persist after upload failed",
						zap.String("request_id", requestID),
						zap.Int("ordinal", uploaded.Ordinal),
						zap.Error(perr),
					)
					slots[i] = slot{err: perr}
					return nil
				}
			}

			slots[i] = slot{uploaded: uploaded}
			return nil
		})
	}
	_ = g.Wait()

	var successful []*Uploaded
	var failed []FailedUpload
	for i, s := range slots {
		if s.err != nil {
			failed = append(failed, FailedUpload{Ordinal: arts[i].Ordinal, Err: s.err})
			continue
		}
		successful = append(successful, s.uploaded)
	}

	sort.Slice(successful, func(a, b int) bool { return successful[a].Ordinal < successful[b].Ordinal })
	sort.Slice(failed, func(a, b int) bool { return failed[a].Ordinal < failed[b].Ordinal })

	if len(failed) > 0 {
		c.log.Warn("upload fan-out finished with failures",
			zap.String("request_id", requestID),
			zap.Int("successful", len(successful)),
			zap.Int("failed", len(failed)),
		)
	}

	return successful, failed
}

// Module wires the artifact uploader and its coordinator.
var Module = fx.Module("uploader",
	fx.Provide(NewUploader),
	fx.Provide(NewCoordinator),
)
