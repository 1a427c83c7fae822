// Package uploader moves raw artifacts into durable object storage with
// bounded retries, and fans uploads out across one run.
package uploader

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/smallbiznis/pixora/internal/clock"
	"github.com/smallbiznis/pixora/internal/config"
	"github.com/smallbiznis/pixora/internal/storage"
	"github.com/smallbiznis/pixora/pkg/retry"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ErrUploadFailed is the sentinel for an upload that exhausted its retries.
var ErrUploadFailed = errors.New("upload_failed")

// UploadError carries the last underlying error after retry exhaustion.
type UploadError struct {
	Ordinal  int
	Attempts int
	Err      error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload artifact %d failed after %d attempts: %v", e.Ordinal, e.Attempts, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

func (e *UploadError) Is(target error) bool { return target == ErrUploadFailed }

// RawArtifact is one generated output awaiting durable storage.
type RawArtifact struct {
	Ordinal     int
	Data        []byte
	ContentType string
	Seed        string
	TimingMs    int64
}

// Uploaded describes one artifact that reached object storage.
type Uploaded struct {
	Ordinal  int
	URL      string
	FileName string
	ByteSize int64
	Seed     string
	TimingMs int64
}

// Uploader stores a single raw artifact with bounded retry and backoff.
type Uploader interface {
	Upload(ctx context.Context, art RawArtifact, tenantID snowflake.ID, requestID string) (*Uploaded, error)
}

type UploaderParam struct {
	fx.In

	Storage storage.ObjectStorage
	Config  config.Config
	Holder  *config.PipelineConfigHolder
	Clock   clock.Clock
	Log     *zap.Logger
}

type uploader struct {
	storage storage.ObjectStorage
	holder  *config.PipelineConfigHolder
	bucket  string
	clock   clock.Clock
	log     *zap.Logger
}

// NewUploader returns the object-storage artifact uploader.
func NewUploader(p UploaderParam) Uploader {
	return &uploader{
		storage: p.Storage,
		holder:  p.Holder,
		bucket:  p.Config.Storage.Bucket,
		clock:   p.Clock,
		log:     p.Log.Named("uploader"),
	}
}

func (u *uploader) Upload(ctx context.Context, art RawArtifact, tenantID snowflake.ID, requestID string) (*Uploaded, error) {
	cfg := u.holder.Get()

	if err := validate(art, cfg.MinArtifactBytes); err != nil {
		return nil, err
	}

	path := u.objectPath(tenantID, art)

	policy := retry.Policy{
		MaxAttempts: cfg.MaxUploadAttempts,
		BaseDelay:   cfg.UploadBackoffBase,
		MaxDelay:    cfg.UploadBackoffCap,
	}

	err := retry.Do(ctx, policy, func(attempt int) error {
		// The bucket check is cheap but not free; do it once per upload,
		// not once per attempt.
		if attempt == 1 {
			if err := u.storage.EnsureBucket(ctx, u.bucket); err != nil {
				u.log.Warn("ensure bucket failed",
					zap.String("bucket", u.bucket),
					zap.Error(err),
				)
				return err
			}
		}

		if err := u.storage.PutObject(ctx, u.bucket, path, art.Data, art.ContentType); err != nil {
			u.log.Warn("artifact upload attempt failed",
				zap.String("request_id", requestID),
				zap.Int("ordinal", art.Ordinal),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, &UploadError{
			Ordinal:  art.Ordinal,
			Attempts: policy.MaxAttempts,
			Err:      err,
		}
	}

	return &Uploaded{
		Ordinal:  art.Ordinal,
		URL:      u.storage.PublicURL(u.bucket, path),
		FileName: path,
		ByteSize: int64(len(art.Data)),
		Seed:     art.Seed,
		TimingMs: art.TimingMs,
	}, nil
}

// objectPath builds a deterministic, collision-resistant storage path:
// tenant/year/month/<nanos>_<ordinal>_<entropy><ext>.
func (u *uploader) objectPath(tenantID snowflake.ID, art RawArtifact) string {
	now := u.clock.Now()
	entropy := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return fmt.Sprintf("%s/%d/%02d/%d_%02d_%s%s",
		tenantID.String(),
		now.Year(),
		int(now.Month()),
		now.UnixNano(),
		art.Ordinal,
		entropy,
		extensionFor(art.ContentType),
	)
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "text/plain":
		return ".txt"
	default:
		return ".bin"
	}
}
